package prompt

import (
	"bytes"
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type answer struct {
	token      string
	passphrase string
	cancelled  bool
}

type recordingSink struct {
	answers chan answer
}

func (s *recordingSink) Submit(_ context.Context, token string, passphrase []byte) error {
	s.answers <- answer{token: token, passphrase: string(passphrase)}
	return nil
}

func (s *recordingSink) Cancel(token string) bool {
	s.answers <- answer{token: token, cancelled: true}
	return true
}

func pipeWith(t *testing.T, input string) *os.File {
	t.Helper()
	r, w, err := os.Pipe()
	require.NoError(t, err)
	_, err = w.WriteString(input)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	t.Cleanup(func() { r.Close() })
	return r
}

// syncBuffer guards output written from the reading goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestTerminal_ReadsLinesFromPipe(t *testing.T) {
	var out syncBuffer
	sink := &recordingSink{answers: make(chan answer, 2)}
	term := NewTerminal(pipeWith(t, "first try\r\nsecond try\n"), &out, zap.NewNop())
	term.Bind(sink)

	require.NoError(t, term.Request(context.Background(), "tok", 1))
	assert.Equal(t, answer{token: "tok", passphrase: "first try"}, <-sink.answers)

	term.Reject("tok", 1, false)
	require.NoError(t, term.Request(context.Background(), "tok", 2))
	assert.Equal(t, answer{token: "tok", passphrase: "second try"}, <-sink.answers)

	assert.Contains(t, out.String(), "Wrong passphrase, 2 attempt(s) left.")
	assert.Contains(t, out.String(), "Passphrase (attempt 2 of 3): ")
}

func TestTerminal_EOFCancels(t *testing.T) {
	sink := &recordingSink{answers: make(chan answer, 1)}
	term := NewTerminal(pipeWith(t, ""), &syncBuffer{}, zap.NewNop())
	term.Bind(sink)

	require.NoError(t, term.Request(context.Background(), "tok", 1))
	assert.Equal(t, answer{token: "tok", cancelled: true}, <-sink.answers)
}

func TestTerminal_LastLineWithoutNewline(t *testing.T) {
	sink := &recordingSink{answers: make(chan answer, 1)}
	term := NewTerminal(pipeWith(t, "no newline"), &syncBuffer{}, zap.NewNop())
	term.Bind(sink)

	require.NoError(t, term.Request(context.Background(), "tok", 1))
	assert.Equal(t, answer{token: "tok", passphrase: "no newline"}, <-sink.answers)
}

func TestTerminal_Unbound(t *testing.T) {
	term := NewTerminal(pipeWith(t, ""), &syncBuffer{}, zap.NewNop())
	assert.Error(t, term.Request(context.Background(), "tok", 1))
}

func TestBoard_Lifecycle(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	board := NewBoard(time.Minute, zap.NewNop())
	board.now = func() time.Time { return now }

	require.NoError(t, board.Request(context.Background(), "a", 1))
	now = now.Add(time.Second)
	require.NoError(t, board.Request(context.Background(), "b", 1))

	open := board.Open()
	require.Len(t, open, 2)
	assert.Equal(t, "a", open[0].Token)

	board.Reject("a", 1, false)
	require.NoError(t, board.Request(context.Background(), "a", 2))
	p, ok := board.Get("a")
	require.True(t, ok)
	assert.Equal(t, Prompt{Token: "a", Attempt: 2, Failed: 1, Status: StatusAwaiting, Updated: now}, p)

	board.Reject("b", 3, true)
	board.Dismiss("b")
	p, ok = board.Get("b")
	require.True(t, ok)
	assert.Equal(t, StatusExhausted, p.Status)

	board.Dismiss("a")
	assert.Empty(t, board.Open())

	now = now.Add(2 * time.Minute)
	_, ok = board.Get("a")
	assert.False(t, ok, "closed prompts are pruned after retention")
	_, ok = board.Get("b")
	assert.False(t, ok)
}
