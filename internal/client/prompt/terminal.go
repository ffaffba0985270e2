// Package prompt renders passphrase prompts to the user, either on the
// terminal or through the local HTTP bridge.
package prompt

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/atinyakov/keywarden/internal/passphrase"
)

// Sink receives the user's answers.
type Sink interface {
	Submit(ctx context.Context, token string, passphrase []byte) error
	Cancel(token string) bool
}

// Terminal asks for passphrases on a terminal. When in is not a terminal the
// passphrase is read as a line, which lets scripts pipe it in.
type Terminal struct {
	in     *os.File
	reader *bufio.Reader
	out    io.Writer
	log    *zap.Logger

	mu   sync.Mutex
	sink Sink
	// saved holds the terminal state of each prompt being read with echo off.
	saved map[string]*term.State
}

// NewTerminal creates a terminal prompter. Bind must be called before the
// first prompt.
func NewTerminal(in *os.File, out io.Writer, log *zap.Logger) *Terminal {
	return &Terminal{
		in:     in,
		reader: bufio.NewReader(in),
		out:    out,
		log:    log,
		saved:  make(map[string]*term.State),
	}
}

// Bind sets where answers are delivered.
func (t *Terminal) Bind(sink Sink) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sink = sink
}

// Request implements passphrase.Prompter.
func (t *Terminal) Request(ctx context.Context, token string, attempt int) error {
	t.mu.Lock()
	sink := t.sink
	t.mu.Unlock()
	if sink == nil {
		return errors.New("terminal prompt is not bound")
	}

	if attempt == 1 {
		fmt.Fprint(t.out, "Passphrase: ")
	} else {
		fmt.Fprintf(t.out, "Passphrase (attempt %d of %d): ", attempt, passphrase.MaxAttempts)
	}

	// The read below blocks until a line arrives. A prompt dismissed meanwhile
	// gets its echo back from the saved state.
	stop := func() bool { return false }
	if fd := int(t.in.Fd()); term.IsTerminal(fd) {
		state, err := term.GetState(fd)
		if err != nil {
			return fmt.Errorf("save terminal state: %w", err)
		}
		t.mu.Lock()
		t.saved[token] = state
		t.mu.Unlock()
		stop = context.AfterFunc(ctx, func() { t.restore(token) })
	}

	go func() {
		answer, err := t.read()
		stop()
		t.forget(token)
		fmt.Fprintln(t.out)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				t.log.Error("failed to read passphrase", zap.Error(err))
			}
			sink.Cancel(token)
			return
		}
		if err := sink.Submit(ctx, token, answer); err != nil {
			t.log.Warn("passphrase not accepted", zap.Error(err))
			if errors.Is(err, passphrase.ErrEmptyPassphrase) {
				sink.Cancel(token)
			}
		}
	}()
	return nil
}

// Reject implements passphrase.Prompter.
func (t *Terminal) Reject(_ string, attempts int, terminal bool) {
	if terminal {
		fmt.Fprintf(t.out, "Wrong passphrase. No attempts left.\n")
		return
	}
	fmt.Fprintf(t.out, "Wrong passphrase, %d attempt(s) left.\n", passphrase.MaxAttempts-attempts)
}

// Dismiss implements passphrase.Prompter. A read still in progress for token
// no longer hides the input.
func (t *Terminal) Dismiss(token string) {
	t.restore(token)
}

// Restore puts the terminal back into the state it had before any prompt
// still being read. It is called before the process exits.
func (t *Terminal) Restore() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for token := range t.saved {
		t.restoreLocked(token)
	}
}

func (t *Terminal) restore(token string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.restoreLocked(token)
}

func (t *Terminal) restoreLocked(token string) {
	state, ok := t.saved[token]
	if !ok {
		return
	}
	delete(t.saved, token)
	if err := term.Restore(int(t.in.Fd()), state); err != nil {
		t.log.Warn("failed to restore terminal", zap.Error(err))
	}
}

func (t *Terminal) forget(token string) {
	t.mu.Lock()
	delete(t.saved, token)
	t.mu.Unlock()
}

func (t *Terminal) read() ([]byte, error) {
	if term.IsTerminal(int(t.in.Fd())) {
		return term.ReadPassword(int(t.in.Fd()))
	}
	line, err := t.reader.ReadString('\n')
	if err != nil && (line == "" || !errors.Is(err, io.EOF)) {
		return nil, err
	}
	return []byte(strings.TrimRight(line, "\r\n")), nil
}
