// Package passphrase obtains passphrases from a human and validates them
// against a private key before handing them to callers.
package passphrase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/awnumar/memguard"
	"go.uber.org/zap"

	kerrors "github.com/atinyakov/keywarden/internal/errors"
	"github.com/atinyakov/keywarden/internal/metrics"
)

// MaxAttempts is the number of wrong passphrases accepted per request.
const MaxAttempts = 3

var (
	// ErrNoPrompt is returned by Submit when no prompt awaits input for the token.
	ErrNoPrompt = errors.New("no passphrase prompt awaiting input")
	// ErrEmptyPassphrase is returned by Submit for an empty candidate.
	ErrEmptyPassphrase = errors.New("empty passphrase")

	errAborted = errors.New("aborted by user")
	errLeft    = errors.New("all callers left")
)

// Prompter renders passphrase prompts to a human.
type Prompter interface {
	// Request shows a prompt for token. attempt starts at 1. The answer is
	// delivered later through Gate.Submit or Gate.Cancel.
	Request(ctx context.Context, token string, attempt int) error
	// Reject reports a wrong passphrase. terminal is true when no further
	// attempt will be requested.
	Reject(token string, attempts int, terminal bool)
	// Dismiss closes the prompt for token.
	Dismiss(token string)
}

// KeyUnlocker validates a passphrase by unlocking an armored private key.
type KeyUnlocker interface {
	DecryptPrivateKey(armored string, passphrase []byte) (*openpgp.Entity, error)
}

// Status describes a pending request.
type Status struct {
	Token    string `json:"token"`
	Attempts int    `json:"attempts"`
	Awaiting bool   `json:"awaiting"`
}

type pending struct {
	token string
	key   string

	ctx    context.Context
	cancel context.CancelCauseFunc

	candidates chan *memguard.Enclave
	done       chan struct{}

	// guarded by Gate.mu
	attempts int
	awaiting bool
	waiters  int

	// written once before done is closed
	result *memguard.Enclave
	err    error
}

// Gate coordinates passphrase prompts. One prompt is outstanding per token;
// concurrent Acquire calls for the same token share it.
type Gate struct {
	unlocker KeyUnlocker
	prompter Prompter
	log      *zap.Logger
	metrics  *metrics.Metrics

	mu      sync.Mutex
	pending map[string]*pending
}

// NewGate creates a Gate. m may be nil.
func NewGate(unlocker KeyUnlocker, prompter Prompter, log *zap.Logger, m *metrics.Metrics) *Gate {
	return &Gate{
		unlocker: unlocker,
		prompter: prompter,
		log:      log,
		metrics:  m,
		pending:  make(map[string]*pending),
	}
}

// Acquire returns a passphrase that unlocks armoredKey, prompting the human
// until it is valid.
//
// It fails with ErrExhausted after MaxAttempts wrong passphrases and with
// ErrCancelled when the prompt is cancelled or ctx is done. Key errors other
// than a wrong passphrase are returned unchanged. The returned slice is owned
// by the caller, who should wipe it once done.
func (g *Gate) Acquire(ctx context.Context, token, armoredKey string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", kerrors.ErrCancelled, err)
	}

	g.mu.Lock()
	p, ok := g.pending[token]
	if !ok {
		pctx, cancel := context.WithCancelCause(context.WithoutCancel(ctx))
		p = &pending{
			token:      token,
			key:        armoredKey,
			ctx:        pctx,
			cancel:     cancel,
			candidates: make(chan *memguard.Enclave, 1),
			done:       make(chan struct{}),
		}
		g.pending[token] = p
		g.metrics.PromptOpened()
		go g.run(p)
	} else {
		g.log.Debug("joining pending passphrase request", zap.String("token", token))
	}
	p.waiters++
	g.mu.Unlock()

	select {
	case <-p.done:
	case <-ctx.Done():
		g.leave(p)
		return nil, fmt.Errorf("%w: %w", kerrors.ErrCancelled, ctx.Err())
	}

	if p.err != nil {
		return nil, p.err
	}
	buf, err := p.result.Open()
	if err != nil {
		return nil, fmt.Errorf("open passphrase: %w", err)
	}
	defer buf.Destroy()
	return append([]byte(nil), buf.Bytes()...), nil
}

// Submit delivers a candidate passphrase for token. The passphrase slice is
// wiped before Submit returns.
func (g *Gate) Submit(_ context.Context, token string, passphrase []byte) error {
	if len(passphrase) == 0 {
		return ErrEmptyPassphrase
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	p, ok := g.pending[token]
	if !ok || !p.awaiting {
		memguard.WipeBytes(passphrase)
		return fmt.Errorf("%w: %s", ErrNoPrompt, token)
	}
	p.awaiting = false
	p.candidates <- memguard.NewEnclave(passphrase)
	return nil
}

// Cancel aborts the pending request for token. It reports whether a request
// was pending.
func (g *Gate) Cancel(token string) bool {
	g.mu.Lock()
	p, ok := g.pending[token]
	g.mu.Unlock()
	if !ok {
		return false
	}
	p.cancel(errAborted)
	return true
}

// Pending lists the requests currently waiting, ordered by token.
func (g *Gate) Pending() []Status {
	g.mu.Lock()
	defer g.mu.Unlock()

	statuses := make([]Status, 0, len(g.pending))
	for _, p := range g.pending {
		statuses = append(statuses, Status{Token: p.token, Attempts: p.attempts, Awaiting: p.awaiting})
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Token < statuses[j].Token })
	return statuses
}

func (g *Gate) leave(p *pending) {
	g.mu.Lock()
	defer g.mu.Unlock()
	p.waiters--
	if p.waiters == 0 {
		if g.pending[p.token] == p {
			delete(g.pending, p.token)
		}
		p.cancel(errLeft)
	}
}

// run drives the prompt loop for p until a passphrase validates, the attempts
// run out or the request is cancelled.
func (g *Gate) run(p *pending) {
	log := g.log.With(zap.String("token", p.token))

	for attempt := 1; ; attempt++ {
		g.mu.Lock()
		p.awaiting = true
		g.mu.Unlock()

		if err := g.prompter.Request(p.ctx, p.token, attempt); err != nil {
			log.Error("failed to request passphrase", zap.Error(err))
			g.metrics.RecordPassphrase(metrics.OutcomeFailed)
			g.finish(p, nil, fmt.Errorf("request passphrase: %w", err))
			return
		}

		var candidate *memguard.Enclave
		select {
		case candidate = <-p.candidates:
		case <-p.ctx.Done():
			log.Info("passphrase request cancelled", zap.NamedError("cause", context.Cause(p.ctx)))
			g.metrics.RecordPassphrase(metrics.OutcomeCancelled)
			g.prompter.Dismiss(p.token)
			g.finish(p, nil, fmt.Errorf("%w: %w", kerrors.ErrCancelled, context.Cause(p.ctx)))
			return
		}

		err := g.validate(p.key, candidate)
		if err == nil {
			log.Debug("passphrase accepted", zap.Int("attempt", attempt))
			g.metrics.RecordPassphrase(metrics.OutcomeAccepted)
			g.prompter.Dismiss(p.token)
			g.finish(p, candidate, nil)
			return
		}
		if !errors.Is(err, kerrors.ErrWrongPassphrase) {
			log.Error("failed to validate passphrase", zap.Error(err))
			g.metrics.RecordPassphrase(metrics.OutcomeFailed)
			g.prompter.Dismiss(p.token)
			g.finish(p, nil, err)
			return
		}

		g.mu.Lock()
		p.attempts++
		attempts := p.attempts
		g.mu.Unlock()

		if attempts >= MaxAttempts {
			log.Warn("passphrase attempts exhausted", zap.Int("attempts", attempts))
			g.metrics.RecordPassphrase(metrics.OutcomeExhausted)
			g.prompter.Reject(p.token, attempts, true)
			g.finish(p, nil, fmt.Errorf("%w: %d wrong passphrases", kerrors.ErrExhausted, attempts))
			return
		}
		log.Info("wrong passphrase", zap.Int("attempts", attempts))
		g.metrics.RecordPassphrase(metrics.OutcomeRejected)
		g.prompter.Reject(p.token, attempts, false)
	}
}

func (g *Gate) validate(armoredKey string, candidate *memguard.Enclave) error {
	buf, err := candidate.Open()
	if err != nil {
		return fmt.Errorf("open passphrase: %w", err)
	}
	defer buf.Destroy()

	// The unlocked key is dropped here; callers unlock their own copy.
	_, err = g.unlocker.DecryptPrivateKey(armoredKey, buf.Bytes())
	return err
}

func (g *Gate) finish(p *pending, result *memguard.Enclave, err error) {
	g.mu.Lock()
	if g.pending[p.token] == p {
		delete(g.pending, p.token)
	}
	p.awaiting = false
	g.mu.Unlock()

	p.result = result
	p.err = err
	p.cancel(nil)
	g.metrics.PromptClosed()
	close(p.done)
}
