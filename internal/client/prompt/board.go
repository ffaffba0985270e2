package prompt

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Status of a prompt shown on the board.
type Status string

const (
	StatusAwaiting  Status = "awaiting"
	StatusExhausted Status = "exhausted"
	StatusClosed    Status = "closed"
)

// Prompt is a passphrase request as seen by the user interface.
type Prompt struct {
	Token string `json:"token"`
	// Attempt is the 1-based attempt currently requested.
	Attempt int `json:"attempt"`
	// Failed counts the wrong passphrases entered so far.
	Failed  int       `json:"failed"`
	Status  Status    `json:"status"`
	Updated time.Time `json:"updated"`
}

// Board keeps passphrase prompts for a user interface that polls for them.
// Closed prompts stay visible for the retention period so the interface can
// learn how they ended.
type Board struct {
	retention time.Duration
	now       func() time.Time
	log       *zap.Logger

	mu      sync.Mutex
	prompts map[string]*Prompt
}

// NewBoard creates an empty board.
func NewBoard(retention time.Duration, log *zap.Logger) *Board {
	return &Board{
		retention: retention,
		now:       time.Now,
		log:       log,
		prompts:   make(map[string]*Prompt),
	}
}

// Request implements passphrase.Prompter.
func (b *Board) Request(_ context.Context, token string, attempt int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	p, ok := b.prompts[token]
	if !ok {
		p = &Prompt{Token: token}
		b.prompts[token] = p
	}
	p.Attempt = attempt
	p.Status = StatusAwaiting
	p.Updated = b.now()
	b.log.Debug("passphrase prompt posted", zap.String("token", token), zap.Int("attempt", attempt))
	return nil
}

// Reject implements passphrase.Prompter.
func (b *Board) Reject(token string, attempts int, terminal bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	p, ok := b.prompts[token]
	if !ok {
		return
	}
	p.Failed = attempts
	p.Updated = b.now()
	if terminal {
		p.Status = StatusExhausted
	}
}

// Dismiss implements passphrase.Prompter.
func (b *Board) Dismiss(token string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if p, ok := b.prompts[token]; ok && p.Status != StatusExhausted {
		p.Status = StatusClosed
		p.Updated = b.now()
	}
}

// Get returns the prompt for token.
func (b *Board) Get(token string) (Prompt, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.prune()

	p, ok := b.prompts[token]
	if !ok {
		return Prompt{}, false
	}
	return *p, true
}

// Open lists the prompts awaiting a passphrase, oldest first.
func (b *Board) Open() []Prompt {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.prune()

	open := make([]Prompt, 0, len(b.prompts))
	for _, p := range b.prompts {
		if p.Status == StatusAwaiting {
			open = append(open, *p)
		}
	}
	sort.Slice(open, func(i, j int) bool { return open[i].Updated.Before(open[j].Updated) })
	return open
}

// prune drops closed prompts past retention. Callers hold b.mu.
func (b *Board) prune() {
	cutoff := b.now().Add(-b.retention)
	for token, p := range b.prompts {
		if p.Status != StatusAwaiting && p.Updated.Before(cutoff) {
			delete(b.prompts, token)
		}
	}
}
