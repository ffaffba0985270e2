package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/fatih/color"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/atinyakov/keywarden/internal/client/prompt"
	"github.com/atinyakov/keywarden/internal/client/storage"
	"github.com/atinyakov/keywarden/internal/config"
	"github.com/atinyakov/keywarden/internal/crypto"
	"github.com/atinyakov/keywarden/internal/db"
	"github.com/atinyakov/keywarden/internal/metrics"
	"github.com/atinyakov/keywarden/internal/middleware"
	"github.com/atinyakov/keywarden/internal/passphrase"
	handler "github.com/atinyakov/keywarden/internal/server/handler/http"
)

const (
	// promptRetention keeps finished prompts visible to a polling interface.
	promptRetention = 5 * time.Minute

	submitRate  = 1
	submitBurst = 5
)

// app holds the components shared by the commands.
type app struct {
	opts    *config.Options
	log     *zap.Logger
	metrics *metrics.Metrics
	pgp     *crypto.OpenPGP
	store   *storage.LocalStorage
	gate    *passphrase.Gate

	// board is set in http prompt mode, terminal otherwise.
	board    *prompt.Board
	terminal *prompt.Terminal
}

func newApp(opts *config.Options, log *zap.Logger) (*app, error) {
	store := storage.New(opts.AccountFile)
	if err := store.Load(); err != nil {
		return nil, fmt.Errorf("load accounts: %w", err)
	}

	a := &app{
		opts:    opts,
		log:     log,
		metrics: metrics.New(),
		pgp:     crypto.New(nil),
		store:   store,
	}

	switch opts.PromptMode {
	case config.PromptHTTP:
		a.board = prompt.NewBoard(promptRetention, log)
		a.gate = passphrase.NewGate(a.pgp, a.board, log, a.metrics)
	default:
		a.terminal = prompt.NewTerminal(os.Stdin, os.Stderr, log)
		a.gate = passphrase.NewGate(a.pgp, a.terminal, log, a.metrics)
		a.terminal.Bind(a.gate)
	}
	return a, nil
}

// openDB connects to the backend and starts the recovery request cleaner
// when an interval is configured.
func (a *app) openDB(ctx context.Context) (*sql.DB, error) {
	if a.opts.DatabaseDSN == "" {
		return nil, errors.New("database dsn is not configured, use --database-dsn or KEYWARDEN_DATABASE_DSN")
	}
	conn, err := db.InitPostgres(ctx, a.opts.DatabaseDSN)
	if err != nil {
		return nil, err
	}
	if a.opts.CleanInterval > 0 {
		db.StartRecoveryRequestCleaner(ctx, conn, a.opts.CleanInterval, a.opts.CleanRetention, a.log)
	}
	return conn, nil
}

// verifiers reads the administrator keys allowed to sign recovery responses.
func (a *app) verifiers() ([]*openpgp.Entity, error) {
	keys := make([]*openpgp.Entity, 0, len(a.opts.VerifierKeyFiles))
	for _, path := range a.opts.VerifierKeyFiles {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read verifier key: %w", err)
		}
		key, err := a.pgp.ReadKey(string(data))
		if err != nil {
			return nil, fmt.Errorf("verifier key %s: %w", path, err)
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// run executes op. In http prompt mode the prompt bridge is served until op
// returns.
func (a *app) run(ctx context.Context, op func(ctx context.Context) error) error {
	if a.board == nil {
		if a.terminal != nil {
			defer a.terminal.Restore()
		}
		return op(ctx)
	}

	ln, err := net.Listen("tcp", a.opts.PromptAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", a.opts.PromptAddr, err)
	}
	router := handler.NewRouter(
		&handler.PromptHandler{Board: a.board, Sink: a.gate},
		a.metrics.Handler(),
		middleware.NewRateLimiter(submitRate, submitBurst, a.log),
		a.log,
	)
	server := &http.Server{Handler: router, ReadHeaderTimeout: 5 * time.Second}

	fmt.Fprintf(os.Stderr, "%s Answer passphrase prompts at %s\n",
		color.CyanString("→"), color.YellowString("http://%s/api/passphrase/requests", ln.Addr()))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("prompt bridge: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				a.log.Warn("prompt bridge shutdown", zap.Error(err))
			}
		}()
		return op(gctx)
	})
	return g.Wait()
}
