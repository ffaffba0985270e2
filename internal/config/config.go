// Package config provides functionality for managing configuration options
// for the application using a JSON file, a .env file, environment variables
// and command-line flags.
//
// Later sources override earlier ones: defaults, the JSON config file, the
// environment (seeded from .env), then flags set explicitly on the command line.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

// Prompt modes.
const (
	PromptTerminal = "terminal"
	PromptHTTP     = "http"
)

// Options holds the configuration values for the application.
type Options struct {
	// DatabaseDSN holds the connection string of the backend database.
	DatabaseDSN string `json:"database_dsn" env:"KEYWARDEN_DATABASE_DSN"`

	// AccountFile is the path of the local account store.
	AccountFile string `json:"account_file" env:"KEYWARDEN_ACCOUNT_FILE"`

	// PromptMode selects how passphrases are asked: "terminal" or "http".
	PromptMode string `json:"prompt_mode" env:"KEYWARDEN_PROMPT"`

	// PromptAddr is the listening address (ip:port) of the HTTP prompt bridge.
	PromptAddr string `json:"prompt_addr" env:"KEYWARDEN_PROMPT_ADDR"`

	// LogLevel is the minimum level logged to stderr.
	LogLevel string `json:"log_level" env:"KEYWARDEN_LOG_LEVEL"`

	// VerifierKeyFiles are armored public keys of the organization
	// administrators allowed to sign recovery responses.
	VerifierKeyFiles []string `json:"verifier_key_files" env:"KEYWARDEN_VERIFIER_KEYS"`

	// CleanInterval enables the recovery request cleaner when positive.
	CleanInterval  time.Duration `json:"-" env:"KEYWARDEN_CLEAN_INTERVAL"`
	CleanRetention time.Duration `json:"-" env:"KEYWARDEN_CLEAN_RETENTION"`

	// Config is the path to the config file.
	Config string `json:"-" env:"KEYWARDEN_CONFIG"`

	// EnvFile is the path of the optional .env file.
	EnvFile string `json:"-"`
}

// Default returns the built-in configuration.
func Default() *Options {
	return &Options{
		AccountFile:    "accounts.json",
		PromptMode:     PromptTerminal,
		PromptAddr:     "127.0.0.1:8787",
		LogLevel:       "Info",
		CleanRetention: 30 * 24 * time.Hour,
		Config:         "keywarden.json",
		EnvFile:        ".env",
	}
}

// Loader binds command-line flags and assembles Options from every source.
type Loader struct {
	fs    *pflag.FlagSet
	flags Options
}

// NewLoader registers the configuration flags on fs.
func NewLoader(fs *pflag.FlagSet) *Loader {
	l := &Loader{fs: fs}
	d := Default()
	fs.StringVarP(&l.flags.DatabaseDSN, "database-dsn", "d", d.DatabaseDSN, "backend database address")
	fs.StringVar(&l.flags.AccountFile, "accounts", d.AccountFile, "path to the local account store")
	fs.StringVar(&l.flags.PromptMode, "prompt", d.PromptMode, "passphrase prompt: terminal or http")
	fs.StringVarP(&l.flags.PromptAddr, "prompt-addr", "a", d.PromptAddr, "run the http prompt bridge on ip:port")
	fs.StringVar(&l.flags.LogLevel, "log-level", d.LogLevel, "log level")
	fs.StringSliceVar(&l.flags.VerifierKeyFiles, "verifier-key", nil, "armored public key allowed to sign recovery responses (repeatable)")
	fs.DurationVar(&l.flags.CleanInterval, "clean-interval", d.CleanInterval, "interval of the recovery request cleaner, 0 disables it")
	fs.DurationVar(&l.flags.CleanRetention, "clean-retention", d.CleanRetention, "age after which finished recovery requests are deleted")
	fs.StringVarP(&l.flags.Config, "config", "c", d.Config, "path to config file")
	fs.StringVar(&l.flags.EnvFile, "env-file", d.EnvFile, "path to .env file")
	return l
}

// Load parses every configuration source. It must run after the flag set
// has been parsed. Missing config and .env files are not an error.
func (l *Loader) Load() (*Options, error) {
	options := Default()

	if l.fs.Changed("env-file") {
		options.EnvFile = l.flags.EnvFile
	}
	if _, err := os.Stat(options.EnvFile); err == nil {
		if err := godotenv.Load(options.EnvFile); err != nil {
			return nil, fmt.Errorf("error while reading env file: %w", err)
		}
	}

	switch {
	case l.fs.Changed("config"):
		options.Config = l.flags.Config
	case os.Getenv("KEYWARDEN_CONFIG") != "":
		options.Config = os.Getenv("KEYWARDEN_CONFIG")
	}
	if options.Config != "" {
		if _, err := os.Stat(options.Config); err == nil {
			data, err := os.ReadFile(options.Config)
			if err != nil {
				return nil, fmt.Errorf("error while reading config file: %w", err)
			}
			if err := json.Unmarshal(data, options); err != nil {
				return nil, fmt.Errorf("error while parsing config file: %w", err)
			}
		}
	}

	if err := envdecode.Decode(options); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("error while reading environment: %w", err)
	}

	l.applyFlags(options)

	if err := options.Validate(); err != nil {
		return nil, err
	}
	return options, nil
}

func (l *Loader) applyFlags(o *Options) {
	set := map[string]func(){
		"database-dsn":    func() { o.DatabaseDSN = l.flags.DatabaseDSN },
		"accounts":        func() { o.AccountFile = l.flags.AccountFile },
		"prompt":          func() { o.PromptMode = l.flags.PromptMode },
		"prompt-addr":     func() { o.PromptAddr = l.flags.PromptAddr },
		"log-level":       func() { o.LogLevel = l.flags.LogLevel },
		"verifier-key":    func() { o.VerifierKeyFiles = l.flags.VerifierKeyFiles },
		"clean-interval":  func() { o.CleanInterval = l.flags.CleanInterval },
		"clean-retention": func() { o.CleanRetention = l.flags.CleanRetention },
	}
	for name, apply := range set {
		if l.fs.Changed(name) {
			apply()
		}
	}
}

// Validate checks option values that cannot be checked while parsing.
func (o *Options) Validate() error {
	if o.PromptMode != PromptTerminal && o.PromptMode != PromptHTTP {
		return fmt.Errorf("unknown prompt mode %q", o.PromptMode)
	}
	if o.AccountFile == "" {
		return errors.New("account file must be set")
	}
	if o.CleanInterval < 0 || o.CleanRetention < 0 {
		return errors.New("cleaner durations must not be negative")
	}
	return nil
}
