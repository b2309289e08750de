package main

import (
	"testing"
	"time"

	"github.com/Seednode/whosaidit/games/things"
)

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"cert without key", func(c *Config) { c.tlsCert = "cert.pem" }, true},
		{"key without cert", func(c *Config) { c.tlsKey = "key.pem" }, true},
		{"both tls files", func(c *Config) { c.tlsCert, c.tlsKey = "cert.pem", "key.pem" }, false},
		{"port zero", func(c *Config) { c.port = 0 }, true},
		{"port too large", func(c *Config) { c.port = 70000 }, true},
		{"zero store timeout", func(c *Config) { c.storeTimeout = 0 }, true},
		{"negative ttl", func(c *Config) { c.sessionTTL = -time.Hour }, true},
		{"zero sweep interval", func(c *Config) { c.sweepInterval = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := testConfig()
			tt.mutate(cfg)

			if err := cfg.validate(); (err != nil) != tt.wantErr {
				t.Fatalf("validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestFlagsAndEnvironment(t *testing.T) {
	t.Setenv("WHOSAIDIT_PORT", "9090")
	t.Setenv("WHOSAIDIT_FOLD_CASE", "true")

	cfg := &Config{}
	cmd := newCmd(cfg)
	if err := cmd.ParseFlags([]string{"--session-ttl", "1h", "--remove_author_after_all_guessed", "--enforce-turns"}); err != nil {
		t.Fatalf("ParseFlags() error = %v", err)
	}

	if cfg.port != 9090 {
		t.Fatalf("port = %d, want 9090", cfg.port)
	}
	if !cfg.foldCase {
		t.Fatal("fold-case not read from environment")
	}
	if cfg.sessionTTL != time.Hour {
		t.Fatalf("session ttl = %s, want 1h", cfg.sessionTTL)
	}
	if cfg.storeTimeout != 5*time.Second || cfg.sweepInterval != time.Hour {
		t.Fatalf("defaults = %s, %s", cfg.storeTimeout, cfg.sweepInterval)
	}

	opts := cfg.engineOptions()
	if opts.Match != things.MatchFold || opts.Removal != things.RemoveWhenAllGuessed || opts.AllowSelfGuess || !opts.EnforceTurns {
		t.Fatalf("engine options = %+v", opts)
	}
}

func TestHumanReadableSize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{999, "999 B"},
		{1000, "1.0 kB"},
		{1500000, "1.5 MB"},
	}

	for _, tt := range tests {
		if got := humanReadableSize(tt.in); got != tt.want {
			t.Fatalf("humanReadableSize(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
