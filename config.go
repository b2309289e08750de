package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/Seednode/whosaidit/games/things"
)

type Config struct {
	allowSelfGuess bool
	bind           string
	corsOrigin     string
	db             string
	enforceTurns   bool
	foldCase       bool
	otelEndpoint   string
	port           int
	prefix         string
	profile        bool
	removeLate     bool
	sessionTTL     time.Duration
	storeTimeout   time.Duration
	sweepInterval  time.Duration
	tlsCert        string
	tlsKey         string
	verbose        bool
	version        bool
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if c.storeTimeout <= 0 {
		return fmt.Errorf("invalid --store-timeout (must be positive): %s", c.storeTimeout)
	}
	if c.sessionTTL <= 0 {
		return fmt.Errorf("invalid --session-ttl (must be positive): %s", c.sessionTTL)
	}
	if c.sweepInterval <= 0 {
		return fmt.Errorf("invalid --sweep-interval (must be positive): %s", c.sweepInterval)
	}
	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

// engineOptions translates the game flags into engine options.
func (c *Config) engineOptions() things.Options {
	opts := things.Options{
		AllowSelfGuess: c.allowSelfGuess,
		EnforceTurns:   c.enforceTurns,
		StoreTimeout:   c.storeTimeout,
	}
	if c.removeLate {
		opts.Removal = things.RemoveWhenAllGuessed
	}
	if c.foldCase {
		opts.Match = things.MatchFold
	}
	return opts
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("WHOSAIDIT")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "whosaidit",
		Short:         "Answer a prompt anonymously, then take turns guessing who said what.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			return ServePage(cmd.Context(), cfg)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.BoolVar(&cfg.allowSelfGuess, "allow-self-guess", false, "let players guess their own entries at any time (env: WHOSAIDIT_ALLOW_SELF_GUESS)")
	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: WHOSAIDIT_BIND)")
	fs.StringVar(&cfg.corsOrigin, "cors-origin", "*", "value of Access-Control-Allow-Origin on API responses (env: WHOSAIDIT_CORS_ORIGIN)")
	fs.StringVar(&cfg.db, "db", "", "path to sqlite database; sessions are kept in memory when unset (env: WHOSAIDIT_DB)")
	fs.BoolVar(&cfg.enforceTurns, "enforce-turns", false, "only accept guesses from the player whose turn it is (env: WHOSAIDIT_ENFORCE_TURNS)")
	fs.BoolVar(&cfg.foldCase, "fold-case", false, "ignore case and surrounding whitespace when matching guesses (env: WHOSAIDIT_FOLD_CASE)")
	fs.StringVar(&cfg.otelEndpoint, "otel-endpoint", "", "OTLP/HTTP endpoint to export traces to (env: WHOSAIDIT_OTEL_ENDPOINT)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: WHOSAIDIT_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: WHOSAIDIT_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: WHOSAIDIT_PROFILE)")
	fs.BoolVar(&cfg.removeLate, "remove-author-after-all-guessed", false, "keep authors in the turn order until all of their entries are guessed (env: WHOSAIDIT_REMOVE_AUTHOR_AFTER_ALL_GUESSED)")
	fs.DurationVar(&cfg.sessionTTL, "session-ttl", 48*time.Hour, "age after which sessions are deleted (env: WHOSAIDIT_SESSION_TTL)")
	fs.DurationVar(&cfg.storeTimeout, "store-timeout", 5*time.Second, "time limit for each storage call (env: WHOSAIDIT_STORE_TIMEOUT)")
	fs.DurationVar(&cfg.sweepInterval, "sweep-interval", time.Hour, "how often to look for expired sessions (env: WHOSAIDIT_SWEEP_INTERVAL)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: WHOSAIDIT_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: WHOSAIDIT_TLS_KEY)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: WHOSAIDIT_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: WHOSAIDIT_VERSION)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("whosaidit v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
