package things

import (
	"context"
	crand "crypto/rand"
	"math/big"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/cases"
)

const (
	// CodeLength is the length of a session code.
	CodeLength = 4
	codeChars  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"

	maxCodeAttempts       = 16
	defaultStoreTimeout   = 5 * time.Second
	defaultRevealAttempts = 3
	maxQueueAttempts      = 3

	tracerName = "github.com/Seednode/whosaidit/games/things"
)

// RemovalPolicy decides when a correctly guessed author leaves the turn
// queue.
type RemovalPolicy int

const (
	// RemoveOnFirstGuess drops the author as soon as any one of their
	// entries is guessed, even if they wrote others.
	RemoveOnFirstGuess RemovalPolicy = iota
	// RemoveWhenAllGuessed keeps the author queued until every entry they
	// wrote has been guessed.
	RemoveWhenAllGuessed
)

// MatchPolicy decides how a guessed name is compared to an entry's author.
type MatchPolicy int

const (
	// MatchExact is a case-sensitive comparison with no normalization.
	MatchExact MatchPolicy = iota
	// MatchFold trims surrounding whitespace and compares Unicode case folds.
	MatchFold
)

// Options tunes an Engine. The zero value is usable.
type Options struct {
	Shuffle        Shuffler
	Removal        RemovalPolicy
	Match          MatchPolicy
	AllowSelfGuess bool
	// EnforceTurns rejects guesses from anyone but the head of a non-empty
	// turn queue with ErrNotYourTurn.
	EnforceTurns bool

	// StoreTimeout bounds every individual Store call.
	StoreTimeout time.Duration
	// RevealAttempts bounds retries when revealing entries at start.
	RevealAttempts int

	Now        func() time.Time
	NewCode    func() string
	NewEntryID func() string
	Logger     *zerolog.Logger
}

// Engine runs the session lifecycle and guess resolution against a Store and
// reports domain events to a Broadcaster.
//
// Operations on the same session are serialized in-process. Across processes
// sharing one store, only the writes the Store guards are safe: starting a
// session, resolving a guess and moving the turn queue. Reset, AddEntry and
// expiry are last-writer-wins between processes.
// Operations are not cancellable once issued: caller cancellation is ignored,
// and each Store call is bounded by Options.StoreTimeout instead.
type Engine struct {
	store  Store
	bus    Broadcaster
	opts   Options
	locks  *sessionLocks
	log    zerolog.Logger
	tracer trace.Tracer
}

// New returns an Engine. A nil bus discards events.
func New(store Store, bus Broadcaster, opts Options) *Engine {
	if bus == nil {
		bus = Discard
	}
	if opts.Shuffle == nil {
		opts.Shuffle = CryptoShuffle
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = defaultStoreTimeout
	}
	if opts.RevealAttempts <= 0 {
		opts.RevealAttempts = defaultRevealAttempts
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewCode == nil {
		opts.NewCode = NewCode
	}
	if opts.NewEntryID == nil {
		opts.NewEntryID = func() string { return uuid.NewString() }
	}

	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	return &Engine{
		store:  &boundedStore{Store: store, timeout: opts.StoreTimeout},
		bus:    bus,
		opts:   opts,
		locks:  newSessionLocks(),
		log:    logger,
		tracer: otel.Tracer(tracerName),
	}
}

// NewCode returns a random session code of CodeLength uppercase letters.
func NewCode() string {
	code := make([]byte, CodeLength)
	for i := range code {
		n, err := crand.Int(crand.Reader, big.NewInt(int64(len(codeChars))))
		if err != nil {
			code[i] = codeChars[rand.IntN(len(codeChars))]
			continue
		}
		code[i] = codeChars[n.Int64()]
	}
	return string(code)
}

func (e *Engine) now() time.Time { return e.opts.Now().UTC() }

// begin detaches ctx from caller cancellation and opens a span for op.
func (e *Engine) begin(ctx context.Context, op, sessionID string) (context.Context, trace.Span) {
	ctx = context.WithoutCancel(ctx)
	return e.tracer.Start(ctx, op, trace.WithAttributes(attribute.String("session.id", sessionID)))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (e *Engine) publish(sessionID string, events []Event) {
	if len(events) == 0 {
		return
	}
	e.bus.Publish(sessionID, events...)
}

func (e *Engine) matches(author, guess string) bool {
	switch e.opts.Match {
	case MatchFold:
		a := cases.Fold().String(strings.TrimSpace(author))
		g := cases.Fold().String(strings.TrimSpace(guess))
		return a == g
	default:
		return author == guess
	}
}

func promptOrDefault(prompt string) string {
	if p := strings.TrimSpace(prompt); p != "" {
		return p
	}
	return DefaultPrompt
}

func blank(s string) bool { return strings.TrimSpace(s) == "" }
