package totp

import (
	cryptoRand "crypto/rand"
	"crypto/subtle"
	"encoding/base32"
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// Mode selects the verification policy.
type Mode int

const (
	// ModeWindowed verifies authenticator-app codes: standard 30-second
	// steps with a ±1 step tolerance window to absorb clock drift.
	ModeWindowed Mode = iota
	// ModeStrict verifies emailed codes: a long configurable interval with
	// exact-step matching and no tolerance window.
	ModeStrict
)

func (m Mode) String() string {
	if m == ModeStrict {
		return "email"
	}
	return "app"
}

const (
	// DefaultPeriod is the RFC 6238 step length used in windowed mode.
	DefaultPeriod = 30 * time.Second
	// DefaultEmailInterval is the strict-mode step length when not configured.
	DefaultEmailInterval = 5 * time.Minute

	secretBytes = 20 // 160 bits of entropy, RFC 4226 recommendation
)

// Option allows customising the engine.
type Option func(*Engine)

// WithEmailInterval overrides the strict-mode step length.
func WithEmailInterval(interval time.Duration) Option {
	return func(e *Engine) {
		if interval >= time.Second {
			e.emailInterval = interval
		}
	}
}

// WithClock injects a custom time source, primarily for testing.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		if clock != nil {
			e.now = clock
		}
	}
}

// Engine implements stateless TOTP arithmetic and the verification policy.
// It holds no per-user state; the mode is fixed at construction so the
// windowed/strict switch is never read from ambient configuration.
type Engine struct {
	mode          Mode
	emailInterval time.Duration
	now           func() time.Time
}

// NewEngine constructs an engine for the given verification mode.
func NewEngine(mode Mode, opts ...Option) *Engine {
	engine := &Engine{
		mode:          mode,
		emailInterval: DefaultEmailInterval,
		now:           time.Now,
	}

	for _, opt := range opts {
		opt(engine)
	}

	return engine
}

// Mode reports the verification policy the engine was built with.
func (e *Engine) Mode() Mode {
	return e.mode
}

// Period returns the step length for the engine's mode.
func (e *Engine) Period() time.Duration {
	if e.mode == ModeStrict {
		return e.emailInterval
	}
	return DefaultPeriod
}

// GenerateSecret produces a fresh cryptographically random base32 secret.
func (e *Engine) GenerateSecret() (string, error) {
	buf := make([]byte, secretBytes)
	if _, err := cryptoRand.Read(buf); err != nil {
		return "", fmt.Errorf("totp: generate secret: %w", err)
	}

	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(buf), nil
}

// CurrentCode computes the code for the step containing "now". Display and
// delivery only; verification decisions go through Verify.
func (e *Engine) CurrentCode(secret string) (string, error) {
	return e.CodeAt(secret, e.now())
}

// CodeAt computes the code for the step containing at.
func (e *Engine) CodeAt(secret string, at time.Time) (string, error) {
	code, err := totp.GenerateCodeCustom(secret, at, e.validateOpts())
	if err != nil {
		return "", fmt.Errorf("totp: code at %s: %w", at.UTC().Format(time.RFC3339), err)
	}
	return code, nil
}

// Outcome reports the result of a verification.
type Outcome struct {
	Valid bool
	// MatchedAt is the start of the time step whose code matched. Zero when
	// the submission was rejected.
	MatchedAt time.Time
}

// Verify validates a submitted code against the secret under the engine's
// mode. Windowed mode accepts the current step plus one step before and
// after; strict mode accepts the current step only.
func (e *Engine) Verify(secret, code string) (Outcome, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return Outcome{}, nil
	}

	skew := 0
	if e.mode == ModeWindowed {
		skew = 1
	}

	now := e.now()
	period := e.Period()

	for offset := -skew; offset <= skew; offset++ {
		at := now.Add(time.Duration(offset) * period)

		expected, err := totp.GenerateCodeCustom(secret, at, e.validateOpts())
		if err != nil {
			return Outcome{}, fmt.Errorf("totp: verify: %w", err)
		}

		if subtle.ConstantTimeCompare([]byte(expected), []byte(code)) == 1 {
			return Outcome{Valid: true, MatchedAt: stepStart(at, period)}, nil
		}
	}

	return Outcome{}, nil
}

// StepStart returns the beginning of the time step containing at under the
// engine's period. A verification outcome whose MatchedAt equals
// StepStart(t) matched the code that was current at t.
func (e *Engine) StepStart(at time.Time) time.Time {
	return stepStart(at, e.Period())
}

// stepStart returns the beginning of the time step containing at, computed
// against the Unix epoch the same way the code counter is.
func stepStart(at time.Time, period time.Duration) time.Time {
	seconds := int64(period / time.Second)
	return time.Unix((at.Unix()/seconds)*seconds, 0).UTC()
}

func (e *Engine) validateOpts() totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    uint(e.Period() / time.Second),
		Skew:      0,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	}
}
