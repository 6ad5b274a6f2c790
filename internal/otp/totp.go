// Package otp generates and checks time-based one-time passwords for the
// second authentication factor. It works on decrypted seeds only; callers own
// seed storage and encryption.
package otp

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// Policy constants. Codes are delivered out of band (email), so the step is
// much longer than the usual 30s authenticator-app period.
const (
	DefaultPeriod uint = 300
	DefaultDigits      = otp.DigitsSix

	// DefaultSkew is the clock-skew tolerance: a code from the step immediately
	// before or after the current one is still accepted. Widening it extends
	// the replay window of a leaked code by one full period per step.
	DefaultSkew uint = 1
)

// ErrMissingSeed is a caller contract violation: no seed was supplied.
var ErrMissingSeed = errors.New("otp: seed is required")

// Config tunes the engine. Zero values fall back to the policy defaults.
type Config struct {
	Issuer string
	Period uint
	Skew   *uint
	Clock  func() time.Time
}

// Engine generates and validates TOTP codes.
type Engine struct {
	issuer string
	opts   totp.ValidateOpts
	now    func() time.Time
}

// NewEngine builds an Engine.
func NewEngine(cfg Config) *Engine {
	period := cfg.Period
	if period == 0 {
		period = DefaultPeriod
	}
	skew := DefaultSkew
	if cfg.Skew != nil {
		skew = *cfg.Skew
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	issuer := cfg.Issuer
	if issuer == "" {
		issuer = "auth-service"
	}

	return &Engine{
		issuer: issuer,
		opts: totp.ValidateOpts{
			Period:    period,
			Skew:      skew,
			Digits:    DefaultDigits,
			Algorithm: otp.AlgorithmSHA1,
		},
		now: now,
	}
}

// Period returns the configured time step.
func (e *Engine) Period() time.Duration {
	return time.Duration(e.opts.Period) * time.Second
}

// GenerateSeed creates a new base32 seed for account.
func (e *Engine) GenerateSeed(account string) (string, error) {
	if strings.TrimSpace(account) == "" {
		account = "account"
	}
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      e.issuer,
		AccountName: account,
		Period:      e.opts.Period,
		Digits:      e.opts.Digits,
		Algorithm:   e.opts.Algorithm,
	})
	if err != nil {
		return "", fmt.Errorf("generate totp seed: %w", err)
	}
	return key.Secret(), nil
}

// Generate returns the code for the current step.
func (e *Engine) Generate(seed string) (string, error) {
	if seed == "" {
		return "", ErrMissingSeed
	}
	code, err := totp.GenerateCodeCustom(seed, e.now(), e.opts)
	if err != nil {
		return "", fmt.Errorf("generate totp code: %w", err)
	}
	return code, nil
}

// Verify reports whether code is valid for seed at the current step, within
// the skew window. A wrong, stale or malformed code is (false, nil).
func (e *Engine) Verify(code, seed string) (bool, error) {
	if seed == "" {
		return false, ErrMissingSeed
	}
	ok, err := totp.ValidateCustom(strings.TrimSpace(code), seed, e.now(), e.opts)
	if err != nil {
		if errors.Is(err, otp.ErrValidateInputInvalidLength) {
			return false, nil
		}
		return false, fmt.Errorf("validate totp code: %w", err)
	}
	return ok, nil
}
