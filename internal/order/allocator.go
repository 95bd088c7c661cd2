package order

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-merch/internal/obs"
)

// CodeAlphabet omits characters students tend to misread (0/O, 1/I).
const CodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const (
	defaultCodeLength  = 8
	defaultMaxAttempts = 10
)

// ClaimFunc atomically reserves code, returning ErrDuplicateCode when another
// order already holds it.
type ClaimFunc func(ctx context.Context, code string) error

// Allocator generates order codes and claims them with bounded retries.
type Allocator struct {
	Length      int
	MaxAttempts int
	Rand        io.Reader
	Logger      zerolog.Logger
}

// Generate returns one random candidate code.
func (a Allocator) Generate() (string, error) {
	length := a.Length
	if length <= 0 {
		length = defaultCodeLength
	}
	src := a.Rand
	if src == nil {
		src = rand.Reader
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(src, buf); err != nil {
		return "", fmt.Errorf("generate order code: %w", err)
	}
	// 256 is a multiple of len(CodeAlphabet), so the modulo is unbiased.
	for i, b := range buf {
		buf[i] = CodeAlphabet[int(b)%len(CodeAlphabet)]
	}
	return string(buf), nil
}

// Allocate generates candidates until claim succeeds. A duplicate code is a
// collision and is retried; any other claim error aborts immediately.
func (a Allocator) Allocate(ctx context.Context, claim ClaimFunc) (string, error) {
	attempts := a.MaxAttempts
	if attempts <= 0 || attempts > defaultMaxAttempts {
		attempts = defaultMaxAttempts
	}
	logger := obs.LoggerWithTrace(ctx, a.Logger)
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		code, err := a.Generate()
		if err != nil {
			return "", err
		}
		err = claim(ctx, code)
		if err == nil {
			return code, nil
		}
		if !errors.Is(err, ErrDuplicateCode) {
			return "", err
		}
		obs.ObserveCodeCollision()
		logger.Debug().Str("order_code", code).Int("attempt", attempt).Msg("order_code_collision")
	}
	obs.ObserveCodeExhausted()
	return "", fmt.Errorf("%w after %d attempts", ErrAllocationExhausted, attempts)
}
