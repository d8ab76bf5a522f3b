// Package provider defines the uniform capability contract every external
// data source implements, and the registry the aggregator resolves adapters
// through.
package provider

import (
	"context"
	"errors"
	"fmt"

	"cryptofolio/internal/models"
	"cryptofolio/internal/names"
	"cryptofolio/internal/pricing"
)

// Provider is one configured origin: an exchange account or a wallet address.
// Implementations translate provider-native responses into canonical records.
type Provider interface {
	Origin() string
	Assets(ctx context.Context) ([]models.Asset, error)
	Activities(ctx context.Context) ([]models.Activity, error)
}

// Error wraps any adapter-level failure with the origin it came from.
type Error struct {
	Origin string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("provider %s: %v", e.Origin, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// WrapError attaches origin provenance to err, once.
func WrapError(origin string, err error) error {
	if err == nil {
		return nil
	}
	var pe *Error
	if errors.As(err, &pe) {
		return err
	}
	return &Error{Origin: origin, Err: err}
}

// Deps carries the shared collaborators adapters are constructed with.
type Deps struct {
	Prices       *pricing.Client
	Names        *names.Resolver
	BaseCurrency string
}

// DisplayName resolves a ticker to a human-readable name, or the configured
// fallback. Never fails.
func (d Deps) DisplayName(ticker string) string {
	if d.Names == nil {
		return ""
	}
	return d.Names.Name(ticker)
}
