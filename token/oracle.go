package token

import (
	"context"
	"errors"
	"time"
)

// DefaultExpiryMargin is how long before the recorded expiry a token is
// already treated as expired
const DefaultExpiryMargin = time.Minute

// NowTimeFunc is a function that returns the current time
type NowTimeFunc func() time.Time

// ExpirySource reports when the stored access token expires. ok is false when
// no session is stored.
type ExpirySource interface {
	ExpiresAt(ctx context.Context) (expiresAt time.Time, ok bool)
}

// IsExpired reports whether a token expiring at expiresAt must be refreshed
// at now. A missing record is always expired.
func IsExpired(expiresAt time.Time, ok bool, now time.Time, margin time.Duration) bool {
	if !ok {
		return true
	}
	if margin < 0 {
		margin = 0
	}
	return !now.Before(expiresAt.Add(-margin))
}

// Oracle answers "is the stored access token (about to be) expired"
type Oracle struct {
	source ExpirySource
	margin time.Duration
	now    NowTimeFunc
}

// OracleOption configures an Oracle
type OracleOption func(*Oracle)

// WithMargin overrides the safety margin
func WithMargin(margin time.Duration) OracleOption {
	return func(o *Oracle) {
		o.margin = margin
	}
}

// WithNowTime overrides the clock
func WithNowTime(now NowTimeFunc) OracleOption {
	return func(o *Oracle) {
		if now != nil {
			o.now = now
		}
	}
}

// NewOracle creates an Oracle over source
func NewOracle(source ExpirySource, opts ...OracleOption) (*Oracle, error) {
	if source == nil {
		return nil, errors.New("[NewOracle] expiry source is required")
	}
	o := &Oracle{
		source: source,
		margin: DefaultExpiryMargin,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// IsExpired reads the store and applies the margin
func (o *Oracle) IsExpired(ctx context.Context) bool {
	expiresAt, ok := o.source.ExpiresAt(ctx)
	return IsExpired(expiresAt, ok, o.now(), o.margin)
}

// Margin returns the configured safety margin
func (o *Oracle) Margin() time.Duration {
	return o.margin
}
