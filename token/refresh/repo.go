package refresh

import (
	"context"
	"time"

	"github.com/jrsteele09/ugate-admin/sessions"
	"github.com/jrsteele09/ugate-admin/token"
)

// Store is the part of the credential store the coordinator needs.
// sessions.Store satisfies it.
type Store interface {
	Read(ctx context.Context) (sessions.Record, bool)
	Rotate(ctx context.Context, pair token.Pair, generation uint64) error
	Clear(ctx context.Context) error
	Generation() uint64
	ExpiresAt(ctx context.Context) (time.Time, bool)
}

// Refresher exchanges a refresh token for a new pair. identity.Client
// satisfies it.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (token.Pair, error)
}

// TerminateFunc is called after the coordinator has cleared the store because
// the session cannot continue
type TerminateFunc func(reason error)
