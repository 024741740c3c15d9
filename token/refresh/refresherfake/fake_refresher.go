package refresherfake

import (
	"context"
	"sync"

	"github.com/jrsteele09/ugate-admin/token"
	"github.com/jrsteele09/ugate-admin/token/refresh"
)

var _ refresh.Refresher = (*FakeRefresher)(nil)

// FakeRefresher answers refreshes from memory. When a gate is installed each
// call blocks until the gate is released.
type FakeRefresher struct {
	lock     sync.Mutex
	pair     token.Pair
	err      error
	received []string
	gate     chan struct{}
	started  chan struct{}
}

// NewFakeRefresher returns a refresher that answers with pair
func NewFakeRefresher(pair token.Pair) *FakeRefresher {
	return &FakeRefresher{pair: pair, started: make(chan struct{}, 16)}
}

// Respond changes the answer for subsequent calls
func (f *FakeRefresher) Respond(pair token.Pair, err error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.pair, f.err = pair, err
}

// Hold makes calls block until Release
func (f *FakeRefresher) Hold() {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.gate = make(chan struct{})
}

// Release unblocks held calls
func (f *FakeRefresher) Release() {
	f.lock.Lock()
	defer f.lock.Unlock()
	if f.gate != nil {
		close(f.gate)
		f.gate = nil
	}
}

// Started signals once per call, as soon as the call begins
func (f *FakeRefresher) Started() <-chan struct{} {
	return f.started
}

// Calls returns how many refreshes were requested
func (f *FakeRefresher) Calls() int {
	f.lock.Lock()
	defer f.lock.Unlock()
	return len(f.received)
}

// Received returns the refresh tokens presented, in order
func (f *FakeRefresher) Received() []string {
	f.lock.Lock()
	defer f.lock.Unlock()
	return append([]string(nil), f.received...)
}

// Refresh implements refresh.Refresher
func (f *FakeRefresher) Refresh(ctx context.Context, refreshToken string) (token.Pair, error) {
	f.lock.Lock()
	f.received = append(f.received, refreshToken)
	gate := f.gate
	f.lock.Unlock()

	select {
	case f.started <- struct{}{}:
	default:
	}

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return token.Pair{}, ctx.Err()
		}
	}

	f.lock.Lock()
	defer f.lock.Unlock()
	return f.pair, f.err
}
