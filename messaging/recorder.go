package messaging

import (
	"context"
	"sync"

	"github.com/opd-ai/btchat/store"
)

// recorder gates store appends so that none start once shutdown has begun.
// Appends from both workers hold the read lock; seal takes the write lock,
// so it waits for an in-flight append and blocks every later one.
type recorder struct {
	store store.Store

	mu     sync.RWMutex
	sealed bool
}

func newRecorder(s store.Store) *recorder {
	return &recorder{store: s}
}

// record appends one message. ok is false when the recorder was already
// sealed and no append was attempted.
func (r *recorder) record(ctx context.Context, direction store.Direction, payload string) (msg store.Message, ok bool, err error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.sealed {
		return store.Message{}, false, nil
	}
	msg, err = r.store.Append(ctx, direction, payload)
	return msg, true, err
}

func (r *recorder) seal() {
	r.mu.Lock()
	r.sealed = true
	r.mu.Unlock()
}
