package host

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// ProgressTracker hands out cancellable progress tokens and resolves
// editor-initiated cancellations back to the running operation.
type ProgressTracker struct {
	mu     sync.Mutex
	active map[string]context.CancelFunc
}

func NewProgressTracker() *ProgressTracker {
	return &ProgressTracker{active: map[string]context.CancelFunc{}}
}

// Begin derives a cancellable context for one progress scope and returns
// its token. The caller must call the returned end func when the scope
// closes.
func (t *ProgressTracker) Begin(parent context.Context) (token string, ctx context.Context, end func()) {
	ctx, cancel := context.WithCancel(parent)
	token = uuid.NewString()

	t.mu.Lock()
	t.active[token] = cancel
	t.mu.Unlock()

	return token, ctx, func() {
		t.mu.Lock()
		delete(t.active, token)
		t.mu.Unlock()
		cancel()
	}
}

// Cancel cancels the scope identified by token. Unknown tokens (already
// settled scopes) are ignored.
func (t *ProgressTracker) Cancel(token string) bool {
	t.mu.Lock()
	cancel, ok := t.active[token]
	t.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}
