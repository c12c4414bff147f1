package dashboard

import (
	"context"

	"github.com/google/uuid"
)

// token identifies one in-flight page request. The controller compares
// against it under its mutex before applying any result; stale is set
// only when a newer request superseded this one.
type token struct {
	id     uuid.UUID
	ctx    context.Context
	cancel context.CancelFunc
	stale  bool
}

func newToken(parent context.Context) *token {
	ctx, cancel := context.WithCancel(parent)
	return &token{
		id:     uuid.New(),
		ctx:    ctx,
		cancel: cancel,
	}
}

// supersede cancels the request and marks its result as discardable.
func (t *token) supersede() {
	t.stale = true
	t.cancel()
}

func (t *token) String() string {
	return t.id.String()[:8]
}
