package httpapi

import (
	"context"
	"net/http"
)

// baseCtx is a process-level context canceled on daemon shutdown. Defaults
// to Background if not set.
var baseCtx = context.Background()

// SetBaseContext sets the process-level base context used by handlers, so
// shutdown cancels long-running work even when clients stay connected.
func SetBaseContext(ctx context.Context) {
	if ctx == nil {
		baseCtx = context.Background()
		return
	}
	baseCtx = ctx
}

// requestContext derives the context for a long-running handler: done when
// either the request ends or the daemon shuts down. The cancel func must be
// called when the handler returns.
func requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	return joinContexts(baseCtx, r.Context())
}

// joinContexts returns a context that is canceled when either a or b is done.
func joinContexts(a, b context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-a.Done():
			cancel()
		case <-b.Done():
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
