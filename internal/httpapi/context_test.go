package httpapi

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"
)

func TestJoinContexts_CancelsWhenEitherDone(t *testing.T) {
	a, ac := context.WithCancel(context.Background())
	b, bc := context.WithCancel(context.Background())
	defer bc()
	j, cancelJ := joinContexts(a, b)
	defer cancelJ()
	ac()
	select {
	case <-j.Done():
	case <-time.After(500 * time.Millisecond):
		t.Fatal("joined context did not cancel when first parent canceled")
	}

	a2, ac2 := context.WithCancel(context.Background())
	defer ac2()
	b2, bc2 := context.WithCancel(context.Background())
	j2, cancelJ2 := joinContexts(a2, b2)
	defer cancelJ2()
	bc2()
	select {
	case <-j2.Done():
	case <-time.After(500 * time.Millisecond):
		t.Fatal("joined context did not cancel when second parent canceled")
	}
}

func TestRequestContext_CanceledByBaseContext(t *testing.T) {
	base, cancelBase := context.WithCancel(context.Background())
	SetBaseContext(base)
	defer SetBaseContext(nil)

	r := httptest.NewRequest("GET", "/v1/status", nil)
	ctx, cancel := requestContext(r)
	defer cancel()

	cancelBase()
	select {
	case <-ctx.Done():
	case <-time.After(500 * time.Millisecond):
		t.Fatal("request context did not cancel on shutdown")
	}
}

func TestSetBaseContext_NilResetsToBackground(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	SetBaseContext(ctx)
	cancel()
	// nolint:staticcheck // SA1012: intentionally passing nil to verify fallback behavior
	SetBaseContext(nil)
	if baseCtx.Err() != nil {
		t.Fatal("expected base context reset to Background")
	}
}
