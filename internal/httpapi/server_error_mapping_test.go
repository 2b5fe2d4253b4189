package httpapi

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"inferd/internal/catalog"
	"inferd/internal/manager"
)

func TestStatusForError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"model not found", fmt.Errorf("resolve model: %w", catalog.ErrNotFound), http.StatusNotFound},
		{"unknown server", manager.ErrUnknownServer("bogus"), http.StatusNotFound},
		{"already running", manager.ErrAlreadyRunning("text"), http.StatusConflict},
		{"port in use", manager.ErrPortInUse(8080), http.StatusConflict},
		{"not running", manager.ErrNotRunning("image"), http.StatusConflict},
		{"too busy", manager.ErrTooBusy(), http.StatusTooManyRequests},
		{"insufficient resources", manager.ErrInsufficientResources("memory", 2<<30, 1<<30), http.StatusInsufficientStorage},
		{"health timeout", manager.ErrHealthTimeout("text", 9, 30*time.Second), http.StatusBadGateway},
		{"http error interface", mockHTTPError{msg: "gone", code: http.StatusGone}, http.StatusGone},
		{"wrapped", fmt.Errorf("start image: %w", manager.ErrPortInUse(8081)), http.StatusConflict},
		{"generic", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := statusForError(tc.err); got != tc.want {
			t.Errorf("%s: statusForError = %d, want %d", tc.name, got, tc.want)
		}
	}
}

func TestStartServer_ModelNotFoundMaps404(t *testing.T) {
	svc := &mockService{startErr: fmt.Errorf("resolve model %q: %w", "missing", catalog.ErrNotFound)}
	r := NewMux(svc)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/servers/text/start", bytes.NewBufferString(`{"model":"missing"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestGenerate_TooBusyMaps429AndCountsBackpressure(t *testing.T) {
	before := testutil.ToFloat64(backpressureTotal.WithLabelValues("image_generation"))

	svc := &mockService{genErr: manager.ErrTooBusy()}
	r := NewMux(svc)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/images/generations", bytes.NewBufferString(`{"prompt":"hi"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}

	after := testutil.ToFloat64(backpressureTotal.WithLabelValues("image_generation"))
	if after < before+1 {
		t.Fatalf("backpressure counter did not move: before=%v after=%v", before, after)
	}
}
