package manager

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// HealthState classifies one probe of a server's health endpoint.
type HealthState string

const (
	HealthOK      HealthState = "ok"
	HealthLoading HealthState = "loading"
	HealthError   HealthState = "error"
	// HealthUnknown means the probe could not reach the server at all.
	HealthUnknown HealthState = "unknown"
)

// HealthConfig tunes the readiness poll after a server is spawned.
type HealthConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Overall      time.Duration
	ProbeTimeout time.Duration
}

// DefaultHealthConfig matches a llama.cpp-sized model load on local disk.
func DefaultHealthConfig() HealthConfig {
	return HealthConfig{
		InitialDelay: 500 * time.Millisecond,
		Multiplier:   1.6,
		MaxDelay:     5 * time.Second,
		Overall:      120 * time.Second,
		ProbeTimeout: 2 * time.Second,
	}
}

type prober struct {
	client *http.Client
}

func newProber() prober {
	return prober{client: &http.Client{}}
}

// healthBody is the document servers are expected to return from their
// health endpoint. Servers that return a bare 2xx are treated as ok.
type healthBody struct {
	Status string `json:"status"`
}

// probe performs a single health check against url.
func (p prober) probe(ctx context.Context, url string, timeout time.Duration) HealthState {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return HealthUnknown
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return HealthUnknown
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return HealthError
	}
	var body healthBody
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&body); err != nil {
		// 2xx with no parseable body still counts as alive.
		return HealthOK
	}
	switch body.Status {
	case "ok", "":
		return HealthOK
	case "loading":
		return HealthLoading
	default:
		return HealthError
	}
}

// waitHealthy polls url until it reports ok, backing off exponentially.
// It returns the number of probes made; on failure the error carries both
// the attempt count and elapsed time.
func (p prober) waitHealthy(ctx context.Context, name, url string, cfg HealthConfig) (int, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = cfg.InitialDelay
	bo.Multiplier = cfg.Multiplier
	bo.MaxInterval = cfg.MaxDelay
	bo.MaxElapsedTime = cfg.Overall
	bo.RandomizationFactor = 0
	bo.Reset()

	start := time.Now()
	attempts := 0
	for {
		attempts++
		if st := p.probe(ctx, url, cfg.ProbeTimeout); st == HealthOK {
			return attempts, nil
		}
		next := bo.NextBackOff()
		if next == backoff.Stop {
			return attempts, ErrHealthTimeout(name, attempts, time.Since(start))
		}
		select {
		case <-time.After(next):
		case <-ctx.Done():
			return attempts, ctx.Err()
		}
	}
}
