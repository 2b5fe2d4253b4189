package manager

import (
	"sync"
	"time"
)

// Image generation has no usable progress signal until the diffusion loop
// starts printing step counters, and the model-load phase before that can
// dominate short jobs. The estimator keeps exponentially weighted averages
// of both phases from past runs and projects wall-clock progress for the
// current one, recalibrating after every successful job.

const (
	estimatorAlpha = 0.3
	// Seeds before the first job completes.
	seedLoadDuration = 10 * time.Second
	seedStepDuration = 500 * time.Millisecond
)

type phaseEstimator struct {
	mu       sync.Mutex
	loadEWMA time.Duration
	stepEWMA time.Duration
}

func newPhaseEstimator() *phaseEstimator {
	return &phaseEstimator{loadEWMA: seedLoadDuration, stepEWMA: seedStepDuration}
}

func ewma(cur, obs time.Duration) time.Duration {
	return cur + time.Duration(estimatorAlpha*float64(obs-cur))
}

// observe feeds the measured phases of a completed job back in.
func (e *phaseEstimator) observe(load time.Duration, steps int, stepping time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if load > 0 {
		e.loadEWMA = ewma(e.loadEWMA, load)
	}
	if steps > 0 && stepping > 0 {
		e.stepEWMA = ewma(e.stepEWMA, stepping/time.Duration(steps))
	}
}

// expect projects the total duration of a job with the given step count.
func (e *phaseEstimator) expect(steps int) time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loadEWMA + time.Duration(steps)*e.stepEWMA
}

// jobProgress tracks one in-flight generation. Step counters parsed from
// the process output take precedence; until they appear, progress is the
// elapsed fraction of the projected duration.
type jobProgress struct {
	mu        sync.Mutex
	est       *phaseEstimator
	started   time.Time
	firstStep time.Time
	step      int
	steps     int
}

func (e *phaseEstimator) startJob(steps int) *jobProgress {
	return &jobProgress{est: e, started: time.Now(), steps: steps}
}

// observeStep records a "step i/n" counter from the process output.
func (p *jobProgress) observeStep(step, steps int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.firstStep.IsZero() {
		p.firstStep = time.Now()
	}
	if step > p.step {
		p.step = step
	}
	if steps > 0 {
		p.steps = steps
	}
}

// fraction reports progress in [0,0.99]; completion is only ever signaled
// by the job itself finishing.
func (p *jobProgress) fraction() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	var f float64
	if p.step > 0 && p.steps > 0 {
		f = float64(p.step) / float64(p.steps)
	} else if expect := p.est.expect(p.steps); expect > 0 {
		f = float64(time.Since(p.started)) / float64(expect)
	}
	if f < 0 {
		f = 0
	}
	if f > 0.99 {
		f = 0.99
	}
	return f
}

// finish recalibrates the estimator from the completed job's phases.
func (p *jobProgress) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.firstStep.IsZero() {
		return
	}
	load := p.firstStep.Sub(p.started)
	stepping := time.Since(p.firstStep)
	p.est.observe(load, p.step, stepping)
}
