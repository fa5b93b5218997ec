// Package health runs the container's liveness supervision: a periodic HTTP
// probe against the served application's health endpoint, classified over a
// rolling window of recent outcomes.
//
// The supervisor is decoupled from the server process — it observes it only
// through the network probe. Probe failures are advisory: they accumulate in
// the window and surface as a state change, never as an error.
package health

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// State is the externally visible classification of the instance.
type State uint8

const (
	StateStarting  State = iota // inside the start-up grace period
	StateHealthy                // failure streak below the threshold
	StateUnhealthy              // threshold consecutive failures outside grace
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateHealthy:
		return "healthy"
	case StateUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// Config is the probe schedule and classification policy.
type Config struct {
	Interval    time.Duration // time between probes
	Timeout     time.Duration // per-probe deadline; exceeding it is a timeout outcome
	StartPeriod time.Duration // grace period during which the state stays starting
	Retries     int           // consecutive failures before unhealthy
}

// DefaultConfig matches the fast probe cadence.
func DefaultConfig() Config {
	return Config{
		Interval:    30 * time.Second,
		Timeout:     5 * time.Second,
		StartPeriod: 40 * time.Second,
		Retries:     3,
	}
}

// Prober issues one liveness probe.
type Prober interface {
	Probe(ctx context.Context) Outcome
}

// HTTPProber probes an HTTP health endpoint. 2xx is success, any other
// response or a connection error is a failure, a missed deadline is a
// timeout.
type HTTPProber struct {
	url    string
	client *http.Client
}

func NewHTTPProber(host string, port int, endpoint string) *HTTPProber {
	return &HTTPProber{
		url:    fmt.Sprintf("http://%s:%d%s", host, port, endpoint),
		client: &http.Client{},
	}
}

func (p *HTTPProber) Probe(ctx context.Context) Outcome {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return OutcomeFailure
	}

	resp, err := p.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return OutcomeTimeout
		}
		return OutcomeFailure
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return OutcomeSuccess
	}
	return OutcomeFailure
}

// Supervisor owns the probe loop and the rolling outcome window. It runs
// concurrently with the supervised process for the container's lifetime and
// owns its goroutine via Start/Stop.
type Supervisor struct {
	prober Prober
	cfg    Config
	logger *slog.Logger

	mu        sync.Mutex
	window    *Window
	state     State
	startedAt time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

func NewSupervisor(prober Prober, cfg Config) *Supervisor {
	if cfg.Retries < 1 {
		cfg.Retries = 1
	}
	return &Supervisor{
		prober: prober,
		cfg:    cfg,
		logger: slog.Default(),
		window: NewWindow(cfg.Retries),
		state:  StateStarting,
	}
}

// Start launches the probe loop in a background goroutine. The grace period
// begins now.
func (s *Supervisor) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	s.mu.Lock()
	s.startedAt = time.Now()
	s.mu.Unlock()

	go func() {
		defer close(s.done)
		s.run(ctx)
	}()

	return nil
}

// Stop cancels the probe loop and waits for it to exit.
func (s *Supervisor) Stop() error {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
	return nil
}

// State returns the current classification.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Supervisor) run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Observe(ctx)
		}
	}
}

// Observe issues one probe and folds its outcome into the window. A probe
// that exceeds the configured timeout counts as a failure outcome for this
// interval; there is no intra-interval retry.
//
// Failures observed inside the grace period are discarded: the streak that
// makes an instance unhealthy is built from post-grace outcomes only, so a
// server still booting when the first probes fire starts with a clean window.
func (s *Supervisor) Observe(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	outcome := s.prober.Probe(probeCtx)
	cancel()

	s.mu.Lock()
	now := time.Now()
	if outcome == OutcomeSuccess || now.Sub(s.startedAt) >= s.cfg.StartPeriod {
		s.window.Push(Record{Time: now, Outcome: outcome})
	}
	prev := s.state
	s.state = s.classify(now)
	state := s.state
	s.mu.Unlock()

	if state != prev {
		s.logger.InfoContext(ctx, "health state changed",
			"from", prev.String(),
			"to", state.String(),
			"outcome", outcome.String())
	}
}

// classify applies the window policy. Callers hold s.mu.
func (s *Supervisor) classify(now time.Time) State {
	if now.Sub(s.startedAt) < s.cfg.StartPeriod {
		// never unhealthy inside the grace period
		return StateStarting
	}
	if s.window.Full() && s.window.FailureStreak() >= s.cfg.Retries {
		return StateUnhealthy
	}
	return StateHealthy
}
