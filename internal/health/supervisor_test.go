package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"
)

// scriptedProber returns a fixed sequence of outcomes, repeating the last.
type scriptedProber struct {
	outcomes []Outcome
	next     int
}

func (p *scriptedProber) Probe(ctx context.Context) Outcome {
	o := p.outcomes[p.next]
	if p.next < len(p.outcomes)-1 {
		p.next++
	}
	return o
}

func testConfig() Config {
	return Config{
		Interval:    10 * time.Millisecond,
		Timeout:     5 * time.Millisecond,
		StartPeriod: 0,
		Retries:     3,
	}
}

func TestUnhealthyExactlyAtThreshold(t *testing.T) {
	prober := &scriptedProber{outcomes: []Outcome{OutcomeTimeout}}
	s := NewSupervisor(prober, testConfig())

	ctx := context.Background()

	s.Observe(ctx)
	if got := s.State(); got != StateHealthy {
		t.Errorf("after 1 failure: state = %v, want healthy", got)
	}
	s.Observe(ctx)
	if got := s.State(); got != StateHealthy {
		t.Errorf("after 2 failures: state = %v, want healthy", got)
	}
	s.Observe(ctx)
	if got := s.State(); got != StateUnhealthy {
		t.Errorf("after 3 failures: state = %v, want unhealthy", got)
	}
}

func TestSuccessResetsFailureStreak(t *testing.T) {
	prober := &scriptedProber{outcomes: []Outcome{OutcomeFailure, OutcomeFailure, OutcomeSuccess, OutcomeFailure}}
	s := NewSupervisor(prober, testConfig())

	ctx := context.Background()
	for i := 0; i < 4; i++ {
		s.Observe(ctx)
		if got := s.State(); got == StateUnhealthy {
			t.Fatalf("probe %d: state = unhealthy, streak was broken by a success", i+1)
		}
	}
	if got := s.State(); got != StateHealthy {
		t.Errorf("state = %v, want healthy", got)
	}
}

func TestGracePeriodNeverUnhealthy(t *testing.T) {
	cfg := testConfig()
	cfg.StartPeriod = time.Hour
	prober := &scriptedProber{outcomes: []Outcome{OutcomeFailure}}
	s := NewSupervisor(prober, cfg)
	s.startedAt = time.Now()

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		s.Observe(ctx)
		if got := s.State(); got != StateStarting {
			t.Fatalf("probe %d inside grace: state = %v, want starting", i+1, got)
		}
	}
}

func TestGraceFailuresDoNotCountAfterGrace(t *testing.T) {
	cfg := testConfig()
	cfg.StartPeriod = time.Hour
	prober := &scriptedProber{outcomes: []Outcome{OutcomeFailure}}
	s := NewSupervisor(prober, cfg)
	s.startedAt = time.Now()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		s.Observe(ctx)
	}
	if got := s.State(); got != StateStarting {
		t.Fatalf("state during grace = %v, want starting", got)
	}

	// grace elapses: the streak must start fresh, unhealthy exactly at the
	// third post-grace failure and not before
	s.startedAt = time.Now().Add(-2 * time.Hour)

	s.Observe(ctx)
	if got := s.State(); got == StateUnhealthy {
		t.Fatal("unhealthy after one post-grace failure")
	}
	s.Observe(ctx)
	if got := s.State(); got == StateUnhealthy {
		t.Fatal("unhealthy after two post-grace failures")
	}
	s.Observe(ctx)
	if got := s.State(); got != StateUnhealthy {
		t.Errorf("state after three post-grace failures = %v, want unhealthy", got)
	}
}

func TestHealthyAfterGraceOnSuccess(t *testing.T) {
	cfg := testConfig()
	cfg.StartPeriod = 40 * time.Second
	prober := &scriptedProber{outcomes: []Outcome{OutcomeSuccess}}
	s := NewSupervisor(prober, cfg)
	s.startedAt = time.Now().Add(-time.Minute) // grace already elapsed

	s.Observe(context.Background())
	if got := s.State(); got != StateHealthy {
		t.Errorf("state = %v, want healthy", got)
	}
}

func TestHTTPProberOutcomes(t *testing.T) {
	var status int
	var delay time.Duration
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(delay)
		w.WriteHeader(status)
	}))
	defer server.Close()

	u, err := url.Parse(server.URL)
	if err != nil {
		t.Fatal(err)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		t.Fatal(err)
	}
	prober := NewHTTPProber(u.Hostname(), port, "/api/health")

	probe := func(timeout time.Duration) Outcome {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return prober.Probe(ctx)
	}

	status, delay = http.StatusOK, 0
	if got := probe(time.Second); got != OutcomeSuccess {
		t.Errorf("200 response: outcome = %v, want success", got)
	}

	status = http.StatusServiceUnavailable
	if got := probe(time.Second); got != OutcomeFailure {
		t.Errorf("503 response: outcome = %v, want failure", got)
	}

	status, delay = http.StatusOK, 200*time.Millisecond
	if got := probe(20 * time.Millisecond); got != OutcomeTimeout {
		t.Errorf("slow response: outcome = %v, want timeout", got)
	}
}

func TestHTTPProberConnectionRefused(t *testing.T) {
	// reserve a port and close it so nothing is listening
	server := httptest.NewServer(http.NotFoundHandler())
	u, _ := url.Parse(server.URL)
	port, _ := strconv.Atoi(u.Port())
	server.Close()

	prober := NewHTTPProber(u.Hostname(), port, "/api/health")
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if got := prober.Probe(ctx); got != OutcomeFailure {
		t.Errorf("refused connection: outcome = %v, want failure", got)
	}
}

func TestSupervisorLifecycle(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	u, _ := url.Parse(server.URL)
	port, _ := strconv.Atoi(u.Port())

	cfg := testConfig()
	cfg.Timeout = 500 * time.Millisecond
	s := NewSupervisor(NewHTTPProber(u.Hostname(), port, "/api/health"), cfg)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for s.State() != StateHealthy && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := s.State(); got != StateHealthy {
		t.Errorf("state = %v, want healthy", got)
	}

	if err := s.Stop(); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
}
