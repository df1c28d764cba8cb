package source

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// ProbeResult is the outcome of one health probe.
type ProbeResult struct {
	Latency time.Duration
	Err     error
}

// Prober checks whether a source is reachable. Implementations must honor
// context cancellation; the registry's health-check contract (never throws)
// is layered on top, so probe errors are reported, not propagated.
type Prober interface {
	Probe(ctx context.Context, src DataSource) ProbeResult
}

// ProberFunc adapts a function to the Prober interface.
type ProberFunc func(ctx context.Context, src DataSource) ProbeResult

// Probe implements Prober.
func (f ProberFunc) Probe(ctx context.Context, src DataSource) ProbeResult {
	return f(ctx, src)
}

// SimulatedProber models probe latency and failures without network I/O.
// It is the default prober; deployments with real endpoints swap in
// HTTPProber without any registry change.
type SimulatedProber struct {
	mu          sync.Mutex
	rng         *rand.Rand
	BaseLatency time.Duration // minimum reported latency
	Jitter      time.Duration // uniform random addition on top of base
	FailureRate float64       // probability in [0,1] that a probe fails
}

// NewSimulatedProber returns a prober with a 10-110ms latency model and no
// failures.
func NewSimulatedProber() *SimulatedProber {
	return &SimulatedProber{
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		BaseLatency: 10 * time.Millisecond,
		Jitter:      100 * time.Millisecond,
	}
}

// NewSeededProber returns a deterministic simulated prober for tests.
func NewSeededProber(seed int64, failureRate float64) *SimulatedProber {
	return &SimulatedProber{
		rng:         rand.New(rand.NewSource(seed)),
		BaseLatency: 10 * time.Millisecond,
		Jitter:      100 * time.Millisecond,
		FailureRate: failureRate,
	}
}

// Probe implements Prober. It performs no I/O and never sleeps; the reported
// latency is synthetic.
func (p *SimulatedProber) Probe(ctx context.Context, src DataSource) ProbeResult {
	if err := ctx.Err(); err != nil {
		return ProbeResult{Err: err}
	}

	p.mu.Lock()
	latency := p.BaseLatency
	if p.Jitter > 0 {
		latency += time.Duration(p.rng.Int63n(int64(p.Jitter)))
	}
	failed := p.FailureRate > 0 && p.rng.Float64() < p.FailureRate
	p.mu.Unlock()

	if failed {
		return ProbeResult{
			Latency: latency,
			Err:     fmt.Errorf("simulated probe failure for %s", src.ID),
		}
	}
	return ProbeResult{Latency: latency}
}

// HTTPProber probes a source by issuing a GET against its endpoint, with
// retryablehttp's backoff absorbing transient connection noise.
type HTTPProber struct {
	client *retryablehttp.Client
}

// NewHTTPProber creates an HTTP prober. Retries are kept low so a dead
// endpoint reports quickly rather than stalling the registration path.
func NewHTTPProber(timeout time.Duration) *HTTPProber {
	client := retryablehttp.NewClient()
	client.RetryMax = 2
	client.RetryWaitMin = 100 * time.Millisecond
	client.RetryWaitMax = time.Second
	client.HTTPClient.Timeout = timeout
	client.Logger = nil
	return &HTTPProber{client: client}
}

// Probe implements Prober.
func (p *HTTPProber) Probe(ctx context.Context, src DataSource) ProbeResult {
	if src.Endpoint == "" {
		return ProbeResult{Err: fmt.Errorf("source %s has no endpoint", src.ID)}
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, "GET", src.Endpoint, nil)
	if err != nil {
		return ProbeResult{Err: err}
	}

	start := time.Now()
	resp, err := p.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		return ProbeResult{Latency: latency, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return ProbeResult{
			Latency: latency,
			Err:     fmt.Errorf("probe %s: unexpected status %d", src.ID, resp.StatusCode),
		}
	}
	return ProbeResult{Latency: latency}
}
