// Package metrics exposes the bot's operational counters through an OTel
// metric provider backed by the Prometheus exporter, so the same
// instrumentation surface works whether scraped directly or pushed onward
// via an OTel collector.
package metrics

import (
	"context"

	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Recorder is the narrow metrics surface the rest of the bot depends on.
type Recorder struct {
	gatewayRequests metric.Int64Counter
	editOutcomes    metric.Int64Counter
	runnerCycles    metric.Int64Counter
	evalDuration    metric.Float64Histogram
}

// Provider bundles the OTel SDK meter provider with its Prometheus
// exporter; Shutdown should be called once at process exit.
type Provider struct {
	mp *sdkmetric.MeterProvider
}

// NewProvider builds an SDK meter provider reading from a Prometheus
// exporter; the caller is responsible for serving the exporter's handler
// (via promhttp, wired in cmd/plbot) on a metrics endpoint.
func NewProvider() (*Provider, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, err
	}
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	return &Provider{mp: mp}, nil
}

// Shutdown flushes and stops the underlying meter provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	return p.mp.Shutdown(ctx)
}

// NewRecorder instantiates every instrument the bot records against, from
// the Provider's meter.
func (p *Provider) NewRecorder() (*Recorder, error) {
	meter := p.mp.Meter("pagelist-bot")

	gatewayRequests, err := meter.Int64Counter(
		"gateway_requests_total",
		metric.WithDescription("MediaWiki API requests issued by the gateway"),
	)
	if err != nil {
		return nil, err
	}
	editOutcomes, err := meter.Int64Counter(
		"edit_outcomes_total",
		metric.WithDescription("Page writer edit outcomes, by result"),
	)
	if err != nil {
		return nil, err
	}
	runnerCycles, err := meter.Int64Counter(
		"runner_cycles_total",
		metric.WithDescription("Task runner cycles completed, by outcome"),
	)
	if err != nil {
		return nil, err
	}
	evalDuration, err := meter.Float64Histogram(
		"evaluator_duration_seconds",
		metric.WithDescription("Time spent evaluating a compiled query"),
	)
	if err != nil {
		return nil, err
	}

	return &Recorder{
		gatewayRequests: gatewayRequests,
		editOutcomes:    editOutcomes,
		runnerCycles:    runnerCycles,
		evalDuration:    evalDuration,
	}, nil
}

// RecordGatewayRequest increments the gateway request counter for one API
// call, tagged with its operation name and outcome.
func (r *Recorder) RecordGatewayRequest(ctx context.Context, op string, ok bool) {
	r.gatewayRequests.Add(ctx, 1, metric.WithAttributes(
		attrString("op", op),
		attrBool("ok", ok),
	))
}

// RecordEditOutcome increments the edit outcome counter.
func (r *Recorder) RecordEditOutcome(ctx context.Context, outcome string) {
	r.editOutcomes.Add(ctx, 1, metric.WithAttributes(attrString("outcome", outcome)))
}

// RecordRunnerCycle increments the runner cycle counter for a task.
func (r *Recorder) RecordRunnerCycle(ctx context.Context, task, outcome string) {
	r.runnerCycles.Add(ctx, 1, metric.WithAttributes(
		attrString("task", task),
		attrString("outcome", outcome),
	))
}

// RecordEvalDuration records how long one evaluator.Evaluate call took.
func (r *Recorder) RecordEvalDuration(ctx context.Context, seconds float64) {
	r.evalDuration.Record(ctx, seconds)
}
