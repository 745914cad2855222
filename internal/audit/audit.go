// internal/audit/audit.go
package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Querier runs a single-value SQL query.
type Querier interface {
	QueryFloat(ctx context.Context, query string) (float64, error)
}

// Check is one steady-state property of the ledger, measured by a query.
type Check struct {
	Name        string
	Description string
	Query       func(context.Context) (float64, error)
	Threshold   Threshold
}

type Threshold struct {
	Operator string // >, <, >=, <=, ==
	Value    float64
}

// Result is the outcome of one check.
type Result struct {
	Check    string  `json:"check"`
	Passed   bool    `json:"passed"`
	Actual   float64 `json:"actual"`
	Operator string  `json:"operator"`
	Expected float64 `json:"expected"`
	Error    string  `json:"error,omitempty"`
}

// Report captures one audit run.
type Report struct {
	StartTime time.Time     `json:"start_time"`
	Duration  time.Duration `json:"duration"`
	Healthy   bool          `json:"healthy"`
	Results   []Result      `json:"results"`
}

// Violations returns the failed results.
func (r Report) Violations() []Result {
	var out []Result
	for _, res := range r.Results {
		if !res.Passed {
			out = append(out, res)
		}
	}
	return out
}

// Auditor evaluates registered checks against the store.
type Auditor struct {
	tracer trace.Tracer
	logger *slog.Logger
	checks []Check
	mu     sync.Mutex
}

func NewAuditor(logger *slog.Logger) *Auditor {
	return &Auditor{
		tracer: otel.Tracer("libraledger/audit"),
		logger: logger,
	}
}

// Register adds checks to the suite.
func (a *Auditor) Register(checks ...Check) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.checks = append(a.checks, checks...)
}

// Checks returns the registered checks.
func (a *Auditor) Checks() []Check {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Check(nil), a.checks...)
}

// Run evaluates every check once. A failing query counts as a violation.
func (a *Auditor) Run(ctx context.Context) Report {
	ctx, span := a.tracer.Start(ctx, "audit.run")
	defer span.End()

	report := Report{StartTime: time.Now().UTC(), Healthy: true}
	for _, check := range a.Checks() {
		res := Result{
			Check:    check.Name,
			Operator: check.Threshold.Operator,
			Expected: check.Threshold.Value,
		}

		value, err := check.Query(ctx)
		switch {
		case err != nil:
			res.Actual = -1
			res.Error = err.Error()
			span.RecordError(err)
		default:
			res.Actual = value
			res.Passed = evaluateThreshold(value, check.Threshold)
		}

		if !res.Passed {
			report.Healthy = false
			a.logger.ErrorContext(ctx, "audit check failed",
				"check", check.Name,
				"actual", res.Actual,
				"expected", check.Threshold.Operator+" "+formatFloat(check.Threshold.Value),
				"error", res.Error,
			)
		}
		report.Results = append(report.Results, res)
	}
	report.Duration = time.Since(report.StartTime)

	span.SetAttributes(
		attribute.Bool("audit.healthy", report.Healthy),
		attribute.Int("audit.violations", len(report.Violations())),
	)
	return report
}

// Watch runs the suite every interval until ctx is done, handing each
// report to fn.
func (a *Auditor) Watch(ctx context.Context, interval time.Duration, fn func(Report)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	fn(a.Run(ctx))
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(a.Run(ctx))
		}
	}
}

func evaluateThreshold(value float64, threshold Threshold) bool {
	switch threshold.Operator {
	case ">":
		return value > threshold.Value
	case "<":
		return value < threshold.Value
	case ">=":
		return value >= threshold.Value
	case "<=":
		return value <= threshold.Value
	case "==":
		return value == threshold.Value
	default:
		return false
	}
}
