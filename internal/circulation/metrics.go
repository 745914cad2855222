// internal/circulation/metrics.go
package circulation

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type metrics struct {
	loansOpened   metric.Int64Counter
	loansReturned metric.Int64Counter
	finesIssued   metric.Int64Counter
	finesSettled  metric.Int64Counter
	anomalies     metric.Int64Counter
}

func newMetrics(meter metric.Meter) (*metrics, error) {
	var (
		m   metrics
		err error
	)
	if m.loansOpened, err = meter.Int64Counter("circulation.loans.opened",
		metric.WithDescription("Loans opened")); err != nil {
		return nil, err
	}
	if m.loansReturned, err = meter.Int64Counter("circulation.loans.returned",
		metric.WithDescription("Loans returned")); err != nil {
		return nil, err
	}
	if m.finesIssued, err = meter.Int64Counter("circulation.fines.issued",
		metric.WithDescription("Fines issued, late returns and manual assignments")); err != nil {
		return nil, err
	}
	if m.finesSettled, err = meter.Int64Counter("circulation.fines.settled",
		metric.WithDescription("Fines paid or revoked")); err != nil {
		return nil, err
	}
	if m.anomalies, err = meter.Int64Counter("circulation.integrity.anomalies",
		metric.WithDescription("Copies found with more than one open loan")); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *metrics) returned(ctx context.Context, late bool) {
	m.loansReturned.Add(ctx, 1, metric.WithAttributes(attribute.Bool("late", late)))
}

func (m *metrics) issued(ctx context.Context, source string) {
	m.finesIssued.Add(ctx, 1, metric.WithAttributes(attribute.String("source", source)))
}

func (m *metrics) settled(ctx context.Context, status string) {
	m.finesSettled.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}
