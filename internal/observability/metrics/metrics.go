package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments for the signup saga
// and the reconciliation sweep.
type Metrics struct {
	signupAttempts       metric.Int64Counter
	signupRejections     metric.Int64Counter
	reservationConflicts metric.Int64Counter
	needsReconciliation  metric.Int64Counter
	sweepRepairs         metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "dispatchboard"
	}
	meter := provider.Meter(name)

	signupAttempts, err := meter.Int64Counter("dispatchboard_signup_attempts_total")
	if err != nil {
		return nil, err
	}
	signupRejections, err := meter.Int64Counter("dispatchboard_signup_rejections_total")
	if err != nil {
		return nil, err
	}
	reservationConflicts, err := meter.Int64Counter("dispatchboard_reservation_conflicts_total")
	if err != nil {
		return nil, err
	}
	needsReconciliation, err := meter.Int64Counter("dispatchboard_needs_reconciliation_total")
	if err != nil {
		return nil, err
	}
	sweepRepairs, err := meter.Int64Counter("dispatchboard_sweep_repairs_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		signupAttempts:       signupAttempts,
		signupRejections:     signupRejections,
		reservationConflicts: reservationConflicts,
		needsReconciliation:  needsReconciliation,
		sweepRepairs:         sweepRepairs,
	}, nil
}

// NewNop returns metrics backed by a noop provider, for tests.
func NewNop() *Metrics {
	m, _ := New(Config{ServiceName: "test"}, noop.NewMeterProvider())
	return m
}

func (m *Metrics) IncSignupAttempt(ctx context.Context, mode string) {
	if m == nil || m.signupAttempts == nil {
		return
	}
	m.signupAttempts.Add(ctx, 1, metric.WithAttributes(attribute.String("mode", mode)))
}

func (m *Metrics) IncSignupRejected(ctx context.Context, reason string) {
	if m == nil || m.signupRejections == nil {
		return
	}
	m.signupRejections.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (m *Metrics) IncReservationConflict(ctx context.Context) {
	if m == nil || m.reservationConflicts == nil {
		return
	}
	m.reservationConflicts.Add(ctx, 1)
}

func (m *Metrics) IncNeedsReconciliation(ctx context.Context, mode string) {
	if m == nil || m.needsReconciliation == nil {
		return
	}
	m.needsReconciliation.Add(ctx, 1, metric.WithAttributes(attribute.String("mode", mode)))
}

func (m *Metrics) IncSweepRepair(ctx context.Context, kind string) {
	if m == nil || m.sweepRepairs == nil {
		return
	}
	m.sweepRepairs.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	switch strings.ToLower(strings.TrimSpace(protocol)) {
	case "", "grpc":
		return otlpmetricgrpc.New(context.Background(),
			otlpmetricgrpc.WithEndpoint(endpoint),
			otlpmetricgrpc.WithInsecure(),
		)
	case "http", "http/protobuf":
		return otlpmetrichttp.New(context.Background(),
			otlpmetrichttp.WithEndpoint(endpoint),
			otlpmetrichttp.WithInsecure(),
		)
	default:
		return nil, fmt.Errorf("unsupported otlp protocol %q", protocol)
	}
}
