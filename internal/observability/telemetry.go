// Package observability настраивает трассировку OpenTelemetry.
package observability

import (
	"context"
	"time"

	"github.com/annel0/isoworld/internal/config"
	"github.com/annel0/isoworld/internal/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

// ShutdownFunc завершает экспорт трасс
type ShutdownFunc func(context.Context) error

func noopShutdown(context.Context) error { return nil }

// InitTelemetry настраивает OTLP экспортер и устанавливает глобальный TracerProvider.
// Если телеметрия выключена, глобальный провайдер остаётся no-op.
// Возвращает функцию shutdown, которую нужно вызвать при завершении приложения.
func InitTelemetry(ctx context.Context, cfg config.TelemetryConfig, world config.WorldConfig) (ShutdownFunc, error) {
	log := logging.GetComponentLogger("telemetry")
	if !cfg.Enabled {
		log.Debug("OpenTelemetry выключен")
		return noopShutdown, nil
	}

	// OTLP HTTP экспортер (по умолчанию localhost:4318, OTEL_EXPORTER_OTLP_ENDPOINT)
	exp, err := otlptracehttp.New(ctx)
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceNamespace("isoworld"),
		),
		resource.WithAttributes(worldAttributes(world)...),
	)
	if err != nil {
		return nil, err
	}

	tp := trace.NewTracerProvider(
		trace.WithBatcher(exp),
		trace.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	log.Info("📡 OpenTelemetry инициализирован (OTLP → 4318, service=%s)", cfg.ServiceName)

	shutdown := func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return tp.Shutdown(ctx)
	}
	return shutdown, nil
}

// worldAttributes описывает размеры карты в ресурсе трасс
func worldAttributes(w config.WorldConfig) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int("isoworld.world.width", w.Width),
		attribute.Int("isoworld.world.height", w.Height),
		attribute.Int("isoworld.world.layers", w.Layers),
		attribute.Int("isoworld.world.layer_height", w.LayerHeight),
	}
}
