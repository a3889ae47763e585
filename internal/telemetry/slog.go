package telemetry

import (
	"log/slog"

	slogmulti "github.com/samber/slog-multi"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
)

// NewSlogHandler returns a handler that writes to next and also emits every
// record to the global OTel logger provider under scope, with its source
// location. Install it after [Setup]; without telemetry the OTel side is a
// no-op. Level filtering of next is unaffected.
func NewSlogHandler(next slog.Handler, scope string) slog.Handler {
	return newSlogHandler(next, scope, global.GetLoggerProvider())
}

func newSlogHandler(next slog.Handler, scope string, provider otellog.LoggerProvider) slog.Handler {
	return slogmulti.Fanout(
		next,
		otelslog.NewHandler(scope,
			otelslog.WithLoggerProvider(provider),
			otelslog.WithSource(true),
		),
	)
}
