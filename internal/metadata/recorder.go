package metadata

import (
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// MetadataSink receives observational events from pipeline stages.
// Emission is fire-and-forget; sinks never return errors to callers and
// callers never branch on what a sink did.
type MetadataSink interface {
	RecordFetch(event FetchEvent)
	RecordEvent(name EventName, attrs []Attribute)
	RecordError(
		observedAt time.Time,
		packageName string,
		action string,
		cause ErrorCause,
		errorString string,
		attrs []Attribute,
	)
	RecordArtifact(kind string, path string, attrs []Attribute)
}

// RunFinalizer records the terminal stats of a run exactly once.
type RunFinalizer interface {
	RecordFinalRunStats(stats RunStats)
}

// Recorder is the zap-backed MetadataSink. One recorder exists per run;
// worker goroutines share it (zap loggers are safe for concurrent use).
type Recorder struct {
	logger *zap.Logger
	runID  string
}

func NewRecorder(runID string, logger *zap.Logger) Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return Recorder{
		logger: logger.With(zap.String("run_id", runID)),
		runID:  runID,
	}
}

// NewDevelopmentRecorder builds a recorder with a console logger,
// for CLI runs.
func NewDevelopmentRecorder(runID string) Recorder {
	cfg := zap.NewDevelopmentConfig()
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	logger, err := cfg.Build()
	if err != nil {
		logger = zap.NewNop()
	}
	return NewRecorder(runID, logger)
}

func (r *Recorder) RecordFetch(event FetchEvent) {
	r.logger.Info(string(EventFetch),
		zap.String("url", event.URL),
		zap.String("final_url", event.FinalURL),
		zap.Int("status", event.Status),
		zap.Duration("duration", event.Duration),
		zap.String("content_type", event.ContentType),
		zap.Int("bytes", event.Bytes),
		zap.String("mode", event.Mode),
		zap.Int("retry_count", event.RetryCount),
	)
}

func (r *Recorder) RecordEvent(name EventName, attrs []Attribute) {
	r.logger.Info(string(name), attrFields(attrs)...)
}

func (r *Recorder) RecordError(
	observedAt time.Time,
	packageName string,
	action string,
	cause ErrorCause,
	errorString string,
	attrs []Attribute,
) {
	fields := []zap.Field{
		zap.Time("observed_at", observedAt),
		zap.String("package", packageName),
		zap.String("action", action),
		zap.Int("cause", int(cause)),
		zap.String("error", errorString),
	}
	fields = append(fields, attrFields(attrs)...)
	r.logger.Warn("pipeline_error", fields...)
}

func (r *Recorder) RecordArtifact(kind string, path string, attrs []Attribute) {
	fields := []zap.Field{
		zap.String("kind", kind),
		zap.String("path", path),
	}
	fields = append(fields, attrFields(attrs)...)
	r.logger.Info(string(EventArtifactWritten), fields...)
}

func (r *Recorder) RecordFinalRunStats(stats RunStats) {
	r.logger.Info("run_complete",
		zap.String("product_id", stats.ProductID),
		zap.Int("rounds", stats.Rounds),
		zap.Int("pages_fetched", stats.PagesFetched),
		zap.Int("pages_confirmed", stats.PagesConfirmed),
		zap.Int("fields_accepted", stats.FieldsAccepted),
		zap.Int("total_errors", stats.TotalErrors),
		zap.Duration("duration", stats.Duration),
	)
}

func attrFields(attrs []Attribute) []zap.Field {
	fields := make([]zap.Field, 0, len(attrs))
	for _, attr := range attrs {
		fields = append(fields, zap.String(string(attr.Key), attr.Value))
	}
	return fields
}
