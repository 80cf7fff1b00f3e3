package utils

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Structured log field names. Use these instead of raw strings.
const (
	FieldRequestID   = "request_id"
	FieldCollection  = "collection"
	FieldChild       = "child"
	FieldIdentifiers = "identifiers"
	FieldMissing     = "missing"
	FieldSubset      = "subset"
	FieldMode        = "mode"
	FieldDepth       = "depth"
	FieldCount       = "count"
	FieldRequired    = "required"
	FieldDurationMS  = "duration_ms"
	FieldSQL         = "sql"
	FieldArgs        = "args"
	FieldResidual    = "residual"
	FieldPath        = "path"
	FieldError       = "error"
)

// NewLogger builds a JSON logger writing to stderr at level. verbose
// switches to the human readable development encoder at debug level.
func NewLogger(level string, verbose bool) (*zap.SugaredLogger, error) {
	if verbose {
		core := zapcore.NewCore(
			zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
			zapcore.AddSync(os.Stderr),
			zap.DebugLevel,
		)
		return zap.New(core).Sugar(), nil
	}

	lvl := zap.InfoLevel
	if level != "" {
		parsed, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, err
		}
		lvl = parsed
	}
	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(lvl)
	config.OutputPaths = []string{"stderr"}
	logger, err := config.Build()
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}
