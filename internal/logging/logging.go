// Package logging provides the structured, per-subsystem loggers shared
// across specpipe. It wraps go.uber.org/zap the way cmd/nerd/main.go
// configured zap for the CLI: production JSON encoding by default, console
// encoding with debug level when verbose output is requested.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category names one of the core subsystems. Receipts and log lines tag
// every entry with its category so a run can be filtered by component.
type Category string

const (
	CategoryOrchestrator Category = "orchestrator"
	CategoryPacket       Category = "packet"
	CategorySelector     Category = "selector"
	CategoryCanonical    Category = "canonical"
	CategoryRedact       Category = "redact"
	CategorySandbox      Category = "sandbox"
	CategoryLock         Category = "lock"
	CategoryReceipt      Category = "receipt"
	CategoryLLMBackend   Category = "llmbackend"
	CategoryFixup        Category = "fixup"
	CategoryConfig       Category = "config"
)

// Options controls how the root logger is constructed.
type Options struct {
	Verbose bool
	JSON    bool
}

// New builds the root *zap.Logger for a run. Non-JSON, non-verbose output
// uses a console encoder suited to interactive terminals; --json forces
// structured JSON regardless of verbosity, matching the CLI's --json flag.
func New(opts Options) (*zap.Logger, error) {
	var cfg zap.Config
	if opts.JSON {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	if opts.Verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	} else {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}
	return cfg.Build()
}

// For returns a child logger tagged with the given subsystem category.
func For(root *zap.Logger, cat Category) *zap.SugaredLogger {
	return root.With(zap.String("category", string(cat))).Sugar()
}

// Noop returns a logger that discards everything, for tests and library
// callers that have not opted into logging.
func Noop() *zap.Logger {
	return zap.NewNop()
}
