// Package log implements a dry-run sink that only emits structured log lines.
package log

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/cms-detector/internal/scanner"
)

// Sink logs each result.
type Sink struct {
	logger *zap.Logger
}

// New wires a zap logger to the sink interface.
func New(logger *zap.Logger) *Sink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sink{logger: logger}
}

// Accept logs the result.
func (s *Sink) Accept(_ context.Context, result scanner.ClassificationResult) error {
	s.logger.Info("result",
		zap.String("organization", result.Organization),
		zap.String("url", result.URL),
		zap.String("platform", result.Platform.String()),
		zap.String("reason", result.Reason),
	)
	return nil
}

// Close flushes the logger.
func (s *Sink) Close(context.Context) error {
	_ = s.logger.Sync() //nolint:errcheck // stdout sync fails on some terminals
	return nil
}
