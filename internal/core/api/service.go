// Package api provides the gRPC FormulaService implementation.
package api

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/solatis/scorekeeper/internal/core/config"
	"github.com/solatis/scorekeeper/internal/core/db"
	"github.com/solatis/scorekeeper/internal/expr"
	"github.com/solatis/scorekeeper/internal/functions"
	"github.com/solatis/scorekeeper/internal/rules"
)

// RunRecorder persists evaluation runs. *db.RunStore implements it.
type RunRecorder interface {
	RecordRun(ctx context.Context, run *db.Run) error
}

// Pipeline is a compiled engine together with the checksum of its source.
type Pipeline struct {
	Engine   *rules.Engine
	Checksum string
}

// FormulaService implements FormulaServiceServer.
// Thin orchestration layer delegating to the rules engine and the run store.
type FormulaService struct {
	pipeline  atomic.Pointer[Pipeline]
	functions expr.Dispatcher
	recorder  RunRecorder
	cfg       config.ServerConfig
	logger    zerolog.Logger
}

// Option configures a FormulaService.
type Option func(*FormulaService)

// WithRecorder records every evaluation through r.
func WithRecorder(r RunRecorder) Option {
	return func(s *FormulaService) { s.recorder = r }
}

// WithFunctions sets the function registry used by Validate.
// It should match the one the pipeline engine was built with.
func WithFunctions(d expr.Dispatcher) Option {
	return func(s *FormulaService) { s.functions = d }
}

// WithLogger sets the service logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *FormulaService) { s.logger = l }
}

// NewFormulaService creates a service evaluating against p.
func NewFormulaService(p *Pipeline, cfg config.ServerConfig, opts ...Option) (*FormulaService, error) {
	if p == nil || p.Engine == nil {
		return nil, fmt.Errorf("pipeline cannot be nil")
	}
	if cfg.MaxBatchSize <= 0 {
		return nil, fmt.Errorf("max batch size must be positive, got %d", cfg.MaxBatchSize)
	}

	s := &FormulaService{
		functions: functions.Builtin(),
		cfg:       cfg,
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.pipeline.Store(p)
	return s, nil
}

// Swap atomically replaces the active pipeline. In-flight evaluations finish
// against the pipeline they started with.
func (s *FormulaService) Swap(p *Pipeline) {
	old := s.pipeline.Swap(p)
	s.logger.Info().Str("from", old.Checksum).Str("to", p.Checksum).Msg("formula pipeline replaced")
}

// Pipeline returns the active pipeline.
func (s *FormulaService) Pipeline() *Pipeline {
	return s.pipeline.Load()
}
