package sandbox

import (
	"context"

	"go.uber.org/zap"

	"github.com/isdmx/coderunner/config"
)

// Service validates requests, builds specs, runs them and maps the outcome.
// It is the single entry point shared by the HTTP, MCP and CLI surfaces.
type Service struct {
	logger        *zap.Logger
	builder       *SpecBuilder
	runner        Runner
	maxCodeLength int
}

// NewService creates a Service
func NewService(logger *zap.Logger, builder *SpecBuilder, runner Runner, cfg *config.Config) *Service {
	return &Service{
		logger:        logger,
		builder:       builder,
		runner:        runner,
		maxCodeLength: cfg.Sandbox.MaxCodeLength,
	}
}

// Execute runs req to completion. Invalid requests are answered without
// touching the backend. The run itself is detached from ctx cancellation.
func (s *Service) Execute(ctx context.Context, req SandboxRequest) Result {
	if err := s.builder.Validate(req, s.maxCodeLength); err != nil {
		s.logger.Info("request rejected", zap.String("language", req.Language), zap.Error(err))
		return MapError(err)
	}

	spec, err := s.builder.Build(req.Language, req.Code)
	if err != nil {
		return MapError(err)
	}

	return MapOutcome(s.runner.Run(context.WithoutCancel(ctx), spec))
}

// Languages returns the accepted language names and aliases
func (s *Service) Languages() []string {
	return s.builder.Languages()
}
