package services

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// compensationTimeout bounds the rollback pass. Compensation runs after the
// commit has already failed, often because the request context is done, so
// it gets its own deadline instead.
const compensationTimeout = 30 * time.Second

// saga collects compensating actions for every mutation a commit performs:
// entity inserts, local invitation rows, provider invitations. When a
// critical error escapes the commit, Compensate undoes the registered steps
// in reverse order, best effort. Per-row provider failures never reach the
// saga; only unexpected errors do.
type saga struct {
	logger *zap.Logger
	steps  []sagaStep
}

type sagaStep struct {
	name       string
	compensate func(ctx context.Context) error
}

func newSaga(logger *zap.Logger) *saga {
	return &saga{logger: logger}
}

// register adds one compensating action. Call immediately after the forward
// action succeeds so every applied mutation participates in rollback.
func (s *saga) register(name string, compensate func(ctx context.Context) error) {
	s.steps = append(s.steps, sagaStep{name: name, compensate: compensate})
}

// compensate runs all registered actions newest-first. Secondary failures
// are logged, never raised; the primary error must keep propagating.
// Returns how many steps failed to undo. The caller's cancellation is
// dropped so a client disconnect cannot also kill the rollback; context
// values (the tenant scope in particular) are kept.
func (s *saga) compensate(ctx context.Context) int {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()

	failures := 0
	for i := len(s.steps) - 1; i >= 0; i-- {
		step := s.steps[i]
		if err := step.compensate(ctx); err != nil {
			failures++
			s.logger.Warn("Compensation step failed",
				zap.String("step", step.name),
				zap.Error(err))
		}
	}
	if len(s.steps) > 0 {
		s.logger.Info("Compensation finished",
			zap.Int("steps", len(s.steps)),
			zap.Int("failures", failures))
	}
	return failures
}
