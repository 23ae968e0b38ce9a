package kb

import (
	"context"
	"fmt"
	"time"

	"hokhau-ai/pkg/config"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler drives the periodic reload and auto-learning jobs. The two jobs
// run on independent intervals and a panic in either one is recovered and
// logged instead of taking the process down.
type Scheduler struct {
	cron       *cron.Cron
	reconciler *Reconciler
	learner    *Learner
	cfg        *config.LearningConfig
	logger     *zap.Logger
}

func NewScheduler(
	reconciler *Reconciler,
	learner *Learner,
	cfg *config.LearningConfig,
	logger *zap.Logger,
) *Scheduler {
	cl := cronLogger{sugar: logger.Sugar()}
	c := cron.New(cron.WithChain(
		cron.Recover(cl),
	))
	return &Scheduler{
		cron:       c,
		reconciler: reconciler,
		learner:    learner,
		cfg:        cfg,
		logger:     logger,
	}
}

// Start registers the enabled jobs and launches the cron loop.
func (s *Scheduler) Start() error {
	if s.cfg.AutoReloadEnabled {
		spec := fmt.Sprintf("@every %s", s.cfg.ReloadInterval)
		if _, err := s.cron.AddFunc(spec, s.runReload); err != nil {
			return fmt.Errorf("failed to schedule reload job: %w", err)
		}
		s.logger.Info("Scheduled knowledge store reload", zap.Duration("interval", s.cfg.ReloadInterval))
	}

	if s.cfg.AutoLearnEnabled {
		spec := fmt.Sprintf("@every %s", s.cfg.LearnInterval)
		if _, err := s.cron.AddFunc(spec, s.runLearn); err != nil {
			return fmt.Errorf("failed to schedule auto-learning job: %w", err)
		}
		s.logger.Info("Scheduled auto-learning", zap.Duration("interval", s.cfg.LearnInterval))
	}

	s.cron.Start()
	return nil
}

// Stop halts the cron loop and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Scheduler stopped")
}

func (s *Scheduler) runReload() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	result := s.reconciler.Reload(ctx)
	if !result.Success {
		s.logger.Error("Scheduled reload failed", zap.String("error", result.Error))
	}
}

func (s *Scheduler) runLearn() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	result := s.learner.LearnFromConversations(ctx)
	if !result.Success {
		s.logger.Error("Scheduled auto-learning failed", zap.String("error", result.Error))
	}
}

// cronLogger adapts zap to the cron logging interface.
type cronLogger struct {
	sugar *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.sugar.Infow(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw(msg, append(keysAndValues, "error", err)...)
}
