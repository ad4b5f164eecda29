package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// cronLogger routes cron's own logging through zap.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}

// StartBatchScheduler runs ProcessDir over dir on a standard 5-field cron
// schedule ("0 6 * * *" is daily at 06:00) until ctx is done. A run still in
// progress when the next one is due causes that one to be skipped.
func (p *Pipeline) StartBatchScheduler(ctx context.Context, schedule string, loc *time.Location, dir, pattern, entityType string) (*cron.Cron, error) {
	schedule = strings.TrimSpace(schedule)
	if schedule == "" {
		return nil, fmt.Errorf("batch schedule is empty")
	}
	if loc == nil {
		loc = time.Local
	}
	logger := cronLogger{s: p.logger.Sugar()}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	if _, err := c.AddFunc(schedule, func() {
		res, err := p.ProcessDir(ctx, dir, pattern, entityType)
		if err != nil {
			p.logger.Error("scheduled batch failed", zap.String("dir", dir), zap.Error(err))
			return
		}
		p.logger.Info("scheduled batch complete", zap.Int("processed", len(res.Processed)), zap.Int("failed", len(res.Failed)))
	}); err != nil {
		return nil, fmt.Errorf("invalid batch_schedule '%s': %w", schedule, err)
	}

	c.Start()
	for _, e := range c.Entries() {
		p.logger.Info("batch scheduled", zap.String("cron", schedule), zap.Time("next", e.Next))
	}
	go func() {
		<-ctx.Done()
		<-c.Stop().Done()
	}()
	return c, nil
}
