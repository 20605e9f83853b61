package scheduler

import (
	"context"
	"fmt"

	"content-distributor/infrastructure/logger"

	"github.com/robfig/cron/v3"
)

// Cron runs periodic jobs such as the metrics sweep and the stuck-record report.
type Cron struct {
	c   *cron.Cron
	ctx context.Context
}

func NewCron() *Cron {
	l := cronLogger{}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	return &Cron{
		c:   cron.New(cron.WithParser(parser), cron.WithLogger(l), cron.WithChain(cron.Recover(l), cron.SkipIfStillRunning(l))),
		ctx: context.Background(),
	}
}

// Add registers job under spec ("@every 6h", "*/30 * * * *", ...).
func (c *Cron) Add(name, spec string, job func(ctx context.Context)) error {
	if spec == "" {
		return nil
	}
	if _, err := c.c.AddFunc(spec, func() {
		logger.GetLogger().WithField("job", name).Debug("cron job started")
		job(c.ctx)
	}); err != nil {
		return fmt.Errorf("schedule %s (%q): %w", name, spec, err)
	}
	return nil
}

// Run starts the cron loop and blocks until ctx is done and running jobs finish.
func (c *Cron) Run(ctx context.Context) error {
	c.ctx = ctx
	c.c.Start()
	<-ctx.Done()
	<-c.c.Stop().Done()
	return nil
}

func (c *Cron) Len() int { return len(c.c.Entries()) }

type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	logger.GetLogger().WithFields(kv(keysAndValues)).Debug(msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	logger.GetLogger().WithFields(kv(keysAndValues)).WithField("error", err).Error(msg)
}

func kv(keysAndValues []interface{}) map[string]interface{} {
	fields := make(map[string]interface{}, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return fields
}
