package schedule

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

type Job interface {
	Name() string
	Run(ctx context.Context) error
}

type Scheduler interface {
	AddJob(job Job, spec string) error
	RunNow(ctx context.Context, name string) error
	Start(ctx context.Context)
	Stop()
}

type scheduledJob struct {
	job     Job
	spec    string
	running atomic.Bool
}

// CronScheduler runs jobs on five-field cron specs or @descriptors. A job never overlaps
// with itself: a tick that finds it still running is skipped.
type CronScheduler struct {
	cron *cron.Cron

	mu   sync.Mutex
	jobs map[string]*scheduledJob
	ctx  context.Context
}

func NewCronScheduler() *CronScheduler {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	return &CronScheduler{
		cron: cron.New(cron.WithParser(parser)),
		jobs: make(map[string]*scheduledJob),
		ctx:  context.Background(),
	}
}

func (c *CronScheduler) AddJob(job Job, spec string) error {
	name := job.Name()
	logger := logutil.GetLogger(context.Background()).With(zap.String("job", name), zap.String("spec", spec))
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.jobs[name]; ok {
		return fmt.Errorf("job %s already scheduled", name)
	}
	sj := &scheduledJob{job: job, spec: spec}
	if _, err := c.cron.AddFunc(spec, func() { c.execute(c.context(), sj) }); err != nil {
		logger.Error("schedule job failed", zap.Error(err))
		return err
	}
	c.jobs[name] = sj
	logger.Info("job scheduled")
	return nil
}

// RunNow runs a registered job immediately, outside its schedule.
func (c *CronScheduler) RunNow(ctx context.Context, name string) error {
	c.mu.Lock()
	sj, ok := c.jobs[name]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("job %s not found", name)
	}
	return c.execute(ctx, sj)
}

func (c *CronScheduler) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	c.mu.Lock()
	c.ctx = ctx
	c.mu.Unlock()
	c.cron.Start()
}

// Stop waits for running jobs to return.
func (c *CronScheduler) Stop() {
	ctx := c.cron.Stop()
	<-ctx.Done()
}

func (c *CronScheduler) context() context.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ctx
}

func (c *CronScheduler) execute(ctx context.Context, sj *scheduledJob) error {
	logger := logutil.GetLogger(ctx).With(
		zap.String("job", sj.job.Name()),
		zap.String("spec", sj.spec),
	)
	if !sj.running.CompareAndSwap(false, true) {
		logger.Info("job skipped: still running")
		return nil
	}
	defer sj.running.Store(false)

	start := time.Now()
	logger.Info("job started")
	err := sj.job.Run(ctx)
	elapsed := time.Since(start)
	if err != nil {
		logger.Error("job finished", zap.Error(err), zap.Duration("duration", elapsed))
		return err
	}
	logger.Info("job finished", zap.Duration("duration", elapsed))
	return nil
}
