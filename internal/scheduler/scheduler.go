// Package scheduler runs delayed one-shot and recurring tasks on top of gocron.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	log "github.com/sirupsen/logrus"
)

type Task func(ctx context.Context)

type Scheduler struct {
	scheduler gocron.Scheduler
	logger    *log.Entry

	mu      sync.Mutex
	runCtx  context.Context
	cancel  context.CancelFunc
	started bool
}

func New(logger *log.Entry) (*Scheduler, error) {
	s, err := gocron.NewScheduler(
		gocron.WithLocation(time.UTC),
		gocron.WithLogger(&logAdapter{entry: logger}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	runCtx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		scheduler: s,
		logger:    logger,
		runCtx:    runCtx,
		cancel:    cancel,
	}, nil
}

func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}
	s.cancel()
	s.runCtx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))
	s.scheduler.Start()
	s.started = true
	s.logger.Debug("scheduler started")
	return nil
}

func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	s.cancel()
	s.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		done <- s.scheduler.Shutdown()
	}()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("failed to shutdown scheduler: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) context() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runCtx
}

// ScheduleOnce runs task once after delay. The returned cancel func only removes the
// pending job; tasks must re-check state themselves.
func (s *Scheduler) ScheduleOnce(name string, delay time.Duration, task Task) (func(), error) {
	if task == nil {
		return nil, errors.New("nil task")
	}

	var (
		jobMu sync.Mutex
		jobID *gocron.Job
	)
	start := gocron.OneTimeJobStartImmediately()
	if delay > 0 {
		start = gocron.OneTimeJobStartDateTime(time.Now().Add(delay))
	}

	job, err := s.scheduler.NewJob(
		gocron.OneTimeJob(start),
		gocron.NewTask(func() {
			task(s.context())
			jobMu.Lock()
			j := jobID
			jobMu.Unlock()
			if j != nil {
				_ = s.scheduler.RemoveJob((*j).ID())
			}
		}),
		gocron.WithName(name),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to schedule job %s: %w", name, err)
	}
	jobMu.Lock()
	jobID = &job
	jobMu.Unlock()

	return func() {
		if err := s.scheduler.RemoveJob(job.ID()); err != nil && !errors.Is(err, gocron.ErrJobNotFound) {
			s.logger.WithFields(log.Fields{"job": name, "error": err.Error()}).Warn("cant cancel job")
		}
	}, nil
}

// Every runs task each interval until the scheduler stops.
func (s *Scheduler) Every(name string, interval time.Duration, task Task) error {
	if task == nil {
		return errors.New("nil task")
	}
	_, err := s.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() { task(s.context()) }),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule job %s: %w", name, err)
	}
	return nil
}

type logAdapter struct {
	entry *log.Entry
}

func (l *logAdapter) fields(args []any) *log.Entry {
	fields := log.Fields{}
	for i := 0; i+1 < len(args); i += 2 {
		key := fmt.Sprint(args[i])
		if err, ok := args[i+1].(error); ok {
			fields[key] = err.Error()
			continue
		}
		fields[key] = args[i+1]
	}
	return l.entry.WithFields(fields)
}

func (l *logAdapter) Debug(msg string, args ...any) { l.fields(args).Trace(msg) }
func (l *logAdapter) Info(msg string, args ...any)  { l.fields(args).Debug(msg) }
func (l *logAdapter) Warn(msg string, args ...any)  { l.fields(args).Warn(msg) }
func (l *logAdapter) Error(msg string, args ...any) { l.fields(args).Error(msg) }
