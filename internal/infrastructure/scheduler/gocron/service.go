package scheduler

import (
	"fmt"
	"sync"
	"time"

	"github.com/ArkLabsHQ/escrowd/internal/core/ports"
	"github.com/go-co-op/gocron"
)

type service struct {
	scheduler *gocron.Scheduler
	job       *gocron.Job
	mu        *sync.Mutex
}

func NewScheduler() ports.SchedulerService {
	svc := gocron.NewScheduler(time.UTC)
	return &service{svc, nil, &sync.Mutex{}}
}

func (s *service) Start() {
	s.scheduler.StartAsync()
}

func (s *service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.scheduler.Stop()
	s.scheduler.Clear()
	s.job = nil
}

// ScheduleEvery replaces any previously scheduled task. The first run
// happens one interval from now.
func (s *service) ScheduleEvery(interval time.Duration, task func()) error {
	if interval <= 0 {
		return fmt.Errorf("invalid interval: %s", interval)
	}
	if task == nil {
		return fmt.Errorf("missing task")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.job != nil {
		s.scheduler.RemoveByReference(s.job)
		s.job = nil
	}

	job, err := s.scheduler.Every(interval).WaitForSchedule().SingletonMode().Do(task)
	if err != nil {
		return err
	}
	s.job = job
	return nil
}

func (s *service) WhenNextRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.job == nil {
		return time.Time{}
	}
	return s.job.NextRun()
}
