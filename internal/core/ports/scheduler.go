package ports

import "time"

type SchedulerService interface {
	Start()
	Stop()
	// ScheduleEvery runs task every interval, skipping a run while the
	// previous one is still in progress.
	ScheduleEvery(interval time.Duration, task func()) error
	WhenNextRun() time.Time
}
