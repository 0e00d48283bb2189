package deployments

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/contracthub-dev/contracthub/internal/hub/enviro"
	"github.com/contracthub-dev/contracthub/internal/hub/types"
)

// Scheduler re-invokes the driver when a lease expires. One timer per
// deployment; scheduling an earlier retry replaces the pending one.
type Scheduler struct {
	mu     sync.Mutex
	timers map[types.DeploymentID]*time.Timer

	driver *Driver
	clock  enviro.Clock
	logger *log.Logger

	closed bool
}

// NewScheduler creates an idle scheduler around the driver.
func NewScheduler(driver *Driver, clock enviro.Clock, logger *log.Logger) *Scheduler {
	return &Scheduler{
		timers: make(map[types.DeploymentID]*time.Timer),
		driver: driver,
		clock:  clock,
		logger: logger,
	}
}

// ScheduleRetry arranges one Process call shortly after the given
// expiration. A nil expiration means no further work and clears any pending
// timer for the deployment.
func (s *Scheduler) ScheduleRetry(id types.DeploymentID, expiration *int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if timer, ok := s.timers[id]; ok {
		timer.Stop()
		delete(s.timers, id)
	}

	if s.closed || expiration == nil {
		return
	}

	delay := time.Duration(*expiration-s.clock.Now()) * time.Millisecond
	if delay < 0 {
		delay = 0
	}

	s.timers[id] = time.AfterFunc(delay, func() {
		s.run(id)
	})
}

// Resume schedules every deployment that still needs processing. Called once
// on start so restarts pick up in-flight sagas.
func (s *Scheduler) Resume() {
	count := s.driver.store.DeploymentsCount()
	resumed := 0
	for id := types.DeploymentID(0); id < count; id++ {
		record, err := s.driver.store.Deployment(id)
		if err != nil {
			continue
		}
		if !s.driver.NeedProcessing(record.State) {
			continue
		}
		expiration := s.clock.Now()
		if record.Lock != nil && record.Lock.Expiration > expiration {
			expiration = record.Lock.Expiration
		}
		s.ScheduleRetry(id, &expiration)
		resumed++
	}
	if resumed > 0 {
		s.logger.Info("resumed in-flight deployments", "count", resumed)
	}
}

func (s *Scheduler) run(id types.DeploymentID) {
	s.mu.Lock()
	delete(s.timers, id)
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return
	}

	next := s.driver.Process(context.Background(), id)
	s.ScheduleRetry(id, next)
}

// Close stops all pending timers.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	for id, timer := range s.timers {
		timer.Stop()
		delete(s.timers, id)
	}
}
