package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/zoe-analytics/zoe/pkg/deploy"
	"github.com/zoe-analytics/zoe/pkg/log"
	"github.com/zoe-analytics/zoe/pkg/metrics"
	"github.com/zoe-analytics/zoe/pkg/storage"
	"github.com/zoe-analytics/zoe/pkg/types"
)

// Scheduler runs executions strictly in arrival order, one at a time.
// Terminations run asynchronously in dedicated worker goroutines so that a
// slow teardown never blocks the queue.
type Scheduler struct {
	store    storage.Store
	deployer *deploy.Deployer
	logger   zerolog.Logger

	mu          sync.Mutex
	fifo        []*types.Execution
	termWorkers int

	trigger chan struct{}
	stopCh  chan struct{}
	done    chan struct{}
}

// NewScheduler creates a scheduler; call Start to run its loop.
func NewScheduler(store storage.Store, deployer *deploy.Deployer) *Scheduler {
	return &Scheduler{
		store:    store,
		deployer: deployer,
		logger:   log.WithComponent("scheduler"),
		trigger:  make(chan struct{}, 1024),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start begins the scheduler loop
func (s *Scheduler) Start() {
	go s.loop()
}

// Quit stops the scheduler loop and waits for it to exit. Queued executions
// stay in the scheduled state and are resubmitted on the next startup.
func (s *Scheduler) Quit() {
	close(s.stopCh)
	<-s.done
}

// Incoming appends an execution to the tail of the queue. The caller has
// already moved it to the scheduled state. An execution that is already
// queued keeps its position, so duplicate submissions cannot reorder or
// double-start anything.
func (s *Scheduler) Incoming(execution *types.Execution) {
	s.mu.Lock()
	for _, queued := range s.fifo {
		if queued.ID == execution.ID {
			s.mu.Unlock()
			s.logger.Debug().Int("execution_id", execution.ID).Msg("execution already queued")
			return
		}
	}
	s.fifo = append(s.fifo, execution)
	metrics.QueueLength.Set(float64(len(s.fifo)))
	s.mu.Unlock()

	s.logger.Debug().Int("execution_id", execution.ID).Msg("execution queued")
	s.kick()
}

// Terminate removes the execution from the queue if it is still waiting and
// tears down its containers from a dedicated worker goroutine. The returned
// channel is closed when the execution has reached the terminated state.
func (s *Scheduler) Terminate(execution *types.Execution) <-chan struct{} {
	s.mu.Lock()
	for i, queued := range s.fifo {
		if queued.ID == execution.ID {
			s.fifo = append(s.fifo[:i], s.fifo[i+1:]...)
			break
		}
	}
	metrics.QueueLength.Set(float64(len(s.fifo)))
	s.termWorkers++
	metrics.TerminationWorkers.Set(float64(s.termWorkers))
	s.mu.Unlock()

	done := make(chan struct{})
	go s.terminationWorker(execution, done)
	return done
}

// Stats reports the current queue length and live termination workers.
func (s *Scheduler) Stats() *types.SchedulerStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &types.SchedulerStats{
		QueueLength:             len(s.fifo),
		TerminationThreadsCount: s.termWorkers,
	}
}

// loop is the main scheduler loop
func (s *Scheduler) loop() {
	defer close(s.done)

	for {
		select {
		case <-s.stopCh:
			return
		case <-s.trigger:
			s.runOne()
		case <-time.After(time.Second):
			// The trigger channel is a counter with a ceiling: if kicks
			// were dropped while it was full, pick up the slack here.
			s.mu.Lock()
			queued := len(s.fifo)
			metrics.QueueLength.Set(float64(queued))
			metrics.TerminationWorkers.Set(float64(s.termWorkers))
			s.mu.Unlock()
			if queued > 0 {
				s.kick()
			}
		}
	}
}

// runOne pops the head of the queue and starts it synchronously. Executions
// behind it wait; arrival order is the only scheduling policy.
func (s *Scheduler) runOne() {
	s.mu.Lock()
	if len(s.fifo) == 0 {
		s.mu.Unlock()
		return
	}
	execution := s.fifo[0]
	s.fifo = s.fifo[1:]
	metrics.QueueLength.Set(float64(len(s.fifo)))
	s.mu.Unlock()

	s.startExecution(execution)
}

func (s *Scheduler) startExecution(execution *types.Execution) {
	logger := s.logger.With().Int("execution_id", execution.ID).Logger()

	if err := s.store.SetStarting(execution.ID); err != nil {
		logger.Error().Err(err).Msg("cannot move execution to starting")
		return
	}

	err := s.deployer.Start(context.Background(), execution)
	if err == nil {
		if err := s.store.SetRunning(execution.ID); err != nil {
			logger.Error().Err(err).Msg("cannot move execution to running")
			return
		}
		metrics.ExecutionsStarted.Inc()
		logger.Info().Msg("execution started")
		return
	}

	var transient *deploy.TransientStartError
	if errors.As(err, &transient) {
		logger.Warn().Err(err).Msg("transient start failure, execution requeued")
		if serr := s.store.SetErrorMessage(execution.ID, transient.Message); serr != nil {
			logger.Error().Err(serr).Msg("cannot record error message")
		}
		if terr := s.deployer.Teardown(context.Background(), execution); terr != nil {
			logger.Error().Err(terr).Msg("cleanup after transient failure failed")
		}
		if serr := s.store.SetScheduled(execution.ID); serr != nil {
			logger.Error().Err(serr).Msg("cannot requeue execution")
			return
		}
		s.mu.Lock()
		s.fifo = append(s.fifo, execution)
		metrics.QueueLength.Set(float64(len(s.fifo)))
		s.mu.Unlock()
		metrics.ExecutionsRetried.Inc()
		s.kick()
		return
	}

	logger.Error().Err(err).Msg("fatal start failure")
	if serr := s.store.SetCleaningUp(execution.ID); serr != nil {
		logger.Error().Err(serr).Msg("cannot move execution to cleaning up")
	}
	if terr := s.deployer.Teardown(context.Background(), execution); terr != nil {
		logger.Error().Err(terr).Msg("cleanup after fatal failure failed")
	}
	if serr := s.store.SetError(execution.ID, err.Error()); serr != nil {
		logger.Error().Err(serr).Msg("cannot move execution to error")
	}
	metrics.ExecutionsFailed.Inc()
}

func (s *Scheduler) terminationWorker(execution *types.Execution, done chan struct{}) {
	defer close(done)
	logger := s.logger.With().Int("execution_id", execution.ID).Logger()

	if err := s.store.SetCleaningUp(execution.ID); err != nil {
		logger.Error().Err(err).Msg("cannot move execution to cleaning up")
	}
	if err := s.deployer.Teardown(context.Background(), execution); err != nil {
		logger.Error().Err(err).Msg("container teardown failed")
	}
	if err := s.store.SetTerminated(execution.ID); err != nil {
		logger.Error().Err(err).Msg("cannot move execution to terminated")
	}
	metrics.ExecutionsTerminated.Inc()
	logger.Info().Msg("execution terminated")

	s.mu.Lock()
	s.termWorkers--
	metrics.TerminationWorkers.Set(float64(s.termWorkers))
	s.mu.Unlock()
	s.kick()
}

// kick wakes the loop without blocking. Dropped kicks are recovered by the
// loop timeout.
func (s *Scheduler) kick() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}
