package schedule

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Manager handles scheduling and execution of the periodic CRM jobs
type Manager struct {
	jobs      map[string]*Job
	resultsCh chan *Result

	// Concurrency
	mutex  sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc

	// Scheduling
	cron *cron.Cron
}

// NewManager creates a new job manager and starts its cron loop
func NewManager() *Manager {
	ctx, cancel := context.WithCancel(context.Background())

	m := &Manager{
		jobs:      make(map[string]*Job),
		resultsCh: make(chan *Result, 100), // Buffered channel
		ctx:       ctx,
		cancel:    cancel,
		cron:      cron.New(),
	}

	m.cron.Start()

	return m
}

// Stop gracefully stops the manager
func (m *Manager) Stop() {
	m.cancel()
	m.cron.Stop()
	close(m.resultsCh)
}

// ResultChannel returns the channel on which job results are delivered
func (m *Manager) ResultChannel() <-chan *Result {
	return m.resultsCh
}

// LoadJobs registers a list of jobs with the manager
func (m *Manager) LoadJobs(jobs []*Job) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	for _, job := range jobs {
		if err := m.loadJob(job); err != nil {
			return fmt.Errorf("failed to load job '%s': %w", job.Key, err)
		}
	}

	return nil
}

// loadJob registers a single job (called with mutex held)
func (m *Manager) loadJob(job *Job) error {
	if job.Key == "" {
		return fmt.Errorf("job key cannot be empty")
	}
	if job.Spec == "" {
		return fmt.Errorf("job spec cannot be empty")
	}
	if job.Run == nil {
		return fmt.Errorf("job run function cannot be nil")
	}

	_, err := m.cron.AddFunc(job.Spec, func() {
		m.executeJob(job)
	})
	if err != nil {
		return err
	}

	m.jobs[job.Key] = job
	return nil
}

// RunNow executes a registered job immediately, outside its cron schedule
func (m *Manager) RunNow(key string) error {
	m.mutex.RLock()
	job, exists := m.jobs[key]
	m.mutex.RUnlock()

	if !exists {
		return fmt.Errorf("no job registered with key '%s'", key)
	}

	m.executeJob(job)
	return nil
}

// executeJob runs a job and sends the result to the channel
func (m *Manager) executeJob(job *Job) {
	started := time.Now().UTC()

	result, err := job.Run(m.ctx)
	if err != nil {
		log.Printf("[SCHEDULE]: Job '%s' failed: %v", job.Key, err)
		result = &Result{Key: job.Key, Errors: 1, Detail: err.Error()}
	}
	if result == nil {
		return
	}

	result.Key = job.Key
	result.StartedAt = started
	result.FinishedAt = time.Now().UTC()

	select {
	case m.resultsCh <- result:
	case <-m.ctx.Done():
		log.Printf("[SCHEDULE]: Manager context cancelled, dropping job '%s' result", job.Key)
	default:
		log.Printf("[SCHEDULE]: Result channel full, dropping job '%s' result", job.Key)
	}
}

// Jobs returns all loaded jobs
func (m *Manager) Jobs() []*Job {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	jobs := make([]*Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		jobs = append(jobs, job)
	}

	return jobs
}
