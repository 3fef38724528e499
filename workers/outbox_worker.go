package workers

import (
	"context"
	"sync"
	"time"

	"helpnet/models"
	"helpnet/repositories"
	"helpnet/services"

	"github.com/sirupsen/logrus"
)

// OutboxWorker drains deferred side-effect jobs off the request path.
// Jobs are retried a bounded number of times and then dropped with a log
// line; nothing here ever feeds an error back to the caller.
type OutboxWorker struct {
	notificationService *services.NotificationService
	emergencyRepo       repositories.EmergencyRepository

	config OutboxWorkerConfig

	jobQueue chan models.OutboxJob

	isRunning bool
	mutex     sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	stats      OutboxWorkerStats
	statsMutex sync.RWMutex
}

type OutboxWorkerConfig struct {
	WorkerCount       int           `json:"workerCount"`
	QueueSize         int           `json:"queueSize"`
	ProcessingTimeout time.Duration `json:"processingTimeout"`
	RetryAttempts     int           `json:"retryAttempts"`
	RetryDelay        time.Duration `json:"retryDelay"`
}

type OutboxWorkerStats struct {
	JobsProcessed int64     `json:"jobsProcessed"`
	JobsFailed    int64     `json:"jobsFailed"`
	JobsRetried   int64     `json:"jobsRetried"`
	JobsDropped   int64     `json:"jobsDropped"`
	StartTime     time.Time `json:"startTime"`
}

func NewOutboxWorker(
	notificationService *services.NotificationService,
	emergencyRepo repositories.EmergencyRepository,
) *OutboxWorker {
	ctx, cancel := context.WithCancel(context.Background())

	config := OutboxWorkerConfig{
		WorkerCount:       3,
		QueueSize:         500,
		ProcessingTimeout: 30 * time.Second,
		RetryAttempts:     3,
		RetryDelay:        2 * time.Second,
	}

	return &OutboxWorker{
		notificationService: notificationService,
		emergencyRepo:       emergencyRepo,
		config:              config,
		jobQueue:            make(chan models.OutboxJob, config.QueueSize),
		ctx:                 ctx,
		cancel:              cancel,
		stats: OutboxWorkerStats{
			StartTime: time.Now(),
		},
	}
}

func (ow *OutboxWorker) Start() {
	ow.mutex.Lock()
	defer ow.mutex.Unlock()

	if ow.isRunning {
		return
	}
	ow.isRunning = true

	for i := 0; i < ow.config.WorkerCount; i++ {
		ow.wg.Add(1)
		go ow.worker(i)
	}

	logrus.Infof("Outbox worker started with %d workers", ow.config.WorkerCount)
}

func (ow *OutboxWorker) Stop() {
	ow.mutex.Lock()
	if !ow.isRunning {
		ow.mutex.Unlock()
		return
	}
	ow.isRunning = false
	ow.mutex.Unlock()

	ow.cancel()
	ow.wg.Wait()

	logrus.Info("Outbox worker stopped")
}

// Enqueue accepts a job without blocking. A full queue drops the job.
func (ow *OutboxWorker) Enqueue(job models.OutboxJob) {
	select {
	case ow.jobQueue <- job:
	default:
		ow.statsMutex.Lock()
		ow.stats.JobsDropped++
		ow.statsMutex.Unlock()
		logrus.Warnf("Outbox queue full, dropping %s job for user %s", job.Kind, job.UserID)
	}
}

func (ow *OutboxWorker) worker(id int) {
	defer ow.wg.Done()

	for {
		select {
		case <-ow.ctx.Done():
			return
		case job := <-ow.jobQueue:
			ow.processJob(job)
		}
	}
}

func (ow *OutboxWorker) processJob(job models.OutboxJob) {
	ctx, cancel := context.WithTimeout(ow.ctx, ow.config.ProcessingTimeout)
	defer cancel()

	var err error
	switch job.Kind {
	case models.OutboxKindContactAlert:
		err = ow.processContactAlert(ctx, job)
	default:
		logrus.Warnf("Unknown outbox job kind: %s", job.Kind)
		return
	}

	ow.statsMutex.Lock()
	defer ow.statsMutex.Unlock()

	if err == nil {
		ow.stats.JobsProcessed++
		return
	}

	if job.Attempts+1 < ow.config.RetryAttempts {
		job.Attempts++
		ow.stats.JobsRetried++
		go ow.requeueAfter(job, ow.config.RetryDelay)
		return
	}

	ow.stats.JobsFailed++
	logrus.Errorf("Outbox job %s for user %s failed after %d attempts: %v", job.Kind, job.UserID, job.Attempts+1, err)
}

func (ow *OutboxWorker) requeueAfter(job models.OutboxJob, delay time.Duration) {
	select {
	case <-ow.ctx.Done():
	case <-time.After(delay):
		ow.Enqueue(job)
	}
}

func (ow *OutboxWorker) processContactAlert(ctx context.Context, job models.OutboxJob) error {
	emergency, err := ow.emergencyRepo.GetByID(ctx, job.EmergencyID)
	if err != nil {
		return err
	}
	// A silent emergency alerts nobody.
	if emergency.SilentMode {
		return nil
	}
	return ow.notificationService.NotifyContacts(ctx, job.UserID, emergency)
}

// GetStats returns a snapshot of worker activity.
func (ow *OutboxWorker) GetStats() OutboxWorkerStats {
	ow.statsMutex.RLock()
	defer ow.statsMutex.RUnlock()
	return ow.stats
}
