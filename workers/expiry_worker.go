package workers

import (
	"context"
	"sync"
	"time"

	"helpnet/services"

	"github.com/sirupsen/logrus"
)

// ExpiryWorker periodically sweeps open emergencies that outlived the
// retention window into resolved with the auto-expired resolution type.
type ExpiryWorker struct {
	emergencyService *services.EmergencyService

	config ExpiryWorkerConfig

	isRunning bool
	mutex     sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type ExpiryWorkerConfig struct {
	SweepInterval time.Duration `json:"sweepInterval"`
	MaxAge        time.Duration `json:"maxAge"`
}

func NewExpiryWorker(emergencyService *services.EmergencyService, maxAge time.Duration) *ExpiryWorker {
	ctx, cancel := context.WithCancel(context.Background())

	if maxAge <= 0 {
		maxAge = 24 * time.Hour
	}

	return &ExpiryWorker{
		emergencyService: emergencyService,
		config: ExpiryWorkerConfig{
			SweepInterval: 5 * time.Minute,
			MaxAge:        maxAge,
		},
		ctx:    ctx,
		cancel: cancel,
	}
}

func (ew *ExpiryWorker) Start() {
	ew.mutex.Lock()
	defer ew.mutex.Unlock()

	if ew.isRunning {
		return
	}
	ew.isRunning = true

	ew.wg.Add(1)
	go ew.run()

	logrus.Infof("Expiry worker started (interval %s, max age %s)", ew.config.SweepInterval, ew.config.MaxAge)
}

func (ew *ExpiryWorker) Stop() {
	ew.mutex.Lock()
	if !ew.isRunning {
		ew.mutex.Unlock()
		return
	}
	ew.isRunning = false
	ew.mutex.Unlock()

	ew.cancel()
	ew.wg.Wait()

	logrus.Info("Expiry worker stopped")
}

func (ew *ExpiryWorker) run() {
	defer ew.wg.Done()

	ticker := time.NewTicker(ew.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ew.ctx.Done():
			return
		case <-ticker.C:
			if expired := ew.emergencyService.ExpireStale(ew.ctx, ew.config.MaxAge); expired > 0 {
				logrus.Infof("Auto-expired %d stale emergencies", expired)
			}
		}
	}
}
