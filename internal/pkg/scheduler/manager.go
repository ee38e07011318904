package scheduler

import (
	"context"
	stdlog "log"
	"os"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/robfig/cron/v3"

	"github.com/memberfox/memberfox/app/models"
	"github.com/memberfox/memberfox/app/repository"
	"github.com/memberfox/memberfox/internal/pkg/cache"
	"github.com/memberfox/memberfox/internal/pkg/database"
	"github.com/memberfox/memberfox/internal/pkg/mailqueue"
	"github.com/memberfox/memberfox/internal/pkg/membership"
	"github.com/memberfox/memberfox/internal/pkg/metrics/counter"
	"github.com/memberfox/memberfox/internal/pkg/renewal"
)

// Manager owns the periodic triggers: the daily renewal scan, the hourly
// mail queue flush and the one-shot catch-up pass after enqueues.
type Manager struct {
	queue   *mailqueue.Queue
	scanner *renewal.Scanner
	service *membership.Service
	cron    *cron.Cron
	mu      sync.Mutex
	running bool
}

var (
	globalManager *Manager
	managerOnce   sync.Once
)

// GetManager returns the global scheduler manager (singleton)
func GetManager() *Manager {
	managerOnce.Do(func() {
		db := database.GetDB()
		repos := repository.NewRepositories(db)
		service := membership.NewServiceFromDB(db)

		queue := mailqueue.NewQueue(nil, nil)
		queue.OnPassMetrics(counter.RecordPass)

		globalManager = &Manager{
			queue:   queue,
			scanner: renewal.NewScanner(repos.Subscription, repos.User, queue, nil, service),
			service: service,
		}
		queue.SetKickFunc(globalManager.KickQueueSoon)
	})
	return globalManager
}

// GetQueue returns the managed mail queue
func (m *Manager) GetQueue() *mailqueue.Queue {
	return m.queue
}

// GetScanner returns the managed renewal scanner
func (m *Manager) GetScanner() *renewal.Scanner {
	return m.scanner
}

// GetService returns the managed membership service
func (m *Manager) GetService() *membership.Service {
	return m.service
}

// SetOrderCreator attaches the external order system used for automatic
// renewals. Must be called before Start.
func (m *Manager) SetOrderCreator(orders renewal.OrderCreator) {
	m.mu.Lock()
	defer m.mu.Unlock()
	repos := repository.NewRepositories(database.GetDB())
	m.scanner = renewal.NewScanner(repos.Subscription, repos.User, m.queue, orders, m.service)
}

// Start registers the cron entries and starts the scheduler
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}
	m.running = true

	settings := models.GetAppSettings()
	cronLogger := cron.PrintfLogger(stdlog.New(os.Stdout, "cron: ", stdlog.LstdFlags))
	m.cron = cron.New(cron.WithChain(cron.Recover(cronLogger)))

	if _, err := m.cron.AddFunc(settings.GetRenewalCronSpec(), m.runRenewalScan); err != nil {
		log.Errorf("[Scheduler] Failed to schedule renewal scan: %v", err)
	} else {
		log.Infof("[Scheduler] Renewal scan scheduled (%s)", settings.GetRenewalCronSpec())
	}

	if _, err := m.cron.AddFunc(settings.GetQueueCronSpec(), m.runQueuePass); err != nil {
		log.Errorf("[Scheduler] Failed to schedule mail queue flush: %v", err)
	} else {
		log.Infof("[Scheduler] Mail queue flush scheduled (%s)", settings.GetQueueCronSpec())
	}

	m.cron.Start()
	log.Info("[Scheduler] Started")
}

// Stop stops the scheduler and waits for running jobs to finish
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}
	m.running = false

	stopCtx := m.cron.Stop()
	<-stopCtx.Done()
	log.Info("[Scheduler] Stopped")
}

// KickQueueSoon arms a one-shot queue pass shortly in the future. Used so
// freshly enqueued mail does not wait for the hourly tick.
func (m *Manager) KickQueueSoon() {
	time.AfterFunc(mailqueue.KickDelay, m.runQueuePass)
	log.Infof("[Scheduler] Catch-up queue pass armed in %s", mailqueue.KickDelay)
}

const (
	lastScanAtKey = "renewal:last_scan_at"
	scanCountKey  = "renewal:scan_count"
)

// RecordScanRun updates the scan bookkeeping after a completed renewal scan,
// scheduled or triggered by hand.
func RecordScanRun() {
	count, err := cache.GetInt(scanCountKey)
	if err != nil {
		count = 0
	}
	if err := cache.Set(scanCountKey, count+1, 0); err != nil {
		log.Errorf("[Scheduler] Failed to record scan count: %v", err)
	}
	if err := cache.Set(lastScanAtKey, time.Now().Format(time.RFC3339), 0); err != nil {
		log.Errorf("[Scheduler] Failed to record scan timestamp: %v", err)
	}
}

// LastScanInfo returns when the renewal scan last ran and how often it has
// run. An empty timestamp means no scan has completed yet.
func LastScanInfo() (string, int) {
	at, err := cache.Get(lastScanAtKey)
	if err != nil {
		at = ""
	}
	count, err := cache.GetInt(scanCountKey)
	if err != nil {
		count = 0
	}
	return at, count
}

func (m *Manager) runRenewalScan() {
	m.scanner.ProcessMembershipRenewals()
	RecordScanRun()
}

func (m *Manager) runQueuePass() {
	if _, err := m.queue.ProcessQueue(context.Background()); err != nil {
		log.Errorf("[Scheduler] Mail queue pass failed: %v", err)
	}
}
