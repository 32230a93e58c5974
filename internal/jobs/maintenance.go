package jobs

import (
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/chatcart-io/chatcart-backend/internal/services"
	"github.com/chatcart-io/chatcart-backend/internal/storage"
)

// MaintenanceJob owns the scheduled background work: the passive session
// TTL sweep, dedup record cleanup, and messaging-account health checks.
// Health checks are the only provider calls permitted automatic retries.
type MaintenanceJob struct {
	store    storage.Store
	whatsapp *services.WhatsAppService
	cron     *cron.Cron

	// Tenants whose accounts get health-checked. Populated from active
	// messaging accounts at each run via this provider func so new
	// connections are picked up without a restart.
	tenantIDs func() []string
}

// NewMaintenanceJob creates the job runner.
func NewMaintenanceJob(store storage.Store, whatsapp *services.WhatsAppService, tenantIDs func() []string) *MaintenanceJob {
	return &MaintenanceJob{
		store:     store,
		whatsapp:  whatsapp,
		cron:      cron.New(),
		tenantIDs: tenantIDs,
	}
}

// Start registers and launches the schedules.
func (j *MaintenanceJob) Start() {
	if _, err := j.cron.AddFunc("@every 5m", j.sweepExpired); err != nil {
		log.Printf("❌ Failed to schedule session sweep: %v", err)
	}
	if _, err := j.cron.AddFunc("@hourly", j.runHealthChecks); err != nil {
		log.Printf("❌ Failed to schedule health checks: %v", err)
	}

	j.cron.Start()
	log.Println("✅ Maintenance jobs scheduled (session sweep, health checks)")
}

// Stop halts the scheduler, letting a running job finish.
func (j *MaintenanceJob) Stop() {
	ctx := j.cron.Stop()
	<-ctx.Done()
}

func (j *MaintenanceJob) sweepExpired() {
	now := time.Now()

	sessions, err := j.store.DeleteExpiredSessions(now)
	if err != nil {
		log.Printf("❌ Session sweep failed: %v", err)
	} else if sessions > 0 {
		log.Printf("🧹 Swept %d expired sessions", sessions)
	}

	records, err := j.store.DeleteExpiredProcessedMessages(now)
	if err != nil {
		log.Printf("❌ Dedup record sweep failed: %v", err)
	} else if records > 0 {
		log.Printf("🧹 Swept %d expired dedup records", records)
	}
}

func (j *MaintenanceJob) runHealthChecks() {
	if j.tenantIDs == nil {
		return
	}

	for _, tenantID := range j.tenantIDs() {
		if err := j.whatsapp.HealthCheck(tenantID); err != nil {
			log.Printf("⚠️  Health check failed for tenant %s: %v", tenantID, err)
		}
	}
}
