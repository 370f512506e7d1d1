package tracking

import (
	"time"

	"github.com/robfig/cron/v3"

	"github.com/medtrack/adherence/pkg/logger"
)

// Refresher runs the periodic refresh cycle: a full reload and
// projection recompute so "today" rolls over at midnight and catalog
// misses get retried without user action.
type Refresher struct {
	cron        *cron.Cron
	coordinator *Coordinator
	logger      *logger.Logger
}

// NewRefresher creates a new refresher
func NewRefresher(coordinator *Coordinator, log *logger.Logger) *Refresher {
	return &Refresher{
		cron:        cron.New(cron.WithLocation(time.Local)),
		coordinator: coordinator,
		logger:      log,
	}
}

// Start registers the refresh job and begins the cron loop
func (r *Refresher) Start(spec string) error {
	_, err := r.cron.AddFunc(spec, r.refresh)
	if err != nil {
		return err
	}

	r.cron.Start()
	r.logger.WithField("spec", spec).Info("Refresh cycle started")
	return nil
}

// Stop gracefully stops the cron loop, waiting for a running job
func (r *Refresher) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	r.logger.Info("Refresh cycle stopped")
}

func (r *Refresher) refresh() {
	if err := r.coordinator.RefreshAll(); err != nil {
		r.logger.WithError(err).Warn("Scheduled refresh failed, projections recomputed from in-memory state")
	}
}
