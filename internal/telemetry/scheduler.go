// Package telemetry implements the embedded telemetry service: a scheduler
// that periodically collects metrics from registered collectors and uploads
// pending batches to the billing/licensing service.
//
// Scheduling is two-phase. Until the installation identity (customer id +
// instance id) is established the loops check every 3 minutes, so a new
// installation becomes visible to the vendor shortly after the first user
// authenticates. Once the identity exists the loops check hourly, collecting
// every 7 days and uploading every 24 hours.
package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"openhands-enterprise/backend/internal/billing"
	"openhands-enterprise/backend/internal/observability/metrics"
	"openhands-enterprise/backend/internal/telemetry/domain"
	"openhands-enterprise/backend/internal/telemetry/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

const (
	defaultCollectionIntervalDays = 7
	defaultUploadIntervalHours    = 24
	defaultWarningThresholdDays   = 4
	defaultBootstrapCheckInterval = 180 * time.Second
	defaultNormalCheckInterval    = 3600 * time.Second

	loopCollection = "collection"
	loopUpload     = "upload"
)

// SchedulerConfig carries the scheduler intervals. Zero values fall back to
// the defaults.
type SchedulerConfig struct {
	CollectionIntervalDays int
	UploadIntervalHours    int
	WarningThresholdDays   int
	BootstrapCheckInterval time.Duration
	NormalCheckInterval    time.Duration
	// AdminEmailOverride short-circuits admin email discovery when set.
	AdminEmailOverride string
}

func (c SchedulerConfig) withDefaults() SchedulerConfig {
	if c.CollectionIntervalDays <= 0 {
		c.CollectionIntervalDays = defaultCollectionIntervalDays
	}
	if c.UploadIntervalHours <= 0 {
		c.UploadIntervalHours = defaultUploadIntervalHours
	}
	if c.WarningThresholdDays <= 0 {
		c.WarningThresholdDays = defaultWarningThresholdDays
	}
	if c.BootstrapCheckInterval <= 0 {
		c.BootstrapCheckInterval = defaultBootstrapCheckInterval
	}
	if c.NormalCheckInterval <= 0 {
		c.NormalCheckInterval = defaultNormalCheckInterval
	}
	return c
}

// AdminEmailSource resolves the installation's admin email from user records.
type AdminEmailSource interface {
	// FirstAcceptedTOSEmail returns the email of the earliest accepted-ToS
	// user with a non-empty email, or "" when no such user exists.
	FirstAcceptedTOSEmail(ctx context.Context) (string, error)
}

// Scheduler runs the collection and upload loops. It is constructed by the
// composition root and started/stopped from the host lifecycle; both Start
// and Stop are idempotent and never return errors, so a telemetry failure
// can never prevent the server from starting or shutting down.
type Scheduler struct {
	cfg      SchedulerConfig
	repo     repository.Repository
	users    AdminEmailSource
	registry *Registry
	client   billing.Client
	log      *zap.Logger
	stats    *metrics.SchedulerMetrics
	nowFn    func() time.Time

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewScheduler builds a scheduler. A nil logger is replaced with a no-op
// logger; stats may be nil when Prometheus metrics are not wanted.
func NewScheduler(
	cfg SchedulerConfig,
	repo repository.Repository,
	users AdminEmailSource,
	registry *Registry,
	client billing.Client,
	stats *metrics.SchedulerMetrics,
	log *zap.Logger,
) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	if registry == nil {
		registry = NewRegistry()
	}
	if client == nil {
		client = billing.NewNoopClient()
	}
	return &Scheduler{
		cfg:      cfg.withDefaults(),
		repo:     repo,
		users:    users,
		registry: registry,
		client:   client,
		log:      log,
		stats:    stats,
		nowFn:    func() time.Time { return time.Now().UTC() },
	}
}

// Start launches the collection loop, the upload loop, and a one-shot check
// that collects immediately when no batch exists yet. Calling Start on a
// running scheduler logs a warning and returns.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		s.log.Warn("telemetry scheduler already started")
		return
	}

	// Loops outlive the caller's context; Stop is the only way to end them.
	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.started = true

	s.wg.Add(3)
	go func() {
		defer s.wg.Done()
		s.collectionLoop(runCtx)
	}()
	go func() {
		defer s.wg.Done()
		s.uploadLoop(runCtx)
	}()
	go func() {
		defer s.wg.Done()
		s.initialCollectionCheck(runCtx)
	}()

	s.log.Info("telemetry scheduler started",
		zap.Int("collection_interval_days", s.cfg.CollectionIntervalDays),
		zap.Int("upload_interval_hours", s.cfg.UploadIntervalHours))
}

// Stop signals shutdown and waits for both loops to exit, or until ctx is
// done. Safe to call when the scheduler was never started.
func (s *Scheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	s.started = false
	s.cancel = nil
	s.mu.Unlock()

	cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.log.Info("telemetry scheduler stopped")
	case <-ctx.Done():
		s.log.Warn("telemetry scheduler stop timed out", zap.Error(ctx.Err()))
	}
}

func (s *Scheduler) collectionLoop(ctx context.Context) {
	s.log.Info("collection loop started",
		zap.Int("interval_days", s.cfg.CollectionIntervalDays))
	for {
		interval, err := s.collectionTick(ctx)
		if err != nil {
			s.log.Error("collection tick failed", zap.Error(err))
			s.stats.IncTick(loopCollection, "error")
			interval = s.cfg.BootstrapCheckInterval
		} else {
			s.stats.IncTick(loopCollection, "ok")
		}

		select {
		case <-ctx.Done():
			s.log.Info("collection loop stopped")
			return
		case <-time.After(interval):
		}
	}
}

func (s *Scheduler) uploadLoop(ctx context.Context) {
	s.log.Info("upload loop started",
		zap.Int("interval_hours", s.cfg.UploadIntervalHours))
	for {
		interval, err := s.uploadTick(ctx)
		if err != nil {
			s.log.Error("upload tick failed", zap.Error(err))
			s.stats.IncTick(loopUpload, "error")
			interval = s.cfg.BootstrapCheckInterval
		} else {
			s.stats.IncTick(loopUpload, "ok")
		}

		select {
		case <-ctx.Done():
			s.log.Info("upload loop stopped")
			return
		case <-time.After(interval):
		}
	}
}

// collectionTick runs one pass of the collection loop and returns the
// interval to sleep before the next pass. Errors bubble up to the loop,
// which retries after the bootstrap interval.
func (s *Scheduler) collectionTick(ctx context.Context) (time.Duration, error) {
	interval := s.checkInterval(ctx)

	should, err := s.shouldCollect(ctx)
	if err != nil {
		return interval, err
	}
	if !should {
		return interval, nil
	}

	s.log.Info("starting metrics collection")
	if err := s.collectMetrics(ctx); err != nil {
		return interval, err
	}
	s.log.Info("metrics collection completed")
	return interval, nil
}

// uploadTick runs one pass of the upload loop.
func (s *Scheduler) uploadTick(ctx context.Context) (time.Duration, error) {
	interval := s.checkInterval(ctx)

	should, err := s.shouldUpload(ctx)
	if err != nil {
		return interval, err
	}
	if !should {
		return interval, nil
	}

	s.log.Info("starting metrics upload")
	if err := s.uploadPending(ctx); err != nil {
		return interval, err
	}
	s.log.Info("metrics upload completed")
	return interval, nil
}

// initialCollectionCheck collects once at startup when no batch exists, so a
// fresh installation does not wait out the collection interval.
func (s *Scheduler) initialCollectionCheck(ctx context.Context) {
	count, err := s.repo.CountBatches(ctx)
	if err != nil {
		s.log.Error("initial collection check failed", zap.Error(err))
		return
	}
	if count > 0 {
		return
	}
	s.log.Info("no existing metric batches, running initial collection")
	if err := s.collectMetrics(ctx); err != nil {
		s.log.Error("initial collection failed", zap.Error(err))
	}
}

// checkInterval picks the loop interval for the current phase: bootstrap
// until the identity is established, normal afterwards. Identity lookup
// failures fall back to the bootstrap interval.
func (s *Scheduler) checkInterval(ctx context.Context) time.Duration {
	identity, err := s.repo.GetIdentity(ctx)
	if err != nil {
		s.log.Error("identity lookup failed", zap.Error(err))
		return s.cfg.BootstrapCheckInterval
	}
	if !identity.Established() {
		s.log.Debug("identity not yet established, using bootstrap interval")
		return s.cfg.BootstrapCheckInterval
	}
	return s.cfg.NormalCheckInterval
}

// shouldCollect reports whether the collection interval has elapsed since
// the latest batch. True when no batch exists.
func (s *Scheduler) shouldCollect(ctx context.Context) (bool, error) {
	latest, err := s.repo.LatestCollected(ctx)
	if err != nil {
		return false, fmt.Errorf("latest collected: %w", err)
	}
	if latest == nil {
		return true, nil
	}
	days := int(s.now().Sub(latest.CollectedAt).Hours() / 24)
	return days >= s.cfg.CollectionIntervalDays, nil
}

// shouldUpload reports whether the upload interval has elapsed since the
// most recent upload. Before any upload has succeeded it reports true as
// soon as at least one pending batch exists.
func (s *Scheduler) shouldUpload(ctx context.Context) (bool, error) {
	latest, err := s.repo.LatestUploaded(ctx)
	if err != nil {
		return false, fmt.Errorf("latest uploaded: %w", err)
	}
	if latest == nil {
		pending, err := s.repo.CountPending(ctx)
		if err != nil {
			return false, fmt.Errorf("count pending: %w", err)
		}
		return pending > 0, nil
	}
	hours := s.now().Sub(*latest.UploadedAt).Hours()
	return hours >= float64(s.cfg.UploadIntervalHours), nil
}

// collectMetrics gathers metrics from every registered collector into one
// batch and persists it. A failing collector is logged and skipped; it never
// aborts its siblings.
func (s *Scheduler) collectMetrics(ctx context.Context) error {
	data := datatypes.JSONMap{}
	for _, c := range s.registry.All() {
		if !c.ShouldCollect() {
			continue
		}
		results, err := c.Collect(ctx)
		if err != nil {
			s.log.Error("collector failed",
				zap.String("collector", c.Name()), zap.Error(err))
			continue
		}
		for _, m := range results {
			data[m.Key] = m.Value
		}
		s.log.Info("collector finished",
			zap.String("collector", c.Name()), zap.Int("metrics", len(results)))
	}

	batch := &domain.MetricBatch{
		MetricsData: data,
		CollectedAt: s.now(),
	}
	if err := s.repo.SaveBatch(ctx, batch); err != nil {
		return fmt.Errorf("save batch: %w", err)
	}
	s.log.Info("stored metric batch",
		zap.Int64("batch_id", int64(batch.ID)), zap.Int("metrics", len(data)))
	s.updatePendingGauge(ctx)
	return nil
}

// uploadPending uploads all pending batches oldest-first. A batch failure is
// recorded on the batch and does not stop later batches; all batch mutations
// are persisted in one transaction at the end.
func (s *Scheduler) uploadPending(ctx context.Context) error {
	pending, err := s.repo.ListPending(ctx)
	if err != nil {
		return fmt.Errorf("list pending: %w", err)
	}
	if len(pending) == 0 {
		s.log.Info("no pending metric batches to upload")
		return nil
	}

	adminEmail, err := s.adminEmail(ctx)
	if err != nil {
		return fmt.Errorf("resolve admin email: %w", err)
	}
	if adminEmail == "" {
		s.log.Warn("no admin email available, skipping upload")
		return nil
	}

	identity, err := s.ensureIdentity(ctx, adminEmail)
	if err != nil {
		return fmt.Errorf("ensure identity: %w", err)
	}
	instanceID := *identity.InstanceID

	uploaded := 0
	for _, batch := range pending {
		if err := s.uploadBatch(ctx, instanceID, batch); err != nil {
			batch.UploadAttempts++
			msg := err.Error()
			batch.LastUploadError = &msg
			s.stats.IncBatchUploaded("error")
			s.log.Error("metric batch upload failed",
				zap.Int64("batch_id", int64(batch.ID)), zap.Error(err))
			continue
		}
		now := s.now()
		batch.UploadedAt = &now
		batch.UploadAttempts++
		batch.LastUploadError = nil
		uploaded++
		s.stats.IncBatchUploaded("ok")
	}

	if err := s.repo.UpdateBatches(ctx, pending); err != nil {
		return fmt.Errorf("persist upload results: %w", err)
	}
	s.log.Info("uploaded metric batches",
		zap.Int("uploaded", uploaded), zap.Int("total", len(pending)))
	s.updatePendingGauge(ctx)
	return nil
}

// uploadBatch sends every key/value of the batch individually, then reports
// the instance as running.
func (s *Scheduler) uploadBatch(ctx context.Context, instanceID string, batch *domain.MetricBatch) error {
	for key, value := range batch.MetricsData {
		if err := s.client.SendMetric(ctx, instanceID, key, value); err != nil {
			return fmt.Errorf("send metric %s: %w", key, err)
		}
	}
	if err := s.client.SetStatus(ctx, instanceID, billing.InstanceStatusRunning); err != nil {
		return fmt.Errorf("set status: %w", err)
	}
	return nil
}

// adminEmail resolves the admin email: the configured override wins,
// otherwise the earliest accepted-ToS user with an email. Returns "" when
// neither source yields one.
func (s *Scheduler) adminEmail(ctx context.Context) (string, error) {
	if s.cfg.AdminEmailOverride != "" {
		return s.cfg.AdminEmailOverride, nil
	}
	if s.users == nil {
		return "", nil
	}
	return s.users.FirstAcceptedTOSEmail(ctx)
}

// ensureIdentity returns the established identity, creating missing parts:
// the customer id comes from the billing service (admin email as fallback),
// the instance id from the billing service (locally generated as fallback).
func (s *Scheduler) ensureIdentity(ctx context.Context, adminEmail string) (*domain.Identity, error) {
	identity, err := s.repo.GetIdentity(ctx)
	if err != nil {
		return nil, err
	}
	if identity.Established() {
		return identity, nil
	}
	if identity == nil {
		identity = &domain.Identity{}
	}

	if identity.CustomerID == nil {
		customerID := adminEmail
		customer, err := s.client.GetOrCreateCustomer(ctx, adminEmail)
		if err != nil {
			s.log.Error("get or create customer failed, using admin email as customer id",
				zap.Error(err))
		} else if customer.ID != "" {
			customerID = customer.ID
		}
		identity.CustomerID = &customerID
	}

	if identity.InstanceID == nil {
		var instanceID string
		instance, err := s.client.GetOrCreateInstance(ctx, *identity.CustomerID)
		if err != nil {
			s.log.Error("get or create instance failed, generating local instance id",
				zap.Error(err))
			instanceID = uuid.NewString()
		} else {
			instanceID = instance.ID
		}
		identity.InstanceID = &instanceID
	}

	if err := s.repo.SaveIdentity(ctx, identity); err != nil {
		return nil, err
	}
	s.log.Info("telemetry identity established",
		zap.String("customer_id", *identity.CustomerID),
		zap.String("instance_id", *identity.InstanceID))
	return identity, nil
}

func (s *Scheduler) updatePendingGauge(ctx context.Context) {
	pending, err := s.repo.CountPending(ctx)
	if err != nil {
		return
	}
	s.stats.SetPendingBatches(int(pending))
}

func (s *Scheduler) now() time.Time { return s.nowFn() }
