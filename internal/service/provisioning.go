package service

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"

	"github.com/caremesh-solutions/caremesh-backend/internal/model"
	"github.com/caremesh-solutions/caremesh-backend/internal/monitoring"
	"github.com/caremesh-solutions/caremesh-backend/internal/store"
)

// ProvisionJob carries everything the worker needs to stand up one tenant
// schema.
type ProvisionJob struct {
	Tenant     *model.Tenant
	Schema     string
	URL        string
	Owner      model.User
	CenterName string
	Address    string
}

// ProvisioningService runs tenant provisioning in the background: schema
// creation, template migrations, seed data, status flip, and a pool warm-up
// so the first request for the new tenant does not pay the dial cost.
type ProvisioningService struct {
	repo           OnboardStore
	pool           ConnPool
	migrationsPath string
	jobs           chan ProvisionJob
	stopped        chan struct{}
}

// NewProvisioningService creates the service and starts its worker.
func NewProvisioningService(repo OnboardStore, pool ConnPool, migrationsPath string) *ProvisioningService {
	ps := &ProvisioningService{
		repo:           repo,
		pool:           pool,
		migrationsPath: migrationsPath,
		jobs:           make(chan ProvisionJob, 10),
		stopped:        make(chan struct{}),
	}
	go ps.startProvisioningWorker()
	return ps
}

// QueueForProvisioning adds a tenant to the provisioning queue.
func (ps *ProvisioningService) QueueForProvisioning(job ProvisionJob) {
	ps.jobs <- job
}

// Close drains the queue and stops the worker.
func (ps *ProvisioningService) Close() {
	close(ps.jobs)
	<-ps.stopped
}

func (ps *ProvisioningService) startProvisioningWorker() {
	defer close(ps.stopped)
	for job := range ps.jobs {
		log.Info().Str("tenant_id", job.Tenant.ID.String()).Str("schema", job.Schema).Msg("Starting provisioning process")
		start := time.Now()
		if err := ps.provisionTenant(job); err != nil {
			log.Error().Err(err).Str("tenant_id", job.Tenant.ID.String()).Msg("Provisioning failed")
			monitoring.TenantsProvisioned.WithLabelValues("error").Inc()
			monitoring.MockAlert("tenant provisioning failed", job.Tenant.Code, map[string]string{
				"tenant_id": job.Tenant.ID.String(),
				"schema":    job.Schema,
			})
			continue
		}
		monitoring.TenantsProvisioned.WithLabelValues("active").Inc()
		monitoring.ProvisioningDuration.Observe(time.Since(start).Seconds())
	}
}

func (ps *ProvisioningService) provisionTenant(job ProvisionJob) error {
	ctx := context.Background()
	tenant := job.Tenant

	if err := ps.repo.CreateProvisioningLog(ctx, tenant.ID, "init", "pending", nil); err != nil {
		return err
	}

	if err := ps.createSchema(ctx, job); err != nil {
		ps.fail(ctx, tenant, "schema", err)
		return err
	}
	if err := ps.repo.CreateProvisioningLog(ctx, tenant.ID, "schema", "success", map[string]interface{}{"schema": job.Schema}); err != nil {
		return err
	}

	if err := ps.migrateSchema(job); err != nil {
		ps.fail(ctx, tenant, "migrate", err)
		return err
	}
	if err := ps.repo.CreateProvisioningLog(ctx, tenant.ID, "migrate", "success", nil); err != nil {
		return err
	}

	if err := ps.seedSchema(ctx, job); err != nil {
		ps.fail(ctx, tenant, "seed", err)
		return err
	}
	if err := ps.repo.CreateProvisioningLog(ctx, tenant.ID, "seed", "success", map[string]interface{}{"owner": job.Owner.Email}); err != nil {
		return err
	}

	if err := ps.repo.UpdateStatus(ctx, tenant.ID, model.TenantStatusActive, true); err != nil {
		return err
	}
	tenant.Status = model.TenantStatusActive
	tenant.Provisioned = true

	// Warm the pool so the tenant's first request reuses a live handle.
	if ps.pool != nil {
		if _, err := ps.pool.Get(ctx, job.URL); err != nil {
			log.Warn().Err(err).Str("tenant_code", tenant.Code).Msg("Pool warm-up failed")
		} else {
			ps.pool.Release(job.URL)
		}
	}

	log.Info().Str("tenant_code", tenant.Code).Msg("Tenant provisioned")
	return nil
}

func (ps *ProvisioningService) fail(ctx context.Context, tenant *model.Tenant, step string, cause error) {
	ps.repo.CreateProvisioningLog(ctx, tenant.ID, step, "failed", map[string]interface{}{"error": cause.Error()})
	if err := ps.repo.UpdateStatus(ctx, tenant.ID, model.TenantStatusError, false); err != nil {
		log.Error().Err(err).Str("tenant_id", tenant.ID.String()).Msg("Failed to mark tenant as errored")
	}
	tenant.Status = model.TenantStatusError
}

func (ps *ProvisioningService) createSchema(ctx context.Context, job ProvisionJob) error {
	conn, err := pgx.Connect(ctx, job.URL)
	if err != nil {
		return fmt.Errorf("connect tenant cluster: %w", err)
	}
	defer conn.Close(ctx)

	_, err = conn.Exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", pgx.Identifier{job.Schema}.Sanitize()))
	return err
}

func (ps *ProvisioningService) migrateSchema(job ProvisionJob) error {
	m, err := migrate.New("file://"+ps.migrationsPath, job.URL)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply tenant migrations: %w", err)
	}
	return nil
}

func (ps *ProvisioningService) seedSchema(ctx context.Context, job ProvisionJob) error {
	conn, err := pgx.Connect(ctx, job.URL)
	if err != nil {
		return fmt.Errorf("connect tenant schema: %w", err)
	}
	defer conn.Close(ctx)

	owner := job.Owner
	return store.SeedTenant(ctx, conn, job.CenterName, job.Address, &owner)
}
