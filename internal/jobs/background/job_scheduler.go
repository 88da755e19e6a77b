package background

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"medkit/internal/logger"
	"medkit/internal/models"
)

const (
	JobDiscardRateWarmup = "discard-rate-warmup"
	JobSnapshotExport    = "snapshot-export"
)

type DiscardRateRefresher interface {
	Refresh(ctx context.Context, months int) error
}

type SnapshotExporter interface {
	Export(ctx context.Context, format models.ExportFormat) (*models.ExportResult, error)
}

type Config struct {
	RefreshInterval time.Duration
	RefreshMonths   int
	// ExportCron is a five-field crontab in UTC; empty disables the export.
	ExportCron   string
	ExportFormat models.ExportFormat
	Timeout      time.Duration
}

// JobScheduler runs the periodic read-side jobs. None of them mutate
// lifecycle state.
type JobScheduler struct {
	scheduler gocron.Scheduler
	rates     DiscardRateRefresher
	exporter  SnapshotExporter
	cfg       Config
	jobs      map[string]gocron.Job
	mu        sync.RWMutex
}

func NewJobScheduler(cfg Config, rates DiscardRateRefresher, exporter SnapshotExporter) (*JobScheduler, error) {
	scheduler, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}

	js := &JobScheduler{
		scheduler: scheduler,
		rates:     rates,
		exporter:  exporter,
		cfg:       cfg,
		jobs:      make(map[string]gocron.Job),
	}
	if err := js.registerJobs(); err != nil {
		_ = scheduler.Shutdown()
		return nil, err
	}
	return js, nil
}

func (js *JobScheduler) Start() {
	logger.Info(context.Background(), "starting background job scheduler", logger.Strings("jobs", js.Jobs()))
	js.scheduler.Start()
}

func (js *JobScheduler) Stop() error {
	logger.Info(context.Background(), "stopping background job scheduler")
	return js.scheduler.Shutdown()
}

func (js *JobScheduler) registerJobs() error {
	if js.rates != nil && js.cfg.RefreshInterval > 0 {
		job, err := js.scheduler.NewJob(
			gocron.DurationJob(js.cfg.RefreshInterval),
			gocron.NewTask(js.refreshDiscardRates),
			gocron.WithName(JobDiscardRateWarmup),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
			gocron.WithStartAt(gocron.WithStartImmediately()),
		)
		if err != nil {
			return fmt.Errorf("register %s: %w", JobDiscardRateWarmup, err)
		}
		js.jobs[JobDiscardRateWarmup] = job
	}

	if js.exporter != nil && js.cfg.ExportCron != "" {
		job, err := js.scheduler.NewJob(
			gocron.CronJob(js.cfg.ExportCron, false),
			gocron.NewTask(js.exportSnapshot),
			gocron.WithName(JobSnapshotExport),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			return fmt.Errorf("register %s: %w", JobSnapshotExport, err)
		}
		js.jobs[JobSnapshotExport] = job
	}
	return nil
}

func (js *JobScheduler) refreshDiscardRates() error {
	ctx, cancel := context.WithTimeout(context.Background(), js.cfg.Timeout)
	defer cancel()

	if err := js.rates.Refresh(ctx, js.cfg.RefreshMonths); err != nil {
		logger.Error(ctx, "discard rate warmup failed", logger.Int("months", js.cfg.RefreshMonths), logger.ErrorF(err))
		return err
	}
	logger.Debug(ctx, "discard rate cache warmed", logger.Int("months", js.cfg.RefreshMonths))
	return nil
}

func (js *JobScheduler) exportSnapshot() error {
	ctx, cancel := context.WithTimeout(context.Background(), js.cfg.Timeout)
	defer cancel()

	res, err := js.exporter.Export(ctx, js.cfg.ExportFormat)
	if err != nil {
		logger.Error(ctx, "scheduled snapshot export failed", logger.ErrorF(err))
		return err
	}
	logger.Info(ctx, "scheduled snapshot export finished", logger.String("object", res.ObjectName))
	return nil
}

// RunNow triggers a registered job outside its schedule.
func (js *JobScheduler) RunNow(name string) error {
	js.mu.RLock()
	job, ok := js.jobs[name]
	js.mu.RUnlock()
	if !ok {
		return fmt.Errorf("unknown job %q", name)
	}
	return job.RunNow()
}

// Jobs lists the registered job names, sorted.
func (js *JobScheduler) Jobs() []string {
	js.mu.RLock()
	defer js.mu.RUnlock()

	names := make([]string, 0, len(js.jobs))
	for name := range js.jobs {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// GetJobStatus reports the registered jobs and their next run, for the
// detailed health endpoint.
func (js *JobScheduler) GetJobStatus() map[string]any {
	js.mu.RLock()
	defer js.mu.RUnlock()

	next := make(map[string]string, len(js.jobs))
	for name, job := range js.jobs {
		if t, err := job.NextRun(); err == nil && !t.IsZero() {
			next[name] = t.UTC().Format(time.RFC3339)
		}
	}
	return map[string]any{
		"total_jobs": len(js.jobs),
		"next_runs":  next,
	}
}
