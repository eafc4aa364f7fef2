package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/itstheanurag/coderunner/internal/events"
	"github.com/itstheanurag/coderunner/internal/executor"
	"github.com/itstheanurag/coderunner/internal/jobs"
	"github.com/itstheanurag/coderunner/internal/metrics"
	"github.com/itstheanurag/coderunner/internal/queue"
)

type Executor interface {
	Execute(ctx context.Context, opts executor.ExecuteOptions) (*executor.Report, error)
	RunOnce(ctx context.Context, opts executor.RunOptions) (*executor.RunReport, error)
}

type Worker struct {
	id        int
	executor  Executor
	manager   *queue.Manager
	store     jobs.Store
	publisher events.Publisher
	logger    *zerolog.Logger
}

func NewWorker(id int, exec Executor, manager *queue.Manager, store jobs.Store, publisher events.Publisher, logger *zerolog.Logger) *Worker {
	return &Worker{
		id:        id,
		executor:  exec,
		manager:   manager,
		store:     store,
		publisher: publisher,
		logger:    logger,
	}
}

func (w *Worker) Start(ctx context.Context) {
	w.logger.Info().Int("worker_id", w.id).Msg("worker started")
	for {
		select {
		case job := <-w.manager.NextJob():
			w.manager.UpdateQueueMetric()
			metrics.ActiveWorkers.Inc()
			w.processJob(job)
			metrics.ActiveWorkers.Dec()
		case <-ctx.Done():
			w.logger.Info().Int("worker_id", w.id).Msg("worker stopping")
			return
		}
	}
}

func (w *Worker) processJob(job *queue.Job) {
	log := w.logger.With().Int("worker_id", w.id).Str("job_id", job.ID).Logger()

	// the caller may have given up while the job sat in the queue
	if err := job.Ctx.Err(); err != nil {
		log.Info().Err(err).Msg("skipping abandoned job")
		job.Err <- err
		return
	}
	log.Info().Str("language", job.Language()).Msg("processing job")

	if job.Run != nil {
		report, err := w.executor.RunOnce(job.Ctx, *job.Run)
		if err != nil {
			log.Error().Err(err).Msg("test run failed")
			job.Err <- err
			return
		}
		job.RunResult <- report
		return
	}

	w.markRunning(job, &log)
	report, err := w.executor.Execute(job.Ctx, *job.Execute)
	if err != nil {
		log.Error().Err(err).Msg("execution failed")
		w.markFailed(job, err, &log)
		job.Err <- err
		return
	}
	w.markCompleted(job, report, &log)
	w.publish(report, &log)
	job.Result <- report
}

func (w *Worker) markRunning(job *queue.Job, log *zerolog.Logger) {
	if !job.Async {
		return
	}
	w.update(job.ID, log, func(rec *jobs.Job) {
		now := time.Now().UTC()
		rec.State = jobs.StateRunning
		rec.StartedAt = &now
	})
}

func (w *Worker) markCompleted(job *queue.Job, report *executor.Report, log *zerolog.Logger) {
	if !job.Async {
		return
	}
	w.update(job.ID, log, func(rec *jobs.Job) {
		now := time.Now().UTC()
		rec.State = jobs.StateCompleted
		rec.Report = report
		rec.CompletedAt = &now
	})
}

func (w *Worker) markFailed(job *queue.Job, cause error, log *zerolog.Logger) {
	if !job.Async {
		return
	}
	w.update(job.ID, log, func(rec *jobs.Job) {
		now := time.Now().UTC()
		rec.State = jobs.StateFailed
		rec.Error = cause.Error()
		rec.CompletedAt = &now
	})
}

func (w *Worker) update(id string, log *zerolog.Logger, mutate func(*jobs.Job)) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	rec, err := w.store.Get(ctx, id)
	if err != nil {
		log.Error().Err(err).Msg("failed to load job record")
		return
	}
	mutate(&rec)
	if err := w.store.Save(ctx, rec); err != nil {
		log.Error().Err(err).Str("state", string(rec.State)).Msg("failed to save job record")
	}
}

func (w *Worker) publish(report *executor.Report, log *zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := w.publisher.Publish(ctx, report); err != nil {
		metrics.ReportsPublished.WithLabelValues("error").Inc()
		log.Warn().Err(err).Msg("failed to publish report")
		return
	}
	metrics.ReportsPublished.WithLabelValues("ok").Inc()
}
