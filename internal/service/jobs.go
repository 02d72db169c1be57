package service

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ledgerd/internal/invoice"
)

// SubmitAsync queues a document for background processing and returns the
// tracking job immediately. The job moves queued -> processing -> complete
// or error; on completion it carries the persisted invoice id.
func (s *Service) SubmitAsync(ctx context.Context, raw []byte) (*invoice.Job, error) {
	job := &invoice.Job{Status: invoice.JobQueued}
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, err
	}
	go s.runJob(job.ID, raw)
	return job, nil
}

// JobStatus returns the current state of a submission job.
func (s *Service) JobStatus(ctx context.Context, id uuid.UUID) (*invoice.Job, error) {
	return s.jobs.Get(ctx, id)
}

// runJob processes one queued submission. It runs detached from the
// submitting request's context, bounded by the service job timeout.
func (s *Service) runJob(jobID uuid.UUID, raw []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), s.jobTimeout)
	defer cancel()

	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		s.logger.Error("job lookup failed", zap.String("job_id", jobID.String()), zap.Error(err))
		return
	}

	job.Status = invoice.JobProcessing
	if err := s.jobs.Update(ctx, job); err != nil {
		s.logger.Error("job update failed", zap.String("job_id", jobID.String()), zap.Error(err))
		return
	}

	inv, err := s.Submit(ctx, raw)
	if err != nil {
		job.Status = invoice.JobError
		job.ErrorMessage = err.Error()
	} else {
		job.Status = invoice.JobComplete
		job.InvoiceID = &inv.ID
	}
	if err := s.jobs.Update(ctx, job); err != nil {
		s.logger.Error("job update failed", zap.String("job_id", jobID.String()), zap.Error(err))
	}
}
