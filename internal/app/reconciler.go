/**
 * @description
 * Scheduled reconciliation for activation partial failures. The job claims
 * due tasks, replays the subscription-creation edge call with the captured
 * payment's ids and backs off exponentially on failure. Tasks that exhaust
 * their attempts are flipped to failed and left for staff.
 */
package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/stormwellnessclub/member-portal/internal/domain"
	"github.com/stormwellnessclub/member-portal/pkg/edgeclient"
)

const reconcileBatchSize = 25

// ReconciliationStore is the queue side the job consumes.
type ReconciliationStore interface {
	ClaimDueTasks(ctx context.Context, limit int) ([]domain.ReconciliationTask, error)
	MarkResolved(ctx context.Context, id int64) error
	MarkAttemptFailed(ctx context.Context, id int64, attemptErr string, retryAfter time.Duration) error
}

// MemberActivator mirrors the activation locally once a task resolves, for
// the window where the backend's webhook has not landed yet.
type MemberActivator interface {
	TouchMemberActivation(ctx context.Context, memberID string, startDate time.Time) error
}

// Jobs holds the scheduled work.
type Jobs struct {
	store   ReconciliationStore
	edge    EdgeAPI
	members MemberActivator
	logger  *slog.Logger
}

// NewJobs creates the job set.
func NewJobs(store ReconciliationStore, edge EdgeAPI, members MemberActivator, logger *slog.Logger) *Jobs {
	return &Jobs{store: store, edge: edge, members: members, logger: logger}
}

// ProcessActivationReconciliation is the cron entry point.
func (j *Jobs) ProcessActivationReconciliation() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := j.reconcileOnce(ctx); err != nil {
		j.logger.Error("activation reconciliation pass failed", "error", err)
	}
}

func (j *Jobs) reconcileOnce(ctx context.Context) error {
	tasks, err := j.store.ClaimDueTasks(ctx, reconcileBatchSize)
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		return nil
	}

	for _, task := range tasks {
		// The edge function authenticates the service by API key; there is
		// no member session in this path.
		_, err := j.edge.CreateSubscriptionFromPayment(ctx, "", edgeclient.SubscriptionRequest{
			MemberID:         task.MemberID,
			Tier:             string(task.Tier),
			Gender:           string(task.Gender),
			IsFoundingMember: task.IsFoundingMember,
			StartDate:        task.StartDate.Format("2006-01-02"),
			SkipAnnualFee:    task.SkipAnnualFee,
			PaymentMethodID:  task.PaymentMethodID,
			PaymentIntentID:  task.PaymentIntentID,
		})
		if err != nil {
			reconciliationRetries.WithLabelValues("failed").Inc()
			// Attempts already count the claim in flight.
			retryAfter := retryDelay(task.Attempts)
			if markErr := j.store.MarkAttemptFailed(ctx, task.ID, err.Error(), retryAfter); markErr != nil {
				j.logger.Error("failed to record reconciliation attempt", "task_id", task.ID, "error", markErr)
			}
			j.logger.Warn("reconciliation retry failed",
				"task_id", task.ID,
				"member_id", task.MemberID,
				"attempts", task.Attempts,
				"error", err)
			continue
		}

		reconciliationRetries.WithLabelValues("resolved").Inc()
		if err := j.store.MarkResolved(ctx, task.ID); err != nil {
			j.logger.Error("failed to mark reconciliation task resolved", "task_id", task.ID, "error", err)
			continue
		}
		if j.members != nil {
			if err := j.members.TouchMemberActivation(ctx, task.MemberID, task.StartDate); err != nil {
				j.logger.Warn("failed to mirror member activation locally", "task_id", task.ID, "error", err)
			}
		}
		j.logger.Info("reconciled activation",
			"task_id", task.ID,
			"member_id", task.MemberID,
			"payment_intent_id", task.PaymentIntentID)
	}
	return nil
}

// retryDelay backs off exponentially on the number of attempts made so far,
// capped at one hour. The first failed attempt retries after a minute.
func retryDelay(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	if attempts > 12 {
		attempts = 12
	}
	delay := time.Minute * (1 << (attempts - 1))
	if delay > time.Hour {
		delay = time.Hour
	}
	return delay
}

// Scheduler manages the cron jobs.
type Scheduler struct {
	cron     *cron.Cron
	jobs     *Jobs
	logger   *slog.Logger
	schedule string
}

// NewScheduler creates a new scheduler instance.
func NewScheduler(jobs *Jobs, logger *slog.Logger, schedule string) *Scheduler {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger)))

	return &Scheduler{
		cron:     c,
		jobs:     jobs,
		logger:   logger,
		schedule: schedule,
	}
}

// Start registers the jobs and starts the cron scheduler.
func (s *Scheduler) Start() {
	if _, err := s.cron.AddFunc(s.schedule, s.jobs.ProcessActivationReconciliation); err != nil {
		s.logger.Error("failed to schedule activation reconciliation job", "error", err)
	} else {
		s.logger.Info("scheduled activation reconciliation job", "schedule", s.schedule)
	}

	s.cron.Start()
}

// Stop gracefully stops the cron scheduler.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
