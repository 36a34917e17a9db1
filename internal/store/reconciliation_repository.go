/**
 * @description
 * Outbox-style repository for activation reconciliation tasks. A task is
 * inserted when a payment was captured but the subscription-creation call
 * failed; the scheduler claims due tasks and retries them with exponential
 * backoff until they resolve or exhaust their attempts.
 */
package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stormwellnessclub/member-portal/internal/domain"
)

// MaxReconciliationAttempts caps retries before a task is marked failed and
// left for staff.
const MaxReconciliationAttempts = 10

// staleClaimAfterSeconds is how long a claimed task may sit in processing
// before another scheduler may reclaim it (crashed worker recovery).
const staleClaimAfterSeconds = 600

// ReconciliationRepository handles the activation_reconciliation queue.
type ReconciliationRepository struct {
	db *pgxpool.Pool
}

// NewReconciliationRepository creates a new reconciliation repository.
func NewReconciliationRepository(db *pgxpool.Pool) *ReconciliationRepository {
	return &ReconciliationRepository{db: db}
}

// InsertTask enqueues a reconciliation task for a partial failure. Inserting
// twice for the same payment intent is a no-op, so the activation flow can
// enqueue without first checking.
func (r *ReconciliationRepository) InsertTask(ctx context.Context, task domain.ReconciliationTask) error {
	_, err := r.db.Exec(ctx, `
        INSERT INTO activation_reconciliation
            (member_id, tier, gender, is_founding_member, start_date, skip_annual_fee,
             payment_method_id, payment_intent_id, status, attempts, next_attempt_at, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 0, NOW(), NOW())
        ON CONFLICT (payment_intent_id) DO NOTHING
    `,
		task.MemberID,
		string(task.Tier),
		string(task.Gender),
		task.IsFoundingMember,
		task.StartDate,
		task.SkipAnnualFee,
		task.PaymentMethodID,
		task.PaymentIntentID,
		domain.ReconciliationPending,
	)
	return err
}

// ClaimDueTasks atomically claims pending tasks whose next attempt time has
// passed, flipping them to processing so overlapping scheduler passes (or a
// second portal instance) never replay the same task. Claims abandoned by a
// crashed worker become reclaimable after staleClaimAfterSeconds. The
// returned attempt counts include the claim being made.
func (r *ReconciliationRepository) ClaimDueTasks(ctx context.Context, limit int) ([]domain.ReconciliationTask, error) {
	rows, err := r.db.Query(ctx, `
        WITH due AS (
            SELECT id
            FROM activation_reconciliation
            WHERE (
                (status = 'pending' AND next_attempt_at <= NOW())
                OR (status = 'processing' AND claimed_at < NOW() - ($2 * INTERVAL '1 second'))
            )
            ORDER BY next_attempt_at
            LIMIT $1
            FOR UPDATE SKIP LOCKED
        )
        UPDATE activation_reconciliation AS t
        SET status = 'processing',
            claimed_at = NOW(),
            attempts = t.attempts + 1
        FROM due
        WHERE t.id = due.id
        RETURNING t.id, t.member_id, t.tier, t.gender, t.is_founding_member, t.start_date,
                  t.skip_annual_fee, t.payment_method_id, t.payment_intent_id, t.attempts,
                  COALESCE(t.last_error, ''), t.status, t.next_attempt_at, t.created_at
    `, limit, staleClaimAfterSeconds)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []domain.ReconciliationTask
	for rows.Next() {
		var t domain.ReconciliationTask
		if err := rows.Scan(
			&t.ID,
			&t.MemberID,
			&t.Tier,
			&t.Gender,
			&t.IsFoundingMember,
			&t.StartDate,
			&t.SkipAnnualFee,
			&t.PaymentMethodID,
			&t.PaymentIntentID,
			&t.Attempts,
			&t.LastError,
			&t.Status,
			&t.NextAttemptAt,
			&t.CreatedAt,
		); err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// MarkResolved finishes a task whose subscription creation finally succeeded.
func (r *ReconciliationRepository) MarkResolved(ctx context.Context, id int64) error {
	_, err := r.db.Exec(ctx, `
        UPDATE activation_reconciliation
        SET status = $2, resolved_at = NOW(), claimed_at = NULL
        WHERE id = $1
    `, id, domain.ReconciliationResolved)
	return err
}

// MarkAttemptFailed releases a claimed task back to pending and schedules the
// next attempt. The attempt itself was already counted at claim time; tasks
// that exhaust their attempts flip to failed instead.
func (r *ReconciliationRepository) MarkAttemptFailed(ctx context.Context, id int64, attemptErr string, retryAfter time.Duration) error {
	_, err := r.db.Exec(ctx, `
        UPDATE activation_reconciliation
        SET last_error = $2,
            next_attempt_at = NOW() + $3::interval,
            claimed_at = NULL,
            status = CASE WHEN attempts >= $4 THEN 'failed' ELSE 'pending' END
        WHERE id = $1
    `, id, attemptErr, retryAfter.String(), MaxReconciliationAttempts)
	return err
}

// ResolveByPaymentIntent resolves any unresolved task for the given payment
// intent, whether it is waiting or mid-claim. Used by the webhook handler
// when the provider reports the setup completed asynchronously.
func (r *ReconciliationRepository) ResolveByPaymentIntent(ctx context.Context, paymentIntentID string) (bool, error) {
	tag, err := r.db.Exec(ctx, `
        UPDATE activation_reconciliation
        SET status = $2, resolved_at = NOW(), claimed_at = NULL
        WHERE payment_intent_id = $1 AND status IN ($3, $4)
    `, paymentIntentID, domain.ReconciliationResolved, domain.ReconciliationPending, domain.ReconciliationProcessing)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
