package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/modern-bank-ledger/internal/domain/outbox"
	"github.com/modern-bank-ledger/internal/domain/shared"
	"github.com/modern-bank-ledger/internal/platform/persistence"
)

const outboxColumns = `id, transaction_id, account_id, payload, status, attempts, created_at, last_attempt_at`

const (
	insertOutboxSQL = `
		INSERT INTO transaction_outbox (transaction_id, account_id, payload, status, attempts, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`
	selectPendingOutboxSQL = `
		SELECT ` + outboxColumns + `
		FROM transaction_outbox
		WHERE status = $1
		ORDER BY created_at ASC, id ASC
		LIMIT $2`
	updateOutboxStatusSQL      = `UPDATE transaction_outbox SET status = $1, last_attempt_at = $2 WHERE id = $3`
	incrementOutboxAttemptsSQL = `UPDATE transaction_outbox SET attempts = attempts + 1, last_attempt_at = $1 WHERE id = $2`
)

type OutboxRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

func NewOutboxRepository(logger *slog.Logger, db *persistence.PostgresDB) outbox.Repository {
	return &OutboxRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// WithTx binds the repository to tx so ledger events commit with the records they describe
func (r *OutboxRepository) WithTx(tx pgx.Tx) outbox.Repository {
	return &OutboxRepository{
		querier: tx,
		logger:  r.logger,
	}
}

// Create stores a new outbox message in pending status
func (r *OutboxRepository) Create(ctx context.Context, message *outbox.Message) error {
	err := r.querier.QueryRow(ctx, insertOutboxSQL,
		message.TransactionID,
		message.AccountID,
		message.Payload,
		message.Status,
		message.Attempts,
		message.CreatedAt,
	).Scan(&message.ID)

	switch {
	case err == nil:
		return nil
	case persistence.IsUniqueViolation(err, "transaction_outbox_transaction_id_key"):
		return outbox.ErrDuplicateMessage{TransactionID: message.TransactionID}
	default:
		r.logger.Error("Failed to create outbox message", "transaction_id", message.TransactionID, "error", err)
		return fmt.Errorf("failed to create outbox message for %s: %w", message.TransactionID, err)
	}
}

// GetPending returns up to limit pending messages, oldest first
func (r *OutboxRepository) GetPending(ctx context.Context, limit int) ([]*outbox.Message, error) {
	rows, err := r.querier.Query(ctx, selectPendingOutboxSQL, shared.OutboxStatusPending, limit)
	if err != nil {
		r.logger.Error("Failed to get pending outbox messages", "error", err)
		return nil, fmt.Errorf("failed to get pending outbox messages: %w", err)
	}

	messages, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*outbox.Message, error) {
		return scanMessage(row)
	})
	if err != nil {
		r.logger.Error("Failed to read pending outbox messages", "error", err)
		return nil, fmt.Errorf("failed to read pending outbox messages: %w", err)
	}
	return messages, nil
}

// UpdateStatus sets the status and last attempt time of a message
func (r *OutboxRepository) UpdateStatus(ctx context.Context, id int64, status shared.OutboxStatus) error {
	return r.touch(ctx, id, "update status of", updateOutboxStatusSQL, status, time.Now().UTC(), id)
}

// IncrementAttempts records one more failed publish attempt
func (r *OutboxRepository) IncrementAttempts(ctx context.Context, id int64) error {
	return r.touch(ctx, id, "count attempt on", incrementOutboxAttemptsSQL, time.Now().UTC(), id)
}

// touch runs a single-row update of message id
func (r *OutboxRepository) touch(ctx context.Context, id int64, action, sql string, args ...any) error {
	tag, err := r.querier.Exec(ctx, sql, args...)
	if err != nil {
		r.logger.Error("Outbox update failed", "id", id, "action", action, "error", err)
		return fmt.Errorf("failed to %s outbox message %d: %w", action, id, err)
	}
	if tag.RowsAffected() == 0 {
		return outbox.ErrMessageNotFound{ID: id}
	}
	return nil
}

func scanMessage(row pgx.Row) (*outbox.Message, error) {
	var message outbox.Message
	err := row.Scan(
		&message.ID,
		&message.TransactionID,
		&message.AccountID,
		&message.Payload,
		&message.Status,
		&message.Attempts,
		&message.CreatedAt,
		&message.LastAttemptAt,
	)
	if err != nil {
		return nil, err
	}
	return &message, nil
}
