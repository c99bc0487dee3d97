package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/modern-bank-ledger/internal/domain/ledger"
	"github.com/modern-bank-ledger/internal/platform/persistence"
)

const recordColumns = `id, transaction_id, user_id, recipient_id, sender_id, transfer_id, transaction_type, amount, timestamp, external_reference, correlation_id`

const (
	insertRecordSQL = `
		INSERT INTO transactions (transaction_id, user_id, recipient_id, sender_id, transfer_id, transaction_type, amount, timestamp, external_reference, correlation_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`
	selectRecordByExternalRefSQL = `SELECT ` + recordColumns + ` FROM transactions WHERE external_reference = $1`
	selectRecordsForAccountSQL   = `
		SELECT ` + recordColumns + `
		FROM transactions
		WHERE user_id = $1 OR recipient_id = $1 OR sender_id = $1
		ORDER BY timestamp DESC, transaction_id DESC`
	sumRecordsByKindSQL = `
		SELECT transaction_type, COALESCE(SUM(ABS(amount)), 0)::BIGINT
		FROM transactions
		WHERE user_id = $1
		GROUP BY transaction_type`
)

// TransactionRepository implements ledger.Repository on the transactions table
type TransactionRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

func NewTransactionRepository(logger *slog.Logger, db *persistence.PostgresDB) ledger.Repository {
	return &TransactionRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

func (r *TransactionRepository) WithTx(tx pgx.Tx) ledger.Repository {
	return &TransactionRepository{
		querier: tx,
		logger:  r.logger,
	}
}

// Create appends record and sets its ID. A reused external reference comes
// back as ErrDuplicateExternalReference.
func (r *TransactionRepository) Create(ctx context.Context, record *ledger.Record) error {
	var correlationID *string
	if record.CorrelationID != "" {
		correlationID = &record.CorrelationID
	}

	err := r.querier.QueryRow(ctx, insertRecordSQL,
		record.TransactionID,
		record.AccountID,
		record.RecipientID,
		record.SenderID,
		record.TransferID,
		string(record.Kind),
		record.Amount,
		record.Timestamp,
		record.ExternalReference,
		correlationID,
	).Scan(&record.ID)
	if err == nil {
		return nil
	}

	switch persistence.UniqueConstraint(err) {
	case "transactions_external_reference_key":
		ref := ""
		if record.ExternalReference != nil {
			ref = *record.ExternalReference
		}
		return ledger.ErrDuplicateExternalReference{Reference: ref}
	case "transactions_transaction_id_key":
		return ledger.ErrDuplicateRecord{TransactionID: record.TransactionID}
	}

	r.logger.Error("Failed to create ledger record",
		"transaction_id", record.TransactionID.String(),
		"kind", string(record.Kind),
		"error", err,
	)
	return fmt.Errorf("failed to create ledger record: %w", err)
}

func (r *TransactionRepository) GetByExternalReference(ctx context.Context, ref string) (*ledger.Record, error) {
	record, err := scanRecord(r.querier.QueryRow(ctx, selectRecordByExternalRefSQL, ref))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error("Failed to get ledger record by external reference", "external_reference", ref, "error", err)
		return nil, fmt.Errorf("failed to get ledger record by external reference: %w", err)
	}
	return record, nil
}

func (r *TransactionRepository) ListForAccount(ctx context.Context, accountID int64) ([]*ledger.Record, error) {
	rows, err := r.querier.Query(ctx, selectRecordsForAccountSQL, accountID)
	if err != nil {
		r.logger.Error("Failed to list ledger records", "account_id", accountID, "error", err)
		return nil, fmt.Errorf("failed to list ledger records: %w", err)
	}
	defer rows.Close()

	records := make([]*ledger.Record, 0)
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			r.logger.Error("Failed to scan ledger record", "error", err)
			return nil, fmt.Errorf("failed to scan ledger record: %w", err)
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error("Error iterating over ledger records", "error", err)
		return nil, fmt.Errorf("error iterating over ledger records: %w", err)
	}

	return records, nil
}

func (r *TransactionRepository) TotalsByKind(ctx context.Context, accountID int64) (map[ledger.Kind]int64, error) {
	rows, err := r.querier.Query(ctx, sumRecordsByKindSQL, accountID)
	if err != nil {
		r.logger.Error("Failed to sum ledger records", "account_id", accountID, "error", err)
		return nil, fmt.Errorf("failed to sum ledger records: %w", err)
	}
	defer rows.Close()

	totals := make(map[ledger.Kind]int64)
	for rows.Next() {
		var (
			kind  string
			total int64
		)
		if err := rows.Scan(&kind, &total); err != nil {
			return nil, fmt.Errorf("failed to scan ledger totals: %w", err)
		}
		totals[ledger.Kind(kind)] = total
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over ledger totals: %w", err)
	}

	return totals, nil
}

func scanRecord(row pgx.Row) (*ledger.Record, error) {
	var (
		record        ledger.Record
		kind          string
		correlationID *string
	)
	err := row.Scan(
		&record.ID,
		&record.TransactionID,
		&record.AccountID,
		&record.RecipientID,
		&record.SenderID,
		&record.TransferID,
		&kind,
		&record.Amount,
		&record.Timestamp,
		&record.ExternalReference,
		&correlationID,
	)
	if err != nil {
		return nil, err
	}
	record.Kind = ledger.Kind(kind)
	record.Timestamp = record.Timestamp.UTC()
	if correlationID != nil {
		record.CorrelationID = *correlationID
	}
	return &record, nil
}
