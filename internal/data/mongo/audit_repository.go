// Package mongo keeps the audit projection of the ledger. Documents are
// written once per committed record by the ledger relay and never modified.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/modern-bank-ledger/internal/domain/ledger"
	"github.com/modern-bank-ledger/internal/platform/persistence"
)

// auditEntry is the stored shape of a ledger record. Identifiers are kept as
// strings so the collection stays readable from the mongo shell.
type auditEntry struct {
	RecordID          int64     `bson:"record_id"`
	TransactionID     string    `bson:"transaction_id"`
	AccountID         int64     `bson:"account_id"`
	RecipientID       *int64    `bson:"recipient_id,omitempty"`
	SenderID          *int64    `bson:"sender_id,omitempty"`
	TransferID        string    `bson:"transfer_id,omitempty"`
	Kind              string    `bson:"kind"`
	Amount            int64     `bson:"amount"`
	Timestamp         time.Time `bson:"timestamp"`
	ExternalReference *string   `bson:"external_reference,omitempty"`
	CorrelationID     string    `bson:"correlation_id,omitempty"`
	ProjectedAt       time.Time `bson:"projected_at"`
}

func toAuditEntry(r *ledger.Record) auditEntry {
	entry := auditEntry{
		RecordID:          r.ID,
		TransactionID:     r.TransactionID.String(),
		AccountID:         r.AccountID,
		RecipientID:       r.RecipientID,
		SenderID:          r.SenderID,
		Kind:              string(r.Kind),
		Amount:            r.Amount,
		Timestamp:         r.Timestamp.UTC(),
		ExternalReference: r.ExternalReference,
		CorrelationID:     r.CorrelationID,
		ProjectedAt:       time.Now().UTC(),
	}
	if r.TransferID != nil {
		entry.TransferID = r.TransferID.String()
	}
	return entry
}

func (e auditEntry) toRecord() (*ledger.Record, error) {
	txID, err := uuid.Parse(e.TransactionID)
	if err != nil {
		return nil, fmt.Errorf("invalid transaction_id %q: %w", e.TransactionID, err)
	}
	record := &ledger.Record{
		ID:                e.RecordID,
		TransactionID:     txID,
		AccountID:         e.AccountID,
		RecipientID:       e.RecipientID,
		SenderID:          e.SenderID,
		Kind:              ledger.Kind(e.Kind),
		Amount:            e.Amount,
		Timestamp:         e.Timestamp.UTC(),
		ExternalReference: e.ExternalReference,
		CorrelationID:     e.CorrelationID,
	}
	if e.TransferID != "" {
		transferID, err := uuid.Parse(e.TransferID)
		if err != nil {
			return nil, fmt.Errorf("invalid transfer_id %q: %w", e.TransferID, err)
		}
		record.TransferID = &transferID
	}
	return record, nil
}

// AuditRepository implements ledger.AuditRepository for MongoDB
type AuditRepository struct {
	collection *mongo.Collection
	logger     *slog.Logger
}

// NewAuditRepository creates the audit ledger repository on db
func NewAuditRepository(logger *slog.Logger, db *mongo.Database) ledger.AuditRepository {
	return &AuditRepository{
		collection: db.Collection(persistence.LedgerEntriesCollection),
		logger:     logger,
	}
}

// Create stores the audit copy of record. The unique index on transaction_id
// turns a second projection of the same record into ErrDuplicateRecord.
func (r *AuditRepository) Create(ctx context.Context, record *ledger.Record) error {
	_, err := r.collection.InsertOne(ctx, toAuditEntry(record))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ledger.ErrDuplicateRecord{TransactionID: record.TransactionID}
		}
		r.logger.Error("Failed to create audit entry",
			"transaction_id", record.TransactionID.String(),
			"error", err)
		return fmt.Errorf("failed to create audit entry: %w", err)
	}

	return nil
}

// GetByTransactionID returns ErrRecordNotFound when the record was not projected yet
func (r *AuditRepository) GetByTransactionID(ctx context.Context, transactionID uuid.UUID) (*ledger.Record, error) {
	filter := bson.M{"transaction_id": transactionID.String()}

	var entry auditEntry
	err := r.collection.FindOne(ctx, filter).Decode(&entry)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ledger.ErrRecordNotFound{TransactionID: transactionID}
		}
		r.logger.Error("Failed to get audit entry",
			"transaction_id", transactionID.String(),
			"error", err)
		return nil, fmt.Errorf("failed to get audit entry: %w", err)
	}

	return entry.toRecord()
}

