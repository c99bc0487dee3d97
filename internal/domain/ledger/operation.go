package ledger

import "time"

// OperationRequest asks the engine to apply one deposit, withdrawal or transfer.
// The actor is ActorAccountID when set, otherwise ActorUsername.
type OperationRequest struct {
	ActorUsername          string
	ActorAccountID         int64
	Kind                   string
	Amount                 int64 // cents/minor units
	CounterpartyIdentifier string
	ExternalReference      string
	OccurredAt             time.Time
	CorrelationID          string
}

// HasExternalReference reports whether the request is subject to replay detection
func (r *OperationRequest) HasExternalReference() bool {
	return r.ExternalReference != ""
}

// OperationResult is the outcome of an applied or replayed operation
type OperationResult struct {
	Kind       Kind
	Records    []*Record // actor's record first
	NewBalance int64     // actor's balance after the operation
	Replayed   bool      // true when an earlier identical external event was found
}

// ActorRecord returns the record owned by the actor
func (r *OperationResult) ActorRecord() *Record {
	if len(r.Records) == 0 {
		return nil
	}
	return r.Records[0]
}
