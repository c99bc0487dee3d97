package components

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/modern-bank-ledger/internal/domain/account"
	"github.com/modern-bank-ledger/internal/domain/ledger"
	"github.com/modern-bank-ledger/internal/domain/outbox"
	"github.com/modern-bank-ledger/internal/domain/shared"
)

// memStore is a serializable in-memory stand-in for the three ledger tables.
// A transaction holds mu from begin to commit, and a failed one restores
// the snapshot taken at begin.
type memStore struct {
	mu       sync.Mutex
	accounts map[int64]*account.Account
	records  []*ledger.Record
	messages []*outbox.Message
	nextID   int64

	failOutbox bool
}

func newMemStore() *memStore {
	return &memStore{accounts: make(map[int64]*account.Account)}
}

func (s *memStore) addAccount(username string) *account.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	acc := &account.Account{
		ID:            s.nextID,
		Username:      username,
		AccountNumber: fmt.Sprintf("%010d", 1000000000+s.nextID),
	}
	s.accounts[acc.ID] = acc
	return acc
}

func (s *memStore) balance(id int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accounts[id].Balance
}

func (s *memStore) recordsFor(id int64) []*ledger.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*ledger.Record
	for _, r := range s.records {
		if r.AccountID == id {
			out = append(out, r)
		}
	}
	return out
}

func (s *memStore) recordCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func (s *memStore) messageCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

type memSnapshot struct {
	balances map[int64]int64
	records  int
	messages int
}

func (s *memStore) snapshot() memSnapshot {
	snap := memSnapshot{balances: make(map[int64]int64, len(s.accounts)), records: len(s.records), messages: len(s.messages)}
	for id, acc := range s.accounts {
		snap.balances[id] = acc.Balance
	}
	return snap
}

func (s *memStore) restore(snap memSnapshot) {
	for id, balance := range snap.balances {
		s.accounts[id].Balance = balance
	}
	s.records = s.records[:snap.records]
	s.messages = s.messages[:snap.messages]
}

type memTxRunner struct {
	store *memStore
}

func (r *memTxRunner) ExecuteTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	snap := r.store.snapshot()
	if err := fn(nil); err != nil {
		r.store.restore(snap)
		return err
	}
	return nil
}

// guard locks the store for calls made outside ExecuteTx
func guard(s *memStore, inTx bool) func() {
	if inTx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

type memAccountRepo struct {
	store *memStore
	inTx  bool
}

func (r *memAccountRepo) Create(ctx context.Context, acc *account.Account) error {
	return errors.New("not supported")
}

func (r *memAccountRepo) GetByID(ctx context.Context, id int64) (*account.Account, error) {
	defer guard(r.store, r.inTx)()
	acc, ok := r.store.accounts[id]
	if !ok {
		return nil, account.NotFoundByID(id)
	}
	clone := *acc
	return &clone, nil
}

func (r *memAccountRepo) GetByUsername(ctx context.Context, username string) (*account.Account, error) {
	defer guard(r.store, r.inTx)()
	for _, acc := range r.store.accounts {
		if acc.Username == username {
			clone := *acc
			return &clone, nil
		}
	}
	return nil, account.ErrAccountNotFound{Identifier: username}
}

func (r *memAccountRepo) GetByIdentifier(ctx context.Context, identifier string) (*account.Account, error) {
	defer guard(r.store, r.inTx)()
	var byName *account.Account
	for _, acc := range r.store.accounts {
		if acc.AccountNumber == identifier {
			clone := *acc
			return &clone, nil
		}
		if strings.EqualFold(acc.Username, identifier) {
			byName = acc
		}
	}
	if byName == nil {
		return nil, account.ErrAccountNotFound{Identifier: identifier}
	}
	clone := *byName
	return &clone, nil
}

func (r *memAccountRepo) GetByPhoneNumber(ctx context.Context, phone string) (*account.Account, error) {
	return nil, account.ErrAccountNotFound{Identifier: phone}
}

func (r *memAccountRepo) FindIdentityConflict(ctx context.Context, username, email string, phone *string) (*account.Account, error) {
	return nil, nil
}

func (r *memAccountRepo) ExistsByAccountNumber(ctx context.Context, accountNumber string) (bool, error) {
	return false, nil
}

func (r *memAccountRepo) AdjustBalance(ctx context.Context, id int64, delta int64) (int64, error) {
	defer guard(r.store, r.inTx)()
	acc, ok := r.store.accounts[id]
	if !ok {
		return 0, account.NotFoundByID(id)
	}
	if acc.Balance+delta < 0 {
		return 0, account.ErrInsufficientFunds
	}
	acc.Balance += delta
	return acc.Balance, nil
}

func (r *memAccountRepo) LockForUpdate(ctx context.Context, wait time.Duration, ids ...int64) ([]*account.Account, error) {
	defer guard(r.store, r.inTx)()
	sorted := append([]int64(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	locked := make([]*account.Account, 0, len(sorted))
	for _, id := range sorted {
		acc, ok := r.store.accounts[id]
		if !ok {
			return nil, account.NotFoundByID(id)
		}
		clone := *acc
		locked = append(locked, &clone)
	}
	return locked, nil
}

func (r *memAccountRepo) WithTx(tx pgx.Tx) account.Repository {
	return &memAccountRepo{store: r.store, inTx: true}
}

type memLedgerRepo struct {
	store *memStore
	inTx  bool
}

func (r *memLedgerRepo) Create(ctx context.Context, record *ledger.Record) error {
	defer guard(r.store, r.inTx)()
	for _, existing := range r.store.records {
		if existing.TransactionID == record.TransactionID {
			return ledger.ErrDuplicateRecord{TransactionID: record.TransactionID}
		}
		if record.ExternalReference != nil && existing.ExternalReference != nil &&
			*existing.ExternalReference == *record.ExternalReference {
			return ledger.ErrDuplicateExternalReference{Reference: *record.ExternalReference}
		}
	}
	clone := *record
	clone.ID = int64(len(r.store.records) + 1)
	record.ID = clone.ID
	r.store.records = append(r.store.records, &clone)
	return nil
}

func (r *memLedgerRepo) GetByExternalReference(ctx context.Context, ref string) (*ledger.Record, error) {
	defer guard(r.store, r.inTx)()
	for _, existing := range r.store.records {
		if existing.ExternalReference != nil && *existing.ExternalReference == ref {
			return existing, nil
		}
	}
	return nil, nil
}

func (r *memLedgerRepo) ListForAccount(ctx context.Context, accountID int64) ([]*ledger.Record, error) {
	return r.store.recordsFor(accountID), nil
}

func (r *memLedgerRepo) TotalsByKind(ctx context.Context, accountID int64) (map[ledger.Kind]int64, error) {
	totals := make(map[ledger.Kind]int64)
	for _, rec := range r.store.recordsFor(accountID) {
		totals[rec.Kind] += rec.Magnitude()
	}
	return totals, nil
}

func (r *memLedgerRepo) WithTx(tx pgx.Tx) ledger.Repository {
	return &memLedgerRepo{store: r.store, inTx: true}
}

type memOutboxRepo struct {
	store *memStore
	inTx  bool
}

var errOutboxUnavailable = errors.New("outbox unavailable")

func (r *memOutboxRepo) Create(ctx context.Context, message *outbox.Message) error {
	defer guard(r.store, r.inTx)()
	if r.store.failOutbox {
		return errOutboxUnavailable
	}
	message.ID = int64(len(r.store.messages) + 1)
	r.store.messages = append(r.store.messages, message)
	return nil
}

func (r *memOutboxRepo) GetPending(ctx context.Context, limit int) ([]*outbox.Message, error) {
	return nil, nil
}

func (r *memOutboxRepo) UpdateStatus(ctx context.Context, id int64, status shared.OutboxStatus) error {
	return nil
}

func (r *memOutboxRepo) IncrementAttempts(ctx context.Context, id int64) error {
	return nil
}

func (r *memOutboxRepo) WithTx(tx pgx.Tx) outbox.Repository {
	return &memOutboxRepo{store: r.store, inTx: true}
}
