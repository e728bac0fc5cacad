package orders

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/ethereum/go-ethereum/common"
)

// Store is the persistence interface the ledger runs on. Records are
// raw JSON; the ledger owns the typed view. Implementations live in
// pkg/storage (Pebble) and in tests (in-memory map).
type Store interface {
	// LoadIndex returns the order index for (type, account); ok is false
	// when the account has never held an order of that type.
	LoadIndex(typ OrderType, account common.Address) (idx OrderIndex, ok bool, err error)
	SaveIndex(typ OrderType, account common.Address, idx OrderIndex) error

	// LoadRecord returns the raw order record, or ok=false when absent.
	// Records persist forever; finishing an order never deletes it.
	LoadRecord(typ OrderType, account common.Address, id uint64) (data []byte, ok bool, err error)
	SaveRecord(typ OrderType, account common.Address, id uint64, data []byte) error

	// Accounts scans accounts holding an index of the given type in
	// ascending address order, starting strictly after startAfter when
	// non-nil, returning at most limit addresses.
	Accounts(typ OrderType, startAfter *common.Address, limit int) ([]common.Address, error)

	LoadServiceConfig() (cfg ServiceConfig, ok bool, err error)
	SaveServiceConfig(cfg ServiceConfig) error
}

// Ledger is the shared per-account, per-type order bookkeeping: the
// active-id list with its monotone next-id counter, plus the order
// records themselves. The ledger is exclusively owned by one service
// instance; it performs no internal locking (callers serialize).
type Ledger struct {
	store     Store
	maxOrders int
}

func NewLedger(store Store, maxOrders int) *Ledger {
	return &Ledger{store: store, maxOrders: maxOrders}
}

// Register allocates the next order id for (type, account) and appends
// it to the active list. Fails with ErrMaxOrderCountExceed when the
// account already holds maxOrders active orders of this type.
func (l *Ledger) Register(typ OrderType, account common.Address) (uint64, error) {
	idx, _, err := l.store.LoadIndex(typ, account)
	if err != nil {
		return 0, err
	}
	if len(idx.ActiveIDs) >= l.maxOrders {
		return 0, fmt.Errorf("%w: %d active %s orders", ErrMaxOrderCountExceed, len(idx.ActiveIDs), typ)
	}
	id := idx.NextID
	idx.ActiveIDs = append(idx.ActiveIDs, id)
	idx.NextID++
	if err := l.store.SaveIndex(typ, account, idx); err != nil {
		return 0, err
	}
	return id, nil
}

// Retire removes id from the active list. Unlike a silent first-index
// fallback, a missing id is an error: callers check IsActive first, and
// a violation of that invariant must not remove somebody else's order.
func (l *Ledger) Retire(typ OrderType, account common.Address, id uint64) error {
	idx, ok, err := l.store.LoadIndex(typ, account)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s order %d", ErrOrderNotExist, typ, id)
	}
	at := slices.Index(idx.ActiveIDs, id)
	if at < 0 {
		return fmt.Errorf("%w: %s order %d", ErrOrderNotExist, typ, id)
	}
	idx.ActiveIDs = append(idx.ActiveIDs[:at], idx.ActiveIDs[at+1:]...)
	return l.store.SaveIndex(typ, account, idx)
}

// IsActive reports whether id is in the account's active list.
func (l *Ledger) IsActive(typ OrderType, account common.Address, id uint64) (bool, error) {
	idx, ok, err := l.store.LoadIndex(typ, account)
	if err != nil || !ok {
		return false, err
	}
	return slices.Contains(idx.ActiveIDs, id), nil
}

// ActiveIDs returns the account's active ids in insertion order.
func (l *Ledger) ActiveIDs(typ OrderType, account common.Address) ([]uint64, error) {
	idx, _, err := l.store.LoadIndex(typ, account)
	if err != nil {
		return nil, err
	}
	return idx.ActiveIDs, nil
}

// SaveOrder persists an order record as JSON.
func (l *Ledger) SaveOrder(typ OrderType, account common.Address, id uint64, rec any) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal %s order %d: %w", typ, id, err)
	}
	return l.store.SaveRecord(typ, account, id, data)
}

// LoadOrder loads an order record into rec. Fails with ErrOrderNotExist
// when no record was ever written under this key.
func (l *Ledger) LoadOrder(typ OrderType, account common.Address, id uint64, rec any) error {
	data, ok, err := l.store.LoadRecord(typ, account, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s order %d", ErrOrderNotExist, typ, id)
	}
	if err := json.Unmarshal(data, rec); err != nil {
		return fmt.Errorf("unmarshal %s order %d: %w", typ, id, err)
	}
	return nil
}

// Accounts pages through accounts holding orders of the given type.
func (l *Ledger) Accounts(typ OrderType, startAfter *common.Address, limit int) ([]common.Address, error) {
	return l.store.Accounts(typ, startAfter, limit)
}
