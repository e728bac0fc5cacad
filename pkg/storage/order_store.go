package storage

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/common"

	"github.com/SmithChan/universe-dao-contracts/pkg/orders"
)

// OrderStore is the Pebble-backed implementation of orders.Store.
// Values are JSON; every write is synced so a crash never loses a
// committed call.
type OrderStore struct {
	db *pebble.DB
}

// NewOrderStore opens (or creates) a Pebble database at dbPath.
func NewOrderStore(dbPath string) (*OrderStore, error) {
	opts := &pebble.Options{
		Cache:        pebble.NewCache(64 << 20),
		MemTableSize: 32 << 20,
	}
	db, err := pebble.Open(dbPath, opts)
	if err != nil {
		return nil, fmt.Errorf("open pebble db at %s: %w", dbPath, err)
	}
	return &OrderStore{db: db}, nil
}

func (s *OrderStore) Close() error { return s.db.Close() }

func (s *OrderStore) LoadIndex(typ orders.OrderType, account common.Address) (orders.OrderIndex, bool, error) {
	var idx orders.OrderIndex
	data, closer, err := s.db.Get(indexKey(typ, account))
	if err == pebble.ErrNotFound {
		return idx, false, nil
	}
	if err != nil {
		return idx, false, fmt.Errorf("get %s index for %s: %w", typ, account.Hex(), err)
	}
	defer closer.Close()
	if err := json.Unmarshal(data, &idx); err != nil {
		return idx, false, fmt.Errorf("unmarshal %s index for %s: %w", typ, account.Hex(), err)
	}
	return idx, true, nil
}

func (s *OrderStore) SaveIndex(typ orders.OrderType, account common.Address, idx orders.OrderIndex) error {
	data, err := json.Marshal(idx)
	if err != nil {
		return fmt.Errorf("marshal %s index for %s: %w", typ, account.Hex(), err)
	}
	if err := s.db.Set(indexKey(typ, account), data, pebble.Sync); err != nil {
		return fmt.Errorf("save %s index for %s: %w", typ, account.Hex(), err)
	}
	return nil
}

func (s *OrderStore) LoadRecord(typ orders.OrderType, account common.Address, id uint64) ([]byte, bool, error) {
	data, closer, err := s.db.Get(orderKey(typ, account, id))
	if err == pebble.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s order %d for %s: %w", typ, id, account.Hex(), err)
	}
	defer closer.Close()
	out := make([]byte, len(data))
	copy(out, data)
	return out, true, nil
}

func (s *OrderStore) SaveRecord(typ orders.OrderType, account common.Address, id uint64, data []byte) error {
	if err := s.db.Set(orderKey(typ, account, id), data, pebble.Sync); err != nil {
		return fmt.Errorf("save %s order %d for %s: %w", typ, id, account.Hex(), err)
	}
	return nil
}

// Accounts scans index keys of one order type in ascending address
// order, starting strictly after the cursor when given.
func (s *OrderStore) Accounts(typ orders.OrderType, startAfter *common.Address, limit int) ([]common.Address, error) {
	prefix := indexPrefix(typ)
	lower := prefix
	if startAfter != nil {
		// Exclusive cursor: one byte past the cursor's own index key.
		lower = append(indexKey(typ, *startAfter), 0x00)
	}
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: lower,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s indexes: %w", typ, err)
	}
	defer iter.Close()

	var accounts []common.Address
	for iter.First(); iter.Valid() && len(accounts) < limit; iter.Next() {
		hex := bytes.TrimPrefix(iter.Key(), prefix)
		if !common.IsHexAddress(string(hex)) {
			continue
		}
		accounts = append(accounts, common.HexToAddress(string(hex)))
	}
	return accounts, nil
}

func (s *OrderStore) LoadServiceConfig() (orders.ServiceConfig, bool, error) {
	var cfg orders.ServiceConfig
	data, closer, err := s.db.Get([]byte(keyServiceConfig))
	if err == pebble.ErrNotFound {
		return cfg, false, nil
	}
	if err != nil {
		return cfg, false, fmt.Errorf("get service config: %w", err)
	}
	defer closer.Close()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, false, fmt.Errorf("unmarshal service config: %w", err)
	}
	return cfg, true, nil
}

func (s *OrderStore) SaveServiceConfig(cfg orders.ServiceConfig) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal service config: %w", err)
	}
	if err := s.db.Set([]byte(keyServiceConfig), data, pebble.Sync); err != nil {
		return fmt.Errorf("save service config: %w", err)
	}
	return nil
}

var _ orders.Store = (*OrderStore)(nil)
