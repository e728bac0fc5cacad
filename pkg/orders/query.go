package orders

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// OrderAccounts pages through accounts holding orders of the given
// type, ascending by address. The cursor is the last address of the
// previous page; limit defaults to the configured page size and is
// clamped to the maximum.
func (s *Service) OrderAccounts(typ OrderType, startAfter *common.Address, limit int) ([]common.Address, error) {
	if limit <= 0 {
		limit = s.cfg.DefaultPageLimit
	}
	if limit > s.cfg.MaxPageLimit {
		limit = s.cfg.MaxPageLimit
	}
	return s.ledger.Accounts(typ, startAfter, limit)
}

// OrderIDs returns the account's active order ids in insertion order.
func (s *Service) OrderIDs(typ OrderType, account common.Address) ([]uint64, error) {
	return s.ledger.ActiveIDs(typ, account)
}

// Order looks up a single order record. Finished orders stay readable.
func (s *Service) Order(typ OrderType, account common.Address, id uint64) (OrderRecord, error) {
	rec := OrderRecord{Account: account, ID: id}
	switch typ {
	case OrderTypeLimit:
		var ord LimitOrder
		if err := s.ledger.LoadOrder(typ, account, id, &ord); err != nil {
			return OrderRecord{}, err
		}
		rec.Limit = &ord
	case OrderTypeSmart:
		var ord SmartOrder
		if err := s.ledger.LoadOrder(typ, account, id, &ord); err != nil {
			return OrderRecord{}, err
		}
		rec.Smart = &ord
	case OrderTypeGrid:
		var ord GridOrder
		if err := s.ledger.LoadOrder(typ, account, id, &ord); err != nil {
			return OrderRecord{}, err
		}
		rec.Grid = &ord
	default:
		return OrderRecord{}, fmt.Errorf("%w: order type %d", ErrInvalidInput, typ)
	}
	return rec, nil
}

// Orders returns every active order record of the account for the type.
func (s *Service) Orders(typ OrderType, account common.Address) ([]OrderRecord, error) {
	ids, err := s.ledger.ActiveIDs(typ, account)
	if err != nil {
		return nil, err
	}
	recs := make([]OrderRecord, 0, len(ids))
	for _, id := range ids {
		rec, err := s.Order(typ, account, id)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, nil
}
