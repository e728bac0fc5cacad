package orders

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/SmithChan/universe-dao-contracts/params"
)

// Service is the order subsystem facade: the three strategy engines on
// top of the shared ledger and the swap venue, plus owner/enabled
// administration and the query surface.
//
// Every call runs to completion as one atomic unit: all fallible venue
// work happens before any state is persisted, so a failure anywhere
// discards the call's mutations and instructions. Order state carries
// no internal locking; concurrent calls against it are serialized by
// the surrounding layer (see pkg/api). The admin state has its own
// mutex because it is read by lock-free config queries.
type Service struct {
	cfg    params.Orders
	ledger *Ledger
	store  Store
	venue  SwapVenue
	log    *zap.SugaredLogger

	adminMu sync.RWMutex
	admin   ServiceConfig
}

// NewService wires the service. The first boot persists owner as the
// service owner with the service enabled; later boots reload whatever
// administration state was saved.
func NewService(cfg params.Orders, store Store, venue SwapVenue, owner common.Address, log *zap.SugaredLogger) (*Service, error) {
	admin, ok, err := store.LoadServiceConfig()
	if err != nil {
		return nil, fmt.Errorf("load service config: %w", err)
	}
	if !ok {
		admin = ServiceConfig{Owner: owner, Enabled: true}
		if err := store.SaveServiceConfig(admin); err != nil {
			return nil, fmt.Errorf("init service config: %w", err)
		}
	}
	return &Service{
		cfg:    cfg,
		ledger: NewLedger(store, cfg.MaxOrdersPerAccount),
		store:  store,
		venue:  venue,
		log:    log,
		admin:  admin,
	}, nil
}

// Admin returns the current owner/enabled state.
func (s *Service) Admin() ServiceConfig {
	s.adminMu.RLock()
	defer s.adminMu.RUnlock()
	return s.admin
}

// UpdateOwner hands the service to a new owner. Owner-gated.
func (s *Service) UpdateOwner(caller, newOwner common.Address) error {
	if err := s.requireOwner(caller); err != nil {
		return err
	}
	s.adminMu.Lock()
	s.admin.Owner = newOwner
	cfg := s.admin
	s.adminMu.Unlock()
	if err := s.store.SaveServiceConfig(cfg); err != nil {
		return err
	}
	s.log.Infow("update_owner", "owner", newOwner.Hex())
	return nil
}

// UpdateEnabled toggles order creation. Owner-gated. Sync and stop stay
// available while disabled so deposited funds are never trapped.
func (s *Service) UpdateEnabled(caller common.Address, enabled bool) error {
	if err := s.requireOwner(caller); err != nil {
		return err
	}
	s.adminMu.Lock()
	s.admin.Enabled = enabled
	cfg := s.admin
	s.adminMu.Unlock()
	if err := s.store.SaveServiceConfig(cfg); err != nil {
		return err
	}
	s.log.Infow("update_enabled", "enabled", enabled)
	return nil
}

// Withdraw builds a transfer of service-held funds to the owner.
// Owner-gated.
func (s *Service) Withdraw(caller common.Address, token Token, amount int64) (Receipt, error) {
	if err := s.requireOwner(caller); err != nil {
		return Receipt{}, err
	}
	if amount <= 0 {
		return Receipt{}, fmt.Errorf("%w: withdraw amount %d", ErrInvalidInput, amount)
	}
	transfer, err := s.venue.TransferInstruction(token, amount, caller)
	if err != nil {
		return Receipt{}, err
	}
	s.log.Infow("withdraw", "token", token, "amount", amount)
	return Receipt{
		Action:       "withdraw",
		Account:      caller,
		Instructions: []Instruction{transfer},
	}, nil
}

// Sync advances the order of the given type. A caller acting on another
// account's order must be the service owner.
func (s *Service) Sync(caller common.Address, typ OrderType, account *common.Address, id uint64) (Receipt, error) {
	switch typ {
	case OrderTypeLimit:
		return s.SyncLimit(caller, account, id, false)
	case OrderTypeSmart:
		return s.SyncSmart(caller, account, id, false)
	case OrderTypeGrid:
		return s.SyncGrid(caller, account, id, false)
	default:
		return Receipt{}, fmt.Errorf("%w: order type %d", ErrInvalidInput, typ)
	}
}

// Stop force-finishes the caller's own order: a forced sync.
func (s *Service) Stop(caller common.Address, typ OrderType, id uint64) (Receipt, error) {
	switch typ {
	case OrderTypeLimit:
		return s.SyncLimit(caller, &caller, id, true)
	case OrderTypeSmart:
		return s.SyncSmart(caller, &caller, id, true)
	case OrderTypeGrid:
		return s.SyncGrid(caller, &caller, id, true)
	default:
		return Receipt{}, fmt.Errorf("%w: order type %d", ErrInvalidInput, typ)
	}
}

func (s *Service) requireOwner(caller common.Address) error {
	s.adminMu.RLock()
	owner := s.admin.Owner
	s.adminMu.RUnlock()
	if caller != owner {
		return fmt.Errorf("%w: caller %s is not the service owner", ErrUnauthorized, caller.Hex())
	}
	return nil
}

func (s *Service) requireEnabled() error {
	s.adminMu.RLock()
	enabled := s.admin.Enabled
	s.adminMu.RUnlock()
	if !enabled {
		return ErrDisabled
	}
	return nil
}

// resolveSyncTarget resolves the effective order owner of a sync call
// and authorizes third-party syncs.
func (s *Service) resolveSyncTarget(caller common.Address, account *common.Address) (common.Address, error) {
	owner := caller
	if account != nil {
		owner = *account
	}
	if owner != caller {
		if err := s.requireOwner(caller); err != nil {
			return common.Address{}, err
		}
	}
	return owner, nil
}
