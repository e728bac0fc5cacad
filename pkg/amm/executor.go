package amm

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/SmithChan/universe-dao-contracts/pkg/orders"
)

// Executor settles the instructions a call emits: swap instructions
// move pool reserves, transfer instructions credit account balances.
// A batch settles all-or-nothing, mirroring the atomic-call contract of
// the order service.
type Executor struct {
	mu    sync.Mutex
	venue *Venue

	// balances tracks credited transfers per recipient and token.
	balances map[common.Address]map[orders.Token]int64
}

func NewExecutor(venue *Venue) *Executor {
	return &Executor{
		venue:    venue,
		balances: make(map[common.Address]map[orders.Token]int64),
	}
}

// Settle executes every instruction of a receipt in order. Swaps apply
// at the reserves current when the leg executes, so earlier legs of the
// same batch move the price seen by later ones.
func (e *Executor) Settle(receipt orders.Receipt) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	// Dry-run validation first so a bad instruction mid-batch cannot
	// leave the venue half-settled.
	for i, in := range receipt.Instructions {
		if err := e.validate(in); err != nil {
			return fmt.Errorf("instruction %d of %s: %w", i, receipt.Action, err)
		}
	}
	for i, in := range receipt.Instructions {
		if err := e.apply(in); err != nil {
			// Validation passed, so the venue changed underneath the
			// batch; earlier legs have already applied.
			return fmt.Errorf("settle instruction %d of %s: %w", i, receipt.Action, err)
		}
	}
	return nil
}

func (e *Executor) validate(in orders.Instruction) error {
	switch in.Kind {
	case orders.InstrSwap:
		p, err := e.venue.GetPool(in.Pool)
		if err != nil {
			return err
		}
		if _, ok := p.Other(in.InputToken); !ok {
			return fmt.Errorf("%w: %s in pool %s", orders.ErrPoolAndTokenMismatch, in.InputToken, in.Pool.Hex())
		}
		if in.InputAmount <= 0 {
			return fmt.Errorf("%w: swap amount %d", orders.ErrInvalidInput, in.InputAmount)
		}
		return nil
	case orders.InstrTransfer:
		if in.Token == "" {
			return fmt.Errorf("%w: transfer without token", orders.ErrTokenTypeMismatch)
		}
		if in.Amount < 0 {
			return fmt.Errorf("%w: transfer amount %d", orders.ErrInvalidInput, in.Amount)
		}
		return nil
	default:
		return fmt.Errorf("%w: instruction kind %q", orders.ErrInvalidInput, in.Kind)
	}
}

func (e *Executor) apply(in orders.Instruction) error {
	switch in.Kind {
	case orders.InstrSwap:
		return e.venue.applySwap(in.Pool, in.InputToken, in.InputAmount)
	case orders.InstrTransfer:
		if e.balances[in.Recipient] == nil {
			e.balances[in.Recipient] = make(map[orders.Token]int64)
		}
		e.balances[in.Recipient][in.Token] += in.Amount
		return nil
	default:
		return fmt.Errorf("%w: instruction kind %q", orders.ErrInvalidInput, in.Kind)
	}
}

// Balance returns the total amount of token credited to account.
func (e *Executor) Balance(account common.Address, token orders.Token) int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.balances[account][token]
}
