// Package amm provides a constant-product swap venue implementing the
// collaborator interface the order engines run against, plus the
// executor that settles the instructions they emit.
package amm

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/SmithChan/universe-dao-contracts/pkg/orders"
)

// Pool is one two-asset constant-product pool (x·y = k, no fee).
type Pool struct {
	Addr     common.Address
	TokenA   orders.Token
	TokenB   orders.Token
	ReserveA int64
	ReserveB int64
}

// Other returns the counter-asset of token in this pool.
func (p *Pool) Other(token orders.Token) (orders.Token, bool) {
	switch token {
	case p.TokenA:
		return p.TokenB, true
	case p.TokenB:
		return p.TokenA, true
	default:
		return "", false
	}
}

// quoteOut computes the constant-product output for an input amount.
func (p *Pool) quoteOut(input orders.Token, amount int64) (int64, error) {
	var resIn, resOut int64
	switch input {
	case p.TokenA:
		resIn, resOut = p.ReserveA, p.ReserveB
	case p.TokenB:
		resIn, resOut = p.ReserveB, p.ReserveA
	default:
		return 0, fmt.Errorf("%w: %s in pool %s", orders.ErrPoolAndTokenMismatch, input, p.Addr.Hex())
	}
	if resIn <= 0 || resOut <= 0 {
		return 0, fmt.Errorf("%w: pool %s has empty reserves", orders.ErrInvalidInput, p.Addr.Hex())
	}
	return resOut * amount / (resIn + amount), nil
}

// Venue is a registry of pools exposing the swap-and-balance interface
// the engines consume. Quoting is pure; only settlement, via applySwap,
// mutates reserves.
type Venue struct {
	mu    sync.RWMutex
	pools map[common.Address]*Pool

	decimalScale int64
	percentScale int64
}

func NewVenue(decimalScale, percentScale int64) *Venue {
	return &Venue{
		pools:        make(map[common.Address]*Pool),
		decimalScale: decimalScale,
		percentScale: percentScale,
	}
}

// AddPool registers a pool. Duplicate addresses are rejected.
func (v *Venue) AddPool(p *Pool) error {
	if p == nil {
		return fmt.Errorf("cannot register nil pool")
	}
	if p.TokenA == p.TokenB {
		return fmt.Errorf("%w: pool %s trades %s against itself", orders.ErrInvalidInput, p.Addr.Hex(), p.TokenA)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, exists := v.pools[p.Addr]; exists {
		return fmt.Errorf("pool %s already registered", p.Addr.Hex())
	}
	v.pools[p.Addr] = p
	return nil
}

// GetPool retrieves a pool by address.
func (v *Venue) GetPool(addr common.Address) (*Pool, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	p, exists := v.pools[addr]
	if !exists {
		return nil, fmt.Errorf("pool %s not found", addr.Hex())
	}
	return p, nil
}

func (v *Venue) ValidateTokenInPool(token orders.Token, pool common.Address) error {
	p, err := v.GetPool(pool)
	if err != nil {
		return err
	}
	if _, ok := p.Other(token); !ok {
		return fmt.Errorf("%w: %s in pool %s", orders.ErrPoolAndTokenMismatch, token, pool.Hex())
	}
	return nil
}

// QuoteSwap prices amount of input against the pool and builds the swap
// instruction that would execute it. A zero amount quotes to zero with
// no instructions.
func (v *Venue) QuoteSwap(pool common.Address, input orders.Token, amount int64) (orders.SwapQuote, error) {
	if amount < 0 {
		return orders.SwapQuote{}, fmt.Errorf("%w: negative swap amount %d", orders.ErrInvalidInput, amount)
	}
	v.mu.RLock()
	defer v.mu.RUnlock()
	p, exists := v.pools[pool]
	if !exists {
		return orders.SwapQuote{}, fmt.Errorf("pool %s not found", pool.Hex())
	}
	out, ok := p.Other(input)
	if !ok {
		return orders.SwapQuote{}, fmt.Errorf("%w: %s in pool %s", orders.ErrPoolAndTokenMismatch, input, pool.Hex())
	}
	if amount == 0 {
		return orders.SwapQuote{OutToken: out}, nil
	}
	outAmount, err := p.quoteOut(input, amount)
	if err != nil {
		return orders.SwapQuote{}, err
	}
	return orders.SwapQuote{
		OutAmount: outAmount,
		OutToken:  out,
		Instructions: []orders.Instruction{{
			Kind:        orders.InstrSwap,
			Pool:        pool,
			InputToken:  input,
			InputAmount: amount,
		}},
	}, nil
}

func (v *Venue) TransferInstruction(token orders.Token, amount int64, recipient common.Address) (orders.Instruction, error) {
	if amount < 0 {
		return orders.Instruction{}, fmt.Errorf("%w: negative transfer amount %d", orders.ErrInvalidInput, amount)
	}
	return orders.Instruction{
		Kind:      orders.InstrTransfer,
		Token:     token,
		Amount:    amount,
		Recipient: recipient,
	}, nil
}

// applySwap executes a validated swap leg against live reserves. The
// dry-run in Executor.Settle does not quote, so reserves emptied since
// validation surface here.
func (v *Venue) applySwap(pool common.Address, input orders.Token, amount int64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	p, exists := v.pools[pool]
	if !exists {
		return fmt.Errorf("pool %s not found", pool.Hex())
	}
	out, err := p.quoteOut(input, amount)
	if err != nil {
		return err
	}
	if input == p.TokenA {
		p.ReserveA += amount
		p.ReserveB -= out
	} else {
		p.ReserveB += amount
		p.ReserveA -= out
	}
	return nil
}

func (v *Venue) DecimalScale() int64 { return v.decimalScale }
func (v *Venue) PercentScale() int64 { return v.percentScale }

var _ orders.SwapVenue = (*Venue)(nil)
