package orders

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Token identifies an asset handled by the swap venue.
// Native assets use their denomination ("uuniv"), wrapped tokens the
// hex form of their contract address.
type Token string

// TokenAmount is one asset leg of a deposit.
type TokenAmount struct {
	Token  Token `json:"token"`
	Amount int64 `json:"amount"`
}

// Deposit is the multi-asset balance attached to a start call.
// A deposit may carry several assets; the engine extracts the one the
// order is configured for.
type Deposit struct {
	Entries []TokenAmount `json:"entries"`
}

// IsEmpty reports whether the deposit carries no value at all.
func (d Deposit) IsEmpty() bool {
	for _, e := range d.Entries {
		if e.Amount > 0 {
			return false
		}
	}
	return true
}

// AmountOf extracts the deposited amount of the given token.
// Fails with ErrInvalidInput when the deposit holds none of it.
func (d Deposit) AmountOf(token Token) (int64, error) {
	for _, e := range d.Entries {
		if e.Token == token {
			if e.Amount <= 0 {
				return 0, fmt.Errorf("%w: zero %s deposited", ErrInvalidInput, token)
			}
			return e.Amount, nil
		}
	}
	return 0, fmt.Errorf("%w: deposit contains no %s", ErrInvalidInput, token)
}

// OrderType selects one of the three strategy engines.
type OrderType uint8

const (
	OrderTypeLimit OrderType = iota
	OrderTypeSmart
	OrderTypeGrid
)

func (t OrderType) String() string {
	switch t {
	case OrderTypeLimit:
		return "limit"
	case OrderTypeSmart:
		return "smart"
	case OrderTypeGrid:
		return "grid"
	default:
		return "unknown"
	}
}

// ParseOrderType parses the wire form of an order type.
func ParseOrderType(s string) (OrderType, error) {
	switch s {
	case "limit":
		return OrderTypeLimit, nil
	case "smart":
		return OrderTypeSmart, nil
	case "grid":
		return OrderTypeGrid, nil
	default:
		return 0, fmt.Errorf("%w: unknown order type %q", ErrInvalidInput, s)
	}
}

// InstructionKind discriminates emitted settlement instructions.
type InstructionKind string

const (
	InstrSwap     InstructionKind = "swap"
	InstrTransfer InstructionKind = "transfer"
)

// Instruction is one settlement step emitted by an engine: either a swap
// against a pool or a transfer to a recipient. The engines treat
// instructions as opaque; the venue that produced them settles them.
type Instruction struct {
	Kind InstructionKind `json:"kind"`

	// Swap fields
	Pool        common.Address `json:"pool,omitempty"`
	InputToken  Token          `json:"inputToken,omitempty"`
	InputAmount int64          `json:"inputAmount,omitempty"`

	// Transfer fields
	Token     Token          `json:"token,omitempty"`
	Amount    int64          `json:"amount,omitempty"`
	Recipient common.Address `json:"recipient,omitempty"`
}

// Receipt reports a completed call: the action taken, the order it acted
// on, and the settlement instructions the caller must execute. All
// instructions of a call commit together or not at all.
type Receipt struct {
	Action       string         `json:"action"`
	Account      common.Address `json:"account"`
	ID           uint64         `json:"id"`
	Instructions []Instruction  `json:"instructions,omitempty"`
}

// OrderIndex tracks one account's active orders of a single type.
// NextID is never reused; ActiveIDs keeps insertion order and loses an
// id exactly when that order finishes.
type OrderIndex struct {
	ActiveIDs []uint64 `json:"activeIds"`
	NextID    uint64   `json:"nextId"`
}

// LimitParams configures a take-profit limit order.
type LimitParams struct {
	SourceToken   Token          `json:"sourceToken"`
	Pool          common.Address `json:"pool"`
	TakeProfitPct int64          `json:"takeProfitPct"` // in PercentScale units
}

// LimitOrder is the persisted state of a limit order. The full deposit
// is deployed into the target token at start; sync watches for the
// target price and liquidates.
type LimitOrder struct {
	Params      LimitParams `json:"params"`
	TargetToken Token       `json:"targetToken"`

	InitialSourceAmount int64 `json:"initialSourceAmount"`
	SourceAmount        int64 `json:"sourceAmount"` // residual, normally 0
	TargetAmount        int64 `json:"targetAmount"`

	AvgBuyPrice    int64 `json:"avgBuyPrice"`
	TargetBuyPrice int64 `json:"targetBuyPrice"`

	Finished bool `json:"finished"`
}

// SmartParams configures a smart (DCA) order.
type SmartParams struct {
	SourceToken   Token          `json:"sourceToken"`
	Pool          common.Address `json:"pool"`
	TakeProfitPct int64          `json:"takeProfitPct"`

	InitialBuyAmount int64 `json:"initialBuyAmount"` // first tranche, swapped at start
	NumSteps         int   `json:"numSteps"`
	StepPriceDrop    int64 `json:"stepPriceDrop"`       // in PercentScale units
	StepPriceMult    int64 `json:"stepPriceMultiplier"` // multiplier of the price drop
	StepOrderSize    int64 `json:"stepOrderSize"`
	StepSizeMult     int64 `json:"stepSizeMultiplier"` // multiplier of the tranche size
}

// SmartOrder is the persisted state of a smart order. TriggerPrices and
// TrancheSizes are fixed at start and never recomputed; ProgressIndex
// only increases, bounded by NumSteps.
type SmartOrder struct {
	Params      SmartParams `json:"params"`
	TargetToken Token       `json:"targetToken"`

	SourceAmount int64 `json:"sourceAmount"` // reserve left for future tranches
	TargetAmount int64 `json:"targetAmount"`

	AvgBuyPrice    int64 `json:"avgBuyPrice"`
	TargetBuyPrice int64 `json:"targetBuyPrice"`

	TriggerPrices []int64 `json:"triggerPrices"`
	TrancheSizes  []int64 `json:"trancheSizes"`
	ProgressIndex int     `json:"progressIndex"`

	Finished bool `json:"finished"`
}

// GridParams configures a symmetric grid order.
type GridParams struct {
	SourceToken   Token          `json:"sourceToken"`
	Pool          common.Address `json:"pool"`
	TotalAmount   int64          `json:"totalAmount"`
	NumPairs      int            `json:"numPairs"`
	PriceRangePct int64          `json:"priceRangePct"` // in PercentScale units
}

// GridOrder is the persisted state of a grid order. The ladders are
// built from the initial 50/50 split and never change; BuyProgress and
// SellProgress only increase, bounded by NumPairs.
type GridOrder struct {
	Params      GridParams `json:"params"`
	TargetToken Token      `json:"targetToken"`

	BuyPrices  []int64 `json:"buyPrices"`
	SellPrices []int64 `json:"sellPrices"`
	StepSize   int64   `json:"stepSize"`

	BuyProgress  int `json:"buyProgress"`
	SellProgress int `json:"sellProgress"`

	SourceAmount int64 `json:"sourceAmount"`
	TargetAmount int64 `json:"targetAmount"`

	Finished bool `json:"finished"`
}

// ServiceConfig is the persisted administrative state of the service.
type ServiceConfig struct {
	Owner   common.Address `json:"owner"`
	Enabled bool           `json:"enabled"`
}

// OrderRecord is the union returned by single-order lookups; exactly one
// of the three pointers is set, matching the queried order type.
type OrderRecord struct {
	Account common.Address `json:"account"`
	ID      uint64         `json:"id"`

	Limit *LimitOrder `json:"limitOrder,omitempty"`
	Smart *SmartOrder `json:"smartOrder,omitempty"`
	Grid  *GridOrder  `json:"gridOrder,omitempty"`
}
