package api

// Request/response types for REST endpoints and WebSocket messages

import (
	"github.com/SmithChan/universe-dao-contracts/pkg/orders"
)

// DepositEntry is one asset leg of a start deposit.
type DepositEntry struct {
	Token  string `json:"token"`
	Amount int64  `json:"amount"`
}

// StartLimitRequest starts a take-profit limit order.
type StartLimitRequest struct {
	Account       string         `json:"account"`
	Deposit       []DepositEntry `json:"deposit"`
	SourceToken   string         `json:"sourceToken"`
	Pool          string         `json:"pool"`
	TakeProfitPct int64          `json:"takeProfitPct"`
}

// StartSmartRequest starts a smart (DCA) order.
type StartSmartRequest struct {
	Account       string         `json:"account"`
	Deposit       []DepositEntry `json:"deposit"`
	SourceToken   string         `json:"sourceToken"`
	Pool          string         `json:"pool"`
	TakeProfitPct int64          `json:"takeProfitPct"`

	InitialBuyAmount int64 `json:"initialBuyAmount"`
	NumSteps         int   `json:"numSteps"`
	StepPriceDrop    int64 `json:"stepPriceDrop"`
	StepPriceMult    int64 `json:"stepPriceMultiplier"`
	StepOrderSize    int64 `json:"stepOrderSize"`
	StepSizeMult     int64 `json:"stepSizeMultiplier"`
}

// StartGridRequest starts a symmetric grid order.
type StartGridRequest struct {
	Account       string         `json:"account"`
	Deposit       []DepositEntry `json:"deposit"`
	SourceToken   string         `json:"sourceToken"`
	Pool          string         `json:"pool"`
	TotalAmount   int64          `json:"totalAmount"`
	NumPairs      int            `json:"numPairs"`
	PriceRangePct int64          `json:"priceRangePct"`
}

// SyncRequest advances an order. Account may name another account's
// order; the caller must then be the service owner.
type SyncRequest struct {
	Caller    string `json:"caller"`
	OrderType string `json:"orderType"`
	Account   string `json:"account,omitempty"`
	ID        uint64 `json:"id"`
}

// StopRequest force-finishes the caller's own order.
type StopRequest struct {
	Caller    string `json:"caller"`
	OrderType string `json:"orderType"`
	ID        uint64 `json:"id"`
}

// UpdateOwnerRequest hands the service to a new owner.
type UpdateOwnerRequest struct {
	Caller string `json:"caller"`
	Owner  string `json:"owner"`
}

// UpdateEnabledRequest toggles order creation.
type UpdateEnabledRequest struct {
	Caller  string `json:"caller"`
	Enabled bool   `json:"enabled"`
}

// WithdrawRequest moves service-held funds to the owner.
type WithdrawRequest struct {
	Caller string `json:"caller"`
	Token  string `json:"token"`
	Amount int64  `json:"amount"`
}

// ReceiptResponse wraps the receipt of a mutating call.
type ReceiptResponse struct {
	Receipt orders.Receipt `json:"receipt"`
}

// AccountsResponse is one page of the accounts-with-orders scan.
type AccountsResponse struct {
	Accounts []string `json:"accounts"`
}

// OrderIDsResponse lists an account's active order ids.
type OrderIDsResponse struct {
	Account string   `json:"account"`
	IDs     []uint64 `json:"ids"`
}

// ConfigResponse reports the service administration state.
type ConfigResponse struct {
	Owner   string `json:"owner"`
	Enabled bool   `json:"enabled"`
}

// ErrorResponse is the uniform error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// ==============================
// WebSocket Message Types
// ==============================

// WSSubscribeRequest subscribes or unsubscribes receipt channels.
type WSSubscribeRequest struct {
	Op       string   `json:"op"` // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"`
}

// WSReceiptEvent is a broadcast order receipt.
type WSReceiptEvent struct {
	Channel string         `json:"channel"`
	Receipt orders.Receipt `json:"receipt"`
}
