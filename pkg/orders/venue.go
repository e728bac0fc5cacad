package orders

import "github.com/ethereum/go-ethereum/common"

// SwapQuote is the result of a pure price probe against a pool: the
// output the swap would yield right now, plus the instruction(s) that
// perform it. Quoting never mutates venue state; the caller decides
// whether to emit or discard the instructions.
type SwapQuote struct {
	OutAmount    int64
	OutToken     Token
	Instructions []Instruction
}

// SwapVenue is the narrow interface the engines consume from the swap
// and balance collaborator (an AMM pool plus a token-transfer
// primitive). Implementations must keep QuoteSwap side-effect free.
type SwapVenue interface {
	// ValidateTokenInPool fails with ErrPoolAndTokenMismatch when the
	// pool does not trade the given token.
	ValidateTokenInPool(token Token, pool common.Address) error

	// QuoteSwap quotes input amount of the input token against the pool
	// and builds the instructions that would execute that swap.
	QuoteSwap(pool common.Address, input Token, amount int64) (SwapQuote, error)

	// TransferInstruction builds a transfer of amount token to recipient.
	TransferInstruction(token Token, amount int64, recipient common.Address) (Instruction, error)

	// DecimalScale is the fixed-point scale of prices.
	DecimalScale() int64

	// PercentScale is the fixed-point scale of percentages.
	PercentScale() int64
}
