package orders

import "errors"

// Error taxonomy of the order service. Engines wrap these sentinels with
// fmt.Errorf("...: %w", ...) to attach diagnostic values; callers branch
// with errors.Is.
var (
	ErrUnauthorized        = errors.New("unauthorized")
	ErrDisabled            = errors.New("disabled")
	ErrMaxOrderCountExceed = errors.New("max order count exceed")

	ErrInsufficientAmountForSmartOrder = errors.New("insufficient amount for smart order")
	ErrInsufficientAmountForGridOrder  = errors.New("insufficient amount for grid order")

	ErrOrderNotExist        = errors.New("order not exist")
	ErrAlreadyFinishedOrder = errors.New("already finished order")

	ErrEmptyBalance         = errors.New("send some coins to create an order")
	ErrTokenTypeMismatch    = errors.New("token type mismatch")
	ErrPoolAndTokenMismatch = errors.New("the pool does not contain the input token")
	ErrInvalidInput         = errors.New("invalid input")
)
