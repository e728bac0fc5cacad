package orders

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// checkedMul multiplies two int64s, reporting whether the product fits.
func checkedMul(a, b int64) (int64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	p := a * b
	if p/b != a {
		return 0, false
	}
	return p, true
}

// checkedAdd adds two int64s, reporting whether the sum fits.
func checkedAdd(a, b int64) (int64, bool) {
	s := a + b
	if (b > 0 && s < a) || (b < 0 && s > a) {
		return 0, false
	}
	return s, true
}

// smartRequiredReserve computes the deposit a smart order needs:
// (1 + Σ multiplier-accumulator) × initial buy amount, where the
// accumulator starts at the size multiplier and squares itself each
// step. The self-squaring is deliberate; it escalates the reserve very
// quickly past two steps, so the arithmetic is overflow-checked and
// parameters whose reserve does not fit in an int64 are rejected.
func smartRequiredReserve(p SmartParams) (int64, error) {
	totalSteps := int64(1)
	mul := p.StepSizeMult
	for i := 0; i < p.NumSteps; i++ {
		var ok bool
		if totalSteps, ok = checkedAdd(totalSteps, mul); !ok {
			return 0, fmt.Errorf("%w: smart order reserve overflows at step %d", ErrInvalidInput, i)
		}
		// The accumulator after the final step is never consumed.
		if i == p.NumSteps-1 {
			break
		}
		if mul, ok = checkedMul(mul, mul); !ok {
			return 0, fmt.Errorf("%w: smart order reserve overflows at step %d", ErrInvalidInput, i)
		}
	}
	required, ok := checkedMul(totalSteps, p.InitialBuyAmount)
	if !ok {
		return 0, fmt.Errorf("%w: smart order reserve overflows", ErrInvalidInput)
	}
	return required, nil
}

func validateSmartParams(p SmartParams) error {
	if p.TakeProfitPct < 0 {
		return fmt.Errorf("%w: negative take profit %d", ErrInvalidInput, p.TakeProfitPct)
	}
	if p.InitialBuyAmount <= 0 {
		return fmt.Errorf("%w: initial buy amount %d", ErrInvalidInput, p.InitialBuyAmount)
	}
	if p.NumSteps < 0 {
		return fmt.Errorf("%w: negative step count %d", ErrInvalidInput, p.NumSteps)
	}
	if p.NumSteps > 0 {
		if p.StepSizeMult < 1 || p.StepPriceMult < 1 {
			return fmt.Errorf("%w: step multipliers must be at least 1", ErrInvalidInput)
		}
		if p.StepOrderSize <= 0 {
			return fmt.Errorf("%w: step order size %d", ErrInvalidInput, p.StepOrderSize)
		}
		if p.StepPriceDrop < 0 {
			return fmt.Errorf("%w: negative step price drop %d", ErrInvalidInput, p.StepPriceDrop)
		}
	}
	return nil
}

// StartSmart reserves the deposit needed for every DCA tranche, refunds
// any excess, performs the initial buy, and precomputes the fixed
// trigger-price and tranche-size ladders.
func (s *Service) StartSmart(account common.Address, deposit Deposit, p SmartParams) (Receipt, error) {
	if err := s.requireEnabled(); err != nil {
		return Receipt{}, err
	}
	if deposit.IsEmpty() {
		return Receipt{}, ErrEmptyBalance
	}
	if err := validateSmartParams(p); err != nil {
		return Receipt{}, err
	}
	if err := s.venue.ValidateTokenInPool(p.SourceToken, p.Pool); err != nil {
		return Receipt{}, err
	}
	amount, err := deposit.AmountOf(p.SourceToken)
	if err != nil {
		return Receipt{}, err
	}

	required, err := smartRequiredReserve(p)
	if err != nil {
		return Receipt{}, err
	}
	if amount < required {
		return Receipt{}, fmt.Errorf("%w: need %d %s, got %d", ErrInsufficientAmountForSmartOrder, required, p.SourceToken, amount)
	}
	var instrs []Instruction
	if excess := amount - required; excess > 0 {
		refund, err := s.venue.TransferInstruction(p.SourceToken, excess, account)
		if err != nil {
			return Receipt{}, err
		}
		instrs = append(instrs, refund)
	}

	quote, err := s.venue.QuoteSwap(p.Pool, p.SourceToken, p.InitialBuyAmount)
	if err != nil {
		return Receipt{}, err
	}
	if quote.OutAmount <= 0 {
		return Receipt{}, fmt.Errorf("%w: pool quoted %d for initial buy", ErrInvalidInput, quote.OutAmount)
	}
	instrs = append(instrs, quote.Instructions...)

	d, m := s.venue.DecimalScale(), s.venue.PercentScale()
	avgBuyPrice := p.InitialBuyAmount * d / quote.OutAmount
	targetBuyPrice := avgBuyPrice * (m + p.TakeProfitPct) / m

	// Fixed ladders: trigger prices walk down from the full percent
	// scale by an escalating price drop; tranche sizes grow by the size
	// multiplier each step. Overflow-checked like the reserve above.
	triggerPrices := make([]int64, p.NumSteps)
	trancheSizes := make([]int64, p.NumSteps)
	mulPrice, mulSize, scale := int64(1), int64(1), m
	for i := 0; i < p.NumSteps; i++ {
		var ok bool
		if mulPrice, ok = checkedMul(mulPrice, p.StepPriceMult); !ok {
			return Receipt{}, fmt.Errorf("%w: trigger ladder overflows at step %d", ErrInvalidInput, i)
		}
		drop, ok := checkedMul(p.StepPriceDrop, mulPrice)
		if !ok {
			return Receipt{}, fmt.Errorf("%w: trigger ladder overflows at step %d", ErrInvalidInput, i)
		}
		scaled, ok := checkedMul(avgBuyPrice, scale-drop)
		if !ok {
			return Receipt{}, fmt.Errorf("%w: trigger ladder overflows at step %d", ErrInvalidInput, i)
		}
		triggerPrices[i] = scaled / m
		scale -= drop

		if mulSize, ok = checkedMul(mulSize, p.StepSizeMult); !ok {
			return Receipt{}, fmt.Errorf("%w: tranche ladder overflows at step %d", ErrInvalidInput, i)
		}
		if trancheSizes[i], ok = checkedMul(mulSize, p.StepOrderSize); !ok {
			return Receipt{}, fmt.Errorf("%w: tranche ladder overflows at step %d", ErrInvalidInput, i)
		}
	}

	id, err := s.ledger.Register(OrderTypeSmart, account)
	if err != nil {
		return Receipt{}, err
	}
	ord := SmartOrder{
		Params:         p,
		TargetToken:    quote.OutToken,
		SourceAmount:   required - p.InitialBuyAmount,
		TargetAmount:   quote.OutAmount,
		AvgBuyPrice:    avgBuyPrice,
		TargetBuyPrice: targetBuyPrice,
		TriggerPrices:  triggerPrices,
		TrancheSizes:   trancheSizes,
	}
	if err := s.ledger.SaveOrder(OrderTypeSmart, account, id, &ord); err != nil {
		return Receipt{}, err
	}

	s.log.Infow("start_smart",
		"account", account.Hex(), "id", id,
		"required", required, "avg_buy_price", avgBuyPrice, "target_buy_price", targetBuyPrice)
	return Receipt{
		Action:       "start_smart",
		Account:      account,
		ID:           id,
		Instructions: instrs,
	}, nil
}

// SyncSmart consumes every DCA step whose trigger already holds (buy
// price below the step's trigger price), then checks whether the held
// target amount liquidates at or above the take-profit target. Partial
// step progress commits even when the order keeps waiting.
func (s *Service) SyncSmart(caller common.Address, account *common.Address, id uint64, forceFinish bool) (Receipt, error) {
	owner, err := s.resolveSyncTarget(caller, account)
	if err != nil {
		return Receipt{}, err
	}
	active, err := s.ledger.IsActive(OrderTypeSmart, owner, id)
	if err != nil {
		return Receipt{}, err
	}
	if !active {
		return Receipt{}, fmt.Errorf("%w: smart order %d for %s", ErrOrderNotExist, id, owner.Hex())
	}
	var ord SmartOrder
	if err := s.ledger.LoadOrder(OrderTypeSmart, owner, id, &ord); err != nil {
		return Receipt{}, err
	}
	// See SyncLimit: an active id never maps to a finished record
	// unless index and record store have diverged.
	if ord.Finished {
		return Receipt{}, fmt.Errorf("%w: smart order %d", ErrAlreadyFinishedOrder, id)
	}

	d := s.venue.DecimalScale()
	var instrs []Instruction
	for ord.ProgressIndex < ord.Params.NumSteps {
		size := ord.TrancheSizes[ord.ProgressIndex]
		q, err := s.venue.QuoteSwap(ord.Params.Pool, ord.Params.SourceToken, size)
		if err != nil {
			return Receipt{}, err
		}
		if q.OutAmount <= 0 {
			return Receipt{}, fmt.Errorf("%w: pool quoted %d for tranche %d", ErrInvalidInput, q.OutAmount, ord.ProgressIndex)
		}
		buyPrice := size * d / q.OutAmount
		if buyPrice >= ord.TriggerPrices[ord.ProgressIndex] {
			break
		}
		instrs = append(instrs, q.Instructions...)
		ord.SourceAmount -= size
		ord.TargetAmount += q.OutAmount
		ord.ProgressIndex++
	}

	liq, err := s.venue.QuoteSwap(ord.Params.Pool, ord.TargetToken, ord.TargetAmount)
	if err != nil {
		return Receipt{}, err
	}
	realizedPrice := int64(0)
	if ord.TargetAmount > 0 {
		realizedPrice = liq.OutAmount * d / ord.TargetAmount
	}

	action := "sync_smart_waiting"
	if realizedPrice >= ord.TargetBuyPrice || forceFinish {
		if err := s.ledger.Retire(OrderTypeSmart, owner, id); err != nil {
			return Receipt{}, err
		}
		instrs = append(instrs, liq.Instructions...)
		payout := liq.OutAmount + ord.SourceAmount
		transfer, err := s.venue.TransferInstruction(ord.Params.SourceToken, payout, owner)
		if err != nil {
			return Receipt{}, err
		}
		instrs = append(instrs, transfer)

		ord.Finished = true
		ord.SourceAmount += liq.OutAmount
		ord.TargetAmount = 0
		action = "sync_smart_success"
	}
	if err := s.ledger.SaveOrder(OrderTypeSmart, owner, id, &ord); err != nil {
		return Receipt{}, err
	}

	s.log.Infow(action,
		"account", owner.Hex(), "id", id,
		"progress", ord.ProgressIndex, "realized_price", realizedPrice, "forced", forceFinish)
	return Receipt{
		Action:       action,
		Account:      owner,
		ID:           id,
		Instructions: instrs,
	}, nil
}

// StopSmart force-finishes the caller's own smart order.
func (s *Service) StopSmart(account common.Address, id uint64) (Receipt, error) {
	return s.SyncSmart(account, &account, id, true)
}
