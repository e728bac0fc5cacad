package orders

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

func validateGridParams(p GridParams) error {
	if p.TotalAmount <= 0 {
		return fmt.Errorf("%w: total amount %d", ErrInvalidInput, p.TotalAmount)
	}
	if p.NumPairs <= 0 {
		return fmt.Errorf("%w: grid pair count %d", ErrInvalidInput, p.NumPairs)
	}
	if p.PriceRangePct <= 0 {
		return fmt.Errorf("%w: price range %d", ErrInvalidInput, p.PriceRangePct)
	}
	return nil
}

// StartGrid swaps half of the committed amount into the target token,
// then builds symmetric buy/sell price ladders around the resulting
// average buy price. Deposit in excess of TotalAmount is refunded.
func (s *Service) StartGrid(account common.Address, deposit Deposit, p GridParams) (Receipt, error) {
	if err := s.requireEnabled(); err != nil {
		return Receipt{}, err
	}
	if deposit.IsEmpty() {
		return Receipt{}, ErrEmptyBalance
	}
	if err := validateGridParams(p); err != nil {
		return Receipt{}, err
	}
	if err := s.venue.ValidateTokenInPool(p.SourceToken, p.Pool); err != nil {
		return Receipt{}, err
	}
	amount, err := deposit.AmountOf(p.SourceToken)
	if err != nil {
		return Receipt{}, err
	}
	if amount < p.TotalAmount {
		return Receipt{}, fmt.Errorf("%w: need %d %s, got %d", ErrInsufficientAmountForGridOrder, p.TotalAmount, p.SourceToken, amount)
	}
	var instrs []Instruction
	if excess := amount - p.TotalAmount; excess > 0 {
		refund, err := s.venue.TransferInstruction(p.SourceToken, excess, account)
		if err != nil {
			return Receipt{}, err
		}
		instrs = append(instrs, refund)
		amount = p.TotalAmount
	}

	firstSwap := amount / 2
	quote, err := s.venue.QuoteSwap(p.Pool, p.SourceToken, firstSwap)
	if err != nil {
		return Receipt{}, err
	}
	if quote.OutAmount <= 0 {
		return Receipt{}, fmt.Errorf("%w: pool quoted %d for initial split", ErrInvalidInput, quote.OutAmount)
	}
	instrs = append(instrs, quote.Instructions...)

	d, m := s.venue.DecimalScale(), s.venue.PercentScale()
	avgBuyPrice := firstSwap * d / quote.OutAmount

	// Symmetric ladders: pair i sits delta*i percent above and below
	// the initial average buy price.
	delta := p.PriceRangePct / int64(p.NumPairs)
	buyPrices := make([]int64, p.NumPairs)
	sellPrices := make([]int64, p.NumPairs)
	for i := 1; i <= p.NumPairs; i++ {
		sellPrices[i-1] = avgBuyPrice * (m + delta*int64(i)) / m
		buyPrices[i-1] = avgBuyPrice * (m - delta*int64(i)) / m
	}

	id, err := s.ledger.Register(OrderTypeGrid, account)
	if err != nil {
		return Receipt{}, err
	}
	ord := GridOrder{
		Params:       p,
		TargetToken:  quote.OutToken,
		BuyPrices:    buyPrices,
		SellPrices:   sellPrices,
		StepSize:     (p.TotalAmount - firstSwap) / int64(p.NumPairs),
		SourceAmount: amount - firstSwap,
		TargetAmount: quote.OutAmount,
	}
	if err := s.ledger.SaveOrder(OrderTypeGrid, account, id, &ord); err != nil {
		return Receipt{}, err
	}

	s.log.Infow("start_grid",
		"account", account.Hex(), "id", id,
		"avg_buy_price", avgBuyPrice, "step_size", ord.StepSize, "pairs", p.NumPairs)
	return Receipt{
		Action:       "start_grid",
		Account:      account,
		ID:           id,
		Instructions: instrs,
	}, nil
}

// SyncGrid advances the two ladders independently: the buy ladder
// converts a step of source token whenever the price sits at or below
// the next buy rung, the sell ladder converts target token back
// whenever the round-trip price sits at or above the next sell rung.
// Ladder progress alone never finishes a grid order; only a forced sync
// liquidates and settles.
func (s *Service) SyncGrid(caller common.Address, account *common.Address, id uint64, forceFinish bool) (Receipt, error) {
	owner, err := s.resolveSyncTarget(caller, account)
	if err != nil {
		return Receipt{}, err
	}
	active, err := s.ledger.IsActive(OrderTypeGrid, owner, id)
	if err != nil {
		return Receipt{}, err
	}
	if !active {
		return Receipt{}, fmt.Errorf("%w: grid order %d for %s", ErrOrderNotExist, id, owner.Hex())
	}
	var ord GridOrder
	if err := s.ledger.LoadOrder(OrderTypeGrid, owner, id, &ord); err != nil {
		return Receipt{}, err
	}
	// See SyncLimit: an active id never maps to a finished record
	// unless index and record store have diverged.
	if ord.Finished {
		return Receipt{}, fmt.Errorf("%w: grid order %d", ErrAlreadyFinishedOrder, id)
	}

	d := s.venue.DecimalScale()
	var instrs []Instruction

	for ord.BuyProgress < ord.Params.NumPairs {
		q, err := s.venue.QuoteSwap(ord.Params.Pool, ord.Params.SourceToken, ord.StepSize)
		if err != nil {
			return Receipt{}, err
		}
		if q.OutAmount <= 0 {
			return Receipt{}, fmt.Errorf("%w: pool quoted %d for buy step", ErrInvalidInput, q.OutAmount)
		}
		price := ord.StepSize * d / q.OutAmount
		if price > ord.BuyPrices[ord.BuyProgress] {
			break
		}
		instrs = append(instrs, q.Instructions...)
		ord.SourceAmount -= ord.StepSize
		ord.TargetAmount += q.OutAmount
		ord.BuyProgress++
	}

	for ord.SellProgress < ord.Params.NumPairs {
		// Two-hop price discovery: quote a step of source token forward
		// to find the mid amount, then quote that mid amount back. Only
		// the backward leg executes; the forward quote is numeric only.
		probe, err := s.venue.QuoteSwap(ord.Params.Pool, ord.Params.SourceToken, ord.StepSize)
		if err != nil {
			return Receipt{}, err
		}
		if probe.OutAmount <= 0 {
			return Receipt{}, fmt.Errorf("%w: pool quoted %d for sell probe", ErrInvalidInput, probe.OutAmount)
		}
		back, err := s.venue.QuoteSwap(ord.Params.Pool, ord.TargetToken, probe.OutAmount)
		if err != nil {
			return Receipt{}, err
		}
		price := back.OutAmount * d / probe.OutAmount
		if price < ord.SellPrices[ord.SellProgress] {
			break
		}
		instrs = append(instrs, back.Instructions...)
		ord.SourceAmount += back.OutAmount
		ord.TargetAmount -= probe.OutAmount
		ord.SellProgress++
	}

	action := "sync_grid_waiting"
	if forceFinish {
		if err := s.ledger.Retire(OrderTypeGrid, owner, id); err != nil {
			return Receipt{}, err
		}
		liq, err := s.venue.QuoteSwap(ord.Params.Pool, ord.TargetToken, ord.TargetAmount)
		if err != nil {
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
		action = "sync_grid_success"
	}
	if err := s.ledger.SaveOrder(OrderTypeGrid, owner, id, &ord); err != nil {
		return Receipt{}, err
	}

	s.log.Infow(action,
		"account", owner.Hex(), "id", id,
		"buy_progress", ord.BuyProgress, "sell_progress", ord.SellProgress, "forced", forceFinish)
	return Receipt{
		Action:       action,
		Account:      owner,
		ID:           id,
		Instructions: instrs,
	}, nil
}

// StopGrid force-finishes the caller's own grid order.
func (s *Service) StopGrid(account common.Address, id uint64) (Receipt, error) {
	return s.SyncGrid(account, &account, id, true)
}
