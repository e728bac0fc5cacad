package orders

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// StartLimit deploys the full deposit into the target token and records
// the take-profit target. The order starts fully deployed: the residual
// source amount is zero.
func (s *Service) StartLimit(account common.Address, deposit Deposit, p LimitParams) (Receipt, error) {
	if err := s.requireEnabled(); err != nil {
		return Receipt{}, err
	}
	if deposit.IsEmpty() {
		return Receipt{}, ErrEmptyBalance
	}
	if p.TakeProfitPct < 0 {
		return Receipt{}, fmt.Errorf("%w: negative take profit %d", ErrInvalidInput, p.TakeProfitPct)
	}
	if err := s.venue.ValidateTokenInPool(p.SourceToken, p.Pool); err != nil {
		return Receipt{}, err
	}
	amount, err := deposit.AmountOf(p.SourceToken)
	if err != nil {
		return Receipt{}, err
	}

	quote, err := s.venue.QuoteSwap(p.Pool, p.SourceToken, amount)
	if err != nil {
		return Receipt{}, err
	}
	if quote.OutAmount <= 0 {
		return Receipt{}, fmt.Errorf("%w: pool quoted %d for %d %s", ErrInvalidInput, quote.OutAmount, amount, p.SourceToken)
	}

	d, m := s.venue.DecimalScale(), s.venue.PercentScale()
	avgBuyPrice := amount * d / quote.OutAmount
	targetBuyPrice := avgBuyPrice * (m + p.TakeProfitPct) / m

	id, err := s.ledger.Register(OrderTypeLimit, account)
	if err != nil {
		return Receipt{}, err
	}
	ord := LimitOrder{
		Params:              p,
		TargetToken:         quote.OutToken,
		InitialSourceAmount: amount,
		SourceAmount:        0,
		TargetAmount:        quote.OutAmount,
		AvgBuyPrice:         avgBuyPrice,
		TargetBuyPrice:      targetBuyPrice,
	}
	if err := s.ledger.SaveOrder(OrderTypeLimit, account, id, &ord); err != nil {
		return Receipt{}, err
	}

	s.log.Infow("start_limit",
		"account", account.Hex(), "id", id,
		"avg_buy_price", avgBuyPrice, "target_buy_price", targetBuyPrice)
	return Receipt{
		Action:       "start_limit",
		Account:      account,
		ID:           id,
		Instructions: quote.Instructions,
	}, nil
}

// SyncLimit re-quotes the original deposit to discover the current buy
// price. Above the target (or when forced) the held target amount is
// liquidated and paid out to the owner; otherwise nothing changes.
func (s *Service) SyncLimit(caller common.Address, account *common.Address, id uint64, forceFinish bool) (Receipt, error) {
	owner, err := s.resolveSyncTarget(caller, account)
	if err != nil {
		return Receipt{}, err
	}
	active, err := s.ledger.IsActive(OrderTypeLimit, owner, id)
	if err != nil {
		return Receipt{}, err
	}
	if !active {
		return Receipt{}, fmt.Errorf("%w: limit order %d for %s", ErrOrderNotExist, id, owner.Hex())
	}
	var ord LimitOrder
	if err := s.ledger.LoadOrder(OrderTypeLimit, owner, id, &ord); err != nil {
		return Receipt{}, err
	}
	// Finishing retires the id before the record is marked, so an
	// active id never maps to a finished record; this only trips when
	// the index and the record store have diverged.
	if ord.Finished {
		return Receipt{}, fmt.Errorf("%w: limit order %d", ErrAlreadyFinishedOrder, id)
	}

	probe, err := s.venue.QuoteSwap(ord.Params.Pool, ord.Params.SourceToken, ord.InitialSourceAmount)
	if err != nil {
		return Receipt{}, err
	}
	if probe.OutAmount <= 0 {
		return Receipt{}, fmt.Errorf("%w: pool quoted %d for probe", ErrInvalidInput, probe.OutAmount)
	}
	currentPrice := ord.InitialSourceAmount * s.venue.DecimalScale() / probe.OutAmount

	if currentPrice <= ord.TargetBuyPrice && !forceFinish {
		s.log.Infow("sync_limit_waiting",
			"account", owner.Hex(), "id", id,
			"current_price", currentPrice, "target_buy_price", ord.TargetBuyPrice)
		return Receipt{Action: "sync_limit_waiting", Account: owner, ID: id}, nil
	}

	liq, err := s.venue.QuoteSwap(ord.Params.Pool, ord.TargetToken, ord.TargetAmount)
	if err != nil {
		return Receipt{}, err
	}
	payout := liq.OutAmount + ord.SourceAmount
	transfer, err := s.venue.TransferInstruction(ord.Params.SourceToken, payout, owner)
	if err != nil {
		return Receipt{}, err
	}
	instrs := append(liq.Instructions, transfer)

	if err := s.ledger.Retire(OrderTypeLimit, owner, id); err != nil {
		return Receipt{}, err
	}
	ord.Finished = true
	ord.TargetAmount = 0
	if err := s.ledger.SaveOrder(OrderTypeLimit, owner, id, &ord); err != nil {
		return Receipt{}, err
	}

	s.log.Infow("sync_limit_success",
		"account", owner.Hex(), "id", id,
		"current_price", currentPrice, "payout", payout, "forced", forceFinish)
	return Receipt{
		Action:       "sync_limit_success",
		Account:      owner,
		ID:           id,
		Instructions: instrs,
	}, nil
}

// StopLimit force-finishes the caller's own limit order.
func (s *Service) StopLimit(account common.Address, id uint64) (Receipt, error) {
	return s.SyncLimit(account, &account, id, true)
}
