package orders

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStartLimit(t *testing.T) {
	svc, _, venue := newTestService(t)
	venue.addPool(poolAddr, juno, atom)
	venue.setRate(juno, 500, 1000) // 1000 ujuno quotes 500 uatom: price 2.0

	deposit := Deposit{Entries: []TokenAmount{{Token: juno, Amount: 1000}}}
	rcpt, err := svc.StartLimit(alice, deposit, LimitParams{
		SourceToken:   juno,
		Pool:          poolAddr,
		TakeProfitPct: 1000, // +10%
	})
	require.NoError(t, err)
	require.Equal(t, "start_limit", rcpt.Action)
	require.Equal(t, uint64(0), rcpt.ID)
	require.Len(t, rcpt.Instructions, 1)
	require.Equal(t, InstrSwap, rcpt.Instructions[0].Kind)
	require.Equal(t, int64(1000), rcpt.Instructions[0].InputAmount)

	rec, err := svc.Order(OrderTypeLimit, alice, rcpt.ID)
	require.NoError(t, err)
	require.NotNil(t, rec.Limit)
	ord := rec.Limit
	require.Equal(t, atom, ord.TargetToken)
	require.Equal(t, int64(1000), ord.InitialSourceAmount)
	require.Equal(t, int64(0), ord.SourceAmount)
	require.Equal(t, int64(500), ord.TargetAmount)
	require.Equal(t, int64(2_000_000), ord.AvgBuyPrice)
	require.Equal(t, int64(2_200_000), ord.TargetBuyPrice)
	require.False(t, ord.Finished)

	ids, err := svc.OrderIDs(OrderTypeLimit, alice)
	require.NoError(t, err)
	require.Equal(t, []uint64{0}, ids)

	// Nothing bleeds into another account's list.
	ids, err = svc.OrderIDs(OrderTypeLimit, bob)
	require.NoError(t, err)
	require.Empty(t, ids)
}

func TestStartLimitRejections(t *testing.T) {
	svc, _, venue := newTestService(t)
	venue.addPool(poolAddr, juno, atom)
	venue.setRate(juno, 500, 1000)

	junoDeposit := Deposit{Entries: []TokenAmount{{Token: juno, Amount: 1000}}}
	okParams := LimitParams{SourceToken: juno, Pool: poolAddr, TakeProfitPct: 1000}

	tests := []struct {
		name    string
		deposit Deposit
		params  LimitParams
		wantErr error
	}{
		{
			name:    "empty deposit",
			deposit: Deposit{},
			params:  okParams,
			wantErr: ErrEmptyBalance,
		},
		{
			name:    "deposit of wrong token",
			deposit: Deposit{Entries: []TokenAmount{{Token: atom, Amount: 1000}}},
			params:  okParams,
			wantErr: ErrInvalidInput,
		},
		{
			name:    "token not in pool",
			deposit: junoDeposit,
			params:  LimitParams{SourceToken: "uosmo", Pool: poolAddr, TakeProfitPct: 1000},
			wantErr: ErrPoolAndTokenMismatch,
		},
		{
			name:    "negative take profit",
			deposit: junoDeposit,
			params:  LimitParams{SourceToken: juno, Pool: poolAddr, TakeProfitPct: -1},
			wantErr: ErrInvalidInput,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.StartLimit(alice, tc.deposit, tc.params)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestSyncLimitWaitsBelowTarget(t *testing.T) {
	svc, _, venue := newTestService(t)
	venue.addPool(poolAddr, juno, atom)
	venue.setRate(juno, 550, 1100) // price 2.0

	deposit := Deposit{Entries: []TokenAmount{{Token: juno, Amount: 1100}}}
	start, err := svc.StartLimit(alice, deposit, LimitParams{SourceToken: juno, Pool: poolAddr, TakeProfitPct: 1000})
	require.NoError(t, err)

	// Price unchanged at 2.0, target is 2.2: keep waiting, no instructions.
	rcpt, err := svc.SyncLimit(alice, nil, start.ID, false)
	require.NoError(t, err)
	require.Equal(t, "sync_limit_waiting", rcpt.Action)
	require.Empty(t, rcpt.Instructions)

	// Price exactly at target still waits (strictly-above finishes).
	venue.setRate(juno, 500, 1100) // probe 1100 -> 500: price 2.2
	rcpt, err = svc.SyncLimit(alice, nil, start.ID, false)
	require.NoError(t, err)
	require.Equal(t, "sync_limit_waiting", rcpt.Action)

	active, err := svc.ledger.IsActive(OrderTypeLimit, alice, start.ID)
	require.NoError(t, err)
	require.True(t, active)
}

func TestSyncLimitFinishesAboveTarget(t *testing.T) {
	svc, _, venue := newTestService(t)
	venue.addPool(poolAddr, juno, atom)
	venue.setRate(juno, 500, 1000)

	deposit := Deposit{Entries: []TokenAmount{{Token: juno, Amount: 1000}}}
	start, err := svc.StartLimit(alice, deposit, LimitParams{SourceToken: juno, Pool: poolAddr, TakeProfitPct: 1000})
	require.NoError(t, err)

	// Price moves to 2.5, above the 2.2 target. Liquidating the held 500
	// uatom at 2.5 yields 1250 ujuno.
	venue.setRate(juno, 400, 1000)
	venue.setRate(atom, 2500, 1000)

	rcpt, err := svc.SyncLimit(alice, nil, start.ID, false)
	require.NoError(t, err)
	require.Equal(t, "sync_limit_success", rcpt.Action)
	require.Len(t, rcpt.Instructions, 2)
	require.Equal(t, InstrSwap, rcpt.Instructions[0].Kind)
	require.Equal(t, InstrTransfer, rcpt.Instructions[1].Kind)
	require.Equal(t, juno, rcpt.Instructions[1].Token)
	require.Equal(t, int64(1250), rcpt.Instructions[1].Amount)
	require.Equal(t, alice, rcpt.Instructions[1].Recipient)

	// Retired from the active list, record kept and finished.
	active, err := svc.ledger.IsActive(OrderTypeLimit, alice, start.ID)
	require.NoError(t, err)
	require.False(t, active)

	rec, err := svc.Order(OrderTypeLimit, alice, start.ID)
	require.NoError(t, err)
	require.True(t, rec.Limit.Finished)
	require.Equal(t, int64(0), rec.Limit.TargetAmount)

	// A finished order cannot be synced again.
	_, err = svc.SyncLimit(alice, nil, start.ID, false)
	require.ErrorIs(t, err, ErrOrderNotExist)
}

func TestStopLimitForcesFinish(t *testing.T) {
	svc, _, venue := newTestService(t)
	venue.addPool(poolAddr, juno, atom)
	venue.setRate(juno, 500, 1000)
	venue.setRate(atom, 2000, 1000)

	deposit := Deposit{Entries: []TokenAmount{{Token: juno, Amount: 1000}}}
	start, err := svc.StartLimit(alice, deposit, LimitParams{SourceToken: juno, Pool: poolAddr, TakeProfitPct: 1000})
	require.NoError(t, err)

	// Price never moved, but stop liquidates anyway at 2.0: 500 uatom
	// back to 1000 ujuno.
	rcpt, err := svc.StopLimit(alice, start.ID)
	require.NoError(t, err)
	require.Equal(t, "sync_limit_success", rcpt.Action)
	require.Equal(t, int64(1000), rcpt.Instructions[1].Amount)
}

func TestSyncLimitAuthorization(t *testing.T) {
	svc, _, venue := newTestService(t)
	venue.addPool(poolAddr, juno, atom)
	venue.setRate(juno, 500, 1000)
	venue.setRate(atom, 2000, 1000)

	deposit := Deposit{Entries: []TokenAmount{{Token: juno, Amount: 1000}}}
	start, err := svc.StartLimit(alice, deposit, LimitParams{SourceToken: juno, Pool: poolAddr, TakeProfitPct: 1000})
	require.NoError(t, err)

	// Bob may not sync alice's order.
	_, err = svc.SyncLimit(bob, &alice, start.ID, false)
	require.ErrorIs(t, err, ErrUnauthorized)

	// The service owner may.
	rcpt, err := svc.SyncLimit(serviceOwner, &alice, start.ID, false)
	require.NoError(t, err)
	require.Equal(t, "sync_limit_waiting", rcpt.Action)
	require.Equal(t, alice, rcpt.Account)

	// A sync of a never-created id fails.
	_, err = svc.SyncLimit(alice, nil, 99, false)
	require.ErrorIs(t, err, ErrOrderNotExist)
}
