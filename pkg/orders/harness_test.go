package orders

import (
	"fmt"
	"sort"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/SmithChan/universe-dao-contracts/params"
)

// memStore is a map-backed Store for engine tests.
type memStore struct {
	idx map[string]OrderIndex
	rec map[string][]byte
	cfg *ServiceConfig
}

func newMemStore() *memStore {
	return &memStore{
		idx: make(map[string]OrderIndex),
		rec: make(map[string][]byte),
	}
}

func idxKey(typ OrderType, addr common.Address) string {
	return fmt.Sprintf("%s:0x%x", typ, addr[:])
}

func recKey(typ OrderType, addr common.Address, id uint64) string {
	return fmt.Sprintf("%s:0x%x:%d", typ, addr[:], id)
}

func (m *memStore) LoadIndex(typ OrderType, addr common.Address) (OrderIndex, bool, error) {
	idx, ok := m.idx[idxKey(typ, addr)]
	return idx, ok, nil
}

func (m *memStore) SaveIndex(typ OrderType, addr common.Address, idx OrderIndex) error {
	m.idx[idxKey(typ, addr)] = idx
	return nil
}

func (m *memStore) LoadRecord(typ OrderType, addr common.Address, id uint64) ([]byte, bool, error) {
	data, ok := m.rec[recKey(typ, addr, id)]
	return data, ok, nil
}

func (m *memStore) SaveRecord(typ OrderType, addr common.Address, id uint64, data []byte) error {
	m.rec[recKey(typ, addr, id)] = data
	return nil
}

func (m *memStore) Accounts(typ OrderType, startAfter *common.Address, limit int) ([]common.Address, error) {
	prefix := fmt.Sprintf("%s:", typ)
	var hexes []string
	for k := range m.idx {
		if len(k) > len(prefix) && k[:len(prefix)] == prefix {
			hexes = append(hexes, k[len(prefix):])
		}
	}
	sort.Strings(hexes)
	var out []common.Address
	cursor := ""
	if startAfter != nil {
		cursor = fmt.Sprintf("0x%x", (*startAfter)[:])
	}
	for _, h := range hexes {
		if cursor != "" && h <= cursor {
			continue
		}
		if len(out) >= limit {
			break
		}
		out = append(out, common.HexToAddress(h))
	}
	return out, nil
}

func (m *memStore) LoadServiceConfig() (ServiceConfig, bool, error) {
	if m.cfg == nil {
		return ServiceConfig{}, false, nil
	}
	return *m.cfg, true, nil
}

func (m *memStore) SaveServiceConfig(cfg ServiceConfig) error {
	m.cfg = &cfg
	return nil
}

// rate prices one direction of a stub pool: quoting in of the keyed
// token yields in*Num/Den of the counter token.
type rate struct {
	Num, Den int64
}

// stubVenue is a SwapVenue with directly settable exchange rates, so
// tests control quoted prices exactly.
type stubVenue struct {
	d, m  int64
	pools map[common.Address][2]Token
	rates map[Token]rate
}

func newStubVenue() *stubVenue {
	return &stubVenue{
		d:     1_000_000,
		m:     10_000,
		pools: make(map[common.Address][2]Token),
		rates: make(map[Token]rate),
	}
}

func (v *stubVenue) addPool(addr common.Address, a, b Token) {
	v.pools[addr] = [2]Token{a, b}
}

func (v *stubVenue) setRate(token Token, num, den int64) {
	v.rates[token] = rate{Num: num, Den: den}
}

func (v *stubVenue) other(pool common.Address, token Token) (Token, bool) {
	pair, ok := v.pools[pool]
	if !ok {
		return "", false
	}
	switch token {
	case pair[0]:
		return pair[1], true
	case pair[1]:
		return pair[0], true
	default:
		return "", false
	}
}

func (v *stubVenue) ValidateTokenInPool(token Token, pool common.Address) error {
	if _, ok := v.other(pool, token); !ok {
		return fmt.Errorf("%w: %s", ErrPoolAndTokenMismatch, token)
	}
	return nil
}

func (v *stubVenue) QuoteSwap(pool common.Address, input Token, amount int64) (SwapQuote, error) {
	out, ok := v.other(pool, input)
	if !ok {
		return SwapQuote{}, fmt.Errorf("%w: %s", ErrPoolAndTokenMismatch, input)
	}
	if amount == 0 {
		return SwapQuote{OutToken: out}, nil
	}
	r, ok := v.rates[input]
	if !ok {
		return SwapQuote{}, fmt.Errorf("no rate for %s", input)
	}
	return SwapQuote{
		OutAmount: amount * r.Num / r.Den,
		OutToken:  out,
		Instructions: []Instruction{{
			Kind:        InstrSwap,
			Pool:        pool,
			InputToken:  input,
			InputAmount: amount,
		}},
	}, nil
}

func (v *stubVenue) TransferInstruction(token Token, amount int64, recipient common.Address) (Instruction, error) {
	return Instruction{Kind: InstrTransfer, Token: token, Amount: amount, Recipient: recipient}, nil
}

func (v *stubVenue) DecimalScale() int64 { return v.d }
func (v *stubVenue) PercentScale() int64 { return v.m }

// newTestService wires a service over a memStore and stubVenue.
func newTestService(t *testing.T) (*Service, *memStore, *stubVenue) {
	t.Helper()
	store := newMemStore()
	venue := newStubVenue()
	svc, err := NewService(params.Default().Orders, store, venue, serviceOwner, zap.NewNop().Sugar())
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc, store, venue
}

var (
	serviceOwner = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	alice        = common.HexToAddress("0x0000000000000000000000000000000000000a11")
	bob          = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	poolAddr     = common.HexToAddress("0x00000000000000000000000000000000000000f0")

	juno = Token("ujuno")
	atom = Token("uatom")
)
