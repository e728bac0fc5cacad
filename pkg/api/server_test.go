package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/SmithChan/universe-dao-contracts/params"
	"github.com/SmithChan/universe-dao-contracts/pkg/amm"
	"github.com/SmithChan/universe-dao-contracts/pkg/orders"
	"github.com/SmithChan/universe-dao-contracts/pkg/storage"
)

const (
	ownerHex = "0x00000000000000000000000000000000000000aa"
	aliceHex = "0x0000000000000000000000000000000000000a11"
	poolHex  = "0x00000000000000000000000000000000000000f0"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := params.Default()
	store, err := storage.NewOrderStore(filepath.Join(t.TempDir(), "orders-db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	venue := amm.NewVenue(cfg.Orders.DecimalScale, cfg.Orders.PercentScale)
	require.NoError(t, venue.AddPool(&amm.Pool{
		Addr:     common.HexToAddress(poolHex),
		TokenA:   "ujuno",
		TokenB:   "uatom",
		ReserveA: 1_000_000,
		ReserveB: 500_000,
	}))

	svc, err := orders.NewService(cfg.Orders, store, venue, common.HexToAddress(ownerHex), zap.NewNop().Sugar())
	require.NoError(t, err)
	return NewServer(svc, amm.NewExecutor(venue), zap.NewNop().Sugar())
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func startLimitBody(amount int64) StartLimitRequest {
	return StartLimitRequest{
		Account:       aliceHex,
		Deposit:       []DepositEntry{{Token: "ujuno", Amount: amount}},
		SourceToken:   "ujuno",
		Pool:          poolHex,
		TakeProfitPct: 1000,
	}
}

func TestStartLimitEndpoint(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(t, s, "POST", "/api/v1/orders/limit", startLimitBody(1000))
	require.Equal(t, http.StatusOK, w.Code)

	var resp ReceiptResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Equal(t, "start_limit", resp.Receipt.Action)
	require.Equal(t, uint64(0), resp.Receipt.ID)
	require.NotEmpty(t, resp.Receipt.Instructions)

	// The order is readable back through the query surface.
	w = doJSON(t, s, "GET", fmt.Sprintf("/api/v1/orders/limit/%s/0", aliceHex), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var rec orders.OrderRecord
	require.NoError(t, json.NewDecoder(w.Body).Decode(&rec))
	require.NotNil(t, rec.Limit)
	require.Equal(t, int64(1000), rec.Limit.InitialSourceAmount)

	w = doJSON(t, s, "GET", fmt.Sprintf("/api/v1/orders/limit/%s/ids", aliceHex), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var ids OrderIDsResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&ids))
	require.Equal(t, []uint64{0}, ids.IDs)

	w = doJSON(t, s, "GET", "/api/v1/orders/limit/accounts", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var accounts AccountsResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&accounts))
	require.Len(t, accounts.Accounts, 1)
}

func TestStartLimitEndpointRejections(t *testing.T) {
	s := newTestServer(t)

	bad := startLimitBody(1000)
	bad.Account = "not-an-address"
	w := doJSON(t, s, "POST", "/api/v1/orders/limit", bad)
	require.Equal(t, http.StatusBadRequest, w.Code)

	// Empty deposit surfaces the service taxonomy as 422.
	empty := startLimitBody(1000)
	empty.Deposit = nil
	w = doJSON(t, s, "POST", "/api/v1/orders/limit", empty)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	var errResp ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&errResp))
	require.Equal(t, "rejected", errResp.Error)
}

func TestSyncAndStopEndpoints(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(t, s, "POST", "/api/v1/orders/limit", startLimitBody(1000))
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, s, "POST", "/api/v1/orders/sync", SyncRequest{
		Caller:    aliceHex,
		OrderType: "limit",
		ID:        0,
	})
	require.Equal(t, http.StatusOK, w.Code)
	var resp ReceiptResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Equal(t, "sync_limit_waiting", resp.Receipt.Action)

	w = doJSON(t, s, "POST", "/api/v1/orders/stop", StopRequest{
		Caller:    aliceHex,
		OrderType: "limit",
		ID:        0,
	})
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Equal(t, "sync_limit_success", resp.Receipt.Action)

	// Gone from the active set: a second stop is a 404.
	w = doJSON(t, s, "POST", "/api/v1/orders/stop", StopRequest{
		Caller:    aliceHex,
		OrderType: "limit",
		ID:        0,
	})
	require.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, s, "POST", "/api/v1/orders/sync", SyncRequest{
		Caller:    aliceHex,
		OrderType: "margin",
		ID:        0,
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminEndpoints(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(t, s, "GET", "/api/v1/admin/config", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var cfg ConfigResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&cfg))
	require.True(t, cfg.Enabled)

	// Non-owner toggles are forbidden.
	w = doJSON(t, s, "POST", "/api/v1/admin/enabled", UpdateEnabledRequest{
		Caller:  aliceHex,
		Enabled: false,
	})
	require.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(t, s, "POST", "/api/v1/admin/enabled", UpdateEnabledRequest{
		Caller:  ownerHex,
		Enabled: false,
	})
	require.Equal(t, http.StatusOK, w.Code)

	// Starts are refused while disabled.
	w = doJSON(t, s, "POST", "/api/v1/orders/limit", startLimitBody(1000))
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = doJSON(t, s, "POST", "/api/v1/admin/withdraw", WithdrawRequest{
		Caller: ownerHex,
		Token:  "ujuno",
		Amount: 100,
	})
	require.Equal(t, http.StatusOK, w.Code)
	var resp ReceiptResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Equal(t, "withdraw", resp.Receipt.Action)
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t)
	w := doJSON(t, s, "GET", "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
}
