package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"marketmaker/internal/errs"
	"marketmaker/pkg/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newDryRunClient() *Client {
	return &Client{
		dryRun:  true,
		rl:      NewRateLimiter(),
		logger:  testLogger(),
		session: NewSession(types.Demo, types.Credentials{}),
	}
}

func TestDryRunPlaceOrders(t *testing.T) {
	t.Parallel()
	c := newDryRunClient()

	orders := []types.Order{
		{MarketID: "mkt1", Side: types.Yes, Price: 48, Count: 66},
		{MarketID: "mkt1", Side: types.No, Price: 48, Count: 66},
	}

	results, err := c.PlaceOrders(context.Background(), orders, true)
	if err != nil {
		t.Fatalf("PlaceOrders: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	for i, r := range results {
		if r.OrderID == "" {
			t.Errorf("result[%d].OrderID is empty", i)
		}
	}
}

func TestDryRunPlaceOrdersEmpty(t *testing.T) {
	t.Parallel()
	c := newDryRunClient()

	results, err := c.PlaceOrders(context.Background(), nil, true)
	if err != nil {
		t.Fatalf("PlaceOrders: %v", err)
	}
	if results != nil {
		t.Errorf("expected nil for empty orders, got %v", results)
	}
}

func TestDryRunCancelOrders(t *testing.T) {
	t.Parallel()
	c := newDryRunClient()

	if err := c.CancelOrders(context.Background(), []string{"a", "b"}, true); err != nil {
		t.Fatalf("CancelOrders: %v", err)
	}
}

func TestDryRunCancelOrdersEmpty(t *testing.T) {
	t.Parallel()
	c := newDryRunClient()

	if err := c.CancelOrders(context.Background(), nil, true); err != nil {
		t.Fatalf("CancelOrders: %v", err)
	}
}

// TestCancelOrdersBatchPacing exercises spec scenario S6: 45 order_ids with
// advanced_api=true should be sent as three DELETE requests of sizes
// 19, 19, 7, with at least 300ms between each.
func TestCancelOrdersBatchPacing(t *testing.T) {
	var reqCount int32
	var reqSizes []int
	var times []time.Time

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		times = append(times, time.Now())
		atomic.AddInt32(&reqCount, 1)

		var body struct {
			IDs []string `json:"ids"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		reqSizes = append(reqSizes, len(body.IDs))

		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	session := NewSession(types.Demo, types.Credentials{Email: "a@b.com", Password: "pw"})
	session.lastLoginAt = time.Now() // skip login round-trip
	session.userID = "u1"
	session.token = "t1"

	c := NewClient(types.Demo, session, false, testLogger())
	c.http.SetBaseURL(srv.URL)

	ids := make([]string, 45)
	for i := range ids {
		ids[i] = "o" + string(rune('0'+i%10))
	}

	start := time.Now()
	if err := c.CancelOrders(context.Background(), ids, true); err != nil {
		t.Fatalf("CancelOrders: %v", err)
	}
	elapsed := time.Since(start)

	if atomic.LoadInt32(&reqCount) != 3 {
		t.Fatalf("expected 3 requests, got %d", reqCount)
	}
	if reqSizes[0] != 19 || reqSizes[1] != 19 || reqSizes[2] != 7 {
		t.Errorf("request sizes = %v, want [19 19 7]", reqSizes)
	}
	if elapsed < 600*time.Millisecond {
		t.Errorf("elapsed %v, want at least 2*300ms between 3 requests", elapsed)
	}
}

func TestListPositionsKeyedByMarketID(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"market_positions":[{"market_id":"mkt1","position":30,"position_cost":1500}]}`))
	}))
	defer srv.Close()

	session := NewSession(types.Demo, types.Credentials{})
	session.lastLoginAt = time.Now()
	session.userID = "u1"
	session.token = "t1"

	c := NewClient(types.Demo, session, false, testLogger())
	c.http.SetBaseURL(srv.URL)

	positions, err := c.ListPositions(context.Background())
	if err != nil {
		t.Fatalf("ListPositions: %v", err)
	}
	row, ok := positions["mkt1"]
	if !ok {
		t.Fatalf("expected position for mkt1, got %v", positions)
	}
	if row.Position != 30 || row.PositionCost != 1500 {
		t.Errorf("row = %+v, want {Position:30 PositionCost:1500}", row)
	}
}

func TestUnauthorizedResponseInvalidatesSessionAndRelogsIn(t *testing.T) {
	t.Parallel()

	var logins int32
	var marketCalls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/log_in":
			atomic.AddInt32(&logins, 1)
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"token":"tok","user_id":"u1"}`))
		default:
			n := atomic.AddInt32(&marketCalls, 1)
			if n == 1 {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"market":{"status":"active"}}`))
		}
	}))
	defer srv.Close()

	session := NewSession(types.Demo, types.Credentials{Email: "a@b.com", Password: "pw"})
	c := NewClient(types.Demo, session, false, testLogger())
	c.http.SetBaseURL(srv.URL)

	_, err := c.GetMarket(context.Background(), "INXD-24")
	if err == nil {
		t.Fatal("expected AuthExpired on first 401 response")
	}
	var te *errs.AuthExpired
	if !errors.As(err, &te) {
		t.Fatalf("expected *errs.AuthExpired, got %T", err)
	}

	// The 401 should have invalidated the session, forcing a fresh login on
	// the next authenticated call rather than waiting out staleAfter.
	session.mu.Lock()
	stale := session.lastLoginAt.IsZero()
	session.mu.Unlock()
	if !stale {
		t.Fatal("expected session to be invalidated after a 401")
	}

	if _, err := c.GetMarket(context.Background(), "INXD-24"); err != nil {
		t.Fatalf("GetMarket after relogin: %v", err)
	}
	if atomic.LoadInt32(&logins) != 2 {
		t.Errorf("expected 2 logins (initial + forced relogin), got %d", logins)
	}
}
