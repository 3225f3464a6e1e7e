package strategy

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"marketmaker/internal/exchange"
	"marketmaker/internal/metrics"
	"marketmaker/pkg/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeExchange is a minimal Kalshi-shaped HTTP server that only answers the
// handful of routes the controller exercises in one Tick.
type fakeExchange struct {
	status  string
	volume  int
	yesBid  int
	yesAsk  int
	orders  []types.OrderRow
	cancels [][]string
}

func (f *fakeExchange) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/log_in", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"token":"tok","user_id":"u1"}`))
	})
	mux.HandleFunc("/v1/markets_by_ticker/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		body := map[string]any{"market": types.MarketDetails{
			Status: f.status, Volume: f.volume, YesBid: f.yesBid, YesAsk: f.yesAsk,
		}}
		_ = json.NewEncoder(w).Encode(body)
	})
	mux.HandleFunc("/v1/users/u1/orders", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"orders": f.orders})
	})
	mux.HandleFunc("/v1/users/u1/batch_orders", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodDelete {
			var body struct {
				IDs []string `json:"ids"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			f.cancels = append(f.cancels, body.IDs)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"orders": []types.PlacedOrderRow{}})
	})
	return mux
}

func newTestController(f *fakeExchange) (*Controller, *metrics.Metrics) {
	srv := httptest.NewServer(f.handler())

	session := exchange.NewSession(types.Demo, types.Credentials{Email: "a@b.com", Password: "pw"})
	client := exchange.NewClient(types.Demo, session, false, testLogger())
	client.SetBaseURL(srv.URL)

	m := metrics.New(prometheus.NewRegistry())
	return NewController(client, m, testLogger(), true), m
}

func counterValue(c *prometheus.CounterVec, labels ...string) float64 {
	var out dto.Metric
	_ = c.WithLabelValues(labels...).Write(&out)
	return out.GetCounter().GetValue()
}

func baseProfile() types.MarketProfile {
	return types.MarketProfile{
		MarketTicker:          "INXD-24",
		InstantLiquidityCents: 10000,
		MaxExposureCents:      50000,
		PriceStickyness:       10,
		Spread:                5,
		Depth:                 3,
	}
}

// TestTickRetiresPastClearTime grounds spec scenario S4.
func TestTickRetiresPastClearTime(t *testing.T) {
	t.Parallel()
	f := &fakeExchange{status: "active", volume: 100, yesBid: 48, yesAsk: 52}
	c, _ := newTestController(f)

	profile := baseProfile()
	profile.ClearTimeRaw = time.Now().Add(-time.Hour).Format(time.RFC3339)
	state := &types.PerMarketState{}

	result := c.Tick(context.Background(), time.Now(), profile, state, nil)

	if !result.Retire {
		t.Fatal("expected Retire=true past clear_time")
	}
	want := fmt.Sprintf("Clearing: %s (passed clear time)", profile.MarketTicker)
	if result.Reason != want {
		t.Errorf("Reason = %q, want %q", result.Reason, want)
	}
}

func TestTickRetiresClosedMarket(t *testing.T) {
	t.Parallel()
	f := &fakeExchange{status: "closed", volume: 100, yesBid: 48, yesAsk: 52}
	c, _ := newTestController(f)

	profile := baseProfile()
	state := &types.PerMarketState{}

	result := c.Tick(context.Background(), time.Now(), profile, state, nil)

	if !result.Retire {
		t.Fatal("expected Retire=true for non-active market")
	}
	want := fmt.Sprintf("Stopping: %s (closed)", profile.MarketTicker)
	if result.Reason != want {
		t.Errorf("Reason = %q, want %q", result.Reason, want)
	}
}

func TestTickQuiescenceGuardSkipsZeroVolume(t *testing.T) {
	t.Parallel()
	f := &fakeExchange{status: "active", volume: 0, yesBid: 48, yesAsk: 52}
	c, _ := newTestController(f)

	profile := baseProfile()
	state := &types.PerMarketState{}

	result := c.Tick(context.Background(), time.Now(), profile, state, nil)
	if result.Retire {
		t.Error("zero-volume market should not retire")
	}
	if len(f.cancels) != 0 {
		t.Error("zero-volume tick should not touch orders")
	}
}

// TestTickSnipeDetectionAndCooldown grounds spec scenario S3: a seeded fair
// value far from the public mid is a snipe; no quoting happens again until
// snipe_timeout_seconds elapses.
func TestTickSnipeDetectionAndCooldown(t *testing.T) {
	t.Parallel()
	f := &fakeExchange{status: "active", volume: 100, yesBid: 10, yesAsk: 14}
	c, m := newTestController(f)

	cooldown := 60
	profile := baseProfile()
	profile.SnipeTimeoutSecs = &cooldown

	state := &types.PerMarketState{FairValue: 50, LastPosition: 0}
	now := time.Now()

	result := c.Tick(context.Background(), now, profile, state, nil)
	if result.Retire {
		t.Fatal("a snipe should not retire the market")
	}
	if state.LastSnipeAt == nil {
		t.Fatal("expected LastSnipeAt to be set after a snipe")
	}
	if state.Seeded() {
		t.Error("snipe should reset FairValue to unseeded")
	}
	if counterValue(m.Snipes, profile.MarketTicker) != 1 {
		t.Error("expected snipe counter to increment")
	}

	// Immediately after, within cooldown: the tick should bail at the
	// cooldown check, so no placement/cancellation should happen.
	cancelsBefore := len(f.cancels)
	result2 := c.Tick(context.Background(), now.Add(time.Second), profile, state, nil)
	if result2.Retire {
		t.Error("cooldown tick should not retire")
	}
	if len(f.cancels) != cancelsBefore {
		t.Error("cooldown tick should not touch orders")
	}
}

func TestTickSeedsFairValueFromMid(t *testing.T) {
	t.Parallel()
	f := &fakeExchange{status: "active", volume: 100, yesBid: 48, yesAsk: 52}
	c, _ := newTestController(f)

	profile := baseProfile()
	state := &types.PerMarketState{}

	c.Tick(context.Background(), time.Now(), profile, state, nil)

	if state.FairValue != 50 {
		t.Errorf("FairValue = %d, want seeded mid 50", state.FairValue)
	}
}
