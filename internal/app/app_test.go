package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ankhone/alpacahq-zipline/internal/config"
	"github.com/ankhone/alpacahq-zipline/internal/dailycache"
	"github.com/ankhone/alpacahq-zipline/internal/domain"
	"github.com/ankhone/alpacahq-zipline/internal/notify"
	"github.com/ankhone/alpacahq-zipline/internal/strategy"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Defaults()
	cfg.Alpaca.KeyID = "key"
	cfg.Alpaca.SecretKey = "secret"
	cfg.Cache.Dir = t.TempDir()
	cfg.Server.Enabled = false
	require.NoError(t, cfg.Validate())
	return &cfg
}

func TestConfigDefaultsMatchStrategyDefaults(t *testing.T) {
	cfg := config.Defaults()
	assert.Equal(t, strategy.DefaultParams(), strategyParams(cfg.Strategy))
	assert.Equal(t, strategy.DefaultUniverseParams(), universeParams(cfg.Universe))
}

func TestWireWithoutOptionalBackends(t *testing.T) {
	cfg := testConfig(t)

	deps, cleanup, err := Wire(context.Background(), cfg, discardLogger())
	require.NoError(t, err)
	defer cleanup()

	assert.Equal(t, "America/New_York", deps.Location.String())
	assert.IsType(t, &dailycache.FileStore{}, deps.CacheStore)
	assert.NotNil(t, deps.Alpaca)
	assert.NotNil(t, deps.Stream, "trade mode follows the trade stream")
	assert.NotNil(t, deps.Notifier)
	assert.Nil(t, deps.PositionStore)
	assert.Nil(t, deps.AuditStore)
	assert.Nil(t, deps.RateLimiter)
	assert.Nil(t, deps.LockManager)
	assert.Nil(t, deps.Archiver)
	assert.Empty(t, deps.HealthChecks)
}

func TestWireRejectsUnavailableCacheBackend(t *testing.T) {
	cfg := testConfig(t)
	cfg.Cache.Backend = "s3"

	_, _, err := Wire(context.Background(), cfg, discardLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s3 is disabled")
}

func TestWireRejectsUnknownTimezone(t *testing.T) {
	cfg := testConfig(t)
	cfg.Timezone = "Mars/Olympus_Mons"

	_, _, err := Wire(context.Background(), cfg, discardLogger())
	require.Error(t, err)
}

func TestScanModePrintsSelectedUniverse(t *testing.T) {
	recent := time.Now().Add(-24 * time.Hour).UTC()
	stale := time.Now().Add(-8 * 24 * time.Hour).UTC()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v2/assets", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, []map[string]any{
			{"id": "1", "symbol": "GOOD", "tradable": true},
			{"id": "2", "symbol": "DEAR", "tradable": true},
			{"id": "3", "symbol": "OLD", "tradable": true},
			{"id": "4", "symbol": "THIN", "tradable": true},
		})
	})
	mux.HandleFunc("GET /v2/stocks/bars", func(w http.ResponseWriter, r *http.Request) {
		bar := func(at time.Time, c, v float64) []map[string]any {
			return []map[string]any{{"t": at, "o": c, "h": c, "l": c, "c": c, "v": v}}
		}
		writeJSON(w, map[string]any{
			"bars": map[string]any{
				"GOOD": bar(recent, 5.00, 400_000),
				"DEAR": bar(recent, 15.00, 400_000),
				"OLD":  bar(stale, 5.00, 400_000),
				"THIN": bar(recent, 5.00, 1_000),
			},
			"next_page_token": nil,
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := testConfig(t)
	cfg.Mode = "scan"
	cfg.Alpaca.TradingURL = srv.URL
	cfg.Alpaca.DataURL = srv.URL

	var out bytes.Buffer
	a := New(cfg, discardLogger())
	a.out = &out
	defer a.Close()

	require.NoError(t, a.Run(context.Background()))
	assert.Equal(t, "GOOD\n", out.String())
}

type lostLock struct{}

func (lostLock) Acquire(context.Context, string, time.Duration) (func(), <-chan struct{}, error) {
	lost := make(chan struct{})
	close(lost)
	return func() {}, lost, nil
}

func TestTradeModeStopsWhenInstanceLockLost(t *testing.T) {
	// Broker calls hang until trade mode cancels them.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	cfg := testConfig(t)
	cfg.Alpaca.TradingURL = srv.URL
	cfg.Alpaca.DataURL = srv.URL

	deps, cleanup, err := Wire(context.Background(), cfg, discardLogger())
	require.NoError(t, err)
	defer cleanup()
	deps.Stream = nil
	deps.LockManager = lostLock{}

	err = New(cfg, discardLogger()).TradeMode(context.Background(), deps)
	require.ErrorIs(t, err, domain.ErrLockLost)
}

type recordingSender struct {
	mu     sync.Mutex
	titles []string
	bodies []string
}

func (s *recordingSender) Name() string { return "recording" }

func (s *recordingSender) Send(_ context.Context, title, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.titles = append(s.titles, title)
	s.bodies = append(s.bodies, message)
	return nil
}

func TestTradeUpdateHandlerNotifiesCompletedFills(t *testing.T) {
	sender := &recordingSender{}
	notifier := notify.NewNotifier([]notify.Sender{sender}, nil, discardLogger())
	a := New(testConfig(t), discardLogger())
	h := a.tradeUpdateHandler(context.Background(), notifier)

	order := domain.Order{ID: "o1", Symbol: "GOOD", Side: domain.OrderSideBuy, Quantity: 9}
	partial := order
	partial.FilledQty = 4
	h(domain.TradeUpdate{Event: "new", Order: order})
	h(domain.TradeUpdate{Event: "partial_fill", Order: partial, Price: 10, Qty: 4})

	filled := order
	filled.FilledQty = 9
	h(domain.TradeUpdate{Event: "fill", Order: filled, Price: 10.25, Qty: 5})

	require.Len(t, sender.bodies, 1)
	assert.Equal(t, "Order filled", sender.titles[0])
	assert.Equal(t, "buy 9 GOOD @ 10.25", sender.bodies[0])
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
