package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/limitbook/pkg/app/core/orderbook"
)

func TestCounters(t *testing.T) {
	m := New()
	m.ObserveOrder("BTC-USD", orderbook.Buy, time.Millisecond)
	m.ObserveOrder("BTC-USD", orderbook.Buy, time.Millisecond)
	m.ObserveOrder("BTC-USD", orderbook.Sell, time.Millisecond)
	m.OnTrade(orderbook.Trade{Instrument: "BTC-USD", Quantity: decimal.RequireFromString("1.5")})
	m.ObserveCancel("BTC-USD", true)
	m.ObserveCancel("BTC-USD", false)
	m.ObserveCancel("BTC-USD", false)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.orders.WithLabelValues("BTC-USD", "BUY")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.orders.WithLabelValues("BTC-USD", "SELL")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.trades.WithLabelValues("BTC-USD")))
	assert.Equal(t, 1.5, testutil.ToFloat64(m.tradedVolume.WithLabelValues("BTC-USD")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.cancels.WithLabelValues("BTC-USD", "noop")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.matchSeconds))
}

func TestHandlerExposesBookMetrics(t *testing.T) {
	m := New()
	m.ObserveOrder("ETH-USD", orderbook.Sell, 2*time.Microsecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)

	text := string(body)
	assert.True(t, strings.Contains(text, `limitbook_orders_total{instrument="ETH-USD",side="SELL"} 1`), text)
	assert.True(t, strings.Contains(text, "limitbook_match_seconds_bucket"))
}
