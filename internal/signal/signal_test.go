package signal

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"spotpilot/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockKlines struct {
	mock.Mock
}

func (m *MockKlines) Klines(ctx context.Context, symbol, interval string, limit int) ([]types.Candle, error) {
	args := m.Called(ctx, symbol, interval, limit)
	candles, _ := args.Get(0).([]types.Candle)
	return candles, args.Error(1)
}

func series(n int, start, step float64) []types.Candle {
	out := make([]types.Candle, n)
	price := start
	for i := range out {
		out[i] = types.Candle{
			OpenTime: int64(i) * 60_000,
			Open:     price,
			High:     price * 1.002,
			Low:      price * 0.998,
			Close:    price + step,
			Volume:   10,
		}
		price += step
	}
	return out
}

func TestTechnicalSourceScoresTrend(t *testing.T) {
	klines := &MockKlines{}
	cfg := TechnicalConfig{Interval: "1m", Limit: 60}
	klines.On("Klines", mock.Anything, "BTCUSDT", "1m", 60).Return(series(60, 100, 0.5), nil)
	klines.On("Klines", mock.Anything, "ETHUSDT", "1m", 60).Return(series(60, 100, -0.5), nil)
	src := NewTechnicalSource(klines, cfg)

	up, err := src.Produce(context.Background(), "btcusdt")
	require.NoError(t, err)
	require.NoError(t, up.Validate())
	assert.Equal(t, "BTCUSDT", up.Symbol)
	assert.Greater(t, up.Extras["ema_fast"], up.Extras["ema_slow"])
	assert.Less(t, up.SellScore, 0.5)
	assert.True(t, up.RegimeOn)

	down, err := src.Produce(context.Background(), "ETHUSDT")
	require.NoError(t, err)
	assert.Greater(t, down.SellScore, down.BuyScore)
	assert.Greater(t, down.Volatility, 0.0)
}

func TestTechnicalSourceNeedsEnoughCandles(t *testing.T) {
	klines := &MockKlines{}
	klines.On("Klines", mock.Anything, "BTCUSDT", "15m", mock.Anything).Return(series(5, 100, 1), nil)
	_, err := NewTechnicalSource(klines, TechnicalConfig{}).Produce(context.Background(), "BTCUSDT")
	assert.ErrorIs(t, err, ErrNotEnoughData)

	failing := &MockKlines{}
	failing.On("Klines", mock.Anything, "BTCUSDT", "15m", mock.Anything).Return(nil, errors.New("boom"))
	_, err = NewTechnicalSource(failing, TechnicalConfig{}).Produce(context.Background(), "BTCUSDT")
	assert.ErrorContains(t, err, "boom")
}

func TestTechnicalSourceRejectsStaleCandles(t *testing.T) {
	now := time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC)
	candles := series(60, 100, 0.5)
	candles[len(candles)-1].CloseTime = now.Add(-10 * time.Minute).UnixMilli()
	klines := &MockKlines{}
	klines.On("Klines", mock.Anything, "BTCUSDT", "1m", 60).Return(candles, nil)
	src := NewTechnicalSource(klines, TechnicalConfig{Interval: "1m", Limit: 60})
	src.now = func() time.Time { return now }

	_, err := src.Produce(context.Background(), "BTCUSDT")
	assert.ErrorIs(t, err, ErrStaleData)

	candles[len(candles)-1].CloseTime = now.Add(-90 * time.Second).UnixMilli()
	_, err = src.Produce(context.Background(), "BTCUSDT")
	assert.NoError(t, err)
}

func TestHTTPSourceParsesBundle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "SUIUSDT", r.URL.Query().Get("symbol"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"symbol":"SUIUSDT","timestamp":1717405200000,"buy_score":0.72,"sell_score":0.1,"regime_on":true,"volatility":0.02,"extras":{"fear_greed":41}}`))
	}))
	defer srv.Close()

	sig, err := NewHTTPSource(srv.URL, time.Second).Produce(context.Background(), "suiusdt")
	require.NoError(t, err)
	assert.Equal(t, "SUIUSDT", sig.Symbol)
	assert.InDelta(t, 0.72, sig.BuyScore, 1e-12)
	assert.True(t, sig.RegimeOn)
	assert.Equal(t, time.UnixMilli(1717405200000).UTC(), sig.Timestamp)
	assert.EqualValues(t, 41, sig.Extras["fear_greed"])
}

func TestHTTPSourceRejectsBadPayloads(t *testing.T) {
	src := NewHTTPSource("http://unused", time.Second)
	cases := map[string]string{
		"unknown field":   `{"buy_score":0.7,"sell_score":0.1,"regime_on":true,"leverage":5}`,
		"score range":     `{"buy_score":1.7,"sell_score":0.1,"regime_on":true}`,
		"missing regime":  `{"buy_score":0.7,"sell_score":0.1}`,
		"wrong symbol":    `{"symbol":"ETHUSDT","buy_score":0.7,"sell_score":0.1,"regime_on":true}`,
		"negative vol":    `{"buy_score":0.7,"sell_score":0.1,"regime_on":true,"volatility":-1}`,
		"not json at all": `buy=0.7`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := src.Parse("BTCUSDT", []byte(body))
			assert.Error(t, err)
		})
	}
}

func TestHTTPSourceStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()
	_, err := NewHTTPSource(srv.URL, time.Second).Produce(context.Background(), "BTCUSDT")
	assert.ErrorContains(t, err, "502")
}

func TestValidatedWrapsSource(t *testing.T) {
	bad := SourceFunc(func(ctx context.Context, symbol string) (types.SignalBundle, error) {
		return types.SignalBundle{Symbol: symbol, BuyScore: 2}, nil
	})
	_, err := Validated(bad).Produce(context.Background(), "BTCUSDT")
	assert.ErrorContains(t, err, "buy_score")
}
