package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"spotpilot/internal/pipeline"
	"spotpilot/internal/types"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func attempt() pipeline.Attempt {
	return pipeline.Attempt{
		ID:       "att-1",
		Time:     time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC),
		Symbol:   "SUIUSDT",
		Executed: true,
		Signal:   types.SignalBundle{Symbol: "SUIUSDT", BuyScore: 0.8, SellScore: 0.1, RegimeOn: true},
		Result: types.OrderResult{
			Symbol: "SUIUSDT", Side: types.SideBuy, Success: true, Status: types.StatusMockOK,
			FilledQty: 10, FilledQuote: 10, AvgPrice: 1, FeeQuote: 0.01, State: types.ExecFilled,
		},
	}
}

func TestKafkaPublisherSendsKeyedEvent(t *testing.T) {
	producer := mocks.NewSyncProducer(t, NewProducerConfig())
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var ev OrderEvent
		if err := json.Unmarshal(val, &ev); err != nil {
			return err
		}
		if ev.Status != types.StatusMockOK || ev.AttemptID != "att-1" || ev.BuyScore != 0.8 {
			return errors.New("unexpected payload")
		}
		return nil
	})
	pub := NewKafkaPublisherWithProducer(producer, "spot.orders")

	require.NoError(t, pub.Record(context.Background(), attempt()))
	require.NoError(t, pub.Close())
}

func TestKafkaPublisherSkipsHoldAndSurfacesErrors(t *testing.T) {
	producer := mocks.NewSyncProducer(t, NewProducerConfig())
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
	pub := NewKafkaPublisherWithProducer(producer, "spot.orders")

	require.NoError(t, pub.Record(context.Background(), pipeline.Attempt{ID: "hold", Symbol: "SUIUSDT", Action: types.ActionHold}))
	err := pub.Record(context.Background(), attempt())
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.NoError(t, pub.Close())
}

func TestNewOrderEventFallsBackToPlanSide(t *testing.T) {
	a := attempt()
	a.Result.Side = ""
	a.Plan = types.OrderPlan{Side: types.SideSell}
	assert.Equal(t, types.SideSell, NewOrderEvent(a).Side)
}
