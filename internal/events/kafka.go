// Package events 将下单结果发布到 Kafka，供外部消费者订阅；核心不读取这些事件。
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"spotpilot/internal/pipeline"
	"spotpilot/internal/types"

	"github.com/IBM/sarama"
)

const EventOrderResult = "order_result"

// OrderEvent 是发布到主题上的消息体。
type OrderEvent struct {
	EventType   string       `json:"event_type"`
	AttemptID   string       `json:"attempt_id"`
	Timestamp   time.Time    `json:"timestamp"`
	Symbol      string       `json:"symbol"`
	Side        types.Side   `json:"side"`
	Success     bool         `json:"success"`
	Status      types.Status `json:"status"`
	Reason      string       `json:"reason,omitempty"`
	Error       string       `json:"error,omitempty"`
	OrderID     string       `json:"order_id,omitempty"`
	FilledQty   float64      `json:"filled_qty"`
	FilledQuote float64      `json:"filled_quote_value"`
	AvgPrice    float64      `json:"avg_fill_price"`
	FeeQuote    float64      `json:"fee_quote"`
	State       string       `json:"state"`
	BuyScore    float64      `json:"buy_score,omitempty"`
	SellScore   float64      `json:"sell_score,omitempty"`
}

// KafkaPublisher 以币种为 key 发布，同一币种的事件落在同一分区，保持顺序。
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
}

// NewProducerConfig 返回发布端使用的 sarama 配置。
func NewProducerConfig() *sarama.Config {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 3
	config.Producer.Return.Successes = true
	config.Producer.Partitioner = sarama.NewHashPartitioner
	config.Version = sarama.V2_8_0_0
	return config
}

func NewKafkaPublisher(brokers []string, topic string) (*KafkaPublisher, error) {
	producer, err := sarama.NewSyncProducer(brokers, NewProducerConfig())
	if err != nil {
		return nil, fmt.Errorf("events: kafka producer: %w", err)
	}
	return NewKafkaPublisherWithProducer(producer, topic), nil
}

// NewKafkaPublisherWithProducer 注入已有 producer（测试使用 sarama/mocks）。
func NewKafkaPublisherWithProducer(producer sarama.SyncProducer, topic string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic}
}

// Record 实现 pipeline.Sink。
func (p *KafkaPublisher) Record(ctx context.Context, a pipeline.Attempt) error {
	if !a.Traded() {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	ev := NewOrderEvent(a)
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("events: encode: %w", err)
	}
	msg := &sarama.ProducerMessage{
		Topic:     p.topic,
		Key:       sarama.StringEncoder(ev.Symbol),
		Value:     sarama.ByteEncoder(payload),
		Timestamp: ev.Timestamp,
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(ev.EventType)},
		},
	}
	if _, _, err := p.producer.SendMessage(msg); err != nil {
		return fmt.Errorf("events: publish %s: %w", ev.AttemptID, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	if p == nil || p.producer == nil {
		return nil
	}
	return p.producer.Close()
}

func NewOrderEvent(a pipeline.Attempt) OrderEvent {
	res := a.Result
	side := res.Side
	if side == "" {
		side = a.Plan.Side
	}
	return OrderEvent{
		EventType:   EventOrderResult,
		AttemptID:   a.ID,
		Timestamp:   a.Time.UTC(),
		Symbol:      a.Symbol,
		Side:        side,
		Success:     res.Success,
		Status:      res.Status,
		Reason:      res.Reason,
		Error:       res.Error,
		OrderID:     res.OrderID,
		FilledQty:   res.FilledQty,
		FilledQuote: res.FilledQuote,
		AvgPrice:    res.AvgPrice,
		FeeQuote:    res.FeeQuote,
		State:       string(res.State),
		BuyScore:    a.Signal.BuyScore,
		SellScore:   a.Signal.SellScore,
	}
}
