package alert

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/segmentio/kafka-go"
	"github.com/yanun0323/logs"
)

// MessageWriter is the subset of *kafka.Writer used by KafkaSink.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes alerts to a topic from its own goroutine. Alert never
// blocks; when the buffer is full the alert is dropped and counted.
type KafkaSink struct {
	w       MessageWriter
	ch      chan Alert
	timeout time.Duration
	wg      sync.WaitGroup
	closed  atomic.Bool
	dropped atomic.Uint64
}

// NewKafkaWriter builds the default kafka-go writer for alerts.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}
}

// NewKafkaSink starts the publishing goroutine.
func NewKafkaSink(w MessageWriter, buffer int, timeout time.Duration) *KafkaSink {
	if buffer <= 0 {
		buffer = 256
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	s := &KafkaSink{w: w, ch: make(chan Alert, buffer), timeout: timeout}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run()
	}()
	return s
}

func (s *KafkaSink) Alert(a Alert) {
	if s.closed.Load() {
		s.dropped.Add(1)
		return
	}
	select {
	case s.ch <- a:
	default:
		s.dropped.Add(1)
	}
}

// Dropped returns how many alerts could not be queued.
func (s *KafkaSink) Dropped() uint64 {
	return s.dropped.Load()
}

// Close drains queued alerts and closes the writer.
func (s *KafkaSink) Close() error {
	if s.closed.CompareAndSwap(false, true) {
		close(s.ch)
	}
	s.wg.Wait()
	return s.w.Close()
}

func (s *KafkaSink) run() {
	for a := range s.ch {
		value, err := sonic.Marshal(alertRecord{
			Severity: a.Severity.String(),
			Code:     string(a.Code),
			Message:  a.Message,
			Symbol:   a.Symbol,
			Venue:    a.Venue,
			OrderID:  a.OrderID,
			Reason:   a.Reason,
			Count:    a.Count,
			Time:     int64(a.Time),
			RunID:    a.RunID,
		})
		if err != nil {
			logs.Errorf("alert: marshal kafka record, err: %+v", err)
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		err = s.w.WriteMessages(ctx, kafka.Message{Key: []byte(a.Code), Value: value})
		cancel()
		if err != nil {
			logs.Errorf("alert: publish to kafka, err: %+v", err)
		}
	}
}

type alertRecord struct {
	Severity string `json:"severity"`
	Code     string `json:"code"`
	Message  string `json:"message"`
	Symbol   string `json:"symbol,omitempty"`
	Venue    string `json:"venue,omitempty"`
	OrderID  uint32 `json:"orderId,omitempty"`
	Reason   string `json:"reason,omitempty"`
	Count    int    `json:"count,omitempty"`
	Time     int64  `json:"time"`
	RunID    string `json:"runId,omitempty"`
}
