package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"money_transfer/internal/domain"
	"money_transfer/pkg/crypto"
	"money_transfer/pkg/rabbitmq"
	"sync"
	"time"
)

const (
	DefaultEventExchange = "transfer_events"
	RoutingKeySucceeded  = "transfer.succeeded"
	RoutingKeyFailed     = "transfer.failed"
	SignatureHeader      = "x-signature"

	defaultQueueSize = 1000
	publishTimeout   = 5 * time.Second
)

var (
	ErrEventQueueFull   = errors.New("event queue is full")
	ErrEventServiceDown = errors.New("event service is shut down")
)

// Publisher delivers an encoded event to the broker.
type Publisher interface {
	Publish(ctx context.Context, msg rabbitmq.Message) error
}

type EventMetrics interface {
	ObserveEvent(result string)
}

// EventService publishes transfer outcomes from a bounded queue drained by a
// fixed pool of workers.
type EventService struct {
	publisher    Publisher
	signer       *crypto.Signer
	metrics      EventMetrics
	exchange     string
	eventQueue   chan domain.TransferEvent
	workers      int
	shutdownChan chan struct{}
	shutdownOnce sync.Once
	wg           sync.WaitGroup
	logger       *slog.Logger
}

func NewEventService(
	publisher Publisher,
	signer *crypto.Signer,
	metrics EventMetrics,
	exchange string,
	workers int,
	logger *slog.Logger,
) *EventService {
	if logger == nil {
		logger = slog.Default()
	}
	if exchange == "" {
		exchange = DefaultEventExchange
	}
	if workers <= 0 {
		workers = 1
	}

	service := &EventService{
		publisher:    publisher,
		signer:       signer,
		metrics:      metrics,
		exchange:     exchange,
		eventQueue:   make(chan domain.TransferEvent, defaultQueueSize),
		workers:      workers,
		shutdownChan: make(chan struct{}),
		logger:       logger,
	}

	service.startWorkers()

	return service
}

// Enqueue hands event to the workers without waiting for queue space. A full
// queue drops the event.
func (s *EventService) Enqueue(ctx context.Context, event domain.TransferEvent) error {
	select {
	case <-s.shutdownChan:
		return ErrEventServiceDown
	default:
	}

	select {
	case s.eventQueue <- event:
		s.logger.DebugContext(ctx, "Transfer event queued",
			slog.String("event_id", event.EventID.String()),
			slog.String("status", string(event.Status)))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		s.logger.WarnContext(ctx, "Transfer event dropped, queue full",
			slog.String("event_id", event.EventID.String()),
			slog.String("idempotency_key", event.IdempotencyKey))
		s.observe("dropped")
		return ErrEventQueueFull
	}
}

func (s *EventService) startWorkers() {
	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}
}

func (s *EventService) worker(id int) {
	defer s.wg.Done()

	s.logger.Info("Event worker started", slog.Int("worker_id", id))

	for {
		select {
		case event := <-s.eventQueue:
			s.publish(event, id)
		case <-s.shutdownChan:
			s.drain(id)
			s.logger.Info("Event worker stopping", slog.Int("worker_id", id))
			return
		}
	}
}

// drain publishes whatever is still queued when shutdown starts.
func (s *EventService) drain(workerID int) {
	for {
		select {
		case event := <-s.eventQueue:
			s.publish(event, workerID)
		default:
			return
		}
	}
}

func (s *EventService) publish(event domain.TransferEvent, workerID int) {
	startTime := time.Now()

	msg, err := s.encode(event)
	if err == nil {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		err = s.publisher.Publish(ctx, msg)
		cancel()
	}

	duration := time.Since(startTime)

	if err != nil {
		s.observe("failed")
		s.logger.Error("Failed to publish transfer event",
			slog.String("event_id", event.EventID.String()),
			slog.String("error", err.Error()),
			slog.Int("worker_id", workerID),
			slog.Duration("duration", duration))
		return
	}

	s.observe("published")
	s.logger.Info("Transfer event published",
		slog.String("event_id", event.EventID.String()),
		slog.String("status", string(event.Status)),
		slog.Int("worker_id", workerID),
		slog.Duration("duration", duration))
}

func (s *EventService) encode(event domain.TransferEvent) (rabbitmq.Message, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return rabbitmq.Message{}, fmt.Errorf("marshal transfer event: %w", err)
	}

	routingKey := RoutingKeyFailed
	if event.Status == domain.StatusSuccess {
		routingKey = RoutingKeySucceeded
	}

	msg := rabbitmq.Message{
		Exchange:   s.exchange,
		RoutingKey: routingKey,
		MessageID:  event.EventID.String(),
		Body:       body,
	}
	if s.signer != nil {
		msg.Headers = map[string]any{SignatureHeader: s.signer.Sign(body)}
	}
	return msg, nil
}

func (s *EventService) observe(result string) {
	if s.metrics != nil {
		s.metrics.ObserveEvent(result)
	}
}

func (s *EventService) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(func() { close(s.shutdownChan) })

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Event service shutdown complete")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
