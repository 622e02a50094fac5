package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	gcppubsub "cloud.google.com/go/pubsub/v2"

	"github.com/coralcart/loyalty-backend/pkg/enums"
	"github.com/coralcart/loyalty-backend/pkg/logger"
)

const ordersConsumerName = "order-lifecycle"

// Envelope is the decoded order lifecycle event.
type Envelope struct {
	EventID   string
	EventType enums.OrderEventType
	OrderID   string
}

type orderHandler interface {
	HandleOrderPlaced(ctx context.Context, orderID string) error
	HandleOrderCanceled(ctx context.Context, orderID string) error
}

type idempotencyChecker interface {
	CheckAndMarkProcessed(ctx context.Context, consumer, eventID string) (bool, error)
	Delete(ctx context.Context, consumer, eventID string) error
}

// Consumer pulls order lifecycle events from Pub/Sub and dispatches them to
// the reconciler while honoring Redis idempotency.
type Consumer struct {
	subscription *gcppubsub.Subscriber
	handler      orderHandler
	manager      idempotencyChecker
	logg         *logger.Logger
}

func NewConsumer(subscription *gcppubsub.Subscriber, handler orderHandler, manager idempotencyChecker, logg *logger.Logger) (*Consumer, error) {
	if subscription == nil {
		return nil, errors.New("orders subscription is required")
	}
	if handler == nil {
		return nil, errors.New("order handler is required")
	}
	if manager == nil {
		return nil, errors.New("idempotency manager is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &Consumer{
		subscription: subscription,
		handler:      handler,
		manager:      manager,
		logg:         logg,
	}, nil
}

type processResult struct {
	nack bool
}

// Run starts consuming order events until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return c.subscription.Receive(ctx, func(innerCtx context.Context, msg *gcppubsub.Message) {
		if c.process(innerCtx, msg).nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

func (c *Consumer) process(ctx context.Context, msg *gcppubsub.Message) processResult {
	logCtx := c.logg.WithFields(ctx, map[string]any{"message_id": msg.ID})

	envelope, err := c.buildEnvelope(msg)
	if err != nil {
		c.logg.Warn(c.logg.WithField(logCtx, "error", err.Error()), "invalid order event envelope")
		return processResult{}
	}
	logCtx = c.logg.WithFields(logCtx, map[string]any{
		"event_id":   envelope.EventID,
		"event_type": string(envelope.EventType),
		"order_id":   envelope.OrderID,
	})

	already, err := c.manager.CheckAndMarkProcessed(logCtx, ordersConsumerName, envelope.EventID)
	if err != nil {
		c.logg.Error(logCtx, "idempotency check failed", err)
		return processResult{nack: true}
	}
	if already {
		c.logg.Info(logCtx, "event already processed")
		return processResult{}
	}

	if err := c.Dispatch(logCtx, *envelope); err != nil {
		c.logg.Error(logCtx, "order event handler error", err)
		_ = c.manager.Delete(logCtx, ordersConsumerName, envelope.EventID)
		return processResult{nack: true}
	}

	c.logg.Info(logCtx, "order event handled")
	return processResult{}
}

// Dispatch routes one decoded envelope to the matching reconciler handler.
func (c *Consumer) Dispatch(ctx context.Context, envelope Envelope) error {
	switch envelope.EventType {
	case enums.OrderEventPlaced:
		return c.handler.HandleOrderPlaced(ctx, envelope.OrderID)
	case enums.OrderEventCanceled:
		return c.handler.HandleOrderCanceled(ctx, envelope.OrderID)
	default:
		return fmt.Errorf("unhandled order event type %q", envelope.EventType)
	}
}

type orderEventPayload struct {
	EventID string `json:"event_id"`
	Type    string `json:"type"`
	OrderID string `json:"order_id"`
	// Some publishers nest the order as {"data":{"id":...}}.
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
}

func (c *Consumer) buildEnvelope(msg *gcppubsub.Message) (*Envelope, error) {
	var payload orderEventPayload
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		return nil, fmt.Errorf("decode order event: %w", err)
	}

	eventTypeStr := strings.TrimSpace(payload.Type)
	if eventTypeStr == "" {
		eventTypeStr = strings.TrimSpace(msg.Attributes["event_type"])
	}
	eventType, err := enums.ParseOrderEventType(eventTypeStr)
	if err != nil {
		return nil, err
	}

	orderID := strings.TrimSpace(payload.OrderID)
	if orderID == "" {
		orderID = strings.TrimSpace(payload.Data.ID)
	}
	if orderID == "" {
		return nil, errors.New("order id missing")
	}

	eventID := strings.TrimSpace(payload.EventID)
	if eventID == "" {
		eventID = strings.TrimSpace(msg.Attributes["event_id"])
	}
	if eventID == "" {
		// Pub/Sub message IDs are stable across redeliveries.
		eventID = msg.ID
	}
	if eventID == "" {
		return nil, errors.New("event id missing")
	}

	return &Envelope{
		EventID:   eventID,
		EventType: eventType,
		OrderID:   orderID,
	}, nil
}
