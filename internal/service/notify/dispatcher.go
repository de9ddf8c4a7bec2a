package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jwalitptl/regulacao-api/internal/email"
	"github.com/jwalitptl/regulacao-api/internal/model"
	"github.com/jwalitptl/regulacao-api/pkg/messaging"
	"github.com/jwalitptl/regulacao-api/pkg/worker"
)

// Dispatcher hands a composed message to an external channel.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg *model.OutboundMessage) error
}

// BrokerDispatcher publishes the message for an external sender to pick up.
type BrokerDispatcher struct {
	broker messaging.Broker
}

func NewBrokerDispatcher(broker messaging.Broker) *BrokerDispatcher {
	return &BrokerDispatcher{broker: broker}
}

func (d *BrokerDispatcher) Dispatch(ctx context.Context, msg *model.OutboundMessage) error {
	return d.broker.Publish(ctx, msg.EventType(), msg)
}

// EmailDispatcher sends the message over SMTP.
type EmailDispatcher struct {
	sender email.Service
}

func NewEmailDispatcher(sender email.Service) *EmailDispatcher {
	return &EmailDispatcher{sender: sender}
}

func (d *EmailDispatcher) Dispatch(ctx context.Context, msg *model.OutboundMessage) error {
	return d.sender.SendCustom(ctx, msg.Recipient, msg.Subject, msg.Body)
}

// Router picks the dispatcher registered for an outbox event type.
type Router struct {
	routes map[string]Dispatcher
}

func NewRouter() *Router {
	return &Router{routes: make(map[string]Dispatcher)}
}

func (r *Router) Register(eventType string, d Dispatcher) *Router {
	r.routes[eventType] = d
	return r
}

// Handle decodes an outbox event and dispatches it. Events that can never
// be delivered are reported as permanent so the worker stops retrying.
func (r *Router) Handle(ctx context.Context, evt *model.OutboxEvent) error {
	d, ok := r.routes[evt.EventType]
	if !ok {
		return worker.Permanent(fmt.Errorf("no dispatcher for event type %s", evt.EventType))
	}
	var msg model.OutboundMessage
	if err := json.Unmarshal(evt.Payload, &msg); err != nil {
		return worker.Permanent(fmt.Errorf("failed to decode %s payload: %w", evt.EventType, err))
	}
	return d.Dispatch(ctx, &msg)
}
