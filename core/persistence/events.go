package persistence

import (
	"time"

	"github.com/asaidimu/go-tapestry/core/document"
	"github.com/google/uuid"
)

// emitEvent is a helper method to emit events
func (p *Persistence) emitEvent(event Event) {
	if p.bus != nil {
		p.bus.Emit(string(event.Type), event)
	}
}

// withEventEmission wraps an operation with start, success, and failure events
func (p *Persistence) withEventEmission(
	operation string,
	startEventType EventType,
	successEventType EventType,
	failedEventType EventType,
	doc *document.Document,
	input any,
	fn func() (any, error),
) (any, error) {
	startTime := time.Now()
	p.emitEvent(createEvent(startEventType, operation, doc, input, nil, nil, startTime))

	result, err := fn()
	if err != nil {
		errStr := err.Error()
		p.emitEvent(createEvent(failedEventType, operation, doc, input, nil, &errStr, startTime))
		return nil, err
	}

	p.emitEvent(createEvent(successEventType, operation, doc, input, result, nil, startTime))
	return result, nil
}

// RegisterSubscription registers a callback for a specific persistence event. It returns
// a unique ID that can be used to unregister the subscription later.
func (p *Persistence) RegisterSubscription(options RegisterSubscriptionOptions) string {
	p.subMu.Lock()
	defer p.subMu.Unlock()

	unsubscribe := p.bus.Subscribe(string(options.Event), options.Callback)
	id := uuid.New().String()

	p.subscriptions[id] = &SubscriptionInfo{
		Id:          &id,
		Event:       options.Event,
		Unsubscribe: unsubscribe,
		Label:       options.Label,
		Description: options.Description,
	}

	p.emitEvent(createEvent(SubscriptionRegister, "register_subscription", nil,
		map[string]any{"event": options.Event, "label": options.Label},
		map[string]any{"subscriptionId": id}, nil, time.Time{}))
	return id
}

// UnregisterSubscription removes a subscription by its ID.
func (p *Persistence) UnregisterSubscription(id string) {
	p.subMu.Lock()
	defer p.subMu.Unlock()

	info, ok := p.subscriptions[id]
	if !ok {
		return
	}
	info.Unsubscribe()
	delete(p.subscriptions, id)
	p.emitEvent(createEvent(SubscriptionUnregister, "unregister_subscription", nil,
		map[string]any{"subscriptionId": id}, nil, nil, time.Time{}))
}

// Subscriptions returns a list of all currently active subscriptions.
func (p *Persistence) Subscriptions() []SubscriptionInfo {
	p.subMu.RLock()
	defer p.subMu.RUnlock()

	subs := make([]SubscriptionInfo, 0, len(p.subscriptions))
	for _, sub := range p.subscriptions {
		subs = append(subs, *sub)
	}
	return subs
}
