package domain

import (
	"encoding/json"
	"fmt"
	"sync"
)

// Decoder turns a stored or received payload back into a typed event.
type Decoder func(payload []byte) (Event, error)

// Registry resolves event discriminators to decoders.
type Registry struct {
	mu       sync.RWMutex
	decoders map[string]Decoder
}

func NewRegistry() *Registry {
	return &Registry{decoders: make(map[string]Decoder)}
}

// DefaultRegistry knows every event kind of the order service.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(EventTypeOrderCreationInitiated, decodeAs[OrderCreationInitiated])
	r.Register(EventTypeOrderShippingCostCalculated, decodeAs[OrderShippingCostCalculated])
	r.Register(EventTypeOrderPaymentTaxCalculated, decodeAs[OrderPaymentTaxCalculated])
	r.Register(EventTypeShippingCostCalculated, decodeAs[ShippingCostCalculated])
	r.Register(EventTypePaymentTaxCalculated, decodeAs[PaymentTaxCalculated])
	return r
}

func (r *Registry) Register(eventType string, d Decoder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decoders[eventType] = d
}

func (r *Registry) Known(eventType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.decoders[eventType]
	return ok
}

// Decode returns UnknownEvent for an unregistered discriminator and an error
// only when a registered kind fails to decode.
func (r *Registry) Decode(eventType string, payload []byte) (Event, error) {
	r.mu.RLock()
	d, ok := r.decoders[eventType]
	r.mu.RUnlock()
	if !ok {
		unknown := UnknownEvent{Payload: append([]byte(nil), payload...)}
		_ = json.Unmarshal(payload, &unknown.EventMeta)
		unknown.EventType = eventType
		return unknown, nil
	}
	evt, err := d(payload)
	if err != nil {
		return nil, fmt.Errorf("domain: decode %s: %w", eventType, err)
	}
	return evt, nil
}

func decodeAs[T Event](payload []byte) (Event, error) {
	var evt T
	if err := json.Unmarshal(payload, &evt); err != nil {
		return nil, err
	}
	return evt, nil
}
