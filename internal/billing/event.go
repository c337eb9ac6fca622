package billing

import (
	"encoding/json"
	"errors"
)

// Tipos de evento que procesa el webhook; el resto se reconoce y se
// ignora.
const (
	EventCheckoutCompleted   = "checkout.session.completed"
	EventSubscriptionDeleted = "customer.subscription.deleted"
)

// Event es el sobre del evento que entrega el proveedor de pagos.
type Event struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// CheckoutSession es el objeto de un checkout completado.
type CheckoutSession struct {
	ID           string `json:"id"`
	Customer     string `json:"customer"`
	Subscription string `json:"subscription"`
}

// Subscription es el objeto de una suscripcion.
type Subscription struct {
	ID       string `json:"id"`
	Customer string `json:"customer"`
	Status   string `json:"status"`
}

var errEventMalformed = errors.New("event envelope missing type")

// ParseEvent decodifica el payload crudo del webhook.
func ParseEvent(payload []byte) (Event, error) {
	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return Event{}, err
	}
	if event.Type == "" {
		return Event{}, errEventMalformed
	}
	return event, nil
}
