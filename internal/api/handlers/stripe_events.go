package handlers

import (
	"encoding/json"
	"fmt"

	"zoneatlas/internal/external"
)

// The webhook decodes only the handful of fields each handler reads,
// into hand-written structs. Binding the full stripe-go event types
// would couple the endpoint to the library's API version; these shapes
// are stable across versions.

// stripeEvent is the closed union of parsed webhook events.
type stripeEvent interface {
	eventID() string
	eventType() string
}

// stripeEventEnvelope is the outer shape shared by every event.
type stripeEventEnvelope struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

func (e stripeEventEnvelope) eventID() string   { return e.ID }
func (e stripeEventEnvelope) eventType() string { return e.Type }

// webhookCheckoutSession is the slice of a Checkout Session object the
// handlers read.
type webhookCheckoutSession struct {
	ID                string            `json:"id"`
	Mode              string            `json:"mode"`
	PaymentStatus     string            `json:"payment_status"`
	ClientReferenceID string            `json:"client_reference_id"`
	Customer          string            `json:"customer"`
	Subscription      string            `json:"subscription"`
	CustomerEmail     string            `json:"customer_email"`
	Metadata          map[string]string `json:"metadata"`
	CustomerDetails   struct {
		Email string `json:"email"`
	} `json:"customer_details"`
}

// email prefers the post-payment customer_details email over the
// session's pre-fill.
func (s webhookCheckoutSession) email() string {
	if s.CustomerDetails.Email != "" {
		return s.CustomerDetails.Email
	}
	return s.CustomerEmail
}

// webhookSubscription is the slice of a Subscription object the
// handlers read.
type webhookSubscription struct {
	ID                 string            `json:"id"`
	Status             string            `json:"status"`
	Customer           string            `json:"customer"`
	CurrentPeriodStart int64             `json:"current_period_start"`
	CurrentPeriodEnd   int64             `json:"current_period_end"`
	Metadata           map[string]string `json:"metadata"`
	Items              struct {
		Data []struct {
			Price struct {
				ID string `json:"id"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
}

// priceID returns the first line item's price id, or "".
func (s webhookSubscription) priceID() string {
	if len(s.Items.Data) == 0 {
		return ""
	}
	return s.Items.Data[0].Price.ID
}

// webhookInvoice is the slice of an Invoice object the handlers read.
type webhookInvoice struct {
	ID           string `json:"id"`
	Subscription string `json:"subscription"`
}

type checkoutCompletedEvent struct {
	stripeEventEnvelope
	Session webhookCheckoutSession
}

type subscriptionUpdatedEvent struct {
	stripeEventEnvelope
	Subscription webhookSubscription
}

type subscriptionDeletedEvent struct {
	stripeEventEnvelope
	Subscription webhookSubscription
}

type invoicePaidEvent struct {
	stripeEventEnvelope
	Invoice webhookInvoice
}

type invoicePaymentFailedEvent struct {
	stripeEventEnvelope
	Invoice webhookInvoice
}

// ignoredEvent covers event types the endpoint does not act on.
type ignoredEvent struct {
	stripeEventEnvelope
}

// parseStripeEvent decodes the envelope and then the data object for
// the event types the endpoint handles.
func parseStripeEvent(payload []byte) (stripeEvent, error) {
	var env stripeEventEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("decode event envelope: %w", err)
	}

	switch env.Type {
	case external.EventStripeCheckoutCompleted:
		e := &checkoutCompletedEvent{stripeEventEnvelope: env}
		if err := json.Unmarshal(env.Data.Object, &e.Session); err != nil {
			return nil, fmt.Errorf("decode checkout session: %w", err)
		}
		return e, nil

	case external.EventStripeSubUpdated:
		e := &subscriptionUpdatedEvent{stripeEventEnvelope: env}
		if err := json.Unmarshal(env.Data.Object, &e.Subscription); err != nil {
			return nil, fmt.Errorf("decode subscription: %w", err)
		}
		return e, nil

	case external.EventStripeSubDeleted:
		e := &subscriptionDeletedEvent{stripeEventEnvelope: env}
		if err := json.Unmarshal(env.Data.Object, &e.Subscription); err != nil {
			return nil, fmt.Errorf("decode subscription: %w", err)
		}
		return e, nil

	case external.EventStripeInvoicePaid:
		e := &invoicePaidEvent{stripeEventEnvelope: env}
		if err := json.Unmarshal(env.Data.Object, &e.Invoice); err != nil {
			return nil, fmt.Errorf("decode invoice: %w", err)
		}
		return e, nil

	case external.EventStripePaymentFailed:
		e := &invoicePaymentFailedEvent{stripeEventEnvelope: env}
		if err := json.Unmarshal(env.Data.Object, &e.Invoice); err != nil {
			return nil, fmt.Errorf("decode invoice: %w", err)
		}
		return e, nil

	default:
		return &ignoredEvent{stripeEventEnvelope: env}, nil
	}
}
