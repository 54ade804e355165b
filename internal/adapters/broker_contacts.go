package adapters

import (
	"context"
	"fmt"
	"strings"

	brokersvc "broker_portal_backend/internal/brokers/service"
	"broker_portal_backend/internal/notification"

	"github.com/google/uuid"
)

// BrokerContactLookup is the narrow interface for fetching a broker's contact details.
type BrokerContactLookup interface {
	GetContact(ctx context.Context, id uuid.UUID) (brokersvc.Contact, error)
}

// BrokerContactReader adapts the brokers service to provide contact details
// for referral notifications. It implements notification.BrokerContactReader.
type BrokerContactReader struct {
	brokers BrokerContactLookup
}

// NewBrokerContactReader creates a new contact reader adapter.
func NewBrokerContactReader(brokers BrokerContactLookup) *BrokerContactReader {
	return &BrokerContactReader{brokers: brokers}
}

// GetBrokerContact returns the name, email, and phone used to reach a broker.
func (a *BrokerContactReader) GetBrokerContact(ctx context.Context, brokerID uuid.UUID) (notification.BrokerContact, error) {
	contact, err := a.brokers.GetContact(ctx, brokerID)
	if err != nil {
		return notification.BrokerContact{}, fmt.Errorf("look up broker for notification: %w", err)
	}

	name := strings.TrimSpace(contact.DisplayName)
	if name == "" {
		name = "there"
	}

	return notification.BrokerContact{
		Name:  name,
		Email: strings.TrimSpace(contact.Email),
		Phone: strings.TrimSpace(contact.Phone),
	}, nil
}
