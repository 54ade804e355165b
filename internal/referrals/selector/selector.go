// Package selector decides which broker receives a referral.
package selector

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"broker_portal_backend/internal/referrals/domain"
	"broker_portal_backend/internal/referrals/ports"

	"github.com/google/uuid"
)

// Selector picks a broker for a territory, skipping excluded ids.
// A nil broker with a nil error means nobody is eligible.
type Selector interface {
	SelectBroker(ctx context.Context, territory string, exclude []uuid.UUID) (*domain.Broker, error)
}

// FirstMatch returns the first active broker in directory order.
type FirstMatch struct {
	directory ports.BrokerDirectory
}

// NewFirstMatch creates the default selector.
func NewFirstMatch(directory ports.BrokerDirectory) *FirstMatch {
	return &FirstMatch{directory: directory}
}

func (s *FirstMatch) SelectBroker(ctx context.Context, territory string, exclude []uuid.UUID) (*domain.Broker, error) {
	territory = strings.ToUpper(strings.TrimSpace(territory))
	brokers, err := s.directory.ListBrokersForTerritory(ctx, territory)
	if err != nil {
		return nil, fmt.Errorf("list brokers for territory %s: %w", territory, err)
	}

	for _, b := range brokers {
		if !b.Active || !b.Covers(territory) {
			continue
		}
		if slices.Contains(exclude, b.ID) {
			continue
		}
		return &b, nil
	}
	return nil, nil
}

var _ Selector = (*FirstMatch)(nil)
