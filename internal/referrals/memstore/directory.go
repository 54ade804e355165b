package memstore

import (
	"context"
	"slices"
	"sync"

	"broker_portal_backend/internal/referrals/domain"
	"broker_portal_backend/internal/referrals/ports"
	"broker_portal_backend/platform/apperr"

	"github.com/google/uuid"
)

// Directory holds brokers in insertion order, which is the directory order.
type Directory struct {
	mu      sync.RWMutex
	brokers []domain.Broker
	users   map[uuid.UUID]uuid.UUID // user id -> broker id
}

// NewDirectory creates a directory seeded with brokers in order.
func NewDirectory(brokers ...domain.Broker) *Directory {
	d := &Directory{users: make(map[uuid.UUID]uuid.UUID)}
	for _, b := range brokers {
		d.Add(b)
	}
	return d
}

// Add appends b at the end of the directory.
func (d *Directory) Add(b domain.Broker) {
	d.mu.Lock()
	defer d.mu.Unlock()
	b.Territories = slices.Clone(b.Territories)
	d.brokers = append(d.brokers, b)
}

// LinkUser maps a login to a broker.
func (d *Directory) LinkUser(userID, brokerID uuid.UUID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[userID] = brokerID
}

// SetActive flips a broker's active flag.
func (d *Directory) SetActive(id uuid.UUID, active bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range d.brokers {
		if d.brokers[i].ID == id {
			d.brokers[i].Active = active
		}
	}
}

func (d *Directory) ListBrokersForTerritory(_ context.Context, territory string) ([]domain.Broker, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []domain.Broker
	for _, b := range d.brokers {
		if b.Covers(territory) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (d *Directory) GetBroker(_ context.Context, id uuid.UUID) (domain.Broker, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, b := range d.brokers {
		if b.ID == id {
			return b, nil
		}
	}
	return domain.Broker{}, apperr.NotFound("broker not found")
}

func (d *Directory) GetBrokerByUserID(ctx context.Context, userID uuid.UUID) (domain.Broker, error) {
	d.mu.RLock()
	brokerID, ok := d.users[userID]
	d.mu.RUnlock()
	if !ok {
		return domain.Broker{}, apperr.NotFound("broker not found")
	}
	return d.GetBroker(ctx, brokerID)
}

var _ ports.BrokerDirectory = (*Directory)(nil)
