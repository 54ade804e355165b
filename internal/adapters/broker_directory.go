package adapters

import (
	"context"

	"broker_portal_backend/internal/brokers/repository"
	"broker_portal_backend/internal/referrals/domain"
	"broker_portal_backend/internal/referrals/ports"

	"github.com/google/uuid"
)

// BrokerDirectoryReader is the part of the brokers repository the referral engine reads.
type BrokerDirectoryReader interface {
	ListForTerritory(ctx context.Context, territory string) ([]repository.Broker, error)
	GetByID(ctx context.Context, id uuid.UUID) (repository.Broker, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) (repository.Broker, error)
}

// BrokerDirectoryAdapter exposes the broker directory to the referral engine.
type BrokerDirectoryAdapter struct {
	repo BrokerDirectoryReader
}

func NewBrokerDirectoryAdapter(repo BrokerDirectoryReader) *BrokerDirectoryAdapter {
	return &BrokerDirectoryAdapter{repo: repo}
}

func (a *BrokerDirectoryAdapter) ListBrokersForTerritory(ctx context.Context, territory string) ([]domain.Broker, error) {
	rows, err := a.repo.ListForTerritory(ctx, territory)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Broker, 0, len(rows))
	for _, b := range rows {
		out = append(out, toDomainBroker(b))
	}
	return out, nil
}

func (a *BrokerDirectoryAdapter) GetBroker(ctx context.Context, id uuid.UUID) (domain.Broker, error) {
	b, err := a.repo.GetByID(ctx, id)
	if err != nil {
		return domain.Broker{}, err
	}
	return toDomainBroker(b), nil
}

func (a *BrokerDirectoryAdapter) GetBrokerByUserID(ctx context.Context, userID uuid.UUID) (domain.Broker, error) {
	b, err := a.repo.GetByUserID(ctx, userID)
	if err != nil {
		return domain.Broker{}, err
	}
	return toDomainBroker(b), nil
}

func toDomainBroker(b repository.Broker) domain.Broker {
	return domain.Broker{
		ID:          b.ID,
		DisplayName: b.DisplayName,
		Active:      b.Active,
		Territories: b.Territories,
	}
}

var _ ports.BrokerDirectory = (*BrokerDirectoryAdapter)(nil)
