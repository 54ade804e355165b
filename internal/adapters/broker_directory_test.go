package adapters

import (
	"context"
	"testing"

	"broker_portal_backend/internal/brokers/repository"
	"broker_portal_backend/platform/apperr"

	"github.com/google/uuid"
)

type stubDirectory struct {
	brokers []repository.Broker
}

func (s stubDirectory) ListForTerritory(_ context.Context, territory string) ([]repository.Broker, error) {
	var out []repository.Broker
	for _, b := range s.brokers {
		for _, t := range b.Territories {
			if t == territory {
				out = append(out, b)
			}
		}
	}
	return out, nil
}

func (s stubDirectory) GetByID(_ context.Context, id uuid.UUID) (repository.Broker, error) {
	for _, b := range s.brokers {
		if b.ID == id {
			return b, nil
		}
	}
	return repository.Broker{}, apperr.NotFound("broker not found")
}

func (s stubDirectory) GetByUserID(_ context.Context, userID uuid.UUID) (repository.Broker, error) {
	for _, b := range s.brokers {
		if b.UserID == userID {
			return b, nil
		}
	}
	return repository.Broker{}, apperr.NotFound("broker not found")
}

func TestBrokerDirectoryAdapterPreservesOrderAndFields(t *testing.T) {
	first := repository.Broker{ID: uuid.New(), UserID: uuid.New(), DisplayName: "First", Active: true, Territories: []string{"NY"}}
	second := repository.Broker{ID: uuid.New(), UserID: uuid.New(), DisplayName: "Second", Active: false, Territories: []string{"NY", "NJ"}}
	adapter := NewBrokerDirectoryAdapter(stubDirectory{brokers: []repository.Broker{first, second}})

	got, err := adapter.ListBrokersForTerritory(context.Background(), "NY")
	if err != nil {
		t.Fatalf("ListBrokersForTerritory: %v", err)
	}
	if len(got) != 2 || got[0].ID != first.ID || got[1].ID != second.ID {
		t.Fatalf("expected directory order preserved, got %+v", got)
	}
	if got[1].Active {
		t.Fatal("expected inactive flag to carry over")
	}

	byUser, err := adapter.GetBrokerByUserID(context.Background(), second.UserID)
	if err != nil {
		t.Fatalf("GetBrokerByUserID: %v", err)
	}
	if byUser.ID != second.ID || !byUser.Covers("NJ") {
		t.Fatalf("unexpected broker %+v", byUser)
	}

	if _, err := adapter.GetBroker(context.Background(), uuid.New()); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
