package selector

import (
	"context"
	"errors"
	"testing"

	"broker_portal_backend/internal/referrals/domain"
	"broker_portal_backend/internal/referrals/memstore"

	"github.com/google/uuid"
)

type failingDirectory struct{ memstore.Directory }

func (*failingDirectory) ListBrokersForTerritory(context.Context, string) ([]domain.Broker, error) {
	return nil, errors.New("directory down")
}

func TestFirstMatchHonorsDirectoryOrder(t *testing.T) {
	first := domain.Broker{ID: uuid.New(), Active: true, Territories: []string{"SC"}}
	second := domain.Broker{ID: uuid.New(), Active: true, Territories: []string{"SC", "NC"}}
	sel := NewFirstMatch(memstore.NewDirectory(first, second))

	got, err := sel.SelectBroker(context.Background(), "sc", nil)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if got == nil || got.ID != first.ID {
		t.Fatalf("expected first broker, got %+v", got)
	}
}

func TestFirstMatchSkipsInactiveAndExcluded(t *testing.T) {
	inactive := domain.Broker{ID: uuid.New(), Active: false, Territories: []string{"SC"}}
	tried := domain.Broker{ID: uuid.New(), Active: true, Territories: []string{"SC"}}
	eligible := domain.Broker{ID: uuid.New(), Active: true, Territories: []string{"SC"}}
	sel := NewFirstMatch(memstore.NewDirectory(inactive, tried, eligible))

	got, err := sel.SelectBroker(context.Background(), "SC", []uuid.UUID{tried.ID})
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if got == nil || got.ID != eligible.ID {
		t.Fatalf("expected eligible broker, got %+v", got)
	}
}

func TestFirstMatchReturnsNilWhenNobodyCovers(t *testing.T) {
	sel := NewFirstMatch(memstore.NewDirectory(domain.Broker{ID: uuid.New(), Active: true, Territories: []string{"GA"}}))

	got, err := sel.SelectBroker(context.Background(), "SC", nil)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if got != nil {
		t.Fatalf("expected no broker, got %+v", got)
	}
}

func TestFirstMatchPropagatesDirectoryErrors(t *testing.T) {
	sel := NewFirstMatch(&failingDirectory{})
	if _, err := sel.SelectBroker(context.Background(), "SC", nil); err == nil {
		t.Fatal("expected directory error")
	}
}
