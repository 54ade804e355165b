// Package service holds broker directory business logic.
package service

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"broker_portal_backend/internal/brokers/repository"
	"broker_portal_backend/internal/brokers/transport"
	"broker_portal_backend/platform/apperr"
	"broker_portal_backend/platform/phone"
	"broker_portal_backend/platform/sanitize"

	"github.com/google/uuid"
)

const displayNameMaxRunes = 200

// Store is the persistence the broker service needs.
type Store interface {
	Create(ctx context.Context, b repository.Broker) (repository.Broker, error)
	UpsertByUserID(ctx context.Context, b repository.Broker) (repository.Broker, error)
	GetByID(ctx context.Context, id uuid.UUID) (repository.Broker, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) (repository.Broker, error)
	List(ctx context.Context) ([]repository.Broker, error)
	ReplaceTerritories(ctx context.Context, brokerID uuid.UUID, territories []string) error
	SetActive(ctx context.Context, brokerID uuid.UUID, active bool) error
}

// Service provides business logic for the broker directory.
type Service struct {
	repo        Store
	phoneRegion string
}

// New creates a new broker service. phoneRegion is used for numbers
// entered without a country code.
func New(repo Store, phoneRegion string) *Service {
	if phoneRegion == "" {
		phoneRegion = phone.DefaultRegion
	}
	return &Service{repo: repo, phoneRegion: phoneRegion}
}

func (s *Service) Create(ctx context.Context, req transport.CreateBrokerRequest) (transport.BrokerResponse, error) {
	b, err := s.buildBroker(req)
	if err != nil {
		return transport.BrokerResponse{}, err
	}

	created, err := s.repo.Create(ctx, b)
	if err != nil {
		return transport.BrokerResponse{}, err
	}

	if len(req.Territories) > 0 {
		territories := NormalizeTerritories(req.Territories)
		if err := s.repo.ReplaceTerritories(ctx, created.ID, territories); err != nil {
			return transport.BrokerResponse{}, err
		}
		created.Territories = territories
	}

	return mapBroker(created), nil
}

// Import creates or refreshes a broker keyed by its user id, replacing coverage.
func (s *Service) Import(ctx context.Context, req transport.CreateBrokerRequest) (transport.BrokerResponse, error) {
	b, err := s.buildBroker(req)
	if err != nil {
		return transport.BrokerResponse{}, err
	}

	saved, err := s.repo.UpsertByUserID(ctx, b)
	if err != nil {
		return transport.BrokerResponse{}, err
	}

	territories := NormalizeTerritories(req.Territories)
	if err := s.repo.ReplaceTerritories(ctx, saved.ID, territories); err != nil {
		return transport.BrokerResponse{}, err
	}
	saved.Territories = territories
	return mapBroker(saved), nil
}

func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (transport.BrokerResponse, error) {
	b, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return transport.BrokerResponse{}, err
	}
	return mapBroker(b), nil
}

func (s *Service) List(ctx context.Context) (transport.BrokerListResponse, error) {
	brokers, err := s.repo.List(ctx)
	if err != nil {
		return transport.BrokerListResponse{}, err
	}
	items := make([]transport.BrokerResponse, 0, len(brokers))
	for _, b := range brokers {
		items = append(items, mapBroker(b))
	}
	return transport.BrokerListResponse{Items: items}, nil
}

func (s *Service) ReplaceTerritories(ctx context.Context, id uuid.UUID, req transport.ReplaceTerritoriesRequest) (transport.BrokerResponse, error) {
	if err := s.repo.ReplaceTerritories(ctx, id, NormalizeTerritories(req.Territories)); err != nil {
		return transport.BrokerResponse{}, err
	}
	return s.GetByID(ctx, id)
}

// SetActive toggles eligibility. Referrals already held by the broker are untouched.
func (s *Service) SetActive(ctx context.Context, id uuid.UUID, active bool) (transport.BrokerResponse, error) {
	if err := s.repo.SetActive(ctx, id, active); err != nil {
		return transport.BrokerResponse{}, err
	}
	return s.GetByID(ctx, id)
}

// Contact is what notification channels need to reach a broker.
type Contact struct {
	BrokerID    uuid.UUID
	DisplayName string
	Email       string
	Phone       string
}

// GetContact returns how to reach a broker.
func (s *Service) GetContact(ctx context.Context, id uuid.UUID) (Contact, error) {
	b, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return Contact{}, err
	}
	contact := Contact{BrokerID: b.ID, DisplayName: b.DisplayName, Email: b.Email}
	if b.Phone != nil {
		contact.Phone = *b.Phone
	}
	return contact, nil
}

func (s *Service) buildBroker(req transport.CreateBrokerRequest) (repository.Broker, error) {
	displayName := sanitize.Text(req.DisplayName, displayNameMaxRunes)
	if displayName == "" {
		return repository.Broker{}, apperr.Validation("display name is required")
	}

	phoneNumber, err := s.normalizePhone(req.Phone)
	if err != nil {
		return repository.Broker{}, err
	}

	b := repository.Broker{
		ID:            uuid.New(),
		UserID:        req.UserID,
		DisplayName:   displayName,
		Email:         strings.ToLower(strings.TrimSpace(req.Email)),
		Phone:         phoneNumber,
		Active:        req.Active,
		DirectoryRank: req.DirectoryRank,
	}
	if req.Active {
		now := time.Now().UTC()
		b.ApprovedAt = &now
	}
	return b, nil
}

func (s *Service) normalizePhone(raw string) (*string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	e164, err := phone.NormalizeE164(raw, s.phoneRegion)
	if errors.Is(err, phone.ErrInvalidNumber) {
		return nil, apperr.Validation("invalid phone number")
	}
	if err != nil {
		return nil, err
	}
	return &e164, nil
}

// NormalizeTerritories upper-cases, trims, dedupes and sorts territory codes.
func NormalizeTerritories(territories []string) []string {
	out := make([]string, 0, len(territories))
	for _, t := range territories {
		t = strings.ToUpper(strings.TrimSpace(t))
		if t != "" {
			out = append(out, t)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

func mapBroker(b repository.Broker) transport.BrokerResponse {
	territories := b.Territories
	if territories == nil {
		territories = []string{}
	}
	return transport.BrokerResponse{
		ID:            b.ID,
		UserID:        b.UserID,
		DisplayName:   b.DisplayName,
		Email:         b.Email,
		Phone:         b.Phone,
		Active:        b.Active,
		ApprovedAt:    b.ApprovedAt,
		DirectoryRank: b.DirectoryRank,
		Territories:   territories,
		CreatedAt:     b.CreatedAt,
		UpdatedAt:     b.UpdatedAt,
	}
}

// GetForUser returns the broker profile linked to a login.
func (s *Service) GetForUser(ctx context.Context, userID uuid.UUID) (transport.BrokerResponse, error) {
	b, err := s.repo.GetByUserID(ctx, userID)
	if err != nil {
		return transport.BrokerResponse{}, err
	}
	return mapBroker(b), nil
}
