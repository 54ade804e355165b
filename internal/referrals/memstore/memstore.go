// Package memstore is an in-memory implementation of the referral ports.
// It backs service tests and local runs without Postgres.
package memstore

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"broker_portal_backend/internal/referrals/domain"
	"broker_portal_backend/internal/referrals/ports"
	"broker_portal_backend/platform/apperr"

	"github.com/google/uuid"
)

// Store keeps leads and consultations in maps guarded by one mutex.
type Store struct {
	mu            sync.RWMutex
	leads         map[uuid.UUID]domain.Lead
	consultations map[uuid.UUID]domain.Consultation

	// OnConditionalUpdate runs before the compare-and-set, outside the lock.
	// Tests use it to interleave a competing operation.
	OnConditionalUpdate func(ctx context.Context, leadID uuid.UUID)
	// Err, when set, is returned by every call.
	Err error
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		leads:         make(map[uuid.UUID]domain.Lead),
		consultations: make(map[uuid.UUID]domain.Consultation),
	}
}

func (s *Store) CreateLead(_ context.Context, lead domain.Lead) (domain.Lead, error) {
	if s.Err != nil {
		return domain.Lead{}, s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.leads[lead.ID]; exists {
		return domain.Lead{}, apperr.Conflict("lead already exists")
	}
	if lead.Version == 0 {
		lead.Version = 1
	}
	s.leads[lead.ID] = copyLead(lead)
	return copyLead(lead), nil
}

func (s *Store) GetLead(_ context.Context, id uuid.UUID) (domain.Lead, error) {
	if s.Err != nil {
		return domain.Lead{}, s.Err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	lead, ok := s.leads[id]
	if !ok {
		return domain.Lead{}, apperr.NotFound("lead not found")
	}
	return copyLead(lead), nil
}

func (s *Store) ConditionalUpdateLead(ctx context.Context, expected domain.Expected, next domain.Lead) (domain.Lead, error) {
	if s.Err != nil {
		return domain.Lead{}, s.Err
	}
	if hook := s.OnConditionalUpdate; hook != nil {
		hook(ctx, next.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.leads[next.ID]
	if !ok {
		return domain.Lead{}, apperr.NotFound("lead not found")
	}
	if current.Status != expected.Status || current.Version != expected.Version {
		return domain.Lead{}, domain.ErrStaleState
	}

	next.Version = expected.Version + 1
	next.CreatedAt = current.CreatedAt
	s.leads[next.ID] = copyLead(next)
	return copyLead(next), nil
}

func (s *Store) InsertConsultation(_ context.Context, c domain.Consultation) (domain.Consultation, error) {
	if s.Err != nil {
		return domain.Consultation{}, s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.consultations[c.LeadID]; ok {
		return existing, nil
	}
	s.consultations[c.LeadID] = c
	return c, nil
}

func (s *Store) ListOverdueReferrals(_ context.Context, now time.Time, limit int) ([]domain.Lead, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Lead
	for _, lead := range s.leads {
		if lead.IsOverdue(now) {
			out = append(out, copyLead(lead))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ReferralExpiresAt.Before(*out[j].ReferralExpiresAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) ListStrandedLeads(_ context.Context, updatedBefore time.Time, limit int) ([]domain.Lead, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Lead
	for _, lead := range s.leads {
		if lead.Status != domain.StatusDeclined && lead.Status != domain.StatusExpired {
			continue
		}
		if lead.UpdatedAt.Before(updatedBefore) {
			out = append(out, copyLead(lead))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.Before(out[j].UpdatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) ListLeads(_ context.Context, filter ports.LeadFilter) ([]domain.Lead, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Lead
	for _, lead := range s.leads {
		if filter.Status != nil && lead.Status != *filter.Status {
			continue
		}
		if filter.BrokerID != nil && !lead.IsAssignedTo(*filter.BrokerID) {
			continue
		}
		out = append(out, copyLead(lead))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// Consultation returns the consultation spawned for leadID, if any.
func (s *Store) Consultation(leadID uuid.UUID) (domain.Consultation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.consultations[leadID]
	return c, ok
}

// ConsultationCount reports how many consultations exist.
func (s *Store) ConsultationCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.consultations)
}

func copyLead(l domain.Lead) domain.Lead {
	l.TriedBrokerIDs = slices.Clone(l.TriedBrokerIDs)
	return l
}

var _ ports.LeadStore = (*Store)(nil)
