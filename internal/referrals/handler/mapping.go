package handler

import (
	"broker_portal_backend/internal/referrals/domain"
	"broker_portal_backend/internal/referrals/service"
	"broker_portal_backend/internal/referrals/transport"

	"github.com/google/uuid"
)

func mapLead(l domain.Lead) transport.LeadResponse {
	tried := l.TriedBrokerIDs
	if tried == nil {
		tried = []uuid.UUID{}
	}
	var reason *string
	if l.DeclineReason != nil {
		r := string(*l.DeclineReason)
		reason = &r
	}
	return transport.LeadResponse{
		ID:                l.ID,
		CustomerRef:       l.CustomerRef,
		Territory:         l.Territory,
		PropertyRef:       l.PropertyRef,
		Status:            string(l.Status),
		AssignedBrokerID:  l.AssignedBrokerID,
		ReferredAt:        l.ReferredAt,
		AcceptedAt:        l.AcceptedAt,
		DeclinedAt:        l.DeclinedAt,
		ExpiredAt:         l.ExpiredAt,
		ReferralExpiresAt: l.ReferralExpiresAt,
		DeclineReason:     reason,
		DeclineNotes:      l.DeclineNotes,
		AcceptNotes:       l.AcceptNotes,
		TriedBrokerIDs:    tried,
		Version:           l.Version,
		CreatedAt:         l.CreatedAt,
		UpdatedAt:         l.UpdatedAt,
	}
}

func mapLeads(leads []domain.Lead) transport.LeadListResponse {
	items := make([]transport.LeadResponse, 0, len(leads))
	for _, l := range leads {
		items = append(items, mapLead(l))
	}
	return transport.LeadListResponse{Items: items}
}

func mapResult(r service.Result) transport.LifecycleResponse {
	resp := transport.LifecycleResponse{
		Lead:                  mapLead(r.Lead),
		Outcome:               string(r.Outcome),
		Reason:                r.Reason,
		NeedsManualAssignment: r.Outcome == service.OutcomeNoEligibleBroker,
	}
	if r.Consultation != nil {
		resp.Consultation = &transport.ConsultationResponse{
			ID:          r.Consultation.ID,
			LeadID:      r.Consultation.LeadID,
			BrokerID:    r.Consultation.BrokerID,
			CustomerRef: r.Consultation.CustomerRef,
			Status:      r.Consultation.Status,
			CreatedAt:   r.Consultation.CreatedAt,
		}
	}
	if r.Reassignment != nil {
		nested := mapResult(*r.Reassignment)
		resp.Reassignment = &nested
		resp.NeedsManualAssignment = resp.NeedsManualAssignment || nested.NeedsManualAssignment
	}
	return resp
}

func mapEvents(evts []domain.Event) transport.EventListResponse {
	items := make([]transport.EventResponse, 0, len(evts))
	for _, e := range evts {
		item := transport.EventResponse{
			ID:        e.ID,
			LeadID:    e.LeadID,
			Type:      string(e.Type),
			ActorType: string(e.Actor.Type),
			ActorID:   e.Actor.ID,
			Metadata:  e.Metadata,
			CreatedAt: e.CreatedAt,
		}
		if e.FromStatus != nil {
			from := string(*e.FromStatus)
			item.FromStatus = &from
		}
		if e.ToStatus != nil {
			to := string(*e.ToStatus)
			item.ToStatus = &to
		}
		items = append(items, item)
	}
	return transport.EventListResponse{Items: items}
}
