// Package notification provides event handlers for telling brokers and
// operators about referral changes by email and SMS.
// This module subscribes to events and inverts the dependency: the referral
// lifecycle does not know about email providers, templates, or gateways.
package notification

import (
	"context"
	"fmt"
	"strings"
	"time"

	"broker_portal_backend/internal/email"
	"broker_portal_backend/internal/events"
	"broker_portal_backend/internal/scheduler"
	"broker_portal_backend/platform/config"
	"broker_portal_backend/platform/logger"

	"github.com/google/uuid"
)

const smsExpiresLayout = "Jan 2 15:04 MST"

// BrokerContact is how a broker is reached.
type BrokerContact struct {
	Name  string
	Email string
	Phone string
}

// BrokerContactReader resolves broker contact details.
type BrokerContactReader interface {
	GetBrokerContact(ctx context.Context, brokerID uuid.UUID) (BrokerContact, error)
}

// SMSSender sends text messages.
type SMSSender interface {
	SendMessage(ctx context.Context, phoneNumber string, message string) error
}

// Module handles referral events and delivers the resulting messages.
type Module struct {
	sender       email.Sender
	sms          SMSSender
	contacts     BrokerContactReader
	tasks        scheduler.NotificationScheduler
	reminderLead time.Duration
	cfg          config.NotificationConfig
	log          *logger.Logger
	now          func() time.Time
}

// New creates a new notification module.
func New(sender email.Sender, cfg config.NotificationConfig, log *logger.Logger) *Module {
	return &Module{
		sender: sender,
		cfg:    cfg,
		log:    log,
		now:    time.Now,
	}
}

// SetSMSSender injects the SMS gateway.
func (m *Module) SetSMSSender(sender SMSSender) { m.sms = sender }

// SetBrokerContacts injects the broker contact reader.
func (m *Module) SetBrokerContacts(reader BrokerContactReader) { m.contacts = reader }

// SetTaskScheduler moves broker deliveries onto the background queue and
// enables expiry reminders reminderLead before each deadline.
func (m *Module) SetTaskScheduler(tasks scheduler.NotificationScheduler, reminderLead time.Duration) {
	m.tasks = tasks
	m.reminderLead = reminderLead
}

// RegisterHandlers subscribes to the events this module handles.
func (m *Module) RegisterHandlers(bus events.Bus) {
	bus.Subscribe(events.ReferralAssigned{}.EventName(), m)
	bus.Subscribe(events.ReferralExpired{}.EventName(), m)
	bus.Subscribe(events.ReferralNeedsManualAssignment{}.EventName(), m)

	// Scheduled deliveries
	bus.Subscribe(events.BrokerNotificationDue{}.EventName(), m)
	bus.Subscribe(events.ReferralExpiryReminderDue{}.EventName(), m)

	m.log.Info("notification module registered event handlers")
}

// Handle routes events to the appropriate handler method.
func (m *Module) Handle(ctx context.Context, event events.Event) error {
	switch e := event.(type) {
	case events.ReferralAssigned:
		return m.handleReferralAssigned(ctx, e)
	case events.ReferralExpired:
		return m.handleReferralExpired(ctx, e)
	case events.ReferralNeedsManualAssignment:
		return m.handleNeedsManualAssignment(ctx, e)
	case events.BrokerNotificationDue:
		return m.deliverBrokerNotification(ctx, e)
	case events.ReferralExpiryReminderDue:
		return m.handleExpiryReminderDue(ctx, e)
	default:
		m.log.Warn("unhandled event type", "event", event.EventName())
		return nil
	}
}

func (m *Module) handleReferralAssigned(ctx context.Context, e events.ReferralAssigned) error {
	expiresAt := e.ExpiresAt
	due := events.BrokerNotificationDue{
		BaseEvent: events.NewBaseEvent(),
		Kind:      events.BrokerNotifyAssigned,
		LeadID:    e.LeadID,
		BrokerID:  e.BrokerID,
		Territory: e.Territory,
		ExpiresAt: &expiresAt,
	}

	if !m.enqueue(ctx, due) {
		if err := m.deliverBrokerNotification(ctx, due); err != nil {
			return err
		}
	}

	m.scheduleReminder(ctx, e)
	return nil
}

func (m *Module) handleReferralExpired(ctx context.Context, e events.ReferralExpired) error {
	due := events.BrokerNotificationDue{
		BaseEvent: events.NewBaseEvent(),
		Kind:      events.BrokerNotifyExpired,
		LeadID:    e.LeadID,
		BrokerID:  e.BrokerID,
		Territory: e.Territory,
	}
	if m.enqueue(ctx, due) {
		return nil
	}
	return m.deliverBrokerNotification(ctx, due)
}

// enqueue hands the notification to the worker. It reports false when the
// caller should deliver inline instead.
func (m *Module) enqueue(ctx context.Context, due events.BrokerNotificationDue) bool {
	if m.tasks == nil {
		return false
	}

	err := m.tasks.EnqueueBrokerNotification(ctx, scheduler.BrokerNotifyPayload{
		Kind:      due.Kind,
		LeadID:    due.LeadID.String(),
		BrokerID:  due.BrokerID.String(),
		Territory: due.Territory,
		ExpiresAt: due.ExpiresAt,
	})
	if err != nil {
		m.log.Warn("failed to enqueue broker notification, delivering inline",
			"error", err, "leadId", due.LeadID, "kind", due.Kind)
		return false
	}
	return true
}

func (m *Module) scheduleReminder(ctx context.Context, e events.ReferralAssigned) {
	if m.tasks == nil || m.reminderLead <= 0 {
		return
	}

	runAt := e.ExpiresAt.Add(-m.reminderLead)
	if !runAt.After(m.now()) {
		return
	}

	err := m.tasks.ScheduleExpiryReminder(ctx, scheduler.ExpiryReminderPayload{
		LeadID:    e.LeadID.String(),
		BrokerID:  e.BrokerID.String(),
		Territory: e.Territory,
		ExpiresAt: e.ExpiresAt,
	}, runAt)
	if err != nil {
		m.log.Warn("failed to schedule referral reminder", "error", err, "leadId", e.LeadID)
	}
}

// deliverBrokerNotification sends the email and, when the broker has a
// mobile number, an SMS. Only the email failure is returned so a retried
// task does not resend a message that already went out.
func (m *Module) deliverBrokerNotification(ctx context.Context, e events.BrokerNotificationDue) error {
	contact, ok, err := m.lookupContact(ctx, e.BrokerID)
	if err != nil || !ok {
		return err
	}

	msg := email.ReferralEmail{
		ToEmail:    contact.Email,
		BrokerName: contact.Name,
		Territory:  e.Territory,
		URL:        m.referralURL(e.LeadID),
	}
	if e.ExpiresAt != nil {
		msg.ExpiresAt = *e.ExpiresAt
	}

	var send func(context.Context, email.ReferralEmail) error
	var text string
	switch e.Kind {
	case events.BrokerNotifyAssigned:
		send = m.sender.SendReferralAssignedEmail
		text = fmt.Sprintf("New referral in %s. Respond before %s: %s",
			e.Territory, msg.ExpiresAt.Format(smsExpiresLayout), msg.URL)
	case events.BrokerNotifyExpired:
		send = m.sender.SendReferralExpiredEmail
		text = "A referral you did not answer in time has been passed to another broker."
	default:
		m.log.Warn("unknown broker notification kind", "kind", e.Kind, "leadId", e.LeadID)
		return nil
	}

	sendErr := m.sendEmail(ctx, send, msg, e.LeadID)
	m.sendSMS(ctx, contact, text, e.LeadID)
	return sendErr
}

func (m *Module) handleExpiryReminderDue(ctx context.Context, e events.ReferralExpiryReminderDue) error {
	contact, ok, err := m.lookupContact(ctx, e.BrokerID)
	if err != nil || !ok {
		return err
	}

	msg := email.ReferralEmail{
		ToEmail:    contact.Email,
		BrokerName: contact.Name,
		Territory:  e.Territory,
		ExpiresAt:  e.ExpiresAt,
		URL:        m.referralURL(e.LeadID),
	}

	sendErr := m.sendEmail(ctx, m.sender.SendReferralReminderEmail, msg, e.LeadID)
	m.sendSMS(ctx, contact, fmt.Sprintf("Reminder: your referral in %s expires %s: %s",
		e.Territory, e.ExpiresAt.Format(smsExpiresLayout), msg.URL), e.LeadID)
	return sendErr
}

func (m *Module) handleNeedsManualAssignment(ctx context.Context, e events.ReferralNeedsManualAssignment) error {
	to := strings.TrimSpace(m.cfg.GetOpsAlertEmail())
	if to == "" {
		m.log.Warn("lead needs manual assignment, no ops alert address configured",
			"leadId", e.LeadID, "territory", e.Territory)
		return nil
	}

	err := m.sender.SendManualAssignmentAlert(ctx, email.ManualAssignmentAlert{
		ToEmail:    to,
		LeadID:     e.LeadID.String(),
		Territory:  e.Territory,
		TriedCount: len(e.TriedBrokerIDs),
		URL:        m.baseURL() + "/admin/referrals/" + e.LeadID.String(),
	})
	if err != nil {
		m.log.Error("failed to send manual assignment alert", "error", err, "leadId", e.LeadID)
		return err
	}
	return nil
}

func (m *Module) lookupContact(ctx context.Context, brokerID uuid.UUID) (BrokerContact, bool, error) {
	if m.contacts == nil {
		m.log.Warn("broker contacts not configured, skipping notification", "brokerId", brokerID)
		return BrokerContact{}, false, nil
	}

	contact, err := m.contacts.GetBrokerContact(ctx, brokerID)
	if err != nil {
		return BrokerContact{}, false, fmt.Errorf("load broker contact: %w", err)
	}
	if contact.Email == "" && contact.Phone == "" {
		m.log.Warn("broker has no contact channel", "brokerId", brokerID)
		return BrokerContact{}, false, nil
	}
	return contact, true, nil
}

func (m *Module) sendEmail(ctx context.Context, send func(context.Context, email.ReferralEmail) error, msg email.ReferralEmail, leadID uuid.UUID) error {
	if msg.ToEmail == "" {
		return nil
	}
	if err := send(ctx, msg); err != nil {
		m.log.Error("failed to send referral email", "error", err, "leadId", leadID)
		return err
	}
	return nil
}

func (m *Module) sendSMS(ctx context.Context, contact BrokerContact, text string, leadID uuid.UUID) {
	if m.sms == nil || contact.Phone == "" {
		return
	}
	if err := m.sms.SendMessage(ctx, contact.Phone, text); err != nil {
		m.log.Warn("failed to send referral sms", "error", err, "leadId", leadID)
	}
}

func (m *Module) referralURL(leadID uuid.UUID) string {
	return m.baseURL() + "/broker/referrals/" + leadID.String()
}

func (m *Module) baseURL() string {
	return strings.TrimRight(m.cfg.GetAppBaseURL(), "/")
}
