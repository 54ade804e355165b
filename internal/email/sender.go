// Package email renders and delivers transactional referral emails.
package email

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"broker_portal_backend/platform/config"
)

const (
	subjectReferralAssigned = "New referral in %s"
	subjectReferralReminder = "Reminder: referral in %s expires soon"
	subjectReferralExpired  = "Referral in %s was reassigned"
	subjectManualAssignment = "Lead in %s needs manual assignment"
	expiresAtLayout         = "Mon Jan 2, 15:04 MST"
	referralCTALabel        = "Open referral"
)

// ReferralEmail describes a broker-facing referral message.
type ReferralEmail struct {
	ToEmail    string
	BrokerName string
	Territory  string
	ExpiresAt  time.Time
	URL        string
}

// ManualAssignmentAlert describes an operator alert for a parked lead.
type ManualAssignmentAlert struct {
	ToEmail    string
	LeadID     string
	Territory  string
	TriedCount int
	URL        string
}

type Sender interface {
	SendReferralAssignedEmail(ctx context.Context, msg ReferralEmail) error
	SendReferralReminderEmail(ctx context.Context, msg ReferralEmail) error
	SendReferralExpiredEmail(ctx context.Context, msg ReferralEmail) error
	SendManualAssignmentAlert(ctx context.Context, msg ManualAssignmentAlert) error
}

// transport delivers one rendered message.
type transport interface {
	send(ctx context.Context, toEmail, subject, htmlContent string) error
}

// NewSender picks the delivery transport from configuration.
func NewSender(cfg config.EmailConfig) (Sender, error) {
	if !cfg.GetEmailEnabled() {
		return NoopSender{}, nil
	}

	if cfg.GetBrevoAPIKey() != "" {
		return &templatedSender{transport: &BrevoSender{
			apiKey:    cfg.GetBrevoAPIKey(),
			fromName:  cfg.GetEmailFromName(),
			fromEmail: cfg.GetEmailFromAddress(),
			endpoint:  brevoEndpoint,
			client:    &http.Client{Timeout: 10 * time.Second},
		}}, nil
	}

	if cfg.GetSMTPHost() == "" {
		return nil, fmt.Errorf("email enabled without SMTP_HOST or BREVO_API_KEY")
	}
	return &templatedSender{transport: NewSMTPSender(
		cfg.GetSMTPHost(),
		cfg.GetSMTPPort(),
		cfg.GetSMTPUsername(),
		cfg.GetSMTPPassword(),
		cfg.GetEmailFromAddress(),
		cfg.GetEmailFromName(),
	)}, nil
}

type NoopSender struct{}

func (NoopSender) SendReferralAssignedEmail(context.Context, ReferralEmail) error         { return nil }
func (NoopSender) SendReferralReminderEmail(context.Context, ReferralEmail) error         { return nil }
func (NoopSender) SendReferralExpiredEmail(context.Context, ReferralEmail) error          { return nil }
func (NoopSender) SendManualAssignmentAlert(context.Context, ManualAssignmentAlert) error { return nil }

// templatedSender renders the referral templates and hands them to a transport.
type templatedSender struct {
	transport transport
}

func (s *templatedSender) SendReferralAssignedEmail(ctx context.Context, msg ReferralEmail) error {
	return s.sendReferral(ctx, "referral_assigned.html", subjectReferralAssigned, "New referral", msg)
}

func (s *templatedSender) SendReferralReminderEmail(ctx context.Context, msg ReferralEmail) error {
	return s.sendReferral(ctx, "referral_reminder.html", subjectReferralReminder, "Referral expiring soon", msg)
}

func (s *templatedSender) SendReferralExpiredEmail(ctx context.Context, msg ReferralEmail) error {
	return s.sendReferral(ctx, "referral_expired.html", subjectReferralExpired, "Referral reassigned", msg)
}

func (s *templatedSender) SendManualAssignmentAlert(ctx context.Context, msg ManualAssignmentAlert) error {
	content, err := renderEmailTemplate("manual_assignment.html", manualAssignmentEmailData{
		baseEmailData: baseEmailData{
			Title:    "Manual assignment needed",
			Heading:  "Manual assignment needed",
			CTALabel: "Assign lead",
			CTAURL:   msg.URL,
		},
		LeadID:     msg.LeadID,
		Territory:  msg.Territory,
		TriedCount: msg.TriedCount,
	})
	if err != nil {
		return err
	}
	return s.transport.send(ctx, msg.ToEmail, fmt.Sprintf(subjectManualAssignment, msg.Territory), content)
}

func (s *templatedSender) sendReferral(ctx context.Context, tmpl, subjectFmt, heading string, msg ReferralEmail) error {
	data := referralEmailData{
		baseEmailData: baseEmailData{
			Title:    heading,
			Heading:  heading,
			CTALabel: referralCTALabel,
			CTAURL:   msg.URL,
		},
		BrokerName: msg.BrokerName,
		Territory:  msg.Territory,
	}
	if !msg.ExpiresAt.IsZero() {
		data.ExpiresAt = msg.ExpiresAt.UTC().Format(expiresAtLayout)
	}

	content, err := renderEmailTemplate(tmpl, data)
	if err != nil {
		return err
	}
	return s.transport.send(ctx, msg.ToEmail, fmt.Sprintf(subjectFmt, msg.Territory), content)
}
