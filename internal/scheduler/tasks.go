package scheduler

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const TaskBrokerNotify = "referrals.broker_notify"

const TaskExpiryReminder = "referrals.expiry_reminder"

type BrokerNotifyPayload struct {
	Kind      string     `json:"kind"`
	LeadID    string     `json:"leadId"`
	BrokerID  string     `json:"brokerId"`
	Territory string     `json:"territory"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

type ExpiryReminderPayload struct {
	LeadID    string    `json:"leadId"`
	BrokerID  string    `json:"brokerId"`
	Territory string    `json:"territory"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func NewBrokerNotifyTask(payload BrokerNotifyPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskBrokerNotify, data), nil
}

func ParseBrokerNotifyPayload(task *asynq.Task) (BrokerNotifyPayload, error) {
	var payload BrokerNotifyPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return BrokerNotifyPayload{}, err
	}
	return payload, nil
}

func NewExpiryReminderTask(payload ExpiryReminderPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskExpiryReminder, data), nil
}

func ParseExpiryReminderPayload(task *asynq.Task) (ExpiryReminderPayload, error) {
	var payload ExpiryReminderPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return ExpiryReminderPayload{}, err
	}
	return payload, nil
}

// reminderTaskID keeps one reminder per referral deadline.
func reminderTaskID(payload ExpiryReminderPayload) string {
	return "reminder:" + payload.LeadID + ":" + payload.ExpiresAt.UTC().Format(time.RFC3339)
}
