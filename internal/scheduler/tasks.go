package scheduler

import (
	"encoding/json"

	"bbys_backend/internal/notifications"
	"bbys_backend/internal/salesforce"

	"github.com/hibiken/asynq"
)

const (
	TaskQueueEmail              = "notifications.queue_email"
	TaskRetryEmails             = "notifications.retry"
	TaskRegisteredClientWelcome = "notifications.send_registered_client_notification"
	TaskDailySweep              = "notifications.sweep_daily"
	TaskHourlySweep             = "notifications.sweep_hourly"
	TaskPushToSalesforce        = "salesforce.push"
	TaskUpdateAppStatus         = "applications.update_app_status"
	TaskOutboxDue               = "outbox.due"
	syncFromSalesforcePrefix    = "salesforce.sync_from_salesforce."
)

// TaskSyncFromSalesforce names the sync task of one CRM record type.
func TaskSyncFromSalesforce(recordType string) string {
	return syncFromSalesforcePrefix + recordType
}

type ApplicationPayload struct {
	ApplicationID string `json:"application_id"`
}

type SyncPayload struct {
	RecordType string          `json:"record_type"`
	Record     json.RawMessage `json:"record"`
}

type OutboxDuePayload struct {
	OutboxID string `json:"outbox_id"`
}

func newTask(typeName string, payload any) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(typeName, data), nil
}

func parse[T any](task *asynq.Task) (T, error) {
	var payload T
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return payload, err
	}
	return payload, nil
}

// NewEmailTask picks the task type for a dispatch request. The welcome mail
// of a registered client has its own task so it can be retried on its own.
func NewEmailTask(req notifications.Request) (*asynq.Task, error) {
	if req.Name == notifications.RegisteredClientWelcome {
		return newTask(TaskRegisteredClientWelcome, req)
	}
	return newTask(TaskQueueEmail, req)
}

func NewRetryEmailsTask(payload ApplicationPayload) (*asynq.Task, error) {
	return newTask(TaskRetryEmails, payload)
}

func NewPushTask(job salesforce.Job) (*asynq.Task, error) {
	return newTask(TaskPushToSalesforce, job)
}

func NewSyncTask(payload SyncPayload) (*asynq.Task, error) {
	return newTask(TaskSyncFromSalesforce(payload.RecordType), payload)
}

func NewUpdateAppStatusTask(payload ApplicationPayload) (*asynq.Task, error) {
	return newTask(TaskUpdateAppStatus, payload)
}

func NewOutboxDueTask(payload OutboxDuePayload) (*asynq.Task, error) {
	return newTask(TaskOutboxDue, payload)
}
