/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package remit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/jerry-enebeli/remit/config"
	"github.com/jerry-enebeli/remit/internal/request"
	"github.com/jerry-enebeli/remit/model"
)

const (
	EventTransactionCompleted = "transaction.completed"
	EventTransactionFailed    = "transaction.failed"

	// webhookRetention keeps delivered tasks around so their ids keep rejecting duplicates.
	webhookRetention = 24 * time.Hour
)

// NewWebhook represents the structure of a webhook notification.
// It includes an event type and associated payload data.
type NewWebhook struct {
	Event   string         `json:"event"`
	Payload WebhookPayload `json:"data"`
}

// WebhookPayload is the consumer facing view of a transaction in a terminal status.
type WebhookPayload struct {
	TransactionID  string                `json:"transaction_id"`
	TransactionRef string                `json:"transaction_ref"`
	Type           model.TransactionType `json:"type"`
	Status         model.Status          `json:"status"`
	Debit          model.Leg             `json:"debit"`
	Credit         model.Leg             `json:"credit"`
	Reason         FailureReason         `json:"reason,omitempty"`
	Message        string                `json:"message,omitempty"`
}

// WebhookNotifier is the ConsumerNotifier delivering terminal events through the webhook queue.
// Each event is enqueued under a task id derived from the transaction, so repeated calls for the
// same transaction and event produce a single delivery.
type WebhookNotifier struct {
	client  *asynq.Client
	queue   string
	enabled bool
}

func NewWebhookNotifier(client *asynq.Client, conf *config.Configuration) *WebhookNotifier {
	return &WebhookNotifier{
		client:  client,
		queue:   conf.Queue.WebhookQueue,
		enabled: conf.Notification.Webhook.Url != "",
	}
}

func (n *WebhookNotifier) NotifyTransactionCompleted(ctx context.Context, txn *model.Transaction) error {
	return n.send(ctx, NewWebhook{Event: EventTransactionCompleted, Payload: newWebhookPayload(txn, model.StatusCompleted)})
}

func (n *WebhookNotifier) NotifyTransactionFailed(ctx context.Context, txn *model.Transaction, reason FailureReason) error {
	payload := newWebhookPayload(txn, model.StatusFailed)
	payload.Reason = reason
	payload.Message = reason.Message()
	return n.send(ctx, NewWebhook{Event: EventTransactionFailed, Payload: payload})
}

func newWebhookPayload(txn *model.Transaction, status model.Status) WebhookPayload {
	return WebhookPayload{
		TransactionID:  txn.TransactionID,
		TransactionRef: txn.TransactionRef,
		Type:           txn.Type,
		Status:         status,
		Debit:          txn.Debit,
		Credit:         txn.Credit,
	}
}

func webhookTaskID(event, transactionID string) string {
	return fmt.Sprintf("webhook:%s:%s", event, transactionID)
}

func (n *WebhookNotifier) send(ctx context.Context, webhook NewWebhook) error {
	if !n.enabled {
		return nil
	}

	payload, err := json.Marshal(webhook)
	if err != nil {
		return err
	}

	task := asynq.NewTask(n.queue, payload,
		asynq.Queue(n.queue),
		asynq.TaskID(webhookTaskID(webhook.Event, webhook.Payload.TransactionID)),
		asynq.Retention(webhookRetention),
	)
	_, err = n.client.EnqueueContext(ctx, task)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		logrus.WithFields(logrus.Fields{"event": webhook.Event, "transaction_id": webhook.Payload.TransactionID}).
			Info("webhook already queued, skipping")
		return nil
	}
	return err
}

// ProcessWebhook delivers a webhook task to the configured endpoint. Client errors are not retried.
func ProcessWebhook(ctx context.Context, task *asynq.Task) error {
	conf, err := config.Fetch()
	if err != nil {
		return err
	}

	if conf.Notification.Webhook.Url == "" {
		return nil
	}

	var webhook NewWebhook
	if err := json.Unmarshal(task.Payload(), &webhook); err != nil {
		return fmt.Errorf("decode webhook: %v: %w", err, asynq.SkipRetry)
	}

	body, err := request.ToJsonReq(webhook)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, conf.Notification.Webhook.Url, body)
	if err != nil {
		return err
	}
	for key, value := range conf.Notification.Webhook.Headers {
		req.Header.Set(key, value)
	}

	_, err = request.Call(req, nil)
	var statusErr *request.StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode < http.StatusInternalServerError {
		logrus.WithError(err).WithField("event", webhook.Event).Error("webhook rejected by endpoint")
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	if err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{"event": webhook.Event, "transaction_id": webhook.Payload.TransactionID}).Info("webhook delivered")
	return nil
}
