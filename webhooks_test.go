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
	"net/http"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jerry-enebeli/remit/config"
	"github.com/jerry-enebeli/remit/model"
)

const testWebhookURL = "https://hooks.example.com/remit"

func webhookConfig(url string) *config.Configuration {
	conf := &config.Configuration{Queue: config.QueueConfig{WebhookQueue: "webhook_queue"}}
	conf.Notification.Webhook.Url = url
	conf.Notification.Webhook.Headers = map[string]string{"X-Remit-Signature": "sig_123"}
	return conf
}

func newTestNotifier(t *testing.T, conf *config.Configuration) (*WebhookNotifier, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := asynq.NewClient(asynq.RedisClientOpt{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewWebhookNotifier(client, conf), mr
}

func webhookTask(t *testing.T, event string, txn *model.Transaction) *asynq.Task {
	t.Helper()
	payload, err := json.Marshal(NewWebhook{Event: event, Payload: newWebhookPayload(txn, model.StatusCompleted)})
	require.NoError(t, err)
	return asynq.NewTask("webhook_queue", payload)
}

func TestWebhookNotifier_OneDeliveryPerEvent(t *testing.T) {
	notifier, mr := newTestNotifier(t, webhookConfig(testWebhookURL))
	ctx := context.Background()
	txn := newPurchase(model.StatusCryptoOutgoingFailed)

	require.NoError(t, notifier.NotifyTransactionFailed(ctx, txn, FailureReasonCryptoSettlement))
	require.NoError(t, notifier.NotifyTransactionFailed(ctx, txn, FailureReasonCryptoSettlement))
	require.NoError(t, notifier.NotifyTransactionCompleted(ctx, txn))

	assert.Len(t, pendingTasks(t, mr, "webhook_queue"), 2)
}

func TestWebhookNotifier_DisabledWithoutURL(t *testing.T) {
	notifier, mr := newTestNotifier(t, webhookConfig(""))

	require.NoError(t, notifier.NotifyTransactionCompleted(context.Background(), newPurchase(model.StatusCryptoOutgoingCompleted)))
	assert.Empty(t, pendingTasks(t, mr, "webhook_queue"))
}

func TestWebhookTaskID(t *testing.T) {
	assert.Equal(t, "webhook:transaction.failed:txn_1", webhookTaskID(EventTransactionFailed, "txn_1"))
}

func TestProcessWebhook_Delivers(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()
	config.MockConfig(webhookConfig(testWebhookURL))

	txn := newPurchase(model.StatusCompleted)
	httpmock.RegisterResponder(http.MethodPost, testWebhookURL, func(req *http.Request) (*http.Response, error) {
		if req.Header.Get("X-Remit-Signature") != "sig_123" {
			return httpmock.NewStringResponse(http.StatusUnauthorized, "missing signature"), nil
		}
		var body NewWebhook
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			return httpmock.NewStringResponse(http.StatusBadRequest, err.Error()), nil
		}
		if body.Payload.TransactionID != txn.TransactionID {
			return httpmock.NewStringResponse(http.StatusBadRequest, "wrong transaction"), nil
		}
		return httpmock.NewStringResponse(http.StatusOK, `{"ok":true}`), nil
	})

	require.NoError(t, ProcessWebhook(context.Background(), webhookTask(t, EventTransactionCompleted, txn)))
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
}

func TestProcessWebhook_ClientErrorIsNotRetried(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()
	config.MockConfig(webhookConfig(testWebhookURL))

	httpmock.RegisterResponder(http.MethodPost, testWebhookURL, httpmock.NewStringResponder(http.StatusUnprocessableEntity, "bad payload"))

	err := ProcessWebhook(context.Background(), webhookTask(t, EventTransactionCompleted, newPurchase(model.StatusCompleted)))
	require.Error(t, err)
	assert.True(t, errors.Is(err, asynq.SkipRetry))
}

func TestProcessWebhook_ServerErrorIsRetried(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()
	config.MockConfig(webhookConfig(testWebhookURL))

	httpmock.RegisterResponder(http.MethodPost, testWebhookURL, httpmock.NewStringResponder(http.StatusBadGateway, "upstream down"))

	err := ProcessWebhook(context.Background(), webhookTask(t, EventTransactionCompleted, newPurchase(model.StatusCompleted)))
	require.Error(t, err)
	assert.False(t, errors.Is(err, asynq.SkipRetry))
}

func TestProcessWebhook_MalformedTaskIsNotRetried(t *testing.T) {
	config.MockConfig(webhookConfig(testWebhookURL))

	err := ProcessWebhook(context.Background(), asynq.NewTask("webhook_queue", []byte("{")))
	assert.True(t, errors.Is(err, asynq.SkipRetry))
}

func TestProcessWebhook_NoopWithoutURL(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()
	config.MockConfig(webhookConfig(""))

	require.NoError(t, ProcessWebhook(context.Background(), webhookTask(t, EventTransactionCompleted, newPurchase(model.StatusCompleted))))
	assert.Zero(t, httpmock.GetTotalCallCount())
}
