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

package notification

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/jerry-enebeli/remit/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const slackURL = "https://hooks.slack.test/services/remit"

func TestBuildSlackMessage(t *testing.T) {
	msg := buildSlackMessage("Stale transactions", map[string]string{
		"Status": "FIAT_INCOMING_INITIATED",
		"Count":  "3",
	})

	require.Len(t, msg.Blocks, 3)
	assert.Equal(t, "header", msg.Blocks[0].Type)
	assert.Equal(t, "Stale transactions", msg.Blocks[0].Text.Text)
	assert.Equal(t, "*Count:*\n3", msg.Blocks[1].Fields[0].Text)
	assert.Equal(t, "*Status:*\nFIAT_INCOMING_INITIATED", msg.Blocks[2].Fields[0].Text)
}

func TestSlackAlert_PostsToWebhook(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	config.MockConfig(&config.Configuration{
		Notification: config.Notification{Slack: config.SlackWebhook{WebhookUrl: slackURL}},
	})

	var received slackMessage
	httpmock.RegisterResponder(http.MethodPost, slackURL, func(req *http.Request) (*http.Response, error) {
		assert.NoError(t, json.NewDecoder(req.Body).Decode(&received))
		return httpmock.NewStringResponse(http.StatusOK, ""), nil
	})

	SlackAlert("Stale transactions", map[string]string{"Count": "1"})

	assert.Equal(t, 1, httpmock.GetTotalCallCount())
	require.Len(t, received.Blocks, 2)
	assert.Equal(t, "Stale transactions", received.Blocks[0].Text.Text)
}

func TestSlackAlert_SkipsWithoutWebhook(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	config.MockConfig(&config.Configuration{})

	SlackAlert("ignored", nil)
	assert.Equal(t, 0, httpmock.GetTotalCallCount())
}

func TestNotifyError_SendsSlackNotification(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	config.MockConfig(&config.Configuration{
		Notification: config.Notification{Slack: config.SlackWebhook{WebhookUrl: slackURL}},
	})
	httpmock.RegisterResponder(http.MethodPost, slackURL, httpmock.NewStringResponder(http.StatusOK, ""))

	notifyError(errors.New("workflow server unreachable"))

	assert.Equal(t, 1, httpmock.GetTotalCallCount())
}

func TestSlackAlert_FailedDeliveryIsSwallowed(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	config.MockConfig(&config.Configuration{
		Notification: config.Notification{Slack: config.SlackWebhook{WebhookUrl: slackURL}},
	})
	httpmock.RegisterResponder(http.MethodPost, slackURL, httpmock.NewStringResponder(http.StatusInternalServerError, "boom"))

	assert.NotPanics(t, func() {
		SlackAlert("Error", map[string]string{"Error": "x"})
	})
}
