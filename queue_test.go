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
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jerry-enebeli/remit/config"
)

type stubProcessor struct {
	received []string
	err      error
}

func (s *stubProcessor) ProcessMessage(_ context.Context, transactionID string) error {
	s.received = append(s.received, transactionID)
	return s.err
}

func (s *stubProcessor) SubscriptionErrorHandler(error) {}

func (s *stubProcessor) ProcessingErrorHandler(error) {}

func newTestQueue(t *testing.T) (*Queue, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	q, err := NewQueue(&config.Configuration{
		Redis: config.RedisConfig{Dns: mr.Addr()},
		Queue: config.QueueConfig{MaxRetry: 3, Concurrency: 1},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = q.Close() })
	return q, mr
}

func pendingTasks(t *testing.T, mr *miniredis.Miniredis, queue string) []string {
	t.Helper()
	if !mr.Exists("asynq:{" + queue + "}:pending") {
		return nil
	}
	tasks, err := mr.List("asynq:{" + queue + "}:pending")
	require.NoError(t, err)
	return tasks
}

func TestTaskID(t *testing.T) {
	assert.Equal(t, "remit_fiat_status:txn_1", taskID(QueueFiatStatus, "txn_1"))
}

func TestQueue_EnqueueDedupesPerQueueAndTransaction(t *testing.T) {
	q, mr := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, QueueValidation, "txn_1"))
	require.NoError(t, q.Enqueue(ctx, QueueValidation, "txn_1"))
	require.NoError(t, q.Enqueue(ctx, QueueValidation, "txn_2"))
	require.NoError(t, q.Enqueue(ctx, QueueFailure, "txn_1"))

	assert.Len(t, pendingTasks(t, mr, string(QueueValidation)), 2)
	assert.Len(t, pendingTasks(t, mr, string(QueueFailure)), 1)
}

func TestQueue_HandlerDeliversTransactionID(t *testing.T) {
	q, _ := newTestQueue(t)
	processor := &stubProcessor{}

	payload, err := json.Marshal(QueueMessage{ID: "msg_1", Body: "txn_1"})
	require.NoError(t, err)

	require.NoError(t, q.handler(processor)(context.Background(), asynq.NewTask(string(QueueValidation), payload)))
	assert.Equal(t, []string{"txn_1"}, processor.received)
}

func TestQueue_HandlerPropagatesProcessingError(t *testing.T) {
	q, _ := newTestQueue(t)
	processor := &stubProcessor{err: errors.New("provider timeout")}

	payload, err := json.Marshal(QueueMessage{ID: "msg_1", Body: "txn_1"})
	require.NoError(t, err)

	err = q.handler(processor)(context.Background(), asynq.NewTask(string(QueueValidation), payload))
	assert.Error(t, err)
	assert.False(t, errors.Is(err, asynq.SkipRetry))
}

func TestQueue_HandlerSkipsRetryForMalformedMessage(t *testing.T) {
	q, _ := newTestQueue(t)
	processor := &stubProcessor{}

	for _, payload := range [][]byte{[]byte("not json"), []byte(`{"id":"msg_1"}`)} {
		err := q.handler(processor)(context.Background(), asynq.NewTask(string(QueueValidation), payload))
		assert.True(t, errors.Is(err, asynq.SkipRetry))
	}
	assert.Empty(t, processor.received)
}

func TestQueue_HandlerHonoursWorkerAffinity(t *testing.T) {
	q, _ := newTestQueue(t)
	q.workerAffinity = "laptop-a"
	processor := &stubProcessor{}

	foreign, err := json.Marshal(QueueMessage{ID: "msg_1", Body: "txn_1", Attributes: map[string]string{workerAffinityAttribute: "laptop-b"}})
	require.NoError(t, err)
	assert.Error(t, q.handler(processor)(context.Background(), asynq.NewTask(string(QueueValidation), foreign)))
	assert.Empty(t, processor.received)

	own, err := json.Marshal(QueueMessage{ID: "msg_2", Body: "txn_2", Attributes: map[string]string{workerAffinityAttribute: "laptop-a"}})
	require.NoError(t, err)
	assert.NoError(t, q.handler(processor)(context.Background(), asynq.NewTask(string(QueueValidation), own)))
	assert.Equal(t, []string{"txn_2"}, processor.received)
}
