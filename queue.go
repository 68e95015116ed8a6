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
	"sync"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/jerry-enebeli/remit/config"
	redis_db "github.com/jerry-enebeli/remit/internal/redis-db"
)

var tracer = otel.Tracer("remit.pipeline")

const workerAffinityAttribute = "worker_affinity"

// QueueMessage is the body carried by every stage queue task.
type QueueMessage struct {
	ID         string            `json:"id"`
	Body       string            `json:"body"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// QueueProcessor consumes one stage queue. ProcessMessage must be idempotent: delivery is
// at-least-once and unordered.
type QueueProcessor interface {
	ProcessMessage(ctx context.Context, transactionID string) error
	SubscriptionErrorHandler(err error)
	ProcessingErrorHandler(err error)
}

// Subscription is a running consumer.
type Subscription interface {
	Unsubscribe()
}

// MessageQueue publishes transaction ids onto stage queues and attaches consumers to them.
type MessageQueue interface {
	Enqueue(ctx context.Context, queue QueueName, transactionID string) error
	SubscribeToQueue(queue QueueName, processor QueueProcessor) (Subscription, error)
}

// Queue is the asynq backed MessageQueue.
type Queue struct {
	Client    *asynq.Client
	Inspector *asynq.Inspector

	connOpt        asynq.RedisClientOpt
	maxRetry       int
	concurrency    int
	workerAffinity string
}

// NewQueue initializes a new Queue instance with the provided configuration.
func NewQueue(conf *config.Configuration) (*Queue, error) {
	connOpt, err := redis_db.AsynqConnOpt(conf.Redis.Dns, conf.Redis.SkipTLSVerify)
	if err != nil {
		return nil, fmt.Errorf("error parsing Redis URL: %w", err)
	}

	return &Queue{
		Client:         asynq.NewClient(connOpt),
		Inspector:      asynq.NewInspector(connOpt),
		connOpt:        connOpt,
		maxRetry:       conf.Queue.MaxRetry,
		concurrency:    conf.Queue.Concurrency,
		workerAffinity: conf.Queue.WorkerAffinity,
	}, nil
}

// taskID keeps at most one outstanding task per transaction and queue.
func taskID(queue QueueName, transactionID string) string {
	return fmt.Sprintf("%s:%s", queue, transactionID)
}

// Enqueue publishes a transaction id. A task already waiting for the same transaction on the same
// queue absorbs the call.
func (q *Queue) Enqueue(ctx context.Context, queue QueueName, transactionID string) error {
	ctx, span := tracer.Start(ctx, "Adding Transaction To Stage Queue")
	defer span.End()
	span.SetAttributes(attribute.String("queue", string(queue)), attribute.String("transaction.id", transactionID))

	msg := QueueMessage{ID: uuid.NewString(), Body: transactionID}
	if q.workerAffinity != "" {
		msg.Attributes = map[string]string{workerAffinityAttribute: q.workerAffinity}
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	id := taskID(queue, transactionID)
	task := asynq.NewTask(string(queue), payload, asynq.TaskID(id), asynq.Queue(string(queue)), asynq.MaxRetry(q.maxRetry))

	_, err = q.Client.EnqueueContext(ctx, task)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return q.resolveConflict(ctx, queue, id, task)
	}
	if err != nil {
		span.RecordError(err)
		logrus.WithError(err).WithFields(logrus.Fields{"queue": queue, "transaction_id": transactionID}).Error("failed to enqueue transaction")
		return err
	}

	logrus.WithFields(logrus.Fields{"queue": queue, "transaction_id": transactionID}).Debug("transaction enqueued")
	return nil
}

// resolveConflict treats a live duplicate as success. An archived task would hold the id forever,
// so it is dropped and the enqueue retried once.
func (q *Queue) resolveConflict(ctx context.Context, queue QueueName, id string, task *asynq.Task) error {
	info, err := q.Inspector.GetTaskInfo(string(queue), id)
	if err != nil || info.State != asynq.TaskStateArchived {
		return nil
	}

	if err := q.Inspector.DeleteTask(string(queue), id); err != nil {
		return err
	}
	_, err = q.Client.EnqueueContext(ctx, task)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	return err
}

// SubscribeToQueue starts a dedicated asynq server consuming queue.
func (q *Queue) SubscribeToQueue(queue QueueName, processor QueueProcessor) (Subscription, error) {
	srv := asynq.NewServer(q.connOpt, asynq.Config{
		Concurrency: q.concurrency,
		Queues:      map[string]int{string(queue): 1},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			processor.ProcessingErrorHandler(fmt.Errorf("queue %s: %w", queue, err))
		}),
		HealthCheckFunc: func(err error) {
			if err != nil {
				processor.SubscriptionErrorHandler(fmt.Errorf("queue %s: %w", queue, err))
			}
		},
		Logger: logrus.StandardLogger(),
	})

	mux := asynq.NewServeMux()
	mux.HandleFunc(string(queue), q.handler(processor))

	if err := srv.Start(mux); err != nil {
		processor.SubscriptionErrorHandler(fmt.Errorf("queue %s: %w", queue, err))
		return nil, err
	}

	logrus.WithField("queue", queue).Info("subscribed to queue")
	return &queueSubscription{server: srv}, nil
}

func (q *Queue) handler(processor QueueProcessor) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		msg, err := decodeQueueMessage(task.Payload())
		if err != nil {
			// a malformed body will never succeed
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}

		if affinity := msg.Attributes[workerAffinityAttribute]; affinity != "" && affinity != q.workerAffinity {
			return fmt.Errorf("message %s pinned to worker %s", msg.ID, affinity)
		}

		return processor.ProcessMessage(ctx, msg.Body)
	}
}

func decodeQueueMessage(payload []byte) (QueueMessage, error) {
	var msg QueueMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return msg, err
	}
	if msg.Body == "" {
		return msg, errors.New("queue message has no transaction id")
	}
	return msg, nil
}

// Close releases the producer side connections.
func (q *Queue) Close() error {
	if err := q.Inspector.Close(); err != nil {
		return err
	}
	return q.Client.Close()
}

type queueSubscription struct {
	server *asynq.Server
	once   sync.Once
}

func (s *queueSubscription) Unsubscribe() {
	s.once.Do(s.server.Shutdown)
}
