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

	"github.com/stretchr/testify/mock"

	redlock "github.com/jerry-enebeli/remit/internal/lock"
)

// MockMessageQueue is a testify mock of MessageQueue.
type MockMessageQueue struct {
	mock.Mock
}

func (m *MockMessageQueue) Enqueue(ctx context.Context, queue QueueName, transactionID string) error {
	args := m.Called(ctx, queue, transactionID)
	return args.Error(0)
}

func (m *MockMessageQueue) SubscribeToQueue(queue QueueName, processor QueueProcessor) (Subscription, error) {
	args := m.Called(queue, processor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(Subscription), args.Error(1)
}

// MockLockService is a testify mock of the transaction lock service.
type MockLockService struct {
	mock.Mock
}

func (m *MockLockService) AcquireLockForKey(ctx context.Context, key string, entityType redlock.EntityType) (string, error) {
	args := m.Called(ctx, key, entityType)
	return args.String(0), args.Error(1)
}

func (m *MockLockService) ReleaseLockForKey(ctx context.Context, key string, entityType redlock.EntityType, token string) error {
	args := m.Called(ctx, key, entityType, token)
	return args.Error(0)
}
