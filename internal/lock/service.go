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

package redlock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// EntityType namespaces lock keys so ids from different entity kinds never collide.
type EntityType string

const (
	EntityTransaction EntityType = "TRANSACTION"
	EntityPoller      EntityType = "POLLER"
)

// LockService is the pipeline's view of the distributed lock.
//
// AcquireLockForKey never blocks. An empty token with a nil error means another holder owns the
// key. ReleaseLockForKey only deletes the key while it still carries token; any other token,
// including the empty one, is a no-op.
type LockService interface {
	AcquireLockForKey(ctx context.Context, key string, entityType EntityType) (string, error)
	ReleaseLockForKey(ctx context.Context, key string, entityType EntityType, token string) error
}

// Service implements LockService on top of Locker. Lockers acquired through it are indexed by
// token, so two acquirers of the same key in one process never release each other.
type Service struct {
	client redis.UniversalClient
	ttl    time.Duration

	mu   sync.Mutex
	held map[string]*Locker
}

func NewService(client redis.UniversalClient, ttl time.Duration) *Service {
	return &Service{
		client: client,
		ttl:    ttl,
		held:   make(map[string]*Locker),
	}
}

// LockKey builds the redis key guarding an entity.
func LockKey(key string, entityType EntityType) string {
	return fmt.Sprintf("lock:%s:%s", strings.ToLower(string(entityType)), key)
}

func (s *Service) AcquireLockForKey(ctx context.Context, key string, entityType EntityType) (string, error) {
	if key == "" {
		return "", errors.New("lock key cannot be empty")
	}
	lockKey := LockKey(key, entityType)
	locker := NewLocker(s.client, lockKey, uuid.NewString())

	err := locker.Lock(ctx, s.ttl)
	if errors.Is(err, ErrLockHeld) {
		logrus.WithField("lock_key", lockKey).Debug("lock already held")
		return "", nil
	}
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.held[locker.Token()] = locker
	s.mu.Unlock()
	return locker.Token(), nil
}

func (s *Service) ReleaseLockForKey(ctx context.Context, key string, entityType EntityType, token string) error {
	lockKey := LockKey(key, entityType)

	s.mu.Lock()
	locker, ok := s.held[token]
	if ok && locker.Key() == lockKey {
		delete(s.held, token)
	}
	s.mu.Unlock()

	if !ok || locker.Key() != lockKey {
		return nil
	}

	err := locker.Unlock(ctx)
	if errors.Is(err, ErrNotHolder) {
		// The TTL elapsed and someone else may own the key now. Their lock must survive.
		logrus.WithField("lock_key", lockKey).Warn("lock expired before release")
		return nil
	}
	return err
}

// Holding reports whether any acquirer in this process still believes it holds the key.
func (s *Service) Holding(key string, entityType EntityType) bool {
	lockKey := LockKey(key, entityType)

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, locker := range s.held {
		if locker.Key() == lockKey {
			return true
		}
	}
	return false
}
