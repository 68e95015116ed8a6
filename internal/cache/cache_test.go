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
package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *RedisCache {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	return NewCache(redis.NewClient(&redis.Options{Addr: mr.Addr()}), time.Minute)
}

func TestSetAndGet(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)

	setValue := map[string]string{"hello": "world"}
	require.NoError(t, c.Set(ctx, "testKey", setValue, 10*time.Minute))

	var getValue map[string]string
	require.NoError(t, c.Get(ctx, "testKey", &getValue))
	assert.Equal(t, setValue, getValue)
}

func TestGet_Miss(t *testing.T) {
	c := newTestCache(t)

	var value string
	err := c.Get(context.Background(), "missing", &value)
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)

	require.NoError(t, c.Set(ctx, "testKey", "testValue", time.Minute))
	require.NoError(t, c.Delete(ctx, "testKey"))

	var value string
	assert.ErrorIs(t, c.Get(ctx, "testKey", &value), ErrCacheMiss)
}

func TestOnce_LoadsOnlyOnMiss(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)

	calls := 0
	load := func() (interface{}, error) {
		calls++
		return "4100.5", nil
	}

	var first, second string
	require.NoError(t, c.Once(ctx, "rate:USD:COP", &first, time.Minute, load))
	require.NoError(t, c.Once(ctx, "rate:USD:COP", &second, time.Minute, load))

	assert.Equal(t, "4100.5", first)
	assert.Equal(t, "4100.5", second)
	assert.Equal(t, 1, calls)
}

func TestOnce_LoaderErrorIsNotCached(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)

	var value string
	err := c.Once(ctx, "rate:USD:COP", &value, time.Minute, func() (interface{}, error) {
		return nil, errors.New("rate provider down")
	})
	assert.Error(t, err)

	err = c.Once(ctx, "rate:USD:COP", &value, time.Minute, func() (interface{}, error) {
		return "4000", nil
	})
	assert.NoError(t, err)
	assert.Equal(t, "4000", value)
}
