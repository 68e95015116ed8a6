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

package redis_db

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

// pingTimeout bounds the connectivity check made when a client is built.
const pingTimeout = 500 * time.Millisecond

const azureCacheHost = "redis.cache.windows.net"

// Redis is the shared connection behind transaction locks, poller claims and the exchange rate
// cache. One address gives a standalone client, several give a cluster client.
type Redis struct {
	addresses []string
	client    redis.UniversalClient
}

// ParseRedisURL turns the configured DSN into client options. Bare host:port values are used as
// is, password-only redis:// URLs are normalised, and anything go-redis cannot parse falls back to
// a loose password@host split so managed caches with odd passwords still connect.
func ParseRedisURL(rawURL string, skipTLSVerify bool) (*redis.Options, error) {
	if isBareAddress(rawURL) {
		return &redis.Options{Addr: rawURL}, nil
	}

	opts, err := redis.ParseURL(withEmptyUsername(rawURL))
	if err != nil {
		opts = parseLoosely(rawURL)
	}

	if opts.TLSConfig != nil && skipTLSVerify {
		opts.TLSConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return opts, nil
}

// isBareAddress matches docker style addresses such as redis:6379.
func isBareAddress(rawURL string) bool {
	return strings.Count(rawURL, ":") == 1 && !strings.Contains(rawURL, "@") && !strings.Contains(rawURL, "//")
}

// withEmptyUsername rewrites redis://secret@host into redis://:secret@host, which go-redis reads
// as a password rather than a username.
func withEmptyUsername(rawURL string) string {
	if !strings.HasPrefix(rawURL, "redis://") || !strings.Contains(rawURL, "@") {
		return rawURL
	}
	credentials, host, ok := strings.Cut(strings.TrimPrefix(rawURL, "redis://"), "@")
	if !ok || strings.Contains(host, "@") || strings.Contains(credentials, ":") {
		return rawURL
	}
	return fmt.Sprintf("redis://:%s@%s", credentials, host)
}

func parseLoosely(rawURL string) *redis.Options {
	opts := &redis.Options{Addr: rawURL}
	if parts := strings.Split(rawURL, "@"); len(parts) == 2 {
		opts.Password = strings.TrimPrefix(parts[0], "redis://")
		opts.Addr = parts[1]
	}
	if strings.Contains(opts.Addr, azureCacheHost) {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return opts
}

// AsynqConnOpt converts the DSN into the options the stage queues, the webhook queue and the
// monitoring UI connect with.
func AsynqConnOpt(rawURL string, skipTLSVerify bool) (asynq.RedisClientOpt, error) {
	opts, err := ParseRedisURL(rawURL, skipTLSVerify)
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}
	return asynq.RedisClientOpt{
		Addr:      opts.Addr,
		Username:  opts.Username,
		Password:  opts.Password,
		DB:        opts.DB,
		TLSConfig: opts.TLSConfig,
	}, nil
}

// NewRedisClient builds the shared client and fails fast when redis does not answer a ping.
func NewRedisClient(addresses []string, skipTLSVerify bool) (*Redis, error) {
	if len(addresses) == 0 {
		return nil, errors.New("redis addresses list cannot be empty")
	}

	var (
		client redis.UniversalClient
		err    error
	)
	if len(addresses) == 1 {
		client, err = standaloneClient(addresses[0], skipTLSVerify)
	} else {
		client, err = clusterClient(addresses, skipTLSVerify)
	}
	if err != nil {
		return nil, err
	}

	r := &Redis{addresses: addresses, client: client}
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := r.Ping(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return r, nil
}

func standaloneClient(address string, skipTLSVerify bool) (redis.UniversalClient, error) {
	opts, err := ParseRedisURL(address, skipTLSVerify)
	if err != nil {
		return nil, err
	}
	return redis.NewClient(opts), nil
}

// clusterClient uses the first password found and enables TLS when any node requires it.
func clusterClient(addresses []string, skipTLSVerify bool) (redis.UniversalClient, error) {
	cluster := &redis.UniversalOptions{}
	useTLS := false
	for _, address := range addresses {
		opts, err := ParseRedisURL(address, skipTLSVerify)
		if err != nil {
			return nil, err
		}
		cluster.Addrs = append(cluster.Addrs, opts.Addr)
		if cluster.Password == "" {
			cluster.Password = opts.Password
		}
		useTLS = useTLS || opts.TLSConfig != nil
	}
	if useTLS {
		cluster.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12, InsecureSkipVerify: skipTLSVerify}
	}
	return redis.NewUniversalClient(cluster), nil
}

func (r *Redis) Client() redis.UniversalClient {
	return r.client
}

// Ping reports whether redis answers. The workers' health endpoint treats a failure as fatal.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}
