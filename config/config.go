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

package config

import (
	"encoding/json"
	"errors"
	"log"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/sirupsen/logrus"
)

const (
	DEFAULT_MONITORING_PORT   = "5004"
	DEFAULT_VALID_POLLER_CRON = "*/5 * * * * *"
	DEFAULT_STALE_POLLER_CRON = "0 */5 * * * *"
	DEFAULT_WEBHOOK_QUEUE     = "webhook_queue"
)

var ConfigStore atomic.Value

// ServerConfig protects the ops endpoints served by the workers.
type ServerConfig struct {
	Secure    bool   `json:"secure" envconfig:"REMIT_SERVER_SECURE"`
	SecretKey string `json:"secret_key" envconfig:"REMIT_SERVER_SECRET_KEY"`
}

type DataSourceConfig struct {
	Dns string `json:"dns" envconfig:"REMIT_DATA_SOURCE_DNS"`
}

type RedisConfig struct {
	Dns           string `json:"dns" envconfig:"REMIT_REDIS_DNS"`
	SkipTLSVerify bool   `json:"skip_tls_verify" envconfig:"REMIT_REDIS_SKIP_TLS_VERIFY"`
}

type QueueConfig struct {
	MonitoringPort string `json:"monitoring_port" envconfig:"REMIT_QUEUE_MONITORING_PORT"`
	WebhookQueue   string `json:"webhook_queue" envconfig:"REMIT_QUEUE_WEBHOOK_QUEUE"`
	MaxRetry       int    `json:"max_retry" envconfig:"REMIT_QUEUE_MAX_RETRY"`
	Concurrency    int    `json:"concurrency" envconfig:"REMIT_QUEUE_CONCURRENCY"`
	// WorkerAffinity pins messages to one worker. Only meant for local development.
	WorkerAffinity string `json:"worker_affinity" envconfig:"REMIT_QUEUE_WORKER_AFFINITY"`
}

type PollerConfig struct {
	ValidTransactionCron string `json:"valid_transaction_cron" envconfig:"REMIT_POLLER_VALID_TRANSACTION_CRON"`
	StaleTransactionCron string `json:"stale_transaction_cron" envconfig:"REMIT_POLLER_STALE_TRANSACTION_CRON"`
	BatchSize            int    `json:"batch_size" envconfig:"REMIT_POLLER_BATCH_SIZE"`
}

type LockConfig struct {
	TTLSeconds int `json:"ttl_seconds" envconfig:"REMIT_LOCK_TTL_SECONDS"`
}

type WorkflowConfig struct {
	ServerURL            string `json:"server_url" envconfig:"REMIT_WORKFLOW_SERVER_URL"`
	Namespace            string `json:"namespace" envconfig:"REMIT_WORKFLOW_NAMESPACE"`
	TaskQueue            string `json:"task_queue" envconfig:"REMIT_WORKFLOW_TASK_QUEUE"`
	EnableTLS            bool   `json:"enable_tls" envconfig:"REMIT_WORKFLOW_ENABLE_TLS"`
	ConnectTimeoutMs     int    `json:"connect_timeout_ms" envconfig:"REMIT_WORKFLOW_CONNECT_TIMEOUT_MS"`
	MaxConnectAttempts   int    `json:"max_connect_attempts" envconfig:"REMIT_WORKFLOW_MAX_CONNECT_ATTEMPTS"`
	ConnectRetryDelayMs  int    `json:"connect_retry_delay_ms" envconfig:"REMIT_WORKFLOW_CONNECT_RETRY_DELAY_MS"`
	ExchangeRateCacheSec int    `json:"exchange_rate_cache_sec" envconfig:"REMIT_WORKFLOW_EXCHANGE_RATE_CACHE_SEC"`
}

// FeeConfig holds the fee schedule applied to quoted workflows. Amounts are expressed in the
// debit currency.
type FeeConfig struct {
	ProcessingFeeFixed string `json:"processing_fee_fixed" envconfig:"REMIT_FEES_PROCESSING_FEE_FIXED"`
	PercentageFee      string `json:"percentage_fee" envconfig:"REMIT_FEES_PERCENTAGE_FEE"`
	MinimumAmount      string `json:"minimum_amount" envconfig:"REMIT_FEES_MINIMUM_AMOUNT"`
}

type RateLimitConfig struct {
	RequestsPerSecond  *float64 `json:"requests_per_second" envconfig:"REMIT_RATE_LIMIT_RPS"`
	Burst              *int     `json:"burst" envconfig:"REMIT_RATE_LIMIT_BURST"`
	CleanupIntervalSec *int     `json:"cleanup_interval_sec" envconfig:"REMIT_RATE_LIMIT_CLEANUP_INTERVAL_SEC"`
}

type SlackWebhook struct {
	WebhookUrl string `json:"webhook_url" envconfig:"REMIT_NOTIFICATION_SLACK_WEBHOOK_URL"`
}

type Notification struct {
	Slack   SlackWebhook `json:"slack"`
	Webhook struct {
		Url     string            `json:"url" envconfig:"REMIT_NOTIFICATION_WEBHOOK_URL"`
		Headers map[string]string `json:"headers"`
	} `json:"webhook"`
}

type TelemetryConfig struct {
	Enabled    bool   `json:"enabled" envconfig:"REMIT_TELEMETRY_ENABLED"`
	PostHogKey string `json:"posthog_key" envconfig:"REMIT_TELEMETRY_POSTHOG_KEY"`
}

type Configuration struct {
	ProjectName  string           `json:"project_name" envconfig:"REMIT_PROJECT_NAME"`
	Server       ServerConfig     `json:"server"`
	DataSource   DataSourceConfig `json:"data_source"`
	Redis        RedisConfig      `json:"redis"`
	Queue        QueueConfig      `json:"queue"`
	Poller       PollerConfig     `json:"poller"`
	Lock         LockConfig       `json:"lock"`
	Workflow     WorkflowConfig   `json:"workflow"`
	Fees         FeeConfig        `json:"fees"`
	Notification Notification     `json:"notification"`
	Telemetry    TelemetryConfig  `json:"telemetry"`
	RateLimit    RateLimitConfig  `json:"rate_limit"`
}

func loadConfigFromFile(file string) error {
	var cnf Configuration
	_, err := os.Stat(file)
	if err == nil {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		defer f.Close()
		err = json.NewDecoder(f).Decode(&cnf)
		if err != nil {
			return err
		}

	} else if errors.Is(err, os.ErrNotExist) {
		log.Println("config json not passed, will use env variables")
	}

	// override config from environment variables
	err = envconfig.Process("remit", &cnf)
	if err != nil {
		return err
	}

	err = cnf.validateAndAddDefaults()
	if err != nil {
		return err
	}

	ConfigStore.Store(&cnf)
	return err
}

func InitConfig(configFile string) error {
	logger()
	return loadConfigFromFile(configFile)
}

func Fetch() (*Configuration, error) {
	config := ConfigStore.Load()
	c, ok := config.(*Configuration)
	if !ok {
		return nil, errors.New("config not loaded from file. Create a json file called remit.json with your config ❌")
	}
	return c, nil
}

func (cnf *Configuration) validateAndAddDefaults() error {
	if cnf.ProjectName == "" {
		log.Println("Warning: Project name is empty. Setting a default name.")
		cnf.ProjectName = "Remit"
	}

	if cnf.DataSource.Dns == "" {
		log.Println("Error: Data source DNS is empty. It's a required field.")
		return errors.New("data source DNS is required")
	}

	if cnf.Redis.Dns == "" {
		log.Println("Error: Redis DNS is empty. It's a required field.")
		return errors.New("redis DNS is required")
	}

	// Trim white spaces from fields
	cnf.ProjectName = strings.TrimSpace(cnf.ProjectName)
	cnf.DataSource.Dns = strings.TrimSpace(cnf.DataSource.Dns)
	cnf.Redis.Dns = strings.TrimSpace(cnf.Redis.Dns)
	cnf.Workflow.ServerURL = strings.TrimSpace(cnf.Workflow.ServerURL)

	cnf.Queue.setDefaults()
	cnf.Poller.setDefaults()
	cnf.Lock.setDefaults()
	cnf.Workflow.setDefaults()
	cnf.Fees.setDefaults()
	cnf.RateLimit.setDefaults()

	return nil
}

func (q *QueueConfig) setDefaults() {
	if q.MonitoringPort == "" {
		q.MonitoringPort = DEFAULT_MONITORING_PORT
		log.Printf("Warning: Monitoring port not specified in config. Setting default port: %s", DEFAULT_MONITORING_PORT)
	}
	if q.WebhookQueue == "" {
		q.WebhookQueue = DEFAULT_WEBHOOK_QUEUE
	}
	if q.MaxRetry <= 0 {
		q.MaxRetry = 25
	}
	if q.Concurrency <= 0 {
		q.Concurrency = 5
	}
}

func (p *PollerConfig) setDefaults() {
	if p.ValidTransactionCron == "" {
		p.ValidTransactionCron = DEFAULT_VALID_POLLER_CRON
	}
	if p.StaleTransactionCron == "" {
		p.StaleTransactionCron = DEFAULT_STALE_POLLER_CRON
	}
	if p.BatchSize <= 0 {
		p.BatchSize = 500
	}
}

func (l *LockConfig) setDefaults() {
	if l.TTLSeconds <= 0 {
		l.TTLSeconds = 120
		log.Printf("Warning: Lock TTL not specified. Setting default value: %d seconds", l.TTLSeconds)
	}
}

func (w *WorkflowConfig) setDefaults() {
	if w.ServerURL == "" {
		w.ServerURL = "localhost:7233"
	}
	if w.Namespace == "" {
		w.Namespace = "default"
	}
	if w.TaskQueue == "" {
		w.TaskQueue = "remit-workflows"
	}
	if w.ConnectTimeoutMs <= 0 {
		w.ConnectTimeoutMs = 5000
	}
	if w.MaxConnectAttempts <= 0 {
		w.MaxConnectAttempts = 5
	}
	if w.ConnectRetryDelayMs <= 0 {
		w.ConnectRetryDelayMs = 2000
	}
	if w.ExchangeRateCacheSec <= 0 {
		w.ExchangeRateCacheSec = 60
	}
}

func (f *FeeConfig) setDefaults() {
	if f.ProcessingFeeFixed == "" {
		f.ProcessingFeeFixed = "0"
	}
	if f.PercentageFee == "" {
		f.PercentageFee = "0"
	}
	if f.MinimumAmount == "" {
		f.MinimumAmount = "0"
	}
}

func (r *RateLimitConfig) setDefaults() {
	if r.RequestsPerSecond != nil && r.Burst == nil {
		defaultBurst := 2 * int(*r.RequestsPerSecond)
		r.Burst = &defaultBurst
		log.Printf("Warning: Rate limit burst not specified. Setting default value: %d", defaultBurst)
	}
	if r.RequestsPerSecond == nil && r.Burst != nil {
		defaultRPS := float64(*r.Burst) / 2
		r.RequestsPerSecond = &defaultRPS
		log.Printf("Warning: Rate limit RPS not specified. Setting default value: %.2f", defaultRPS)
	}
	if r.CleanupIntervalSec == nil {
		defaultCleanup := 10800
		r.CleanupIntervalSec = &defaultCleanup
	}
}

// LockTTL returns the configured lock lifetime.
func (l LockConfig) LockTTL() time.Duration {
	return time.Duration(l.TTLSeconds) * time.Second
}

// ConnectTimeout returns the orchestrator dial timeout.
func (w WorkflowConfig) ConnectTimeout() time.Duration {
	return time.Duration(w.ConnectTimeoutMs) * time.Millisecond
}

// ConnectRetryDelay returns the fixed delay between orchestrator dial attempts.
func (w WorkflowConfig) ConnectRetryDelay() time.Duration {
	return time.Duration(w.ConnectRetryDelayMs) * time.Millisecond
}

// MockConfig sets a mock configuration for testing purposes.
func MockConfig(mockConfig *Configuration) {
	ConfigStore.Store(mockConfig)
}

func logger() {
	logger := logrus.New()
	log.SetOutput(logger.Writer())
}
