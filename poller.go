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
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/jerry-enebeli/remit/config"
	redlock "github.com/jerry-enebeli/remit/internal/lock"
	"github.com/jerry-enebeli/remit/internal/notification"
	"github.com/jerry-enebeli/remit/model"
)

const (
	defaultPollerWorkers = 10

	validPollerLockKey = "valid_transactions"
	stalePollerLockKey = "stale_transactions"
)

// TransactionPoller runs the two backstop loops over persisted transactions. The valid poller
// re-delivers transactions whose queue message went missing. The stale poller only reports
// transactions stuck past their staleness threshold.
type TransactionPoller struct {
	remit      *Remit
	validSpec  string
	staleSpec  string
	batchSize  int
	maxWorkers int
	now        func() time.Time

	scheduler *cron.Cron

	mu           sync.Mutex
	validRunning bool
	staleRunning bool
	started      bool
}

func NewTransactionPoller(r *Remit, conf config.PollerConfig) *TransactionPoller {
	return &TransactionPoller{
		remit:      r,
		validSpec:  conf.ValidTransactionCron,
		staleSpec:  conf.StaleTransactionCron,
		batchSize:  conf.BatchSize,
		maxWorkers: defaultPollerWorkers,
		now:        time.Now,
	}
}

// Start schedules both loops. It returns an error for an invalid cron spec.
func (p *TransactionPoller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return nil
	}

	scheduler := cron.New(
		cron.WithSeconds(),
		cron.WithLogger(cron.PrintfLogger(logrus.StandardLogger())),
		cron.WithChain(cron.Recover(cron.PrintfLogger(logrus.StandardLogger()))),
	)
	if _, err := scheduler.AddFunc(p.validSpec, func() { p.RunValidTransactionPoller(ctx) }); err != nil {
		return fmt.Errorf("invalid valid transaction poller schedule %q: %w", p.validSpec, err)
	}
	if _, err := scheduler.AddFunc(p.staleSpec, func() { p.RunStaleTransactionPoller(ctx) }); err != nil {
		return fmt.Errorf("invalid stale transaction poller schedule %q: %w", p.staleSpec, err)
	}

	scheduler.Start()
	p.scheduler = scheduler
	p.started = true
	logrus.WithFields(logrus.Fields{"valid": p.validSpec, "stale": p.staleSpec}).Info("transaction pollers started")
	return nil
}

// Stop unschedules both loops and waits for running passes to finish.
func (p *TransactionPoller) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	scheduler := p.scheduler
	p.mu.Unlock()

	<-scheduler.Stop().Done()
	logrus.Info("transaction pollers stopped")
}

// begin flips a loop's running flag. It returns false when a pass of the same loop is already running.
func (p *TransactionPoller) begin(running *bool) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if *running {
		return false
	}
	*running = true
	return true
}

func (p *TransactionPoller) end(running *bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	*running = false
}

// claim takes the cluster wide lock for one pass of a loop so that replicas sharing a schedule
// do not scan the same rows at the same tick. It returns a release func, or nil when another
// replica holds the pass. Without a lock service every pass runs.
func (p *TransactionPoller) claim(ctx context.Context, key string) func() {
	locks := p.remit.locks
	if locks == nil {
		return func() {}
	}

	token, err := locks.AcquireLockForKey(ctx, key, redlock.EntityPoller)
	if err != nil {
		logrus.WithError(err).WithField("poller", key).Warn("failed to claim poller pass, running unguarded")
		return func() {}
	}
	if token == "" {
		return nil
	}
	return func() {
		if err := locks.ReleaseLockForKey(ctx, key, redlock.EntityPoller, token); err != nil {
			logrus.WithError(err).WithField("poller", key).Warn("failed to release poller lock")
		}
	}
}

// pollWindow returns the processing and status update bounds of a route at now.
func pollWindow(route Route, now time.Time) (maxUpdateTime, minStatusUpdateTime time.Time) {
	return now.Add(-route.RequeueCooldown), now.Add(-route.StalenessThreshold)
}

// RunValidTransactionPoller enqueues every transaction that is past its requeue cooldown but not yet
// stale onto the queue of its status. It returns how many were enqueued.
func (p *TransactionPoller) RunValidTransactionPoller(ctx context.Context) int {
	if !p.begin(&p.validRunning) {
		logrus.Debug("valid transaction poller already running, skipping")
		return 0
	}
	defer p.end(&p.validRunning)

	release := p.claim(ctx, validPollerLockKey)
	if release == nil {
		logrus.Debug("valid transaction poller pass held by another replica, skipping")
		return 0
	}
	defer release()

	now := p.now()
	enqueued := 0
	for _, status := range RoutedStatuses() {
		route, _ := RouteFor(status)
		maxUpdateTime, minStatusUpdateTime := pollWindow(route, now)

		txns, err := p.remit.datasource.GetValidTransactionsToProcess(ctx, maxUpdateTime, minStatusUpdateTime, status, p.batchSize)
		if err != nil {
			logrus.WithError(err).WithField("status", status).Error("failed to fetch transactions to process")
			continue
		}
		if len(txns) == 0 {
			continue
		}

		enqueued += p.enqueueAll(ctx, route.Queue, txns)
	}

	if enqueued > 0 {
		logrus.WithField("count", enqueued).Info("valid transaction poller re-enqueued transactions")
	}
	return enqueued
}

func (p *TransactionPoller) enqueueAll(ctx context.Context, queue QueueName, txns []*model.Transaction) int {
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		count int
	)
	sem := make(chan struct{}, p.maxWorkers)

	for _, txn := range txns {
		sem <- struct{}{}
		wg.Add(1)
		go func(t *model.Transaction) {
			defer wg.Done()
			defer func() { <-sem }()

			if err := p.remit.queue.Enqueue(ctx, queue, t.TransactionID); err != nil {
				logrus.WithError(err).WithFields(logrus.Fields{"transaction_id": t.TransactionID, "queue": queue}).
					Error("poller failed to enqueue transaction")
				return
			}
			mu.Lock()
			count++
			mu.Unlock()
		}(txn)
	}

	wg.Wait()
	return count
}

// RunStaleTransactionPoller logs transactions stuck in a status past its staleness threshold and
// raises one alert per pass. It never enqueues. It returns how many were found.
func (p *TransactionPoller) RunStaleTransactionPoller(ctx context.Context) int {
	if !p.begin(&p.staleRunning) {
		logrus.Debug("stale transaction poller already running, skipping")
		return 0
	}
	defer p.end(&p.staleRunning)

	release := p.claim(ctx, stalePollerLockKey)
	if release == nil {
		logrus.Debug("stale transaction poller pass held by another replica, skipping")
		return 0
	}
	defer release()

	now := p.now()
	summary := map[string]string{}
	found := 0
	for _, status := range RoutedStatuses() {
		route, _ := RouteFor(status)
		maxUpdateTime, minStatusUpdateTime := pollWindow(route, now)

		txns, err := p.remit.datasource.GetStaleTransactionsToProcess(ctx, maxUpdateTime, minStatusUpdateTime, status, p.batchSize)
		if err != nil {
			logrus.WithError(err).WithField("status", status).Error("failed to fetch stale transactions")
			continue
		}

		for _, txn := range txns {
			logrus.WithFields(logrus.Fields{
				"transaction_id":      txn.TransactionID,
				"status":              txn.Status,
				"last_status_update":  txn.LastStatusUpdateTimestamp,
				"staleness_threshold": route.StalenessThreshold.String(),
			}).Warn("transaction is stuck")
		}
		if len(txns) > 0 {
			summary[string(status)] = fmt.Sprintf("%d", len(txns))
			found += len(txns)
		}
	}

	if found > 0 {
		notification.SlackAlert("Stuck transactions detected", summary)
	}
	return found
}
