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
	"time"

	"github.com/jerry-enebeli/remit/model"
)

// QueueName identifies one pipeline stage queue.
type QueueName string

const (
	QueueValidation             QueueName = "remit_validation"
	QueueFiatInitiation         QueueName = "remit_fiat_initiation"
	QueueFiatStatus             QueueName = "remit_fiat_status"
	QueueTransferInitiation     QueueName = "remit_transfer_initiation"
	QueueInternalTransferStatus QueueName = "remit_internal_transfer_status"
	QueueOnChainSettlement      QueueName = "remit_on_chain_settlement"
	QueueFailure                QueueName = "remit_failure"
)

// Queues lists every stage queue.
func Queues() []QueueName {
	return []QueueName{
		QueueValidation,
		QueueFiatInitiation,
		QueueFiatStatus,
		QueueTransferInitiation,
		QueueInternalTransferStatus,
		QueueOnChainSettlement,
		QueueFailure,
	}
}

// Route is the processing metadata of a status.
//
// StalenessThreshold is how long a transaction may sit in the status before it counts as stuck.
// RequeueCooldown is the minimum time since the last processing attempt before the poller may
// deliver it again.
type Route struct {
	Queue              QueueName
	StalenessThreshold time.Duration
	RequeueCooldown    time.Duration
}

// RouteFor returns the route of a status. Terminal statuses and INITIATED, which belongs to the
// workflow orchestrator, have none.
func RouteFor(status model.Status) (Route, bool) {
	switch status {
	case model.StatusPending:
		return Route{Queue: QueueValidation, StalenessThreshold: 10 * time.Minute, RequeueCooldown: 10 * time.Second}, true
	case model.StatusValidationPassed:
		return Route{Queue: QueueFiatInitiation, StalenessThreshold: 10 * time.Minute, RequeueCooldown: 10 * time.Second}, true
	case model.StatusFiatIncomingInitiating:
		return Route{Queue: QueueFiatInitiation, StalenessThreshold: 30 * time.Minute, RequeueCooldown: time.Minute}, true
	case model.StatusFiatIncomingInitiated:
		return Route{Queue: QueueFiatStatus, StalenessThreshold: 24 * time.Hour, RequeueCooldown: 30 * time.Second}, true
	case model.StatusFiatIncomingCompleted:
		return Route{Queue: QueueTransferInitiation, StalenessThreshold: 30 * time.Minute, RequeueCooldown: 30 * time.Second}, true
	case model.StatusInternalTransferPending:
		return Route{Queue: QueueInternalTransferStatus, StalenessThreshold: time.Hour, RequeueCooldown: 30 * time.Second}, true
	case model.StatusCryptoOutgoingCompleted:
		return Route{Queue: QueueOnChainSettlement, StalenessThreshold: 2 * time.Hour, RequeueCooldown: time.Minute}, true
	case model.StatusValidationFailed, model.StatusFiatIncomingFailed, model.StatusCryptoOutgoingFailed:
		return Route{Queue: QueueFailure, StalenessThreshold: 10 * time.Minute, RequeueCooldown: 10 * time.Second}, true
	case model.StatusInitiated, model.StatusCompleted, model.StatusFailed:
		return Route{}, false
	default:
		return Route{}, false
	}
}

// RoutedStatuses returns every status the pollers scan, in pipeline order.
func RoutedStatuses() []model.Status {
	var statuses []model.Status
	for _, status := range model.AllStatuses() {
		if _, ok := RouteFor(status); ok {
			statuses = append(statuses, status)
		}
	}
	return statuses
}
