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

package model

import "fmt"

// Status is the position of a transaction in the processing pipeline.
type Status string

const (
	StatusPending                 Status = "PENDING"
	StatusValidationPassed        Status = "VALIDATION_PASSED"
	StatusValidationFailed        Status = "VALIDATION_FAILED"
	StatusFiatIncomingInitiating  Status = "FIAT_INCOMING_INITIATING"
	StatusFiatIncomingInitiated   Status = "FIAT_INCOMING_INITIATED"
	StatusFiatIncomingCompleted   Status = "FIAT_INCOMING_COMPLETED"
	StatusFiatIncomingFailed      Status = "FIAT_INCOMING_FAILED"
	StatusInternalTransferPending Status = "INTERNAL_TRANSFER_PENDING"
	StatusCryptoOutgoingCompleted Status = "CRYPTO_OUTGOING_COMPLETED"
	StatusCryptoOutgoingFailed    Status = "CRYPTO_OUTGOING_FAILED"
	// StatusInitiated marks a transaction handed to the workflow orchestrator. The orchestrator
	// owns it from then on and moves it to a terminal status itself.
	StatusInitiated Status = "INITIATED"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// AllStatuses lists every status in pipeline order.
func AllStatuses() []Status {
	return []Status{
		StatusPending,
		StatusValidationPassed,
		StatusValidationFailed,
		StatusFiatIncomingInitiating,
		StatusFiatIncomingInitiated,
		StatusFiatIncomingCompleted,
		StatusFiatIncomingFailed,
		StatusInternalTransferPending,
		StatusCryptoOutgoingCompleted,
		StatusCryptoOutgoingFailed,
		StatusInitiated,
		StatusCompleted,
		StatusFailed,
	}
}

// ParseStatus converts a stored value back into a Status.
func ParseStatus(value string) (Status, error) {
	for _, s := range AllStatuses() {
		if string(s) == value {
			return s, nil
		}
	}
	return "", fmt.Errorf("unknown transaction status %q", value)
}

// IsTerminal reports whether no processor may act on the status anymore.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// IsFailure reports whether the status is one of the *_FAILED statuses that converge on FAILED.
func (s Status) IsFailure() bool {
	switch s {
	case StatusValidationFailed, StatusFiatIncomingFailed, StatusCryptoOutgoingFailed:
		return true
	default:
		return false
	}
}

// Next returns the statuses reachable from s in one step.
func (s Status) Next() []Status {
	switch s {
	case StatusPending:
		return []Status{StatusValidationPassed, StatusValidationFailed}
	case StatusValidationPassed:
		return []Status{StatusFiatIncomingInitiating}
	case StatusFiatIncomingInitiating:
		return []Status{StatusFiatIncomingInitiated, StatusFiatIncomingFailed}
	case StatusFiatIncomingInitiated:
		return []Status{StatusFiatIncomingCompleted, StatusFiatIncomingFailed}
	case StatusFiatIncomingCompleted:
		return []Status{StatusInternalTransferPending, StatusCryptoOutgoingFailed}
	case StatusInternalTransferPending:
		return []Status{StatusCryptoOutgoingCompleted, StatusCryptoOutgoingFailed}
	case StatusCryptoOutgoingCompleted:
		return []Status{StatusCompleted, StatusCryptoOutgoingFailed}
	case StatusValidationFailed, StatusFiatIncomingFailed, StatusCryptoOutgoingFailed:
		return []Status{StatusFailed}
	case StatusInitiated:
		return []Status{StatusCompleted, StatusFailed}
	case StatusCompleted, StatusFailed:
		return nil
	default:
		return nil
	}
}

// CanTransitionTo reports whether next is a legal edge out of s.
func (s Status) CanTransitionTo(next Status) bool {
	for _, candidate := range s.Next() {
		if candidate == next {
			return true
		}
	}
	return false
}

// InvalidTransitionError is returned when a caller attempts an edge the state machine does not define.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transaction status transition %s -> %s", e.From, e.To)
}
