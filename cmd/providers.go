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

package main

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/jerry-enebeli/remit"
	"github.com/jerry-enebeli/remit/model"
)

var errProviderNotConfigured = errors.New("provider not configured")

// unconfiguredProvider stands in for an external collaborator this deployment has no adapter for.
// Every call fails as transient, so affected transactions stay in place and are redelivered until
// the stale poller reports them.
type unconfiguredProvider struct {
	name string
}

func (u unconfiguredProvider) fail() error {
	return remit.NewTransientError(u.name+" provider is not configured", errProviderNotConfigured)
}

func (u unconfiguredProvider) VerifyTransaction(context.Context, *model.Transaction) error {
	return u.fail()
}

func (u unconfiguredProvider) CapturePayment(context.Context, *model.Transaction) (string, error) {
	return "", u.fail()
}

func (u unconfiguredProvider) FindPaymentByIdempotencyKey(context.Context, string) (string, bool, error) {
	return "", false, u.fail()
}

func (u unconfiguredProvider) GetPaymentStatus(context.Context, string) (remit.ProviderStatus, error) {
	return "", u.fail()
}

func (u unconfiguredProvider) InitiateTransfer(context.Context, *model.Transaction) (string, error) {
	return "", u.fail()
}

func (u unconfiguredProvider) GetTransferStatus(context.Context, string) (remit.TransferResult, error) {
	return remit.TransferResult{}, u.fail()
}

func (u unconfiguredProvider) GetSettlementStatus(context.Context, string) (remit.ProviderStatus, error) {
	return "", u.fail()
}

func (u unconfiguredProvider) GetExchangeRate(context.Context, string, string) (decimal.Decimal, error) {
	return decimal.Zero, u.fail()
}

// newProviders assembles the collaborators for the stage processors. Consumer notifications go
// through the webhook queue.
func newProviders(notifier remit.ConsumerNotifier) remit.Providers {
	logrus.Warn("no payment, custody or settlement adapters are registered; pipeline stages calling them will retry")
	return remit.Providers{
		Verifier:   unconfiguredProvider{name: "verification"},
		Fiat:       unconfiguredProvider{name: "fiat payment"},
		Transfer:   unconfiguredProvider{name: "transfer"},
		Settlement: unconfiguredProvider{name: "settlement"},
		Notifier:   notifier,
	}
}
