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

package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/jerry-enebeli/remit/config"
	"github.com/jerry-enebeli/remit/internal/apierror"
	"github.com/jerry-enebeli/remit/internal/cache"
	"github.com/jerry-enebeli/remit/model"
)

// ExchangeRateProvider returns how many units of to one unit of from buys.
type ExchangeRateProvider interface {
	GetExchangeRate(ctx context.Context, from, to string) (decimal.Decimal, error)
}

// Quoter converts amounts and applies the configured fee schedule.
type Quoter struct {
	rates    ExchangeRateProvider
	cache    cache.Cache
	cacheTTL time.Duration

	processingFee decimal.Decimal
	percentageFee decimal.Decimal
	minimumAmount decimal.Decimal
}

// NewQuoter builds a Quoter from the fee and cache configuration. rateCache may be nil, in which
// case every quote asks the rate provider.
func NewQuoter(rates ExchangeRateProvider, rateCache cache.Cache, conf *config.Configuration) (*Quoter, error) {
	processingFee, err := decimal.NewFromString(conf.Fees.ProcessingFeeFixed)
	if err != nil {
		return nil, errors.Wrap(err, "invalid processing fee")
	}
	percentageFee, err := decimal.NewFromString(conf.Fees.PercentageFee)
	if err != nil {
		return nil, errors.Wrap(err, "invalid percentage fee")
	}
	minimumAmount, err := decimal.NewFromString(conf.Fees.MinimumAmount)
	if err != nil {
		return nil, errors.Wrap(err, "invalid minimum amount")
	}

	return &Quoter{
		rates:         rates,
		cache:         rateCache,
		cacheTTL:      time.Duration(conf.Workflow.ExchangeRateCacheSec) * time.Second,
		processingFee: processingFee,
		percentageFee: percentageFee,
		minimumAmount: minimumAmount,
	}, nil
}

func rateCacheKey(from, to string) string {
	return fmt.Sprintf("exchange_rate:%s:%s", from, to)
}

// ExchangeRate returns the rate between two currencies, served from the cache when possible.
func (q *Quoter) ExchangeRate(ctx context.Context, from, to string) (decimal.Decimal, error) {
	from, to = strings.ToUpper(from), strings.ToUpper(to)
	if from == to {
		return decimal.NewFromInt(1), nil
	}

	if q.cache == nil {
		return q.fetchRate(ctx, from, to)
	}

	var cached string
	err := q.cache.Once(ctx, rateCacheKey(from, to), &cached, q.cacheTTL, func() (interface{}, error) {
		rate, err := q.fetchRate(ctx, from, to)
		if err != nil {
			return nil, err
		}
		return rate.String(), nil
	})
	if err != nil {
		return decimal.Decimal{}, err
	}
	return decimal.NewFromString(cached)
}

func (q *Quoter) fetchRate(ctx context.Context, from, to string) (decimal.Decimal, error) {
	rate, err := q.rates.GetExchangeRate(ctx, from, to)
	if err != nil {
		return decimal.Decimal{}, apierror.NewAPIError(apierror.ErrUnableToProcess, "Unable to fetch exchange rate", err)
	}
	if !rate.IsPositive() {
		return decimal.Decimal{}, apierror.NewAPIError(apierror.ErrUnableToProcess, fmt.Sprintf("Invalid exchange rate %s for %s/%s", rate, from, to), nil)
	}
	return rate, nil
}

// Quote prices req.Amount of req.Currency in req.DesiredCurrency. Fees are charged in the source
// currency and taken off the amount before conversion.
func (q *Quoter) Quote(ctx context.Context, req model.QuoteRequest) (*model.Quote, error) {
	if !req.Amount.IsPositive() {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "Amount must be greater than zero", nil)
	}
	if req.Amount.LessThan(q.minimumAmount) {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, fmt.Sprintf("Amount is below the minimum of %s", q.minimumAmount), nil)
	}

	rate, err := q.ExchangeRate(ctx, req.Currency, req.DesiredCurrency)
	if err != nil {
		return nil, err
	}

	percentageFee := req.Amount.Mul(q.percentageFee).Div(decimal.NewFromInt(100))
	totalFee := q.processingFee.Add(percentageFee)
	net := req.Amount.Sub(totalFee)
	if !net.IsPositive() {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "Amount is too low to cover fees", nil)
	}

	return &model.Quote{
		QuoteAmount:         req.Amount.Mul(rate).Round(2),
		QuoteAmountWithFees: net.Mul(rate).Round(2),
		ExchangeRate:        rate,
		ProcessingFee:       q.processingFee.Round(2),
		PercentageFee:       percentageFee.Round(2),
		TotalFee:            totalFee.Round(2),
	}, nil
}
