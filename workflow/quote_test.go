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
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jerry-enebeli/remit/config"
	"github.com/jerry-enebeli/remit/internal/apierror"
	"github.com/jerry-enebeli/remit/internal/cache"
	"github.com/jerry-enebeli/remit/model"
)

type fakeRates struct {
	rate  decimal.Decimal
	err   error
	calls int32
}

func (f *fakeRates) GetExchangeRate(context.Context, string, string) (decimal.Decimal, error) {
	atomic.AddInt32(&f.calls, 1)
	return f.rate, f.err
}

func feeConfig(fixed, pct, minimum string) *config.Configuration {
	return &config.Configuration{
		Fees:     config.FeeConfig{ProcessingFeeFixed: fixed, PercentageFee: pct, MinimumAmount: minimum},
		Workflow: config.WorkflowConfig{ExchangeRateCacheSec: 60},
	}
}

func TestQuoter_Quote(t *testing.T) {
	rates := &fakeRates{rate: decimal.NewFromInt(4000)}
	quoter, err := NewQuoter(rates, nil, feeConfig("1", "2", "5"))
	require.NoError(t, err)

	quote, err := quoter.Quote(context.Background(), model.QuoteRequest{
		Amount:          decimal.NewFromInt(100),
		Currency:        "USD",
		DesiredCurrency: "COP",
	})
	require.NoError(t, err)

	assert.True(t, decimal.NewFromInt(400000).Equal(quote.QuoteAmount))
	assert.True(t, decimal.NewFromInt(388000).Equal(quote.QuoteAmountWithFees))
	assert.True(t, decimal.NewFromInt(4000).Equal(quote.ExchangeRate))
	assert.True(t, decimal.NewFromInt(1).Equal(quote.ProcessingFee))
	assert.True(t, decimal.NewFromInt(2).Equal(quote.PercentageFee))
	assert.True(t, decimal.NewFromInt(3).Equal(quote.TotalFee))
}

func TestQuoter_RoundsToCents(t *testing.T) {
	rates := &fakeRates{rate: decimal.RequireFromString("0.000245")}
	quoter, err := NewQuoter(rates, nil, feeConfig("0", "0", "0"))
	require.NoError(t, err)

	quote, err := quoter.Quote(context.Background(), model.QuoteRequest{
		Amount:          decimal.NewFromInt(12345),
		Currency:        "COP",
		DesiredCurrency: "USD",
	})
	require.NoError(t, err)
	assert.Equal(t, "3.02", quote.QuoteAmount.StringFixed(2))
}

func TestQuoter_RejectsAmountBelowMinimum(t *testing.T) {
	quoter, err := NewQuoter(&fakeRates{rate: decimal.NewFromInt(1)}, nil, feeConfig("0", "0", "10"))
	require.NoError(t, err)

	_, err = quoter.Quote(context.Background(), model.QuoteRequest{Amount: decimal.NewFromInt(9), Currency: "USD", DesiredCurrency: "COP"})
	assert.True(t, apierror.HasCode(err, apierror.ErrInvalidInput))
}

func TestQuoter_RejectsAmountEatenByFees(t *testing.T) {
	quoter, err := NewQuoter(&fakeRates{rate: decimal.NewFromInt(1)}, nil, feeConfig("5", "0", "0"))
	require.NoError(t, err)

	_, err = quoter.Quote(context.Background(), model.QuoteRequest{Amount: decimal.NewFromInt(5), Currency: "USD", DesiredCurrency: "COP"})
	assert.True(t, apierror.HasCode(err, apierror.ErrInvalidInput))
}

func TestQuoter_RateProviderFailure(t *testing.T) {
	quoter, err := NewQuoter(&fakeRates{err: errors.New("timeout")}, nil, feeConfig("0", "0", "0"))
	require.NoError(t, err)

	_, err = quoter.Quote(context.Background(), model.QuoteRequest{Amount: decimal.NewFromInt(5), Currency: "USD", DesiredCurrency: "COP"})
	assert.True(t, apierror.HasCode(err, apierror.ErrUnableToProcess))
}

func TestQuoter_SameCurrencySkipsProvider(t *testing.T) {
	rates := &fakeRates{rate: decimal.NewFromInt(3)}
	quoter, err := NewQuoter(rates, nil, feeConfig("0", "0", "0"))
	require.NoError(t, err)

	rate, err := quoter.ExchangeRate(context.Background(), "usd", "USD")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(1).Equal(rate))
	assert.Zero(t, rates.calls)
}

func TestQuoter_CachesExchangeRate(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	rates := &fakeRates{rate: decimal.RequireFromString("4123.5")}
	quoter, err := NewQuoter(rates, cache.NewCache(client, time.Minute), feeConfig("0", "0", "0"))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		rate, err := quoter.ExchangeRate(context.Background(), "USD", "COP")
		require.NoError(t, err)
		assert.Equal(t, "4123.5", rate.String())
	}
	assert.EqualValues(t, 1, atomic.LoadInt32(&rates.calls))
	assert.True(t, mr.Exists(rateCacheKey("USD", "COP")))
}

func TestNewQuoter_InvalidFee(t *testing.T) {
	_, err := NewQuoter(&fakeRates{}, nil, feeConfig("abc", "0", "0"))
	assert.Error(t, err)
}
