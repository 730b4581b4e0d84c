package dividend

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// Derive fills amounts that were omitted but follow from the others. The
// rules run in order and each only fires when its target is zero and its
// sources are positive:
//
//	dividend_sek = dividend_local * rate
//	net_sek      = dividend_sek - tax_local * rate
//	tax_sek      = dividend_sek - net_sek   (always)
//
// A missing or non-positive exchange rate is taken as 1. tax_rate_percent
// is computed last from the local amounts.
func Derive(c *Candidate) {
	rate := c.ExchangeRate
	if !rate.IsPositive() {
		rate = decimal.NewFromInt(1)
		c.ExchangeRate = rate
	}

	if c.DividendSEK.IsZero() && c.DividendLocal.IsPositive() {
		c.DividendSEK = c.DividendLocal.Mul(rate)
	}

	if c.NetSEK.IsZero() && c.DividendSEK.IsPositive() {
		c.NetSEK = c.DividendSEK.Sub(c.TaxLocal.Mul(rate))
	}

	c.TaxSEK = c.DividendSEK.Sub(c.NetSEK)

	c.TaxRatePercent = decimal.Zero
	if c.DividendLocal.IsPositive() {
		c.TaxRatePercent = c.TaxLocal.Div(c.DividendLocal).Mul(hundred).Round(4)
	}
}

// brokerFeePercent is broker_fee_sek as a percentage of dividend_sek, or
// zero when there is no SEK dividend.
func brokerFeePercent(feeSEK, dividendSEK decimal.Decimal) decimal.Decimal {
	if dividendSEK.IsZero() {
		return decimal.Zero
	}
	return feeSEK.Div(dividendSEK).Mul(hundred).Round(4)
}
