// Package anomaly tags documents whose amounts, dates or fields look unusual.
package anomaly

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	domanomaly "github.com/kailas-cloud/docreview/internal/domain/anomaly"
	domdoc "github.com/kailas-cloud/docreview/internal/domain/document"
)

// madScale converts MAD into a standard-deviation estimate for normal data.
const madScale = 0.6745

// taxLowMinAmount keeps small receipts out of the low tax ratio check.
var taxLowMinAmount = decimal.NewFromInt(200)

// Config holds detector thresholds.
type Config struct {
	MinSamples     int
	Sigma          float64
	MADMinSamples  int
	MADThreshold   float64
	RequiredFields []string
	TaxRatioUpper  float64
	TaxRatioLower  float64
	MealLimit      decimal.Decimal
	WindowDays     int
}

// DefaultConfig returns the production thresholds.
func DefaultConfig() Config {
	return Config{
		MinSamples:    5,
		Sigma:         2.5,
		MADMinSamples: 8,
		MADThreshold:  3.5,
		RequiredFields: []string{
			domdoc.FieldVendor, domdoc.FieldInvoiceNo, domdoc.FieldIssueDate, domdoc.FieldAmount,
		},
		TaxRatioUpper: 0.17,
		TaxRatioLower: 0,
		MealLimit:     decimal.NewFromInt(2000),
		WindowDays:    180,
	}
}

// Detect returns the sorted, deduplicated anomaly tags of doc against its cohort.
// It reads nothing but its arguments.
func Detect(doc domdoc.Document, stats domanomaly.Stats, now time.Time, cfg Config) []string {
	f := doc.Fields()
	tags := make(map[string]struct{})
	add := func(t string) { tags[t] = struct{}{} }

	for _, name := range cfg.RequiredFields {
		if fieldEmpty(f, name) {
			add(domanomaly.MissingField(name))
		}
	}

	if f.IssueDate != nil && dayOf(*f.IssueDate).After(dayOf(now)) {
		add(domanomaly.TagFutureDate)
	}

	if f.Amount.Valid {
		amount := f.Amount.Decimal
		x := amount.InexactFloat64()

		if !amount.IsPositive() {
			add(domanomaly.TagNonPositiveAmount)
		}

		if stats.Count >= cfg.MinSamples && stats.Count > 0 {
			std := stats.Std
			if std == 0 {
				std = 1
			}
			if math.Abs(x-stats.Mean)/std > cfg.Sigma {
				add(domanomaly.TagAmountOutlier)
			}
		}
		if stats.Count >= cfg.MADMinSamples && stats.MAD > 0 {
			if madScale*math.Abs(x-stats.Median)/stats.MAD > cfg.MADThreshold {
				add(domanomaly.TagAmountMADOutlier)
			}
		}

		if f.TaxAmount.Valid && !amount.IsZero() {
			tax := f.TaxAmount.Decimal
			if tax.GreaterThan(amount) {
				add(domanomaly.TagTaxExceedsTotal)
			}
			ratio := tax.Div(amount).InexactFloat64()
			if ratio > cfg.TaxRatioUpper {
				add(domanomaly.TagTaxRatioHigh)
			}
			if amount.GreaterThan(taxLowMinAmount) && ratio < cfg.TaxRatioLower {
				add(domanomaly.TagTaxRatioLow)
			}
		}

		if isMeal(f.Category) && amount.GreaterThan(cfg.MealLimit) {
			add(domanomaly.TagHighMealExpense)
		}
	}

	if len(tags) == 0 {
		return nil
	}
	out := make([]string, 0, len(tags))
	for t := range tags {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func fieldEmpty(f domdoc.Fields, name string) bool {
	switch name {
	case domdoc.FieldAmount:
		return !f.Amount.Valid
	case domdoc.FieldTaxAmount:
		return !f.TaxAmount.Valid
	case domdoc.FieldIssueDate:
		return f.IssueDate == nil
	case domdoc.FieldVendor:
		return strings.TrimSpace(f.Vendor) == ""
	case domdoc.FieldInvoiceNo:
		return strings.TrimSpace(f.InvoiceNo) == ""
	case domdoc.FieldBuyer:
		return strings.TrimSpace(f.Buyer) == ""
	case domdoc.FieldCategory:
		return strings.TrimSpace(f.Category) == ""
	case domdoc.FieldFileName:
		return strings.TrimSpace(f.FileName) == ""
	case domdoc.FieldCurrency:
		return strings.TrimSpace(f.Currency) == ""
	default:
		return strings.TrimSpace(f.Structured[name]) == ""
	}
}

func isMeal(category string) bool {
	c := strings.ToLower(category)
	return strings.Contains(c, "meal") || strings.Contains(c, "餐")
}

func dayOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
