// Package anomaly holds cohort statistics and anomaly tag names.
package anomaly

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/stat"
)

// Tag names produced by the detector.
const (
	TagAmountOutlier     = "amount_outlier"
	TagAmountMADOutlier  = "amount_mad_outlier"
	TagFutureDate        = "future_date"
	TagNonPositiveAmount = "non_positive_amount"
	TagTaxExceedsTotal   = "tax_exceeds_total"
	TagTaxRatioHigh      = "tax_ratio_high"
	TagTaxRatioLow       = "tax_ratio_low"
	TagHighMealExpense   = "high_meal_expense"

	// TagMissingFieldPrefix is followed by the field name, e.g. "missing_field:vendor".
	TagMissingFieldPrefix = "missing_field:"
)

// MissingField returns the tag for an empty required field.
func MissingField(name string) string { return TagMissingFieldPrefix + name }

// Stats summarizes the historical amounts of a (vendor, category) cohort.
type Stats struct {
	Count  int
	Mean   float64
	Std    float64 // population standard deviation
	Median float64
	MAD    float64 // median absolute deviation
}

// Compute returns cohort statistics for the given amounts.
func Compute(amounts []float64) Stats {
	n := len(amounts)
	if n == 0 {
		return Stats{}
	}

	mean, std := stat.PopMeanStdDev(amounts, nil)

	sorted := append([]float64(nil), amounts...)
	slices.Sort(sorted)
	med := median(sorted)

	dev := make([]float64, n)
	for i, a := range sorted {
		dev[i] = math.Abs(a - med)
	}
	slices.Sort(dev)

	return Stats{
		Count:  n,
		Mean:   mean,
		Std:    std,
		Median: med,
		MAD:    median(dev),
	}
}

// median of sorted data; an even count averages the two middle values.
func median(sorted []float64) float64 {
	lo := stat.Quantile(0.5, stat.Empirical, sorted, nil)
	n := len(sorted)
	if n%2 == 1 {
		return lo
	}
	return (lo + sorted[n/2]) / 2
}
