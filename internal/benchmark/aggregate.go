package benchmark

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/opensource-finance/safv/internal/domain"
	"github.com/opensource-finance/safv/internal/finance"
)

// MinGroupSize is the smallest group that may be published.
const MinGroupSize = 3

// upper applies full Unicode case mapping, so "ß" becomes "SS".
// A Caser is stateful and is not shared between goroutines.
func upper(s string) string {
	return cases.Upper(language.Und).String(s)
}

func normalizeRow(row Row) (domain.BenchmarkRecord, error) {
	metric := upper(strings.TrimSpace(row.MetricCode))
	segment := strings.TrimSpace(row.Segment)
	region := strings.TrimSpace(row.Region)

	if metric == "" {
		return domain.BenchmarkRecord{}, fmt.Errorf("%w: metric_code required", ErrInvalidRow)
	}
	if segment == "" || region == "" {
		return domain.BenchmarkRecord{}, fmt.Errorf("%w: segment and region required", ErrInvalidRow)
	}

	value, err := strconv.ParseFloat(strings.TrimSpace(row.Value), 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return domain.BenchmarkRecord{}, fmt.Errorf("%w: value must be numeric", ErrInvalidRow)
	}
	if value < 0 {
		return domain.BenchmarkRecord{}, fmt.Errorf("%w: value must be non-negative", ErrInvalidRow)
	}

	return domain.BenchmarkRecord{
		MetricCode: metric,
		Segment:    BucketSegment(segment),
		Region:     BucketRegion(region),
		Value:      finance.Round2(value),
	}, nil
}

func bucket(s string, keep int) string {
	r := []rune(upper(strings.TrimSpace(s)))
	if len(r) > keep {
		r = r[:keep]
	}
	return string(r) + "*"
}

// BucketSegment keeps the first three characters of a segment, upper-cased, followed by "*".
func BucketSegment(segment string) string {
	return bucket(segment, 3)
}

// BucketRegion keeps the first two characters of a region, upper-cased, followed by "*".
func BucketRegion(region string) string {
	return bucket(region, 2)
}

type groupKey struct {
	metric, segment, region string
}

type groupStats struct {
	count    int
	sum      float64
	min, max float64
}

// Aggregate groups records by (metric, segment bucket, region bucket) and
// drops groups smaller than MinGroupSize. Groups keep the order in which
// their key first appears in records.
func Aggregate(records []domain.BenchmarkRecord) []domain.AggregatedBenchmark {
	var order []groupKey
	groups := make(map[groupKey]*groupStats)

	for _, rec := range records {
		key := groupKey{rec.MetricCode, rec.Segment, rec.Region}
		st, ok := groups[key]
		if !ok {
			st = &groupStats{min: rec.Value, max: rec.Value}
			groups[key] = st
			order = append(order, key)
		}
		st.count++
		st.sum += rec.Value
		st.min = math.Min(st.min, rec.Value)
		st.max = math.Max(st.max, rec.Value)
	}

	out := make([]domain.AggregatedBenchmark, 0, len(order))
	for _, key := range order {
		st := groups[key]
		if st.count < MinGroupSize {
			continue
		}
		out = append(out, domain.AggregatedBenchmark{
			MetricCode:    key.metric,
			SegmentBucket: key.segment,
			RegionBucket:  key.region,
			Count:         st.count,
			AverageValue:  finance.Round2(st.sum / float64(st.count)),
			MinValue:      finance.Round2(st.min),
			MaxValue:      finance.Round2(st.max),
		})
	}
	return out
}
