package query

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kommetio/kommet-core/internal/types"
)

// QueryResult is one row of a grouped/aggregated query. Only group-by columns
// and aggregate labels are addressable.
type QueryResult struct {
	values map[string]any
}

// Labels returns the addressable labels of the row in sorted order:
// group-by property paths and canonical aggregate labels.
func (r *QueryResult) Labels() []string {
	out := make([]string, 0, len(r.values))
	for label := range r.values {
		out = append(out, label)
	}
	sort.Strings(out)
	return out
}

// Value returns the raw value of a label, nil when absent.
func (r *QueryResult) Value(label string) any {
	return r.values[label]
}

// GroupedValue returns the value of a group-by property.
func (r *QueryResult) GroupedValue(path string) (any, error) {
	v, ok := r.values[path]
	if !ok {
		return nil, fmt.Errorf("property %s is not addressable on an aggregate result row", path)
	}
	return v, nil
}

// Aggregate returns the value of an aggregate by its canonical label, e.g.
// "avg(age)". Numeric aggregates are exact decimals.
func (r *QueryResult) Aggregate(label string) (decimal.Decimal, error) {
	v, ok := r.values[label]
	if !ok {
		return decimal.Zero, fmt.Errorf("aggregate %s is not addressable on this result row", label)
	}
	d, ok := v.(decimal.Decimal)
	if !ok {
		return decimal.Zero, fmt.Errorf("aggregate %s is not numeric", label)
	}
	return d, nil
}

// convertValue normalizes a scanned database value according to the field's
// data type.
func convertValue(f *types.Field, raw any) (any, error) {
	if raw == nil {
		return nil, nil
	}
	if f.APIName == types.IDField {
		return toKID(raw)
	}
	switch f.DataType.Kind {
	case types.KindTypeReference:
		return toKID(raw)
	case types.KindNumber:
		return toDecimal(raw)
	case types.KindBoolean:
		switch v := raw.(type) {
		case bool:
			return v, nil
		case int64:
			return v != 0, nil
		}
		return nil, fmt.Errorf("unexpected boolean value %T", raw)
	case types.KindDateTime, types.KindDate:
		switch v := raw.(type) {
		case time.Time:
			return v, nil
		case string:
			return time.Parse("2006-01-02 15:04:05", v)
		case []byte:
			return time.Parse("2006-01-02 15:04:05", string(v))
		}
		return nil, fmt.Errorf("unexpected time value %T", raw)
	default:
		switch v := raw.(type) {
		case string:
			return v, nil
		case []byte:
			return string(v), nil
		case int64:
			return v, nil
		}
		return raw, nil
	}
}

func toKID(raw any) (any, error) {
	switch v := raw.(type) {
	case string:
		return types.ParseKID(v)
	case []byte:
		return types.ParseKID(string(v))
	}
	return nil, fmt.Errorf("unexpected identifier value %T", raw)
}

func toDecimal(raw any) (decimal.Decimal, error) {
	switch v := raw.(type) {
	case int64:
		return decimal.NewFromInt(v), nil
	case float64:
		return decimal.NewFromFloat(v), nil
	case string:
		return decimal.NewFromString(v)
	case []byte:
		return decimal.NewFromString(string(v))
	case decimal.Decimal:
		return v, nil
	}
	return decimal.Zero, fmt.Errorf("unexpected numeric value %T", raw)
}
