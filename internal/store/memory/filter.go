package memory

import (
	"cmp"
	"fmt"
	"strconv"
	"time"

	"github.com/samber/lo"

	"github.com/aiwa-app/aiwa/internal/models"
	"github.com/aiwa-app/aiwa/pkg/types"
)

// transactionColumn returns the value of a filterable column, nil for NULL.
func transactionColumn(t *models.PaymentTransaction, field string) any {
	deref := func(p *string) any {
		if p == nil {
			return nil
		}
		return *p
	}
	switch field {
	case "user_id":
		return t.UserID
	case "kind":
		return string(t.Kind)
	case "status":
		return string(t.Status)
	case "currency":
		return t.Currency
	case "amount":
		return t.Amount
	case "stripe_invoice_id":
		return deref(t.StripeInvoiceID)
	case "stripe_payment_id":
		return deref(t.StripePaymentID)
	case "stripe_subscription_id":
		return deref(t.StripeSubscriptionID)
	case "created_at":
		return t.CreatedAt
	default:
		return nil
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}

func toTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		for _, layout := range []string{time.RFC3339Nano, time.DateTime, time.DateOnly} {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed, true
			}
		}
	case float64:
		return time.Unix(int64(t), 0), true
	case int64:
		return time.Unix(t, 0), true
	}
	return time.Time{}, false
}

// compareValues orders column against a filter value using the column's type.
// NULL sorts first.
func compareValues(column, value any) int {
	if column == nil || value == nil {
		switch {
		case column == nil && value == nil:
			return 0
		case column == nil:
			return -1
		default:
			return 1
		}
	}
	switch c := column.(type) {
	case time.Time:
		if v, ok := toTime(value); ok {
			return c.Compare(v)
		}
	case int64:
		if v, ok := toFloat(value); ok {
			return cmp.Compare(float64(c), v)
		}
	}
	return cmp.Compare(fmt.Sprint(column), fmt.Sprint(value))
}

func matchFilter(column any, f *types.CommonFilter) bool {
	if len(f.Values) == 0 {
		return true
	}
	first := f.Values[0]
	switch f.Operator {
	case types.CommonFilterOperatorEq:
		return column != nil && compareValues(column, first) == 0
	case types.CommonFilterOperatorNotEq:
		return column != nil && compareValues(column, first) != 0
	case types.CommonFilterOperatorLt:
		return column != nil && compareValues(column, first) < 0
	case types.CommonFilterOperatorLte:
		return column != nil && compareValues(column, first) <= 0
	case types.CommonFilterOperatorGt:
		return column != nil && compareValues(column, first) > 0
	case types.CommonFilterOperatorGte:
		return column != nil && compareValues(column, first) >= 0
	case types.CommonFilterOperatorRange:
		return column != nil && len(f.Values) >= 2 &&
			compareValues(column, f.Values[0]) >= 0 && compareValues(column, f.Values[1]) <= 0
	case types.CommonFilterOperatorIn:
		return column != nil && lo.ContainsBy(f.Values, func(v any) bool { return compareValues(column, v) == 0 })
	default:
		return true
	}
}
