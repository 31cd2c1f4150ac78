package types

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCommonFilter_Validate(t *testing.T) {
	allowed := []string{"user_id", "status"}

	tests := []struct {
		name    string
		filter  *CommonFilter
		wantErr string
	}{
		{name: "allowed eq", filter: &CommonFilter{Field: "user_id", Operator: CommonFilterOperatorEq, Values: []any{"u1"}}},
		{name: "unknown column", filter: &CommonFilter{Field: "1=1; drop table x", Operator: CommonFilterOperatorEq, Values: []any{"x"}}, wantErr: "not allowed"},
		{name: "no values", filter: &CommonFilter{Field: "status", Operator: CommonFilterOperatorEq}, wantErr: "no values"},
		{name: "short range", filter: &CommonFilter{Field: "status", Operator: CommonFilterOperatorRange, Values: []any{1}}, wantErr: "two values"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.filter.Validate(allowed)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestFromStripeStatus(t *testing.T) {
	require.Equal(t, SubscriptionStatusActive, FromStripeStatus("active"))
	require.Equal(t, SubscriptionStatusActive, FromStripeStatus("trialing"))
	require.Equal(t, SubscriptionStatusPastDue, FromStripeStatus("unpaid"))
	require.Equal(t, SubscriptionStatusCancelled, FromStripeStatus("canceled"))
	require.Equal(t, SubscriptionStatusCancelled, FromStripeStatus("incomplete_expired"))
}
