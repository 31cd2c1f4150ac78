package statistics

import (
	"context"
	"fmt"
	"sort"

	"github.com/samber/lo"
	"go.uber.org/fx"

	"github.com/aiwa-app/aiwa/internal/models"
	"github.com/aiwa-app/aiwa/internal/store"
	"github.com/aiwa-app/aiwa/pkg/types"
)

type StatisticType string

const (
	// Paid transactions per day, all currencies
	StatisticTypeDailyTransactionCount StatisticType = "daily_transaction_count"
	// Revenue per day and currency, smallest currency unit
	StatisticTypeDailyRevenue StatisticType = "daily_revenue"
	// Running revenue total per currency
	StatisticTypeTotalRevenue StatisticType = "total_revenue"
)

var statisticTypes = []StatisticType{
	StatisticTypeDailyTransactionCount,
	StatisticTypeDailyRevenue,
	StatisticTypeTotalRevenue,
}

type PaymentStatisticDataItem struct {
	ID StatisticType `json:"id"`
}

type PaymentStatisticRequest struct {
	Filters   []*types.CommonFilter       `json:"filters"`
	DataItems []*PaymentStatisticDataItem `json:"data_items"`
}

type PaymentStatisticResponseDataItem struct {
	Date  string `json:"date"`
	Label string `json:"label,omitempty"`
	Value int64  `json:"value"`
}

type PaymentStatisticResponse struct {
	DataItems map[StatisticType][]PaymentStatisticResponseDataItem `json:"data_items"`
}

type ScanPaymentTransactionsResponse struct {
	Items []*models.PaymentTransaction `json:"items"`
	Total int64                        `json:"total"`
	From  int                          `json:"from"`
	Size  int                          `json:"size"`
}

// Service answers the admin ledger queries.
type Service struct {
	store store.Store
}

func New(st store.Store) *Service { return &Service{store: st} }

// ScanPaymentTransactions implements paginated admin listing with filters.
func (s *Service) ScanPaymentTransactions(ctx context.Context, req *store.ScanPaymentTransactionsRequest) (*ScanPaymentTransactionsResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("nil request")
	}
	req.From, req.Size = store.NormalizePage(req.From, req.Size)
	items, total, err := s.store.ScanPaymentTransactions(ctx, req)
	if err != nil {
		return nil, err
	}
	return &ScanPaymentTransactionsResponse{Items: items, Total: total, From: req.From, Size: req.Size}, nil
}

func dailyTransactionCount(stats []*store.DailyPaymentStat) []PaymentStatisticResponseDataItem {
	byDate := lo.GroupBy(stats, func(s *store.DailyPaymentStat) string { return s.Date })
	dates := lo.Keys(byDate)
	sort.Strings(dates)
	return lo.Map(dates, func(d string, _ int) PaymentStatisticResponseDataItem {
		return PaymentStatisticResponseDataItem{
			Date:  d,
			Value: lo.SumBy(byDate[d], func(s *store.DailyPaymentStat) int64 { return s.Count }),
		}
	})
}

func dailyRevenue(stats []*store.DailyPaymentStat) []PaymentStatisticResponseDataItem {
	return lo.Map(stats, func(s *store.DailyPaymentStat, _ int) PaymentStatisticResponseDataItem {
		return PaymentStatisticResponseDataItem{Date: s.Date, Label: s.Currency, Value: s.Amount}
	})
}

// totalRevenue accumulates amounts per currency in date order.
func totalRevenue(stats []*store.DailyPaymentStat) []PaymentStatisticResponseDataItem {
	running := map[string]int64{}
	res := make([]PaymentStatisticResponseDataItem, 0, len(stats))
	for _, s := range stats {
		running[s.Currency] += s.Amount
		res = append(res, PaymentStatisticResponseDataItem{Date: s.Date, Label: s.Currency, Value: running[s.Currency]})
	}
	return res
}

// GetDailyPaymentStatistic computes the requested series from one pass over the daily aggregates.
func (s *Service) GetDailyPaymentStatistic(ctx context.Context, request *PaymentStatisticRequest) (*PaymentStatisticResponse, error) {
	if request == nil {
		return nil, fmt.Errorf("nil request")
	}
	items := request.DataItems
	if len(items) == 0 {
		items = lo.Map(statisticTypes, func(t StatisticType, _ int) *PaymentStatisticDataItem { return &PaymentStatisticDataItem{ID: t} })
	}
	for _, di := range items {
		if !lo.Contains(statisticTypes, di.ID) {
			return nil, fmt.Errorf("invalid data item id: %s", di.ID)
		}
	}

	stats, err := s.store.DailyPaymentStats(ctx, request.Filters)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(stats, func(i, j int) bool {
		if stats[i].Date != stats[j].Date {
			return stats[i].Date < stats[j].Date
		}
		return stats[i].Currency < stats[j].Currency
	})

	results := make(map[StatisticType][]PaymentStatisticResponseDataItem, len(items))
	for _, di := range items {
		switch di.ID {
		case StatisticTypeDailyTransactionCount:
			results[di.ID] = dailyTransactionCount(stats)
		case StatisticTypeDailyRevenue:
			results[di.ID] = dailyRevenue(stats)
		case StatisticTypeTotalRevenue:
			results[di.ID] = totalRevenue(stats)
		}
	}
	return &PaymentStatisticResponse{DataItems: results}, nil
}

var Module = fx.Options(
	fx.Provide(New),
)
