package webhook_log

import (
	"context"
	"fmt"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/aiwa-app/aiwa/internal/models"
	"github.com/aiwa-app/aiwa/internal/store"
	"github.com/aiwa-app/aiwa/pkg/logctx"
	"github.com/aiwa-app/aiwa/pkg/types"
)

// Service owns every transition of a webhook log row:
// pending on receipt, then exactly one of success or failed.
type Service struct {
	store store.Store
	log   *zap.SugaredLogger
}

func New(st store.Store, log *zap.SugaredLogger) *Service { return &Service{store: st, log: log} }

// Received stores the event as pending, resetting a previous delivery of the same event id.
func (s *Service) Received(ctx context.Context, l *models.WebhookLog) error {
	if l == nil || l.EventID == "" {
		return fmt.Errorf("webhook log without event id")
	}
	if l.TraceID == "" {
		l.TraceID = logctx.TraceID(ctx)
	}
	if err := s.store.UpsertWebhookLog(ctx, l); err != nil {
		return fmt.Errorf("failed to save webhook log: %w", err)
	}
	return nil
}

func (s *Service) Succeeded(ctx context.Context, eventID string) {
	if err := s.store.MarkWebhookLog(ctx, eventID, types.WebhookLogStatusSuccess, ""); err != nil {
		logctx.FromCtx(ctx, s.log).Errorw("failed to mark webhook log success", "event_id", eventID, "err", err)
	}
}

func (s *Service) Failed(ctx context.Context, eventID string, cause error) {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	if err := s.store.MarkWebhookLog(ctx, eventID, types.WebhookLogStatusFailed, msg); err != nil {
		logctx.FromCtx(ctx, s.log).Errorw("failed to mark webhook log failed", "event_id", eventID, "err", err)
	}
}

func (s *Service) Get(ctx context.Context, eventID string) (*models.WebhookLog, error) {
	return s.store.GetWebhookLog(ctx, eventID)
}

func (s *Service) List(ctx context.Context, req *store.ListWebhookLogsRequest) ([]*models.WebhookLog, int64, error) {
	return s.store.ListWebhookLogs(ctx, req)
}

var Module = fx.Options(
	fx.Provide(New),
)
