package config

import (
	"testing"
	"time"

	"github.com/aiwa-app/aiwa/pkg/types"
	"github.com/stretchr/testify/require"
)

func TestNew_DefaultsAndEnvOverrides(t *testing.T) {
	t.Setenv("APP_CONFIG_FILE", "")
	t.Setenv("APP_CONFIG_NAME", "does-not-exist")
	t.Setenv("APP_STRIPE_WEBHOOK_SECRET", "whsec_test")
	t.Setenv("APP_CRON_SECRET", "cron-secret")

	cfg, err := New()
	require.NoError(t, err)
	require.Equal(t, EnvDev, cfg.Env)
	require.Equal(t, 8888, cfg.Server.Port)
	require.Equal(t, "whsec_test", cfg.Stripe.WebhookSecret)
	require.Equal(t, "cron-secret", cfg.Cron.Secret)
	require.Equal(t, 5*time.Second, cfg.Chat.UsagePollDelay)
	require.Equal(t, 3, cfg.Chat.AnonymousMessagesPerDay)
}

func TestNew_ProdRequiresWebhookSecret(t *testing.T) {
	t.Setenv("APP_CONFIG_NAME", "does-not-exist")
	t.Setenv("APP_ENV", "prod")
	t.Setenv("APP_STRIPE_WEBHOOK_SECRET", "")

	_, err := New()
	require.ErrorContains(t, err, "webhook_secret")
}

func TestNew_ProdRequiresJWTSecret(t *testing.T) {
	t.Setenv("APP_CONFIG_NAME", "does-not-exist")
	t.Setenv("APP_ENV", "prod")
	t.Setenv("APP_STRIPE_WEBHOOK_SECRET", "whsec_test")
	t.Setenv("APP_AUTH_JWT_SECRET", "")

	_, err := New()
	require.ErrorContains(t, err, "jwt_secret")

	t.Setenv("APP_AUTH_JWT_SECRET", "jwt-prod")
	cfg, err := New()
	require.NoError(t, err)
	require.Equal(t, "jwt-prod", cfg.Auth.JWTSecret)
}

func TestGetPlan_FallsBackToDefaults(t *testing.T) {
	var cfg Config
	p := cfg.GetPlan(types.PlanAdvanced)
	require.NotNil(t, p)
	require.Equal(t, 350, p.Credits)
	require.Nil(t, cfg.GetPlan("enterprise"))

	custom := &Config{Plans: []*types.Plan{{ID: types.PlanPro, Credits: 42, MessagesPerDay: 7}}}
	require.Equal(t, 42, custom.GetPlan(types.PlanPro).Credits)
	require.Nil(t, custom.GetPlan(types.PlanUltimate))
}
