package types

type PlanID string

const (
	PlanFree     PlanID = "free"
	PlanPro      PlanID = "pro"
	PlanAdvanced PlanID = "advanced"
	PlanUltimate PlanID = "ultimate"
)

type BillingCycle string

const (
	BillingCycleMonthly BillingCycle = "monthly"
	BillingCycleYearly  BillingCycle = "yearly"
)

// Plan describes the credit allowance and daily chat cap granted by a plan.
type Plan struct {
	ID PlanID `json:"id" mapstructure:"id"`
	// Credits granted per billing period
	Credits int `json:"credits" mapstructure:"credits"`
	// MessagesPerDay caps chat messages in a trailing 24h window
	MessagesPerDay int `json:"messages_per_day" mapstructure:"messages_per_day"`
}

// DefaultUnknownPlanCredits is granted when a checkout names a plan we do not know.
const DefaultUnknownPlanCredits = 100

var DefaultPlans = []*Plan{
	{ID: PlanFree, Credits: 10, MessagesPerDay: 20},
	{ID: PlanPro, Credits: 100, MessagesPerDay: 100},
	{ID: PlanAdvanced, Credits: 350, MessagesPerDay: 250},
	{ID: PlanUltimate, Credits: 800, MessagesPerDay: 500},
}

func ParseBillingCycle(s string) BillingCycle {
	if s == string(BillingCycleYearly) || s == "annual" {
		return BillingCycleYearly
	}
	return BillingCycleMonthly
}
