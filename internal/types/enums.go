package types

// PlanTier is a typed string for subscription plan tiers.
type PlanTier string

const (
	PlanTierFree     PlanTier = "free"
	PlanTierPro      PlanTier = "pro"
	PlanTierBusiness PlanTier = "business"
)

// planTierRank orders tiers for visibility comparisons. Higher is more
// permissive. Unknown tiers rank below free so they fail closed.
func (t PlanTier) rank() int {
	switch t {
	case PlanTierFree:
		return 1
	case PlanTierPro:
		return 2
	case PlanTierBusiness:
		return 3
	default:
		return 0
	}
}

// AtLeast reports whether t grants every capability of other.
func (t PlanTier) AtLeast(other PlanTier) bool {
	return t.rank() >= other.rank()
}

// IsValid checks if the plan tier is one of the canonical values.
func (t PlanTier) IsValid() bool {
	switch t {
	case PlanTierFree, PlanTierPro, PlanTierBusiness:
		return true
	}
	return false
}

// NormalizeTier maps legacy marketing names and unknown values onto the
// canonical tier set. Unknown input degrades to free.
func NormalizeTier(raw string) PlanTier {
	switch raw {
	case "looker", "free", "":
		return PlanTierFree
	case "pro":
		return PlanTierPro
	case "whale", "business":
		return PlanTierBusiness
	default:
		return PlanTierFree
	}
}

// SubscriptionStatus is a typed string for Stripe subscription lifecycle states.
type SubscriptionStatus string

const (
	SubscriptionStatusActive   SubscriptionStatus = "active"
	SubscriptionStatusTrialing SubscriptionStatus = "trialing"
	SubscriptionStatusPastDue  SubscriptionStatus = "past_due"
	SubscriptionStatusCanceled SubscriptionStatus = "canceled"
	SubscriptionStatusUnpaid   SubscriptionStatus = "unpaid"
)

// IsEntitled reports whether the status still grants paid-tier access.
func (s SubscriptionStatus) IsEntitled() bool {
	switch s {
	case SubscriptionStatusActive, SubscriptionStatusTrialing, SubscriptionStatusPastDue:
		return true
	}
	return false
}

// UseStatus classifies how a land use is treated inside a zoning district.
type UseStatus string

const (
	UseStatusAllowed     UseStatus = "allowed"
	UseStatusConditional UseStatus = "conditional"
	UseStatusNotAllowed  UseStatus = "not_allowed"
)

// IsValid checks if the use status is a recognized value.
func (u UseStatus) IsValid() bool {
	switch u {
	case UseStatusAllowed, UseStatusConditional, UseStatusNotAllowed:
		return true
	}
	return false
}

// PurchaseState is a typed string for the report purchase pipeline states.
// Transitions move strictly forward; errored is terminal until an operator
// or a queue redelivery resumes the job.
type PurchaseState string

const (
	PurchaseStateCreated       PurchaseState = "created"
	PurchaseStateZoningFetched PurchaseState = "zoning_fetched"
	PurchaseStatePDFGenerated  PurchaseState = "pdf_generated"
	PurchaseStateEmailSent     PurchaseState = "email_sent"
	PurchaseStateComplete      PurchaseState = "complete"
	PurchaseStateErrored       PurchaseState = "errored"
)

// IsTerminal reports whether the pipeline should stop processing this state.
func (s PurchaseState) IsTerminal() bool {
	return s == PurchaseStateComplete || s == PurchaseStateErrored
}

// CanTransitionTo validates a forward transition in the purchase pipeline.
func (s PurchaseState) CanTransitionTo(next PurchaseState) bool {
	allowed, ok := purchaseTransitions[s]
	if !ok {
		return false
	}
	for _, n := range allowed {
		if n == next {
			return true
		}
	}
	return false
}

var purchaseTransitions = map[PurchaseState][]PurchaseState{
	PurchaseStateCreated:       {PurchaseStateZoningFetched, PurchaseStateErrored},
	PurchaseStateZoningFetched: {PurchaseStatePDFGenerated, PurchaseStateErrored},
	PurchaseStatePDFGenerated:  {PurchaseStateEmailSent, PurchaseStateErrored},
	PurchaseStateEmailSent:     {PurchaseStateComplete, PurchaseStateErrored},
	// errored jobs may resume from the top of the remaining work
	PurchaseStateErrored: {PurchaseStateZoningFetched, PurchaseStatePDFGenerated, PurchaseStateEmailSent, PurchaseStateComplete},
}

// County is a typed string for the Delaware counties covered by the dataset.
type County string

const (
	CountyNewCastle County = "New Castle"
	CountyKent      County = "Kent"
	CountySussex    County = "Sussex"
)

// IsValid checks if the county is one of the covered counties.
func (c County) IsValid() bool {
	switch c {
	case CountyNewCastle, CountyKent, CountySussex:
		return true
	}
	return false
}
