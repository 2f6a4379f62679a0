/**
 * @description
 * The authorization policy for sponsored transactions. Given a sponsor, the
 * requesting user's whitelist membership, and today's accumulated spend, the
 * policy decides ALLOW, DENY, or FALLBACK for a proposed gas cost.
 *
 * DENY outcomes (inactive sponsor, user not whitelisted) are permanent for the
 * current request. FALLBACK outcomes (insufficient balance, daily cap reached)
 * are resource-exhaustion conditions where a manual, self-paid transaction is
 * a valid recovery path; they drive the gas-fallback banner in the dashboard.
 *
 * The decision is pure: it reads its inputs and mutates nothing, so calling it
 * twice against the same state yields the same result. Settlement of an ALLOW
 * happens separately, under the per-sponsor lock.
 */

package app

import (
	"github.com/shopspring/decimal"

	"github.com/escrowd/sponsorship-service/internal/domain"
)

// policyInput carries the state snapshot an authorization decision reads.
type policyInput struct {
	Sponsor       *domain.SponsorAccount
	IsWhitelisted bool
	SpentToday    decimal.Decimal
	ProposedCost  decimal.Decimal
}

// evaluatePolicy applies the decision rules in order, short-circuiting on the
// first failing condition.
func evaluatePolicy(in policyInput) domain.AuthorizationResult {
	if in.Sponsor == nil || !in.Sponsor.IsActive || in.Sponsor.Removed {
		return domain.AuthorizationResult{Decision: domain.DecisionDeny, Code: domain.CodeSponsorInactive}
	}
	if !in.IsWhitelisted {
		return domain.AuthorizationResult{Decision: domain.DecisionDeny, Code: domain.CodeNotWhitelisted}
	}
	if in.Sponsor.Balance.LessThan(in.ProposedCost) {
		return domain.AuthorizationResult{Decision: domain.DecisionFallback, Code: domain.CodeInsufficientBalance}
	}
	if in.SpentToday.Add(in.ProposedCost).GreaterThan(in.Sponsor.MaxDailySpend) {
		return domain.AuthorizationResult{Decision: domain.DecisionFallback, Code: domain.CodeDailyLimitExceeded}
	}
	return domain.AuthorizationResult{Decision: domain.DecisionAllow, Code: domain.CodeAllowed}
}
