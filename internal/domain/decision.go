package domain

// Decision is the outcome of an authorization check. DENY outcomes are
// permanent for the current request; FALLBACK outcomes are transient and the
// caller may offer a manual (non-sponsored) path or retry later.
type Decision string

const (
	DecisionAllow    Decision = "ALLOW"
	DecisionDeny     Decision = "DENY"
	DecisionFallback Decision = "FALLBACK"
)

// DecisionCode explains the decision to the caller.
type DecisionCode string

const (
	CodeAllowed             DecisionCode = "Allowed"
	CodeSponsorInactive     DecisionCode = "SponsorInactive"
	CodeNotWhitelisted      DecisionCode = "NotWhitelisted"
	CodeInsufficientBalance DecisionCode = "InsufficientBalance"
	CodeDailyLimitExceeded  DecisionCode = "DailyLimitExceeded"
)

// AuthorizationResult is the typed result returned to the authorization caller.
type AuthorizationResult struct {
	Decision Decision     `json:"decision"`
	Code     DecisionCode `json:"code"`
	// Settled reports whether an ALLOW was followed by a successful atomic
	// settlement (balance debit plus ledger posting). It is false when a
	// duplicate transaction reference suppressed the settlement.
	Settled bool `json:"settled"`
}

// Retryable reports whether the caller may usefully retry without an
// out-of-band state change. Only FALLBACK outcomes qualify.
func (r AuthorizationResult) Retryable() bool {
	return r.Decision == DecisionFallback
}
