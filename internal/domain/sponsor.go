/**
 * @description
 * This file defines the core domain models for the sponsorship-service.
 * These structs represent the main entities and data transfer objects (DTOs)
 * used throughout the service's business logic, database interactions, and API layers.
 *
 * @notes
 * - Using distinct types for API requests, database models, and external service
 *   payloads ensures clear separation of concerns and type safety.
 * - All monetary amounts (balances, spend caps, gas costs) use `decimal.Decimal`
 *   and travel as decimal strings on the wire. Native floats are never used for
 *   money in this service.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SponsorAccount is the ledger entity for one gas sponsor. It maps directly to
// the `sponsors` table in the database.
type SponsorAccount struct {
	Address       string          `json:"address"`
	Name          string          `json:"name"`
	Email         *string         `json:"email,omitempty"`
	Company       *string         `json:"company,omitempty"`
	Balance       decimal.Decimal `json:"balance"`
	MaxDailySpend decimal.Decimal `json:"max_daily_spend"`
	TotalSpent    decimal.Decimal `json:"total_spent"`
	IsActive      bool            `json:"is_active"`
	KYCVerified   bool            `json:"kyc_verified"`
	Removed       bool            `json:"-"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// WhitelistEntry records one user address authorized to draw against a
// sponsor's balance. Composite key (sponsor_address, user_address).
type WhitelistEntry struct {
	SponsorAddress string          `json:"sponsor_address"`
	UserAddress    string          `json:"user_address"`
	AddedAt        time.Time       `json:"added_at"`
	AddedBy        string          `json:"added_by"`
	Reason         *string         `json:"reason,omitempty"`
	TrustScore     int             `json:"trust_score"`
	LastUsed       *time.Time      `json:"last_used,omitempty"`
	TotalGasUsed   decimal.Decimal `json:"total_gas_used"`
}

// DefaultTrustScore is assigned when a whitelist request omits the score.
const DefaultTrustScore = 50

// SpendLedgerEntry is one time bucket of sponsored gas usage for a sponsor.
// Entries are created lazily on first use and accumulate additively; they are
// never deleted, so historical analytics remain queryable.
type SpendLedgerEntry struct {
	SponsorAddress string          `json:"sponsor_address"`
	Granularity    Granularity     `json:"granularity"`
	BucketStart    time.Time       `json:"bucket_start"`
	GasCost        decimal.Decimal `json:"gas_cost"`
	Transactions   int64           `json:"transactions"`
	UniqueUsers    int64           `json:"unique_users"`
}

// GasAnalytics summarizes a sponsor's spend for the status endpoint.
type GasAnalytics struct {
	TotalSpent    decimal.Decimal    `json:"total_spent"`
	SpentToday    decimal.Decimal    `json:"spent_today"`
	Daily         []SpendLedgerEntry `json:"daily"`
	Weekly        []SpendLedgerEntry `json:"weekly"`
	Monthly       []SpendLedgerEntry `json:"monthly"`
	WhitelistSize int                `json:"whitelist_size"`
}

// SponsorStatus is the aggregate returned by the sponsor status endpoint.
type SponsorStatus struct {
	Sponsor          *SponsorAccount `json:"sponsor"`
	WhitelistedUsers []string        `json:"whitelisted_users"`
	Analytics        GasAnalytics    `json:"analytics"`
}

// FlaggedTransaction is a compliance review queue item created by an external
// fraud/compliance detector. Status moves pending -> reviewed -> resolved only
// via explicit admin action.
type FlaggedTransaction struct {
	ID          uuid.UUID       `json:"id"`
	EscrowID    string          `json:"escrow_id"`
	UserAddress string          `json:"user_address"`
	Amount      decimal.Decimal `json:"amount"`
	Reason      string          `json:"reason"`
	Severity    string          `json:"severity"` // 'low', 'medium', 'high', 'critical'
	Status      string          `json:"status"`   // 'pending', 'reviewed', 'resolved'
	Timestamp   time.Time       `json:"timestamp"`
}

// Flagged transaction severities and statuses.
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"

	FlagStatusPending  = "pending"
	FlagStatusReviewed = "reviewed"
	FlagStatusResolved = "resolved"
)

// AuditLogEntry is one append-only record of an administrative action.
type AuditLogEntry struct {
	ID        uuid.UUID `json:"id"`
	Actor     string    `json:"actor"`
	Action    string    `json:"action"`
	Target    string    `json:"target"`
	Reason    *string   `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// CreateSponsorRequest is the DTO for sponsor creation. Amounts arrive as
// decimal strings and are parsed with arbitrary-precision arithmetic.
type CreateSponsorRequest struct {
	Name           string  `json:"name"`
	Address        string  `json:"address"`
	MaxDailySpend  string  `json:"max_daily_spend"`
	InitialBalance string  `json:"initial_balance,omitempty"`
	Email          *string `json:"email,omitempty"`
	Company        *string `json:"company,omitempty"`
	KYCVerified    bool    `json:"kyc_verified"`
	TermsAccepted  bool    `json:"terms_accepted"`
}

// WhitelistUserRequest is the DTO for adding a user to a sponsor's whitelist.
type WhitelistUserRequest struct {
	UserAddress string  `json:"user_address"`
	Reason      *string `json:"reason,omitempty"`
	TrustScore  *int    `json:"trust_score,omitempty"`
}

// SponsorListFilters narrows getAllSponsors results.
type SponsorListFilters struct {
	IsActive *bool
}

// FlaggedTransactionFilters narrows listFlagged results.
type FlaggedTransactionFilters struct {
	Status   string
	Severity string
}

// AuthorizeRequest is the DTO for a sponsorship authorization check. The
// transaction reference is optional and, when present, lets the service drop
// duplicate settlements for the same underlying transaction.
type AuthorizeRequest struct {
	SponsorAddress  string `json:"sponsor_address"`
	UserAddress     string `json:"user_address"`
	ProposedGasCost string `json:"proposed_gas_cost"`
	TxRef           string `json:"tx_ref,omitempty"`
}

// ForceTransferRequest collects the inputs for an administrative force
// transfer. It is ephemeral: only the resulting audit record persists.
type ForceTransferRequest struct {
	SponsorAddress string  `json:"sponsor_address"`
	ToAddress      string  `json:"to_address"`
	Amount         string  `json:"amount"`
	Reason         string  `json:"reason"`
	ComplianceCase *string `json:"compliance_case,omitempty"`
}

// ForceTransferResult reports the terminal outcome of a force transfer run.
type ForceTransferResult struct {
	Status  string          `json:"status"` // 'completed' or 'failed'
	Amount  decimal.Decimal `json:"amount"`
	RelayID *string         `json:"relay_id,omitempty"`
	Error   *string         `json:"error,omitempty"`
}

// Actor roles threaded explicitly into every mutating operation. Role checks
// happen once inside the service, never per UI surface.
const (
	RoleAdmin    = "admin"
	RoleOperator = "operator"
	RoleViewer   = "viewer"
)
