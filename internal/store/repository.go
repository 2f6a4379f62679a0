/**
 * @description
 * This file defines the `Repository` interface, which specifies the contract for all
 * data access operations required by the sponsorship-service. By defining an interface,
 * we decouple the application's business logic from the specific database implementation
 * (e.g., PostgreSQL), making the code more modular and easier to test.
 *
 * @dependencies
 * - context, time: Standard Go libraries.
 * - github.com/google/uuid: For flagged-transaction identifiers.
 * - github.com/shopspring/decimal: For exact monetary arithmetic.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/escrowd/sponsorship-service/internal/domain"
)

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// Sponsor account methods
	CreateSponsor(ctx context.Context, sponsor *domain.SponsorAccount) error
	FindSponsorByAddress(ctx context.Context, address string) (*domain.SponsorAccount, error)
	ListSponsors(ctx context.Context, filters domain.SponsorListFilters) ([]domain.SponsorAccount, error)
	SetSponsorActive(ctx context.Context, address string, active bool) error
	// RemoveSponsor marks the sponsor as removed (terminal) and detaches its whitelist.
	RemoveSponsor(ctx context.Context, address string) error
	CreditSponsorBalance(ctx context.Context, address string, amount decimal.Decimal) error
	// DebitSponsorBalance atomically moves funds out of a sponsor's balance.
	// The update is guarded so the balance can never go negative; an overdraw
	// attempt returns ErrInsufficientBalance without mutating anything.
	DebitSponsorBalance(ctx context.Context, address string, amount decimal.Decimal) error

	// Whitelist registry methods
	UpsertWhitelistEntry(ctx context.Context, entry *domain.WhitelistEntry) error
	DeleteWhitelistEntry(ctx context.Context, sponsorAddress, userAddress string) error
	FindWhitelistEntry(ctx context.Context, sponsorAddress, userAddress string) (*domain.WhitelistEntry, error)
	ListWhitelistEntries(ctx context.Context, sponsorAddress string) ([]domain.WhitelistEntry, error)

	// Spend ledger methods
	// SettleSponsorship applies one authorized sponsorship event in a single
	// database transaction: guarded balance debit, total_spent increment,
	// additive ledger postings for every granularity, and the whitelist
	// entry's usage stats. Either the full mutation succeeds or none of it.
	SettleSponsorship(ctx context.Context, sponsorAddress, userAddress string, gasCost decimal.Decimal, at time.Time, buckets map[domain.Granularity]time.Time) error
	QuerySpendLedger(ctx context.Context, sponsorAddress string, granularity domain.Granularity, limit int) ([]domain.SpendLedgerEntry, error)
	GetBucketSpend(ctx context.Context, sponsorAddress string, granularity domain.Granularity, bucketStart time.Time) (decimal.Decimal, error)

	// Compliance review queue methods
	CreateFlaggedTransaction(ctx context.Context, flag *domain.FlaggedTransaction) error
	ListFlaggedTransactions(ctx context.Context, filters domain.FlaggedTransactionFilters) ([]domain.FlaggedTransaction, error)
	UpdateFlaggedTransactionStatus(ctx context.Context, id uuid.UUID, status string) error
	MarkEscrowRevoked(ctx context.Context, escrowID, actor string, reason *string) error
	MarkUserFrozen(ctx context.Context, userAddress, actor string, reason *string) error
	IsUserFrozen(ctx context.Context, userAddress string) (bool, error)

	// Audit trail methods
	AppendAuditLog(ctx context.Context, entry domain.AuditLogEntry) error
	ListAuditLog(ctx context.Context, target string, limit int) ([]domain.AuditLogEntry, error)
}
