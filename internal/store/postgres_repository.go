/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository` interface.
 * It contains all the necessary SQL queries to interact with the database tables
 * related to sponsors, whitelist entries, the spend ledger, the compliance review
 * queue, and the append-only audit log.
 *
 * @dependencies
 * - context, errors, fmt, time: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - github.com/shopspring/decimal: Exact arithmetic for NUMERIC columns.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/escrowd/sponsorship-service/internal/domain"
)

var (
	ErrSponsorNotFound        = errors.New("sponsor not found")
	ErrSponsorExists          = errors.New("sponsor already exists")
	ErrSponsorRemoved         = errors.New("sponsor has been removed")
	ErrWhitelistEntryNotFound = errors.New("whitelist entry not found")
	ErrInsufficientBalance    = errors.New("insufficient sponsor balance")
	ErrFlagNotFound           = errors.New("flagged transaction not found")
	ErrEscrowAlreadyRevoked   = errors.New("escrow already revoked")
	ErrUserAlreadyFrozen      = errors.New("user already frozen")
)

const uniqueViolationCode = "23505"

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}

// CreateSponsor inserts a new sponsor row. A duplicate address maps to ErrSponsorExists.
func (r *PostgresRepository) CreateSponsor(ctx context.Context, sponsor *domain.SponsorAccount) error {
	query := `
		INSERT INTO sponsors (address, name, email, company, balance, max_daily_spend, total_spent, is_active, kyc_verified, removed, created_at, updated_at)
		VALUES (lower($1), $2, $3, $4, $5, $6, $7, $8, $9, false, NOW(), NOW())
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		sponsor.Address,
		sponsor.Name,
		sponsor.Email,
		sponsor.Company,
		sponsor.Balance,
		sponsor.MaxDailySpend,
		sponsor.TotalSpent,
		sponsor.IsActive,
		sponsor.KYCVerified,
	).Scan(&sponsor.CreatedAt, &sponsor.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrSponsorExists
		}
		return fmt.Errorf("failed to create sponsor: %w", err)
	}
	return nil
}

const sponsorColumns = `address, name, email, company, balance, max_daily_spend, total_spent, is_active, kyc_verified, removed, created_at, updated_at`

func scanSponsor(row pgx.Row) (*domain.SponsorAccount, error) {
	var sponsor domain.SponsorAccount
	err := row.Scan(
		&sponsor.Address,
		&sponsor.Name,
		&sponsor.Email,
		&sponsor.Company,
		&sponsor.Balance,
		&sponsor.MaxDailySpend,
		&sponsor.TotalSpent,
		&sponsor.IsActive,
		&sponsor.KYCVerified,
		&sponsor.Removed,
		&sponsor.CreatedAt,
		&sponsor.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrSponsorNotFound
		}
		return nil, err
	}
	return &sponsor, nil
}

// FindSponsorByAddress retrieves a sponsor by its chain address.
func (r *PostgresRepository) FindSponsorByAddress(ctx context.Context, address string) (*domain.SponsorAccount, error) {
	query := fmt.Sprintf(`SELECT %s FROM sponsors WHERE address = lower($1) AND removed = false`, sponsorColumns)
	return scanSponsor(r.db.QueryRow(ctx, query, address))
}

// ListSponsors returns all non-removed sponsors, optionally filtered by active flag.
func (r *PostgresRepository) ListSponsors(ctx context.Context, filters domain.SponsorListFilters) ([]domain.SponsorAccount, error) {
	query := fmt.Sprintf(`SELECT %s FROM sponsors WHERE removed = false`, sponsorColumns)
	args := []interface{}{}
	if filters.IsActive != nil {
		query += ` AND is_active = $1`
		args = append(args, *filters.IsActive)
	}
	query += ` ORDER BY created_at`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sponsors: %w", err)
	}
	defer rows.Close()

	var sponsors []domain.SponsorAccount
	for rows.Next() {
		sponsor, err := scanSponsor(rows)
		if err != nil {
			return nil, err
		}
		sponsors = append(sponsors, *sponsor)
	}
	return sponsors, rows.Err()
}

// SetSponsorActive toggles the sponsor's active flag.
func (r *PostgresRepository) SetSponsorActive(ctx context.Context, address string, active bool) error {
	result, err := r.db.Exec(ctx,
		`UPDATE sponsors SET is_active = $1, updated_at = NOW() WHERE address = lower($2) AND removed = false`,
		active, address)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrSponsorNotFound
	}
	return nil
}

// RemoveSponsor is terminal: the sponsor is flagged removed and its whitelist
// entries are hard-deleted in the same database transaction.
func (r *PostgresRepository) RemoveSponsor(ctx context.Context, address string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	result, err := tx.Exec(ctx,
		`UPDATE sponsors SET removed = true, is_active = false, updated_at = NOW() WHERE address = lower($1) AND removed = false`,
		address)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		// Distinguish a repeated removal from a sponsor that never existed.
		var alreadyRemoved bool
		err := tx.QueryRow(ctx,
			`SELECT removed FROM sponsors WHERE address = lower($1)`, address).Scan(&alreadyRemoved)
		if err == pgx.ErrNoRows {
			return ErrSponsorNotFound
		}
		if err != nil {
			return err
		}
		if alreadyRemoved {
			return ErrSponsorRemoved
		}
		return ErrSponsorNotFound
	}

	if _, err := tx.Exec(ctx, `DELETE FROM whitelist_entries WHERE sponsor_address = lower($1)`, address); err != nil {
		return fmt.Errorf("failed to detach whitelist: %w", err)
	}

	return tx.Commit(ctx)
}

// CreditSponsorBalance adds funds to a sponsor's balance (top-up).
func (r *PostgresRepository) CreditSponsorBalance(ctx context.Context, address string, amount decimal.Decimal) error {
	result, err := r.db.Exec(ctx,
		`UPDATE sponsors SET balance = balance + $1, updated_at = NOW() WHERE address = lower($2) AND removed = false`,
		amount, address)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrSponsorNotFound
	}
	return nil
}

// DebitSponsorBalance moves funds out of a sponsor's balance. The WHERE clause
// guards the debit so the balance can never go negative, even against writers
// outside this process.
func (r *PostgresRepository) DebitSponsorBalance(ctx context.Context, address string, amount decimal.Decimal) error {
	result, err := r.db.Exec(ctx,
		`UPDATE sponsors SET balance = balance - $1, updated_at = NOW() WHERE address = lower($2) AND removed = false AND balance >= $1`,
		amount, address)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		// Distinguish a missing sponsor from an overdraw attempt.
		if _, findErr := r.FindSponsorByAddress(ctx, address); findErr != nil {
			return findErr
		}
		return ErrInsufficientBalance
	}
	return nil
}

// UpsertWhitelistEntry adds a user to a sponsor's whitelist. Re-whitelisting an
// existing user refreshes the reason, trust score, and attribution.
func (r *PostgresRepository) UpsertWhitelistEntry(ctx context.Context, entry *domain.WhitelistEntry) error {
	query := `
		INSERT INTO whitelist_entries (sponsor_address, user_address, added_at, added_by, reason, trust_score, total_gas_used)
		VALUES (lower($1), lower($2), NOW(), $3, $4, $5, 0)
		ON CONFLICT (sponsor_address, user_address)
		DO UPDATE SET added_by = EXCLUDED.added_by, reason = EXCLUDED.reason, trust_score = EXCLUDED.trust_score
		RETURNING added_at, total_gas_used
	`
	err := r.db.QueryRow(ctx, query,
		entry.SponsorAddress,
		entry.UserAddress,
		entry.AddedBy,
		entry.Reason,
		entry.TrustScore,
	).Scan(&entry.AddedAt, &entry.TotalGasUsed)
	if err != nil {
		return fmt.Errorf("failed to upsert whitelist entry: %w", err)
	}
	return nil
}

// DeleteWhitelistEntry hard-deletes a whitelist entry; removal is immediate.
func (r *PostgresRepository) DeleteWhitelistEntry(ctx context.Context, sponsorAddress, userAddress string) error {
	result, err := r.db.Exec(ctx,
		`DELETE FROM whitelist_entries WHERE sponsor_address = lower($1) AND user_address = lower($2)`,
		sponsorAddress, userAddress)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrWhitelistEntryNotFound
	}
	return nil
}

const whitelistColumns = `sponsor_address, user_address, added_at, added_by, reason, trust_score, last_used, total_gas_used`

func scanWhitelistEntry(row pgx.Row) (*domain.WhitelistEntry, error) {
	var entry domain.WhitelistEntry
	err := row.Scan(
		&entry.SponsorAddress,
		&entry.UserAddress,
		&entry.AddedAt,
		&entry.AddedBy,
		&entry.Reason,
		&entry.TrustScore,
		&entry.LastUsed,
		&entry.TotalGasUsed,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrWhitelistEntryNotFound
		}
		return nil, err
	}
	return &entry, nil
}

// FindWhitelistEntry retrieves one whitelist entry by its composite key.
func (r *PostgresRepository) FindWhitelistEntry(ctx context.Context, sponsorAddress, userAddress string) (*domain.WhitelistEntry, error) {
	query := fmt.Sprintf(`SELECT %s FROM whitelist_entries WHERE sponsor_address = lower($1) AND user_address = lower($2)`, whitelistColumns)
	return scanWhitelistEntry(r.db.QueryRow(ctx, query, sponsorAddress, userAddress))
}

// ListWhitelistEntries returns a sponsor's whitelist ordered by insertion time.
func (r *PostgresRepository) ListWhitelistEntries(ctx context.Context, sponsorAddress string) ([]domain.WhitelistEntry, error) {
	query := fmt.Sprintf(`SELECT %s FROM whitelist_entries WHERE sponsor_address = lower($1) ORDER BY added_at`, whitelistColumns)
	rows, err := r.db.Query(ctx, query, sponsorAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to list whitelist entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.WhitelistEntry
	for rows.Next() {
		entry, err := scanWhitelistEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}

// SettleSponsorship applies one authorized sponsorship event atomically:
// guarded balance debit, lifetime total, ledger postings for every bucket,
// unique-user tracking, and whitelist usage stats. Any failure rolls back the
// whole posting so the data model never holds a partial settlement.
func (r *PostgresRepository) SettleSponsorship(ctx context.Context, sponsorAddress, userAddress string, gasCost decimal.Decimal, at time.Time, buckets map[domain.Granularity]time.Time) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Guarded debit plus lifetime total in one statement. The row lock taken
	// by the UPDATE also serializes competing settlements on this sponsor.
	result, err := tx.Exec(ctx, `
		UPDATE sponsors
		SET balance = balance - $1, total_spent = total_spent + $1, updated_at = NOW()
		WHERE address = lower($2) AND removed = false AND balance >= $1
	`, gasCost, sponsorAddress)
	if err != nil {
		return fmt.Errorf("failed to debit sponsor: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrInsufficientBalance
	}

	for granularity, bucketStart := range buckets {
		if _, err := tx.Exec(ctx, `
			INSERT INTO spend_ledger (sponsor_address, granularity, bucket_start, gas_cost, transactions)
			VALUES (lower($1), $2, $3, $4, 1)
			ON CONFLICT (sponsor_address, granularity, bucket_start)
			DO UPDATE SET gas_cost = spend_ledger.gas_cost + EXCLUDED.gas_cost,
			              transactions = spend_ledger.transactions + 1
		`, sponsorAddress, string(granularity), bucketStart, gasCost); err != nil {
			return fmt.Errorf("failed to post ledger bucket %s: %w", granularity, err)
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO spend_ledger_users (sponsor_address, granularity, bucket_start, user_address)
			VALUES (lower($1), $2, $3, lower($4))
			ON CONFLICT (sponsor_address, granularity, bucket_start, user_address) DO NOTHING
		`, sponsorAddress, string(granularity), bucketStart, userAddress); err != nil {
			return fmt.Errorf("failed to record bucket user %s: %w", granularity, err)
		}
	}

	result, err = tx.Exec(ctx, `
		UPDATE whitelist_entries
		SET last_used = $1, total_gas_used = total_gas_used + $2
		WHERE sponsor_address = lower($3) AND user_address = lower($4)
	`, at, gasCost, sponsorAddress, userAddress)
	if err != nil {
		return fmt.Errorf("failed to update whitelist usage: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrWhitelistEntryNotFound
	}

	return tx.Commit(ctx)
}

// QuerySpendLedger returns up to limit buckets for one granularity, ordered
// most-recent-last. The read is side-effect free and safely restartable.
func (r *PostgresRepository) QuerySpendLedger(ctx context.Context, sponsorAddress string, granularity domain.Granularity, limit int) ([]domain.SpendLedgerEntry, error) {
	query := `
		SELECT l.sponsor_address, l.granularity, l.bucket_start, l.gas_cost, l.transactions,
		       (SELECT COUNT(*) FROM spend_ledger_users u
		        WHERE u.sponsor_address = l.sponsor_address AND u.granularity = l.granularity AND u.bucket_start = l.bucket_start)
		FROM (
			SELECT sponsor_address, granularity, bucket_start, gas_cost, transactions
			FROM spend_ledger
			WHERE sponsor_address = lower($1) AND granularity = $2
			ORDER BY bucket_start DESC
			LIMIT $3
		) l
		ORDER BY l.bucket_start ASC
	`
	rows, err := r.db.Query(ctx, query, sponsorAddress, string(granularity), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query spend ledger: %w", err)
	}
	defer rows.Close()

	var entries []domain.SpendLedgerEntry
	for rows.Next() {
		var entry domain.SpendLedgerEntry
		var granularityStr string
		if err := rows.Scan(&entry.SponsorAddress, &granularityStr, &entry.BucketStart, &entry.GasCost, &entry.Transactions, &entry.UniqueUsers); err != nil {
			return nil, err
		}
		entry.Granularity = domain.Granularity(granularityStr)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// GetBucketSpend returns the accumulated gas cost for one bucket, zero when
// the bucket has not been created yet.
func (r *PostgresRepository) GetBucketSpend(ctx context.Context, sponsorAddress string, granularity domain.Granularity, bucketStart time.Time) (decimal.Decimal, error) {
	var spent decimal.Decimal
	err := r.db.QueryRow(ctx, `
		SELECT gas_cost FROM spend_ledger
		WHERE sponsor_address = lower($1) AND granularity = $2 AND bucket_start = $3
	`, sponsorAddress, string(granularity), bucketStart).Scan(&spent)
	if err != nil {
		if err == pgx.ErrNoRows {
			return decimal.Zero, nil
		}
		return decimal.Zero, err
	}
	return spent, nil
}

// CreateFlaggedTransaction inserts a compliance review queue item.
func (r *PostgresRepository) CreateFlaggedTransaction(ctx context.Context, flag *domain.FlaggedTransaction) error {
	query := `
		INSERT INTO flagged_transactions (id, escrow_id, user_address, amount, reason, severity, status, created_at)
		VALUES ($1, $2, lower($3), $4, $5, $6, $7, $8)
	`
	_, err := r.db.Exec(ctx, query,
		flag.ID, flag.EscrowID, flag.UserAddress, flag.Amount, flag.Reason, flag.Severity, flag.Status, flag.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to create flagged transaction: %w", err)
	}
	return nil
}

// ListFlaggedTransactions returns queue items newest-first, optionally filtered.
func (r *PostgresRepository) ListFlaggedTransactions(ctx context.Context, filters domain.FlaggedTransactionFilters) ([]domain.FlaggedTransaction, error) {
	query := `SELECT id, escrow_id, user_address, amount, reason, severity, status, created_at FROM flagged_transactions WHERE 1=1`
	args := []interface{}{}
	if filters.Status != "" {
		args = append(args, filters.Status)
		query += fmt.Sprintf(` AND status = $%d`, len(args))
	}
	if filters.Severity != "" {
		args = append(args, filters.Severity)
		query += fmt.Sprintf(` AND severity = $%d`, len(args))
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list flagged transactions: %w", err)
	}
	defer rows.Close()

	var flags []domain.FlaggedTransaction
	for rows.Next() {
		var flag domain.FlaggedTransaction
		if err := rows.Scan(&flag.ID, &flag.EscrowID, &flag.UserAddress, &flag.Amount, &flag.Reason, &flag.Severity, &flag.Status, &flag.Timestamp); err != nil {
			return nil, err
		}
		flags = append(flags, flag)
	}
	return flags, rows.Err()
}

// UpdateFlaggedTransactionStatus moves a queue item to a new review status.
func (r *PostgresRepository) UpdateFlaggedTransactionStatus(ctx context.Context, id uuid.UUID, status string) error {
	result, err := r.db.Exec(ctx,
		`UPDATE flagged_transactions SET status = $1 WHERE id = $2`, status, id)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrFlagNotFound
	}
	return nil
}

// MarkEscrowRevoked records the terminal revocation of an escrow.
func (r *PostgresRepository) MarkEscrowRevoked(ctx context.Context, escrowID, actor string, reason *string) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO revoked_escrows (escrow_id, actor, reason, revoked_at) VALUES ($1, $2, $3, NOW())`,
		escrowID, actor, reason)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrEscrowAlreadyRevoked
		}
		return fmt.Errorf("failed to mark escrow revoked: %w", err)
	}
	return nil
}

// MarkUserFrozen records the terminal freeze of a user address.
func (r *PostgresRepository) MarkUserFrozen(ctx context.Context, userAddress, actor string, reason *string) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO frozen_users (user_address, actor, reason, frozen_at) VALUES (lower($1), $2, $3, NOW())`,
		userAddress, actor, reason)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrUserAlreadyFrozen
		}
		return fmt.Errorf("failed to mark user frozen: %w", err)
	}
	return nil
}

// IsUserFrozen reports whether a user address has been frozen by compliance.
func (r *PostgresRepository) IsUserFrozen(ctx context.Context, userAddress string) (bool, error) {
	var frozen bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM frozen_users WHERE user_address = lower($1))`, userAddress).Scan(&frozen)
	if err != nil {
		return false, err
	}
	return frozen, nil
}

// AppendAuditLog writes one append-only audit record.
func (r *PostgresRepository) AppendAuditLog(ctx context.Context, entry domain.AuditLogEntry) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO audit_log (id, actor, action, target, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, entry.ID, entry.Actor, entry.Action, entry.Target, entry.Reason, entry.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to append audit log: %w", err)
	}
	return nil
}

// ListAuditLog returns the most recent audit records for a target.
func (r *PostgresRepository) ListAuditLog(ctx context.Context, target string, limit int) ([]domain.AuditLogEntry, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, actor, action, target, reason, created_at
		FROM audit_log
		WHERE target = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, target, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit log: %w", err)
	}
	defer rows.Close()

	var entries []domain.AuditLogEntry
	for rows.Next() {
		var entry domain.AuditLogEntry
		if err := rows.Scan(&entry.ID, &entry.Actor, &entry.Action, &entry.Target, &entry.Reason, &entry.Timestamp); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
