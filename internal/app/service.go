/**
 * @description
 * This file contains the core business logic for the sponsorship-service. The
 * `Service` struct orchestrates sponsor administration, whitelist mutations,
 * authorization decisions with atomic settlement, force transfers, and the
 * compliance review queue, coordinating between the database repository, the
 * on-chain relay client, and the message broker.
 *
 * Key features:
 * - Role checks happen exactly once here; handlers thread the actor and role
 *   through and never re-implement authorization per endpoint.
 * - All balance-affecting operations on one sponsor run under that sponsor's
 *   lock, so concurrent requests can never jointly overdraw the account.
 * - Every administrative mutation is attributable: an append-only audit record
 *   is written and an event is published for downstream consumers.
 *
 * @dependencies
 * - context, errors, fmt, log, time: Standard Go libraries.
 * - github.com/google/uuid: For audit and flag identifiers.
 * - github.com/shopspring/decimal: Exact monetary arithmetic.
 * - internal/domain, internal/store: For domain models and data access.
 * - pkg/relayclient, pkg/rabbitmq: For external service communication.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/escrowd/sponsorship-service/internal/domain"
	"github.com/escrowd/sponsorship-service/internal/store"
	"github.com/escrowd/sponsorship-service/pkg/rabbitmq"
	"github.com/escrowd/sponsorship-service/pkg/relayclient"
)

// EventsExchange is the topic exchange all sponsorship events are published to.
const EventsExchange = "sponsorship.events"

var (
	ErrRoleNotAllowed   = errors.New("actor role not permitted for this action")
	ErrTermsNotAccepted = &ValidationError{Field: "terms_accepted", Message: "terms must be accepted"}
)

// ExecutionError wraps a failure of the underlying fund-movement step. The
// sponsor balance is guaranteed untouched when one is returned.
type ExecutionError struct {
	Err error
}

func (e *ExecutionError) Error() string { return fmt.Sprintf("execution failed: %v", e.Err) }
func (e *ExecutionError) Unwrap() error { return e.Err }

// RelayClient is the part of the relay API the service depends on.
type RelayClient interface {
	Transfer(ctx context.Context, fromAddress, toAddress, amount, reason string) (*relayclient.TransferResponse, error)
}

// Service provides the core business logic for gas sponsorship.
type Service struct {
	repo          store.Repository
	relay         RelayClient
	eventProducer rabbitmq.Publisher
	idempotency   SettlementIdempotencyCache
	locks         *sponsorLocks
	bucketLoc     *time.Location
	relayTimeout  time.Duration
}

// NewService creates a new sponsorship service instance. bucketLoc is the
// reference timezone for ledger buckets; nil means UTC.
func NewService(repo store.Repository, relay RelayClient, producer rabbitmq.Publisher, bucketLoc *time.Location, relayTimeout time.Duration) *Service {
	if bucketLoc == nil {
		bucketLoc = time.UTC
	}
	if relayTimeout <= 0 {
		relayTimeout = 30 * time.Second
	}
	return &Service{
		repo:          repo,
		relay:         relay,
		eventProducer: producer,
		locks:         newSponsorLocks(),
		bucketLoc:     bucketLoc,
		relayTimeout:  relayTimeout,
	}
}

// SetSettlementIdempotencyCache installs the optional duplicate-settlement guard.
func (s *Service) SetSettlementIdempotencyCache(cache SettlementIdempotencyCache) {
	s.idempotency = cache
}

func requireRole(actorRole string, allowed ...string) error {
	for _, role := range allowed {
		if actorRole == role {
			return nil
		}
	}
	if len(allowed) == 1 && allowed[0] == domain.RoleAdmin {
		return ErrAdminRoleRequired
	}
	return ErrRoleNotAllowed
}

func (s *Service) audit(ctx context.Context, actor, action, target string, reason *string) {
	entry := domain.AuditLogEntry{
		ID:        uuid.New(),
		Actor:     actor,
		Action:    action,
		Target:    target,
		Reason:    reason,
		Timestamp: time.Now().UTC(),
	}
	if err := s.repo.AppendAuditLog(ctx, entry); err != nil {
		log.Printf("level=error component=app msg=\"audit append failed\" action=%s target=%s err=%v", action, target, err)
	}
}

func (s *Service) publish(ctx context.Context, routingKey string, event rabbitmq.SponsorshipEvent) {
	if s.eventProducer == nil {
		return
	}
	event.Timestamp = time.Now().UTC()
	if err := s.eventProducer.Publish(ctx, EventsExchange, routingKey, event); err != nil {
		log.Printf("level=warn component=app msg=\"event publish failed\" routing_key=%s err=%v", routingKey, err)
	}
}

// CreateSponsor registers a new gas sponsor. It fails with a ValidationError
// on malformed address/amount input or unaccepted terms, and with
// store.ErrSponsorExists on a duplicate address.
func (s *Service) CreateSponsor(ctx context.Context, actor, actorRole string, req domain.CreateSponsorRequest) (*domain.SponsorAccount, error) {
	if err := requireRole(actorRole, domain.RoleAdmin); err != nil {
		return nil, err
	}
	if !req.TermsAccepted {
		return nil, ErrTermsNotAccepted
	}
	if req.Name == "" {
		return nil, &ValidationError{Field: "name", Message: "is required"}
	}
	address, err := normalizeAddress("address", req.Address)
	if err != nil {
		return nil, err
	}
	maxDailySpend, err := parseNonNegativeAmount("max_daily_spend", req.MaxDailySpend)
	if err != nil {
		return nil, err
	}
	initialBalance := decimal.Zero
	if req.InitialBalance != "" {
		initialBalance, err = parseNonNegativeAmount("initial_balance", req.InitialBalance)
		if err != nil {
			return nil, err
		}
	}

	sponsor := &domain.SponsorAccount{
		Address:       address,
		Name:          req.Name,
		Email:         req.Email,
		Company:       req.Company,
		Balance:       initialBalance,
		MaxDailySpend: maxDailySpend,
		TotalSpent:    decimal.Zero,
		IsActive:      true,
		KYCVerified:   req.KYCVerified,
	}
	if err := s.repo.CreateSponsor(ctx, sponsor); err != nil {
		return nil, err
	}

	s.audit(ctx, actor, "sponsor.created", address, nil)
	s.publish(ctx, "sponsor.created", rabbitmq.SponsorshipEvent{SponsorAddress: address, Actor: actor})
	return sponsor, nil
}

// GetAllSponsors lists sponsors, optionally filtered by active state.
func (s *Service) GetAllSponsors(ctx context.Context, filters domain.SponsorListFilters) ([]domain.SponsorAccount, error) {
	return s.repo.ListSponsors(ctx, filters)
}

// GetSponsorStatus returns the sponsor, its whitelisted users, and analytics.
func (s *Service) GetSponsorStatus(ctx context.Context, address string) (*domain.SponsorStatus, error) {
	normalized, err := normalizeAddress("address", address)
	if err != nil {
		return nil, err
	}
	sponsor, err := s.repo.FindSponsorByAddress(ctx, normalized)
	if err != nil {
		return nil, err
	}
	entries, err := s.repo.ListWhitelistEntries(ctx, normalized)
	if err != nil {
		return nil, err
	}
	users := make([]string, 0, len(entries))
	for _, entry := range entries {
		users = append(users, entry.UserAddress)
	}

	analytics, err := s.buildAnalytics(ctx, sponsor, len(entries))
	if err != nil {
		return nil, err
	}

	return &domain.SponsorStatus{Sponsor: sponsor, WhitelistedUsers: users, Analytics: *analytics}, nil
}

func (s *Service) buildAnalytics(ctx context.Context, sponsor *domain.SponsorAccount, whitelistSize int) (*domain.GasAnalytics, error) {
	now := time.Now()
	today := domain.BucketStart(domain.GranularityDaily, now, s.bucketLoc)
	spentToday, err := s.repo.GetBucketSpend(ctx, sponsor.Address, domain.GranularityDaily, today)
	if err != nil {
		return nil, fmt.Errorf("failed to read today's spend: %w", err)
	}

	daily, err := s.repo.QuerySpendLedger(ctx, sponsor.Address, domain.GranularityDaily, 30)
	if err != nil {
		return nil, err
	}
	weekly, err := s.repo.QuerySpendLedger(ctx, sponsor.Address, domain.GranularityWeekly, 12)
	if err != nil {
		return nil, err
	}
	monthly, err := s.repo.QuerySpendLedger(ctx, sponsor.Address, domain.GranularityMonthly, 12)
	if err != nil {
		return nil, err
	}

	return &domain.GasAnalytics{
		TotalSpent:    sponsor.TotalSpent,
		SpentToday:    spentToday,
		Daily:         daily,
		Weekly:        weekly,
		Monthly:       monthly,
		WhitelistSize: whitelistSize,
	}, nil
}

// WhitelistUser adds a user address to a sponsor's whitelist and returns the
// updated membership. Every mutation is attributable via the actor.
func (s *Service) WhitelistUser(ctx context.Context, actor, actorRole, sponsorAddress string, req domain.WhitelistUserRequest) ([]string, error) {
	if err := requireRole(actorRole, domain.RoleAdmin, domain.RoleOperator); err != nil {
		return nil, err
	}
	sponsorAddr, err := normalizeAddress("sponsor_address", sponsorAddress)
	if err != nil {
		return nil, err
	}
	userAddr, err := normalizeAddress("user_address", req.UserAddress)
	if err != nil {
		return nil, err
	}
	trustScore := domain.DefaultTrustScore
	if req.TrustScore != nil {
		trustScore = *req.TrustScore
	}
	if err := validateTrustScore(trustScore); err != nil {
		return nil, err
	}
	if _, err := s.repo.FindSponsorByAddress(ctx, sponsorAddr); err != nil {
		return nil, err
	}

	entry := &domain.WhitelistEntry{
		SponsorAddress: sponsorAddr,
		UserAddress:    userAddr,
		AddedBy:        actor,
		Reason:         req.Reason,
		TrustScore:     trustScore,
	}
	if err := s.repo.UpsertWhitelistEntry(ctx, entry); err != nil {
		return nil, err
	}

	s.audit(ctx, actor, "whitelist.added", fmt.Sprintf("%s/%s", sponsorAddr, userAddr), req.Reason)
	s.publish(ctx, "sponsor.whitelist.added", rabbitmq.SponsorshipEvent{SponsorAddress: sponsorAddr, UserAddress: userAddr, Actor: actor})
	return s.whitelistAddresses(ctx, sponsorAddr)
}

// RemoveWhitelistedUser hard-deletes a whitelist entry and returns the updated
// membership.
func (s *Service) RemoveWhitelistedUser(ctx context.Context, actor, actorRole, sponsorAddress, userAddress string) ([]string, error) {
	if err := requireRole(actorRole, domain.RoleAdmin, domain.RoleOperator); err != nil {
		return nil, err
	}
	sponsorAddr, err := normalizeAddress("sponsor_address", sponsorAddress)
	if err != nil {
		return nil, err
	}
	userAddr, err := normalizeAddress("user_address", userAddress)
	if err != nil {
		return nil, err
	}
	if err := s.repo.DeleteWhitelistEntry(ctx, sponsorAddr, userAddr); err != nil {
		return nil, err
	}

	s.audit(ctx, actor, "whitelist.removed", fmt.Sprintf("%s/%s", sponsorAddr, userAddr), nil)
	s.publish(ctx, "sponsor.whitelist.removed", rabbitmq.SponsorshipEvent{SponsorAddress: sponsorAddr, UserAddress: userAddr, Actor: actor})
	return s.whitelistAddresses(ctx, sponsorAddr)
}

func (s *Service) whitelistAddresses(ctx context.Context, sponsorAddress string) ([]string, error) {
	entries, err := s.repo.ListWhitelistEntries(ctx, sponsorAddress)
	if err != nil {
		return nil, err
	}
	addresses := make([]string, 0, len(entries))
	for _, entry := range entries {
		addresses = append(addresses, entry.UserAddress)
	}
	return addresses, nil
}

// Authorize decides whether a sponsor covers the proposed gas cost and, on
// ALLOW, settles atomically: balance debit, lifetime total, ledger postings,
// and whitelist usage stats, all in one database transaction under the
// sponsor's lock.
func (s *Service) Authorize(ctx context.Context, req domain.AuthorizeRequest) (domain.AuthorizationResult, error) {
	return s.authorizeAt(ctx, req, time.Now())
}

func (s *Service) authorizeAt(ctx context.Context, req domain.AuthorizeRequest, at time.Time) (domain.AuthorizationResult, error) {
	var result domain.AuthorizationResult

	sponsorAddr, err := normalizeAddress("sponsor_address", req.SponsorAddress)
	if err != nil {
		return result, err
	}
	userAddr, err := normalizeAddress("user_address", req.UserAddress)
	if err != nil {
		return result, err
	}
	gasCost, err := parsePositiveAmount("proposed_gas_cost", req.ProposedGasCost)
	if err != nil {
		return result, err
	}

	// Steps 3-5 of the decision plus the settlement must be atomic per
	// sponsor: two concurrent requests must not both pass the balance check
	// and jointly overdraw the account.
	err = s.locks.withLock(sponsorAddr, func() error {
		sponsor, findErr := s.repo.FindSponsorByAddress(ctx, sponsorAddr)
		if findErr != nil {
			if errors.Is(findErr, store.ErrSponsorNotFound) {
				result = domain.AuthorizationResult{Decision: domain.DecisionDeny, Code: domain.CodeSponsorInactive}
				return nil
			}
			return findErr
		}

		isWhitelisted := true
		if _, wlErr := s.repo.FindWhitelistEntry(ctx, sponsorAddr, userAddr); wlErr != nil {
			if !errors.Is(wlErr, store.ErrWhitelistEntryNotFound) {
				return wlErr
			}
			isWhitelisted = false
		}

		today := domain.BucketStart(domain.GranularityDaily, at, s.bucketLoc)
		spentToday, spendErr := s.repo.GetBucketSpend(ctx, sponsorAddr, domain.GranularityDaily, today)
		if spendErr != nil {
			return spendErr
		}

		result = evaluatePolicy(policyInput{
			Sponsor:       sponsor,
			IsWhitelisted: isWhitelisted,
			SpentToday:    spentToday,
			ProposedCost:  gasCost,
		})
		if result.Decision != domain.DecisionAllow {
			return nil
		}

		// A repeated transaction reference means this event already settled;
		// report ALLOW without double-posting.
		claimed := false
		if s.idempotency != nil && req.TxRef != "" {
			won, idemErr := s.idempotency.MarkSettled(ctx, sponsorAddr, req.TxRef)
			if idemErr != nil {
				return idemErr
			}
			if !won {
				result.Settled = false
				return nil
			}
			claimed = true
		}

		buckets := make(map[domain.Granularity]time.Time, len(domain.AllGranularities))
		for _, granularity := range domain.AllGranularities {
			buckets[granularity] = domain.BucketStart(granularity, at, s.bucketLoc)
		}
		if settleErr := s.repo.SettleSponsorship(ctx, sponsorAddr, userAddr, gasCost, at, buckets); settleErr != nil {
			// The settlement did not commit, so the reference must become
			// claimable again or a retry would report ALLOW over a posting
			// that never happened.
			if claimed {
				if relErr := s.idempotency.Release(ctx, sponsorAddr, req.TxRef); relErr != nil {
					log.Printf("level=error component=app msg=\"settlement claim release failed; reference blocked until TTL expiry\" sponsor=%s tx_ref=%s err=%v",
						sponsorAddr, req.TxRef, relErr)
				}
			}
			if errors.Is(settleErr, store.ErrInsufficientBalance) {
				// Lost a race with an out-of-band debit; soft-decline.
				result = domain.AuthorizationResult{Decision: domain.DecisionFallback, Code: domain.CodeInsufficientBalance}
				return nil
			}
			return settleErr
		}
		result.Settled = true
		return nil
	})
	if err != nil {
		return domain.AuthorizationResult{}, err
	}

	if result.Decision == domain.DecisionFallback {
		s.publish(ctx, "sponsor.authorization.fallback", rabbitmq.SponsorshipEvent{
			SponsorAddress: sponsorAddr,
			UserAddress:    userAddr,
			Amount:         gasCost,
			Code:           string(result.Code),
		})
	}
	return result, nil
}

// ForceTransfer drives the full force-transfer workflow for one request:
// validation, review, confirmation, and execution against the relay. The
// returned result is terminal (completed or failed); validation and role
// failures are returned as errors instead.
func (s *Service) ForceTransfer(ctx context.Context, actor, actorRole string, req domain.ForceTransferRequest) (*domain.ForceTransferResult, error) {
	sponsorAddr, err := normalizeAddress("sponsor_address", req.SponsorAddress)
	if err != nil {
		return nil, err
	}

	var result *domain.ForceTransferResult
	err = s.locks.withLock(sponsorAddr, func() error {
		sponsor, findErr := s.repo.FindSponsorByAddress(ctx, sponsorAddr)
		if findErr != nil {
			return findErr
		}

		workflow := NewForceTransferWorkflow(sponsor)
		if submitErr := workflow.SubmitDetails(req); submitErr != nil {
			return submitErr
		}
		if advErr := workflow.Advance(); advErr != nil {
			return advErr
		}

		execResult, execErr := workflow.Execute(ctx, actorRole, func(ctx context.Context, payload forceTransferPayload) (string, error) {
			return s.executeForceTransfer(ctx, actor, sponsorAddr, payload)
		})
		if execErr != nil {
			return execErr
		}
		result = execResult
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// executeForceTransfer performs the irreversible step: relay call with a
// bounded deadline, then the guarded balance debit and the audit record. The
// debit only happens after the relay accepted the transfer, so a relay failure
// or timeout leaves the balance untouched.
func (s *Service) executeForceTransfer(ctx context.Context, actor, sponsorAddress string, payload forceTransferPayload) (string, error) {
	relayCtx, cancel := context.WithTimeout(ctx, s.relayTimeout)
	defer cancel()

	resp, err := s.relay.Transfer(relayCtx, sponsorAddress, payload.ToAddress, payload.Amount.String(), payload.Reason)
	if err != nil {
		s.publish(ctx, "sponsor.force_transfer.failed", rabbitmq.SponsorshipEvent{
			SponsorAddress: sponsorAddress,
			Actor:          actor,
			Amount:         payload.Amount,
			Reason:         payload.Reason,
		})
		return "", &ExecutionError{Err: err}
	}

	if err := s.repo.DebitSponsorBalance(ctx, sponsorAddress, payload.Amount); err != nil {
		// The relay already moved the funds; the ledger debit must not be
		// dropped silently.
		log.Printf("level=error component=app msg=\"CRITICAL: relay transfer executed but sponsor debit failed\" sponsor=%s amount=%s relay_id=%s err=%v",
			sponsorAddress, payload.Amount.String(), resp.ID, err)
		return "", &ExecutionError{Err: err}
	}

	reason := payload.Reason
	target := fmt.Sprintf("%s->%s", sponsorAddress, payload.ToAddress)
	s.audit(ctx, actor, "sponsor.force_transfer", target, &reason)
	s.publish(ctx, "sponsor.force_transfer.completed", rabbitmq.SponsorshipEvent{
		SponsorAddress: sponsorAddress,
		UserAddress:    payload.ToAddress,
		Actor:          actor,
		Amount:         payload.Amount,
		Reason:         payload.Reason,
	})
	return resp.ID, nil
}

// TopUpSponsor credits a sponsor's balance. Admin only; audited.
func (s *Service) TopUpSponsor(ctx context.Context, actor, actorRole, address, amount string) (*domain.SponsorAccount, error) {
	if err := requireRole(actorRole, domain.RoleAdmin); err != nil {
		return nil, err
	}
	sponsorAddr, err := normalizeAddress("address", address)
	if err != nil {
		return nil, err
	}
	credit, err := parsePositiveAmount("amount", amount)
	if err != nil {
		return nil, err
	}

	var sponsor *domain.SponsorAccount
	err = s.locks.withLock(sponsorAddr, func() error {
		if creditErr := s.repo.CreditSponsorBalance(ctx, sponsorAddr, credit); creditErr != nil {
			return creditErr
		}
		var findErr error
		sponsor, findErr = s.repo.FindSponsorByAddress(ctx, sponsorAddr)
		return findErr
	})
	if err != nil {
		return nil, err
	}

	s.audit(ctx, actor, "sponsor.topup", sponsorAddr, nil)
	s.publish(ctx, "sponsor.topup", rabbitmq.SponsorshipEvent{SponsorAddress: sponsorAddr, Actor: actor, Amount: credit})
	return sponsor, nil
}

// DeactivateSponsor turns off sponsorship without removing history.
func (s *Service) DeactivateSponsor(ctx context.Context, actor, actorRole, address string) error {
	if err := requireRole(actorRole, domain.RoleAdmin); err != nil {
		return err
	}
	sponsorAddr, err := normalizeAddress("address", address)
	if err != nil {
		return err
	}
	if err := s.repo.SetSponsorActive(ctx, sponsorAddr, false); err != nil {
		return err
	}
	s.audit(ctx, actor, "sponsor.deactivated", sponsorAddr, nil)
	return nil
}

// ReactivateSponsor re-enables a previously deactivated sponsor.
func (s *Service) ReactivateSponsor(ctx context.Context, actor, actorRole, address string) error {
	if err := requireRole(actorRole, domain.RoleAdmin); err != nil {
		return err
	}
	sponsorAddr, err := normalizeAddress("address", address)
	if err != nil {
		return err
	}
	if err := s.repo.SetSponsorActive(ctx, sponsorAddr, true); err != nil {
		return err
	}
	s.audit(ctx, actor, "sponsor.reactivated", sponsorAddr, nil)
	return nil
}

// RemoveSponsor is terminal: the sponsor is detached from its whitelist and
// can never be reactivated.
func (s *Service) RemoveSponsor(ctx context.Context, actor, actorRole, address string) error {
	if err := requireRole(actorRole, domain.RoleAdmin); err != nil {
		return err
	}
	sponsorAddr, err := normalizeAddress("address", address)
	if err != nil {
		return err
	}
	if err := s.repo.RemoveSponsor(ctx, sponsorAddr); err != nil {
		return err
	}
	s.audit(ctx, actor, "sponsor.removed", sponsorAddr, nil)
	s.publish(ctx, "sponsor.removed", rabbitmq.SponsorshipEvent{SponsorAddress: sponsorAddr, Actor: actor})
	return nil
}

// GetSpendLedger returns up to limit buckets for a sponsor, most-recent-last.
func (s *Service) GetSpendLedger(ctx context.Context, address string, granularity domain.Granularity, limit int) ([]domain.SpendLedgerEntry, error) {
	sponsorAddr, err := normalizeAddress("address", address)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 365 {
		limit = 30
	}
	return s.repo.QuerySpendLedger(ctx, sponsorAddr, granularity, limit)
}

// FlagTransaction queues a compliance review item created by an external
// fraud/compliance detector.
func (s *Service) FlagTransaction(ctx context.Context, escrowID, userAddress, amount, reason, severity string) (*domain.FlaggedTransaction, error) {
	if escrowID == "" {
		return nil, &ValidationError{Field: "escrow_id", Message: "is required"}
	}
	userAddr, err := normalizeAddress("user_address", userAddress)
	if err != nil {
		return nil, err
	}
	flagAmount, err := parseNonNegativeAmount("amount", amount)
	if err != nil {
		return nil, err
	}
	switch severity {
	case domain.SeverityLow, domain.SeverityMedium, domain.SeverityHigh, domain.SeverityCritical:
	default:
		return nil, &ValidationError{Field: "severity", Message: "must be one of low, medium, high, critical"}
	}

	flag := &domain.FlaggedTransaction{
		ID:          uuid.New(),
		EscrowID:    escrowID,
		UserAddress: userAddr,
		Amount:      flagAmount,
		Reason:      reason,
		Severity:    severity,
		Status:      domain.FlagStatusPending,
		Timestamp:   time.Now().UTC(),
	}
	if err := s.repo.CreateFlaggedTransaction(ctx, flag); err != nil {
		return nil, err
	}
	return flag, nil
}

// ListFlagged returns compliance queue items, optionally filtered.
func (s *Service) ListFlagged(ctx context.Context, filters domain.FlaggedTransactionFilters) ([]domain.FlaggedTransaction, error) {
	return s.repo.ListFlaggedTransactions(ctx, filters)
}

// MarkReviewed moves a flagged transaction to reviewed. There are no
// automatic transitions; only explicit admin/operator action moves the queue.
func (s *Service) MarkReviewed(ctx context.Context, actor, actorRole string, id uuid.UUID) error {
	if err := requireRole(actorRole, domain.RoleAdmin, domain.RoleOperator); err != nil {
		return err
	}
	if err := s.repo.UpdateFlaggedTransactionStatus(ctx, id, domain.FlagStatusReviewed); err != nil {
		return err
	}
	s.audit(ctx, actor, "compliance.flag.reviewed", id.String(), nil)
	return nil
}

// MarkResolved closes out a flagged transaction.
func (s *Service) MarkResolved(ctx context.Context, actor, actorRole string, id uuid.UUID) error {
	if err := requireRole(actorRole, domain.RoleAdmin); err != nil {
		return err
	}
	if err := s.repo.UpdateFlaggedTransactionStatus(ctx, id, domain.FlagStatusResolved); err != nil {
		return err
	}
	s.audit(ctx, actor, "compliance.flag.resolved", id.String(), nil)
	return nil
}

// RevokeEscrow is a terminal compliance action. Insufficient role fails closed
// with no state change; success writes the revocation and its audit record.
func (s *Service) RevokeEscrow(ctx context.Context, actor, actorRole, escrowID string, reason *string) error {
	if err := requireRole(actorRole, domain.RoleAdmin); err != nil {
		return err
	}
	if escrowID == "" {
		return &ValidationError{Field: "escrow_id", Message: "is required"}
	}
	if err := s.repo.MarkEscrowRevoked(ctx, escrowID, actor, reason); err != nil {
		return err
	}
	s.audit(ctx, actor, "compliance.escrow.revoked", escrowID, reason)
	s.publish(ctx, "compliance.escrow.revoked", rabbitmq.SponsorshipEvent{Actor: actor, Reason: derefString(reason)})
	return nil
}

// FreezeUser is a terminal compliance action against a user address.
func (s *Service) FreezeUser(ctx context.Context, actor, actorRole, userAddress string, reason *string) error {
	if err := requireRole(actorRole, domain.RoleAdmin); err != nil {
		return err
	}
	userAddr, err := normalizeAddress("user_address", userAddress)
	if err != nil {
		return err
	}
	if err := s.repo.MarkUserFrozen(ctx, userAddr, actor, reason); err != nil {
		return err
	}
	s.audit(ctx, actor, "compliance.user.frozen", userAddr, reason)
	s.publish(ctx, "compliance.user.frozen", rabbitmq.SponsorshipEvent{UserAddress: userAddr, Actor: actor, Reason: derefString(reason)})
	return nil
}

// IsUserFrozen reports whether compliance has frozen a user address. The
// escrow pipeline consults this before accepting new activity from the user.
func (s *Service) IsUserFrozen(ctx context.Context, userAddress string) (bool, error) {
	userAddr, err := normalizeAddress("user_address", userAddress)
	if err != nil {
		return false, err
	}
	return s.repo.IsUserFrozen(ctx, userAddr)
}

// GetAuditLog returns recent audit records for a target.
func (s *Service) GetAuditLog(ctx context.Context, target string, limit int) ([]domain.AuditLogEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.repo.ListAuditLog(ctx, target, limit)
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
