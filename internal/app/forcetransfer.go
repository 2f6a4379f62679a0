/**
 * @description
 * The force-transfer workflow: a guarded, multi-step state machine for an
 * administrator to move funds out of a sponsor's balance to an arbitrary
 * address, with mandatory justification and audit logging.
 *
 * States: Details -> Review -> Confirm -> Executing -> {Completed, Failed}.
 * Invalid input keeps the machine in Details and surfaces field-level
 * validation errors; it never silently advances. Review can go back to Details
 * without clearing the collected payload. Only an admin actor may trigger
 * Confirm -> Executing, and cancellation is refused once execution starts so a
 * transfer can never be abandoned mid-flight. An execution error reports a
 * failed run and returns the machine to Confirm with the sponsor balance
 * untouched.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/escrowd/sponsorship-service/internal/domain"
)

// ForceTransferState names one state of the workflow.
type ForceTransferState string

const (
	StateDetails   ForceTransferState = "details"
	StateReview    ForceTransferState = "review"
	StateConfirm   ForceTransferState = "confirm"
	StateExecuting ForceTransferState = "executing"
	StateCompleted ForceTransferState = "completed"
	StateFailed    ForceTransferState = "failed"
	StateCancelled ForceTransferState = "cancelled"
)

var (
	ErrAdminRoleRequired      = errors.New("admin role required")
	ErrInvalidTransition      = errors.New("invalid workflow transition")
	ErrWorkflowNotCancellable = errors.New("workflow can no longer be cancelled")
)

// ValidationErrors aggregates field-level failures from the Details step.
type ValidationErrors []*ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, 0, len(e))
	for _, v := range e {
		msgs = append(msgs, v.Error())
	}
	return strings.Join(msgs, "; ")
}

// forceTransferPayload holds the validated inputs collected in Details.
type forceTransferPayload struct {
	ToAddress      string
	Amount         decimal.Decimal
	Reason         string
	ComplianceCase *string
}

// forceTransferExecutor performs the irreversible transfer: relay call, guarded
// debit, audit record. It is supplied by the service so the machine itself
// stays free of storage and transport concerns.
type forceTransferExecutor func(ctx context.Context, payload forceTransferPayload) (relayID string, err error)

// ForceTransferWorkflow drives one force transfer from input collection to a
// terminal state. A workflow instance is not safe for concurrent use; it
// models a single administrator's dialog.
type ForceTransferWorkflow struct {
	state   ForceTransferState
	sponsor *domain.SponsorAccount
	payload forceTransferPayload
	lastErr error
}

// NewForceTransferWorkflow starts a workflow in Details against a snapshot of
// the sponsor being drained.
func NewForceTransferWorkflow(sponsor *domain.SponsorAccount) *ForceTransferWorkflow {
	return &ForceTransferWorkflow{state: StateDetails, sponsor: sponsor}
}

// State reports the current workflow state.
func (w *ForceTransferWorkflow) State() ForceTransferState { return w.state }

// LastError reports the error surfaced by the most recent failed execution.
func (w *ForceTransferWorkflow) LastError() error { return w.lastErr }

// SubmitDetails validates the collected inputs. On success the machine moves
// to Review; on any failure it stays in Details and returns every offending
// field so the form can surface them together.
func (w *ForceTransferWorkflow) SubmitDetails(req domain.ForceTransferRequest) error {
	if w.state != StateDetails {
		return fmt.Errorf("%w: submit details from %s", ErrInvalidTransition, w.state)
	}

	var fieldErrs ValidationErrors
	payload := forceTransferPayload{ComplianceCase: req.ComplianceCase}

	toAddress, err := normalizeAddress("to_address", req.ToAddress)
	if err != nil {
		fieldErrs = append(fieldErrs, err.(*ValidationError))
	} else {
		payload.ToAddress = toAddress
	}

	amount, err := parsePositiveAmount("amount", req.Amount)
	if err != nil {
		fieldErrs = append(fieldErrs, err.(*ValidationError))
	} else if amount.GreaterThan(w.sponsor.Balance) {
		fieldErrs = append(fieldErrs, &ValidationError{Field: "amount", Message: "exceeds sponsor balance"})
	} else {
		payload.Amount = amount
	}

	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		fieldErrs = append(fieldErrs, &ValidationError{Field: "reason", Message: "is required"})
	} else {
		payload.Reason = reason
	}

	if len(fieldErrs) > 0 {
		return fieldErrs
	}

	w.payload = payload
	w.state = StateReview
	return nil
}

// Advance moves Review -> Confirm. It is a pure forward transition over the
// already-validated payload; no server call happens here.
func (w *ForceTransferWorkflow) Advance() error {
	if w.state != StateReview {
		return fmt.Errorf("%w: advance from %s", ErrInvalidTransition, w.state)
	}
	w.state = StateConfirm
	return nil
}

// Back re-enters edit mode from Review without clearing the form.
func (w *ForceTransferWorkflow) Back() error {
	if w.state != StateReview {
		return fmt.Errorf("%w: back from %s", ErrInvalidTransition, w.state)
	}
	w.state = StateDetails
	return nil
}

// Cancel abandons the workflow. Permitted from any state prior to Executing;
// once execution starts the operation must run to a terminal state.
func (w *ForceTransferWorkflow) Cancel() error {
	switch w.state {
	case StateDetails, StateReview, StateConfirm:
		w.state = StateCancelled
		return nil
	default:
		return ErrWorkflowNotCancellable
	}
}

// Execute runs Confirm -> Executing -> {Completed, Failed}. Only an admin
// actor may trigger it; non-admin attempts fail closed and leave the machine
// in Confirm. On an execution error the run reports Failed, the machine
// returns to Confirm with the error surfaced, and the executor guarantees the
// balance was not debited.
func (w *ForceTransferWorkflow) Execute(ctx context.Context, actorRole string, exec forceTransferExecutor) (*domain.ForceTransferResult, error) {
	if w.state != StateConfirm {
		return nil, fmt.Errorf("%w: execute from %s", ErrInvalidTransition, w.state)
	}
	if actorRole != domain.RoleAdmin {
		return nil, ErrAdminRoleRequired
	}

	w.state = StateExecuting
	relayID, err := exec(ctx, w.payload)
	if err != nil {
		w.lastErr = err
		w.state = StateConfirm
		msg := err.Error()
		return &domain.ForceTransferResult{Status: string(StateFailed), Amount: w.payload.Amount, Error: &msg}, nil
	}

	w.lastErr = nil
	w.state = StateCompleted
	return &domain.ForceTransferResult{Status: string(StateCompleted), Amount: w.payload.Amount, RelayID: &relayID}, nil
}
