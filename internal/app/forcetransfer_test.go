package app

import (
	"context"
	"errors"
	"testing"

	"github.com/escrowd/sponsorship-service/internal/domain"
)

func workflowSponsor(t *testing.T, balance string) *domain.SponsorAccount {
	t.Helper()
	return &domain.SponsorAccount{
		Address:       "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		Name:          "Acme Corp",
		Balance:       mustDecimal(t, balance),
		MaxDailySpend: mustDecimal(t, "10"),
		IsActive:      true,
	}
}

func validTransferRequest() domain.ForceTransferRequest {
	return domain.ForceTransferRequest{
		SponsorAddress: "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		ToAddress:      "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb",
		Amount:         "5",
		Reason:         "compliance seizure, case 8812",
	}
}

func TestForceTransferWorkflowHappyPath(t *testing.T) {
	w := NewForceTransferWorkflow(workflowSponsor(t, "100"))

	if w.State() != StateDetails {
		t.Fatalf("expected initial state %q, got %q", StateDetails, w.State())
	}
	if err := w.SubmitDetails(validTransferRequest()); err != nil {
		t.Fatalf("submit details: %v", err)
	}
	if w.State() != StateReview {
		t.Fatalf("expected state %q after submit, got %q", StateReview, w.State())
	}
	if err := w.Advance(); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if w.State() != StateConfirm {
		t.Fatalf("expected state %q after advance, got %q", StateConfirm, w.State())
	}

	result, err := w.Execute(context.Background(), domain.RoleAdmin, func(ctx context.Context, payload forceTransferPayload) (string, error) {
		if payload.ToAddress != "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb" {
			t.Errorf("unexpected destination %q", payload.ToAddress)
		}
		if !payload.Amount.Equal(mustDecimal(t, "5")) {
			t.Errorf("unexpected amount %s", payload.Amount)
		}
		return "relay-123", nil
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if w.State() != StateCompleted {
		t.Errorf("expected terminal state %q, got %q", StateCompleted, w.State())
	}
	if result.Status != string(StateCompleted) {
		t.Errorf("expected result status %q, got %q", StateCompleted, result.Status)
	}
	if result.RelayID == nil || *result.RelayID != "relay-123" {
		t.Errorf("expected relay id relay-123, got %v", result.RelayID)
	}
}

func TestForceTransferWorkflowCollectsAllFieldErrors(t *testing.T) {
	w := NewForceTransferWorkflow(workflowSponsor(t, "100"))

	err := w.SubmitDetails(domain.ForceTransferRequest{
		ToAddress: "not-an-address",
		Amount:    "-1",
		Reason:    "   ",
	})
	if err == nil {
		t.Fatal("expected validation failure")
	}

	var fieldErrs ValidationErrors
	if !errors.As(err, &fieldErrs) {
		t.Fatalf("expected ValidationErrors, got %T", err)
	}
	if len(fieldErrs) != 3 {
		t.Fatalf("expected 3 field errors, got %d: %v", len(fieldErrs), fieldErrs)
	}
	fields := map[string]bool{}
	for _, fe := range fieldErrs {
		fields[fe.Field] = true
	}
	for _, want := range []string{"to_address", "amount", "reason"} {
		if !fields[want] {
			t.Errorf("missing field error for %q", want)
		}
	}
	if w.State() != StateDetails {
		t.Errorf("invalid input must keep the workflow in %q, got %q", StateDetails, w.State())
	}
}

func TestForceTransferWorkflowRejectsOverdraw(t *testing.T) {
	w := NewForceTransferWorkflow(workflowSponsor(t, "3"))

	req := validTransferRequest() // amount 5 against balance 3
	err := w.SubmitDetails(req)
	if err == nil {
		t.Fatal("expected validation failure")
	}
	var fieldErrs ValidationErrors
	if !errors.As(err, &fieldErrs) {
		t.Fatalf("expected ValidationErrors, got %T", err)
	}
	if len(fieldErrs) != 1 || fieldErrs[0].Field != "amount" {
		t.Fatalf("expected a single amount error, got %v", fieldErrs)
	}
	if w.State() != StateDetails {
		t.Errorf("expected state %q, got %q", StateDetails, w.State())
	}
}

func TestForceTransferWorkflowBackKeepsPayload(t *testing.T) {
	w := NewForceTransferWorkflow(workflowSponsor(t, "100"))
	if err := w.SubmitDetails(validTransferRequest()); err != nil {
		t.Fatalf("submit details: %v", err)
	}
	if err := w.Back(); err != nil {
		t.Fatalf("back: %v", err)
	}
	if w.State() != StateDetails {
		t.Fatalf("expected state %q, got %q", StateDetails, w.State())
	}
	// Resubmitting after editing works from Details again.
	if err := w.SubmitDetails(validTransferRequest()); err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if w.State() != StateReview {
		t.Errorf("expected state %q, got %q", StateReview, w.State())
	}
}

func TestForceTransferWorkflowInvalidTransitions(t *testing.T) {
	w := NewForceTransferWorkflow(workflowSponsor(t, "100"))

	if err := w.Advance(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("advance from details: expected ErrInvalidTransition, got %v", err)
	}
	if err := w.Back(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("back from details: expected ErrInvalidTransition, got %v", err)
	}
	if _, err := w.Execute(context.Background(), domain.RoleAdmin, nil); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("execute from details: expected ErrInvalidTransition, got %v", err)
	}

	if err := w.SubmitDetails(validTransferRequest()); err != nil {
		t.Fatalf("submit details: %v", err)
	}
	if err := w.SubmitDetails(validTransferRequest()); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("submit from review: expected ErrInvalidTransition, got %v", err)
	}
}

func TestForceTransferWorkflowExecuteRequiresAdmin(t *testing.T) {
	for _, role := range []string{domain.RoleOperator, domain.RoleViewer, ""} {
		w := NewForceTransferWorkflow(workflowSponsor(t, "100"))
		if err := w.SubmitDetails(validTransferRequest()); err != nil {
			t.Fatalf("submit details: %v", err)
		}
		if err := w.Advance(); err != nil {
			t.Fatalf("advance: %v", err)
		}

		executed := false
		_, err := w.Execute(context.Background(), role, func(ctx context.Context, payload forceTransferPayload) (string, error) {
			executed = true
			return "", nil
		})
		if !errors.Is(err, ErrAdminRoleRequired) {
			t.Errorf("role %q: expected ErrAdminRoleRequired, got %v", role, err)
		}
		if executed {
			t.Errorf("role %q: executor must not run for a non-admin actor", role)
		}
		if w.State() != StateConfirm {
			t.Errorf("role %q: expected state %q after refusal, got %q", role, StateConfirm, w.State())
		}
	}
}

func TestForceTransferWorkflowFailedExecutionReturnsToConfirm(t *testing.T) {
	w := NewForceTransferWorkflow(workflowSponsor(t, "100"))
	if err := w.SubmitDetails(validTransferRequest()); err != nil {
		t.Fatalf("submit details: %v", err)
	}
	if err := w.Advance(); err != nil {
		t.Fatalf("advance: %v", err)
	}

	relayErr := errors.New("relay unavailable")
	result, err := w.Execute(context.Background(), domain.RoleAdmin, func(ctx context.Context, payload forceTransferPayload) (string, error) {
		return "", relayErr
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.Status != string(StateFailed) {
		t.Errorf("expected result status %q, got %q", StateFailed, result.Status)
	}
	if result.Error == nil {
		t.Error("expected the execution error to be surfaced in the result")
	}
	if w.State() != StateConfirm {
		t.Errorf("expected the machine back in %q for a retry, got %q", StateConfirm, w.State())
	}
	if !errors.Is(w.LastError(), relayErr) {
		t.Errorf("expected last error %v, got %v", relayErr, w.LastError())
	}

	// A retry from Confirm can then succeed.
	result, err = w.Execute(context.Background(), domain.RoleAdmin, func(ctx context.Context, payload forceTransferPayload) (string, error) {
		return "relay-456", nil
	})
	if err != nil {
		t.Fatalf("retry execute: %v", err)
	}
	if result.Status != string(StateCompleted) {
		t.Errorf("expected retry status %q, got %q", StateCompleted, result.Status)
	}
	if w.LastError() != nil {
		t.Errorf("expected last error cleared after success, got %v", w.LastError())
	}
}

func TestForceTransferWorkflowCancel(t *testing.T) {
	// Cancellable from every pre-execution state.
	for _, prep := range []struct {
		name  string
		setup func(w *ForceTransferWorkflow) error
	}{
		{name: "details", setup: func(w *ForceTransferWorkflow) error { return nil }},
		{name: "review", setup: func(w *ForceTransferWorkflow) error { return w.SubmitDetails(validTransferRequest()) }},
		{name: "confirm", setup: func(w *ForceTransferWorkflow) error {
			if err := w.SubmitDetails(validTransferRequest()); err != nil {
				return err
			}
			return w.Advance()
		}},
	} {
		t.Run(prep.name, func(t *testing.T) {
			w := NewForceTransferWorkflow(workflowSponsor(t, "100"))
			if err := prep.setup(w); err != nil {
				t.Fatalf("setup: %v", err)
			}
			if err := w.Cancel(); err != nil {
				t.Fatalf("cancel: %v", err)
			}
			if w.State() != StateCancelled {
				t.Errorf("expected state %q, got %q", StateCancelled, w.State())
			}
		})
	}

	// Once completed, cancellation is refused.
	t.Run("completed", func(t *testing.T) {
		w := NewForceTransferWorkflow(workflowSponsor(t, "100"))
		if err := w.SubmitDetails(validTransferRequest()); err != nil {
			t.Fatalf("submit details: %v", err)
		}
		if err := w.Advance(); err != nil {
			t.Fatalf("advance: %v", err)
		}
		if _, err := w.Execute(context.Background(), domain.RoleAdmin, func(ctx context.Context, payload forceTransferPayload) (string, error) {
			return "relay-789", nil
		}); err != nil {
			t.Fatalf("execute: %v", err)
		}
		if err := w.Cancel(); !errors.Is(err, ErrWorkflowNotCancellable) {
			t.Errorf("expected ErrWorkflowNotCancellable, got %v", err)
		}
	})
}
