package domain

import (
	"errors"
	"testing"

	"github.com/cavim/platform/internal/shared/auth"
	apperrors "github.com/cavim/platform/internal/shared/errors"
)

func operative(areaID int64) *auth.User {
	return &auth.User{ID: 10, Name: "Operativa", Role: auth.RoleOperative, AreaID: areaID}
}

func coordinator(areaID int64) *auth.User {
	return &auth.User{ID: 20, Name: "Coordinadora", Role: auth.RoleAreaCoordinator, AreaID: areaID}
}

func draftCase(t *testing.T) *Case {
	t.Helper()
	c, err := NewCase(1, 5, 10)
	if err != nil {
		t.Fatalf("NewCase failed: %v", err)
	}
	c.ID = 100
	return c
}

// TestNewCase tests creating a new case
func TestNewCase(t *testing.T) {
	c := draftCase(t)

	if c.Status != StatusDraft {
		t.Errorf("Expected status %s, got %s", StatusDraft, c.Status)
	}
	if c.VictimaID != 1 || c.AreaID != 5 || c.CreatedBy != 10 {
		t.Errorf("Unexpected case fields: %+v", c)
	}
}

// TestNewCaseValidation tests validation when creating a case
func TestNewCaseValidation(t *testing.T) {
	tests := []struct {
		name        string
		victimaID   int64
		areaID      int64
		expectError bool
	}{
		{"Zero victim", 0, 5, true},
		{"Zero area", 1, 0, true},
		{"Valid case", 1, 5, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCase(tt.victimaID, tt.areaID, 10)
			if tt.expectError && err == nil {
				t.Error("Expected error but got none")
			}
			if !tt.expectError && err != nil {
				t.Errorf("Expected no error but got: %v", err)
			}
		})
	}
}

// TestFullLifecycle walks the happy path and checks every history entry.
func TestFullLifecycle(t *testing.T) {
	c := draftCase(t)
	op := operative(5)
	coord := coordinator(5)

	steps := []struct {
		name string
		fn   func() (*HistoryEntry, error)
		from CaseStatus
		to   CaseStatus
	}{
		{"submit", func() (*HistoryEntry, error) { return c.Submit(op) }, StatusDraft, StatusPending},
		{"approve", func() (*HistoryEntry, error) { return c.Approve(coord, false) }, StatusPending, StatusValidated},
		{"start", func() (*HistoryEntry, error) { return c.StartWork(coord) }, StatusValidated, StatusInProgress},
		{"complete", func() (*HistoryEntry, error) { return c.Complete(coord) }, StatusInProgress, StatusCompleted},
	}

	for _, step := range steps {
		entry, err := step.fn()
		if err != nil {
			t.Fatalf("%s failed: %v", step.name, err)
		}
		if entry.FromStatus != step.from || entry.ToStatus != step.to {
			t.Errorf("%s: expected %s -> %s, got %s -> %s",
				step.name, step.from, step.to, entry.FromStatus, entry.ToStatus)
		}
		if entry.CaseID != c.ID {
			t.Errorf("%s: entry case id %d, want %d", step.name, entry.CaseID, c.ID)
		}
		if entry.CoordinationReturn {
			t.Errorf("%s: entry unexpectedly flagged as coordination return", step.name)
		}
		if c.Status != step.to {
			t.Errorf("%s: case status %s, want %s", step.name, c.Status, step.to)
		}
	}
}

// TestLegacyApproveTarget checks the enviado path behaves like validado.
func TestLegacyApproveTarget(t *testing.T) {
	c := draftCase(t)
	op := operative(5)
	coord := coordinator(5)

	if _, err := c.Submit(op); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	entry, err := c.Approve(coord, true)
	if err != nil {
		t.Fatalf("legacy approve failed: %v", err)
	}
	if entry.ToStatus != StatusSent {
		t.Errorf("Expected estado %s, got %s", StatusSent, entry.ToStatus)
	}

	// enviado admits start-work exactly like validado.
	if _, err := c.StartWork(coord); err != nil {
		t.Fatalf("start from enviado failed: %v", err)
	}
	if c.Status != StatusInProgress {
		t.Errorf("Expected status %s, got %s", StatusInProgress, c.Status)
	}
}

// TestReturnToDraft checks the coordination return carries its motive.
func TestReturnToDraft(t *testing.T) {
	c := draftCase(t)
	op := operative(5)
	coord := coordinator(5)

	if _, err := c.Submit(op); err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	entry, err := c.Return(coord, "faltan datos del agresor")
	if err != nil {
		t.Fatalf("return failed: %v", err)
	}
	if !entry.CoordinationReturn {
		t.Error("Expected coordination return flag on history entry")
	}
	if entry.Detail != "faltan datos del agresor" {
		t.Errorf("Unexpected detalle: %q", entry.Detail)
	}
	if c.Status != StatusDraft {
		t.Errorf("Expected status %s, got %s", StatusDraft, c.Status)
	}
	if !c.Editable() {
		t.Error("Returned case should be editable again")
	}

	// A returned draft can go around the loop again.
	if _, err := c.Submit(op); err != nil {
		t.Fatalf("resubmit failed: %v", err)
	}
}

// TestInvalidTransitions checks every event against every state it must
// reject from.
func TestInvalidTransitions(t *testing.T) {
	op := operative(5)
	coord := coordinator(5)

	events := map[Event]func(*Case) (*HistoryEntry, error){
		EventSubmit:    func(c *Case) (*HistoryEntry, error) { return c.Submit(op) },
		EventApprove:   func(c *Case) (*HistoryEntry, error) { return c.Approve(coord, false) },
		EventReturn:    func(c *Case) (*HistoryEntry, error) { return c.Return(coord, "motivo") },
		EventStartWork: func(c *Case) (*HistoryEntry, error) { return c.StartWork(coord) },
		EventComplete:  func(c *Case) (*HistoryEntry, error) { return c.Complete(coord) },
	}

	legalFrom := map[Event][]CaseStatus{
		EventSubmit:    {StatusDraft},
		EventApprove:   {StatusPending},
		EventReturn:    {StatusPending},
		EventStartWork: {StatusValidated, StatusSent},
		EventComplete:  {StatusInProgress},
	}

	allStates := []CaseStatus{
		StatusDraft, StatusPending, StatusInProgress,
		StatusValidated, StatusSent, StatusCompleted,
	}

	for event, fn := range events {
		for _, state := range allStates {
			legal := false
			for _, from := range legalFrom[event] {
				if from == state {
					legal = true
				}
			}
			if legal {
				continue
			}

			t.Run(string(event)+"_from_"+string(state), func(t *testing.T) {
				c := draftCase(t)
				c.Status = state

				_, err := fn(c)
				if err == nil {
					t.Fatalf("%s from %s should fail", event, state)
				}
				if !errors.Is(err, apperrors.ErrInvalidTransition) {
					t.Errorf("Expected invalid transition error, got %v", err)
				}
				if c.Status != state {
					t.Errorf("Failed transition mutated status to %s", c.Status)
				}
			})
		}
	}
}

// TestRoleGating checks role mismatches fail as authorization errors, even
// when the state would not admit the transition either.
func TestRoleGating(t *testing.T) {
	op := operative(5)
	coord := coordinator(5)
	general := &auth.User{ID: 1, Role: auth.RoleGeneralCoordinator}

	tests := []struct {
		name  string
		state CaseStatus
		fn    func(*Case) (*HistoryEntry, error)
	}{
		{"coordinator cannot submit", StatusDraft, func(c *Case) (*HistoryEntry, error) { return c.Submit(coord) }},
		{"operative cannot approve", StatusPending, func(c *Case) (*HistoryEntry, error) { return c.Approve(op, false) }},
		{"operative cannot return", StatusPending, func(c *Case) (*HistoryEntry, error) { return c.Return(op, "m") }},
		{"operative cannot start", StatusValidated, func(c *Case) (*HistoryEntry, error) { return c.StartWork(op) }},
		{"operative cannot complete", StatusInProgress, func(c *Case) (*HistoryEntry, error) { return c.Complete(op) }},
		{"general coordinator cannot approve", StatusPending, func(c *Case) (*HistoryEntry, error) { return c.Approve(general, false) }},
		// Role check comes first: wrong role on wrong state is still a 403.
		{"wrong role on wrong state", StatusCompleted, func(c *Case) (*HistoryEntry, error) { return c.Submit(coord) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := draftCase(t)
			c.Status = tt.state

			_, err := tt.fn(c)
			if err == nil {
				t.Fatal("Expected error but got none")
			}
			if !errors.Is(err, apperrors.ErrForbidden) {
				t.Errorf("Expected forbidden error, got %v", err)
			}
			if c.Status != tt.state {
				t.Errorf("Failed transition mutated status to %s", c.Status)
			}
		})
	}
}

// TestAreaBoundary checks transitions fail for actors outside the case's area.
func TestAreaBoundary(t *testing.T) {
	c := draftCase(t)

	if _, err := c.Submit(operative(6)); err == nil {
		t.Fatal("Submit from another area should fail")
	} else if !errors.Is(err, apperrors.ErrForbidden) {
		t.Errorf("Expected forbidden error, got %v", err)
	}

	c.Status = StatusPending
	if _, err := c.Approve(coordinator(6), false); err == nil {
		t.Fatal("Approve from another area should fail")
	} else if !errors.Is(err, apperrors.ErrForbidden) {
		t.Errorf("Expected forbidden error, got %v", err)
	}
}

// TestEditGuards checks edits and deletes against role and state.
func TestEditGuards(t *testing.T) {
	op := operative(5)
	coord := coordinator(5)

	tests := []struct {
		name    string
		state   CaseStatus
		actor   *auth.User
		fn      func(*Case, *auth.User) error
		wantErr error
	}{
		{"edit draft ok", StatusDraft, op, (*Case).AuthorizeEdit, nil},
		{"edit pending rejected", StatusPending, op, (*Case).AuthorizeEdit, apperrors.ErrInvalidTransition},
		{"edit completed rejected", StatusCompleted, op, (*Case).AuthorizeEdit, apperrors.ErrInvalidTransition},
		{"coordinator cannot edit", StatusDraft, coord, (*Case).AuthorizeEdit, apperrors.ErrForbidden},
		{"other area cannot edit", StatusDraft, operative(6), (*Case).AuthorizeEdit, apperrors.ErrForbidden},
		{"delete draft ok", StatusDraft, op, (*Case).AuthorizeDelete, nil},
		{"delete pending rejected", StatusPending, op, (*Case).AuthorizeDelete, apperrors.ErrInvalidTransition},
		{"delete completed rejected", StatusCompleted, op, (*Case).AuthorizeDelete, apperrors.ErrInvalidTransition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := draftCase(t)
			c.Status = tt.state

			err := tt.fn(c, tt.actor)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Expected no error but got: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

// TestCompletedIsTerminal checks nothing moves a completed case.
func TestCompletedIsTerminal(t *testing.T) {
	op := operative(5)
	coord := coordinator(5)

	c := draftCase(t)
	c.Status = StatusCompleted

	attempts := []func() (*HistoryEntry, error){
		func() (*HistoryEntry, error) { return c.Submit(op) },
		func() (*HistoryEntry, error) { return c.Approve(coord, false) },
		func() (*HistoryEntry, error) { return c.Return(coord, "m") },
		func() (*HistoryEntry, error) { return c.StartWork(coord) },
		func() (*HistoryEntry, error) { return c.Complete(coord) },
	}
	for i, fn := range attempts {
		if _, err := fn(); err == nil {
			t.Errorf("attempt %d: completed case accepted a transition", i)
		}
	}
	if c.Status != StatusCompleted {
		t.Errorf("Completed case changed state to %s", c.Status)
	}
}

func TestStatusValid(t *testing.T) {
	for _, s := range []CaseStatus{StatusDraft, StatusPending, StatusInProgress, StatusValidated, StatusSent, StatusCompleted} {
		if !s.Valid() {
			t.Errorf("%s should be valid", s)
		}
	}
	if CaseStatus("archivado").Valid() {
		t.Error("archivado should not be a valid state")
	}
}
