package domain

import "context"

// Filter narrows case listings. Zero values mean "no constraint".
type Filter struct {
	AreaID    int64
	VictimaID int64
	Status    CaseStatus
}

// Repository defines case persistence operations.
type Repository interface {
	// CreateOrReuse inserts a draft for the case's victim, or returns the
	// victim's already-open case when one exists. The returned flag is
	// true when an existing case was reused; c is overwritten with the
	// persisted row either way.
	CreateOrReuse(ctx context.Context, c *Case) (reused bool, err error)

	GetByID(ctx context.Context, id int64) (*Case, error)
	List(ctx context.Context, filter Filter) ([]*Case, error)

	// UpdateDraft persists intake fields, selections and child records.
	// The write is conditional on estado = borrador so an edit racing a
	// submit cannot land on a frozen case.
	UpdateDraft(ctx context.Context, c *Case) error

	// Delete removes a draft and its owned records. Conditional on
	// estado = borrador for the same reason as UpdateDraft.
	Delete(ctx context.Context, id int64) error

	// ApplyTransition performs the state write and the history append in
	// one transaction. The update is conditional on the entry's
	// from-state; if zero rows match on a live case the transition lost a
	// race and ErrStaleState is returned.
	ApplyTransition(ctx context.Context, entry *HistoryEntry) error

	History(ctx context.Context, caseID int64) ([]*HistoryEntry, error)

	// LatestReturn returns the most recent coordination-return entry for
	// the case, or nil when the case was never returned.
	LatestReturn(ctx context.Context, caseID int64) (*HistoryEntry, error)
}
