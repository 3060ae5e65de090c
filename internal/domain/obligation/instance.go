package obligation

import (
	"strings"
	"time"

	"github.com/contabil/fiscore/pkg/errors"
	"github.com/contabil/fiscore/pkg/types/common"
)

// ─────────────────────────────────────────────────────────────────────────────
// InstanceStatus enumeration
// ─────────────────────────────────────────────────────────────────────────────

// InstanceStatus is the lifecycle state of one obligation instance.
//
// The pending/due_48h/overdue distinction is a derived view of
// (now, internal_target_at); only "done-ness" is authoritative state.
type InstanceStatus string

const (
	// StatusPending: more than 48 hours remain before the internal target.
	StatusPending InstanceStatus = "pending"

	// StatusDue48h: the internal target is within the next 48 hours.
	StatusDue48h InstanceStatus = "due_48h"

	// StatusOverdue: the internal target has passed without completion.
	StatusOverdue InstanceStatus = "overdue"

	// StatusOnTimeDone: completed on or before the internal target.
	StatusOnTimeDone InstanceStatus = "on_time_done"

	// StatusLateDone: completed after the internal target.
	StatusLateDone InstanceStatus = "late_done"
)

// IsDone reports whether the status is a completion variant.
func (s InstanceStatus) IsDone() bool {
	return s == StatusOnTimeDone || s == StatusLateDone
}

// DueSoonWindow is how far ahead of the internal target an instance is
// flagged as due_48h.
const DueSoonWindow = 48 * time.Hour

// MinCompletionNotesLen is the minimum length of manually supplied
// completion notes.
const MinCompletionNotesLen = 10

// CascadeCompletionNote is the fixed note recorded when a document
// classification completes an instance automatically.
const CascadeCompletionNote = "Concluída automaticamente via classificação de documento"

// CompletionSource records what triggered a completion transition.
type CompletionSource string

const (
	CompletionManual  CompletionSource = "manual"
	CompletionCascade CompletionSource = "cascade"
)

// ─────────────────────────────────────────────────────────────────────────────
// Instance entity
// ─────────────────────────────────────────────────────────────────────────────

// Instance is one occurrence of an obligation for one client in one
// competence period.  Instances are never deleted; they are the historical
// record of fiscal compliance.
type Instance struct {
	ID           common.ID    `json:"id"`
	OrgID        common.OrgID `json:"org_id"`
	ClientID     common.ID    `json:"client_id"`
	ObligationID common.ID    `json:"obligation_id"`
	Competence   Competence   `json:"competence"`

	// DueAt is the external legal deadline.
	DueAt time.Time `json:"due_at"`

	// InternalTargetAt is the internal deadline; derived at creation and
	// never mutated afterward.  Always <= DueAt.
	InternalTargetAt time.Time `json:"internal_target_at"`

	// Status is the persisted status cache; ResolveStatus recomputes it on
	// read, and a periodic sweep keeps the column eagerly consistent for
	// query filters.
	Status InstanceStatus `json:"status"`

	CompletedAt      *time.Time       `json:"completed_at,omitempty"`
	CompletionNotes  string           `json:"completion_notes,omitempty"`
	CompletionSource CompletionSource `json:"completion_source,omitempty"`

	// NotifiedDueDay guards against duplicate due-day reminder sends.  The
	// flag is owned by the external notifier; only its storage lives here.
	NotifiedDueDay bool `json:"notified_due_day"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewInstance creates a pending instance for one (client, obligation,
// competence) tuple.  Deadlines must come from ComputeDeadlines so the
// InternalTargetAt <= DueAt invariant holds.
func NewInstance(orgID common.OrgID, clientID, obligationID common.ID, competence Competence, deadlines Deadlines, now time.Time) (*Instance, error) {
	if err := competence.Validate(); err != nil {
		return nil, err
	}
	if deadlines.InternalTargetAt.After(deadlines.DueAt) {
		return nil, errors.New(errors.ErrCodeScheduleRuleInvalid,
			"internal target must be on or before the legal due date")
	}

	inst := &Instance{
		ID:               common.NewID(),
		OrgID:            orgID,
		ClientID:         clientID,
		ObligationID:     obligationID,
		Competence:       competence,
		DueAt:            deadlines.DueAt,
		InternalTargetAt: deadlines.InternalTargetAt,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	inst.Status = inst.ResolveStatus(now)
	return inst, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Derived status
// ─────────────────────────────────────────────────────────────────────────────

// ResolveStatus computes the status as a pure function of
// (now, InternalTargetAt, CompletedAt).  Completion is authoritative; the
// time buckets are derived and stable under repeated evaluation.
func (i *Instance) ResolveStatus(now time.Time) InstanceStatus {
	if i.CompletedAt != nil {
		if !i.CompletedAt.After(i.InternalTargetAt) {
			return StatusOnTimeDone
		}
		return StatusLateDone
	}
	return timeBucket(now, i.InternalTargetAt)
}

// timeBucket maps (now, target) onto the pending/due_48h/overdue view.
func timeBucket(now, target time.Time) InstanceStatus {
	if now.After(target) {
		return StatusOverdue
	}
	if target.Sub(now) <= DueSoonWindow {
		return StatusDue48h
	}
	return StatusPending
}

// RefreshStatus recomputes and stores the derived status.  Returns true when
// the cached column changed, so sweeps can persist only real transitions.
func (i *Instance) RefreshStatus(now time.Time) bool {
	next := i.ResolveStatus(now)
	if next == i.Status {
		return false
	}
	i.Status = next
	i.UpdatedAt = now
	return true
}

// ─────────────────────────────────────────────────────────────────────────────
// Completion transitions
// ─────────────────────────────────────────────────────────────────────────────

// CompleteManually marks the instance done with staff-supplied notes.
// Rejected when the instance is already done or when the trimmed notes are
// shorter than MinCompletionNotesLen.
func (i *Instance) CompleteManually(now time.Time, notes string) error {
	if i.CompletedAt != nil {
		return errors.New(errors.ErrCodeInstanceAlreadyDone,
			"obligation instance is already completed")
	}
	if len(strings.TrimSpace(notes)) < MinCompletionNotesLen {
		return errors.New(errors.ErrCodeCompletionNotesTooShort,
			"completion notes must be at least 10 characters")
	}
	i.complete(now, strings.TrimSpace(notes), CompletionManual)
	return nil
}

// CompleteFromClassification marks the instance done as a side effect of a
// document promotion.  Completing an already-done instance is a no-op so the
// cascade stays idempotent.
func (i *Instance) CompleteFromClassification(now time.Time) {
	if i.CompletedAt != nil {
		return
	}
	i.complete(now, CascadeCompletionNote, CompletionCascade)
}

func (i *Instance) complete(now time.Time, notes string, source CompletionSource) {
	completedAt := now
	i.CompletedAt = &completedAt
	i.CompletionNotes = notes
	i.CompletionSource = source
	if !now.After(i.InternalTargetAt) {
		i.Status = StatusOnTimeDone
	} else {
		i.Status = StatusLateDone
	}
	i.UpdatedAt = now
}

// Unmark reverses a completion: clears completion state and recomputes the
// time bucket fresh from now.  Rejected when the instance is not done.
func (i *Instance) Unmark(now time.Time) error {
	if i.CompletedAt == nil {
		return errors.New(errors.ErrCodeInstanceNotDone,
			"obligation instance is not completed")
	}
	i.CompletedAt = nil
	i.CompletionNotes = ""
	i.CompletionSource = ""
	i.Status = timeBucket(now, i.InternalTargetAt)
	i.UpdatedAt = now
	return nil
}

// MarkNotifiedDueDay records that the due-day reminder was sent.
func (i *Instance) MarkNotifiedDueDay(now time.Time) {
	i.NotifiedDueDay = true
	i.UpdatedAt = now
}
