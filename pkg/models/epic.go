package models

import "time"

// EpicStatus is the derived state of an epic. It is computed from the
// epic's review/approval flags and its member tasks, and never stored.
type EpicStatus string

const (
	// EpicStatusPlanning indicates the epic has no member tasks yet.
	EpicStatusPlanning EpicStatus = "planning"
	// EpicStatusInProgress indicates at least one member is open or in progress.
	EpicStatusInProgress EpicStatus = "in_progress"
	// EpicStatusReviewPending indicates every member task is closed.
	EpicStatusReviewPending EpicStatus = "review_pending"
	// EpicStatusReviewed indicates a reviewer has looked at the epic.
	EpicStatusReviewed EpicStatus = "reviewed"
	// EpicStatusChangesRequested indicates review feedback is outstanding.
	EpicStatusChangesRequested EpicStatus = "changes_requested"
	// EpicStatusApproved indicates the epic passed review.
	EpicStatusApproved EpicStatus = "approved"
)

// Epic is a named grouping of tasks whose completion status is derived
// from its members.
type Epic struct {
	// ID is the unique identifier, "e-" followed by 6 hex characters.
	ID string `json:"id"`
	// Title is the short description of the epic.
	Title string `json:"title"`
	// Description provides detailed information about the epic.
	Description string `json:"description,omitempty"`
	// CreatedAt is when the epic was created.
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt is when the epic was last modified.
	UpdatedAt time.Time `json:"updated_at"`
	// ReviewedAt is when the epic was last reviewed, if ever.
	ReviewedAt *time.Time `json:"reviewed_at,omitempty"`
	// ApprovedAt is when the epic was approved, if ever.
	ApprovedAt *time.Time `json:"approved_at,omitempty"`
	// ApprovedBy names the approver.
	ApprovedBy string `json:"approved_by,omitempty"`
	// ChangesRequestedAt is when a reviewer last requested changes.
	ChangesRequestedAt *time.Time `json:"changes_requested_at,omitempty"`
}

// ComputeEpicStatus derives the epic's status from its flags and member
// tasks. Approval wins over everything; an outstanding change request
// reverts to in_progress while members are being reworked.
func ComputeEpicStatus(e *Epic, members []*Task) EpicStatus {
	if e.ApprovedAt != nil {
		return EpicStatusApproved
	}

	anyActive := false
	allClosed := len(members) > 0
	for _, m := range members {
		switch m.Status {
		case TaskStatusOpen, TaskStatusInProgress:
			anyActive = true
			allClosed = false
		case TaskStatusCancelled:
			allClosed = false
		}
	}

	if e.ChangesRequestedAt != nil {
		if anyActive {
			return EpicStatusInProgress
		}
		return EpicStatusChangesRequested
	}
	if e.ReviewedAt != nil {
		return EpicStatusReviewed
	}
	if len(members) == 0 {
		return EpicStatusPlanning
	}
	if anyActive {
		return EpicStatusInProgress
	}
	if allClosed {
		return EpicStatusReviewPending
	}
	return EpicStatusInProgress
}
