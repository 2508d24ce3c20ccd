package models

import (
	"testing"
	"time"
)

func taskWithStatus(id string, status TaskStatus) *Task {
	now := time.Now()
	return &Task{
		ID:        id,
		Title:     "t " + id,
		Type:      TaskTypeTask,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestComputeEpicStatus(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name    string
		epic    Epic
		members []*Task
		want    EpicStatus
	}{
		{
			name: "no members is planning",
			epic: Epic{ID: "e-000001"},
			want: EpicStatusPlanning,
		},
		{
			name:    "open member is in progress",
			epic:    Epic{ID: "e-000001"},
			members: []*Task{taskWithStatus("f-000001", TaskStatusOpen)},
			want:    EpicStatusInProgress,
		},
		{
			name: "all closed is review pending",
			epic: Epic{ID: "e-000001"},
			members: []*Task{
				taskWithStatus("f-000001", TaskStatusClosed),
				taskWithStatus("f-000002", TaskStatusClosed),
			},
			want: EpicStatusReviewPending,
		},
		{
			name: "cancelled member blocks review pending",
			epic: Epic{ID: "e-000001"},
			members: []*Task{
				taskWithStatus("f-000001", TaskStatusClosed),
				taskWithStatus("f-000002", TaskStatusCancelled),
			},
			want: EpicStatusInProgress,
		},
		{
			name:    "approved wins over everything",
			epic:    Epic{ID: "e-000001", ApprovedAt: &now, ReviewedAt: &now},
			members: []*Task{taskWithStatus("f-000001", TaskStatusOpen)},
			want:    EpicStatusApproved,
		},
		{
			name:    "changes requested with quiet members",
			epic:    Epic{ID: "e-000001", ChangesRequestedAt: &now},
			members: []*Task{taskWithStatus("f-000001", TaskStatusClosed)},
			want:    EpicStatusChangesRequested,
		},
		{
			name:    "changes requested with active member reverts to in progress",
			epic:    Epic{ID: "e-000001", ChangesRequestedAt: &now},
			members: []*Task{taskWithStatus("f-000001", TaskStatusOpen)},
			want:    EpicStatusInProgress,
		},
		{
			name:    "reviewed flag",
			epic:    Epic{ID: "e-000001", ReviewedAt: &now},
			members: []*Task{taskWithStatus("f-000001", TaskStatusClosed)},
			want:    EpicStatusReviewed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeEpicStatus(&tt.epic, tt.members)
			if got != tt.want {
				t.Errorf("ComputeEpicStatus() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTaskStatusValid(t *testing.T) {
	for _, s := range []TaskStatus{TaskStatusOpen, TaskStatusInProgress, TaskStatusClosed, TaskStatusCancelled} {
		if !s.Valid() {
			t.Errorf("status %q should be valid", s)
		}
	}
	if TaskStatus("done").Valid() {
		t.Error("status \"done\" should be invalid")
	}
}

func TestTaskLabels(t *testing.T) {
	task := taskWithStatus("f-000001", TaskStatusOpen)
	task.AddLabel("backend")
	task.AddLabel("backend")
	task.AddLabel(LabelNeedsHuman)

	if len(task.Labels) != 2 {
		t.Fatalf("expected 2 labels, got %d: %v", len(task.Labels), task.Labels)
	}
	if !task.HasLabel(LabelNeedsHuman) {
		t.Error("expected needs-human label")
	}
	if task.HasLabel("frontend") {
		t.Error("unexpected frontend label")
	}
}
