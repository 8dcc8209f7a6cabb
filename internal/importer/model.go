package importer

import (
	"time"

	"github.com/timmy/geoimport/internal/reader"
)

// ContextState is the lifecycle state of an import context.
type ContextState string

const (
	ContextPending    ContextState = "PENDING"
	ContextRunning    ContextState = "RUNNING"
	ContextComplete   ContextState = "COMPLETE"
	ContextIncomplete ContextState = "INCOMPLETE"
	ContextError      ContextState = "ERROR"
)

// ItemState is the state of one discovered resource.
type ItemState string

const (
	ItemNoFormat   ItemState = "NO_FORMAT"
	ItemNoCRS      ItemState = "NO_CRS"
	ItemIncomplete ItemState = "INCOMPLETE"
	ItemReady      ItemState = "READY"
	ItemComplete   ItemState = "COMPLETE"
	ItemError      ItemState = "ERROR"
)

// Terminal reports whether no transition leaves s.
func (s ItemState) Terminal() bool {
	return s == ItemComplete || s == ItemError || s == ItemNoFormat
}

// Blocked reports whether s waits for client input.
func (s ItemState) Blocked() bool {
	return s == ItemNoCRS || s == ItemIncomplete
}

// TaskState is derived from the states of a task's items.
type TaskState string

const (
	TaskReady      TaskState = "READY"
	TaskIncomplete TaskState = "INCOMPLETE"
	TaskComplete   TaskState = "COMPLETE"
	TaskError      TaskState = "ERROR"
)

// deriveTaskState: blocked items dominate, then failed ones, then progress.
func deriveTaskState(states []ItemState) TaskState {
	failed, complete := false, 0
	for _, s := range states {
		switch {
		case s.Blocked():
			return TaskIncomplete
		case s == ItemError || s == ItemNoFormat:
			failed = true
		case s == ItemComplete:
			complete++
		}
	}
	switch {
	case failed:
		return TaskError
	case complete == len(states):
		return TaskComplete
	default:
		return TaskReady
	}
}

// TargetSpec names the catalog workspace and store a context imports into.
// Empty fields fall back to the catalog default workspace and a per-format
// store.
type TargetSpec struct {
	Workspace string `json:"workspace,omitempty"`
	Store     string `json:"store,omitempty"`
}

// SourceKind describes what a task was created from.
type SourceKind string

const (
	SourceFile      SourceKind = "file"
	SourceDirectory SourceKind = "directory"
	SourceArchive   SourceKind = "archive"
)

// Source is the input of AddTask.
type Source struct {
	Path string `json:"path"`
	// Name labels the task; defaults to the base name of Path.
	Name string `json:"name,omitempty"`
	// OwnedDir, typically the upload directory holding Path, is handed to
	// the task once AddTask succeeds and deleted with the context.
	OwnedDir string `json:"-"`
}

// Target is where an item is committed.
type Target struct {
	Workspace string `json:"workspace"`
	Store     string `json:"store"`
	Layer     string `json:"layer"`
	Style     string `json:"style"`
}

// ItemPatch is a partial update of an item. Nil fields are left unchanged.
// An empty Store reverts to the per-format default store and an empty Style
// to the default style.
type ItemPatch struct {
	SRS       *string `json:"srs,omitempty"`
	Layer     *string `json:"layer,omitempty"`
	Style     *string `json:"style,omitempty"`
	Workspace *string `json:"workspace,omitempty"`
	Store     *string `json:"store,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p ItemPatch) Empty() bool {
	return p.SRS == nil && p.Layer == nil && p.Style == nil && p.Workspace == nil && p.Store == nil
}

// RunSummary describes one finished commit pass.
type RunSummary struct {
	ContextID  int64        `json:"context_id"`
	State      ContextState `json:"state"`
	Committed  int          `json:"committed"`
	Failed     int          `json:"failed"`
	Blocked    int          `json:"blocked"`
	Errors     []string     `json:"errors,omitempty"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
}

// ItemSnapshot is a read-only copy of an item.
type ItemSnapshot struct {
	ID         int              `json:"id"`
	ContextID  int64            `json:"context_id"`
	TaskID     int              `json:"task_id"`
	State      ItemState        `json:"state"`
	Resource   *reader.Resource `json:"resource,omitempty"`
	Target     Target           `json:"target"`
	Transforms []string         `json:"transforms,omitempty"`
	Errors     []RecordedError  `json:"errors,omitempty"`
}

// TaskSnapshot is a read-only copy of a task and its items.
type TaskSnapshot struct {
	ID        int            `json:"id"`
	ContextID int64          `json:"context_id"`
	Name      string         `json:"name"`
	Kind      SourceKind     `json:"kind"`
	State     TaskState      `json:"state"`
	Items     []ItemSnapshot `json:"items"`
}

// ContextSnapshot is a read-only copy of a context and everything it owns.
type ContextSnapshot struct {
	ID        int64          `json:"id"`
	State     ContextState   `json:"state"`
	Target    TargetSpec     `json:"target"`
	Tasks     []TaskSnapshot `json:"tasks"`
	LastRun   *RunSummary    `json:"last_run,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}
