package core

import (
	"context"
	"slices"
	"time"
)

// RecordStore defines the interface for durable record tracking.
type RecordStore interface {
	Close() error

	RegisterIfAbsent(ctx context.Context, records []*Record) (RegisterResult, error)
	GetByID(ctx context.Context, id string) (*Record, error)
	GetByIdentifier(ctx context.Context, identifier string) (*Record, error)
	UpdateStatus(ctx context.Context, update StatusUpdate) error
	BatchUpdateStatus(ctx context.Context, updates []StatusUpdate) (BatchResult, error)
	QueryByStatus(ctx context.Context, statuses ...RecordStatus) ([]*Record, error)
	CountsByStatus(ctx context.Context) (map[RecordStatus]int, error)
	CountsByKind(ctx context.Context) (map[string]int, error)
	ClearAll(ctx context.Context) error
}

// RecordStatus represents the lifecycle status of a record.
type RecordStatus string

// Record status constants.
const (
	StatusPending     RecordStatus = "pending"
	StatusProcessing  RecordStatus = "processing"
	StatusSuccess     RecordStatus = "success"
	StatusFailed      RecordStatus = "failed"
	StatusReprocessed RecordStatus = "reprocessed"
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []RecordStatus{StatusPending, StatusProcessing, StatusSuccess, StatusFailed, StatusReprocessed}

// transitions maps a target status to the statuses it may be entered from.
// Re-entering the current status is always allowed.
var transitions = map[RecordStatus][]RecordStatus{
	StatusPending:     {},
	StatusProcessing:  {StatusPending, StatusSuccess, StatusFailed, StatusReprocessed},
	StatusSuccess:     {StatusProcessing},
	StatusFailed:      {StatusProcessing},
	StatusReprocessed: {StatusSuccess, StatusFailed},
}

// Valid reports whether s is a known status.
func (s RecordStatus) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// AllowedFrom returns the statuses a record may hold before moving to s,
// including s itself.
func (s RecordStatus) AllowedFrom() []RecordStatus {
	from, ok := transitions[s]
	if !ok {
		return nil
	}
	return append([]RecordStatus{s}, from...)
}

// CanTransition reports whether a record may move from one status to another.
func CanTransition(from, to RecordStatus) bool {
	return slices.Contains(to.AllowedFrom(), from)
}

// Record is the durable state of one source row.
type Record struct {
	ID              string
	SourceRowIndex  int
	Status          RecordStatus
	NodeKind        string
	Action          string
	Identifier      string
	OutputNode      string
	ErrorMessage    string
	OutputBatchFile string
	LastAttemptAt   *time.Time
	RawRow          RawRow
}

// StatusUpdate is a partial update of a record.
// Empty optional fields keep their stored value. ErrorMessage is always
// written, so an empty value clears a previous error.
type StatusUpdate struct {
	ID     string
	Status RecordStatus

	NodeKind        string
	Action          string
	Identifier      string
	OutputNode      string
	OutputBatchFile string

	ErrorMessage string
}

// RegisterResult counts the outcome of RegisterIfAbsent.
type RegisterResult struct {
	Inserted       int
	AlreadyPresent int
}

// BatchResult counts the outcome of BatchUpdateStatus.
// NotFound and Rejected are accounting signals, not failures.
type BatchResult struct {
	Updated  int
	NotFound int
	// Rejected counts updates refused because the transition is not allowed.
	Rejected int
}
