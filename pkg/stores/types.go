package stores

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// LoadStatus is the outcome of a load attempt.
type LoadStatus string

const (
	// LoadStatusSucceeded marks a tree that was built and passed policy checks.
	LoadStatusSucceeded LoadStatus = "succeeded"
	// LoadStatusFailed marks a load rejected by the loader.
	LoadStatusFailed LoadStatus = "failed"
	// LoadStatusDenied marks a tree rejected by a blocking policy violation.
	LoadStatusDenied LoadStatus = "denied"
)

// LoadRecord is one load attempt.
type LoadRecord struct {
	ID           string     `json:"id"`
	File         string     `json:"file"`
	Strict       bool       `json:"strict"`
	Status       LoadStatus `json:"status"`
	ErrorKind    *string    `json:"error_kind,omitempty"`
	Error        *string    `json:"error,omitempty"`
	Declarations int        `json:"declarations"`
	DurationMS   int64      `json:"duration_ms"`
	Templates    []string   `json:"templates"` // template files in effect, stored as a JSON array
	LoadedAt     time.Time  `json:"loaded_at"`
	Findings     []*Finding `json:"findings,omitempty"`
}

// NewLoadRecord returns a record with a fresh ID stamped with the current time.
func NewLoadRecord(file string, strict bool) *LoadRecord {
	return &LoadRecord{
		ID:        uuid.NewString(),
		File:      file,
		Strict:    strict,
		Status:    LoadStatusSucceeded,
		Templates: []string{},
		LoadedAt:  time.Now().UTC(),
	}
}

// Fail marks the record failed with the given kind and message.
func (r *LoadRecord) Fail(kind, msg string) {
	r.Status = LoadStatusFailed
	if kind != "" {
		r.ErrorKind = &kind
	}
	r.Error = &msg
}

// Finding is a policy violation or warning raised against a load.
type Finding struct {
	ID       int64  `json:"id"`
	LoadID   string `json:"load_id"`
	Policy   string `json:"policy"`
	Severity string `json:"severity"`
	Path     string `json:"path,omitempty"`
	Message  string `json:"message"`
	Line     int    `json:"line,omitempty"`
}

// LoadFilter selects records for ListLoads. Nil fields match everything.
type LoadFilter struct {
	File   *string
	Status *LoadStatus
	Limit  int `validate:"gte=0,lte=10000"`
	Offset int `validate:"gte=0"`
}

// Store defines the interface for the load history.
type Store interface {
	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	// Load history
	RecordLoad(ctx context.Context, rec *LoadRecord) error
	GetLoad(ctx context.Context, id string) (*LoadRecord, error)
	ListLoads(ctx context.Context, filter LoadFilter) ([]*LoadRecord, error)
	DeleteLoadsBefore(ctx context.Context, before time.Time) (int64, error)

	// Utility
	HealthCheck(ctx context.Context) error
}
