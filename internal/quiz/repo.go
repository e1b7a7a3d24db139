package quiz

import (
	"context"
	"time"
)

type ResultFilter string

const (
	FilterNone   ResultFilter = ""
	FilterPass   ResultFilter = "pass"
	FilterFail   ResultFilter = "fail"
	FilterRetest ResultFilter = "retest"
)

// SessionResult is one row of the admin report: a session joined with its
// taker's identity.
type SessionResult struct {
	SessionID   string     `json:"session_id"`
	EmployeeID  string     `json:"employee_id"`
	Name        string     `json:"name"`
	Score       *int       `json:"score,omitempty"`
	Passed      bool       `json:"passed"`
	Retest      bool       `json:"retest"`
	CreatedAt   time.Time  `json:"created_at"`
	SubmittedAt *time.Time `json:"submitted_at,omitempty"`
}

type Store interface {
	// ActiveSettings returns the current quiz shape, or ErrConfigMissing when
	// none has been saved yet.
	ActiveSettings(ctx context.Context) (Settings, error)
	SaveSettings(ctx context.Context, s Settings) error

	// UpsertTaker finds a taker by (employeeID, name) or creates one with role
	// "user".
	UpsertTaker(ctx context.Context, employeeID, name string) (Taker, error)
	GetTaker(ctx context.Context, id string) (Taker, error)

	AddImages(ctx context.Context, imgs []Image) ([]Image, error)
	ListImages(ctx context.Context) ([]Image, error)
	// AvailableImages returns the unreserved images of one label, reflecting
	// the pool at call time (never a cached snapshot).
	AvailableImages(ctx context.Context, label ImageLabel) ([]Image, error)
	// ResetReservations force-clears every reservation, open sessions included.
	// Operator escape hatch.
	ResetReservations(ctx context.Context) error

	// CreateSession commits, as one atomic unit: a compare-and-set of the
	// reserved flag on every image the session references, the session record
	// itself, and consumption of the taker's retake eligibility (copied into
	// s.Retest before clearing). Any image already reserved fails the whole
	// commit with ErrPoolConflict and leaves the pool untouched.
	CreateSession(ctx context.Context, s *Session) error
	GetSession(ctx context.Context, id string) (Session, error)
	// ActiveSessionFor returns the taker's open session, or nil.
	ActiveSessionFor(ctx context.Context, takerID string) (*Session, error)
	// LatestSubmittedFor returns the taker's most recent closed session, or nil.
	LatestSubmittedFor(ctx context.Context, takerID string) (*Session, error)
	// CloseSession transitions open -> closed exactly once (conditional on
	// current state; a second call fails with ErrAlreadySubmitted) and releases
	// the given image ids in the same transaction. Releasing an image that is
	// already unreserved is a no-op.
	CloseSession(ctx context.Context, id string, res Result) error

	ListResults(ctx context.Context, filter ResultFilter) ([]SessionResult, error)
	// GrantRetakes sets retake eligibility for every taker whose most recent
	// closed session failed; returns how many takers were granted.
	GrantRetakes(ctx context.Context) (int, error)
}
