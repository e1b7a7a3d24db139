package quiz

import "errors"

var (
	// ErrInsufficientPool rejects an allocation when the unreserved pool cannot
	// cover the configured question/option counts. Nothing is reserved on this path.
	ErrInsufficientPool = errors.New("insufficient unreserved images")

	// ErrPoolConflict is returned by Store.CreateSession when another allocation
	// reserved one of the drawn images first. The allocator redraws and retries.
	ErrPoolConflict = errors.New("image reservation conflict")

	ErrAlreadySubmitted = errors.New("session already submitted")
	ErrUnknownSession   = errors.New("session not found")
	ErrNotOwner         = errors.New("session belongs to another taker")
	ErrConfigMissing    = errors.New("quiz settings missing")
	ErrDuplicateAnswer  = errors.New("duplicate answer for question")
	ErrActiveSession    = errors.New("active session in progress")
	ErrRetakeNotAllowed = errors.New("retake not permitted")
	ErrUnknownTaker     = errors.New("taker not found")
)
