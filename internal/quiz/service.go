package quiz

import "context"

// Service is the façade the HTTP layer talks to. It owns the gate checks
// around the allocator and evaluator: one open session per taker, the retake
// rule, session ownership, and the exactly-once close.
type Service struct {
	store Store
	alloc *Allocator
}

func NewService(store Store) *Service {
	return &Service{store: store, alloc: NewAllocator(store)}
}

// Start allocates a new session for the taker. Rejected with
// ErrActiveSession while a prior session is still open, and with
// ErrRetakeNotAllowed when the taker's latest closed session failed and no
// retake eligibility is held.
func (s *Service) Start(ctx context.Context, takerID string) (Session, error) {
	taker, err := s.store.GetTaker(ctx, takerID)
	if err != nil {
		return Session{}, err
	}
	open, err := s.store.ActiveSessionFor(ctx, takerID)
	if err != nil {
		return Session{}, err
	}
	if open != nil {
		return Session{}, ErrActiveSession
	}
	last, err := s.store.LatestSubmittedFor(ctx, takerID)
	if err != nil {
		return Session{}, err
	}
	if last != nil && !last.Passed && !taker.CanRetake {
		return Session{}, ErrRetakeNotAllowed
	}
	return s.alloc.Allocate(ctx, takerID)
}

// Submit evaluates the taker's answers and closes the session, releasing its
// reservations in the same store transaction as the close.
func (s *Service) Submit(ctx context.Context, takerID, sessionID string, answers []Answer) (Result, error) {
	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return Result{}, err
	}
	if sess.TakerID != takerID {
		return Result{}, ErrNotOwner
	}
	cfg, err := s.store.ActiveSettings(ctx)
	if err != nil {
		return Result{}, err
	}
	res, err := Evaluate(sess, answers, cfg.PassingScore)
	if err != nil {
		return Result{}, err
	}
	if err := s.store.CloseSession(ctx, sessionID, res); err != nil {
		return Result{}, err
	}
	return res, nil
}

// Store exposes the backing store for collaborators that need direct reads
// (login flow, admin surface).
func (s *Service) Store() Store { return s.store }
