package quiz

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
)

// maxAllocateRetries bounds redraws after a reservation conflict with a
// concurrent allocation.
const maxAllocateRetries = 3

// randSource is the slice of math/rand the allocator uses. Tests inject a
// seeded *rand.Rand to pin draw structure without depending on global state.
type randSource interface {
	Intn(n int) int
	Shuffle(n int, swap func(i, j int))
}

// globalRand delegates to the package-level math/rand source, which is safe
// for concurrent use.
type globalRand struct{}

func (globalRand) Intn(n int) int                     { return rand.Intn(n) }
func (globalRand) Shuffle(n int, swap func(i, j int)) { rand.Shuffle(n, swap) }

// Allocator builds a session's question set from the shared pool, reserving
// every drawn image exclusively for that session.
type Allocator struct {
	store Store
	rng   randSource
}

func NewAllocator(store Store) *Allocator {
	return &Allocator{store: store, rng: globalRand{}}
}

func NewAllocatorWithRand(store Store, rng randSource) *Allocator {
	return &Allocator{store: store, rng: rng}
}

// Allocate draws a fresh question set for the taker and commits it together
// with its image reservations as one atomic unit. It reads current
// unreserved counts on every attempt; a conflict with a concurrent
// allocation triggers a redraw from the then-current pool.
func (a *Allocator) Allocate(ctx context.Context, takerID string) (Session, error) {
	var lastErr error
	for attempt := 0; attempt < maxAllocateRetries; attempt++ {
		cfg, err := a.store.ActiveSettings(ctx)
		if err != nil {
			return Session{}, err
		}
		correct, err := a.store.AvailableImages(ctx, LabelCorrect)
		if err != nil {
			return Session{}, err
		}
		incorrect, err := a.store.AvailableImages(ctx, LabelIncorrect)
		if err != nil {
			return Session{}, err
		}
		needIncorrect := cfg.NumQuestions * (cfg.NumOptions - 1)
		if len(correct) < cfg.NumQuestions {
			return Session{}, fmt.Errorf("%w: %d correct available, need %d",
				ErrInsufficientPool, len(correct), cfg.NumQuestions)
		}
		if len(incorrect) < needIncorrect {
			return Session{}, fmt.Errorf("%w: %d incorrect available, need %d",
				ErrInsufficientPool, len(incorrect), needIncorrect)
		}

		s := Session{
			ID:        uuid.NewString(),
			TakerID:   takerID,
			Questions: a.buildQuestions(correct, incorrect, cfg),
			State:     StateOpen,
			CreatedAt: time.Now().UTC(),
		}
		err = a.store.CreateSession(ctx, &s)
		if errors.Is(err, ErrPoolConflict) {
			lastErr = err
			continue
		}
		if err != nil {
			return Session{}, err
		}
		return s, nil
	}
	return Session{}, lastErr
}

// buildQuestions draws without replacement: one correct image plus
// numOptions-1 distractors per question, then shuffles each option list
// independently of draw order so the answer position carries no signal.
func (a *Allocator) buildQuestions(correct, incorrect []Image, cfg Settings) []Question {
	qs := make([]Question, 0, cfg.NumQuestions)
	for i := 0; i < cfg.NumQuestions; i++ {
		answer := drawOne(a.rng, &correct)
		opts := make([]Image, 0, cfg.NumOptions)
		opts = append(opts, answer)
		for j := 1; j < cfg.NumOptions; j++ {
			opts = append(opts, drawOne(a.rng, &incorrect))
		}
		a.rng.Shuffle(len(opts), func(x, y int) { opts[x], opts[y] = opts[y], opts[x] })

		q := Question{ID: uuid.NewString(), AnswerID: answer.ID}
		for _, img := range opts {
			q.Options = append(q.Options, Option{ImageID: img.ID, FileURL: img.FileURL})
		}
		qs = append(qs, q)
	}
	return qs
}

func drawOne(rng randSource, pool *[]Image) Image {
	p := *pool
	i := rng.Intn(len(p))
	img := p[i]
	p[i] = p[len(p)-1]
	*pool = p[:len(p)-1]
	return img
}
