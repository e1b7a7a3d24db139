package quiz

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// memStore keeps the whole pool behind one mutex, which makes the
// availability-check-then-reserve sequence atomic by construction. Used for
// single-node deployments (DB_DRIVER=memory) and in tests.
type memStore struct {
	mu       sync.Mutex
	settings *Settings
	takers   map[string]*Taker
	images   map[string]*Image
	imageIDs []string // insertion order
	sessions map[string]*Session
}

func NewInMemoryStore() Store {
	return &memStore{
		takers:   map[string]*Taker{},
		images:   map[string]*Image{},
		sessions: map[string]*Session{},
	}
}

func (m *memStore) ActiveSettings(ctx context.Context) (Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.settings == nil {
		return Settings{}, ErrConfigMissing
	}
	return *m.settings, nil
}

func (m *memStore) SaveSettings(ctx context.Context, s Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings = &s
	return nil
}

func (m *memStore) UpsertTaker(ctx context.Context, employeeID, name string) (Taker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.takers {
		if t.EmployeeID == employeeID && t.Name == name {
			return *t, nil
		}
	}
	t := &Taker{
		ID:         uuid.NewString(),
		EmployeeID: employeeID,
		Name:       name,
		Role:       "user",
		CreatedAt:  time.Now().UTC(),
	}
	m.takers[t.ID] = t
	return *t, nil
}

func (m *memStore) GetTaker(ctx context.Context, id string) (Taker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.takers[id]
	if !ok {
		return Taker{}, ErrUnknownTaker
	}
	return *t, nil
}

func (m *memStore) AddImages(ctx context.Context, imgs []Image) ([]Image, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Image, 0, len(imgs))
	for _, img := range imgs {
		img.ID = uuid.NewString()
		img.Reserved = false
		img.CreatedAt = time.Now().Unix()
		cp := img
		m.images[img.ID] = &cp
		m.imageIDs = append(m.imageIDs, img.ID)
		out = append(out, img)
	}
	return out, nil
}

func (m *memStore) ListImages(ctx context.Context) ([]Image, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Image, 0, len(m.imageIDs))
	for _, id := range m.imageIDs {
		out = append(out, *m.images[id])
	}
	return out, nil
}

func (m *memStore) AvailableImages(ctx context.Context, label ImageLabel) ([]Image, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Image
	for _, id := range m.imageIDs {
		img := m.images[id]
		if img.Label == label && !img.Reserved {
			out = append(out, *img)
		}
	}
	return out, nil
}

func (m *memStore) ResetReservations(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, img := range m.images {
		img.Reserved = false
	}
	return nil
}

func (m *memStore) CreateSession(ctx context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	taker, ok := m.takers[s.TakerID]
	if !ok {
		return ErrUnknownTaker
	}
	ids := s.ImageIDs()
	// compare-and-set across the whole reservation: fail before touching
	// anything if any image is gone or already claimed
	for _, id := range ids {
		img, ok := m.images[id]
		if !ok || img.Reserved {
			return ErrPoolConflict
		}
	}
	for _, id := range ids {
		m.images[id].Reserved = true
	}
	s.Retest = taker.CanRetake
	taker.CanRetake = false
	cp := *s
	m.sessions[s.ID] = &cp
	return nil
}

func (m *memStore) GetSession(ctx context.Context, id string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return Session{}, ErrUnknownSession
	}
	return *s, nil
}

func (m *memStore) ActiveSessionFor(ctx context.Context, takerID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.TakerID == takerID && s.State == StateOpen {
			cp := *s
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memStore) LatestSubmittedFor(ctx context.Context, takerID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *Session
	for _, s := range m.sessions {
		if s.TakerID != takerID || s.State != StateClosed {
			continue
		}
		if latest == nil || s.SubmittedAt.After(*latest.SubmittedAt) {
			latest = s
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (m *memStore) CloseSession(ctx context.Context, id string, res Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return ErrUnknownSession
	}
	if s.State != StateOpen {
		return ErrAlreadySubmitted
	}
	now := time.Now().UTC()
	score := res.Score
	s.State = StateClosed
	s.Score = &score
	s.Passed = res.Passed
	s.SubmittedAt = &now
	// release is a no-op for images already cleared (e.g. after a force reset)
	for _, imgID := range res.Released {
		if img, ok := m.images[imgID]; ok {
			img.Reserved = false
		}
	}
	return nil
}

func (m *memStore) ListResults(ctx context.Context, filter ResultFilter) ([]SessionResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []SessionResult
	for _, s := range m.sessions {
		if s.State != StateClosed {
			continue
		}
		switch filter {
		case FilterPass:
			if !s.Passed {
				continue
			}
		case FilterFail:
			if s.Passed {
				continue
			}
		case FilterRetest:
			if !s.Retest {
				continue
			}
		}
		t := m.takers[s.TakerID]
		out = append(out, SessionResult{
			SessionID:   s.ID,
			EmployeeID:  t.EmployeeID,
			Name:        t.Name,
			Score:       s.Score,
			Passed:      s.Passed,
			Retest:      s.Retest,
			CreatedAt:   s.CreatedAt,
			SubmittedAt: s.SubmittedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memStore) GrantRetakes(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	latest := map[string]*Session{}
	for _, s := range m.sessions {
		if s.State != StateClosed {
			continue
		}
		cur, ok := latest[s.TakerID]
		if !ok || s.SubmittedAt.After(*cur.SubmittedAt) {
			latest[s.TakerID] = s
		}
	}
	granted := 0
	for takerID, s := range latest {
		if s.Passed {
			continue
		}
		if t, ok := m.takers[takerID]; ok && !t.CanRetake {
			t.CanRetake = true
			granted++
		}
	}
	return granted, nil
}
