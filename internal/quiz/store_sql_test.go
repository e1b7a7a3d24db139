package quiz_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/pixelproof/pixelproof/internal/db"
	"github.com/pixelproof/pixelproof/internal/quiz"
)

func newSQLStore(t *testing.T) *quiz.SQLStore {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	dbh, err := db.Open(context.Background(), db.DriverSQLite, dsn)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { dbh.Close() })
	return quiz.NewSQLStore(dbh, "sqlite")
}

func seedSQL(t *testing.T, store *quiz.SQLStore, cfg quiz.Settings, nCorrect, nIncorrect int) quiz.Taker {
	t.Helper()
	ctx := context.Background()
	if err := store.SaveSettings(ctx, cfg); err != nil {
		t.Fatalf("save settings: %v", err)
	}
	imgs := make([]quiz.Image, 0, nCorrect+nIncorrect)
	for i := 0; i < nCorrect; i++ {
		imgs = append(imgs, quiz.Image{FileURL: "https://img.test/c", Label: quiz.LabelCorrect})
	}
	for i := 0; i < nIncorrect; i++ {
		imgs = append(imgs, quiz.Image{FileURL: "https://img.test/i", Label: quiz.LabelIncorrect})
	}
	if _, err := store.AddImages(ctx, imgs); err != nil {
		t.Fatalf("add images: %v", err)
	}
	taker, err := store.UpsertTaker(ctx, "emp-1", "First Taker")
	if err != nil {
		t.Fatalf("upsert taker: %v", err)
	}
	return taker
}

func TestSQLStore_SettingsRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newSQLStore(t)

	if _, err := store.ActiveSettings(ctx); !errors.Is(err, quiz.ErrConfigMissing) {
		t.Fatalf("expected ErrConfigMissing, got %v", err)
	}
	want := quiz.Settings{NumQuestions: 10, NumOptions: 10, PassingScore: 70}
	if err := store.SaveSettings(ctx, want); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := store.ActiveSettings(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got != want {
		t.Errorf("settings round-trip: got %+v want %+v", got, want)
	}

	// update overwrites the single row
	want.PassingScore = 80
	if err := store.SaveSettings(ctx, want); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, _ = store.ActiveSettings(ctx)
	if got.PassingScore != 80 {
		t.Errorf("expected updated passing score 80, got %d", got.PassingScore)
	}
}

func TestSQLStore_UpsertTakerIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newSQLStore(t)

	a, err := store.UpsertTaker(ctx, "emp-9", "Same Person")
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	b, err := store.UpsertTaker(ctx, "emp-9", "Same Person")
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if a.ID != b.ID {
		t.Errorf("upsert created a second taker: %s vs %s", a.ID, b.ID)
	}
}

func TestSQLStore_AllocateAndRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newSQLStore(t)
	taker := seedSQL(t, store, quiz.Settings{NumQuestions: 3, NumOptions: 4, PassingScore: 70}, 5, 20)

	svc := quiz.NewService(store)
	s, err := svc.Start(ctx, taker.ID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	got, err := store.GetSession(ctx, s.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if got.State != quiz.StateOpen || got.TakerID != taker.ID {
		t.Errorf("unexpected session: state=%q taker=%q", got.State, got.TakerID)
	}
	if len(got.Questions) != 3 {
		t.Fatalf("expected 3 questions, got %d", len(got.Questions))
	}
	for i, q := range got.Questions {
		if q.ID != s.Questions[i].ID || q.AnswerID != s.Questions[i].AnswerID {
			t.Errorf("question %d did not round-trip", i)
		}
	}

	// drawn images are reserved, rest of the pool untouched
	correct, _ := store.AvailableImages(ctx, quiz.LabelCorrect)
	incorrect, _ := store.AvailableImages(ctx, quiz.LabelIncorrect)
	if len(correct) != 2 || len(incorrect) != 11 {
		t.Errorf("expected 2 correct / 11 incorrect unreserved, got %d / %d",
			len(correct), len(incorrect))
	}

	open, err := store.ActiveSessionFor(ctx, taker.ID)
	if err != nil {
		t.Fatalf("active session: %v", err)
	}
	if open == nil || open.ID != s.ID {
		t.Error("open session not found by taker")
	}
}

func TestSQLStore_CreateSessionConflict(t *testing.T) {
	ctx := context.Background()
	store := newSQLStore(t)
	taker := seedSQL(t, store, quiz.Settings{NumQuestions: 1, NumOptions: 2, PassingScore: 50}, 2, 2)

	imgs, err := store.ListImages(ctx)
	if err != nil {
		t.Fatalf("list images: %v", err)
	}

	first := &quiz.Session{
		ID:      "sess-a",
		TakerID: taker.ID,
		State:   quiz.StateOpen,
		Questions: []quiz.Question{{
			ID:       "q-a",
			AnswerID: imgs[0].ID,
			Options: []quiz.Option{
				{ImageID: imgs[0].ID}, {ImageID: imgs[2].ID},
			},
		}},
	}
	if err := store.CreateSession(ctx, first); err != nil {
		t.Fatalf("first create: %v", err)
	}

	// second session wants an image the first already reserved
	second := &quiz.Session{
		ID:      "sess-b",
		TakerID: taker.ID,
		State:   quiz.StateOpen,
		Questions: []quiz.Question{{
			ID:       "q-b",
			AnswerID: imgs[1].ID,
			Options: []quiz.Option{
				{ImageID: imgs[1].ID}, {ImageID: imgs[2].ID},
			},
		}},
	}
	if err := store.CreateSession(ctx, second); !errors.Is(err, quiz.ErrPoolConflict) {
		t.Fatalf("expected ErrPoolConflict, got %v", err)
	}
	// the losing commit reserved nothing
	if _, err := store.GetSession(ctx, "sess-b"); !errors.Is(err, quiz.ErrUnknownSession) {
		t.Error("conflicted session must not be persisted")
	}
	avail := map[string]bool{}
	for _, label := range []quiz.ImageLabel{quiz.LabelCorrect, quiz.LabelIncorrect} {
		list, _ := store.AvailableImages(ctx, label)
		for _, img := range list {
			avail[img.ID] = true
		}
	}
	if !avail[imgs[1].ID] {
		t.Error("image drawn only by the losing allocation must stay unreserved")
	}
}

func TestSQLStore_CloseSessionExactlyOnce(t *testing.T) {
	ctx := context.Background()
	store := newSQLStore(t)
	taker := seedSQL(t, store, quiz.Settings{NumQuestions: 2, NumOptions: 3, PassingScore: 50}, 4, 10)

	svc := quiz.NewService(store)
	s, err := svc.Start(ctx, taker.ID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	// answer everything correctly
	answers := make([]quiz.Answer, 0, len(s.Questions))
	for _, q := range s.Questions {
		answers = append(answers, quiz.Answer{QuestionID: q.ID, SelectedImageID: q.AnswerID})
	}
	res, err := svc.Submit(ctx, taker.ID, s.ID, answers)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.Score != 100 || !res.Passed {
		t.Errorf("expected 100/pass, got %d/%v", res.Score, res.Passed)
	}

	// second submission is rejected and the verdict stays authoritative
	if _, err := svc.Submit(ctx, taker.ID, s.ID, nil); !errors.Is(err, quiz.ErrAlreadySubmitted) {
		t.Fatalf("expected ErrAlreadySubmitted, got %v", err)
	}
	got, err := store.GetSession(ctx, s.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if got.State != quiz.StateClosed || got.Score == nil || *got.Score != 100 || !got.Passed {
		t.Errorf("closed session mutated: %+v", got)
	}
	if got.SubmittedAt == nil {
		t.Error("closed session missing submission timestamp")
	}

	// every reservation was released
	correct, _ := store.AvailableImages(ctx, quiz.LabelCorrect)
	incorrect, _ := store.AvailableImages(ctx, quiz.LabelIncorrect)
	if len(correct) != 4 || len(incorrect) != 10 {
		t.Errorf("expected full pool released, got %d correct / %d incorrect",
			len(correct), len(incorrect))
	}
}

func TestSQLStore_ForceResetThenCloseIsNoop(t *testing.T) {
	ctx := context.Background()
	store := newSQLStore(t)
	taker := seedSQL(t, store, quiz.Settings{NumQuestions: 2, NumOptions: 3, PassingScore: 50}, 4, 10)

	svc := quiz.NewService(store)
	s, err := svc.Start(ctx, taker.ID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	// operator force-clears every reservation while the session is open
	if err := store.ResetReservations(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}

	// evaluation of the desynced session still succeeds; releasing the
	// already-cleared images is a no-op
	if _, err := svc.Submit(ctx, taker.ID, s.ID, nil); err != nil {
		t.Fatalf("submit after reset: %v", err)
	}
	correct, _ := store.AvailableImages(ctx, quiz.LabelCorrect)
	incorrect, _ := store.AvailableImages(ctx, quiz.LabelIncorrect)
	if len(correct) != 4 || len(incorrect) != 10 {
		t.Errorf("pool should be fully unreserved, got %d / %d", len(correct), len(incorrect))
	}
}

func TestSQLStore_GrantRetakesTargetsLatestFailures(t *testing.T) {
	ctx := context.Background()
	store := newSQLStore(t)
	seedSQL(t, store, quiz.Settings{NumQuestions: 1, NumOptions: 2, PassingScore: 100}, 6, 6)
	failing, err := store.UpsertTaker(ctx, "emp-fail", "Fails Quiz")
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	passing, err := store.UpsertTaker(ctx, "emp-pass", "Passes Quiz")
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	svc := quiz.NewService(store)
	run := func(takerID string, answerCorrectly bool) {
		t.Helper()
		s, err := svc.Start(ctx, takerID)
		if err != nil {
			t.Fatalf("start: %v", err)
		}
		var answers []quiz.Answer
		if answerCorrectly {
			for _, q := range s.Questions {
				answers = append(answers, quiz.Answer{QuestionID: q.ID, SelectedImageID: q.AnswerID})
			}
		}
		if _, err := svc.Submit(ctx, takerID, s.ID, answers); err != nil {
			t.Fatalf("submit: %v", err)
		}
	}
	run(failing.ID, false)
	run(passing.ID, true)

	granted, err := store.GrantRetakes(ctx)
	if err != nil {
		t.Fatalf("grant: %v", err)
	}
	if granted != 1 {
		t.Fatalf("expected 1 grant, got %d", granted)
	}
	got, _ := store.GetTaker(ctx, failing.ID)
	if !got.CanRetake {
		t.Error("failing taker should hold retake eligibility")
	}
	got, _ = store.GetTaker(ctx, passing.ID)
	if got.CanRetake {
		t.Error("passing taker must not receive eligibility")
	}

	results, err := store.ListResults(ctx, quiz.FilterFail)
	if err != nil {
		t.Fatalf("list results: %v", err)
	}
	if len(results) != 1 || results[0].EmployeeID != "emp-fail" {
		t.Errorf("fail filter returned %+v", results)
	}
}
