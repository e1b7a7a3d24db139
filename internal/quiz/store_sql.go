package quiz

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SQLStore persists the pool and sessions in sqlite or postgres. The $N
// placeholder form is accepted by both drivers. Reservation exclusivity is a
// per-row compare-and-set (UPDATE ... WHERE reserved=FALSE) inside one
// transaction, so a commit either claims every drawn image or none.
type SQLStore struct {
	db     *sql.DB
	driver string // "sqlite" or "postgres"
}

func NewSQLStore(db *sql.DB, driver string) *SQLStore {
	return &SQLStore{db: db, driver: driver}
}

func (s *SQLStore) ActiveSettings(ctx context.Context) (Settings, error) {
	var cfg Settings
	err := s.db.QueryRowContext(ctx,
		`SELECT num_questions,num_options,passing_score FROM settings WHERE id=1`).
		Scan(&cfg.NumQuestions, &cfg.NumOptions, &cfg.PassingScore)
	if errors.Is(err, sql.ErrNoRows) {
		return Settings{}, ErrConfigMissing
	}
	if err != nil {
		return Settings{}, err
	}
	return cfg, nil
}

func (s *SQLStore) SaveSettings(ctx context.Context, cfg Settings) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings (id,num_questions,num_options,passing_score) VALUES (1,$1,$2,$3)
		 ON CONFLICT (id) DO UPDATE SET num_questions=EXCLUDED.num_questions,
		   num_options=EXCLUDED.num_options, passing_score=EXCLUDED.passing_score`,
		cfg.NumQuestions, cfg.NumOptions, cfg.PassingScore)
	return err
}

func (s *SQLStore) UpsertTaker(ctx context.Context, employeeID, name string) (Taker, error) {
	t := Taker{EmployeeID: employeeID, Name: name}
	var created int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id,role,can_retake,created_at FROM takers WHERE employee_id=$1 AND name=$2`,
		employeeID, name).Scan(&t.ID, &t.Role, &t.CanRetake, &created)
	if err == nil {
		t.CreatedAt = time.Unix(created, 0).UTC()
		return t, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Taker{}, err
	}
	t.ID = uuid.NewString()
	t.Role = "user"
	t.CreatedAt = time.Now().UTC()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO takers (id,employee_id,name,role,can_retake,created_at)
		 VALUES ($1,$2,$3,$4,FALSE,$5)`,
		t.ID, employeeID, name, t.Role, t.CreatedAt.Unix())
	if err != nil {
		return Taker{}, err
	}
	return t, nil
}

func (s *SQLStore) GetTaker(ctx context.Context, id string) (Taker, error) {
	var t Taker
	var created int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id,employee_id,name,role,can_retake,created_at FROM takers WHERE id=$1`, id).
		Scan(&t.ID, &t.EmployeeID, &t.Name, &t.Role, &t.CanRetake, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return Taker{}, ErrUnknownTaker
	}
	if err != nil {
		return Taker{}, err
	}
	t.CreatedAt = time.Unix(created, 0).UTC()
	return t, nil
}

func (s *SQLStore) AddImages(ctx context.Context, imgs []Image) ([]Image, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	now := time.Now().Unix()
	out := make([]Image, 0, len(imgs))
	for _, img := range imgs {
		img.ID = uuid.NewString()
		img.Reserved = false
		img.CreatedAt = now
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO images (id,file_url,label,reserved,created_at) VALUES ($1,$2,$3,FALSE,$4)`,
			img.ID, img.FileURL, string(img.Label), now); err != nil {
			return nil, err
		}
		out = append(out, img)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *SQLStore) ListImages(ctx context.Context) ([]Image, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id,file_url,label,reserved,created_at FROM images ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanImages(rows)
}

func (s *SQLStore) AvailableImages(ctx context.Context, label ImageLabel) ([]Image, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id,file_url,label,reserved,created_at FROM images
		 WHERE label=$1 AND reserved=FALSE ORDER BY created_at, id`, string(label))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanImages(rows)
}

func scanImages(rows *sql.Rows) ([]Image, error) {
	var out []Image
	for rows.Next() {
		var img Image
		var label string
		if err := rows.Scan(&img.ID, &img.FileURL, &label, &img.Reserved, &img.CreatedAt); err != nil {
			return nil, err
		}
		img.Label = ImageLabel(label)
		out = append(out, img)
	}
	return out, rows.Err()
}

func (s *SQLStore) ResetReservations(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `UPDATE images SET reserved=FALSE`)
	return err
}

func (s *SQLStore) CreateSession(ctx context.Context, sess *Session) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var canRetake bool
	err = tx.QueryRowContext(ctx,
		`SELECT can_retake FROM takers WHERE id=$1`, sess.TakerID).Scan(&canRetake)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrUnknownTaker
	}
	if err != nil {
		return err
	}

	// per-image CAS: a row already reserved affects zero rows and aborts the
	// whole allocation before anything is visible outside the tx
	for _, id := range sess.ImageIDs() {
		res, err := tx.ExecContext(ctx,
			`UPDATE images SET reserved=TRUE WHERE id=$1 AND reserved=FALSE`, id)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrPoolConflict
		}
	}

	sess.Retest = canRetake
	if _, err := tx.ExecContext(ctx,
		`UPDATE takers SET can_retake=FALSE WHERE id=$1`, sess.TakerID); err != nil {
		return err
	}

	qj, err := json.Marshal(sess.Questions)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO quiz_sessions (id,taker_id,questions_json,state,passed,retest,created_at)
		 VALUES ($1,$2,$3,$4,FALSE,$5,$6)`,
		sess.ID, sess.TakerID, string(qj), string(StateOpen), sess.Retest, sess.CreatedAt.Unix()); err != nil {
		return err
	}
	return tx.Commit()
}

const sessionCols = `id,taker_id,questions_json,state,score,passed,retest,created_at,submitted_at`

func (s *SQLStore) GetSession(ctx context.Context, id string) (Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sessionCols+` FROM quiz_sessions WHERE id=$1`, id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrUnknownSession
	}
	return sess, err
}

func (s *SQLStore) ActiveSessionFor(ctx context.Context, takerID string) (*Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sessionCols+` FROM quiz_sessions WHERE taker_id=$1 AND state=$2`,
		takerID, string(StateOpen))
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *SQLStore) LatestSubmittedFor(ctx context.Context, takerID string) (*Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sessionCols+` FROM quiz_sessions
		 WHERE taker_id=$1 AND state=$2 ORDER BY submitted_at DESC LIMIT 1`,
		takerID, string(StateClosed))
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (Session, error) {
	var sess Session
	var qjson, state string
	var score sql.NullInt64
	var created int64
	var submitted sql.NullInt64
	if err := row.Scan(&sess.ID, &sess.TakerID, &qjson, &state, &score,
		&sess.Passed, &sess.Retest, &created, &submitted); err != nil {
		return Session{}, err
	}
	if err := json.Unmarshal([]byte(qjson), &sess.Questions); err != nil {
		return Session{}, err
	}
	sess.State = SessionState(state)
	if score.Valid {
		v := int(score.Int64)
		sess.Score = &v
	}
	sess.CreatedAt = time.Unix(created, 0).UTC()
	if submitted.Valid {
		t := time.Unix(submitted.Int64, 0).UTC()
		sess.SubmittedAt = &t
	}
	return sess, nil
}

func (s *SQLStore) CloseSession(ctx context.Context, id string, res Result) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// conditional on current state: the second submitter affects zero rows
	r, err := tx.ExecContext(ctx,
		`UPDATE quiz_sessions SET state=$1, score=$2, passed=$3, submitted_at=$4
		 WHERE id=$5 AND state=$6`,
		string(StateClosed), res.Score, res.Passed, time.Now().Unix(), id, string(StateOpen))
	if err != nil {
		return err
	}
	n, err := r.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var exists int
		if err := tx.QueryRowContext(ctx,
			`SELECT 1 FROM quiz_sessions WHERE id=$1`, id).Scan(&exists); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrUnknownSession
			}
			return err
		}
		return ErrAlreadySubmitted
	}

	// releasing an already-unreserved or force-reset image is a no-op
	for _, imgID := range res.Released {
		if _, err := tx.ExecContext(ctx,
			`UPDATE images SET reserved=FALSE WHERE id=$1`, imgID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLStore) ListResults(ctx context.Context, filter ResultFilter) ([]SessionResult, error) {
	q := `SELECT s.id,t.employee_id,t.name,s.score,s.passed,s.retest,s.created_at,s.submitted_at
	      FROM quiz_sessions s JOIN takers t ON s.taker_id=t.id
	      WHERE s.state='closed'`
	switch filter {
	case FilterPass:
		q += ` AND s.passed=TRUE`
	case FilterFail:
		q += ` AND s.passed=FALSE`
	case FilterRetest:
		q += ` AND s.retest=TRUE`
	}
	q += ` ORDER BY s.created_at DESC`

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SessionResult
	for rows.Next() {
		var r SessionResult
		var score, submitted sql.NullInt64
		var created int64
		if err := rows.Scan(&r.SessionID, &r.EmployeeID, &r.Name, &score,
			&r.Passed, &r.Retest, &created, &submitted); err != nil {
			return nil, err
		}
		if score.Valid {
			v := int(score.Int64)
			r.Score = &v
		}
		r.CreatedAt = time.Unix(created, 0).UTC()
		if submitted.Valid {
			t := time.Unix(submitted.Int64, 0).UTC()
			r.SubmittedAt = &t
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLStore) GrantRetakes(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, strings.TrimSpace(`
		UPDATE takers SET can_retake=TRUE WHERE can_retake=FALSE AND id IN (
			SELECT s.taker_id
			FROM quiz_sessions s
			JOIN (
				SELECT taker_id, MAX(submitted_at) AS latest
				FROM quiz_sessions WHERE state='closed' GROUP BY taker_id
			) m ON s.taker_id=m.taker_id AND s.submitted_at=m.latest
			WHERE s.state='closed' AND s.passed=FALSE
		)`))
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}
