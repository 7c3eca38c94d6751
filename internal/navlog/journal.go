package navlog

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/navcore/internal/avoidance"
	"github.com/banshee-data/navcore/internal/navigation"
)

var ErrRunNotFound = errors.New("run not found")

var _ navigation.Journal = (*Store)(nil)

func nanos(t time.Time) int64 { return t.UnixNano() }

func fromNanos(n int64) time.Time { return time.Unix(0, n).UTC() }

func (s *Store) RunStarted(r navigation.Run) error {
	_, err := s.Exec(
		`INSERT INTO runs (run_id, goal, goal_x, goal_y, routed, started_ns) VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID.String(), r.Goal.Name, r.Goal.X, r.Goal.Y, r.Goal.Routed, nanos(r.StartedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", r.ID, err)
	}
	return nil
}

func (s *Store) RunEnded(id uuid.UUID, final navigation.State, at time.Time) error {
	res, err := s.Exec(
		`UPDATE runs SET ended_ns = ?, final_state = ? WHERE run_id = ?`,
		nanos(at), final.String(), id.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to close run %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("close run %s: %w", id, ErrRunNotFound)
	}
	return nil
}

func (s *Store) Transition(t navigation.Transition) error {
	_, err := s.Exec(
		`INSERT INTO transitions (run_id, from_state, to_state, reason, at_ns) VALUES (?, ?, ?, ?, ?)`,
		t.RunID.String(), t.From.String(), t.To.String(), t.Reason, nanos(t.At),
	)
	if err != nil {
		return fmt.Errorf("failed to insert transition: %w", err)
	}
	return nil
}

func (s *Store) Plan(p navigation.PlanEvent) error {
	var errText sql.NullString
	if p.Err != nil {
		errText = sql.NullString{String: p.Err.Error(), Valid: true}
	}
	_, err := s.Exec(
		`INSERT INTO plans (
			run_id, at_ns, start_row, start_col, goal_row, goal_col,
			grid_version, path_length, cost, expanded, error
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.RunID.String(), nanos(p.At), p.Start.Row, p.Start.Col, p.Goal.Row, p.Goal.Col,
		int64(p.GridVersion), p.Length, p.Cost, p.Expanded, errText,
	)
	if err != nil {
		return fmt.Errorf("failed to insert plan: %w", err)
	}
	return nil
}

func (s *Store) Maneuver(id uuid.UUID, m avoidance.Maneuver) error {
	var dist sql.NullFloat64
	if m.Distance.Valid() {
		dist = sql.NullFloat64{Float64: m.Distance.MM, Valid: true}
	}
	_, err := s.Exec(
		`INSERT INTO maneuvers (
			run_id, trigger_kind, direction, distance_mm, distance_status, start_ns, deadline_ns
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id.String(), m.Trigger, m.Direction.String(), dist, m.Distance.Status.String(),
		nanos(m.Start), nanos(m.Deadline),
	)
	if err != nil {
		return fmt.Errorf("failed to insert maneuver: %w", err)
	}
	return nil
}

// RunRecord is a stored run. EndedAt and FinalState are empty while the
// run is in progress.
type RunRecord struct {
	ID         uuid.UUID  `json:"id"`
	Goal       string     `json:"goal"`
	GoalX      float64    `json:"goal_x"`
	GoalY      float64    `json:"goal_y"`
	Routed     bool       `json:"routed"`
	StartedAt  time.Time  `json:"started_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
	FinalState string     `json:"final_state,omitempty"`
}

type TransitionRecord struct {
	From   string    `json:"from"`
	To     string    `json:"to"`
	Reason string    `json:"reason"`
	At     time.Time `json:"at"`
}

type PlanRecord struct {
	At          time.Time `json:"at"`
	StartRow    int       `json:"start_row"`
	StartCol    int       `json:"start_col"`
	GoalRow     int       `json:"goal_row"`
	GoalCol     int       `json:"goal_col"`
	GridVersion uint64    `json:"grid_version"`
	Length      int       `json:"length"`
	Cost        float64   `json:"cost"`
	Expanded    int       `json:"expanded"`
	Error       string    `json:"error,omitempty"`
}

type ManeuverRecord struct {
	Trigger    string    `json:"trigger"`
	Direction  string    `json:"direction"`
	DistanceMM *float64  `json:"distance_mm,omitempty"`
	Status     string    `json:"distance_status"`
	Start      time.Time `json:"start"`
	Deadline   time.Time `json:"deadline"`
}

// RunDetail is a run with everything journalled against it.
type RunDetail struct {
	RunRecord
	Transitions []TransitionRecord `json:"transitions"`
	Plans       []PlanRecord       `json:"plans"`
	Maneuvers   []ManeuverRecord   `json:"maneuvers"`
}

const runColumns = `run_id, goal, goal_x, goal_y, routed, started_ns, ended_ns, final_state`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (RunRecord, error) {
	var (
		rec     RunRecord
		id      string
		started int64
		ended   sql.NullInt64
		final   sql.NullString
	)
	if err := row.Scan(&id, &rec.Goal, &rec.GoalX, &rec.GoalY, &rec.Routed, &started, &ended, &final); err != nil {
		return RunRecord{}, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return RunRecord{}, fmt.Errorf("bad run id %q: %w", id, err)
	}
	rec.ID = parsed
	rec.StartedAt = fromNanos(started)
	if ended.Valid {
		t := fromNanos(ended.Int64)
		rec.EndedAt = &t
	}
	rec.FinalState = final.String
	return rec, nil
}

// Runs returns up to limit runs, newest first.
func (s *Store) Runs(limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.Query(`SELECT `+runColumns+` FROM runs ORDER BY started_ns DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, rec)
	}
	return runs, rows.Err()
}

// Run returns one run with its transitions, plans and maneuvers in time
// order.
func (s *Store) Run(id uuid.UUID) (RunDetail, error) {
	rec, err := scanRun(s.QueryRow(`SELECT `+runColumns+` FROM runs WHERE run_id = ?`, id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return RunDetail{}, fmt.Errorf("run %s: %w", id, ErrRunNotFound)
	}
	if err != nil {
		return RunDetail{}, err
	}
	detail := RunDetail{RunRecord: rec}

	if detail.Transitions, err = s.transitions(id); err != nil {
		return RunDetail{}, err
	}
	if detail.Plans, err = s.plans(id); err != nil {
		return RunDetail{}, err
	}
	if detail.Maneuvers, err = s.maneuvers(id); err != nil {
		return RunDetail{}, err
	}
	return detail, nil
}

func (s *Store) transitions(id uuid.UUID) ([]TransitionRecord, error) {
	rows, err := s.Query(
		`SELECT from_state, to_state, reason, at_ns FROM transitions WHERE run_id = ? ORDER BY at_ns, transition_id`,
		id.String(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TransitionRecord
	for rows.Next() {
		var (
			tr     TransitionRecord
			reason sql.NullString
			at     int64
		)
		if err := rows.Scan(&tr.From, &tr.To, &reason, &at); err != nil {
			return nil, err
		}
		tr.Reason = reason.String
		tr.At = fromNanos(at)
		out = append(out, tr)
	}
	return out, rows.Err()
}

func (s *Store) plans(id uuid.UUID) ([]PlanRecord, error) {
	rows, err := s.Query(
		`SELECT at_ns, start_row, start_col, goal_row, goal_col, grid_version, path_length, cost, expanded, error
		FROM plans WHERE run_id = ? ORDER BY at_ns, plan_id`,
		id.String(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PlanRecord
	for rows.Next() {
		var (
			p       PlanRecord
			at      int64
			version int64
			errText sql.NullString
		)
		if err := rows.Scan(&at, &p.StartRow, &p.StartCol, &p.GoalRow, &p.GoalCol,
			&version, &p.Length, &p.Cost, &p.Expanded, &errText); err != nil {
			return nil, err
		}
		p.At = fromNanos(at)
		p.GridVersion = uint64(version)
		p.Error = errText.String
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) maneuvers(id uuid.UUID) ([]ManeuverRecord, error) {
	rows, err := s.Query(
		`SELECT trigger_kind, direction, distance_mm, distance_status, start_ns, deadline_ns
		FROM maneuvers WHERE run_id = ? ORDER BY start_ns, maneuver_id`,
		id.String(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ManeuverRecord
	for rows.Next() {
		var (
			m        ManeuverRecord
			dist     sql.NullFloat64
			start    int64
			deadline int64
		)
		if err := rows.Scan(&m.Trigger, &m.Direction, &dist, &m.Status, &start, &deadline); err != nil {
			return nil, err
		}
		if dist.Valid {
			v := dist.Float64
			m.DistanceMM = &v
		}
		m.Start = fromNanos(start)
		m.Deadline = fromNanos(deadline)
		out = append(out, m)
	}
	return out, rows.Err()
}
