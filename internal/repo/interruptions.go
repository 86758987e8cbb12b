package repo

import (
	"context"
	"database/sql"

	"crease/internal/domain"
)

// InsertInterruption opens a new interruption window.
func (r Repo) InsertInterruption(ctx context.Context, tx *sql.Tx, i domain.Interruption) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO interruptions(game_id,innings,kind,started_at,note) VALUES (?,?,?,?,?)`,
		i.GameID, i.Innings, i.Kind, i.StartedAt, nullable(i.Note))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// OpenInterruption returns the newest unclosed window, optionally filtered by
// kind, or ErrNotFound.
func (r Repo) OpenInterruption(ctx context.Context, tx *sql.Tx, gameID, kind string) (domain.Interruption, error) {
	row := tx.QueryRowContext(ctx, `SELECT id,game_id,innings,kind,started_at,COALESCE(ended_at,''),COALESCE(note,'') FROM interruptions WHERE game_id=? AND ended_at IS NULL AND (?='' OR kind=?) ORDER BY id DESC LIMIT 1`,
		gameID, kind, kind)
	var i domain.Interruption
	err := row.Scan(&i.ID, &i.GameID, &i.Innings, &i.Kind, &i.StartedAt, &i.EndedAt, &i.Note)
	if err == sql.ErrNoRows {
		return i, ErrNotFound
	}
	return i, err
}

// CloseInterruption stamps the end of a window.
func (r Repo) CloseInterruption(ctx context.Context, tx *sql.Tx, id int64, endedAt string) error {
	_, err := tx.ExecContext(ctx, `UPDATE interruptions SET ended_at=? WHERE id=?`, endedAt, id)
	return err
}

// ListInterruptions returns a game's interruption windows in order.
func (r Repo) ListInterruptions(ctx context.Context, gameID string) ([]domain.Interruption, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,game_id,innings,kind,started_at,COALESCE(ended_at,''),COALESCE(note,'') FROM interruptions WHERE game_id=? ORDER BY id`, gameID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Interruption
	for rows.Next() {
		var i domain.Interruption
		if err := rows.Scan(&i.ID, &i.GameID, &i.Innings, &i.Kind, &i.StartedAt, &i.EndedAt, &i.Note); err != nil {
			return nil, err
		}
		out = append(out, i)
	}
	return out, rows.Err()
}

// InsertOversRevision records a mid-innings overs reduction.
func (r Repo) InsertOversRevision(ctx context.Context, tx *sql.Tx, rev domain.OversRevision) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO overs_revisions(game_id,innings,balls_before,balls_after,wickets,old_max,new_max,created_at) VALUES (?,?,?,?,?,?,?,?)`,
		rev.GameID, rev.Innings, rev.BallsBefore, rev.BallsAfter, rev.Wickets, rev.OldMax, rev.NewMax, rev.CreatedAt)
	return err
}

// HasOversRevisions reports whether any reduction was recorded for the game.
func (r Repo) HasOversRevisions(ctx context.Context, tx *sql.Tx, gameID string) (bool, error) {
	var n int
	err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM overs_revisions WHERE game_id=?`, gameID).Scan(&n)
	return n > 0, err
}

// ListOversRevisions returns the reductions applied to one innings, in order.
func (r Repo) ListOversRevisions(ctx context.Context, gameID string, innings int) ([]domain.OversRevision, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,game_id,innings,balls_before,balls_after,wickets,old_max,new_max,created_at FROM overs_revisions WHERE game_id=? AND innings=? ORDER BY id`, gameID, innings)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.OversRevision
	for rows.Next() {
		var rev domain.OversRevision
		if err := rows.Scan(&rev.ID, &rev.GameID, &rev.Innings, &rev.BallsBefore, &rev.BallsAfter, &rev.Wickets, &rev.OldMax, &rev.NewMax, &rev.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, rev)
	}
	return out, rows.Err()
}
