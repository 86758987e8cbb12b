package repo

import (
	"context"
	"database/sql"
	"fmt"

	"crease/internal/domain"
)

// InsertDelivery appends one delivery to the match log.
func (r Repo) InsertDelivery(ctx context.Context, tx *sql.Tx, d domain.Delivery) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO deliveries(game_id,innings,over,ball_in_over,striker_id,non_striker_id,bowler_id,runs_off_bat,extra_type,extra_runs,penalty_runs,wicket,dismissal_type,dismissed_id,fielder_id,free_hit,created_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		d.GameID, d.Innings, d.Over, d.BallInOver,
		d.StrikerID, d.NonStrikerID, d.BowlerID,
		d.RunsOffBat, nullable(d.ExtraType), d.ExtraRuns, d.PenaltyRuns,
		boolInt(d.Wicket), nullable(d.DismissalType), nullable(d.DismissedID), nullable(d.FielderID),
		boolInt(d.FreeHit), d.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("insert delivery: %w", err)
	}
	return res.LastInsertId()
}

func scanDelivery(scan func(...any) error) (domain.Delivery, error) {
	var d domain.Delivery
	var extraType, dismissalType, dismissedID, fielderID sql.NullString
	var wicket, freeHit int
	err := scan(&d.ID, &d.GameID, &d.Innings, &d.Over, &d.BallInOver,
		&d.StrikerID, &d.NonStrikerID, &d.BowlerID,
		&d.RunsOffBat, &extraType, &d.ExtraRuns, &d.PenaltyRuns,
		&wicket, &dismissalType, &dismissedID, &fielderID, &freeHit, &d.CreatedAt)
	if err != nil {
		return d, err
	}
	d.ExtraType = extraType.String
	d.DismissalType = dismissalType.String
	d.DismissedID = dismissedID.String
	d.FielderID = fielderID.String
	d.Wicket = wicket != 0
	d.FreeHit = freeHit != 0
	return d, nil
}

const deliveryColumns = `id,game_id,innings,over,ball_in_over,striker_id,non_striker_id,bowler_id,runs_off_bat,extra_type,extra_runs,penalty_runs,wicket,dismissal_type,dismissed_id,fielder_id,free_hit,created_at`

// ListDeliveries returns an innings' log in applied order.
func (r Repo) ListDeliveries(ctx context.Context, gameID string, innings int) ([]domain.Delivery, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+deliveryColumns+` FROM deliveries WHERE game_id=? AND innings=? ORDER BY id`, gameID, innings)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Delivery
	for rows.Next() {
		d, err := scanDelivery(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// ListDeliveriesTx is ListDeliveries inside an open transaction.
func (r Repo) ListDeliveriesTx(ctx context.Context, tx *sql.Tx, gameID string, innings int) ([]domain.Delivery, error) {
	rows, err := tx.QueryContext(ctx, `SELECT `+deliveryColumns+` FROM deliveries WHERE game_id=? AND innings=? ORDER BY id`, gameID, innings)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Delivery
	for rows.Next() {
		d, err := scanDelivery(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// LastDelivery returns the newest delivery of an innings, or ErrNotFound.
func (r Repo) LastDelivery(ctx context.Context, tx *sql.Tx, gameID string, innings int) (domain.Delivery, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+deliveryColumns+` FROM deliveries WHERE game_id=? AND innings=? ORDER BY id DESC LIMIT 1`, gameID, innings)
	d, err := scanDelivery(row.Scan)
	if err == sql.ErrNoRows {
		return d, ErrNotFound
	}
	return d, err
}

// DeleteDelivery removes one log entry. Only the undo command calls this.
func (r Repo) DeleteDelivery(ctx context.Context, tx *sql.Tx, id int64) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM deliveries WHERE id=?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
