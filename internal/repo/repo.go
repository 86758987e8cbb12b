package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"crease/internal/domain"
)

var ErrNotFound = errors.New("not found")

type Repo struct {
	DB *sql.DB
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// InsertGame writes the game row plus its teams and players.
func (r Repo) InsertGame(ctx context.Context, tx *sql.Tx, g domain.Game) error {
	s := g.Settings
	_, err := tx.ExecContext(ctx, `INSERT INTO games(id,format,max_overs,days,overs_per_day,balls_per_over,players_per_side,dls_enabled,free_hit,g50,current_innings,status,created_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		g.ID, s.Format, s.MaxOvers, s.Days, s.OversPerDay, s.BallsPerOver, s.PlayersPerSide,
		boolInt(s.DLSEnabled), boolInt(s.FreeHit), s.G50, g.CurrentInnings, g.Status, g.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert game: %w", err)
	}
	for _, t := range []domain.Team{g.HomeTeam, g.AwayTeam} {
		if _, err := tx.ExecContext(ctx, `INSERT INTO teams(id,game_id,name,home) VALUES (?,?,?,?)`,
			t.ID, g.ID, t.Name, boolInt(t.Home)); err != nil {
			return fmt.Errorf("insert team: %w", err)
		}
		for _, p := range t.Players {
			if _, err := tx.ExecContext(ctx, `INSERT INTO players(id,team_id,name,batting_order) VALUES (?,?,?,?)`,
				p.ID, t.ID, p.Name, p.BattingOrder); err != nil {
				return fmt.Errorf("insert player: %w", err)
			}
		}
	}
	return nil
}

// GetGame loads a game with both teams and their players.
func (r Repo) GetGame(ctx context.Context, id string) (domain.Game, error) {
	return r.getGame(ctx, r.DB, id)
}

// GetGameTx is GetGame inside an open transaction.
func (r Repo) GetGameTx(ctx context.Context, tx *sql.Tx, id string) (domain.Game, error) {
	return r.getGame(ctx, tx, id)
}

func (r Repo) getGame(ctx context.Context, q execer, id string) (domain.Game, error) {
	var g domain.Game
	var s domain.Settings
	var dls, freeHit int
	var tossWinner, tossDecision, result sql.NullString
	err := q.QueryRowContext(ctx, `SELECT id,format,max_overs,days,overs_per_day,balls_per_over,players_per_side,dls_enabled,free_hit,g50,toss_winner_id,toss_decision,current_innings,status,result,created_at FROM games WHERE id=?`, id).
		Scan(&g.ID, &s.Format, &s.MaxOvers, &s.Days, &s.OversPerDay, &s.BallsPerOver, &s.PlayersPerSide,
			&dls, &freeHit, &s.G50, &tossWinner, &tossDecision, &g.CurrentInnings, &g.Status, &result, &g.CreatedAt)
	if err == sql.ErrNoRows {
		return g, fmt.Errorf("game %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return g, err
	}
	s.DLSEnabled = dls != 0
	s.FreeHit = freeHit != 0
	g.Settings = s
	g.TossWinnerID = tossWinner.String
	g.TossDecision = tossDecision.String
	g.Result = result.String

	rows, err := q.QueryContext(ctx, `SELECT id,game_id,name,home FROM teams WHERE game_id=? ORDER BY home DESC`, id)
	if err != nil {
		return g, err
	}
	defer rows.Close()
	var teams []domain.Team
	for rows.Next() {
		var t domain.Team
		var home int
		if err := rows.Scan(&t.ID, &t.GameID, &t.Name, &home); err != nil {
			return g, err
		}
		t.Home = home != 0
		teams = append(teams, t)
	}
	if err := rows.Err(); err != nil {
		return g, err
	}
	for i := range teams {
		players, err := r.teamPlayers(ctx, q, teams[i].ID)
		if err != nil {
			return g, err
		}
		teams[i].Players = players
		if teams[i].Home {
			g.HomeTeam = teams[i]
		} else {
			g.AwayTeam = teams[i]
		}
	}
	return g, nil
}

func (r Repo) teamPlayers(ctx context.Context, q execer, teamID string) ([]domain.Player, error) {
	rows, err := q.QueryContext(ctx, `SELECT id,team_id,name,batting_order FROM players WHERE team_id=? ORDER BY batting_order`, teamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var players []domain.Player
	for rows.Next() {
		var p domain.Player
		if err := rows.Scan(&p.ID, &p.TeamID, &p.Name, &p.BattingOrder); err != nil {
			return nil, err
		}
		players = append(players, p)
	}
	return players, rows.Err()
}

// ListGames returns all games, newest first.
func (r Repo) ListGames(ctx context.Context) ([]domain.Game, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id FROM games ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	var games []domain.Game
	for _, id := range ids {
		g, err := r.GetGame(ctx, id)
		if err != nil {
			return nil, err
		}
		games = append(games, g)
	}
	return games, nil
}

// UpdateGame rewrites the mutable game columns.
func (r Repo) UpdateGame(ctx context.Context, tx *sql.Tx, g domain.Game) error {
	_, err := tx.ExecContext(ctx, `UPDATE games SET toss_winner_id=?,toss_decision=?,current_innings=?,status=?,result=? WHERE id=?`,
		nullable(g.TossWinnerID), nullable(g.TossDecision), g.CurrentInnings, g.Status, nullable(g.Result), g.ID)
	return err
}

// InsertInnings creates the row for a freshly started innings.
func (r Repo) InsertInnings(ctx context.Context, tx *sql.Tx, in domain.Innings) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO innings(game_id,number,batting_team_id,bowling_team_id,runs,wickets,legal_balls,wides,no_balls,byes,leg_byes,penalty,target,max_overs,striker_id,non_striker_id,bowler_id,prev_bowler_id,pending_batter,pending_over,dismissed_end,free_hit_pending,over_runs,overs_today,status)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		in.GameID, in.Number, in.BattingTeamID, in.BowlingTeamID,
		in.Runs, in.Wickets, in.LegalBalls,
		in.Extras.Wides, in.Extras.NoBalls, in.Extras.Byes, in.Extras.LegByes, in.Extras.Penalty,
		in.Target, in.MaxOvers,
		nullable(in.StrikerID), nullable(in.NonStrikerID), nullable(in.BowlerID), nullable(in.PrevBowlerID),
		boolInt(in.PendingBatter), boolInt(in.PendingOver), nullable(in.DismissedEnd), boolInt(in.FreeHit),
		in.OverRuns, in.OversToday, in.Status)
	return err
}

// GetInnings loads one innings projection.
func (r Repo) GetInnings(ctx context.Context, gameID string, number int) (domain.Innings, error) {
	return r.getInnings(ctx, r.DB, gameID, number)
}

// GetInningsTx is GetInnings inside an open transaction.
func (r Repo) GetInningsTx(ctx context.Context, tx *sql.Tx, gameID string, number int) (domain.Innings, error) {
	return r.getInnings(ctx, tx, gameID, number)
}

func (r Repo) getInnings(ctx context.Context, q execer, gameID string, number int) (domain.Innings, error) {
	var in domain.Innings
	var striker, nonStriker, bowler, prevBowler, dismissedEnd sql.NullString
	var target sql.NullInt64
	var pendingBatter, pendingOver, freeHit int
	err := q.QueryRowContext(ctx, `SELECT game_id,number,batting_team_id,bowling_team_id,runs,wickets,legal_balls,wides,no_balls,byes,leg_byes,penalty,target,max_overs,striker_id,non_striker_id,bowler_id,prev_bowler_id,pending_batter,pending_over,dismissed_end,free_hit_pending,over_runs,overs_today,status FROM innings WHERE game_id=? AND number=?`, gameID, number).
		Scan(&in.GameID, &in.Number, &in.BattingTeamID, &in.BowlingTeamID,
			&in.Runs, &in.Wickets, &in.LegalBalls,
			&in.Extras.Wides, &in.Extras.NoBalls, &in.Extras.Byes, &in.Extras.LegByes, &in.Extras.Penalty,
			&target, &in.MaxOvers, &striker, &nonStriker, &bowler, &prevBowler,
			&pendingBatter, &pendingOver, &dismissedEnd, &freeHit,
			&in.OverRuns, &in.OversToday, &in.Status)
	if err == sql.ErrNoRows {
		return in, fmt.Errorf("innings %d of game %s: %w", number, gameID, ErrNotFound)
	}
	if err != nil {
		return in, err
	}
	if target.Valid {
		v := int(target.Int64)
		in.Target = &v
	}
	in.StrikerID = striker.String
	in.NonStrikerID = nonStriker.String
	in.BowlerID = bowler.String
	in.PrevBowlerID = prevBowler.String
	in.DismissedEnd = dismissedEnd.String
	in.PendingBatter = pendingBatter != 0
	in.PendingOver = pendingOver != 0
	in.FreeHit = freeHit != 0
	return in, nil
}

// ListInnings returns all innings of a game in order.
func (r Repo) ListInnings(ctx context.Context, gameID string) ([]domain.Innings, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT number FROM innings WHERE game_id=? ORDER BY number`, gameID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var numbers []int
	for rows.Next() {
		var n int
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		numbers = append(numbers, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	var list []domain.Innings
	for _, n := range numbers {
		in, err := r.GetInnings(ctx, gameID, n)
		if err != nil {
			return nil, err
		}
		list = append(list, in)
	}
	return list, nil
}

// UpdateInnings rewrites the full innings projection row.
func (r Repo) UpdateInnings(ctx context.Context, tx *sql.Tx, in domain.Innings) error {
	_, err := tx.ExecContext(ctx, `UPDATE innings SET runs=?,wickets=?,legal_balls=?,wides=?,no_balls=?,byes=?,leg_byes=?,penalty=?,target=?,max_overs=?,striker_id=?,non_striker_id=?,bowler_id=?,prev_bowler_id=?,pending_batter=?,pending_over=?,dismissed_end=?,free_hit_pending=?,over_runs=?,overs_today=?,status=? WHERE game_id=? AND number=?`,
		in.Runs, in.Wickets, in.LegalBalls,
		in.Extras.Wides, in.Extras.NoBalls, in.Extras.Byes, in.Extras.LegByes, in.Extras.Penalty,
		in.Target, in.MaxOvers,
		nullable(in.StrikerID), nullable(in.NonStrikerID), nullable(in.BowlerID), nullable(in.PrevBowlerID),
		boolInt(in.PendingBatter), boolInt(in.PendingOver), nullable(in.DismissedEnd), boolInt(in.FreeHit),
		in.OverRuns, in.OversToday, in.Status,
		in.GameID, in.Number)
	return err
}

// UpsertBattingEntry writes a batting line, creating it on first touch.
func (r Repo) UpsertBattingEntry(ctx context.Context, tx *sql.Tx, b domain.BattingEntry) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO batting_entries(game_id,innings,player_id,position,runs,balls,fours,sixes,out,dismissal_type,bowler_id,fielder_id)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(game_id,innings,player_id) DO UPDATE SET runs=excluded.runs,balls=excluded.balls,fours=excluded.fours,sixes=excluded.sixes,out=excluded.out,dismissal_type=excluded.dismissal_type,bowler_id=excluded.bowler_id,fielder_id=excluded.fielder_id`,
		b.GameID, b.Innings, b.PlayerID, b.Position, b.Runs, b.Balls, b.Fours, b.Sixes,
		boolInt(b.Out), nullable(b.DismissalType), nullable(b.BowlerID), nullable(b.FielderID))
	return err
}

// GetBattingEntry returns the batting line for a player, or ErrNotFound.
func (r Repo) GetBattingEntry(ctx context.Context, tx *sql.Tx, gameID string, innings int, playerID string) (domain.BattingEntry, error) {
	var b domain.BattingEntry
	var out int
	var dismissal, bowler, fielder sql.NullString
	err := tx.QueryRowContext(ctx, `SELECT game_id,innings,player_id,position,runs,balls,fours,sixes,out,dismissal_type,bowler_id,fielder_id FROM batting_entries WHERE game_id=? AND innings=? AND player_id=?`,
		gameID, innings, playerID).
		Scan(&b.GameID, &b.Innings, &b.PlayerID, &b.Position, &b.Runs, &b.Balls, &b.Fours, &b.Sixes, &out, &dismissal, &bowler, &fielder)
	if err == sql.ErrNoRows {
		return b, ErrNotFound
	}
	if err != nil {
		return b, err
	}
	b.Out = out != 0
	b.DismissalType = dismissal.String
	b.BowlerID = bowler.String
	b.FielderID = fielder.String
	return b, nil
}

// ListBattingEntries returns an innings' batting card in batting order.
func (r Repo) ListBattingEntries(ctx context.Context, gameID string, innings int) ([]domain.BattingEntry, error) {
	return r.listBattingEntries(ctx, r.DB, gameID, innings)
}

// ListBattingEntriesTx is ListBattingEntries inside an open transaction.
func (r Repo) ListBattingEntriesTx(ctx context.Context, tx *sql.Tx, gameID string, innings int) ([]domain.BattingEntry, error) {
	return r.listBattingEntries(ctx, tx, gameID, innings)
}

func (r Repo) listBattingEntries(ctx context.Context, q execer, gameID string, innings int) ([]domain.BattingEntry, error) {
	rows, err := q.QueryContext(ctx, `SELECT game_id,innings,player_id,position,runs,balls,fours,sixes,out,dismissal_type,bowler_id,fielder_id FROM batting_entries WHERE game_id=? AND innings=? ORDER BY position`, gameID, innings)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []domain.BattingEntry
	for rows.Next() {
		var b domain.BattingEntry
		var out int
		var dismissal, bowler, fielder sql.NullString
		if err := rows.Scan(&b.GameID, &b.Innings, &b.PlayerID, &b.Position, &b.Runs, &b.Balls, &b.Fours, &b.Sixes, &out, &dismissal, &bowler, &fielder); err != nil {
			return nil, err
		}
		b.Out = out != 0
		b.DismissalType = dismissal.String
		b.BowlerID = bowler.String
		b.FielderID = fielder.String
		entries = append(entries, b)
	}
	return entries, rows.Err()
}

// CountBattingEntries returns how many batters have appeared in an innings.
func (r Repo) CountBattingEntries(ctx context.Context, tx *sql.Tx, gameID string, innings int) (int, error) {
	var n int
	err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM batting_entries WHERE game_id=? AND innings=?`, gameID, innings).Scan(&n)
	return n, err
}

// UpsertBowlingEntry writes a bowling line, creating it on first touch.
func (r Repo) UpsertBowlingEntry(ctx context.Context, tx *sql.Tx, b domain.BowlingEntry) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO bowling_entries(game_id,innings,player_id,balls,runs,wickets,maidens)
		VALUES (?,?,?,?,?,?,?)
		ON CONFLICT(game_id,innings,player_id) DO UPDATE SET balls=excluded.balls,runs=excluded.runs,wickets=excluded.wickets,maidens=excluded.maidens`,
		b.GameID, b.Innings, b.PlayerID, b.Balls, b.Runs, b.Wickets, b.Maidens)
	return err
}

// GetBowlingEntry returns the bowling line for a player, or ErrNotFound.
func (r Repo) GetBowlingEntry(ctx context.Context, tx *sql.Tx, gameID string, innings int, playerID string) (domain.BowlingEntry, error) {
	var b domain.BowlingEntry
	err := tx.QueryRowContext(ctx, `SELECT game_id,innings,player_id,balls,runs,wickets,maidens FROM bowling_entries WHERE game_id=? AND innings=? AND player_id=?`,
		gameID, innings, playerID).
		Scan(&b.GameID, &b.Innings, &b.PlayerID, &b.Balls, &b.Runs, &b.Wickets, &b.Maidens)
	if err == sql.ErrNoRows {
		return b, ErrNotFound
	}
	return b, err
}

// ListBowlingEntries returns an innings' bowling card in first-bowled order.
func (r Repo) ListBowlingEntries(ctx context.Context, gameID string, innings int) ([]domain.BowlingEntry, error) {
	return r.listBowlingEntries(ctx, r.DB, gameID, innings)
}

// ListBowlingEntriesTx is ListBowlingEntries inside an open transaction.
func (r Repo) ListBowlingEntriesTx(ctx context.Context, tx *sql.Tx, gameID string, innings int) ([]domain.BowlingEntry, error) {
	return r.listBowlingEntries(ctx, tx, gameID, innings)
}

func (r Repo) listBowlingEntries(ctx context.Context, q execer, gameID string, innings int) ([]domain.BowlingEntry, error) {
	rows, err := q.QueryContext(ctx, `SELECT game_id,innings,player_id,balls,runs,wickets,maidens FROM bowling_entries WHERE game_id=? AND innings=? ORDER BY rowid`, gameID, innings)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []domain.BowlingEntry
	for rows.Next() {
		var b domain.BowlingEntry
		if err := rows.Scan(&b.GameID, &b.Innings, &b.PlayerID, &b.Balls, &b.Runs, &b.Wickets, &b.Maidens); err != nil {
			return nil, err
		}
		entries = append(entries, b)
	}
	return entries, rows.Err()
}

// DeleteInningsAggregates clears the cached projection rows for one innings.
// Used by undo before replaying the remaining log.
func (r Repo) DeleteInningsAggregates(ctx context.Context, tx *sql.Tx, gameID string, innings int) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM batting_entries WHERE game_id=? AND innings=?`, gameID, innings); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, `DELETE FROM bowling_entries WHERE game_id=? AND innings=?`, gameID, innings)
	return err
}

// EventsAfter returns up to limit events with id greater than cursor.
func (r Repo) EventsAfter(ctx context.Context, limit int, cursor int64, gameID string) ([]domain.Event, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,ts,type,COALESCE(game_id,''),entity_kind,COALESCE(entity_id,''),scorer_id,payload_json FROM events WHERE id>? AND (?='' OR game_id=?) ORDER BY id LIMIT ?`,
		cursor, gameID, gameID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.GameID, &e.EntityKind, &e.EntityID, &e.ScorerID, &e.Payload); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
