package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"crease/internal/config"
	"crease/internal/dls"
	"crease/internal/domain"
	"crease/internal/events"
	"crease/internal/repo"
)

// Engine is the match state machine. Every mutating command is serialized
// per game id and runs as one apply-or-reject transaction; reads never lock.
type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Table  *dls.Table
	Now    func() time.Time

	locks sync.Map
}

func New(db *sql.DB, cfg *config.Config) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	table := dls.Standard()
	if cfg.DLS.TableFile != "" {
		var err error
		table, err = dls.FromFile(cfg.DLS.TableFile)
		if err != nil {
			return nil, fmt.Errorf("load dls table: %w", err)
		}
	}
	return &Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Table:  table,
		Now:    time.Now,
	}, nil
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// lock serializes mutating commands for one game.
func (e *Engine) lock(gameID string) func() {
	v, _ := e.locks.LoadOrStore(gameID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

type PlayerInput struct {
	ID   string
	Name string
}

type TeamInput struct {
	Name    string
	Players []PlayerInput
}

type CreateGameOptions struct {
	ID       string
	Format   string
	MaxOvers int
	Days     int
	OversPer int
	DLS      *bool
	FreeHit  *bool
	G50      *float64
	Home     TeamInput
	Away     TeamInput
	ScorerID string
}

func (e *Engine) CreateGame(ctx context.Context, opts CreateGameOptions) (domain.Game, error) {
	if e.Config == nil {
		return domain.Game{}, errors.New("config not loaded")
	}
	format := opts.Format
	if format == "" {
		format = e.Config.Defaults.Format
	}
	settings, err := e.Config.Preset(format)
	if err != nil {
		return domain.Game{}, ValidationError{Reason: err.Error()}
	}
	if opts.MaxOvers > 0 {
		settings.MaxOvers = opts.MaxOvers
	}
	if opts.Days > 0 {
		settings.Days = opts.Days
		settings.MaxOvers = 0
	}
	if opts.OversPer > 0 {
		settings.OversPerDay = opts.OversPer
	}
	if opts.DLS != nil {
		settings.DLSEnabled = *opts.DLS
	}
	if opts.FreeHit != nil {
		settings.FreeHit = *opts.FreeHit
	}
	if opts.G50 != nil {
		settings.G50 = *opts.G50
	}
	if settings.MaxOvers == 0 && settings.Days == 0 {
		return domain.Game{}, validationf("format %s needs an overs limit or days", format)
	}
	if settings.DLSEnabled && !settings.Limited() {
		return domain.Game{}, validationf("dls applies to limited-overs formats only")
	}
	if opts.Home.Name == "" || opts.Away.Name == "" {
		return domain.Game{}, validationf("both team names are required")
	}
	if opts.Home.Name == opts.Away.Name {
		return domain.Game{}, validationf("team names must differ")
	}

	id := opts.ID
	if id == "" {
		id = uuid.New().String()
	}
	g := domain.Game{
		ID:        id,
		Settings:  settings,
		Status:    domain.GameNotStarted,
		CreatedAt: e.now().UTC().Format(time.RFC3339),
	}
	seen := map[string]bool{}
	build := func(in TeamInput, home bool) (domain.Team, error) {
		t := domain.Team{ID: uuid.New().String(), GameID: id, Name: in.Name, Home: home}
		if len(in.Players) != settings.PlayersPerSide {
			return t, validationf("team %s needs %d players, got %d", in.Name, settings.PlayersPerSide, len(in.Players))
		}
		for i, p := range in.Players {
			pid := p.ID
			if pid == "" {
				pid = uuid.New().String()
			}
			if p.Name == "" {
				return t, validationf("team %s player %d has no name", in.Name, i+1)
			}
			if seen[pid] {
				return t, validationf("duplicate player id %s", pid)
			}
			seen[pid] = true
			t.Players = append(t.Players, domain.Player{ID: pid, TeamID: t.ID, Name: p.Name, BattingOrder: i + 1})
		}
		return t, nil
	}
	if g.HomeTeam, err = build(opts.Home, true); err != nil {
		return domain.Game{}, err
	}
	if g.AwayTeam, err = build(opts.Away, false); err != nil {
		return domain.Game{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Game{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertGame(ctx, tx, g); err != nil {
		return domain.Game{}, err
	}
	if err := e.Events.Append(ctx, tx, "game.created", g.ID, "game", g.ID, opts.ScorerID, events.EventPayload{
		"format": settings.Format, "home": g.HomeTeam.Name, "away": g.AwayTeam.Name,
	}); err != nil {
		return domain.Game{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Game{}, err
	}
	return g, nil
}

func (e *Engine) RecordToss(ctx context.Context, gameID, winnerTeamID, decision, scorerID string) (domain.Snapshot, error) {
	unlock := e.lock(gameID)
	defer unlock()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Snapshot{}, err
	}
	defer tx.Rollback()
	g, err := e.Repo.GetGameTx(ctx, tx, gameID)
	if err != nil {
		return domain.Snapshot{}, err
	}
	if g.Status != domain.GameNotStarted {
		return domain.Snapshot{}, TerminalStateError{Status: g.Status}
	}
	if _, ok := g.Team(winnerTeamID); !ok {
		return domain.Snapshot{}, validationf("team %s is not playing this game", winnerTeamID)
	}
	if decision != "bat" && decision != "bowl" {
		return domain.Snapshot{}, validationf("toss decision must be bat or bowl")
	}
	g.TossWinnerID = winnerTeamID
	g.TossDecision = decision
	if err := e.Repo.UpdateGame(ctx, tx, g); err != nil {
		return domain.Snapshot{}, err
	}
	if err := e.Events.Append(ctx, tx, "toss.recorded", g.ID, "game", g.ID, scorerID, events.EventPayload{
		"winner": winnerTeamID, "decision": decision,
	}); err != nil {
		return domain.Snapshot{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Snapshot{}, err
	}
	return e.Snapshot(ctx, gameID)
}

// battingTeamFor resolves which side bats in the given innings from the toss.
func battingTeamFor(g domain.Game, number int) (batting, bowling domain.Team) {
	first := g.HomeTeam
	second := g.AwayTeam
	if g.TossWinnerID != "" {
		winner, _ := g.Team(g.TossWinnerID)
		loser := g.HomeTeam
		if loser.ID == winner.ID {
			loser = g.AwayTeam
		}
		if g.TossDecision == "bat" {
			first, second = winner, loser
		} else {
			first, second = loser, winner
		}
	}
	if number%2 == 1 {
		return first, second
	}
	return second, first
}

// StartInnings opens the next innings with its two openers at the crease.
func (e *Engine) StartInnings(ctx context.Context, gameID, strikerID, nonStrikerID, scorerID string) (domain.Snapshot, error) {
	unlock := e.lock(gameID)
	defer unlock()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Snapshot{}, err
	}
	defer tx.Rollback()
	g, err := e.Repo.GetGameTx(ctx, tx, gameID)
	if err != nil {
		return domain.Snapshot{}, err
	}
	var number int
	switch g.Status {
	case domain.GameNotStarted:
		if g.TossWinnerID == "" {
			return domain.Snapshot{}, validationf("record the toss before starting play")
		}
		number = 1
	case domain.GameInningsBreak:
		number = g.CurrentInnings + 1
	default:
		return domain.Snapshot{}, TerminalStateError{Status: g.Status}
	}

	batting, bowling := battingTeamFor(g, number)
	if strikerID == nonStrikerID {
		return domain.Snapshot{}, validationf("openers must be two different players")
	}
	for _, pid := range []string{strikerID, nonStrikerID} {
		t, ok := g.PlayerTeam(pid)
		if !ok {
			return domain.Snapshot{}, fmt.Errorf("player %s: %w", pid, repo.ErrNotFound)
		}
		if t.ID != batting.ID {
			return domain.Snapshot{}, validationf("player %s is not in the batting side", pid)
		}
	}

	maxOvers := g.Settings.MaxOvers
	revs, err := e.Repo.ListOversRevisions(ctx, gameID, number)
	if err != nil {
		return domain.Snapshot{}, err
	}
	if len(revs) > 0 {
		maxOvers = revs[len(revs)-1].NewMax
	}

	in := domain.Innings{
		GameID:        gameID,
		Number:        number,
		BattingTeamID: batting.ID,
		BowlingTeamID: bowling.ID,
		MaxOvers:      maxOvers,
		StrikerID:     strikerID,
		NonStrikerID:  nonStrikerID,
		PendingOver:   true,
		Status:        domain.InningsInProgress,
	}
	if number == 2 {
		prev, err := e.Repo.GetInningsTx(ctx, tx, gameID, 1)
		if err != nil {
			return domain.Snapshot{}, err
		}
		target := prev.Runs + 1
		if g.Settings.DLSEnabled && g.Settings.Limited() {
			target, err = e.chaseTarget(ctx, g, prev, in, revs)
			if err != nil {
				return domain.Snapshot{}, err
			}
		}
		in.Target = &target
	}

	if err := e.Repo.InsertInnings(ctx, tx, in); err != nil {
		return domain.Snapshot{}, err
	}
	for i, pid := range []string{strikerID, nonStrikerID} {
		entry := domain.BattingEntry{GameID: gameID, Innings: number, PlayerID: pid, Position: i + 1}
		if err := e.Repo.UpsertBattingEntry(ctx, tx, entry); err != nil {
			return domain.Snapshot{}, err
		}
	}
	g.Status = domain.GameInProgress
	g.CurrentInnings = number
	if err := e.Repo.UpdateGame(ctx, tx, g); err != nil {
		return domain.Snapshot{}, err
	}
	payload := events.EventPayload{"batting": batting.Name, "striker": strikerID, "non_striker": nonStrikerID}
	if in.Target != nil {
		payload["target"] = *in.Target
	}
	if err := e.Events.Append(ctx, tx, "innings.started", gameID, "innings", fmt.Sprint(number), scorerID, payload); err != nil {
		return domain.Snapshot{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Snapshot{}, err
	}
	return e.Snapshot(ctx, gameID)
}

// DeliveryInput is the raw submission for one ball.
type DeliveryInput struct {
	RunsOffBat    int    `json:"runs_off_bat" required:"false"`
	Extra         string `json:"extra,omitempty" enum:"wide,no_ball,bye,leg_bye"`
	ExtraRuns     int    `json:"extra_runs,omitempty"`
	PenaltyRuns   int    `json:"penalty_runs,omitempty"`
	Wicket        bool   `json:"is_wicket,omitempty"`
	DismissalType string `json:"dismissal_type,omitempty"`
	DismissedID   string `json:"dismissed_player_id,omitempty"`
	FielderID     string `json:"fielder_id,omitempty"`
}

// ApplyDelivery validates and applies one ball, returning the new snapshot.
// A rejected delivery leaves no trace.
func (e *Engine) ApplyDelivery(ctx context.Context, gameID string, input DeliveryInput, scorerID string) (domain.Snapshot, error) {
	unlock := e.lock(gameID)
	defer unlock()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Snapshot{}, err
	}
	defer tx.Rollback()
	g, err := e.Repo.GetGameTx(ctx, tx, gameID)
	if err != nil {
		return domain.Snapshot{}, err
	}
	if g.Status != domain.GameInProgress {
		return domain.Snapshot{}, TerminalStateError{Status: g.Status}
	}
	in, err := e.Repo.GetInningsTx(ctx, tx, gameID, g.CurrentInnings)
	if err != nil {
		return domain.Snapshot{}, err
	}
	st, err := e.loadState(ctx, tx, in)
	if err != nil {
		return domain.Snapshot{}, err
	}
	if in.PendingBatter {
		batting, _ := g.Team(in.BattingTeamID)
		return domain.Snapshot{}, GateError{
			Gate:        domain.GateBatter,
			DismissedID: lastDismissed(st),
			Eligible:    eligibleBatters(batting, st),
		}
	}
	if in.PendingOver {
		return domain.Snapshot{}, GateError{Gate: domain.GateOver, PrevBowler: in.PrevBowlerID}
	}

	eff, err := classifyDelivery(input)
	if err != nil {
		return domain.Snapshot{}, err
	}
	freeHit := g.Settings.FreeHit && in.FreeHit
	dismissed, err := validateDismissal(input, in.StrikerID, in.NonStrikerID, freeHit)
	if err != nil {
		return domain.Snapshot{}, err
	}

	bpo := g.Settings.BallsPerOver
	d := domain.Delivery{
		GameID:        gameID,
		Innings:       in.Number,
		Over:          in.LegalBalls / bpo,
		BallInOver:    in.LegalBalls%bpo + 1,
		StrikerID:     in.StrikerID,
		NonStrikerID:  in.NonStrikerID,
		BowlerID:      in.BowlerID,
		RunsOffBat:    eff.batRuns,
		ExtraType:     eff.extraType,
		ExtraRuns:     eff.extraRuns,
		PenaltyRuns:   eff.penaltyRuns,
		Wicket:        input.Wicket,
		DismissalType: input.DismissalType,
		DismissedID:   dismissed,
		FielderID:     input.FielderID,
		FreeHit:       freeHit,
		CreatedAt:     e.now().UTC().Format(time.RFC3339),
	}

	outcome := applyBall(st, d, eff, dismissed, g.Settings)

	if d.ID, err = e.Repo.InsertDelivery(ctx, tx, d); err != nil {
		return domain.Snapshot{}, err
	}
	if err := e.persistState(ctx, tx, st); err != nil {
		return domain.Snapshot{}, err
	}
	ballID := fmt.Sprint(d.ID)
	if err := e.Events.Append(ctx, tx, "ball.applied", gameID, "delivery", ballID, scorerID, events.EventPayload{
		"innings": d.Innings, "over": d.Over, "ball": d.BallInOver,
		"runs": eff.total, "extra": eff.extraType, "wicket": d.Wicket,
	}); err != nil {
		return domain.Snapshot{}, err
	}
	if outcome.wicket {
		if err := e.Events.Append(ctx, tx, "wicket.fallen", gameID, "delivery", ballID, scorerID, events.EventPayload{
			"player": outcome.dismissedID, "dismissal": d.DismissalType, "score": st.in.Runs, "wicket": st.in.Wickets,
		}); err != nil {
			return domain.Snapshot{}, err
		}
	}
	if outcome.overCompleted {
		if err := e.Events.Append(ctx, tx, "over.completed", gameID, "innings", fmt.Sprint(in.Number), scorerID, events.EventPayload{
			"over": d.Over, "bowler": d.BowlerID,
		}); err != nil {
			return domain.Snapshot{}, err
		}
	}
	if outcome.inningsDone {
		if err := e.closeInnings(ctx, tx, &g, st, outcome.inningsEndedBy, scorerID); err != nil {
			return domain.Snapshot{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.Snapshot{}, err
	}
	return e.Snapshot(ctx, gameID)
}

// closeInnings handles the game-level transition when an innings terminates.
func (e *Engine) closeInnings(ctx context.Context, tx *sql.Tx, g *domain.Game, st *inningsState, reason, scorerID string) error {
	if err := e.Events.Append(ctx, tx, "innings.closed", g.ID, "innings", fmt.Sprint(st.in.Number), scorerID, events.EventPayload{
		"reason": reason, "runs": st.in.Runs, "wickets": st.in.Wickets,
	}); err != nil {
		return err
	}
	if st.in.Number < 2 {
		g.Status = domain.GameInningsBreak
	} else {
		g.Status = domain.GameCompleted
		reduced, err := e.Repo.HasOversRevisions(ctx, tx, g.ID)
		if err != nil {
			return err
		}
		g.Result = result(*g, st, reduced)
		if err := e.Events.Append(ctx, tx, "game.completed", g.ID, "game", g.ID, scorerID, events.EventPayload{
			"result": g.Result,
		}); err != nil {
			return err
		}
	}
	return e.Repo.UpdateGame(ctx, tx, *g)
}

// result phrases the outcome of a completed two-innings game.
func result(g domain.Game, st *inningsState, reduced bool) string {
	in := st.in
	if in.Target == nil {
		return ""
	}
	batting, _ := g.Team(in.BattingTeamID)
	bowling, _ := g.Team(in.BowlingTeamID)
	dls := ""
	prevRuns := *in.Target - 1
	if g.Settings.DLSEnabled && reduced {
		dls = " (DLS)"
	}
	switch {
	case in.Runs >= *in.Target:
		wicketsLeft := g.Settings.PlayersPerSide - 1 - in.Wickets
		return fmt.Sprintf("%s won by %d wicket(s)%s", batting.Name, wicketsLeft, dls)
	case in.Runs == prevRuns:
		return "match tied" + dls
	default:
		return fmt.Sprintf("%s won by %d run(s)%s", bowling.Name, prevRuns-in.Runs, dls)
	}
}

// SelectNextBatter resolves the batter gate after a wicket.
func (e *Engine) SelectNextBatter(ctx context.Context, gameID, playerID, scorerID string) (domain.Snapshot, error) {
	unlock := e.lock(gameID)
	defer unlock()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Snapshot{}, err
	}
	defer tx.Rollback()
	g, err := e.Repo.GetGameTx(ctx, tx, gameID)
	if err != nil {
		return domain.Snapshot{}, err
	}
	if g.Status != domain.GameInProgress {
		return domain.Snapshot{}, TerminalStateError{Status: g.Status}
	}
	in, err := e.Repo.GetInningsTx(ctx, tx, gameID, g.CurrentInnings)
	if err != nil {
		return domain.Snapshot{}, err
	}
	if !in.PendingBatter {
		return domain.Snapshot{}, SelectionError{Code: SelectionNotPending, PlayerID: playerID}
	}
	t, ok := g.PlayerTeam(playerID)
	if !ok {
		return domain.Snapshot{}, fmt.Errorf("player %s: %w", playerID, repo.ErrNotFound)
	}
	if t.ID != in.BattingTeamID {
		return domain.Snapshot{}, validationf("player %s is not in the batting side", playerID)
	}
	entry, err := e.Repo.GetBattingEntry(ctx, tx, gameID, in.Number, playerID)
	switch {
	case err == nil && entry.Out:
		return domain.Snapshot{}, SelectionError{Code: SelectionAlreadyOut, PlayerID: playerID}
	case err == nil:
		return domain.Snapshot{}, SelectionError{Code: SelectionAlreadyBatting, PlayerID: playerID}
	case !errors.Is(err, repo.ErrNotFound):
		return domain.Snapshot{}, err
	}

	n, err := e.Repo.CountBattingEntries(ctx, tx, gameID, in.Number)
	if err != nil {
		return domain.Snapshot{}, err
	}
	newEntry := domain.BattingEntry{GameID: gameID, Innings: in.Number, PlayerID: playerID, Position: n + 1}
	if err := e.Repo.UpsertBattingEntry(ctx, tx, newEntry); err != nil {
		return domain.Snapshot{}, err
	}
	// The replacement takes the vacated end.
	if in.DismissedEnd == domain.EndNonStriker {
		in.NonStrikerID = playerID
	} else {
		in.StrikerID = playerID
	}
	in.PendingBatter = false
	in.DismissedEnd = ""
	if err := e.Repo.UpdateInnings(ctx, tx, in); err != nil {
		return domain.Snapshot{}, err
	}
	if err := e.Events.Append(ctx, tx, "batter.selected", gameID, "player", playerID, scorerID, events.EventPayload{
		"position": n + 1,
	}); err != nil {
		return domain.Snapshot{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Snapshot{}, err
	}
	return e.Snapshot(ctx, gameID)
}

// StartOver resolves the over gate by naming the next bowler.
func (e *Engine) StartOver(ctx context.Context, gameID, bowlerID, scorerID string) (domain.Snapshot, error) {
	unlock := e.lock(gameID)
	defer unlock()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Snapshot{}, err
	}
	defer tx.Rollback()
	g, err := e.Repo.GetGameTx(ctx, tx, gameID)
	if err != nil {
		return domain.Snapshot{}, err
	}
	if g.Status != domain.GameInProgress {
		return domain.Snapshot{}, TerminalStateError{Status: g.Status}
	}
	in, err := e.Repo.GetInningsTx(ctx, tx, gameID, g.CurrentInnings)
	if err != nil {
		return domain.Snapshot{}, err
	}
	if !in.PendingOver {
		return domain.Snapshot{}, OverError{Code: OverInProgress, BowlerID: bowlerID}
	}
	if g.Settings.OversPerDay > 0 && in.OversToday >= g.Settings.OversPerDay {
		return domain.Snapshot{}, validationf("today's %d-over allocation is bowled; advance the day first", g.Settings.OversPerDay)
	}
	t, ok := g.PlayerTeam(bowlerID)
	if !ok {
		return domain.Snapshot{}, fmt.Errorf("player %s: %w", bowlerID, repo.ErrNotFound)
	}
	if t.ID != in.BowlingTeamID {
		return domain.Snapshot{}, validationf("player %s is not in the bowling side", bowlerID)
	}
	if bowlerID == in.PrevBowlerID {
		return domain.Snapshot{}, OverError{Code: OverSameBowler, BowlerID: bowlerID}
	}
	in.BowlerID = bowlerID
	in.PendingOver = false
	in.OverRuns = 0
	if err := e.Repo.UpdateInnings(ctx, tx, in); err != nil {
		return domain.Snapshot{}, err
	}
	bpo := g.Settings.BallsPerOver
	if err := e.Events.Append(ctx, tx, "over.started", gameID, "innings", fmt.Sprint(in.Number), scorerID, events.EventPayload{
		"over": in.LegalBalls / bpo, "bowler": bowlerID,
	}); err != nil {
		return domain.Snapshot{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Snapshot{}, err
	}
	return e.Snapshot(ctx, gameID)
}

// RecordInterruption opens an interruption window.
func (e *Engine) RecordInterruption(ctx context.Context, gameID, kind, note, scorerID string) (domain.Snapshot, error) {
	unlock := e.lock(gameID)
	defer unlock()

	switch kind {
	case domain.InterruptionWeather, domain.InterruptionInjury, domain.InterruptionLight, domain.InterruptionOther:
	default:
		return domain.Snapshot{}, validationf("interruption kind %q unknown", kind)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Snapshot{}, err
	}
	defer tx.Rollback()
	g, err := e.Repo.GetGameTx(ctx, tx, gameID)
	if err != nil {
		return domain.Snapshot{}, err
	}
	if g.Status == domain.GameCompleted || g.Status == domain.GameNotStarted {
		return domain.Snapshot{}, TerminalStateError{Status: g.Status}
	}
	i := domain.Interruption{
		GameID:    gameID,
		Innings:   g.CurrentInnings,
		Kind:      kind,
		StartedAt: e.now().UTC().Format(time.RFC3339),
		Note:      note,
	}
	id, err := e.Repo.InsertInterruption(ctx, tx, i)
	if err != nil {
		return domain.Snapshot{}, err
	}
	if err := e.Events.Append(ctx, tx, "interruption.started", gameID, "interruption", fmt.Sprint(id), scorerID, events.EventPayload{
		"kind": kind, "note": note,
	}); err != nil {
		return domain.Snapshot{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Snapshot{}, err
	}
	return e.Snapshot(ctx, gameID)
}

// EndInterruption closes the newest open window, optionally matched by kind.
func (e *Engine) EndInterruption(ctx context.Context, gameID, kind, scorerID string) (domain.Snapshot, error) {
	unlock := e.lock(gameID)
	defer unlock()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Snapshot{}, err
	}
	defer tx.Rollback()
	if _, err := e.Repo.GetGameTx(ctx, tx, gameID); err != nil {
		return domain.Snapshot{}, err
	}
	open, err := e.Repo.OpenInterruption(ctx, tx, gameID, kind)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Snapshot{}, validationf("no open interruption to end")
		}
		return domain.Snapshot{}, err
	}
	if err := e.Repo.CloseInterruption(ctx, tx, open.ID, e.now().UTC().Format(time.RFC3339)); err != nil {
		return domain.Snapshot{}, err
	}
	if err := e.Events.Append(ctx, tx, "interruption.ended", gameID, "interruption", fmt.Sprint(open.ID), scorerID, events.EventPayload{
		"kind": open.Kind,
	}); err != nil {
		return domain.Snapshot{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Snapshot{}, err
	}
	return e.Snapshot(ctx, gameID)
}

// ReduceOvers applies a mid-innings shortening. Reducing a chase recomputes
// the DLS target; reducing an innings that has not started yet only records
// the revision for StartInnings to pick up.
func (e *Engine) ReduceOvers(ctx context.Context, gameID string, inningsNo, newMax int, scorerID string) (domain.Snapshot, error) {
	unlock := e.lock(gameID)
	defer unlock()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Snapshot{}, err
	}
	defer tx.Rollback()
	g, err := e.Repo.GetGameTx(ctx, tx, gameID)
	if err != nil {
		return domain.Snapshot{}, err
	}
	if g.Status == domain.GameCompleted {
		return domain.Snapshot{}, TerminalStateError{Status: g.Status}
	}
	if !g.Settings.Limited() {
		return domain.Snapshot{}, validationf("overs reduction applies to limited-overs formats only")
	}
	if inningsNo < 1 || inningsNo > 2 {
		return domain.Snapshot{}, validationf("innings must be 1 or 2")
	}
	if inningsNo < g.CurrentInnings {
		return domain.Snapshot{}, validationf("innings %d is already closed", inningsNo)
	}
	bpo := g.Settings.BallsPerOver
	now := e.now().UTC().Format(time.RFC3339)

	in, err := e.Repo.GetInningsTx(ctx, tx, gameID, inningsNo)
	if errors.Is(err, repo.ErrNotFound) {
		// Not started yet: record the revision against the full allocation.
		oldMax := g.Settings.MaxOvers
		if revs, lerr := e.Repo.ListOversRevisions(ctx, gameID, inningsNo); lerr == nil && len(revs) > 0 {
			oldMax = revs[len(revs)-1].NewMax
		}
		if newMax <= 0 || newMax >= oldMax {
			return domain.Snapshot{}, validationf("new overs limit %d must be below the current %d", newMax, oldMax)
		}
		rev := domain.OversRevision{
			GameID: gameID, Innings: inningsNo,
			BallsBefore: oldMax * bpo, BallsAfter: newMax * bpo,
			Wickets: 0, OldMax: oldMax, NewMax: newMax, CreatedAt: now,
		}
		if err := e.Repo.InsertOversRevision(ctx, tx, rev); err != nil {
			return domain.Snapshot{}, err
		}
		if err := e.Events.Append(ctx, tx, "overs.reduced", gameID, "innings", fmt.Sprint(inningsNo), scorerID, events.EventPayload{
			"from": oldMax, "to": newMax,
		}); err != nil {
			return domain.Snapshot{}, err
		}
		if err := tx.Commit(); err != nil {
			return domain.Snapshot{}, err
		}
		return e.Snapshot(ctx, gameID)
	}
	if err != nil {
		return domain.Snapshot{}, err
	}
	if in.Status != domain.InningsInProgress {
		return domain.Snapshot{}, validationf("innings %d is already closed", inningsNo)
	}
	if newMax <= 0 || newMax >= in.MaxOvers {
		return domain.Snapshot{}, validationf("new overs limit %d must be below the current %d", newMax, in.MaxOvers)
	}
	if newMax*bpo < in.LegalBalls {
		return domain.Snapshot{}, validationf("%d overs are already bowled", in.LegalBalls/bpo)
	}
	rev := domain.OversRevision{
		GameID: gameID, Innings: inningsNo,
		BallsBefore: in.MaxOvers*bpo - in.LegalBalls, BallsAfter: newMax*bpo - in.LegalBalls,
		Wickets: in.Wickets, OldMax: in.MaxOvers, NewMax: newMax, CreatedAt: now,
	}
	if err := e.Repo.InsertOversRevision(ctx, tx, rev); err != nil {
		return domain.Snapshot{}, err
	}
	in.MaxOvers = newMax

	if inningsNo == 2 && g.Settings.DLSEnabled {
		prev, err := e.Repo.GetInningsTx(ctx, tx, gameID, 1)
		if err != nil {
			return domain.Snapshot{}, err
		}
		revs, err := e.Repo.ListOversRevisions(ctx, gameID, 2)
		if err != nil {
			return domain.Snapshot{}, err
		}
		revs = append(revs, rev)
		target, err := e.chaseTarget(ctx, g, prev, in, revs)
		if err != nil {
			return domain.Snapshot{}, err
		}
		in.Target = &target
	}
	if err := e.Repo.UpdateInnings(ctx, tx, in); err != nil {
		return domain.Snapshot{}, err
	}
	if err := e.Events.Append(ctx, tx, "overs.reduced", gameID, "innings", fmt.Sprint(inningsNo), scorerID, events.EventPayload{
		"from": rev.OldMax, "to": newMax,
	}); err != nil {
		return domain.Snapshot{}, err
	}

	// A reduction can exhaust the innings on the spot.
	if in.LegalBalls >= newMax*bpo {
		st, err := e.loadState(ctx, tx, in)
		if err != nil {
			return domain.Snapshot{}, err
		}
		st.in.Status = domain.InningsCompleted
		st.in.PendingBatter = false
		st.in.PendingOver = false
		st.in.DismissedEnd = ""
		st.in.FreeHit = false
		if err := e.Repo.UpdateInnings(ctx, tx, st.in); err != nil {
			return domain.Snapshot{}, err
		}
		if err := e.closeInnings(ctx, tx, &g, st, endedOversComplete, scorerID); err != nil {
			return domain.Snapshot{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.Snapshot{}, err
	}
	return e.Snapshot(ctx, gameID)
}

// AdvanceDay resets the daily overs counter for multi-day games.
func (e *Engine) AdvanceDay(ctx context.Context, gameID, scorerID string) (domain.Snapshot, error) {
	unlock := e.lock(gameID)
	defer unlock()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Snapshot{}, err
	}
	defer tx.Rollback()
	g, err := e.Repo.GetGameTx(ctx, tx, gameID)
	if err != nil {
		return domain.Snapshot{}, err
	}
	if g.Settings.OversPerDay == 0 {
		return domain.Snapshot{}, validationf("game has no daily overs allocation")
	}
	if g.Status != domain.GameInProgress {
		return domain.Snapshot{}, TerminalStateError{Status: g.Status}
	}
	in, err := e.Repo.GetInningsTx(ctx, tx, gameID, g.CurrentInnings)
	if err != nil {
		return domain.Snapshot{}, err
	}
	in.OversToday = 0
	if err := e.Repo.UpdateInnings(ctx, tx, in); err != nil {
		return domain.Snapshot{}, err
	}
	if err := e.Events.Append(ctx, tx, "day.advanced", gameID, "game", gameID, scorerID, nil); err != nil {
		return domain.Snapshot{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Snapshot{}, err
	}
	return e.Snapshot(ctx, gameID)
}

// AbandonGame closes a game with no result.
func (e *Engine) AbandonGame(ctx context.Context, gameID, reason, scorerID string) (domain.Snapshot, error) {
	unlock := e.lock(gameID)
	defer unlock()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Snapshot{}, err
	}
	defer tx.Rollback()
	g, err := e.Repo.GetGameTx(ctx, tx, gameID)
	if err != nil {
		return domain.Snapshot{}, err
	}
	if g.Status == domain.GameCompleted {
		return domain.Snapshot{}, TerminalStateError{Status: g.Status}
	}
	g.Status = domain.GameCompleted
	g.Result = "no result"
	if reason != "" {
		g.Result = "no result (" + reason + ")"
	}
	if err := e.Repo.UpdateGame(ctx, tx, g); err != nil {
		return domain.Snapshot{}, err
	}
	if err := e.Events.Append(ctx, tx, "game.abandoned", gameID, "game", gameID, scorerID, events.EventPayload{
		"reason": reason,
	}); err != nil {
		return domain.Snapshot{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Snapshot{}, err
	}
	return e.Snapshot(ctx, gameID)
}

// UndoLastDelivery pops the newest delivery and rebuilds the innings
// projection by replaying what remains of the log.
func (e *Engine) UndoLastDelivery(ctx context.Context, gameID, scorerID string) (domain.Snapshot, error) {
	unlock := e.lock(gameID)
	defer unlock()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Snapshot{}, err
	}
	defer tx.Rollback()
	g, err := e.Repo.GetGameTx(ctx, tx, gameID)
	if err != nil {
		return domain.Snapshot{}, err
	}
	if g.Status != domain.GameInProgress {
		// Undoing the delivery that closed an innings would also unwind the
		// innings transition; the closing ball is final.
		return domain.Snapshot{}, TerminalStateError{Status: g.Status}
	}
	in, err := e.Repo.GetInningsTx(ctx, tx, gameID, g.CurrentInnings)
	if err != nil {
		return domain.Snapshot{}, err
	}
	last, err := e.Repo.LastDelivery(ctx, tx, gameID, in.Number)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Snapshot{}, validationf("no deliveries to undo in this innings")
		}
		return domain.Snapshot{}, err
	}
	if err := e.Repo.DeleteDelivery(ctx, tx, last.ID); err != nil {
		return domain.Snapshot{}, err
	}
	log, err := e.Repo.ListDeliveriesTx(ctx, tx, gameID, in.Number)
	if err != nil {
		return domain.Snapshot{}, err
	}
	st, err := replayInnings(in, log, g.Settings)
	if err != nil {
		return domain.Snapshot{}, err
	}
	if len(log) == 0 {
		// The popped ball was the first of the innings; its enders are the
		// openers, which the empty log cannot witness.
		st.in.StrikerID = last.StrikerID
		st.in.NonStrikerID = last.NonStrikerID
		st.batter(last.StrikerID)
		st.batter(last.NonStrikerID)
	}
	bpo := g.Settings.BallsPerOver
	st.in.OversToday = in.OversToday
	if last.Legal() && in.LegalBalls%bpo == 0 && st.in.OversToday > 0 {
		st.in.OversToday--
	}
	if err := e.Repo.DeleteInningsAggregates(ctx, tx, gameID, in.Number); err != nil {
		return domain.Snapshot{}, err
	}
	if err := e.persistState(ctx, tx, st); err != nil {
		return domain.Snapshot{}, err
	}
	if err := e.Events.Append(ctx, tx, "ball.undone", gameID, "delivery", fmt.Sprint(last.ID), scorerID, events.EventPayload{
		"innings": last.Innings, "over": last.Over, "ball": last.BallInOver,
	}); err != nil {
		return domain.Snapshot{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Snapshot{}, err
	}
	return e.Snapshot(ctx, gameID)
}

// ReplayReport is the outcome of a log-versus-projection audit.
type ReplayReport struct {
	GameID      string   `json:"game_id"`
	OK          bool     `json:"ok"`
	Differences []string `json:"differences,omitempty"`
}

// VerifyReplay refolds every innings' delivery log and diffs the result
// against the cached projection.
func (e *Engine) VerifyReplay(ctx context.Context, gameID string) (ReplayReport, error) {
	g, err := e.Repo.GetGame(ctx, gameID)
	if err != nil {
		return ReplayReport{}, err
	}
	report := ReplayReport{GameID: gameID, OK: true}
	list, err := e.Repo.ListInnings(ctx, gameID)
	if err != nil {
		return ReplayReport{}, err
	}
	for _, in := range list {
		cached := newInningsState(in)
		bats, err := e.Repo.ListBattingEntries(ctx, gameID, in.Number)
		if err != nil {
			return ReplayReport{}, err
		}
		for i := range bats {
			cached.batting[bats[i].PlayerID] = &bats[i]
			cached.order = append(cached.order, bats[i].PlayerID)
		}
		bowls, err := e.Repo.ListBowlingEntries(ctx, gameID, in.Number)
		if err != nil {
			return ReplayReport{}, err
		}
		for i := range bowls {
			cached.bowling[bowls[i].PlayerID] = &bowls[i]
		}
		log, err := e.Repo.ListDeliveries(ctx, gameID, in.Number)
		if err != nil {
			return ReplayReport{}, err
		}
		replayed, err := replayInnings(in, log, g.Settings)
		if err != nil {
			return ReplayReport{}, err
		}
		for _, d := range diffAggregates(cached, replayed) {
			report.OK = false
			report.Differences = append(report.Differences, fmt.Sprintf("innings %d: %s", in.Number, d))
		}
	}
	return report, nil
}

// loadState reads the cached projection of an innings into working form.
func (e *Engine) loadState(ctx context.Context, tx *sql.Tx, in domain.Innings) (*inningsState, error) {
	st := newInningsState(in)
	bats, err := e.Repo.ListBattingEntriesTx(ctx, tx, in.GameID, in.Number)
	if err != nil {
		return nil, err
	}
	for i := range bats {
		st.batting[bats[i].PlayerID] = &bats[i]
		st.order = append(st.order, bats[i].PlayerID)
	}
	bowls, err := e.Repo.ListBowlingEntriesTx(ctx, tx, in.GameID, in.Number)
	if err != nil {
		return nil, err
	}
	for i := range bowls {
		st.bowling[bowls[i].PlayerID] = &bowls[i]
	}
	return st, nil
}

// persistState writes the working state back as the cached projection.
func (e *Engine) persistState(ctx context.Context, tx *sql.Tx, st *inningsState) error {
	for _, b := range st.batting {
		if err := e.Repo.UpsertBattingEntry(ctx, tx, *b); err != nil {
			return err
		}
	}
	for _, b := range st.bowling {
		if err := e.Repo.UpsertBowlingEntry(ctx, tx, *b); err != nil {
			return err
		}
	}
	return e.Repo.UpdateInnings(ctx, tx, st.in)
}

// eligibleBatters lists the batting side's players who have not batted, in
// batting order.
func eligibleBatters(team domain.Team, st *inningsState) []domain.Player {
	var out []domain.Player
	for _, p := range team.Players {
		if _, batted := st.batting[p.ID]; !batted {
			out = append(out, p)
		}
	}
	return out
}

// lastDismissed finds the most recently fallen batter for gate context.
func lastDismissed(st *inningsState) string {
	var last string
	pos := -1
	for id, b := range st.batting {
		if b.Out && b.Position > pos {
			pos = b.Position
			last = id
		}
	}
	return last
}
