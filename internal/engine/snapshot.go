package engine

import (
	"context"
	"fmt"
	"math"

	"crease/internal/domain"
)

// Snapshot builds the full external view of a game. It reads committed state
// only and takes no locks, so it is safe to call concurrently with commands.
func (e *Engine) Snapshot(ctx context.Context, gameID string) (domain.Snapshot, error) {
	g, err := e.Repo.GetGame(ctx, gameID)
	if err != nil {
		return domain.Snapshot{}, err
	}
	names := map[string]string{}
	for _, t := range []domain.Team{g.HomeTeam, g.AwayTeam} {
		for _, p := range t.Players {
			names[p.ID] = p.Name
		}
	}
	snap := domain.Snapshot{
		GameID:         g.ID,
		Status:         g.Status,
		Result:         g.Result,
		CurrentInnings: g.CurrentInnings,
	}
	list, err := e.Repo.ListInnings(ctx, gameID)
	if err != nil {
		return domain.Snapshot{}, err
	}
	for _, in := range list {
		current := in.Number == g.CurrentInnings && g.Status == domain.GameInProgress
		view, err := e.inningsView(ctx, g, in, names, current)
		if err != nil {
			return domain.Snapshot{}, err
		}
		snap.Innings = append(snap.Innings, view)
		if current {
			snap.Gate = in.Gate()
			snap.PendingBatter = in.PendingBatter
			snap.PendingOver = in.PendingOver
			snap.FreeHit = g.Settings.FreeHit && in.FreeHit
			if in.PendingBatter {
				st, err := e.cachedState(ctx, in)
				if err != nil {
					return domain.Snapshot{}, err
				}
				batting, _ := g.Team(in.BattingTeamID)
				snap.Eligible = eligibleBatters(batting, st)
			}
		}
	}
	if snap.Interruptions, err = e.Repo.ListInterruptions(ctx, gameID); err != nil {
		return domain.Snapshot{}, err
	}
	if g.Settings.DLSEnabled && g.Settings.Limited() && g.CurrentInnings >= 1 {
		if view, err := e.figures(ctx, g, 0, nil); err == nil {
			snap.DLS = view
		}
	}
	return snap, nil
}

// cachedState loads the committed projection without a transaction.
func (e *Engine) cachedState(ctx context.Context, in domain.Innings) (*inningsState, error) {
	st := newInningsState(in)
	bats, err := e.Repo.ListBattingEntries(ctx, in.GameID, in.Number)
	if err != nil {
		return nil, err
	}
	for i := range bats {
		st.batting[bats[i].PlayerID] = &bats[i]
		st.order = append(st.order, bats[i].PlayerID)
	}
	bowls, err := e.Repo.ListBowlingEntries(ctx, in.GameID, in.Number)
	if err != nil {
		return nil, err
	}
	for i := range bowls {
		st.bowling[bowls[i].PlayerID] = &bowls[i]
	}
	return st, nil
}

func (e *Engine) inningsView(ctx context.Context, g domain.Game, in domain.Innings, names map[string]string, current bool) (domain.InningsView, error) {
	battingTeam, _ := g.Team(in.BattingTeamID)
	bowlingTeam, _ := g.Team(in.BowlingTeamID)
	bpo := g.Settings.BallsPerOver
	view := domain.InningsView{
		Number:      in.Number,
		BattingTeam: battingTeam.Name,
		BowlingTeam: bowlingTeam.Name,
		Runs:        in.Runs,
		Wickets:     in.Wickets,
		Overs:       in.Overs(bpo),
		Extras:      in.Extras,
		Target:      in.Target,
		MaxOvers:    in.MaxOvers,
		Status:      in.Status,
	}
	if in.LegalBalls > 0 {
		view.RunRate = round2(float64(in.Runs) * float64(bpo) / float64(in.LegalBalls))
	}

	bats, err := e.Repo.ListBattingEntries(ctx, in.GameID, in.Number)
	if err != nil {
		return view, err
	}
	for _, b := range bats {
		line := domain.BatterView{
			PlayerID:  b.PlayerID,
			Name:      names[b.PlayerID],
			Runs:      b.Runs,
			Balls:     b.Balls,
			Fours:     b.Fours,
			Sixes:     b.Sixes,
			Out:       b.Out,
			Dismissal: dismissalLine(b, names),
			OnStrike:  current && !in.PendingBatter && b.PlayerID == in.StrikerID,
		}
		if b.Balls > 0 {
			line.StrikeRate = round2(float64(b.Runs) / float64(b.Balls) * 100)
		}
		view.Batting = append(view.Batting, line)
	}

	bowls, err := e.Repo.ListBowlingEntries(ctx, in.GameID, in.Number)
	if err != nil {
		return view, err
	}
	for _, b := range bowls {
		line := domain.BowlerView{
			PlayerID: b.PlayerID,
			Name:     names[b.PlayerID],
			Overs:    oversString(b.Balls, bpo),
			Runs:     b.Runs,
			Wickets:  b.Wickets,
			Maidens:  b.Maidens,
		}
		if b.Balls > 0 {
			line.Economy = round2(float64(b.Runs) * float64(bpo) / float64(b.Balls))
		}
		view.Bowling = append(view.Bowling, line)
	}

	view.FallOfWickets, err = e.fallOfWickets(ctx, in)
	return view, err
}

// fallOfWickets scans the delivery log; the running score at each wicket
// includes that ball's runs.
func (e *Engine) fallOfWickets(ctx context.Context, in domain.Innings) ([]domain.FallOfWicket, error) {
	log, err := e.Repo.ListDeliveries(ctx, in.GameID, in.Number)
	if err != nil {
		return nil, err
	}
	var out []domain.FallOfWicket
	total := 0
	for _, d := range log {
		total += d.RunsOffBat + d.ExtraRuns + d.PenaltyRuns
		if d.Wicket {
			out = append(out, domain.FallOfWicket{
				Wicket:   len(out) + 1,
				Score:    total,
				Over:     d.Over,
				Ball:     d.BallInOver,
				PlayerID: d.DismissedID,
			})
		}
	}
	return out, nil
}

// dismissalLine renders a scorecard dismissal, e.g. "c Khan b Rashid".
func dismissalLine(b domain.BattingEntry, names map[string]string) string {
	if !b.Out {
		return ""
	}
	bowler := names[b.BowlerID]
	fielder := names[b.FielderID]
	switch b.DismissalType {
	case domain.DismissalBowled:
		return "b " + bowler
	case domain.DismissalCaught:
		if fielder == bowler && fielder != "" {
			return "c & b " + bowler
		}
		return "c " + fielder + " b " + bowler
	case domain.DismissalLBW:
		return "lbw b " + bowler
	case domain.DismissalStumped:
		return "st " + fielder + " b " + bowler
	case domain.DismissalRunOut:
		if fielder != "" {
			return "run out (" + fielder + ")"
		}
		return "run out"
	case domain.DismissalHitWicket:
		return "hit wicket b " + bowler
	default:
		return b.DismissalType
	}
}

func oversString(balls, bpo int) string {
	if bpo <= 0 {
		bpo = 6
	}
	return fmt.Sprintf("%d.%d", balls/bpo, balls%bpo)
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
