package engine

import (
	"context"
	"errors"
	"math"

	"crease/internal/dls"
	"crease/internal/domain"
	"crease/internal/repo"
)

func (e *Engine) calc(g domain.Game) dls.Calc {
	return dls.Calc{Table: e.Table, G50: g.Settings.G50, StandardExcess: e.Config.DLS.StandardExcess}
}

func toRevisions(revs []domain.OversRevision) []dls.Revision {
	out := make([]dls.Revision, 0, len(revs))
	for _, r := range revs {
		out = append(out, dls.Revision{BallsBefore: r.BallsBefore, BallsAfter: r.BallsAfter, Wickets: r.Wickets})
	}
	return out
}

// startOversFor recovers the innings' original allocation before any
// reductions.
func startOversFor(maxOvers int, revs []domain.OversRevision) int {
	if len(revs) > 0 {
		return revs[0].OldMax
	}
	return maxOvers
}

// chaseTarget computes the second innings target from the first innings'
// consumed resources and the chase's available ones. revs2 must already
// include any revision applied in the calling transaction.
func (e *Engine) chaseTarget(ctx context.Context, g domain.Game, first, second domain.Innings, revs2 []domain.OversRevision) (int, error) {
	calc := e.calc(g)
	revs1, err := e.Repo.ListOversRevisions(ctx, g.ID, 1)
	if err != nil {
		return 0, err
	}
	bpo := g.Settings.BallsPerOver
	_, r1 := calc.InningsResources(
		startOversFor(first.MaxOvers, revs1), toRevisions(revs1),
		first.MaxOvers*bpo-first.LegalBalls, first.Wickets, true)
	r2, _ := calc.InningsResources(
		startOversFor(g.Settings.MaxOvers, revs2), toRevisions(revs2),
		second.MaxOvers*bpo-second.LegalBalls, second.Wickets, false)
	return calc.Target(first.Runs, r1, r2), nil
}

// figures assembles the full DLS figure block for a game. overrideInnings and
// overrideMax, when set, layer a hypothetical reduction on top of the
// recorded ones without persisting anything.
func (e *Engine) figures(ctx context.Context, g domain.Game, overrideInnings int, overrideMax *int) (*domain.DLSView, error) {
	if !g.Settings.DLSEnabled || !g.Settings.Limited() {
		return nil, validationf("dls is not enabled for this game")
	}
	calc := e.calc(g)
	bpo := g.Settings.BallsPerOver

	in1, err := e.Repo.GetInnings(ctx, g.ID, 1)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, validationf("first innings has not started")
		}
		return nil, err
	}
	revs1, err := e.Repo.ListOversRevisions(ctx, g.ID, 1)
	if err != nil {
		return nil, err
	}
	drevs1 := toRevisions(revs1)
	max1 := in1.MaxOvers
	if overrideInnings == 1 && overrideMax != nil {
		hyp, err := hypothetical(max1, *overrideMax, in1.LegalBalls, in1.Wickets, bpo)
		if err != nil {
			return nil, err
		}
		drevs1 = append(drevs1, hyp)
		max1 = *overrideMax
	}
	r1avail, r1used := calc.InningsResources(
		startOversFor(in1.MaxOvers, revs1), drevs1,
		max1*bpo-in1.LegalBalls, in1.Wickets, in1.Status == domain.InningsCompleted)
	r1 := r1avail
	if in1.Status == domain.InningsCompleted {
		r1 = r1used
	}

	revs2, err := e.Repo.ListOversRevisions(ctx, g.ID, 2)
	if err != nil {
		return nil, err
	}
	drevs2 := toRevisions(revs2)
	in2, err := e.Repo.GetInnings(ctx, g.ID, 2)
	started := true
	if errors.Is(err, repo.ErrNotFound) {
		started = false
		max2 := g.Settings.MaxOvers
		if len(revs2) > 0 {
			max2 = revs2[len(revs2)-1].NewMax
		}
		in2 = domain.Innings{GameID: g.ID, Number: 2, MaxOvers: max2, Status: domain.InningsInProgress}
	} else if err != nil {
		return nil, err
	}
	max2 := in2.MaxOvers
	if overrideInnings == 2 && overrideMax != nil {
		hyp, err := hypothetical(max2, *overrideMax, in2.LegalBalls, in2.Wickets, bpo)
		if err != nil {
			return nil, err
		}
		drevs2 = append(drevs2, hyp)
		max2 = *overrideMax
	}
	r2avail, r2used := calc.InningsResources(
		startOversFor(g.Settings.MaxOvers, revs2), drevs2,
		max2*bpo-in2.LegalBalls, in2.Wickets, in2.Status == domain.InningsCompleted)

	view := &domain.DLSView{
		G50:       g.Settings.G50,
		R1:        r1,
		R2:        r2avail,
		R2Used:    r2used,
		Target:    calc.Target(in1.Runs, r1, r2avail),
		Par:       calc.Par(in1.Runs, r1, r2used),
		Applies:   r2avail < r1-1e-9,
		FirstRuns: in1.Runs,
	}
	if started && in2.Status == domain.InningsInProgress && in1.Status == domain.InningsCompleted {
		ahead := in2.Runs - int(math.Floor(view.Par))
		view.AheadBy = &ahead
	}
	return view, nil
}

// hypothetical builds an unrecorded revision for what-if previews.
func hypothetical(curMax, newMax, legalBalls, wickets, bpo int) (dls.Revision, error) {
	if newMax <= 0 || newMax >= curMax {
		return dls.Revision{}, validationf("preview overs limit %d must be below the current %d", newMax, curMax)
	}
	if newMax*bpo < legalBalls {
		return dls.Revision{}, validationf("preview cannot cut overs already bowled (%d)", legalBalls/bpo)
	}
	return dls.Revision{
		BallsBefore: curMax*bpo - legalBalls,
		BallsAfter:  newMax*bpo - legalBalls,
		Wickets:     wickets,
	}, nil
}

// PreviewDLS computes target and par figures without changing game state.
// innings and maxOvers layer a hypothetical further reduction; pass innings 0
// for the figures as they stand.
func (e *Engine) PreviewDLS(ctx context.Context, gameID, kind string, innings int, maxOvers *int) (domain.DLSView, error) {
	switch kind {
	case "", domain.InterruptionWeather, domain.InterruptionInjury, domain.InterruptionLight, domain.InterruptionOther:
	default:
		return domain.DLSView{}, validationf("interruption kind %q unknown", kind)
	}
	if innings != 0 && innings != 1 && innings != 2 {
		return domain.DLSView{}, validationf("innings must be 1 or 2")
	}
	if innings == 0 && maxOvers != nil {
		return domain.DLSView{}, validationf("max overs preview needs an innings")
	}
	g, err := e.Repo.GetGame(ctx, gameID)
	if err != nil {
		return domain.DLSView{}, err
	}
	view, err := e.figures(ctx, g, innings, maxOvers)
	if err != nil {
		return domain.DLSView{}, err
	}
	return *view, nil
}
