package engine

import (
	"fmt"
	"sort"

	"crease/internal/domain"
)

// inningsState is the in-memory working copy of one innings' projection. The
// live command path loads it from the cached rows; replay builds it from an
// empty innings. Both mutate it through applyBall only, which is what makes
// the delivery log authoritative: the same fold produces the same aggregates.
type inningsState struct {
	in      domain.Innings
	batting map[string]*domain.BattingEntry
	order   []string
	bowling map[string]*domain.BowlingEntry
	fow     []domain.FallOfWicket
}

func newInningsState(in domain.Innings) *inningsState {
	return &inningsState{
		in:      in,
		batting: map[string]*domain.BattingEntry{},
		bowling: map[string]*domain.BowlingEntry{},
	}
}

func (st *inningsState) batter(playerID string) *domain.BattingEntry {
	if b, ok := st.batting[playerID]; ok {
		return b
	}
	b := &domain.BattingEntry{
		GameID:   st.in.GameID,
		Innings:  st.in.Number,
		PlayerID: playerID,
		Position: len(st.order) + 1,
	}
	st.batting[playerID] = b
	st.order = append(st.order, playerID)
	return b
}

func (st *inningsState) bowler(playerID string) *domain.BowlingEntry {
	if b, ok := st.bowling[playerID]; ok {
		return b
	}
	b := &domain.BowlingEntry{
		GameID:   st.in.GameID,
		Innings:  st.in.Number,
		PlayerID: playerID,
	}
	st.bowling[playerID] = b
	return b
}

// ballOutcome summarizes the side effects of one applied delivery.
type ballOutcome struct {
	overCompleted  bool
	wicket         bool
	dismissedID    string
	inningsDone    bool
	inningsEndedBy string
}

// Innings termination reasons.
const (
	endedAllOut        = "all_out"
	endedOversComplete = "overs_complete"
	endedTargetReached = "target_reached"
)

// applyBall folds one validated delivery into the innings state. d carries
// the enders and bowler it was bowled with; eff is the classifier's verdict;
// dismissed is empty or the resolved dismissed player id.
func applyBall(st *inningsState, d domain.Delivery, eff ballEffect, dismissed string, s domain.Settings) ballOutcome {
	bpo := s.BallsPerOver
	if bpo <= 0 {
		bpo = 6
	}

	// During replay the gate-clearing commands are not in the log: the next
	// delivery itself witnesses that the over was started and the new batter
	// installed.
	if st.in.PendingOver {
		st.in.PendingOver = false
		st.in.OverRuns = 0
	}
	if st.in.PendingBatter {
		st.in.PendingBatter = false
		st.in.DismissedEnd = ""
	}
	st.in.BowlerID = d.BowlerID

	striker := st.batter(d.StrikerID)
	st.batter(d.NonStrikerID)
	bowler := st.bowler(d.BowlerID)

	if eff.extraType != domain.ExtraWide {
		striker.Balls++
	}
	striker.Runs += eff.batRuns
	switch eff.batRuns {
	case 4:
		striker.Fours++
	case 6:
		striker.Sixes++
	}

	if eff.legal {
		bowler.Balls++
	}
	bowler.Runs += eff.bowlerRuns

	st.in.Runs += eff.total
	switch eff.extraType {
	case domain.ExtraWide:
		st.in.Extras.Wides += eff.extraRuns
	case domain.ExtraNoBall:
		st.in.Extras.NoBalls += eff.extraRuns
	case domain.ExtraBye:
		st.in.Extras.Byes += eff.extraRuns
	case domain.ExtraLegBye:
		st.in.Extras.LegByes += eff.extraRuns
	}
	st.in.Extras.Penalty += eff.penaltyRuns
	if eff.legal {
		st.in.LegalBalls++
	}
	st.in.OverRuns += eff.bowlerRuns

	out := ballOutcome{}

	if dismissed != "" {
		entry := st.batter(dismissed)
		entry.Out = true
		entry.DismissalType = d.DismissalType
		entry.FielderID = d.FielderID
		if bowlerDismissals[d.DismissalType] {
			entry.BowlerID = d.BowlerID
			bowler.Wickets++
		}
		st.in.Wickets++
		st.fow = append(st.fow, domain.FallOfWicket{
			Wicket:   st.in.Wickets,
			Score:    st.in.Runs,
			Over:     d.Over,
			Ball:     d.BallInOver,
			PlayerID: dismissed,
		})
		out.wicket = true
		out.dismissedID = dismissed
	}

	overComplete := eff.legal && st.in.LegalBalls%bpo == 0
	newStriker, newNonStriker := rotateStrike(d.StrikerID, d.NonStrikerID, eff.rotationRuns, overComplete)
	if dismissed != "" {
		st.in.PendingBatter = true
		if newStriker == dismissed {
			st.in.DismissedEnd = domain.EndStriker
			newStriker = ""
		} else if newNonStriker == dismissed {
			st.in.DismissedEnd = domain.EndNonStriker
			newNonStriker = ""
		}
	}
	st.in.StrikerID = newStriker
	st.in.NonStrikerID = newNonStriker

	if s.FreeHit {
		if d.ExtraType == domain.ExtraNoBall {
			st.in.FreeHit = true
		} else if d.Legal() {
			st.in.FreeHit = false
		}
	}

	if overComplete {
		if st.in.OverRuns == 0 {
			bowler.Maidens++
		}
		st.in.PrevBowlerID = d.BowlerID
		st.in.BowlerID = ""
		st.in.PendingOver = true
		st.in.OverRuns = 0
		st.in.OversToday++
		out.overCompleted = true
	}

	// Termination re-evaluates after every ball; it is never a separate
	// command.
	yetToBat := s.PlayersPerSide - len(st.order)
	switch {
	case st.in.Wickets >= s.PlayersPerSide-1,
		st.in.PendingBatter && yetToBat <= 0:
		out.inningsDone = true
		out.inningsEndedBy = endedAllOut
	case st.in.MaxOvers > 0 && st.in.LegalBalls >= st.in.MaxOvers*bpo:
		out.inningsDone = true
		out.inningsEndedBy = endedOversComplete
	case st.in.Target != nil && st.in.Runs >= *st.in.Target:
		out.inningsDone = true
		out.inningsEndedBy = endedTargetReached
	}
	if out.inningsDone {
		st.in.Status = domain.InningsCompleted
		st.in.PendingBatter = false
		st.in.PendingOver = false
		st.in.DismissedEnd = ""
		st.in.FreeHit = false
	}
	return out
}

// inputFromDelivery reconstructs the raw submission a logged delivery came
// from, so replay runs through the same classifier as live scoring.
func inputFromDelivery(d domain.Delivery) DeliveryInput {
	in := DeliveryInput{
		RunsOffBat:    d.RunsOffBat,
		Extra:         d.ExtraType,
		ExtraRuns:     d.ExtraRuns,
		PenaltyRuns:   d.PenaltyRuns,
		Wicket:        d.Wicket,
		DismissalType: d.DismissalType,
		DismissedID:   d.DismissedID,
		FielderID:     d.FielderID,
	}
	switch d.ExtraType {
	case domain.ExtraWide:
		in.ExtraRuns = d.ExtraRuns - 1
	case domain.ExtraNoBall:
		in.ExtraRuns = 0
	}
	return in
}

// replayInnings folds a delivery log from an empty innings. base supplies
// the command-sourced fields (teams, target, overs allocation) that do not
// live in the log.
func replayInnings(base domain.Innings, log []domain.Delivery, s domain.Settings) (*inningsState, error) {
	fresh := domain.Innings{
		GameID:        base.GameID,
		Number:        base.Number,
		BattingTeamID: base.BattingTeamID,
		BowlingTeamID: base.BowlingTeamID,
		Target:        base.Target,
		MaxOvers:      base.MaxOvers,
		PendingOver:   true,
		Status:        domain.InningsInProgress,
	}
	st := newInningsState(fresh)
	for _, d := range log {
		eff, err := classifyDelivery(inputFromDelivery(d))
		if err != nil {
			return nil, fmt.Errorf("delivery %d: %w", d.ID, err)
		}
		dismissed := ""
		if d.Wicket {
			dismissed = d.DismissedID
			if dismissed == "" {
				dismissed = d.StrikerID
			}
		}
		applyBall(st, d, eff, dismissed, s)
	}
	return st, nil
}

// diffAggregates compares a cached projection against a replayed one.
// Entries that exist in the cache with no activity yet (an opener or
// replacement installed but not seen by the log) are not differences.
func diffAggregates(cached *inningsState, replayed *inningsState) []string {
	var diffs []string
	c, r := cached.in, replayed.in
	if c.Runs != r.Runs || c.Wickets != r.Wickets || c.LegalBalls != r.LegalBalls {
		diffs = append(diffs, fmt.Sprintf("innings totals %d/%d (%d balls) vs replayed %d/%d (%d balls)",
			c.Runs, c.Wickets, c.LegalBalls, r.Runs, r.Wickets, r.LegalBalls))
	}
	if c.Extras != r.Extras {
		diffs = append(diffs, fmt.Sprintf("extras %+v vs replayed %+v", c.Extras, r.Extras))
	}
	ids := map[string]bool{}
	for id := range cached.batting {
		ids[id] = true
	}
	for id := range replayed.batting {
		ids[id] = true
	}
	var sorted []string
	for id := range ids {
		sorted = append(sorted, id)
	}
	sort.Strings(sorted)
	for _, id := range sorted {
		cb, rb := cached.batting[id], replayed.batting[id]
		if rb == nil {
			if cb.Runs == 0 && cb.Balls == 0 && !cb.Out {
				continue
			}
			diffs = append(diffs, fmt.Sprintf("batter %s missing from replay", id))
			continue
		}
		if cb == nil {
			diffs = append(diffs, fmt.Sprintf("batter %s missing from cache", id))
			continue
		}
		if cb.Runs != rb.Runs || cb.Balls != rb.Balls || cb.Fours != rb.Fours || cb.Sixes != rb.Sixes || cb.Out != rb.Out {
			diffs = append(diffs, fmt.Sprintf("batter %s %d(%d) out=%t vs replayed %d(%d) out=%t",
				id, cb.Runs, cb.Balls, cb.Out, rb.Runs, rb.Balls, rb.Out))
		}
	}
	ids = map[string]bool{}
	for id := range cached.bowling {
		ids[id] = true
	}
	for id := range replayed.bowling {
		ids[id] = true
	}
	sorted = sorted[:0]
	for id := range ids {
		sorted = append(sorted, id)
	}
	sort.Strings(sorted)
	for _, id := range sorted {
		cb, rb := cached.bowling[id], replayed.bowling[id]
		if rb == nil {
			if cb.Balls == 0 && cb.Runs == 0 {
				continue
			}
			diffs = append(diffs, fmt.Sprintf("bowler %s missing from replay", id))
			continue
		}
		if cb == nil {
			diffs = append(diffs, fmt.Sprintf("bowler %s missing from cache", id))
			continue
		}
		if cb.Balls != rb.Balls || cb.Runs != rb.Runs || cb.Wickets != rb.Wickets || cb.Maidens != rb.Maidens {
			diffs = append(diffs, fmt.Sprintf("bowler %s %d-%d-%d vs replayed %d-%d-%d",
				id, cb.Balls, cb.Runs, cb.Wickets, rb.Balls, rb.Runs, rb.Wickets))
		}
	}
	return diffs
}
