package engine

import "crease/internal/domain"

// ballEffect is the classifier's verdict on one submitted delivery: exactly
// one of plain/wide/no-ball/bye/leg-bye, with run attribution resolved.
type ballEffect struct {
	legal     bool
	batRuns   int
	extraType string
	// extraRuns is what lands in the innings extras breakdown for the
	// delivery's category, penalty included for wides and no-balls.
	extraRuns   int
	penaltyRuns int
	// rotationRuns is the count the strike rotation rule looks at: runs the
	// batters physically ran (plus boundaries struck), never automatic
	// penalties.
	rotationRuns int
	// bowlerRuns is what the bowling figures are charged: off-bat runs plus
	// wide and no-ball extras. Byes, leg byes and penalties are not the
	// bowler's fault.
	bowlerRuns int
	total      int
}

// classifyDelivery validates the raw submission and resolves run
// attribution. A malformed combination is rejected before any state is
// touched.
func classifyDelivery(in DeliveryInput) (ballEffect, error) {
	if in.RunsOffBat < 0 || in.RunsOffBat > 6 {
		return ballEffect{}, validationf("runs off bat %d out of range", in.RunsOffBat)
	}
	if in.ExtraRuns < 0 || in.ExtraRuns > 6 {
		return ballEffect{}, validationf("extra runs %d out of range", in.ExtraRuns)
	}
	if in.PenaltyRuns < 0 {
		return ballEffect{}, validationf("penalty runs %d out of range", in.PenaltyRuns)
	}

	eff := ballEffect{extraType: in.Extra, penaltyRuns: in.PenaltyRuns}
	switch in.Extra {
	case "":
		if in.ExtraRuns != 0 {
			return ballEffect{}, validationf("extra runs supplied without an extra type")
		}
		eff.legal = true
		eff.batRuns = in.RunsOffBat
		eff.rotationRuns = in.RunsOffBat
		eff.bowlerRuns = in.RunsOffBat
	case domain.ExtraWide:
		if in.RunsOffBat != 0 {
			return ballEffect{}, validationf("off-bat runs are not possible on a wide")
		}
		// One-run penalty plus whatever the batters ran.
		eff.extraRuns = 1 + in.ExtraRuns
		eff.rotationRuns = in.ExtraRuns
		eff.bowlerRuns = eff.extraRuns
	case domain.ExtraNoBall:
		if in.ExtraRuns != 0 {
			return ballEffect{}, validationf("runs on a no-ball are credited off the bat, not as extra runs")
		}
		eff.extraRuns = 1
		eff.batRuns = in.RunsOffBat
		eff.rotationRuns = in.RunsOffBat
		eff.bowlerRuns = 1 + in.RunsOffBat
	case domain.ExtraBye, domain.ExtraLegBye:
		if in.RunsOffBat != 0 {
			return ballEffect{}, validationf("off-bat runs are not possible on a %s", in.Extra)
		}
		if in.ExtraRuns == 0 {
			return ballEffect{}, validationf("a %s must have at least one run", in.Extra)
		}
		eff.legal = true
		eff.extraRuns = in.ExtraRuns
		eff.rotationRuns = in.ExtraRuns
	default:
		return ballEffect{}, validationf("extra type %q unknown", in.Extra)
	}
	eff.total = eff.batRuns + eff.extraRuns + eff.penaltyRuns
	return eff, nil
}

// Dismissals that stay available on a no-ball or free hit.
var noBallDismissals = map[string]bool{
	domain.DismissalRunOut:      true,
	domain.DismissalHitTwice:    true,
	domain.DismissalObstruction: true,
	domain.DismissalHandledBall: true,
}

// Dismissals available on a wide: the ball is not played, so stumpings and
// run outs remain live.
var wideDismissals = map[string]bool{
	domain.DismissalRunOut:      true,
	domain.DismissalStumped:     true,
	domain.DismissalObstruction: true,
	domain.DismissalHandledBall: true,
}

// Dismissals that can fall to the non-striker.
var eitherEndDismissals = map[string]bool{
	domain.DismissalRunOut:      true,
	domain.DismissalObstruction: true,
	domain.DismissalHandledBall: true,
}

var allDismissals = map[string]bool{
	domain.DismissalBowled:      true,
	domain.DismissalCaught:      true,
	domain.DismissalLBW:         true,
	domain.DismissalRunOut:      true,
	domain.DismissalStumped:     true,
	domain.DismissalHitWicket:   true,
	domain.DismissalHitTwice:    true,
	domain.DismissalObstruction: true,
	domain.DismissalHandledBall: true,
}

// Dismissals credited to the bowler.
var bowlerDismissals = map[string]bool{
	domain.DismissalBowled:    true,
	domain.DismissalCaught:    true,
	domain.DismissalLBW:       true,
	domain.DismissalStumped:   true,
	domain.DismissalHitWicket: true,
}

// validateDismissal checks the wicket fields against the delivery kind and
// the free-hit state, and resolves the dismissed player id.
func validateDismissal(in DeliveryInput, strikerID, nonStrikerID string, freeHit bool) (string, error) {
	if !in.Wicket {
		if in.DismissalType != "" || in.DismissedID != "" {
			return "", validationf("dismissal fields supplied without is_wicket")
		}
		return "", nil
	}
	if !allDismissals[in.DismissalType] {
		return "", validationf("dismissal type %q unknown", in.DismissalType)
	}
	switch {
	case in.Extra == domain.ExtraWide:
		if !wideDismissals[in.DismissalType] {
			return "", validationf("%s is not possible on a wide", in.DismissalType)
		}
	case in.Extra == domain.ExtraNoBall:
		if !noBallDismissals[in.DismissalType] {
			return "", validationf("%s is not possible on a no-ball", in.DismissalType)
		}
	case freeHit:
		if !noBallDismissals[in.DismissalType] {
			return "", validationf("%s is not possible on a free hit", in.DismissalType)
		}
	}
	dismissed := in.DismissedID
	if dismissed == "" {
		dismissed = strikerID
	}
	if dismissed != strikerID && dismissed != nonStrikerID {
		return "", validationf("dismissed player %s is not at the crease", dismissed)
	}
	if dismissed == nonStrikerID && !eitherEndDismissals[in.DismissalType] {
		return "", validationf("%s cannot dismiss the non-striker", in.DismissalType)
	}
	return dismissed, nil
}
