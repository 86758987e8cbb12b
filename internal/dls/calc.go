package dls

import "math"

// Calc is a side-effect-free target/par calculator over one resource table.
// It is safe to call repeatedly for previews.
type Calc struct {
	Table *Table
	// G50 is the average full-innings score parameter; it only enters the
	// computation when StandardExcess is set.
	G50 float64
	// StandardExcess applies the Standard Edition excess-resource term when
	// the chasing side has more resources than the side batting first.
	// Default behavior caps the target at S1+1 in that case.
	StandardExcess bool
}

// Revision is one mid-innings overs reduction, captured at the moment it was
// applied.
type Revision struct {
	BallsBefore int
	BallsAfter  int
	Wickets     int
}

// InningsResources folds an innings' reductions into (available, used)
// resource fractions. available starts at the table value for the innings'
// original allocation; each revision subtracts the resources lost at its
// boundary. used is available minus what remains at the current position.
// All figures stay full-precision floats; nothing here rounds.
func (c Calc) InningsResources(startOvers int, revs []Revision, ballsRemaining, wickets int, completed bool) (available, used float64) {
	available = c.Table.At(startOvers*6, 0)
	for _, rev := range revs {
		lost := c.Table.At(rev.BallsBefore, rev.Wickets) - c.Table.At(rev.BallsAfter, rev.Wickets)
		if lost > 0 {
			available -= lost
		}
	}
	if available < 0 {
		available = 0
	}
	remaining := 0.0
	if !completed {
		remaining = c.Table.At(ballsRemaining, wickets)
	}
	used = available - remaining
	if used < 0 {
		used = 0
	}
	return available, used
}

// Target computes the revised target for the chasing side. s1 is the first
// innings total, r1 the resources the first side used, r2 the resources
// available to the chase. The single rounding step is the floor here.
func (c Calc) Target(s1 int, r1, r2 float64) int {
	if r1 <= 0 {
		return s1 + 1
	}
	if r2 >= r1 {
		if c.StandardExcess && r2 > r1 {
			return int(math.Floor(float64(s1)+c.G50*(r2-r1))) + 1
		}
		return s1 + 1
	}
	return int(math.Floor(float64(s1)*r2/r1)) + 1
}

// Par returns the score the chasing side must have reached with r2used of
// its resources consumed to be exactly level. Returned unrounded; callers
// round once when forming an ahead/behind figure.
func (c Calc) Par(s1 int, r1, r2used float64) float64 {
	if r1 <= 0 {
		return 0
	}
	return float64(s1) * r2used / r1
}

// AheadBy reports how far the chasing side's score sits above (positive) or
// below (negative) the par score.
func (c Calc) AheadBy(score, s1 int, r1, r2used float64) int {
	return score - int(math.Floor(c.Par(s1, r1, r2used)))
}
