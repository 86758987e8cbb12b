package dls

import (
	"math"
	"testing"
)

func TestTableShape(t *testing.T) {
	tb := Standard()
	if got := tb.At(TableOvers*6, 0); math.Abs(got-1.0) > 1e-9 {
		t.Fatalf("full allocation = %f, want 1.0", got)
	}
	if got := tb.At(0, 3); got != 0 {
		t.Fatalf("no balls remaining = %f, want 0", got)
	}
	if got := tb.At(120, MaxWickets); got != 0 {
		t.Fatalf("all out = %f, want 0", got)
	}
	// Fewer balls or fewer wickets in hand never means more resources.
	for w := 0; w < MaxWickets; w++ {
		for balls := 6; balls <= TableOvers*6; balls += 6 {
			if tb.At(balls, w) < tb.At(balls-6, w) {
				t.Fatalf("resources rose losing an over at %d balls, %d wickets", balls, w)
			}
			if tb.At(balls, w) < tb.At(balls, w+1) {
				t.Fatalf("resources rose losing a wicket at %d balls, %d wickets", balls, w)
			}
		}
	}
	// Clamping outside the table.
	if got := tb.At(TableOvers*6+60, 0); math.Abs(got-1.0) > 1e-9 {
		t.Fatalf("beyond table = %f, want clamped to 1.0", got)
	}
	if got := tb.At(-6, 0); got != 0 {
		t.Fatalf("negative balls = %f, want 0", got)
	}
}

func TestAtInterpolatesWithinOver(t *testing.T) {
	tb := Standard()
	lo, hi := tb.At(120, 2), tb.At(126, 2)
	mid := tb.At(123, 2)
	if mid <= lo || mid >= hi {
		t.Fatalf("At(123) = %f outside (%f, %f)", mid, lo, hi)
	}
}

func TestTargetFormula(t *testing.T) {
	c := Calc{Table: Standard()}
	// The single rounding step: floor(150 * 0.70 / 1.00) + 1.
	if got := c.Target(150, 1.0, 0.70); got != 106 {
		t.Fatalf("Target(150, 1.0, 0.70) = %d, want 106", got)
	}
	// Equal or surplus resources cap the target at S1+1.
	if got := c.Target(150, 0.8, 0.8); got != 151 {
		t.Fatalf("equal resources target = %d, want 151", got)
	}
	if got := c.Target(150, 0.6, 0.9); got != 151 {
		t.Fatalf("surplus resources target = %d, want 151", got)
	}
	// Degenerate first innings.
	if got := c.Target(150, 0, 0.5); got != 151 {
		t.Fatalf("zero R1 target = %d, want 151", got)
	}
}

func TestStandardExcess(t *testing.T) {
	c := Calc{Table: Standard(), G50: 245, StandardExcess: true}
	// floor(150 + 245*(0.9-0.6)) + 1 = floor(223.5) + 1.
	if got := c.Target(150, 0.6, 0.9); got != 224 {
		t.Fatalf("excess target = %d, want 224", got)
	}
}

func TestParAndAheadBy(t *testing.T) {
	c := Calc{Table: Standard()}
	par := c.Par(200, 1.0, 0.5)
	if math.Abs(par-100.0) > 1e-9 {
		t.Fatalf("par = %f, want 100.0", par)
	}
	if got := c.AheadBy(105, 200, 1.0, 0.5); got != 5 {
		t.Fatalf("ahead = %d, want 5", got)
	}
	if got := c.AheadBy(95, 200, 1.0, 0.5); got != -5 {
		t.Fatalf("behind = %d, want -5", got)
	}
}

func TestInningsResourcesFoldsRevisions(t *testing.T) {
	c := Calc{Table: Standard()}
	// Untouched innings played out in full uses everything available.
	avail, used := c.InningsResources(50, nil, 0, 7, true)
	if math.Abs(avail-1.0) > 1e-9 || math.Abs(used-1.0) > 1e-9 {
		t.Fatalf("full innings = %f/%f, want 1.0/1.0", avail, used)
	}
	// A reduction subtracts the resources between the two positions at the
	// wickets then down.
	rev := Revision{BallsBefore: 120, BallsAfter: 60, Wickets: 5}
	avail, _ = c.InningsResources(50, []Revision{rev}, 60, 5, false)
	wantLost := c.Table.At(120, 5) - c.Table.At(60, 5)
	if math.Abs((1.0-avail)-wantLost) > 1e-9 {
		t.Fatalf("lost = %f, want %f", 1.0-avail, wantLost)
	}
	// used never goes negative and tracks the position.
	avail, used = c.InningsResources(50, []Revision{rev}, 60, 5, false)
	if used < 0 || used > avail {
		t.Fatalf("used = %f outside [0, %f]", used, avail)
	}
}

func TestFromYAMLOverride(t *testing.T) {
	doc := []byte(`
resources:
  50: [100, 95, 90, 80, 70, 55, 40, 25, 12, 4]
  25: [70, 67, 63, 56, 49, 39, 28, 18, 9, 3]
`)
	tb, err := FromYAML(doc)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := tb.At(150, 0); math.Abs(got-0.7) > 1e-9 {
		t.Fatalf("At(25 overs, 0) = %f, want 0.7", got)
	}
	// Missing rows are interpolated between the given ones.
	mid := tb.At(225, 0)
	if mid <= 0.7 || mid >= 1.0 {
		t.Fatalf("interpolated At(37.3 overs) = %f outside (0.7, 1.0)", mid)
	}
}

func TestFromYAMLRejectsBadTables(t *testing.T) {
	cases := map[string]string{
		"short row":       "resources:\n  50: [100, 90]\n",
		"out of range":    "resources:\n  50: [150, 90, 80, 70, 60, 50, 40, 30, 20, 10]\n",
		"no rows":         "resources: {}\n",
		"missing top row": "resources:\n  25: [70, 67, 63, 56, 49, 39, 28, 18, 9, 3]\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := FromYAML([]byte(doc)); err == nil {
				t.Fatalf("accepted %s", name)
			}
		})
	}
}
