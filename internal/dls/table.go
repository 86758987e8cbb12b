// Package dls computes Duckworth-Lewis-Stern resource figures and revised
// targets. Everything here is pure: the table is built once at startup and
// the calculator never touches match state.
package dls

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	// TableOvers is the overs-remaining axis of the resource table.
	TableOvers = 50
	// MaxWickets is the wickets-lost axis; at 10 wickets resources are zero.
	MaxWickets = 10
)

// Table holds resource fractions (0.0-1.0) indexed by whole overs remaining
// and wickets lost. Partial overs are linearly interpolated by At.
type Table struct {
	res [TableOvers + 1][MaxWickets]float64
}

// Wicket factors for the exponential resource model: the asymptotic share of
// scoring potential left with w wickets down. An official printed table can
// be substituted via FromFile.
var wicketFactor = [MaxWickets]float64{
	1.00, 0.95, 0.89, 0.80, 0.68, 0.54, 0.40, 0.27, 0.16, 0.07,
}

// decay is the per-over exponential decay constant of the model.
const decay = 0.03

// Standard builds the resource table from the exponential model
// Z(u,w) = F(w) * (1 - exp(-b*u/F(w))), normalized so that a full 50-over
// innings with all wickets in hand is exactly 1.0.
func Standard() *Table {
	t := &Table{}
	norm := 1 - math.Exp(-decay*TableOvers)
	for u := 0; u <= TableOvers; u++ {
		for w := 0; w < MaxWickets; w++ {
			f := wicketFactor[w]
			t.res[u][w] = f * (1 - math.Exp(-decay*float64(u)/f)) / norm
		}
	}
	return t
}

// tableFile is the YAML shape for a custom resource table: rows of resource
// percentages (0-100) keyed by overs remaining, one column per wickets lost.
type tableFile struct {
	Resources map[int][]float64 `yaml:"resources"`
}

// FromFile loads a custom table, e.g. the official published figures.
func FromFile(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses a custom resource table document.
func FromYAML(data []byte) (*Table, error) {
	var f tableFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse resource table: %w", err)
	}
	if len(f.Resources) == 0 {
		return nil, fmt.Errorf("resource table: no rows")
	}
	if _, ok := f.Resources[TableOvers]; !ok {
		return nil, fmt.Errorf("resource table: missing the %d-over row", TableOvers)
	}
	t := &Table{}
	for u, row := range f.Resources {
		if u < 0 || u > TableOvers {
			return nil, fmt.Errorf("resource table: overs %d out of range", u)
		}
		if len(row) != MaxWickets {
			return nil, fmt.Errorf("resource table: overs %d needs %d wicket columns, got %d", u, MaxWickets, len(row))
		}
		for w, pct := range row {
			if pct < 0 || pct > 100 {
				return nil, fmt.Errorf("resource table: value %.2f at overs %d wickets %d out of range", pct, u, w)
			}
			t.res[u][w] = pct / 100
		}
	}
	// Fill gaps between provided rows so sparse tables interpolate cleanly.
	for w := 0; w < MaxWickets; w++ {
		last := 0
		for u := 1; u <= TableOvers; u++ {
			if t.res[u][w] == 0 && u != 0 {
				continue
			}
			for g := last + 1; g < u; g++ {
				frac := float64(g-last) / float64(u-last)
				t.res[g][w] = t.res[last][w] + frac*(t.res[u][w]-t.res[last][w])
			}
			last = u
		}
	}
	return t, nil
}

// At returns the resource fraction for ballsRemaining legal balls and wickets
// lost, interpolating linearly inside a partial over. Overs beyond the table
// clamp to the 50-over row; ten wickets down is always zero.
func (t *Table) At(ballsRemaining, wickets int) float64 {
	if wickets >= MaxWickets || ballsRemaining <= 0 {
		return 0
	}
	if wickets < 0 {
		wickets = 0
	}
	overs := float64(ballsRemaining) / 6.0
	if overs >= TableOvers {
		return t.res[TableOvers][wickets]
	}
	lo := int(math.Floor(overs))
	hi := lo + 1
	frac := overs - float64(lo)
	return t.res[lo][wickets] + frac*(t.res[hi][wickets]-t.res[lo][wickets])
}
