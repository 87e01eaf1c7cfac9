package genkw

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Dist names a prior distribution.
type Dist string

const (
	DistConst           Dist = "CONST"
	DistUniform         Dist = "UNIFORM"
	DistNormal          Dist = "NORMAL"
	DistLogNormal       Dist = "LOGNORMAL"
	DistLogUniform      Dist = "LOGUNIF"
	DistTruncatedNormal Dist = "TRUNCATED_NORMAL"
)

var paramCount = map[Dist]int{
	DistConst:           1,
	DistUniform:         2,
	DistNormal:          2,
	DistLogNormal:       2,
	DistLogUniform:      2,
	DistTruncatedNormal: 4,
}

// Prior maps a latent standard normal value to the physical value of a
// keyword.
type Prior struct {
	Dist   Dist
	Params []float64
}

// ParsePrior parses the text form "NAME p1 p2 ...", e.g. "UNIFORM 0 1".
func ParsePrior(text string) (Prior, error) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return Prior{}, fmt.Errorf("empty prior")
	}
	p := Prior{Dist: Dist(strings.ToUpper(fields[0]))}
	for _, raw := range fields[1:] {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return Prior{}, fmt.Errorf("prior %s: parameter %q: %w", p.Dist, raw, err)
		}
		p.Params = append(p.Params, v)
	}
	if err := p.Validate(); err != nil {
		return Prior{}, err
	}
	return p, nil
}

// Validate checks the parameter count and ranges.
func (p Prior) Validate() error {
	want, ok := paramCount[p.Dist]
	if !ok {
		return fmt.Errorf("unknown distribution %q", p.Dist)
	}
	if len(p.Params) != want {
		return fmt.Errorf("%s takes %d parameters, got %d", p.Dist, want, len(p.Params))
	}
	for _, v := range p.Params {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%s parameters must be finite", p.Dist)
		}
	}
	switch p.Dist {
	case DistUniform:
		if p.Params[0] >= p.Params[1] {
			return fmt.Errorf("UNIFORM min %g must be below max %g", p.Params[0], p.Params[1])
		}
	case DistLogUniform:
		if p.Params[0] <= 0 || p.Params[0] >= p.Params[1] {
			return fmt.Errorf("LOGUNIF requires 0 < min < max, got %g %g", p.Params[0], p.Params[1])
		}
	case DistNormal, DistLogNormal:
		if p.Params[1] < 0 {
			return fmt.Errorf("%s std must be non-negative", p.Dist)
		}
	case DistTruncatedNormal:
		if p.Params[1] < 0 || p.Params[2] >= p.Params[3] {
			return fmt.Errorf("TRUNCATED_NORMAL requires std >= 0 and min < max")
		}
	}
	return nil
}

// Transform maps latent value x ~ N(0,1) to the prior.
func (p Prior) Transform(x float64) float64 {
	switch p.Dist {
	case DistConst:
		return p.Params[0]
	case DistUniform:
		return p.Params[0] + normalCDF(x)*(p.Params[1]-p.Params[0])
	case DistNormal:
		return p.Params[0] + p.Params[1]*x
	case DistLogNormal:
		return math.Exp(p.Params[0] + p.Params[1]*x)
	case DistLogUniform:
		lo, hi := math.Log(p.Params[0]), math.Log(p.Params[1])
		return math.Exp(lo + normalCDF(x)*(hi-lo))
	case DistTruncatedNormal:
		v := p.Params[0] + p.Params[1]*x
		return math.Min(math.Max(v, p.Params[2]), p.Params[3])
	}
	return math.NaN()
}

func (p Prior) String() string {
	parts := []string{string(p.Dist)}
	for _, v := range p.Params {
		parts = append(parts, strconv.FormatFloat(v, 'g', -1, 64))
	}
	return strings.Join(parts, " ")
}

func normalCDF(x float64) float64 { return 0.5 * math.Erfc(-x/math.Sqrt2) }
