// Package glicko implements the Glicko rating system (not Glicko-2) as
// described in http://www.glicko.net/glicko/glicko.pdf.
//
// All functions are pure: inputs are never mutated and every call returns a
// new rating snapshot.
package glicko

import (
	"errors"
	"fmt"
	"math"
)

const (
	BaseR     = 1500.0 // Initial rating
	BaseRD    = 350.0  // Initial and maximum rating deviation
	MinimumRD = 30.0

	// DefaultC inflates an average RD (50) to BaseRD after 24 months of
	// inactivity with 2-month rating periods.
	// Other useful values: 3-month periods 122.47, 1-month periods 70.71.
	DefaultC = 100.0
)

// q = ln(10) / 400
var q = math.Ln10 / 400

// ErrInvalidArgument is returned for out-of-range factors, malformed
// snapshots and malformed match lists.
var ErrInvalidArgument = errors.New("invalid argument")

// Rating is a skill estimate R with deviation RD
type Rating struct {
	R  float64
	RD float64
}

// Interval95 returns the 95% confidence interval of the rating
func (r Rating) Interval95() (float64, float64) {
	return r.R - 1.96*r.RD, r.R + 1.96*r.RD
}

// Interval99 returns the 99% confidence interval of the rating
func (r Rating) Interval99() (float64, float64) {
	return r.R - 2.576*r.RD, r.R + 2.576*r.RD
}

func (r Rating) String() string {
	return fmt.Sprintf("Rating(r=%.2f, rd=%.2f)", r.R, r.RD)
}

// Params holds the tunable constants of the system
type Params struct {
	BaseR     float64
	BaseRD    float64
	MinimumRD float64
	// C controls how fast RD grows for inactive competitors. It depends on the
	// length of a rating period and cannot be derived automatically.
	C float64
}

// DefaultParams returns the standard parameters
func DefaultParams() Params {
	return Params{
		BaseR:     BaseR,
		BaseRD:    BaseRD,
		MinimumRD: MinimumRD,
		C:         DefaultC,
	}
}

// NewRating returns the rating assigned to a new entrant
func (p Params) NewRating() Rating {
	return Rating{R: p.BaseR, RD: p.BaseRD}
}

// Validate checks that the parameters describe a usable system
func (p Params) Validate() error {
	if p.MinimumRD <= 0 || p.BaseRD < p.MinimumRD {
		return fmt.Errorf("%w: deviation bounds [%v, %v]", ErrInvalidArgument, p.MinimumRD, p.BaseRD)
	}
	if p.C < 0 || math.IsNaN(p.C) || math.IsInf(p.C, 0) {
		return fmt.Errorf("%w: C=%v", ErrInvalidArgument, p.C)
	}
	if math.IsNaN(p.BaseR) || math.IsInf(p.BaseR, 0) {
		return fmt.Errorf("%w: base rating %v", ErrInvalidArgument, p.BaseR)
	}
	return nil
}

// Outcome is a single match result within a rating period
type Outcome struct {
	WinnerID int
	LoserID  int
}

// ExpectedOutcome returns the probability that a beats b
func ExpectedOutcome(a, b Rating) float64 {
	g := g(math.Sqrt(a.RD*a.RD + b.RD*b.RD))
	return 1 / (1 + math.Pow(10, -g*(a.R-b.R)/400))
}

// Decay inflates the deviation of every competitor in prior at the start of
// a rating period. factors holds each competitor's inactivity factor in
// [0, 1]: 1 means fully inactive, 0 means active enough to prevent any
// increase. Competitors missing from factors use 1.
func Decay(p Params, prior map[int]Rating, factors map[int]float64) (map[int]Rating, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := validateSnapshot(p, prior); err != nil {
		return nil, err
	}
	for id, f := range factors {
		if !(f >= 0 && f <= 1) {
			return nil, fmt.Errorf("%w: inactivity factor for competitor %d must be in [0, 1], got %v",
				ErrInvalidArgument, id, f)
		}
	}

	decayed := make(map[int]Rating, len(prior))
	for id, r := range prior {
		f, ok := factors[id]
		if !ok {
			f = 1
		}
		inflation := p.C * f
		rd := math.Sqrt(r.RD*r.RD + inflation*inflation)
		decayed[id] = Rating{R: r.R, RD: clamp(rd, p.MinimumRD, p.BaseRD)}
	}
	return decayed, nil
}

// Update applies steps 2 and 3 of the Glicko algorithm for one rating period.
//
// prior must already be decayed. Competitors appearing in matches but not in
// prior are new entrants. Every competitor is updated against the pre-period
// ratings of its opponents; competitors without matches keep their rating.
func Update(p Params, matches []Outcome, prior map[int]Rating) (map[int]Rating, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := validateSnapshot(p, prior); err != nil {
		return nil, err
	}

	type result struct {
		opponent int
		score    float64
	}
	results := make(map[int][]result)
	for i, m := range matches {
		if m.WinnerID == m.LoserID {
			return nil, fmt.Errorf("%w: match %d has competitor %d on both sides", ErrInvalidArgument, i, m.WinnerID)
		}
		results[m.WinnerID] = append(results[m.WinnerID], result{opponent: m.LoserID, score: 1})
		results[m.LoserID] = append(results[m.LoserID], result{opponent: m.WinnerID, score: 0})
	}

	before := func(id int) Rating {
		if r, ok := prior[id]; ok {
			return r
		}
		return p.NewRating()
	}

	updated := make(map[int]Rating, len(prior)+len(results))
	for id, r := range prior {
		updated[id] = r
	}

	for id, played := range results {
		self := before(id)
		var sum, variance float64
		for _, res := range played {
			opp := before(res.opponent)
			gOpp := g(opp.RD)
			e := expected(self.R, opp.R, gOpp)
			sum += gOpp * (res.score - e)
			variance += gOpp * gOpp * e * (1 - e)
		}
		invD2 := q * q * variance // 1 / d²
		denom := 1/(self.RD*self.RD) + invD2
		r := self.R + q/denom*sum
		rd := math.Max(math.Sqrt(1/denom), p.MinimumRD)
		updated[id] = Rating{R: r, RD: math.Min(rd, p.BaseRD)}
	}
	return updated, nil
}

// g reduces the impact of a game based on the opponent's deviation
func g(rd float64) float64 {
	return 1 / math.Sqrt(1+3*q*q*rd*rd/(math.Pi*math.Pi))
}

func expected(r, oppR, gOpp float64) float64 {
	return 1 / (1 + math.Pow(10, -gOpp*(r-oppR)/400))
}

func validateSnapshot(p Params, ratings map[int]Rating) error {
	for id, r := range ratings {
		if math.IsNaN(r.R) || math.IsInf(r.R, 0) {
			return fmt.Errorf("%w: competitor %d has rating %v", ErrInvalidArgument, id, r.R)
		}
		if !(r.RD >= p.MinimumRD && r.RD <= p.BaseRD) {
			return fmt.Errorf("%w: competitor %d has deviation %v outside [%v, %v]",
				ErrInvalidArgument, id, r.RD, p.MinimumRD, p.BaseRD)
		}
	}
	return nil
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(v, hi))
}
