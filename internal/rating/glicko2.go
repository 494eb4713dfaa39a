package rating

import (
	"math"
	"time"

	"github.com/singhDevs/Chezz-Backend/internal/game"
)

// Glicko-2 constants (Glickman 2022). Tau bounds volatility drift;
// the convergence epsilon ends the volatility iteration.
const (
	glickoScale        = 173.7178
	baseRating         = 1500.0
	defaultRD          = 350.0
	defaultVol         = 0.06
	systemTau          = 0.5
	convergenceEpsilon = 1e-6
)

// Glicko2Rating is one player's rating state for a single game type.
// Rating keeps full precision; DisplayRating rounds up for clients.
type Glicko2Rating struct {
	Rating     float64   `json:"rating"`
	RD         float64   `json:"rd"`
	Volatility float64   `json:"volatility"`
	LastGame   time.Time `json:"lastGame"`
}

// NewDefaultRating is the unrated starting point.
func NewDefaultRating() Glicko2Rating {
	return Glicko2Rating{Rating: baseRating, RD: defaultRD, Volatility: defaultVol}
}

// DisplayRating rounds up to the nearest integer for presentation.
func (g Glicko2Rating) DisplayRating() int {
	return int(math.Ceil(g.Rating))
}

// ComputeNewRatings applies one paired Glicko-2 update. The outcome is
// from white's perspective; both sides are updated against each other
// and stamped with now as their last game time.
func ComputeNewRatings(white, black Glicko2Rating, result game.Result, now time.Time) (Glicko2Rating, Glicko2Rating) {
	var scoreWhite float64
	switch result {
	case game.ResultWhite:
		scoreWhite = 1
	case game.ResultBlack:
		scoreWhite = 0
	default:
		scoreWhite = 0.5
	}

	nw := updateOne(white, black, scoreWhite)
	nb := updateOne(black, white, 1-scoreWhite)
	nw.LastGame = now
	nb.LastGame = now
	return nw, nb
}

// updateOne runs the single-opponent rating period for p against opp.
func updateOne(p, opp Glicko2Rating, score float64) Glicko2Rating {
	mu := (p.Rating - baseRating) / glickoScale
	phi := p.RD / glickoScale
	muOpp := (opp.Rating - baseRating) / glickoScale
	phiOpp := opp.RD / glickoScale

	gOpp := gFn(phiOpp)
	e := eFn(mu, muOpp, phiOpp)

	v := 1 / (gOpp * gOpp * e * (1 - e))
	delta := v * gOpp * (score - e)

	sigma := newVolatility(phi, v, delta, p.Volatility)

	phiStar := math.Sqrt(phi*phi + sigma*sigma)
	phiNew := 1 / math.Sqrt(1/(phiStar*phiStar)+1/v)
	muNew := mu + phiNew*phiNew*gOpp*(score-e)

	return Glicko2Rating{
		Rating:     baseRating + glickoScale*muNew,
		RD:         glickoScale * phiNew,
		Volatility: sigma,
	}
}

func gFn(phi float64) float64 {
	return 1 / math.Sqrt(1+3*phi*phi/(math.Pi*math.Pi))
}

func eFn(mu, muOpp, phiOpp float64) float64 {
	return 1 / (1 + math.Exp(-gFn(phiOpp)*(mu-muOpp)))
}

// newVolatility runs the Illinois-method iteration from the Glicko-2
// paper, step 5.
func newVolatility(phi, v, delta, sigma float64) float64 {
	a := math.Log(sigma * sigma)
	f := func(x float64) float64 {
		ex := math.Exp(x)
		num := ex * (delta*delta - phi*phi - v - ex)
		den := 2 * (phi*phi + v + ex) * (phi*phi + v + ex)
		return num/den - (x-a)/(systemTau*systemTau)
	}

	aa := a
	var bb float64
	if delta*delta > phi*phi+v {
		bb = math.Log(delta*delta - phi*phi - v)
	} else {
		k := 1.0
		for f(a-k*systemTau) < 0 {
			k++
		}
		bb = a - k*systemTau
	}

	fa, fb := f(aa), f(bb)
	for math.Abs(bb-aa) > convergenceEpsilon {
		cc := aa + (aa-bb)*fa/(fb-fa)
		fc := f(cc)
		if fc*fb <= 0 {
			aa, fa = bb, fb
		} else {
			fa = fa / 2
		}
		bb, fb = cc, fc
	}
	return math.Exp(aa / 2)
}
