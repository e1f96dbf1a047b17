package causal

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

var (
	ErrWeakInstrument = errors.New("causal: instrument does not move exposure")
	ErrInsufficient   = errors.New("causal: insufficient data")
)

// IVObservation is one user of an experiment: the randomized assignment
// (instrument), whether the ad was actually seen, and the outcome.
type IVObservation struct {
	Assigned bool    `json:"assigned"`
	Exposed  bool    `json:"exposed"`
	Outcome  float64 `json:"outcome"`
}

type IVEstimate struct {
	ITT          float64 `json:"itt"`
	FirstStage   float64 `json:"first_stage"`
	LATE         float64 `json:"late"`
	StdErr       float64 `json:"std_err"`
	NAssigned    int     `json:"n_assigned"`
	NNotAssigned int     `json:"n_not_assigned"`
}

// EstimateIV computes the Wald estimator: the intent-to-treat effect on the
// outcome divided by the effect of assignment on exposure.
// It is a best-effort approximation: no covariates, and the standard error
// ignores the uncertainty of the first stage.
func EstimateIV(obs []IVObservation) (IVEstimate, error) {
	var y1, y0, d1, d0 []float64
	for _, o := range obs {
		exposed := 0.0
		if o.Exposed {
			exposed = 1
		}
		if o.Assigned {
			y1 = append(y1, o.Outcome)
			d1 = append(d1, exposed)
		} else {
			y0 = append(y0, o.Outcome)
			d0 = append(d0, exposed)
		}
	}
	if len(y1) < 2 || len(y0) < 2 {
		return IVEstimate{}, fmt.Errorf("%w: need two observations per arm, got %d/%d", ErrInsufficient, len(y1), len(y0))
	}

	itt := stat.Mean(y1, nil) - stat.Mean(y0, nil)
	first := stat.Mean(d1, nil) - stat.Mean(d0, nil)
	if math.Abs(first) < 1e-9 {
		return IVEstimate{}, ErrWeakInstrument
	}

	ittSE := math.Sqrt(stat.Variance(y1, nil)/float64(len(y1)) + stat.Variance(y0, nil)/float64(len(y0)))
	return IVEstimate{
		ITT:          itt,
		FirstStage:   first,
		LATE:         itt / first,
		StdErr:       ittSE / math.Abs(first),
		NAssigned:    len(y1),
		NNotAssigned: len(y0),
	}, nil
}

type SyntheticControlInput struct {
	Treated []float64            `json:"treated"`
	Donors  map[string][]float64 `json:"donors"`
	// number of leading periods before the intervention
	PrePeriods int `json:"pre_periods"`
}

type SyntheticControlEstimate struct {
	Weights   map[string]float64 `json:"weights"`
	Synthetic []float64          `json:"synthetic"`
	Effects   []float64          `json:"effects"`
	ATT       float64            `json:"att"`
	PreRMSE   float64            `json:"pre_rmse"`
}

const (
	syntheticIterations = 5000
	syntheticTolerance  = 1e-12
)

// EstimateSyntheticControl fits non-negative donor weights summing to one
// that reproduce the treated series before the intervention, then reads
// the effect off the post-period gap.
// It is a best-effort approximation fitted by projected gradient descent,
// with no placebo inference behind the reported effect.
func EstimateSyntheticControl(in SyntheticControlInput) (SyntheticControlEstimate, error) {
	T := len(in.Treated)
	if len(in.Donors) == 0 {
		return SyntheticControlEstimate{}, fmt.Errorf("%w: no donors", ErrInsufficient)
	}
	if in.PrePeriods < 1 || in.PrePeriods >= T {
		return SyntheticControlEstimate{}, fmt.Errorf("%w: pre periods %d of %d", ErrInsufficient, in.PrePeriods, T)
	}

	names := make([]string, 0, len(in.Donors))
	for name, series := range in.Donors {
		if len(series) != T {
			return SyntheticControlEstimate{}, fmt.Errorf("donor %s has %d periods, want %d", name, len(series), T)
		}
		names = append(names, name)
	}
	sort.Strings(names)

	J, pre := len(names), in.PrePeriods
	donors := make([][]float64, J)
	for j, name := range names {
		donors[j] = in.Donors[name]
	}

	w := fitSimplexWeights(in.Treated[:pre], donors, pre)

	synthetic := make([]float64, T)
	for j := range donors {
		floats.AddScaled(synthetic, w[j], donors[j])
	}
	effects := make([]float64, T)
	floats.SubTo(effects, in.Treated, synthetic)

	var sq float64
	for t := 0; t < pre; t++ {
		sq += effects[t] * effects[t]
	}

	weights := make(map[string]float64, J)
	for j, name := range names {
		weights[name] = w[j]
	}
	return SyntheticControlEstimate{
		Weights:   weights,
		Synthetic: synthetic,
		Effects:   effects,
		ATT:       stat.Mean(effects[pre:], nil),
		PreRMSE:   math.Sqrt(sq / float64(pre)),
	}, nil
}

// fitSimplexWeights minimizes ||y - Σ w_j d_j||² over the first pre
// periods with projected gradient descent onto the probability simplex.
func fitSimplexWeights(y []float64, donors [][]float64, pre int) []float64 {
	J := len(donors)
	w := make([]float64, J)
	for j := range w {
		w[j] = 1 / float64(J)
	}

	// step 1/L with L bounded by twice the Gram trace
	var trace float64
	for j := range donors {
		trace += floats.Dot(donors[j][:pre], donors[j][:pre])
	}
	if trace == 0 {
		return w
	}
	step := 1 / (2 * trace)

	resid := make([]float64, pre)
	grad := make([]float64, J)
	next := make([]float64, J)
	for iter := 0; iter < syntheticIterations; iter++ {
		copy(resid, y)
		for j := range donors {
			floats.AddScaled(resid, -w[j], donors[j][:pre])
		}
		for j := range donors {
			grad[j] = -2 * floats.Dot(donors[j][:pre], resid)
		}
		for j := range w {
			next[j] = w[j] - step*grad[j]
		}
		projectSimplex(next)

		delta := floats.Distance(next, w, 2)
		copy(w, next)
		if delta < syntheticTolerance {
			break
		}
	}
	return w
}

// projectSimplex projects v in place onto {w : w ≥ 0, Σw = 1}.
func projectSimplex(v []float64) {
	u := append([]float64(nil), v...)
	sort.Sort(sort.Reverse(sort.Float64Slice(u)))

	var cum, theta float64
	for i, ui := range u {
		cum += ui
		t := (cum - 1) / float64(i+1)
		if ui-t > 0 {
			theta = t
		}
	}
	for i := range v {
		v[i] = math.Max(v[i]-theta, 0)
	}
}
