package lmi

import "gonum.org/v1/gonum/stat"

// linearModel is the fixed-form y = slope*x + intercept predictor used by
// both inner and leaf nodes, per spec §4.3.
type linearModel struct {
	slope     float64
	intercept float64
	// degenerate is set when the fit had too little spread in x to trust the
	// slope (e.g. a single distinct key, or all keys equal). Degenerate
	// models fall back to binary search instead of position prediction.
	degenerate bool
}

const degenerateSlopeEpsilon = 1e-9

// fitLinearModel fits y = a*x + b over the given (x, y) pairs using ordinary
// least squares. xs must be sorted ascending (callers always pass sorted
// keys, since both leaf slots and inner split keys are maintained in sorted
// order).
func fitLinearModel(xs, ys []float64) linearModel {
	if len(xs) == 0 {
		return linearModel{degenerate: true}
	}
	if len(xs) == 1 {
		return linearModel{slope: 0, intercept: ys[0], degenerate: true}
	}
	// stat.LinearRegression fits y = alpha + beta*x via OLS.
	alpha, beta := stat.LinearRegression(xs, ys, nil, false)
	m := linearModel{slope: beta, intercept: alpha}
	if beta < degenerateSlopeEpsilon && beta > -degenerateSlopeEpsilon {
		m.degenerate = true
	}
	return m
}

// predict returns the model's raw (unclamped, unrounded) estimate for x.
func (m linearModel) predict(x float64) float64 {
	return m.slope*x + m.intercept
}
