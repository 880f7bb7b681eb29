// SPDX-License-Identifier: MIT

package observables

import (
	"errors"
	"math"
)

// ErrInsufficientData is returned when a fit has fewer than two usable points.
var ErrInsufficientData = errors.New("observables: not enough points for fit")

// PowerLawFit is the result of fitting y = Amplitude · x^Exponent.
type PowerLawFit struct {
	Amplitude float64 `json:"amplitude"`
	Exponent  float64 `json:"exponent"`
	R2        float64 `json:"r2"`
	Points    int     `json:"points"` // points actually used
}

// FitPowerLaw fits y = a·x^b by least squares on log-log axes. Points with a
// non-positive coordinate cannot be log-transformed and are skipped. Used to
// estimate critical exponents from |T−Tc| against χ or C.
func FitPowerLaw(xs, ys []float64) (PowerLawFit, error) {
	if len(xs) != len(ys) {
		return PowerLawFit{}, errors.New("observables: coordinate slices differ in length")
	}

	var lx, ly []float64
	for i := range xs {
		if xs[i] > 0 && ys[i] > 0 {
			lx = append(lx, math.Log(xs[i]))
			ly = append(ly, math.Log(ys[i]))
		}
	}
	n := len(lx)
	if n < 2 {
		return PowerLawFit{}, ErrInsufficientData
	}

	var sumX, sumY float64
	for i := 0; i < n; i++ {
		sumX += lx[i]
		sumY += ly[i]
	}
	meanX := sumX / float64(n)
	meanY := sumY / float64(n)

	var sxx, sxy, syy float64
	for i := 0; i < n; i++ {
		dx := lx[i] - meanX
		dy := ly[i] - meanY
		sxx += dx * dx
		sxy += dx * dy
		syy += dy * dy
	}
	if sxx == 0 {
		return PowerLawFit{}, errors.New("observables: degenerate fit, all x equal")
	}

	slope := sxy / sxx
	intercept := meanY - slope*meanX

	r2 := 1.0
	if syy > 0 {
		r2 = (sxy * sxy) / (sxx * syy)
	}

	return PowerLawFit{
		Amplitude: math.Exp(intercept),
		Exponent:  slope,
		R2:        r2,
		Points:    n,
	}, nil
}
