package domain

import "math"

// Acklam's rational approximation for the inverse normal CDF.
// Relative error below 1.15e-9 over the full open interval.
var (
	invNormA = [6]float64{
		-3.969683028665376e+01, 2.209460984245205e+02, -2.759285104469687e+02,
		1.383577518672690e+02, -3.066479806614716e+01, 2.506628277459239e+00,
	}
	invNormB = [5]float64{
		-5.447609879822406e+01, 1.615858368580409e+02, -1.556989798598866e+02,
		6.680131188771972e+01, -1.328068155288572e+01,
	}
	invNormC = [6]float64{
		-7.784894002430293e-03, -3.223964580411365e-01, -2.400758277161838e+00,
		-2.549732539343734e+00, 4.374664141464968e+00, 2.938163982698783e+00,
	}
	invNormD = [4]float64{
		7.784695709041462e-03, 3.224671290700398e-01,
		2.445134137142996e+00, 3.754408661907416e+00,
	}
)

const (
	invNormPLow  = 0.02425
	invNormPHigh = 1 - invNormPLow
)

// InverseNormalCDF returns the z such that Φ(z) = p.
// Returns ±Inf for p outside (0,1).
func InverseNormalCDF(p float64) float64 {
	switch {
	case p <= 0:
		return math.Inf(-1)
	case p >= 1:
		return math.Inf(1)
	case p < invNormPLow:
		q := math.Sqrt(-2 * math.Log(p))
		return (((((invNormC[0]*q+invNormC[1])*q+invNormC[2])*q+invNormC[3])*q+invNormC[4])*q + invNormC[5]) /
			((((invNormD[0]*q+invNormD[1])*q+invNormD[2])*q+invNormD[3])*q + 1)
	case p > invNormPHigh:
		q := math.Sqrt(-2 * math.Log(1-p))
		return -(((((invNormC[0]*q+invNormC[1])*q+invNormC[2])*q+invNormC[3])*q+invNormC[4])*q + invNormC[5]) /
			((((invNormD[0]*q+invNormD[1])*q+invNormD[2])*q+invNormD[3])*q + 1)
	default:
		q := p - 0.5
		r := q * q
		return (((((invNormA[0]*r+invNormA[1])*r+invNormA[2])*r+invNormA[3])*r+invNormA[4])*r + invNormA[5]) * q /
			(((((invNormB[0]*r+invNormB[1])*r+invNormB[2])*r+invNormB[3])*r+invNormB[4])*r + 1)
	}
}

// NormalPDF returns the standard normal density at z.
func NormalPDF(z float64) float64 {
	return math.Exp(-z*z/2) / math.Sqrt(2*math.Pi)
}

const volScoreEpsilon = 1e-6

// VolScore is an implied-volatility proxy: the normal density at the
// price's z-score, scaled up as expiry approaches. Higher score means
// higher effective uncertainty near expiry or near 50/50.
func VolScore(price, timeLeftSec float64) float64 {
	p := price
	if p < volScoreEpsilon {
		p = volScoreEpsilon
	}
	if p > 1-volScoreEpsilon {
		p = 1 - volScoreEpsilon
	}

	z := InverseNormalCDF(p)
	minutes := timeLeftSec / 60
	if minutes < 1 {
		minutes = 1
	}
	return NormalPDF(z) / math.Sqrt(minutes)
}

// TimeFraction returns timeLeftSec/durationSec clamped into [0,1].
// 1 means the window just opened, 0 means it is expiring.
func TimeFraction(timeLeftSec, durationSec float64) float64 {
	if durationSec <= 0 {
		return 0
	}
	f := timeLeftSec / durationSec
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
