// Package gauss precomputes the 1D Gaussian kernels used to blur
// between adjacent pyramid levels. The coefficient formula and
// normalize-to-unit-sum convention follow
// itohio-EasyRobot/x/math/filter/gaussian.computeCoefficients,
// adapted from a streaming 1D signal filter to an explicit,
// precomputed kernel suitable for the separable 3D convolution in
// package volume.
package gauss

import "math"

// Kernel is a precomputed, odd-length, unit-sum 1D Gaussian kernel.
type Kernel struct {
	Sigma  float64
	Coeffs []float64 // length 2*Radius+1
	Radius int
}

// radiusFor returns the kernel half-width for a given sigma: four
// standard deviations captures >99.99% of the Gaussian's mass, the
// same rule of thumb used by most separable-blur implementations in
// the retrieval pack (e.g. the truncate-at-4-sigma convention).
func radiusFor(sigma float64) int {
	r := int(math.Ceil(4 * sigma))
	if r < 1 {
		r = 1
	}
	return r
}

// New builds a normalized Gaussian kernel with the given standard
// deviation. Sigma must be strictly positive; New panics otherwise.
// Callers skip the blur when BlurSigma returns 0 rather than
// constructing a degenerate kernel.
func New(sigma float64) Kernel {
	if sigma <= 0 {
		panic("gauss: sigma must be positive")
	}
	radius := radiusFor(sigma)
	coeffs := make([]float64, 2*radius+1)
	twoSigmaSq := 2 * sigma * sigma
	var sum float64
	for i := range coeffs {
		x := float64(i - radius)
		c := math.Exp(-(x * x) / twoSigmaSq)
		coeffs[i] = c
		sum += c
	}
	for i := range coeffs {
		coeffs[i] /= sum
	}
	return Kernel{Sigma: sigma, Coeffs: coeffs, Radius: radius}
}

// BlurSigma returns the sigma of the kernel needed to blur a signal
// already at sigmaFrom up to sigmaTo, using additive-in-variance
// composition: sigma = sqrt(sigmaTo^2 - sigmaFrom^2). BlurSigma
// returns 0 (no blur needed) if sigmaTo <= sigmaFrom.
func BlurSigma(sigmaFrom, sigmaTo float64) float64 {
	d := sigmaTo*sigmaTo - sigmaFrom*sigmaFrom
	if d <= 0 {
		return 0
	}
	return math.Sqrt(d)
}
