// Package ensemble generates the initial particle population of a run. Each
// axis draws its {position, velocity} pair from a 2-D Gaussian, and every draw
// pulls from one explicitly passed generator so a seed fixes the whole cloud.
package ensemble

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"github.com/sarchlab/trapsim/sim"
)

// psdTolerance is the relative size below which a negative eigenvalue is
// treated as round-off.
const psdTolerance = 1e-12

// Gaussian2D is a bivariate normal distribution with a validated covariance.
type Gaussian2D struct {
	mean   [2]float64
	cov    [2][2]float64
	factor [2][2]float64
}

// NewGaussian2D creates a distribution with the given mean and covariance.
// The covariance must be finite, symmetric and positive semi-definite.
func NewGaussian2D(mean [2]float64, cov [2][2]float64) (*Gaussian2D, error) {
	for i := 0; i < 2; i++ {
		if math.IsNaN(mean[i]) || math.IsInf(mean[i], 0) {
			return nil, fmt.Errorf("%w: mean is not finite", sim.ErrSampling)
		}

		for j := 0; j < 2; j++ {
			if math.IsNaN(cov[i][j]) || math.IsInf(cov[i][j], 0) {
				return nil, fmt.Errorf("%w: covariance is not finite",
					sim.ErrSampling)
			}
		}
	}

	if cov[0][1] != cov[1][0] {
		return nil, fmt.Errorf("%w: covariance is not symmetric (%g != %g)",
			sim.ErrSampling, cov[0][1], cov[1][0])
	}

	if cov[0][0] < 0 || cov[1][1] < 0 {
		return nil, fmt.Errorf("%w: covariance has a negative variance",
			sim.ErrSampling)
	}

	var factor [2][2]float64
	if cov[0][1] == 0 {
		factor[0][0] = math.Sqrt(cov[0][0])
		factor[1][1] = math.Sqrt(cov[1][1])
	} else {
		var err error
		if factor, err = factorize(cov); err != nil {
			return nil, err
		}
	}

	return &Gaussian2D{
		mean:   mean,
		cov:    cov,
		factor: factor,
	}, nil
}

// factorize returns A with A*A^T = cov. A is the Cholesky factor when cov is
// positive definite and Q*sqrt(L) from the eigendecomposition otherwise.
func factorize(cov [2][2]float64) ([2][2]float64, error) {
	var factor [2][2]float64

	sym := mat.NewSymDense(2, []float64{
		cov[0][0], cov[0][1],
		cov[1][0], cov[1][1],
	})

	var eig mat.EigenSym
	if !eig.Factorize(sym, true) {
		return factor, fmt.Errorf("%w: cannot decompose covariance",
			sim.ErrSampling)
	}

	values := eig.Values(nil)
	scale := math.Max(math.Abs(values[0]), math.Abs(values[1]))
	for _, v := range values {
		if v < -psdTolerance*scale {
			return factor, fmt.Errorf(
				"%w: covariance is not positive semi-definite (eigenvalue %g)",
				sim.ErrSampling, v)
		}
	}

	var chol mat.Cholesky
	if chol.Factorize(sym) {
		var l mat.TriDense
		chol.LTo(&l)

		for i := 0; i < 2; i++ {
			for j := 0; j < 2; j++ {
				factor[i][j] = l.At(i, j)
			}
		}

		return factor, nil
	}

	var vectors mat.Dense
	eig.VectorsTo(&vectors)

	for j := 0; j < 2; j++ {
		s := math.Sqrt(math.Max(values[j], 0))
		for i := 0; i < 2; i++ {
			factor[i][j] = vectors.At(i, j) * s
		}
	}

	return factor, nil
}

// Mean returns the mean of the distribution.
func (g *Gaussian2D) Mean() [2]float64 {
	return g.mean
}

// Covariance returns the covariance of the distribution.
func (g *Gaussian2D) Covariance() [2][2]float64 {
	return g.cov
}

// IsDiagonal tells if the two output dimensions are uncorrelated.
func (g *Gaussian2D) IsDiagonal() bool {
	return g.cov[0][1] == 0
}

// Draw samples one point. It consumes exactly two standard normals from rng,
// first for the first latent dimension and then for the second. A diagonal
// covariance scales each normal by its standard deviation.
func (g *Gaussian2D) Draw(rng *rand.Rand) [2]float64 {
	z0 := rng.NormFloat64()
	z1 := rng.NormFloat64()

	if g.IsDiagonal() {
		return [2]float64{
			g.mean[0] + g.factor[0][0]*z0,
			g.mean[1] + g.factor[1][1]*z1,
		}
	}

	return [2]float64{
		g.mean[0] + g.factor[0][0]*z0 + g.factor[0][1]*z1,
		g.mean[1] + g.factor[1][0]*z0 + g.factor[1][1]*z1,
	}
}
