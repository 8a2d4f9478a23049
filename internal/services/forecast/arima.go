package forecast

import (
	"math"

	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"
)

const (
	maxP     = 3
	maxQ     = 3
	maxOrder = 4
	maxD     = 2

	// 5% critical value of the KPSS level-stationarity statistic
	kpssCritical = 0.463

	// pacf values are kept strictly inside the unit interval
	pacfBound = 0.999
)

// order identifies an ARIMA(p, d, q) candidate
type order struct {
	p, d, q   int
	intercept bool
}

// params counts the estimated parameters including the innovation variance
func (o order) params() int {
	k := o.p + o.q + 1
	if o.intercept {
		k++
	}
	return k
}

// arima is a fitted model on the d-times differenced series
type arima struct {
	order
	mu     float64 // mean of the differenced series
	phi    []float64
	theta  []float64
	sigma2 float64
	aicc   float64

	levels [][]float64 // levels[k] is the series differenced k times
	resid  []float64
}

// difference returns the first difference of x
func difference(x []float64) []float64 {
	if len(x) < 2 {
		return nil
	}
	out := make([]float64, len(x)-1)
	for i := 1; i < len(x); i++ {
		out[i-1] = x[i] - x[i-1]
	}
	return out
}

// kpss returns the KPSS statistic for level stationarity, with the
// Bartlett-weighted long-run variance truncated at trunc(3*sqrt(n)/13) lags.
// It returns 0 for a constant series.
func kpss(x []float64) float64 {
	n := len(x)
	mean := stat.Mean(x, nil)

	e := make([]float64, n)
	for i, v := range x {
		e[i] = v - mean
	}

	var cum, eta float64
	for _, v := range e {
		cum += v
		eta += cum * cum
	}
	eta /= float64(n * n)

	var s2 float64
	for _, v := range e {
		s2 += v * v
	}
	lags := int(math.Trunc(3 * math.Sqrt(float64(n)) / 13))
	for l := 1; l <= lags; l++ {
		var cov float64
		for t := l; t < n; t++ {
			cov += e[t] * e[t-l]
		}
		s2 += 2 * (1 - float64(l)/float64(lags+1)) * cov
	}
	s2 /= float64(n)

	if s2 <= 0 {
		return 0
	}
	return eta / s2
}

// ndiffs picks the differencing order by repeated KPSS tests
func ndiffs(x []float64) int {
	d := 0
	for d < maxD && len(x) > 3 {
		if kpss(x) < kpssCritical {
			break
		}
		x = difference(x)
		d++
	}
	return d
}

// pacfToCoef maps partial autocorrelations in (-1, 1) to the coefficients
// of a stationary AR polynomial 1 - a1*B - ... - ap*B^p.
func pacfToCoef(r []float64) []float64 {
	p := len(r)
	a := make([]float64, p)
	tmp := make([]float64, p)
	for k := 0; k < p; k++ {
		a[k] = r[k]
		for j := 0; j < k; j++ {
			tmp[j] = a[j] - r[k]*a[k-1-j]
		}
		copy(a[:k], tmp[:k])
	}
	return a
}

func bounded(u float64) float64 {
	return pacfBound * math.Tanh(u)
}

// unpack turns the optimizer's unconstrained vector into model coefficients
func (o order) unpack(x []float64) (mu float64, phi, theta []float64) {
	i := 0
	if o.intercept {
		mu = x[0]
		i = 1
	}

	r := make([]float64, o.p)
	for j := range r {
		r[j] = bounded(x[i+j])
	}
	phi = pacfToCoef(r)
	i += o.p

	s := make([]float64, o.q)
	for j := range s {
		s[j] = bounded(x[i+j])
	}
	a := pacfToCoef(s)
	theta = make([]float64, o.q)
	for j := range a {
		theta[j] = -a[j]
	}
	return mu, phi, theta
}

// residuals computes conditional-sum-of-squares innovations of w. The first
// p innovations are conditioned to zero.
func residuals(w []float64, mu float64, phi, theta []float64) []float64 {
	p := len(phi)
	e := make([]float64, len(w))
	for t := p; t < len(w); t++ {
		v := w[t] - mu
		for i, a := range phi {
			v -= a * (w[t-1-i] - mu)
		}
		for j, b := range theta {
			if t-1-j >= 0 {
				v -= b * e[t-1-j]
			}
		}
		e[t] = v
	}
	return e
}

func sumSquares(e []float64, from int) float64 {
	var ss float64
	for _, v := range e[from:] {
		ss += v * v
	}
	return ss
}

// fit estimates one candidate on the standardized differenced series.
// ok is false when the candidate cannot be estimated reliably.
func fit(x []float64, o order) (*arima, bool) {
	levels := [][]float64{x}
	for k := 0; k < o.d; k++ {
		levels = append(levels, difference(levels[k]))
	}
	w := levels[o.d]

	neff := len(w) - o.p
	k := o.params()
	if neff-k-1 <= 0 {
		return nil, false
	}

	center := stat.Mean(w, nil)
	scale := stat.StdDev(w, nil)
	if !(scale > 0) {
		if o.d > 0 && o.intercept && o.p == 0 && o.q == 0 {
			return drift(levels, o, center), true
		}
		return nil, false
	}
	z := make([]float64, len(w))
	for i, v := range w {
		if o.intercept {
			z[i] = (v - center) / scale
		} else {
			z[i] = v / scale
		}
	}

	nx := o.p + o.q
	if o.intercept {
		nx++
	}

	var best []float64
	if nx == 0 || (nx == 1 && o.intercept) {
		// mean-only model: CSS estimate is the sample mean
		best = make([]float64, nx)
	} else {
		problem := optimize.Problem{
			Func: func(v []float64) float64 {
				mu, phi, theta := o.unpack(v)
				return sumSquares(residuals(z, mu, phi, theta), o.p)
			},
		}
		result, err := optimize.Minimize(problem, make([]float64, nx),
			&optimize.Settings{FuncEvaluations: 4000}, &optimize.NelderMead{})
		if result == nil || (err != nil && len(result.X) != nx) {
			return nil, false
		}
		best = result.X
	}

	muZ, phi, theta := o.unpack(best)
	residZ := residuals(z, muZ, phi, theta)
	ssZ := sumSquares(residZ, o.p)

	sigma2 := ssZ / float64(neff) * scale * scale
	if !(sigma2 > 1e-12*scale*scale) || math.IsInf(sigma2, 0) {
		return nil, false
	}

	mu := muZ * scale
	if o.intercept {
		mu += center
	}
	resid := make([]float64, len(residZ))
	for i, v := range residZ {
		resid[i] = v * scale
	}

	loglik := -float64(neff) / 2 * (math.Log(2*math.Pi*sigma2) + 1)
	aic := -2*loglik + 2*float64(k)
	aicc := aic + 2*float64(k*(k+1))/float64(neff-k-1)
	if math.IsNaN(aicc) || math.IsInf(aicc, 0) {
		return nil, false
	}

	return &arima{
		order:  o,
		mu:     mu,
		phi:    phi,
		theta:  theta,
		sigma2: sigma2,
		aicc:   aicc,
		levels: levels,
		resid:  resid,
	}, true
}

// drift is the exact fit for a series whose d-th difference is constant:
// ARIMA(0, d, 0) whose intercept is that constant, with no innovation
// variance. AICc is undefined for an exact fit and reported as 0.
func drift(levels [][]float64, o order, step float64) *arima {
	return &arima{
		order:  o,
		mu:     step,
		levels: levels,
		resid:  make([]float64, len(levels[o.d])),
	}
}

// autoFit selects d by KPSS and then (p, q) by lowest AICc over the grid.
// Ties keep the simpler model.
func autoFit(x []float64) *arima {
	d := ndiffs(x)

	var best *arima
	for p := 0; p <= maxP; p++ {
		for q := 0; q <= maxQ; q++ {
			if p+q > maxOrder {
				continue
			}
			m, ok := fit(x, order{p: p, d: d, q: q, intercept: d < 2})
			if !ok {
				continue
			}
			if best == nil || m.aicc < best.aicc {
				best = m
			}
		}
	}
	return best
}

// predict returns h point forecasts and their standard errors on the
// original scale.
func (m *arima) predict(h int) (point, se []float64) {
	w := append([]float64(nil), m.levels[m.d]...)
	e := append([]float64(nil), m.resid...)

	levels := make([][]float64, len(m.levels))
	for k := range m.levels {
		levels[k] = append([]float64(nil), m.levels[k]...)
	}

	point = make([]float64, h)
	for step := 0; step < h; step++ {
		t := len(w)
		v := m.mu
		for i, a := range m.phi {
			v += a * (w[t-1-i] - m.mu)
		}
		for j, b := range m.theta {
			if t-1-j >= 0 && t-1-j < len(e) {
				v += b * e[t-1-j]
			}
		}
		w = append(w, v)
		e = append(e, 0)

		// integrate back through each differencing level
		levels[m.d] = append(levels[m.d], v)
		for k := m.d - 1; k >= 0; k-- {
			prev := levels[k][len(levels[k])-1]
			next := levels[k+1][len(levels[k+1])-1]
			levels[k] = append(levels[k], prev+next)
		}
		point[step] = levels[0][len(levels[0])-1]
	}

	psi := m.psiWeights(h)
	se = make([]float64, h)
	var acc float64
	for step := 0; step < h; step++ {
		acc += psi[step] * psi[step]
		se[step] = math.Sqrt(m.sigma2 * acc)
	}
	return point, se
}

// psiWeights expands the MA(infinity) representation of the integrated model
func (m *arima) psiWeights(h int) []float64 {
	// AR polynomial 1 - phi1 B - ... multiplied by (1 - B)^d
	poly := make([]float64, len(m.phi)+1)
	poly[0] = 1
	for i, a := range m.phi {
		poly[i+1] = -a
	}
	for k := 0; k < m.d; k++ {
		next := make([]float64, len(poly)+1)
		for i, c := range poly {
			next[i] += c
			next[i+1] -= c
		}
		poly = next
	}

	psi := make([]float64, h)
	psi[0] = 1
	for j := 1; j < h; j++ {
		var v float64
		if j <= len(m.theta) {
			v = m.theta[j-1]
		}
		for i := 1; i < len(poly) && i <= j; i++ {
			v += -poly[i] * psi[j-i]
		}
		psi[j] = v
	}
	return psi
}
