package strategy

import "math"

// Ema is an exponential moving average over irregularly spaced samples. The
// smoothing weight adapts to the elapsed interval: alpha = 1 - exp(-dt/tau),
// with tau in the same unit as dt.
type Ema struct {
	tau  float64
	mean float64
	init bool
}

// NewEma creates an average with time constant tau. tau must be positive.
func NewEma(tau float64) *Ema {
	if tau <= 0 {
		panic("strategy: ema tau must be positive")
	}
	return &Ema{tau: tau}
}

// Reset seeds the average with an initial sample.
func (e *Ema) Reset(v float64) {
	e.mean = v
	e.init = true
}

// Update folds in a sample observed dt after the previous one and returns
// the new mean.
func (e *Ema) Update(sample, dt float64) float64 {
	if !e.init {
		e.mean = sample
		e.init = true
		return e.mean
	}
	alpha := 1 - math.Exp(-dt/e.tau)
	e.mean = e.mean*(1-alpha) + sample*alpha
	return e.mean
}

// Mean returns the current average, false before the first sample.
func (e *Ema) Mean() (float64, bool) {
	return e.mean, e.init
}

// Emav tracks an exponential moving average together with an exponentially
// weighted variance, via E[x^2] - E[x]^2 floored at zero.
type Emav struct {
	tau    float64
	mean   float64
	meanSq float64
	init   bool
}

// NewEmav creates an average+variance with time constant tau.
func NewEmav(tau float64) *Emav {
	if tau <= 0 {
		panic("strategy: emav tau must be positive")
	}
	return &Emav{tau: tau}
}

// Reset seeds both moments with an initial sample.
func (e *Emav) Reset(v float64) {
	e.mean = v
	e.meanSq = v * v
	e.init = true
}

// Update folds in a sample observed dt after the previous one and returns
// the new mean and variance.
func (e *Emav) Update(sample, dt float64) (mean, variance float64) {
	if !e.init {
		e.mean = sample
		e.meanSq = sample * sample
		e.init = true
		return e.mean, 0
	}
	alpha := 1 - math.Exp(-dt/e.tau)
	e.mean = e.mean*(1-alpha) + sample*alpha
	e.meanSq = e.meanSq*(1-alpha) + sample*sample*alpha
	return e.mean, e.varianceNow()
}

// Mean returns the current average, false before the first sample.
func (e *Emav) Mean() (float64, bool) {
	return e.mean, e.init
}

// Variance returns the current variance, false before the first sample.
func (e *Emav) Variance() (float64, bool) {
	if !e.init {
		return 0, false
	}
	return e.varianceNow(), true
}

func (e *Emav) varianceNow() float64 {
	v := e.meanSq - e.mean*e.mean
	if v < 0 {
		return 0
	}
	return v
}
