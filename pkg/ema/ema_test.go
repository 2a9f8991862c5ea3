package ema_test

import (
	"math"
	"testing"

	"afc-coordinator/pkg/ema"
)

func TestEMA_ValueAverage(t *testing.T) {
	e := ema.New(4, false)

	var last float64
	for _, v := range []float64{10, 10, 10, 10, 10} {
		last = e.Update(v)
	}
	// Starting from 0 with weight 2/(4+1) = 0.4, five samples of 10 give
	// 10 * (1 - 0.6^5) = 9.2224.
	if math.Abs(last-9.2224) > 0.01 {
		t.Errorf("expected EMA of 9.2224 after five samples, got %f", last)
	}
}

func TestEMA_RateAverage(t *testing.T) {
	e := ema.New(4, true)

	// Constant rate of +5 per tick.
	e.Update(0)
	var last float64
	for _, v := range []float64{5, 10, 15, 20, 25} {
		last = e.Update(v)
	}
	if math.Abs(last-5) > 0.5 {
		t.Errorf("expected rate EMA to converge near 5, got %f", last)
	}
}

func TestEMA_ValueWithoutUpdateIsZero(t *testing.T) {
	e := ema.New(10, false)
	if got := e.Value(); got != 0 {
		t.Errorf("expected zero-value EMA, got %f", got)
	}
}
