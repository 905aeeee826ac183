// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package latent samples the random latent vectors ("z") that condition the generator.
//
// All images generated in one pass over a batch share the same latent vector: this isolates the
// effect of the random vector from the effect of the conditioning sketch. Sample returns, for each
// of n samples, the same vector broadcast to every row of the batch.
package latent

import (
	"math/rand"

	"github.com/pkg/errors"
)

// MaxSamples is the default upper bound on the number of different latent samples per evaluation.
const MaxSamples = 64

// Draw one vector of dimension d with values uniformly distributed in [-1, 1).
func Draw(rng *rand.Rand, d int) []float32 {
	v := make([]float32, d)
	for ii := range v {
		v[ii] = float32(2*rng.Float64() - 1)
	}
	return v
}

// Broadcast returns b independent copies of v: a `[b, len(v)]` matrix with identical rows.
func Broadcast(v []float32, b int) [][]float32 {
	rows := make([][]float32, b)
	for ii := range rows {
		rows[ii] = make([]float32, len(v))
		copy(rows[ii], v)
	}
	return rows
}

// Sample returns an `[n, b, d]` array of latent vectors: for each n one vector is drawn, and broadcast
// to all the b rows of the batch.
//
// The same seed always yields the same values.
func Sample(seed int64, n, b, d int) ([][][]float32, error) {
	if n <= 0 || b <= 0 || d <= 0 {
		return nil, errors.Errorf("latent.Sample(n=%d, b=%d, d=%d): all dimensions must be positive", n, b, d)
	}
	rng := rand.New(rand.NewSource(seed))
	samples := make([][][]float32, n)
	for ii := range samples {
		samples[ii] = Broadcast(Draw(rng, d), b)
	}
	return samples, nil
}
