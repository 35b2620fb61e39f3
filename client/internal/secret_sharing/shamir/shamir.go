// Copyright 2022 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package shamir encapsulates all of the logic needed to perform t-of-n [Shamir
// Secret Sharing] (SSS) on arbitrary-size secrets over GF(2^8). SSS is based
// on the Lagrange interpolation theorem, which states that `k` points are enough
// to uniquely determine a polynomial of degree less than or equal to `k - 1`.
//
// Every byte of the secret is the constant term of its own random polynomial,
// and share `x` holds the evaluations of all those polynomials at `x`.
//
// This scheme is secure under the following assumptions:
//   - The scheme requires a trusted dealer to generate the shares. Participants
//     must trust the dealer with access to the secret and to properly generate the
//     shares.
//   - The scheme assumes a passive adversary which can observe (n - t) shares
//     without being able to reconstruct the secrets. However, this scheme
//     assumes the adversary isn't allowed to participate in the `reconstruct` step by
//     providing a chosen share.
//     Examples of this attack: https://crypto.stackexchange.com/q/41994/76875
//
// There is no integrity check: combining shares from different splits, or
// corrupted shares, silently yields the wrong bytes. Callers needing tamper
// detection must add a checksum to the secret before splitting.
//
// The highest coefficient of every polynomial is drawn from the non-zero elements
// only, so each polynomial has degree exactly t-1. The cost is that t-1 shares
// rule out one of the 256 candidate values for each secret byte, since the
// degree t-2 interpolation of those shares never equals the secret.
//
// [Shamir Secret Sharing]: https://web.mit.edu/6.857/OldStuff/Fall03/ref/Shamir-HowToShareAsecrets.pdf
package shamir

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/forcedotcom/CacheOnlyKeyWrapper/client/internal/secret_sharing/internal/field/gf8"
	"github.com/forcedotcom/CacheOnlyKeyWrapper/client/internal/secret_sharing/secrets"
)

// ErrReconstruct is returned when the provided shares are insufficient or ambiguous.
var ErrReconstruct = errors.New("cannot reconstruct secret")

// ErrRandomness is returned when rng keeps producing a zero leading coefficient.
var ErrRandomness = errors.New("randomness source is not random")

// maxLeadingRedraws bounds the redraws of a zero leading coefficient. An honest source
// exceeds it with probability 2^-512.
const maxLeadingRedraws = 64

// Split splits a secret into scheme.N() shares where scheme.K() or more shares can be
// combined to reconstruct the original secret. Coefficients are read from rng; a nil rng
// uses crypto/rand. Use a deterministic rng only in tests.
func Split(scheme secrets.Scheme, secret []byte, rng io.Reader) ([]secrets.Share, error) {
	if !scheme.Valid() {
		return nil, fmt.Errorf("%w: scheme was not created with secrets.NewScheme", secrets.ErrInvalidScheme)
	}
	if rng == nil {
		rng = rand.Reader
	}

	shares := make([]secrets.Share, scheme.N())
	for i := range shares {
		shares[i] = secrets.Share{Value: make([]byte, len(secret)), X: i + 1}
	}

	// For each byte of the secret we build a polynomial of degree K-1. The byte is the
	// constant coefficient and every other coefficient is a fresh random field element:
	// b + R_1 * x^1 + R_2 * x^2 + ... + R_(K-1) * x^(K-1)
	coefficients := make([]byte, scheme.K())
	defer clear(coefficients)
	for pos, b := range secret {
		if err := randomPolynomial(coefficients, b, rng); err != nil {
			wipe(shares)
			return nil, err
		}
		// shares[0].Value = [ F1(1), F2(1), ..., FN(1) ]
		// shares[1].Value = [ F1(2), F2(2), ..., FN(2) ]
		for i := range shares {
			shares[i].Value[pos] = evaluatePolynomial(coefficients, byte(shares[i].X))
		}
	}
	return shares, nil
}

// randomPolynomial fills coefficients with intercept followed by random elements. The
// highest coefficient is never zero, so the polynomial has degree exactly len(coefficients)-1.
func randomPolynomial(coefficients []byte, intercept byte, rng io.Reader) error {
	coefficients[0] = intercept
	if _, err := io.ReadFull(rng, coefficients[1:]); err != nil {
		return fmt.Errorf("failed to read random coefficients: %w", err)
	}
	last := len(coefficients) - 1
	for i := 0; coefficients[last] == 0; i++ {
		if i == maxLeadingRedraws {
			return fmt.Errorf("%w: %d zero leading coefficients in a row", ErrRandomness, maxLeadingRedraws+1)
		}
		if _, err := io.ReadFull(rng, coefficients[last:]); err != nil {
			return fmt.Errorf("failed to read random coefficients: %w", err)
		}
	}
	return nil
}

// evaluates a polynomial at `x` where `coefficients` take the form:
// f(x) = c[n-1] * x^(n-1) + c[n-2] * x^(n-2) + ... + c[1] * x^1 + c[0]
func evaluatePolynomial(coefficients []byte, x byte) byte {
	var sum byte
	for i := len(coefficients) - 1; i > 0; i-- {
		sum = gf8.Mul(gf8.Add(sum, coefficients[i]), x)
	}
	return gf8.Add(sum, coefficients[0])
}

// Combine reconstructs the secret from at least scheme.K() shares produced by Split under
// the same scheme. When more than K shares are given, the K shares with the lowest X are
// used and the rest are ignored.
//
// Combine will not detect bogus or corrupted shares.
func Combine(scheme secrets.Scheme, shares []secrets.Share) ([]byte, error) {
	if !scheme.Valid() {
		return nil, fmt.Errorf("%w: scheme was not created with secrets.NewScheme", secrets.ErrInvalidScheme)
	}
	if err := validateCombineInput(scheme, shares); err != nil {
		return nil, err
	}
	chosen := slices.Clone(shares)
	slices.SortFunc(chosen, func(a, b secrets.Share) int { return a.X - b.X })
	return interpolate(chosen[:scheme.K()])
}

// interpolate recovers the constant term of the polynomials passing through the shares.
// It performs lagrange polynomial interpolation at x = 0 for every byte position:
// ∑i={1,n} y[i] * ( ∏j={1,n,j≠i} ( x[j] / ( x[j] - x[i] ) ) )
func interpolate(shares []secrets.Share) ([]byte, error) {
	if len(shares) == 0 {
		return nil, fmt.Errorf("%w: no shares provided", ErrReconstruct)
	}
	xVals := make([]byte, len(shares))
	for i, s := range shares {
		if s.X < 1 || s.X > 255 {
			return nil, fmt.Errorf("%w: invalid X value %d", ErrReconstruct, s.X)
		}
		xVals[i] = byte(s.X)
	}
	// The lagrange coefficients only depend on the x coordinates, so they are computed
	// once and reused for every byte position.
	coefficients, err := lagrangeCoefficients(xVals)
	if err != nil {
		return nil, err
	}

	secret := make([]byte, len(shares[0].Value))
	for i := range secret {
		var sum byte
		for j, s := range shares {
			sum = gf8.Add(sum, gf8.Mul(s.Value[i], coefficients[j]))
		}
		secret[i] = sum
	}
	return secret, nil
}

// recovers the coefficients to perform lagrange polynomial interpolation using the x coordinates.
// ∏j={1,n,j≠i} ( x[j] / ( x[j] - x[i] ) )
func lagrangeCoefficients(x []byte) ([]byte, error) {
	out := make([]byte, len(x))
	for i := range x {
		out[i] = 1
		for j := range x {
			if i == j {
				continue
			}
			if x[i] == x[j] {
				return nil, fmt.Errorf("%w: all shares should be unique points", ErrReconstruct)
			}
			term, err := gf8.Div(x[j], gf8.Sub(x[j], x[i]))
			if err != nil {
				return nil, fmt.Errorf("lagrange coefficient for x = %d: %w", x[i], err)
			}
			out[i] = gf8.Mul(out[i], term)
		}
	}
	return out, nil
}

func validateCombineInput(scheme secrets.Scheme, shares []secrets.Share) error {
	if len(shares) < scheme.K() {
		return fmt.Errorf("%w: not enough shares to reconstruct the secret, need at least %d, got %d", ErrReconstruct, scheme.K(), len(shares))
	}
	seen := make(map[int]bool, len(shares))
	for i, s := range shares {
		if s.X < 1 || s.X > scheme.N() {
			return fmt.Errorf("%w: share %d has index %d, want between 1 and %d", ErrReconstruct, i, s.X, scheme.N())
		}
		if seen[s.X] {
			return fmt.Errorf("%w: duplicate share index %d", ErrReconstruct, s.X)
		}
		seen[s.X] = true
		if len(s.Value) != len(shares[0].Value) {
			return fmt.Errorf("%w: share %d has length %d, want %d", ErrReconstruct, i, len(s.Value), len(shares[0].Value))
		}
	}
	return nil
}

func wipe(shares []secrets.Share) {
	for _, s := range shares {
		clear(s.Value)
	}
}
