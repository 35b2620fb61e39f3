// Copyright 2024 Google LLC
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

// Package secrets contains types for secret sharing. A dealer builds a `Scheme` once, splits a
// secret under it into `Share`s, and later passes the same `Scheme` alongside at least K of the
// shares to reconstruct the secret.
package secrets

import (
	"errors"
	"fmt"
)

const (
	// MinShares is the smallest number of shares a secret can be split into.
	MinShares = 2
	// MaxShares is the largest number of shares a secret can be split into. Shares travel as
	// parts whose index is a single decimal digit, which bounds N to 10.
	MaxShares = 10
)

// ErrInvalidScheme is returned for an (N, K) combination that cannot be used for splitting.
var ErrInvalidScheme = errors.New("invalid secret sharing scheme")

// Scheme is an immutable (N, K) threshold scheme: a secret is split into N shares, any K of which
// reconstruct it. The zero value is not a valid scheme; use NewScheme.
type Scheme struct {
	numShares int
	threshold int
}

// NewScheme validates and returns the scheme splitting into numShares shares with the given threshold.
func NewScheme(numShares, threshold int) (Scheme, error) {
	if numShares < MinShares || numShares > MaxShares {
		return Scheme{}, fmt.Errorf("%w: number of shares must be between %d and %d, got %d", ErrInvalidScheme, MinShares, MaxShares, numShares)
	}
	if threshold <= 1 {
		return Scheme{}, fmt.Errorf("%w: threshold must be larger than 1, got %d", ErrInvalidScheme, threshold)
	}
	if threshold > numShares {
		return Scheme{}, fmt.Errorf("%w: threshold (%d) should be smaller than or equal to number of shares (%d)", ErrInvalidScheme, threshold, numShares)
	}
	return Scheme{numShares: numShares, threshold: threshold}, nil
}

// N returns the number of shares produced by a split.
func (s Scheme) N() int { return s.numShares }

// K returns the number of shares needed to reconstruct the secret.
func (s Scheme) K() int { return s.threshold }

// Valid reports whether s was built by NewScheme.
func (s Scheme) Valid() bool { return s.numShares >= MinShares }

func (s Scheme) String() string {
	return fmt.Sprintf("%d-of-%d", s.threshold, s.numShares)
}

// Share represents one share of a shared secret without any metadata.
type Share struct {
	// Value holds one byte per byte of the original secret.
	Value []byte
	// X is the 1-based evaluation point of the share.
	X int
}
