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

package shamir_test

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	mrand "math/rand"
	"testing"

	"github.com/forcedotcom/CacheOnlyKeyWrapper/client/internal/secret_sharing/secrets"
	"github.com/forcedotcom/CacheOnlyKeyWrapper/client/internal/secret_sharing/shamir"
	"github.com/google/go-cmp/cmp"
)

const smallSecret = "abcdefghijklmnopqrstuvwxyz123456"

func getRandomBytes(t *testing.T, n int) []byte {
	t.Helper()
	b := make([]byte, n)
	_, err := rand.Read(b)
	if err != nil {
		t.Fatalf("Failed to read random bytes: %v", err)
	}
	return b
}

func mustScheme(t *testing.T, n, k int) secrets.Scheme {
	t.Helper()
	s, err := secrets.NewScheme(n, k)
	if err != nil {
		t.Fatalf("secrets.NewScheme(%d, %d) err = %v", n, k, err)
	}
	return s
}

// subsets returns every k-element subset of shares, preserving order.
func subsets(shares []secrets.Share, k int) [][]secrets.Share {
	if k == 0 {
		return [][]secrets.Share{nil}
	}
	if len(shares) < k {
		return nil
	}
	var out [][]secrets.Share
	for _, rest := range subsets(shares[1:], k-1) {
		out = append(out, append([]secrets.Share{shares[0]}, rest...))
	}
	return append(out, subsets(shares[1:], k)...)
}

func swap(s []secrets.Share, i int, j int) {
	s[i], s[j] = s[j], s[i]
}

func TestSplitCombineEveryThresholdSubset(t *testing.T) {
	for _, secretLen := range []int{0, 1, 16, 32, 255} {
		secret := getRandomBytes(t, secretLen)
		for n := secrets.MinShares; n <= secrets.MaxShares; n++ {
			for k := 2; k <= n; k++ {
				t.Run(fmt.Sprintf("len=%d %d-of-%d", secretLen, k, n), func(t *testing.T) {
					scheme := mustScheme(t, n, k)
					shares, err := shamir.Split(scheme, secret, nil)
					if err != nil {
						t.Fatalf("shamir.Split() err = %v, want nil", err)
					}
					if len(shares) != n {
						t.Fatalf("shamir.Split() returned %d shares, want %d", len(shares), n)
					}
					for i, s := range shares {
						if s.X != i+1 || len(s.Value) != secretLen {
							t.Fatalf("share %d = (X=%d, len=%d), want (X=%d, len=%d)", i, s.X, len(s.Value), i+1, secretLen)
						}
					}
					for _, subset := range subsets(shares, k) {
						recon, err := shamir.Combine(scheme, subset)
						if err != nil {
							t.Fatalf("shamir.Combine() err = %v, want nil", err)
						}
						if got, want := recon, secret; !bytes.Equal(got, want) {
							t.Fatalf("got %v, want %v", hex.EncodeToString(got), hex.EncodeToString(want))
						}
					}
				})
			}
		}
	}
}

func TestDeterministicSplitScenario(t *testing.T) {
	secret := make([]byte, 32)
	for i := range secret {
		secret[i] = byte(i)
	}
	scheme := mustScheme(t, 3, 2)

	shares, err := shamir.Split(scheme, secret, mrand.New(mrand.NewSource(42)))
	if err != nil {
		t.Fatalf("shamir.Split() err = %v, want nil", err)
	}
	again, err := shamir.Split(scheme, secret, mrand.New(mrand.NewSource(42)))
	if err != nil {
		t.Fatalf("shamir.Split() err = %v, want nil", err)
	}
	if diff := cmp.Diff(shares, again); diff != "" {
		t.Errorf("splitting with the same seed gave different shares (-first +second):\n%s", diff)
	}

	for _, idx := range [][]int{{1, 3}, {2, 3}} {
		subset := []secrets.Share{shares[idx[0]-1], shares[idx[1]-1]}
		recon, err := shamir.Combine(scheme, subset)
		if err != nil {
			t.Fatalf("shamir.Combine(%v) err = %v, want nil", idx, err)
		}
		if !bytes.Equal(recon, secret) {
			t.Errorf("shamir.Combine(%v) = %x, want %x", idx, recon, secret)
		}
	}

	if _, err := shamir.Combine(scheme, shares[:1]); !errors.Is(err, shamir.ErrReconstruct) {
		t.Errorf("shamir.Combine(share 1) err = %v, want %v", err, shamir.ErrReconstruct)
	}
}

func TestCombineOrderDoesNotMatter(t *testing.T) {
	secret := []byte(smallSecret)
	scheme := mustScheme(t, 6, 4)
	shares, err := shamir.Split(scheme, secret, nil)
	if err != nil {
		t.Fatal(err)
	}
	subset := []secrets.Share{shares[4], shares[1], shares[3], shares[2]}
	recon, err := shamir.Combine(scheme, subset)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(recon, secret) {
		t.Errorf("got %v, want %v", hex.EncodeToString(recon), hex.EncodeToString(secret))
	}
	// swapping the order shouldn't matter.
	swap(subset, 0, 2)
	recon, err = shamir.Combine(scheme, subset)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(recon, secret) {
		t.Errorf("got %v, want %v", hex.EncodeToString(recon), hex.EncodeToString(secret))
	}
}

func TestCombineUsesLowestIndices(t *testing.T) {
	secret := getRandomBytes(t, 32)
	scheme := mustScheme(t, 5, 3)
	shares, err := shamir.Split(scheme, secret, nil)
	if err != nil {
		t.Fatal(err)
	}
	// Shares 4 and 5 are not among the three lowest indices, so corrupting them
	// doesn't affect the result.
	shares[3].Value = getRandomBytes(t, 32)
	shares[4].Value = getRandomBytes(t, 32)
	recon, err := shamir.Combine(scheme, []secrets.Share{shares[4], shares[3], shares[2], shares[1], shares[0]})
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(recon, secret) {
		t.Errorf("got %v, want %v", hex.EncodeToString(recon), hex.EncodeToString(secret))
	}
}

func TestCombineWithAlteredValueSilentlyFails(t *testing.T) {
	secret := getRandomBytes(t, 32)
	scheme := mustScheme(t, 3, 2)
	shares, err := shamir.Split(scheme, secret, nil)
	if err != nil {
		t.Fatalf("shamir.Split() err = %v, want nil", err)
	}
	shares[0].Value[0] ^= 0xFF
	// Combine has no integrity check and shouldn't return an error.
	recon, err := shamir.Combine(scheme, shares[:2])
	if err != nil {
		t.Fatalf("shamir.Combine() err = %v, want nil", err)
	}
	if bytes.Equal(recon, secret) {
		t.Errorf("combining an altered share should not reproduce the secret")
	}
}

func TestCombineSharesFromDifferentSplitsSilentlyFails(t *testing.T) {
	secret := getRandomBytes(t, 32)
	scheme := mustScheme(t, 3, 2)
	first, err := shamir.Split(scheme, secret, nil)
	if err != nil {
		t.Fatal(err)
	}
	second, err := shamir.Split(scheme, secret, nil)
	if err != nil {
		t.Fatal(err)
	}
	recon, err := shamir.Combine(scheme, []secrets.Share{first[0], second[1]})
	if err != nil {
		t.Fatalf("shamir.Combine() err = %v, want nil", err)
	}
	if bytes.Equal(recon, secret) {
		t.Errorf("combining shares of two splits should not reproduce the secret")
	}
}

func TestCombineInvalidInputFails(t *testing.T) {
	scheme := mustScheme(t, 4, 3)
	shares, err := shamir.Split(scheme, getRandomBytes(t, 16), nil)
	if err != nil {
		t.Fatal(err)
	}
	short := shares[2]
	short.Value = short.Value[:15]
	for _, tc := range []struct {
		name   string
		shares []secrets.Share
	}{
		{name: "no shares", shares: nil},
		{name: "fewer than threshold", shares: shares[:2]},
		{name: "duplicate index", shares: []secrets.Share{shares[0], shares[1], shares[1]}},
		{name: "index zero", shares: []secrets.Share{{X: 0, Value: shares[0].Value}, shares[1], shares[2]}},
		{name: "index above N", shares: []secrets.Share{shares[0], shares[1], {X: 5, Value: shares[2].Value}}},
		{name: "mismatched lengths", shares: []secrets.Share{shares[0], shares[1], short}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := shamir.Combine(scheme, tc.shares); !errors.Is(err, shamir.ErrReconstruct) {
				t.Errorf("shamir.Combine() err = %v, want %v", err, shamir.ErrReconstruct)
			}
		})
	}
}

func TestZeroSchemeFails(t *testing.T) {
	if _, err := shamir.Split(secrets.Scheme{}, []byte(smallSecret), nil); !errors.Is(err, secrets.ErrInvalidScheme) {
		t.Errorf("shamir.Split(Scheme{}) err = %v, want %v", err, secrets.ErrInvalidScheme)
	}
	if _, err := shamir.Combine(secrets.Scheme{}, nil); !errors.Is(err, secrets.ErrInvalidScheme) {
		t.Errorf("shamir.Combine(Scheme{}) err = %v, want %v", err, secrets.ErrInvalidScheme)
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("entropy exhausted") }

func TestSplitPropagatesRandomnessFailure(t *testing.T) {
	if _, err := shamir.Split(mustScheme(t, 3, 2), []byte(smallSecret), failingReader{}); err == nil {
		t.Fatalf("shamir.Split() err = nil, want error")
	}
}

type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	clear(p)
	return len(p), nil
}

func TestSplitRejectsAllZeroRandomness(t *testing.T) {
	_, err := shamir.Split(mustScheme(t, 3, 2), []byte(smallSecret), zeroReader{})
	if !errors.Is(err, shamir.ErrRandomness) {
		t.Fatalf("shamir.Split(zero reader) err = %v, want %v", err, shamir.ErrRandomness)
	}
}

// alternatingReader returns 0, 1, 0, 1, ... one byte per element.
type alternatingReader struct{ n int }

func (r *alternatingReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = byte(r.n % 2)
		r.n++
	}
	return len(p), nil
}

func TestSplitRedrawsZeroLeadingCoefficient(t *testing.T) {
	// The first draw for every byte is zero, forcing one redraw per position.
	scheme := mustScheme(t, 2, 2)
	shares, err := shamir.Split(scheme, []byte(smallSecret), &alternatingReader{})
	if err != nil {
		t.Fatalf("shamir.Split() err = %v", err)
	}
	got, err := shamir.Combine(scheme, shares)
	if err != nil {
		t.Fatalf("shamir.Combine() err = %v", err)
	}
	if diff := cmp.Diff([]byte(smallSecret), got); diff != "" {
		t.Errorf("shamir.Combine() mismatch (-want +got):\n%s", diff)
	}
}
