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

package parts

import (
	"errors"
	"fmt"
	"regexp"
	"testing"

	"github.com/forcedotcom/CacheOnlyKeyWrapper/client/internal/secret_sharing/secrets"
	"github.com/google/go-cmp/cmp"
	"github.com/google/tink/go/subtle/random"
)

var partPattern = regexp.MustCompile(`^[0-9][0-9a-f]+$`)

func TestDecodeKnownPart(t *testing.T) {
	share, err := Decode("2ab")
	if err != nil {
		t.Fatalf("Decode(%q) err = %v", "2ab", err)
	}
	want := secrets.Share{X: 3, Value: []byte{0xAB}}
	if diff := cmp.Diff(want, share); diff != "" {
		t.Errorf("Decode(%q) mismatch (-want +got):\n%s", "2ab", diff)
	}
	part, err := Encode(share)
	if err != nil {
		t.Fatal(err)
	}
	if part != "2ab" {
		t.Errorf("Encode(%v) = %q, want %q", share, part, "2ab")
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	for x := 1; x <= secrets.MaxShares; x++ {
		for _, n := range []int{1, 2, 16, 32, 255} {
			t.Run(fmt.Sprintf("X=%d len=%d", x, n), func(t *testing.T) {
				share := secrets.Share{X: x, Value: random.GetRandomBytes(uint32(n))}
				part, err := Encode(share)
				if err != nil {
					t.Fatalf("Encode() err = %v", err)
				}
				if !partPattern.MatchString(part) {
					t.Errorf("Encode() = %q, does not match %v", part, partPattern)
				}
				if got, want := len(part), 1+2*n; got != want {
					t.Errorf("len(Encode()) = %d, want %d", got, want)
				}
				decoded, err := Decode(part)
				if err != nil {
					t.Fatalf("Decode(%q) err = %v", part, err)
				}
				if diff := cmp.Diff(share, decoded); diff != "" {
					t.Errorf("Decode(Encode(share)) mismatch (-want +got):\n%s", diff)
				}
			})
		}
	}
}

func TestEncodeInvalidShareFails(t *testing.T) {
	for _, tc := range []struct {
		name  string
		share secrets.Share
	}{
		{name: "index zero", share: secrets.Share{X: 0, Value: []byte{1}}},
		{name: "index eleven", share: secrets.Share{X: 11, Value: []byte{1}}},
		{name: "empty value", share: secrets.Share{X: 1}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Encode(tc.share); !errors.Is(err, ErrMalformedPart) {
				t.Errorf("Encode() err = %v, want %v", err, ErrMalformedPart)
			}
		})
	}
}

func TestDecodeMalformedPartFails(t *testing.T) {
	for _, tc := range []struct {
		name string
		part string
	}{
		{name: "empty", part: ""},
		{name: "single digit", part: "1"},
		{name: "single non-digit", part: "x"},
		{name: "non-digit index", part: "aab"},
		{name: "odd-length hex", part: "2abc"},
		{name: "non-hex character", part: "2abzz"},
		{name: "whitespace", part: "2ab "},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Decode(tc.part); !errors.Is(err, ErrMalformedPart) {
				t.Errorf("Decode(%q) err = %v, want %v", tc.part, err, ErrMalformedPart)
			}
		})
	}
}

func TestDecodeAllReportsPosition(t *testing.T) {
	_, err := DecodeAll([]string{"0ab", "1cd", "2x"})
	if !errors.Is(err, ErrMalformedPart) {
		t.Fatalf("DecodeAll() err = %v, want %v", err, ErrMalformedPart)
	}
	if want := "part 3"; !regexp.MustCompile(want).MatchString(err.Error()) {
		t.Errorf("DecodeAll() err = %q, want it to mention %q", err, want)
	}
}

func TestEncodeAllDecodeAll(t *testing.T) {
	shares := []secrets.Share{
		{X: 1, Value: []byte{0x00, 0x01}},
		{X: 2, Value: []byte{0xfe, 0xff}},
		{X: 10, Value: []byte{0x10, 0x20}},
	}
	encoded, err := EncodeAll(shares)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"00001", "1feff", "91020"}, encoded); diff != "" {
		t.Errorf("EncodeAll() mismatch (-want +got):\n%s", diff)
	}
	decoded, err := DecodeAll(encoded)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(shares, decoded); diff != "" {
		t.Errorf("DecodeAll(EncodeAll()) mismatch (-want +got):\n%s", diff)
	}
}
