// Copyright 2021 Google LLC
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

// Package shares contains functions for processing DEK shares.
package shares

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/forcedotcom/CacheOnlyKeyWrapper/client/internal/secret_sharing/secrets"
	"github.com/forcedotcom/CacheOnlyKeyWrapper/client/internal/secret_sharing/shamir"
	"github.com/forcedotcom/CacheOnlyKeyWrapper/client/parts"
	"github.com/google/tink/go/subtle/random"
)

// DEKBytes is the size of the DEK in bytes.
const DEKBytes uint32 = 32

// ErrKeyLength is returned when key material is not exactly DEKBytes long.
var ErrKeyLength = errors.New("invalid key length")

// DEK represents a byte array that serves as a Data Encryption Key.
type DEK [DEKBytes]byte

// NewDEK randomly generates and returns a DEK.
func NewDEK() DEK {
	var dek DEK
	copy(dek[:DEKBytes], random.GetRandomBytes(DEKBytes))

	return dek
}

// ParseHexDEK decodes a caller-supplied hex key. Surrounding whitespace is ignored.
func ParseHexDEK(s string) (DEK, error) {
	var dek DEK
	s = strings.TrimSpace(s)
	if len(s) != hex.EncodedLen(int(DEKBytes)) {
		return dek, fmt.Errorf("%w: hex key has %d characters, expected %d", ErrKeyLength, len(s), hex.EncodedLen(int(DEKBytes)))
	}
	if _, err := hex.Decode(dek[:], []byte(s)); err != nil {
		dek.Wipe()
		// The decoder error quotes the offending character, which is key material.
		return dek, errors.New("hex key contains a non-hex character")
	}
	return dek, nil
}

// DEKFromBytes copies key material returned by a key source into a DEK.
func DEKFromBytes(b []byte) (DEK, error) {
	var dek DEK
	if len(b) != int(DEKBytes) {
		return dek, fmt.Errorf("%w: key has length %v, expected %v", ErrKeyLength, len(b), DEKBytes)
	}
	copy(dek[:], b)
	return dek, nil
}

// Wipe zeroes the key.
func (d *DEK) Wipe() {
	clear(d[:])
}

// Hex returns the lowercase hex encoding of the key.
func (d *DEK) Hex() string {
	return hex.EncodeToString(d[:])
}

// Scheme is an (N, K) threshold configuration.
type Scheme = secrets.Scheme

// NewScheme returns a scheme producing numShares parts, any threshold of which recover the key.
func NewScheme(numShares, threshold int) (Scheme, error) {
	return secrets.NewScheme(numShares, threshold)
}

// SplitKey splits key into scheme.N() printable parts. A nil rng uses crypto/rand.
func SplitKey(key []byte, scheme Scheme, rng io.Reader) ([]string, error) {
	if len(key) == 0 {
		return nil, fmt.Errorf("%w: cannot split an empty key", ErrKeyLength)
	}
	split, err := shamir.Split(scheme, key, rng)
	if err != nil {
		return nil, fmt.Errorf("error splitting secret: %w", err)
	}
	defer func() {
		for _, s := range split {
			clear(s.Value)
		}
	}()
	return parts.EncodeAll(split)
}

// CombineParts decodes printable parts and reconstitutes the original data. Note that this does
// not guarantee the parts are correct (SSS will succeed at "reconstructing" data from
// even faulty shares).
func CombineParts(encoded []string, scheme Scheme) ([]byte, error) {
	shares, err := parts.DecodeAll(encoded)
	if err != nil {
		return nil, err
	}
	defer func() {
		for _, s := range shares {
			clear(s.Value)
		}
	}()
	secret, err := shamir.Combine(scheme, shares)
	if err != nil {
		return nil, fmt.Errorf("error combining shares: %w", err)
	}
	return secret, nil
}
