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

// Package parts converts secret shares to and from their printable transport form.
//
// A part is the zero-based share index as a single decimal digit, followed by the
// lowercase hex encoding of the share value, with no separators:
//
//	share {X: 3, Value: [0xAB]}  <->  "2ab"
package parts

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/forcedotcom/CacheOnlyKeyWrapper/client/internal/secret_sharing/secrets"
)

// ErrMalformedPart is returned for a part string, or a share, that has no valid transport form.
var ErrMalformedPart = errors.New("malformed part")

// Encode returns the transport form of share. The share index must fit in one digit.
// A share with an empty Value is rejected with ErrMalformedPart, since its part would be
// a lone digit that Decode cannot tell apart from a truncated part.
func Encode(share secrets.Share) (string, error) {
	if share.X < 1 || share.X > secrets.MaxShares {
		return "", fmt.Errorf("%w: share index %d is not between 1 and %d", ErrMalformedPart, share.X, secrets.MaxShares)
	}
	if len(share.Value) == 0 {
		return "", fmt.Errorf("%w: share %d has an empty value", ErrMalformedPart, share.X)
	}
	buf := make([]byte, 1+hex.EncodedLen(len(share.Value)))
	buf[0] = byte('0' + share.X - 1)
	hex.Encode(buf[1:], share.Value)
	return string(buf), nil
}

// Decode parses a part produced by Encode. The index is not checked against any scheme;
// that happens when the shares are combined.
func Decode(part string) (secrets.Share, error) {
	if len(part) < 2 {
		return secrets.Share{}, fmt.Errorf("%w: part has length %d, want at least 2", ErrMalformedPart, len(part))
	}
	if part[0] < '0' || part[0] > '9' {
		return secrets.Share{}, fmt.Errorf("%w: part does not start with an index digit", ErrMalformedPart)
	}
	value, err := hex.DecodeString(part[1:])
	if err != nil {
		// Don't echo hex.DecodeString's error, it quotes the offending share bytes.
		return secrets.Share{}, fmt.Errorf("%w: share value is not an even-length hex string", ErrMalformedPart)
	}
	return secrets.Share{X: int(part[0]-'0') + 1, Value: value}, nil
}

// DecodeAll decodes every part, reporting the position of the first malformed one.
func DecodeAll(parts []string) ([]secrets.Share, error) {
	shares := make([]secrets.Share, 0, len(parts))
	for i, p := range parts {
		s, err := Decode(p)
		if err != nil {
			return nil, fmt.Errorf("part %d: %w", i+1, err)
		}
		shares = append(shares, s)
	}
	return shares, nil
}

// EncodeAll encodes every share in order.
func EncodeAll(shares []secrets.Share) ([]string, error) {
	out := make([]string, 0, len(shares))
	for _, s := range shares {
		p, err := Encode(s)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}
