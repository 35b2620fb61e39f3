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

// Package envelope wraps a raw key for a single RSA recipient as a JWE.
//
// The serialized envelope is a JSON object holding the key identifier and the
// compact JWE: {"kid":"...","jwe":"..."}. The JWE uses RSA-OAEP key management,
// A256GCM content encryption, and repeats the kid in its protected header.
package envelope

import (
	"bytes"
	"crypto"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-jose/go-jose/v4"
	"github.com/google/uuid"
)

const (
	// KeyAlgorithm is the JWE "alg" header of every envelope.
	KeyAlgorithm = jose.RSA_OAEP
	// ContentEncryption is the JWE "enc" header of every envelope.
	ContentEncryption = jose.A256GCM

	minRSABits = 2048
)

// ErrWrap is returned when a key cannot be wrapped or unwrapped.
var ErrWrap = errors.New("key wrap failed")

// Envelope is a wrapped key addressed to one recipient.
type Envelope struct {
	KID string `json:"kid"`
	JWE string `json:"jwe"`
}

// Build encrypts rawKey to recipient. An empty kid is replaced with a random UUID.
func Build(kid string, rawKey []byte, recipient crypto.PublicKey) (*Envelope, error) {
	pub, ok := recipient.(*rsa.PublicKey)
	if !ok || pub == nil {
		return nil, fmt.Errorf("%w: unsupported recipient key type %T, want *rsa.PublicKey", ErrWrap, recipient)
	}
	if bits := pub.N.BitLen(); bits < minRSABits {
		return nil, fmt.Errorf("%w: recipient key has %d bits, want at least %d", ErrWrap, bits, minRSABits)
	}
	if len(rawKey) == 0 {
		return nil, fmt.Errorf("%w: empty key", ErrWrap)
	}
	if kid == "" {
		kid = uuid.NewString()
	}

	encrypter, err := jose.NewEncrypter(ContentEncryption, jose.Recipient{
		Algorithm: KeyAlgorithm,
		Key:       pub,
		KeyID:     kid,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create encrypter: %v", ErrWrap, err)
	}
	obj, err := encrypter.Encrypt(rawKey)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to encrypt key: %v", ErrWrap, err)
	}
	compact, err := obj.CompactSerialize()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to serialize JWE: %v", ErrWrap, err)
	}
	return &Envelope{KID: kid, JWE: compact}, nil
}

// Marshal returns the JSON form of the envelope with no HTML escaping and no trailing newline.
func (e *Envelope) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(e); err != nil {
		return nil, fmt.Errorf("failed to marshal envelope: %v", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// Parse reads an envelope produced by Marshal.
func Parse(data []byte) (*Envelope, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	e := &Envelope{}
	if err := dec.Decode(e); err != nil {
		return nil, fmt.Errorf("failed to parse envelope: %v", err)
	}
	if e.KID == "" || e.JWE == "" {
		return nil, errors.New("failed to parse envelope: kid and jwe are both required")
	}
	return e, nil
}

// Open decrypts the envelope with the recipient's private key and returns the raw key.
// The JWE must use the envelope algorithms and carry the envelope's kid.
func (e *Envelope) Open(priv *rsa.PrivateKey) ([]byte, error) {
	if priv == nil {
		return nil, fmt.Errorf("%w: nil private key", ErrWrap)
	}
	obj, err := jose.ParseEncrypted(e.JWE, []jose.KeyAlgorithm{KeyAlgorithm}, []jose.ContentEncryption{ContentEncryption})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse JWE: %v", ErrWrap, err)
	}
	if obj.Header.KeyID != e.KID {
		return nil, fmt.Errorf("%w: JWE kid %q does not match envelope kid %q", ErrWrap, obj.Header.KeyID, e.KID)
	}
	rawKey, err := obj.Decrypt(priv)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decrypt key: %v", ErrWrap, err)
	}
	return rawKey, nil
}
