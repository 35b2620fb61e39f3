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

package client

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	mrand "math/rand"
	"testing"

	"cloud.google.com/go/kms/apiv1/kmspb"
	"github.com/forcedotcom/CacheOnlyKeyWrapper/client/awskms"
	"github.com/forcedotcom/CacheOnlyKeyWrapper/client/envelope"
	"github.com/forcedotcom/CacheOnlyKeyWrapper/client/internal/secret_sharing/secrets"
	"github.com/forcedotcom/CacheOnlyKeyWrapper/client/shares"
	"github.com/forcedotcom/CacheOnlyKeyWrapper/client/testutil"
	"github.com/google/go-cmp/cmp"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const testKeyHex = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func mustScheme(t *testing.T, n, k int) *shares.Scheme {
	t.Helper()
	s, err := shares.NewScheme(n, k)
	if err != nil {
		t.Fatalf("shares.NewScheme(%d, %d) err = %v", n, k, err)
	}
	return &s
}

func openEnvelope(t *testing.T, env *envelope.Envelope) []byte {
	t.Helper()
	key, err := env.Open(testutil.RSAKey(t))
	if err != nil {
		t.Fatalf("env.Open() err = %v", err)
	}
	return key
}

func TestWrapGeneratedKeyReturnsHex(t *testing.T) {
	priv := testutil.RSAKey(t)
	c := &KeyWrapper{}

	result, err := c.Wrap(WrapOptions{KID: "generated", Recipient: &priv.PublicKey, Generate: true})
	if err != nil {
		t.Fatalf("Wrap() err = %v", err)
	}
	if result.Envelope.KID != "generated" {
		t.Errorf("Wrap() kid = %q, want %q", result.Envelope.KID, "generated")
	}
	if len(result.Parts) != 0 {
		t.Errorf("Wrap() returned %d parts for an unsplit key", len(result.Parts))
	}
	if got := hex.EncodeToString(openEnvelope(t, result.Envelope)); got != result.KeyHex {
		t.Errorf("envelope holds %v, but Wrap() reported %v", got, result.KeyHex)
	}
}

func TestWrapGeneratedKeySplitsIntoParts(t *testing.T) {
	priv := testutil.RSAKey(t)
	c := &KeyWrapper{Rand: mrand.New(mrand.NewSource(42))}

	result, err := c.Wrap(WrapOptions{Recipient: &priv.PublicKey, Generate: true, Scheme: mustScheme(t, 3, 2)})
	if err != nil {
		t.Fatalf("Wrap() err = %v", err)
	}
	if result.KeyHex != "" {
		t.Errorf("Wrap() revealed the hex key of a split key")
	}
	if len(result.Parts) != 3 {
		t.Fatalf("Wrap() returned %d parts, want 3", len(result.Parts))
	}

	want := openEnvelope(t, result.Envelope)
	// The example recover command uses the third and first parts.
	got, err := Recover([]string{result.Parts[2], result.Parts[0]}, 3, 2)
	if err != nil {
		t.Fatalf("Recover() err = %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("Recover() = %x, want %x", got, want)
	}
}

func TestWrapCallerKey(t *testing.T) {
	priv := testutil.RSAKey(t)
	c := &KeyWrapper{}

	// Caller-supplied keys are never split.
	result, err := c.Wrap(WrapOptions{KID: "byok", Recipient: &priv.PublicKey, KeyHex: testKeyHex, Scheme: mustScheme(t, 3, 2)})
	if err != nil {
		t.Fatalf("Wrap() err = %v", err)
	}
	if len(result.Parts) != 0 || result.KeyHex != "" {
		t.Errorf("Wrap() = %+v, want no parts and no hex key", result)
	}
	if got := hex.EncodeToString(openEnvelope(t, result.Envelope)); got != testKeyHex {
		t.Errorf("envelope holds %v, want %v", got, testKeyHex)
	}
}

func TestWrapFails(t *testing.T) {
	priv := testutil.RSAKey(t)
	testCases := []struct {
		name    string
		opts    WrapOptions
		wantErr error
	}{
		{
			name:    "short key",
			opts:    WrapOptions{Recipient: &priv.PublicKey, KeyHex: testKeyHex[:62]},
			wantErr: shares.ErrKeyLength,
		},
		{
			name:    "empty caller key",
			opts:    WrapOptions{KID: "byok", Recipient: &priv.PublicKey, Scheme: mustScheme(t, 3, 2)},
			wantErr: shares.ErrKeyLength,
		},
		{
			name:    "blank caller key",
			opts:    WrapOptions{Recipient: &priv.PublicKey, KeyHex: " \n"},
			wantErr: shares.ErrKeyLength,
		},
		{
			name: "caller key and generate",
			opts: WrapOptions{Recipient: &priv.PublicKey, KeyHex: testKeyHex, Generate: true},
		},
		{
			name:    "no recipient",
			opts:    WrapOptions{Generate: true},
			wantErr: envelope.ErrWrap,
		},
		{
			name: "kid with path",
			opts: WrapOptions{KID: "../escape", Recipient: &priv.PublicKey, Generate: true},
		},
	}

	c := &KeyWrapper{}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := c.Wrap(tc.opts)
			if err == nil {
				t.Fatalf("Wrap() = nil error, want error")
			}
			if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
				t.Errorf("Wrap() err = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestWrapGCPKey(t *testing.T) {
	priv := testutil.RSAKey(t)
	c := &KeyWrapper{}
	var gotPL kmspb.ProtectionLevel
	c.setFakeGCPClient(&testutil.FakeKeyManagementClient{
		GenerateRandomBytesFunc: func(_ context.Context, req *kmspb.GenerateRandomBytesRequest, _ ...gax.CallOption) (*kmspb.GenerateRandomBytesResponse, error) {
			gotPL = req.GetProtectionLevel()
			return testutil.ValidGenerateRandomBytesResponse(req), nil
		},
	})

	result, err := c.WrapGCPKey(context.Background(), GCPOptions{
		KID:       "gcp",
		Recipient: &priv.PublicKey,
		Location:  testutil.TestLocation,
		BackupKey: testutil.TestBackupKeyName,
	})
	if err != nil {
		t.Fatalf("WrapGCPKey() err = %v", err)
	}
	if gotPL != kmspb.ProtectionLevel_HSM {
		t.Errorf("GenerateRandomBytes protection level = %v, want HSM by default", gotPL)
	}

	key := testutil.FakeRandomBytes(32)
	if got := openEnvelope(t, result.Envelope); !bytes.Equal(got, key) {
		t.Errorf("envelope holds %x, want %x", got, key)
	}
	wantBackup := &Backup{KeyID: testutil.TestBackupKeyVersionName, Ciphertext: testutil.FakeKMSWrap(key, testutil.TestBackupKeyName)}
	if diff := cmp.Diff(wantBackup, result.Backup); diff != "" {
		t.Errorf("WrapGCPKey() backup mismatch (-want +got):\n%s", diff)
	}
	if result.KeyHex != "" || len(result.Parts) != 0 {
		t.Errorf("WrapGCPKey() revealed key material")
	}

	restored, err := c.RestoreBackup(context.Background(), result.Backup, RestoreOptions{})
	if err != nil {
		t.Fatalf("RestoreBackup() err = %v", err)
	}
	if !bytes.Equal(restored, key) {
		t.Errorf("RestoreBackup() = %x, want %x", restored, key)
	}
}

func TestWrapGCPKeyWithoutBackup(t *testing.T) {
	priv := testutil.RSAKey(t)
	c := &KeyWrapper{}
	c.setFakeGCPClient(&testutil.FakeKeyManagementClient{})

	result, err := c.WrapGCPKey(context.Background(), GCPOptions{Recipient: &priv.PublicKey, Location: testutil.TestLocation})
	if err != nil {
		t.Fatalf("WrapGCPKey() err = %v", err)
	}
	if result.Backup != nil {
		t.Errorf("WrapGCPKey() backup = %v, want nil", result.Backup)
	}
}

func TestWrapGCPKeyChecksBackupKeyFirst(t *testing.T) {
	priv := testutil.RSAKey(t)
	c := &KeyWrapper{}
	c.setFakeGCPClient(&testutil.FakeKeyManagementClient{
		GetCryptoKeyFunc: func(context.Context, *kmspb.GetCryptoKeyRequest, ...gax.CallOption) (*kmspb.CryptoKey, error) {
			return nil, status.Error(codes.PermissionDenied, "cloudkms.cryptoKeys.get denied")
		},
		GenerateRandomBytesFunc: func(context.Context, *kmspb.GenerateRandomBytesRequest, ...gax.CallOption) (*kmspb.GenerateRandomBytesResponse, error) {
			t.Errorf("GenerateRandomBytes called although the backup key is unusable")
			return nil, status.Error(codes.Internal, "unexpected call")
		},
	})

	_, err := c.WrapGCPKey(context.Background(), GCPOptions{
		Recipient: &priv.PublicKey,
		Location:  testutil.TestLocation,
		BackupKey: testutil.TestBackupKeyName,
	})
	if err == nil {
		t.Errorf("WrapGCPKey() = nil error, want error")
	}
}

func TestWrapGCPKeyRejectsMalformedLocation(t *testing.T) {
	priv := testutil.RSAKey(t)
	c := &KeyWrapper{}
	c.setFakeGCPClient(&testutil.FakeKeyManagementClient{})
	if _, err := c.WrapGCPKey(context.Background(), GCPOptions{Recipient: &priv.PublicKey, Location: "projects/p"}); err == nil {
		t.Errorf("WrapGCPKey() = nil error, want error")
	}
}

func TestWrapAWSKey(t *testing.T) {
	priv := testutil.RSAKey(t)
	c := &KeyWrapper{}
	c.setFakeAWSClient(&testutil.FakeAWSKMSClient{})

	result, err := c.WrapAWSKey(context.Background(), AWSOptions{
		KID:       "aws",
		Recipient: &priv.PublicKey,
		Alias:     testutil.TestAWSAlias,
		Config:    awskms.Config{Region: "us-east-1"},
	})
	if err != nil {
		t.Fatalf("WrapAWSKey() err = %v", err)
	}

	key := testutil.FakeRandomBytes(32)
	if got := openEnvelope(t, result.Envelope); !bytes.Equal(got, key) {
		t.Errorf("envelope holds %x, want %x", got, key)
	}
	wantBackup := &Backup{KeyID: testutil.TestAWSKeyARN, Ciphertext: testutil.FakeAWSWrap(key)}
	if diff := cmp.Diff(wantBackup, result.Backup); diff != "" {
		t.Errorf("WrapAWSKey() backup mismatch (-want +got):\n%s", diff)
	}

	restored, err := c.RestoreBackup(context.Background(), result.Backup, RestoreOptions{})
	if err != nil {
		t.Fatalf("RestoreBackup() err = %v", err)
	}
	if !bytes.Equal(restored, key) {
		t.Errorf("RestoreBackup() = %x, want %x", restored, key)
	}
}

func TestRestoreBackupUnknownKMS(t *testing.T) {
	c := &KeyWrapper{}
	if _, err := c.RestoreBackup(context.Background(), &Backup{KeyID: "vault:key", Ciphertext: []byte{1}}, RestoreOptions{}); err == nil {
		t.Errorf("RestoreBackup() = nil error, want error")
	}
}

func TestRegionFromARN(t *testing.T) {
	if got, want := regionFromARN(testutil.TestAWSKeyARN), "us-east-1"; got != want {
		t.Errorf("regionFromARN(%q) = %q, want %q", testutil.TestAWSKeyARN, got, want)
	}
	if got := regionFromARN("arn"); got != "" {
		t.Errorf("regionFromARN(%q) = %q, want empty", "arn", got)
	}
}

func TestRecoverFails(t *testing.T) {
	if _, err := Recover([]string{"0ab", "1cd"}, 11, 2); !errors.Is(err, secrets.ErrInvalidScheme) {
		t.Errorf("Recover(N=11) err = %v, want %v", err, secrets.ErrInvalidScheme)
	}
	if _, err := Recover([]string{"0ab"}, 3, 2); err == nil {
		t.Errorf("Recover(one part) = nil error, want error")
	}
}
