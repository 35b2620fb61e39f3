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

// Package testutil contains utilities for unit tests.
package testutil

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"hash/crc32"
	"math/big"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/iam/credentials/apiv1/credentialspb"
	kms "cloud.google.com/go/kms/apiv1"
	"cloud.google.com/go/kms/apiv1/kmspb"
	"github.com/aws/aws-sdk-go-v2/aws"
	awskms "github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/timestamppb"
	wrapperspb "google.golang.org/protobuf/types/known/wrapperspb"
)

var (
	// TestLocation is a test Cloud KMS location.
	TestLocation = "projects/test/locations/test"

	// TestBackupKeyName is a test key name for the key that encrypts backups.
	TestBackupKeyName = TestLocation + "/keyRings/test/cryptoKeys/backup"
	// TestBackupKeyVersionName is the primary version of TestBackupKeyName.
	TestBackupKeyVersionName = TestBackupKeyName + "/cryptoKeyVersions/1"

	// TestAWSAlias is a test AWS CMK alias.
	TestAWSAlias = "cokw-test"
	// TestAWSKeyARN is the ARN of the CMK behind TestAWSAlias.
	TestAWSKeyARN = "arn:aws:kms:us-east-1:111122223333:key/1234abcd-12ab-34cd-56ef-1234567890ab"

	// TestServiceAccount is a test service account email.
	TestServiceAccount = "wrapper@test.iam.gserviceaccount.com"
	// TestAccessToken is the token FakeTokenGenerator returns.
	TestAccessToken = "ya29.test-token"
)

func crc32c(data []byte) uint32 {
	t := crc32.MakeTable(crc32.Castagnoli)
	return crc32.Checksum(data, t)
}

// FakeRandomBytes returns n deterministic bytes standing in for KMS randomness.
func FakeRandomBytes(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(0xA0 + i)
	}
	return b
}

// CreateEnabledCryptoKey creates a fake ENCRYPT_DECRYPT CryptoKey with the given protection level.
func CreateEnabledCryptoKey(protectionLevel kmspb.ProtectionLevel) *kmspb.CryptoKey {
	return &kmspb.CryptoKey{
		Name:    TestBackupKeyName,
		Purpose: kmspb.CryptoKey_ENCRYPT_DECRYPT,
		Primary: &kmspb.CryptoKeyVersion{
			Name:            TestBackupKeyVersionName,
			State:           kmspb.CryptoKeyVersion_ENABLED,
			ProtectionLevel: protectionLevel,
		},
	}
}

// FakeKeyManagementClient is a fake version of Cloud KMS Key Management client.
type FakeKeyManagementClient struct {
	kms.KeyManagementClient

	GetCryptoKeyFunc        func(context.Context, *kmspb.GetCryptoKeyRequest, ...gax.CallOption) (*kmspb.CryptoKey, error)
	GenerateRandomBytesFunc func(context.Context, *kmspb.GenerateRandomBytesRequest, ...gax.CallOption) (*kmspb.GenerateRandomBytesResponse, error)
	EncryptFunc             func(context.Context, *kmspb.EncryptRequest, ...gax.CallOption) (*kmspb.EncryptResponse, error)
	DecryptFunc             func(context.Context, *kmspb.DecryptRequest, ...gax.CallOption) (*kmspb.DecryptResponse, error)

	Closed bool
}

// GetCryptoKey calls GetCryptoKeyFunc if applicable. Otherwise returns an enabled HSM key
// for TestBackupKeyName and NotFound for anything else.
func (f *FakeKeyManagementClient) GetCryptoKey(ctx context.Context, req *kmspb.GetCryptoKeyRequest, opts ...gax.CallOption) (*kmspb.CryptoKey, error) {
	if f.GetCryptoKeyFunc != nil {
		return f.GetCryptoKeyFunc(ctx, req, opts...)
	}
	if req.GetName() != TestBackupKeyName {
		return nil, status.Errorf(codes.NotFound, "CryptoKey %v not found", req.GetName())
	}

	return CreateEnabledCryptoKey(kmspb.ProtectionLevel_HSM), nil
}

// ValidGenerateRandomBytesResponse returns a fake successful response for CloudKMS GenerateRandomBytes.
func ValidGenerateRandomBytesResponse(req *kmspb.GenerateRandomBytesRequest) *kmspb.GenerateRandomBytesResponse {
	data := FakeRandomBytes(int(req.GetLengthBytes()))
	return &kmspb.GenerateRandomBytesResponse{
		Data:       data,
		DataCrc32C: wrapperspb.Int64(int64(crc32c(data))),
	}
}

// GenerateRandomBytes calls GenerateRandomBytesFunc if applicable. Otherwise returns a fake response.
func (f *FakeKeyManagementClient) GenerateRandomBytes(ctx context.Context, req *kmspb.GenerateRandomBytesRequest, opts ...gax.CallOption) (*kmspb.GenerateRandomBytesResponse, error) {
	if f.GenerateRandomBytesFunc != nil {
		return f.GenerateRandomBytesFunc(ctx, req, opts...)
	}

	return ValidGenerateRandomBytesResponse(req), nil
}

// FakeKMSWrap returns a fake ciphertext.
func FakeKMSWrap(unwrapped []byte, name string) []byte {
	wrapped := bytes.Clone(unwrapped)
	switch name {
	case TestBackupKeyName:
		return append(wrapped, byte('B'))
	default:
		return append(wrapped, byte('U'))
	}
}

// ValidEncryptResponse returns a fake successful response for CloudKMS Encrypt.
func ValidEncryptResponse(req *kmspb.EncryptRequest) *kmspb.EncryptResponse {
	wrapped := FakeKMSWrap(req.GetPlaintext(), req.GetName())

	return &kmspb.EncryptResponse{
		Name:                    req.GetName() + "/cryptoKeyVersions/1",
		Ciphertext:              wrapped,
		CiphertextCrc32C:        wrapperspb.Int64(int64(crc32c(wrapped))),
		VerifiedPlaintextCrc32C: true,
	}
}

// Encrypt calls EncryptFunc if applicable. Otherwise returns a fake Encrypt response.
func (f *FakeKeyManagementClient) Encrypt(ctx context.Context, req *kmspb.EncryptRequest, opts ...gax.CallOption) (*kmspb.EncryptResponse, error) {
	if f.EncryptFunc != nil {
		return f.EncryptFunc(ctx, req, opts...)
	}

	return ValidEncryptResponse(req), nil
}

// FakeKMSUnwrap returns a fake plaintext.
func FakeKMSUnwrap(wrapped []byte, name string) []byte {
	var final byte
	switch name {
	case TestBackupKeyName:
		final = 'B'
	default:
		final = 'U'
	}

	if len(wrapped) == 0 || wrapped[len(wrapped)-1] != final {
		return []byte("nonsenseee")
	}
	return wrapped[:len(wrapped)-1]
}

// ValidDecryptResponse returns a fake successful response for CloudKMS Decrypt.
func ValidDecryptResponse(req *kmspb.DecryptRequest) *kmspb.DecryptResponse {
	unwrapped := FakeKMSUnwrap(req.GetCiphertext(), req.GetName())

	return &kmspb.DecryptResponse{
		Plaintext:       unwrapped,
		PlaintextCrc32C: wrapperspb.Int64(int64(crc32c(unwrapped))),
	}
}

// Decrypt calls DecryptFunc if applicable. Otherwise returns a fake Decrypt response.
func (f *FakeKeyManagementClient) Decrypt(ctx context.Context, req *kmspb.DecryptRequest, opts ...gax.CallOption) (*kmspb.DecryptResponse, error) {
	if f.DecryptFunc != nil {
		return f.DecryptFunc(ctx, req, opts...)
	}

	return ValidDecryptResponse(req), nil
}

// Close records that the client was closed. Needed to implement the KMS Client interface.
func (f *FakeKeyManagementClient) Close() error {
	f.Closed = true
	return nil
}

// FakeTokenGenerator is a fake version of the IAM Credentials client.
type FakeTokenGenerator struct {
	GenerateAccessTokenFunc func(context.Context, *credentialspb.GenerateAccessTokenRequest, ...gax.CallOption) (*credentialspb.GenerateAccessTokenResponse, error)

	Requests []*credentialspb.GenerateAccessTokenRequest
	Closed   bool
}

// GenerateAccessToken calls GenerateAccessTokenFunc if applicable. Otherwise returns
// TestAccessToken, valid for the requested lifetime.
func (f *FakeTokenGenerator) GenerateAccessToken(ctx context.Context, req *credentialspb.GenerateAccessTokenRequest, opts ...gax.CallOption) (*credentialspb.GenerateAccessTokenResponse, error) {
	f.Requests = append(f.Requests, req)
	if f.GenerateAccessTokenFunc != nil {
		return f.GenerateAccessTokenFunc(ctx, req, opts...)
	}

	return &credentialspb.GenerateAccessTokenResponse{
		AccessToken: TestAccessToken,
		ExpireTime:  timestamppb.New(time.Now().Add(req.GetLifetime().AsDuration())),
	}, nil
}

// Close records that the client was closed.
func (f *FakeTokenGenerator) Close() error {
	f.Closed = true
	return nil
}

// FakeAWSKMSClient is a fake version of the AWS KMS client.
type FakeAWSKMSClient struct {
	GenerateDataKeyFunc func(context.Context, *awskms.GenerateDataKeyInput, ...func(*awskms.Options)) (*awskms.GenerateDataKeyOutput, error)
	DecryptFunc         func(context.Context, *awskms.DecryptInput, ...func(*awskms.Options)) (*awskms.DecryptOutput, error)
}

// FakeAWSWrap returns a fake ciphertext blob for an AWS data key.
func FakeAWSWrap(plaintext []byte) []byte {
	return append([]byte("aws-wrapped:"), plaintext...)
}

// GenerateDataKey calls GenerateDataKeyFunc if applicable. Otherwise returns a fixed data key
// under TestAWSKeyARN.
func (f *FakeAWSKMSClient) GenerateDataKey(ctx context.Context, in *awskms.GenerateDataKeyInput, opts ...func(*awskms.Options)) (*awskms.GenerateDataKeyOutput, error) {
	if f.GenerateDataKeyFunc != nil {
		return f.GenerateDataKeyFunc(ctx, in, opts...)
	}

	plaintext := FakeRandomBytes(32)
	return &awskms.GenerateDataKeyOutput{
		KeyId:          aws.String(TestAWSKeyARN),
		Plaintext:      plaintext,
		CiphertextBlob: FakeAWSWrap(plaintext),
	}, nil
}

// Decrypt calls DecryptFunc if applicable. Otherwise reverses FakeAWSWrap.
func (f *FakeAWSKMSClient) Decrypt(ctx context.Context, in *awskms.DecryptInput, opts ...func(*awskms.Options)) (*awskms.DecryptOutput, error) {
	if f.DecryptFunc != nil {
		return f.DecryptFunc(ctx, in, opts...)
	}

	plaintext, ok := bytes.CutPrefix(in.CiphertextBlob, []byte("aws-wrapped:"))
	if !ok {
		return nil, &awsError{msg: "InvalidCiphertextException"}
	}
	return &awskms.DecryptOutput{KeyId: aws.String(TestAWSKeyARN), Plaintext: plaintext}, nil
}

type awsError struct{ msg string }

func (e *awsError) Error() string { return e.msg }

var (
	rsaKeyOnce sync.Once
	rsaKey     *rsa.PrivateKey
	rsaKeyErr  error
)

// RSAKey returns a 2048-bit RSA key shared by all tests in the binary.
func RSAKey(t testing.TB) *rsa.PrivateKey {
	t.Helper()
	rsaKeyOnce.Do(func() {
		rsaKey, rsaKeyErr = rsa.GenerateKey(rand.Reader, 2048)
	})
	if rsaKeyErr != nil {
		t.Fatalf("rsa.GenerateKey() failed: %v", rsaKeyErr)
	}
	return rsaKey
}

// CertificatePEM returns a self-signed PEM certificate for key.
func CertificatePEM(t testing.TB, key *rsa.PrivateKey) []byte {
	t.Helper()
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "cache-only key recipient"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageKeyEncipherment,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("x509.CreateCertificate() failed: %v", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
}

// PKCS1PEM returns key as a PEM "RSA PRIVATE KEY" block.
func PKCS1PEM(key *rsa.PrivateKey) []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
}

// PKCS8PEM returns key as a PEM "PRIVATE KEY" block.
func PKCS8PEM(t testing.TB, key *rsa.PrivateKey) []byte {
	t.Helper()
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatalf("x509.MarshalPKCS8PrivateKey() failed: %v", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})
}
