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

// Package cloudkms contains utilities for communicating with CloudKMS.
package cloudkms

import (
	"context"
	"fmt"
	"hash/crc32"
	"strings"
	"time"

	"cloud.google.com/go/compute/metadata"
	credentials "cloud.google.com/go/iam/credentials/apiv1"
	"cloud.google.com/go/iam/credentials/apiv1/credentialspb"
	kms "cloud.google.com/go/kms/apiv1"
	"cloud.google.com/go/kms/apiv1/kmspb"
	"github.com/googleapis/gax-go/v2"
	"golang.org/x/oauth2"
	"google.golang.org/api/option"
	"google.golang.org/protobuf/types/known/durationpb"
	wrapperspb "google.golang.org/protobuf/types/known/wrapperspb"
)

const serviceAccountPrefix = "projects/-/serviceAccounts/"

// Client defines an interface compatible with Cloud KMS client.
type Client interface {
	GetCryptoKey(context.Context, *kmspb.GetCryptoKeyRequest, ...gax.CallOption) (*kmspb.CryptoKey, error)
	GenerateRandomBytes(context.Context, *kmspb.GenerateRandomBytesRequest, ...gax.CallOption) (*kmspb.GenerateRandomBytesResponse, error)
	Encrypt(context.Context, *kmspb.EncryptRequest, ...gax.CallOption) (*kmspb.EncryptResponse, error)
	Decrypt(context.Context, *kmspb.DecryptRequest, ...gax.CallOption) (*kmspb.DecryptResponse, error)
	Close() error
}

// TokenGenerator defines the subset of the IAM Credentials client used to impersonate
// a service account.
type TokenGenerator interface {
	GenerateAccessToken(context.Context, *credentialspb.GenerateAccessTokenRequest, ...gax.CallOption) (*credentialspb.GenerateAccessTokenResponse, error)
	Close() error
}

func crc32c(data []byte) uint32 {
	t := crc32.MakeTable(crc32.Castagnoli)
	return crc32.Checksum(data, t)
}

// Overridden in tests.
var (
	onGCE     = metadata.OnGCE
	projectID = metadata.ProjectID
)

// ResolveLocation returns the full resource name of a Cloud KMS location. A bare location
// such as "us-east1" is qualified with the project of the GCE VM this runs on.
func ResolveLocation(location string) (string, error) {
	if !strings.Contains(location, "/") {
		if location == "" {
			return "", fmt.Errorf("no Cloud KMS location specified")
		}
		if !onGCE() {
			return "", fmt.Errorf("location %q has no project and not running on GCE, use projects/<project>/locations/%v", location, location)
		}
		project, err := projectID()
		if err != nil {
			return "", fmt.Errorf("failed to get project ID from the metadata server: %v", err)
		}
		return fmt.Sprintf("projects/%v/locations/%v", project, location), nil
	}

	parts := strings.Split(location, "/")
	if len(parts) != 4 || parts[0] != "projects" || parts[1] == "" || parts[2] != "locations" || parts[3] == "" {
		return "", fmt.Errorf("malformed Cloud KMS location %q, want projects/<project>/locations/<location>", location)
	}
	return location, nil
}

// ParseProtectionLevel converts a protection level name such as "hsm" to its enum value.
func ParseProtectionLevel(name string) (kmspb.ProtectionLevel, error) {
	v, ok := kmspb.ProtectionLevel_value[strings.ToUpper(name)]
	if !ok || v == int32(kmspb.ProtectionLevel_PROTECTION_LEVEL_UNSPECIFIED) {
		return kmspb.ProtectionLevel_PROTECTION_LEVEL_UNSPECIFIED, fmt.Errorf("unknown protection level %q", name)
	}
	return kmspb.ProtectionLevel(v), nil
}

// GenerateOpts configures GenerateKey.
type GenerateOpts struct {
	Location        string
	LengthBytes     int32
	ProtectionLevel kmspb.ProtectionLevel
	RPCOpts         []gax.CallOption
}

// GenerateKey returns random bytes generated by Cloud KMS, to be used as key material.
func GenerateKey(ctx context.Context, client Client, opts GenerateOpts) ([]byte, error) {
	if client == nil {
		return nil, fmt.Errorf("nil client specified")
	}
	req := &kmspb.GenerateRandomBytesRequest{
		Location:        opts.Location,
		LengthBytes:     opts.LengthBytes,
		ProtectionLevel: opts.ProtectionLevel,
	}

	result, err := client.GenerateRandomBytes(ctx, req, opts.RPCOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to generate random bytes: %v", err)
	}

	if result.GetDataCrc32C() == nil || int64(crc32c(result.GetData())) != result.GetDataCrc32C().GetValue() {
		return nil, fmt.Errorf("GenerateRandomBytes: response corrupted in-transit")
	}
	if got := len(result.GetData()); got != int(opts.LengthBytes) {
		return nil, fmt.Errorf("GenerateRandomBytes: got %v bytes, want %v", got, opts.LengthBytes)
	}
	return result.GetData(), nil
}

// CheckBackupKey verifies that the named CryptoKey can encrypt backups.
func CheckBackupKey(ctx context.Context, client Client, keyName string) error {
	ck, err := client.GetCryptoKey(ctx, &kmspb.GetCryptoKeyRequest{Name: keyName})
	if err != nil {
		return fmt.Errorf("failed to get backup key %v: %v", keyName, err)
	}
	if ck.GetPurpose() != kmspb.CryptoKey_ENCRYPT_DECRYPT {
		return fmt.Errorf("backup key %v has purpose %v, want %v", keyName, ck.GetPurpose(), kmspb.CryptoKey_ENCRYPT_DECRYPT)
	}
	if state := ck.GetPrimary().GetState(); state != kmspb.CryptoKeyVersion_ENABLED {
		return fmt.Errorf("primary version of backup key %v is %v, want %v", keyName, state, kmspb.CryptoKeyVersion_ENABLED)
	}
	return nil
}

// WrapOpts configures WrapBackup.
type WrapOpts struct {
	Plaintext []byte
	KeyName   string
	RPCOpts   []gax.CallOption
}

// WrapBackup uses a KMS client to encrypt key material under a Cloud KMS key.
// It returns the resource name of the key version used and the ciphertext.
func WrapBackup(ctx context.Context, client Client, opts WrapOpts) (string, []byte, error) {
	if client == nil {
		return "", nil, fmt.Errorf("nil client specified")
	}
	req := &kmspb.EncryptRequest{
		Name:            opts.KeyName,
		Plaintext:       opts.Plaintext,
		PlaintextCrc32C: wrapperspb.Int64(int64(crc32c(opts.Plaintext))),
	}

	result, err := client.Encrypt(ctx, req, opts.RPCOpts...)
	if err != nil {
		return "", nil, fmt.Errorf("failed to encrypt: %v", err)
	}

	if !result.VerifiedPlaintextCrc32C {
		return "", nil, fmt.Errorf("Encrypt: request corrupted in-transit")
	}
	if result.GetCiphertextCrc32C() == nil || int64(crc32c(result.Ciphertext)) != result.CiphertextCrc32C.Value {
		return "", nil, fmt.Errorf("Encrypt: response corrupted in-transit")
	}
	return result.GetName(), result.Ciphertext, nil
}

// UnwrapOpts configures UnwrapBackup.
type UnwrapOpts struct {
	Ciphertext []byte
	KeyName    string
}

// UnwrapBackup uses a KMS client to decrypt a backup made by WrapBackup.
func UnwrapBackup(ctx context.Context, client Client, opts UnwrapOpts) ([]byte, error) {
	if client == nil {
		return nil, fmt.Errorf("nil client specified")
	}
	req := &kmspb.DecryptRequest{
		Name:             opts.KeyName,
		Ciphertext:       opts.Ciphertext,
		CiphertextCrc32C: wrapperspb.Int64(int64(crc32c(opts.Ciphertext))),
	}

	result, err := client.Decrypt(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt ciphertext: %v", err)
	}

	if result.GetPlaintextCrc32C() == nil || int64(crc32c(result.Plaintext)) != result.PlaintextCrc32C.Value {
		return nil, fmt.Errorf("Decrypt: response corrupted in-transit")
	}
	return result.Plaintext, nil
}

// ImpersonatedToken mints a short-lived access token for serviceAccount.
func ImpersonatedToken(ctx context.Context, gen TokenGenerator, serviceAccount string, lifetime time.Duration) (*oauth2.Token, error) {
	resp, err := gen.GenerateAccessToken(ctx, &credentialspb.GenerateAccessTokenRequest{
		Name:     serviceAccountPrefix + serviceAccount,
		Scope:    kms.DefaultAuthScopes(),
		Lifetime: durationpb.New(lifetime),
	})
	if err != nil {
		return nil, fmt.Errorf("error generating access token for %v: %v", serviceAccount, err)
	}
	return &oauth2.Token{
		AccessToken: resp.GetAccessToken(),
		TokenType:   "Bearer",
		Expiry:      resp.GetExpireTime().AsTime(),
	}, nil
}

// ClientOptions selects the identity a KMS client authenticates as.
type ClientOptions struct {
	// CredentialsJSON holds service account or user credentials. Empty means application
	// default credentials.
	CredentialsJSON string
	// ImpersonateServiceAccount, if set, is the email of a service account whose
	// short-lived token is used for every KMS call.
	ImpersonateServiceAccount string
}

func (o ClientOptions) cacheKey() string {
	return o.CredentialsJSON + "\x00" + o.ImpersonateServiceAccount
}

// ClientFactory manages singleton instances of KMS Clients mapped to credentials.
type ClientFactory struct {
	CredsMap map[string]Client
	Version  string

	newKMSClient func(context.Context, ...option.ClientOption) (*kms.KeyManagementClient, error)
	newIAMClient func(context.Context, ...option.ClientOption) (TokenGenerator, error)
}

func newIAMCredentialsClient(ctx context.Context, opts ...option.ClientOption) (TokenGenerator, error) {
	return credentials.NewIamCredentialsClient(ctx, opts...)
}

// NewClientFactory initializes a ClientMap with the provided version.
func NewClientFactory(version string) *ClientFactory {
	return &ClientFactory{
		CredsMap:     make(map[string]Client),
		Version:      version,
		newKMSClient: kms.NewKeyManagementClient,
		newIAMClient: newIAMCredentialsClient,
	}
}

func (m *ClientFactory) clientOptions(ctx context.Context, co ClientOptions) ([]option.ClientOption, error) {
	// Set user agent for Cloud KMS API calls.
	ua := "cokw/"
	if m.Version != "" {
		ua += m.Version
	} else {
		ua += "dev"
	}

	opts := []option.ClientOption{option.WithUserAgent(ua)}

	var credOpts []option.ClientOption
	// If credentials were specified, include them in the options.
	if len(co.CredentialsJSON) != 0 {
		credOpts = append(credOpts, option.WithCredentialsJSON([]byte(co.CredentialsJSON)))
	}
	if co.ImpersonateServiceAccount == "" {
		return append(opts, credOpts...), nil
	}

	gen, err := m.newIAMClient(ctx, credOpts...)
	if err != nil {
		return nil, fmt.Errorf("could not create a new IAM credentials client: %v", err)
	}
	defer gen.Close()

	tok, err := ImpersonatedToken(ctx, gen, co.ImpersonateServiceAccount, time.Hour)
	if err != nil {
		return nil, err
	}
	return append(opts, option.WithTokenSource(oauth2.StaticTokenSource(tok))), nil
}

func (m *ClientFactory) createClient(ctx context.Context, co ClientOptions) (Client, error) {
	opts, err := m.clientOptions(ctx, co)
	if err != nil {
		return nil, err
	}
	return m.newKMSClient(ctx, opts...)
}

// Client returns a KMS Client initialized with the provided options. If a client
// with these options already exists, it returns that.
func (m *ClientFactory) Client(ctx context.Context, co ClientOptions) (Client, error) {
	if m.CredsMap == nil {
		m.CredsMap = make(map[string]Client)
	}
	client, ok := m.CredsMap[co.cacheKey()]

	if !ok {
		var err error
		client, err = m.createClient(ctx, co)
		if err != nil {
			return nil, fmt.Errorf("error creating new KMS client: %v", err)
		}

		m.CredsMap[co.cacheKey()] = client
	}

	return client, nil
}

// Close iterates through all the clients in the map and closes them.
func (m *ClientFactory) Close() error {
	for _, client := range m.CredsMap {
		if err := client.Close(); err != nil {
			return err
		}
	}
	return nil
}
