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

// Package client is the client library for wrapping cache-only keys.
package client

import (
	"context"
	"crypto/rsa"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/kms/apiv1/kmspb"
	"github.com/forcedotcom/CacheOnlyKeyWrapper/client/awskms"
	"github.com/forcedotcom/CacheOnlyKeyWrapper/client/cloudkms"
	"github.com/forcedotcom/CacheOnlyKeyWrapper/client/envelope"
	"github.com/forcedotcom/CacheOnlyKeyWrapper/client/shares"
	glog "github.com/golang/glog"
)

const cryptoKeyVersionsCollection = "/cryptoKeyVersions/"

// KeyWrapper wraps keys for a recipient and splits them into parts.
type KeyWrapper struct {
	// Version is reported in the Cloud KMS user agent.
	Version string
	// Rand is the randomness used for splitting. If nil, crypto/rand is used.
	Rand io.Reader

	// Cloud KMS clients, created on first use.
	gcpFactory *cloudkms.ClientFactory

	// Fake clients for testing purposes.
	fakeGCPClient cloudkms.Client
	fakeAWSClient awskms.Client
}

// setFakeGCPClient allows a fake Cloud KMS client to be configured for testing purposes.
func (c *KeyWrapper) setFakeGCPClient(fakeClient cloudkms.Client) {
	c.fakeGCPClient = fakeClient
}

// setFakeAWSClient allows a fake AWS KMS client to be configured for testing purposes.
func (c *KeyWrapper) setFakeAWSClient(fakeClient awskms.Client) {
	c.fakeAWSClient = fakeClient
}

func (c *KeyWrapper) gcpClient(ctx context.Context, opts cloudkms.ClientOptions) (cloudkms.Client, error) {
	if c.fakeGCPClient != nil {
		return c.fakeGCPClient, nil
	}
	if c.gcpFactory == nil {
		c.gcpFactory = cloudkms.NewClientFactory(c.Version)
	}
	return c.gcpFactory.Client(ctx, opts)
}

func (c *KeyWrapper) awsClient(ctx context.Context, cfg awskms.Config) (awskms.Client, error) {
	if c.fakeAWSClient != nil {
		return c.fakeAWSClient, nil
	}
	return awskms.NewClient(ctx, cfg)
}

// Close releases any KMS clients created by the KeyWrapper.
func (c *KeyWrapper) Close() error {
	if c.gcpFactory == nil {
		return nil
	}
	return c.gcpFactory.Close()
}

// WrapOptions configures Wrap.
type WrapOptions struct {
	// KID names the envelope. If empty, a random UUID is used.
	KID string
	// Recipient is the public key the key is wrapped for.
	Recipient *rsa.PublicKey
	// Generate requests a freshly generated key.
	Generate bool
	// KeyHex is the caller's 256-bit key, used when Generate is false. An empty KeyHex then
	// fails with shares.ErrKeyLength.
	KeyHex string
	// Scheme, if set, splits a generated key into parts.
	Scheme *shares.Scheme
}

// WrapResult holds the outputs of a wrap operation. Nothing is persisted.
type WrapResult struct {
	Envelope *envelope.Envelope
	// Parts holds the split key, if a generated key was split.
	Parts []string
	// KeyHex holds a generated key that was not split. The caller must keep it safe.
	KeyHex string
	// Backup holds the KMS-encrypted copy of a KMS-generated key.
	Backup *Backup
}

// Wrap wraps a caller-supplied or freshly generated key for opts.Recipient. Only generated
// keys are returned to the caller, either split into parts or as hex.
func (c *KeyWrapper) Wrap(opts WrapOptions) (*WrapResult, error) {
	generated := opts.Generate
	if generated && opts.KeyHex != "" {
		return nil, fmt.Errorf("a key to wrap was supplied and key generation was requested")
	}

	var dek shares.DEK
	if generated {
		dek = shares.NewDEK()
	} else {
		var err error
		if dek, err = shares.ParseHexDEK(opts.KeyHex); err != nil {
			return nil, err
		}
	}
	defer dek.Wipe()

	env, err := c.seal(&dek, opts.KID, opts.Recipient)
	if err != nil {
		return nil, err
	}
	result := &WrapResult{Envelope: env}

	switch {
	case !generated:
		if opts.Scheme != nil {
			glog.Warningf("Not splitting key %v: only generated keys are split", env.KID)
		}
	case opts.Scheme != nil:
		if result.Parts, err = shares.SplitKey(dek[:], *opts.Scheme, c.Rand); err != nil {
			return nil, err
		}
		glog.Infof("Split key %v into %v", env.KID, *opts.Scheme)
	default:
		result.KeyHex = dek.Hex()
	}
	return result, nil
}

// seal wraps dek for recipient.
func (c *KeyWrapper) seal(dek *shares.DEK, kid string, recipient *rsa.PublicKey) (*envelope.Envelope, error) {
	if recipient == nil {
		return nil, fmt.Errorf("%w: no recipient public key", envelope.ErrWrap)
	}
	if kid != "" {
		if err := ValidateKID(kid); err != nil {
			return nil, err
		}
	}
	env, err := envelope.Build(kid, dek[:], recipient)
	if err != nil {
		return nil, err
	}
	if fp, err := RSAFingerprint(recipient); err == nil {
		glog.Infof("Wrapped key %v for recipient key %v", env.KID, fp)
	}
	return env, nil
}

// GCPOptions configures WrapGCPKey.
type GCPOptions struct {
	KID       string
	Recipient *rsa.PublicKey
	// Location is projects/<project>/locations/<location>, or a bare location on GCE.
	Location        string
	ProtectionLevel kmspb.ProtectionLevel
	// BackupKey, if set, is the CryptoKey that encrypts a backup of the generated key.
	BackupKey string
	Client    cloudkms.ClientOptions
}

// WrapGCPKey wraps a key generated by Cloud KMS, optionally backing it up under a Cloud KMS key.
func (c *KeyWrapper) WrapGCPKey(ctx context.Context, opts GCPOptions) (*WrapResult, error) {
	location, err := cloudkms.ResolveLocation(opts.Location)
	if err != nil {
		return nil, err
	}
	kmsClient, err := c.gcpClient(ctx, opts.Client)
	if err != nil {
		return nil, err
	}

	// Check the backup key before generating anything.
	if opts.BackupKey != "" {
		if err := cloudkms.CheckBackupKey(ctx, kmsClient, opts.BackupKey); err != nil {
			return nil, err
		}
	}

	pl := opts.ProtectionLevel
	if pl == kmspb.ProtectionLevel_PROTECTION_LEVEL_UNSPECIFIED {
		pl = kmspb.ProtectionLevel_HSM
	}
	glog.Infof("Calling Cloud KMS in %v to generate a new 256-bit key", location)
	raw, err := cloudkms.GenerateKey(ctx, kmsClient, cloudkms.GenerateOpts{
		Location:        location,
		LengthBytes:     int32(shares.DEKBytes),
		ProtectionLevel: pl,
	})
	if err != nil {
		return nil, err
	}
	dek, err := shares.DEKFromBytes(raw)
	clear(raw)
	if err != nil {
		return nil, err
	}
	defer dek.Wipe()

	env, err := c.seal(&dek, opts.KID, opts.Recipient)
	if err != nil {
		return nil, err
	}
	result := &WrapResult{Envelope: env}

	if opts.BackupKey != "" {
		version, ct, err := cloudkms.WrapBackup(ctx, kmsClient, cloudkms.WrapOpts{Plaintext: dek[:], KeyName: opts.BackupKey})
		if err != nil {
			return nil, err
		}
		result.Backup = &Backup{KeyID: version, Ciphertext: ct}
	}
	return result, nil
}

// AWSOptions configures WrapAWSKey.
type AWSOptions struct {
	KID       string
	Recipient *rsa.PublicKey
	// Alias names the customer master key, with or without the "alias/" prefix.
	Alias  string
	Config awskms.Config
}

// WrapAWSKey wraps a data key generated by AWS KMS. The result carries the KMS-encrypted
// data key as its backup.
func (c *KeyWrapper) WrapAWSKey(ctx context.Context, opts AWSOptions) (*WrapResult, error) {
	kmsClient, err := c.awsClient(ctx, opts.Config)
	if err != nil {
		return nil, err
	}

	glog.Infof("Calling AWS KMS to generate a new 256-bit key with customer master key %v", awskms.KeyName(opts.Alias))
	dk, err := awskms.GenerateDataKey(ctx, kmsClient, opts.Alias)
	if err != nil {
		return nil, err
	}
	dek, err := shares.DEKFromBytes(dk.Plaintext)
	clear(dk.Plaintext)
	if err != nil {
		return nil, err
	}
	defer dek.Wipe()
	glog.Infof("Generated KMS KeyId: %v", dk.KeyID)

	env, err := c.seal(&dek, opts.KID, opts.Recipient)
	if err != nil {
		return nil, err
	}
	return &WrapResult{
		Envelope: env,
		Backup:   &Backup{KeyID: dk.KeyID, Ciphertext: dk.CiphertextBlob},
	}, nil
}

// RestoreOptions holds the credentials for the KMS that made a backup.
type RestoreOptions struct {
	GCP cloudkms.ClientOptions
	AWS awskms.Config
}

// RestoreBackup decrypts a backup through the KMS named by its KeyID.
func (c *KeyWrapper) RestoreBackup(ctx context.Context, b *Backup, opts RestoreOptions) ([]byte, error) {
	switch {
	case awskms.IsKeyARN(b.KeyID):
		cfg := opts.AWS
		if cfg.Region == "" {
			cfg.Region = regionFromARN(b.KeyID)
		}
		kmsClient, err := c.awsClient(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return awskms.DecryptBackup(ctx, kmsClient, b.KeyID, b.Ciphertext)

	case strings.HasPrefix(b.KeyID, "projects/"):
		kmsClient, err := c.gcpClient(ctx, opts.GCP)
		if err != nil {
			return nil, err
		}
		keyName, _, _ := strings.Cut(b.KeyID, cryptoKeyVersionsCollection)
		return cloudkms.UnwrapBackup(ctx, kmsClient, cloudkms.UnwrapOpts{Ciphertext: b.Ciphertext, KeyName: keyName})

	default:
		return nil, fmt.Errorf("backup KeyId %q is neither an AWS KMS key ARN nor a Cloud KMS key", b.KeyID)
	}
}

// regionFromARN returns the region field of arn:partition:kms:region:account:key/id.
func regionFromARN(arn string) string {
	fields := strings.Split(arn, ":")
	if len(fields) < 4 {
		return ""
	}
	return fields[3]
}

// Recover reconstitutes a key from parts produced under an n-part, k-threshold scheme.
// Reconstruction is not verified: wrong or mixed parts give a wrong key without error.
func Recover(parts []string, n, k int) ([]byte, error) {
	scheme, err := shares.NewScheme(n, k)
	if err != nil {
		return nil, err
	}
	return shares.CombineParts(parts, scheme)
}
