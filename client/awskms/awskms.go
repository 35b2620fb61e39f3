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

// Package awskms contains utilities for generating and restoring data keys with AWS KMS.
package awskms

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"
)

const aliasPrefix = "alias/"

// Client defines the subset of the AWS KMS client used here.
type Client interface {
	GenerateDataKey(ctx context.Context, params *kms.GenerateDataKeyInput, optFns ...func(*kms.Options)) (*kms.GenerateDataKeyOutput, error)
	Decrypt(ctx context.Context, params *kms.DecryptInput, optFns ...func(*kms.Options)) (*kms.DecryptOutput, error)
}

// Config holds the settings for NewClient. Static credentials are used when both
// AccessKeyID and SecretAccessKey are set, otherwise the default credential chain.
type Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	// Endpoint overrides the KMS endpoint, for local testing against a KMS emulator.
	Endpoint string
}

// NewClient returns an AWS KMS client for cfg.
func NewClient(ctx context.Context, cfg Config) (*kms.Client, error) {
	if cfg.Region == "" {
		return nil, fmt.Errorf("no AWS region specified")
	}
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		creds := credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken)
		opts = append(opts, awsconfig.WithCredentialsProvider(creds))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var clientOpts []func(*kms.Options)
	if cfg.Endpoint != "" {
		clientOpts = append(clientOpts, func(o *kms.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}
	return kms.NewFromConfig(awsCfg, clientOpts...), nil
}

// KeyName returns the KMS key identifier for a CMK alias. An alias already carrying the
// "alias/" prefix is returned unchanged.
func KeyName(alias string) string {
	if strings.HasPrefix(alias, aliasPrefix) {
		return alias
	}
	return aliasPrefix + alias
}

// DataKey is a 256-bit AES key generated by AWS KMS, in plaintext and encrypted under a CMK.
type DataKey struct {
	KeyID          string
	Plaintext      []byte
	CiphertextBlob []byte
}

// GenerateDataKey asks KMS for a new AES-256 data key under the CMK with the given alias.
func GenerateDataKey(ctx context.Context, client Client, alias string) (*DataKey, error) {
	if client == nil {
		return nil, fmt.Errorf("nil client specified")
	}
	if alias == "" || alias == aliasPrefix {
		return nil, fmt.Errorf("no CMK alias specified")
	}
	out, err := client.GenerateDataKey(ctx, &kms.GenerateDataKeyInput{
		KeyId:   aws.String(KeyName(alias)),
		KeySpec: types.DataKeySpecAes256,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate data key: %w", err)
	}
	if len(out.Plaintext) != 32 {
		return nil, fmt.Errorf("GenerateDataKey: got %v plaintext bytes, want 32", len(out.Plaintext))
	}
	if len(out.CiphertextBlob) == 0 {
		return nil, fmt.Errorf("GenerateDataKey: response has no ciphertext blob")
	}
	return &DataKey{
		KeyID:          aws.ToString(out.KeyId),
		Plaintext:      out.Plaintext,
		CiphertextBlob: out.CiphertextBlob,
	}, nil
}

// DecryptBackup recovers a data key from the ciphertext blob returned by GenerateDataKey.
func DecryptBackup(ctx context.Context, client Client, keyID string, ciphertextBlob []byte) ([]byte, error) {
	if client == nil {
		return nil, fmt.Errorf("nil client specified")
	}
	in := &kms.DecryptInput{CiphertextBlob: ciphertextBlob}
	if keyID != "" {
		in.KeyId = aws.String(keyID)
	}
	out, err := client.Decrypt(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt backup: %w", err)
	}
	return out.Plaintext, nil
}

// IsKeyARN reports whether keyID is an AWS KMS key ARN.
func IsKeyARN(keyID string) bool {
	return strings.HasPrefix(keyID, "arn:aws") && strings.Contains(keyID, ":kms:")
}
