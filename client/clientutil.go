// Copyright 2021 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package client

import (
	"bufio"
	"bytes"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/forcedotcom/CacheOnlyKeyWrapper/client/envelope"
)

const (
	// BackupSuffix is appended to the kid to name the KMS backup file.
	BackupSuffix = ".backup"

	backupKeyIDLabel      = "KeyId:"
	backupCiphertextLabel = "Hex Encoded Encrypted Backup from KMS: "
)

/////////////////////////////////////////////////
// For dealing with RSA keys and fingerprints. //
/////////////////////////////////////////////////

// PublicKeyFromCertificateFile reads an X.509 certificate, PEM or DER encoded, and returns
// its RSA public key. The certificate is not otherwise validated.
func PublicKeyFromCertificateFile(path string) (*rsa.PublicKey, error) {
	certBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open certificate file: %w", err)
	}

	der := certBytes
	if block, _ := pem.Decode(certBytes); block != nil {
		if block.Type != "CERTIFICATE" {
			return nil, fmt.Errorf("failed to decode PEM block containing certificate, found %q", block.Type)
		}
		der = block.Bytes
	}

	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %v", err)
	}
	key, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("certificate has a %v public key, want RSA", cert.PublicKeyAlgorithm)
	}
	return key, nil
}

// PrivateKeyFromFile reads a PEM encoded RSA private key in PKCS #1 or PKCS #8 form.
func PrivateKeyFromFile(path string) (*rsa.PrivateKey, error) {
	keyBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open private key file: %w", err)
	}

	block, _ := pem.Decode(keyBytes)
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block containing RSA private key")
	}

	switch block.Type {
	case "RSA PRIVATE KEY":
		key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse PKCS1 private key from PEM: %v", err)
		}
		return key, nil
	case "PRIVATE KEY":
		parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse PKCS8 private key from PEM: %v", err)
		}
		key, ok := parsed.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("PKCS8 private key is a %T, want RSA", parsed)
		}
		return key, nil
	default:
		return nil, fmt.Errorf("unsupported PEM block type %q for private key", block.Type)
	}
}

// RSAFingerprint returns the base64 SHA-256 digest of the DER-encoded public key.
func RSAFingerprint(key *rsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(key)
	if err != nil {
		return "", fmt.Errorf("failed to marshal public key: %w", err)
	}
	sha := sha256.Sum256(der)
	return base64.StdEncoding.EncodeToString(sha[:]), nil
}

///////////////////////////////////////////////
// For writing envelopes and backups to disk. //
///////////////////////////////////////////////

// Backup is key material encrypted by a KMS, kept so the key can be restored through the
// KMS if the envelope's recipient key is lost.
type Backup struct {
	KeyID      string
	Ciphertext []byte
}

// String returns the backup file contents.
func (b *Backup) String() string {
	return fmt.Sprintf("%s%s\n%s%x", backupKeyIDLabel, b.KeyID, backupCiphertextLabel, b.Ciphertext)
}

// ParseBackup parses backup file contents produced by Backup.String.
func ParseBackup(data []byte) (*Backup, error) {
	sc := bufio.NewScanner(bytes.NewReader(data))
	var lines []string
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read backup: %v", err)
	}
	if len(lines) != 2 {
		return nil, fmt.Errorf("backup has %d lines, want 2", len(lines))
	}

	keyID, ok := strings.CutPrefix(lines[0], backupKeyIDLabel)
	if !ok || keyID == "" {
		return nil, fmt.Errorf("backup does not start with a %q line", backupKeyIDLabel)
	}
	ctHex, ok := strings.CutPrefix(lines[1], strings.TrimSpace(backupCiphertextLabel))
	if !ok {
		return nil, fmt.Errorf("backup is missing the encrypted key line")
	}
	ct, err := hex.DecodeString(strings.TrimSpace(ctHex))
	if err != nil || len(ct) == 0 {
		return nil, fmt.Errorf("backup ciphertext is not a hex string")
	}
	return &Backup{KeyID: keyID, Ciphertext: ct}, nil
}

// ValidateKID checks that kid can be used as a file name within the output directory.
func ValidateKID(kid string) error {
	switch {
	case kid == "":
		return fmt.Errorf("empty kid")
	case kid == "." || kid == "..":
		return fmt.Errorf("kid %q is not a valid file name", kid)
	case strings.ContainsAny(kid, `/\`+"\x00"):
		return fmt.Errorf("kid %q must not contain path separators", kid)
	}
	return nil
}

// writeFileAtomic writes data to a temporary file in the target directory and renames it into
// place, so readers never observe a partial file.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %v", err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set file permissions: %v", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %v: %v", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync %v: %v", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %v: %v", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to write %v: %v", path, err)
	}
	return nil
}

// WriteEnvelope writes env to a file named after its kid in dir, returning the file path.
func WriteEnvelope(dir string, env *envelope.Envelope) (string, error) {
	if err := ValidateKID(env.KID); err != nil {
		return "", err
	}
	data, err := env.Marshal()
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, env.KID)
	if err := writeFileAtomic(path, data); err != nil {
		return "", err
	}
	return path, nil
}

// ReadEnvelope reads an envelope written by WriteEnvelope.
func ReadEnvelope(path string) (*envelope.Envelope, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open envelope file: %w", err)
	}
	return envelope.Parse(data)
}

// WriteBackup writes b to <kid>.backup in dir, returning the file path.
func WriteBackup(dir, kid string, b *Backup) (string, error) {
	if err := ValidateKID(kid); err != nil {
		return "", err
	}
	path := filepath.Join(dir, kid+BackupSuffix)
	if err := writeFileAtomic(path, []byte(b.String())); err != nil {
		return "", err
	}
	return path, nil
}

// ReadBackup reads a backup written by WriteBackup.
func ReadBackup(path string) (*Backup, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open backup file: %w", err)
	}
	return ParseBackup(data)
}
