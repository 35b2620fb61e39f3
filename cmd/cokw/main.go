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

// This binary is the main entrypoint for the cokw command line tool.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"flag"
	"github.com/alecthomas/colour"
	glog "github.com/golang/glog"
	"github.com/google/subcommands"

	"github.com/forcedotcom/CacheOnlyKeyWrapper/client"
	"github.com/forcedotcom/CacheOnlyKeyWrapper/client/awskms"
	"github.com/forcedotcom/CacheOnlyKeyWrapper/client/cloudkms"
	"github.com/forcedotcom/CacheOnlyKeyWrapper/client/shares"
	"github.com/forcedotcom/CacheOnlyKeyWrapper/constants"
)

func stdout(w io.Writer) io.Writer {
	if w == nil {
		return os.Stdout
	}
	return w
}

func printEnvelopePath(w io.Writer, path string) {
	fmt.Fprintf(w, "\nCache-only key representation written to file: %s\n\n", path)
}

// printParts prints the parts of a split key and an example recover command.
func printParts(w io.Writer, parts []string, scheme shares.Scheme) {
	fmt.Fprintf(w, "Encryption key can be recovered with %d of the following %d parts:\n", scheme.K(), scheme.N())
	for _, part := range parts {
		colour.Fprintf(w, "^2%s^R\n", part)
	}
	fmt.Fprintf(w, "\nFor example, you can use the following command:\n  %s\n\n", recoverCommand(parts, scheme))
}

// recoverCommand returns a recover invocation using the last part followed by the first K-1,
// showing that any K parts in any order will do.
func recoverCommand(parts []string, scheme shares.Scheme) string {
	example := append([]string{parts[len(parts)-1]}, parts[:scheme.K()-1]...)
	return fmt.Sprintf("cokw recover -n %d -k %d %s", scheme.N(), scheme.K(), strings.Join(example, " "))
}

// readKeyLine reads a single line holding a hex key.
func readKeyLine(r io.Reader) (string, error) {
	if r == nil {
		r = os.Stdin
	}
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read key from stdin: %v", err)
	}
	return strings.TrimSpace(line), nil
}

// gcpClientOptions builds Cloud KMS client options from a credentials file and a service
// account to impersonate, both optional.
func gcpClientOptions(credentialsFile, serviceAccount string) (cloudkms.ClientOptions, error) {
	opts := cloudkms.ClientOptions{ImpersonateServiceAccount: serviceAccount}
	if credentialsFile == "" {
		return opts, nil
	}
	creds, err := os.ReadFile(credentialsFile)
	if err != nil {
		return opts, fmt.Errorf("failed to read credentials file: %v", err)
	}
	opts.CredentialsJSON = string(creds)
	return opts, nil
}

// awsFlags are the AWS KMS connection flags shared by wrap-aws and restore-backup.
type awsFlags struct {
	region       string
	accessKey    string
	secretKey    string
	sessionToken string
	endpoint     string
}

func (a *awsFlags) setAWSFlags(f *flag.FlagSet) {
	f.StringVar(&a.region, "region", "", "AWS region of the KMS key.")
	f.StringVar(&a.accessKey, "access-key", "", "AWS access key ID. Optional, defaults to the AWS credential chain.")
	f.StringVar(&a.secretKey, "secret-key", "", "AWS secret access key. Optional, defaults to the AWS credential chain.")
	f.StringVar(&a.sessionToken, "session-token", "", "AWS session token for temporary credentials. Optional.")
	f.StringVar(&a.endpoint, "endpoint", "", "AWS KMS endpoint override. Optional.")
}

func (a *awsFlags) config(set map[string]bool, cfg AWSConfig) awskms.Config {
	return awskms.Config{
		Region:          pickString(set, "region", a.region, cfg.Region),
		AccessKeyID:     a.accessKey,
		SecretAccessKey: a.secretKey,
		SessionToken:    a.sessionToken,
		Endpoint:        pickString(set, "endpoint", a.endpoint, cfg.Endpoint),
	}
}

// gcpCredentialFlags are the Cloud KMS identity flags shared by wrap-gcp and restore-backup.
type gcpCredentialFlags struct {
	credentialsFile string
	impersonate     string
}

func (g *gcpCredentialFlags) setGCPCredentialFlags(f *flag.FlagSet) {
	f.StringVar(&g.credentialsFile, "credentials-file", "", "Path to a Google credentials JSON file. Optional, defaults to application default credentials.")
	f.StringVar(&g.impersonate, "impersonate-service-account", "", "Email of a service account to impersonate for Cloud KMS calls. Optional.")
}

func (g *gcpCredentialFlags) clientOptions(set map[string]bool, cfg GCPConfig) (cloudkms.ClientOptions, error) {
	return gcpClientOptions(
		pickString(set, "credentials-file", g.credentialsFile, cfg.CredentialsFile),
		pickString(set, "impersonate-service-account", g.impersonate, cfg.ImpersonateServiceAccount),
	)
}

// wrapCmd handles CLI options for the wrap command.
type wrapCmd struct {
	configFlag
	certFile  string
	keyHex    string
	kid       string
	split     bool
	shares    int
	threshold int
	outDir    string

	in  io.Reader
	out io.Writer
}

func (*wrapCmd) Name() string { return "wrap" }
func (*wrapCmd) Synopsis() string {
	return "wraps a new or supplied 256-bit key for a recipient certificate"
}
func (*wrapCmd) Usage() string {
	return fmt.Sprintf(`Usage: cokw wrap --cert=<cert_file> [--kid=<kid>] [--key-hex=<hex>|-] [--split [-n=<n>] [-k=<k>]] [--out-dir=<dir>]

Writes the wrapped key to a file named after the kid. A generated key is printed as hex, or
split into parts with --split. A supplied key is never printed or split.

Examples:
  Generate a key and wrap it for the recipient in cert.pem, using %s for configuration:
    $ cokw wrap --cert=cert.pem

  Generate a key and split it into 5 parts, any 3 of which recover it:
    $ cokw wrap --cert=cert.pem --split -n=5 -k=3

  Wrap your own key, read from stdin, under the kid "orders":
    $ cokw wrap --cert=cert.pem --kid=orders --key-hex=- < key.hex

Flags:
`, defaultConfigPath())
	// The flags are automatically printed after the returned text.
}
func (w *wrapCmd) SetFlags(f *flag.FlagSet) {
	w.setConfigFlag(f)
	f.StringVar(&w.certFile, "cert", "", "Path to the recipient's X.509 certificate, PEM or DER.")
	f.StringVar(&w.keyHex, "key-hex", "", "Hex encoded 256-bit key to wrap, or - to read it from stdin. Optional, a key is generated by default.")
	f.StringVar(&w.kid, "kid", "", "Key identifier. Optional, defaults to a random UUID.")
	f.BoolVar(&w.split, "split", false, "Split the generated key into parts with Shamir's Secret Sharing.")
	f.IntVar(&w.shares, "n", constants.DefaultShares, "Number of parts to split the key into (2-10).")
	f.IntVar(&w.threshold, "k", constants.DefaultThreshold, "Number of parts needed to recover the key.")
	f.StringVar(&w.outDir, "out-dir", constants.DefaultOutputDir, "Directory to write the wrapped key to.")
}

func (w *wrapCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, set, err := w.load(f)
	if err != nil {
		glog.Errorf("Failed to load config: %v", err)
		return subcommands.ExitFailure
	}
	if f.NArg() > 0 {
		glog.Errorf("Unexpected arguments: %v", f.Args())
		return subcommands.ExitUsageError
	}

	certFile := pickString(set, "cert", w.certFile, cfg.CertificateFile)
	if certFile == "" {
		glog.Errorf("No recipient certificate given (use --cert or certificateFile in the config file)")
		return subcommands.ExitUsageError
	}

	// An empty --key-hex, or an empty line on stdin, is a missing key and never means "generate".
	opts := client.WrapOptions{KID: w.kid, KeyHex: w.keyHex, Generate: !set["key-hex"]}
	if w.split {
		scheme, err := shares.NewScheme(pickInt(set, "n", w.shares, cfg.Shares), pickInt(set, "k", w.threshold, cfg.Threshold))
		if err != nil {
			glog.Errorf("Invalid secret splitting parameters: %v", err)
			return subcommands.ExitUsageError
		}
		opts.Scheme = &scheme
	} else if set["n"] || set["k"] {
		glog.Warningf("Ignoring -n and -k without --split")
	}

	if opts.Recipient, err = client.PublicKeyFromCertificateFile(certFile); err != nil {
		glog.Errorf("Failed to load recipient public key: %v", err)
		return subcommands.ExitFailure
	}
	if w.keyHex == "-" {
		if opts.KeyHex, err = readKeyLine(w.in); err != nil {
			glog.Errorf("%v", err)
			return subcommands.ExitFailure
		}
	}

	kw := &client.KeyWrapper{Version: constants.Version}
	defer kw.Close()

	res, err := kw.Wrap(opts)
	if err != nil {
		glog.Errorf("Failed to wrap key: %v", err)
		return subcommands.ExitFailure
	}
	path, err := client.WriteEnvelope(pickString(set, "out-dir", w.outDir, cfg.OutputDir), res.Envelope)
	if err != nil {
		glog.Errorf("Failed to write wrapped key: %v", err)
		return subcommands.ExitFailure
	}

	out := stdout(w.out)
	printEnvelopePath(out, path)
	switch {
	case len(res.Parts) > 0:
		printParts(out, res.Parts, *opts.Scheme)
	case res.KeyHex != "":
		fmt.Fprintf(out, "Hex encoded encryption key: %s\n", res.KeyHex)
	}
	return subcommands.ExitSuccess
}

// wrapGCPCmd handles CLI options for the wrap-gcp command.
type wrapGCPCmd struct {
	configFlag
	gcpCredentialFlags
	certFile        string
	kid             string
	location        string
	protectionLevel string
	backupKey       string
	outDir          string

	out io.Writer
}

func (*wrapGCPCmd) Name() string { return "wrap-gcp" }
func (*wrapGCPCmd) Synopsis() string {
	return "wraps a key generated by Cloud KMS, optionally backed up under a Cloud KMS key"
}
func (*wrapGCPCmd) Usage() string {
	return `Usage: cokw wrap-gcp --cert=<cert_file> --location=<location> [--backup-key=<crypto_key>] [--protection-level=<level>] [--kid=<kid>] [--out-dir=<dir>]

The key is never printed. With --backup-key, a copy encrypted under that Cloud KMS key is
written next to the wrapped key as <kid>.backup, and can be restored with restore-backup.

Examples:
  Generate a key in an HSM and back it up:
    $ cokw wrap-gcp --cert=cert.pem --location=projects/my-project/locations/us-east1 \
        --backup-key=projects/my-project/locations/us-east1/keyRings/kr/cryptoKeys/backup

  On a GCE VM, the project is read from the metadata server:
    $ cokw wrap-gcp --cert=cert.pem --location=us-east1

Flags:
`
}
func (w *wrapGCPCmd) SetFlags(f *flag.FlagSet) {
	w.setConfigFlag(f)
	w.setGCPCredentialFlags(f)
	f.StringVar(&w.certFile, "cert", "", "Path to the recipient's X.509 certificate, PEM or DER.")
	f.StringVar(&w.kid, "kid", "", "Key identifier. Optional, defaults to a random UUID.")
	f.StringVar(&w.location, "location", "", "Cloud KMS location that generates the key.")
	f.StringVar(&w.protectionLevel, "protection-level", "", "Protection level for key generation, HSM or SOFTWARE. Optional, defaults to HSM.")
	f.StringVar(&w.backupKey, "backup-key", "", "Cloud KMS CryptoKey that encrypts a backup of the key. Optional.")
	f.StringVar(&w.outDir, "out-dir", constants.DefaultOutputDir, "Directory to write the wrapped key and backup to.")
}

func (w *wrapGCPCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, set, err := w.load(f)
	if err != nil {
		glog.Errorf("Failed to load config: %v", err)
		return subcommands.ExitFailure
	}

	certFile := pickString(set, "cert", w.certFile, cfg.CertificateFile)
	location := pickString(set, "location", w.location, cfg.GCP.Location)
	if certFile == "" || location == "" {
		glog.Errorf("Both a recipient certificate (--cert) and a Cloud KMS location (--location) are required")
		return subcommands.ExitUsageError
	}

	opts := client.GCPOptions{
		KID:       w.kid,
		Location:  location,
		BackupKey: pickString(set, "backup-key", w.backupKey, cfg.GCP.BackupKey),
	}
	if pl := pickString(set, "protection-level", w.protectionLevel, cfg.GCP.ProtectionLevel); pl != "" {
		if opts.ProtectionLevel, err = cloudkms.ParseProtectionLevel(pl); err != nil {
			glog.Errorf("%v", err)
			return subcommands.ExitUsageError
		}
	}
	if opts.Client, err = w.clientOptions(set, cfg.GCP); err != nil {
		glog.Errorf("%v", err)
		return subcommands.ExitFailure
	}
	if opts.Recipient, err = client.PublicKeyFromCertificateFile(certFile); err != nil {
		glog.Errorf("Failed to load recipient public key: %v", err)
		return subcommands.ExitFailure
	}

	kw := &client.KeyWrapper{Version: constants.Version}
	defer kw.Close()

	res, err := kw.WrapGCPKey(ctx, opts)
	if err != nil {
		glog.Errorf("Failed to wrap Cloud KMS key: %v", err)
		return subcommands.ExitFailure
	}
	return writeKMSResult(stdout(w.out), pickString(set, "out-dir", w.outDir, cfg.OutputDir), res)
}

// writeKMSResult writes the backup, if any, then the envelope.
func writeKMSResult(out io.Writer, dir string, res *client.WrapResult) subcommands.ExitStatus {
	var backupPath string
	if res.Backup != nil {
		var err error
		if backupPath, err = client.WriteBackup(dir, res.Envelope.KID, res.Backup); err != nil {
			glog.Errorf("Failed to write backup: %v", err)
			return subcommands.ExitFailure
		}
	}
	path, err := client.WriteEnvelope(dir, res.Envelope)
	if err != nil {
		glog.Errorf("Failed to write wrapped key: %v", err)
		return subcommands.ExitFailure
	}

	printEnvelopePath(out, path)
	if backupPath == "" {
		glog.Warningf("No backup key given: the key can only be recovered from %v", path)
		return subcommands.ExitSuccess
	}
	fmt.Fprintf(out, "KMS encrypted backup written to file: %s\n", backupPath)
	fmt.Fprintf(out, "Backup KeyId: %s\n\n", res.Backup.KeyID)
	return subcommands.ExitSuccess
}

// wrapAWSCmd handles CLI options for the wrap-aws command.
type wrapAWSCmd struct {
	configFlag
	awsFlags
	certFile string
	kid      string
	alias    string
	outDir   string

	out io.Writer
}

func (*wrapAWSCmd) Name() string { return "wrap-aws" }
func (*wrapAWSCmd) Synopsis() string {
	return "wraps a data key generated by AWS KMS and keeps its encrypted backup"
}
func (*wrapAWSCmd) Usage() string {
	return `Usage: cokw wrap-aws --cert=<cert_file> --region=<region> --alias=<alias> [--access-key=<id> --secret-key=<secret>] [--kid=<kid>] [--out-dir=<dir>]

The key is never printed. The data key encrypted under the customer master key is written next
to the wrapped key as <kid>.backup, and can be restored with restore-backup.

Examples:
  Generate a data key under alias/payments using the default AWS credential chain:
    $ cokw wrap-aws --cert=cert.pem --region=us-east-1 --alias=payments

Flags:
`
}
func (w *wrapAWSCmd) SetFlags(f *flag.FlagSet) {
	w.setConfigFlag(f)
	w.setAWSFlags(f)
	f.StringVar(&w.certFile, "cert", "", "Path to the recipient's X.509 certificate, PEM or DER.")
	f.StringVar(&w.kid, "kid", "", "Key identifier. Optional, defaults to a random UUID.")
	f.StringVar(&w.alias, "alias", "", "Alias of the AWS KMS customer master key, with or without the alias/ prefix.")
	f.StringVar(&w.outDir, "out-dir", constants.DefaultOutputDir, "Directory to write the wrapped key and backup to.")
}

func (w *wrapAWSCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, set, err := w.load(f)
	if err != nil {
		glog.Errorf("Failed to load config: %v", err)
		return subcommands.ExitFailure
	}

	opts := client.AWSOptions{
		KID:    w.kid,
		Alias:  pickString(set, "alias", w.alias, cfg.AWS.Alias),
		Config: w.config(set, cfg.AWS),
	}
	certFile := pickString(set, "cert", w.certFile, cfg.CertificateFile)
	if certFile == "" || opts.Alias == "" || opts.Config.Region == "" {
		glog.Errorf("A recipient certificate (--cert), an AWS region (--region) and a key alias (--alias) are required")
		return subcommands.ExitUsageError
	}
	if opts.Recipient, err = client.PublicKeyFromCertificateFile(certFile); err != nil {
		glog.Errorf("Failed to load recipient public key: %v", err)
		return subcommands.ExitFailure
	}

	kw := &client.KeyWrapper{Version: constants.Version}
	defer kw.Close()

	res, err := kw.WrapAWSKey(ctx, opts)
	if err != nil {
		glog.Errorf("Failed to wrap AWS KMS data key: %v", err)
		return subcommands.ExitFailure
	}
	return writeKMSResult(stdout(w.out), pickString(set, "out-dir", w.outDir, cfg.OutputDir), res)
}

// recoverCmd handles CLI options for the recover command.
type recoverCmd struct {
	configFlag
	shares    int
	threshold int
	text      bool

	out io.Writer
}

func (*recoverCmd) Name() string     { return "recover" }
func (*recoverCmd) Synopsis() string { return "recovers a split key from K of its N parts" }
func (*recoverCmd) Usage() string {
	return `Usage: cokw recover [-n=<n>] [-k=<k>] [--text] <part> <part>...

Parts are not verified: wrong or mixed parts recover a wrong key without error.

Examples:
  Recover a key split into 3 parts, any 2 of which suffice:
    $ cokw recover -n 3 -k 2 2c0ffee... 0deadbeef...

  Recover parts made by tools that split the hex text of the key:
    $ cokw recover -n 3 -k 2 --text 2c0ffee... 0deadbeef...

Flags:
`
}
func (r *recoverCmd) SetFlags(f *flag.FlagSet) {
	r.setConfigFlag(f)
	f.IntVar(&r.shares, "n", constants.DefaultShares, "Number of parts the key was split into.")
	f.IntVar(&r.threshold, "k", constants.DefaultThreshold, "Number of parts needed to recover the key.")
	f.BoolVar(&r.text, "text", false, "Print the recovered bytes as text rather than hex encoding them.")
}

func (r *recoverCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, set, err := r.load(f)
	if err != nil {
		glog.Errorf("Failed to load config: %v", err)
		return subcommands.ExitFailure
	}
	if f.NArg() == 0 {
		glog.Errorf("No parts given")
		return subcommands.ExitUsageError
	}

	key, err := client.Recover(f.Args(), pickInt(set, "n", r.shares, cfg.Shares), pickInt(set, "k", r.threshold, cfg.Threshold))
	if err != nil {
		glog.Errorf("Failed to recover key: %v", err)
		return subcommands.ExitFailure
	}
	defer clear(key)

	if r.text {
		fmt.Fprintf(stdout(r.out), "Hex encoded encryption key: %s\n", key)
	} else {
		fmt.Fprintf(stdout(r.out), "Hex encoded encryption key: %x\n", key)
	}
	return subcommands.ExitSuccess
}

// unwrapCmd handles CLI options for the unwrap command.
type unwrapCmd struct {
	privateKeyFile string

	out io.Writer
}

func (*unwrapCmd) Name() string { return "unwrap" }
func (*unwrapCmd) Synopsis() string {
	return "unwraps a key representation with the recipient's private key"
}
func (*unwrapCmd) Usage() string {
	return `Usage: cokw unwrap --private-key=<key_file> <wrapped_key_file>

Verifies a wrapped key file by decrypting it and prints the key as hex.

Examples:
    $ cokw unwrap --private-key=recipient.key orders

Flags:
`
}
func (u *unwrapCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&u.privateKeyFile, "private-key", "", "Path to the recipient's PEM encoded RSA private key.")
}

func (u *unwrapCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if u.privateKeyFile == "" || f.NArg() != 1 {
		glog.Errorf("Expected --private-key and exactly one wrapped key file")
		return subcommands.ExitUsageError
	}

	priv, err := client.PrivateKeyFromFile(u.privateKeyFile)
	if err != nil {
		glog.Errorf("Failed to load private key: %v", err)
		return subcommands.ExitFailure
	}
	env, err := client.ReadEnvelope(f.Arg(0))
	if err != nil {
		glog.Errorf("Failed to read wrapped key: %v", err)
		return subcommands.ExitFailure
	}
	key, err := env.Open(priv)
	if err != nil {
		glog.Errorf("Failed to unwrap key %v: %v", env.KID, err)
		return subcommands.ExitFailure
	}
	defer clear(key)

	fmt.Fprintf(stdout(u.out), "Hex encoded encryption key: %x\n", key)
	return subcommands.ExitSuccess
}

// restoreBackupCmd handles CLI options for the restore-backup command.
type restoreBackupCmd struct {
	configFlag
	gcpCredentialFlags
	awsFlags

	out io.Writer
}

func (*restoreBackupCmd) Name() string { return "restore-backup" }
func (*restoreBackupCmd) Synopsis() string {
	return "decrypts a KMS backup written by wrap-gcp or wrap-aws"
}
func (*restoreBackupCmd) Usage() string {
	return `Usage: cokw restore-backup [--credentials-file=<file>] [--region=<region>] <backup_file>

The KMS is chosen from the backup's KeyId: an AWS key ARN or a Cloud KMS key version.

Examples:
    $ cokw restore-backup orders.backup

Flags:
`
}
func (r *restoreBackupCmd) SetFlags(f *flag.FlagSet) {
	r.setConfigFlag(f)
	r.setGCPCredentialFlags(f)
	r.setAWSFlags(f)
}

func (r *restoreBackupCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, set, err := r.load(f)
	if err != nil {
		glog.Errorf("Failed to load config: %v", err)
		return subcommands.ExitFailure
	}
	if f.NArg() != 1 {
		glog.Errorf("Expected exactly one backup file")
		return subcommands.ExitUsageError
	}

	backup, err := client.ReadBackup(f.Arg(0))
	if err != nil {
		glog.Errorf("Failed to read backup: %v", err)
		return subcommands.ExitFailure
	}
	opts := client.RestoreOptions{AWS: r.config(set, cfg.AWS)}
	if opts.GCP, err = r.clientOptions(set, cfg.GCP); err != nil {
		glog.Errorf("%v", err)
		return subcommands.ExitFailure
	}

	kw := &client.KeyWrapper{Version: constants.Version}
	defer kw.Close()

	key, err := kw.RestoreBackup(ctx, backup, opts)
	if err != nil {
		glog.Errorf("Failed to restore backup: %v", err)
		return subcommands.ExitFailure
	}
	defer clear(key)

	fmt.Fprintf(stdout(r.out), "Hex encoded encryption key: %x\n", key)
	return subcommands.ExitSuccess
}

// versionCmd handles CLI options for the version command.
type versionCmd struct {
	out io.Writer
}

func (*versionCmd) Name() string           { return "version" }
func (*versionCmd) Synopsis() string       { return "prints the current version" }
func (*versionCmd) Usage() string          { return "Usage: cokw version" }
func (*versionCmd) SetFlags(*flag.FlagSet) {}
func (v *versionCmd) Execute(context.Context, *flag.FlagSet, ...interface{}) subcommands.ExitStatus {
	fmt.Fprintf(stdout(v.out), "cokw version %s\n", constants.Version)
	return subcommands.ExitSuccess
}

func main() {
	flag.Parse()

	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(&wrapCmd{}, "")
	subcommands.Register(&wrapGCPCmd{}, "")
	subcommands.Register(&wrapAWSCmd{}, "")
	subcommands.Register(&recoverCmd{}, "")
	subcommands.Register(&unwrapCmd{}, "")
	subcommands.Register(&restoreBackupCmd{}, "")
	subcommands.Register(&versionCmd{}, "")

	ctx := context.Background()
	os.Exit(int(subcommands.Execute(ctx)))
}
