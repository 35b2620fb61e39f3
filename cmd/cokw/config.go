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

package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"flag"
	glog "github.com/golang/glog"
	"sigs.k8s.io/yaml"

	"github.com/forcedotcom/CacheOnlyKeyWrapper/constants"
)

// Config holds defaults for command flags, read from a YAML file.
type Config struct {
	// CertificateFile is the recipient certificate used by the wrap commands.
	CertificateFile string `json:"certificateFile,omitempty"`
	// OutputDir is where envelopes and backups are written.
	OutputDir string `json:"outputDir,omitempty"`
	// Shares and Threshold are the default N and K for splitting and recovery.
	Shares    int `json:"shares,omitempty"`
	Threshold int `json:"threshold,omitempty"`

	GCP GCPConfig `json:"gcp,omitempty"`
	AWS AWSConfig `json:"aws,omitempty"`
}

// GCPConfig holds Cloud KMS settings.
type GCPConfig struct {
	Location                  string `json:"location,omitempty"`
	ProtectionLevel           string `json:"protectionLevel,omitempty"`
	BackupKey                 string `json:"backupKey,omitempty"`
	CredentialsFile           string `json:"credentialsFile,omitempty"`
	ImpersonateServiceAccount string `json:"impersonateServiceAccount,omitempty"`
}

// AWSConfig holds AWS KMS settings. Credentials are never read from the config file.
type AWSConfig struct {
	Region   string `json:"region,omitempty"`
	Alias    string `json:"alias,omitempty"`
	Endpoint string `json:"endpoint,omitempty"`
}

// defaultConfigPath returns the config file location in the user config directory, or "" if
// there is none.
func defaultConfigPath() string {
	cfgDir, err := os.UserConfigDir()
	if err != nil {
		glog.V(1).Infof("Failed to get config directory location: %v", err)
		return ""
	}
	return filepath.Join(cfgDir, constants.DefaultConfigName)
}

// loadConfig reads the YAML config at path. A missing file yields an empty Config unless the
// path was given explicitly.
func loadConfig(path string, explicit bool) (*Config, error) {
	if path == "" {
		return &Config{}, nil
	}
	yamlBytes, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("failed to read config file: %v", err)
	}
	return parseConfig(yamlBytes)
}

func parseConfig(yamlBytes []byte) (*Config, error) {
	jsonBytes, err := yaml.YAMLToJSON(yamlBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to convert config YAML to JSON: %v", err)
	}

	cfg := &Config{}
	if bytes.Equal(bytes.TrimSpace(jsonBytes), []byte("null")) {
		return cfg, nil
	}
	dec := json.NewDecoder(bytes.NewReader(jsonBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %v", err)
	}
	if cfg.Shares < 0 || cfg.Threshold < 0 {
		return nil, fmt.Errorf("config shares and threshold must not be negative")
	}
	return cfg, nil
}

// configFlag is embedded by commands that read the config file.
type configFlag struct {
	configFile string
}

func (c *configFlag) setConfigFlag(f *flag.FlagSet) {
	f.StringVar(&c.configFile, "config-file", defaultConfigPath(), "Path to a YAML config file. Optional.")
}

// load reads the config file and returns it with the set of flags given on the command line.
func (c *configFlag) load(f *flag.FlagSet) (*Config, map[string]bool, error) {
	set := flagsSet(f)
	cfg, err := loadConfig(c.configFile, set["config-file"])
	if err != nil {
		return nil, nil, err
	}
	return cfg, set, nil
}

// flagsSet returns the names of the flags given on the command line.
func flagsSet(f *flag.FlagSet) map[string]bool {
	set := map[string]bool{}
	f.Visit(func(fl *flag.Flag) { set[fl.Name] = true })
	return set
}

// pickString returns the flag value if the flag was set, else the config value if non-empty,
// else the flag default.
func pickString(set map[string]bool, name, flagVal, cfgVal string) string {
	if set[name] || cfgVal == "" {
		return flagVal
	}
	return cfgVal
}

// pickInt is pickString for integer flags, treating a zero config value as unset.
func pickInt(set map[string]bool, name string, flagVal, cfgVal int) int {
	if set[name] || cfgVal == 0 {
		return flagVal
	}
	return cfgVal
}
