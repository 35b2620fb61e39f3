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

// Package constants contains constants shared between the client library and the CLI.
package constants

// Version is the current version, displayed via the `version` subcommand and sent in the
// Cloud KMS user agent.
const Version = "1.0.0"

// DefaultConfigName is the name of the configuration file in the user config directory.
const DefaultConfigName = "cokw.yaml"

// DefaultShares is the number of parts a key is split into when no value is configured.
const DefaultShares = 3

// DefaultThreshold is the number of parts needed to recover a key when no value is configured.
const DefaultThreshold = 2

// DefaultOutputDir is where envelopes and backups are written when no directory is configured.
const DefaultOutputDir = "."
