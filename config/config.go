// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package config loads the server's ProgramConfig the way cc-backend's
// cmd/cc-backend/main.go does: flags for the CLI, an optional .env file,
// and an optional JSON config file validated against an embedded schema.
package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ProgramConfig is the format of the optional JSON configuration file,
// mirroring cc-backend's own ProgramConfig in shape and defaulting
// strategy: a package-level value pre-filled with defaults, then
// selectively overwritten by whatever the file and flags provide.
type ProgramConfig struct {
	// Address the TCP listener binds to, e.g. "127.0.0.1:6380".
	Addr string `json:"addr"`

	// Address the HTTP admin/introspection surface binds to. Empty
	// disables it.
	MetricsAddr string `json:"metrics-addr"`

	// Maximum number of concurrent client connections accepted.
	MaxConnections int `json:"max-connections"`

	// Path to the append-only durability log. Empty disables persistence.
	AOFPath string `json:"aof-path"`

	// Fsync policy for the durability log: "always", "everysec", or "no".
	AOFFsync string `json:"aof-fsync"`

	// How often the background sweep evicts expired keys.
	EvictionInterval string `json:"eviction-interval"`

	// How often the durability log is rotated and gzip-compacted.
	// Empty disables scheduled compaction.
	AOFCompactionInterval string `json:"aof-compaction-interval"`

	// Optional S3 bucket the AOF is uploaded to once a minute. Empty
	// disables mirroring.
	S3Bucket string `json:"s3-bucket"`
	S3Prefix string `json:"s3-prefix"`

	// Drop root permissions once the listener is bound.
	User  string `json:"user"`
	Group string `json:"group"`

	LogLevel string `json:"log-level"`
}

// Default holds the same role as cc-backend's package-level
// programConfig: sane defaults, selectively overwritten by flags and
// then by the config file, whose values win over flags for any field
// it sets.
var Default = ProgramConfig{
	Addr:                  ":6380",
	MetricsAddr:           "",
	MaxConnections:        1024,
	AOFPath:               "",
	AOFFsync:              "everysec",
	EvictionInterval:      "1s",
	AOFCompactionInterval: "1h",
	LogLevel:              "info",
}

// Flags holds the command-line options that are not part of
// ProgramConfig: the config-file path, the .env path, and the gops
// switch. All other flags are bound directly into the returned config.
type Flags struct {
	ConfigFile string
	EnvFile    string
	Gops       bool
}

// ParseFlags registers the command-line flags against the default
// flag.CommandLine and parses os.Args[1:], returning both the flag
// values and the config (flags applied, config file not yet loaded).
func ParseFlags() (Flags, *ProgramConfig) {
	cfg := Default
	var f Flags

	flag.StringVar(&f.ConfigFile, "config", "", "Overwrite the default options by those specified in `config.json`")
	flag.StringVar(&f.EnvFile, "env", "./.env", "Load environment variables from `file` before parsing the config")
	flag.BoolVar(&f.Gops, "gops", false, "Listen via github.com/google/gops/agent (for debugging)")

	flag.StringVar(&cfg.Addr, "addr", cfg.Addr, "TCP address the key-value server listens on")
	flag.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "HTTP address the admin/introspection endpoint listens on (empty disables it)")
	flag.IntVar(&cfg.MaxConnections, "max-connections", cfg.MaxConnections, "Maximum number of concurrent client connections")
	flag.StringVar(&cfg.AOFPath, "aof-path", cfg.AOFPath, "Path to the append-only durability log (empty disables persistence)")
	flag.StringVar(&cfg.AOFFsync, "aof-fsync", cfg.AOFFsync, "Fsync policy for the durability log: always, everysec, or no")
	flag.StringVar(&cfg.EvictionInterval, "eviction-interval", cfg.EvictionInterval, "Interval between background expired-key sweeps")
	flag.StringVar(&cfg.AOFCompactionInterval, "aof-compaction-interval", cfg.AOFCompactionInterval, "Interval between scheduled durability-log rotations (empty disables it)")
	flag.StringVar(&cfg.S3Bucket, "s3-bucket", cfg.S3Bucket, "Optional S3 bucket the durability log is mirrored to")
	flag.StringVar(&cfg.S3Prefix, "s3-prefix", cfg.S3Prefix, "Key prefix used for S3 durability-log mirroring")
	flag.StringVar(&cfg.User, "user", cfg.User, "Drop root privileges to this user once the listener is bound")
	flag.StringVar(&cfg.Group, "group", cfg.Group, "Drop root privileges to this group once the listener is bound")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, notice, warn, err, or crit")
	flag.Parse()

	return f, &cfg
}

// LoadEnvFile loads file's KEY=VALUE lines into the process environment
// using godotenv, tolerating a missing file the same way cc-backend's
// main() tolerates a missing ./.env.
func LoadEnvFile(file string) error {
	if err := godotenv.Load(file); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return nil
}

// LoadConfigFile reads path (if non-empty) as JSON and merges it onto
// cfg, the way cc-backend decodes config.json onto programConfig.
// Unknown fields are rejected so typos in the config file surface
// immediately instead of silently no-oping.
func LoadConfigFile(path string, cfg *ProgramConfig) error {
	if path == "" {
		return nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	if err := Validate(configSchema, raw); err != nil {
		return err
	}

	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.DisallowUnknownFields()
	return dec.Decode(cfg)
}

// Validate checks instance against the JSON schema in schema, the same
// two-step compile-then-validate cc-backend's internal/config.Validate
// performs, but returning the error instead of aborting the process so
// callers can report it through normal error handling.
func Validate(schema string, instance []byte) error {
	sch, err := jsonschema.CompileString("config.schema.json", schema)
	if err != nil {
		return fmt.Errorf("compiling embedded config schema: %w", err)
	}

	var v any
	if err := json.Unmarshal(instance, &v); err != nil {
		return fmt.Errorf("config file is not valid JSON: %w", err)
	}

	if err := sch.Validate(v); err != nil {
		return fmt.Errorf("config file failed schema validation: %w", err)
	}
	return nil
}
