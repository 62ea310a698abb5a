// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config

// configSchema describes the optional JSON config file, in the same
// style as cc-backend's internal/memorystore/configSchema.go embedded
// metric-store schema: a plain JSON-Schema string compiled and checked
// with santhosh-tekuri/jsonschema at load time.
const configSchema = `{
	"type": "object",
	"description": "Configuration for the key-value server.",
	"properties": {
		"addr": {
			"description": "TCP address the key-value server listens on.",
			"type": "string"
		},
		"metrics-addr": {
			"description": "HTTP address the admin/introspection endpoint listens on. Empty disables it.",
			"type": "string"
		},
		"max-connections": {
			"description": "Maximum number of concurrent client connections.",
			"type": "integer",
			"minimum": 1
		},
		"aof-path": {
			"description": "Path to the append-only durability log. Empty disables persistence.",
			"type": "string"
		},
		"aof-fsync": {
			"description": "Fsync policy for the durability log: always, everysec, no (never is accepted as an alias of no); any other value falls back to everysec.",
			"type": "string"
		},
		"eviction-interval": {
			"description": "Interval between background expired-key sweeps, as a Go duration string.",
			"type": "string"
		},
		"aof-compaction-interval": {
			"description": "Interval between scheduled durability-log rotations, as a Go duration string. Empty disables scheduled compaction.",
			"type": "string"
		},
		"s3-bucket": {
			"description": "Optional S3 bucket the durability log is mirrored to.",
			"type": "string"
		},
		"s3-prefix": {
			"description": "Key prefix used for S3 durability-log mirroring.",
			"type": "string"
		},
		"user": {
			"description": "Drop root privileges to this user once the listener is bound.",
			"type": "string"
		},
		"group": {
			"description": "Drop root privileges to this group once the listener is bound.",
			"type": "string"
		},
		"log-level": {
			"description": "debug, info, notice, warn, err, or crit.",
			"type": "string"
		}
	}
}`
