// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package aof

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/rfs-go/rfs-go/log"
)

// S3Mirror periodically uploads a snapshot of the durability log to an
// S3-compatible bucket, grounded on pkg/archive/parquet's S3Target:
// same client construction, same "load default config, then put
// object" shape, applied here to the AOF file instead of a parquet
// blob.
type S3Mirror struct {
	client *s3.Client
	bucket string
	key    string
	path   string
}

// NewS3Mirror builds a mirror for the log at logPath, uploading to
// bucket under keyPrefix/<basename>.
func NewS3Mirror(ctx context.Context, bucket, keyPrefix, logPath string) (*S3Mirror, error) {
	if bucket == "" {
		return nil, fmt.Errorf("aof: S3 mirror requires a bucket name")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("aof: S3 mirror: load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg)
	return &S3Mirror{
		client: client,
		bucket: bucket,
		key:    path.Join(keyPrefix, path.Base(logPath)),
		path:   logPath,
	}, nil
}

// Upload pushes the current contents of the log file to S3.
func (m *S3Mirror) Upload(ctx context.Context) error {
	data, err := os.ReadFile(m.path)
	if err != nil {
		return fmt.Errorf("aof: S3 mirror: reading %q: %w", m.path, err)
	}

	_, err = m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(m.bucket),
		Key:         aws.String(m.key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/octet-stream"),
	})
	if err != nil {
		return fmt.Errorf("aof: S3 mirror: put object %q: %w", m.key, err)
	}
	return nil
}

// RunPeriodicUpload mirrors the log to S3 on a fixed interval until
// ctx is cancelled, logging (but not panicking on) upload failures —
// a transient S3 outage must never take down the key-value server.
func (m *S3Mirror) RunPeriodicUpload(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.Upload(ctx); err != nil {
				log.Errorf("aof: S3 mirror upload failed: %s", err.Error())
			}
		}
	}
}
