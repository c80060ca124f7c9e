// Galdcup - Rotating Community Survey Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galdcup

// Package objectstore uploads rendered charts to an S3-compatible bucket so
// announcements and the archive can link to them.
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"github.com/tomtom215/galdcup/internal/config"
	"github.com/tomtom215/galdcup/internal/metrics"
)

// presignTTL is the S3 maximum for SigV4 presigned URLs.
const presignTTL = 7 * 24 * time.Hour

type putter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Client uploads chart images.
type Client struct {
	bucket     string
	prefix     string
	publicBase string
	s3         putter
	presign    *s3.PresignClient
	logger     zerolog.Logger
}

// New builds a client from configuration. Static credentials are used when
// both keys are set, otherwise the default AWS credential chain applies.
// A custom endpoint switches to path-style addressing for MinIO and similar.
func New(ctx context.Context, cfg config.ObjectStoreConfig, logger zerolog.Logger) (*Client, error) {
	if cfg.Region == "" || cfg.Bucket == "" {
		return nil, errors.New("s3 region and bucket are required")
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &Client{
		bucket:     cfg.Bucket,
		prefix:     strings.Trim(cfg.Prefix, "/"),
		publicBase: strings.TrimRight(cfg.PublicBase, "/"),
		s3:         s3Client,
		presign:    s3.NewPresignClient(s3Client),
		logger:     logger.With().Str("component", "objectstore").Logger(),
	}, nil
}

// Key returns the object key for a survey chart.
func (c *Client) Key(surveyID int64, name string) string {
	return path.Join(c.prefix, fmt.Sprintf("%d", surveyID), name)
}

// UploadPNG stores a PNG and returns a URL for it: the public URL when a
// public base is configured, otherwise a presigned GET URL.
func (c *Client) UploadPNG(ctx context.Context, surveyID int64, name string, data []byte) (string, error) {
	if c == nil {
		return "", errors.New("object store not configured")
	}
	key := c.Key(surveyID, name)
	start := time.Now()

	_, err := c.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(c.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String("image/png"),
		ContentLength: aws.Int64(int64(len(data))),
	})
	metrics.RecordCollaboratorCall("s3", "put_object", time.Since(start), err)
	if err != nil {
		return "", fmt.Errorf("put %s: %w", key, err)
	}

	url, err := c.FileURL(ctx, key)
	if err != nil {
		return "", err
	}
	c.logger.Debug().Str("key", key).Int("bytes", len(data)).Msg("Uploaded chart")
	return url, nil
}

// FileURL returns a URL for key.
func (c *Client) FileURL(ctx context.Context, key string) (string, error) {
	if c.publicBase != "" {
		return c.publicBase + "/" + key, nil
	}
	if c.presign == nil {
		return "", errors.New("no public base and no presign client")
	}
	req, err := c.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	}, func(po *s3.PresignOptions) {
		po.Expires = presignTTL
	})
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}
	return req.URL, nil
}
