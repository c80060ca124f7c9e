// Galdcup - Rotating Community Survey Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galdcup

package objectstore

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"github.com/tomtom215/galdcup/internal/config"
)

type fakePutter struct {
	mu   sync.Mutex
	keys []string
	body []byte
	err  error
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.keys = append(f.keys, aws.ToString(in.Key))
	f.body, _ = io.ReadAll(in.Body)
	return &s3.PutObjectOutput{}, nil
}

func TestNewRequiresBucket(t *testing.T) {
	_, err := New(context.Background(), config.ObjectStoreConfig{Region: "us-east-1"}, zerolog.Nop())
	if err == nil {
		t.Fatal("New() without bucket should fail")
	}
}

func TestUploadPNGPublicBase(t *testing.T) {
	fp := &fakePutter{}
	c := &Client{bucket: "charts", prefix: "galdcup", publicBase: "https://cdn.example", s3: fp, logger: zerolog.Nop()}

	url, err := c.UploadPNG(context.Background(), 42, "results.png", []byte("png"))
	if err != nil {
		t.Fatalf("UploadPNG() error = %v", err)
	}
	if url != "https://cdn.example/galdcup/42/results.png" {
		t.Errorf("url = %q", url)
	}
	if len(fp.keys) != 1 || fp.keys[0] != "galdcup/42/results.png" {
		t.Errorf("keys = %v", fp.keys)
	}
	if string(fp.body) != "png" {
		t.Errorf("body = %q", fp.body)
	}
}

func TestUploadPNGError(t *testing.T) {
	c := &Client{bucket: "charts", s3: &fakePutter{err: errors.New("denied")}, publicBase: "https://cdn", logger: zerolog.Nop()}
	if _, err := c.UploadPNG(context.Background(), 1, "a.png", nil); err == nil {
		t.Error("UploadPNG() should surface the put error")
	}
}

func TestFileURLPresigned(t *testing.T) {
	c, err := New(context.Background(), config.ObjectStoreConfig{
		Region:    "us-east-1",
		Bucket:    "charts",
		AccessKey: "AKIDEXAMPLE",
		SecretKey: "secret",
		Endpoint:  "http://localhost:9000",
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	url, err := c.FileURL(context.Background(), c.Key(7, "clusters.png"))
	if err != nil {
		t.Fatalf("FileURL() error = %v", err)
	}
	if !strings.HasPrefix(url, "http://localhost:9000/charts/7/clusters.png?") {
		t.Errorf("url = %q, want path-style presigned URL", url)
	}
	if !strings.Contains(url, "X-Amz-Signature=") {
		t.Errorf("url = %q, want a signature", url)
	}
}

func TestNilClient(t *testing.T) {
	var c *Client
	if _, err := c.UploadPNG(context.Background(), 1, "a.png", nil); err == nil {
		t.Error("nil client should report not configured")
	}
}
