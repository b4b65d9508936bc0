// Copyright 2026 The Quasar Authors
// SPDX-License-Identifier: Apache-2.0

package uploader

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/klauspost/compress/zstd"
)

// Shipper sends one encoded telemetry batch to the collection
// endpoint. The uploader depends on this interface so tests can
// substitute a fake without a real HTTP server.
type Shipper interface {
	Ship(ctx context.Context, batch []byte) error
}

// zstdEncoder is reused across ships to avoid repeated initialization
// overhead. zstd.Encoder is safe for concurrent use via EncodeAll.
var zstdEncoder *zstd.Encoder

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
	)
	if err != nil {
		panic("uploader: zstd encoder initialization failed: " + err.Error())
	}
}

// HTTPShipper POSTs zstd-compressed CBOR batches to a fixed endpoint.
type HTTPShipper struct {
	endpoint string
	client   *http.Client
}

// NewHTTPShipper creates a shipper targeting the given endpoint URL.
// The client timeout is a safety net behind the per-ship context.
func NewHTTPShipper(endpoint string) *HTTPShipper {
	return &HTTPShipper{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

// Ship compresses the batch and POSTs it. Any non-2xx status is an
// error; the caller decides whether the batch is worth retrying.
func (s *HTTPShipper) Ship(ctx context.Context, batch []byte) error {
	compressed := zstdEncoder.EncodeAll(batch, nil)

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(compressed))
	if err != nil {
		return fmt.Errorf("uploader: building request: %w", err)
	}
	request.Header.Set("Content-Type", "application/cbor")
	request.Header.Set("Content-Encoding", "zstd")

	response, err := s.client.Do(request)
	if err != nil {
		return fmt.Errorf("uploader: posting batch: %w", err)
	}
	defer response.Body.Close()

	// Drain so the connection can be reused.
	io.Copy(io.Discard, io.LimitReader(response.Body, 4096))

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return fmt.Errorf("uploader: endpoint returned %s", response.Status)
	}
	return nil
}
