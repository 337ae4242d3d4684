// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package middleware

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

type CompressionAlgorithm int

const (
	AlgorithmNone CompressionAlgorithm = iota
	AlgorithmGzip
	AlgorithmBrotli
	AlgorithmZstd
)

// compressionWriter buffers until minSize bytes are seen so small JSON bodies
// go out uncompressed.
type compressionWriter struct {
	http.ResponseWriter
	algorithm CompressionAlgorithm
	level     int
	minSize   int
	status    int
	buf       []byte
	writer    io.WriteCloser
	decided   bool
}

func (w *compressionWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
}

func (w *compressionWriter) Write(data []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	if w.decided {
		return w.out().Write(data)
	}

	w.buf = append(w.buf, data...)
	if len(w.buf) < w.minSize {
		return len(data), nil
	}
	if err := w.decide(true); err != nil {
		return 0, err
	}
	return len(data), nil
}

func (w *compressionWriter) out() io.Writer {
	if w.writer != nil {
		return w.writer
	}
	return w.ResponseWriter
}

// decide picks compressed or plain output and flushes the buffer.
func (w *compressionWriter) decide(large bool) error {
	w.decided = true

	if large && compressible(w.Header().Get("Content-Type")) && w.Header().Get("Content-Encoding") == "" {
		w.Header().Del("Content-Length")
		switch w.algorithm {
		case AlgorithmZstd:
			enc, err := zstd.NewWriter(w.ResponseWriter, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(w.level)))
			if err == nil {
				w.Header().Set("Content-Encoding", "zstd")
				w.writer = enc
			}
		case AlgorithmBrotli:
			w.Header().Set("Content-Encoding", "br")
			w.writer = brotli.NewWriterLevel(w.ResponseWriter, w.level)
		case AlgorithmGzip:
			gz, err := gzip.NewWriterLevel(w.ResponseWriter, w.level)
			if err == nil {
				w.Header().Set("Content-Encoding", "gzip")
				w.writer = gz
			}
		}
	}

	w.ResponseWriter.WriteHeader(w.status)
	if len(w.buf) == 0 {
		return nil
	}
	_, err := w.out().Write(w.buf)
	w.buf = nil
	return err
}

func (w *compressionWriter) finish() error {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	if !w.decided {
		if err := w.decide(false); err != nil {
			return err
		}
	}
	if w.writer != nil {
		return w.writer.Close()
	}
	return nil
}

func compressible(contentType string) bool {
	return strings.Contains(contentType, "text/") ||
		strings.Contains(contentType, "application/json") ||
		strings.Contains(contentType, "application/yaml")
}

// negotiateAlgorithm prefers zstd, then brotli, then gzip.
func negotiateAlgorithm(acceptEncoding string) CompressionAlgorithm {
	encodings := parseAcceptEncoding(acceptEncoding)
	switch {
	case encodings["zstd"] > 0:
		return AlgorithmZstd
	case encodings["br"] > 0:
		return AlgorithmBrotli
	case encodings["gzip"] > 0:
		return AlgorithmGzip
	}
	return AlgorithmNone
}

func parseAcceptEncoding(acceptEncoding string) map[string]float64 {
	encodings := make(map[string]float64)

	for part := range strings.SplitSeq(acceptEncoding, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		encoding, params, _ := strings.Cut(part, ";")
		encoding = strings.ToLower(strings.TrimSpace(encoding))
		q := 1.0
		if v, ok := strings.CutPrefix(strings.TrimSpace(params), "q="); ok {
			if parsed, err := strconv.ParseFloat(v, 64); err == nil {
				q = parsed
			}
		}

		if encoding == "*" {
			for _, e := range []string{"zstd", "br", "gzip"} {
				if _, set := encodings[e]; !set {
					encodings[e] = q
				}
			}
			continue
		}
		encodings[encoding] = q
	}

	return encodings
}

// SelectiveCompress compresses responses of at least minSize bytes using the
// best algorithm the client accepts.
func SelectiveCompress(minSize, level int) func(http.Handler) http.Handler {
	level = min(max(level, 1), 9)
	if minSize < 0 {
		minSize = 1024
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			algorithm := negotiateAlgorithm(r.Header.Get("Accept-Encoding"))
			if algorithm == AlgorithmNone {
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Add("Vary", "Accept-Encoding")
			wrapped := &compressionWriter{
				ResponseWriter: w,
				algorithm:      algorithm,
				level:          level,
				minSize:        minSize,
			}
			next.ServeHTTP(wrapped, r)
			_ = wrapped.finish()
		})
	}
}
