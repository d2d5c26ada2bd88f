package utils

import (
	"bytes"
	"fmt"
	"io"

	"github.com/andybalholm/brotli"
)

// brotliTextQuality trades speed for ratio on large OCR text blobs.
const brotliTextQuality = 6

// CompressText brotli-compresses a UTF-8 text blob for object-store artefacts.
func CompressText(text string) ([]byte, error) {
	var buf bytes.Buffer
	writer := brotli.NewWriterLevel(&buf, brotliTextQuality)
	if _, err := writer.Write([]byte(text)); err != nil {
		return nil, fmt.Errorf("failed to write to brotli writer: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close brotli writer: %w", err)
	}
	return buf.Bytes(), nil
}

// DecompressText reverses CompressText.
func DecompressText(compressed []byte) (string, error) {
	reader := brotli.NewReader(bytes.NewReader(compressed))
	data, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("failed to read from brotli reader: %w", err)
	}
	return string(data), nil
}
