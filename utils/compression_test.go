package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompressTextRoundTrip(t *testing.T) {
	text := strings.Repeat("The committee met on Tuesday to review the findings. ", 200)

	compressed, err := CompressText(text)
	require.NoError(t, err)
	assert.Less(t, len(compressed), len(text), "repetitive OCR text should shrink")

	restored, err := DecompressText(compressed)
	require.NoError(t, err)
	assert.Equal(t, text, restored)
}

func TestCompressTextEmpty(t *testing.T) {
	compressed, err := CompressText("")
	require.NoError(t, err)

	restored, err := DecompressText(compressed)
	require.NoError(t, err)
	assert.Equal(t, "", restored)
}
