// Package objectstore wraps the MinIO client for the two artifact
// families the platform persists: sanitised PDFs under documents/ and
// brotli-compressed extracted text under text/.
package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"

	"document-archive-platform/internal/logger"
	"document-archive-platform/utils"
)

const (
	documentPrefix = "documents/"
	textPrefix     = "text/"

	// presignExpiry bounds how long a presigned download link stays valid.
	presignExpiry = 15 * time.Minute
)

// Store persists binary artifacts in a single bucket.
type Store struct {
	client *minio.Client
	bucket string
}

// NewStore wraps an initialised MinIO client.
func NewStore(client *minio.Client, bucket string) *Store {
	return &Store{client: client, bucket: bucket}
}

// EnsureBucket creates the bucket when it does not exist yet.
func (s *Store) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w", s.bucket, err)
	}
	logger.Logger.Info("created object storage bucket", "bucket", s.bucket)
	return nil
}

// Health verifies the store answers API calls.
func (s *Store) Health(ctx context.Context) error {
	if _, err := s.client.BucketExists(ctx, s.bucket); err != nil {
		return fmt.Errorf("object store unreachable: %w", err)
	}
	return nil
}

// DocumentKey is the object key for a sanitised PDF.
func DocumentKey(fileUUID string) string {
	return documentPrefix + fileUUID + ".pdf"
}

// TextKey is the object key for a compressed text artifact.
func TextKey(fileUUID string) string {
	return textPrefix + fileUUID + ".txt.br"
}

// FileUUID recovers the uuid from a PDF object key, or "" when the key
// has a different shape.
func FileUUID(documentKey string) string {
	if !strings.HasPrefix(documentKey, documentPrefix) || !strings.HasSuffix(documentKey, ".pdf") {
		return ""
	}
	return strings.TrimSuffix(strings.TrimPrefix(documentKey, documentPrefix), ".pdf")
}

// ArtifactKeys lists every object key belonging to one stored document,
// derived from its PDF key. Used when a document is purged.
func ArtifactKeys(documentKey string) []string {
	keys := []string{documentKey}
	if fileUUID := FileUUID(documentKey); fileUUID != "" {
		keys = append(keys, TextKey(fileUUID))
	}
	return keys
}

// PutDocument stores a sanitised PDF and returns its object key.
func (s *Store) PutDocument(ctx context.Context, fileUUID string, pdf []byte) (string, error) {
	key := DocumentKey(fileUUID)
	_, err := s.client.PutObject(ctx, s.bucket, key,
		bytes.NewReader(pdf), int64(len(pdf)),
		minio.PutObjectOptions{ContentType: "application/pdf"})
	if err != nil {
		return "", utils.WrapError(utils.KindInternal, "store document", err)
	}
	return key, nil
}

// GetObject streams an object from the bucket. The caller must close the
// returned reader.
func (s *Store) GetObject(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, 0, utils.WrapError(utils.KindInternal, "open object", err)
	}
	stat, err := obj.Stat()
	if err != nil {
		obj.Close()
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" {
			return nil, 0, utils.NewError(utils.KindNotFound, "stored file not found")
		}
		return nil, 0, utils.WrapError(utils.KindInternal, "stat object", err)
	}
	return obj, stat.Size, nil
}

// PresignedGetURL returns a time-limited direct link for an object.
// Lets moderators fetch documents the public download route does not
// serve yet.
func (s *Store) PresignedGetURL(ctx context.Context, key string) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, presignExpiry, url.Values{})
	if err != nil {
		return "", utils.WrapError(utils.KindInternal, "presign object url", err)
	}
	return u.String(), nil
}

// DeleteObject removes an object; missing keys are not an error so the
// purge worker can retry safely.
func (s *Store) DeleteObject(ctx context.Context, key string) error {
	if strings.TrimSpace(key) == "" {
		return nil
	}
	err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{})
	if err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" {
			return nil
		}
		return utils.WrapError(utils.KindInternal, "delete object", err)
	}
	return nil
}

// PutTextArtifact compresses extracted text with brotli and stores it
// alongside the PDF.
func (s *Store) PutTextArtifact(ctx context.Context, fileUUID, text string) (string, error) {
	compressed, err := utils.CompressText(text)
	if err != nil {
		return "", utils.WrapError(utils.KindInternal, "compress text artifact", err)
	}
	key := TextKey(fileUUID)
	_, err = s.client.PutObject(ctx, s.bucket, key,
		bytes.NewReader(compressed), int64(len(compressed)),
		minio.PutObjectOptions{ContentType: "application/octet-stream"})
	if err != nil {
		return "", utils.WrapError(utils.KindInternal, "store text artifact", err)
	}
	return key, nil
}

// GetTextArtifact fetches and decompresses a stored text artifact.
func (s *Store) GetTextArtifact(ctx context.Context, fileUUID string) (string, error) {
	rc, _, err := s.GetObject(ctx, TextKey(fileUUID))
	if err != nil {
		return "", err
	}
	defer rc.Close()

	compressed, err := io.ReadAll(rc)
	if err != nil {
		return "", utils.WrapError(utils.KindInternal, "read text artifact", err)
	}
	text, err := utils.DecompressText(compressed)
	if err != nil {
		return "", utils.WrapError(utils.KindInternal, "decompress text artifact", err)
	}
	return text, nil
}
