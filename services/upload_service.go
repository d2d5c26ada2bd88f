package services

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"document-archive-platform/internal/catalog"
	"document-archive-platform/internal/logger"
	"document-archive-platform/internal/objectstore"
	"document-archive-platform/internal/telemetry"
	"document-archive-platform/models"
	"document-archive-platform/utils"
)

const (
	maxTitleLength       = 500
	maxDescriptionLength = 5000
)

// UploadRequest is one file plus its declared metadata.
type UploadRequest struct {
	Filename    string
	Data        []byte
	Title       string
	Country     string
	State       string
	Description string
	Language    string
}

// UploadService turns raw uploads into pending catalog rows backed by
// sanitised PDFs in the object store.
type UploadService struct {
	store       *catalog.Store
	objects     *objectstore.Store
	sanitizer   *SanitizeService
	metrics     *telemetry.Metrics
	maxFileSize int64
}

func NewUploadService(store *catalog.Store, objects *objectstore.Store,
	sanitizer *SanitizeService, metrics *telemetry.Metrics, maxFileSize int64) *UploadService {
	return &UploadService{
		store:       store,
		objects:     objects,
		sanitizer:   sanitizer,
		metrics:     metrics,
		maxFileSize: maxFileSize,
	}
}

// Ingest validates, sanitises and stores one upload. The document row
// starts pending; nothing is public until a moderator approves.
func (s *UploadService) Ingest(ctx context.Context, req *UploadRequest) (*models.UploadResult, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}

	result, err := s.sanitizer.Sanitize(ctx, req.Filename, req.Data)
	if err != nil {
		return nil, err
	}

	language := NormalizeDocumentLanguage(req.Language)
	if result.Language != "" {
		// Text-born uploads carry their own language verdict.
		language = result.Language
	}

	fileUUID := uuid.NewString()
	putCtx, cancel := utils.WithLongTimeout(ctx)
	fileKey, err := s.objects.PutDocument(putCtx, fileUUID, result.PDFData)
	cancel()
	if err != nil {
		return nil, utils.WrapError(utils.KindInternal, "failed to store document", err)
	}

	doc := &models.Document{
		Title:            req.Title,
		Country:          strings.TrimSpace(req.Country),
		State:            strings.TrimSpace(req.State),
		Description:      req.Description,
		OriginalFilename: req.Filename,
		FileSize:         int64(len(result.PDFData)),
		ContentType:      "application/pdf",
		FileKey:          fileKey,
		DocumentLanguage: language,
		ExtractedText:    result.ExtractedText,
	}
	id, err := s.store.CreateDocument(ctx, doc)
	if err != nil {
		// Do not leave an unreferenced blob behind.
		if delErr := s.objects.DeleteObject(ctx, fileKey); delErr != nil {
			logger.Logger.Warn("orphaned upload cleanup failed", "file_key", fileKey, "error", delErr)
		}
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordUpload(result.SourceKind)
	}
	logger.Logger.Info("upload accepted",
		"document_id", id, "filename", req.Filename, "source_kind", result.SourceKind,
		"language", language, "size", len(req.Data))

	return &models.UploadResult{
		DocumentID: id,
		FileURL:    fmt.Sprintf("/download/%d", id),
		FilePath:   fileKey,
		Message:    "document received and awaiting review",
	}, nil
}

func (s *UploadService) validate(req *UploadRequest) error {
	req.Filename = strings.TrimSpace(req.Filename)
	if req.Filename == "" {
		return utils.NewError(utils.KindInputInvalid, "filename is required")
	}
	if len(req.Data) == 0 {
		return utils.NewError(utils.KindInputInvalid, "file is empty")
	}
	if int64(len(req.Data)) > s.maxFileSize {
		return utils.NewError(utils.KindInputInvalid,
			fmt.Sprintf("file exceeds the maximum size of %d bytes", s.maxFileSize))
	}

	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		base := filepath.Base(req.Filename)
		req.Title = strings.TrimSuffix(base, filepath.Ext(base))
	}
	if len(req.Title) > maxTitleLength {
		req.Title = req.Title[:maxTitleLength]
	}
	if len(req.Description) > maxDescriptionLength {
		return utils.NewError(utils.KindInputInvalid,
			fmt.Sprintf("description must be at most %d characters", maxDescriptionLength))
	}
	return nil
}
