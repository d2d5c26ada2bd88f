package routes

import (
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"document-archive-platform/internal/config"
	"document-archive-platform/middleware"
	"document-archive-platform/services"
	"document-archive-platform/utils"
)

// SetupUploadRoutes registers the anonymous intake endpoints.
func SetupUploadRoutes(router *gin.Engine, uploadService *services.UploadService,
	captcha *services.CaptchaVerifier, rdb *redis.Client, cfg *config.Config) {

	limiter := middleware.UploadBucketLimiter(rdb, cfg.UploadRateWindowSecs)

	// One megabyte of slack covers the metadata fields and multipart
	// framing around the files themselves.
	const formSlack = int64(1 << 20)
	singleCap := cfg.MaxFileSize + formSlack
	multiCap := int64(cfg.MaxFilesPerUpload)*cfg.MaxFileSize + formSlack

	router.POST("/upload", middleware.RequestSizeLimit(singleCap), limiter,
		HandleUpload(uploadService, captcha, cfg))
	router.POST("/upload-multiple", middleware.RequestSizeLimit(multiCap), limiter,
		HandleUploadMultiple(uploadService, captcha, cfg))
}

// HandleUpload accepts one multipart file plus its metadata.
func HandleUpload(uploadService *services.UploadService, captcha *services.CaptchaVerifier, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !verifyCaptcha(c, captcha) {
			return
		}

		fileHeader, err := c.FormFile("file")
		if err != nil {
			utils.RespondWithBadRequest(c, "file field is required", nil)
			return
		}
		if fileHeader.Size > cfg.MaxFileSize {
			utils.RespondWithError(c, http.StatusRequestEntityTooLarge,
				string(utils.KindInputInvalid), "file exceeds the maximum upload size", gin.H{
					"max_bytes": cfg.MaxFileSize,
				})
			return
		}

		data, err := readUploadFile(fileHeader)
		if err != nil {
			utils.RespondWithBadRequest(c, "failed to read uploaded file", nil)
			return
		}

		result, err := uploadService.Ingest(c.Request.Context(), &services.UploadRequest{
			Filename:    fileHeader.Filename,
			Data:        data,
			Title:       c.PostForm("title"),
			Country:     c.PostForm("country"),
			State:       c.PostForm("state"),
			Description: c.PostForm("description"),
			Language:    c.PostForm("document_language"),
		})
		if err != nil {
			utils.RespondWithArchiveError(c, err)
			return
		}
		c.JSON(http.StatusCreated, result)
	}
}

// HandleUploadMultiple accepts up to the configured number of files in
// one call and reports per-file outcomes.
func HandleUploadMultiple(uploadService *services.UploadService, captcha *services.CaptchaVerifier, cfg *config.Config) gin.HandlerFunc {
	type fileError struct {
		Filename string `json:"filename"`
		Error    string `json:"error"`
	}
	return func(c *gin.Context) {
		if !verifyCaptcha(c, captcha) {
			return
		}

		form, err := c.MultipartForm()
		if err != nil {
			utils.RespondWithBadRequest(c, "multipart form is required", nil)
			return
		}
		files := form.File["files"]
		if len(files) == 0 {
			utils.RespondWithBadRequest(c, "files field is required", nil)
			return
		}
		if len(files) > cfg.MaxFilesPerUpload {
			utils.RespondWithBadRequest(c, "too many files in one call", gin.H{
				"max_files": cfg.MaxFilesPerUpload,
			})
			return
		}

		var results []interface{}
		var failures []fileError
		for _, fileHeader := range files {
			if fileHeader.Size > cfg.MaxFileSize {
				failures = append(failures, fileError{
					Filename: fileHeader.Filename,
					Error:    "file exceeds the maximum upload size",
				})
				continue
			}
			data, err := readUploadFile(fileHeader)
			if err != nil {
				failures = append(failures, fileError{Filename: fileHeader.Filename, Error: "unreadable file"})
				continue
			}

			result, err := uploadService.Ingest(c.Request.Context(), &services.UploadRequest{
				Filename:    fileHeader.Filename,
				Data:        data,
				Title:       c.PostForm("title"),
				Country:     c.PostForm("country"),
				State:       c.PostForm("state"),
				Description: c.PostForm("description"),
				Language:    c.PostForm("document_language"),
			})
			if err != nil {
				failures = append(failures, fileError{Filename: fileHeader.Filename, Error: err.Error()})
				continue
			}
			results = append(results, result)
		}

		status := http.StatusCreated
		if len(results) == 0 {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{
			"uploaded": len(results),
			"failed":   len(failures),
			"results":  results,
			"errors":   failures,
		})
	}
}

// verifyCaptcha gates anonymous uploads; API-key callers skip it. A
// false return means the response has already been written.
func verifyCaptcha(c *gin.Context, captcha *services.CaptchaVerifier) bool {
	if middleware.IsAPIKeyAuthorized(c) {
		return true
	}
	if !captcha.Enabled() {
		return true
	}
	if captcha.Verify(c.Request.Context(), c.PostForm("captcha_token")) {
		return true
	}
	utils.RespondWithArchiveError(c,
		utils.NewError(utils.KindSecurityRejected, "captcha verification failed"))
	return false
}

func readUploadFile(fileHeader *multipart.FileHeader) ([]byte, error) {
	f, err := fileHeader.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}
