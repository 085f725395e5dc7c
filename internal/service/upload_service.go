package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/donor-reports-dashboard/internal/models"
	appErrors "github.com/noah-isme/donor-reports-dashboard/pkg/errors"
	"github.com/noah-isme/donor-reports-dashboard/pkg/storage"
)

// Upload outcomes.
const (
	UploadAccepted  = "accepted"
	UploadRejected  = "rejected"
	UploadSubmitted = "submitted"
	UploadFailed    = "failed"
)

const mimeOctetStream = "application/octet-stream"

var extensionMIMEs = map[string]string{
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".xls":  "application/vnd.ms-excel",
	".csv":  "text/csv",
}

type stagingStore interface {
	Stage(key string, r io.Reader, limit int64) (int64, error)
	Open(key string) (*os.File, error)
	Discard(key string) error
	PurgeOlderThan(ttl time.Duration, keep func(key string) bool) ([]string, error)
}

type reportUploader interface {
	Upload(ctx context.Context, filename, mimeType string, content io.Reader) (*models.UploadResult, error)
}

type uploadRecorder interface {
	RecordUpload(outcome string)
}

// FileUpload is a file as received from the drop zone.
type FileUpload struct {
	Filename     string
	Size         int64
	DeclaredType string
	Content      io.Reader
}

type fileDescriptor struct {
	Name     string `validate:"required"`
	MimeType string `validate:"spreadsheet_mime"`
}

// UploadServiceConfig holds validation and staging parameters.
type UploadServiceConfig struct {
	MaxFileSize  int64
	AllowedMIMEs []string
	StagingTTL   time.Duration
}

// UploadService validates spreadsheets, stages them and submits them to the backend.
type UploadService struct {
	staging   stagingStore
	uploader  reportUploader
	metrics   uploadRecorder
	validator *validator.Validate
	logger    *zap.Logger
	cfg       UploadServiceConfig
	mimeSet   map[string]struct{}
	now       func() time.Time
}

// NewUploadService constructs the service with defaults.
func NewUploadService(staging stagingStore, uploader reportUploader, metrics uploadRecorder, validate *validator.Validate, logger *zap.Logger, cfg UploadServiceConfig) *UploadService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = 5 * 1024 * 1024
	}
	if len(cfg.AllowedMIMEs) == 0 {
		for _, mt := range extensionMIMEs {
			cfg.AllowedMIMEs = append(cfg.AllowedMIMEs, mt)
		}
	}
	if cfg.StagingTTL <= 0 {
		cfg.StagingTTL = time.Hour
	}
	mimeSet := make(map[string]struct{}, len(cfg.AllowedMIMEs))
	for _, mt := range cfg.AllowedMIMEs {
		mimeSet[strings.ToLower(mt)] = struct{}{}
	}
	svc := &UploadService{
		staging:   staging,
		uploader:  uploader,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
		mimeSet:   mimeSet,
		now:       time.Now,
	}
	_ = svc.validator.RegisterValidation("spreadsheet_mime", func(fl validator.FieldLevel) bool {
		_, ok := svc.mimeSet[strings.ToLower(fl.Field().String())]
		return ok
	})
	return svc
}

// ResolveMIME returns the declared type, falling back to the extension when
// the declaration is missing or generic.
func ResolveMIME(declared, filename string) string {
	mt := strings.ToLower(strings.TrimSpace(declared))
	if i := strings.Index(mt, ";"); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	if mt != "" && mt != mimeOctetStream {
		return mt
	}
	return extensionMIMEs[strings.ToLower(filepath.Ext(filename))]
}

// Accept validates the file and stages it. Nothing is sent to the backend.
func (s *UploadService) Accept(upload FileUpload) (*models.PendingFile, error) {
	desc := fileDescriptor{
		Name:     filepath.Base(strings.TrimSpace(upload.Filename)),
		MimeType: ResolveMIME(upload.DeclaredType, upload.Filename),
	}
	if upload.Content == nil || desc.Name == "." || desc.Name == "/" {
		desc.Name = ""
	}
	if err := s.validator.Struct(desc); err != nil {
		s.record(UploadRejected)
		return nil, s.descriptorError(err)
	}
	if upload.Size > s.cfg.MaxFileSize {
		s.record(UploadRejected)
		return nil, appErrors.ErrFileTooLarge
	}

	key := uuid.NewString() + strings.ToLower(filepath.Ext(desc.Name))
	written, err := s.staging.Stage(key, upload.Content, s.cfg.MaxFileSize)
	if err != nil {
		if errors.Is(err, storage.ErrTooLarge) {
			s.record(UploadRejected)
			return nil, appErrors.ErrFileTooLarge
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to stage upload")
	}
	s.record(UploadAccepted)
	return &models.PendingFile{
		Name:       desc.Name,
		Size:       written,
		MimeType:   desc.MimeType,
		StagedAs:   key,
		SelectedAt: s.now().UTC(),
	}, nil
}

// Submit streams a staged file to the backend.
func (s *UploadService) Submit(ctx context.Context, file *models.PendingFile) (*models.UploadResult, error) {
	if file == nil {
		return nil, appErrors.ErrNoPendingFile
	}
	blob, err := s.staging.Open(file.StagedAs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "staged upload missing")
	}
	defer blob.Close() //nolint:errcheck

	result, err := s.uploader.Upload(ctx, file.Name, file.MimeType, blob)
	if err != nil {
		s.record(UploadFailed)
		s.logger.Sugar().Warnw("report upload failed", "file", file.Name, "error", err)
		return nil, err
	}
	s.record(UploadSubmitted)
	s.logger.Sugar().Infow("report upload accepted", "file", file.Name, "tasks", len(result.TaskIDs))
	return result, nil
}

// Discard removes the staged blob behind a pending file.
func (s *UploadService) Discard(file *models.PendingFile) {
	if file == nil {
		return
	}
	if err := s.staging.Discard(file.StagedAs); err != nil {
		s.logger.Sugar().Warnw("failed to discard staged upload", "file", file.Name, "error", err)
	}
}

// PurgeStale removes staged blobs older than the staging TTL unless inUse holds them.
func (s *UploadService) PurgeStale(inUse map[string]struct{}) {
	purged, err := s.staging.PurgeOlderThan(s.cfg.StagingTTL, func(key string) bool {
		_, ok := inUse[key]
		return ok
	})
	if err != nil {
		s.logger.Sugar().Warnw("staging purge failed", "error", err)
	}
	if len(purged) > 0 {
		s.logger.Sugar().Infow("purged stale staged uploads", "count", len(purged))
	}
}

func (s *UploadService) descriptorError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			if fe.Tag() == "required" {
				return appErrors.Clone(appErrors.ErrValidation, "file is required")
			}
		}
		return appErrors.ErrUnsupportedFileType
	}
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, fmt.Sprintf("invalid file: %v", err))
}

func (s *UploadService) record(outcome string) {
	if s.metrics != nil {
		s.metrics.RecordUpload(outcome)
	}
}
