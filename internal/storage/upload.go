package storage

import (
	"bytes"
	"context"
	"fmt"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/jwalitptl/regulacao-api/internal/model"
	apperrors "github.com/jwalitptl/regulacao-api/pkg/errors"
)

// DefaultMaxSize applies when no limit is configured.
const DefaultMaxSize = 10 << 20

var allowedTypes = []string{"application/pdf", "image/jpeg", "image/png", "image/webp"}

// Uploader validates uploads and writes them under the canonical keys.
type Uploader struct {
	store   Store
	maxSize int64
}

func NewUploader(store Store, maxSize int64) *Uploader {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Uploader{store: store, maxSize: maxSize}
}

func (u *Uploader) Store() Store {
	return u.store
}

// Detect sniffs the content and returns the MIME type and extension,
// rejecting anything outside the allowed set or over the size limit.
func (u *Uploader) Detect(f *model.FileUpload) (string, string, error) {
	if f.Empty() {
		return "", "", apperrors.Validation("file is empty")
	}
	if int64(len(f.Data)) > u.maxSize {
		return "", "", apperrors.Validation(
			fmt.Sprintf("file %s exceeds the %d byte limit", f.FileName, u.maxSize))
	}
	mt := mimetype.Detect(f.Data)
	for _, allowed := range allowedTypes {
		if mt.Is(allowed) {
			return allowed, mt.Extension(), nil
		}
	}
	return "", "", apperrors.Validation(
		fmt.Sprintf("file %s has unsupported type %s", f.FileName, mt.String()),
		"allowed: pdf, jpeg, png, webp")
}

func (u *Uploader) put(ctx context.Context, prefix string, f *model.FileUpload) (Object, error) {
	contentType, ext, err := u.Detect(f)
	if err != nil {
		return Object{}, err
	}
	key := prefix + "/" + uuid.NewString() + ext
	return u.store.Put(ctx, key, bytes.NewReader(f.Data), int64(len(f.Data)), contentType)
}

func (u *Uploader) PutPatientDocument(ctx context.Context, patientID int64, side model.DocumentSide, f *model.FileUpload) (Object, error) {
	return u.put(ctx, fmt.Sprintf("patients/%d/id-%s", patientID, side), f)
}

// PutAttachment stages an intake attachment before its request row exists.
func (u *Uploader) PutAttachment(ctx context.Context, f *model.FileUpload) (Object, error) {
	return u.put(ctx, "requests/"+uuid.NewString()+"/attachment", f)
}

func (u *Uploader) PutAdditionalDocument(ctx context.Context, requestID int64, f *model.FileUpload) (Object, error) {
	return u.put(ctx, fmt.Sprintf("requests/%d/additional", requestID), f)
}

func (u *Uploader) PutResult(ctx context.Context, requestID int64, f *model.FileUpload) (Object, error) {
	return u.put(ctx, fmt.Sprintf("requests/%d/result", requestID), f)
}
