package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/regulacao-api/internal/model"
	apperrors "github.com/jwalitptl/regulacao-api/pkg/errors"
)

var (
	pdfBytes = []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\ntrailer\n%%EOF\n")
	pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00\x1f\x15\xc4\x89")
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	obj, err := s.Put(ctx, "a/b.pdf", strings.NewReader("hello"), 5, "application/pdf")
	require.NoError(t, err)
	assert.Equal(t, int64(5), obj.Size)

	rc, got, err := s.Get(ctx, "a/b.pdf")
	require.NoError(t, err)
	defer rc.Close()
	body, _ := io.ReadAll(rc)
	assert.Equal(t, "hello", string(body))
	assert.Equal(t, "application/pdf", got.ContentType)

	require.NoError(t, s.Delete(ctx, "a/b.pdf"))
	_, _, err = s.Get(ctx, "a/b.pdf")
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestUploaderDetect(t *testing.T) {
	u := NewUploader(NewMemoryStore(), 1024)

	ct, ext, err := u.Detect(&model.FileUpload{FileName: "r.pdf", Data: pdfBytes})
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", ct)
	assert.Equal(t, ".pdf", ext)

	ct, ext, err = u.Detect(&model.FileUpload{FileName: "id.png", Data: pngBytes})
	require.NoError(t, err)
	assert.Equal(t, "image/png", ct)
	assert.Equal(t, ".png", ext)

	_, _, err = u.Detect(&model.FileUpload{FileName: "notes.txt", Data: []byte("plain text")})
	assert.True(t, apperrors.Is(err, apperrors.ErrValidation))

	_, _, err = u.Detect(&model.FileUpload{FileName: "big.pdf", Data: append(pdfBytes, make([]byte, 2048)...)})
	assert.True(t, apperrors.Is(err, apperrors.ErrValidation))

	_, _, err = u.Detect(nil)
	assert.True(t, apperrors.Is(err, apperrors.ErrValidation))
}

func TestUploaderKeys(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	u := NewUploader(store, 0)
	f := &model.FileUpload{FileName: "r.pdf", Data: pdfBytes}

	obj, err := u.PutPatientDocument(ctx, 7, model.DocumentFront, f)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(obj.Key, "patients/7/id-front/"))
	assert.True(t, strings.HasSuffix(obj.Key, ".pdf"))

	obj, err = u.PutResult(ctx, 42, f)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(obj.Key, "requests/42/result/"))

	obj, err = u.PutAttachment(ctx, f)
	require.NoError(t, err)
	assert.Contains(t, obj.Key, "/attachment/")
	assert.Len(t, store.Keys(), 3)
}

func TestUploaderStoreFailure(t *testing.T) {
	store := NewMemoryStore()
	store.FailPut = func(string) error { return errors.New("disk full") }
	u := NewUploader(store, 0)

	_, err := u.PutAdditionalDocument(context.Background(), 1, &model.FileUpload{Data: pdfBytes})
	assert.EqualError(t, err, "disk full")
	assert.Empty(t, store.Keys())
}
