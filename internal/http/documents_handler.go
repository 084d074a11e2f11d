package httpapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"time"

	"medease-realtime/internal/models"
	"medease-realtime/internal/repository"
	"medease-realtime/internal/storage"

	"go.uber.org/zap"
)

const maxDocumentSize = 20 << 20

// BlobStore 文档文件存储（storage.Client）
type BlobStore interface {
	Upload(ctx context.Context, objectPath, contentType string, data []byte) error
	Download(ctx context.Context, objectPath string) ([]byte, string, error)
	Remove(ctx context.Context, objectPath string) error
	SignedURL(ctx context.Context, objectPath string, expiresIn time.Duration) (string, error)
}

// DocumentsHandler 医疗文档：元数据在库，文件在对象存储
type DocumentsHandler struct {
	store  repository.Mutator
	blobs  BlobStore
	logger *zap.Logger
}

func NewDocumentsHandler(store repository.Mutator, blobs BlobStore, logger *zap.Logger) *DocumentsHandler {
	return &DocumentsHandler{store: store, blobs: blobs, logger: logger}
}

// GET /api/v1/documents
func (h *DocumentsHandler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}
	docs, err := h.store.ListDocuments(r.Context(), uid)
	if err != nil {
		h.logger.Error("Failed to list documents", zap.String("user_id", uid), zap.Error(err))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(docs))
}

// POST /api/v1/documents (multipart: file, document_type?, description?)
func (h *DocumentsHandler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxDocumentSize+1<<20)
	if err := r.ParseMultipartForm(maxDocumentSize); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid multipart form"))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("file is required"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxDocumentSize+1))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("failed to read file"))
		return
	}
	if len(data) > maxDocumentSize {
		writeJSON(w, http.StatusRequestEntityTooLarge, Fail(fmt.Sprintf("file exceeds %d bytes", maxDocumentSize)))
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	objectPath := storage.BlobPath(uid, header.Filename)
	if err := h.blobs.Upload(r.Context(), objectPath, contentType, data); err != nil {
		h.logger.Error("Failed to upload document", zap.String("user_id", uid), zap.Error(err))
		writeJSON(w, http.StatusBadGateway, Fail("failed to upload file to storage"))
		return
	}

	size := int64(len(data))
	in := models.CreateDocumentInput{
		FileName: header.Filename,
		FilePath: objectPath,
		FileSize: &size,
		FileType: &contentType,
	}
	if v := r.FormValue("document_type"); v != "" {
		in.DocumentType = &v
	}
	if v := r.FormValue("description"); v != "" {
		in.Description = &v
	}

	doc, err := h.store.CreateDocument(r.Context(), uid, in)
	if err != nil {
		// 元数据写入失败时回收已上传的文件
		if rmErr := h.blobs.Remove(context.Background(), objectPath); rmErr != nil {
			h.logger.Warn("Failed to remove orphaned blob", zap.String("path", objectPath), zap.Error(rmErr))
		}
		h.logger.Error("Failed to save document metadata", zap.String("user_id", uid), zap.Error(err))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, Ok(doc))
}

// GET /api/v1/documents/{id}/download[?signed=1]
func (h *DocumentsHandler) DownloadDocument(w http.ResponseWriter, r *http.Request, id string) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}
	doc, err := h.store.GetDocument(r.Context(), uid, id)
	if err != nil {
		writeError(w, err)
		return
	}

	if r.URL.Query().Get("signed") != "" {
		expires := time.Duration(parseInt(r.URL.Query().Get("expires"), 300)) * time.Second
		u, err := h.blobs.SignedURL(r.Context(), doc.FilePath, expires)
		if err != nil {
			h.logger.Error("Failed to sign document url", zap.String("document_id", id), zap.Error(err))
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, Ok(map[string]any{"url": u, "expires_in": int(expires / time.Second)}))
		return
	}

	data, contentType, err := h.blobs.Download(r.Context(), doc.FilePath)
	if err != nil {
		if !errors.Is(err, storage.ErrObjectNotFound) {
			h.logger.Error("Failed to download document", zap.String("document_id", id), zap.Error(err))
		}
		writeError(w, err)
		return
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": doc.FileName}))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// DELETE /api/v1/documents/{id}
func (h *DocumentsHandler) DeleteDocument(w http.ResponseWriter, r *http.Request, id string) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}
	doc, err := h.store.GetDocument(r.Context(), uid, id)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.store.DeleteDocument(r.Context(), uid, id); err != nil {
		writeError(w, err)
		return
	}
	if err := h.blobs.Remove(r.Context(), doc.FilePath); err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
		h.logger.Warn("Document metadata deleted but blob removal failed",
			zap.String("document_id", id),
			zap.String("path", doc.FilePath),
			zap.Error(err),
		)
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"id": id}))
}
