package http

import (
	"errors"
	"net/http"

	"github.com/taskdeck/taskdeck/internal/taskdeck/blob"
	"github.com/taskdeck/taskdeck/pkg/httpx"
	"github.com/taskdeck/taskdeck/pkg/slogx"
)

type FileHandler struct {
	Router *Router
	Blob   *blob.Store
}

// maxUploadBytes bounds a single multipart upload.
const maxUploadBytes = 16 << 20

type fileUploadResponse struct {
	Path string `json:"path"`
	URL  string `json:"url"`
}

// HandleUpload godoc
//
//	@Summary		Upload a file
//	@Description	Multipart form with fields "path", "file" and optional
//	@Description	"overwrite". The stored file is publicly readable.
//	@Tags			Files
//	@Security		BearerAuth
//	@Accept			multipart/form-data
//	@Produce		json
//	@Param			path		formData	string	true	"Storage key, e.g. {account_id}/logo/cover.png"
//	@Param			file		formData	file	true	"File contents"
//	@Param			overwrite	formData	bool	false	"Replace an existing file"
//	@Success		201			{object}	fileUploadResponse
//	@Failure		400			{object}	httpx.ErrorResponse
//	@Failure		409			{object}	httpx.ErrorResponse	"File already exists"
//	@Router			/v1/files [post].
func (h *FileHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "Malformed multipart body")
		return
	}

	key := r.FormValue("path")
	overwrite := r.FormValue("overwrite") == "true"

	f, _, err := r.FormFile("file")
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "Missing file field")
		return
	}
	defer f.Close()

	if err := h.Blob.Upload(ctx, key, f, overwrite); err != nil {
		switch {
		case errors.Is(err, blob.ErrInvalidPath):
			httpx.WriteError(w, http.StatusBadRequest, "invalid_path", "Path is not a valid storage key")
		case errors.Is(err, blob.ErrExists):
			httpx.WriteError(w, http.StatusConflict, "file_exists", "File already exists")
		default:
			log.Error("file upload failed", "err", err)
			httpx.WriteError(w, http.StatusInternalServerError, "server_error", "Upload failed")
		}
		return
	}

	url, err := h.Blob.PublicURL(ctx, key)
	if err != nil {
		log.Error("public url failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "Upload failed")
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, fileUploadResponse{Path: key, URL: url})
}
