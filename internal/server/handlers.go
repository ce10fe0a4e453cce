package server

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	"github.com/ChanticoMarketing/Comparador-de-Documentos-sub000/constants"
	"github.com/ChanticoMarketing/Comparador-de-Documentos-sub000/internal/common"
	"github.com/ChanticoMarketing/Comparador-de-Documentos-sub000/internal/pipeline"
)

type uploadReply struct {
	AcceptedPairCount int `json:"acceptedPairCount"`
}

type errorReply struct {
	Error string `json:"error"`
}

func renderError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	render.Status(r, status)
	render.JSON(w, r, errorReply{Error: msg})
}

// handleUpload accepts multipart form fields "invoices" and "deliveries",
// spools each part to the upload dir and submits the batch. 409 while a
// batch is running.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(s.cfg.MaxUploadBytes); err != nil {
		renderError(w, r, http.StatusBadRequest, fmt.Sprintf("parse multipart form: %v", err))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	invoices, err := s.spoolFiles(r.MultipartForm.File["invoices"])
	if err != nil {
		renderError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	deliveries, err := s.spoolFiles(r.MultipartForm.File["deliveries"])
	if err != nil {
		cleanupFiles(invoices)
		renderError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	owner := common.OwnerIDFromContext(r.Context())
	accepted, err := s.manager.Submit(invoices, deliveries, owner)
	if err != nil {
		cleanupFiles(invoices)
		cleanupFiles(deliveries)
		switch {
		case errors.Is(err, common.ErrBatchInProgress):
			renderError(w, r, http.StatusConflict, err.Error())
		case errors.Is(err, common.ErrInvalidInput):
			renderError(w, r, http.StatusBadRequest, err.Error())
		default:
			s.logger.Error("upload submit failed", "err", err)
			renderError(w, r, http.StatusInternalServerError, "submit failed")
		}
		return
	}

	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, uploadReply{AcceptedPairCount: accepted})
}

// spoolFiles copies multipart parts into the pipeline's scratch dir. The
// pipeline owns the copies from here on.
func (s *Server) spoolFiles(headers []*multipart.FileHeader) ([]pipeline.UploadedFile, error) {
	out := make([]pipeline.UploadedFile, 0, len(headers))
	for _, fh := range headers {
		if !constants.IsAllowedExt(filepath.Ext(fh.Filename)) {
			cleanupFiles(out)
			return nil, fmt.Errorf("unsupported file type: %s", fh.Filename)
		}
		src, err := fh.Open()
		if err != nil {
			cleanupFiles(out)
			return nil, fmt.Errorf("open upload %s: %w", fh.Filename, err)
		}

		dstPath := filepath.Join(s.uploadDir, uuid.New().String()+filepath.Ext(fh.Filename))
		dst, err := os.Create(dstPath)
		if err != nil {
			_ = src.Close()
			cleanupFiles(out)
			return nil, fmt.Errorf("spool upload %s: %w", fh.Filename, err)
		}
		n, err := io.Copy(dst, src)
		_ = src.Close()
		_ = dst.Close()
		if err != nil {
			_ = os.Remove(dstPath)
			cleanupFiles(out)
			return nil, fmt.Errorf("spool upload %s: %w", fh.Filename, err)
		}
		out = append(out, pipeline.UploadedFile{Name: fh.Filename, Path: dstPath, Size: n})
	}
	return out, nil
}

func cleanupFiles(files []pipeline.UploadedFile) {
	for _, f := range files {
		if f.Path != "" {
			_ = os.Remove(f.Path)
		}
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, s.manager.Status())
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.Cancel(); err != nil {
		if errors.Is(err, common.ErrNoActiveBatch) {
			renderError(w, r, http.StatusConflict, err.Error())
			return
		}
		renderError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	render.JSON(w, r, map[string]string{"status": "cancelling"})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	owner := common.OwnerIDFromContext(r.Context())
	sessions, err := s.sessions.List(r.Context(), owner, limit)
	if err != nil {
		s.logger.Error("list sessions failed", "err", err)
		renderError(w, r, http.StatusInternalServerError, "list sessions failed")
		return
	}
	render.JSON(w, r, sessions)
}

func (s *Server) handleGetComparison(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		renderError(w, r, http.StatusBadRequest, "invalid comparison id")
		return
	}
	cmp, err := s.results.GetComparison(r.Context(), id)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			// The dashboard polls by session id right after a pair
			// completes; resolve that too.
			if bySession, sErr := s.results.GetBySessionID(r.Context(), id); sErr == nil {
				render.JSON(w, r, bySession)
				return
			}
			renderError(w, r, http.StatusNotFound, "comparison not found")
			return
		}
		s.logger.Error("get comparison failed", "id", id, "err", err)
		renderError(w, r, http.StatusInternalServerError, "get comparison failed")
		return
	}
	render.JSON(w, r, cmp)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		renderError(w, r, http.StatusBadRequest, "invalid comparison id")
		return
	}
	data, err := s.exporter.ExportComparisonXLSX(r.Context(), id)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			renderError(w, r, http.StatusNotFound, "comparison not found")
			return
		}
		s.logger.Error("export failed", "id", id, "err", err)
		renderError(w, r, http.StatusInternalServerError, "export failed")
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="comparison-%s.xlsx"`, id))
	_, _ = w.Write(data)
}
