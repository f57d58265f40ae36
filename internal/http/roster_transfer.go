package httpapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"

	"iuran-data/internal/domain"
	"iuran-data/internal/service"
	"iuran-data/internal/sheet"

	"go.uber.org/zap"
)

// downloadSharer 以附件形式写回 HTTP 响应
type downloadSharer struct {
	w     http.ResponseWriter
	wrote bool
}

func (s *downloadSharer) Share(_ context.Context, f *service.ExportFile) error {
	s.wrote = true
	s.w.Header().Set("Content-Type", f.MimeType)
	s.w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": f.FileName}))
	s.w.Header().Set("Content-Length", strconv.Itoa(len(f.Content)))
	s.w.WriteHeader(http.StatusOK)
	_, err := s.w.Write(f.Content)
	return err
}

// uploadPicker 从 multipart 表单的 file 字段取文件；没有文件视为取消
type uploadPicker struct {
	req    *http.Request
	header *multipart.FileHeader
}

func (p *uploadPicker) Pick(context.Context) (service.PickedFile, error) {
	if p.req.MultipartForm == nil {
		return service.PickedFile{Cancelled: true}, nil
	}
	f, fh, err := p.req.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		return service.PickedFile{Cancelled: true}, nil
	}
	if err != nil {
		return service.PickedFile{}, err
	}
	f.Close()
	p.header = fh
	return service.PickedFile{URI: fh.Filename, Name: fh.Filename}, nil
}

func (p *uploadPicker) ReadFile(_ context.Context, uri string) ([]byte, error) {
	if p.header == nil || p.header.Filename != uri {
		return nil, fmt.Errorf("file %q was not uploaded", uri)
	}
	f, err := p.header.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(io.LimitReader(f, maxUploadBodySize))
}

func formatParam(r *http.Request) (sheet.Format, error) {
	v := r.URL.Query().Get("format")
	if v == "" {
		return sheet.FormatXLSX, nil
	}
	return sheet.ParseFormat(v)
}

// ExportRoster GET /admin/api/v1/roster/export?format=xlsx|csv&complex_id=
// encoding=base64 时返回 JSON（移动端写文件用）
func (h *RosterHandler) ExportRoster(w http.ResponseWriter, r *http.Request) {
	format, err := formatParam(r)
	if err != nil {
		writeJSON(w, http.StatusOK, Fail(err.Error()))
		return
	}
	complexID := domain.StrPtr(r.URL.Query().Get("complex_id"))

	if r.URL.Query().Get("encoding") == "base64" {
		file, err := h.roster.ExportRoster(r.Context(), complexID, format)
		if err != nil {
			writeFail(w, h.logger, "export roster", err)
			return
		}
		writeJSON(w, http.StatusOK, Ok(map[string]any{
			"file_name": file.FileName,
			"mime_type": file.MimeType,
			"uti":       file.UTI,
			"content":   file.Base64(),
		}))
		return
	}

	sharer := &downloadSharer{w: w}
	if _, err := h.roster.ShareRoster(r.Context(), sharer, complexID, format); err != nil {
		// 响应头已发送，只能记录
		if sharer.wrote {
			h.logger.Warn("export download interrupted", zap.Error(err))
			return
		}
		writeFail(w, h.logger, "export roster", err)
	}
}

// ImportRoster POST /admin/api/v1/roster/import (multipart: file, role, complex_id)
func (h *RosterHandler) ImportRoster(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBodySize+1<<20)
	if err := r.ParseMultipartForm(maxUploadBodySize); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		writeJSON(w, http.StatusOK, Fail("failed to parse form"))
		return
	}

	role := domain.RoleResident
	if v := r.FormValue("role"); v != "" {
		parsed, err := domain.ParseRole(v)
		if err != nil {
			writeJSON(w, http.StatusOK, Fail(err.Error()))
			return
		}
		role = parsed
	}
	complexID := domain.StrPtr(r.FormValue("complex_id"))

	result, err := h.roster.ImportRoster(r.Context(), &uploadPicker{req: r}, role, complexID)
	if err != nil {
		writeFail(w, h.logger, "import roster", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(result))
}

// GetImportTemplate GET /admin/api/v1/roster/import-template?format=
func (h *RosterHandler) GetImportTemplate(w http.ResponseWriter, r *http.Request) {
	format, err := formatParam(r)
	if err != nil {
		writeJSON(w, http.StatusOK, Fail(err.Error()))
		return
	}
	file, err := h.roster.ImportTemplate(format)
	if err != nil {
		writeFail(w, h.logger, "generate template", err)
		return
	}
	if err := (&downloadSharer{w: w}).Share(r.Context(), file); err != nil {
		h.logger.Warn("template download interrupted", zap.Error(err))
	}
}
