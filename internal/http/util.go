package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"iuran-data/internal/repository"
	"iuran-data/internal/service"
	"iuran-data/internal/sheet"

	"go.uber.org/zap"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func parseInt(s string, def int) int {
	if s == "" {
		return def
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}

func readBodyJSON(r *http.Request, maxBytes int64, out any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBytes))
	if err != nil {
		return err
	}
	if len(body) == 0 {
		return nil
	}
	return json.Unmarshal(body, out)
}

// errorMessage 将业务错误转换为前端提示（印尼语）
func errorMessage(err error) (string, bool) {
	var (
		ve *service.ValidationError
		de *sheet.DecodeError
	)
	switch {
	case errors.As(err, &ve):
		return ve.Error(), true
	case errors.Is(err, repository.ErrConflict):
		return "NIK sudah terdaftar", true
	case errors.Is(err, repository.ErrNotFound):
		return "Data tidak ditemukan", true
	case errors.Is(err, service.ErrEmptyExport):
		return "Tidak ada data untuk diekspor", true
	case errors.Is(err, service.ErrEmptyImport):
		return "File tidak berisi data", true
	case errors.Is(err, service.ErrImportCancelled):
		return "Import dibatalkan", true
	case errors.As(err, &de):
		return fmt.Sprintf("Format file tidak valid: %v", de.Err), true
	}
	return "", false
}

// writeFail 已知错误直接返回提示；未知错误记录日志
func writeFail(w http.ResponseWriter, logger *zap.Logger, op string, err error) {
	if msg, ok := errorMessage(err); ok {
		writeJSON(w, http.StatusOK, Fail(msg))
		return
	}
	logger.Error(op+" failed", zap.Error(err))
	writeJSON(w, http.StatusOK, Fail(fmt.Sprintf("failed to %s: %v", op, err)))
}
