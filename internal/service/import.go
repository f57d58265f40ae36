package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"iuran-data/internal/domain"
	"iuran-data/internal/events"
	"iuran-data/internal/repository"
	"iuran-data/internal/sheet"

	"go.uber.org/zap"
)

// 导入时接受的表头别名
var (
	NIKHeaders      = []string{"NIK", "nik"}
	FullNameHeaders = []string{"Nama Lengkap", "nama_lengkap"}
)

// RowErrorKind 行失败原因
type RowErrorKind string

const (
	RowMissingField RowErrorKind = "missing_field"
	RowDuplicate    RowErrorKind = "duplicate"
	RowStoreError   RowErrorKind = "store_error"
)

// RowResult 单行处理结果；Row 为表格行号（表头为第 1 行）
type RowResult struct {
	Row      int          `json:"row"`
	Accepted bool         `json:"accepted"`
	Kind     RowErrorKind `json:"kind,omitempty"`
	Message  string       `json:"message,omitempty"`
}

// ImportResult 导入汇总
type ImportResult struct {
	SuccessCount int         `json:"success_count"`
	FailedCount  int         `json:"failed_count"`
	Errors       []string    `json:"errors"`
	Rows         []RowResult `json:"rows"`
}

func (r *ImportResult) add(rr RowResult) {
	r.Rows = append(r.Rows, rr)
	if rr.Accepted {
		r.SuccessCount++
		return
	}
	r.FailedCount++
	r.Errors = append(r.Errors, rr.Message)
}

// ImportRoster 逐行导入；单行失败不影响其它行
// 每行之间检查 ctx，取消时返回已处理部分的结果和 ctx 错误
func (s *rosterService) ImportRoster(ctx context.Context, picker FilePicker, role domain.Role, complexID *string) (*ImportResult, error) {
	if _, err := domain.ParseRole(string(role)); err != nil {
		return nil, invalid("role", err.Error())
	}

	picked, err := picker.Pick(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to pick import file: %w", err)
	}
	if picked.Cancelled {
		return nil, ErrImportCancelled
	}
	data, err := picker.ReadFile(ctx, picked.URI)
	if err != nil {
		return nil, fmt.Errorf("failed to read import file: %w", err)
	}

	rows, err := s.codec.Decode(data, picked.Format())
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrEmptyImport
	}

	result := &ImportResult{Errors: []string{}, Rows: make([]RowResult, 0, len(rows))}
	for i, row := range rows {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.add(s.importRow(ctx, i+2, row, role, complexID))
	}

	s.logger.Info("roster import finished",
		zap.String("file", picked.Name),
		zap.Int("success", result.SuccessCount),
		zap.Int("failed", result.FailedCount),
	)
	if result.SuccessCount > 0 {
		s.publish(ctx, events.RosterEvent{
			Action:       events.ActionImported,
			SuccessCount: result.SuccessCount,
			FailedCount:  result.FailedCount,
		})
	}
	return result, nil
}

func (s *rosterService) importRow(ctx context.Context, rowNum int, row sheet.Row, role domain.Role, complexID *string) RowResult {
	nik, okNIK := row.Lookup(NIKHeaders...)
	name, okName := row.Lookup(FullNameHeaders...)
	nik = normalizeNIK(nik)
	if !okNIK || !okName || nik == "" {
		return RowResult{
			Row:     rowNum,
			Kind:    RowMissingField,
			Message: fmt.Sprintf("Baris %d: NIK atau Nama Lengkap kosong", rowNum),
		}
	}

	_, err := s.store.InsertRoster(ctx, domain.RosterFields{
		NIK:              nik,
		FullName:         name,
		Role:             role,
		HousingComplexID: complexID,
	})
	switch {
	case err == nil:
		return RowResult{Row: rowNum, Accepted: true}
	case errors.Is(err, repository.ErrConflict):
		return RowResult{
			Row:     rowNum,
			Kind:    RowDuplicate,
			Message: fmt.Sprintf("Baris %d: NIK %s sudah terdaftar", rowNum, nik),
		}
	default:
		s.logger.Warn("import row rejected by store", zap.Int("row", rowNum), zap.Error(err))
		return RowResult{
			Row:     rowNum,
			Kind:    RowStoreError,
			Message: fmt.Sprintf("Baris %d: %v", rowNum, err),
		}
	}
}

// normalizeNIK 去掉文本标记和数字单元格常见的 ".0" 尾巴
func normalizeNIK(v string) string {
	v = strings.TrimPrefix(strings.TrimSpace(v), sheet.TextMarker)
	return strings.TrimSuffix(v, ".0")
}
