package service

import (
	"context"
	"encoding/base64"
	"fmt"

	"iuran-data/internal/domain"
	"iuran-data/internal/repository"
	"iuran-data/internal/sheet"

	"go.uber.org/zap"
)

// 导出列（顺序即文件列顺序）
const (
	HeaderNIK      = "NIK"
	HeaderFullName = "Nama Lengkap"
	HeaderRole     = "Role"
	HeaderCluster  = "Cluster"
)

var exportHeaders = []string{HeaderNIK, HeaderFullName, HeaderRole, HeaderCluster}

// 无关联住宅区时的占位
const missingCluster = "-"

// ExportFile 导出结果，交给 Sharer 或 HTTP 下载
type ExportFile struct {
	FileName string
	Format   sheet.Format
	MimeType string
	UTI      string
	Content  []byte
}

// Base64 is the payload form expected by mobile file-system bridges.
func (f *ExportFile) Base64() string {
	return base64.StdEncoding.EncodeToString(f.Content)
}

func (s *rosterService) newExportFile(prefix string, format sheet.Format, content []byte) *ExportFile {
	return &ExportFile{
		FileName: fmt.Sprintf("%s_%s%s", prefix, s.now().Format("20060102_150405"), format.Extension()),
		Format:   format,
		MimeType: format.MimeType(),
		UTI:      format.UTI(),
		Content:  content,
	}
}

// ExportRoster 导出名册（可按住宅区过滤，按姓名升序）
// NIK 以 TextMarker 开头，防止被表格软件转为数字
func (s *rosterService) ExportRoster(ctx context.Context, complexID *string, format sheet.Format) (*ExportFile, error) {
	if _, err := sheet.ParseFormat(string(format)); err != nil {
		return nil, invalid("format", err.Error())
	}

	rows, err := s.store.ListRoster(ctx, repository.RosterQuery{
		HousingComplexID: complexID,
		Order:            repository.OrderNameAsc,
		To:               -1,
	})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrEmptyExport
	}

	records := make([]sheet.Row, 0, len(rows))
	for _, r := range rows {
		records = append(records, exportRow(r))
	}
	content, err := s.codec.Encode(exportHeaders, records, format)
	if err != nil {
		return nil, fmt.Errorf("failed to encode export: %w", err)
	}

	file := s.newExportFile("data_warga", format, content)
	s.logger.Info("roster exported",
		zap.String("file", file.FileName),
		zap.Int("rows", len(records)),
	)
	return file, nil
}

func exportRow(r *domain.RosterEntry) sheet.Row {
	cluster := missingCluster
	if r.HousingComplexName != nil && *r.HousingComplexName != "" {
		cluster = *r.HousingComplexName
	}
	return sheet.Row{
		HeaderNIK:      sheet.TextMarker + r.NIK,
		HeaderFullName: r.FullName,
		HeaderRole:     string(r.Role),
		HeaderCluster:  cluster,
	}
}

// ShareRoster exports and hands the file to the sharer.
func (s *rosterService) ShareRoster(ctx context.Context, sharer Sharer, complexID *string, format sheet.Format) (*ExportFile, error) {
	file, err := s.ExportRoster(ctx, complexID, format)
	if err != nil {
		return nil, err
	}
	if err := sharer.Share(ctx, file); err != nil {
		return nil, fmt.Errorf("failed to share %s: %w", file.FileName, err)
	}
	return file, nil
}

// ImportTemplate 导入模板：表头 + 一行示例
func (s *rosterService) ImportTemplate(format sheet.Format) (*ExportFile, error) {
	if _, err := sheet.ParseFormat(string(format)); err != nil {
		return nil, invalid("format", err.Error())
	}
	headers := []string{HeaderNIK, HeaderFullName}
	example := []sheet.Row{{
		HeaderNIK:      sheet.TextMarker + "3201010101900001",
		HeaderFullName: "Budi Santoso",
	}}
	content, err := s.codec.Encode(headers, example, format)
	if err != nil {
		return nil, fmt.Errorf("failed to encode template: %w", err)
	}
	return s.newExportFile("template_import_warga", format, content), nil
}
