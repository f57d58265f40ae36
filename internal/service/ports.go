package service

import (
	"context"
	"path"
	"strings"

	"iuran-data/internal/sheet"
)

// PickedFile 文件选择结果
type PickedFile struct {
	Cancelled bool
	URI       string
	Name      string
}

// Format guesses the spreadsheet format from the file name, then the URI. Defaults to xlsx.
func (p PickedFile) Format() sheet.Format {
	for _, s := range []string{p.Name, p.URI} {
		if f, err := sheet.ParseFormat(path.Ext(strings.TrimSpace(s))); err == nil {
			return f
		}
	}
	return sheet.FormatXLSX
}

// FilePicker 选择并读取导入文件（上传、命令行路径等）
type FilePicker interface {
	Pick(ctx context.Context) (PickedFile, error)
	ReadFile(ctx context.Context, uri string) ([]byte, error)
}

// Sharer 接收导出文件（下载、保存到目录等）
type Sharer interface {
	Share(ctx context.Context, file *ExportFile) error
}
