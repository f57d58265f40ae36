package service

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyExport 没有可导出的名册
	ErrEmptyExport = errors.New("no roster entries to export")
	// ErrEmptyImport 文件中没有数据行
	ErrEmptyImport = errors.New("import file contains no rows")
	// ErrImportCancelled 用户取消选择文件
	ErrImportCancelled = errors.New("import cancelled")
)

// ValidationError 调用方参数校验失败
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, msg string) error {
	return &ValidationError{Field: field, Message: msg}
}
