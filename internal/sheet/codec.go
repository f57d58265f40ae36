package sheet

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Format 表格文件格式
type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatCSV  Format = "csv"
)

// ParseFormat accepts "xlsx" and "csv" (case-insensitive, optional leading dot).
func ParseFormat(s string) (Format, error) {
	switch Format(strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), ".")) {
	case FormatXLSX:
		return FormatXLSX, nil
	case FormatCSV:
		return FormatCSV, nil
	}
	return "", fmt.Errorf("unsupported spreadsheet format %q", s)
}

// MimeType for the sharing/save surface.
func (f Format) MimeType() string {
	if f == FormatCSV {
		return "text/csv"
	}
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

// UTI is the uniform type identifier used by mobile share sheets.
func (f Format) UTI() string {
	if f == FormatCSV {
		return "public.comma-separated-values-text"
	}
	return "org.openxmlformats.spreadsheetml.sheet"
}

func (f Format) Extension() string { return "." + string(f) }

// TextMarker 前缀：强制表格软件按文本处理（避免长数字被转成科学计数法）
const TextMarker = "'"

// Row 一行数据：表头 -> 单元格文本
type Row map[string]string

// Lookup returns the first non-empty value stored under one of the accepted headers.
// Headers outside the accepted set are never consulted.
func (r Row) Lookup(accepted ...string) (string, bool) {
	for _, h := range accepted {
		if v, ok := r[h]; ok {
			if v = strings.TrimSpace(v); v != "" {
				return v, true
			}
		}
	}
	return "", false
}

// Codec 表格编解码能力
type Codec interface {
	// Decode reads the first sheet; the first row is the header row.
	Decode(data []byte, f Format) ([]Row, error)
	// Encode writes headers followed by rows, in header order.
	Encode(headers []string, rows []Row, f Format) ([]byte, error)
}

// DecodeError 文件无法解析
type DecodeError struct {
	Format Format
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode %s file: %v", e.Format, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// ExcelizeCodec xlsx 使用 excelize，csv 使用 encoding/csv（UTF-8 BOM）
type ExcelizeCodec struct {
	SheetName    string
	ColumnWidths map[string]float64
}

// NewCodec 创建默认编解码器
func NewCodec() *ExcelizeCodec {
	return &ExcelizeCodec{SheetName: "Data Warga"}
}

func (c *ExcelizeCodec) Decode(data []byte, f Format) ([]Row, error) {
	var (
		records [][]string
		err     error
	)
	switch f {
	case FormatXLSX:
		records, err = readXLSX(data)
	case FormatCSV:
		records, err = readCSV(data)
	default:
		err = fmt.Errorf("unsupported format %q", f)
	}
	if err != nil {
		return nil, &DecodeError{Format: f, Err: err}
	}
	return toRows(records), nil
}

func readXLSX(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheetName := f.GetSheetName(0)
	if sheetName == "" {
		return nil, errors.New("workbook has no sheets")
	}
	// RawCellValue: 数字单元格按原值读取，不套用显示格式
	return f.GetRows(sheetName, excelize.Options{RawCellValue: true})
}

func readCSV(data []byte) ([][]string, error) {
	// BOMOverride 去掉 Excel 导出的 BOM
	dec := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	r := csv.NewReader(transform.NewReader(bytes.NewReader(data), dec))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	return r.ReadAll()
}

// toRows maps records to header-keyed rows, skipping blank lines and unnamed columns.
func toRows(records [][]string) []Row {
	if len(records) < 2 {
		return []Row{}
	}
	headers := make([]string, len(records[0]))
	for i, h := range records[0] {
		headers[i] = strings.TrimSpace(h)
	}

	out := make([]Row, 0, len(records)-1)
	for _, rec := range records[1:] {
		row := Row{}
		blank := true
		for i, cell := range rec {
			if i >= len(headers) || headers[i] == "" {
				continue
			}
			cell = strings.TrimPrefix(strings.TrimSpace(cell), TextMarker)
			if cell != "" {
				blank = false
			}
			row[headers[i]] = cell
		}
		if !blank {
			out = append(out, row)
		}
	}
	return out
}

func (c *ExcelizeCodec) Encode(headers []string, rows []Row, f Format) ([]byte, error) {
	switch f {
	case FormatXLSX:
		return c.writeXLSX(headers, rows)
	case FormatCSV:
		return writeCSV(headers, rows)
	}
	return nil, fmt.Errorf("unsupported format %q", f)
}

func writeCSV(headers []string, rows []Row) ([]byte, error) {
	var buf bytes.Buffer
	tw := transform.NewWriter(&buf, unicode.UTF8BOM.NewEncoder())
	w := csv.NewWriter(tw)

	if err := w.Write(headers); err != nil {
		return nil, err
	}
	record := make([]string, len(headers))
	for _, row := range rows {
		for i, h := range headers {
			record[i] = row[h]
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to write csv: %w", err)
	}
	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("failed to flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

func (c *ExcelizeCodec) writeXLSX(headers []string, rows []Row) ([]byte, error) {
	f := excelize.NewFile()
	// WriteTo 之前不能 Close

	sheetName := c.SheetName
	if sheetName == "" {
		sheetName = "Sheet1"
	}
	index, err := f.NewSheet(sheetName)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	if sheetName != "Sheet1" {
		f.DeleteSheet("Sheet1")
	}
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}
	// 49 = "@"（文本格式）
	textStyle, err := f.NewStyle(&excelize.Style{NumFmt: 49})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create text style: %w", err)
	}

	for col, header := range headers {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellStr(sheetName, cell, header); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(sheetName, cell, cell, headerStyle); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set header style: %w", err)
		}

		colName, err := excelize.ColumnNumberToName(col + 1)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to convert column number: %w", err)
		}
		width := 20.0
		if w, ok := c.ColumnWidths[header]; ok && w > 0 {
			width = w
		}
		if err := f.SetColWidth(sheetName, colName, colName, width); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set column width: %w", err)
		}
	}

	for rowIdx, row := range rows {
		for col, header := range headers {
			value := row[header]
			if value == "" {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(col+1, rowIdx+2)
			if err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to convert coordinates: %w", err)
			}
			if strings.HasPrefix(value, TextMarker) {
				value = strings.TrimPrefix(value, TextMarker)
				if err := f.SetCellStyle(sheetName, cell, cell, textStyle); err != nil {
					f.Close()
					return nil, fmt.Errorf("failed to set text style at %s: %w", cell, err)
				}
			}
			if err := f.SetCellStr(sheetName, cell, value); err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to set cell %s: %w", cell, err)
			}
		}
	}

	if err := f.SetPanes(sheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to freeze panes: %w", err)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write to buffer: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close file: %w", err)
	}
	return buf.Bytes(), nil
}
