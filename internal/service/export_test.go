package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"iuran-data/internal/domain"
	"iuran-data/internal/sheet"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingCodec struct {
	sheet.Codec
	encodes int
}

func (c *countingCodec) Encode(headers []string, rows []sheet.Row, f sheet.Format) ([]byte, error) {
	c.encodes++
	return c.Codec.Encode(headers, rows, f)
}

func TestExportRoster_EmptyIsError(t *testing.T) {
	svc, _, _ := newTestService(t)
	codec := &countingCodec{Codec: sheet.NewCodec()}
	svc.codec = codec

	_, err := svc.ExportRoster(context.Background(), nil, sheet.FormatXLSX)
	assert.True(t, errors.Is(err, ErrEmptyExport))
	assert.Equal(t, 0, codec.encodes)
}

func TestExportRoster_CSVRowsAndFileName(t *testing.T) {
	svc, st, _ := newTestService(t)
	melati := st.AddHousingComplex("Cluster Melati")
	seed(t, st, "3201012501990002", "Budi", domain.RoleSecurity, nil)
	seed(t, st, "3201012501990001", "Ani", domain.RoleResident, &melati)

	file, err := svc.ExportRoster(context.Background(), nil, sheet.FormatCSV)
	require.NoError(t, err)
	assert.Equal(t, "data_warga_20261017_140509.csv", file.FileName)
	assert.Equal(t, "text/csv", file.MimeType)
	assert.Equal(t, "public.comma-separated-values-text", file.UTI)

	body := strings.TrimPrefix(string(file.Content), "\ufeff")
	lines := strings.Split(strings.TrimSpace(body), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "NIK,Nama Lengkap,Role,Cluster", lines[0])
	// 姓名升序
	assert.Equal(t, "'3201012501990001,Ani,resident,Cluster Melati", lines[1])
	assert.Equal(t, "'3201012501990002,Budi,security,-", lines[2])

	decoded, err := base64.StdEncoding.DecodeString(file.Base64())
	require.NoError(t, err)
	assert.True(t, bytes.Equal(file.Content, decoded))
}

func TestExportRoster_ComplexFilter(t *testing.T) {
	svc, st, _ := newTestService(t)
	melati := st.AddHousingComplex("Cluster Melati")
	anggrek := st.AddHousingComplex("Cluster Anggrek")
	seed(t, st, "1", "Ani", domain.RoleResident, &melati)
	seed(t, st, "2", "Budi", domain.RoleResident, &anggrek)

	file, err := svc.ExportRoster(context.Background(), &anggrek, sheet.FormatXLSX)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(file.FileName, ".xlsx"))

	rows, err := sheet.NewCodec().Decode(file.Content, sheet.FormatXLSX)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "2", rows[0][HeaderNIK])
	assert.Equal(t, "Cluster Anggrek", rows[0][HeaderCluster])

	none := "no-such-complex"
	_, err = svc.ExportRoster(context.Background(), &none, sheet.FormatXLSX)
	assert.True(t, errors.Is(err, ErrEmptyExport))
}

func TestExportRoster_RejectsUnknownFormat(t *testing.T) {
	svc, st, _ := newTestService(t)
	seed(t, st, "1", "Ani", domain.RoleResident, nil)

	_, err := svc.ExportRoster(context.Background(), nil, sheet.Format("pdf"))
	var ve *ValidationError
	assert.True(t, errors.As(err, &ve))
}

func TestShareRoster(t *testing.T) {
	svc, st, _ := newTestService(t)
	seed(t, st, "1", "Ani", domain.RoleResident, nil)

	sharer := &captureSharer{}
	file, err := svc.ShareRoster(context.Background(), sharer, nil, sheet.FormatXLSX)
	require.NoError(t, err)
	assert.Same(t, file, sharer.got)

	failing := &captureSharer{err: errors.New("share sheet dismissed")}
	_, err = svc.ShareRoster(context.Background(), failing, nil, sheet.FormatXLSX)
	assert.Error(t, err)

	// nothing to export: sharer never invoked
	empty, _, _ := newTestService(t)
	untouched := &captureSharer{}
	_, err = empty.ShareRoster(context.Background(), untouched, nil, sheet.FormatCSV)
	assert.True(t, errors.Is(err, ErrEmptyExport))
	assert.Nil(t, untouched.got)
}

func TestImportTemplate_IsImportable(t *testing.T) {
	svc, _, _ := newTestService(t)

	file, err := svc.ImportTemplate(sheet.FormatXLSX)
	require.NoError(t, err)
	assert.Equal(t, "template_import_warga_20261017_140509.xlsx", file.FileName)

	rows, err := sheet.NewCodec().Decode(file.Content, sheet.FormatXLSX)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	nik, ok := rows[0].Lookup(NIKHeaders...)
	require.True(t, ok)
	assert.Equal(t, "3201010101900001", nik)
}
