package sheet

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

var testHeaders = []string{"NIK", "Nama Lengkap", "Role", "Cluster"}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat(" XLSX ")
	require.NoError(t, err)
	assert.Equal(t, FormatXLSX, f)

	f, err = ParseFormat(".csv")
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, f)

	_, err = ParseFormat("pdf")
	assert.Error(t, err)

	assert.Equal(t, "text/csv", FormatCSV.MimeType())
	assert.Equal(t, ".xlsx", FormatXLSX.Extension())
}

func TestRoundTrip_PreservesLongNIK(t *testing.T) {
	codec := NewCodec()
	rows := []Row{
		{"NIK": TextMarker + "3201012501990001", "Nama Lengkap": "Budi Santoso", "Role": "resident", "Cluster": "-"},
		{"NIK": TextMarker + "0012345678901234", "Nama Lengkap": "Sari", "Role": "security", "Cluster": "Melati"},
	}

	for _, format := range []Format{FormatXLSX, FormatCSV} {
		t.Run(string(format), func(t *testing.T) {
			data, err := codec.Encode(testHeaders, rows, format)
			require.NoError(t, err)

			decoded, err := codec.Decode(data, format)
			require.NoError(t, err)
			require.Len(t, decoded, 2)
			assert.Equal(t, "3201012501990001", decoded[0]["NIK"])
			assert.Len(t, decoded[0]["NIK"], 16)
			assert.Equal(t, "0012345678901234", decoded[1]["NIK"])
			assert.Equal(t, "Budi Santoso", decoded[0]["Nama Lengkap"])
			assert.Equal(t, "Melati", decoded[1]["Cluster"])
		})
	}
}

func TestEncodeXLSX_NIKStoredAsTextCell(t *testing.T) {
	data, err := NewCodec().Encode(testHeaders, []Row{{"NIK": TextMarker + "3201012501990001", "Nama Lengkap": "Budi"}}, FormatXLSX)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, "Data Warga", f.GetSheetName(0))
	cellType, err := f.GetCellType("Data Warga", "A2")
	require.NoError(t, err)
	assert.NotEqual(t, excelize.CellTypeNumber, cellType)

	v, err := f.GetCellValue("Data Warga", "A2")
	require.NoError(t, err)
	assert.Equal(t, "3201012501990001", v)
}

func TestEncodeCSV_HasBOMAndMarker(t *testing.T) {
	data, err := NewCodec().Encode([]string{"NIK"}, []Row{{"NIK": TextMarker + "3201012501990001"}}, FormatCSV)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte{0xEF, 0xBB, 0xBF}))
	assert.Contains(t, string(data), "'3201012501990001")
}

func TestDecodeCSV_SkipsBlankRowsAndUnnamedColumns(t *testing.T) {
	data := []byte("NIK,Nama Lengkap,\n111,Ani,extra\n,,\n222,Budi,\n")
	rows, err := NewCodec().Decode(data, FormatCSV)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, Row{"NIK": "111", "Nama Lengkap": "Ani"}, rows[0])
	assert.Equal(t, "222", rows[1]["NIK"])
}

func TestDecode_HeaderOnly(t *testing.T) {
	rows, err := NewCodec().Decode([]byte("NIK,Nama Lengkap\n"), FormatCSV)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestDecodeXLSX_Malformed(t *testing.T) {
	_, err := NewCodec().Decode([]byte("definitely not a zip"), FormatXLSX)
	require.Error(t, err)
	var de *DecodeError
	assert.True(t, errors.As(err, &de))
	assert.Equal(t, FormatXLSX, de.Format)
}

func TestRowLookup_AcceptedAliasesOnly(t *testing.T) {
	row := Row{"nik": " 123 ", "Nama": "Ani", "Nama Lengkap": ""}

	v, ok := row.Lookup("NIK", "nik")
	assert.True(t, ok)
	assert.Equal(t, "123", v)

	_, ok = row.Lookup("Nama Lengkap", "nama_lengkap")
	assert.False(t, ok)
}
