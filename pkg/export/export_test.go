package export

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func sampleDataset() Dataset {
	return Dataset{
		Sheet:   "Marksheet Summary",
		Headers: []string{"Roll Number", "Student Name", "Result"},
		Rows: [][]string{
			{"101", "Asha Verma", "PASS FIRST"},
			{"102", strings.Repeat("Long Name ", 10), "FAIL"},
			{"103"},
		},
	}
}

func TestCSVExporterWritesBOMAndPadsShortRows(t *testing.T) {
	payload, err := NewCSVExporter().Render(sampleDataset())
	require.NoError(t, err)

	require.True(t, bytes.HasPrefix(payload, []byte{0xEF, 0xBB, 0xBF}))
	lines := strings.Split(strings.TrimSpace(string(payload[3:])), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "Roll Number,Student Name,Result", lines[0])
	assert.Equal(t, "101,Asha Verma,PASS FIRST", lines[1])
	assert.Equal(t, "103,,", lines[3])
}

func TestCSVExporterRejectsEmptyHeaders(t *testing.T) {
	_, err := NewCSVExporter().Render(Dataset{})
	assert.Error(t, err)

	_, err = NewCSVExporter().Render(Dataset{Headers: []string{"A"}, Rows: [][]string{{"1", "2"}}})
	assert.Error(t, err)
}

func TestXLSXExporterSheetAndWidths(t *testing.T) {
	payload, err := NewXLSXExporter(30).Render(sampleDataset())
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(payload))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Marksheet Summary"}, f.GetSheetList())

	value, err := f.GetCellValue("Marksheet Summary", "B2")
	require.NoError(t, err)
	assert.Equal(t, "Asha Verma", value)

	rollWidth, err := f.GetColWidth("Marksheet Summary", "A")
	require.NoError(t, err)
	assert.InDelta(t, float64(len("Roll Number")+2), rollWidth, 0.01)

	nameWidth, err := f.GetColWidth("Marksheet Summary", "B")
	require.NoError(t, err)
	assert.InDelta(t, 30, nameWidth, 0.01)
}

func TestXLSXExporterDefaultsCap(t *testing.T) {
	assert.Equal(t, float64(defaultWidthCap), NewXLSXExporter(0).widthCap)
}

func TestPDFExporterRendersDocument(t *testing.T) {
	data := sampleDataset()
	for i := 0; i < 120; i++ {
		data.Rows = append(data.Rows, []string{"200", "Student", "PASS"})
	}
	payload, err := NewPDFExporter().Render(data)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(payload, []byte("%PDF")))
}

func TestRendererMetadata(t *testing.T) {
	cases := []struct {
		renderer Renderer
		ext      string
	}{
		{NewCSVExporter(), "csv"},
		{NewXLSXExporter(50), "xlsx"},
		{NewPDFExporter(), "pdf"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.ext, tc.renderer.Extension())
		assert.NotEmpty(t, tc.renderer.ContentType())
	}
}
