package export

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSVExporterRendersHeaderOrder(t *testing.T) {
	sheet := Sheet{
		Title:   "Mid Term Result Sheet",
		Headers: []string{"Reg No", "Score", "Status"},
		Rows: []map[string]string{
			{"Reg No": "R001", "Score": "3", "Status": "Pass"},
			{"Reg No": "R002", "Score": "1", "Status": "Fail"},
		},
	}

	data, err := NewCSVExporter().Render(sheet)
	require.NoError(t, err)

	assert.Equal(t, "Reg No,Score,Status\nR001,3,Pass\nR002,1,Fail\n", string(data))
}

func TestCSVExporterRequiresHeaders(t *testing.T) {
	_, err := NewCSVExporter().Render(Sheet{})
	assert.Error(t, err)
}

func TestPDFExporterRenders(t *testing.T) {
	sheet := Sheet{
		Title:   "Mid Term Result Sheet",
		Headers: []string{"Reg No", "Score"},
		Rows:    []map[string]string{{"Reg No": "R001", "Score": "4"}},
	}

	data, err := NewPDFExporter().Render(sheet, "T1 | LEVEL_100 | 2025")
	require.NoError(t, err)
	assert.True(t, len(data) > 0)
	assert.Equal(t, "%PDF", string(data[:4]))
}
