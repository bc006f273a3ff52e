package satellite

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultTable_Qualifies(t *testing.T) {
	table := DefaultTable()

	assert.True(t, table.Qualifies("LC8", "r6g5b4"))
	assert.True(t, table.Qualifies("LE7", "r5g4b3"))
	assert.True(t, table.Qualifies("LT5", "r5g4b3"))
	assert.False(t, table.Qualifies("LC8", "r5g4b3"))
	assert.False(t, table.Qualifies("LE7", "r6g5b4"))
	assert.False(t, table.Qualifies("LC8", "BQA"))
	assert.False(t, table.Qualifies("S2A", "r6g5b4"))
}

func TestTable_RevisitDays(t *testing.T) {
	table := NewTable(16, Family{Code: "XX1", Bucket: "x", RevisitDays: 5})

	assert.Equal(t, 5, table.RevisitDays("XX1"))
	assert.Equal(t, 16, table.RevisitDays("unknown"))
}

func TestDefaultFamilies_TakeTableCycle(t *testing.T) {
	table := NewTable(18, DefaultFamilies()...)

	assert.Equal(t, 18, table.RevisitDays("LC8"))
	assert.Equal(t, []string{"LC8", "LE7", "LT5"}, table.Codes())
}

func TestParse(t *testing.T) {
	table, err := Parse([]byte(`
revisit_days: 18
families:
  - code: LC8
    bucket: landsat8
    tiled_types: [r6g5b4, r4g3b2]
  - code: LC9
    bucket: landsat9
    revisit_days: 8
`), 16)

	require.Nil(t, err)
	assert.Equal(t, []string{"LC8", "LC9"}, table.Codes())
	assert.Equal(t, 18, table.RevisitDays("LC8"))
	assert.Equal(t, 8, table.RevisitDays("LC9"))
	assert.True(t, table.Qualifies("LC8", "r4g3b2"))

	f, ok := table.Lookup("LC9")
	assert.True(t, ok)
	assert.Equal(t, "landsat9", f.Bucket)
}

func TestParse_RejectsBadCode(t *testing.T) {
	_, err := Parse([]byte("families:\n  - code: L8\n    bucket: x\n"), 16)
	assert.NotNil(t, err)
}

func TestLoad(t *testing.T) {
	table, err := Load("", 20)
	require.Nil(t, err)
	assert.Equal(t, 20, table.RevisitDays("LC8"))
	assert.True(t, table.Qualifies("LC8", "r6g5b4"))

	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.Nil(t, os.WriteFile(path, []byte("families:\n  - code: LE7\n    bucket: landsat7\n"), 0o644))
	table, err = Load(path, 16)
	require.Nil(t, err)
	assert.Equal(t, []string{"LE7"}, table.Codes())

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"), 16)
	assert.NotNil(t, err)
}
