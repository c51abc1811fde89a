package loader

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lightartw/textanalyze/types"
)

func TestParseWithHeader(t *testing.T) {
	input := `编号,标题,日期,分类,链接
1,"Saudi extends cut, again",2024-03-05,energy,https://example.com/a
2,Fed holds rates,2024-03-06,macro,ftp://example.com/b
3,Hurricane season outlook,2024-03-07,weather,http://example.com/c
`
	items, err := Parse(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, &NewsItem{
		ID:       "1",
		Title:    "Saudi extends cut, again",
		Date:     "2024-03-05",
		Category: "energy",
		URL:      "https://example.com/a",
	}, items[0])
	assert.Equal(t, "3", items[1].ID)
}

func TestParseWithoutHeader(t *testing.T) {
	input := "7,Title,2024-01-01,macro,https://example.com/x\n\n8,Other,2024-01-02,macro,https://example.com/y\n"
	items, err := Parse(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "7", items[0].ID)

	// a first row without a link and without header words is data, and invalid
	input = "9,Plain row,2024-01-01,macro,example.com\n10,Next,2024-01-02,macro,https://example.com/z\n"
	items, err = Parse(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "10", items[0].ID)
}

func TestParseErrors(t *testing.T) {
	_, err := Parse(strings.NewReader("a,b,c\n"))
	assert.True(t, errors.Is(err, errors.NotValid))

	items, err := Parse(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, items)

	// short rows after the first are skipped
	items, err = Parse(strings.NewReader("1,a,d,c,https://x\n2,b\n"))
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestLoad(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.csv"))
	assert.True(t, errors.Is(err, errors.NotFound))

	path := filepath.Join(t.TempDir(), "input.csv")
	require.NoError(t, os.WriteFile(path, []byte("id,title,date,category,url\n1,t,2024-01-01,c,https://e\n"), 0o644))
	items, err := Load(path)
	require.NoError(t, err)
	require.Len(t, items, 1)

	assert.Equal(t, types.Data{
		"id":       "1",
		"title":    "t",
		"date":     "2024-01-01",
		"category": "c",
		"url":      "https://e",
	}, items[0].ToData())
}
