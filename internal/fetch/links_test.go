package fetch

import (
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const portalPage = `<html><body>
<a href="/exports/appraisal_roll_2026.csv">Appraisal Roll</a>
<a href="land_values.zip">Land Values</a>
<a href="https://data.example.gov/api/views/abcd?format=csv">API export</a>
<a href="/exports/readme.html">About this data</a>
<a href="/exports/appraisal_roll_2026.csv">duplicate</a>
<a href="mailto:opendata@example.gov">Contact</a>
<a href="   ">blank</a>
</body></html>`

func TestExtractExportLinks(t *testing.T) {
	base, err := url.Parse("https://data.example.gov/portal/")
	require.NoError(t, err)
	links, err := ExtractExportLinks(base, strings.NewReader(portalPage))
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://data.example.gov/exports/appraisal_roll_2026.csv",
		"https://data.example.gov/portal/land_values.zip",
		"https://data.example.gov/api/views/abcd?format=csv",
	}, links)
}

func TestExtractExportLinksEmptyPage(t *testing.T) {
	base, _ := url.Parse("https://example.gov/")
	links, err := ExtractExportLinks(base, strings.NewReader("<html><body><p>nothing</p></body></html>"))
	require.NoError(t, err)
	assert.Empty(t, links)
}

func TestIsExportLink(t *testing.T) {
	for link, want := range map[string]bool{
		"https://x.gov/a.CSV":               true,
		"https://x.gov/a.zip":               true,
		"https://x.gov/dl?outputFormat=CSV": true,
		"https://x.gov/dl?f=zip":            true,
		"https://x.gov/a.pdf":               false,
		"https://x.gov/dl?format=json":      false,
	} {
		u, err := url.Parse(link)
		require.NoError(t, err)
		assert.Equal(t, want, isExportLink(u), link)
	}
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "roll.csv", fileName("https://x.gov/exports/roll.csv"))
	assert.Equal(t, "export.csv", fileName("https://x.gov/"))
}
