package standard

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSourceTypeKind(t *testing.T) {
	tests := []struct {
		typ  SourceType
		want Kind
	}{
		{TypeFCCCFR, KindRegulatoryTitleCode},
		{TypeISED, KindCountryAgencyIssue},
		{TypeETSI, KindEuropeanTechnicalSpec},
		{"ANSI", KindUnclassified},
		{"", KindUnclassified},
	}
	for _, tt := range tests {
		t.Run(string(tt.typ), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.typ.Kind())
		})
	}
}

func TestSource(t *testing.T) {
	t.Run("title code", func(t *testing.T) {
		s := &Standard{ID: "FCC-15", Type: TypeFCCCFR, Title: "47"}
		src, err := s.Source()
		require.NoError(t, err)
		assert.Equal(t, TitleCode{Title: "47"}, src)
	})

	t.Run("agency issue", func(t *testing.T) {
		s := &Standard{ID: "RSS-247", Type: TypeISED, SourceURL: "https://example.test/rss-247", RSSID: "247"}
		src, err := s.Source()
		require.NoError(t, err)
		assert.Equal(t, AgencyIssue{URL: "https://example.test/rss-247", RSSID: "247"}, src)
	})

	t.Run("unknown type falls back to unclassified", func(t *testing.T) {
		s := &Standard{ID: "C63.10", Type: "ANSI", SourceURL: "https://example.test/c63"}
		src, err := s.Source()
		require.NoError(t, err)
		assert.Equal(t, KindUnclassified, src.Kind())
	})

	t.Run("missing locator", func(t *testing.T) {
		for _, s := range []*Standard{
			{ID: "a", Type: TypeFCCCFR},
			{ID: "b", Type: TypeISED},
			{ID: "c", Type: TypeETSI},
			{ID: "d", Type: "ANSI"},
		} {
			_, err := s.Source()
			assert.True(t, errors.Is(err, ErrMissingLocator), s.ID)
		}
	})
}

func TestJSONRoundTripPreservesUnknownFields(t *testing.T) {
	in := `{"id":"FCC-15","name":"Part 15","type":"FCC_CFR","title":47,"url":"https://dash.test","current_version":null,"last_checked":null}`

	var s Standard
	require.NoError(t, json.Unmarshal([]byte(in), &s))
	assert.Equal(t, "47", s.Title)
	assert.Nil(t, s.CurrentVersion)
	assert.Nil(t, s.LastChecked)

	v := "2025-01-02"
	s.CurrentVersion = &v

	out, err := json.Marshal(s)
	require.NoError(t, err)

	var back map[string]any
	require.NoError(t, json.Unmarshal(out, &back))
	assert.Equal(t, "https://dash.test", back["url"])
	assert.Equal(t, float64(47), back["title"], "numeric title is written back unchanged")
	assert.Equal(t, "2025-01-02", back["current_version"])
	assert.Nil(t, back["last_checked"])
}

func TestJSONEmptyVersionIsNull(t *testing.T) {
	var s Standard
	require.NoError(t, json.Unmarshal([]byte(`{"id":"x","type":"ISED","current_version":""}`), &s))
	assert.Nil(t, s.CurrentVersion)
	assert.Equal(t, "", s.Version())
}

func TestMarshalIsDeterministic(t *testing.T) {
	s := Standard{ID: "EN-300-328", Name: "EN 300 328", Type: TypeETSI, SourceURL: "https://etsi.test/300328/"}
	a, err := json.Marshal(s)
	require.NoError(t, err)
	b, err := json.Marshal(s)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.NotContains(t, string(a), "rss_id")
}

func TestClone(t *testing.T) {
	v := "Issue 4"
	s := &Standard{ID: "RSS-247", CurrentVersion: &v}
	c := s.Clone()
	*c.CurrentVersion = "Issue 5"
	assert.Equal(t, "Issue 4", s.Version())
}
