package metadata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStripBreaksHandlesTrailingShortTag(t *testing.T) {
	require.Equal(t, "a\n", stripBreaks("a<br>"))
	require.Equal(t, "a\nb", stripBreaks("a<br/>b"))
	require.Equal(t, "plain text", stripBreaks("plain text"))
}

func TestFormatSummaryModes(t *testing.T) {
	require.Equal(t, "a\nb", formatSummary("a<br>b", "text"))
	require.Equal(t, "a<br>b", formatSummary("a<br>b", "br"))
	require.Equal(t, "<p>a<br>b</p>", formatSummary("a<br>b", "html"))
}

func TestHTTPCoverServiceWritesCoverToEachOverrideDir(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("jpeg-bytes"))
	}))
	defer srv.Close()

	dirA := filepath.Join(t.TempDir(), "a")
	dirB := filepath.Join(t.TempDir(), "b")
	require.NoError(t, os.MkdirAll(dirA, 0o755))
	require.NoError(t, os.MkdirAll(dirB, 0o755))

	svc := NewHTTPCoverService(srv.Client(), srv.URL+"/")
	require.NoError(t, svc.EnsureCover(context.Background(), []string{dirA, dirB}, "cover1"))

	for _, dir := range []string{dirA, dirB} {
		data, err := os.ReadFile(filepath.Join(dir, "cover.jpg"))
		require.NoError(t, err)
		require.Equal(t, "jpeg-bytes", string(data))
	}
}

func TestHTTPCoverServiceNoopWithoutB2Key(t *testing.T) {
	svc := NewHTTPCoverService(nil, "https://example.invalid/")
	require.NoError(t, svc.EnsureCover(context.Background(), []string{t.TempDir()}, ""))
}

func TestLocalDetailsServicePrefersMatchedPayload(t *testing.T) {
	dir := t.TempDir()
	svc := &LocalDetailsService{DescriptionMode: "text"}
	payload := &SearchPayload{Title: "One Piece"}

	require.NoError(t, svc.EnsureDetails(context.Background(), []string{dir}, EnsureRequest{DisplayTitle: "One Piece"}, payload))

	data, err := os.ReadFile(filepath.Join(dir, "details.json"))
	require.NoError(t, err)
	require.Contains(t, string(data), `"title": "One Piece"`)
	require.Contains(t, string(data), `"source": "comick"`)
}

func TestLocalDetailsServiceFallsBackToComicInfoXML(t *testing.T) {
	dir := t.TempDir()
	svc := &LocalDetailsService{DescriptionMode: "text"}
	xml := []byte(`<ComicInfo><Series>Fallback Title</Series><Summary>Line one<br>Line two</Summary></ComicInfo>`)

	require.NoError(t, svc.EnsureDetails(context.Background(), []string{dir}, EnsureRequest{DisplayTitle: "Fallback Title", SourceComicInfoXML: xml}, nil))

	data, err := os.ReadFile(filepath.Join(dir, "details.json"))
	require.NoError(t, err)
	require.Contains(t, string(data), "Fallback Title")
	require.Contains(t, string(data), `"source": "local"`)
}
