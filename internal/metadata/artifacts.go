package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// HTTPCoverService downloads a title's cover image from the Comick CDN
// and writes it to cover.jpg in each requested override directory.
type HTTPCoverService struct {
	Client    *http.Client
	CDNPrefix string // e.g. "https://meo.comick.pictures/"
}

// NewHTTPCoverService builds an HTTPCoverService with sane defaults.
func NewHTTPCoverService(client *http.Client, cdnPrefix string) *HTTPCoverService {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPCoverService{Client: client, CDNPrefix: cdnPrefix}
}

// EnsureCover implements CoverService.
func (s *HTTPCoverService) EnsureCover(ctx context.Context, overrideDirs []string, b2Key string) error {
	if b2Key == "" || len(overrideDirs) == 0 {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.CDNPrefix+b2Key, nil)
	if err != nil {
		return fmt.Errorf("build cover request: %w", err)
	}
	resp, err := s.Client.Do(req)
	if err != nil {
		return fmt.Errorf("download cover: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("download cover: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read cover body: %w", err)
	}
	for _, dir := range overrideDirs {
		if err := atomicWriteFile(filepath.Join(dir, "cover.jpg"), data); err != nil {
			return err
		}
	}
	return nil
}

// detailsDocument is the on-disk details.json shape.
type detailsDocument struct {
	Title     string   `json:"title"`
	Authors   []string `json:"authors,omitempty"`
	Artists   []string `json:"artists,omitempty"`
	Genres    []string `json:"genres,omitempty"`
	Status    string   `json:"status,omitempty"`
	Summary   string   `json:"summary,omitempty"`
	Source    string   `json:"source"` // "comick" or "local"
}

// LocalDetailsService writes details.json from a matched payload, or
// falls back to a source branch's own details.json/ComicInfo.xml.
type LocalDetailsService struct {
	DescriptionMode string // "text", "br", or "html" (spec.md runtime.details_description_mode)
}

// EnsureDetails implements DetailsService.
func (s *LocalDetailsService) EnsureDetails(ctx context.Context, overrideDirs []string, req EnsureRequest, payload *SearchPayload) error {
	if len(overrideDirs) == 0 {
		return nil
	}
	doc, err := s.buildDocument(req, payload)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal details.json: %w", err)
	}
	for _, dir := range overrideDirs {
		if err := atomicWriteFile(filepath.Join(dir, "details.json"), data); err != nil {
			return err
		}
	}
	return nil
}

func (s *LocalDetailsService) buildDocument(req EnsureRequest, payload *SearchPayload) (detailsDocument, error) {
	if payload != nil {
		return detailsDocument{
			Title:  payload.Title,
			Status: "",
			Source: "comick",
		}, nil
	}
	if len(req.SourceDetailsJSON) > 0 {
		var doc detailsDocument
		if err := json.Unmarshal(req.SourceDetailsJSON, &doc); err == nil {
			doc.Source = "local"
			return doc, nil
		}
	}
	if len(req.SourceComicInfoXML) > 0 {
		info := ParseComicInfo(req.SourceComicInfoXML)
		return detailsDocument{
			Title:   firstNonEmpty(info.Series, req.DisplayTitle),
			Authors: nonEmptyList(info.Writer),
			Artists: nonEmptyList(info.Penciller),
			Genres:  nonEmptyList(info.Genre),
			Status:  info.Status,
			Summary: formatSummary(info.Summary, s.DescriptionMode),
			Source:  "local",
		}, nil
	}
	return detailsDocument{Title: req.DisplayTitle, Source: "local"}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func nonEmptyList(v string) []string {
	if v == "" {
		return nil
	}
	return []string{v}
}

// formatSummary renders a ComicInfo Summary per
// runtime.details_description_mode: "text" strips <br/> markers to
// newlines, "br" keeps them as literal HTML, "html" wraps the whole
// summary as a single HTML blob.
func formatSummary(summary, mode string) string {
	switch mode {
	case "br":
		return summary
	case "html":
		return "<p>" + summary + "</p>"
	default:
		return stripBreaks(summary)
	}
}

func stripBreaks(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); {
		rest := s[i:]
		switch {
		case strings.HasPrefix(rest, "<br/>"):
			b.WriteByte('\n')
			i += len("<br/>")
		case strings.HasPrefix(rest, "<br>"):
			b.WriteByte('\n')
			i += len("<br>")
		default:
			b.WriteByte(s[i])
			i++
		}
	}
	return b.String()
}

func atomicWriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("ensure directory %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file in %s: %w", dir, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file %s: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename %s to %s: %w", tmpPath, path, err)
	}
	return nil
}
