package metadata

import (
	"bufio"
	"bytes"
	"encoding/xml"
	"html"
	"regexp"
	"strings"
)

// comicInfoXML mirrors the subset of ComicInfo.xml this daemon reads.
type comicInfoXML struct {
	XMLName                  xml.Name `xml:"ComicInfo"`
	Series                   string   `xml:"Series"`
	Writer                   string   `xml:"Writer"`
	Penciller                string   `xml:"Penciller"`
	Genre                    string   `xml:"Genre"`
	Status                   string   `xml:"Status"`
	PublishingStatusTachiyomi string  `xml:"PublishingStatusTachiyomi"`
	Summary                  string   `xml:"Summary"`
}

// ParseComicInfo parses a ComicInfo.xml document (spec.md §4.11). It
// tries strict XML decoding first; on any failure it falls through to a
// tolerant line scanner that reads scalar elements directly and
// preserves inline "<br/>" markers in a multi-line Summary, decoding
// HTML entities along the way.
func ParseComicInfo(data []byte) ComicInfo {
	var doc comicInfoXML
	if err := xml.Unmarshal(data, &doc); err == nil && doc.XMLName.Local == "ComicInfo" {
		status := doc.Status
		if status == "" {
			status = doc.PublishingStatusTachiyomi
		}
		return ComicInfo{
			Series:    doc.Series,
			Writer:    doc.Writer,
			Penciller: doc.Penciller,
			Genre:     doc.Genre,
			Status:    status,
			Summary:   doc.Summary,
		}
	}
	return parseComicInfoTolerant(data)
}

var tolerantElementRe = regexp.MustCompile(`^<(\w+)>(.*)</\w+>\s*$`)

// parseComicInfoTolerant scans data line by line for scalar elements.
// It does not attempt to be a general XML parser: it exists because
// some ComicInfo.xml files in the wild are not well-formed (unescaped
// ampersands, stray tags inside Summary) but still carry usable scalar
// fields plus a multi-line Summary block.
func parseComicInfoTolerant(data []byte) ComicInfo {
	info := ComicInfo{UsedTolerantFallback: true}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	inSummary := false
	var summary strings.Builder

	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)

		if inSummary {
			if idx := strings.Index(trimmed, "</Summary>"); idx >= 0 {
				summary.WriteString(trimmed[:idx])
				inSummary = false
				continue
			}
			if summary.Len() > 0 {
				summary.WriteByte('\n')
			}
			summary.WriteString(trimmed)
			continue
		}

		if strings.HasPrefix(trimmed, "<Summary>") {
			rest := strings.TrimPrefix(trimmed, "<Summary>")
			if idx := strings.Index(rest, "</Summary>"); idx >= 0 {
				summary.WriteString(rest[:idx])
			} else {
				summary.WriteString(rest)
				inSummary = true
			}
			continue
		}

		m := tolerantElementRe.FindStringSubmatch(trimmed)
		if m == nil {
			continue
		}
		tag, value := m[1], html.UnescapeString(m[2])
		switch tag {
		case "Series":
			info.Series = value
		case "Writer":
			info.Writer = value
		case "Penciller":
			info.Penciller = value
		case "Genre":
			info.Genre = value
		case "Status":
			info.Status = value
		case "PublishingStatusTachiyomi":
			if info.Status == "" {
				info.Status = value
			}
		}
	}

	info.Summary = html.UnescapeString(summary.String())
	return info
}
