// Package knowledgebase writes scraped sources into the paginated PDF artifact
// and extracts its text back for indexing.
package knowledgebase

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-pdf/fpdf"
	"github.com/ledongthuc/pdf"

	"wikirag/internal/domain"
)

// DefaultPath is where the knowledge base is written when no path is configured.
const DefaultPath = "DOCS/scraped_data.pdf"

// Page layout in points (Letter, Times 12).
const (
	marginLeft   = 40
	marginTop    = 50
	marginRight  = 40
	marginBottom = 50
	fontSize     = 12
	lineHeight   = 14

	// Glyphs whose baselines differ by less than this share a row.
	baselineTolerance = 0.5
)

// Heading returns the delimited section heading for a source title.
func Heading(title string) string {
	return "## " + title + " ##"
}

// Lines returns the logical lines written to the artifact: for every source a
// heading, its text lines, and two blank separator lines.
func Lines(scraped domain.ScrapedText) []string {
	var lines []string
	for _, st := range scraped {
		lines = append(lines, Heading(st.Source.Title))
		lines = append(lines, strings.Split(st.Text, "\n")...)
		lines = append(lines, "", "")
	}
	return lines
}

// Write renders scraped into a PDF at path, creating parent directories and
// replacing any existing file. Long lines wrap and pages break automatically.
func Write(path string, scraped domain.ScrapedText) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating output directory: %w", err)
		}
	}
	doc := fpdf.New("P", "pt", "Letter", "")
	doc.SetMargins(marginLeft, marginTop, marginRight)
	doc.SetAutoPageBreak(true, marginBottom)
	doc.SetTitle("Knowledge base", true)
	doc.AddPage()
	doc.SetFont("Times", "", fontSize)
	// Times is a core font: cp1252 only, other runes print as '.'.
	tr := doc.UnicodeTranslatorFromDescriptor("")

	for _, line := range Lines(scraped) {
		if line == "" {
			doc.Ln(lineHeight)
			continue
		}
		doc.MultiCell(0, lineHeight, tr(line), "", "L", false)
	}
	if err := doc.OutputFileAndClose(path); err != nil {
		return fmt.Errorf("writing pdf: %w", err)
	}
	return nil
}

// Exists reports whether the artifact is present at path.
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// ReadText extracts the text of every page of the PDF at path, one line per
// printed row, so wrapped lines keep their word boundary. A missing file
// yields domain.ErrMissingArtifact.
func ReadText(path string) (string, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w (%s)", domain.ErrMissingArtifact, path)
		}
		return "", err
	}
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening pdf: %w", err)
	}
	defer f.Close()

	var rows []string
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		lines, err := pageRows(p)
		if err != nil {
			return "", fmt.Errorf("extracting text of page %d: %w", i, err)
		}
		rows = append(rows, lines...)
	}
	return strings.Join(rows, "\n"), nil
}

// pageRows groups the glyphs of p, in content-stream order, into rows by
// their baseline.
func pageRows(p pdf.Page) (rows []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			rows, err = nil, fmt.Errorf("malformed content stream: %v", r)
		}
	}()

	var row strings.Builder
	baseline := math.NaN()
	for _, t := range p.Content().Text {
		if !math.IsNaN(baseline) && math.Abs(t.Y-baseline) > baselineTolerance {
			rows = append(rows, row.String())
			row.Reset()
		}
		baseline = t.Y
		row.WriteString(t.S)
	}
	if row.Len() > 0 {
		rows = append(rows, row.String())
	}
	return rows, nil
}
