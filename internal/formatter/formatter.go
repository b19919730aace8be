// package formatter exports song request history to CSV, Markdown and plain text
package formatter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/desertthunder/melodyflow/internal/models"
	"github.com/desertthunder/melodyflow/internal/shared"
	"github.com/desertthunder/melodyflow/internal/views"
)

// Format is an export file format.
type Format string

const (
	FormatCSV      Format = "csv"
	FormatMarkdown Format = "md"
	FormatText     Format = "txt"
)

// ParseFormat accepts csv, md/markdown and txt/text.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "csv":
		return FormatCSV, nil
	case "md", "markdown":
		return FormatMarkdown, nil
	case "txt", "text":
		return FormatText, nil
	default:
		return "", fmt.Errorf("%w: unknown export format %q", shared.ErrInvalidArgument, s)
	}
}

// History is a titled set of requests captured at GeneratedAt.
type History struct {
	Title       string
	GeneratedAt time.Time
	Requests    []models.SongRequest
}

// Metadata summarizes a [History] without its rows.
type Metadata struct {
	Title       string    `json:"title"`
	GeneratedAt time.Time `json:"generated_at"`
	Total       int       `json:"total"`
	Pending     int       `json:"pending"`
	Played      int       `json:"played"`
	Rejected    int       `json:"rejected"`
}

// ExportToCSV writes one row per request with columns: ID, Title, Artist, Requested By, Status, Created At
func ExportToCSV(h *History) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"ID", "Title", "Artist", "Requested By", "Status", "Created At"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, r := range h.Requests {
		record := []string{
			r.ID.String(),
			r.Title,
			r.Artist,
			r.UserName,
			string(r.Status),
			r.CreatedAt.UTC().Format(time.RFC3339),
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ExportToMarkdown renders the history with an optional cover image
func ExportToMarkdown(h *History, imageFilename string) ([]byte, error) {
	var buf bytes.Buffer
	tally := views.Counts(h.Requests)

	buf.WriteString(fmt.Sprintf("# %s\n\n", h.Title))

	if imageFilename != "" {
		buf.WriteString(fmt.Sprintf("![Cover](%s)\n\n", imageFilename))
	}

	buf.WriteString(fmt.Sprintf("**Requests**: %d\n", tally.Total()))
	buf.WriteString(fmt.Sprintf("**Pending**: %d | **Played**: %d | **Rejected**: %d\n\n", tally.Pending, tally.Played, tally.Rejected))

	buf.WriteString("## Requests\n\n")
	for i, r := range h.Requests {
		by := ""
		if r.UserName != "" {
			by = fmt.Sprintf(", requested by %s", r.UserName)
		}
		buf.WriteString(fmt.Sprintf("%d. %s - %s%s [%s] (%s)\n",
			i+1, r.Artist, r.Title, by, r.Status, views.TimeAgo(r.CreatedAt, h.GeneratedAt)))
	}

	return buf.Bytes(), nil
}

// ExportToText renders the history as plain text
func ExportToText(h *History) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("Requests: %s\n", h.Title))
	buf.WriteString(fmt.Sprintf("Total: %d\n\n", len(h.Requests)))

	for i, r := range h.Requests {
		buf.WriteString(fmt.Sprintf("%d. %s - %s [%s]\n", i+1, r.Artist, r.Title, r.Status))
	}

	return buf.Bytes(), nil
}

// DownloadImage downloads an image from the given URL and returns the raw bytes
func DownloadImage(url string) ([]byte, error) {
	if url == "" {
		return nil, fmt.Errorf("empty URL provided")
	}

	client := &http.Client{
		Timeout: 30 * time.Second,
	}

	resp, err := client.Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download image: status %d", resp.StatusCode)
	}

	imageData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}

	return imageData, nil
}

// ToMetadataJSON generates an indented JSON summary of the history (without rows)
func ToMetadataJSON(h *History) ([]byte, error) {
	tally := views.Counts(h.Requests)
	return json.MarshalIndent(Metadata{
		Title:       h.Title,
		GeneratedAt: h.GeneratedAt.UTC(),
		Total:       tally.Total(),
		Pending:     tally.Pending,
		Played:      tally.Played,
		Rejected:    tally.Rejected,
	}, "", "  ")
}

// CSVExportResult contains the paths of files created by WriteCSVExport
type CSVExportResult struct {
	RequestsFile string
	MetadataFile string
}

// WriteCSVExport writes {base}_requests.csv and {base}_metadata.json.
//
// base defaults to "requests".
func WriteCSVExport(h *History, baseFilepath string) (*CSVExportResult, error) {
	if baseFilepath == "" {
		baseFilepath = "requests"
	}

	csvData, err := ExportToCSV(h)
	if err != nil {
		return nil, fmt.Errorf("failed to generate CSV: %w", err)
	}

	requestsFile := baseFilepath + "_requests.csv"
	if err := os.WriteFile(requestsFile, csvData, 0644); err != nil {
		return nil, fmt.Errorf("failed to write CSV file: %w", err)
	}

	metadataJSON, err := ToMetadataJSON(h)
	if err != nil {
		return nil, fmt.Errorf("failed to generate metadata JSON: %w", err)
	}

	metadataFile := baseFilepath + "_metadata.json"
	if err := os.WriteFile(metadataFile, metadataJSON, 0644); err != nil {
		return nil, fmt.Errorf("failed to write metadata file: %w", err)
	}

	return &CSVExportResult{
		RequestsFile: requestsFile,
		MetadataFile: metadataFile,
	}, nil
}

// MarkdownExportResult contains information about files created by WriteMarkdownExport
type MarkdownExportResult struct {
	Directory  string
	Files      []string
	CoverImage string
}

// WriteMarkdownExport writes {dir}/README.md and, when imageURL downloads, {dir}/cover.jpg.
//
// dir defaults to "requests". A failed cover download is reported on stderr and skipped.
func WriteMarkdownExport(h *History, outputDir string, imageURL string) (*MarkdownExportResult, error) {
	if outputDir == "" {
		outputDir = "requests"
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	result := &MarkdownExportResult{
		Directory: outputDir,
		Files:     []string{},
	}

	var coverImageFilename string
	if imageURL != "" {
		imageData, err := DownloadImage(imageURL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to download cover image: %v\n", err)
		} else {
			coverImageFilename = "cover.jpg"
			coverImagePath := filepath.Join(outputDir, coverImageFilename)
			if err := os.WriteFile(coverImagePath, imageData, 0644); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to save cover image: %v\n", err)
				coverImageFilename = ""
			} else {
				result.CoverImage = coverImagePath
				result.Files = append(result.Files, coverImagePath)
			}
		}
	}

	mdData, err := ExportToMarkdown(h, coverImageFilename)
	if err != nil {
		return nil, fmt.Errorf("failed to generate Markdown: %w", err)
	}

	mdFile := filepath.Join(outputDir, "README.md")
	if err := os.WriteFile(mdFile, mdData, 0644); err != nil {
		return nil, fmt.Errorf("failed to write Markdown file: %w", err)
	}

	result.Files = append(result.Files, mdFile)

	return result, nil
}

// WriteTextExport writes the plain text export, defaulting to requests.txt.
func WriteTextExport(h *History, path string) (string, error) {
	if path == "" {
		path = "requests.txt"
	}

	textData, err := ExportToText(h)
	if err != nil {
		return "", fmt.Errorf("failed to generate text: %w", err)
	}

	if err := os.WriteFile(path, textData, 0644); err != nil {
		return "", fmt.Errorf("failed to write text file: %w", err)
	}

	return path, nil
}

// CoverURL returns the cover of the most recent request that has one.
func CoverURL(h *History) string {
	for _, r := range h.Requests {
		if r.CoverURL != "" {
			return r.CoverURL
		}
	}
	return ""
}
