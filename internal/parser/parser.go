package parser

import (
	"archive/zip"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/rs/zerolog/log"
	"github.com/tealeg/xlsx"
	"github.com/xuri/excelize/v2"

	"invest-guru/internal/models"
)

// Extractor turns a document on disk into page records
type Extractor interface {
	Extract(path string) ([]models.PageRecord, error)
}

// FileExtractor dispatches on the file extension
type FileExtractor struct{}

// SupportedExtensions lists every extension Extract understands
var SupportedExtensions = []string{".pdf", ".docx", ".pptx", ".xlsx", ".ods", ".txt", ".md"}

var moduleRe = regexp.MustCompile(models.ModuleRegex)

// ModuleFromFilename derives the module label from a filename. It never fails:
// a filename without a module number yields models.UnknownModule.
func ModuleFromFilename(filename string) string {
	m := moduleRe.FindStringSubmatch(filepath.Base(filename))
	if m == nil {
		return models.UnknownModule
	}
	return "Módulo " + m[1]
}

// Extract reads path with the default extractor
func Extract(path string) ([]models.PageRecord, error) {
	return FileExtractor{}.Extract(path)
}

// Extract returns one PageRecord per page with non-whitespace text. Any read
// failure is reported as *models.ExtractionError.
func (FileExtractor) Extract(path string) (pages []models.PageRecord, err error) {
	// the pdf and office readers panic on some malformed inputs
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = &models.ExtractionError{Path: path, Err: fmt.Errorf("parser panic: %v", r)}
		}
	}()

	var texts []string
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".pdf":
		texts, err = parsePDF(path)
	case ".docx":
		texts, err = parseDOCX(path)
	case ".pptx":
		texts, err = parsePPTX(path)
	case ".xlsx":
		texts, err = parseXLSX(path)
	case ".ods":
		texts, err = parseODS(path)
	case ".txt":
		texts, err = parseText(path)
	case ".md":
		texts, err = parseMarkdown(path)
	default:
		err = fmt.Errorf("unsupported file format: %s", ext)
	}
	if err != nil {
		return nil, &models.ExtractionError{Path: path, Err: err}
	}

	filename := filepath.Base(path)
	module := ModuleFromFilename(filename)
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			continue
		}
		pages = append(pages, models.PageRecord{
			Content: text,
			PageMetadata: models.PageMetadata{
				Source: filename,
				Page:   i + 1,
				Module: module,
			},
		})
	}

	log.Info().Str("source", filename).Int("pages", len(pages)).Msg("Extracted pages with text")
	return pages, nil
}

func parsePDF(filePath string) ([]string, error) {
	f, reader, err := pdf.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	numPages := reader.NumPage()
	texts := make([]string, numPages)
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		texts[i-1] = pageText
	}
	return texts, nil
}

// DOCX has no page numbers, the whole body is one page
func parseDOCX(filePath string) ([]string, error) {
	r, err := docx.ReadDocxFile(filePath)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	content := r.Editable().GetContent()
	return []string{extractTextFromXML(content, "<w:t>", "<w:t ", "</w:t>", "\n")}, nil
}

// one page per slide, ordered by slide number
func parsePPTX(filePath string) ([]string, error) {
	f, err := zip.OpenReader(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var slides []*zip.File
	for _, file := range f.File {
		if strings.HasPrefix(file.Name, "ppt/slides/slide") && strings.HasSuffix(file.Name, ".xml") {
			slides = append(slides, file)
		}
	}
	sort.Slice(slides, func(i, j int) bool {
		return slideNumber(slides[i].Name) < slideNumber(slides[j].Name)
	})

	texts := make([]string, 0, len(slides))
	for _, file := range slides {
		rc, err := file.Open()
		if err != nil {
			return nil, err
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, err
		}
		texts = append(texts, extractTextFromXML(string(data), "<a:t>", "<a:t ", "</a:t>", " "))
	}
	return texts, nil
}

func slideNumber(name string) int {
	var n int
	fmt.Sscanf(strings.TrimPrefix(name, "ppt/slides/slide"), "%d", &n)
	return n
}

// one page per sheet
func parseXLSX(filePath string) ([]string, error) {
	f, err := xlsx.OpenFile(filePath)
	if err != nil {
		return nil, err
	}

	texts := make([]string, 0, len(f.Sheets))
	for _, sheet := range f.Sheets {
		var text strings.Builder
		text.WriteString(fmt.Sprintf("## Sheet: %s\n", sheet.Name))
		for _, row := range sheet.Rows {
			for _, cell := range row.Cells {
				text.WriteString(cell.String() + "\t")
			}
			text.WriteString("\n")
		}
		texts = append(texts, text.String())
	}
	return texts, nil
}

func parseODS(filePath string) ([]string, error) {
	f, err := excelize.OpenFile(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var texts []string
	for _, sheetName := range f.GetSheetList() {
		rows, err := f.GetRows(sheetName)
		if err != nil {
			return nil, fmt.Errorf("sheet %s: %w", sheetName, err)
		}
		var text strings.Builder
		text.WriteString(fmt.Sprintf("## Sheet: %s\n", sheetName))
		for _, row := range rows {
			for _, cell := range row {
				text.WriteString(cell + "\t")
			}
			text.WriteString("\n")
		}
		texts = append(texts, text.String())
	}
	return texts, nil
}

// extractTextFromXML collects the text of every element opened by open (or
// openAttr when the tag carries attributes) and closed by closeTag
func extractTextFromXML(xmlContent, open, openAttr, closeTag, sep string) string {
	var text strings.Builder
	rest := xmlContent
	for {
		i := strings.Index(rest, open)
		j := strings.Index(rest, openAttr)
		if i < 0 || (j >= 0 && j < i) {
			i = j
		}
		if i < 0 {
			break
		}
		rest = rest[i:]
		gt := strings.IndexByte(rest, '>')
		if gt < 0 {
			break
		}
		rest = rest[gt+1:]
		end := strings.Index(rest, closeTag)
		if end < 0 {
			break
		}
		text.WriteString(rest[:end] + sep)
		rest = rest[end+len(closeTag):]
	}
	return text.String()
}
