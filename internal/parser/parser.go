package parser

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"html"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/xuri/excelize/v2"

	"textfile-qa/internal/models"
)

var (
	ErrNoDocuments       = errors.New("no documents uploaded")
	ErrInvalidEncoding   = errors.New("file is not valid UTF-8")
	ErrUnsupportedFormat = errors.New("unsupported file format")
)

var plainTextExtensions = map[string]bool{
	".txt":      true,
	".text":     true,
	".md":       true,
	".markdown": true,
	".csv":      true,
	".log":      true,
}

// IsSupportedExtension reports whether ExtractText can handle the file name.
func IsSupportedExtension(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	if plainTextExtensions[ext] {
		return true
	}
	switch ext {
	case ".pdf", ".docx", ".pptx", ".xlsx":
		return true
	}
	return false
}

// Concatenate extracts the text of every upload and joins the results in upload order.
// No separator is inserted between files.
func Concatenate(uploads []models.Upload) (string, error) {
	if len(uploads) == 0 {
		return "", ErrNoDocuments
	}
	var text strings.Builder
	for _, u := range uploads {
		content, err := ExtractText(u.Name, u.Data)
		if err != nil {
			return "", err
		}
		text.WriteString(content)
	}
	return text.String(), nil
}

// ExtractText returns the text content of one uploaded file, chosen by extension.
func ExtractText(name string, data []byte) (string, error) {
	ext := strings.ToLower(filepath.Ext(name))
	if plainTextExtensions[ext] {
		return parseText(name, data)
	}
	switch ext {
	case ".pdf":
		return parsePDF(data)
	case ".docx":
		return parseDOCX(data)
	case ".pptx":
		return parsePPTX(data)
	case ".xlsx":
		return parseXLSX(data)
	default:
		return "", fmt.Errorf("%w: %q (%s)", ErrUnsupportedFormat, ext, name)
	}
}

func parseText(name string, data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: %s", ErrInvalidEncoding, name)
	}
	return string(data), nil
}

func parsePDF(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to open pdf: %w", err)
	}

	var text strings.Builder
	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("failed to read pdf page %d: %w", i, err)
		}
		text.WriteString(pageText)
		text.WriteString("\n\n")
	}
	return text.String(), nil
}

func parseDOCX(data []byte) (string, error) {
	r, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to open docx: %w", err)
	}
	defer r.Close()

	// GetContent returns the raw document.xml body; paragraphs end with </w:p>
	content := r.Editable().GetContent()
	var text strings.Builder
	for _, p := range strings.Split(content, "</w:p>") {
		paragraph := strings.TrimSpace(extractTextFromXML(p, "w:t"))
		if paragraph == "" {
			continue
		}
		text.WriteString(paragraph)
		text.WriteString("\n\n")
	}
	return text.String(), nil
}

func parsePPTX(data []byte) (string, error) {
	f, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to open pptx: %w", err)
	}

	var text strings.Builder
	for _, file := range f.File {
		if !strings.HasPrefix(file.Name, "ppt/slides/slide") {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return "", fmt.Errorf("failed to open slide %s: %w", file.Name, err)
		}
		slide, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return "", fmt.Errorf("failed to read slide %s: %w", file.Name, err)
		}
		slideText := strings.TrimSpace(extractTextFromXML(string(slide), "a:t"))
		if slideText != "" {
			text.WriteString(slideText)
			text.WriteString("\n\n")
		}
	}
	return text.String(), nil
}

func parseXLSX(data []byte) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to open xlsx: %w", err)
	}
	defer f.Close()

	var text strings.Builder
	for _, sheetName := range f.GetSheetList() {
		rows, err := f.GetRows(sheetName)
		if err != nil {
			return "", fmt.Errorf("failed to read sheet %s: %w", sheetName, err)
		}
		text.WriteString(fmt.Sprintf("## Sheet: %s\n", sheetName))
		for _, row := range rows {
			text.WriteString(strings.Join(row, "\t"))
			text.WriteString("\n")
		}
		text.WriteString("\n")
	}
	return text.String(), nil
}

// extractTextFromXML collects the character data of every <tag>...</tag> element,
// separated by spaces, with entities decoded. Attributes on the opening tag are tolerated.
func extractTextFromXML(xmlContent, tag string) string {
	var text strings.Builder
	open := "<" + tag
	closing := "</" + tag + ">"
	for {
		start := strings.Index(xmlContent, open)
		if start < 0 {
			break
		}
		rest := xmlContent[start+len(open):]
		// skip <w:tbl>, <a:tab> and friends that share the prefix
		if len(rest) == 0 || (rest[0] != '>' && rest[0] != ' ') {
			xmlContent = rest
			continue
		}
		gt := strings.IndexByte(rest, '>')
		if gt < 0 {
			break
		}
		rest = rest[gt+1:]
		end := strings.Index(rest, closing)
		if end < 0 {
			break
		}
		text.WriteString(html.UnescapeString(rest[:end]) + " ")
		xmlContent = rest[end+len(closing):]
	}
	return text.String()
}
