package services

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
)

// maxResumeChars caps the text sent to the oracle; longer resumes are cut at a
// line boundary.
const maxResumeChars = 20000

// ExtractResumeText reads a PDF, DOCX or plain-text resume.
func ExtractResumeText(path string) (string, error) {
	var (
		text string
		err  error
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".txt", ".md":
		var b []byte
		b, err = os.ReadFile(path)
		text = string(b)
	case ".pdf":
		text, err = readPDFText(path)
	case ".docx":
		text, err = readDOCXText(path)
	default:
		return "", fmt.Errorf("unsupported resume format: %s", ext)
	}
	if err != nil {
		return "", fmt.Errorf("read resume %s: %w", filepath.Base(path), err)
	}

	text = truncateResume(normalizeResumeText(text), maxResumeChars)
	if text == "" {
		return "", fmt.Errorf("no extractable text in %s", filepath.Base(path))
	}
	return text, nil
}

func readPDFText(path string) (string, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var b strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		b.WriteString(content)
		b.WriteString("\n")
	}
	return b.String(), nil
}

func readDOCXText(path string) (string, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return "", err
	}
	defer r.Close()

	for _, f := range r.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", err
		}
		defer rc.Close()

		xml, err := io.ReadAll(rc)
		if err != nil {
			return "", err
		}
		return stripWordXML(string(xml)), nil
	}
	return "", fmt.Errorf("word/document.xml not found")
}

var xmlTagPattern = regexp.MustCompile(`<[^>]+>`)

var wordXMLReplacer = strings.NewReplacer(
	"</w:p>", "\n",
	"<w:br/>", "\n",
	"<w:br />", "\n",
	"<w:tab/>", "\t",
)

var xmlEntityReplacer = strings.NewReplacer(
	"&amp;", "&",
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
	"&apos;", "'",
)

func stripWordXML(s string) string {
	s = wordXMLReplacer.Replace(s)
	s = xmlTagPattern.ReplaceAllString(s, "")
	return xmlEntityReplacer.Replace(s)
}

// normalizeResumeText trims every line and collapses runs of blank lines.
func normalizeResumeText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")

	var b strings.Builder
	blank := false
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			if !blank {
				b.WriteString("\n")
			}
			blank = true
			continue
		}
		blank = false
		b.WriteString(line)
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}

func truncateResume(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := s[:limit]
	if i := strings.LastIndex(cut, "\n"); i > limit/2 {
		cut = cut[:i]
	}
	return strings.TrimSpace(cut)
}
