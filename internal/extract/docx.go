package extract

import (
	"archive/zip"
	"bytes"
	"fmt"
	"regexp"
	"strings"
)

// docxDocumentXMLPath is where the document body conventionally lives inside
// the package; used when [Content_Types].xml does not name it.
const docxDocumentXMLPath = "word/document.xml"

// contentTypesPath is the OOXML part manifest.
const contentTypesPath = "[Content_Types].xml"

// docxMainContentType identifies the main document part in the manifest.
const docxMainContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"

// textNodeRe captures the body of <w:t> nodes, with or without attributes
// such as xml:space="preserve". Text nodes are the only part of the body XML
// that survives extraction; run and paragraph attributes are formatting.
var textNodeRe = regexp.MustCompile(`<w:t[^>]*>([^<]*)</w:t>`)

// The manifest writes Override attributes in either order.
var (
	overridePartFirstRe = regexp.MustCompile(`<Override[^>]+PartName="([^"]+)"[^>]+ContentType="` + regexp.QuoteMeta(docxMainContentType) + `"`)
	overrideTypeFirstRe = regexp.MustCompile(`<Override[^>]+ContentType="` + regexp.QuoteMeta(docxMainContentType) + `"[^>]+PartName="([^"]+)"`)
)

// readZipFile returns the contents of the named file inside zr, or nil if
// the archive has no such file.
func readZipFile(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		var buf bytes.Buffer
		if _, err := buf.ReadFrom(rc); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
	return nil, nil
}

// mainDocumentPath resolves the document body's path from the manifest,
// without the leading slash PartName carries. An unreadable or silent
// manifest yields "" and the caller falls back to the conventional path.
func mainDocumentPath(zr *zip.Reader) string {
	manifest, err := readZipFile(zr, contentTypesPath)
	if err != nil || manifest == nil {
		return ""
	}
	for _, re := range []*regexp.Regexp{overridePartFirstRe, overrideTypeFirstRe} {
		if m := re.FindSubmatch(manifest); len(m) > 1 {
			return strings.TrimPrefix(string(m[1]), "/")
		}
	}
	return ""
}

// extractDOCX pulls the text nodes out of a .docx package (a zip holding
// OOXML parts) and joins them with single spaces.
func extractDOCX(content []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("extract DOCX: not a zip: %w", err)
	}

	docPath := mainDocumentPath(zr)
	if docPath == "" {
		docPath = docxDocumentXMLPath
	}
	body, err := readZipFile(zr, docPath)
	if err != nil {
		return "", fmt.Errorf("extract DOCX: read %s: %w", docPath, err)
	}
	if body == nil {
		return "", fmt.Errorf("extract DOCX: %s not found", docPath)
	}

	var texts []string
	for _, m := range textNodeRe.FindAllSubmatch(body, -1) {
		if t := strings.TrimSpace(string(m[1])); t != "" {
			texts = append(texts, t)
		}
	}
	return strings.Join(texts, " "), nil
}
