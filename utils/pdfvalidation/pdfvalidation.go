package pdfvalidation

import (
	"bytes"
	"fmt"
	"mime"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Reason classifies why an upload was rejected
type Reason string

const (
	ReasonNone            Reason = ""
	ReasonTooLarge        Reason = "too_large"
	ReasonUnsupportedType Reason = "unsupported_type"
	ReasonMalformed       Reason = "malformed"
	ReasonEmpty           Reason = "empty"
)

// PDFLimits defines the validation limits for PDF uploads
type PDFLimits struct {
	MaxFileSizeMB    int // Maximum file size in MB
	MaxPages         int // 0 means unlimited
	DocumentTypeName string
}

// KnowledgeBaseLimits applies to documents submitted for the chatbot knowledge base
var KnowledgeBaseLimits = PDFLimits{
	MaxFileSizeMB:    100,
	MaxPages:         0,
	DocumentTypeName: "knowledge base document",
}

// ValidationResult contains the result of PDF validation
type ValidationResult struct {
	Valid     bool
	PageCount int
	FileSize  int64
	Reason    Reason
	Error     string
}

func reject(result *ValidationResult, reason Reason, format string, args ...any) *ValidationResult {
	result.Valid = false
	result.Reason = reason
	result.Error = fmt.Sprintf(format, args...)
	return result
}

// MaxBytes returns the size limit in bytes
func (l PDFLimits) MaxBytes() int64 {
	return int64(l.MaxFileSizeMB) * 1024 * 1024
}

// ValidateUpload checks an uploaded file before anything is persisted.
// The declared content type must be application/pdf; a missing one falls
// back to the .pdf extension.
func ValidateUpload(filename, contentType string, content []byte, limits PDFLimits) *ValidationResult {
	result := &ValidationResult{FileSize: int64(len(content))}

	if !isPDFContentType(contentType, filename) {
		return reject(result, ReasonUnsupportedType, "Only PDF files are supported (got %q)", contentType)
	}

	if len(content) == 0 {
		return reject(result, ReasonEmpty, "Uploaded file is empty")
	}

	if limits.MaxFileSizeMB > 0 && result.FileSize > limits.MaxBytes() {
		return reject(result, ReasonTooLarge, "File size exceeds maximum allowed size of %dMB", limits.MaxFileSizeMB)
	}

	if !bytes.HasPrefix(content, []byte("%PDF-")) {
		return reject(result, ReasonMalformed, "Invalid PDF file: missing PDF header")
	}

	pageCount, err := PageCount(content)
	if err != nil {
		return reject(result, ReasonMalformed, "Failed to read PDF: %v", err)
	}
	result.PageCount = pageCount

	if pageCount == 0 {
		return reject(result, ReasonMalformed, "PDF has no pages")
	}
	if limits.MaxPages > 0 && pageCount > limits.MaxPages {
		return reject(result, ReasonTooLarge, "PDF has %d pages, which exceeds the maximum of %d pages for %s",
			pageCount, limits.MaxPages, limits.DocumentTypeName)
	}

	result.Valid = true
	return result
}

func isPDFContentType(contentType, filename string) bool {
	if contentType == "" || contentType == "application/octet-stream" {
		return strings.HasSuffix(strings.ToLower(filename), ".pdf")
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "application/pdf"
}

// sanitizePDF removes trailing garbage data after the last %%EOF
func sanitizePDF(content []byte) []byte {
	if len(content) == 0 || !bytes.HasPrefix(content, []byte("%PDF-")) {
		return content
	}

	eofMarker := []byte("%%EOF")
	lastEOF := bytes.LastIndex(content, eofMarker)
	if lastEOF == -1 {
		return content
	}

	pdfEnd := lastEOF + len(eofMarker)
	for pdfEnd < len(content) && (content[pdfEnd] == '\n' || content[pdfEnd] == '\r') {
		pdfEnd++
	}
	return content[:pdfEnd]
}

// PageCount returns the number of pages in a PDF document
func PageCount(content []byte) (count int, err error) {
	// ledongthuc/pdf panics on some malformed trailers
	defer func() {
		if r := recover(); r != nil {
			count, err = 0, fmt.Errorf("failed to parse PDF: %v", r)
		}
	}()

	content = sanitizePDF(content)
	pdfReader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return 0, fmt.Errorf("failed to parse PDF: %w", err)
	}
	return pdfReader.NumPage(), nil
}
