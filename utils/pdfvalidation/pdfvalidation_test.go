package pdfvalidation

import (
	"testing"

	"github.com/nrsc-chatbot/portal-api/utils/testutil"
)

func TestValidateUploadAcceptsPDF(t *testing.T) {
	content := testutil.MinimalPDF(3)

	result := ValidateUpload("brochure.pdf", "application/pdf", content, KnowledgeBaseLimits)
	if !result.Valid {
		t.Fatalf("expected valid PDF, got %s (%s)", result.Reason, result.Error)
	}
	if result.PageCount != 3 {
		t.Errorf("PageCount = %d, want 3", result.PageCount)
	}
}

func TestValidateUploadRejections(t *testing.T) {
	pdf := testutil.MinimalPDF(1)

	tests := []struct {
		name        string
		filename    string
		contentType string
		content     []byte
		limits      PDFLimits
		want        Reason
	}{
		{"wrong content type", "a.pdf", "text/html", pdf, KnowledgeBaseLimits, ReasonUnsupportedType},
		{"octet stream without pdf extension", "a.bin", "application/octet-stream", pdf, KnowledgeBaseLimits, ReasonUnsupportedType},
		{"empty", "a.pdf", "application/pdf", nil, KnowledgeBaseLimits, ReasonEmpty},
		{"missing header", "a.pdf", "application/pdf", []byte("hello world"), KnowledgeBaseLimits, ReasonMalformed},
		{"truncated body", "a.pdf", "application/pdf", []byte("%PDF-1.4\ngarbage"), KnowledgeBaseLimits, ReasonMalformed},
		{"too many pages", "a.pdf", "application/pdf", testutil.MinimalPDF(3), PDFLimits{MaxFileSizeMB: 1, MaxPages: 2}, ReasonTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ValidateUpload(tt.filename, tt.contentType, tt.content, tt.limits)
			if result.Valid {
				t.Fatal("expected rejection")
			}
			if result.Reason != tt.want {
				t.Errorf("Reason = %s, want %s (%s)", result.Reason, tt.want, result.Error)
			}
		})
	}
}

func TestValidateUploadSizeLimit(t *testing.T) {
	content := make([]byte, 2*1024*1024)
	copy(content, "%PDF-1.4\n")

	result := ValidateUpload("big.pdf", "application/pdf", content, PDFLimits{MaxFileSizeMB: 1})
	if result.Valid || result.Reason != ReasonTooLarge {
		t.Errorf("expected too_large, got %+v", result)
	}
}

func TestPageCountIgnoresTrailingGarbage(t *testing.T) {
	content := append(testutil.MinimalPDF(2), []byte("\x00\x00trailing junk")...)

	count, err := PageCount(content)
	if err != nil {
		t.Fatalf("PageCount: %v", err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}
}
