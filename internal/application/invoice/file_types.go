package invoice

import (
	"fmt"
	"mime"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/invoiceflow/backend/internal/domain/shared"
)

// allowedExtensions maps each accepted file extension to its content type
var allowedExtensions = map[string]string{
	"pdf":  "application/pdf",
	"png":  "image/png",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
}

var unsafeKeyChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// ErrUnsupportedFile is returned for uploads outside the accepted document types
var ErrUnsupportedFile = shared.NewDomainError("UNSUPPORTED_FILE",
	"File type not allowed. Please upload PDF, PNG, or JPG files only.")

// ResolveContentType validates the upload's extension and declared content type
// and returns the canonical content type. An empty declared type is derived from the extension.
func ResolveContentType(fileName, declared string) (string, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(fileName), "."))
	expected, ok := allowedExtensions[ext]
	if !ok {
		return "", ErrUnsupportedFile
	}

	declared = strings.TrimSpace(declared)
	if declared == "" {
		return expected, nil
	}
	mediaType, _, err := mime.ParseMediaType(declared)
	if err != nil {
		return "", ErrUnsupportedFile
	}
	if mediaType != expected {
		return "", shared.NewDomainError("UNSUPPORTED_FILE",
			fmt.Sprintf("Content type %s does not match .%s file", mediaType, ext))
	}
	return expected, nil
}

// StorageKey builds the archive key for an invoice document
func StorageKey(invoiceID uuid.UUID, fileName string, at time.Time) string {
	name := unsafeKeyChars.ReplaceAllString(filepath.Base(fileName), "_")
	name = strings.Trim(name, "._")
	if name == "" {
		name = "document"
	}
	return fmt.Sprintf("invoices/%04d/%02d/%s/%s", at.Year(), int(at.Month()), invoiceID, name)
}
