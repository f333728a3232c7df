package filetype

import (
	"errors"
	"fmt"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog/log"
)

// PDFMIME is the only accepted document type.
const PDFMIME = "application/pdf"

// ErrUnsupported is returned for uploads that are not PDFs.
var ErrUnsupported = errors.New("unsupported file type")

// FileTypeInfo contains detected file type information
type FileTypeInfo struct {
	MIMEType    string
	Extension   string
	Supported   bool
	Description string
}

// Detector handles file type detection using magic bytes
type Detector struct{}

// New creates a new file type detector
func New() *Detector {
	return &Detector{}
}

// Detect detects the actual file type using magic bytes, not filename
func (d *Detector) Detect(filePath string) (*FileTypeInfo, error) {
	mtype, err := mimetype.DetectFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to detect file type: %w", err)
	}
	log.Debug().Str("mime", mtype.String()).Str("file", filePath).Msg("detected file type")
	return classify(mtype), nil
}

// DetectBytes detects the file type of an in-memory header or whole file.
func (d *Detector) DetectBytes(data []byte) *FileTypeInfo {
	return classify(mimetype.Detect(data))
}

// RequirePDF returns ErrUnsupported unless filePath holds a PDF.
func (d *Detector) RequirePDF(filePath string) error {
	info, err := d.Detect(filePath)
	if err != nil {
		return err
	}
	if !info.Supported {
		return fmt.Errorf("%s: %w", info.Description, ErrUnsupported)
	}
	return nil
}

func classify(mtype *mimetype.MIME) *FileTypeInfo {
	info := &FileTypeInfo{MIMEType: mtype.String(), Extension: mtype.Extension()}
	if mtype.Is(PDFMIME) {
		info.Supported = true
		info.Description = "PDF document"
		return info
	}
	info.Description = fmt.Sprintf("Unsupported file type: %s", info.MIMEType)
	return info
}
