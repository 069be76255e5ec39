package filetype

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog/log"
)

const PDF = "application/pdf"

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

// Detect detects the actual file type of data using magic bytes, not the name.
func (d *Detector) Detect(data []byte) *FileTypeInfo {
	mtype := mimetype.Detect(data)
	info := &FileTypeInfo{
		MIMEType:  mtype.String(),
		Extension: mtype.Extension(),
	}
	d.classify(info)
	log.Debug().Str("mime", info.MIMEType).Str("ext", info.Extension).Bool("supported", info.Supported).Msg("detected file type")
	return info
}

// DetectFile is Detect for a file on disk.
func (d *Detector) DetectFile(path string) (*FileTypeInfo, error) {
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to detect file type: %w", err)
	}
	info := &FileTypeInfo{MIMEType: mtype.String(), Extension: mtype.Extension()}
	d.classify(info)
	if !info.Supported && strings.EqualFold(filepath.Ext(path), ".pdf") {
		log.Warn().Str("file", path).Str("mime", info.MIMEType).Msg("file has .pdf extension but is not a PDF")
	}
	return info, nil
}

// Supported reports whether data is a PDF, returning the detected MIME type.
func (d *Detector) Supported(data []byte) (string, bool) {
	info := d.Detect(data)
	return info.MIMEType, info.Supported
}

// classify determines whether the detected type can be merged
func (d *Detector) classify(info *FileTypeInfo) {
	switch {
	case info.MIMEType == PDF || strings.HasPrefix(info.MIMEType, PDF+";"):
		info.MIMEType = PDF
		info.Supported = true
		info.Description = "PDF document"
	default:
		info.Supported = false
		info.Description = fmt.Sprintf("Unsupported file type: %s", info.MIMEType)
	}
}
