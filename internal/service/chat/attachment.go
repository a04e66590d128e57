package chat

import (
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"

	"mamachat/internal/models"
)

// DefaultMaxAttachmentBytes is the largest raw payload accepted inline.
const DefaultMaxAttachmentBytes int64 = 4 << 20

var allowedMIMETypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/webp": true,
	"image/heic": true,
	"image/heif": true,
	"image/gif":  true,
}

var extensionMIMETypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".webp": "image/webp",
	".heic": "image/heic",
	".heif": "image/heif",
	".gif":  "image/gif",
}

// ResolveMIMEType keeps an allowed declared type, else infers one from the
// file extension. The payload itself is never sniffed.
func ResolveMIMEType(name, declaredType string) (string, error) {
	if declaredType != "" {
		if mt, _, err := mime.ParseMediaType(declaredType); err == nil && allowedMIMETypes[mt] {
			return mt, nil
		}
	}
	if mt, ok := extensionMIMETypes[strings.ToLower(filepath.Ext(name))]; ok {
		return mt, nil
	}
	return "", fmt.Errorf("%w: %q (%s)", ErrUnsupportedAttachment, name, declaredType)
}

// EncodeAttachment reads r fully and returns it base64 encoded with a resolved type.
func EncodeAttachment(name, declaredType string, r io.Reader) (*models.Attachment, error) {
	return EncodeAttachmentLimit(name, declaredType, r, DefaultMaxAttachmentBytes)
}

// EncodeAttachmentLimit is EncodeAttachment with an explicit size bound.
func EncodeAttachmentLimit(name, declaredType string, r io.Reader, maxBytes int64) (*models.Attachment, error) {
	mt, err := ResolveMIMEType(name, declaredType)
	if err != nil {
		return nil, err
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxAttachmentBytes
	}
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read attachment: %w", err)
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w: %q exceeds %d bytes", ErrAttachmentTooLarge, name, maxBytes)
	}
	return &models.Attachment{
		Name:     baseName(name),
		MIMEType: mt,
		Data:     base64.StdEncoding.EncodeToString(data),
	}, nil
}

// AttachmentPart wraps an encoded attachment into a content part.
func AttachmentPart(a *models.Attachment) models.Part {
	return models.Part{Attachment: a}
}

func baseName(name string) string {
	if name == "" {
		return ""
	}
	return filepath.Base(name)
}
