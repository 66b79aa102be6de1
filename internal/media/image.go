// Package media holds the in-memory still image passed between acquisition and classification.
package media

import (
	"encoding/base64"
	"errors"
	"mime"
	"strings"
)

const dataURLPrefix = "data:"

// ErrInvalidDataURL is returned when a string is not a base64 data URL.
var ErrInvalidDataURL = errors.New("media: invalid base64 data URL")

// Image is an encoded still image held as a data URL.
type Image struct {
	dataURL string
}

// FromBytes encodes raw image bytes of the given MIME type.
func FromBytes(data []byte, mimeType string) Image {
	return Image{dataURL: dataURLPrefix + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)}
}

// ParseDataURL accepts "data:<mime>;base64,<payload>".
func ParseDataURL(s string) (Image, error) {
	if !strings.HasPrefix(s, dataURLPrefix) {
		return Image{}, ErrInvalidDataURL
	}
	header, payload, ok := strings.Cut(s[len(dataURLPrefix):], ",")
	if !ok || !strings.HasSuffix(header, ";base64") || payload == "" {
		return Image{}, ErrInvalidDataURL
	}
	if _, err := base64.StdEncoding.DecodeString(payload); err != nil {
		return Image{}, ErrInvalidDataURL
	}
	return Image{dataURL: s}, nil
}

// IsZero reports whether no image is held.
func (i Image) IsZero() bool { return i.dataURL == "" }

// DataURL returns the full data URL, suitable for display.
func (i Image) DataURL() string { return i.dataURL }

// Payload returns the base64 payload without the descriptive prefix.
func (i Image) Payload() string {
	if _, payload, ok := strings.Cut(i.dataURL, ","); ok {
		return payload
	}
	return i.dataURL
}

// MIMEType returns the declared media type.
func (i Image) MIMEType() string {
	if !strings.HasPrefix(i.dataURL, dataURLPrefix) {
		return ""
	}
	header, _, _ := strings.Cut(i.dataURL[len(dataURLPrefix):], ",")
	mt, _, _ := strings.Cut(header, ";")
	return mt
}

// Bytes decodes the payload.
func (i Image) Bytes() ([]byte, error) {
	return base64.StdEncoding.DecodeString(i.Payload())
}

// IsImageType reports whether a declared content type names an image.
func IsImageType(contentType string) bool {
	if contentType == "" {
		return false
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return strings.HasPrefix(mt, "image/")
}
