// Package photo implements the asynchronous punch photo pipeline: capture
// validation, downscaling, and upload to object storage. Photo handling is
// strictly best effort; nothing here can fail a punch.
package photo

import (
	"bytes"
	"errors"
	"fmt"
)

// Format identifies an accepted capture format
type Format string

const (
	FormatJPEG Format = "jpeg"
	FormatPNG  Format = "png"
)

// ContentType returns the MIME type for the format
func (f Format) ContentType() string {
	if f == FormatPNG {
		return "image/png"
	}
	return "image/jpeg"
}

// imageSignature ties a capture format to its magic bytes
type imageSignature struct {
	format    Format
	signature []byte
}

// acceptedSignatures lists the magic byte signatures of accepted formats.
// Terminals send camera captures, so only JPEG and PNG are recognized.
var acceptedSignatures = []imageSignature{
	{FormatJPEG, []byte{0xFF, 0xD8, 0xFF}},
	{FormatPNG, []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}},
}

var (
	// ErrPhotoEmpty indicates a zero-length capture payload
	ErrPhotoEmpty = errors.New("photo payload is empty")
	// ErrPhotoTooLarge indicates the capture exceeds the configured size limit
	ErrPhotoTooLarge = errors.New("photo exceeds maximum size")
	// ErrUnknownFormat indicates the capture is neither JPEG nor PNG
	ErrUnknownFormat = errors.New("photo is not a recognized image format")
)

// DefaultMaxBytes bounds a raw capture before processing
const DefaultMaxBytes = 10 * 1024 * 1024

// Validator screens raw captures before the punch entry is written, so the
// entry can be born with the right photo status.
type Validator struct {
	maxBytes int64
}

// NewValidator creates a Validator with the given size limit
func NewValidator(maxBytes int64) *Validator {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Validator{maxBytes: maxBytes}
}

// Validate checks a decoded capture's size and magic bytes. The content is
// not fully decoded here; the pipeline worker does that off the request path.
func (v *Validator) Validate(raw []byte) error {
	if len(raw) == 0 {
		return ErrPhotoEmpty
	}
	if int64(len(raw)) > v.maxBytes {
		return fmt.Errorf("%w: %d bytes (limit %d)", ErrPhotoTooLarge, len(raw), v.maxBytes)
	}
	if _, err := DetectFormat(raw); err != nil {
		return err
	}
	return nil
}

// DetectFormat sniffs the capture format from its magic bytes
func DetectFormat(raw []byte) (Format, error) {
	for _, sig := range acceptedSignatures {
		if len(raw) >= len(sig.signature) && bytes.Equal(raw[:len(sig.signature)], sig.signature) {
			return sig.format, nil
		}
	}
	return "", ErrUnknownFormat
}
