package messaging

import (
	"strings"
)

type AttachmentKind string

const (
	AttachmentImage    AttachmentKind = "image"
	AttachmentVideo    AttachmentKind = "video"
	AttachmentDocument AttachmentKind = "document"
	AttachmentAudio    AttachmentKind = "audio"
	AttachmentFile     AttachmentKind = "file"
)

type Attachment struct {
	Kind     AttachmentKind
	URL      string
	Name     string
	Size     int64
	MimeType string
}

var documentTypes = map[string]struct{}{
	"application/pdf":    {},
	"application/msword": {},
	"application/rtf":    {},
	"application/vnd.ms-excel":      {},
	"application/vnd.ms-powerpoint": {},
	"application/vnd.oasis.opendocument.text":                                   {},
	"application/vnd.oasis.opendocument.spreadsheet":                            {},
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   {},
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         {},
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": {},
}

// KindFromMIME maps a media type (parameters allowed) to an attachment kind.
func KindFromMIME(mime string) AttachmentKind {
	mime = strings.ToLower(strings.TrimSpace(mime))
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	switch {
	case strings.HasPrefix(mime, "image/"):
		return AttachmentImage
	case strings.HasPrefix(mime, "video/"):
		return AttachmentVideo
	case strings.HasPrefix(mime, "audio/"):
		return AttachmentAudio
	case strings.HasPrefix(mime, "text/"):
		return AttachmentDocument
	}
	if _, ok := documentTypes[mime]; ok {
		return AttachmentDocument
	}
	return AttachmentFile
}

func (k AttachmentKind) Valid() bool {
	switch k {
	case AttachmentImage, AttachmentVideo, AttachmentDocument, AttachmentAudio, AttachmentFile:
		return true
	}
	return false
}

func (a Attachment) Validate() error {
	if strings.TrimSpace(a.URL) == "" || a.Size < 0 || !a.Kind.Valid() {
		return ErrInvalidAttachment
	}
	return nil
}

// Normalize fills the kind from the media type when absent.
func (a Attachment) Normalize() Attachment {
	a.URL = strings.TrimSpace(a.URL)
	a.Name = strings.TrimSpace(a.Name)
	a.MimeType = strings.TrimSpace(a.MimeType)
	if a.Kind == "" {
		a.Kind = KindFromMIME(a.MimeType)
	}
	return a
}
