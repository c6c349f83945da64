package policies

import (
	"context"
	"io"
)

type UploadInput struct {
	Reader      io.Reader
	Name        string
	Size        int64
	ContentType string
}

type UploadedFile struct {
	URL      string
	Name     string
	Size     int64
	MimeType string
}

// Uploader stores a file under namespace and returns where it can be fetched.
type Uploader interface {
	UploadFile(ctx context.Context, in UploadInput, namespace string) (UploadedFile, error)
}
