package documents

import "time"

// Document is an uploaded file owned by a user, with its extracted text.
type Document struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user"`
	OriginalName    string    `json:"originalName"`
	FileType        string    `json:"fileType"`
	MimeType        string    `json:"mimetype"`
	Size            int64     `json:"size"`
	URL             string    `json:"url"`
	StorageID       string    `json:"storageId"`
	StorageProvider string    `json:"storageProvider"`
	Text            string    `json:"text"`
	UploadDate      time.Time `json:"uploadDate"`
}

// HasText reports whether the document carries any non-blank text.
func (d Document) HasText() bool {
	for _, r := range d.Text {
		switch r {
		case ' ', '\t', '\n', '\r', '\v', '\f':
		default:
			return true
		}
	}
	return false
}

// ListOptions narrows a listing. Zero Limit means no limit.
type ListOptions struct {
	Query  string
	Limit  int
	Offset int
}
