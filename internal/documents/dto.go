package documents

// FileFailure describes one file of a batch that was not saved.
type FileFailure struct {
	OriginalName string `json:"originalName"`
	Stage        string `json:"stage"`
	Reason       string `json:"reason"`
}

type uploadResponse struct {
	Message   string        `json:"message"`
	Documents []Document    `json:"documents"`
	Failed    []FileFailure `json:"failed"`
}

func toUploadResponse(res UploadResult) uploadResponse {
	docs := res.Documents
	if docs == nil {
		docs = []Document{}
	}
	failed := res.Failures
	if failed == nil {
		failed = []FileFailure{}
	}
	return uploadResponse{
		Message:   "Files uploaded",
		Documents: docs,
		Failed:    failed,
	}
}
