package file

import "time"

type FileResponse struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Size     int64     `json:"size"`
	Uploaded time.Time `json:"uploaded"`
	URL      string    `json:"url"`
	Missing  bool      `json:"missing,omitempty"`
}

type UploadedFileResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Size int64  `json:"size"`
	URL  string `json:"url"`
}

type FailedFileResponse struct {
	Name  string `json:"name,omitempty"`
	Error string `json:"error"`
}

type UploadResponse struct {
	Message string                 `json:"message"`
	Files   []UploadedFileResponse `json:"files"`
	Failed  []FailedFileResponse   `json:"failed,omitempty"`
}

func toFileResponse(l Listing) FileResponse {
	return FileResponse{
		ID:       l.ID,
		Name:     l.Name,
		Size:     l.Size,
		Uploaded: l.UploadedAt,
		URL:      l.URL,
		Missing:  l.Missing,
	}
}

// toUploadResponse renders a batch; message turns a failure into client text.
func toUploadResponse(res *BatchResult, message func(error) string) UploadResponse {
	out := UploadResponse{
		Message: "Files uploaded successfully",
		Files:   make([]UploadedFileResponse, 0, len(res.Files)),
	}
	for _, f := range res.Files {
		out.Files = append(out.Files, UploadedFileResponse{
			ID:   f.ID,
			Name: f.OriginalName,
			Size: f.Size,
			URL:  f.Path,
		})
	}
	if len(res.Failed) > 0 {
		out.Message = "Some files failed to upload"
		for _, f := range res.Failed {
			out.Failed = append(out.Failed, FailedFileResponse{Name: f.Name, Error: message(f.Err)})
		}
	}
	return out
}
