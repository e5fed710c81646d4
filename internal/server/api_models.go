package server

// SubmitRequest is the JSON body of POST /requests.
type SubmitRequest struct {
	Record   map[string]any `json:"record"`
	ImageB64 string         `json:"image_b64" example:"iVBORw0KGgo="`
}

// SubmitResponse acknowledges a stored record. ID echoes the record's own
// "id" field, if it had one.
type SubmitResponse struct {
	OK    bool   `json:"ok" example:"true"`
	ID    any    `json:"id"`
	Saved string `json:"saved" example:"uploads/1699999999_abcdef.png"`
}

// MultipartResponse acknowledges a multipart submission.
type MultipartResponse struct {
	OK    bool   `json:"ok" example:"true"`
	Saved string `json:"saved" example:""`
}

// FailureResponse is the uniform error payload.
type FailureResponse struct {
	OK    bool   `json:"ok" example:"false"`
	Error string `json:"error" example:"unauthorized"`
}
