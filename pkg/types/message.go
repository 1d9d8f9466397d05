package types

// MessageRef is one entry of a message listing page
type MessageRef struct {
	ID       string `json:"id"`
	ThreadID string `json:"threadId,omitempty"`
}

// MessageList is one page of the provider's message search
type MessageList struct {
	Messages           []MessageRef `json:"messages"`
	NextPageToken      string       `json:"nextPageToken,omitempty"`
	ResultSizeEstimate int          `json:"resultSizeEstimate"`
}

// RawMessage is a full-format message as returned by the provider
type RawMessage struct {
	ID           string       `json:"id"`
	ThreadID     string       `json:"threadId,omitempty"`
	InternalDate string       `json:"internalDate,omitempty"` // epoch milliseconds as a string
	Snippet      string       `json:"snippet,omitempty"`
	Payload      *MessagePart `json:"payload"`
}

// MessagePart is a node in a message's MIME tree
type MessagePart struct {
	PartID   string        `json:"partId,omitempty"`
	MimeType string        `json:"mimeType"`
	Filename string        `json:"filename,omitempty"`
	Body     *PartBody     `json:"body,omitempty"`
	Parts    []MessagePart `json:"parts,omitempty"`
}

// PartBody carries base64url-encoded part data
type PartBody struct {
	Size         int    `json:"size,omitempty"`
	Data         string `json:"data,omitempty"`
	AttachmentID string `json:"attachmentId,omitempty"`
}
