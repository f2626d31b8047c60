package model

// Message is a transport-ready RFC 5322 message.
type Message struct {
	From      string
	To        string
	Subject   string
	MessageID string
	Raw       []byte
	// Skipped lists attachment ids that could not be resolved; the message was built without them.
	Skipped []SkippedAttachment
}

// SkippedAttachment records why an attachment was left out.
type SkippedAttachment struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// InlineImage is an image embedded in a related MIME container and referenced by cid.
type InlineImage struct {
	ContentID string
	Filename  string
	MIMEType  string
	Data      []byte
}

// Attachment is a resolved file part of a mixed MIME container.
type Attachment struct {
	ID       string
	Filename string
	MIMEType string
	Data     []byte
}
