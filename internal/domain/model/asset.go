package model

import (
	"encoding/json"
	"time"
)

// AssetKind distinguishes inline images from file attachments.
type AssetKind string

const (
	// AssetKindImage is an image referenced from HTML bodies by id.
	AssetKindImage AssetKind = "image"
	// AssetKindAttachment is a file attached to the message.
	AssetKindAttachment AssetKind = "attachment"
)

// Asset is the stored metadata of an uploaded file.
type Asset struct {
	ID          int64     `json:"id"           db:"id"`
	Tenant      Tenant    `json:"tenant"`
	Kind        AssetKind `json:"kind"         db:"kind"`
	FileID      string    `json:"file_id"      db:"file_id"`
	Filename    string    `json:"filename"     db:"filename"`
	MIMEType    string    `json:"mime_type"    db:"mime_type"`
	StoragePath string    `json:"storage_path" db:"storage_path"`
	SizeBytes   int64     `json:"size_bytes"   db:"size_bytes"`
	CreatedAt   time.Time `json:"created_at"   db:"created_at"`
}

// ResolvedAsset is an asset with its bytes loaded, ready to embed.
type ResolvedAsset struct {
	FileID   string
	Filename string
	MIMEType string
	Data     []byte
}

// SenderAccount stores the provider credentials for a sender identity.
type SenderAccount struct {
	ID        int64           `json:"id"         db:"id"`
	Tenant    Tenant          `json:"tenant"`
	Email     string          `json:"email"      db:"email"`
	Provider  string          `json:"provider"   db:"provider"`
	TokenJSON json.RawMessage `json:"-"          db:"token_json"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}
