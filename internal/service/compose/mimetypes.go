package compose

import (
	"path/filepath"
	"strings"
)

var typesByExt = map[string]string{
	".pdf":  "application/pdf",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
	".svg":  "image/svg+xml",
	".txt":  "text/plain",
	".csv":  "text/csv",
	".html": "text/html",
	".htm":  "text/html",
	".json": "application/json",
	".xml":  "application/xml",
	".zip":  "application/zip",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".xls":  "application/vnd.ms-excel",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".ppt":  "application/vnd.ms-powerpoint",
	".pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
}

// DefaultMIMEType is used when neither a stored type nor the extension is known.
const DefaultMIMEType = "application/octet-stream"

// TypeForFile returns the stored MIME type when set, otherwise the type implied by the
// file extension.
func TypeForFile(name, stored string) string {
	if stored = strings.TrimSpace(stored); stored != "" {
		return stored
	}
	if t, ok := typesByExt[strings.ToLower(filepath.Ext(name))]; ok {
		return t
	}
	return DefaultMIMEType
}
