package model

import "time"

// Template is a stored message template for a tenant and language.
type Template struct {
	ID          int64     `json:"id"                     db:"id"`
	Tenant      Tenant    `json:"tenant"`
	Name        string    `json:"name"                   db:"name"`
	Language    string    `json:"language"               db:"language"`
	Subject     string    `json:"subject"                db:"subject"`
	HTMLContent string    `json:"html_content"           db:"html_content"`
	TextContent string    `json:"text_content,omitempty" db:"text_content"`
	Version     int       `json:"version"                db:"version"`
	IsActive    bool      `json:"is_active"              db:"is_active"`
	CreatedAt   time.Time `json:"created_at"             db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"             db:"updated_at"`
}

// TemplateBody is the raw, unrendered subject/text/html of a template.
type TemplateBody struct {
	Language string `json:"language"`
	Subject  string `json:"subject"`
	Text     string `json:"text"`
	HTML     string `json:"html"`
}

// Body extracts the renderable parts of a stored template.
func (t *Template) Body() TemplateBody {
	return TemplateBody{
		Language: t.Language,
		Subject:  t.Subject,
		Text:     t.TextContent,
		HTML:     t.HTMLContent,
	}
}
