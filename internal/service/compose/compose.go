// Package compose assembles RFC 5322 messages from rendered content.
package compose

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"net/textproto"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/target/bulkmailer/internal/core"
	"github.com/target/bulkmailer/internal/domain/model"
	apperrors "github.com/target/bulkmailer/internal/errors"
)

// MaxAttachmentBytes is the largest attachment embedded in a message.
const MaxAttachmentBytes = 25 << 20

// Envelope carries the addressing headers of a message.
type Envelope struct {
	Tenant  model.Tenant
	From    string
	To      string
	Subject string
}

// Content is the rendered body of a message plus attachment ids to resolve.
type Content struct {
	Text          string
	HTML          string
	Images        []model.InlineImage
	AttachmentIDs []string
}

// ComposerOptions configures a Composer.
type ComposerOptions struct {
	// Assets resolves attachment ids. Nil skips every attachment.
	Assets core.AssetLookup
	// Domain is used on the right-hand side of generated Message-IDs.
	Domain string
	Logger *slog.Logger
	// Now overrides the Date header clock in tests.
	Now func() time.Time
}

// Composer builds transport-ready messages.
type Composer struct {
	assets core.AssetLookup
	domain string
	logger *slog.Logger
	now    func() time.Time
}

// NewComposer constructs a Composer.
func NewComposer(opts ComposerOptions) *Composer {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	domain := strings.TrimSpace(opts.Domain)
	if domain == "" {
		domain = "bulkmailer.local"
	}
	return &Composer{
		assets: opts.Assets,
		domain: domain,
		logger: logger.With("component", "composer"),
		now:    now,
	}
}

// Compose picks the MIME structure from what is present:
//
//	text only                 → text/plain
//	html                      → multipart/alternative(text, html)
//	inline images             → multipart/related(alternative or text, images...)
//	attachments (any of above) → multipart/mixed(body, attachments...)
//
// Attachments that cannot be resolved are skipped and listed in Message.Skipped.
func (c *Composer) Compose(ctx context.Context, env Envelope, content Content) (*model.Message, error) {
	from, err := mail.ParseAddress(env.From)
	if err != nil {
		return nil, apperrors.NewDelivery(apperrors.ErrCompose, "parse from", err)
	}
	to, err := mail.ParseAddress(env.To)
	if err != nil {
		return nil, apperrors.NewDelivery(apperrors.ErrCompose, "parse to", err)
	}

	attachments, skipped := c.resolveAttachments(ctx, env.Tenant, content.AttachmentIDs)

	msgID := fmt.Sprintf("<%s@%s>", uuid.NewString(), c.domain)
	var buf bytes.Buffer
	writeHeader(&buf, "From", from.String())
	writeHeader(&buf, "To", to.String())
	writeHeader(&buf, "Subject", mime.QEncoding.Encode("utf-8", env.Subject))
	writeHeader(&buf, "Date", c.now().Format(time.RFC1123Z))
	writeHeader(&buf, "Message-ID", msgID)
	writeHeader(&buf, "MIME-Version", "1.0")

	b := &builder{content: content, attachments: attachments}
	if err := b.writeTop(&buf); err != nil {
		return nil, apperrors.NewDelivery(apperrors.ErrCompose, "write body", err)
	}

	return &model.Message{
		From:      from.Address,
		To:        to.Address,
		Subject:   env.Subject,
		MessageID: msgID,
		Raw:       buf.Bytes(),
		Skipped:   skipped,
	}, nil
}

func (c *Composer) resolveAttachments(
	ctx context.Context,
	tenant model.Tenant,
	ids []string,
) ([]model.Attachment, []model.SkippedAttachment) {
	if len(ids) == 0 {
		return nil, nil
	}
	var (
		out     []model.Attachment
		skipped []model.SkippedAttachment
	)
	for _, id := range ids {
		reason := ""
		var asset *model.ResolvedAsset
		if c.assets == nil {
			reason = "no asset store configured"
		} else {
			var err error
			asset, err = c.assets.Resolve(ctx, core.AssetRef{Tenant: tenant, Kind: model.AssetKindAttachment, ID: id})
			switch {
			case errors.Is(err, core.ErrAssetNotFound):
				reason = "not found"
			case err != nil:
				reason = err.Error()
			case asset == nil:
				reason = "not found"
			case len(asset.Data) > MaxAttachmentBytes:
				reason = fmt.Sprintf("exceeds %d bytes", MaxAttachmentBytes)
			}
		}
		if reason != "" {
			c.logger.WarnContext(ctx, "attachment skipped", "attachment_id", id, "reason", reason)
			skipped = append(skipped, model.SkippedAttachment{ID: id, Reason: reason})
			continue
		}
		name := asset.Filename
		if name == "" {
			name = id
		}
		out = append(out, model.Attachment{
			ID:       id,
			Filename: name,
			MIMEType: TypeForFile(name, asset.MIMEType),
			Data:     asset.Data,
		})
	}
	return out, skipped
}

type builder struct {
	content     Content
	attachments []model.Attachment
}

// section is a MIME entity: its own header plus encoded body.
type section struct {
	header textproto.MIMEHeader
	body   []byte
}

// writeTop writes the top-level section headers followed by the body.
func (b *builder) writeTop(buf *bytes.Buffer) error {
	s, err := b.build()
	if err != nil {
		return err
	}
	for _, key := range []string{"Content-Type", "Content-Transfer-Encoding"} {
		if v := s.header.Get(key); v != "" {
			writeHeader(buf, key, v)
		}
	}
	buf.WriteString("\r\n")
	buf.Write(s.body)
	return nil
}

func (b *builder) build() (section, error) {
	body, err := b.bodySection()
	if err != nil || len(b.attachments) == 0 {
		return body, err
	}
	parts := []section{body}
	for _, att := range b.attachments {
		h := textproto.MIMEHeader{}
		h.Set("Content-Type", mime.FormatMediaType(att.MIMEType, map[string]string{"name": att.Filename}))
		h.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": att.Filename}))
		h.Set("Content-Transfer-Encoding", "base64")
		parts = append(parts, section{header: h, body: encodeBase64(att.Data)})
	}
	return multipartSection("multipart/mixed", parts)
}

// bodySection returns the related, alternative or text/plain section.
func (b *builder) bodySection() (section, error) {
	var (
		inner section
		err   error
	)
	if b.content.HTML != "" {
		inner, err = multipartSection("multipart/alternative", []section{
			textSection("text/plain", b.content.Text),
			textSection("text/html", b.content.HTML),
		})
		if err != nil {
			return section{}, err
		}
	} else {
		inner = textSection("text/plain", b.content.Text)
	}
	if len(b.content.Images) == 0 {
		return inner, nil
	}

	parts := []section{inner}
	for _, img := range b.content.Images {
		h := textproto.MIMEHeader{}
		h.Set("Content-Type", mime.FormatMediaType(TypeForFile(img.Filename, img.MIMEType), map[string]string{"name": img.Filename}))
		h.Set("Content-ID", "<"+img.ContentID+">")
		h.Set("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": img.Filename}))
		h.Set("Content-Transfer-Encoding", "base64")
		parts = append(parts, section{header: h, body: encodeBase64(img.Data)})
	}
	return multipartSection("multipart/related", parts)
}

func multipartSection(mediaType string, parts []section) (section, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, p := range parts {
		w, err := mw.CreatePart(p.header)
		if err != nil {
			return section{}, err
		}
		if _, err := w.Write(p.body); err != nil {
			return section{}, err
		}
	}
	if err := mw.Close(); err != nil {
		return section{}, err
	}
	h := textproto.MIMEHeader{}
	h.Set("Content-Type", mime.FormatMediaType(mediaType, map[string]string{"boundary": mw.Boundary()}))
	return section{header: h, body: buf.Bytes()}, nil
}

func textSection(ctype, body string) section {
	h := textproto.MIMEHeader{}
	h.Set("Content-Type", mime.FormatMediaType(ctype, map[string]string{"charset": "utf-8"}))
	h.Set("Content-Transfer-Encoding", "quoted-printable")
	var buf bytes.Buffer
	qp := quotedprintable.NewWriter(&buf)
	_, _ = qp.Write([]byte(body))
	_ = qp.Close()
	return section{header: h, body: buf.Bytes()}
}

func writeHeader(buf *bytes.Buffer, key, value string) {
	buf.WriteString(key)
	buf.WriteString(": ")
	buf.WriteString(value)
	buf.WriteString("\r\n")
}

// encodeBase64 encodes data in 76-column CRLF-terminated lines.
func encodeBase64(data []byte) []byte {
	enc := base64.StdEncoding.EncodeToString(data)
	var buf bytes.Buffer
	for len(enc) > 76 {
		buf.WriteString(enc[:76])
		buf.WriteString("\r\n")
		enc = enc[76:]
	}
	buf.WriteString(enc)
	buf.WriteString("\r\n")
	return buf.Bytes()
}
