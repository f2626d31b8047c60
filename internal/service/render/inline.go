package render

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"

	"github.com/target/bulkmailer/internal/core"
	"github.com/target/bulkmailer/internal/domain/model"
	"golang.org/x/net/html"
)

// ContentIDPrefix prefixes the content-id generated for each inline image id.
const ContentIDPrefix = "image_"

// rewriteInlineImages resolves every <img id="..."> through the asset lookup. Resolved
// images lose their id attribute and point at "cid:image_<id>"; unresolved ones are left
// untouched. Tokens other than rewritten img tags are copied byte for byte.
func (r *Renderer) rewriteInlineImages(
	ctx context.Context,
	tenant model.Tenant,
	body string,
) (string, []model.InlineImage) {
	if body == "" || r.assets == nil || !strings.Contains(strings.ToLower(body), "<img") {
		return body, nil
	}

	var (
		out    bytes.Buffer
		images []model.InlineImage
		seen   = make(map[string]bool)
	)
	out.Grow(len(body))

	z := html.NewTokenizer(strings.NewReader(body))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if !errors.Is(z.Err(), io.EOF) {
				r.logger.WarnContext(ctx, "inline image scan aborted", "error", z.Err())
				return body, nil
			}
			break
		}
		raw := append([]byte(nil), z.Raw()...)

		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			out.Write(raw)
			continue
		}
		tok := z.Token()
		if tok.Data != "img" {
			out.Write(raw)
			continue
		}

		id := attrValue(tok.Attr, "id")
		if id == "" {
			out.Write(raw)
			continue
		}

		cid := ContentIDPrefix + id
		if !seen[id] {
			asset, err := r.assets.Resolve(ctx, core.AssetRef{Tenant: tenant, Kind: model.AssetKindImage, ID: id})
			if err != nil || asset == nil || len(asset.Data) == 0 {
				r.logger.WarnContext(ctx, "inline image not resolved; leaving reference",
					"image_id", id, "tenant", tenant.Key(), "error", err)
				out.Write(raw)
				continue
			}
			seen[id] = true
			images = append(images, model.InlineImage{
				ContentID: cid,
				Filename:  firstNonEmpty(asset.Filename, id),
				MIMEType:  asset.MIMEType,
				Data:      asset.Data,
			})
		}

		tok.Attr = rewriteImgAttrs(tok.Attr, cid)
		out.WriteString(tok.String())
	}

	if len(images) == 0 {
		return body, nil
	}
	return out.String(), images
}

func rewriteImgAttrs(attrs []html.Attribute, cid string) []html.Attribute {
	next := make([]html.Attribute, 0, len(attrs)+1)
	hasSrc := false
	for _, a := range attrs {
		switch a.Key {
		case "id":
			continue
		case "src":
			a.Val = "cid:" + cid
			hasSrc = true
		}
		next = append(next, a)
	}
	if !hasSrc {
		next = append(next, html.Attribute{Key: "src", Val: "cid:" + cid})
	}
	return next
}

func attrValue(attrs []html.Attribute, key string) string {
	for _, a := range attrs {
		if a.Key == key {
			return strings.TrimSpace(a.Val)
		}
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// htmlToText extracts readable text from an HTML body for templates that only provide HTML.
func htmlToText(body string) string {
	z := html.NewTokenizer(strings.NewReader(body))
	var b strings.Builder
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.TrimSpace(collapseBlankLines(b.String()))
		case html.StartTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "script", "style", "head":
				skip++
			case "br", "p", "div", "tr", "li", "h1", "h2", "h3", "h4":
				b.WriteByte('\n')
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "script", "style", "head":
				if skip > 0 {
					skip--
				}
			case "p", "div", "tr", "li", "h1", "h2", "h3", "h4":
				b.WriteByte('\n')
			}
		case html.SelfClosingTagToken:
			if name, _ := z.TagName(); string(name) == "br" {
				b.WriteByte('\n')
			}
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
			}
		}
	}
}

func collapseBlankLines(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	blank := 0
	for _, l := range lines {
		l = strings.TrimRight(l, " \t\r")
		if strings.TrimSpace(l) == "" {
			blank++
			if blank > 1 {
				continue
			}
		} else {
			blank = 0
		}
		out = append(out, l)
	}
	return strings.Join(out, "\n")
}
