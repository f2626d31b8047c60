package render

import (
	"encoding/json"
	"strings"

	"github.com/target/bulkmailer/internal/domain/model"
)

// EffectiveAttachments returns the attachment ids for one recipient. A non-empty explicit
// list wins outright; otherwise the recipient's "__attachments__" variable is used, parsed
// as a JSON array of ids or, failing that, as a single id. The two are never merged.
func EffectiveAttachments(explicit []string, vars map[string]string) []string {
	if ids := cleanIDs(explicit); len(ids) > 0 {
		return ids
	}
	raw := strings.TrimSpace(vars[model.AttachmentsVariable])
	if raw == "" {
		return nil
	}
	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err == nil {
		return cleanIDs(ids)
	}
	return []string{raw}
}

// TemplateVariables returns vars without reserved keys so they never leak into bodies.
func TemplateVariables(vars map[string]string) map[string]string {
	if _, ok := vars[model.AttachmentsVariable]; !ok {
		return vars
	}
	out := make(map[string]string, len(vars))
	for k, v := range vars {
		if k == model.AttachmentsVariable {
			continue
		}
		out[k] = v
	}
	return out
}

func cleanIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	return out
}
