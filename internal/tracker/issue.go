package tracker

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/teamtriage/backend/internal/models"
)

const createdLayout = "2006-01-02T15:04:05.000-0700"

// Issue keeps fields raw because custom fields and the description change
// shape between API versions.
type Issue struct {
	Key    string                     `json:"key"`
	Fields map[string]json.RawMessage `json:"fields"`
}

func (i Issue) str(name string) string {
	var s string
	if raw, ok := i.Fields[name]; ok {
		_ = json.Unmarshal(raw, &s)
	}
	return s
}

func (i Issue) named(name string) string {
	var v struct {
		Name string `json:"name"`
	}
	if raw, ok := i.Fields[name]; ok {
		_ = json.Unmarshal(raw, &v)
	}
	return v.Name
}

// OptionValue reads a select-style custom field. Strings, {"value"},
// {"name"}, {"displayName"} and arrays of those (first element) are
// understood; null or missing gives "".
func (i Issue) OptionValue(name string) string {
	values := i.OptionValues(name)
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

func (i Issue) OptionValues(name string) []string {
	raw, ok := i.Fields[name]
	if !ok {
		return nil
	}
	return optionValues(raw)
}

func optionValues(raw json.RawMessage) []string {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil
	}
	switch trimmed[0] {
	case '"':
		var s string
		if json.Unmarshal(raw, &s) == nil && strings.TrimSpace(s) != "" {
			return []string{s}
		}
	case '{':
		var o struct {
			Value       string `json:"value"`
			Name        string `json:"name"`
			DisplayName string `json:"displayName"`
		}
		if json.Unmarshal(raw, &o) == nil {
			for _, v := range []string{o.Value, o.Name, o.DisplayName} {
				if strings.TrimSpace(v) != "" {
					return []string{v}
				}
			}
		}
	case '[':
		var items []json.RawMessage
		if json.Unmarshal(raw, &items) == nil {
			var out []string
			for _, item := range items {
				out = append(out, optionValues(item)...)
			}
			return out
		}
	}
	return nil
}

// Description flattens an API v3 document tree to plain text; v2 returns
// a string already.
func (i Issue) Description() string {
	raw, ok := i.Fields["description"]
	if !ok {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var doc adfNode
	if json.Unmarshal(raw, &doc) != nil {
		return ""
	}
	var b strings.Builder
	doc.text(&b)
	return strings.TrimSpace(b.String())
}

type adfNode struct {
	Type    string    `json:"type"`
	Text    string    `json:"text"`
	Content []adfNode `json:"content"`
}

func (n adfNode) text(b *strings.Builder) {
	if n.Text != "" {
		b.WriteString(n.Text)
	}
	for _, c := range n.Content {
		c.text(b)
	}
	switch n.Type {
	case "paragraph", "heading", "codeBlock", "listItem", "hardBreak":
		b.WriteString("\n")
	}
}

func (i Issue) Ticket(ownerField, cloudField string) models.Ticket {
	t := models.Ticket{
		Key:         i.Key,
		Summary:     i.str("summary"),
		Description: i.Description(),
		IssueType:   i.named("issuetype"),
		Priority:    i.named("priority"),
		Status:      i.named("status"),
		Owner:       i.OptionValue(ownerField),
	}
	if cloudField != "" {
		t.CloudValues = i.OptionValues(cloudField)
	}
	if raw, ok := i.Fields["labels"]; ok {
		_ = json.Unmarshal(raw, &t.Labels)
	}
	if raw, ok := i.Fields["components"]; ok {
		var comps []struct {
			Name string `json:"name"`
		}
		_ = json.Unmarshal(raw, &comps)
		for _, c := range comps {
			t.Components = append(t.Components, c.Name)
		}
	}
	if created := i.str("created"); created != "" {
		if ts, err := time.Parse(createdLayout, created); err == nil {
			t.CreatedAt = ts.UTC()
		} else if ts, err := time.Parse(time.RFC3339, created); err == nil {
			t.CreatedAt = ts.UTC()
		}
	}
	return t
}
