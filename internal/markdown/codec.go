// Package markdown reads and writes Trellis object files: YAML
// front-matter between --- fences followed by a verbatim Markdown body.
// The header round-trips with its key order intact; bodies are never
// interpreted.
package markdown

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/trellis-dev/trellis/internal/errs"
	"github.com/trellis-dev/trellis/internal/ids"
	"github.com/trellis-dev/trellis/internal/types"
)

const fence = "---"

// canonicalOrder is the header key order for freshly created objects.
var canonicalOrder = []string{
	"kind", "id", "parent", "status", "title", "priority",
	"prerequisites", "worktree", "created", "updated", "schema_version",
}

// Split separates raw file content into front-matter YAML and body.
// The body is everything after the closing fence line, byte-for-byte.
func Split(content string) (yamlText, body string, err error) {
	if !strings.HasPrefix(content, fence+"\n") {
		if content == fence {
			return "", "", errs.New(errs.CodeInvalidField, "object file front-matter is not terminated")
		}
		return "", "", errs.New(errs.CodeInvalidField, "object file is missing its front-matter fence")
	}
	rest := content[len(fence)+1:]
	idx := strings.Index(rest, "\n"+fence)
	if idx < 0 {
		return "", "", errs.New(errs.CodeInvalidField, "object file front-matter is not terminated")
	}
	yamlText = rest[:idx]
	after := rest[idx+1+len(fence):]
	after = strings.TrimPrefix(after, "\n")
	return yamlText, after, nil
}

// Parse decodes a full object file.
func Parse(content string) (*types.Object, error) {
	yamlText, body, err := Split(content)
	if err != nil {
		return nil, err
	}
	obj, err := ParseHeader(yamlText)
	if err != nil {
		return nil, err
	}
	obj.Body = body
	return obj, nil
}

// ParseHeader decodes just the YAML front-matter into an Object.
func ParseHeader(yamlText string) (*types.Object, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(yamlText), &doc); err != nil {
		return nil, errs.Wrap(errs.CodeInvalidField, err, "object header is not valid YAML")
	}
	if len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return nil, errs.New(errs.CodeInvalidField, "object header must be a YAML mapping")
	}
	mapping := doc.Content[0]

	obj := &types.Object{}
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		keyNode := mapping.Content[i]
		valNode := mapping.Content[i+1]
		key := keyNode.Value
		obj.KeyOrder = append(obj.KeyOrder, key)

		switch key {
		case "kind":
			obj.Kind = types.Kind(valNode.Value)
		case "id":
			obj.ID = ids.CleanPrereq(valNode.Value)
		case "parent":
			if valNode.Tag != "!!null" {
				obj.Parent = ids.CleanPrereq(valNode.Value)
			}
		case "status":
			obj.Status = types.Status(valNode.Value)
		case "title":
			obj.Title = valNode.Value
		case "priority":
			p, err := types.CanonicalPriority(valNode.Value)
			if err != nil {
				return nil, err
			}
			obj.Priority = p
		case "prerequisites":
			var prereqs []string
			if err := valNode.Decode(&prereqs); err != nil {
				return nil, errs.Wrap(errs.CodeInvalidField, err, "prerequisites must be a list of IDs")
			}
			if prereqs == nil {
				prereqs = []string{}
			}
			obj.Prerequisites = prereqs
		case "worktree":
			if valNode.Tag != "!!null" {
				obj.Worktree = valNode.Value
			}
		case "created":
			t, err := parseTimestamp(valNode.Value)
			if err != nil {
				return nil, err
			}
			obj.Created = t
		case "updated":
			t, err := parseTimestamp(valNode.Value)
			if err != nil {
				return nil, err
			}
			obj.Updated = t
		case "schema_version":
			obj.SchemaVersion = valNode.Value
		default:
			var v any
			if err := valNode.Decode(&v); err != nil {
				v = valNode.Value
			}
			obj.Extra = append(obj.Extra, types.ExtraField{Key: key, Value: v})
		}
	}
	if obj.Prerequisites == nil {
		obj.Prerequisites = []string{}
	}
	return obj, nil
}

// Dump serializes an object back to file content: fenced header plus
// the body, ending with a trailing newline.
func Dump(obj *types.Object) (string, error) {
	header, err := DumpHeader(obj)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString(fence + "\n")
	b.WriteString(header)
	b.WriteString(fence + "\n")
	b.WriteString(obj.Body)
	if obj.Body != "" && !strings.HasSuffix(obj.Body, "\n") {
		b.WriteString("\n")
	}
	return b.String(), nil
}

// DumpHeader serializes the header mapping in the object's recorded key
// order (canonical order for new objects). Optional fields that are
// absent are omitted entirely.
func DumpHeader(obj *types.Object) (string, error) {
	mapping := &yaml.Node{Kind: yaml.MappingNode}

	order := obj.KeyOrder
	if len(order) == 0 {
		order = canonicalOrder
	}
	emitted := make(map[string]bool)
	for _, key := range order {
		if emitted[key] {
			continue
		}
		if node := headerValue(obj, key); node != nil {
			appendPair(mapping, key, node)
			emitted[key] = true
		}
	}
	// Keys introduced since the file was read (e.g. worktree stamped by
	// a claim) go at the end, in canonical order.
	for _, key := range canonicalOrder {
		if emitted[key] {
			continue
		}
		if node := headerValue(obj, key); node != nil {
			appendPair(mapping, key, node)
			emitted[key] = true
		}
	}
	for _, extra := range obj.Extra {
		if emitted[extra.Key] {
			continue
		}
		valNode := &yaml.Node{}
		if err := valNode.Encode(extra.Value); err != nil {
			return "", errs.Wrap(errs.CodeInternal, err, "header field %q could not be encoded", extra.Key)
		}
		appendPair(mapping, extra.Key, valNode)
		emitted[extra.Key] = true
	}

	var b strings.Builder
	enc := yaml.NewEncoder(&b)
	enc.SetIndent(2)
	if err := enc.Encode(mapping); err != nil {
		return "", errs.Wrap(errs.CodeInternal, err, "object header could not be serialized")
	}
	if err := enc.Close(); err != nil {
		return "", errs.Wrap(errs.CodeInternal, err, "object header could not be serialized")
	}
	return b.String(), nil
}

// headerValue builds the value node for a known key, or nil when the
// field is absent and should be omitted. Unknown keys resolve through
// Extra at the call site.
func headerValue(obj *types.Object, key string) *yaml.Node {
	switch key {
	case "kind":
		return scalar(string(obj.Kind))
	case "id":
		return scalar(ids.AddPrefix(obj.ID, string(obj.Kind)))
	case "parent":
		if obj.Parent == "" {
			return nil
		}
		return scalar(ids.AddPrefix(obj.Parent, string(obj.Kind.ParentKind())))
	case "status":
		return scalar(string(obj.Status))
	case "title":
		return scalar(obj.Title)
	case "priority":
		return scalar(string(obj.Priority))
	case "prerequisites":
		seq := &yaml.Node{Kind: yaml.SequenceNode}
		if len(obj.Prerequisites) == 0 {
			seq.Style = yaml.FlowStyle // renders as []
			return seq
		}
		for _, p := range obj.Prerequisites {
			seq.Content = append(seq.Content, scalar(p))
		}
		return seq
	case "worktree":
		if obj.Worktree == "" {
			return nil
		}
		return scalar(obj.Worktree)
	case "created":
		return plainScalar(formatTimestamp(obj.Created))
	case "updated":
		return plainScalar(formatTimestamp(obj.Updated))
	case "schema_version":
		n := scalar(obj.SchemaVersion)
		n.Style = yaml.SingleQuotedStyle
		return n
	}
	for _, extra := range obj.Extra {
		if extra.Key == key {
			valNode := &yaml.Node{}
			if err := valNode.Encode(extra.Value); err != nil {
				return scalar(fmt.Sprintf("%v", extra.Value))
			}
			return valNode
		}
	}
	return nil
}

func appendPair(mapping *yaml.Node, key string, value *yaml.Node) {
	mapping.Content = append(mapping.Content, scalar(key), value)
}

func scalar(value string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: value}
}

// plainScalar leaves the tag unset so timestamp-shaped values render
// unquoted, matching the on-disk format.
func plainScalar(value string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Value: value}
}

func formatTimestamp(t time.Time) string {
	return t.Format(types.TimestampLayout)
}

var timestampLayouts = []string{
	types.TimestampLayout,
	"2006-01-02T15:04:05",
	time.RFC3339Nano,
	time.RFC3339,
}

func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errs.New(errs.CodeInvalidField, "timestamp %q is not ISO-8601", s)
}
