package tools

import (
	"fmt"
	"strings"
	"time"

	"github.com/trellis-dev/trellis/internal/ids"
	"github.com/trellis-dev/trellis/internal/types"
)

// headerMap renders an object's header as a plain map for responses.
// The id and parent carry their prefixes, matching the on-disk form.
func headerMap(obj *types.Object) map[string]any {
	m := map[string]any{
		"kind":           string(obj.Kind),
		"id":             ids.AddPrefix(obj.ID, string(obj.Kind)),
		"status":         string(obj.Status),
		"title":          obj.Title,
		"priority":       string(obj.Priority),
		"prerequisites":  obj.Prerequisites,
		"created":        obj.Created.Format(types.TimestampLayout),
		"updated":        obj.Updated.Format(types.TimestampLayout),
		"schema_version": obj.SchemaVersion,
	}
	if obj.Parent != "" {
		m["parent"] = ids.AddPrefix(obj.Parent, string(obj.Kind.ParentKind()))
	}
	if obj.Worktree != "" {
		m["worktree"] = obj.Worktree
	}
	for _, extra := range obj.Extra {
		m[extra.Key] = extra.Value
	}
	return m
}

// taskMap renders a task for claim/complete/review responses.
func taskMap(obj *types.Object) map[string]any {
	return headerMap(obj)
}

const logHeading = "### Log"

// ensureLogSection appends an empty Log section when the body lacks
// one. New objects always carry it.
func ensureLogSection(body string) string {
	if strings.Contains(body, logHeading) {
		return body
	}
	if body != "" && !strings.HasSuffix(body, "\n") {
		body += "\n"
	}
	if body != "" {
		body += "\n"
	}
	return body + logHeading + "\n\n"
}

// appendLogEntry adds a completion record under the Log section:
// timestamp, summary, and a bullet per changed file.
func appendLogEntry(body, summary string, filesChanged []string, now time.Time) string {
	body = ensureLogSection(body)
	var b strings.Builder
	b.WriteString(body)
	if !strings.HasSuffix(body, "\n") {
		b.WriteString("\n")
	}
	b.WriteString(fmt.Sprintf("**%s**", now.Format(types.TimestampLayout)))
	if summary != "" {
		b.WriteString(" - " + summary)
	}
	b.WriteString("\n")
	for _, f := range filesChanged {
		b.WriteString("- " + f + "\n")
	}
	return b.String()
}
