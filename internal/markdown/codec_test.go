package markdown

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trellis-dev/trellis/internal/types"
)

const sampleTask = `---
kind: task
id: T-auth
parent: F-login
status: open
title: Add token refresh
priority: high
prerequisites:
  - T-session
  - models
worktree: wt-3
created: 2025-06-01T09:30:00.000000
updated: 2025-06-01T10:15:30.500000
schema_version: '1.1'
---
## Notes

Token refresh per RFC 6749.

### Log

`

func TestParseHeader(t *testing.T) {
	obj, err := Parse(sampleTask)
	require.NoError(t, err)

	assert.Equal(t, types.KindTask, obj.Kind)
	assert.Equal(t, "auth", obj.ID, "stored prefix is stripped")
	assert.Equal(t, "login", obj.Parent)
	assert.Equal(t, types.StatusOpen, obj.Status)
	assert.Equal(t, types.PriorityHigh, obj.Priority)
	assert.Equal(t, []string{"T-session", "models"}, obj.Prerequisites)
	assert.Equal(t, "wt-3", obj.Worktree)
	assert.Equal(t, "1.1", obj.SchemaVersion)
	assert.Equal(t, 500000000, obj.Updated.Nanosecond())
	assert.True(t, strings.HasPrefix(obj.Body, "## Notes"))
}

func TestRoundTripPreservesEverything(t *testing.T) {
	obj, err := Parse(sampleTask)
	require.NoError(t, err)

	out, err := Dump(obj)
	require.NoError(t, err)
	assert.Equal(t, sampleTask, out)
}

func TestRoundTripPreservesUnusualKeyOrder(t *testing.T) {
	content := `---
title: Reordered
id: T-weird
kind: task
status: open
priority: normal
prerequisites: []
created: 2025-06-01T09:30:00.000000
updated: 2025-06-01T09:30:00.000000
schema_version: '1.1'
---
body
`
	obj, err := Parse(content)
	require.NoError(t, err)
	out, err := Dump(obj)
	require.NoError(t, err)
	assert.Equal(t, content, out, "header keys must keep their on-disk order")
}

func TestUnknownKeysSurviveRewrite(t *testing.T) {
	content := `---
kind: task
id: T-x
status: open
title: X
priority: normal
prerequisites: []
created: 2025-06-01T09:30:00.000000
updated: 2025-06-01T09:30:00.000000
schema_version: '1.1'
custom_tracker:
  team: infra
  sprint: 12
---
`
	obj, err := Parse(content)
	require.NoError(t, err)
	require.Len(t, obj.Extra, 1)
	assert.Equal(t, "custom_tracker", obj.Extra[0].Key)

	out, err := Dump(obj)
	require.NoError(t, err)
	assert.Contains(t, out, "custom_tracker:")
	assert.Contains(t, out, "team: infra")
	assert.Contains(t, out, "sprint: 12")
}

func TestBodyIsNeverInterpreted(t *testing.T) {
	body := "## Heading\n\n---\n\nA horizontal rule above, not a fence.\n\n```yaml\nkind: bogus\n```\n"
	content := "---\nkind: task\nid: T-x\nstatus: open\ntitle: X\npriority: normal\nprerequisites: []\ncreated: 2025-06-01T09:30:00.000000\nupdated: 2025-06-01T09:30:00.000000\nschema_version: '1.1'\n---\n" + body

	obj, err := Parse(content)
	require.NoError(t, err)
	assert.Equal(t, body, obj.Body)
	assert.Equal(t, types.KindTask, obj.Kind, "yaml inside the body must not bleed into the header")
}

func TestMissingFenceRejected(t *testing.T) {
	_, err := Parse("kind: task\n")
	assert.Error(t, err)
	_, err = Parse("---\nkind: task\n")
	assert.Error(t, err, "unterminated front-matter must fail")
	_, err = Parse("---")
	assert.Error(t, err, "a file truncated to the opening fence must fail, not panic")
	_, err = Parse("---\n")
	assert.Error(t, err)
}

func TestEmptyBodyRoundTrips(t *testing.T) {
	content := `---
kind: task
id: T-bare
status: open
title: Bare
priority: normal
prerequisites: []
created: 2025-06-01T09:30:00.000000
updated: 2025-06-01T09:30:00.000000
schema_version: '1.1'
---
`
	obj, err := Parse(content)
	require.NoError(t, err)
	assert.Equal(t, "", obj.Body)

	out, err := Dump(obj)
	require.NoError(t, err)
	assert.Equal(t, content, out, "a header-only rewrite must not grow an empty body")
}

func TestEmptyPrerequisitesRenderFlow(t *testing.T) {
	now := time.Date(2025, 6, 1, 9, 30, 0, 0, time.Local)
	obj := &types.Object{
		Kind:          types.KindTask,
		ID:            "solo",
		Status:        types.StatusOpen,
		Title:         "Solo",
		Priority:      types.PriorityNormal,
		Prerequisites: []string{},
		Created:       now,
		Updated:       now,
		SchemaVersion: types.SchemaVersion,
	}
	out, err := Dump(obj)
	require.NoError(t, err)
	assert.Contains(t, out, "prerequisites: []")
	assert.NotContains(t, out, "worktree", "absent worktree is omitted, not null")
	assert.NotContains(t, out, "parent:", "standalone task has no parent key")
	assert.Contains(t, out, "created: 2025-06-01T09:30:00.000000", "timestamps render unquoted")
	assert.Contains(t, out, "schema_version: '1.1'")
}

func TestNewObjectUsesCanonicalOrder(t *testing.T) {
	now := time.Date(2025, 6, 1, 9, 30, 0, 0, time.Local)
	obj := &types.Object{
		Kind:          types.KindTask,
		ID:            "auth",
		Parent:        "login",
		Status:        types.StatusOpen,
		Title:         "Auth",
		Priority:      types.PriorityNormal,
		Prerequisites: []string{},
		Created:       now,
		Updated:       now,
		SchemaVersion: types.SchemaVersion,
	}
	out, err := DumpHeader(obj)
	require.NoError(t, err)

	var keys []string
	for _, line := range strings.Split(out, "\n") {
		if line == "" || strings.HasPrefix(line, " ") || strings.HasPrefix(line, "-") {
			continue
		}
		keys = append(keys, strings.SplitN(line, ":", 2)[0])
	}
	assert.Equal(t, []string{
		"kind", "id", "parent", "status", "title", "priority",
		"prerequisites", "created", "updated", "schema_version",
	}, keys)
}

func TestLenientTimestampParsing(t *testing.T) {
	for _, stamp := range []string{
		"2025-06-01T09:30:00.000000",
		"2025-06-01T09:30:00",
		"2025-06-01T09:30:00Z",
		"2025-06-01T09:30:00+02:00",
	} {
		_, err := parseTimestamp(stamp)
		assert.NoError(t, err, "stamp %q", stamp)
	}
	_, err := parseTimestamp("June 1st")
	assert.Error(t, err)
}
