package tools

// Request structs per operation. Field names match the wire contract;
// patches stay loosely typed maps so deep-merge can recurse.

// CreateRequest creates a new object.
type CreateRequest struct {
	Kind          string   `json:"kind"`
	Title         string   `json:"title"`
	ProjectRoot   string   `json:"projectRoot"`
	ID            string   `json:"id,omitempty"`
	Parent        string   `json:"parent,omitempty"`
	Status        string   `json:"status,omitempty"`
	Priority      string   `json:"priority,omitempty"`
	Prerequisites []string `json:"prerequisites,omitempty"`
	Description   string   `json:"description,omitempty"`
}

// GetRequest reads an object and its immediate children.
type GetRequest struct {
	ID          string `json:"id"`
	ProjectRoot string `json:"projectRoot"`
}

// UpdateRequest patches an object's header and/or body.
type UpdateRequest struct {
	ID          string         `json:"id"`
	ProjectRoot string         `json:"projectRoot"`
	YamlPatch   map[string]any `json:"yamlPatch,omitempty"`
	BodyPatch   *string        `json:"bodyPatch,omitempty"`
	Force       bool           `json:"force,omitempty"`
}

// ListRequest filters the task backlog.
type ListRequest struct {
	ProjectRoot    string `json:"projectRoot"`
	Scope          string `json:"scope,omitempty"`
	Status         string `json:"status,omitempty"`
	Priority       string `json:"priority,omitempty"`
	SortByPriority *bool  `json:"sortByPriority,omitempty"` // default true
}

// ClaimRequest claims the next task or a specific one.
type ClaimRequest struct {
	ProjectRoot string `json:"projectRoot"`
	Worktree    string `json:"worktree,omitempty"`
	Scope       string `json:"scope,omitempty"`
	TaskID      string `json:"taskId,omitempty"`
	Force       bool   `json:"force,omitempty"`
}

// CompleteRequest finishes a claimed task.
type CompleteRequest struct {
	ProjectRoot  string   `json:"projectRoot"`
	TaskID       string   `json:"taskId"`
	Summary      string   `json:"summary,omitempty"`
	FilesChanged []string `json:"filesChanged,omitempty"`
}

// ReviewableRequest fetches the next task awaiting review.
type ReviewableRequest struct {
	ProjectRoot string `json:"projectRoot"`
}
