// Package security screens externally supplied IDs, paths and header
// fields before the core touches the filesystem. Every rejection is
// mirrored to the audit log with a sanitized echo of the input.
package security

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/trellis-dev/trellis/internal/errs"
)

// Reserved Windows device names. Checked on every platform: the
// planning tree must stay portable across checkouts.
var reservedNames = map[string]bool{
	"con": true, "prn": true, "aux": true, "nul": true,
	"com1": true, "com2": true, "com3": true, "com4": true, "com5": true,
	"com6": true, "com7": true, "com8": true, "com9": true,
	"lpt1": true, "lpt2": true, "lpt3": true, "lpt4": true, "lpt5": true,
	"lpt6": true, "lpt7": true, "lpt8": true, "lpt9": true,
}

// Header keys that look like privilege escalation attempts.
var privilegedKeys = map[string]bool{
	"system_admin": true, "root_access": true, "privileged": true,
	"admin": true, "superuser": true, "elevated": true,
	"bypass_validation": true, "skip_checks": true, "ignore_constraints": true,
}

// Extensions flagged explicitly when they appear inside an ID.
var dangerousExtensions = []string{".exe", ".bat", ".sh", ".py", ".js"}

// Parent strings that indicate a serialization artifact rather than a
// real object reference.
var suspiciousParents = map[string]bool{
	"null": true, "none": true, "undefined": true,
	"true": true, "false": true, "{}": true, "[]": true,
}

// Validator runs the security checks and reports rejections to the
// audit sink.
type Validator struct {
	audit *Auditor
}

// NewValidator creates a Validator. A nil auditor disables audit
// events but never the checks themselves.
func NewValidator(audit *Auditor) *Validator {
	return &Validator{audit: audit}
}

// CheckID validates an externally supplied object ID (prefixed or
// clean) before it is used to build any path.
func (v *Validator) CheckID(id string) error {
	if err := v.checkIDRules(id); err != nil {
		v.reject("id_validation", map[string]string{"id": Sanitize(id)})
		return err
	}
	return nil
}

func (v *Validator) checkIDRules(id string) error {
	if id == "" {
		return errs.New(errs.CodeMissingRequiredField, "object ID is required")
	}
	if strings.Contains(id, "..") {
		return errs.New(errs.CodeInvalidField, "object ID must not contain path traversal sequences")
	}
	if strings.HasPrefix(id, "/") || strings.HasPrefix(id, "\\") {
		return errs.New(errs.CodeInvalidField, "object ID must not start with a path separator")
	}
	if strings.ContainsAny(id, "/\\") {
		return errs.New(errs.CodeInvalidField, "object ID must not contain path separators")
	}
	if strings.HasPrefix(id, ".") {
		return errs.New(errs.CodeInvalidField, "object ID must not start with a dot")
	}
	if err := checkControlChars(id); err != nil {
		return err
	}
	if strings.Contains(id, "%") && looksURLEncoded(id) {
		return errs.New(errs.CodeInvalidField, "object ID must not contain URL-encoded sequences")
	}
	lower := strings.ToLower(id)
	for _, ext := range dangerousExtensions {
		if strings.HasSuffix(lower, ext) {
			return errs.New(errs.CodeInvalidField, "object ID must not carry a %s extension", ext)
		}
	}
	if dot := strings.LastIndex(lower, "."); dot >= 0 && lower[dot:] != ".md" {
		return errs.New(errs.CodeInvalidField, "object ID must not carry a file extension")
	}
	base := strings.TrimSuffix(lower, ".md")
	if reservedNames[base] {
		return errs.New(errs.CodeInvalidField, "object ID uses a reserved system name")
	}
	return nil
}

// CheckParent validates a parent reference string.
func (v *Validator) CheckParent(parent string) error {
	trimmed := strings.TrimSpace(parent)
	if parent != "" && trimmed == "" {
		v.reject("parent_validation", map[string]string{"parent": "<whitespace>"})
		return errs.New(errs.CodeParentInvalid, "parent must not be whitespace-only")
	}
	if suspiciousParents[strings.ToLower(trimmed)] {
		v.reject("parent_validation", map[string]string{"parent": Sanitize(parent)})
		return errs.New(errs.CodeParentInvalid, "parent %q is not a valid object reference", trimmed)
	}
	if len(parent) > 255 {
		v.reject("parent_validation", map[string]string{"parent_length": "overlong"})
		return errs.New(errs.CodeParentInvalid, "parent reference exceeds 255 characters")
	}
	return nil
}

// CheckHeaderKeys rejects privileged keys in an update patch.
func (v *Validator) CheckHeaderKeys(keys []string) error {
	for _, k := range keys {
		if privilegedKeys[strings.ToLower(k)] {
			v.reject("privileged_field", map[string]string{"field": Sanitize(k)})
			return errs.New(errs.CodeInvalidField, "field %q is not permitted", k)
		}
	}
	return nil
}

// CheckPath verifies that a constructed path stays inside the planning
// root and that no symlink along the way escapes it. Absolute symlinks
// are rejected outright; relative ones are rejected when their resolved
// target leaves the root.
func (v *Validator) CheckPath(root, path string) error {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return errs.Wrap(errs.CodeInvalidField, err, "planning root could not be resolved")
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return errs.Wrap(errs.CodeInvalidField, err, "object path could not be resolved")
	}
	if !strings.HasPrefix(absPath+string(filepath.Separator), absRoot+string(filepath.Separator)) &&
		absPath != absRoot {
		v.reject("path_escape", map[string]string{"path": Sanitize(path)})
		return errs.New(errs.CodeInvalidField, "object path escapes the planning root")
	}
	return v.checkSymlinks(absRoot, absPath)
}

func (v *Validator) checkSymlinks(absRoot, absPath string) error {
	// Walk each existing ancestor between root and target.
	rel, err := filepath.Rel(absRoot, absPath)
	if err != nil || strings.HasPrefix(rel, "..") {
		return nil
	}
	current := absRoot
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		if part == "." || part == "" {
			continue
		}
		current = filepath.Join(current, part)
		info, err := os.Lstat(current)
		if err != nil {
			// Not created yet; nothing to inspect.
			return nil
		}
		if info.Mode()&os.ModeSymlink == 0 {
			continue
		}
		target, err := os.Readlink(current)
		if err != nil {
			v.reject("symlink_unreadable", map[string]string{"path": Sanitize(current)})
			return errs.New(errs.CodeInvalidField, "symlink in object path could not be inspected")
		}
		if filepath.IsAbs(target) {
			v.reject("symlink_absolute", map[string]string{"path": Sanitize(current)})
			return errs.New(errs.CodeInvalidField, "absolute symlinks are not permitted in the planning tree")
		}
		resolved, err := filepath.EvalSymlinks(current)
		if err != nil {
			v.reject("symlink_unresolvable", map[string]string{"path": Sanitize(current)})
			return errs.New(errs.CodeInvalidField, "symlink in object path could not be resolved")
		}
		if !strings.HasPrefix(resolved+string(filepath.Separator), absRoot+string(filepath.Separator)) {
			v.reject("symlink_escape", map[string]string{"path": Sanitize(current)})
			return errs.New(errs.CodeInvalidField, "symlink target escapes the planning root")
		}
	}
	return nil
}

// StandaloneChecksApply reports whether the standalone-task security
// checks are active for a schema version.
func StandaloneChecksApply(schemaVersion string) bool {
	return schemaVersion >= "1.1"
}

func (v *Validator) reject(event string, context map[string]string) {
	if v.audit != nil {
		v.audit.Rejection(event, context)
	}
}

func checkControlChars(s string) error {
	for _, c := range s {
		if c == 0 {
			return errs.New(errs.CodeInvalidField, "object ID must not contain null bytes")
		}
		if c < 0x20 && c != '\t' && c != '\r' && c != '\n' {
			return errs.New(errs.CodeInvalidField, "object ID must not contain control characters")
		}
	}
	return nil
}

func looksURLEncoded(s string) bool {
	for i := 0; i+2 < len(s); i++ {
		if s[i] == '%' && isHexByte(s[i+1]) && isHexByte(s[i+2]) {
			return true
		}
	}
	return false
}

func isHexByte(b byte) bool {
	return (b >= '0' && b <= '9') || (b >= 'a' && b <= 'f') || (b >= 'A' && b <= 'F')
}
