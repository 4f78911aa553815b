package audittrail

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"veritrail/internal/authz/resource"
)

// actionForMethod is the fixed method classification for path-inferred
// entries. Unmapped methods classify as UPDATE.
func actionForMethod(method string) Action {
	switch method {
	case http.MethodPost:
		return ActionCreate
	case http.MethodPut, http.MethodPatch:
		return ActionUpdate
	case http.MethodDelete:
		return ActionDelete
	default:
		return ActionUpdate
	}
}

// updatableFields maps request-body field names onto the human labels
// used in "Updated ... for ..." sentences. Order is the rendering order,
// so field lists come out stable regardless of body key order.
var updatableFields = []struct {
	key   string
	label string
}{
	{"title", "title"},
	{"name", "name"},
	{"description", "description"},
	{"status", "status"},
	{"severity", "severity"},
	{"priority", "priority"},
	{"riskRating", "risk rating"},
	{"recommendation", "recommendation"},
	{"managementResponse", "management response"},
	{"actionPlan", "action plan"},
	{"assignedTo", "assignee"},
	{"dueDate", "due date"},
	{"targetDate", "target date"},
	{"startDate", "start date"},
	{"endDate", "end date"},
	{"findings", "findings"},
	{"scope", "scope"},
}

// body is a leniently parsed JSON payload. Lookups check the top level
// first and then a "data" envelope, since API responses wrap their
// payload while request bodies do not.
type body map[string]any

func parseBody(raw []byte) body {
	if len(raw) == 0 {
		return nil
	}
	var parsed map[string]any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil
	}
	return parsed
}

func (b body) str(key string) string {
	if b == nil {
		return ""
	}
	if value, ok := b[key].(string); ok && value != "" {
		return value
	}
	if data, ok := b["data"].(map[string]any); ok {
		if value, ok := data[key].(string); ok {
			return value
		}
	}
	return ""
}

func (b body) has(key string) bool {
	if b == nil {
		return false
	}
	_, ok := b[key]
	return ok
}

// firstOf returns the first non-empty value among the keys, in order.
func (b body) firstOf(keys ...string) string {
	for _, key := range keys {
		if value := b.str(key); value != "" {
			return value
		}
	}
	return ""
}

// synthesizer turns a completed mutating request into the natural-language
// sentence that goes on the audit trail.
type synthesizer struct {
	registry *resource.Registry
}

// describe produces the human description for a path-inferred entry.
func (s *synthesizer) describe(ctx context.Context, method string, info pathInfo, reqBody, respBody body) string {
	if info.nested() {
		return s.describeNested(ctx, method, info, respBody)
	}
	return s.describeTopLevel(ctx, method, info, reqBody, respBody)
}

// describeNested phrases operations on a sub-resource of a known parent,
// e.g. evidence uploaded to an observation. Specific (subResource, method)
// combinations get purpose-built sentences; the rest fall back to a
// generic added/removed/updated line.
func (s *synthesizer) describeNested(ctx context.Context, method string, info pathInfo, respBody body) string {
	parent := singularize(info.parentResource)
	parentLabel := s.instanceLabel(ctx, parent, info.parentID)

	switch key := info.subResource + " " + method; key {
	case "evidence " + http.MethodPost:
		if fileName := respBody.firstOf("fileName", "filename"); fileName != "" {
			return fmt.Sprintf("Uploaded evidence %q to %s %s", fileName, parent, parentLabel)
		}
		return fmt.Sprintf("Uploaded evidence to %s %s", parent, parentLabel)

	case "documents " + http.MethodPost:
		if fileName := respBody.firstOf("fileName", "filename"); fileName != "" {
			return fmt.Sprintf("Uploaded document %q to %s %s", fileName, parent, parentLabel)
		}
		return fmt.Sprintf("Uploaded document to %s %s", parent, parentLabel)

	case "comments " + http.MethodPost:
		return fmt.Sprintf("Added a comment to %s %s", parent, parentLabel)

	case "status " + http.MethodPost, "status " + http.MethodPut, "status " + http.MethodPatch:
		if status := respBody.str("status"); status != "" {
			return fmt.Sprintf("Changed status of %s %s to %q", parent, parentLabel, status)
		}
		return fmt.Sprintf("Changed status of %s %s", parent, parentLabel)

	case "members " + http.MethodPost, "team-members " + http.MethodPost:
		if member := respBody.firstOf("name", "email"); member != "" {
			return fmt.Sprintf("Added %s to %s %s", member, parent, parentLabel)
		}
		return fmt.Sprintf("Added a team member to %s %s", parent, parentLabel)
	}

	verb := "Updated"
	switch method {
	case http.MethodPost:
		verb = "Added"
	case http.MethodDelete:
		verb = "Removed"
	}
	return fmt.Sprintf("%s %s for %s %s", verb, singularize(info.subResource), parent, parentLabel)
}

// describeTopLevel phrases operations addressed at a resource directly.
func (s *synthesizer) describeTopLevel(ctx context.Context, method string, info pathInfo, reqBody, respBody body) string {
	res := singularize(info.parentResource)

	name := respBody.firstOf("title", "name", "fileName")
	if name == "" && info.parentID != "" {
		name, _ = s.lookupName(ctx, res, info.parentID)
	}

	label := ""
	switch {
	case name != "":
		label = fmt.Sprintf("%q", name)
	case info.parentID != "":
		label = "(" + truncateID(info.parentID) + ")"
	}

	if method == http.MethodPut || method == http.MethodPatch {
		if fields := changedFieldLabels(reqBody); len(fields) > 0 {
			return trailing(fmt.Sprintf("Updated %s for %s %s", renderFieldList(fields), res, label))
		}
	}

	verb := "Updated"
	switch method {
	case http.MethodPost:
		verb = "Created"
	case http.MethodDelete:
		verb = "Deleted"
	}
	return trailing(fmt.Sprintf("%s %s %s", verb, res, label))
}

// instanceLabel renders a parent instance as its quoted display name, or
// the raw id when no name can be resolved.
func (s *synthesizer) instanceLabel(ctx context.Context, res, rawID string) string {
	if name, ok := s.lookupName(ctx, res, rawID); ok {
		return fmt.Sprintf("%q", name)
	}
	return rawID
}

func (s *synthesizer) lookupName(ctx context.Context, res, rawID string) (string, bool) {
	if s.registry == nil || rawID == "" {
		return "", false
	}
	t, err := resource.ParseType(res)
	if err != nil {
		return "", false
	}
	return s.registry.DisplayName(ctx, t, rawID)
}

// changedFieldLabels collects the human labels of recognized fields
// present in the request body, in the fixed rendering order.
func changedFieldLabels(reqBody body) []string {
	var labels []string
	for _, field := range updatableFields {
		if reqBody.has(field.key) {
			labels = append(labels, field.label)
		}
	}
	return labels
}

// renderFieldList renders changed-field labels: a single label stands
// alone, two or three are comma-joined, more than three become the first
// three plus "and N more".
func renderFieldList(labels []string) string {
	if len(labels) <= 3 {
		return strings.Join(labels, ", ")
	}
	return fmt.Sprintf("%s and %d more", strings.Join(labels[:3], ", "), len(labels)-3)
}

func truncateID(rawID string) string {
	if len(rawID) > 8 {
		return rawID[:8]
	}
	return rawID
}

func trailing(s string) string {
	return strings.TrimRight(s, " ")
}
