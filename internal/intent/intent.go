// Package intent classifies a user instruction and builds the model prompt for it.
package intent

import (
	"log/slog"
	"strings"
)

// Intent is the coarse operation a user instruction asks for.
type Intent string

const (
	CreateProject Intent = "CREATE_PROJECT"
	CreateTask    Intent = "CREATE_TASK"
	UpdateProject Intent = "UPDATE_PROJECT"
	UpdateTask    Intent = "UPDATE_TASK"
	DeleteProject Intent = "DELETE_PROJECT"
	DeleteTask    Intent = "DELETE_TASK"
	Unknown       Intent = "UNKNOWN"
)

// All lists every classifiable intent, UNKNOWN excluded.
var All = []Intent{CreateProject, CreateTask, UpdateProject, UpdateTask, DeleteProject, DeleteTask}

// Key returns the lower snake-case name used in prompt override files.
func (i Intent) Key() string {
	return strings.ToLower(string(i))
}

var (
	deleteWords = []string{"delete", "remove"}
	updateWords = []string{"update", "modify", "edit", "change"}
	createWords = []string{"create", "add", "new", "make"}
	// "for", "to" and "in" are matched as substrings, so "into" or "intro" count too.
	targetWords = []string{"for", "to", "in"}
)

// Classifier maps free text onto an Intent using keyword checks in priority
// order: delete, update, create.
type Classifier struct {
	// Strict disables the CREATE_PROJECT fallback for create-like text that
	// names neither a project nor a task.
	Strict bool
}

// Classify uses a non-strict classifier.
func Classify(text string) Intent {
	return Classifier{}.Classify(text)
}

// Classify returns the intent of text. It never fails; unrecognized text is Unknown.
func (c Classifier) Classify(text string) Intent {
	in := strings.ToLower(text)
	hasProject := strings.Contains(in, "project")
	hasTask := strings.Contains(in, "task")

	if containsAny(in, deleteWords) {
		switch {
		case hasProject:
			return DeleteProject
		case hasTask:
			return DeleteTask
		}
	}
	if containsAny(in, updateWords) {
		switch {
		case hasProject:
			return UpdateProject
		case hasTask:
			return UpdateTask
		}
	}
	if containsAny(in, createWords) {
		switch {
		case hasTask && containsAny(in, targetWords):
			return CreateTask
		case hasTask && !hasProject:
			return CreateTask
		case hasProject:
			return CreateProject
		case c.Strict:
			slog.Debug("Classifier: create verb without target, strict mode", "text", text)
			return Unknown
		}
		slog.Debug("Classifier: create verb without target, defaulting to project", "text", text)
		return CreateProject
	}
	return Unknown
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
