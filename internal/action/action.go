// Package action defines the canonical action vocabulary and the rules that map
// loosely worded action phrases onto it.
package action

import (
	"log/slog"
	"strings"
)

// Action is a canonical action name, or the lower-cased raw phrase when no rule matched.
type Action string

const (
	CreateProject Action = "create project"
	CreateTask    Action = "create task"
	UpdateProject Action = "update project"
	UpdateTask    Action = "update task"
	DeleteProject Action = "delete project"
	DeleteTask    Action = "delete task"
	AssignTask    Action = "assign task"
)

// Tiers rank actions by risk. The policy engine auto-approves up to a configured tier.
const (
	TierReadOnly = 0
	TierWrite    = 1
	TierHighRisk = 2
)

var (
	createVerbs = []string{"create", "add", "new", "make"}
	updateVerbs = []string{"update", "modify", "edit", "change"}
	deleteVerbs = []string{"delete", "remove"}
)

// Normalize canonicalizes a raw action phrase. First match wins.
// Update and delete verbs only count when they lead the phrase, so an incidental
// "delete" deep inside a sentence never turns into a destructive action.
func Normalize(raw string) Action {
	p := strings.ToLower(strings.TrimSpace(raw))

	switch {
	case containsAny(p, createVerbs) && strings.Contains(p, "project"):
		return CreateProject
	case containsAny(p, createVerbs) && strings.Contains(p, "task"):
		return CreateTask
	case hasAnyPrefix(p, updateVerbs) && strings.Contains(p, "project"):
		return UpdateProject
	case hasAnyPrefix(p, updateVerbs) && strings.Contains(p, "task"):
		return UpdateTask
	case hasAnyPrefix(p, deleteVerbs) && strings.Contains(p, "project"):
		slog.Warn("Normalize: destructive action detected", "phrase", raw)
		return DeleteProject
	case hasAnyPrefix(p, deleteVerbs) && strings.Contains(p, "task"):
		slog.Warn("Normalize: destructive action detected", "phrase", raw)
		return DeleteTask
	case strings.Contains(p, "assign"):
		return AssignTask
	}
	slog.Debug("Normalize: no action pattern matched", "phrase", p)
	return Action(p)
}

// NormalizeAll normalizes every phrase, preserving order.
func NormalizeAll(raw []string) []Action {
	out := make([]Action, 0, len(raw))
	for _, r := range raw {
		out = append(out, Normalize(r))
	}
	return out
}

// IsDestructive reports whether the action deletes data.
// Both the batch validator and the executor consult this predicate.
func IsDestructive(a Action) bool {
	return a == DeleteProject || a == DeleteTask
}

// IsCreate reports whether the action creates a project or a task.
func IsCreate(a Action) bool {
	return a == CreateProject || a == CreateTask
}

// Known reports whether a is part of the canonical vocabulary.
func (a Action) Known() bool {
	switch a {
	case CreateProject, CreateTask, UpdateProject, UpdateTask, DeleteProject, DeleteTask, AssignTask:
		return true
	}
	return false
}

// Tier returns the risk tier of the action. Unknown actions are read-only: they
// never reach a repository.
func (a Action) Tier() int {
	switch {
	case IsDestructive(a):
		return TierHighRisk
	case a.Known():
		return TierWrite
	}
	return TierReadOnly
}

// Title returns the display form, e.g. "Create Project".
func (a Action) Title() string {
	words := strings.Fields(string(a))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// Verb returns the first word of the action ("create", "delete", ...).
func (a Action) Verb() string {
	verb, _, _ := strings.Cut(string(a), " ")
	return verb
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

func hasAnyPrefix(s string, words []string) bool {
	for _, w := range words {
		if strings.HasPrefix(s, w) {
			return true
		}
	}
	return false
}
