// Package command converts the model's free-text reply into a structured Command.
package command

import (
	"strings"

	"github.com/KafClaw/taskclaw/internal/board"
)

// PreviewLimit is the number of runes of the raw reply kept for diagnostics.
const PreviewLimit = 300

// Command is the structured form of one model reply. It is never mutated once
// parsed; nil pointer fields mean the field was absent or blank.
type Command struct {
	Action             string
	Title              *string
	Description        *string
	ProjectTitle       *string
	ProjectDescription *string
	SearchText         *string
	AssignedTo         *string
	Status             *string
	Tasks              []TaskCommand
}

// TaskCommand is one entry of the TASKS section.
type TaskCommand struct {
	Title       string
	Description string
	Status      string
	AssignedTo  *string
}

// Actions splits the raw action into its comma-separated phrases.
func (c Command) Actions() []string {
	var out []string
	for _, part := range strings.Split(c.Action, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// EffectiveTitle returns Title, falling back to ProjectTitle.
func (c Command) EffectiveTitle() string {
	if Present(c.Title) {
		return *c.Title
	}
	return Value(c.ProjectTitle)
}

// EffectiveDescription returns Description, falling back to ProjectDescription.
func (c Command) EffectiveDescription() string {
	if Present(c.Description) {
		return *c.Description
	}
	return Value(c.ProjectDescription)
}

// ParseError reports a reply that could not be turned into a Command.
type ParseError struct {
	Reason  string
	Preview string
}

func (e *ParseError) Error() string {
	return "parse response: " + e.Reason
}

func newParseError(reason, raw string) *ParseError {
	return &ParseError{Reason: reason, Preview: Preview(raw)}
}

// Preview returns at most PreviewLimit runes of s.
func Preview(s string) string {
	r := []rune(s)
	if len(r) <= PreviewLimit {
		return s
	}
	return string(r[:PreviewLimit])
}

// Value dereferences p, returning "" for nil.
func Value(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// Present reports whether p holds a non-blank value.
func Present(p *string) bool {
	return p != nil && strings.TrimSpace(*p) != ""
}

func newTask(title, description string) TaskCommand {
	if description == "" {
		description = title
	}
	return TaskCommand{Title: title, Description: description, Status: board.StatusTodo}
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
