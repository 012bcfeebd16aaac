package command

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/KafClaw/taskclaw/internal/action"
)

type fieldKey int

const (
	keyAction fieldKey = iota
	keyTitle
	keyDescription
	keyProjectTitle
	keyProjectDescription
	keySearch
	keyAssignedTo
	keyStatus
)

// Longer prefixes first so "PROJECT TITLE:" never loses to a shorter key.
var fieldPrefixes = []struct {
	prefix string
	key    fieldKey
}{
	{"PROJECT DESCRIPTION:", keyProjectDescription},
	{"PROJECT TITLE:", keyProjectTitle},
	{"ASSIGNED TO:", keyAssignedTo},
	{"ASSIGN TO:", keyAssignedTo},
	{"DESCRIPTION:", keyDescription},
	{"ACTION:", keyAction},
	{"SEARCH:", keySearch},
	{"STATUS:", keyStatus},
	{"TITLE:", keyTitle},
}

var canonicalActions = []string{
	"Create Project", "Create Task",
	"Update Project", "Update Task",
	"Delete Project", "Delete Task",
}

// Parse scans a raw model reply into a Command. The returned error is always a
// *ParseError.
func Parse(raw string) (Command, error) {
	if strings.TrimSpace(raw) == "" {
		return Command{}, newParseError("empty response", raw)
	}
	if cmd, act, ok := parseJSON(raw); ok {
		return finalize(cmd, act, raw)
	}

	lines := cleanLines(raw)
	if len(lines) == 0 {
		return Command{}, newParseError("no content lines", raw)
	}

	var (
		cmd     Command
		act     *string
		inTasks bool
	)
	for _, line := range lines {
		if key, val, ok := matchField(line); ok {
			inTasks = false
			switch key {
			case keyAction:
				act = val
			case keyTitle:
				cmd.Title = val
			case keyDescription:
				cmd.Description = val
			case keyProjectTitle:
				cmd.ProjectTitle = val
			case keyProjectDescription:
				cmd.ProjectDescription = val
			case keySearch:
				cmd.SearchText = val
			case keyAssignedTo:
				cmd.AssignedTo = val
			case keyStatus:
				cmd.Status = val
			}
			continue
		}
		if strings.EqualFold(line, "TASKS:") {
			inTasks = true
			continue
		}
		if inTasks && isBullet(line) {
			if t, ok := ParseTaskLine(line); ok {
				cmd.Tasks = append(cmd.Tasks, t)
			}
			continue
		}
		if act == nil {
			if inferred := inferAction(line); inferred != "" {
				slog.Debug("Parse: inferred action from content", "action", inferred)
				act = &inferred
			}
		}
	}
	return finalize(cmd, act, raw)
}

func finalize(cmd Command, act *string, raw string) (Command, error) {
	if !Present(act) {
		return Command{}, newParseError("no ACTION field found", raw)
	}
	cmd.Action = strings.TrimSpace(*act)

	if createsProject(cmd.Actions()) {
		if !Present(cmd.Title) && !Present(cmd.ProjectTitle) {
			return Command{}, newParseError("Create Project requires a title", raw)
		}
		if !Present(cmd.Title) {
			cmd.Title = cmd.ProjectTitle
		}
		if !Present(cmd.Description) {
			cmd.Description = cmd.ProjectDescription
		}
	}
	return cmd, nil
}

func createsProject(phrases []string) bool {
	for _, p := range phrases {
		if action.Normalize(p) == action.CreateProject {
			return true
		}
	}
	return false
}

func cleanLines(raw string) []string {
	var out []string
	for _, l := range strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n") {
		l = strings.TrimSpace(l)
		switch {
		case l == "":
		case strings.HasPrefix(l, "```"):
		case strings.HasPrefix(l, "OUTPUT:"), strings.HasPrefix(l, "Input:"):
		default:
			out = append(out, l)
		}
	}
	return out
}

func matchField(line string) (fieldKey, *string, bool) {
	for _, f := range fieldPrefixes {
		if len(line) >= len(f.prefix) && strings.EqualFold(line[:len(f.prefix)], f.prefix) {
			return f.key, optional(line[len(f.prefix):]), true
		}
	}
	return 0, nil, false
}

func isBullet(line string) bool {
	return strings.HasPrefix(line, "-") || strings.HasPrefix(line, "•") || strings.HasPrefix(line, "*")
}

// ParseTaskLine parses one bullet entry. It tries "Title | Description", then
// "Title: Description", then uses the whole text as both title and description.
// A separator with nothing before it ("| text") makes the text both title and
// description.
func ParseTaskLine(line string) (TaskCommand, bool) {
	content := strings.TrimSpace(line)
	for _, bullet := range []string{"-", "•", "*"} {
		if strings.HasPrefix(content, bullet) {
			content = strings.TrimSpace(strings.TrimPrefix(content, bullet))
			break
		}
	}
	if content == "" {
		return TaskCommand{}, false
	}
	for _, sep := range []string{"|", ":"} {
		title, desc, ok := strings.Cut(content, sep)
		if !ok {
			continue
		}
		title, desc = strings.TrimSpace(title), strings.TrimSpace(desc)
		switch {
		case title != "":
			return newTask(title, desc), true
		case desc != "":
			return newTask(desc, desc), true
		default:
			return TaskCommand{}, false
		}
	}
	return newTask(content, content), true
}

// inferAction recovers an action from lines such as "**ACTION:** Create Project"
// where the key is not at the start of the line. Only unambiguous lines count.
func inferAction(line string) string {
	idx := indexFold(line, "ACTION:")
	if idx < 0 {
		return ""
	}
	rest := strings.Trim(line[idx+len("ACTION:"):], " \t*_`\"'")
	if titles, ok := knownTitles(rest); ok {
		return titles
	}

	var found string
	lower := strings.ToLower(line)
	for _, name := range canonicalActions {
		if strings.Contains(lower, strings.ToLower(name)) {
			if found != "" {
				return ""
			}
			found = name
		}
	}
	return found
}

func indexFold(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if strings.EqualFold(s[i:i+len(substr)], substr) {
			return i
		}
	}
	return -1
}

// knownTitles returns the display titles of phrases when every phrase maps onto
// a known action.
func knownTitles(phrases string) (string, bool) {
	parts := Command{Action: phrases}.Actions()
	if len(parts) == 0 {
		return "", false
	}
	titles := make([]string, 0, len(parts))
	for _, p := range parts {
		a := action.Normalize(p)
		if !a.Known() {
			return "", false
		}
		titles = append(titles, a.Title())
	}
	return strings.Join(titles, ", "), true
}

type jsonCommand struct {
	Action             json.RawMessage `json:"Action"`
	Title              *string         `json:"Title"`
	Description        *string         `json:"Description"`
	ProjectTitle       *string         `json:"Project Title"`
	ProjectDescription *string         `json:"Project Description"`
	Tasks              []jsonTask      `json:"Tasks"`
	Status             *string         `json:"Status"`
	AssignedTo         *string         `json:"Assigned To"`
	SearchText         *string         `json:"Search Text"`
}

type jsonTask struct {
	Title       string  `json:"Title"`
	Description string  `json:"Description"`
	Status      *string `json:"Status"`
	AssignedTo  *string `json:"Assigned To"`
}

// parseJSON accepts replies that are a JSON object, optionally wrapped in a code
// fence. The action may be a string or a list of strings.
func parseJSON(raw string) (Command, *string, bool) {
	body := stripFences(raw)
	if !strings.HasPrefix(body, "{") {
		return Command{}, nil, false
	}
	end := strings.LastIndex(body, "}")
	if end < 0 {
		return Command{}, nil, false
	}
	var jc jsonCommand
	if err := json.Unmarshal([]byte(body[:end+1]), &jc); err != nil {
		slog.Debug("Parse: JSON reply rejected, falling back to line scanner", "error", err)
		return Command{}, nil, false
	}

	cmd := Command{
		Title:              trimmed(jc.Title),
		Description:        trimmed(jc.Description),
		ProjectTitle:       trimmed(jc.ProjectTitle),
		ProjectDescription: trimmed(jc.ProjectDescription),
		SearchText:         trimmed(jc.SearchText),
		AssignedTo:         trimmed(jc.AssignedTo),
		Status:             trimmed(jc.Status),
	}
	for _, t := range jc.Tasks {
		title := strings.TrimSpace(t.Title)
		if title == "" {
			continue
		}
		tc := newTask(title, strings.TrimSpace(t.Description))
		if s := trimmed(t.Status); s != nil {
			tc.Status = *s
		}
		tc.AssignedTo = trimmed(t.AssignedTo)
		cmd.Tasks = append(cmd.Tasks, tc)
	}
	return cmd, decodeAction(jc.Action), true
}

func decodeAction(raw json.RawMessage) *string {
	if len(raw) == 0 {
		return nil
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return optional(single)
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		var parts []string
		for _, p := range list {
			if p = strings.TrimSpace(p); p != "" {
				parts = append(parts, p)
			}
		}
		return optional(strings.Join(parts, ", "))
	}
	return nil
}

func stripFences(raw string) string {
	var kept []string
	for _, l := range strings.Split(raw, "\n") {
		if strings.HasPrefix(strings.TrimSpace(l), "```") {
			continue
		}
		kept = append(kept, l)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

func trimmed(p *string) *string {
	if p == nil {
		return nil
	}
	return optional(*p)
}
