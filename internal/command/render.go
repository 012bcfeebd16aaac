package command

import (
	"strings"

	"github.com/KafClaw/taskclaw/internal/board"
)

// Render writes c back in the canonical field layout the prompts request.
// Parse(Render(c)) reproduces any Command produced by the line scanner. Task
// status and assignee only come from JSON replies and have no line form; see
// TaskDetails.
func Render(c Command) string {
	var b strings.Builder
	line := func(key string, v *string) {
		if Present(v) {
			b.WriteString(key + ": " + *v + "\n")
		}
	}

	act := c.Action
	line("ACTION", &act)
	line("TITLE", c.Title)
	line("DESCRIPTION", c.Description)
	line("PROJECT TITLE", c.ProjectTitle)
	line("PROJECT DESCRIPTION", c.ProjectDescription)
	line("SEARCH", c.SearchText)
	line("STATUS", c.Status)
	line("ASSIGN TO", c.AssignedTo)
	if len(c.Tasks) > 0 {
		b.WriteString("TASKS:\n")
		for _, t := range c.Tasks {
			b.WriteString("- " + t.Title + " | " + t.Description + "\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// TaskDetails lists the tasks that carry a non-default status or an assignee,
// one "- Title: status done, assigned to alice" line each. It returns "" when
// every task uses the defaults.
func TaskDetails(c Command) string {
	var lines []string
	for _, t := range c.Tasks {
		var parts []string
		if s := board.NormalizeStatus(t.Status); s != board.StatusTodo {
			parts = append(parts, "status "+s)
		}
		if Present(t.AssignedTo) {
			parts = append(parts, "assigned to "+*t.AssignedTo)
		}
		if len(parts) > 0 {
			lines = append(lines, "- "+t.Title+": "+strings.Join(parts, ", "))
		}
	}
	return strings.Join(lines, "\n")
}
