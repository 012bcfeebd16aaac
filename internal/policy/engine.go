// Package policy decides whether a parsed command batch may run.
package policy

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/KafClaw/taskclaw/internal/action"
	"github.com/KafClaw/taskclaw/internal/command"
)

// Context holds everything known about a pending batch.
type Context struct {
	Sender   string
	Channel  string
	TraceID  string
	UserText string
	Actions  []action.Action
	Command  command.Command
}

// Decision is the result of a policy evaluation. Message is the user-facing
// explanation when Allow is false.
type Decision struct {
	Allow   bool
	Reason  string
	Message string
	Tier    int
	Ts      time.Time
	TraceID string
}

// Engine evaluates whether a batch should proceed.
type Engine interface {
	Evaluate(ctx Context) Decision
}

// DefaultEngine runs the sender, intent, field and tier checks in that order.
// The first failing check rejects the whole batch.
type DefaultEngine struct {
	// MaxAutoTier is the highest tier that is auto-approved (default: 2).
	// Batches containing a higher-tier action are denied.
	MaxAutoTier int
	// AllowedSenders is the set of senders permitted to run commands.
	// If empty, all senders are allowed.
	AllowedSenders map[string]bool
}

// NewDefaultEngine creates a policy engine that allows every tier.
func NewDefaultEngine() *DefaultEngine {
	return &DefaultEngine{
		MaxAutoTier: action.TierHighRisk,
	}
}

// Evaluate checks the batch. It performs no side effects.
func (e *DefaultEngine) Evaluate(ctx Context) Decision {
	d := Decision{
		Tier:    maxTier(ctx.Actions),
		Ts:      time.Now(),
		TraceID: ctx.TraceID,
	}

	if len(e.AllowedSenders) > 0 && ctx.Sender != "" {
		if !e.AllowedSenders[ctx.Sender] {
			d.Reason = fmt.Sprintf("sender_not_authorized: %s", ctx.Sender)
			d.Message = fmt.Sprintf("Sender %s is not authorized to run commands.", ctx.Sender)
			return d
		}
	}

	if msg, ok := CheckIntent(ctx.UserText, ctx.Actions); !ok {
		slog.Error("Policy: create action contradicts user request", "trace_id", ctx.TraceID, "text", ctx.UserText)
		d.Reason = "intent_mismatch"
		d.Message = msg
		return d
	}

	if msg, ok := CheckFields(ctx.Command, ctx.Actions); !ok {
		d.Reason = "missing_fields"
		d.Message = msg
		return d
	}

	if d.Tier > e.MaxAutoTier {
		d.Reason = fmt.Sprintf("tier_%d_requires_approval", d.Tier)
		d.Message = fmt.Sprintf("This request needs approval: tier %d actions are above the auto-approved tier %d.", d.Tier, e.MaxAutoTier)
		return d
	}

	d.Allow = true
	d.Reason = fmt.Sprintf("tier_%d_auto_approved", d.Tier)
	return d
}

func maxTier(actions []action.Action) int {
	tier := action.TierReadOnly
	for _, a := range actions {
		if t := a.Tier(); t > tier {
			tier = t
		}
	}
	return tier
}

var (
	deleteWords = []string{"delete", "remove"}
	updateWords = []string{"update", "modify", "edit", "change"}
)

// CheckIntent refuses batches where the user asked to delete or update but the
// model produced a create action. The returned message quotes the user's text.
func CheckIntent(userText string, actions []action.Action) (string, bool) {
	hasCreate := false
	for _, a := range actions {
		if action.IsCreate(a) {
			hasCreate = true
			break
		}
	}
	if !hasCreate {
		return "", true
	}

	lower := strings.ToLower(userText)
	noun := "project"
	if strings.Contains(lower, "task") && !strings.Contains(lower, "project") {
		noun = "task"
	}
	switch {
	case containsAny(lower, deleteWords):
		return mismatchMessage("DELETE", noun, userText,
			fmt.Sprintf("'Delete [%s name] %s'", noun, noun),
			fmt.Sprintf("'Remove [%s name] %s'", noun, noun)), false
	case containsAny(lower, updateWords):
		return mismatchMessage("UPDATE", noun, userText,
			fmt.Sprintf("'Update [%s name] %s description'", noun, noun),
			fmt.Sprintf("'Modify [%s name] %s'", noun, noun)), false
	}
	return "", true
}

func mismatchMessage(verb, noun, userText string, hints ...string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Error: You requested to %s a %s, but the system tried to CREATE instead.\n\n", verb, noun)
	b.WriteString("This appears to be a misinterpretation. Please try:\n")
	for _, h := range hints {
		b.WriteString("• " + h + "\n")
	}
	fmt.Fprintf(&b, "\nYour original request: \"%s\"", userText)
	return b.String()
}

// CheckFields verifies each action has the fields it needs. Create Task may omit
// SEARCH only when a Create Project precedes it in the batch.
func CheckFields(cmd command.Command, actions []action.Action) (string, bool) {
	projectFirst := false
	for _, a := range actions {
		switch a {
		case action.CreateProject:
			if cmd.EffectiveTitle() == "" {
				return "Create Project action requires a title. Please specify the project name.", false
			}
			projectFirst = true
		case action.CreateTask:
			if len(cmd.Tasks) == 0 {
				return "Create Task action requires task details. Please specify what tasks to create.", false
			}
			if !command.Present(cmd.SearchText) && !projectFirst {
				return "Create Task action requires either:\n" +
					"• A project name to search for (e.g., 'for mobile app project')\n" +
					"• Or create the project first", false
			}
		case action.UpdateProject, action.DeleteProject:
			if !command.Present(cmd.SearchText) {
				return identifierMessage(a, "project"), false
			}
		case action.UpdateTask, action.DeleteTask:
			if !command.Present(cmd.SearchText) {
				return identifierMessage(a, "task"), false
			}
		case action.AssignTask:
			if !command.Present(cmd.SearchText) || !command.Present(cmd.AssignedTo) {
				return "Assign Task action requires both:\n" +
					"• Task identifier (which task to assign)\n" +
					"• Assignee (who to assign it to)", false
			}
		}
	}
	return "", true
}

func identifierMessage(a action.Action, noun string) string {
	return fmt.Sprintf("%s action requires a %s identifier. Please specify which %s to %s.", a.Title(), noun, noun, a.Verb())
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
