// Package agent turns natural-language commands into project and task changes:
// classify, prompt, generate, parse, normalize, check, execute.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/KafClaw/taskclaw/internal/action"
	"github.com/KafClaw/taskclaw/internal/board"
	"github.com/KafClaw/taskclaw/internal/command"
	"github.com/KafClaw/taskclaw/internal/executor"
	"github.com/KafClaw/taskclaw/internal/intent"
	"github.com/KafClaw/taskclaw/internal/policy"
	"github.com/KafClaw/taskclaw/internal/provider"
	"github.com/KafClaw/taskclaw/internal/timeline"
)

// User-facing messages for the early exits.
const (
	msgNotReady = "No AI model is currently loaded. Please select a provider and load a model first."
	msgUnknown  = "Could not understand your request. Please try:\n" +
		"• 'Create a project called [name]'\n" +
		"• 'Create task for [project name]'\n" +
		"• 'Update [project name] project'\n" +
		"• 'Delete [project name] project'"
	msgModelNotReady = "Model not ready. Please try reloading the model."
	msgEmptyReply    = "AI returned empty response. Please try:\n• Reloading the model\n• Using simpler commands\n• Different wording"
	msgParseFailure  = "Failed to understand AI response. This might be due to:\n" +
		"• Malformed response format\n" +
		"• Missing ACTION field\n" +
		"• Unsupported action type\n\n" +
		"Raw response (first 300 chars): %s..."
	msgNoActions = "No valid actions detected. Please try rephrasing your request.\n\n" +
		"Examples:\n" +
		"• 'Create a project called Mobile App'\n" +
		"• 'Create task for website project'\n" +
		"• 'Update mobile app project description'\n\n" +
		"AI response preview: %s..."
	msgCanceled = "Command canceled."
)

const noActionsPreview = 200

// Request is one command with its origin.
type Request struct {
	Text    string
	Sender  string
	Channel string
	TraceID string
	DryRun  bool
}

// PipelineOptions contains the pipeline's collaborators.
type PipelineOptions struct {
	Generator  provider.Generator
	Repository board.Repository
	Classifier intent.Classifier
	Prompts    *intent.Prompts
	Policy     policy.Engine
	Timeline   *timeline.TimelineService
	DryRun     bool
}

// Pipeline processes commands end to end. It keeps no per-command state, so
// concurrent calls are independent.
type Pipeline struct {
	generator  provider.Generator
	classifier intent.Classifier
	prompts    *intent.Prompts
	policy     policy.Engine
	executor   *executor.Executor
	timeline   *timeline.TimelineService
	dryRun     bool
}

// NewPipeline creates a pipeline. Missing prompts and policy fall back to the
// built-in defaults; a missing generator behaves as "no model loaded".
func NewPipeline(opts PipelineOptions) *Pipeline {
	p := &Pipeline{
		generator:  opts.Generator,
		classifier: opts.Classifier,
		prompts:    opts.Prompts,
		policy:     opts.Policy,
		executor:   executor.New(opts.Repository, opts.Repository),
		timeline:   opts.Timeline,
		dryRun:     opts.DryRun,
	}
	if p.generator == nil {
		p.generator = provider.Unavailable{Reason: "no generator configured"}
	}
	if p.prompts == nil {
		p.prompts = intent.DefaultPrompts()
	}
	if p.policy == nil {
		p.policy = policy.NewDefaultEngine()
	}
	return p
}

// ProcessCommand runs text through the whole pipeline.
func (p *Pipeline) ProcessCommand(ctx context.Context, text string) executor.Result {
	return p.Process(ctx, Request{Text: text})
}

// Process runs req through the whole pipeline. Failures never escape as errors:
// they come back as an unsuccessful Result with a readable message.
func (p *Pipeline) Process(ctx context.Context, req Request) executor.Result {
	start := time.Now()
	if req.TraceID == "" {
		req.TraceID = uuid.NewString()
	}
	req.DryRun = req.DryRun || p.dryRun
	rec := &timeline.CommandRecord{
		TraceID: req.TraceID,
		Sender:  req.Sender,
		Channel: req.Channel,
		Input:   req.Text,
		DryRun:  req.DryRun,
	}
	slog.Info("Pipeline: processing command", "trace_id", req.TraceID, "channel", req.Channel, "sender", req.Sender)

	res := p.process(ctx, req, rec)

	slog.Info("Pipeline: command finished", "trace_id", req.TraceID, "success", res.Success,
		"canceled", res.Canceled, "dry_run", res.DryRun, "duration", time.Since(start))
	p.record(rec, res, start)
	return res
}

func (p *Pipeline) process(ctx context.Context, req Request, rec *timeline.CommandRecord) executor.Result {
	if !p.generator.Ready() {
		slog.Warn("Pipeline: no model loaded", "trace_id", req.TraceID)
		return executor.Failure(msgNotReady)
	}
	rec.Model = p.generator.Model()

	in := p.classifier.Classify(req.Text)
	rec.Intent = in.Key()
	slog.Debug("Pipeline: classified", "trace_id", req.TraceID, "intent", in)
	if in == intent.Unknown {
		return executor.Failure(msgUnknown)
	}

	prompt, err := p.prompts.Build(in, req.Text)
	if err != nil {
		slog.Error("Pipeline: prompt build failed", "trace_id", req.TraceID, "intent", in, "error", err)
		return executor.Failure(fmt.Sprintf("Failed to build prompt: %v", err))
	}

	reply, res, ok := p.generate(ctx, req.TraceID, prompt)
	if !ok {
		return res
	}
	rec.Reply = reply

	if strings.TrimSpace(reply) == "" {
		slog.Warn("Pipeline: AI returned empty response", "trace_id", req.TraceID)
		return executor.Failure(msgEmptyReply)
	}

	cmd, err := command.Parse(reply)
	if err != nil {
		preview := command.Preview(reply)
		var pe *command.ParseError
		if errors.As(err, &pe) {
			preview = pe.Preview
		}
		slog.Error("Pipeline: failed to parse reply", "trace_id", req.TraceID, "error", err)
		return executor.Failure(fmt.Sprintf(msgParseFailure, preview))
	}

	actions := action.NormalizeAll(cmd.Actions())
	for _, a := range actions {
		rec.Actions = append(rec.Actions, a.Title())
	}
	if len(actions) == 0 {
		slog.Warn("Pipeline: no valid actions detected", "trace_id", req.TraceID)
		return executor.Failure(fmt.Sprintf(msgNoActions, previewRunes(reply, noActionsPreview)))
	}
	slog.Debug("Pipeline: normalized actions", "trace_id", req.TraceID, "actions", rec.Actions)

	decision := p.policy.Evaluate(policy.Context{
		Sender:   req.Sender,
		Channel:  req.Channel,
		TraceID:  req.TraceID,
		UserText: req.Text,
		Actions:  actions,
		Command:  cmd,
	})
	p.recordDecision(req, in, decision)
	if !decision.Allow {
		slog.Warn("Pipeline: batch rejected", "trace_id", req.TraceID, "reason", decision.Reason)
		res := executor.Failure(decision.Message)
		res.Actions = actionNames(actions)
		return res
	}

	if req.DryRun {
		return executor.Result{
			Success:        true,
			DryRun:         true,
			Message:        planMessage(actions, cmd),
			Actions:        actionNames(actions),
			CreatedTaskIDs: []string{},
		}
	}

	return p.executor.Execute(ctx, cmd, actions)
}

// generate streams the completion and returns the full reply. ok is false when
// res holds the early-exit result.
func (p *Pipeline) generate(ctx context.Context, traceID, prompt string) (reply string, res executor.Result, ok bool) {
	stream, err := p.generator.Generate(ctx, prompt)
	if err == nil {
		reply, err = provider.Collect(ctx, stream)
	}
	switch {
	case err == nil:
		return reply, executor.Result{}, true
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		slog.Warn("Pipeline: generation canceled", "trace_id", traceID, "error", err)
		res = executor.Failure(msgCanceled)
		res.Canceled = true
		return "", res, false
	case errors.Is(err, provider.ErrNotReady):
		slog.Error("Pipeline: model not ready", "trace_id", traceID)
		return "", executor.Failure(msgModelNotReady), false
	default:
		slog.Error("Pipeline: AI generation failed", "trace_id", traceID, "model", p.generator.Model(), "error", err)
		return "", executor.Failure(fmt.Sprintf("AI generation failed: %v", err)), false
	}
}

func (p *Pipeline) recordDecision(req Request, in intent.Intent, d policy.Decision) {
	if p.timeline == nil {
		return
	}
	err := p.timeline.LogPolicyDecision(&timeline.PolicyDecisionRecord{
		TraceID: req.TraceID,
		Intent:  in.Key(),
		Tier:    d.Tier,
		Sender:  req.Sender,
		Channel: req.Channel,
		Allowed: d.Allow,
		Reason:  d.Reason,
	})
	if err != nil {
		slog.Warn("Pipeline: failed to log policy decision", "trace_id", req.TraceID, "error", err)
	}
}

func (p *Pipeline) record(rec *timeline.CommandRecord, res executor.Result, start time.Time) {
	if p.timeline == nil {
		return
	}
	rec.Success = res.Success
	rec.Canceled = res.Canceled
	rec.Message = res.Message
	rec.CreatedProjectID = res.CreatedProjectID
	rec.CreatedTaskIDs = res.CreatedTaskIDs
	rec.DurationMs = time.Since(start).Milliseconds()
	if err := p.timeline.LogCommand(rec); err != nil {
		slog.Warn("Pipeline: failed to record command", "trace_id", rec.TraceID, "error", err)
	}
}

func planMessage(actions []action.Action, cmd command.Command) string {
	var b strings.Builder
	b.WriteString("Dry run, nothing was changed. Planned actions:\n")
	for _, a := range actions {
		fmt.Fprintf(&b, "• %s\n", a.Title())
	}
	b.WriteString("\n")
	b.WriteString(command.Render(cmd))
	if details := command.TaskDetails(cmd); details != "" {
		b.WriteString("\n\nTask details:\n")
		b.WriteString(details)
	}
	return strings.TrimRight(b.String(), "\n")
}

func actionNames(actions []action.Action) []string {
	out := make([]string, 0, len(actions))
	for _, a := range actions {
		out = append(out, string(a))
	}
	return out
}

func previewRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
