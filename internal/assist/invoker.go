// Package assist runs the external AI command-line tool that rewrites HTML
// snippets for the admin editor.
package assist

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"churchsite/internal/config"
	"churchsite/internal/models"
)

// EmptyCompletion replaces a blank completion from the tool.
const EmptyCompletion = "No content returned from AI."

// Invoker calls the AI tool synchronously. The zero value is not usable;
// build one with New.
type Invoker struct {
	Tool         string
	DefaultModel string
	SystemPrompt string
	Timeout      time.Duration

	LookPath    func(file string) (string, error)
	CommandFunc func(ctx context.Context, name string, args ...string) *exec.Cmd
}

// New builds an Invoker from cfg.
func New(cfg config.Config) *Invoker {
	return &Invoker{
		Tool:         cfg.AITool,
		DefaultModel: cfg.AIDefaultModel,
		SystemPrompt: cfg.AISystemPrompt,
		Timeout:      cfg.AITimeout,
		LookPath:     exec.LookPath,
		CommandFunc:  exec.CommandContext,
	}
}

// ComposePrompt joins the surrounding HTML and the task into one instruction.
func ComposePrompt(prompt, promptContext string) string {
	if promptContext == "" {
		return prompt
	}
	return fmt.Sprintf("Context:\n%s\n\nTask: %s", promptContext, prompt)
}

// Invoke runs one completion and folds every failure into the result.
// When the tool is missing the composed prompt is returned so the user can
// paste it into another assistant by hand.
func (i *Invoker) Invoke(ctx context.Context, req models.AIRequest) models.AIResult {
	full := ComposePrompt(req.Prompt, req.Context)
	model := req.Model
	if model == "" {
		model = i.DefaultModel
	}

	output, raw, err := i.complete(ctx, model, full)
	if err != nil {
		res := models.AIResult{
			Success:   false,
			Error:     err.Error(),
			ErrorKind: string(KindOf(err)),
		}
		if KindOf(err) == KindToolNotFound {
			res.PromptForClipboard = full
		}
		return res
	}
	return models.AIResult{Success: true, Output: output, Raw: raw}
}

func (i *Invoker) complete(ctx context.Context, model, prompt string) (string, map[string]any, error) {
	lookPath := i.LookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	bin, err := lookPath(i.Tool)
	if err != nil {
		return "", nil, &Error{
			Kind:    KindToolNotFound,
			Message: fmt.Sprintf("%s CLI not found. Please install the %s CLI.", displayName(i.Tool), i.Tool),
			Err:     err,
		}
	}

	timeout := i.Timeout
	if timeout == 0 {
		timeout = 45 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmdFn := i.CommandFunc
	if cmdFn == nil {
		cmdFn = exec.CommandContext
	}
	cmd := cmdFn(ctx, bin, i.args(model, prompt)...)
	cmd.Env = filterEnv(cmd.Environ())
	cmd.WaitDelay = 2 * time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", nil, &Error{
				Kind:    KindTimeout,
				Message: fmt.Sprintf("AI request timed out (%s limit).", timeout),
				Err:     ctx.Err(),
			}
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", nil, &Error{
				Kind:    KindNonZeroExit,
				Message: fmt.Sprintf("CLI execution failed: %s", strings.TrimSpace(stderr.String())),
				Err:     err,
			}
		}
		return "", nil, &Error{
			Kind:    KindUnexpected,
			Message: fmt.Sprintf("Unexpected error: %v", err),
			Err:     err,
		}
	}

	var raw map[string]any
	if err := json.Unmarshal(stdout.Bytes(), &raw); err != nil {
		return "", nil, &Error{
			Kind:    KindMalformedOutput,
			Message: "Failed to parse AI response as JSON.",
			Err:     err,
		}
	}

	completion, _ := raw["completion"].(string)
	completion = strings.TrimSpace(completion)
	if completion == "" {
		completion = EmptyCompletion
	}
	return completion, raw, nil
}

func (i *Invoker) args(model, prompt string) []string {
	return []string{
		"completion",
		"--model", model,
		"--prompt", prompt,
		"--system-prompt", i.SystemPrompt,
		"--format", "json",
	}
}

// filterEnv strips variables that make a nested claude process think it is
// running inside another agent session.
func filterEnv(env []string) []string {
	filtered := make([]string, 0, len(env))
	for _, e := range env {
		if strings.HasPrefix(e, "CLAUDECODE") {
			continue
		}
		filtered = append(filtered, e)
	}
	return filtered
}

// displayName capitalizes the tool name for user-facing messages.
func displayName(tool string) string {
	if tool == "" {
		return tool
	}
	return strings.ToUpper(tool[:1]) + tool[1:]
}
