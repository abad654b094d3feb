package agent

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattjoyce/agentlive/internal/stream"
)

// Workspace is the per-run directory the tools are sandboxed to. It also
// keeps the run's prompt snapshot, a markdown transcript of tool activity and
// the raw event log.
type Workspace struct {
	dir            string
	transcriptPath string
	promptPath     string
	eventsPath     string
}

// NewWorkspace creates a workspace directory for a run.
func NewWorkspace(baseDir, runID string) (*Workspace, error) {
	dir := filepath.Join(baseDir, runID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	meta := filepath.Join(dir, ".agentlive")
	if err := os.MkdirAll(meta, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	return &Workspace{
		dir:            dir,
		transcriptPath: filepath.Join(meta, "transcript.md"),
		promptPath:     filepath.Join(meta, "prompt.md"),
		eventsPath:     filepath.Join(meta, "events.ndjson"),
	}, nil
}

// WritePromptSnapshot records the prompt and system prompt of the run.
func (w *Workspace) WritePromptSnapshot(prompt, systemPrompt string) error {
	var b strings.Builder
	b.WriteString("# Prompt Snapshot\n\n")
	b.WriteString("Generated: ")
	b.WriteString(time.Now().UTC().Format(time.RFC3339))
	b.WriteString("\n\n## Prompt\n\n")
	b.WriteString(prompt)
	b.WriteString("\n\n## System Prompt\n\n```text\n")
	b.WriteString(systemPrompt)
	b.WriteString("\n```\n")

	if err := os.WriteFile(w.promptPath, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write prompt snapshot: %w", err)
	}
	return nil
}

// AppendToolCall records a tool invocation and its result to the transcript.
func (w *Workspace) AppendToolCall(tool string, args *stream.Args, output string, success bool) error {
	input := []byte("{}")
	if stream.HasArgs(args) {
		if b, err := json.MarshalIndent(args, "", "  "); err == nil {
			input = b
		}
	}
	status := "ok"
	if !success {
		status = "failed"
	}

	f, err := os.OpenFile(w.transcriptPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open transcript: %w", err)
	}
	defer f.Close()

	entry := fmt.Sprintf("## %s %s\n**Status:** %s\n**Input:**\n```json\n%s\n```\n**Output:**\n```text\n%s\n```\n\n",
		time.Now().UTC().Format(time.RFC3339), tool, status, input, output)
	if _, err := f.WriteString(entry); err != nil {
		return fmt.Errorf("write transcript entry: %w", err)
	}
	return nil
}

// ReadTranscript returns the transcript, or an empty string if none.
func (w *Workspace) ReadTranscript() string {
	data, err := os.ReadFile(w.transcriptPath)
	if err != nil {
		return ""
	}
	return string(data)
}

// AppendEvent adds ev to the newline-delimited event log.
func (w *Workspace) AppendEvent(ev stream.Event) error {
	data, err := ev.Encode()
	if err != nil {
		return err
	}
	f, err := os.OpenFile(w.eventsPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open event log: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// ReadEvents decodes the event log. Lines that fail to decode are skipped.
func (w *Workspace) ReadEvents() ([]stream.Event, error) {
	f, err := os.Open(w.eventsPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}
	defer f.Close()

	var events []stream.Event
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		ev, err := stream.DecodeEvent(line)
		if err != nil {
			continue
		}
		events = append(events, ev)
	}
	return events, sc.Err()
}

// Dir returns the workspace directory path.
func (w *Workspace) Dir() string {
	return w.dir
}
