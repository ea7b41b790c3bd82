package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"
)

// ToolCaller executes a named tool with resolved arguments.
type ToolCaller interface {
	CallTool(ctx context.Context, name string, args map[string]interface{}) (map[string]interface{}, error)
}

// Tool is the implementation of one step tool. The returned map becomes
// the step's result in the template context.
type Tool func(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error)

// Toolbox is the set of tools workflow steps can call.
type Toolbox struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewToolbox creates a toolbox holding the built-in tools echo, sleep, fail
// and warn.
func NewToolbox() *Toolbox {
	tb := &Toolbox{tools: make(map[string]Tool)}
	tb.Register("echo", echoTool)
	tb.Register("sleep", sleepTool)
	tb.Register("fail", failTool)
	tb.Register("warn", warnTool)
	return tb
}

// Register adds or replaces a tool.
func (t *Toolbox) Register(name string, tool Tool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tools[name] = tool
}

// HasTool implements ToolChecker.
func (t *Toolbox) HasTool(name string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.tools[name]
	return ok
}

// Names returns the registered tool names in sorted order.
func (t *Toolbox) Names() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	names := make([]string, 0, len(t.tools))
	for name := range t.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CallTool implements ToolCaller.
func (t *Toolbox) CallTool(ctx context.Context, name string, args map[string]interface{}) (map[string]interface{}, error) {
	t.mu.RLock()
	tool, ok := t.tools[name]
	t.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("tool '%s' not found", name)
	}
	return tool(ctx, args)
}

func echoTool(_ context.Context, args map[string]interface{}) (map[string]interface{}, error) {
	result := make(map[string]interface{}, len(args))
	for k, v := range args {
		result[k] = v
	}
	return result, nil
}

// sleepTool waits for args["duration"], given either as a Go duration
// string or as milliseconds.
func sleepTool(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
	d, err := durationArg(args["duration"])
	if err != nil {
		return nil, err
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return map[string]interface{}{"slept": d.String()}, nil
	}
}

func failTool(_ context.Context, args map[string]interface{}) (map[string]interface{}, error) {
	if msg, ok := args["message"].(string); ok && msg != "" {
		return nil, errors.New(msg)
	}
	return nil, errors.New("step failed")
}

func warnTool(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
	msg, _ := args["message"].(string)
	if msg == "" {
		msg = "warning"
	}
	ReportWarning(ctx, "%s", msg)
	return map[string]interface{}{"message": msg}, nil
}

func durationArg(v interface{}) (time.Duration, error) {
	switch d := v.(type) {
	case nil:
		return 0, errors.New("missing argument 'duration'")
	case string:
		if ms, err := strconv.Atoi(d); err == nil {
			return time.Duration(ms) * time.Millisecond, nil
		}
		parsed, err := time.ParseDuration(d)
		if err != nil {
			return 0, fmt.Errorf("invalid duration '%s': %w", d, err)
		}
		return parsed, nil
	case int:
		return time.Duration(d) * time.Millisecond, nil
	case int64:
		return time.Duration(d) * time.Millisecond, nil
	case float64:
		return time.Duration(d * float64(time.Millisecond)), nil
	default:
		return 0, fmt.Errorf("invalid duration type %T", v)
	}
}

type warningsKey struct{}

type warningSink struct {
	mu       sync.Mutex
	messages []string
}

func (w *warningSink) add(msg string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.messages = append(w.messages, msg)
}

func (w *warningSink) list() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.messages...)
}

// ReportWarning records a warning on the workflow run carried by ctx. It is
// a no-op outside a run.
func ReportWarning(ctx context.Context, format string, args ...interface{}) {
	if sink, ok := ctx.Value(warningsKey{}).(*warningSink); ok {
		sink.add(fmt.Sprintf(format, args...))
	}
}
