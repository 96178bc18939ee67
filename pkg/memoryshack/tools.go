package memoryshack

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/grovetools/devdash/errors"
	invjs "github.com/invopop/jsonschema"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Tool names forwarded to memory-shack.
const (
	ToolGetTimelineRange   = "get_timeline_range"
	ToolStoreTimelineEvent = "store_timeline_event"
	ToolUpdateEvent        = "update_event"
	ToolDeleteEvent        = "delete_event"
	ToolStoreMemory        = "store_memory"
	ToolRetrieveMemory     = "retrieve_memory"
	ToolListMemories       = "list_memories"
	ToolDeleteMemory       = "delete_memory"
)

// TimelineRangeArgs are the arguments of get_timeline_range.
type TimelineRangeArgs struct {
	StartDate string `json:"start_date" jsonschema:"pattern=^[0-9]{4}-[0-9]{2}-[0-9]{2}$"`
	EndDate   string `json:"end_date,omitempty" jsonschema:"pattern=^[0-9]{4}-[0-9]{2}-[0-9]{2}$"`
	Type      string `json:"type,omitempty"`
	Limit     int    `json:"limit,omitempty" jsonschema:"minimum=1,maximum=10000"`
}

// StoreTimelineEventArgs are the arguments of store_timeline_event. Timestamp
// is a unix timestamp or an ISO date string.
type StoreTimelineEventArgs struct {
	Timestamp any            `json:"timestamp"`
	Type      string         `json:"type" jsonschema:"minLength=1"`
	Title     string         `json:"title,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Namespace string         `json:"namespace,omitempty"`
}

// UpdateEventArgs are the arguments of update_event.
type UpdateEventArgs struct {
	EventID string         `json:"event_id" jsonschema:"minLength=1"`
	Updates map[string]any `json:"updates"`
}

// DeleteEventArgs are the arguments of delete_event.
type DeleteEventArgs struct {
	EventID string `json:"event_id" jsonschema:"minLength=1"`
}

// StoreMemoryArgs are the arguments of store_memory.
type StoreMemoryArgs struct {
	Key       string `json:"key" jsonschema:"minLength=1"`
	Value     any    `json:"value"`
	Namespace string `json:"namespace,omitempty"`
	TTL       int    `json:"ttl,omitempty" jsonschema:"minimum=1"`
}

// RetrieveMemoryArgs are the arguments of retrieve_memory.
type RetrieveMemoryArgs struct {
	Key       string `json:"key" jsonschema:"minLength=1"`
	Namespace string `json:"namespace,omitempty"`
}

// ListMemoriesArgs are the arguments of list_memories.
type ListMemoriesArgs struct {
	Namespace string `json:"namespace,omitempty"`
	Pattern   string `json:"pattern,omitempty"`
	Limit     int    `json:"limit,omitempty" jsonschema:"minimum=1"`
}

// DeleteMemoryArgs are the arguments of delete_memory.
type DeleteMemoryArgs struct {
	Key       string `json:"key" jsonschema:"minLength=1"`
	Namespace string `json:"namespace,omitempty"`
}

var toolArgs = map[string]any{
	ToolGetTimelineRange:   &TimelineRangeArgs{},
	ToolStoreTimelineEvent: &StoreTimelineEventArgs{},
	ToolUpdateEvent:        &UpdateEventArgs{},
	ToolDeleteEvent:        &DeleteEventArgs{},
	ToolStoreMemory:        &StoreMemoryArgs{},
	ToolRetrieveMemory:     &RetrieveMemoryArgs{},
	ToolListMemories:       &ListMemoriesArgs{},
	ToolDeleteMemory:       &DeleteMemoryArgs{},
}

// Tools returns every tool the proxy knows, sorted.
func Tools() []string {
	names := make([]string, 0, len(toolArgs))
	for name := range toolArgs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ToolSchema returns the JSON Schema of a tool's arguments.
func ToolSchema(tool string) ([]byte, error) {
	args, ok := toolArgs[tool]
	if !ok {
		return nil, errors.ToolNotAllowed(tool)
	}
	r := &invjs.Reflector{
		AllowAdditionalProperties: true,
		DoNotReference:            true,
		ExpandedStruct:            true,
	}
	schema := r.Reflect(args)
	schema.Title = tool
	return json.MarshalIndent(schema, "", "  ")
}

var (
	schemasOnce sync.Once
	schemas     map[string]*jsonschema.Schema
	schemasErr  error
)

func compiledSchemas() (map[string]*jsonschema.Schema, error) {
	schemasOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		out := make(map[string]*jsonschema.Schema, len(toolArgs))
		for _, tool := range Tools() {
			data, err := ToolSchema(tool)
			if err != nil {
				schemasErr = err
				return
			}
			url := tool + ".json"
			if err := compiler.AddResource(url, bytes.NewReader(data)); err != nil {
				schemasErr = fmt.Errorf("add schema for %s: %w", tool, err)
				return
			}
			s, err := compiler.Compile(url)
			if err != nil {
				schemasErr = fmt.Errorf("compile schema for %s: %w", tool, err)
				return
			}
			out[tool] = s
		}
		schemas = out
	})
	return schemas, schemasErr
}

// ValidateArgs checks args against the schema of tool.
func ValidateArgs(tool string, args map[string]any) error {
	all, err := compiledSchemas()
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to build tool schemas")
	}
	schema, ok := all[tool]
	if !ok {
		return errors.ToolNotAllowed(tool)
	}

	// Round-trip so typed values (ints, structs) validate like decoded JSON.
	data, err := json.Marshal(args)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInvalidInput, "arguments are not valid JSON")
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return errors.Wrap(err, errors.ErrCodeInvalidInput, "arguments are not valid JSON")
	}
	if doc == nil {
		doc = map[string]any{}
	}

	if err := schema.Validate(doc); err != nil {
		msg := err.Error()
		if ve, ok := err.(*jsonschema.ValidationError); ok {
			var parts []string
			for _, e := range ve.BasicOutput().Errors {
				if e.Error != "" && !strings.HasPrefix(e.Error, "doesn't validate with") {
					parts = append(parts, strings.TrimSpace(e.InstanceLocation+" "+e.Error))
				}
			}
			if len(parts) > 0 {
				msg = strings.Join(parts, "; ")
			}
		}
		return errors.New(errors.ErrCodeInvalidInput, fmt.Sprintf("invalid arguments for %s: %s", tool, msg)).
			WithDetail("tool", tool)
	}
	return nil
}
