package runtime

import (
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/szaher/cppmcp/internal/job"
	"github.com/szaher/cppmcp/internal/rpc"
)

// toolSpec is one catalog entry with its resolved argument schema.
type toolSpec struct {
	tool     rpc.Tool
	kind     job.Kind
	resolved *jsonschema.Resolved
}

// Catalog is the fixed set of tools the server exposes. It never changes
// after construction, so tools/list is idempotent.
type Catalog struct {
	tools []toolSpec
	index map[string]int
}

// NewCatalog builds the tool catalog and resolves every input schema.
func NewCatalog() (*Catalog, error) {
	defs := []struct {
		name, desc  string
		kind        job.Kind
		definitions bool
	}{
		{job.ToolCompile, "Compile C++ source and report diagnostics (errors, warnings, notes).", job.KindCompile, true},
		{job.ToolAnalyze, "Run the static analyzer over C++ source and report findings.", job.KindAnalyze, true},
		{job.ToolParseTree, "Parse C++ source and return its syntax tree as a flat node list.", job.KindParseTree, false},
		{job.ToolPreprocess, "Run the preprocessor over C++ source, returning the expanded text and referenced includes.", job.KindPreprocess, true},
	}

	c := &Catalog{index: make(map[string]int, len(defs))}
	for _, d := range defs {
		schema := inputSchema(d.definitions)
		resolved, err := schema.Resolve(nil)
		if err != nil {
			return nil, fmt.Errorf("resolve schema for %s: %w", d.name, err)
		}
		c.index[d.name] = len(c.tools)
		c.tools = append(c.tools, toolSpec{
			tool:     rpc.Tool{Name: d.name, Description: d.desc, InputSchema: schema},
			kind:     d.kind,
			resolved: resolved,
		})
	}
	return c, nil
}

func inputSchema(withDefinitions bool) *jsonschema.Schema {
	minLen := 1
	props := map[string]*jsonschema.Schema{
		"sourceCode": {
			Type:        "string",
			Description: "C++ source text of a single translation unit.",
			MinLength:   &minLen,
		},
		"options": {
			Type:        "string",
			Description: "Whitespace-separated compiler flags, e.g. \"-std=c++20 -Wall\".",
		},
	}
	if withDefinitions {
		props["definitions"] = &jsonschema.Schema{
			Type:                 "object",
			Description:          "Macro definitions passed as -DNAME=VALUE. Empty values are allowed.",
			AdditionalProperties: &jsonschema.Schema{Type: "string"},
		}
	}
	return &jsonschema.Schema{
		Type:       "object",
		Properties: props,
		Required:   []string{"sourceCode"},
	}
}

// List returns the catalog in a stable order.
func (c *Catalog) List() rpc.ListToolsResult {
	tools := make([]rpc.Tool, len(c.tools))
	for i, t := range c.tools {
		tools[i] = t.tool
	}
	return rpc.ListToolsResult{Tools: tools}
}

// Lookup returns the operation kind for a tool.
func (c *Catalog) Lookup(name string) (job.Kind, bool) {
	i, ok := c.index[name]
	if !ok {
		return "", false
	}
	return c.tools[i].kind, true
}

// ValidateArguments checks raw tool arguments against the tool's schema.
func (c *Catalog) ValidateArguments(name string, raw json.RawMessage) error {
	i, ok := c.index[name]
	if !ok {
		return fmt.Errorf("unknown tool %q", name)
	}
	var instance map[string]any
	if err := json.Unmarshal(raw, &instance); err != nil {
		return fmt.Errorf("arguments must be an object: %w", err)
	}
	return c.tools[i].resolved.Validate(instance)
}
