package registry

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
)

// RawRecordsFilter hides tools that return individual records unless the
// operator enabled expose_raw_records.
type RawRecordsFilter struct {
	allowRaw bool
}

// NewRawRecordsFilter constructs the filter from the configured flag.
func NewRawRecordsFilter(allowRaw bool) *RawRecordsFilter {
	return &RawRecordsFilter{allowRaw: allowRaw}
}

// AllowRaw reports whether raw record tools are served.
func (f *RawRecordsFilter) AllowRaw() bool { return f.allowRaw }

// FilterTools implements server tool filtering semantics.
func (f *RawRecordsFilter) FilterTools(ctx context.Context, tools []mcp.Tool) []mcp.Tool {
	if f.allowRaw {
		return tools
	}
	out := make([]mcp.Tool, 0, len(tools))
	for _, t := range tools {
		if _, raw := rawRecordTools[t.Name]; raw {
			continue
		}
		out = append(out, t)
	}
	return out
}

var rawRecordTools = map[string]struct{}{
	ToolPreviewRecords: {},
}
