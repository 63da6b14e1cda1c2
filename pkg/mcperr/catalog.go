package mcperr

import (
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// Code defines a canonical MCP error code used across tools.
type Code string

const (
	// Validation & Input
	Validation     Code = "VALIDATION"
	InvalidDataset Code = "INVALID_DATASET"
	CursorInvalid  Code = "CURSOR_INVALID"

	// Dataset contents
	SchemaInvalid Code = "SCHEMA_INVALID"
	ParseFailed   Code = "PARSE_FAILED"

	// Resource & Limits
	BusyResource  Code = "BUSY_RESOURCE"
	Timeout       Code = "TIMEOUT"
	LimitExceeded Code = "LIMIT_EXCEEDED"
	FileTooLarge  Code = "FILE_TOO_LARGE"

	// IO & Formats
	OpenFailed        Code = "OPEN_FAILED"
	UnsupportedFormat Code = "UNSUPPORTED_FORMAT"
	PermissionDenied  Code = "PERMISSION_DENIED"
	AnalysisFailed    Code = "ANALYSIS_FAILED"
)

// Entry documents a code's standard message, retry semantics, and next steps.
type Entry struct {
	Code      Code
	Message   string
	Retryable bool
	NextSteps []string
}

var catalog = map[Code]Entry{
	Validation:     {Code: Validation, Message: "invalid inputs", Retryable: true, NextSteps: []string{"Correct the inputs per schema and retry"}},
	InvalidDataset: {Code: InvalidDataset, Message: "dataset not found, replaced or expired", Retryable: true, NextSteps: []string{"Call load_dataset again and use the returned dataset_id"}},
	CursorInvalid:  {Code: CursorInvalid, Message: "cursor is invalid for current dataset or filters", Retryable: true, NextSteps: []string{"Restart pagination without a cursor"}},

	SchemaInvalid: {Code: SchemaInvalid, Message: "required columns are missing", Retryable: false, NextSteps: []string{"Provide columns: Month, Team, Project, Lead, Actual Money, Target Money", "Header names are case-sensitive"}},
	ParseFailed:   {Code: ParseFailed, Message: "a cell could not be parsed", Retryable: false, NextSteps: []string{"Fix the reported cell (dates like 2024-01-01, plain numbers for money) and reload"}},

	BusyResource:  {Code: BusyResource, Message: "concurrent request limit reached", Retryable: true, NextSteps: []string{"Retry after a short delay"}},
	Timeout:       {Code: Timeout, Message: "operation exceeded configured time limit", Retryable: true, NextSteps: []string{"Narrow filters or load a smaller file"}},
	LimitExceeded: {Code: LimitExceeded, Message: "operation exceeded configured limits", Retryable: true, NextSteps: []string{"Close unused datasets or reduce row count"}},
	FileTooLarge:  {Code: FileTooLarge, Message: "file exceeds configured size", Retryable: false, NextSteps: []string{"Use a smaller file or increase the limit"}},

	OpenFailed:        {Code: OpenFailed, Message: "failed to open dataset file", Retryable: true, NextSteps: []string{"Verify path, permissions, and format"}},
	UnsupportedFormat: {Code: UnsupportedFormat, Message: "unsupported file format", Retryable: false, NextSteps: []string{"Convert to .xlsx or .csv and retry"}},
	PermissionDenied:  {Code: PermissionDenied, Message: "path is outside the allowed directories", Retryable: false, NextSteps: []string{"Move the file into an allowed directory or upload content_base64"}},
	AnalysisFailed:    {Code: AnalysisFailed, Message: "analysis failed", Retryable: true, NextSteps: []string{"Verify dimension and filters"}},
}

// Lookup returns the catalog entry for code.
func Lookup(code Code) (Entry, bool) {
	e, ok := catalog[code]
	return e, ok
}

// normalize renders "CODE: message | nextSteps: ..." for clients that only
// surface a message string.
func normalize(code Code, msg string) string {
	base := strings.TrimSpace(msg)
	e, ok := Lookup(code)
	if !ok {
		if base == "" {
			return string(code)
		}
		return fmt.Sprintf("%s: %s", string(code), base)
	}
	if base == "" {
		base = e.Message
	}
	guidance := ""
	if len(e.NextSteps) > 0 {
		guidance = " | nextSteps: " + strings.Join(e.NextSteps, "; ")
	}
	return fmt.Sprintf("%s: %s%s", e.Code, base, guidance)
}

// FromText parses a "CODE: message" string, enriches it with catalog guidance,
// and returns an MCP tool error result.
func FromText(text string) *mcp.CallToolResult {
	t := strings.TrimSpace(text)
	if t == "" {
		return mcp.NewToolResultError(normalize(Validation, ""))
	}
	code, msg, _ := strings.Cut(t, ":")
	return mcp.NewToolResultError(normalize(Code(strings.TrimSpace(code)), strings.TrimSpace(msg)))
}

// New returns an MCP error result for a given code and optional message override.
func New(code Code, message string) *mcp.CallToolResult {
	return mcp.NewToolResultError(normalize(code, message))
}

// Wrapf formats details and returns an MCP error result for the code.
func Wrapf(code Code, format string, args ...any) *mcp.CallToolResult {
	return mcp.NewToolResultError(normalize(code, fmt.Sprintf(format, args...)))
}
