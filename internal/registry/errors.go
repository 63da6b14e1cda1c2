package registry

import (
	"context"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/vinodismyname/kpidash/internal/datasets"
	"github.com/vinodismyname/kpidash/internal/ingest"
	"github.com/vinodismyname/kpidash/internal/kpi"
	"github.com/vinodismyname/kpidash/internal/runtime"
	"github.com/vinodismyname/kpidash/internal/security"
	"github.com/vinodismyname/kpidash/pkg/mcperr"
)

// toolError maps domain errors onto catalog codes.
func toolError(err error) *mcp.CallToolResult {
	var schemaErr *kpi.SchemaError
	var parseErr *kpi.ParseError
	switch {
	case errors.As(err, &schemaErr):
		return mcperr.Wrapf(mcperr.SchemaInvalid, "missing required columns: %v", schemaErr.MissingColumns)
	case errors.As(err, &parseErr) && parseErr.Column == "":
		return mcperr.Wrapf(mcperr.ParseFailed, "row %d: %v", parseErr.Row, parseErr.Err)
	case errors.As(err, &parseErr):
		return mcperr.Wrapf(mcperr.ParseFailed, "row %d, column %s: cannot parse %q", parseErr.Row, parseErr.Column, parseErr.Value)
	case errors.Is(err, ingest.ErrUnsupportedFormat), errors.Is(err, security.ErrUnsupportedExtension):
		return mcperr.Wrapf(mcperr.UnsupportedFormat, "%v", err)
	case errors.Is(err, ingest.ErrFileTooLarge):
		return mcperr.Wrapf(mcperr.FileTooLarge, "%v", err)
	case errors.Is(err, ingest.ErrTooManyRecords), errors.Is(err, runtime.ErrDatasetCapacity):
		return mcperr.Wrapf(mcperr.LimitExceeded, "%v", err)
	case errors.Is(err, ingest.ErrEmptyFile), errors.Is(err, ingest.ErrSheetNotFound):
		return mcperr.Wrapf(mcperr.Validation, "%v", err)
	case errors.Is(err, security.ErrNotAllowed), errors.Is(err, security.ErrNoAllowedDirs), errors.Is(err, datasets.ErrNoPathValidator):
		return mcperr.Wrapf(mcperr.PermissionDenied, "%v", err)
	case errors.Is(err, security.ErrNotFound):
		return mcperr.Wrapf(mcperr.OpenFailed, "%v", err)
	case errors.Is(err, datasets.ErrDatasetNotFound):
		return mcperr.New(mcperr.InvalidDataset, "")
	case errors.Is(err, context.DeadlineExceeded):
		return mcperr.New(mcperr.Timeout, "")
	}
	return mcperr.Wrapf(mcperr.OpenFailed, "%v", err)
}
