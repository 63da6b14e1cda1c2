package registry

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/vinodismyname/kpidash/config"
	"github.com/vinodismyname/kpidash/internal/datasets"
	"github.com/vinodismyname/kpidash/internal/kpi"
	"github.com/vinodismyname/kpidash/internal/report"
	"github.com/vinodismyname/kpidash/internal/runtime"
	"github.com/vinodismyname/kpidash/pkg/mcperr"
	"github.com/vinodismyname/kpidash/pkg/pagination"
	"github.com/vinodismyname/kpidash/pkg/validation"
)

// Tool names.
const (
	ToolLoadDataset       = "load_dataset"
	ToolListFilterOptions = "list_filter_options"
	ToolComputeTotals     = "compute_totals"
	ToolGroupBy           = "group_by"
	ToolKPIDashboard      = "kpi_dashboard"
	ToolPreviewRecords    = "preview_records"
	ToolCloseDataset      = "close_dataset"
)

// DefaultSlot holds the dataset for transports without session IDs.
const DefaultSlot = "default"

// --- Input / Output Schemas (typed for discovery) ---

// LoadDatasetInput defines parameters for loading a dataset.
type LoadDatasetInput struct {
	Path          string `json:"path,omitempty" jsonschema_description:"Path to an .xlsx or .csv file inside an allowed directory" validate:"omitempty,dataset_ext"`
	ContentBase64 string `json:"content_base64,omitempty" jsonschema_description:"Standard base64 file content, as an alternative to path" validate:"omitempty,base64"`
	Name          string `json:"name,omitempty" jsonschema_description:"File name for uploaded content; its extension selects the format" validate:"omitempty,dataset_ext"`
	Sheet         string `json:"sheet,omitempty" jsonschema_description:"Worksheet to read; defaults to the first sheet" validate:"omitempty,max=31"`
}

// OptionCounts summarizes the distinct values per dimension.
type OptionCounts struct {
	Months   int `json:"months"`
	Teams    int `json:"teams"`
	Projects int `json:"projects"`
	Leads    int `json:"leads"`
}

// LoadDatasetOutput documents the response fields for load_dataset.
type LoadDatasetOutput struct {
	DatasetID   string       `json:"dataset_id" jsonschema_description:"Server-assigned dataset ID"`
	Name        string       `json:"name"`
	Fingerprint string       `json:"fingerprint" jsonschema_description:"SHA-256 of the file bytes"`
	Records     int          `json:"records"`
	Cached      bool         `json:"cached" jsonschema_description:"True when identical content was already loaded in this session"`
	Options     OptionCounts `json:"filter_options"`
	ExpiresAt   string       `json:"expires_at" jsonschema_description:"Idle expiry (RFC3339); any call on the dataset extends it"`
}

// DatasetInput selects the session's dataset.
type DatasetInput struct {
	DatasetID string `json:"dataset_id,omitempty" jsonschema_description:"Dataset ID from load_dataset; defaults to the session's current dataset" validate:"omitempty,uuid"`
}

// ListFilterOptionsOutput lists selectable values per dimension.
type ListFilterOptionsOutput struct {
	DatasetID string   `json:"dataset_id"`
	Months    []string `json:"months" jsonschema_description:"YYYY-MM, chronological"`
	Teams     []string `json:"teams"`
	Projects  []string `json:"projects"`
	Leads     []string `json:"leads"`
}

// FilteredInput selects a dataset and an optional filter selection.
type FilteredInput struct {
	DatasetID string        `json:"dataset_id,omitempty" jsonschema_description:"Dataset ID from load_dataset; defaults to the session's current dataset" validate:"omitempty,uuid"`
	Filters   kpi.Selection `json:"filters,omitempty" jsonschema_description:"Values to include per dimension; dimensions combine with AND"`
}

// ComputeTotalsOutput holds the headline metrics.
type ComputeTotalsOutput struct {
	DatasetID string          `json:"dataset_id"`
	Filters   kpi.Selection   `json:"filters"`
	Headline  report.Headline `json:"headline"`
}

// GroupByInput defines parameters for group_by.
type GroupByInput struct {
	DatasetID string        `json:"dataset_id,omitempty" jsonschema_description:"Dataset ID from load_dataset; defaults to the session's current dataset" validate:"omitempty,uuid"`
	Dimension string        `json:"dimension" jsonschema:"enum=month,enum=team,enum=project,enum=lead" jsonschema_description:"Grouping dimension" validate:"required,dimension"`
	Filters   kpi.Selection `json:"filters,omitempty"`
}

// GroupByOutput holds one row per group.
type GroupByOutput struct {
	DatasetID string        `json:"dataset_id"`
	Dimension string        `json:"dimension"`
	Filters   kpi.Selection `json:"filters"`
	Rows      []report.Row  `json:"rows"`
}

// KPIDashboardOutput holds every dashboard section.
type KPIDashboardOutput struct {
	DatasetID string           `json:"dataset_id"`
	Dashboard report.Dashboard `json:"dashboard"`
}

// PreviewRecordsInput defines parameters for paging raw records.
type PreviewRecordsInput struct {
	DatasetID string        `json:"dataset_id,omitempty" validate:"omitempty,uuid"`
	Filters   kpi.Selection `json:"filters,omitempty"`
	PageSize  int           `json:"page_size,omitempty" jsonschema_description:"Records per page (bounded)" validate:"omitempty,gte=1,lte=1000"`
	Cursor    string        `json:"cursor,omitempty" jsonschema_description:"nextCursor from a previous page; resend the same filters" validate:"omitempty,cursor"`
}

// RecordView is a record rendered for display.
type RecordView struct {
	Month         string  `json:"month"`
	Team          string  `json:"team"`
	Project       string  `json:"project"`
	Lead          string  `json:"lead"`
	Actual        float64 `json:"actual"`
	Target        float64 `json:"target"`
	ActualDisplay string  `json:"actual_display"`
	TargetDisplay string  `json:"target_display"`
}

// PageMeta captures paging metadata.
type PageMeta struct {
	Total      int    `json:"total"`
	Returned   int    `json:"returned"`
	Truncated  bool   `json:"truncated"`
	NextCursor string `json:"nextCursor,omitempty"`
}

// PreviewRecordsOutput holds one page of records.
type PreviewRecordsOutput struct {
	DatasetID string       `json:"dataset_id"`
	Records   []RecordView `json:"records"`
	Meta      PageMeta     `json:"meta"`
}

// CloseDatasetOutput reports close_dataset success.
type CloseDatasetOutput struct {
	Success bool `json:"success" jsonschema_description:"True when the dataset was discarded"`
}

// Handlers implements the KPI tools over a dataset manager.
type Handlers struct {
	mgr    *datasets.Manager
	limits runtime.Limits
	raw    *RawRecordsFilter
	budget SummaryBudget
}

// NewHandlers binds tool handlers to mgr, the effective limits, the raw
// records policy and the text summary budget.
func NewHandlers(mgr *datasets.Manager, limits runtime.Limits, raw *RawRecordsFilter, budget SummaryBudget) *Handlers {
	if raw == nil {
		raw = NewRawRecordsFilter(false)
	}
	return &Handlers{mgr: mgr, limits: limits, raw: raw, budget: budget}
}

// RegisterKPITools defines the dataset and KPI tools on s.
func RegisterKPITools(s *server.MCPServer, reg *Registry, h *Handlers) {
	add := func(tool mcp.Tool, handler server.ToolHandlerFunc) {
		s.AddTool(tool, handler)
		reg.Register(tool)
	}

	add(mcp.NewTool(
		ToolLoadDataset,
		mcp.WithDescription("Load a performance spreadsheet (.xlsx or .csv) with columns Month, Team, Project, Lead, Actual Money, Target Money. Provide path (inside an allowed directory) or content_base64 with name. Loading replaces this session's previous dataset; identical content is reused. Errors include SCHEMA_INVALID (missing columns), PARSE_FAILED (bad cell), UNSUPPORTED_FORMAT, FILE_TOO_LARGE and PERMISSION_DENIED."),
		mcp.WithInputSchema[LoadDatasetInput](),
		mcp.WithOutputSchema[LoadDatasetOutput](),
	), mcp.NewTypedToolHandler(h.LoadDataset))

	add(mcp.NewTool(
		ToolListFilterOptions,
		mcp.WithDescription("List the distinct months, teams, projects and leads of a dataset for building filters."),
		mcp.WithInputSchema[DatasetInput](),
		mcp.WithOutputSchema[ListFilterOptionsOutput](),
	), mcp.NewTypedToolHandler(h.ListFilterOptions))

	add(mcp.NewTool(
		ToolComputeTotals,
		mcp.WithDescription("Compute total actual money, total target money and achievement percentage for the filtered records. Achievement is 0 when the target total is 0 (flagged by no_target)."),
		mcp.WithInputSchema[FilteredInput](),
		mcp.WithOutputSchema[ComputeTotalsOutput](),
	), mcp.NewTypedToolHandler(h.ComputeTotals))

	add(mcp.NewTool(
		ToolGroupBy,
		mcp.WithDescription("Sum actual and target money per month, team, project or lead for the filtered records, with achievement percentage and share of actual. Months are chronological; other groups keep first-appearance order."),
		mcp.WithInputSchema[GroupByInput](),
		mcp.WithOutputSchema[GroupByOutput](),
	), mcp.NewTypedToolHandler(h.GroupBy))

	add(mcp.NewTool(
		ToolKPIDashboard,
		mcp.WithDescription("Return the full KPI dashboard for the filtered records: headline totals plus monthly trend, team, project and lead sections."),
		mcp.WithInputSchema[FilteredInput](),
		mcp.WithOutputSchema[KPIDashboardOutput](),
	), mcp.NewTypedToolHandler(h.KPIDashboard))

	add(mcp.NewTool(
		ToolPreviewRecords,
		mcp.WithDescription(fmt.Sprintf("Page through the filtered raw records (default %d per page). Continue with meta.nextCursor and the same filters; CURSOR_INVALID means the dataset or filters changed.", h.limits.PreviewRowLimit)),
		mcp.WithInputSchema[PreviewRecordsInput](),
		mcp.WithOutputSchema[PreviewRecordsOutput](),
	), mcp.NewTypedToolHandler(h.PreviewRecords))

	add(mcp.NewTool(
		ToolCloseDataset,
		mcp.WithDescription("Discard a loaded dataset and release its capacity."),
		mcp.WithInputSchema[DatasetInput](),
		mcp.WithOutputSchema[CloseDatasetOutput](),
	), mcp.NewTypedToolHandler(h.CloseDataset))
}

// SessionSlot returns the dataset slot for the calling session.
func SessionSlot(ctx context.Context) string {
	if cs := server.ClientSessionFromContext(ctx); cs != nil {
		if id := cs.SessionID(); id != "" {
			return id
		}
	}
	return DefaultSlot
}

// LoadDataset handles load_dataset.
func (h *Handlers) LoadDataset(ctx context.Context, req mcp.CallToolRequest, in LoadDatasetInput) (*mcp.CallToolResult, error) {
	if msg := validation.ValidateStruct(in); msg != "" {
		return mcperr.FromText(msg), nil
	}
	path := strings.TrimSpace(in.Path)
	content := strings.TrimSpace(in.ContentBase64)
	switch {
	case path == "" && content == "":
		return mcperr.Wrapf(mcperr.Validation, "path or content_base64 is required"), nil
	case path != "" && content != "":
		return mcperr.Wrapf(mcperr.Validation, "supply either path or content_base64, not both"), nil
	}
	if h.limits.MaxFileBytes > 0 && int64(base64.StdEncoding.DecodedLen(len(content))) > h.limits.MaxFileBytes+2 {
		return mcperr.Wrapf(mcperr.FileTooLarge, "content exceeds %d bytes", h.limits.MaxFileBytes), nil
	}

	slot := SessionSlot(ctx)
	var prevID string
	if prev, ok := h.mgr.Current(slot); ok {
		prevID = prev.ID
	}

	var (
		ds  *datasets.Handle
		err error
	)
	if path != "" {
		ds, err = h.mgr.LoadFile(ctx, slot, path, in.Sheet)
	} else {
		data, decErr := base64.StdEncoding.DecodeString(content)
		if decErr != nil {
			return mcperr.Wrapf(mcperr.Validation, "content_base64 is not valid base64"), nil
		}
		ds, err = h.mgr.Load(ctx, slot, in.Name, in.Sheet, data)
	}
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("slot", slot).Msg("load_dataset failed")
		return toolError(err), nil
	}

	out := LoadDatasetOutput{
		DatasetID:   ds.ID,
		Name:        ds.Name,
		Fingerprint: ds.Fingerprint,
		Records:     ds.Records.Len(),
		Cached:      ds.ID == prevID,
		Options: OptionCounts{
			Months:   len(kpi.DistinctValues(ds.Records, kpi.ByMonth)),
			Teams:    len(kpi.DistinctValues(ds.Records, kpi.ByTeam)),
			Projects: len(kpi.DistinctValues(ds.Records, kpi.ByProject)),
			Leads:    len(kpi.DistinctValues(ds.Records, kpi.ByLead)),
		},
		ExpiresAt: ds.ExpiresAt().UTC().Format(time.RFC3339),
	}
	summary := fmt.Sprintf("dataset_id=%s records=%d cached=%v months=%d teams=%d projects=%d leads=%d",
		out.DatasetID, out.Records, out.Cached, out.Options.Months, out.Options.Teams, out.Options.Projects, out.Options.Leads)
	return mcp.NewToolResultStructured(out, summary), nil
}

// ListFilterOptions handles list_filter_options.
func (h *Handlers) ListFilterOptions(ctx context.Context, req mcp.CallToolRequest, in DatasetInput) (*mcp.CallToolResult, error) {
	ds, res := h.dataset(ctx, in.DatasetID, in)
	if res != nil {
		return res, nil
	}
	out := ListFilterOptionsOutput{
		DatasetID: ds.ID,
		Months:    kpi.DistinctValues(ds.Records, kpi.ByMonth),
		Teams:     kpi.DistinctValues(ds.Records, kpi.ByTeam),
		Projects:  kpi.DistinctValues(ds.Records, kpi.ByProject),
		Leads:     kpi.DistinctValues(ds.Records, kpi.ByLead),
	}
	summary := fmt.Sprintf("months=%v teams=%v projects=%v leads=%v",
		previewHeader(out.Months, 12), previewHeader(out.Teams, 12), previewHeader(out.Projects, 12), previewHeader(out.Leads, 12))
	return mcp.NewToolResultStructured(out, summary), nil
}

// ComputeTotals handles compute_totals.
func (h *Handlers) ComputeTotals(ctx context.Context, req mcp.CallToolRequest, in FilteredInput) (*mcp.CallToolResult, error) {
	ds, res := h.dataset(ctx, in.DatasetID, in)
	if res != nil {
		return res, nil
	}
	view := kpi.ApplyFilters(ds.Records, in.Filters)
	out := ComputeTotalsOutput{
		DatasetID: ds.ID,
		Filters:   in.Filters,
		Headline:  report.NewHeadline(kpi.ComputeTotals(view)),
	}
	hl := out.Headline
	summary := fmt.Sprintf("records=%d actual=%s target=%s achievement=%s",
		hl.Records, hl.ActualDisplay, hl.TargetDisplay, hl.AchievementDisplay)
	return mcp.NewToolResultStructured(out, summary), nil
}

// GroupBy handles group_by.
func (h *Handlers) GroupBy(ctx context.Context, req mcp.CallToolRequest, in GroupByInput) (*mcp.CallToolResult, error) {
	ds, res := h.dataset(ctx, in.DatasetID, in)
	if res != nil {
		return res, nil
	}
	key, err := kpi.ParseGroupKey(in.Dimension)
	if err != nil {
		return mcperr.Wrapf(mcperr.Validation, "%v", err), nil
	}
	out := GroupByOutput{
		DatasetID: ds.ID,
		Dimension: string(key),
		Filters:   in.Filters,
		Rows:      report.Section(kpi.ApplyFilters(ds.Records, in.Filters), key),
	}
	lines := []string{fmt.Sprintf("dimension=%s groups=%d", key, len(out.Rows))}
	for _, r := range out.Rows {
		lines = append(lines, report.RowLine(r))
	}
	return mcp.NewToolResultStructured(out, h.budget.Fit(lines)), nil
}

// KPIDashboard handles kpi_dashboard.
func (h *Handlers) KPIDashboard(ctx context.Context, req mcp.CallToolRequest, in FilteredInput) (*mcp.CallToolResult, error) {
	ds, res := h.dataset(ctx, in.DatasetID, in)
	if res != nil {
		return res, nil
	}
	out := KPIDashboardOutput{DatasetID: ds.ID, Dashboard: report.Build(ds.Records, in.Filters)}
	return mcp.NewToolResultStructured(out, h.budget.Fit(report.SummaryLines(out.Dashboard))), nil
}

// PreviewRecords handles preview_records.
func (h *Handlers) PreviewRecords(ctx context.Context, req mcp.CallToolRequest, in PreviewRecordsInput) (*mcp.CallToolResult, error) {
	if !h.raw.AllowRaw() {
		return mcperr.Wrapf(mcperr.PermissionDenied, "raw records are not exposed by this server"), nil
	}
	ds, res := h.dataset(ctx, in.DatasetID, in)
	if res != nil {
		return res, nil
	}
	fh := filterHash(in.Filters)
	offset := 0
	pageSize := in.PageSize
	if pageSize <= 0 {
		pageSize = h.limits.PreviewRowLimit
	}
	if in.Cursor != "" {
		cur, err := pagination.DecodeCursor(in.Cursor)
		if err != nil || !cur.Matches(ds.ID, ds.Fingerprint, fh) {
			return mcperr.New(mcperr.CursorInvalid, ""), nil
		}
		offset, pageSize = cur.Off, cur.Ps
	}
	pageSize = min(pageSize, config.MaxPreviewRowLimit)

	view := kpi.ApplyFilters(ds.Records, in.Filters)
	total := view.Len()
	end := min(offset+pageSize, total)
	out := PreviewRecordsOutput{DatasetID: ds.ID, Records: make([]RecordView, 0, max(end-offset, 0))}
	for i := offset; i < end; i++ {
		out.Records = append(out.Records, recordView(view.At(i)))
	}
	next := pagination.NextOffset(offset, len(out.Records))
	out.Meta = PageMeta{Total: total, Returned: len(out.Records), Truncated: next < total}
	if out.Meta.Truncated {
		tok, err := pagination.EncodeCursor(pagination.Cursor{
			Did: ds.ID,
			Fp:  pagination.FingerprintPrefix(ds.Fingerprint),
			Fh:  fh,
			Off: next,
			Ps:  pageSize,
		})
		if err != nil {
			return mcperr.Wrapf(mcperr.AnalysisFailed, "encode cursor: %v", err), nil
		}
		out.Meta.NextCursor = tok
	}
	summary := fmt.Sprintf("total=%d returned=%d truncated=%v", out.Meta.Total, out.Meta.Returned, out.Meta.Truncated)
	return mcp.NewToolResultStructured(out, summary), nil
}

// CloseDataset handles close_dataset.
func (h *Handlers) CloseDataset(ctx context.Context, req mcp.CallToolRequest, in DatasetInput) (*mcp.CallToolResult, error) {
	ds, res := h.dataset(ctx, in.DatasetID, in)
	if res != nil {
		return res, nil
	}
	if err := h.mgr.Remove(ds.ID); err != nil {
		return toolError(err), nil
	}
	zerolog.Ctx(ctx).Info().Str("dataset_id", ds.ID).Msg("dataset closed")
	return mcp.NewToolResultStructured(CloseDatasetOutput{Success: true}, "closed"), nil
}

// dataset validates in and resolves id, or the session's current dataset
// when id is empty. Datasets of other sessions are not visible.
func (h *Handlers) dataset(ctx context.Context, id string, in any) (*datasets.Handle, *mcp.CallToolResult) {
	if msg := validation.ValidateStruct(in); msg != "" {
		return nil, mcperr.FromText(msg)
	}
	slot := SessionSlot(ctx)
	var (
		ds *datasets.Handle
		ok bool
	)
	if id == "" {
		ds, ok = h.mgr.Current(slot)
	} else {
		ds, ok = h.mgr.Get(id)
	}
	if !ok || ds.Slot != slot {
		return nil, mcperr.New(mcperr.InvalidDataset, "")
	}
	return ds, nil
}

func filterHash(sel kpi.Selection) string {
	return pagination.FilterHash(map[string][]string{
		string(kpi.ByTeam):    sel.Teams,
		string(kpi.ByProject): sel.Projects,
		string(kpi.ByLead):    sel.Leads,
	})
}

func recordView(r kpi.Record) RecordView {
	return RecordView{
		Month:         r.Month.Format(kpi.MonthKeyLayout),
		Team:          r.Team,
		Project:       r.Project,
		Lead:          r.Lead,
		Actual:        r.Actual.InexactFloat64(),
		Target:        r.Target.InexactFloat64(),
		ActualDisplay: report.FormatMoney(r.Actual),
		TargetDisplay: report.FormatMoney(r.Target),
	}
}

// previewHeader returns a bounded preview slice for compact summaries.
func previewHeader(h []string, n int) []string {
	if len(h) <= n {
		return h
	}
	return h[:n]
}
