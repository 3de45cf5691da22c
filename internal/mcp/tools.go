package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/FahadIshaq/scanback-backend/internal/domain/tag"
	"github.com/FahadIshaq/scanback-backend/internal/notify"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

type IssueCodesParams struct {
	Count int    `json:"count" jsonschema:"number of codes to issue, 1 to 500"`
	Kind  string `json:"kind,omitempty" jsonschema:"item or pet, defaults to item"`
}

type IssueCodesResult struct {
	Kind  tag.Kind `json:"kind"`
	Codes []string `json:"codes"`
}

type CodeParams struct {
	Code string `json:"code" jsonschema:"tag code, case insensitive"`
}

type ListTagsParams struct {
	Owner     string   `json:"owner,omitempty" jsonschema:"only tags bound to this owner"`
	Kinds     []string `json:"kinds,omitempty" jsonschema:"filter by kind: item, pet"`
	Statuses  []string `json:"statuses,omitempty" jsonschema:"filter by status: active, inactive, suspended, found"`
	Activated *bool    `json:"activated,omitempty" jsonschema:"filter by activation"`
	Limit     int      `json:"limit,omitempty" jsonschema:"maximum number of results, default 50"`
	Offset    int      `json:"offset,omitempty" jsonschema:"offset for pagination"`
}

type SetStatusParams struct {
	Code   string `json:"code" jsonschema:"tag code, case insensitive"`
	Status string `json:"status,omitempty" jsonschema:"expected status after the call: active or inactive; omit to toggle"`
}

type ListDeliveriesParams struct {
	Code   string `json:"code,omitempty" jsonschema:"only deliveries for this tag code"`
	Status string `json:"status,omitempty" jsonschema:"filter by outcome: delivered, failed, skipped"`
	Limit  int    `json:"limit,omitempty" jsonschema:"maximum number of results, default 50"`
	Offset int    `json:"offset,omitempty" jsonschema:"offset for pagination"`
}

type EmptyParams struct{}

type toolSet struct {
	services Services
	logger   *slog.Logger
}

func registerTools(server *sdkmcp.Server, services Services, logger *slog.Logger) {
	ts := &toolSet{services: services, logger: logger}

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "issue_codes",
		Description: "Issue new unactivated tags and return their codes",
	}, ts.issueCodes)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "get_tag",
		Description: "Get the full record of a tag, including owner and scan history",
	}, ts.getTag)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "list_tags",
		Description: "List tag summaries, newest first, optionally filtered",
	}, ts.listTags)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "deactivate_tag",
		Description: "Unbind a tag from its owner so it can be activated again",
	}, ts.deactivateTag)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "set_status",
		Description: "Toggle a tag between active and inactive",
	}, ts.setStatus)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "cache_stats",
		Description: "Report public lookup cache counters",
	}, ts.cacheStats)
	if services.Deliveries != nil {
		sdkmcp.AddTool(server, &sdkmcp.Tool{
			Name:        "list_deliveries",
			Description: "List notification delivery outcomes, newest first",
		}, ts.listDeliveries)
	}
}

func (ts *toolSet) issueCodes(ctx context.Context, _ *sdkmcp.CallToolRequest, in IssueCodesParams) (*sdkmcp.CallToolResult, any, error) {
	if in.Count < 1 || in.Count > tag.MaxBatchSize {
		return errorResult(&APIError{Code: "INVALID_INPUT", Message: fmt.Sprintf("count must be between 1 and %d", tag.MaxBatchSize)})
	}
	kind := tag.KindItem
	if in.Kind != "" {
		kind = tag.Kind(in.Kind)
	}

	recs, err := ts.services.Tags.CreateBatch(ctx, in.Count, kind)
	if err != nil {
		return ts.fail(ctx, "issue_codes", err)
	}
	out := IssueCodesResult{Kind: kind, Codes: make([]string, 0, len(recs))}
	for _, rec := range recs {
		out.Codes = append(out.Codes, rec.Code)
	}
	ts.logger.InfoContext(ctx, "codes issued", "operator", getOperator(ctx), "kind", kind, "count", len(out.Codes))
	return jsonResult(out)
}

func (ts *toolSet) getTag(ctx context.Context, _ *sdkmcp.CallToolRequest, in CodeParams) (*sdkmcp.CallToolResult, any, error) {
	rec, err := ts.services.Tags.Get(ctx, in.Code)
	if err != nil {
		return ts.fail(ctx, "get_tag", err)
	}
	return jsonResult(rec)
}

func (ts *toolSet) listTags(ctx context.Context, _ *sdkmcp.CallToolRequest, in ListTagsParams) (*sdkmcp.CallToolResult, any, error) {
	opts := tag.ListOptions{
		Owner:     in.Owner,
		Activated: in.Activated,
		Limit:     defaultLimit(in.Limit),
		Offset:    in.Offset,
	}
	for _, k := range in.Kinds {
		kind := tag.Kind(k)
		if !kind.Valid() {
			return errorResult(&APIError{Code: "INVALID_INPUT", Message: fmt.Sprintf("unknown kind %q", k)})
		}
		opts.Kinds = append(opts.Kinds, kind)
	}
	for _, s := range in.Statuses {
		status := tag.Status(s)
		if !status.Valid() {
			return errorResult(&APIError{Code: "INVALID_INPUT", Message: fmt.Sprintf("unknown status %q", s)})
		}
		opts.Statuses = append(opts.Statuses, status)
	}

	summaries, err := ts.services.Tags.List(ctx, opts)
	if err != nil {
		return ts.fail(ctx, "list_tags", err)
	}
	if summaries == nil {
		summaries = []tag.Summary{}
	}
	return jsonResult(summaries)
}

func (ts *toolSet) deactivateTag(ctx context.Context, _ *sdkmcp.CallToolRequest, in CodeParams) (*sdkmcp.CallToolResult, any, error) {
	rec, err := ts.services.Tags.Deactivate(ctx, in.Code)
	if err != nil {
		return ts.fail(ctx, "deactivate_tag", err)
	}
	ts.logger.InfoContext(ctx, "tag deactivated by operator", "operator", getOperator(ctx), "code", rec.Code)
	return jsonResult(rec)
}

// setStatus toggles the tag. When a target status is given and the tag is
// already there, the record is returned unchanged.
func (ts *toolSet) setStatus(ctx context.Context, _ *sdkmcp.CallToolRequest, in SetStatusParams) (*sdkmcp.CallToolResult, any, error) {
	if in.Status != "" {
		target := tag.Status(in.Status)
		if target != tag.StatusActive && target != tag.StatusInactive {
			return errorResult(&APIError{Code: "INVALID_INPUT", Message: "status must be active or inactive"})
		}
		current, err := ts.services.Tags.Get(ctx, in.Code)
		if err != nil {
			return ts.fail(ctx, "set_status", err)
		}
		if current.Status == target {
			return jsonResult(current)
		}
	}

	rec, err := ts.services.Tags.ToggleStatus(ctx, in.Code)
	if err != nil {
		return ts.fail(ctx, "set_status", err)
	}
	return jsonResult(rec)
}

func (ts *toolSet) cacheStats(_ context.Context, _ *sdkmcp.CallToolRequest, _ EmptyParams) (*sdkmcp.CallToolResult, any, error) {
	if ts.services.Cache == nil {
		return errorResult(&APIError{Code: "UNAVAILABLE", Message: "lookup cache not configured"})
	}
	return jsonResult(ts.services.Cache.Stats())
}

func (ts *toolSet) listDeliveries(ctx context.Context, _ *sdkmcp.CallToolRequest, in ListDeliveriesParams) (*sdkmcp.CallToolResult, any, error) {
	opts := notify.ListOptions{
		Code:   tag.NormalizeCode(in.Code),
		Limit:  defaultLimit(in.Limit),
		Offset: in.Offset,
	}
	if in.Status != "" {
		status := notify.DeliveryStatus(in.Status)
		switch status {
		case notify.StatusDelivered, notify.StatusFailed, notify.StatusSkipped:
		default:
			return errorResult(&APIError{Code: "INVALID_INPUT", Message: fmt.Sprintf("unknown delivery status %q", in.Status)})
		}
		opts.Status = &status
	}

	deliveries, err := ts.services.Deliveries.List(ctx, opts)
	if err != nil {
		return ts.fail(ctx, "list_deliveries", err)
	}
	if deliveries == nil {
		deliveries = []notify.Delivery{}
	}
	return jsonResult(deliveries)
}

// fail turns err into a tool error result. Errors without a stable code are
// returned as-is and logged.
func (ts *toolSet) fail(ctx context.Context, tool string, err error) (*sdkmcp.CallToolResult, any, error) {
	if apiErr := MapError(err); apiErr != nil {
		return errorResult(apiErr)
	}
	ts.logger.ErrorContext(ctx, "mcp tool failed", "tool", tool, "error", err)
	return nil, nil, err
}

func jsonResult(v any) (*sdkmcp.CallToolResult, any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, nil, fmt.Errorf("encoding result: %w", err)
	}
	return &sdkmcp.CallToolResult{
		Content: []sdkmcp.Content{&sdkmcp.TextContent{Text: string(data)}},
	}, nil, nil
}

func errorResult(apiErr *APIError) (*sdkmcp.CallToolResult, any, error) {
	data, err := json.Marshal(apiErr)
	if err != nil {
		return nil, nil, fmt.Errorf("encoding error: %w", err)
	}
	return &sdkmcp.CallToolResult{
		IsError: true,
		Content: []sdkmcp.Content{&sdkmcp.TextContent{Text: string(data)}},
	}, nil, nil
}

func defaultLimit(n int) int {
	if n <= 0 {
		return 50
	}
	return n
}
