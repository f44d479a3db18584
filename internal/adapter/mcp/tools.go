package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/guillermoBallester/whydiff/internal/core/domain"
	"github.com/guillermoBallester/whydiff/internal/core/service"
	"github.com/guillermoBallester/whydiff/internal/job"
)

// Server metadata
const serverName = "whydiff"

// Tool descriptions
const (
	descExplainDiff = "Explain why the rows of a test relation differ from the rows of a control relation. " +
		"Returns predicates (column = value, or a value range for range columns) ranked by risk ratio: " +
		"how much more likely a test row is to match the predicate than a control row. " +
		"Each side is either a SELECT statement or a table name. Both sides must have the same columns. " +
		"Use describe_relation first to choose value and range columns."

	descColumnStatistics = "Compute statistics for every column of a table: distinct counts and most common values " +
		"for categorical columns, and equal-frequency bucket boundaries for numeric and temporal columns. " +
		"Use this to see how values are distributed before explaining a difference."

	descDescribeRelation = "List the columns of a table with their declared types and whether they can be explained " +
		"by value (categorical), by range (numeric, temporal) or both. " +
		"The response suggests value_columns and range_columns for explain_diff."

	descTableParam = "Table name, optionally schema-qualified"
)

// Services are the core services the tools call.
type Services struct {
	Diff   *service.DiffService
	Stats  *service.StatisticsEngine
	Schema *service.SchemaService
}

func RegisterTools(s *server.MCPServer, svc Services, logger *slog.Logger) {
	s.AddTool(
		mcp.NewTool("explain_diff",
			mcp.WithDescription(descExplainDiff),
			mcp.WithString("test", mcp.Description("SELECT statement producing the test rows")),
			mcp.WithString("test_table", mcp.Description("Table holding the test rows, instead of test")),
			mcp.WithString("control", mcp.Description("SELECT statement producing the control rows")),
			mcp.WithString("control_table", mcp.Description("Table holding the control rows, instead of control")),
			mcp.WithArray("value_columns",
				mcp.Description("Columns explained by equality on their values"),
				mcp.Items(map[string]any{"type": "string"}),
			),
			mcp.WithArray("range_columns",
				mcp.Description("Columns explained by value ranges computed from the test rows"),
				mcp.Items(map[string]any{"type": "string"}),
			),
			mcp.WithNumber("min_support",
				mcp.Description(fmt.Sprintf("Fraction of test rows a predicate must match, in [0, 1]. Defaults to %v.", job.DefaultMinSupport)),
			),
			mcp.WithNumber("min_risk_ratio",
				mcp.Description(fmt.Sprintf("Smallest risk ratio reported. Defaults to %v.", job.DefaultMinRiskRatio)),
			),
			mcp.WithNumber("max_order",
				mcp.Description("Predicates per explanation. Only 1 is supported."),
			),
		),
		explainDiffHandler(svc.Diff, logger),
	)

	s.AddTool(
		mcp.NewTool("column_statistics",
			mcp.WithDescription(descColumnStatistics),
			mcp.WithString("table_name",
				mcp.Required(),
				mcp.Description(descTableParam),
			),
			mcp.WithArray("ignore_columns",
				mcp.Description("Columns to leave out, such as primary keys"),
				mcp.Items(map[string]any{"type": "string"}),
			),
		),
		columnStatisticsHandler(svc.Stats, logger),
	)

	s.AddTool(
		mcp.NewTool("describe_relation",
			mcp.WithDescription(descDescribeRelation),
			mcp.WithString("table_name",
				mcp.Required(),
				mcp.Description(descTableParam),
			),
		),
		describeRelationHandler(svc.Schema, logger),
	)
}

func explainDiffHandler(diff *service.DiffService, logger *slog.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		j, err := jobFromArguments(request.GetArguments())
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		req, err := j.Request()
		if err != nil {
			return mcp.NewToolResultError(sanitizeError(logger, err, "explain diff")), nil
		}

		ctx = service.WithToolName(ctx, "explain_diff")
		res, err := diff.Diff(ctx, req)
		if err != nil {
			return mcp.NewToolResultError(sanitizeError(logger, err, "explain diff")), nil
		}
		return jsonResult(res)
	}
}

func columnStatisticsHandler(stats *service.StatisticsEngine, logger *slog.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()
		tableName, ok := args["table_name"].(string)
		if !ok || tableName == "" {
			return mcp.NewToolResultError("table_name is required"), nil
		}
		ignore, err := stringsArgument(args, "ignore_columns")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		ctx = service.WithToolName(ctx, "column_statistics")
		result, err := stats.ColumnStatistics(ctx, tableName, domain.Columns(ignore...))
		if err != nil {
			return mcp.NewToolResultError(sanitizeError(logger, err, "column statistics")), nil
		}
		return jsonResult(result)
	}
}

// relationDescription is the describe_relation response.
type relationDescription struct {
	Table        string                      `json:"table"`
	Columns      []service.ColumnDescription `json:"columns"`
	ValueColumns []domain.Column             `json:"value_columns"`
	RangeColumns []domain.Column             `json:"range_columns"`
}

func describeRelationHandler(schema *service.SchemaService, logger *slog.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		tableName, ok := request.GetArguments()["table_name"].(string)
		if !ok || tableName == "" {
			return mcp.NewToolResultError("table_name is required"), nil
		}

		desc, err := schema.DescribeTable(ctx, tableName)
		if err != nil {
			return mcp.NewToolResultError(sanitizeError(logger, err, "describe relation")), nil
		}
		values, ranges := service.SplitColumns(desc.Columns)
		return jsonResult(relationDescription{
			Table:        desc.Table,
			Columns:      desc.Columns,
			ValueColumns: values,
			RangeColumns: ranges,
		})
	}
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal results: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// jobFromArguments reads explain_diff arguments into a job so tool calls
// and job files share defaults and validation.
func jobFromArguments(args map[string]any) (job.Job, error) {
	var j job.Job
	var err error
	for name, dst := range map[string]*string{
		"test":          &j.Test,
		"test_table":    &j.TestTable,
		"control":       &j.Control,
		"control_table": &j.ControlTable,
	} {
		if *dst, err = stringArgument(args, name); err != nil {
			return job.Job{}, err
		}
	}
	if j.ValueColumns, err = stringsArgument(args, "value_columns"); err != nil {
		return job.Job{}, err
	}
	if j.RangeColumns, err = stringsArgument(args, "range_columns"); err != nil {
		return job.Job{}, err
	}
	if j.MinSupport, err = numberArgument(args, "min_support"); err != nil {
		return job.Job{}, err
	}
	if j.MinRiskRatio, err = numberArgument(args, "min_risk_ratio"); err != nil {
		return job.Job{}, err
	}
	order, err := numberArgument(args, "max_order")
	if err != nil {
		return job.Job{}, err
	}
	if order != nil {
		n := int(*order)
		if float64(n) != *order {
			return job.Job{}, fmt.Errorf("max_order must be an integer")
		}
		j.MaxOrder = &n
	}
	return j, nil
}

func stringArgument(args map[string]any, name string) (string, error) {
	v, ok := args[name]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%s must be a string", name)
	}
	return s, nil
}

func stringsArgument(args map[string]any, name string) ([]string, error) {
	v, ok := args[name]
	if !ok || v == nil {
		return nil, nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%s must be an array of strings", name)
	}
	out := make([]string, len(items))
	for i, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("%s must be an array of strings", name)
		}
		out[i] = s
	}
	return out, nil
}

func numberArgument(args map[string]any, name string) (*float64, error) {
	v, ok := args[name]
	if !ok || v == nil {
		return nil, nil
	}
	f, ok := v.(float64)
	if !ok {
		return nil, fmt.Errorf("%s must be a number", name)
	}
	return &f, nil
}
