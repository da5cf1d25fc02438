// Package csvxlsx implements the built-in reference analysis: it loads the
// staged CSV inputs, converts each into an XLSX workbook, and writes a JSON
// results document with summary figures.
package csvxlsx

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/mirowlabs/analysis-service/internal/analysis"
)

// Pairs of staged input and the workbook it becomes. Matches the default
// artifact manifest.
var conversions = []struct {
	input  string
	output string
}{
	{input: "file1.csv", output: "output1.xlsx"},
	{input: "file2.csv", output: "output2.xlsx"},
}

const (
	scratchFile = "temp_data.csv"
	resultsFile = "results.json"
	sheetName   = "Data"
)

// Runner is the built-in CSV-to-XLSX analysis.
type Runner struct {
	logger *zap.Logger
}

// New returns a Runner.
func New(logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{logger: logger}
}

// Run executes the reference analysis for one job.
func (r *Runner) Run(ctx context.Context, req analysis.RunRequest, progress analysis.ProgressFunc) (analysis.RunResult, error) {
	analysisType := stringParam(req.Parameters, "analysis_type", "delivery_time")
	region := stringParam(req.Parameters, "region", "all")
	dateRange := stringParam(req.Parameters, "date_range", "last_30_days")

	progress(0.05, "Loading input files...")
	tables := make(map[string][][]string, len(conversions))
	for _, conv := range conversions {
		if err := ctx.Err(); err != nil {
			return analysis.RunResult{}, err
		}
		rows, err := readCSV(filepath.Join(req.InputsDir, conv.input))
		if err != nil {
			return analysis.RunResult{}, fmt.Errorf("load %s: %w", conv.input, err)
		}
		tables[conv.input] = rows
	}
	progress(0.2, "Input files loaded")

	// Intermediate scratch copy, kept under processing/ for inspection.
	if err := writeScratch(filepath.Join(req.ProcessingDir, scratchFile), tables); err != nil {
		return analysis.RunResult{}, err
	}
	progress(0.35, "Processing data...")

	summaries := make(map[string]any, len(conversions))
	step := 0.5 / float64(len(conversions))
	for i, conv := range conversions {
		if err := ctx.Err(); err != nil {
			return analysis.RunResult{}, err
		}
		rows := tables[conv.input]
		if err := writeXLSX(filepath.Join(req.OutputsDir, conv.output), rows); err != nil {
			return analysis.RunResult{}, fmt.Errorf("write %s: %w", conv.output, err)
		}
		summaries[conv.input] = tableSummary(rows, conv.output)
		progress(0.35+float64(i+1)*step, fmt.Sprintf("Converted %s", conv.input))
		r.logger.Debug("converted input",
			zap.String("job_id", req.JobID),
			zap.String("input", conv.input),
			zap.String("output", conv.output),
		)
	}

	results := map[string]any{
		"analysis_type": analysisType,
		"region":        region,
		"date_range":    dateRange,
		"generated_at":  time.Now().UTC().Format(time.RFC3339),
		"files":         summaries,
	}
	if err := writeResults(filepath.Join(req.OutputsDir, resultsFile), results); err != nil {
		return analysis.RunResult{}, err
	}
	progress(1.0, "Analysis complete")

	return analysis.RunResult{Results: results}, nil
}

func stringParam(params map[string]any, key, fallback string) string {
	if v, ok := params[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path) //nolint:gosec // path built from workspace dirs
	if err != nil {
		return nil, err
	}
	defer f.Close() //nolint:errcheck // read-only handle

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("empty csv")
	}
	return rows, nil
}

func writeScratch(path string, tables map[string][][]string) error {
	f, err := os.Create(path) //nolint:gosec // path built from workspace dirs
	if err != nil {
		return fmt.Errorf("create scratch file: %w", err)
	}
	writer := csv.NewWriter(f)
	for _, conv := range conversions {
		for _, row := range tables[conv.input] {
			if err := writer.Write(row); err != nil {
				f.Close() //nolint:errcheck,gosec // best effort on error path
				return fmt.Errorf("write scratch row: %w", err)
			}
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		f.Close() //nolint:errcheck,gosec // best effort on error path
		return fmt.Errorf("flush scratch file: %w", err)
	}
	return f.Close()
}

func writeXLSX(path string, rows [][]string) error {
	wb := excelize.NewFile()
	defer wb.Close() //nolint:errcheck // in-memory workbook

	index, err := wb.NewSheet(sheetName)
	if err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	wb.SetActiveSheet(index)
	if err := wb.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("drop default sheet: %w", err)
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return fmt.Errorf("cell coordinates: %w", err)
		}
		values := make([]any, len(row))
		for j, v := range row {
			values[j] = v
		}
		if err := wb.SetSheetRow(sheetName, cell, &values); err != nil {
			return fmt.Errorf("set row %d: %w", i+1, err)
		}
	}
	if err := wb.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}

func tableSummary(rows [][]string, output string) map[string]any {
	cols := 0
	if len(rows) > 0 {
		cols = len(rows[0])
	}
	return map[string]any{
		"rows":      len(rows) - 1, // header excluded
		"columns":   cols,
		"converted": output,
	}
}

func writeResults(path string, results map[string]any) error {
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal results: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write results file: %w", err)
	}
	return nil
}
