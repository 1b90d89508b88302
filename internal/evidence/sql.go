// Copyright 2025 James Ross
package evidence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// TableExtractMeta describes what a tabular extraction sampled.
type TableExtractMeta struct {
	TotalRows       int
	TotalCols       int
	SampledRows     int
	SampledCols     int
	SamplingStrategy SamplingStrategy
	SamplingNote    string
	ColsTruncated   bool
}

// TableExtract is a bounded text rendering of a SQL result set plus the
// sampling metadata describing how it was produced.
type TableExtract struct {
	Rendering string
	Meta      TableExtractMeta
}

// ExtractTable runs query against db and renders at most maxCols columns of
// at most maxRows sampled rows as a pipe-delimited text table. The full
// result set is buffered in memory first since stride/first_last sampling
// need to see the tail before deciding what to keep.
func ExtractTable(ctx context.Context, db *sql.DB, query string, maxRows, maxCols int, strategy SamplingStrategy) (TableExtract, error) {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return TableExtract{}, fmt.Errorf("evidence: extract table: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return TableExtract{}, err
	}
	totalCols := len(cols)

	var allRows [][]string
	for rows.Next() {
		raw := make([]interface{}, totalCols)
		ptrs := make([]interface{}, totalCols)
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return TableExtract{}, err
		}
		row := make([]string, totalCols)
		for i, v := range raw {
			row[i] = stringify(v)
		}
		allRows = append(allRows, row)
	}
	if err := rows.Err(); err != nil {
		return TableExtract{}, err
	}
	totalRows := len(allRows)

	colsTruncated := totalCols > maxCols
	renderCols := totalCols
	if colsTruncated {
		renderCols = maxCols
	}

	sampled, note := sampleRows(allRows, maxRows, strategy)

	var b strings.Builder
	b.WriteString(strings.Join(cols[:renderCols], " | "))
	b.WriteByte('\n')
	for _, row := range sampled {
		b.WriteString(strings.Join(row[:renderCols], " | "))
		b.WriteByte('\n')
	}

	return TableExtract{
		Rendering: b.String(),
		Meta: TableExtractMeta{
			TotalRows:        totalRows,
			TotalCols:        totalCols,
			SampledRows:      len(sampled),
			SampledCols:      renderCols,
			SamplingStrategy: strategy,
			SamplingNote:     note,
			ColsTruncated:    colsTruncated,
		},
	}, nil
}

func sampleRows(rows [][]string, maxRows int, strategy SamplingStrategy) ([][]string, string) {
	total := len(rows)
	if total <= maxRows {
		return rows, fmt.Sprintf("all %d rows retained", total)
	}

	switch strategy {
	case SamplingFirstLast:
		half := maxRows / 2
		rest := maxRows - half
		out := make([][]string, 0, maxRows)
		out = append(out, rows[:half]...)
		out = append(out, rows[total-rest:]...)
		return out, fmt.Sprintf("first %d and last %d of %d rows", half, rest, total)
	case SamplingStride:
		stride := (total + maxRows - 1) / maxRows
		var out [][]string
		for i := 0; i < total && len(out) < maxRows; i += stride {
			out = append(out, rows[i])
		}
		return out, fmt.Sprintf("every %d-th row of %d", stride, total)
	case SamplingFirstOnly:
		fallthrough
	default:
		return rows[:maxRows], fmt.Sprintf("first %d of %d rows", maxRows, total)
	}
}

func stringify(v interface{}) string {
	if v == nil {
		return ""
	}
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return fmt.Sprintf("%v", v)
}
