// Package render 以终端表格形式输出搜索结果，列宽按显示宽度计算。
package render

import (
	"fmt"
	"io"
	"strings"

	"github.com/mattn/go-runewidth"

	"scholira/internal/model"
)

const (
	maxCell = 36
	gap     = "  "
)

// Scholarships 输出奖学金表格。
func Scholarships(w io.Writer, items []model.Scholarship) error {
	rows := make([][]string, 0, len(items))
	for _, s := range items {
		rows = append(rows, []string{s.Name, s.Provider, s.Amount, s.Deadline, s.Location})
	}
	return table(w, []string{"NAME", "PROVIDER", "AMOUNT", "DEADLINE", "LOCATION"}, rows)
}

// Courses 输出课程表格。
func Courses(w io.Writer, items []model.Course) error {
	rows := make([][]string, 0, len(items))
	for _, c := range items {
		rows = append(rows, []string{c.Name, c.Provider, c.Level, c.Duration, c.Cost})
	}
	return table(w, []string{"NAME", "PROVIDER", "LEVEL", "DURATION", "COST"}, rows)
}

func table(w io.Writer, header []string, rows [][]string) error {
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = runewidth.StringWidth(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if cw := runewidth.StringWidth(clip(cell)); cw > widths[i] {
				widths[i] = cw
			}
		}
	}

	if err := writeRow(w, header, widths); err != nil {
		return err
	}
	for _, row := range rows {
		if err := writeRow(w, row, widths); err != nil {
			return err
		}
	}
	return nil
}

func writeRow(w io.Writer, cells []string, widths []int) error {
	parts := make([]string, len(cells))
	for i, cell := range cells {
		cell = clip(cell)
		if i == len(cells)-1 {
			parts[i] = cell
			continue
		}
		parts[i] = runewidth.FillRight(cell, widths[i])
	}
	if _, err := fmt.Fprintln(w, strings.Join(parts, gap)); err != nil {
		return fmt.Errorf("write row: %w", err)
	}
	return nil
}

// clip 仅在显示时截断，换行折叠为空格。
func clip(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	return runewidth.Truncate(s, maxCell, "…")
}
