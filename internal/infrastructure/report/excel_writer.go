// Package report renders expense exports.
package report

import (
	"context"
	"fmt"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

const (
	expensesSheet = "Expenses"
	summarySheet  = "Summary"
	dateLayout    = "2006-01-02"
)

var expenseHeaders = []string{
	"ID", "Date", "Category", "Description", "Amount", "Currency", "Status", "Current Step", "Rule", "Submitted At",
}

// ExcelWriter implements port.ReportWriter as an xlsx workbook
type ExcelWriter struct {
	logger *zap.Logger
}

// NewExcelWriter creates a new xlsx report writer
func NewExcelWriter(logger *zap.Logger) *ExcelWriter {
	return &ExcelWriter{logger: logger}
}

// ContentType returns the xlsx MIME type
func (w *ExcelWriter) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

// Extension returns the file extension without a dot
func (w *ExcelWriter) Extension() string {
	return "xlsx"
}

// WriteExpenses renders one row per expense plus a per-status summary sheet
func (w *ExcelWriter) WriteExpenses(ctx context.Context, owner *entity.User, expenses []*entity.Expense) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", expensesSheet); err != nil {
		return nil, fmt.Errorf("failed to name sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E0E0E0"}, Pattern: 1},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	for i, h := range expenseHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		w.setCell(f, expensesSheet, cell, h)
		_ = f.SetCellStyle(expensesSheet, cell, cell, headerStyle)
	}

	for i, exp := range expenses {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row := i + 2
		ruleName := ""
		if exp.AppliedRule != nil {
			ruleName = exp.AppliedRule.Name
		}
		values := []interface{}{
			exp.ID,
			exp.Date.Format(dateLayout),
			exp.Category,
			exp.Description,
			exp.Amount.InexactFloat64(),
			exp.Currency,
			string(exp.Status),
			exp.CurrentApprovalStep,
			ruleName,
			exp.CreatedAt.Format("2006-01-02 15:04:05"),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			w.setCell(f, expensesSheet, cell, v)
		}
	}
	_ = f.SetColWidth(expensesSheet, "A", "A", 38)
	_ = f.SetColWidth(expensesSheet, "D", "D", 40)

	if err := w.writeSummary(f, owner, expenses, headerStyle); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}

	w.logger.Info("Expense report rendered",
		zap.String("owner", owner.ID),
		zap.Int("rows", len(expenses)))
	return buf.Bytes(), nil
}

func (w *ExcelWriter) writeSummary(f *excelize.File, owner *entity.User, expenses []*entity.Expense, headerStyle int) error {
	if _, err := f.NewSheet(summarySheet); err != nil {
		return fmt.Errorf("failed to create summary sheet: %w", err)
	}

	counts := map[entity.ExpenseStatus]int{}
	for _, exp := range expenses {
		counts[exp.Status]++
	}

	w.setCell(f, summarySheet, "A1", "Employee")
	w.setCell(f, summarySheet, "B1", owner.Name)
	w.setCell(f, summarySheet, "A2", "Company")
	w.setCell(f, summarySheet, "B2", owner.CompanyID)
	w.setCell(f, summarySheet, "A4", "Status")
	w.setCell(f, summarySheet, "B4", "Count")
	_ = f.SetCellStyle(summarySheet, "A4", "B4", headerStyle)

	row := 5
	for _, status := range []entity.ExpenseStatus{entity.StatusPending, entity.StatusApproved, entity.StatusRejected} {
		w.setCell(f, summarySheet, fmt.Sprintf("A%d", row), string(status))
		w.setCell(f, summarySheet, fmt.Sprintf("B%d", row), counts[status])
		row++
	}
	w.setCell(f, summarySheet, fmt.Sprintf("A%d", row), "Total")
	w.setCell(f, summarySheet, fmt.Sprintf("B%d", row), len(expenses))
	return nil
}

// setCell sets a cell value and logs on failure
func (w *ExcelWriter) setCell(f *excelize.File, sheet, cell string, value interface{}) {
	if err := f.SetCellValue(sheet, cell, value); err != nil {
		w.logger.Warn("Failed to set cell value",
			zap.String("sheet", sheet),
			zap.String("cell", cell),
			zap.Error(err))
	}
}

var _ port.ReportWriter = (*ExcelWriter)(nil)
