package interfaces

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	aggregates "settlement-recon/internal/aggregates/domain"
	derived "settlement-recon/internal/derived/domain"
	facts "settlement-recon/internal/facts/domain"
	recon "settlement-recon/internal/recon/domain"
)

// MonthlyStatement is the assembled content of a reconciliation statement:
// the month rollup, its per-day rows and the reconciliation status of each
// day that has a checkpoint.
type MonthlyStatement struct {
	MonthKey    string
	GeneratedAt time.Time
	Month       *aggregates.FactAggregate
	Derived     []aggregates.DerivedAggregate
	Days        []DayLine
}

// DayLine is one day row of a monthly statement.
type DayLine struct {
	DayKey        string
	RecordCount   int
	TotalQuantity decimal.Decimal
	TotalPayment  decimal.Decimal
	Status        recon.DateStatus
}

// StatementBuilder assembles monthly statements from the aggregate tables
// and the checkpoint store.
type StatementBuilder struct {
	aggregates  aggregates.Repository
	checkpoints recon.CheckpointStore
	parameters  []derived.ModelParameter
}

// NewStatementBuilder creates a builder over the given stores.
func NewStatementBuilder(repo aggregates.Repository, checkpoints recon.CheckpointStore, parameters []derived.ModelParameter) *StatementBuilder {
	return &StatementBuilder{aggregates: repo, checkpoints: checkpoints, parameters: parameters}
}

// Build assembles the statement for monthKey ("2006-01").
func (b *StatementBuilder) Build(ctx context.Context, monthKey string) (*MonthlyStatement, error) {
	month, err := b.aggregates.GetFact(ctx, aggregates.GranularityMonth, monthKey)
	if err != nil {
		return nil, fmt.Errorf("statement: month rollup %s: %w", monthKey, err)
	}

	var derivedRows []aggregates.DerivedAggregate
	for _, parameter := range b.parameters {
		row, err := b.aggregates.GetDerived(ctx, aggregates.GranularityMonth, monthKey, parameter)
		if err != nil {
			return nil, fmt.Errorf("statement: derived rollup %s/%s: %w", monthKey, parameter, err)
		}
		if row != nil {
			derivedRows = append(derivedRows, *row)
		}
	}

	dayRows, err := b.aggregates.ListFacts(ctx, aggregates.GranularityDay, aggregates.MonthChildPrefix(monthKey))
	if err != nil {
		return nil, fmt.Errorf("statement: day rows %s: %w", monthKey, err)
	}

	statuses, err := b.dayStatuses(ctx, dayRows)
	if err != nil {
		return nil, err
	}

	statement := &MonthlyStatement{
		MonthKey:    monthKey,
		GeneratedAt: time.Now().UTC(),
		Month:       month,
		Derived:     derivedRows,
	}
	for _, row := range dayRows {
		statement.Days = append(statement.Days, DayLine{
			DayKey:        row.PeriodKey,
			RecordCount:   row.RecordCount,
			TotalQuantity: row.TotalQuantity,
			TotalPayment:  row.TotalPayment,
			Status:        statuses[row.PeriodKey],
		})
	}
	sort.Slice(statement.Days, func(i, j int) bool { return statement.Days[i].DayKey < statement.Days[j].DayKey })
	return statement, nil
}

func (b *StatementBuilder) dayStatuses(ctx context.Context, dayRows []aggregates.FactAggregate) (map[string]recon.DateStatus, error) {
	statuses := make(map[string]recon.DateStatus, len(dayRows))
	if len(dayRows) == 0 {
		return statuses, nil
	}
	keys := make([]string, 0, len(dayRows))
	for _, row := range dayRows {
		keys = append(keys, row.PeriodKey)
	}
	sort.Strings(keys)
	from, err := facts.ParseSettlementDate(keys[0])
	if err != nil {
		return nil, err
	}
	to, err := facts.ParseSettlementDate(keys[len(keys)-1])
	if err != nil {
		return nil, err
	}
	checkpoints, err := b.checkpoints.List(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("statement: checkpoints: %w", err)
	}
	for _, checkpoint := range checkpoints {
		statuses[checkpoint.Date.Key()] = checkpoint.Status
	}
	return statuses, nil
}

// BuildStatementPDF renders a monthly reconciliation statement as PDF.
func BuildStatementPDF(statement *MonthlyStatement) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Reconciliation Statement")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Month: %s", statement.MonthKey))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", statement.GeneratedAt.Format(time.RFC3339)))
	pdf.Ln(5)
	if statement.Month != nil {
		pdf.Cell(0, 6, fmt.Sprintf("Records: %d", statement.Month.RecordCount))
		pdf.Ln(5)
		pdf.Cell(0, 6, fmt.Sprintf("Total Quantity (MWh): %s", statement.Month.TotalQuantity.StringFixed(3)))
		pdf.Ln(5)
		pdf.Cell(0, 6, fmt.Sprintf("Total Payment: %s", statement.Month.TotalPayment.StringFixed(2)))
		pdf.Ln(5)
	}
	for _, row := range statement.Derived {
		pdf.Cell(0, 6, fmt.Sprintf("%s total: %s", row.Parameter, row.TotalValue.StringFixed(3)))
		pdf.Ln(5)
	}
	pdf.Ln(4)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(35, 6, "Day", "1", 0, "C", false, 0, "")
	pdf.CellFormat(25, 6, "Records", "1", 0, "C", false, 0, "")
	pdf.CellFormat(45, 6, "Quantity (MWh)", "1", 0, "C", false, 0, "")
	pdf.CellFormat(45, 6, "Payment", "1", 0, "C", false, 0, "")
	pdf.CellFormat(35, 6, "Status", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, day := range statement.Days {
		status := string(day.Status)
		if status == "" {
			status = "unreconciled"
		}
		pdf.CellFormat(35, 6, day.DayKey, "1", 0, "C", false, 0, "")
		pdf.CellFormat(25, 6, fmt.Sprintf("%d", day.RecordCount), "1", 0, "R", false, 0, "")
		pdf.CellFormat(45, 6, day.TotalQuantity.StringFixed(3), "1", 0, "R", false, 0, "")
		pdf.CellFormat(45, 6, day.TotalPayment.StringFixed(2), "1", 0, "R", false, 0, "")
		pdf.CellFormat(35, 6, status, "1", 0, "C", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildStatementXLSX renders a monthly reconciliation statement as XLSX.
func BuildStatementXLSX(statement *MonthlyStatement) ([]byte, error) {
	f := excelize.NewFile()
	summarySheet := "summary"
	daysSheet := "days"
	f.SetSheetName("Sheet1", summarySheet)
	f.NewSheet(daysSheet)

	_ = f.SetCellValue(summarySheet, "A1", "Reconciliation Statement")
	_ = f.SetCellValue(summarySheet, "A3", "Month")
	_ = f.SetCellValue(summarySheet, "B3", statement.MonthKey)
	_ = f.SetCellValue(summarySheet, "A4", "Generated")
	_ = f.SetCellValue(summarySheet, "B4", statement.GeneratedAt.Format(time.RFC3339))
	if statement.Month != nil {
		_ = f.SetCellValue(summarySheet, "A5", "Records")
		_ = f.SetCellValue(summarySheet, "B5", statement.Month.RecordCount)
		_ = f.SetCellValue(summarySheet, "A6", "Total Quantity (MWh)")
		_ = f.SetCellValue(summarySheet, "B6", statement.Month.TotalQuantity.StringFixed(3))
		_ = f.SetCellValue(summarySheet, "A7", "Total Payment")
		_ = f.SetCellValue(summarySheet, "B7", statement.Month.TotalPayment.StringFixed(2))
	}
	for i, row := range statement.Derived {
		line := 9 + i
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("A%d", line), fmt.Sprintf("%s total", row.Parameter))
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("B%d", line), row.TotalValue.StringFixed(3))
	}

	_ = f.SetCellValue(daysSheet, "A1", "Day")
	_ = f.SetCellValue(daysSheet, "B1", "Records")
	_ = f.SetCellValue(daysSheet, "C1", "Quantity (MWh)")
	_ = f.SetCellValue(daysSheet, "D1", "Payment")
	_ = f.SetCellValue(daysSheet, "E1", "Status")
	for i, day := range statement.Days {
		row := i + 2
		status := string(day.Status)
		if status == "" {
			status = "unreconciled"
		}
		_ = f.SetCellValue(daysSheet, fmt.Sprintf("A%d", row), day.DayKey)
		_ = f.SetCellValue(daysSheet, fmt.Sprintf("B%d", row), day.RecordCount)
		_ = f.SetCellValue(daysSheet, fmt.Sprintf("C%d", row), day.TotalQuantity.StringFixed(3))
		_ = f.SetCellValue(daysSheet, fmt.Sprintf("D%d", row), day.TotalPayment.StringFixed(2))
		_ = f.SetCellValue(daysSheet, fmt.Sprintf("E%d", row), status)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
