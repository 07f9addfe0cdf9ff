package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"

	"github.com/ledgerone/warehouse/ledger"
)

// maxPDFViolations caps the violation listing; the workbook and the API
// carry the full list.
const maxPDFViolations = 200

// BuildReportPDF renders the integrity report of one run.
func BuildReportPDF(run ledger.RunRecord, report *ledger.Report) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "LedgerOne Integrity Report")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Run: %s", run.RunID))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Status: %s", run.Status))
	pdf.Ln(5)
	if !run.StartedAt.IsZero() {
		pdf.Cell(0, 6, fmt.Sprintf("Started: %s", run.StartedAt.UTC().Format(time.RFC3339)))
		pdf.Ln(5)
	}
	pdf.Cell(0, 6, fmt.Sprintf("Events: %d (accepted %d, rejected %d)", run.Events, run.Accepted, run.Rejected))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Fatal: %d  Warnings: %d", run.Fatal, run.Warnings))
	pdf.Ln(5)
	if run.Fingerprint != "" {
		pdf.Cell(0, 6, fmt.Sprintf("Fingerprint: %s", run.Fingerprint))
		pdf.Ln(5)
	}
	if run.Error != "" {
		pdf.MultiCell(0, 5, fmt.Sprintf("Error: %s", run.Error), "", "L", false)
	}
	pdf.Ln(4)

	if report == nil {
		pdf.Cell(0, 6, "No integrity report available.")
		return output(pdf)
	}

	// Checks table
	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(60, 6, "Check", "1", 0, "C", false, 0, "")
	pdf.CellFormat(25, 6, "Result", "1", 0, "C", false, 0, "")
	pdf.CellFormat(25, 6, "Violations", "1", 0, "C", false, 0, "")
	pdf.CellFormat(70, 6, "Details", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, c := range report.Checks {
		result := "PASS"
		if !c.Passed {
			result = "FAIL"
		}
		pdf.CellFormat(60, 6, c.Name, "1", 0, "L", false, 0, "")
		pdf.CellFormat(25, 6, result, "1", 0, "C", false, 0, "")
		pdf.CellFormat(25, 6, fmt.Sprintf("%d", c.Violations), "1", 0, "R", false, 0, "")
		pdf.CellFormat(70, 6, c.Details, "1", 0, "L", false, 0, "")
		pdf.Ln(-1)
	}

	if len(report.Violations) == 0 {
		return output(pdf)
	}

	pdf.Ln(6)
	pdf.SetFont("Arial", "B", 11)
	pdf.Cell(0, 6, "Violations")
	pdf.Ln(7)
	pdf.SetFont("Arial", "", 9)
	for i, v := range report.Violations {
		if i == maxPDFViolations {
			pdf.Cell(0, 5, fmt.Sprintf("... %d more", len(report.Violations)-maxPDFViolations))
			pdf.Ln(5)
			break
		}
		line := fmt.Sprintf("[%s] %s: %s", v.Severity, v.Check, v.Message)
		if v.EventID != "" {
			line += fmt.Sprintf(" (event %s)", v.EventID)
		}
		pdf.MultiCell(0, 5, line, "", "L", false)
	}
	return output(pdf)
}

func output(pdf *gofpdf.Fpdf) ([]byte, error) {
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
