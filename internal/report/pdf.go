// Package report renders the warehouse aggregates into a PDF summary.
package report

import (
	"bytes"
	"fmt"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/signagelab/mrrsim/internal/warehouse"
)

var (
	colorPrimary     = [3]int{30, 58, 95}    // Dark navy
	colorTextDark    = [3]int{44, 62, 80}    // Dark text
	colorTextMuted   = [3]int{127, 140, 141} // Muted text
	colorTableHeader = [3]int{30, 58, 95}    // Navy header
	colorTableAlt    = [3]int{241, 245, 249} // Alternating row
)

// Data is everything the report renders, queried from the warehouse.
type Data struct {
	RunID         string
	GeneratedAt   time.Time
	MRR           []warehouse.MonthlyMRR
	MRRByPlan     []warehouse.PlanMRR
	ARPPU         []warehouse.MonthlyARPPU
	PlanCustomers []warehouse.PlanCustomers
}

// Generator renders MRR reports.
type Generator struct{}

// NewGenerator creates a PDF report generator.
func NewGenerator() *Generator {
	return &Generator{}
}

// Generate renders the report and returns the PDF bytes.
func (g *Generator) Generate(data *Data) ([]byte, error) {
	if len(data.MRR) == 0 {
		return nil, fmt.Errorf("no monthly aggregates to report; run etl first")
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(20, 20, 20)
	pdf.SetAutoPageBreak(true, 25)

	g.writeCoverPage(pdf, data)

	pdf.AddPage()
	g.writeSectionTitle(pdf, "Monthly Recurring Revenue")
	g.writeMRRTable(pdf, data.MRR)

	g.writeSectionTitle(pdf, "Average Revenue per Paying Customer")
	g.writeARPPUTable(pdf, data.ARPPU)

	pdf.AddPage()
	g.writeSectionTitle(pdf, "MRR by Plan")
	g.writePlanTable(pdf, data.MRRByPlan)

	g.writeSectionTitle(pdf, "Customers by Plan")
	g.writeCustomerTable(pdf, data.PlanCustomers)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("PDF output error: %w", err)
	}
	return buf.Bytes(), nil
}

func (g *Generator) writeCoverPage(pdf *fpdf.Fpdf, data *Data) {
	pdf.AddPage()
	pageWidth, _ := pdf.GetPageSize()

	pdf.SetFillColor(colorPrimary[0], colorPrimary[1], colorPrimary[2])
	pdf.Rect(0, 0, pageWidth, 8, "F")

	pdf.SetY(60)
	pdf.SetFont("Arial", "B", 28)
	pdf.SetTextColor(colorTextDark[0], colorTextDark[1], colorTextDark[2])
	pdf.CellFormat(0, 12, "MRR Report", "", 1, "C", false, 0, "")

	pdf.SetFont("Arial", "", 12)
	pdf.SetTextColor(colorTextMuted[0], colorTextMuted[1], colorTextMuted[2])
	pdf.CellFormat(0, 8, "Simulated Subscription Revenue", "", 1, "C", false, 0, "")

	pdf.SetY(110)
	pdf.SetFont("Arial", "", 11)
	if data.RunID != "" {
		pdf.CellFormat(0, 7, fmt.Sprintf("Run %s", data.RunID), "", 1, "C", false, 0, "")
	}
	pdf.CellFormat(0, 7, data.GeneratedAt.Format("January 2, 2006 15:04 MST"), "", 1, "C", false, 0, "")

	first := data.MRR[0]
	last := data.MRR[len(data.MRR)-1]
	pdf.SetY(140)
	pdf.SetFont("Arial", "B", 14)
	pdf.SetTextColor(colorTextDark[0], colorTextDark[1], colorTextDark[2])
	pdf.CellFormat(0, 9, fmt.Sprintf("%s  to  %s", first.Month, last.Month), "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "", 12)
	pdf.CellFormat(0, 8, fmt.Sprintf("Final MRR: %s across %d subscriptions", dollars(last.MRRCents), last.Subscriptions), "", 1, "C", false, 0, "")
}

func (g *Generator) writeSectionTitle(pdf *fpdf.Fpdf, title string) {
	pdf.SetFont("Arial", "B", 14)
	pdf.SetTextColor(colorPrimary[0], colorPrimary[1], colorPrimary[2])
	pdf.CellFormat(0, 10, title, "", 1, "L", false, 0, "")
	pdf.Ln(2)
}

func (g *Generator) writeTableHeader(pdf *fpdf.Fpdf, widths []float64, headers []string) {
	pdf.SetFont("Arial", "B", 10)
	pdf.SetFillColor(colorTableHeader[0], colorTableHeader[1], colorTableHeader[2])
	pdf.SetTextColor(255, 255, 255)
	for i, h := range headers {
		pdf.CellFormat(widths[i], 8, h, "", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	pdf.SetTextColor(colorTextDark[0], colorTextDark[1], colorTextDark[2])
}

func (g *Generator) writeRow(pdf *fpdf.Fpdf, widths []float64, cells []string, alt bool) {
	if alt {
		pdf.SetFillColor(colorTableAlt[0], colorTableAlt[1], colorTableAlt[2])
	} else {
		pdf.SetFillColor(255, 255, 255)
	}
	for i, c := range cells {
		pdf.CellFormat(widths[i], 7, c, "", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)
}

func (g *Generator) writeMRRTable(pdf *fpdf.Fpdf, rows []warehouse.MonthlyMRR) {
	widths := []float64{40, 50, 50}
	g.writeTableHeader(pdf, widths, []string{"Month", "MRR", "Subscriptions"})
	for i, r := range rows {
		g.writeRow(pdf, widths, []string{r.Month, dollars(r.MRRCents), fmt.Sprint(r.Subscriptions)}, i%2 == 1)
	}
	pdf.Ln(8)
}

func (g *Generator) writeARPPUTable(pdf *fpdf.Fpdf, rows []warehouse.MonthlyARPPU) {
	widths := []float64{40, 50, 50}
	g.writeTableHeader(pdf, widths, []string{"Month", "ARPPU", "Paying Customers"})
	for i, r := range rows {
		g.writeRow(pdf, widths, []string{r.Month, dollars(r.ARPPUCents), fmt.Sprint(r.PayingCustomers)}, i%2 == 1)
	}
	pdf.Ln(8)
}

func (g *Generator) writePlanTable(pdf *fpdf.Fpdf, rows []warehouse.PlanMRR) {
	widths := []float64{35, 45, 45, 45}
	g.writeTableHeader(pdf, widths, []string{"Month", "Plan", "MRR", "Subscriptions"})
	for i, r := range rows {
		g.writeRow(pdf, widths, []string{r.Month, r.Plan, dollars(r.MRRCents), fmt.Sprint(r.Subscriptions)}, i%2 == 1)
	}
	pdf.Ln(8)
}

func (g *Generator) writeCustomerTable(pdf *fpdf.Fpdf, rows []warehouse.PlanCustomers) {
	widths := []float64{40, 50, 50}
	g.writeTableHeader(pdf, widths, []string{"Month", "Plan", "Customers"})
	for i, r := range rows {
		g.writeRow(pdf, widths, []string{r.Month, r.Plan, fmt.Sprint(r.Customers)}, i%2 == 1)
	}
	pdf.Ln(8)
}

func dollars(cents int64) string {
	return fmt.Sprintf("$%.2f", float64(cents)/100)
}
