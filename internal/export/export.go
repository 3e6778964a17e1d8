// Package export renders usage and affiliate listings as downloadable files.
package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/iliyamo/affiliate-dashboard/internal/model"
)

// Format is a supported export file type.
type Format string

const (
	CSV  Format = "csv"
	JSON Format = "json"
	XLSX Format = "xlsx"
)

// ParseFormat accepts csv, json or xlsx (case-insensitive).  An empty value
// means CSV.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "csv":
		return CSV, nil
	case "json":
		return JSON, nil
	case "xlsx", "excel":
		return XLSX, nil
	}
	return "", fmt.Errorf("unsupported export format %q", s)
}

// ContentType returns the MIME type for the format.
func (f Format) ContentType() string {
	switch f {
	case JSON:
		return "application/json"
	case XLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "text/csv; charset=utf-8"
	}
}

// Filename builds "<prefix>-YYYYMMDD-HHMMSS.<ext>".
func Filename(prefix string, f Format, at time.Time) string {
	return fmt.Sprintf("%s-%s.%s", prefix, at.UTC().Format("20060102-150405"), f)
}

// Table is a header plus rows of already formatted cells.
type Table struct {
	Sheet  string
	Header []string
	Rows   [][]string
}

var usageHeader = []string{"Date", "Coupon Code", "Product", "Quantity", "Earnings", "Status", "Payout Date"}

// UsageTable formats usage rows.  Dates use 2006-01-02 and earnings carry
// two fixed decimals; an unpaid row has an empty payout date.
func UsageTable(items []model.Usage) Table {
	t := Table{Sheet: "Coupon usage", Header: usageHeader, Rows: make([][]string, 0, len(items))}
	for _, u := range items {
		payout := ""
		if u.PayoutDate != nil {
			payout = u.PayoutDate.Format(model.DateLayout)
		}
		t.Rows = append(t.Rows, []string{
			u.UsedAt.Format(model.DateLayout),
			u.Code,
			u.ProductName,
			strconv.Itoa(u.Quantity),
			u.Earnings.StringFixed(2),
			u.OrderStatus,
			payout,
		})
	}
	return t
}

var affiliateHeader = []string{"Coupon Code", "Email", "Role", "Payment Method", "Payment Details",
	"Notify Email", "Notify Payouts", "Active", "Created At"}

// AffiliateTable formats affiliate rows.  Password hashes are never included.
func AffiliateTable(items []model.Affiliate) Table {
	t := Table{Sheet: "Affiliates", Header: affiliateHeader, Rows: make([][]string, 0, len(items))}
	for _, a := range items {
		t.Rows = append(t.Rows, []string{
			a.CouponCode,
			a.Email,
			a.Role,
			a.PaymentMethod,
			a.PaymentDetails,
			strconv.FormatBool(a.NotifyEmail),
			strconv.FormatBool(a.NotifyPayouts),
			strconv.FormatBool(a.IsActive),
			a.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return t
}

// usageJSON is the export shape of a usage row; it mirrors the CSV columns.
type usageJSON struct {
	Date       string `json:"date"`
	CouponCode string `json:"coupon_code"`
	Product    string `json:"product"`
	Quantity   int    `json:"quantity"`
	Earnings   string `json:"earnings"`
	Status     string `json:"status"`
	PayoutDate string `json:"payout_date,omitempty"`
}

// Usage renders usage rows in the requested format.
func Usage(items []model.Usage, f Format) ([]byte, error) {
	if f == JSON {
		out := make([]usageJSON, 0, len(items))
		for _, row := range UsageTable(items).Rows {
			qty, _ := strconv.Atoi(row[3])
			out = append(out, usageJSON{
				Date: row[0], CouponCode: row[1], Product: row[2], Quantity: qty,
				Earnings: row[4], Status: row[5], PayoutDate: row[6],
			})
		}
		return json.MarshalIndent(out, "", "  ")
	}
	return Render(UsageTable(items), f)
}

// Affiliates renders affiliate rows in the requested format.
func Affiliates(items []model.Affiliate, f Format) ([]byte, error) {
	if f == JSON {
		if items == nil {
			items = []model.Affiliate{}
		}
		// model.Affiliate already hides PasswordHash from JSON
		return json.MarshalIndent(items, "", "  ")
	}
	return Render(AffiliateTable(items), f)
}

// Render writes a table as CSV or XLSX.  JSON callers use the typed helpers.
func Render(t Table, f Format) ([]byte, error) {
	switch f {
	case CSV:
		return renderCSV(t)
	case XLSX:
		return renderXLSX(t)
	}
	return nil, fmt.Errorf("render: unsupported format %q", f)
}

func renderCSV(t Table) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(t.Header); err != nil {
		return nil, err
	}
	if err := w.WriteAll(t.Rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func renderXLSX(t Table) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sheet := t.Sheet
	if sheet == "" {
		sheet = "Export"
	}
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}
	for i, h := range t.Header {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return nil, err
		}
	}
	for r, row := range t.Rows {
		for c, v := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, r+2)
			if err != nil {
				return nil, err
			}
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return nil, err
			}
		}
	}
	if len(t.Header) > 0 {
		last, _ := excelize.CoordinatesToCellName(len(t.Header), 1)
		if style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
			_ = f.SetCellStyle(sheet, "A1", last, style)
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
