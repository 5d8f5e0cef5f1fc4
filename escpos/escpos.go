// Package escpos converts structured job data into ESC/POS binary
// command streams. Opcode tables are standard thermal-printer ESC/POS
// commands; this package owns no domain knowledge of orders beyond what
// it needs to lay out a ticket.
package escpos

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"posprint/printerstore"
)

const (
	esc = 0x1b
	gs  = 0x1d
)

// commands every generator composes from.
var (
	cmdInit        = []byte{esc, '@'}
	cmdAlignLeft   = []byte{esc, 'a', 0}
	cmdAlignCenter = []byte{esc, 'a', 1}
	cmdBoldOn      = []byte{esc, 'E', 1}
	cmdBoldOff     = []byte{esc, 'E', 0}
	cmdDoubleOn    = []byte{gs, '!', 0x11}
	cmdDoubleOff   = []byte{gs, '!', 0x00}
	cmdCut         = []byte{gs, 'V', 1}
	cmdFeed3       = []byte{esc, 'd', 3}
)

// charsPerLine maps paper width to the printable column count for the
// default 12cpi font, used to lay out separators and right-aligned totals.
func charsPerLine(size printerstore.PaperSize) int {
	switch size {
	case printerstore.Paper58mm:
		return 32
	case printerstore.Paper112mm:
		return 64
	default: // 80mm
		return 48
	}
}

// Renderer generates ESC/POS byte streams configured for a paper size.
type Renderer struct {
	PaperSize printerstore.PaperSize
}

func New(paperSize printerstore.PaperSize) *Renderer {
	return &Renderer{PaperSize: paperSize}
}

// LineItem is one priced line on a receipt or kitchen ticket.
type LineItem struct {
	Name     string  `json:"name"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"` // decimal currency, caller's unit
	Category string  `json:"category,omitempty"`
	Notes    string  `json:"notes,omitempty"`
}

// ReceiptData is the structured variant for job type "receipt".
type ReceiptData struct {
	StoreName string     `json:"storeName"`
	TableName string     `json:"tableName,omitempty"`
	Customer  string     `json:"customer,omitempty"`
	Items     []LineItem `json:"items"`
	Subtotal  float64    `json:"subtotal"`
	Tax       float64    `json:"tax"`
	Total     float64    `json:"total"`
	Timestamp time.Time  `json:"timestamp,omitempty"`
}

// KitchenTicketData is the structured variant for job type
// "kitchen_ticket": it carries everything the station ticket prints,
// not just the categories routing splits on.
type KitchenTicketData struct {
	Station   string     `json:"station,omitempty"`
	TableName string     `json:"tableName,omitempty"`
	Items     []LineItem `json:"items"`
	Timestamp time.Time  `json:"timestamp,omitempty"`
}

func (r *Renderer) width() int { return charsPerLine(r.PaperSize) }

// GenerateReceipt renders a customer-facing receipt.
func (r *Renderer) GenerateReceipt(data ReceiptData) []byte {
	var buf bytes.Buffer
	w := r.width()

	buf.Write(cmdInit)
	buf.Write(cmdAlignCenter)
	buf.Write(cmdDoubleOn)
	buf.WriteString(data.StoreName + "\n")
	buf.Write(cmdDoubleOff)
	buf.Write(cmdAlignLeft)

	if data.TableName != "" {
		buf.WriteString("Table: " + data.TableName + "\n")
	}
	if data.Customer != "" {
		buf.WriteString("Customer: " + data.Customer + "\n")
	}
	buf.WriteString(strings.Repeat("-", w) + "\n")

	for _, item := range data.Items {
		buf.WriteString(formatItemLine(item, w))
	}

	buf.WriteString(strings.Repeat("-", w) + "\n")
	buf.WriteString(rightAlignTotal("Subtotal", data.Subtotal, w))
	buf.WriteString(rightAlignTotal("Tax", data.Tax, w))
	buf.Write(cmdBoldOn)
	buf.WriteString(rightAlignTotal("Total", data.Total, w))
	buf.Write(cmdBoldOff)

	ts := data.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	buf.Write(cmdAlignCenter)
	buf.WriteString(ts.Format("2006-01-02 15:04:05") + "\n")

	buf.Write(cmdFeed3)
	buf.Write(cmdCut)
	return buf.Bytes()
}

// GenerateKitchenTicket renders a station ticket for the kitchen/bar.
func (r *Renderer) GenerateKitchenTicket(data KitchenTicketData) []byte {
	var buf bytes.Buffer
	w := r.width()

	buf.Write(cmdInit)
	buf.Write(cmdAlignCenter)
	buf.Write(cmdDoubleOn)
	station := data.Station
	if station == "" {
		station = "KITCHEN"
	}
	buf.WriteString(strings.ToUpper(station) + "\n")
	buf.Write(cmdDoubleOff)
	buf.Write(cmdAlignLeft)

	if data.TableName != "" {
		buf.Write(cmdBoldOn)
		buf.WriteString("Table: " + data.TableName + "\n")
		buf.Write(cmdBoldOff)
	}
	buf.WriteString(strings.Repeat("-", w) + "\n")

	for _, item := range data.Items {
		buf.WriteString(fmt.Sprintf("%dx %s\n", maxInt(item.Quantity, 1), item.Name))
		if item.Notes != "" {
			buf.WriteString("  * " + item.Notes + "\n")
		}
	}

	ts := data.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	buf.WriteString(strings.Repeat("-", w) + "\n")
	buf.WriteString(ts.Format("15:04:05") + "\n")

	buf.Write(cmdFeed3)
	buf.Write(cmdCut)
	return buf.Bytes()
}

// GenerateTestPrint renders a short diagnostic page identifying the printer.
func (r *Renderer) GenerateTestPrint(printerName string) []byte {
	var buf bytes.Buffer

	buf.Write(cmdInit)
	buf.Write(cmdAlignCenter)
	buf.Write(cmdDoubleOn)
	buf.WriteString("TEST PRINT\n")
	buf.Write(cmdDoubleOff)
	buf.WriteString(printerName + "\n")
	buf.WriteString(time.Now().Format(time.RFC1123) + "\n")
	buf.Write(cmdAlignLeft)
	buf.WriteString(strings.Repeat("=", r.width()) + "\n")

	buf.Write(cmdFeed3)
	buf.Write(cmdCut)
	return buf.Bytes()
}

// GenerateFallback serializes unknown job data as a single text line
// followed by a paper cut.
func (r *Renderer) GenerateFallback(line string) []byte {
	var buf bytes.Buffer
	buf.Write(cmdInit)
	buf.WriteString(line + "\n")
	buf.Write(cmdFeed3)
	buf.Write(cmdCut)
	return buf.Bytes()
}

func formatItemLine(item LineItem, width int) string {
	qty := maxInt(item.Quantity, 1)
	label := fmt.Sprintf("%dx %s", qty, item.Name)
	price := fmt.Sprintf("%.2f", item.Price*float64(qty))
	pad := width - len(label) - len(price)
	if pad < 1 {
		pad = 1
	}
	return label + strings.Repeat(" ", pad) + price + "\n"
}

func rightAlignTotal(label string, amount float64, width int) string {
	value := fmt.Sprintf("%.2f", amount)
	pad := width - len(label) - len(value)
	if pad < 1 {
		pad = 1
	}
	return label + strings.Repeat(" ", pad) + value + "\n"
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
