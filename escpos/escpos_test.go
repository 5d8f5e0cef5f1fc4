package escpos

import (
	"bytes"
	"testing"

	"posprint/printerstore"
)

func TestGenerateReceiptEndsWithCut(t *testing.T) {
	r := New(printerstore.Paper80mm)
	data := ReceiptData{
		StoreName: "Corner Cafe",
		Items: []LineItem{
			{Name: "Latte", Quantity: 2, Price: 4.5},
		},
		Subtotal: 9.0,
		Tax:      0.9,
		Total:    9.9,
	}
	out := r.GenerateReceipt(data)
	if !bytes.HasSuffix(out, cmdCut) {
		t.Fatal("expected receipt bytes to end with the cut command")
	}
	if !bytes.Contains(out, []byte("Corner Cafe")) {
		t.Error("expected store name in output")
	}
}

func TestGenerateKitchenTicketDefaultsStationName(t *testing.T) {
	r := New(printerstore.Paper58mm)
	out := r.GenerateKitchenTicket(KitchenTicketData{
		Items: []LineItem{{Name: "Burger", Quantity: 1}},
	})
	if !bytes.Contains(out, []byte("KITCHEN")) {
		t.Error("expected default station name KITCHEN")
	}
	if !bytes.Contains(out, []byte("Burger")) {
		t.Error("expected item name in output")
	}
}

func TestGenerateTestPrintIncludesPrinterName(t *testing.T) {
	r := New(printerstore.Paper80mm)
	out := r.GenerateTestPrint("Front Counter")
	if !bytes.Contains(out, []byte("Front Counter")) {
		t.Error("expected printer name in test print")
	}
}

func TestGenerateFallbackIsSingleLinePlusCut(t *testing.T) {
	r := New(printerstore.Paper80mm)
	out := r.GenerateFallback("unrecognized job payload")
	if !bytes.Contains(out, []byte("unrecognized job payload")) {
		t.Error("expected fallback line present")
	}
	if !bytes.HasSuffix(out, cmdCut) {
		t.Fatal("expected fallback bytes to end with the cut command")
	}
}

func TestCharsPerLineVariesByPaperSize(t *testing.T) {
	if charsPerLine(printerstore.Paper58mm) >= charsPerLine(printerstore.Paper80mm) {
		t.Error("expected 58mm to have fewer columns than 80mm")
	}
	if charsPerLine(printerstore.Paper80mm) >= charsPerLine(printerstore.Paper112mm) {
		t.Error("expected 80mm to have fewer columns than 112mm")
	}
}
