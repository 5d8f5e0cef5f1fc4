// Package printerstore is a durable catalog of printer configurations,
// backed by SQLite. It enforces name uniqueness and keeps at most one
// enabled default printer per role.
package printerstore

import (
	"errors"
	"time"
)

// Sentinel errors so callers can errors.Is against store failures.
var (
	ErrNotFound      = errors.New("printer config not found")
	ErrDuplicateName = errors.New("printer name already in use")
	ErrInvalid       = errors.New("invalid printer config")
)

// PrinterType enumerates the supported connection families.
type PrinterType string

const (
	TypeNetwork   PrinterType = "network"
	TypeWifi      PrinterType = "wifi"
	TypeBluetooth PrinterType = "bluetooth"
	TypeUSB       PrinterType = "usb"
	TypeSystem    PrinterType = "system"
)

func (t PrinterType) valid() bool {
	switch t {
	case TypeNetwork, TypeWifi, TypeBluetooth, TypeUSB, TypeSystem:
		return true
	}
	return false
}

// PaperSize enumerates supported roll widths.
type PaperSize string

const (
	Paper58mm  PaperSize = "58mm"
	Paper80mm  PaperSize = "80mm"
	Paper112mm PaperSize = "112mm"
)

func (p PaperSize) valid() bool {
	switch p {
	case Paper58mm, Paper80mm, Paper112mm:
		return true
	}
	return false
}

// Role enumerates the printer's station in the kitchen/front-of-house.
type Role string

const (
	RoleReceipt Role = "receipt"
	RoleKitchen Role = "kitchen"
	RoleBar     Role = "bar"
	RoleLabel   Role = "label"
)

func (r Role) valid() bool {
	switch r {
	case RoleReceipt, RoleKitchen, RoleBar, RoleLabel:
		return true
	}
	return false
}

// ConnectionDetails is a tagged variant: Tag names which of the
// remaining fields are meaningful.
type ConnectionDetails struct {
	Tag PrinterType `json:"type"`

	// network | wifi
	IP       string `json:"ip,omitempty"`
	Port     int    `json:"port,omitempty"`
	Hostname string `json:"hostname,omitempty"`

	// bluetooth
	Address    string `json:"address,omitempty"` // MAC
	Channel    int    `json:"channel,omitempty"` // 1..30
	DeviceName string `json:"deviceName,omitempty"`

	// usb
	VendorID   string `json:"vendorId,omitempty"`
	ProductID  string `json:"productId,omitempty"`
	SystemName string `json:"systemName,omitempty"`
	Path       string `json:"path,omitempty"`
}

// Validate checks that the populated fields agree with Tag.
func (c ConnectionDetails) Validate() error {
	switch c.Tag {
	case TypeNetwork, TypeWifi:
		if c.IP == "" || c.Port == 0 {
			return errors.New("network/wifi connection details require ip and port")
		}
	case TypeBluetooth:
		if c.Address == "" {
			return errors.New("bluetooth connection details require address")
		}
		if c.Channel < 1 || c.Channel > 30 {
			return errors.New("bluetooth channel must be between 1 and 30")
		}
	case TypeUSB:
		if c.VendorID == "" || c.ProductID == "" {
			return errors.New("usb connection details require vendorId and productId")
		}
	case TypeSystem:
		// no required fields; system printers are recognized but unsupported by transport.New
	default:
		return errors.New("unknown connection details tag")
	}
	return nil
}

// PrinterConfig is the durable entity identifying one physical printer.
type PrinterConfig struct {
	ID                 string             `json:"id"`
	Name               string             `json:"name"`
	Type               PrinterType        `json:"type"`
	ConnectionDetails  ConnectionDetails  `json:"connectionDetails"`
	PaperSize          PaperSize          `json:"paperSize"`
	CharacterSet       string             `json:"characterSet"`
	Role               Role               `json:"role"`
	IsDefault          bool               `json:"isDefault"`
	FallbackPrinterID  *string            `json:"fallbackPrinterId,omitempty"`
	Enabled            bool               `json:"enabled"`
	// Firmware is set through Save, Update or ImportAll input and
	// consumed only by diagnostics; discovery and status probes do not
	// populate it.
	Firmware  string    `json:"firmware,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewPrinterConfig is the input shape for Save: everything but the
// server-assigned id and timestamps.
type NewPrinterConfig struct {
	Name              string
	Type              PrinterType
	ConnectionDetails ConnectionDetails
	PaperSize         PaperSize
	CharacterSet      string
	Role              Role
	IsDefault         bool
	FallbackPrinterID *string
	Enabled           bool
	Firmware          string
}

// Update is a partial patch for Update(id, ...): nil fields are left alone.
type Update struct {
	Name              *string
	Type              *PrinterType
	ConnectionDetails *ConnectionDetails
	PaperSize         *PaperSize
	CharacterSet      *string
	Role              *Role
	IsDefault         *bool
	FallbackPrinterID **string
	Enabled           *bool
	Firmware          *string
}

func (n NewPrinterConfig) validate() error {
	if n.Name == "" {
		return errors.New("name is required")
	}
	if !n.Type.valid() {
		return errors.New("invalid printer type")
	}
	if !n.PaperSize.valid() {
		return errors.New("invalid paper size")
	}
	if !n.Role.valid() {
		return errors.New("invalid role")
	}
	if n.ConnectionDetails.Tag != n.Type {
		return errors.New("connectionDetails.type must match type")
	}
	if err := n.ConnectionDetails.Validate(); err != nil {
		return err
	}
	return nil
}

// SerializedConfig is the settings-export/import shape: a PrinterConfig
// stripped to plain fields so it round-trips through JSON without
// surprises from time.Time zones.
type SerializedConfig struct {
	ID                string            `json:"id"`
	Name              string            `json:"name"`
	Type              PrinterType       `json:"type"`
	ConnectionDetails ConnectionDetails `json:"connectionDetails"`
	PaperSize         PaperSize         `json:"paperSize"`
	CharacterSet      string            `json:"characterSet"`
	Role              Role              `json:"role"`
	IsDefault         bool              `json:"isDefault"`
	FallbackPrinterID *string           `json:"fallbackPrinterId,omitempty"`
	Enabled           bool              `json:"enabled"`
	Firmware          string            `json:"firmware,omitempty"`
	CreatedAt         time.Time         `json:"createdAt"`
	UpdatedAt         time.Time         `json:"updatedAt"`
}

// ToSerialized converts a PrinterConfig to its export shape.
func (c PrinterConfig) ToSerialized() SerializedConfig {
	return SerializedConfig{
		ID: c.ID, Name: c.Name, Type: c.Type, ConnectionDetails: c.ConnectionDetails,
		PaperSize: c.PaperSize, CharacterSet: c.CharacterSet, Role: c.Role,
		IsDefault: c.IsDefault, FallbackPrinterID: c.FallbackPrinterID, Enabled: c.Enabled,
		Firmware: c.Firmware, CreatedAt: c.CreatedAt, UpdatedAt: c.UpdatedAt,
	}
}
