package discovery

import (
	"testing"

	"posprint/printerstore"
)

func TestAddressProjection(t *testing.T) {
	cases := []struct {
		name string
		cfg  printerstore.PrinterConfig
		want string
	}{
		{
			name: "network",
			cfg: printerstore.PrinterConfig{
				ConnectionDetails: printerstore.ConnectionDetails{Tag: printerstore.TypeNetwork, IP: "192.168.1.5"},
			},
			want: "192.168.1.5",
		},
		{
			name: "bluetooth",
			cfg: printerstore.PrinterConfig{
				ConnectionDetails: printerstore.ConnectionDetails{Tag: printerstore.TypeBluetooth, Address: "AA:BB:CC:DD:EE:FF"},
			},
			want: "AA:BB:CC:DD:EE:FF",
		},
		{
			name: "usb",
			cfg: printerstore.PrinterConfig{
				ConnectionDetails: printerstore.ConnectionDetails{Tag: printerstore.TypeUSB, VendorID: "04b8", ProductID: "0202"},
			},
			want: "04b8:0202",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := AddressProjection(tc.cfg); got != tc.want {
				t.Errorf("AddressProjection() = %q, want %q", got, tc.want)
			}
		})
	}
}
