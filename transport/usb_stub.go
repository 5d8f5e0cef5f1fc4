//go:build !windows

package transport

import "fmt"

// USBTransport on non-Windows builds reports unsupported: WinUSB bulk
// I/O is only wired for Windows (usb_windows.go).
type USBTransport struct {
	baseTransport
	vendorID, productID, path string
}

func newUSBTransport(vendorID, productID, path string) (Transport, error) {
	return &USBTransport{
		vendorID: vendorID, productID: productID, path: path,
		baseTransport: baseTransport{state: StateDisconnected},
	}, nil
}

func (t *USBTransport) Connect() error {
	t.setState(StateConnecting)
	err := fmt.Errorf("usb printer %s:%s: %w (non-Windows build)", t.vendorID, t.productID, ErrNotSupported)
	t.fireError(err)
	return err
}

func (t *USBTransport) Disconnect() error {
	t.setState(StateDisconnected)
	t.fireDisconnect()
	return nil
}

func (t *USBTransport) Send([]byte) error {
	return fmt.Errorf("usb transport %s:%s not connected", t.vendorID, t.productID)
}
