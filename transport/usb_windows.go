//go:build windows

package transport

import (
	"fmt"
	"sync"

	"golang.org/x/sys/windows"
)

// USBTransport on Windows talks to the printer's WinUSB bulk endpoints
// through a device handle opened from the resolved device path.
type USBTransport struct {
	baseTransport
	vendorID, productID, path string

	handleMu sync.Mutex
	handle   windows.Handle
}

func newUSBTransport(vendorID, productID, path string) (Transport, error) {
	if path == "" {
		return nil, fmt.Errorf("usb transport requires a device path in the connection details")
	}
	return &USBTransport{
		vendorID: vendorID, productID: productID, path: path,
		baseTransport: baseTransport{state: StateDisconnected},
	}, nil
}

func (t *USBTransport) Connect() error {
	t.setState(StateConnecting)

	pathPtr, err := windows.UTF16PtrFromString(t.path)
	if err != nil {
		t.fireError(err)
		return err
	}

	handle, err := windows.CreateFile(
		pathPtr,
		windows.GENERIC_READ|windows.GENERIC_WRITE,
		windows.FILE_SHARE_READ|windows.FILE_SHARE_WRITE,
		nil,
		windows.OPEN_EXISTING,
		windows.FILE_ATTRIBUTE_NORMAL,
		0,
	)
	if err != nil {
		wrapped := fmt.Errorf("opening usb device %s: %w", t.path, err)
		t.fireError(wrapped)
		return wrapped
	}

	t.handleMu.Lock()
	t.handle = handle
	t.handleMu.Unlock()
	t.setState(StateConnected)
	return nil
}

func (t *USBTransport) Disconnect() error {
	t.setState(StateDisconnecting)

	t.handleMu.Lock()
	handle := t.handle
	t.handle = 0
	t.handleMu.Unlock()

	if handle != 0 {
		if err := windows.CloseHandle(handle); err != nil {
			t.setState(StateDisconnected)
			return err
		}
	}
	t.setState(StateDisconnected)
	t.fireDisconnect()
	return nil
}

func (t *USBTransport) Send(data []byte) error {
	t.handleMu.Lock()
	handle := t.handle
	t.handleMu.Unlock()
	if handle == 0 {
		return fmt.Errorf("usb transport %s not connected", t.path)
	}

	var written uint32
	if err := windows.WriteFile(handle, data, &written, nil); err != nil {
		t.fireError(fmt.Errorf("writing to usb device %s: %w", t.path, err))
		return err
	}
	if int(written) != len(data) {
		err := fmt.Errorf("usb device %s accepted %d of %d bytes", t.path, written, len(data))
		t.fireError(err)
		return err
	}
	return nil
}
