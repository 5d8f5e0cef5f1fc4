// Package transport provides a uniform connect/send/disconnect/observe
// surface over the printer links this module supports: TCP network
// sockets, Bluetooth RFCOMM, and USB bulk endpoints.
package transport

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"posprint/printerstore"
)

// State is the transport's internal connection lifecycle state.
type State string

const (
	StateDisconnected  State = "disconnected"
	StateConnecting    State = "connecting"
	StateConnected     State = "connected"
	StateDisconnecting State = "disconnecting"
	StateError         State = "error"
)

// Status is returned by GetStatus.
type Status struct {
	State     State
	LastError string
}

// DisconnectCallback and ErrorCallback are the transport event hooks.
type DisconnectCallback func()
type ErrorCallback func(err error)

// Transport is the capability every concrete printer link implements.
type Transport interface {
	Connect() error
	Disconnect() error
	IsConnected() bool
	Send(data []byte) error
	GetStatus() Status
	OnDisconnect(cb DisconnectCallback)
	OnError(cb ErrorCallback)
}

var ErrNotSupported = errors.New("connection type not supported by this build")

// New instantiates the concrete transport for cfg's connectionDetails
// variant tag.
func New(cfg printerstore.PrinterConfig) (Transport, error) {
	switch cfg.ConnectionDetails.Tag {
	case printerstore.TypeNetwork, printerstore.TypeWifi:
		return NewNetworkTransport(cfg.ConnectionDetails.IP, cfg.ConnectionDetails.Port), nil
	case printerstore.TypeBluetooth:
		return NewBluetoothTransport(cfg.ConnectionDetails.Address, cfg.ConnectionDetails.Channel), nil
	case printerstore.TypeUSB:
		return newUSBTransport(cfg.ConnectionDetails.VendorID, cfg.ConnectionDetails.ProductID, cfg.ConnectionDetails.Path)
	case printerstore.TypeSystem:
		// Recognized, storable enum value; no OS print-spooling
		// integration exists, so this is a hard failure rather than a
		// silent degrade.
		return nil, fmt.Errorf("%w: system", ErrNotSupported)
	default:
		return nil, fmt.Errorf("unsupported connection details tag %q", cfg.ConnectionDetails.Tag)
	}
}

// baseTransport holds the state machine and callback registry shared by
// every concrete implementation.
type baseTransport struct {
	mu      sync.Mutex
	state   State
	lastErr string

	onDisconnect []DisconnectCallback
	onError      []ErrorCallback
}

func (b *baseTransport) GetStatus() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Status{State: b.state, LastError: b.lastErr}
}

func (b *baseTransport) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state == StateConnected
}

func (b *baseTransport) OnDisconnect(cb DisconnectCallback) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onDisconnect = append(b.onDisconnect, cb)
}

func (b *baseTransport) OnError(cb ErrorCallback) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onError = append(b.onError, cb)
}

func (b *baseTransport) setState(s State) {
	b.mu.Lock()
	b.state = s
	b.mu.Unlock()
}

func (b *baseTransport) fireDisconnect() {
	b.mu.Lock()
	cbs := append([]DisconnectCallback(nil), b.onDisconnect...)
	b.mu.Unlock()
	for _, cb := range cbs {
		cb()
	}
}

func (b *baseTransport) fireError(err error) {
	b.mu.Lock()
	b.state = StateError
	b.lastErr = err.Error()
	cbs := append([]ErrorCallback(nil), b.onError...)
	b.mu.Unlock()
	for _, cb := range cbs {
		cb(err)
	}
}

// NetworkTransport is a raw TCP socket transport for network/wifi
// printers (most thermal receipt printers listen on port 9100).
type NetworkTransport struct {
	baseTransport
	host string
	port int
	conn net.Conn
}

func NewNetworkTransport(host string, port int) *NetworkTransport {
	return &NetworkTransport{host: host, port: port, baseTransport: baseTransport{state: StateDisconnected}}
}

func (t *NetworkTransport) Connect() error {
	t.setState(StateConnecting)
	conn, err := net.DialTimeout("tcp", fmt.Sprintf("%s:%d", t.host, t.port), 5*time.Second)
	if err != nil {
		t.fireError(fmt.Errorf("dialing %s:%d: %w", t.host, t.port, err))
		return err
	}
	t.mu.Lock()
	t.conn = conn
	t.state = StateConnected
	t.mu.Unlock()
	return nil
}

func (t *NetworkTransport) Disconnect() error {
	t.setState(StateDisconnecting)
	t.mu.Lock()
	conn := t.conn
	t.conn = nil
	t.mu.Unlock()
	if conn != nil {
		if err := conn.Close(); err != nil {
			t.setState(StateDisconnected)
			return err
		}
	}
	t.setState(StateDisconnected)
	t.fireDisconnect()
	return nil
}

func (t *NetworkTransport) Send(data []byte) error {
	t.mu.Lock()
	conn := t.conn
	connected := t.state == StateConnected
	t.mu.Unlock()
	if !connected || conn == nil {
		return fmt.Errorf("not connected")
	}
	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if _, err := conn.Write(data); err != nil {
		t.fireError(fmt.Errorf("writing to %s:%d: %w", t.host, t.port, err))
		return err
	}
	return nil
}

// BluetoothTransport models an RFCOMM channel to a paired printer. The
// actual serial-port-profile I/O is platform-specific; this
// implementation provides the state machine and callback wiring that a
// platform RFCOMM backend plugs into.
type BluetoothTransport struct {
	baseTransport
	address string
	channel int
}

func NewBluetoothTransport(address string, channel int) *BluetoothTransport {
	return &BluetoothTransport{address: address, channel: channel, baseTransport: baseTransport{state: StateDisconnected}}
}

func (t *BluetoothTransport) Connect() error {
	t.setState(StateConnecting)
	err := fmt.Errorf("bluetooth RFCOMM connect to %s channel %d: %w", t.address, t.channel, ErrNotSupported)
	t.fireError(err)
	return err
}

func (t *BluetoothTransport) Disconnect() error {
	t.setState(StateDisconnected)
	t.fireDisconnect()
	return nil
}

func (t *BluetoothTransport) Send([]byte) error {
	return fmt.Errorf("bluetooth transport to %s not connected", t.address)
}
