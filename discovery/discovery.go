// Package discovery enumerates printers the orchestrator could be
// configured to drive: network printers via mDNS, plus Bluetooth inquiry
// and USB enumeration entry points.
package discovery

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
	"golang.org/x/time/rate"

	"posprint/printerstore"
)

// DiscoveredPrinter is one enumeration result. IsConfigured is annotated
// post hoc by the orchestrator, not by the discovery source itself.
type DiscoveredPrinter struct {
	Address      string
	Type         printerstore.PrinterType
	Manufacturer string
	Model        string
	IsConfigured bool

	// Supplemental fields populated when available, consumed only by
	// diagnostics/advanced setup flows.
	IP       string
	Port     int
	Firmware string
}

// mdnsServiceNames are the Bonjour/mDNS service types thermal and label
// printers commonly advertise.
var mdnsServiceNames = []string{"_ipp._tcp", "_printer._tcp"}

// DiscoverNetwork browses mDNS for the configured service names and
// returns whatever responds within timeout. Partial failures (one
// service type failing to resolve) are tolerated. Result handling is
// rate-limited so a chatty subnet cannot flood the collector.
func DiscoverNetwork(ctx context.Context, timeout time.Duration) ([]DiscoveredPrinter, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("creating mdns resolver: %w", err)
	}

	browseCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	limiter := rate.NewLimiter(rate.Every(50*time.Millisecond), 4)

	var mu sync.Mutex
	var found []DiscoveredPrinter
	var wg sync.WaitGroup

	for _, service := range mdnsServiceNames {
		// Each browse owns its entries channel: zeroconf closes the
		// channel when the context expires.
		entries := make(chan *zeroconf.ServiceEntry, 32)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for entry := range entries {
				if err := limiter.Wait(browseCtx); err != nil {
					continue
				}
				mu.Lock()
				found = append(found, entryToDiscovered(entry))
				mu.Unlock()
			}
		}()
		if err := resolver.Browse(browseCtx, service, "local.", entries); err != nil {
			// Tolerate a single service type failing to browse; the other
			// may still succeed. zeroconf has not taken ownership of the
			// channel on error, so release the collector ourselves.
			close(entries)
			continue
		}
	}

	<-browseCtx.Done()
	wg.Wait()

	return found, nil
}

func entryToDiscovered(entry *zeroconf.ServiceEntry) DiscoveredPrinter {
	d := DiscoveredPrinter{
		Type:  printerstore.TypeNetwork,
		Model: entry.Instance,
	}
	if len(entry.AddrIPv4) > 0 {
		d.IP = entry.AddrIPv4[0].String()
		d.Address = d.IP
	}
	d.Port = entry.Port
	for _, field := range entry.Text {
		lower := strings.ToLower(field)
		if strings.HasPrefix(lower, "ty=") {
			d.Manufacturer = field[3:]
		}
	}
	return d
}

// DiscoverBluetooth performs a Bluetooth inquiry for printer-class
// devices. RFCOMM device inquiry is platform-specific system API; this
// entry point keeps the contract uniform and returns no results rather
// than fabricating hardware.
func DiscoverBluetooth(ctx context.Context, timeout time.Duration) ([]DiscoveredPrinter, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nil, nil
}

// DiscoverUSB is the USB enumeration entry point. No platform
// enumeration is implemented, so it returns no results on every
// platform; this entry point keeps the discovery contract uniform.
func DiscoverUSB(ctx context.Context) ([]DiscoveredPrinter, error) {
	return nil, nil
}

// AddressProjection computes the address string discovered printers are
// compared against: ip for network, MAC for Bluetooth,
// "vendorId:productId" for USB.
func AddressProjection(cfg printerstore.PrinterConfig) string {
	switch cfg.ConnectionDetails.Tag {
	case printerstore.TypeNetwork, printerstore.TypeWifi:
		return cfg.ConnectionDetails.IP
	case printerstore.TypeBluetooth:
		return cfg.ConnectionDetails.Address
	case printerstore.TypeUSB:
		return fmt.Sprintf("%s:%s", cfg.ConnectionDetails.VendorID, cfg.ConnectionDetails.ProductID)
	default:
		return ""
	}
}
