package transport

import (
	"fmt"
	"strings"
	"time"

	"github.com/gosnmp/gosnmp"
)

// Printer-MIB (RFC 3805) object identifiers.
const (
	oidHrPrinterStatus             = "1.3.6.1.2.1.25.3.5.1.1.1"
	oidHrPrinterDetectedErrorState = "1.3.6.1.2.1.25.3.5.1.2.1"
	oidPrtMarkerSuppliesLevel      = "1.3.6.1.2.1.43.11.1.1.9.1.1"
	oidPrtGeneralPrinterName       = "1.3.6.1.2.1.43.5.1.1.16.1"
)

// hrPrinterStatus values per the Printer-MIB enumeration.
const (
	hrPrinterStatusOther    = 1
	hrPrinterStatusUnknown  = 2
	hrPrinterStatusIdle     = 3
	hrPrinterStatusPrinting = 4
	hrPrinterStatusWarmup   = 5
)

// SNMPProbeResult is a decoded Printer-MIB snapshot.
type SNMPProbeResult struct {
	Raw           int
	StatusText    string
	DetectedError bool
	MarkerLevel   int
	Online        bool
	ErrorMessage  string
}

// SNMPProbe reads hrPrinterStatus and hrPrinterDetectedErrorState from a
// network printer's SNMP agent, feeding the same error-code inference
// path as transport-reported messages. Most thermal kitchen/receipt
// printers do not expose SNMP; this probe is opportunistic and callers
// should tolerate a timeout as "probe unavailable" rather than "printer
// down".
func SNMPProbe(host string, timeout time.Duration) (SNMPProbeResult, error) {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}

	params := &gosnmp.GoSNMP{
		Target:    host,
		Port:      161,
		Community: "public",
		Version:   gosnmp.Version2c,
		Timeout:   timeout,
		Retries:   1,
	}
	if err := params.Connect(); err != nil {
		return SNMPProbeResult{}, fmt.Errorf("connecting to snmp agent at %s: %w", host, err)
	}
	defer params.Conn.Close()

	result, err := params.Get([]string{oidHrPrinterStatus, oidHrPrinterDetectedErrorState, oidPrtMarkerSuppliesLevel})
	if err != nil {
		return SNMPProbeResult{}, fmt.Errorf("snmp get against %s: %w", host, err)
	}

	var probe SNMPProbeResult
	for _, variable := range result.Variables {
		switch variable.Name {
		case "." + oidHrPrinterStatus:
			probe.Raw = int(asInt(variable))
		case "." + oidHrPrinterDetectedErrorState:
			// An OCTET STRING bitmask: any set bit is a detected error.
			if bits, ok := variable.Value.([]byte); ok {
				for _, b := range bits {
					if b != 0 {
						probe.DetectedError = true
					}
				}
			} else {
				probe.DetectedError = asInt(variable) != 0
			}
		case "." + oidPrtMarkerSuppliesLevel:
			probe.MarkerLevel = int(asInt(variable))
		}
	}

	probe.Online = probe.Raw == hrPrinterStatusIdle || probe.Raw == hrPrinterStatusPrinting || probe.Raw == hrPrinterStatusWarmup
	probe.StatusText = describeRaw(probe.Raw)
	if probe.DetectedError {
		probe.ErrorMessage = fmt.Sprintf("printer reported a detected error state via snmp (status: %s)", probe.StatusText)
	}
	return probe, nil
}

func asInt(v gosnmp.SnmpPDU) int64 {
	switch val := v.Value.(type) {
	case int:
		return int64(val)
	case int64:
		return val
	case uint:
		return int64(val)
	case uint64:
		return int64(val)
	default:
		return 0
	}
}

// describeRaw renders the numeric hrPrinterStatus for diagnostics/logging.
func describeRaw(raw int) string {
	switch raw {
	case hrPrinterStatusOther:
		return "other"
	case hrPrinterStatusUnknown:
		return "unknown"
	case hrPrinterStatusIdle:
		return "idle"
	case hrPrinterStatusPrinting:
		return "printing"
	case hrPrinterStatusWarmup:
		return "warming up"
	default:
		return strings.TrimSpace(fmt.Sprintf("code %d", raw))
	}
}
