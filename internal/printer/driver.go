package printer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/meridianhq/visitdesk/internal/domain"
	"github.com/meridianhq/visitdesk/pkg/config"
	"github.com/meridianhq/visitdesk/pkg/logger"
)

// ErrNotConfigured means no printer driver is selected. The queue keeps
// accepting jobs; they stay pending until a printer comes up.
var ErrNotConfigured = errors.New("no printer configured")

// Driver is the contract with the physical badge printer. Errors are opaque
// strings as far as the print pipeline is concerned.
type Driver interface {
	PrintBadge(ctx context.Context, payload *domain.BadgePayload) error
	IsConnected() bool
	Test(ctx context.Context) error
}

func New(cfg config.PrinterConfig) (Driver, error) {
	switch cfg.Driver {
	case "dev":
		return NewDevDriver(), nil
	case "network":
		if cfg.Address == "" {
			return nil, errors.New("network printer requires PRINTER_ADDR")
		}
		return NewNetworkDriver(cfg.Address), nil
	case "":
		return nil, ErrNotConfigured
	default:
		return nil, fmt.Errorf("unknown printer driver %q", cfg.Driver)
	}
}

// DevDriver logs badges instead of printing them.
type DevDriver struct{}

func NewDevDriver() *DevDriver { return &DevDriver{} }

func (d *DevDriver) PrintBadge(ctx context.Context, payload *domain.BadgePayload) error {
	logger.InfoContext(ctx, "🖨️  [DEV PRINT] Visitor badge",
		"visit_id", payload.VisitID,
		"visitor", payload.VisitorName,
		"host", payload.HostName,
		"badge_number", payload.BadgeNumber,
		"valid_until", payload.ValidUntil.Format(time.RFC3339),
		"has_qr", len(payload.CodePNG) > 0,
	)
	return nil
}

func (d *DevDriver) IsConnected() bool { return true }

func (d *DevDriver) Test(ctx context.Context) error { return nil }

// NetworkDriver drives a thermal badge printer over TCP. The byte protocol
// is the printer's problem; we ship the text fields and the rendered QR and
// surface whatever error comes back.
type NetworkDriver struct {
	addr   string
	dialer net.Dialer
}

func NewNetworkDriver(addr string) *NetworkDriver {
	return &NetworkDriver{addr: addr}
}

func (d *NetworkDriver) PrintBadge(ctx context.Context, payload *domain.BadgePayload) error {
	conn, err := d.dialer.DialContext(ctx, "tcp", d.addr)
	if err != nil {
		return fmt.Errorf("printer unreachable: %w", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return err
		}
	}

	doc := fmt.Sprintf("BADGE\n%s\nVisiting: %s\n%s\nValid until: %s\n",
		payload.VisitorName, payload.HostName, payload.BadgeNumber,
		payload.ValidUntil.Format("Jan 2 15:04"))
	if _, err := conn.Write([]byte(doc)); err != nil {
		return fmt.Errorf("printer write failed: %w", err)
	}
	if len(payload.CodePNG) > 0 {
		if _, err := conn.Write(payload.CodePNG); err != nil {
			return fmt.Errorf("printer write failed: %w", err)
		}
	}

	// The printer acks with a single byte; anything else is a failure.
	ack := make([]byte, 1)
	if _, err := conn.Read(ack); err != nil {
		return fmt.Errorf("printer did not acknowledge: %w", err)
	}
	if ack[0] != 0x06 {
		return fmt.Errorf("printer rejected job (ack=0x%02x)", ack[0])
	}
	return nil
}

func (d *NetworkDriver) IsConnected() bool {
	conn, err := net.DialTimeout("tcp", d.addr, 2*time.Second)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

func (d *NetworkDriver) Test(ctx context.Context) error {
	conn, err := d.dialer.DialContext(ctx, "tcp", d.addr)
	if err != nil {
		return fmt.Errorf("printer unreachable: %w", err)
	}
	return conn.Close()
}
