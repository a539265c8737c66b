package badge

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/meridianhq/visitdesk/internal/domain"
	"github.com/meridianhq/visitdesk/pkg/config"
)

// Issuer mints badge credentials at check-in. It is a pure function of the
// visit and a secure random source; nothing is persisted here.
type Issuer struct {
	defaultValidity time.Duration
	qrSize          int
}

func NewIssuer(cfg config.BadgeConfig) *Issuer {
	return &Issuer{
		defaultValidity: cfg.DefaultValidity,
		qrSize:          cfg.QRSize,
	}
}

// Issue generates a fresh credential for a visit. The badge number doubles
// as a bearer credential at checkout, so it is drawn from crypto/rand and
// never derived from the visit id or a counter.
func (i *Issuer) Issue(visit *domain.Visit, now time.Time) (*domain.BadgeCredential, error) {
	number, err := newBadgeNumber()
	if err != nil {
		return nil, fmt.Errorf("failed to generate badge number: %w", err)
	}

	validUntil := now.Add(i.defaultValidity)
	if visit.WindowEnd != nil && visit.WindowEnd.After(now) {
		validUntil = *visit.WindowEnd
	}

	return &domain.BadgeCredential{
		Number: number,
		// The scannable symbol encodes the badge number verbatim, so a
		// decoded scan matches the stored code and the stored number alike.
		Code:       number,
		ValidUntil: validUntil,
	}, nil
}

// RenderCode renders the credential code as a QR PNG. Callers treat a render
// failure as degraded, not fatal: the badge still prints with the number.
func (i *Issuer) RenderCode(code string) ([]byte, error) {
	png, err := qrcode.Encode(code, qrcode.Medium, i.qrSize)
	if err != nil {
		return nil, fmt.Errorf("failed to render badge code: %w", err)
	}
	return png, nil
}

func newBadgeNumber() (string, error) {
	buf := make([]byte, 3)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "VB-" + strings.ToUpper(hex.EncodeToString(buf)), nil
}

// NewPin generates a same-day self check-in PIN: six digits, secure random.
func NewPin() (string, error) {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	n := uint32(buf[0])<<24 | uint32(buf[1])<<16 | uint32(buf[2])<<8 | uint32(buf[3])
	return fmt.Sprintf("%06d", n%1000000), nil
}
