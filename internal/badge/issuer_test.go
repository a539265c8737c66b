package badge_test

import (
	"regexp"
	"testing"
	"time"

	"github.com/meridianhq/visitdesk/internal/badge"
	"github.com/meridianhq/visitdesk/internal/domain"
	"github.com/meridianhq/visitdesk/pkg/config"
)

func newIssuer() *badge.Issuer {
	return badge.NewIssuer(config.BadgeConfig{
		DefaultValidity: 24 * time.Hour,
		QRSize:          128,
	})
}

var badgeNumberRe = regexp.MustCompile(`^VB-[0-9A-F]{6}$`)

func TestIssueBadgeNumberFormat(t *testing.T) {
	issuer := newIssuer()
	now := time.Now()

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		cred, err := issuer.Issue(&domain.Visit{ID: 1}, now)
		if err != nil {
			t.Fatalf("Issue: %v", err)
		}
		if !badgeNumberRe.MatchString(cred.Number) {
			t.Fatalf("badge number %q does not match expected format", cred.Number)
		}
		if cred.Code != cred.Number {
			t.Errorf("code payload %q should encode the badge number %q verbatim", cred.Code, cred.Number)
		}
		if seen[cred.Number] {
			t.Fatalf("badge number %q issued twice in 50 draws", cred.Number)
		}
		seen[cred.Number] = true
	}
}

func TestIssueValidUntil(t *testing.T) {
	issuer := newIssuer()
	now := time.Now()

	t.Run("defaults to 24h without a window end", func(t *testing.T) {
		cred, err := issuer.Issue(&domain.Visit{ID: 1}, now)
		if err != nil {
			t.Fatalf("Issue: %v", err)
		}
		if !cred.ValidUntil.Equal(now.Add(24 * time.Hour)) {
			t.Errorf("ValidUntil = %v, want now+24h", cred.ValidUntil)
		}
	})

	t.Run("uses a future window end", func(t *testing.T) {
		end := now.Add(2 * time.Hour)
		cred, err := issuer.Issue(&domain.Visit{ID: 1, WindowEnd: &end}, now)
		if err != nil {
			t.Fatalf("Issue: %v", err)
		}
		if !cred.ValidUntil.Equal(end) {
			t.Errorf("ValidUntil = %v, want window end %v", cred.ValidUntil, end)
		}
	})

	t.Run("ignores a past window end", func(t *testing.T) {
		end := now.Add(-time.Hour)
		cred, err := issuer.Issue(&domain.Visit{ID: 1, WindowEnd: &end}, now)
		if err != nil {
			t.Fatalf("Issue: %v", err)
		}
		if !cred.ValidUntil.Equal(now.Add(24 * time.Hour)) {
			t.Errorf("ValidUntil = %v, want now+24h fallback", cred.ValidUntil)
		}
	})
}

func TestRenderCode(t *testing.T) {
	issuer := newIssuer()
	png, err := issuer.RenderCode("VB-0A1B2C")
	if err != nil {
		t.Fatalf("RenderCode: %v", err)
	}
	if len(png) == 0 {
		t.Fatal("RenderCode returned empty image")
	}
	// PNG magic bytes
	if string(png[1:4]) != "PNG" {
		t.Errorf("rendered code is not a PNG")
	}
}

func TestNewPin(t *testing.T) {
	pinRe := regexp.MustCompile(`^\d{6}$`)
	for i := 0; i < 20; i++ {
		pin, err := badge.NewPin()
		if err != nil {
			t.Fatalf("NewPin: %v", err)
		}
		if !pinRe.MatchString(pin) {
			t.Fatalf("pin %q is not six digits", pin)
		}
	}
}
