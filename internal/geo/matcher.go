package geo

import (
	"context"
	"strings"

	"github.com/stormsignal/weather-notify/internal/models"
	"github.com/stormsignal/weather-notify/internal/repository"
)

// Matcher decides which alerts concern which subscriptions, via the
// 5-digit area codes (state FIPS + county FIPS) in the reference data.
type Matcher struct {
	areas repository.AreaRepository
}

func NewMatcher(areas repository.AreaRepository) *Matcher {
	return &Matcher{areas: areas}
}

// ResolveAreaCode maps a subscription's (state, county) to its 5-digit
// area code. ok=false means no reference row exists; such a
// subscription matches nothing and is skipped, never errored.
func (m *Matcher) ResolveAreaCode(ctx context.Context, state, county string) (string, bool, error) {
	ref, ok, err := m.areas.ResolveArea(ctx, strings.TrimSpace(state), strings.TrimSpace(county))
	if err != nil || !ok {
		return "", false, err
	}
	return NormalizeAreaCode(ref.AreaCode), true, nil
}

// NormalizeAreaCode reduces a code to the canonical 5-digit form: the
// feed sometimes prefixes SAME codes with an extra pad digit, and
// reference data may drop a leading zero. Short codes are zero-padded,
// long ones keep their last five characters.
func NormalizeAreaCode(code string) string {
	code = strings.TrimSpace(code)
	if len(code) > 5 {
		return code[len(code)-5:]
	}
	for len(code) < 5 {
		code = "0" + code
	}
	return code
}

// Matches reports whether the alert covers the given 5-digit area
// code. An alert with no geocodes matches nothing, and test alerts
// never match anyone regardless of area.
func Matches(alert *models.Alert, areaCode string) bool {
	if IsTestAlert(alert) {
		return false
	}
	if len(alert.Geocodes) == 0 {
		return false
	}

	want := NormalizeAreaCode(areaCode)
	for _, g := range alert.Geocodes {
		if NormalizeAreaCode(g) == want {
			return true
		}
	}
	return false
}

// IsTestAlert reports whether the alert's event text marks it as a
// test. Test alerts are excluded from matching entirely so they never
// reach real subscribers.
func IsTestAlert(alert *models.Alert) bool {
	return strings.Contains(strings.ToLower(alert.Event), "test")
}
