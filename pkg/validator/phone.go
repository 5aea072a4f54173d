package validator

import (
	"errors"
	"regexp"
	"strings"
)

var (
	// ErrEmptyPhone indicates phone number is empty
	ErrEmptyPhone = errors.New("phone number cannot be empty")

	// ErrInvalidFormat indicates phone number contains invalid characters
	ErrInvalidFormat = errors.New("phone number can only contain digits and separators")

	// ErrInvalidLength indicates the number is not a plausible E.164 length
	ErrInvalidLength = errors.New("phone number must have 8 to 15 digits including country code")
)

// Region groups calling codes that share an SMS sender number
type Region string

const (
	RegionNorthAmerica Region = "north_america" // +1
	RegionUK           Region = "uk"            // +44
	RegionAustralia    Region = "australia"     // +61
	RegionNewZealand   Region = "new_zealand"   // +64
	RegionOther        Region = "other"
)

// IsValid reports whether r is a known region
func (r Region) IsValid() bool {
	switch r {
	case RegionNorthAmerica, RegionUK, RegionAustralia, RegionNewZealand, RegionOther:
		return true
	}
	return false
}

// regionPrefixes is checked in order; longer codes must not be shadowed by +1
var regionPrefixes = []struct {
	prefix string
	region Region
}{
	{"+44", RegionUK},
	{"+61", RegionAustralia},
	{"+64", RegionNewZealand},
	{"+1", RegionNorthAmerica},
}

// phoneRegex matches digits only
var phoneRegex = regexp.MustCompile(`^\d+$`)

// PhoneValidator normalizes phone numbers to E.164
type PhoneValidator struct {
	defaultCountryCode string // digits only, e.g. "1"
}

// NewPhoneValidator creates a validator that assumes defaultCountryCode for national numbers
func NewPhoneValidator(defaultCountryCode string) *PhoneValidator {
	return &PhoneValidator{defaultCountryCode: strings.TrimPrefix(defaultCountryCode, "+")}
}

// Sanitize removes separators, keeping a leading +
func (v *PhoneValidator) Sanitize(phone string) string {
	phone = strings.TrimSpace(phone)
	plus := strings.HasPrefix(phone, "+")

	replacer := strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", ".", "", "+", "")
	phone = replacer.Replace(phone)

	if plus {
		return "+" + phone
	}
	return phone
}

// NormalizeE164 converts a phone number to +<country><number>.
// Accepts +E.164, 00-prefixed international, and national numbers in the default country.
func (v *PhoneValidator) NormalizeE164(phone string) (string, error) {
	if strings.TrimSpace(phone) == "" {
		return "", ErrEmptyPhone
	}

	sanitized := v.Sanitize(phone)
	var digits string

	switch {
	case strings.HasPrefix(sanitized, "+"):
		digits = sanitized[1:]
	case strings.HasPrefix(sanitized, "00"):
		digits = sanitized[2:]
	case v.defaultCountryCode == "1" && len(sanitized) == 11 && strings.HasPrefix(sanitized, "1"):
		// North American number written with the trunk 1
		digits = sanitized
	default:
		// National format: drop the trunk 0 used by UK, AU and NZ
		digits = v.defaultCountryCode + strings.TrimPrefix(sanitized, "0")
	}

	if !phoneRegex.MatchString(digits) {
		return "", ErrInvalidFormat
	}
	if len(digits) < 8 || len(digits) > 15 {
		return "", ErrInvalidLength
	}

	return "+" + digits, nil
}

// IsValid is a convenience method that returns true if phone normalizes
func (v *PhoneValidator) IsValid(phone string) bool {
	_, err := v.NormalizeE164(phone)
	return err == nil
}

// RegionForE164 maps an E.164 number to its sender region
func RegionForE164(e164 string) Region {
	for _, rp := range regionPrefixes {
		if strings.HasPrefix(e164, rp.prefix) {
			return rp.region
		}
	}
	return RegionOther
}
