// Package clave builds the 50-digit unique key (clave) assigned to every
// electronic document. The key concatenates fixed-width numeric fields and
// ends with a module-10 check digit.
package clave

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/facturacr/einvoice-engine/internal/domain"
)

// Field widths, in digits. The assembled key is 49 digits plus one check digit.
const (
	countryWidth   = 3
	locationWidth  = 5
	dateWidth      = 6
	docTypeWidth   = 2
	issuerWidth    = 12
	terminalWidth  = 3
	sequenceWidth  = 9
	situationWidth = 1
	securityWidth  = 8

	// KeyLength is the total clave length including the check digit.
	KeyLength = 50
)

const (
	defaultCountryCode = "506"
	defaultTerminal    = "001"
	defaultSituation   = "1"

	maxSequence = 999999999 // widest value that fits sequenceWidth
)

// Params carries the inputs for one key generation.
type Params struct {
	IssuerTaxID      string
	DocumentTypeCode string
	LocationCode     string
	SequenceNumber   int64
	SituationCode    string
	EmissionDate     time.Time

	// TerminalCode defaults to "001" when empty.
	TerminalCode string
	// SecurityCode must be 8 digits; generated from the entropy source when empty.
	SecurityCode string
}

// Generator assembles claves. The zero value is not usable; call New.
type Generator struct {
	countryCode string
	randIntn    func(n int) int
}

func New() *Generator {
	return &Generator{
		countryCode: defaultCountryCode,
		randIntn:    rand.New(rand.NewSource(time.Now().UnixNano())).Intn,
	}
}

// Generate returns a 50-digit clave or a validation error. Fields that exceed
// their fixed width fail, except the location code: longer administrative
// codes keep their leading provincia-canton-distrito digits.
func (g *Generator) Generate(p Params) (string, error) {
	issuer := digitsOnly(p.IssuerTaxID)
	if issuer == "" {
		return "", fmt.Errorf("%w: issuer tax id is required", domain.ErrValidation)
	}

	location := p.LocationCode
	if isDigits(location) && len(location) > locationWidth {
		location = location[:locationWidth]
	}

	terminal := p.TerminalCode
	if terminal == "" {
		terminal = defaultTerminal
	}
	situation := p.SituationCode
	if situation == "" {
		situation = defaultSituation
	}
	security := p.SecurityCode
	if security == "" {
		security = g.securityCode()
	}

	if p.SequenceNumber <= 0 || p.SequenceNumber > maxSequence {
		return "", fmt.Errorf("%w: sequence number %d out of range [1, %d]",
			domain.ErrValidation, p.SequenceNumber, maxSequence)
	}
	if p.EmissionDate.IsZero() {
		return "", fmt.Errorf("%w: emission date is required", domain.ErrValidation)
	}

	fields := []struct {
		name  string
		value string
		width int
	}{
		{"country code", g.countryCode, countryWidth},
		{"location code", location, locationWidth},
		{"emission date", p.EmissionDate.Format("020106"), dateWidth},
		{"document type code", p.DocumentTypeCode, docTypeWidth},
		{"issuer tax id", issuer, issuerWidth},
		{"terminal code", terminal, terminalWidth},
		{"sequence number", fmt.Sprintf("%d", p.SequenceNumber), sequenceWidth},
		{"situation code", situation, situationWidth},
		{"security code", security, securityWidth},
	}

	var b strings.Builder
	b.Grow(KeyLength)
	for _, f := range fields {
		padded, err := padField(f.name, f.value, f.width)
		if err != nil {
			return "", err
		}
		b.WriteString(padded)
	}

	base := b.String()
	if len(base) != KeyLength-1 {
		return "", fmt.Errorf("%w: assembled key is %d digits, expected %d",
			domain.ErrValidation, len(base), KeyLength-1)
	}

	key := base + CheckDigit(base)
	if len(key) != KeyLength {
		return "", fmt.Errorf("%w: generated key is %d digits, expected %d",
			domain.ErrValidation, len(key), KeyLength)
	}
	return key, nil
}

// CheckDigit computes the module-10 check digit over the given digits,
// processed right to left: every digit at an even zero-based position from the
// right is doubled, values above 9 are reduced by 9, and all digits are summed.
func CheckDigit(digits string) string {
	total := 0
	for i := 0; i < len(digits); i++ {
		n := int(digits[len(digits)-1-i] - '0')
		if i%2 == 0 {
			n *= 2
			if n > 9 {
				n -= 9
			}
		}
		total += n
	}
	return string(rune('0' + (10-total%10)%10))
}

// Verify reports whether a 50-digit clave's final digit matches the check
// digit recomputed from the first 49 digits.
func Verify(key string) bool {
	if len(key) != KeyLength || !isDigits(key) {
		return false
	}
	return CheckDigit(key[:KeyLength-1]) == key[KeyLength-1:]
}

func (g *Generator) securityCode() string {
	// 8 digits of entropy; the leading digit is never zero so the width is stable.
	return fmt.Sprintf("%08d", 10000000+g.randIntn(90000000))
}

func padField(name, value string, width int) (string, error) {
	if !isDigits(value) {
		return "", fmt.Errorf("%w: %s %q must be numeric", domain.ErrValidation, name, value)
	}
	if len(value) > width {
		return "", fmt.Errorf("%w: %s %q exceeds %d digits", domain.ErrValidation, name, value, width)
	}
	return strings.Repeat("0", width-len(value)) + value, nil
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
