package clave

import (
	"strings"
	"testing"
	"time"
)

func validParams() Params {
	return Params{
		IssuerTaxID:      "3101234567",
		DocumentTypeCode: "01",
		LocationCode:     "00101",
		SequenceNumber:   1,
		SituationCode:    "1",
		EmissionDate:     time.Date(2025, 11, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestGenerateProducesFiftyDigits(t *testing.T) {
	t.Parallel()

	g := New()
	key, err := g.Generate(validParams())
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if len(key) != KeyLength {
		t.Fatalf("key length = %d, want %d", len(key), KeyLength)
	}
	for i := 0; i < len(key); i++ {
		if key[i] < '0' || key[i] > '9' {
			t.Fatalf("key contains non-digit %q at index %d", key[i], i)
		}
	}
	if !Verify(key) {
		t.Fatalf("Verify(%s) = false, want true", key)
	}
}

func TestGenerateFieldLayout(t *testing.T) {
	t.Parallel()

	p := validParams()
	p.SecurityCode = "12345678"

	g := New()
	key, err := g.Generate(p)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	if got := key[0:3]; got != "506" {
		t.Errorf("country = %s, want 506", got)
	}
	if got := key[3:8]; got != "00101" {
		t.Errorf("location = %s, want 00101", got)
	}
	if got := key[8:14]; got != "011125" {
		t.Errorf("date = %s, want 011125", got)
	}
	if got := key[14:16]; got != "01" {
		t.Errorf("document type = %s, want 01", got)
	}
	if got := key[16:28]; got != "003101234567" {
		t.Errorf("issuer = %s, want 003101234567", got)
	}
	if got := key[28:31]; got != "001" {
		t.Errorf("terminal = %s, want 001", got)
	}
	if got := key[31:40]; got != "000000001" {
		t.Errorf("sequence = %s, want 000000001", got)
	}
	if got := key[40:41]; got != "1" {
		t.Errorf("situation = %s, want 1", got)
	}
	if got := key[41:49]; got != "12345678" {
		t.Errorf("security = %s, want 12345678", got)
	}
}

func TestGenerateKeepsLeadingLocationDigits(t *testing.T) {
	t.Parallel()

	p := validParams()
	p.LocationCode = "01010100"

	g := New()
	key, err := g.Generate(p)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if len(key) != KeyLength {
		t.Fatalf("key length = %d, want %d", len(key), KeyLength)
	}
	if got := key[3:8]; got != "01010" {
		t.Errorf("location = %s, want the leading 01010 of the full code", got)
	}
	if !Verify(key) {
		t.Fatalf("Verify(%s) = false, want true", key)
	}
}

func TestGenerateRejectsOversizedFields(t *testing.T) {
	t.Parallel()

	g := New()

	p := validParams()
	p.SequenceNumber = 1_000_000_000
	if _, err := g.Generate(p); err == nil {
		t.Fatal("expected error for sequence number exceeding 9 digits")
	}

	p = validParams()
	p.IssuerTaxID = "1234567890123"
	if _, err := g.Generate(p); err == nil {
		t.Fatal("expected error for issuer tax id exceeding 12 digits")
	}
}

func TestGenerateRejectsNonNumericFields(t *testing.T) {
	t.Parallel()

	g := New()
	p := validParams()
	p.DocumentTypeCode = "XX"
	if _, err := g.Generate(p); err == nil {
		t.Fatal("expected error for non-numeric document type code")
	}
}

func TestCheckDigit(t *testing.T) {
	t.Parallel()

	base := strings.Repeat("0", 48) + "1"
	// Rightmost digit (position 0 from the right) doubles: 1*2 = 2, so the
	// check digit is (10 - 2) % 10 = 8.
	if got := CheckDigit(base); got != "8" {
		t.Fatalf("CheckDigit = %s, want 8", got)
	}

	allZero := strings.Repeat("0", 49)
	if got := CheckDigit(allZero); got != "0" {
		t.Fatalf("CheckDigit(zeros) = %s, want 0", got)
	}
}

func TestCheckDigitRoundTrip(t *testing.T) {
	t.Parallel()

	g := New()
	for seq := int64(1); seq <= 50; seq++ {
		p := validParams()
		p.SequenceNumber = seq
		key, err := g.Generate(p)
		if err != nil {
			t.Fatalf("Generate(seq=%d) error = %v", seq, err)
		}
		if !Verify(key) {
			t.Fatalf("Verify failed for seq=%d key=%s", seq, key)
		}
	}
}

func TestVerifyRejectsMalformedKeys(t *testing.T) {
	t.Parallel()

	if Verify("123") {
		t.Error("Verify accepted a short key")
	}
	if Verify(strings.Repeat("a", 50)) {
		t.Error("Verify accepted a non-numeric key")
	}

	g := New()
	key, err := g.Generate(validParams())
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	// Flip the check digit.
	last := key[49]
	flipped := byte('0')
	if last == '0' {
		flipped = '1'
	}
	if Verify(key[:49] + string(flipped)) {
		t.Error("Verify accepted a key with a wrong check digit")
	}
}
