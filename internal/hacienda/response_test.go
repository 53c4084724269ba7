package hacienda

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/facturacr/einvoice-engine/internal/domain"
)

func TestParseResponseStatusMapping(t *testing.T) {
	t.Parallel()

	cases := []struct {
		raw  string
		want domain.CanonicalStatus
	}{
		{"aceptado", domain.CanonicalAccepted},
		{"ACEPTADO", domain.CanonicalAccepted},
		{"rechazado", domain.CanonicalRejected},
		{"procesando", domain.CanonicalProcessing},
		{"recibido", domain.CanonicalProcessing},
		{"desconocido", ""},
	}

	for _, tc := range cases {
		resp, err := ParseResponse([]byte(`{"ind-estado":"` + tc.raw + `"}`))
		if err != nil {
			t.Fatalf("ParseResponse(%s) error = %v", tc.raw, err)
		}
		if resp.Status != tc.want {
			t.Errorf("Status for %q = %q, want %q", tc.raw, resp.Status, tc.want)
		}
	}
}

func TestParseResponseDecodesBase64(t *testing.T) {
	t.Parallel()

	encoded := base64.StdEncoding.EncodeToString([]byte("<Mensaje>detalle</Mensaje>"))
	resp, err := ParseResponse([]byte(`{"ind-estado":"rechazado","respuesta-xml":"` + encoded + `"}`))
	if err != nil {
		t.Fatalf("ParseResponse() error = %v", err)
	}
	if resp.DecodedXML != "<Mensaje>detalle</Mensaje>" {
		t.Fatalf("DecodedXML = %q", resp.DecodedXML)
	}
	if resp.ResponseXML != encoded {
		t.Fatal("raw respuesta-xml must be preserved alongside the decode")
	}
}

func TestParseResponseKeepsRawOnDecodeFailure(t *testing.T) {
	t.Parallel()

	resp, err := ParseResponse([]byte(`{"ind-estado":"rechazado","respuesta-xml":"not base64!!"}`))
	if err != nil {
		t.Fatalf("ParseResponse() error = %v", err)
	}
	if resp.DecodedXML != "" {
		t.Fatalf("DecodedXML = %q, want empty on failed decode", resp.DecodedXML)
	}
	if resp.ResponseXML != "not base64!!" {
		t.Fatalf("ResponseXML = %q, raw value must survive", resp.ResponseXML)
	}
}

func TestParseResponseRejectsNonJSON(t *testing.T) {
	t.Parallel()

	if _, err := ParseResponse([]byte("<html>gateway error</html>")); err == nil {
		t.Fatal("expected error for non-JSON body")
	}
}

func TestResponseMessagePreference(t *testing.T) {
	t.Parallel()

	r := &Response{Detail: "detalle", DecodedXML: "decoded", ResponseXML: "raw"}
	if got := r.Message(); got != "detalle" {
		t.Fatalf("Message() = %q, want detalle", got)
	}
	r.Detail = ""
	if got := r.Message(); got != "decoded" {
		t.Fatalf("Message() = %q, want decoded", got)
	}
	r.DecodedXML = ""
	if got := r.Message(); got != "raw" {
		t.Fatalf("Message() = %q, want raw", got)
	}
}

func TestExtractErrorMessageFieldOrder(t *testing.T) {
	t.Parallel()

	cases := []struct {
		body string
		want string
	}{
		{`{"message":"first","error":"second"}`, "first"},
		{`{"error":"segunda"}`, "segunda"},
		{`{"mensaje":"clave inválida"}`, "clave inválida"},
		{`{"detalle-mensaje":"detalle"}`, "detalle"},
		{`{"descripcion":"desc"}`, "desc"},
		{`{"errorMessage":"last probe"}`, "last probe"},
	}

	for _, tc := range cases {
		if got := ExtractErrorMessage([]byte(tc.body), 400); got != tc.want {
			t.Errorf("ExtractErrorMessage(%s) = %q, want %q", tc.body, got, tc.want)
		}
	}
}

func TestExtractErrorMessageJoinsErrorList(t *testing.T) {
	t.Parallel()

	got := ExtractErrorMessage([]byte(`{"errors":["uno","dos",3]}`), 400)
	if got != "uno; dos; 3" {
		t.Fatalf("ExtractErrorMessage = %q, want joined list", got)
	}
}

func TestExtractErrorMessageFallbacks(t *testing.T) {
	t.Parallel()

	// Unknown shape: stringified payload.
	got := ExtractErrorMessage([]byte(`{"weird":"shape"}`), 500)
	if !strings.Contains(got, "weird") {
		t.Fatalf("ExtractErrorMessage = %q, want stringified payload", got)
	}

	// Not JSON at all: raw text, truncated.
	long := strings.Repeat("x", 600)
	got = ExtractErrorMessage([]byte(long), 500)
	if len(got) != maxRawErrorLength {
		t.Fatalf("len = %d, want %d", len(got), maxRawErrorLength)
	}

	// Empty body: HTTP status string.
	if got := ExtractErrorMessage(nil, 503); got != "HTTP 503" {
		t.Fatalf("ExtractErrorMessage(empty) = %q, want HTTP 503", got)
	}
}

func TestIDType(t *testing.T) {
	t.Parallel()

	cases := []struct {
		id   string
		want string
	}{
		{"1-2345-6789", IDTypeCedulaFisica},
		{"3101234567", IDTypeCedulaJuridica},
		{"4000123456", IDTypeNITE},
		{"112340567890", IDTypeDIMEX},
		{"11234056789", IDTypeDIMEX},
		{"AB123", IDTypeExtranjero},
		{"", IDTypeExtranjero},
	}

	for _, tc := range cases {
		if got := IDType(tc.id); got != tc.want {
			t.Errorf("IDType(%q) = %s, want %s", tc.id, got, tc.want)
		}
	}
}
