package hacienda

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/facturacr/einvoice-engine/internal/domain"
)

// maxRawErrorLength bounds error text extracted from unparseable bodies.
const maxRawErrorLength = 500

// Provider status strings as returned in ind-estado.
const (
	statusAceptado   = "aceptado"
	statusRechazado  = "rechazado"
	statusProcesando = "procesando"
	statusRecibido   = "recibido"
)

// Response is the normalized result of a submission or status exchange.
type Response struct {
	Clave     string
	RawStatus string
	// Status is empty when the provider returned a status outside the known set.
	Status domain.CanonicalStatus

	// ResponseXML is the respuesta-xml value as received. When it decoded as
	// base64, DecodedXML holds the plaintext; otherwise DecodedXML is empty
	// and ResponseXML is preserved untouched.
	ResponseXML string
	DecodedXML  string

	// Detail carries detalle-mensaje when the provider included one.
	Detail string

	Raw string
}

// Message returns the best human-readable response text available.
func (r *Response) Message() string {
	if r == nil {
		return ""
	}
	if r.Detail != "" {
		return r.Detail
	}
	if r.DecodedXML != "" {
		return r.DecodedXML
	}
	return r.ResponseXML
}

type wireResponse struct {
	Clave        string `json:"clave"`
	IndEstado    string `json:"ind-estado"`
	RespuestaXML string `json:"respuesta-xml"`
	Detalle      string `json:"detalle-mensaje"`
}

// ParseResponse normalizes a successful provider body. A body that is not
// valid JSON is an error; the caller decides how to surface it.
func ParseResponse(body []byte) (*Response, error) {
	var wire wireResponse
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("unparseable provider response: %w", err)
	}

	resp := &Response{
		Clave:       wire.Clave,
		RawStatus:   strings.ToLower(strings.TrimSpace(wire.IndEstado)),
		ResponseXML: wire.RespuestaXML,
		Detail:      wire.Detalle,
		Raw:         string(body),
	}

	resp.Status = canonicalStatus(resp.RawStatus)

	// Opportunistic base64 decode; failure is non-fatal and keeps the raw value.
	if wire.RespuestaXML != "" {
		if decoded, err := base64.StdEncoding.DecodeString(wire.RespuestaXML); err == nil {
			resp.DecodedXML = string(decoded)
		}
	}

	return resp, nil
}

func canonicalStatus(raw string) domain.CanonicalStatus {
	switch raw {
	case statusAceptado:
		return domain.CanonicalAccepted
	case statusRechazado:
		return domain.CanonicalRejected
	case statusProcesando, statusRecibido:
		return domain.CanonicalProcessing
	default:
		return ""
	}
}

// errorFieldNames is the ordered list of keys probed for a human-readable
// error message. The provider is not consistent about which one it uses.
var errorFieldNames = []string{
	"message",
	"error",
	"mensaje",
	"detalle-mensaje",
	"descripcion",
	"errorMessage",
}

// ExtractErrorMessage pulls a single human-readable error string out of an
// arbitrarily-shaped error payload.
func ExtractErrorMessage(body []byte, statusCode int) string {
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		text := strings.TrimSpace(string(body))
		if text == "" {
			return fmt.Sprintf("HTTP %d", statusCode)
		}
		if len(text) > maxRawErrorLength {
			text = text[:maxRawErrorLength]
		}
		return text
	}

	for _, field := range errorFieldNames {
		if v, ok := payload[field]; ok {
			if s := stringifyValue(v); s != "" {
				return s
			}
		}
	}

	if list, ok := payload["errors"].([]any); ok && len(list) > 0 {
		parts := make([]string, 0, len(list))
		for _, item := range list {
			parts = append(parts, stringifyValue(item))
		}
		return strings.Join(parts, "; ")
	}

	return fmt.Sprintf("%v", payload)
}

func stringifyValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}
