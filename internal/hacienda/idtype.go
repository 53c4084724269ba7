package hacienda

import "strings"

// Identification type codes mandated by the receiving endpoint.
const (
	IDTypeCedulaFisica   = "01"
	IDTypeCedulaJuridica = "02"
	IDTypeDIMEX          = "03"
	IDTypeNITE           = "04"
	IDTypeExtranjero     = "05"
)

// IDType infers the identification type from the number format. Cédula física
// is 9 digits, jurídica 10 starting with 3, NITE the other 10-digit numbers,
// DIMEX 11-12, everything else foreign.
func IDType(identification string) string {
	clean := CleanID(identification)
	if clean == "" {
		return IDTypeExtranjero
	}

	switch len(clean) {
	case 9:
		return IDTypeCedulaFisica
	case 10:
		if strings.HasPrefix(clean, "3") {
			return IDTypeCedulaJuridica
		}
		return IDTypeNITE
	case 11, 12:
		return IDTypeDIMEX
	default:
		return IDTypeExtranjero
	}
}

// CleanID strips dashes and spaces from an identification number.
func CleanID(identification string) string {
	clean := strings.ReplaceAll(identification, "-", "")
	return strings.ReplaceAll(clean, " ", "")
}
