// Package xmlgen builds the schema-conformant XML body for the four
// electronic document layouts (FE, TE, NC, ND).
package xmlgen

import (
	"fmt"
	"strings"
	"time"

	"github.com/beevik/etree"

	"github.com/facturacr/einvoice-engine/internal/domain"
	"github.com/facturacr/einvoice-engine/internal/hacienda"
)

const (
	nsFE = "https://cdn.comprobanteselectronicos.go.cr/xml-schemas/v4.4/facturaElectronica"
	nsTE = "https://cdn.comprobanteselectronicos.go.cr/xml-schemas/v4.4/tiqueteElectronico"
	nsNC = "https://cdn.comprobanteselectronicos.go.cr/xml-schemas/v4.4/notaCreditoElectronica"
	nsND = "https://cdn.comprobanteselectronicos.go.cr/xml-schemas/v4.4/notaDebitoElectronica"
	nsDS = "http://www.w3.org/2000/09/xmldsig#"

	defaultActivityCode = "861201"
)

type rootLayout struct {
	namespace string
	element   string
}

var layouts = map[domain.DocumentType]rootLayout{
	domain.DocTypeInvoice:    {nsFE, "FacturaElectronica"},
	domain.DocTypeTicket:     {nsTE, "TiqueteElectronico"},
	domain.DocTypeCreditNote: {nsNC, "NotaCreditoElectronica"},
	domain.DocTypeDebitNote:  {nsND, "NotaDebitoElectronica"},
}

// Party describes the emisor or receptor of a document.
type Party struct {
	Name           string
	Identification string
	Email          string
}

// Request carries everything the builder needs for one body.
type Request struct {
	Document *domain.Document
	Issuer   Party
	Receiver Party
	// ActivityCode is the issuer's economic activity code, zero-padded to six
	// digits; a default is used when empty.
	ActivityCode string
	// ReferencedClave links NC/ND documents to the document they amend.
	ReferencedClave string
}

// Builder produces unsigned document bodies.
type Builder struct {
	now func() time.Time
}

func NewBuilder() *Builder {
	return &Builder{now: time.Now}
}

// BuildBody renders the XML body for the document's layout. The document must
// already carry its clave and consecutive number.
func (b *Builder) BuildBody(req Request) (string, error) {
	doc := req.Document
	if doc == nil {
		return "", fmt.Errorf("%w: document is required", domain.ErrValidation)
	}
	layout, ok := layouts[doc.DocumentType]
	if !ok {
		return "", fmt.Errorf("%w: unknown document type %q", domain.ErrValidation, doc.DocumentType)
	}
	if len(doc.Clave) != 50 {
		return "", fmt.Errorf("%w: document has no generated clave", domain.ErrValidation)
	}
	if doc.DocumentType == domain.DocTypeInvoice && strings.TrimSpace(req.Receiver.Identification) == "" {
		return "", fmt.Errorf("%w: FE layout requires a receptor identification", domain.ErrValidation)
	}
	if (doc.DocumentType == domain.DocTypeCreditNote || doc.DocumentType == domain.DocTypeDebitNote) &&
		len(req.ReferencedClave) != 50 {
		return "", fmt.Errorf("%w: %s layout requires the referenced document clave", domain.ErrValidation, doc.DocumentType)
	}

	tree := etree.NewDocument()
	tree.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	root := tree.CreateElement(layout.element)
	root.CreateAttr("xmlns", layout.namespace)
	root.CreateAttr("xmlns:ds", nsDS)

	root.CreateElement("Clave").SetText(doc.Clave)
	root.CreateElement("ProveedorSistemas").SetText(hacienda.CleanID(req.Issuer.Identification))

	activity := strings.TrimSpace(req.ActivityCode)
	if activity == "" {
		activity = defaultActivityCode
	}
	root.CreateElement("CodigoActividadEmisor").SetText(padLeft(activity, 6))

	root.CreateElement("NumeroConsecutivo").SetText(doc.ConsecutiveNumber)

	issuedAt := doc.IssuedAt
	if issuedAt.IsZero() {
		issuedAt = b.now()
	}
	root.CreateElement("FechaEmision").SetText(issuedAt.Format("2006-01-02T15:04:05-07:00"))

	addParty(root, "Emisor", req.Issuer)

	// TE documents may be anonymous; the other layouts carry the receptor
	// whenever one is known.
	if strings.TrimSpace(req.Receiver.Identification) != "" {
		addParty(root, "Receptor", req.Receiver)
	}

	root.CreateElement("CondicionVenta").SetText("01") // contado

	if req.ReferencedClave != "" {
		ref := root.CreateElement("InformacionReferencia")
		ref.CreateElement("TipoDocIR").SetText(domain.DocTypeInvoice.Code())
		ref.CreateElement("Numero").SetText(req.ReferencedClave)
		ref.CreateElement("FechaEmisionIR").SetText(issuedAt.Format("2006-01-02T15:04:05-07:00"))
		ref.CreateElement("Codigo").SetText("01")
		ref.CreateElement("Razon").SetText("Referencia al documento original")
	}

	tree.Indent(2)
	out, err := tree.WriteToString()
	if err != nil {
		return "", fmt.Errorf("failed to serialize %s body: %w", layout.element, err)
	}
	return out, nil
}

func addParty(root *etree.Element, tag string, p Party) {
	el := root.CreateElement(tag)
	if name := strings.TrimSpace(p.Name); name != "" {
		el.CreateElement("Nombre").SetText(name)
	}

	clean := hacienda.CleanID(p.Identification)
	ident := el.CreateElement("Identificacion")
	ident.CreateElement("Tipo").SetText(hacienda.IDType(clean))
	ident.CreateElement("Numero").SetText(clean)

	if email := strings.TrimSpace(p.Email); email != "" {
		el.CreateElement("CorreoElectronico").SetText(email)
	}
}

func padLeft(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return strings.Repeat("0", width-len(s)) + s
}
