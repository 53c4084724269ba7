// Package signer produces enveloped XML digital signatures over unsigned
// document bodies using the issuer's resolved credential.
package signer

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"github.com/beevik/etree"
	"github.com/google/uuid"

	"github.com/facturacr/einvoice-engine/internal/certs"
)

const (
	dsNamespace = "http://www.w3.org/2000/09/xmldsig#"

	canonicalizationMethod = "http://www.w3.org/2001/10/xml-exc-c14n#"
	signatureMethod        = "http://www.w3.org/2001/04/xmldsig-more#rsa-sha256"
	digestMethod           = "http://www.w3.org/2001/04/xmlenc#sha256"
	envelopedTransform     = "http://www.w3.org/2000/09/xmldsig#enveloped-signature"
)

// Signer appends a ds:Signature element to document bodies. The signature
// covers the whole document with the signature element itself excluded.
type Signer struct {
	handle *certs.Handle
}

func NewSigner(handle *certs.Handle) (*Signer, error) {
	if handle == nil {
		return nil, fmt.Errorf("credential handle is required")
	}
	if handle.Certificate == nil {
		return nil, fmt.Errorf("credential handle has no certificate")
	}
	if handle.PrivateKey == nil {
		return nil, fmt.Errorf("credential handle has no private key")
	}

	return &Signer{handle: handle}, nil
}

// Sign parses the unsigned body, computes its digest, signs the resulting
// SignedInfo and returns the body with the signature element appended to the
// document root.
func (s *Signer) Sign(unsignedBody string) (string, error) {
	if unsignedBody == "" {
		return "", fmt.Errorf("unsigned body is empty")
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromString(unsignedBody); err != nil {
		return "", fmt.Errorf("failed to parse document body: %w", err)
	}
	root := doc.Root()
	if root == nil {
		return "", fmt.Errorf("document body has no root element")
	}

	bodyBytes, err := doc.WriteToBytes()
	if err != nil {
		return "", fmt.Errorf("failed to serialize document body: %w", err)
	}
	bodyDigest := sha256.Sum256(bodyBytes)

	signedInfo := s.buildSignedInfo(base64.StdEncoding.EncodeToString(bodyDigest[:]))

	signedInfoDoc := etree.NewDocument()
	signedInfoDoc.SetRoot(signedInfo.Copy())
	signedInfoBytes, err := signedInfoDoc.WriteToBytes()
	if err != nil {
		return "", fmt.Errorf("failed to serialize SignedInfo: %w", err)
	}

	signedInfoDigest := sha256.Sum256(signedInfoBytes)
	signatureValue, err := rsa.SignPKCS1v15(rand.Reader, s.handle.PrivateKey, crypto.SHA256, signedInfoDigest[:])
	if err != nil {
		return "", fmt.Errorf("failed to sign document: %w", err)
	}

	signature := root.CreateElement("ds:Signature")
	signature.CreateAttr("xmlns:ds", dsNamespace)
	signature.CreateAttr("Id", "Signature-"+uuid.NewString())
	signature.AddChild(signedInfo)
	signature.CreateElement("ds:SignatureValue").SetText(base64.StdEncoding.EncodeToString(signatureValue))

	keyInfo := signature.CreateElement("ds:KeyInfo")
	x509Data := keyInfo.CreateElement("ds:X509Data")
	x509Data.CreateElement("ds:X509Certificate").SetText(base64.StdEncoding.EncodeToString(s.handle.Certificate.Raw))

	doc.Indent(2)
	signed, err := doc.WriteToString()
	if err != nil {
		return "", fmt.Errorf("failed to serialize signed document: %w", err)
	}

	return signed, nil
}

func (s *Signer) buildSignedInfo(digestValue string) *etree.Element {
	signedInfo := etree.NewElement("ds:SignedInfo")
	signedInfo.CreateAttr("xmlns:ds", dsNamespace)

	signedInfo.CreateElement("ds:CanonicalizationMethod").CreateAttr("Algorithm", canonicalizationMethod)
	signedInfo.CreateElement("ds:SignatureMethod").CreateAttr("Algorithm", signatureMethod)

	reference := signedInfo.CreateElement("ds:Reference")
	reference.CreateAttr("URI", "")

	transforms := reference.CreateElement("ds:Transforms")
	transforms.CreateElement("ds:Transform").CreateAttr("Algorithm", envelopedTransform)
	transforms.CreateElement("ds:Transform").CreateAttr("Algorithm", canonicalizationMethod)

	reference.CreateElement("ds:DigestMethod").CreateAttr("Algorithm", digestMethod)
	reference.CreateElement("ds:DigestValue").SetText(digestValue)

	return signedInfo
}
