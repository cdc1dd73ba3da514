package keyblob

import (
	"crypto/ecdsa"
	"encoding/xml"
	"math/big"
	"strings"
	"temporal-sa/crypto-provider/cryptoerr"
)

const (
	XMLNamespace = "http://www.w3.org/2001/04/xmldsig-more#"

	urnP256 = "urn:oid:1.2.840.10045.3.1.7"
	urnP384 = "urn:oid:1.3.132.0.34"
	urnP521 = "urn:oid:1.3.132.0.35"

	ecdsaRoot = "ECDSAKeyValue"
	ecdhRoot  = "ECDHKeyValue"
)

type (
	xmlKeyValue struct {
		XMLName          xml.Name
		DomainParameters xmlDomainParameters `xml:"DomainParameters"`
		PublicKey        xmlPublicKey        `xml:"PublicKey"`
	}

	xmlDomainParameters struct {
		NamedCurve xmlNamedCurve `xml:"NamedCurve"`
	}

	xmlNamedCurve struct {
		URN string `xml:"URN,attr"`
	}

	xmlPublicKey struct {
		X xmlFieldElement `xml:"X"`
		Y xmlFieldElement `xml:"Y"`
	}

	xmlFieldElement struct {
		Value string `xml:"Value,attr"`
	}
)

// EncodeXML renders an EC public key as an RFC 4050 document. The root is
// ECDHKeyValue for ECDH algorithms and ECDSAKeyValue otherwise.
func EncodeXML(algorithm string, pub *ecdsa.PublicKey) (string, error) {
	c, err := checkCurve("keyblob.EncodeXML", algorithm, pub.Curve)
	if err != nil {
		return "", err
	}

	root := ecdsaRoot
	if c.agreement {
		root = ecdhRoot
	}
	doc := xmlKeyValue{
		XMLName:          xml.Name{Space: XMLNamespace, Local: root},
		DomainParameters: xmlDomainParameters{NamedCurve: xmlNamedCurve{URN: c.urn}},
		PublicKey: xmlPublicKey{
			X: xmlFieldElement{Value: pub.X.Text(10)},
			Y: xmlFieldElement{Value: pub.Y.Text(10)},
		},
	}

	out, err := xml.Marshal(doc)
	if err != nil {
		return "", cryptoerr.Wrap(cryptoerr.KindInvalidKeyBlobFormat, "keyblob.EncodeXML", err)
	}
	return string(out), nil
}

// DecodeXML parses an RFC 4050 document and returns the algorithm named by
// its root element and curve along with the public key.
func DecodeXML(document string) (string, *ecdsa.PublicKey, error) {
	const op = "keyblob.DecodeXML"
	var doc xmlKeyValue
	if err := xml.NewDecoder(strings.NewReader(document)).Decode(&doc); err != nil {
		return "", nil, cryptoerr.Wrap(cryptoerr.KindInvalidKeyBlobFormat, op, err)
	}

	var agreement bool
	switch doc.XMLName.Local {
	case ecdsaRoot:
	case ecdhRoot:
		agreement = true
	default:
		return "", nil, invalid(op, "unexpected root element %q", doc.XMLName.Local)
	}
	if doc.XMLName.Space != "" && doc.XMLName.Space != XMLNamespace {
		return "", nil, invalid(op, "unexpected namespace %q", doc.XMLName.Space)
	}

	var (
		c     ecCurve
		found bool
	)
	for _, candidate := range ecCurves {
		if candidate.urn == doc.DomainParameters.NamedCurve.URN && candidate.agreement == agreement {
			c, found = candidate, true
			break
		}
	}
	if !found {
		return "", nil, cryptoerr.New(cryptoerr.KindUnknownCurve, op, "unknown curve %q", doc.DomainParameters.NamedCurve.URN)
	}

	x, okX := new(big.Int).SetString(doc.PublicKey.X.Value, 10)
	y, okY := new(big.Int).SetString(doc.PublicKey.Y.Value, 10)
	if !okX || !okY || x.Sign() < 0 || y.Sign() < 0 {
		return "", nil, invalid(op, "public key coordinates are not decimal integers")
	}

	pub := &ecdsa.PublicKey{Curve: c.curve, X: x, Y: y}
	if _, err := pub.ECDH(); err != nil {
		return "", nil, cryptoerr.Wrap(cryptoerr.KindInvalidKeyBlobFormat, op, err)
	}
	return c.algorithm, pub, nil
}
