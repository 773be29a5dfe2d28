package pki

import (
	"crypto/x509/pkix"
)

// CertificateSubject describes the identity written into a generated certificate.
// It is only used while generating; loaded key material carries its own subject.
type CertificateSubject struct {
	CommonName         string
	Organization       string
	OrganizationalUnit string
	Locality           string
	State              string
	CountryCode        string

	// ApplicationURI is embedded as the URI subject alternative name. When empty
	// a URN is generated from the organization, common name and a random UUID.
	ApplicationURI string

	// DNSNames and IPAddresses are added to the SAN set in addition to the
	// hostnames resolved at generation time.
	DNSNames    []string
	IPAddresses []string
}

// DefaultSubject returns the subject used when no configuration overrides it.
func DefaultSubject() CertificateSubject {
	return CertificateSubject{
		CommonName:         "UA Bootstrap Server",
		Organization:       "wolfeidau",
		OrganizationalUnit: "dev",
		Locality:           "Melbourne",
		State:              "VIC",
		CountryCode:        "AU",
	}
}

// Name converts the subject fields to a pkix.Name, skipping empty attributes.
func (s CertificateSubject) Name() pkix.Name {
	name := pkix.Name{CommonName: s.CommonName}
	if s.Organization != "" {
		name.Organization = []string{s.Organization}
	}
	if s.OrganizationalUnit != "" {
		name.OrganizationalUnit = []string{s.OrganizationalUnit}
	}
	if s.Locality != "" {
		name.Locality = []string{s.Locality}
	}
	if s.State != "" {
		name.Province = []string{s.State}
	}
	if s.CountryCode != "" {
		name.Country = []string{s.CountryCode}
	}
	return name
}
