// Package extension implements the ClientHello extension writers, the
// ServerHello/HRR/EncryptedExtensions/CertificateRequest/NewSessionTicket
// extension parsers, and the per-message allow-masks that police which
// extension may appear where (spec.md §4.2-§4.3, §4.6-§4.7, §4.9, §9).
package extension

// Type is an RFC 8446 §4.2 extension type, restricted to the subset this
// core cares about (spec.md §6).
type Type uint16

const (
	ServerName             Type = 0
	SupportedGroups        Type = 10
	SignatureAlgorithms    Type = 13
	ALPN                   Type = 16
	Cookie                 Type = 44
	PSKKeyExchangeModes    Type = 45
	SupportedVersions      Type = 43
	KeyShare               Type = 51
	EarlyData              Type = 42
	PreSharedKey           Type = 41
	CertificateAuthorities Type = 47
)

// Mask is a bitmask of extension Types, keyed by bit position = Type
// value. Extension type numbers used by this core are all under 64, so a
// single uint64 suffices (spec.md §9: "Extension allow-masks replace the
// source's per-message switch tables").
type Mask uint64

func bit(t Type) Mask { return Mask(1) << Mask(t) }

// Has reports whether t's bit is set in m.
func (m Mask) Has(t Type) bool { return m&bit(t) != 0 }

// Set returns m with t's bit set.
func (m Mask) Set(t Type) Mask { return m | bit(t) }

// Allow-masks per spec.md §4.4-§4.7, §4.9. Only extensions enumerated
// here may legally appear in the corresponding message; ParseAll rejects
// any other extension, unknown or disallowed alike, with
// unsupported_extension.
var (
	AllowedServerHello = Mask(0).
				Set(SupportedVersions).
				Set(KeyShare).
				Set(PreSharedKey)

	AllowedHRR = Mask(0).
			Set(SupportedVersions).
			Set(KeyShare).
			Set(Cookie)

	AllowedEncryptedExtensions = Mask(0).
					Set(ALPN).
					Set(EarlyData).
					Set(ServerName)

	AllowedCertificateRequest = Mask(0).
					Set(SignatureAlgorithms).
					Set(CertificateAuthorities)

	AllowedNewSessionTicket = Mask(0).
				Set(EarlyData)
)
