package keyschedule

// RFC 8446 §7.1 key-derivation labels, named after mint's crypto.go
// label* constants (ekr/mint, _examples/other_examples). The "tls13 "
// prefix is added by hkdfExpandLabel, not stored here.
const (
	labelDerived                      = "derived"
	labelClientHandshakeTrafficSecret = "c hs traffic"
	labelServerHandshakeTrafficSecret = "s hs traffic"
	labelClientApplicationTrafficSecret = "c ap traffic"
	labelServerApplicationTrafficSecret = "s ap traffic"
	labelResumptionSecret            = "res master"
	labelExternalBinder              = "ext binder"
	labelResumptionBinder            = "res binder"
	labelResumptionPSK               = "resumption"
)

// PSKType distinguishes the two binder contexts spec.md §4.3 names:
// external PSKs use the "ext binder" label, resumption tickets use
// "res binder".
type PSKType int

const (
	PSKExternal PSKType = iota
	PSKResumption
)

func (t PSKType) binderLabel() string {
	if t == PSKResumption {
		return labelResumptionBinder
	}
	return labelExternalBinder
}
