package domain

// NIP11 is a relay's self-declared metadata document. A nil *NIP11 on
// RelayMetadata means the block was absent (probe failed or every field
// was null).
type NIP11 struct {
	Name              string
	Description       string
	Banner            string
	Icon              string
	Pubkey            string
	Contact           string
	SupportedNIPs     []interface{} // ints or strings, per spec
	Software          string
	Version           string
	PrivacyPolicy     string
	TermsOfService    string
	Limitation        map[string]interface{}
	ExtraFields       map[string]interface{}
}

// Absent reports whether every field of the block is at its zero value,
// in which case the caller should treat the whole block as not present.
func (n *NIP11) Absent() bool {
	if n == nil {
		return true
	}
	return n.Name == "" && n.Description == "" && n.Banner == "" &&
		n.Icon == "" && n.Pubkey == "" && n.Contact == "" &&
		len(n.SupportedNIPs) == 0 && n.Software == "" && n.Version == "" &&
		n.PrivacyPolicy == "" && n.TermsOfService == "" &&
		len(n.Limitation) == 0 && len(n.ExtraFields) == 0
}

// NIP66 is the measured connectivity snapshot of a relay.
type NIP66 struct {
	Openable bool
	Readable bool
	Writable bool
	RTTOpen  int64 // milliseconds
	RTTRead  int64
	RTTWrite int64
}

// RelayMetadata is one point-in-time probe result for a relay. Either block
// may be nil to mean "absent"; the corresponding success flag is then false.
type RelayMetadata struct {
	Relay       Relay
	GeneratedAt int64
	NIP11       *NIP11
	NIP66       *NIP66
}
