package telephony

import "strings"

// Info supplies the subscriber identity values substituted into carrier
// header macros. Implemented externally; transfers only read it.
type Info interface {
	// Line1Number returns the subscription's MSISDN, or "" if unknown.
	Line1Number(subID int) string
	// Line1NumberNoCountryCode returns the MSISDN with the country prefix
	// stripped, or "" if unknown.
	Line1NumberNoCountryCode(subID int) string
	// NAI returns the network access identifier, or "" if unknown.
	NAI(subID int) string
}

// StaticInfo is an Info backed by fixed per-subscription values, suitable
// for hosts without a radio stack and for tests.
type StaticInfo struct {
	Lines map[int]string
	NAIs  map[int]string
}

var _ Info = (*StaticInfo)(nil)

func (s *StaticInfo) Line1Number(subID int) string {
	return s.Lines[subID]
}

func (s *StaticInfo) Line1NumberNoCountryCode(subID int) string {
	line := s.Lines[subID]
	if strings.HasPrefix(line, "+") {
		// Without a numbering plan table only the leading "+" can go.
		return line[1:]
	}
	return line
}

func (s *StaticInfo) NAI(subID int) string {
	return s.NAIs[subID]
}
