package enum

// Blacklist is the closed set of DNSBLs probed during an assessment.
type Blacklist string

const (
	BlacklistSpamhaus  Blacklist = "spamhaus"
	BlacklistSpamcop   Blacklist = "spamcop"
	BlacklistBarracuda Blacklist = "barracuda"
	BlacklistSorbs     Blacklist = "sorbs"
)

func (b Blacklist) String() string {
	return string(b)
}

// Zone returns the DNS zone queried for the reversed IP.
func (b Blacklist) Zone() string {
	switch b {
	case BlacklistSpamhaus:
		return "zen.spamhaus.org"
	case BlacklistSpamcop:
		return "bl.spamcop.net"
	case BlacklistBarracuda:
		return "b.barracudacentral.org"
	case BlacklistSorbs:
		return "dnsbl.sorbs.net"
	default:
		return ""
	}
}

func Blacklists() []Blacklist {
	return []Blacklist{BlacklistSpamhaus, BlacklistSpamcop, BlacklistBarracuda, BlacklistSorbs}
}

// BlacklistStatus is the tri-state outcome of a single DNSBL probe.
// UNREACHABLE is never equivalent to NOT_LISTED.
type BlacklistStatus string

const (
	BlacklistConfirmed   BlacklistStatus = "CONFIRMED"
	BlacklistNotListed   BlacklistStatus = "NOT_LISTED"
	BlacklistUnreachable BlacklistStatus = "UNREACHABLE"
)

func (s BlacklistStatus) String() string {
	return string(s)
}
