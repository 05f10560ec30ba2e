package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// NormalizeMAC parses a 6-octet hardware address written with ':' or '-'
// separators and returns it in lower-case colon form. Octets may be written
// without a leading zero ("a:b:c:d:e:f" as printed by BSD arp).
// The all-zero address (an incomplete neighbor entry) and the broadcast
// address are rejected.
func NormalizeMAC(s string) (string, error) {
	s = strings.TrimSpace(s)
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == ':' || r == '-' })
	if len(parts) != 6 || strings.Count(s, ":")+strings.Count(s, "-") != 5 {
		return "", fmt.Errorf("invalid MAC %q: want 6 octets", s)
	}

	octets := make([]string, 6)
	var zero, bcast = true, true
	for i, p := range parts {
		if len(p) == 0 || len(p) > 2 {
			return "", fmt.Errorf("invalid MAC %q: bad octet %q", s, p)
		}
		v, err := strconv.ParseUint(p, 16, 8)
		if err != nil {
			return "", fmt.Errorf("invalid MAC %q: bad octet %q", s, p)
		}
		if v != 0 {
			zero = false
		}
		if v != 0xff {
			bcast = false
		}
		octets[i] = fmt.Sprintf("%02x", v)
	}

	if zero {
		return "", fmt.Errorf("invalid MAC %q: incomplete entry", s)
	}
	if bcast {
		return "", fmt.Errorf("invalid MAC %q: broadcast address", s)
	}
	return strings.Join(octets, ":"), nil
}

// IsMAC reports whether s is an acceptable device identity.
func IsMAC(s string) bool {
	_, err := NormalizeMAC(s)
	return err == nil
}
