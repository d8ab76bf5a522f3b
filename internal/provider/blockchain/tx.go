package blockchain

import (
	"strconv"
	"strings"
	"time"
)

// Direction infers whether a transaction moved funds out of, into, or past
// the given wallet address. Comparison is case-insensitive because EVM
// explorers mix checksummed and lowercase addresses.
func Direction(address, from, to string) string {
	address = strings.ToLower(address)
	if address == strings.ToLower(from) {
		return "Out"
	}
	if address == strings.ToLower(to) {
		return "In"
	}
	return "Unknown"
}

// StatusFromConfirmations maps a confirmation count onto the two statuses the
// canonical model distinguishes.
func StatusFromConfirmations(confirmations int64) string {
	if confirmations > 0 {
		return "Confirmed"
	}
	return "Pending"
}

func statusFromConfirmationsString(confirmations string) string {
	n, err := strconv.ParseInt(strings.TrimSpace(confirmations), 10, 64)
	if err != nil {
		return "Pending"
	}
	return StatusFromConfirmations(n)
}

// unixToRFC3339 renders a provider's unix-seconds timestamp as the canonical
// date string. Unparsable input yields an empty date, which sorts last.
func unixToRFC3339(seconds string) string {
	n, err := strconv.ParseInt(strings.TrimSpace(seconds), 10, 64)
	if err != nil {
		return ""
	}
	return time.Unix(n, 0).UTC().Format(time.RFC3339)
}
