package pncp

import (
	"strconv"
	"strings"
)

// SplitNaturalID decomposes "<org-id>/<year>/<sequence>" into its components.
// All three segments are required; year and sequence must be integers.
func SplitNaturalID(naturalID string) (orgID string, year int, sequence int, ok bool) {
	parts := strings.Split(naturalID, "/")
	if len(parts) != 3 {
		return "", 0, 0, false
	}
	orgID = parts[0]
	if orgID == "" {
		return "", 0, 0, false
	}
	year, err := strconv.Atoi(parts[1])
	if err != nil {
		return "", 0, 0, false
	}
	sequence, err = strconv.Atoi(parts[2])
	if err != nil {
		return "", 0, 0, false
	}
	return orgID, year, sequence, true
}
