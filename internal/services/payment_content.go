package services

import (
	"regexp"
	"strings"
)

// Bank memo formats seen from the transfer gateways, in priority order:
//
//	PAY e8aad83dfc704db7853a5c75c706c745 Ma giao dich Trace024439
//	Thanh toan e8aad83d-fc70-4db7-853a-5c75c706c745
//	CK e8aad83dfc704db7853a5c75c706c745 tu NGUYEN VAN A
var (
	payMemoPattern    = regexp.MustCompile(`(?is)^PAY (.*?)ma giao dich`)
	bareTokenPattern  = regexp.MustCompile(`^[0-9a-fA-F]{32}$`)
	dashedUUIDPattern = regexp.MustCompile(`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`)
	hexRunPattern     = regexp.MustCompile(`(?:^|[^0-9a-fA-F])([0-9a-fA-F]{32})(?:$|[^0-9a-fA-F])`)
)

// ExtractCorrelationToken finds the 32-hex-character order token embedded in a
// free-text payment description. Case is preserved. Undashed hex runs of any
// other length are never truncated into a token.
func ExtractCorrelationToken(description string) (string, bool) {
	if description == "" {
		return "", false
	}

	if m := payMemoPattern.FindStringSubmatch(description); m != nil {
		candidate := strings.TrimSpace(m[1])
		if bareTokenPattern.MatchString(candidate) {
			return candidate, true
		}
	}

	// The dashed shape pins the token, so text glued to either side is fine.
	if m := dashedUUIDPattern.FindString(description); m != "" {
		return strings.ReplaceAll(m, "-", ""), true
	}

	if m := hexRunPattern.FindStringSubmatch(description); m != nil {
		return m[1], true
	}

	return "", false
}
