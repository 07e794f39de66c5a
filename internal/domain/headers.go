package domain

import "strings"

// Reserved delivery header names. Endpoint-configured extra headers may not
// collide with these; they are always set by the delivery executor.
const (
	HeaderSignature = "X-CallBotAI-Signature"
	HeaderEvent     = "X-CallBotAI-Event"
	HeaderTimestamp = "X-CallBotAI-Timestamp"
)

// IsReservedHeader reports whether name is one of the delivery-owned headers.
func IsReservedHeader(name string) bool {
	switch strings.ToLower(name) {
	case strings.ToLower(HeaderSignature),
		strings.ToLower(HeaderEvent),
		strings.ToLower(HeaderTimestamp),
		"content-type":
		return true
	}
	return false
}
