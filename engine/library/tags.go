package library

import (
	"github.com/nbd-wtf/go-nostr"
)

func GetFirstTag(e nostr.Event, startsWith string) (string, bool) {
	for _, tag := range e.Tags {
		if tag.StartsWith([]string{startsWith}) {
			return tag.Value(), true
		}
	}
	return "", false
}

// GetRecipient returns the account from the first "p" tag, which is where
// both gift wraps and rumors carry the recipient.
func GetRecipient(e nostr.Event) (Account, bool) {
	return GetFirstTag(e, "p")
}

// GetGeohashTag returns the geohash context from the first "g" tag.
func GetGeohashTag(e nostr.Event) (Geohash, bool) {
	return GetFirstTag(e, "g")
}
