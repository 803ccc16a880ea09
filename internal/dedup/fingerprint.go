package dedup

import (
	"hash/fnv"
	"strings"

	"github.com/dvloznov/billfeed/internal/domain"
)

// ChannelClasses collapses capture channels that observe the same
// underlying payment into one class, so that a bank SMS and the bank's
// push notification for the same card swipe fingerprint identically.
// Channels without an entry class as themselves.
type ChannelClasses map[string]string

// Class resolves a channel to its dedup class.
func (c ChannelClasses) Class(channel string) string {
	channel = strings.ToLower(strings.TrimSpace(channel))
	if class, ok := c[channel]; ok {
		return class
	}
	return channel
}

// Fingerprint hashes the identity-relevant fields of a candidate:
// amount rounded to two decimal places, bill type, and channel class.
// Shop names, accounts and timestamps deliberately stay out of the
// hash; two captures of one payment often disagree on them.
func Fingerprint(cand domain.BillCandidate, classes ChannelClasses) uint64 {
	h := fnv.New64a()
	h.Write([]byte(cand.Money.Round(2).String()))
	h.Write([]byte{'|'})
	h.Write([]byte(cand.Type))
	h.Write([]byte{'|'})
	h.Write([]byte(classes.Class(cand.Channel)))
	return h.Sum64()
}
