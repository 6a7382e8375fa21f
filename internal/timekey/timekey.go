// Package timekey packs a decode channel and a presentation timestamp into a
// single 64-bit key used to correlate engine submissions with completions.
//
// Layout, most significant bit first:
//
//	| channel (19 bits) | timestamp (45 bits, two's complement) |
//
// The timestamp field keeps 44 bits of magnitude plus a sign bit, so any
// timestamp in [MinTimestamp, MaxTimestamp] survives a round trip exactly.
package timekey

import "fmt"

const (
	timeBits  = 44
	fieldBits = timeBits + 1
	shift     = 64 - fieldBits
	fieldMask = 1<<fieldBits - 1
)

// Valid ranges for Encode inputs. Values outside these ranges are truncated.
const (
	MaxChannel   = 1<<(shift-1) - 1
	MinTimestamp = -1 << timeBits
	MaxTimestamp = 1<<timeBits - 1
)

// Key identifies a (channel, timestamp) pair. Keys order first by channel,
// then by the unsigned value of the timestamp field.
type Key int64

// Invalid is the key of a frame record that is not in use. Encode never
// produces it for a channel in [0, MaxChannel].
const Invalid Key = -1

// Encode packs channel and timestampUs into a Key.
func Encode(channel int, timestampUs int64) Key {
	return Key(int64(channel)<<fieldBits | timestampUs&fieldMask)
}

// Channel returns the channel packed into k.
func (k Key) Channel() int {
	return int(int64(k) >> fieldBits)
}

// Timestamp returns the sign-extended timestamp packed into k.
func (k Key) Timestamp() int64 {
	return int64(k) << shift >> shift
}

// Decode unpacks k into its channel and timestamp.
func Decode(k Key) (channel int, timestampUs int64) {
	return k.Channel(), k.Timestamp()
}

// ValidChannel reports whether channel round-trips through a Key.
func ValidChannel(channel int) bool {
	return channel >= 0 && channel <= MaxChannel
}

// ValidTimestamp reports whether timestampUs round-trips through a Key.
func ValidTimestamp(timestampUs int64) bool {
	return timestampUs >= MinTimestamp && timestampUs <= MaxTimestamp
}

func (k Key) String() string {
	if k == Invalid {
		return "invalid"
	}
	return fmt.Sprintf("%d@%dus", k.Channel(), k.Timestamp())
}
