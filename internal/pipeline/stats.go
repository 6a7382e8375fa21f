package pipeline

import "github.com/zsiec/enhancer/internal/pool"

// Stats is a point-in-time snapshot of pipeline activity, suitable for
// JSON serialization and metrics export.
type Stats struct {
	Session string `json:"session"`
	Channel int    `json:"channel"`

	Submitted         int64 `json:"submitted"`
	Decoded           int64 `json:"decoded"`
	DecodeFailures    int64 `json:"decodeFailures"`
	Drains            int64 `json:"drains"`
	Rendered          int64 `json:"rendered"`
	RenderFailures    int64 `json:"renderFailures"`
	MissedRenders     int64 `json:"missedRenders"`
	Skipped           int64 `json:"skipped"`
	Flushes           int64 `json:"flushes"`
	RegistryMisses    int64 `json:"registryMisses"`
	BaseReleaseErrors int64 `json:"baseReleaseErrors"`
	InbandData        int64 `json:"inbandData"`
	SidebandData      int64 `json:"sidebandData"`

	InFlight       int `json:"inFlight"`
	PendingDecodes int `json:"pendingDecodes"`
	ReadyFrames    int `json:"readyFrames"`

	Records      pool.Stats `json:"records"`
	BaseImages   pool.Stats `json:"baseImages"`
	DecodeImages pool.Stats `json:"decodeImages"`
}
