// Package metrics exports pipeline statistics to Prometheus.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/zsiec/enhancer/internal/pipeline"
	"github.com/zsiec/enhancer/internal/pool"
)

const namespace = "enhancer"

// StatsSource is anything that can report pipeline statistics.
type StatsSource interface {
	Stats() pipeline.Stats
}

type counter struct {
	desc  *prometheus.Desc
	value func(pipeline.Stats) int64
}

type gauge struct {
	desc  *prometheus.Desc
	value func(pipeline.Stats) int
}

// Collector reads a StatsSource on every scrape.
type Collector struct {
	src      StatsSource
	counters []counter
	gauges   []gauge
	pool     *prometheus.Desc
}

// NewCollector builds a collector for src.
func NewCollector(src StatsSource) *Collector {
	labels := []string{"session", "channel"}
	newDesc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "pipeline", name), help, labels, nil)
	}
	c := &Collector{src: src}
	c.counters = []counter{
		{newDesc("submitted_total", "Base frames submitted to the engine."), func(s pipeline.Stats) int64 { return s.Submitted }},
		{newDesc("decoded_total", "Frames decoded by the engine."), func(s pipeline.Stats) int64 { return s.Decoded }},
		{newDesc("decode_failures_total", "Frames whose submission or decode failed."), func(s pipeline.Stats) int64 { return s.DecodeFailures }},
		{newDesc("drains_total", "End of stream drains."), func(s pipeline.Stats) int64 { return s.Drains }},
		{newDesc("rendered_total", "Frames rendered."), func(s pipeline.Stats) int64 { return s.Rendered }},
		{newDesc("render_failures_total", "Renders rejected or completed unsuccessfully."), func(s pipeline.Stats) int64 { return s.RenderFailures }},
		{newDesc("missed_renders_total", "Render requests that arrived before decode completed."), func(s pipeline.Stats) int64 { return s.MissedRenders }},
		{newDesc("skipped_total", "Decoded frames dropped without rendering."), func(s pipeline.Stats) int64 { return s.Skipped }},
		{newDesc("flushes_total", "Pipeline flushes."), func(s pipeline.Stats) int64 { return s.Flushes }},
		{newDesc("registry_misses_total", "Engine completions for frames no longer in flight."), func(s pipeline.Stats) int64 { return s.RegistryMisses }},
		{newDesc("base_release_errors_total", "Base decoder buffer releases that failed."), func(s pipeline.Stats) int64 { return s.BaseReleaseErrors }},
		{newDesc("inband_data_total", "In-band enhancement access units forwarded."), func(s pipeline.Stats) int64 { return s.InbandData }},
		{newDesc("sideband_data_total", "Sideband enhancement payloads forwarded."), func(s pipeline.Stats) int64 { return s.SidebandData }},
	}
	c.gauges = []gauge{
		{newDesc("in_flight", "Frames registered in the pipeline."), func(s pipeline.Stats) int { return s.InFlight }},
		{newDesc("pending_decodes", "Frames submitted and awaiting decode."), func(s pipeline.Stats) int { return s.PendingDecodes }},
		{newDesc("ready_frames", "Decoded frames awaiting the consumer."), func(s pipeline.Stats) int { return s.ReadyFrames }},
	}
	c.pool = prometheus.NewDesc(prometheus.BuildFQName(namespace, "pool", "slots"),
		"Pool slots by pool and state.", []string{"session", "channel", "pool", "state"}, nil)
	return c
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, m := range c.counters {
		ch <- m.desc
	}
	for _, m := range c.gauges {
		ch <- m.desc
	}
	ch <- c.pool
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.src.Stats()
	channel := strconv.Itoa(s.Channel)
	for _, m := range c.counters {
		ch <- prometheus.MustNewConstMetric(m.desc, prometheus.CounterValue, float64(m.value(s)), s.Session, channel)
	}
	for _, m := range c.gauges {
		ch <- prometheus.MustNewConstMetric(m.desc, prometheus.GaugeValue, float64(m.value(s)), s.Session, channel)
	}
	pools := []struct {
		name  string
		stats pool.Stats
	}{
		{"records", s.Records},
		{"base_images", s.BaseImages},
		{"decode_images", s.DecodeImages},
	}
	for _, p := range pools {
		ch <- prometheus.MustNewConstMetric(c.pool, prometheus.GaugeValue, float64(p.stats.InUse), s.Session, channel, p.name, "in_use")
		ch <- prometheus.MustNewConstMetric(c.pool, prometheus.GaugeValue, float64(p.stats.Idle), s.Session, channel, p.name, "idle")
	}
}
