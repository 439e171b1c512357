// Package detect decides whether a source is currently broadcasting.
package detect

import (
	"context"
	"log/slog"
	"strings"

	"livewatch/internal/media"
	"livewatch/internal/metrics"
	"livewatch/internal/source"
)

// ListingResolver is the part of the extraction engine the detector needs.
type ListingResolver interface {
	ResolveListing(ctx context.Context, url string) (*media.Listing, error)
}

// Result describes a broadcast found live.
type Result struct {
	VideoID string
	URL     string // always a full watch URL
	Title   string
}

// strategy is one way of asking the extraction engine about a source.
type strategy struct {
	name string
	url  func(address string) string
	scan func(l *media.Listing) *media.Item
}

// strategies run in this order; the first hit wins.
var strategies = []strategy{
	{name: "live", url: func(a string) string { return subPath(a, "live") }, scan: singleLive},
	{name: "streams", url: func(a string) string { return subPath(a, "streams") }, scan: firstLiveEntry},
	{name: "channel", url: func(a string) string { return a }, scan: firstLiveEntry},
}

// Detector checks sources for live broadcasts.
type Detector struct {
	resolver ListingResolver
	log      *slog.Logger
	metrics  *metrics.Metrics
}

// New creates a Detector. m may be nil.
func New(resolver ListingResolver, log *slog.Logger, m *metrics.Metrics) *Detector {
	if log == nil {
		log = slog.Default()
	}
	return &Detector{resolver: resolver, log: log, metrics: m}
}

// CheckLive tries each strategy in order and returns the first live
// broadcast. A failing strategy is logged and skipped. It returns
// (false, nil) when nothing is live.
func (d *Detector) CheckLive(ctx context.Context, address string) (bool, *Result) {
	d.metrics.IncChecks()

	for _, s := range strategies {
		if ctx.Err() != nil {
			return false, nil
		}

		target := s.url(address)
		listing, err := d.resolver.ResolveListing(ctx, target)
		if err != nil {
			d.log.Debug("detection strategy failed",
				"strategy", s.name, "url", target, "error", err)
			d.metrics.IncStrategyError(s.name)
			continue
		}

		item := s.scan(listing)
		if item == nil {
			continue
		}

		res := &Result{VideoID: item.ID, URL: source.WatchURL(item.ID), Title: item.Title}
		d.log.Debug("live broadcast found", "strategy", s.name, "video_id", res.VideoID)
		d.metrics.IncLiveDetected()
		return true, res
	}

	return false, nil
}

func subPath(address, leaf string) string {
	return strings.TrimRight(address, "/") + "/" + leaf
}

// singleLive accepts the resolved item itself when it is live.
func singleLive(l *media.Listing) *media.Item {
	if l == nil || l.ID == "" || !l.Item.Live() {
		return nil
	}
	return &l.Item
}

// firstLiveEntry returns the first complete entry flagged live, in
// listing order.
func firstLiveEntry(l *media.Listing) *media.Item {
	if l == nil {
		return nil
	}
	for _, e := range l.Entries {
		if e == nil || e.ID == "" {
			continue
		}
		if e.Live() {
			return e
		}
	}
	return nil
}
