package hashlookup

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
)

// Lookup classifies digests: probe first, fetch the record only when the probe
// says the digest is known, then classify it.
type Lookup struct {
	prober   Prober
	fetcher  Fetcher
	counters *RunCounters
	logger   *logrus.Logger
}

// NewLookup wires a Lookup. A nil counters gets a fresh RunCounters.
func NewLookup(prober Prober, fetcher Fetcher, counters *RunCounters, logger *logrus.Logger) *Lookup {
	if counters == nil {
		counters = &RunCounters{}
	}
	return &Lookup{
		prober:   prober,
		fetcher:  fetcher,
		counters: counters,
		logger:   logger,
	}
}

// NewLookupFromConfig builds the DNS probe and the REST fetcher described by cfg.
func NewLookupFromConfig(cfg *Config, logger *logrus.Logger) (*Lookup, error) {
	probe, err := NewDNSProbe(cfg.DNSZone, cfg.DNSServer, cfg.ProbeTimeout, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize DNS probe: %w", err)
	}

	fetcher := NewRecordFetcher(cfg.BaseURL, cfg.UserAgent, cfg.FetchTimeout, logger)
	if limiter := cfg.RateLimiterFor(fetcher.ProviderName()); limiter != nil {
		logger.Infof("Setting rate limiter for %s: %v/s burst %d", fetcher.ProviderName(), limiter.Rate, limiter.Burst)
		fetcher.SetRateLimiter(limiter)
	}

	return NewLookup(probe, fetcher, nil, logger), nil
}

// Counters returns the counters incremented by ClassifyDigest.
func (l *Lookup) Counters() *RunCounters {
	return l.counters
}

// ClassifyDigest returns the classification of raw, or ok == false when there
// is nothing to report: invalid digest, unknown hash, or any lookup failure.
// Failures are logged, never returned.
func (l *Lookup) ClassifyDigest(ctx context.Context, raw string) (Classification, bool) {
	c, _, ok := l.LookupDigest(ctx, raw)
	return c, ok
}

// LookupDigest is ClassifyDigest that also returns the hashes reported in the
// record.
func (l *Lookup) LookupDigest(ctx context.Context, raw string) (c Classification, hashes *Hashes, ok bool) {
	digest, err := NormalizeDigest(raw)
	if err != nil {
		l.logger.WithError(err).WithField("digest", raw).Debug("Skipping lookup")
		return Classification{}, nil, false
	}
	logger := l.logger.WithField("digest", digest)

	defer func() {
		if r := recover(); r != nil {
			logger.WithField("panic", r).Error("Unexpected failure during hash lookup")
			c, hashes, ok = Classification{}, nil, false
		}
	}()

	if result := l.prober.Probe(ctx, digest); result != ProbePresent {
		logger.WithField("probe", result).Debug("No hashlookup information")
		return Classification{}, nil, false
	}

	record, err := l.fetcher.Fetch(ctx, digest)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			logger.Debug("Hash reported by DNS but missing from the API")
		}
		return Classification{}, nil, false
	}
	if record == nil {
		return Classification{}, nil, false
	}

	c = Classify(*record)
	h := record.Hashes()
	l.counters.Inc()
	logger.WithFields(logrus.Fields{
		"score": c.Score,
		"label": c.Label,
	}).Debug("Hash classified")
	return c, &h, true
}
