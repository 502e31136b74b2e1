package hashlookup

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL   = "https://hashlookup.circl.lu"
	DefaultDNSZone   = "dns.hashlookup.circl.lu"
	DefaultUserAgent = "hashlookup-ingest/1.0"

	// ProviderName is the API name matched against RATE_LIMITS entries.
	ProviderName = "hashlookup"
)

// Config holds the hashlookup service endpoints and lookup tuning.
type Config struct {
	BaseURL        string
	DNSZone        string
	DNSServer      string // host:port, empty means the first nameserver of /etc/resolv.conf
	UserAgent      string
	ProbeTimeout   time.Duration
	FetchTimeout   time.Duration
	MaxConcurrency int64
	RateLimits     []RateLimitConfig
}

// RateLimitConfig defines rate limiting settings per API.
type RateLimitConfig struct {
	APIName string
	Rate    rate.Limit // Requests per second
	Burst   int        // Maximum burst size
}

// LoadConfig loads the lookup configuration from environment variables.
func LoadConfig() (*Config, error) {
	probeTimeout, err := strconv.Atoi(os.Getenv("PROBE_TIMEOUT_SECONDS"))
	if err != nil || probeTimeout <= 0 {
		probeTimeout = 5
		logrus.Infof("Invalid or missing PROBE_TIMEOUT_SECONDS. Defaulting to %d seconds.", probeTimeout)
	}

	fetchTimeout, err := strconv.Atoi(os.Getenv("FETCH_TIMEOUT_SECONDS"))
	if err != nil || fetchTimeout <= 0 {
		fetchTimeout = 10
		logrus.Infof("Invalid or missing FETCH_TIMEOUT_SECONDS. Defaulting to %d seconds.", fetchTimeout)
	}

	maxConcurrency, err := strconv.Atoi(os.Getenv("MAX_CONCURRENCY"))
	if err != nil || maxConcurrency <= 0 {
		maxConcurrency = 5
		logrus.Infof("Invalid or missing MAX_CONCURRENCY. Defaulting to %d.", maxConcurrency)
	}

	rateLimits, err := parseRateLimits(os.Getenv("RATE_LIMITS"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse RATE_LIMITS: %w", err)
	}

	return &Config{
		BaseURL:        strings.TrimRight(getEnv("HASHLOOKUP_URL", DefaultBaseURL), "/"),
		DNSZone:        strings.Trim(getEnv("HASHLOOKUP_DNS_ZONE", DefaultDNSZone), "."),
		DNSServer:      os.Getenv("HASHLOOKUP_DNS_SERVER"),
		UserAgent:      getEnv("HASHLOOKUP_USER_AGENT", DefaultUserAgent),
		ProbeTimeout:   time.Duration(probeTimeout) * time.Second,
		FetchTimeout:   time.Duration(fetchTimeout) * time.Second,
		MaxConcurrency: int64(maxConcurrency),
		RateLimits:     rateLimits,
	}, nil
}

// RateLimiterFor returns a limiter for the named API, or nil when none is configured.
func (c *Config) RateLimiterFor(apiName string) *RateLimiter {
	for _, rl := range c.RateLimits {
		if rl.APIName == apiName {
			return &RateLimiter{
				Limiter: rate.NewLimiter(rl.Rate, rl.Burst),
				Burst:   rl.Burst,
				Rate:    rl.Rate,
			}
		}
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// parseRateLimits parses rate limits from a comma-separated list of API:rate:burst.
func parseRateLimits(input string) ([]RateLimitConfig, error) {
	var rateLimits []RateLimitConfig
	if input == "" {
		return rateLimits, nil
	}
	for _, entry := range strings.Split(input, ",") {
		parts := strings.Split(entry, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("invalid rate limit entry: %s", entry)
		}
		rateValue, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid rate value in entry '%s': %w", entry, err)
		}
		burstValue, err := strconv.Atoi(strings.TrimSpace(parts[2]))
		if err != nil {
			return nil, fmt.Errorf("invalid burst value in entry '%s': %w", entry, err)
		}
		rateLimits = append(rateLimits, RateLimitConfig{
			APIName: strings.TrimSpace(parts[0]),
			Rate:    rate.Limit(rateValue),
			Burst:   burstValue,
		})
	}
	return rateLimits, nil
}
