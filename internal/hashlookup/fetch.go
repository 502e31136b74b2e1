package hashlookup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// maxBodySize bounds the response body; records are a few KiB even with parents.
const maxBodySize = 4 << 20

// ErrRecordNotFound is returned when the API has no record for the digest.
var ErrRecordNotFound = errors.New("hash not found in hashlookup")

// StatusError reports a non-success HTTP status from the API.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("hashlookup API returned status: %d", e.StatusCode)
}

// DecodeError reports an undecodable response body.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode hashlookup response: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

type RateLimiter struct {
	Limiter *rate.Limiter
	Burst   int
	Rate    rate.Limit // Requests per second
}

// Fetcher retrieves the detailed record of a digest.
type Fetcher interface {
	Fetch(ctx context.Context, digest Digest) (*Record, error)
}

// RecordFetcher implements Fetcher against the hashlookup REST API.
type RecordFetcher struct {
	BaseURL     string
	UserAgent   string
	Client      *http.Client
	RateLimiter *RateLimiter
	logger      *logrus.Logger
}

// NewRecordFetcher initializes a new RecordFetcher.
func NewRecordFetcher(baseURL, userAgent string, timeout time.Duration, logger *logrus.Logger) *RecordFetcher {
	return &RecordFetcher{
		BaseURL:   baseURL,
		UserAgent: userAgent,
		Client:    &http.Client{Timeout: timeout},
		logger:    logger,
	}
}

// SetRateLimiter sets the rate limiter for the RecordFetcher.
func (f *RecordFetcher) SetRateLimiter(limiter *RateLimiter) {
	f.RateLimiter = limiter
}

// ProviderName returns the name of the API provider.
func (f *RecordFetcher) ProviderName() string {
	return ProviderName
}

// Fetch GETs /lookup/<algo>/<digest>. Every failure is logged here; callers
// only need to tell ErrRecordNotFound apart from the rest.
func (f *RecordFetcher) Fetch(ctx context.Context, digest Digest) (*Record, error) {
	logger := f.logger.WithFields(logrus.Fields{
		"digest": digest,
		"api":    f.ProviderName(),
	})

	if f.RateLimiter != nil {
		if err := f.RateLimiter.Limiter.Wait(ctx); err != nil {
			logger.WithError(err).Warn("Rate limiter wait aborted")
			return nil, fmt.Errorf("rate limiter error: %w", err)
		}
	}

	url := fmt.Sprintf("%s/lookup/%s/%s", f.BaseURL, digest.Algorithm(), digest)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		logger.WithError(err).Error("Failed to build hashlookup request")
		return nil, err
	}
	req.Header.Set("User-Agent", f.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := f.Client.Do(req)
	if err != nil {
		logger.WithError(err).Warn("Network error querying hashlookup API")
		return nil, fmt.Errorf("hashlookup request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		logger.Info("Hash not found by hashlookup API")
		return nil, ErrRecordNotFound
	default:
		logger.WithField("status", resp.StatusCode).Warn("HTTP error querying hashlookup API")
		return nil, &StatusError{StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		logger.WithError(err).Warn("Network error reading hashlookup response")
		return nil, fmt.Errorf("failed to read hashlookup response: %w", err)
	}

	var record Record
	if err := json.Unmarshal(body, &record); err != nil {
		logger.WithError(err).Error("Error decoding hashlookup response")
		return nil, &DecodeError{Err: err}
	}

	logger.Info("Retrieved details for hash")
	return &record, nil
}
