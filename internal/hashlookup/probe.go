package hashlookup

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/miekg/dns"
	"github.com/sirupsen/logrus"
)

// ProbeResult is the outcome of an existence probe.
type ProbeResult int

const (
	// ProbeIndeterminate means the query itself failed; nothing is known about the digest.
	ProbeIndeterminate ProbeResult = iota
	ProbePresent
	ProbeAbsent
)

func (p ProbeResult) String() string {
	switch p {
	case ProbePresent:
		return "present"
	case ProbeAbsent:
		return "absent"
	default:
		return "indeterminate"
	}
}

// Prober answers whether the reputation service knows a digest, without
// retrieving its record.
type Prober interface {
	Probe(ctx context.Context, digest Digest) ProbeResult
}

// ednsBufferSize is the UDP payload size advertised with EDNS0. TXT answers
// carry the record JSON and routinely exceed the classic 512 bytes.
const ednsBufferSize = 4096

type exchanger interface {
	ExchangeContext(ctx context.Context, m *dns.Msg, address string) (*dns.Msg, time.Duration, error)
}

// DNSProbe checks digests with a TXT query for <digest>.<zone>.
type DNSProbe struct {
	Zone    string
	Server  string
	Timeout time.Duration
	client  exchanger
	tcp     exchanger // retried on a truncated UDP answer
	logger  *logrus.Logger
}

// NewDNSProbe creates a probe querying server (host or host:port). An empty
// server selects the first nameserver listed in /etc/resolv.conf.
func NewDNSProbe(zone, server string, timeout time.Duration, logger *logrus.Logger) (*DNSProbe, error) {
	if server == "" {
		conf, err := dns.ClientConfigFromFile("/etc/resolv.conf")
		if err != nil {
			return nil, fmt.Errorf("failed to read resolver configuration: %w", err)
		}
		if len(conf.Servers) == 0 {
			return nil, fmt.Errorf("no nameserver configured in /etc/resolv.conf")
		}
		server = net.JoinHostPort(conf.Servers[0], conf.Port)
	} else if _, _, err := net.SplitHostPort(server); err != nil {
		server = net.JoinHostPort(server, "53")
	}

	return &DNSProbe{
		Zone:    zone,
		Server:  server,
		Timeout: timeout,
		client:  &dns.Client{Net: "udp", Timeout: timeout},
		tcp:     &dns.Client{Net: "tcp", Timeout: timeout},
		logger:  logger,
	}, nil
}

// Probe issues a TXT query over UDP with EDNS0, and repeats it once over TCP
// when the answer comes back truncated.
func (p *DNSProbe) Probe(ctx context.Context, digest Digest) ProbeResult {
	name := dns.Fqdn(digest.String() + "." + p.Zone)
	logger := p.logger.WithFields(logrus.Fields{
		"digest": digest,
		"query":  name,
		"server": p.Server,
	})

	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	msg := new(dns.Msg)
	msg.SetQuestion(name, dns.TypeTXT)
	msg.RecursionDesired = true
	msg.SetEdns0(ednsBufferSize, false)

	resp, _, err := p.client.ExchangeContext(ctx, msg, p.Server)
	if err == nil && resp.Truncated {
		logger.Debug("Hashlookup DNS answer truncated, retrying over TCP")
		resp, err = p.exchangeTCP(ctx, msg)
	}
	if err != nil {
		logger.WithError(err).Debug("Hashlookup DNS query failed")
		return ProbeIndeterminate
	}

	switch resp.Rcode {
	case dns.RcodeSuccess:
	case dns.RcodeNameError:
		logger.Debug("Hash not found in hashlookup DNS")
		return ProbeAbsent
	default:
		logger.WithField("rcode", dns.RcodeToString[resp.Rcode]).Debug("Hashlookup DNS query returned an error code")
		return ProbeIndeterminate
	}

	for _, rr := range resp.Answer {
		if _, ok := rr.(*dns.TXT); ok {
			logger.Debug("Hash found in hashlookup DNS")
			return ProbePresent
		}
	}
	if resp.Truncated {
		// Records may have been dropped from the answer.
		logger.Debug("Hashlookup DNS answer truncated without records")
		return ProbeIndeterminate
	}
	logger.Debug("Hash not found in hashlookup DNS")
	return ProbeAbsent
}

func (p *DNSProbe) exchangeTCP(ctx context.Context, msg *dns.Msg) (*dns.Msg, error) {
	if p.tcp == nil {
		return nil, errors.New("no TCP client configured")
	}
	resp, _, err := p.tcp.ExchangeContext(ctx, msg, p.Server)
	return resp, err
}
