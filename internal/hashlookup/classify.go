package hashlookup

import (
	"fmt"
	"strconv"
	"strings"
)

// DefaultTrust is assumed when a record carries no trust score.
const DefaultTrust = 50

// ScoreLevel is the severity attached to a finding.
type ScoreLevel int

const (
	ScoreUnknown ScoreLevel = iota
	ScoreNone
	ScoreLikelyNone
	ScoreLikelyNotable
	ScoreNotable
)

var scoreLevelNames = map[ScoreLevel]string{
	ScoreUnknown:       "unknown",
	ScoreNone:          "none",
	ScoreLikelyNone:    "likely-none",
	ScoreLikelyNotable: "likely-notable",
	ScoreNotable:       "notable",
}

func (s ScoreLevel) String() string {
	if name, ok := scoreLevelNames[s]; ok {
		return name
	}
	return "unknown"
}

// ParseScoreLevel is the inverse of ScoreLevel.String.
func ParseScoreLevel(name string) (ScoreLevel, error) {
	for level, n := range scoreLevelNames {
		if n == name {
			return level, nil
		}
	}
	return ScoreUnknown, fmt.Errorf("unknown score level: %q", name)
}

func (s ScoreLevel) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *ScoreLevel) UnmarshalText(text []byte) error {
	level, err := ParseScoreLevel(string(text))
	if err != nil {
		return err
	}
	*s = level
	return nil
}

// Classification is the verdict derived from a Record.
type Classification struct {
	Trust   int        `json:"trust"`
	Score   ScoreLevel `json:"score"`
	Label   string     `json:"label"`
	Comment string     `json:"comment"`
}

// SetName is the hash set name recorded with a finding.
func (c Classification) SetName() string {
	return "Hashlookup:" + c.Label
}

// Classify maps a record to a Classification. Thresholds are checked in order
// and a boundary value belongs to the first bucket that matches it.
func Classify(r Record) Classification {
	trust := DefaultTrust
	if r.Trust != nil {
		trust = *r.Trust
	}

	c := Classification{Trust: trust}
	switch {
	case trust <= 30:
		c.Score, c.Label = ScoreNotable, "Untrusted"
	case trust < 50:
		c.Score, c.Label = ScoreLikelyNotable, "Likely Untrusted"
	case trust > 90:
		c.Score, c.Label = ScoreNone, "Trusted"
	case trust > 65:
		c.Score, c.Label = ScoreLikelyNone, "Likely Trusted"
	default:
		c.Score, c.Label = ScoreUnknown, "Unknown trust"
	}
	c.Comment = comment(trust, r)
	return c
}

func comment(trust int, r Record) string {
	var b strings.Builder
	b.WriteString("Hashlookup Trust score: ")
	b.WriteString(strconv.Itoa(trust))
	if r.FileName != nil {
		b.WriteString(", FileName: " + *r.FileName)
	}
	if r.Source != nil {
		b.WriteString(", Source: " + *r.Source)
	}
	if r.ParentTotal != nil {
		b.WriteString(", Parent Total: " + strconv.Itoa(*r.ParentTotal))
	}
	if r.KnownMalicious != nil {
		b.WriteString(", KnownMalicious: " + *r.KnownMalicious)
	}
	if r.ProductCode != nil {
		b.WriteString(", ProductCode: \n" + string(r.ProductCode))
	}
	if len(r.Parents) > 0 {
		first := "null"
		if r.Parents[0] != nil {
			first = string(r.Parents[0])
		}
		b.WriteString(", first Parent: \n" + first)
	}
	return b.String()
}
