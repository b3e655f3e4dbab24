package protocol

import (
	"bytes"
	"encoding/json"
	"math"
	"strings"
	"time"

	"golang.org/x/xerrors"
)

// Instant is a point in time received from the wire. Peers send either epoch
// seconds as a JSON number or an ISO-8601 string; both decode to UTC.
type Instant struct {
	time.Time
}

// isoLayouts are tried in order. Python's isoformat() omits the zone for
// naive datetimes, those are read as UTC.
var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

func NewInstant(t time.Time) Instant {
	return Instant{Time: t.UTC()}
}

// FromEpoch converts fractional epoch seconds.
func FromEpoch(sec float64) time.Time {
	whole, frac := math.Modf(sec)
	return time.Unix(int64(whole), int64(math.Round(frac*1e9))).UTC()
}

// Epoch returns t as fractional epoch seconds, the representation used for
// every timestamp the server generates.
func Epoch(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func ParseInstant(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, xerrors.Errorf("unrecognized instant %q", s)
}

func (i *Instant) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		t, err := ParseInstant(s)
		if err != nil {
			return err
		}
		i.Time = t
		return nil
	}
	var sec float64
	if err := json.Unmarshal(data, &sec); err != nil {
		return xerrors.Errorf("instant must be epoch seconds or ISO-8601: %w", err)
	}
	i.Time = FromEpoch(sec)
	return nil
}

func (i Instant) MarshalJSON() ([]byte, error) {
	return json.Marshal(Epoch(i.Time))
}
