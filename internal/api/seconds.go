package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Seconds is a whole number of seconds that decodes from a JSON number or a
// numeric string ("30"). Browser forms send the latter. Zero means absent.
type Seconds int

// UnmarshalJSON implements [json.Unmarshaler].
func (s *Seconds) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*s = 0
		return nil
	}

	var raw string
	if len(b) > 0 && b[0] == '"' {
		if err := json.Unmarshal(b, &raw); err != nil {
			return err
		}
		raw = strings.TrimSpace(raw)
		if raw == "" {
			*s = 0
			return nil
		}
	} else {
		raw = string(b)
	}

	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("duration %q is not a number", raw)
	}
	if f != math.Trunc(f) {
		return fmt.Errorf("duration %q is not a whole number of seconds", raw)
	}
	if f < 0 || f > math.MaxInt32 {
		return fmt.Errorf("duration %q is out of range", raw)
	}
	*s = Seconds(f)
	return nil
}
