package optimizer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

type envelope struct {
	Status  string          `json:"status"`
	Code    json.RawMessage `json:"code"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
	Data    *struct {
		Stores      []json.RawMessage `json:"stores"`
		Disruptions []json.RawMessage `json:"disruptions"`
	} `json:"data"`
}

func (e *envelope) code() string {
	raw := bytes.TrimSpace(e.Code)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func (e *envelope) reason() string {
	for _, s := range []string{e.Message, e.Error, e.code()} {
		if s != "" {
			return s
		}
	}
	return "optimizer reported an error"
}

// decodeProposals turns data.stores into proposals. It never fails: bad
// entries become proposals with nil ids and a Problem.
func decodeProposals(entries []json.RawMessage) []Proposal {
	out := make([]Proposal, 0, len(entries))
	for i, raw := range entries {
		p := Proposal{Position: i}

		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		var fields map[string]interface{}
		if err := dec.Decode(&fields); err != nil || fields == nil {
			p.Problem = "entry is not an object"
			out = append(out, p)
			continue
		}

		var problems []string
		var problem string
		if p.StoreID, problem = coerceID(fields["store_id"]); problem != "" {
			problems = append(problems, "store_id "+problem)
		}
		if p.AuditorID, problem = coerceID(fields["assigned_auditor_id"]); problem != "" {
			problems = append(problems, "assigned_auditor_id "+problem)
		}
		p.Problem = strings.Join(problems, "; ")
		out = append(out, p)
	}
	return out
}

// coerceID accepts integers, integral floats and numeric strings. Absent and
// null values yield nil without a problem.
func coerceID(v interface{}) (*int64, string) {
	switch x := v.(type) {
	case nil:
		return nil, ""
	case json.Number:
		return numberID(string(x))
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return nil, "is an empty string"
		}
		return numberID(s)
	default:
		return nil, fmt.Sprintf("has unsupported type %T", v)
	}
}

// numberID parses s as an int64. float64(math.MaxInt64) rounds up to 2^63,
// so the upper bound is exclusive.
func numberID(s string) (*int64, string) {
	if id, err := strconv.ParseInt(s, 10, 64); err == nil {
		return &id, ""
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Sprintf("%q is not numeric", s)
	}
	if f != math.Trunc(f) || math.IsInf(f, 0) || f >= math.MaxInt64 || f < math.MinInt64 {
		return nil, fmt.Sprintf("%q is not an integer", s)
	}
	id := int64(f)
	return &id, ""
}
