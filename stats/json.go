package stats

import jsoniter "github.com/json-iterator/go"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// jsonSnapshot is the wire shape for (*Snapshot).MarshalJSON — not a
// network format (spec's Non-goals exclude persistence/wire protocols for
// the core itself), just a debug/introspection dump, mirroring the
// teacher's own use of jsoniter in stats/common.go for ad hoc encoding.
type jsonSnapshot struct {
	InstLoad map[string]float64  `json:"inst_load"`
	Stats    map[string]LoadStat `json:"stats"`
}

func (s *Snapshot) MarshalJSON() ([]byte, error) {
	return json.Marshal(jsonSnapshot{InstLoad: s.InstLoad, Stats: s.Stats})
}

func (s *Snapshot) UnmarshalJSON(b []byte) error {
	var js jsonSnapshot
	if err := json.Unmarshal(b, &js); err != nil {
		return err
	}
	s.InstLoad, s.Stats = js.InstLoad, js.Stats
	return nil
}
