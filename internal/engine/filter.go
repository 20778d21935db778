// Package engine implements the adaptive time-range crawler: for one
// relay, a filter, and a period, it drains every matching event exactly
// once, resuming from the relay's previous watermark and bisecting windows
// that exceed the relay's undocumented result cap.
package engine

// Filter is the whitelisted subset of a Nostr REQ filter the engine
// accepts. Unknown keys are never round-tripped: only the fields below
// (plus the since/until the engine itself manages per window) are ever
// sent to a relay.
type Filter struct {
	IDs        []string
	Authors    []string
	Kinds      []int
	Limit      int
	TagFilters map[string][]string // keys like "#e", "#p"
}

// toREQ renders the filter for one window as the map the wire protocol
// expects, with since/until merged in.
func (f Filter) toREQ(since, until int64, limit int) map[string]interface{} {
	m := make(map[string]interface{}, 8)
	if len(f.IDs) > 0 {
		m["ids"] = f.IDs
	}
	if len(f.Authors) > 0 {
		m["authors"] = f.Authors
	}
	if len(f.Kinds) > 0 {
		m["kinds"] = f.Kinds
	}
	for k, v := range f.TagFilters {
		m[k] = v
	}
	m["since"] = since
	m["until"] = until
	if limit > 0 {
		m["limit"] = limit
	}
	return m
}
