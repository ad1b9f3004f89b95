package geotile

import "github.com/paulmach/orb"

// Turbo flags returned by SpatialFilter.AcceptTile (spec §4.5/§4.6):
// a negative value rejects the tile and every descendant outright; a
// non-negative value is threaded through to AcceptFeature as fastHint
// so a filter can short-circuit checks it has already proven true for
// the whole tile.
const (
	TurboReject  = -1
	TurboUnknown = 0
	TurboInside  = 1
)

// Matcher is a compiled feature predicate (spec §9): a tagged variant
// over built-in predicates rather than an open class hierarchy, since
// a Go interface already gives callers the extension point a C++
// refcounted base class would.
//
// AcceptIndex lets the walker/searcher skip an entire trunk (and
// everything beneath it) when the matcher's indexed keys cannot
// possibly intersect that trunk's key bitmap.
type Matcher interface {
	Accept(f FeatureRecord) bool
	AcceptIndex(keyBitmap uint64) bool
}

// SpatialFilter additionally gates whole tiles before the searcher
// descends into them, and individual features after the matcher
// accepts them.
type SpatialFilter interface {
	AcceptTile(tip TIP, bound orb.Bound) int
	AcceptFeature(f FeatureRecord, fastHint int) bool
}

// AcceptAll is the default matcher: every feature and every indexed
// trunk passes.
type AcceptAll struct{}

func (AcceptAll) Accept(FeatureRecord) bool     { return true }
func (AcceptAll) AcceptIndex(uint64) bool       { return true }

// KeyMatch accepts features carrying a given tag key, regardless of
// its value. bit is the key's schema bit (0 if the key was never
// indexed, in which case AcceptIndex degrades to "maybe" i.e. true,
// since an un-indexed key can't be pruned at the trunk level).
type KeyMatch struct {
	Key string
	bit uint64
}

// NewKeyMatch builds a KeyMatch against schema's bit for key, if any.
func NewKeyMatch(schema *Schema, key string) KeyMatch {
	return KeyMatch{Key: key, bit: schema.Bit(key)}
}

func (m KeyMatch) Accept(f FeatureRecord) bool {
	for _, t := range f.Tags {
		if t.Key == m.Key {
			return true
		}
	}
	return false
}

func (m KeyMatch) AcceptIndex(keyBitmap uint64) bool {
	if m.bit == 0 {
		return true
	}
	return keyBitmap&m.bit != 0
}

// KeyValueMatch accepts features carrying an exact key=value tag.
type KeyValueMatch struct {
	Key, Value string
	bit        uint64
}

// NewKeyValueMatch builds a KeyValueMatch against schema's bit for key, if any.
func NewKeyValueMatch(schema *Schema, key, value string) KeyValueMatch {
	return KeyValueMatch{Key: key, Value: value, bit: schema.Bit(key)}
}

func (m KeyValueMatch) Accept(f FeatureRecord) bool {
	for _, t := range f.Tags {
		if t.Key == m.Key {
			return t.Value == m.Value
		}
	}
	return false
}

func (m KeyValueMatch) AcceptIndex(keyBitmap uint64) bool {
	if m.bit == 0 {
		return true
	}
	return keyBitmap&m.bit != 0
}

// AndMatcher is a short-circuit conjunction of matchers (spec §9:
// "combine predicates with a short-circuit conjunction node").
type AndMatcher struct {
	Matchers []Matcher
}

// And builds an AndMatcher from ms.
func And(ms ...Matcher) AndMatcher {
	return AndMatcher{Matchers: ms}
}

func (a AndMatcher) Accept(f FeatureRecord) bool {
	for _, m := range a.Matchers {
		if !m.Accept(f) {
			return false
		}
	}
	return true
}

func (a AndMatcher) AcceptIndex(keyBitmap uint64) bool {
	for _, m := range a.Matchers {
		if !m.AcceptIndex(keyBitmap) {
			return false
		}
	}
	return true
}

// noFilter is used when Store.Query is called with a nil SpatialFilter:
// every tile and feature passes with an unknown turbo hint.
type noFilter struct{}

func (noFilter) AcceptTile(TIP, orb.Bound) int          { return TurboUnknown }
func (noFilter) AcceptFeature(FeatureRecord, int) bool { return true }
