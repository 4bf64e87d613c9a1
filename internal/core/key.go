package core

import (
	"strconv"
	"strings"
)

// CacheKey identifies a cached plan.
type CacheKey string

// cacheKeyPrefix versions the key layout so a format change never reads stale rows.
const cacheKeyPrefix = "plan:v1:"

// DeriveCacheKey builds the key for a (country, state, year) triple.
//
// Each field is length-prefixed, so values containing the separator cannot
// collide: ("a|1:b", "c") and ("a", "b|1:c") produce different keys.
func DeriveCacheKey(country, state, year string) CacheKey {
	var b strings.Builder
	b.Grow(len(cacheKeyPrefix) + len(country) + len(state) + len(year) + 12)
	b.WriteString(cacheKeyPrefix)
	writeField(&b, country)
	b.WriteByte('|')
	writeField(&b, state)
	b.WriteByte('|')
	writeField(&b, year)
	return CacheKey(b.String())
}

func writeField(b *strings.Builder, value string) {
	b.WriteString(strconv.Itoa(len(value)))
	b.WriteByte(':')
	b.WriteString(value)
}

// String returns the key text.
func (k CacheKey) String() string {
	return string(k)
}
