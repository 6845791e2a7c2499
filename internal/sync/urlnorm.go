package sync

import (
	"net/url"
	"sort"
	"strings"
)

// NormalizeURL canonicalizes a bookmark URL for identity comparison during
// two-way merge. Rules: default scheme https, scheme and host lowercased,
// empty path becomes "/", query pairs sorted by key then value (blank values
// kept), fragment stripped. Unparsable input degrades to the trimmed raw
// string so matching stays deterministic.
func NormalizeURL(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}

	candidate := trimmed
	if !strings.Contains(candidate, "://") {
		candidate = "https://" + candidate
	}

	u, err := url.Parse(candidate)
	if err != nil || u.Host == "" {
		return trimmed
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)

	if u.Path == "" {
		u.Path = "/"
	}

	u.RawQuery = sortQuery(u.RawQuery)
	u.Fragment = ""
	u.RawFragment = ""

	return u.String()
}

// sortQuery rewrites a raw query string with pairs ordered by key then value.
// Pairs with blank values are preserved.
func sortQuery(rawQuery string) string {
	if rawQuery == "" {
		return ""
	}

	type pair struct{ key, value string }

	var pairs []pair

	for _, part := range strings.Split(rawQuery, "&") {
		if part == "" {
			continue
		}

		key, value, _ := strings.Cut(part, "=")

		k, err := url.QueryUnescape(key)
		if err != nil {
			k = key
		}

		v, err := url.QueryUnescape(value)
		if err != nil {
			v = value
		}

		pairs = append(pairs, pair{key: k, value: v})
	}

	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].key != pairs[j].key {
			return pairs[i].key < pairs[j].key
		}

		return pairs[i].value < pairs[j].value
	})

	var b strings.Builder

	for i, p := range pairs {
		if i > 0 {
			b.WriteByte('&')
		}

		b.WriteString(url.QueryEscape(p.key))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(p.value))
	}

	return b.String()
}
