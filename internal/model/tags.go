package model

import (
	"sort"
	"strings"
)

const (
	SystemTagIdPrefix   = "genie.id:"
	SystemTagNamePrefix = "genie.name:"
)

func IdTag(id string) string {
	return SystemTagIdPrefix + id
}

func NameTag(name string) string {
	return SystemTagNamePrefix + name
}

func IsSystemTag(tag string) bool {
	return strings.HasPrefix(tag, SystemTagIdPrefix) || strings.HasPrefix(tag, SystemTagNamePrefix)
}

// WithSystemTags returns a sorted, de-duplicated copy of tags that carries
// exactly one genie.id and one genie.name tag for the given entity. Stale
// system tags (left over from a rename) are dropped.
func WithSystemTags(tags []string, id, name string) []string {
	set := make(map[string]struct{}, len(tags)+2)
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" || IsSystemTag(t) {
			continue
		}
		set[t] = struct{}{}
	}
	set[IdTag(id)] = struct{}{}
	set[NameTag(name)] = struct{}{}

	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// ContainsAll reports whether have is a superset of want.
func ContainsAll(have, want []string) bool {
	if len(want) == 0 {
		return true
	}
	set := make(map[string]struct{}, len(have))
	for _, t := range have {
		set[t] = struct{}{}
	}
	for _, t := range want {
		if _, ok := set[t]; !ok {
			return false
		}
	}
	return true
}
