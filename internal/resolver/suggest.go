package resolver

import (
	"github.com/couchcryptid/garbagecal/internal/domain"
	"github.com/sahilm/fuzzy"
)

// Suggest ranks reference streets against query for autocompletion. Full
// matches come first, then partial matches, then fuzzy matches by score. At
// most limit suggestions are returned; limit <= 0 means no limit.
func Suggest(streets []domain.Street, query string, limit int) []domain.Address {
	addrs := uniqueStreets(streets)

	out := domain.FilterAddresses(addrs, query)
	if domain.Normalize(query) == "" {
		return truncate(out, limit)
	}

	taken := make(map[int]bool, len(out))
	for i, a := range addrs {
		for _, o := range out {
			if a == o {
				taken[i] = true
			}
		}
	}

	names := make([]string, len(addrs))
	for i, a := range addrs {
		names[i] = domain.Normalize(a.Formatted())
	}
	for _, m := range fuzzy.Find(domain.Normalize(query), names) {
		if taken[m.Index] {
			continue
		}
		taken[m.Index] = true
		out = append(out, addrs[m.Index])
	}
	return truncate(out, limit)
}

func uniqueStreets(streets []domain.Street) []domain.Address {
	seen := make(map[domain.Address]bool, len(streets))
	out := make([]domain.Address, 0, len(streets))
	for _, s := range streets {
		a := domain.Address{Street: s.Name, Zip: s.Zip, City: s.City}
		if seen[a] {
			continue
		}
		seen[a] = true
		out = append(out, a)
	}
	return out
}

func truncate(addrs []domain.Address, limit int) []domain.Address {
	if limit > 0 && len(addrs) > limit {
		return addrs[:limit]
	}
	return addrs
}
