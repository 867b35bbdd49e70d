package object

import (
	"sort"
	"strings"

	"github.com/kamusis/embr/internal/errs"
)

// MinPrefixLen is the shortest hash prefix Resolve accepts.
const MinPrefixLen = 4

// Table is a sorted snapshot of pool hashes supporting prefix lookup.
type Table []string

// NewTable sorts hashes into a lookup table.
func NewTable(hashes []string) Table {
	t := make(Table, len(hashes))
	copy(t, hashes)
	sort.Strings(t)
	return t
}

// Match returns up to limit hashes beginning with prefix.
func (t Table) Match(prefix string, limit int) []string {
	i := sort.SearchStrings(t, prefix)
	var out []string
	for ; i < len(t) && strings.HasPrefix(t[i], prefix); i++ {
		out = append(out, t[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// Resolve expands a full hash or an unambiguous prefix of at least
// MinPrefixLen characters to a full hash.
func (t Table) Resolve(ref string) (string, error) {
	ref = strings.ToLower(strings.TrimSpace(ref))
	if len(ref) < MinPrefixLen {
		return "", errs.New(errs.CodeObjectHashTooShort,
			"Hash too short: need at least 4 characters", errs.FieldHash(ref))
	}
	if len(ref) > HashLen || !isHex(ref) {
		return "", errs.New(errs.CodeObjectNotFound, "Embedding not found", errs.FieldHash(ref))
	}
	matches := t.Match(ref, 2)
	switch len(matches) {
	case 0:
		return "", errs.New(errs.CodeObjectNotFound, "Embedding not found", errs.FieldHash(ref))
	case 1:
		return matches[0], nil
	default:
		return "", errs.New(errs.CodeObjectHashAmbiguous,
			"ambiguous hash prefix "+ref+": matches "+strings.Join(t.Match(ref, 0), ", "), errs.FieldHash(ref))
	}
}

// Resolve expands ref against the objects currently in the pool.
func (s *Store) Resolve(ref string) (string, error) {
	full := strings.ToLower(strings.TrimSpace(ref))
	if isHash(full) && s.Has(full) {
		return full, nil
	}
	hashes, err := s.List()
	if err != nil {
		return "", err
	}
	return NewTable(hashes).Resolve(ref)
}
