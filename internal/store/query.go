package store

import (
	"strings"

	"github.com/tonimelisma/mediavault/internal/catalog"
)

// filter accumulates WHERE clauses and their arguments.
type filter struct {
	clauses []string
	args    []any
}

func (f *filter) add(clause string, args ...any) {
	f.clauses = append(f.clauses, clause)
	f.args = append(f.args, args...)
}

func (f *filter) addEq(column, value string) {
	if value != "" {
		f.add(column+" = ?", value)
	}
}

func (f *filter) addKeyword(keyword string) {
	if kw := catalog.FoldKeyword(keyword); kw != "" {
		f.add(`search_text LIKE ? ESCAPE '\'`, "%"+escapeLike(kw)+"%")
	}
}

func (f *filter) where() string {
	if len(f.clauses) == 0 {
		return ""
	}

	return " WHERE " + strings.Join(f.clauses, " AND ")
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

	return r.Replace(s)
}

// orderBy renders an ORDER BY clause. Nullable columns sort NULLs last in
// both directions. Ties always fall back to id ascending so that offset
// pagination is stable.
func orderBy(column string, nullable, desc bool) string {
	dir := " ASC"
	if desc {
		dir = " DESC"
	}

	var b strings.Builder

	b.WriteString(" ORDER BY ")

	if nullable {
		b.WriteString(column + " IS NULL, ")
	}

	b.WriteString(column + dir + ", id ASC")

	return b.String()
}

// searchText builds the folded text indexed for keyword search.
func searchText(parts ...string) string {
	folded := make([]string, 0, len(parts))

	for _, p := range parts {
		if f := catalog.FoldKeyword(p); f != "" {
			folded = append(folded, f)
		}
	}

	return strings.Join(folded, "\n")
}
