// Package checkpoint persists the next sheet row to process for each
// worksheet so an interrupted run can resume.
package checkpoint

import (
	"context"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const keyPrefix = "grok_checkpoint_"

// Store loads and saves resume points. Load reports ok=false when no
// checkpoint exists for the unit.
type Store interface {
	Load(ctx context.Context, unit string) (row int, ok bool, err error)
	Save(ctx context.Context, unit string, row int) error
	Reset(ctx context.Context, unit string) error
}

var lower = cases.Lower(language.Und)

// Key derives the storage key for a worksheet name: lower-cased, with
// whitespace and path separators replaced by underscores.
func Key(unit string) string {
	name := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || r == '/' || r == '\\' {
			return '_'
		}
		return r
	}, lower.String(unit))
	return keyPrefix + name
}
