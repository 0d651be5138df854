package sheet

import (
	"context"
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Column headers created when missing.
const (
	HeaderPostExists = "Post Exist?"
	HeaderHandle     = "Twitter Handle"
	HeaderConfidence = "Confidence Score"
	HeaderScriptRun  = "Script Run"
)

// ScriptRunColumn is the fixed position of the processed marker column.
const ScriptRunColumn = 8

// maxHeaderDistance bounds the fuzzy header match.
const maxHeaderDistance = 2

// Layout holds the 1-based column of each role. Zero means absent.
type Layout struct {
	Wallet     int `json:"wallet" yaml:"wallet"`
	PostExists int `json:"post_exists" yaml:"post_exists"`
	Handle     int `json:"handle" yaml:"handle"`
	Confidence int `json:"confidence" yaml:"confidence"`
	ScriptRun  int `json:"script_run" yaml:"script_run"`
}

type role int

const (
	roleWallet role = iota
	rolePostExists
	roleHandle
	roleConfidence
	roleScriptRun
)

func (l *Layout) col(r role) *int {
	switch r {
	case roleWallet:
		return &l.Wallet
	case rolePostExists:
		return &l.PostExists
	case roleHandle:
		return &l.Handle
	case roleConfidence:
		return &l.Confidence
	default:
		return &l.ScriptRun
	}
}

// holdsRole reports whether col is used by a data or result column.
func (l *Layout) holdsRole(col int) bool {
	return col == l.Wallet || col == l.PostExists || col == l.Handle || col == l.Confidence
}

// shiftFrom moves every column at or after col one to the right.
func (l *Layout) shiftFrom(col int) {
	for r := roleWallet; r <= roleScriptRun; r++ {
		if c := l.col(r); *c >= col {
			*c++
		}
	}
}

type headerRule struct {
	role      role
	canonical string
	match     func(h string) bool
}

var headerRules = []headerRule{
	{roleWallet, "wallet address", func(h string) bool {
		return strings.Contains(h, "wallet") && strings.Contains(h, "address")
	}},
	{rolePostExists, "post exist", func(h string) bool {
		return strings.Contains(h, "post exist") || strings.Contains(h, "post_exist")
	}},
	{roleHandle, "twitter handle", func(h string) bool {
		return strings.Contains(h, "twitter") && strings.Contains(h, "handle")
	}},
	{roleConfidence, "confidence score", func(h string) bool {
		return strings.Contains(h, "confidence") && strings.Contains(h, "score")
	}},
	{roleScriptRun, "script run", func(h string) bool {
		return strings.Contains(h, "script") && strings.Contains(h, "run")
	}},
}

// Discover maps header cells to roles. Each header is claimed by the first
// rule it satisfies; roles still unmatched are then tried against the
// remaining headers by edit distance.
func Discover(header []string) Layout {
	var l Layout
	claimed := make([]bool, len(header))

	for i, h := range header {
		hl := strings.ToLower(h)
		for _, rule := range headerRules {
			if !rule.match(hl) {
				continue
			}
			if c := l.col(rule.role); *c == 0 {
				*c = i + 1
			}
			claimed[i] = true
			break
		}
	}

	for _, rule := range headerRules {
		c := l.col(rule.role)
		if *c != 0 {
			continue
		}
		for i, h := range header {
			if claimed[i] {
				continue
			}
			n := normalizeHeader(h)
			if n == "" || levenshtein.ComputeDistance(n, rule.canonical) > maxHeaderDistance {
				continue
			}
			*c = i + 1
			claimed[i] = true
			break
		}
	}
	return l
}

func normalizeHeader(h string) string {
	return strings.Join(strings.FieldsFunc(strings.ToLower(h), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}), " ")
}

// Bootstrap discovers the layout of ws and creates the result columns it
// lacks. Missing output columns are appended after the last header. The
// processed marker always ends up in column 8: narrower sheets are padded
// with blank columns, and an existing column 8 is relabelled only when it is
// not a wallet or result column and has no values below its header.
// Otherwise a new column is inserted there.
func Bootstrap(ctx context.Context, ws Worksheet) (Layout, error) {
	header, err := ws.Header(ctx)
	if err != nil {
		return Layout{}, eris.Wrapf(err, "sheet: read header of %s", ws.Title())
	}

	l := Discover(header)
	if l.Wallet == 0 {
		return Layout{}, eris.Errorf("sheet: worksheet %q has no wallet address column", ws.Title())
	}

	width := len(header)
	outputs := []struct {
		role   role
		header string
	}{
		{rolePostExists, HeaderPostExists},
		{roleHandle, HeaderHandle},
		{roleConfidence, HeaderConfidence},
	}
	for _, o := range outputs {
		c := l.col(o.role)
		if *c != 0 {
			continue
		}
		width++
		if err := ws.InsertColumn(ctx, width, o.header); err != nil {
			return Layout{}, eris.Wrapf(err, "sheet: add %q column", o.header)
		}
		*c = width
	}

	if l.ScriptRun != ScriptRunColumn {
		if err := placeScriptRun(ctx, ws, &l, width); err != nil {
			return Layout{}, err
		}
	}

	zap.L().Info("worksheet columns ready",
		zap.String("worksheet", ws.Title()),
		zap.Int("wallet_col", l.Wallet),
		zap.Int("post_exists_col", l.PostExists),
		zap.Int("handle_col", l.Handle),
		zap.Int("confidence_col", l.Confidence),
		zap.Int("script_run_col", l.ScriptRun),
	)
	return l, nil
}

func placeScriptRun(ctx context.Context, ws Worksheet, l *Layout, width int) error {
	for width < ScriptRunColumn-1 {
		width++
		if err := ws.InsertColumn(ctx, width, ""); err != nil {
			return eris.Wrap(err, "sheet: pad columns")
		}
	}

	insert := width < ScriptRunColumn || l.holdsRole(ScriptRunColumn)
	if !insert {
		used, err := columnHasData(ctx, ws, ScriptRunColumn)
		if err != nil {
			return err
		}
		insert = used
	}

	if insert {
		if err := ws.InsertColumn(ctx, ScriptRunColumn, HeaderScriptRun); err != nil {
			return eris.Wrap(err, "sheet: insert script run column")
		}
		l.shiftFrom(ScriptRunColumn)
	} else if err := ws.WriteCell(ctx, 1, ScriptRunColumn, HeaderScriptRun); err != nil {
		return eris.Wrap(err, "sheet: label script run column")
	}
	l.ScriptRun = ScriptRunColumn
	return nil
}

// columnHasData reports whether any cell below the header in col is non-blank.
func columnHasData(ctx context.Context, ws Worksheet, col int) (bool, error) {
	rows, err := ws.Rows(ctx)
	if err != nil {
		return false, eris.Wrapf(err, "sheet: read rows of %s", ws.Title())
	}
	for i := 1; i < len(rows); i++ {
		if col <= len(rows[i]) && strings.TrimSpace(rows[i][col-1]) != "" {
			return true, nil
		}
	}
	return false, nil
}
