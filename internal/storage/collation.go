package storage

import (
	"strings"

	"golang.org/x/text/cases"
	"modernc.org/sqlite"
)

// unicaseCollation compares text after Unicode case folding. SQLite's
// built-in NOCASE only folds ASCII letters.
const unicaseCollation = "UNICASE"

func init() {
	sqlite.MustRegisterCollationUtf8(unicaseCollation, compareFolded)
}

// foldName returns the case-folded form used for name comparisons
func foldName(s string) string {
	// A Caser is stateful and must not be shared between goroutines
	return cases.Fold().String(s)
}

func compareFolded(left, right string) int {
	return strings.Compare(foldName(left), foldName(right))
}
