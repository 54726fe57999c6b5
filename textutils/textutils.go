// Package textutils provides named constants for common ASCII characters and
// their string forms, so call sites can read "ColonChar" instead of a bare
// rune literal.
package textutils

const (
	// EmptyStr is the empty string.
	EmptyStr = ""
	// NewLineString is the platform-independent newline used for joining
	// multi-line output (error lists, log messages).
	NewLineString = "\n"
	// WhiteSpaceStr is a single space.
	WhiteSpaceStr = " "

	// AUpperChar is 'A'.
	AUpperChar = 'A'
	// ZUpperChar is 'Z'.
	ZUpperChar = 'Z'
	// ALowerChar is 'a'.
	ALowerChar = 'a'
	// ZLowerChar is 'z'.
	ZLowerChar = 'z'

	// ColonChar is ':'.
	ColonChar = ':'
	// ColonStr is ":".
	ColonStr = ":"
	// SemiColonStr is ";".
	SemiColonStr = ";"
	// EqualChar is '='.
	EqualChar = '='
	// EqualStr is "=".
	EqualStr = "="
	// PeriodStr is ".".
	PeriodStr = "."
	// ForwardSlashChar is '/'.
	ForwardSlashChar = '/'
	// ForwardSlashStr is "/".
	ForwardSlashStr = "/"
	// BackSlashChar is '\\'.
	BackSlashChar = '\\'
	// HashChar is '#'.
	HashChar = '#'
	// DollarChar is '$'.
	DollarChar = '$'
	// OpenBraceChar is '{'.
	OpenBraceChar = '{'
	// CloseBraceChar is '}'.
	CloseBraceChar = '}'
	// CloseBraceStr is "}".
	CloseBraceStr = "}"
)
