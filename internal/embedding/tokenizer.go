package embedding

import "regexp"

// whitespaceRe matches runs of whitespace, including the Unicode space
// separators, line/paragraph separators and the byte order mark.
var whitespaceRe = regexp.MustCompile(`[\s\v\x{85}\p{Z}\x{FEFF}]+`)

// Tokenize splits text on runs of whitespace. Leading or trailing
// whitespace yields an empty first or last token and an empty text yields
// a single empty token; these are kept as is.
func Tokenize(text string) []string {
	return whitespaceRe.Split(text, -1)
}
