package extract

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// parsePlain returns content as a string, replacing invalid UTF-8
// sequences with the replacement character.
func parsePlain(content []byte) (*Parsed, error) {
	text := string(content)
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, "�")
	}
	return &Parsed{
		Content:   text,
		FileType:  "text",
		PageCount: 1,
		WordCount: countWords(text),
	}, nil
}

var (
	mdHeading   = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	mdCodeFence = regexp.MustCompile("(?m)^```[^\n]*$")
	mdLink      = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	mdImage     = regexp.MustCompile(`!\[([^\]]*)\]\([^)]*\)`)
	mdEmphasis  = regexp.MustCompile(`\*{1,3}|~~`)
	mdInline    = regexp.MustCompile("`([^`]*)`")
)

// parseMarkdown strips markdown syntax so only the readable text is
// indexed. Link targets and image URLs are dropped, link text kept.
func parseMarkdown(content []byte) (*Parsed, error) {
	plain, err := parsePlain(content)
	if err != nil {
		return nil, err
	}

	text := plain.Content
	text = mdImage.ReplaceAllString(text, "$1")
	text = mdLink.ReplaceAllString(text, "$1")
	text = mdCodeFence.ReplaceAllString(text, "")
	text = mdHeading.ReplaceAllString(text, "")
	text = mdInline.ReplaceAllString(text, "$1")
	text = mdEmphasis.ReplaceAllString(text, "")
	text = strings.TrimSpace(text)

	return &Parsed{
		Content:   text,
		FileType:  "markdown",
		PageCount: 1,
		WordCount: countWords(text),
	}, nil
}
