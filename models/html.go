package models

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var brTags = strings.NewReplacer(
	"<br>", "\n",
	"<br/>", "\n",
	"<br />", "\n",
)

// StripHTML reduces a post or comment body to plain text. Line break tags
// become newlines; every other tag is dropped and entities are decoded.
func StripHTML(content string) string {
	if content == "" {
		return ""
	}

	content = brTags.Replace(content)
	if !strings.Contains(content, "<") && !strings.Contains(content, "&") {
		return content
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		// The HTML parser recovers from anything a payload can contain;
		// reader failures cannot happen with a string reader.
		return content
	}

	return doc.Text()
}
