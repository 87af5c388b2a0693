package markdown

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"go.abhg.dev/goldmark/toc"
)

var titleParser = goldmark.New(goldmark.WithParserOptions(parser.WithAutoHeadingID()))

// Title returns the text of the first heading in source, or "" if the
// document has none.
func Title(source []byte) string {
	doc := titleParser.Parser().Parse(text.NewReader(source))

	tree, err := toc.Inspect(doc, source,
		toc.MinDepth(1),
		toc.MaxDepth(6),
		toc.Compact(true),
	)
	if err != nil || len(tree.Items) == 0 {
		return ""
	}
	return strings.TrimSpace(string(tree.Items[0].Title))
}
