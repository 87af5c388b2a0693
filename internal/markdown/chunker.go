package markdown

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
)

// Config bounds chunk sizes. Sizes are measured in characters.
type Config struct {
	MaxSize      int // Maximum characters per chunk body
	Overlap      int // Characters carried from the end of one chunk into the next
	MinChunkSize int // Minimum viable chunk size
}

// DefaultConfig returns the standard chunking parameters.
func DefaultConfig() Config {
	return Config{MaxSize: 1500, Overlap: 800, MinChunkSize: 100}
}

// Chunk is one embeddable piece of a document.
type Chunk struct {
	Content  string // Section header (if any) + blank line + body
	Source   string
	Section  string
	Position int
	Title    string
}

func newChunk(source, title, section, body string, position int) Chunk {
	content := body
	if section != "" {
		content = section + "\n\n" + body
	}
	return Chunk{
		Content:  content,
		Source:   source,
		Section:  section,
		Position: position,
		Title:    title,
	}
}

// Chunker splits markdown at header lines, then paragraphs, then sentences,
// keeping an overlap tail between consecutive chunks.
type Chunker struct {
	md  goldmark.Markdown
	cfg Config
}

// NewChunker creates a chunker. Zero fields in cfg take their defaults.
func NewChunker(cfg Config) *Chunker {
	def := DefaultConfig()
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = def.MaxSize
	}
	if cfg.Overlap < 0 {
		cfg.Overlap = 0
	}
	if cfg.MinChunkSize <= 0 {
		cfg.MinChunkSize = def.MinChunkSize
	}
	return &Chunker{
		md:  goldmark.New(goldmark.WithParserOptions(parser.WithAutoHeadingID())),
		cfg: cfg,
	}
}

// Config returns the effective configuration.
func (c *Chunker) Config() Config {
	return c.cfg
}

var (
	paragraphBreak = regexp.MustCompile(`\n\s*\n`)
	sentenceEnd    = regexp.MustCompile(`[.!?]+\s+`)
)

// Chunk splits content into chunks. Whitespace-only content yields nil.
// Positions run sequentially across the whole document.
func (c *Chunker) Chunk(content, source, title string) []Chunk {
	if strings.TrimSpace(content) == "" {
		return nil
	}

	var chunks []Chunk
	for _, sec := range c.splitSections([]byte(content)) {
		for _, body := range c.splitSection(sec.body) {
			chunks = append(chunks, newChunk(source, title, sec.header, body, len(chunks)))
		}
	}
	return chunks
}

type section struct {
	header string
	body   string
}

type headingLine struct {
	start, end int // byte range of the whole header line
	title      string
}

// headingLines returns top-level ATX headings. Parsing with goldmark means
// '#' lines inside fenced code are not mistaken for headers.
func (c *Chunker) headingLines(src []byte) []headingLine {
	doc := c.md.Parser().Parse(text.NewReader(src))

	var lines []headingLine
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		h, ok := n.(*ast.Heading)
		if !ok || h.Lines().Len() == 0 {
			continue
		}
		seg := h.Lines().At(0)
		title := strings.TrimSpace(string(seg.Value(src)))
		if title == "" {
			continue
		}

		start := strings.LastIndexByte(string(src[:seg.Start]), '\n') + 1
		if src[start] != '#' {
			// Setext or indented heading.
			continue
		}
		end := len(src)
		if i := strings.IndexByte(string(src[seg.Stop:]), '\n'); i >= 0 {
			end = seg.Stop + i
		}
		lines = append(lines, headingLine{start: start, end: end, title: title})
	}
	return lines
}

func (c *Chunker) splitSections(src []byte) []section {
	var sections []section
	last := 0
	current := ""

	for _, h := range c.headingLines(src) {
		if last < h.start {
			if body := strings.TrimSpace(string(src[last:h.start])); body != "" {
				sections = append(sections, section{header: current, body: body})
			}
		}
		current = h.title
		last = h.end
	}
	if rest := strings.TrimSpace(string(src[last:])); rest != "" {
		sections = append(sections, section{header: current, body: rest})
	}
	return sections
}

func (c *Chunker) splitSection(body string) []string {
	if runeLen(body) <= c.cfg.MaxSize {
		return []string{body}
	}

	p := &packer{maxSize: c.cfg.MaxSize, overlap: c.cfg.Overlap}
	for _, para := range splitParagraphs(body) {
		if runeLen(para) <= c.cfg.MaxSize {
			p.add(para, "\n\n")
			continue
		}
		for i, sentence := range splitSentences(para) {
			sep := " "
			if i == 0 {
				sep = "\n\n"
			}
			for j, piece := range c.splitOversized(sentence) {
				if j > 0 {
					sep = " "
				}
				p.add(piece, sep)
			}
		}
	}
	return p.finish()
}

// splitOversized hard-splits a sentence longer than MaxSize at word
// boundaries into pieces of at most half of MaxSize, leaving room for overlap.
func (c *Chunker) splitOversized(sentence string) []string {
	if runeLen(sentence) <= c.cfg.MaxSize {
		return []string{sentence}
	}
	limit := max(c.cfg.MaxSize/2, 1)

	var pieces []string
	var cur strings.Builder
	curLen := 0
	flush := func() {
		if curLen > 0 {
			pieces = append(pieces, cur.String())
			cur.Reset()
			curLen = 0
		}
	}

	for _, word := range strings.Fields(sentence) {
		for runeLen(word) > limit {
			flush()
			head, tail := splitRunes(word, limit)
			pieces = append(pieces, head)
			word = tail
		}
		wl := runeLen(word)
		if curLen > 0 && curLen+1+wl > limit {
			flush()
		}
		if curLen > 0 {
			cur.WriteByte(' ')
			curLen++
		}
		cur.WriteString(word)
		curLen += wl
	}
	flush()
	return pieces
}

func splitParagraphs(body string) []string {
	var out []string
	for _, p := range paragraphBreak.Split(body, -1) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func splitSentences(para string) []string {
	var out []string
	last := 0
	for _, m := range sentenceEnd.FindAllStringIndex(para, -1) {
		if s := strings.TrimSpace(para[last:m[1]]); s != "" {
			out = append(out, s)
		}
		last = m[1]
	}
	if rest := strings.TrimSpace(para[last:]); rest != "" {
		out = append(out, rest)
	}
	return out
}

// packer greedily joins pieces into chunks of at most maxSize characters.
// Each new chunk is seeded with an overlap tail of the previous one, shrunk
// so the seeded chunk still fits.
type packer struct {
	maxSize int
	overlap int

	buf    strings.Builder
	length int
	out    []string
}

func (p *packer) add(piece, sep string) {
	pl := runeLen(piece)
	sl := runeLen(sep)

	if p.length > 0 && p.length+sl+pl > p.maxSize {
		flushed := p.buf.String()
		p.out = append(p.out, flushed)
		p.buf.Reset()
		p.length = 0

		budget := min(p.overlap, p.maxSize-pl-sl)
		if budget > 0 {
			if tail := overlapTail(flushed, budget); tail != "" {
				p.buf.WriteString(tail)
				p.length = runeLen(tail)
			}
		}
	}

	if p.length > 0 {
		p.buf.WriteString(sep)
		p.length += sl
	}
	p.buf.WriteString(piece)
	p.length += pl
}

func (p *packer) finish() []string {
	if p.length > 0 {
		p.out = append(p.out, p.buf.String())
	}
	return p.out
}

// overlapTail returns roughly the last n characters of s, starting after a
// sentence boundary if one falls inside, else after the first space.
func overlapTail(s string, n int) string {
	if runeLen(s) <= n {
		return s
	}
	_, tail := splitRunes(s, runeLen(s)-n)

	if loc := sentenceEnd.FindStringIndex(tail); loc != nil {
		return strings.TrimSpace(tail[loc[1]:])
	}
	if i := strings.IndexByte(tail, ' '); i > 0 {
		return strings.TrimSpace(tail[i:])
	}
	return strings.TrimSpace(tail)
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}

// splitRunes splits s after its first n runes.
func splitRunes(s string, n int) (string, string) {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos], s[pos:]
		}
		i++
	}
	return s, ""
}
