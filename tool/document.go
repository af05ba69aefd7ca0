package tool

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/hupe1980/teammesh/core"
)

// Document is the structured form of a parsed document.
type Document struct {
	Format  string   `json:"format"`
	Title   string   `json:"title,omitempty"`
	Outline []string `json:"outline,omitempty"`
	Text    string   `json:"text"`
	Links   []string `json:"links,omitempty"`
	Words   int      `json:"words"`
}

var markdown = goldmark.New()

// ParseMarkdown extracts an outline, plain text and links from markdown.
// Outline entries are indented two spaces per heading level below one.
func ParseMarkdown(src []byte) *Document {
	doc := &Document{Format: "markdown"}
	root := markdown.Parser().Parse(text.NewReader(src))

	var sb strings.Builder

	_ = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch node := n.(type) {
		case *ast.Heading:
			if entering {
				title := headingText(node, src)
				if doc.Title == "" && node.Level == 1 {
					doc.Title = title
				}
				doc.Outline = append(doc.Outline, strings.Repeat("  ", node.Level-1)+title)
			}
		case *ast.Link:
			if entering {
				doc.Links = append(doc.Links, string(node.Destination))
			}
		case *ast.AutoLink:
			if entering {
				doc.Links = append(doc.Links, string(node.URL(src)))
			}
		case *ast.Text:
			if entering {
				sb.Write(node.Segment.Value(src))
				if node.SoftLineBreak() || node.HardLineBreak() {
					sb.WriteByte(' ')
				}
			}
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			if entering {
				lines := n.Lines()
				for i := 0; i < lines.Len(); i++ {
					seg := lines.At(i)
					sb.Write(seg.Value(src))
				}
				return ast.WalkSkipChildren, nil
			}
		}

		if !entering && n.Type() == ast.TypeBlock {
			sb.WriteByte('\n')
		}

		return ast.WalkContinue, nil
	})

	doc.Text = tidyLines(sb.String())
	doc.Words = len(strings.Fields(doc.Text))

	return doc
}

func headingText(h *ast.Heading, src []byte) string {
	var sb strings.Builder
	for c := h.FirstChild(); c != nil; c = c.NextSibling() {
		if t, ok := c.(*ast.Text); ok {
			sb.Write(t.Segment.Value(src))
			continue
		}
		for gc := c.FirstChild(); gc != nil; gc = gc.NextSibling() {
			if t, ok := gc.(*ast.Text); ok {
				sb.Write(t.Segment.Value(src))
			}
		}
	}
	return strings.TrimSpace(sb.String())
}

// ParseHTMLDocument converts an HTML document to a Document.
func ParseHTMLDocument(src []byte) (*Document, error) {
	page, err := ExtractPage(bytes.NewReader(src), nil)
	if err != nil {
		return nil, err
	}

	return &Document{
		Format:  "html",
		Title:   page.Title,
		Outline: page.Headings,
		Text:    page.Text,
		Links:   page.Links,
		Words:   len(strings.Fields(page.Text)),
	}, nil
}

// NewDocumentParseTool returns the parse_document tool.
func NewDocumentParseTool() Tool {
	const name = "parse_document"

	return NewFunctionTool(
		name,
		"Parse a markdown, HTML or plain text document into title, outline, plain text and links.",
		objectSchema(map[string]any{
			"content": prop("string", "Document content"),
			"format":  map[string]any{"type": "string", "enum": []string{"markdown", "html", "text"}},
		}, "content"),
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			content, _ := args["content"].(string)
			src := []byte(content)

			format := stringArg(args, "format")
			if format == "" {
				format = sniffFormat(content)
			}

			switch format {
			case "markdown":
				return ParseMarkdown(src), nil
			case "html":
				return ParseHTMLDocument(src)
			default:
				t := tidyLines(content)
				return &Document{Format: "text", Text: t, Words: len(strings.Fields(t))}, nil
			}
		},
	)
}

func sniffFormat(content string) string {
	head := strings.ToLower(strings.TrimSpace(content))
	if len(head) > 512 {
		head = head[:512]
	}
	switch {
	case strings.HasPrefix(head, "<!doctype html"), strings.HasPrefix(head, "<html"), strings.Contains(head, "<body"):
		return "html"
	case strings.HasPrefix(head, "#"), strings.Contains(head, "\n#"), strings.Contains(head, "]("):
		return "markdown"
	default:
		return "text"
	}
}
