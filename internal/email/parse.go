package email

import (
	"bytes"
	"io"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/emersion/go-message/mail"
)

// ParsedEmail holds the structured form of a raw message
type ParsedEmail struct {
	Subject  string
	From     string
	To       string
	BodyText string
	BodyHTML string
}

var (
	collapseWhitespace = regexp.MustCompile(`[^\S\n]+`)
	collapseNewlines   = regexp.MustCompile(`\n{3,}`)
)

// ParseMessage parses raw message bytes into a ParsedEmail. It never fails:
// unparseable input degrades to the raw bytes as body text.
func ParseMessage(raw []byte) *ParsedEmail {
	parsed := &ParsedEmail{}

	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		parsed.BodyText = string(raw)
		return parsed
	}

	parsed.Subject, _ = mr.Header.Subject()
	if from, err := mr.Header.AddressList("From"); err == nil && len(from) > 0 {
		parsed.From = from[0].Address
	}
	if to, err := mr.Header.AddressList("To"); err == nil {
		addrs := make([]string, 0, len(to))
		for _, a := range to {
			addrs = append(addrs, a.Address)
		}
		parsed.To = strings.Join(addrs, ", ")
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}

		if h, ok := part.Header.(*mail.InlineHeader); ok {
			ct, _, _ := h.ContentType()
			body, err := io.ReadAll(part.Body)
			if err != nil {
				continue
			}

			if strings.HasPrefix(ct, "text/html") {
				parsed.BodyHTML = string(body)
			} else if strings.HasPrefix(ct, "text/plain") {
				parsed.BodyText = string(body)
			}
		}
	}

	if parsed.BodyText == "" && parsed.BodyHTML != "" {
		parsed.BodyText = htmlToText(parsed.BodyHTML)
	}
	if parsed.BodyText == "" && parsed.BodyHTML == "" {
		parsed.BodyText = string(raw)
	}

	return parsed
}

// htmlToText extracts readable text from an HTML body
func htmlToText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return html
	}

	doc.Find("script, style, head, meta, link").Remove()
	doc.Find("p, div, br, h1, h2, h3, h4, h5, h6, li, tr").Each(func(i int, s *goquery.Selection) {
		s.PrependHtml("\n")
	})

	text := doc.Text()
	text = collapseWhitespace.ReplaceAllString(text, " ")

	lines := strings.Split(text, "\n")
	var cleaned []string
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			cleaned = append(cleaned, line)
		}
	}
	text = strings.Join(cleaned, "\n")
	text = collapseNewlines.ReplaceAllString(text, "\n\n")

	return strings.TrimSpace(text)
}
