package parser

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Strategy looks up one field value. It returns "" when the page does not
// have what it looks for.
type Strategy func(doc *goquery.Document) string

// cascade returns the first non-empty result of strategies, in order.
func cascade(doc *goquery.Document, strategies []Strategy) string {
	for _, s := range strategies {
		if v := strings.TrimSpace(s(doc)); v != "" {
			return v
		}
	}
	return ""
}

// FirstText reads the text of the first node matching selector.
func FirstText(selector string) Strategy {
	return func(doc *goquery.Document) string {
		sel := doc.Find(selector).First()
		if sel.Length() == 0 {
			return ""
		}
		return text(sel)
	}
}

// Labelled reads the first node matching selector and strips the first
// label found in its text. Nodes without any of the labels yield "".
func Labelled(selector string, labels ...string) Strategy {
	return func(doc *goquery.Document) string {
		v := text(doc.Find(selector).First())
		for _, label := range labels {
			if strings.Contains(v, label) {
				return strings.TrimSpace(strings.Replace(v, label, "", 1))
			}
		}
		return ""
	}
}

// Trail joins the texts of the last n nodes matching selector with " > ".
func Trail(selector string, n int) Strategy {
	return func(doc *goquery.Document) string {
		var parts []string
		doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
			if t := text(s); t != "" {
				parts = append(parts, t)
			}
		})
		if len(parts) > n {
			parts = parts[len(parts)-n:]
		}
		return strings.Join(parts, " > ")
	}
}

func text(s *goquery.Selection) string {
	return strings.Join(strings.Fields(s.Text()), " ")
}
