package extractor

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/rohmanhakim/spec-harvester/internal/fetcher"
	"github.com/rohmanhakim/spec-harvester/internal/metadata"
	"github.com/rohmanhakim/spec-harvester/internal/schema"
	"github.com/rohmanhakim/spec-harvester/pkg/failure"
	"github.com/rohmanhakim/spec-harvester/pkg/urlutil"
)

/*
DomExtractor

Extraction strategy, in priority order:
- Spec tables: <table> rows with a label cell and a value cell
- Definition lists: <dl> with <dt>/<dd> pairs
- Inline labeled pairs: "Label: value" lines inside list items

Labels resolve to field keys through the FieldMatcher (rule aliases).
Every emitted candidate carries a quote and its span within the label's
text block.
*/

type DomExtractor struct {
	metadataSink metadata.MetadataSink
	matcher      *FieldMatcher
}

func NewDomExtractor(metadataSink metadata.MetadataSink, matcher *FieldMatcher) DomExtractor {
	return DomExtractor{
		metadataSink: metadataSink,
		matcher:      matcher,
	}
}

func (d *DomExtractor) Extract(page fetcher.FetchResult) ([]Candidate, failure.ClassifiedError) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		extractionErr := &ExtractionError{
			Message:   fmt.Sprintf("parse HTML: %v", err),
			Retryable: false,
			Cause:     ErrCauseNotHTML,
		}
		d.metadataSink.RecordError(
			time.Now(),
			"extractor",
			"DomExtractor.Extract",
			mapExtractionErrorToMetadataCause(extractionErr),
			extractionErr.Message,
			[]metadata.Attribute{metadata.NewAttr(metadata.AttrURL, page.URL)},
		)
		return nil, extractionErr
	}

	var candidates []Candidate

	// Spec tables: rows shaped (label cell, value cell).
	doc.Find("table tr").Each(func(_ int, row *goquery.Selection) {
		label, value := tableRowPair(row)
		if label == "" || value == "" {
			return
		}
		if c, ok := d.candidateFor(page, label, value, MethodDomTable); ok {
			candidates = append(candidates, c)
		}
	})

	// Definition lists.
	doc.Find("dl").Each(func(_ int, dl *goquery.Selection) {
		terms := dl.Find("dt")
		defs := dl.Find("dd")
		if terms.Length() != defs.Length() {
			return
		}
		terms.Each(func(i int, dt *goquery.Selection) {
			label := cleanText(dt.Text())
			value := cleanText(defs.Eq(i).Text())
			if label == "" || value == "" {
				return
			}
			if c, ok := d.candidateFor(page, label, value, MethodDomTable); ok {
				candidates = append(candidates, c)
			}
		})
	})

	// Inline labeled pairs in list items and paragraphs.
	doc.Find("li, p").Each(func(_ int, node *goquery.Selection) {
		text := cleanText(node.Text())
		label, value, ok := splitInlinePair(text)
		if !ok {
			return
		}
		if c, ok := d.candidateFor(page, label, value, MethodDomInline); ok {
			candidates = append(candidates, c)
		}
	})

	return candidates, nil
}

func (d *DomExtractor) candidateFor(page fetcher.FetchResult, label, value string, method Method) (Candidate, bool) {
	rule, ok := d.matcher.Match(label)
	if !ok {
		return Candidate{}, false
	}

	quote := label + ": " + value
	if len(quote) > 200 {
		quote = quote[:200]
	}
	candidate := Candidate{
		Kind:       KindScalar,
		Field:      rule.Key,
		Value:      cleanText(value),
		SourceURL:  page.URL,
		Host:       hostOf(page.FinalURL, page.URL),
		RootDomain: rootDomainOf(page.FinalURL, page.URL),
		Method:     method,
		Evidence: Evidence{
			URL:         page.URL,
			FinalURL:    page.FinalURL,
			Quote:       quote,
			QuoteSpan:   []int{len(label) + 2, len(quote)},
			RetrievedAt: page.FetchedAt,
		},
	}
	applyRuleShape(&candidate, rule)
	return candidate, true
}

// applyRuleShape re-types a scalar candidate for component and list fields.
func applyRuleShape(candidate *Candidate, rule schema.FieldRule) {
	if rule.Type == schema.FieldComponentRef {
		candidate.Kind = KindComponent
		candidate.ComponentType = rule.ComponentType
	}
	if rule.IsList {
		candidate.Kind = KindList
		candidate.Values = splitListValue(candidate.Value)
	}
}

func tableRowPair(row *goquery.Selection) (label, value string) {
	headers := row.Find("th")
	cells := row.Find("td")
	switch {
	case headers.Length() == 1 && cells.Length() >= 1:
		return cleanText(headers.First().Text()), cleanText(cells.First().Text())
	case cells.Length() == 2:
		return cleanText(cells.Eq(0).Text()), cleanText(cells.Eq(1).Text())
	}
	return "", ""
}

// splitInlinePair splits "Label: value" lines; the label side must stay
// short so sentences with colons don't masquerade as spec pairs.
func splitInlinePair(text string) (label, value string, ok bool) {
	i := strings.IndexByte(text, ':')
	if i <= 0 || i > 40 {
		return "", "", false
	}
	label = cleanText(text[:i])
	value = cleanText(text[i+1:])
	if label == "" || value == "" || len(value) > 120 {
		return "", "", false
	}
	return label, value, true
}

func splitListValue(value string) []string {
	parts := strings.FieldsFunc(value, func(r rune) bool {
		return r == ',' || r == ';' || r == '/'
	})
	var out []string
	for _, part := range parts {
		if trimmed := cleanText(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func hostOf(finalURL, fallback string) string {
	raw := finalURL
	if raw == "" {
		raw = fallback
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Host
}

func rootDomainOf(finalURL, fallback string) string {
	return urlutil.RootDomain(hostOf(finalURL, fallback))
}
