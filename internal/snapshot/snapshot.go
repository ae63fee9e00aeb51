package snapshot

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/PuerkitoBio/goquery"
	"github.com/gomarkdown/markdown/ast"
	"github.com/gomarkdown/markdown/parser"
	"golang.org/x/net/html"

	"github.com/rohmanhakim/spec-harvester/internal/fetcher"
	"github.com/rohmanhakim/spec-harvester/internal/metadata"
	"github.com/rohmanhakim/spec-harvester/internal/storage"
	"github.com/rohmanhakim/spec-harvester/pkg/failure"
	"github.com/rohmanhakim/spec-harvester/pkg/hashutil"
	"github.com/rohmanhakim/spec-harvester/pkg/urlutil"
)

/*
Evidence snapshots

Confirmed pages get a readable markdown snapshot so reviewers can see an
accepted value in context without re-fetching a page that may since have
changed. Conversion keeps semantic structure (headings, tables); site
chrome (nav, scripts, footers) is stripped first; the result is bounded.
*/

// Snapshot is one stored evidence page.
type Snapshot struct {
	URLHash    string    `json:"url_hash"`
	SourceURL  string    `json:"source_url"`
	Markdown   string    `json:"-"`
	Headings   int       `json:"headings"`
	Tables     int       `json:"tables"`
	Truncated  bool      `json:"truncated,omitempty"`
	CapturedAt time.Time `json:"captured_at"`
}

// chrome is what gets removed before conversion.
var chromeSelectors = []string{
	"script", "style", "noscript", "nav", "header", "footer", "aside",
	"[role=navigation]", "[class*=cookie]", "[class*=banner]",
}

type Writer struct {
	metadataSink metadata.MetadataSink
	storage      storage.Storage
	maxBytes     int
}

func NewWriter(metadataSink metadata.MetadataSink, store storage.Storage, maxBytes int) Writer {
	return Writer{
		metadataSink: metadataSink,
		storage:      store,
		maxBytes:     maxBytes,
	}
}

// Capture converts a fetched page and persists the snapshot under
// products/<productId>/snapshots/.
func (w *Writer) Capture(productID string, page fetcher.FetchResult) (Snapshot, failure.ClassifiedError) {
	snapshot, err := Convert(page, w.maxBytes)
	if err != nil {
		w.metadataSink.RecordError(
			time.Now(),
			"snapshot",
			"Writer.Capture",
			metadata.CauseContentInvalid,
			err.Error(),
			[]metadata.Attribute{metadata.NewAttr(metadata.AttrURL, page.URL)},
		)
		return Snapshot{}, err
	}

	key := "products/" + productID + "/snapshots/" + snapshot.URLHash + ".md"
	if writeErr := w.storage.WriteObject(key, []byte(snapshot.Markdown), "text/markdown"); writeErr != nil {
		return Snapshot{}, writeErr
	}
	return snapshot, nil
}

// Convert produces a bounded markdown snapshot from a fetched page.
// Pure over its inputs.
func Convert(page fetcher.FetchResult, maxBytes int) (Snapshot, failure.ClassifiedError) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return Snapshot{}, &SnapshotError{
			Message:   fmt.Sprintf("parse HTML: %v", err),
			Retryable: false,
		}
	}
	for _, selector := range chromeSelectors {
		doc.Find(selector).Remove()
	}

	var contentNode *html.Node
	if nodes := doc.Selection.Nodes; len(nodes) > 0 {
		contentNode = nodes[0]
	}
	if contentNode == nil {
		return Snapshot{}, &SnapshotError{Message: "empty document", Retryable: false}
	}

	conv := converter.NewConverter(
		converter.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(),
			table.NewTablePlugin(),
		),
	)
	md, err := conv.ConvertNode(contentNode)
	if err != nil {
		return Snapshot{}, &SnapshotError{
			Message:   fmt.Sprintf("convert: %v", err),
			Retryable: false,
		}
	}

	markdownText := strings.TrimSpace(string(md))
	truncated := false
	if maxBytes > 0 && len(markdownText) > maxBytes {
		markdownText = markdownText[:maxBytes]
		truncated = true
	}

	headings, tables := audit(markdownText)
	return Snapshot{
		URLHash:    hashutil.ShortHash(urlutil.CanonicalString(page.URL), 12),
		SourceURL:  page.URL,
		Markdown:   markdownText,
		Headings:   headings,
		Tables:     tables,
		Truncated:  truncated,
		CapturedAt: page.FetchedAt,
	}, nil
}

// audit walks the markdown AST and counts structural elements; a
// snapshot with neither headings nor tables is still stored but the
// counts let reviewers rank snapshot quality.
func audit(markdownText string) (headings, tables int) {
	p := parser.NewWithExtensions(parser.CommonExtensions)
	root := p.Parse([]byte(markdownText))
	ast.WalkFunc(root, func(node ast.Node, entering bool) ast.WalkStatus {
		if !entering {
			return ast.GoToNext
		}
		switch node.(type) {
		case *ast.Heading:
			headings++
		case *ast.Table:
			tables++
		}
		return ast.GoToNext
	})
	return headings, tables
}
