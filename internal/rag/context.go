package rag

import (
	"fmt"
	"strings"

	"github.com/duvidaki/duvidaki/internal/store"
	"github.com/duvidaki/duvidaki/internal/validate"
)

// blockSeparator joins context blocks. It must stay distinct from
// anything a chunk is likely to contain so the model can tell sources
// apart.
const blockSeparator = "\n\n---\n\n"

// BuildContext renders retrieved chunks into the prompt context.
// Results must already be in nearest-first order; block order is the
// relevance signal the model sees.
//
// Each block carries the uppercased source tag, a title (falling back
// to a file path, then a generic placeholder), an optional URL line,
// and the raw chunk text.
func BuildContext(results []store.Result) string {
	blocks := make([]string, 0, len(results))

	for i, r := range results {
		source, _ := r.Metadata["source"].(string)
		if source == "" {
			source = "unknown"
		}

		title, _ := r.Metadata["title"].(string)
		if title == "" {
			title, _ = r.Metadata["file_path"].(string)
		}
		if title == "" {
			title = "Document"
		}

		var b strings.Builder
		fmt.Fprintf(&b, "[Source %d - %s]\n", i+1, strings.ToUpper(source))
		fmt.Fprintf(&b, "Title: %s\n", title)
		// Malformed URLs in crawled metadata are dropped rather than
		// echoed into the prompt.
		if url, _ := r.Metadata["url"].(string); validate.ValidateURL(url) {
			fmt.Fprintf(&b, "URL: %s\n", url)
		}
		fmt.Fprintf(&b, "\n%s\n", r.Document)

		blocks = append(blocks, b.String())
	}

	return strings.Join(blocks, blockSeparator)
}
