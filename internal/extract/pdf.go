package extract

import (
	"bytes"
	"fmt"

	"github.com/ledongthuc/pdf"
)

// parsePDF extracts text page by page, tagging each page so search hits
// can be traced back to a location. A page whose text extraction fails is
// recorded as such rather than failing the whole document.
func parsePDF(content []byte) (*Parsed, error) {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("open PDF: %w", err)
	}

	numPages := r.NumPage()
	var parts []string
	for i := 1; i <= numPages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			parts = append(parts, fmt.Sprintf("[Page %d]\n[Text extraction failed]", i))
			continue
		}
		if len(bytes.TrimSpace([]byte(text))) > 0 {
			parts = append(parts, fmt.Sprintf("[Page %d]\n%s", i, text))
		}
	}

	full := joinParagraphs(parts)
	return &Parsed{
		Content:   full,
		FileType:  "pdf",
		PageCount: numPages,
		WordCount: countWords(full),
	}, nil
}

func joinParagraphs(parts []string) string {
	var buf bytes.Buffer
	for i, p := range parts {
		if i > 0 {
			buf.WriteString("\n\n")
		}
		buf.WriteString(p)
	}
	return buf.String()
}
