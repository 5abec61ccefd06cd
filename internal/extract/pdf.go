package extract

import (
	"bytes"
	"fmt"

	"github.com/ledongthuc/pdf"
)

// parsePDF extracts text page by page. Individual page failures become
// warnings; only a document the reader cannot open at all is an error.
// The pdf library panics on some malformed content streams, so every
// call into it is fenced with a recover.
func parsePDF(data []byte) (pages []string, warnings []string, err error) {
	reader, err := openPDF(data)
	if err != nil {
		return nil, nil, err
	}

	total := reader.NumPage()
	pages = make([]string, 0, total)
	for i := 1; i <= total; i++ {
		text, perr := extractPage(reader, i)
		if perr != nil {
			warnings = append(warnings, fmt.Sprintf("page %d: %v", i, perr))
			pages = append(pages, "")
			continue
		}
		pages = append(pages, text)
	}
	return pages, warnings, nil
}

func openPDF(data []byte) (reader *pdf.Reader, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("open pdf: %v", rec)
		}
	}()
	return pdf.NewReader(bytes.NewReader(data), int64(len(data)))
}

func extractPage(reader *pdf.Reader, n int) (text string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("extract text: %v", rec)
		}
	}()

	page := reader.Page(n)
	if page.V.IsNull() {
		return "", fmt.Errorf("missing page object")
	}
	return page.GetPlainText(nil)
}
