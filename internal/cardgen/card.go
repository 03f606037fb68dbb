// Package cardgen talks to the external card renderer and bundles rendered
// cards for download.
package cardgen

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
)

// CR80 card size in PDF points.
const (
	CardWidthPt  = 153
	CardHeightPt = 243
)

// Card is the data printed on one ID card.
type Card struct {
	SubmissionID string `json:"submissionId"`
	Name         string `json:"name"`
	IDNumber     string `json:"idNumber"`
	PhotoURL     string `json:"photoUrl"`
	Location     string `json:"location,omitempty"`
}

var unsafeName = regexp.MustCompile(`[^a-z0-9]+`)

// FileName is the name a rendered card gets inside a bundle or download.
func (c Card) FileName() string {
	slug := strings.Trim(unsafeName.ReplaceAllString(strings.ToLower(c.Name), "-"), "-")
	if slug == "" {
		slug = "card"
	}
	id := c.IDNumber
	if id == "" {
		id = c.SubmissionID
	}
	id = strings.Trim(unsafeName.ReplaceAllString(strings.ToLower(id), "-"), "-")
	if id == "" {
		return slug + ".pdf"
	}
	return slug + "-" + id + ".pdf"
}

// Validate checks that data parses as a PDF with at least one page.
func Validate(data []byte) (err error) {
	// the parser panics on some malformed inputs
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return fmt.Errorf("malformed pdf: %w", err)
	}
	if r.NumPage() < 1 {
		return fmt.Errorf("pdf has no pages")
	}
	return nil
}
