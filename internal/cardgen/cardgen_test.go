package cardgen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"idportal/internal/apperr"

	"github.com/klauspost/compress/zip"
)

// onePagePDF builds the smallest document the parser accepts, with exact
// xref offsets.
func onePagePDF() []byte {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 %d %d] >>", CardWidthPt, CardHeightPt),
	}
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func TestValidate(t *testing.T) {
	if err := Validate(onePagePDF()); err != nil {
		t.Fatalf("Validate(valid) = %v", err)
	}
	for name, data := range map[string][]byte{
		"empty":     nil,
		"html":      []byte("<html><body>renderer error</body></html>"),
		"truncated": onePagePDF()[:40],
	} {
		if err := Validate(data); err == nil {
			t.Errorf("Validate(%s) = nil, want error", name)
		}
	}
}

func TestCardFileName(t *testing.T) {
	tests := []struct {
		card Card
		want string
	}{
		{Card{Name: "Ada Lovelace", IDNumber: "E-100"}, "ada-lovelace-e-100.pdf"},
		{Card{Name: "  ", SubmissionID: "abc"}, "card-abc.pdf"},
		{Card{Name: "Zoë O'Neil"}, "zo-o-neil.pdf"},
	}
	for _, tt := range tests {
		if got := tt.card.FileName(); got != tt.want {
			t.Errorf("FileName(%+v) = %q, want %q", tt.card, got, tt.want)
		}
	}
}

func TestHTTPRendererRender(t *testing.T) {
	var got renderRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write(onePagePDF())
	}))
	defer srv.Close()

	r := NewHTTPRenderer(srv.URL, time.Second, nil)
	data, err := r.Render(context.Background(), Card{Name: "Ada", IDNumber: "7", PhotoURL: "http://x/p.jpg"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		t.Errorf("unexpected body %q", data[:8])
	}
	if got.Name != "Ada" || got.Width != CardWidthPt || got.Height != CardHeightPt {
		t.Errorf("renderer received %+v", got)
	}
}

func TestHTTPRendererFailuresAreExternal(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}},
		{"not a pdf", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, "<html>oops</html>")
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			_, err := NewHTTPRenderer(srv.URL, time.Second, nil).Render(context.Background(), Card{Name: "x"})
			if !apperr.Is(err, apperr.KindExternalDependency) {
				t.Fatalf("err = %v, want external dependency", err)
			}
		})
	}

	_, err := NewHTTPRenderer("", time.Second, nil).Render(context.Background(), Card{})
	if !apperr.Is(err, apperr.KindExternalDependency) {
		t.Fatalf("unconfigured renderer err = %v", err)
	}
}

func TestBundle(t *testing.T) {
	var buf bytes.Buffer
	b := NewBundle(&buf)
	for _, tc := range []struct{ in, want, body string }{
		{"a.pdf", "a.pdf", "one"},
		{"a-2.pdf", "a-2.pdf", "taken"},
		{"a.pdf", "a-3.pdf", "two"},
	} {
		got, err := b.Add(tc.in, []byte(tc.body))
		if err != nil {
			t.Fatal(err)
		}
		if got != tc.want {
			t.Errorf("Add(%q) stored as %q, want %q", tc.in, got, tc.want)
		}
	}
	if err := b.AddJSON("results.json", map[string]int{"succeeded": 2}); err != nil {
		t.Fatal(err)
	}
	if err := b.Close(); err != nil {
		t.Fatal(err)
	}

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("zip.NewReader: %v", err)
	}
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	if strings.Join(names, ",") != "a.pdf,a-2.pdf,a-3.pdf,results.json" {
		t.Errorf("names = %v", names)
	}

	rc, err := zr.File[2].Open()
	if err != nil {
		t.Fatal(err)
	}
	defer rc.Close()
	body, _ := io.ReadAll(rc)
	if string(body) != "two" {
		t.Errorf("second file = %q", body)
	}
}
