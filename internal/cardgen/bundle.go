package cardgen

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/zip"
)

// Bundle streams rendered cards into a ZIP archive.
type Bundle struct {
	zw    *zip.Writer
	names map[string]bool
	now   time.Time
}

func NewBundle(w io.Writer) *Bundle {
	return &Bundle{zw: zip.NewWriter(w), names: make(map[string]bool), now: time.Now()}
}

// Add writes one file and returns the name it was stored under. Clashing
// names get a numeric suffix.
func (b *Bundle) Add(name string, data []byte) (string, error) {
	name = b.unique(name)
	// PDFs are already compressed
	w, err := b.zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Store, Modified: b.now})
	if err != nil {
		return "", fmt.Errorf("failed to add %s: %w", name, err)
	}
	if _, err := w.Write(data); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", name, err)
	}
	return name, nil
}

// AddJSON writes v as an indented, deflated JSON file.
func (b *Bundle) AddJSON(name string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", name, err)
	}
	w, err := b.zw.CreateHeader(&zip.FileHeader{Name: b.unique(name), Method: zip.Deflate, Modified: b.now})
	if err != nil {
		return fmt.Errorf("failed to add %s: %w", name, err)
	}
	_, err = w.Write(data)
	return err
}

func (b *Bundle) Close() error {
	return b.zw.Close()
}

func (b *Bundle) unique(name string) string {
	if !b.names[name] {
		b.names[name] = true
		return name
	}
	ext := ""
	base := name
	for i := len(name) - 1; i >= 0 && name[i] != '/'; i-- {
		if name[i] == '.' {
			base, ext = name[:i], name[i:]
			break
		}
	}
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s-%d%s", base, n, ext)
		if !b.names[candidate] {
			b.names[candidate] = true
			return candidate
		}
	}
}
