package pagination

import (
	"math"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestParse(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		query     string
		wantPage  int
		wantLimit int
	}{
		{"", DefaultPage, DefaultLimit},
		{"?page=3&limit=5", 3, 5},
		{"?page=0&limit=0", DefaultPage, DefaultLimit},
		{"?page=abc&limit=-4", DefaultPage, DefaultLimit},
		{"?limit=1000", DefaultPage, MaxLimit},
		{"?page=9223372036854775807&limit=100", MaxPage, MaxLimit},
		{"?page=99999999999999999999", MaxPage, DefaultLimit},
	}

	for _, tt := range tests {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest("GET", "/list"+tt.query, nil)

		p := Parse(c)
		if p.Page != tt.wantPage || p.Limit != tt.wantLimit {
			t.Errorf("Parse(%q) = page %d limit %d, want %d %d", tt.query, p.Page, p.Limit, tt.wantPage, tt.wantLimit)
		}
		if p.Offset < 0 || p.Offset != (p.Page-1)*p.Limit {
			t.Errorf("Parse(%q) offset = %d", tt.query, p.Offset)
		}
	}
}

func TestNormalizeHugePage(t *testing.T) {
	for _, page := range []int{MaxPage + 1, math.MaxInt / 2, math.MaxInt} {
		p := Normalize(page, MaxLimit)
		if p.Page != MaxPage {
			t.Errorf("Normalize(%d) page = %d, want %d", page, p.Page, MaxPage)
		}
		if p.Offset < 0 || p.Offset != (MaxPage-1)*MaxLimit {
			t.Errorf("Normalize(%d) offset = %d", page, p.Offset)
		}
	}
}

func TestNewPage(t *testing.T) {
	tests := []struct {
		name      string
		total     int64
		params    Params
		wantPages int
		wantNext  bool
	}{
		{"empty", 0, Normalize(1, 10), 0, false},
		{"exact fit", 20, Normalize(1, 10), 2, true},
		{"last page", 20, Normalize(2, 10), 2, false},
		{"partial page", 21, Normalize(2, 10), 3, true},
		{"past the end", 5, Normalize(4, 10), 1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := NewPage[int](nil, tt.total, tt.params)
			if page.Results == nil {
				t.Fatal("results must not be nil")
			}
			if page.TotalPages != tt.wantPages {
				t.Errorf("TotalPages = %d, want %d", page.TotalPages, tt.wantPages)
			}
			if page.HasNext != tt.wantNext {
				t.Errorf("HasNext = %v, want %v", page.HasNext, tt.wantNext)
			}
			if page.TotalCount != tt.total {
				t.Errorf("TotalCount = %d, want %d", page.TotalCount, tt.total)
			}
		})
	}
}
