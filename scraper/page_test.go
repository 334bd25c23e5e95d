package scraper

import "testing"

const pageFixture = `<html><body>
<p class="price"> <span>Rp</span> 1,5 Miliar </p>
<p class="empty"><span>nested only</span></p>
<p class="fallback">Fallback text</p>
<div class="desc">First line<br>Second <b>bold</b><script>var x = 1;</script><!-- note --></div>
<a class="item" href="/property/abc">A</a>
<a class="item" href="https://other.example/property/def">B</a>
<a class="item">no href</a>
</body></html>`

func TestPageFirstTextUsesOwnText(t *testing.T) {
	page := mustPage(t, "https://example.com/list?page=3", pageFixture)

	got, ok := page.FirstText([]string{"p.price"})
	if !ok || got != "1,5 Miliar" {
		t.Errorf("FirstText: got %q (ok=%v), want %q", got, ok, "1,5 Miliar")
	}
}

func TestPageFirstTextFallsBack(t *testing.T) {
	page := mustPage(t, "https://example.com/", pageFixture)

	got, ok := page.FirstText([]string{"p.missing", "p.empty", "p.fallback"})
	if !ok || got != "Fallback text" {
		t.Errorf("FirstText: got %q (ok=%v), want %q", got, ok, "Fallback text")
	}
	if _, ok := page.FirstText([]string{"p.missing"}); ok {
		t.Error("FirstText should report a miss")
	}
}

func TestPageTextFragments(t *testing.T) {
	page := mustPage(t, "https://example.com/", pageFixture)

	got := page.TextFragments([]string{"div.desc"})
	want := []string{"First line", "Second", "bold"}
	if len(got) != len(want) {
		t.Fatalf("TextFragments: got %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("fragment %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestPageLinksAreAbsolute(t *testing.T) {
	page := mustPage(t, "https://example.com/list?page=3", pageFixture)

	got := page.Links("a.item")
	want := []string{"https://example.com/property/abc", "https://other.example/property/def"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("Links: got %q, want %q", got, want)
	}
}

func TestPageNumber(t *testing.T) {
	tests := []struct {
		url    string
		want   int
		wantOK bool
	}{
		{"https://example.com/list?page=3", 3, true},
		{"https://example.com/list?page=abc", 0, false},
		{"https://example.com/list?page=0", 0, false},
		{"https://example.com/list", 0, false},
	}
	for _, tt := range tests {
		page := mustPage(t, tt.url, "<html></html>")
		got, ok := page.PageNumber("page")
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("PageNumber(%s): got (%d, %v), want (%d, %v)", tt.url, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestWithPageNumber(t *testing.T) {
	got, err := withPageNumber("https://example.com/list?sort=new&page=2", "page", 3)
	if err != nil {
		t.Fatal(err)
	}
	if got != "https://example.com/list?page=3&sort=new" {
		t.Errorf("withPageNumber: got %q", got)
	}
}

func TestPageAttrSkipsElementsWithoutValue(t *testing.T) {
	page := mustPage(t, "https://example.com/list?page=2", `<html><body>
<a class="pagination-next disabled">Next</a>
<a class="pagination-next" href="  ">Next</a>
<a class="pagination-next" href="?page=3">Next</a>
</body></html>`)

	got, ok := page.Attr("a.pagination-next", "href")
	if !ok || got != "?page=3" {
		t.Errorf("Attr: got %q (ok=%v), want %q", got, ok, "?page=3")
	}
	if _, ok := page.Attr("a.pagination-next", "data-missing"); ok {
		t.Error("Attr should report a miss when no match carries the attribute")
	}
}
