package pagetest

import (
	"fmt"
	"html"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Image is one detail image tag.
type Image struct {
	Src          string
	DataSrc      string
	DataOriginal string
}

// Product is the content rendered by Site. Empty strings omit the element.
type Product struct {
	Name         string
	Price        string
	Rating       string
	ReviewCount  string
	Distribution []string
	Images       []Image
	// ReviewPages holds review texts per page in helpful order. Until the
	// helpful sort is applied each page lists its texts in reverse. An
	// empty text renders a photo-only review without a text block.
	ReviewPages [][]string
	NoSort      bool
	NoToggle    bool
	// SortDelay re-renders the list this long after the sort click
	// instead of during it.
	SortDelay time.Duration
	// SortIgnored makes the sort click have no effect.
	SortIgnored bool
}

// Site simulates a product detail page with a collapsed detail section,
// a lazily rendered review tab, a sort control and block pagination.
type Site struct {
	Page    *Page
	Product Product

	mu         sync.Mutex
	current    int
	detail     bool
	reviewTab  bool
	helpful    bool
	loseClicks int
	moves      int
}

// NewSite renders p at url and wires its controls.
func NewSite(url string, p Product) *Site {
	s := &Site{Product: p, current: 1}
	s.Page = New(url, s.render())

	s.Page.OnClick("#btn_toggle_detail_image", func(pg *Page, _ *goquery.Selection) error {
		s.update(func() { s.detail = true })
		return nil
	})
	s.Page.OnClick("#reviewInfo > a", func(pg *Page, _ *goquery.Selection) error {
		s.update(func() { s.reviewTab = true })
		return nil
	})
	s.Page.OnClick("#gdasSort > li:nth-child(2) > a", func(pg *Page, _ *goquery.Selection) error {
		s.mu.Lock()
		ignored, delay := s.Product.SortIgnored, s.Product.SortDelay
		s.mu.Unlock()

		apply := func() {
			s.update(func() {
				s.helpful = true
				s.current = 1
			})
		}
		switch {
		case ignored:
		case delay > 0:
			time.AfterFunc(delay, apply)
		default:
			apply()
		}
		return nil
	})
	s.Page.OnClick("div.pageing a", func(pg *Page, target *goquery.Selection) error {
		n, err := strconv.Atoi(target.AttrOr("data-page", ""))
		if err != nil {
			return fmt.Errorf("pager link without data-page: %w", err)
		}
		s.mu.Lock()
		if s.loseClicks > 0 {
			s.loseClicks--
			s.mu.Unlock()
			return nil
		}
		s.mu.Unlock()
		s.update(func() {
			s.current = n
			s.moves++
		})
		return nil
	})
	s.Page.OnReload(func(pg *Page) {
		s.update(func() {
			s.detail = false
			s.reviewTab = false
			s.helpful = false
			s.current = 1
		})
	})

	return s
}

// LosePagerClicks makes the next n pager clicks have no effect.
func (s *Site) LosePagerClicks(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loseClicks += n
}

// Moves reports how many pager clicks changed the page.
func (s *Site) Moves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.moves
}

// SetProduct replaces the content and re-renders.
func (s *Site) SetProduct(p Product) {
	s.update(func() { s.Product = p })
}

func (s *Site) update(fn func()) {
	s.mu.Lock()
	fn()
	doc := s.render()
	s.mu.Unlock()
	s.Page.SetHTML(doc)
}

// render must be called with s.mu held, or before the site is shared.
func (s *Site) render() string {
	p := s.Product
	var b strings.Builder

	b.WriteString(`<html><body><div id="Contents"><div class="prd_detail_box renew"><div class="right_area"><div>`)
	if p.Name != "" {
		fmt.Fprintf(&b, `<p class="prd_name">%s</p>`, html.EscapeString(p.Name))
	}
	if p.Price != "" {
		fmt.Fprintf(&b, `<span id="totalPrcTxt">%s</span>`, html.EscapeString(p.Price))
	}
	b.WriteString(`<p id="repReview">`)
	if p.Rating != "" {
		fmt.Fprintf(&b, `<b>%s</b>`, html.EscapeString(p.Rating))
	}
	if p.ReviewCount != "" {
		fmt.Fprintf(&b, `<em>%s</em>`, html.EscapeString(p.ReviewCount))
	}
	b.WriteString(`</p></div></div></div></div>`)

	b.WriteString(`<ul class="prd_detail_tab"><li id="reviewInfo"><a href="#">리뷰</a></li></ul>`)
	if !p.NoToggle {
		b.WriteString(`<button id="btn_toggle_detail_image">상세정보 더보기</button>`)
	}
	if s.detail {
		b.WriteString(`<div id="tempHtml2">`)
		for _, img := range p.Images {
			b.WriteString(`<div><img`)
			writeAttr(&b, "src", img.Src)
			writeAttr(&b, "data-src", img.DataSrc)
			writeAttr(&b, "data-original", img.DataOriginal)
			b.WriteString(`></div>`)
		}
		b.WriteString(`</div>`)
	}

	if s.reviewTab {
		b.WriteString(`<div id="gdasContentsArea"><div>`)
		if p.Distribution != nil {
			b.WriteString(`<div class="product_rating_area review-write-delete"><div><div class="graph_area"><ul>`)
			for _, v := range p.Distribution {
				fmt.Fprintf(&b, `<li><span class="per">%s</span></li>`, html.EscapeString(v))
			}
			b.WriteString(`</ul></div></div></div>`)
		}
		if !p.NoSort {
			b.WriteString(`<ul id="gdasSort"><li><a href="#">최신순</a></li><li><a href="#">도움순</a></li></ul>`)
		}
		s.renderReviews(&b)
		b.WriteString(`</div></div>`)
	}

	b.WriteString(`</body></html>`)
	return b.String()
}

func (s *Site) renderReviews(b *strings.Builder) {
	pages := s.Product.ReviewPages
	b.WriteString(`<ul id="gdasList">`)
	if s.current >= 1 && s.current <= len(pages) {
		texts := pages[s.current-1]
		if !s.helpful {
			texts = reversed(texts)
		}
		for _, text := range texts {
			b.WriteString(`<li><div class="review_cont">`)
			if text != "" {
				fmt.Fprintf(b, `<div class="txt_inner">%s</div>`, html.EscapeString(text))
			} else {
				b.WriteString(`<div class="review_photo"><img src="https://image.example/photo.jpg"></div>`)
			}
			b.WriteString(`</div></li>`)
		}
	}
	b.WriteString(`</ul>`)

	total := len(pages)
	if total == 0 {
		return
	}
	start := ((s.current-1)/10)*10 + 1
	end := start + 9
	if end > total {
		end = total
	}

	b.WriteString(`<div class="pageing">`)
	if start > 1 {
		fmt.Fprintf(b, `<a class="prev" href="#" data-page="%d">이전</a>`, start-1)
	}
	for i := start; i <= end; i++ {
		if i == s.current {
			fmt.Fprintf(b, `<strong>%d</strong>`, i)
			continue
		}
		fmt.Fprintf(b, `<a href="#" data-page="%d">%d</a>`, i, i)
	}
	if end < total {
		fmt.Fprintf(b, `<a class="next" href="#" data-page="%d">다음</a>`, end+1)
	}
	b.WriteString(`</div>`)
}

func reversed(texts []string) []string {
	out := make([]string, len(texts))
	for i, t := range texts {
		out[len(texts)-1-i] = t
	}
	return out
}

func writeAttr(b *strings.Builder, name, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(b, ` %s="%s"`, name, html.EscapeString(value))
}

// ReviewPages builds n pages of per-page generated review texts.
func ReviewPages(perPage ...int) [][]string {
	pages := make([][]string, 0, len(perPage))
	seq := 0
	for pi, n := range perPage {
		texts := make([]string, 0, n)
		for i := 0; i < n; i++ {
			seq++
			texts = append(texts, fmt.Sprintf("review %d (page %d)", seq, pi+1))
		}
		pages = append(pages, texts)
	}
	return pages
}
