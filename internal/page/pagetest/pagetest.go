// Package pagetest provides an in-memory page.Session backed by goquery so
// extraction and pagination can be exercised without a browser.
package pagetest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/maltedev/review-scraper/internal/page"
)

// ClickFunc reacts to a click on an element matching a registered selector.
// It usually swaps the document with SetHTML.
type ClickFunc func(p *Page, target *goquery.Selection) error

type clickHandler struct {
	selector string
	fn       ClickFunc
}

// Page is a fake rendered page. Replacing the document detaches every
// element handed out before, like a re-render in a real browser.
type Page struct {
	mu           sync.Mutex
	url          string
	doc          *goquery.Document
	generation   int
	handlers     []clickHandler
	waitFailures map[string]int
	onReload     func(p *Page)
	clicks       []string
	scrolls      []float64
	reloads      int
	closed       int
	dumps        []string
}

// New returns a page at url rendering html.
func New(url, html string) *Page {
	p := &Page{
		url:          url,
		waitFailures: make(map[string]int),
	}
	p.SetHTML(html)
	return p
}

// SetHTML replaces the document.
func (p *Page) SetHTML(html string) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		panic(fmt.Sprintf("pagetest: parse html: %v", err))
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.doc = doc
	p.generation++
}

// OnClick registers fn for clicks on elements matching selector.
func (p *Page) OnClick(selector string, fn ClickFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers = append(p.handlers, clickHandler{selector: selector, fn: fn})
}

// FailWait makes the next n WaitFor calls for selector time out.
func (p *Page) FailWait(selector string, n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.waitFailures[selector] += n
}

// OnReload registers a hook run on every Reload.
func (p *Page) OnReload(fn func(p *Page)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onReload = fn
}

func (p *Page) Clicks() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.clicks...)
}

func (p *Page) Scrolls() []float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]float64(nil), p.scrolls...)
}

func (p *Page) Reloads() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reloads
}

// Closed reports how many times Close was called.
func (p *Page) Closed() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *Page) Dumps() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.dumps...)
}

func (p *Page) URL() string {
	return p.url
}

func (p *Page) WaitFor(selector string, timeout time.Duration) (page.Element, error) {
	p.mu.Lock()
	if n := p.waitFailures[selector]; n > 0 {
		p.waitFailures[selector] = n - 1
		p.mu.Unlock()
		return nil, &page.ElementNotFoundError{Selector: selector, Timeout: timeout}
	}
	p.mu.Unlock()

	el, err := p.Query(selector)
	if err != nil {
		return nil, err
	}
	if el == nil {
		return nil, &page.ElementNotFoundError{Selector: selector, Timeout: timeout}
	}
	return el, nil
}

func (p *Page) Query(selector string) (page.Element, error) {
	els, err := p.QueryAll(selector)
	if err != nil || len(els) == 0 {
		return nil, err
	}
	return els[0], nil
}

func (p *Page) QueryAll(selector string) ([]page.Element, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.wrap(p.doc.Find(selector)), nil
}

func (p *Page) Scroll(fraction float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scrolls = append(p.scrolls, fraction)
	return nil
}

func (p *Page) Reload(timeout time.Duration) error {
	p.mu.Lock()
	p.reloads++
	p.generation++
	hook := p.onReload
	p.mu.Unlock()

	if hook != nil {
		hook(p)
	}
	return nil
}

func (p *Page) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed++
	return nil
}

func (p *Page) Dump(dir, name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dumps = append(p.dumps, name)
	return nil
}

// wrap must be called with p.mu held.
func (p *Page) wrap(sel *goquery.Selection) []page.Element {
	els := make([]page.Element, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		els = append(els, &element{page: p, sel: s, generation: p.generation})
	})
	return els
}

type element struct {
	page       *Page
	sel        *goquery.Selection
	generation int
}

// live must be called with page.mu held.
func (e *element) live() error {
	if e.generation != e.page.generation {
		return page.ErrDetached
	}
	return nil
}

func (e *element) Text() (string, error) {
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	if err := e.live(); err != nil {
		return "", err
	}
	return strings.TrimSpace(e.sel.Text()), nil
}

func (e *element) Attribute(name string) (string, bool, error) {
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	if err := e.live(); err != nil {
		return "", false, err
	}
	v, ok := e.sel.Attr(name)
	return v, ok, nil
}

func (e *element) QueryAll(selector string) ([]page.Element, error) {
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	if err := e.live(); err != nil {
		return nil, err
	}
	return e.page.wrap(e.sel.Find(selector)), nil
}

func (e *element) Click() error {
	p := e.page
	p.mu.Lock()
	if err := e.live(); err != nil {
		p.mu.Unlock()
		return err
	}

	var matched []clickHandler
	for _, h := range p.handlers {
		if p.doc.Find(h.selector).IsSelection(e.sel) {
			matched = append(matched, h)
		}
	}
	p.clicks = append(p.clicks, describe(e.sel))
	p.mu.Unlock()

	for _, h := range matched {
		if err := h.fn(p, e.sel); err != nil {
			return err
		}
	}
	return nil
}

func describe(sel *goquery.Selection) string {
	if id, ok := sel.Attr("id"); ok {
		return "#" + id
	}
	name := goquery.NodeName(sel)
	if text := strings.TrimSpace(sel.Text()); text != "" {
		return name + ":" + text
	}
	return name
}

// Opener hands out registered pages by URL.
type Opener struct {
	mu       sync.Mutex
	pages    map[string]*Page
	failures map[string]int
	opened   []string
}

func NewOpener() *Opener {
	return &Opener{
		pages:    make(map[string]*Page),
		failures: make(map[string]int),
	}
}

// Add registers p under its URL.
func (o *Opener) Add(p *Page) *Page {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pages[p.URL()] = p
	return p
}

// FailOpen makes the next n Open calls for url fail with a navigation error.
func (o *Opener) FailOpen(url string, n int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failures[url] += n
}

// Opened returns the URLs passed to Open in call order.
func (o *Opener) Opened() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.opened...)
}

func (o *Opener) Open(ctx context.Context, url string) (page.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, &page.NavigationError{URL: url, Err: err}
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.opened = append(o.opened, url)

	if n := o.failures[url]; n > 0 {
		o.failures[url] = n - 1
		return nil, &page.NavigationError{URL: url, Err: page.ErrTimeout}
	}

	p, ok := o.pages[url]
	if !ok {
		return nil, &page.NavigationError{URL: url, Err: fmt.Errorf("no page registered")}
	}
	return p, nil
}
