// Package extract reads product facts, the rating distribution and detail
// images from a rendered page. Extractors only read; the page-mutating
// preparation steps are RevealDetail and ActivateReviews.
package extract

import (
	"fmt"
	"strings"
	"time"

	"github.com/maltedev/review-scraper/internal/models"
	"github.com/maltedev/review-scraper/internal/page"
	"github.com/maltedev/review-scraper/internal/parser"
)

type FactExtractor struct {
	sel Selectors
}

func NewFactExtractor(sel Selectors) *FactExtractor {
	return &FactExtractor{sel: sel}
}

// Extract returns the facts present on the page. Absent or unparsable
// fields are nil; the error is reserved for interaction faults.
func (e *FactExtractor) Extract(pg page.Page) (models.Facts, error) {
	var facts models.Facts

	name, err := firstText(pg, e.sel.Name)
	if err != nil {
		return facts, fmt.Errorf("failed to read name: %w", err)
	}
	if name != "" {
		facts.Name = &name
	}

	price, err := firstText(pg, e.sel.Price)
	if err != nil {
		return facts, fmt.Errorf("failed to read price: %w", err)
	}
	if v, ok := parser.ParseNumber(price); ok {
		facts.Price = &v
	}

	rating, err := firstText(pg, e.sel.Rating)
	if err != nil {
		return facts, fmt.Errorf("failed to read rating: %w", err)
	}
	if v, ok := parser.ParseNumber(rating); ok {
		facts.Rating = &v
	}

	count, err := firstText(pg, e.sel.ReviewCount)
	if err != nil {
		return facts, fmt.Errorf("failed to read review count: %w", err)
	}
	if v, ok := parser.ParseInt(count); ok {
		facts.ReviewCount = &v
	}

	return facts, nil
}

type DistributionExtractor struct {
	sel Selectors
}

func NewDistributionExtractor(sel Selectors) *DistributionExtractor {
	return &DistributionExtractor{sel: sel}
}

// Extract reads the five graph rows. Row i (1-based) holds the (6-i)-star
// bucket. Rows that are absent or unparsable are left out.
func (e *DistributionExtractor) Extract(pg page.Page) (models.Distribution, error) {
	dist := make(models.Distribution, len(models.Stars))

	for i, star := range models.Stars {
		selector := fmt.Sprintf("%s > ul > li:nth-child(%d) > span.per", e.sel.GraphArea, i+1)
		text, err := firstText(pg, selector)
		if err != nil {
			return nil, fmt.Errorf("failed to read %d-star percentage: %w", star, err)
		}
		if v, ok := parser.ParsePercent(text); ok {
			dist[star] = v
		}
	}

	if len(dist) == 0 {
		return nil, nil
	}
	return dist, nil
}

type ImageExtractor struct {
	sel Selectors
}

func NewImageExtractor(sel Selectors) *ImageExtractor {
	return &ImageExtractor{sel: sel}
}

var imageAttributes = []string{"src", "data-src", "data-original"}

// Extract returns the absolute image URLs of the detail section in
// document order without duplicates.
func (e *ImageExtractor) Extract(pg page.Page) ([]string, error) {
	imgs, err := pg.QueryAll(e.sel.DetailImages)
	if err != nil {
		return nil, fmt.Errorf("failed to query detail images: %w", err)
	}

	seen := make(map[string]struct{}, len(imgs))
	urls := make([]string, 0, len(imgs))
	for _, img := range imgs {
		url, err := imageURL(img)
		if err != nil {
			return nil, err
		}
		if url == "" {
			continue
		}
		if _, dup := seen[url]; dup {
			continue
		}
		seen[url] = struct{}{}
		urls = append(urls, url)
	}

	return urls, nil
}

// imageURL returns the first attribute holding an absolute http(s) URL.
// Lazy-loaded images keep a placeholder in src.
func imageURL(img page.Element) (string, error) {
	for _, attr := range imageAttributes {
		v, ok, err := img.Attribute(attr)
		if err != nil {
			return "", fmt.Errorf("failed to read image %s: %w", attr, err)
		}
		if !ok {
			continue
		}
		v = strings.TrimSpace(v)
		if strings.HasPrefix(v, "//") {
			v = "https:" + v
		}
		if strings.HasPrefix(v, "http://") || strings.HasPrefix(v, "https://") {
			return v, nil
		}
	}
	return "", nil
}

// RevealDetail scrolls to the middle of the page and expands the
// collapsed detail section so its images are rendered.
func RevealDetail(pg page.Page, sel Selectors, timeout time.Duration) error {
	if err := pg.Scroll(0.5); err != nil {
		return fmt.Errorf("failed to scroll: %w", err)
	}

	if el, err := pg.Query(sel.DetailArea); err == nil && el != nil {
		if imgs, err := pg.QueryAll(sel.DetailImages); err == nil && len(imgs) > 0 {
			return nil
		}
	}

	toggle, err := pg.WaitFor(sel.DetailToggle, timeout)
	if err != nil {
		return err
	}
	if err := toggle.Click(); err != nil {
		return fmt.Errorf("failed to expand detail section: %w", err)
	}

	if _, err := pg.WaitFor(sel.DetailArea, timeout); err != nil {
		return err
	}
	return nil
}

// ActivateReviews opens the review tab and waits for its content.
func ActivateReviews(pg page.Page, sel Selectors, timeout time.Duration) error {
	if el, err := pg.Query(sel.ReviewArea); err == nil && el != nil {
		return nil
	}

	tab, err := pg.WaitFor(sel.ReviewTab, timeout)
	if err != nil {
		return err
	}
	if err := tab.Click(); err != nil {
		return fmt.Errorf("failed to open review tab: %w", err)
	}

	if _, err := pg.WaitFor(sel.ReviewArea, timeout); err != nil {
		return err
	}
	return nil
}

func firstText(pg page.Page, selector string) (string, error) {
	el, err := pg.Query(selector)
	if err != nil || el == nil {
		return "", err
	}
	return el.Text()
}
