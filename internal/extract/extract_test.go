package extract

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/review-scraper/internal/models"
	"github.com/maltedev/review-scraper/internal/page"
	"github.com/maltedev/review-scraper/internal/page/pagetest"
)

const productURL = "https://shop.example/p/123"

func creamA() pagetest.Product {
	return pagetest.Product{
		Name:         "Cream A",
		Price:        "19,900원",
		Rating:       "4.6",
		ReviewCount:  "(152건)",
		Distribution: []string{"70%", "20%", "5%", "3%", "2%"},
		Images: []pagetest.Image{
			{Src: "https://img.example/detail-1.jpg"},
			{Src: "data:image/gif;base64,R0lGOD", DataSrc: "https://img.example/detail-2.jpg"},
			{DataOriginal: "//img.example/detail-3.jpg"},
			{Src: "https://img.example/detail-1.jpg"},
			{Src: "/relative/skip.jpg"},
		},
		ReviewPages: pagetest.ReviewPages(3),
	}
}

func TestFactExtractor_Extract(t *testing.T) {
	site := pagetest.NewSite(productURL, creamA())

	facts, err := NewFactExtractor(DefaultSelectors()).Extract(site.Page)
	require.NoError(t, err)

	require.NotNil(t, facts.Name)
	assert.Equal(t, "Cream A", *facts.Name)
	require.NotNil(t, facts.Price)
	assert.Equal(t, 19900.0, *facts.Price)
	require.NotNil(t, facts.Rating)
	assert.Equal(t, 4.6, *facts.Rating)
	require.NotNil(t, facts.ReviewCount)
	assert.Equal(t, 152, *facts.ReviewCount)
}

func TestFactExtractor_AbsentFieldsAreNil(t *testing.T) {
	product := creamA()
	product.Price = "가격 문의"
	product.Rating = ""
	site := pagetest.NewSite(productURL, product)

	facts, err := NewFactExtractor(DefaultSelectors()).Extract(site.Page)
	require.NoError(t, err)

	assert.NotNil(t, facts.Name)
	assert.Nil(t, facts.Price)
	assert.Nil(t, facts.Rating)
	assert.Equal(t, []string{"price", "rating"}, facts.Missing())
}

func TestFactExtractor_Idempotent(t *testing.T) {
	site := pagetest.NewSite(productURL, creamA())
	ex := NewFactExtractor(DefaultSelectors())

	first, err := ex.Extract(site.Page)
	require.NoError(t, err)
	second, err := ex.Extract(site.Page)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Empty(t, site.Page.Clicks())
}

func TestDistributionExtractor_Extract(t *testing.T) {
	site := pagetest.NewSite(productURL, creamA())
	sel := DefaultSelectors()

	before, err := NewDistributionExtractor(sel).Extract(site.Page)
	require.NoError(t, err)
	assert.Nil(t, before)

	require.NoError(t, ActivateReviews(site.Page, sel, time.Second))

	dist, err := NewDistributionExtractor(sel).Extract(site.Page)
	require.NoError(t, err)
	assert.Equal(t, models.Distribution{5: 70, 4: 20, 3: 5, 2: 3, 1: 2}, dist)
}

func TestDistributionExtractor_PartialRows(t *testing.T) {
	product := creamA()
	product.Distribution = []string{"70%", "20%", "-"}
	site := pagetest.NewSite(productURL, product)
	sel := DefaultSelectors()
	require.NoError(t, ActivateReviews(site.Page, sel, time.Second))

	dist, err := NewDistributionExtractor(sel).Extract(site.Page)
	require.NoError(t, err)
	assert.Equal(t, models.Distribution{5: 70, 4: 20}, dist)
	assert.False(t, dist.Complete())
}

func TestImageExtractor_Extract(t *testing.T) {
	site := pagetest.NewSite(productURL, creamA())
	sel := DefaultSelectors()

	hidden, err := NewImageExtractor(sel).Extract(site.Page)
	require.NoError(t, err)
	assert.Empty(t, hidden)

	require.NoError(t, RevealDetail(site.Page, sel, time.Second))
	assert.Equal(t, []float64{0.5}, site.Page.Scrolls())

	urls, err := NewImageExtractor(sel).Extract(site.Page)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://img.example/detail-1.jpg",
		"https://img.example/detail-2.jpg",
		"https://img.example/detail-3.jpg",
	}, urls)
}

func TestRevealDetail_MissingToggle(t *testing.T) {
	product := creamA()
	product.NoToggle = true
	site := pagetest.NewSite(productURL, product)

	err := RevealDetail(site.Page, DefaultSelectors(), 10*time.Millisecond)

	var notFound *page.ElementNotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, "#btn_toggle_detail_image", notFound.Selector)
}

func TestRevealDetail_AlreadyExpanded(t *testing.T) {
	site := pagetest.NewSite(productURL, creamA())
	sel := DefaultSelectors()

	require.NoError(t, RevealDetail(site.Page, sel, time.Second))
	require.NoError(t, RevealDetail(site.Page, sel, time.Second))

	assert.Len(t, site.Page.Clicks(), 1)
}

func TestActivateReviews_OpensTabOnce(t *testing.T) {
	site := pagetest.NewSite(productURL, creamA())
	sel := DefaultSelectors()

	require.NoError(t, ActivateReviews(site.Page, sel, time.Second))
	require.NoError(t, ActivateReviews(site.Page, sel, time.Second))

	assert.Equal(t, []string{"a:리뷰"}, site.Page.Clicks())
}
