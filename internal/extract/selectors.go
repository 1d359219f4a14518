package extract

// Selectors locate product facts on the detail page.
type Selectors struct {
	Name         string
	Price        string
	Rating       string
	ReviewCount  string
	DetailToggle string
	DetailArea   string
	DetailImages string
	ReviewTab    string
	ReviewArea   string
	GraphArea    string
}

func DefaultSelectors() Selectors {
	return Selectors{
		Name:         "#Contents > div.prd_detail_box.renew > div.right_area > div > p.prd_name",
		Price:        "#totalPrcTxt",
		Rating:       "#repReview > b",
		ReviewCount:  "#repReview > em",
		DetailToggle: "#btn_toggle_detail_image",
		DetailArea:   "#tempHtml2",
		DetailImages: "#tempHtml2 > div img",
		ReviewTab:    "#reviewInfo > a",
		ReviewArea:   "#gdasContentsArea",
		GraphArea:    "#gdasContentsArea > div > div.product_rating_area.review-write-delete > div > div.graph_area",
	}
}
