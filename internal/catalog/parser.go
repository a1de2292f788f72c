package catalog

import (
	"math"
	"strconv"
	"strings"

	"storefront/internal/models"
	"storefront/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Sheet column headers, compared case-insensitively
const (
	colID                 = "id"
	colName               = "name"
	colPrice              = "price"
	colDescription        = "description"
	colImages             = "images"
	colVideos             = "videos"
	colRating             = "rating"
	colCategory           = "category"
	colSubcategory        = "subcategory"
	colSubtitle           = "subtitle"
	colDiscountAmount     = "discountamount"
	colPriceAfterDiscount = "priceafterdiscount"
	colSizes              = "sizes"
	colColors             = "colors"
	colItemsLeft          = "itemsleft"
	colCommentsAndRatings = "commentsandratings"
	colTags               = "tags"
)

const ratingMarker = "#rating:"

// row gives header-addressed access to one sheet row
type row struct {
	index  map[string]int
	values []string
}

func (r row) get(col string) string {
	i, ok := r.index[col]
	if !ok || i >= len(r.values) {
		return ""
	}
	return strings.TrimSpace(r.values[i])
}

// ParseRows converts a header-first grid of cells into products.
// A bad cell never fails the parse; every field falls back to a default.
func ParseRows(rows [][]string) []models.Product {
	if len(rows) == 0 {
		return []models.Product{}
	}

	index := make(map[string]int, len(rows[0]))
	for i, h := range rows[0] {
		key := strings.ToLower(strings.TrimSpace(h))
		if _, dup := index[key]; !dup && key != "" {
			index[key] = i
		}
	}

	products := make([]models.Product, 0, len(rows)-1)
	seen := make(map[int64]struct{}, len(rows)-1)
	for n, values := range rows[1:] {
		r := row{index: index, values: values}
		if r.get(colID) == "" {
			continue
		}

		p := parseProduct(r)
		if _, dup := seen[p.ID]; dup {
			util.GetLogger().Warn("Skipping duplicate product row",
				zap.Int("row", n+2),
				zap.Int64("product_id", p.ID))
			continue
		}
		seen[p.ID] = struct{}{}
		products = append(products, p)
	}

	return products
}

func parseProduct(r row) models.Product {
	p := models.Product{
		ID:          parseInt64(r.get(colID)),
		Name:        r.get(colName),
		Price:       parseMoney(r.get(colPrice)),
		Description: r.get(colDescription),
		Images:      splitList(r.get(colImages)),
		Videos:      splitList(r.get(colVideos)),
		Category:    r.get(colCategory),
		Subcategory: r.get(colSubcategory),
		Subtitle:    r.get(colSubtitle),
		Sizes:       optionalList(r.get(colSizes)),
		Colors:      optionalList(r.get(colColors)),
		ItemsLeft:   optionalInt(r.get(colItemsLeft)),
		Tags:        optionalList(r.get(colTags)),
	}

	p.CommentsAndRatings = parseReviews(r.get(colCommentsAndRatings))

	// a blank or zero rating cell means "not rated yet" on the sheet
	rating, ok := parseFloat(r.get(colRating))
	if (!ok || rating <= 0) && len(p.CommentsAndRatings) > 0 {
		rating = averageRating(p.CommentsAndRatings)
	}
	p.Rating = clampRating(rating)

	p.DiscountAmount = optionalMoney(r.get(colDiscountAmount))
	p.PriceAfterDiscount = optionalMoney(r.get(colPriceAfterDiscount))
	if p.PriceAfterDiscount == nil && p.DiscountAmount != nil && p.DiscountAmount.IsPositive() {
		if after := p.Price.Sub(*p.DiscountAmount); after.IsPositive() {
			p.PriceAfterDiscount = &after
		}
	}

	return p
}

// parseReviews decodes "great fit#rating:5, too small#rating:2"
func parseReviews(cell string) []models.Review {
	if cell == "" {
		return nil
	}

	var reviews []models.Review
	for _, entry := range strings.Split(cell, ",") {
		comment, ratingPart, _ := strings.Cut(entry, ratingMarker)
		comment = strings.TrimSpace(comment)
		if comment == "" {
			continue
		}
		rating, _ := parseFloat(strings.TrimSpace(ratingPart))
		reviews = append(reviews, models.Review{
			Comment: comment,
			Rating:  clampRating(rating),
		})
	}
	return reviews
}

func averageRating(reviews []models.Review) float64 {
	var sum float64
	for _, r := range reviews {
		sum += r.Rating
	}
	return math.Round(sum/float64(len(reviews))*100) / 100
}

func clampRating(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 5:
		return 5
	default:
		return v
	}
}

func splitList(cell string) []string {
	out := []string{}
	for _, part := range strings.Split(cell, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func optionalList(cell string) []string {
	list := splitList(cell)
	if len(list) == 0 {
		return nil
	}
	return list
}

func parseInt64(s string) int64 {
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v
	}
	if f, ok := parseFloat(s); ok {
		return int64(f)
	}
	return 0
}

func optionalInt(s string) *int {
	if s == "" {
		return nil
	}
	if v, err := strconv.Atoi(s); err == nil {
		return &v
	}
	if f, ok := parseFloat(s); ok {
		v := int(f)
		return &v
	}
	return nil
}

func parseFloat(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// parseMoney accepts "1,250" and "৳1250.50" style cells; anything else is 0
func parseMoney(s string) decimal.Decimal {
	d := optionalMoney(s)
	if d == nil || d.IsNegative() {
		return decimal.Zero
	}
	return *d
}

func optionalMoney(s string) *decimal.Decimal {
	s = strings.TrimSpace(strings.NewReplacer(",", "", "৳", "", "Tk", "", "BDT", "").Replace(s))
	if s == "" {
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil
	}
	return &d
}
