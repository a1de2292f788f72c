package catalog

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var header = []string{"id", "name", "price", "description", "images", "rating", "category", "subcategory",
	"discountAmount", "sizes", "colors", "itemsLeft", "commentsAndRatings", "tags"}

func TestParseRows(t *testing.T) {
	rows := [][]string{
		header,
		{"1", "Saree", "1500", "Cotton saree", "a.jpg, b.jpg ,", "4.5", "Women", "Traditional",
			"300", "S, M ,L", "Red,Blue", "7", "", "adult"},
		{"", "separator"},
		{"2", "Kurta", "abc", "", "", "", "Men", "", "oops", "", "", "x", "", ""},
	}

	products := ParseRows(rows)
	require.Len(t, products, 2)

	saree := products[0]
	assert.Equal(t, int64(1), saree.ID)
	assert.True(t, decimal.NewFromInt(1500).Equal(saree.Price))
	assert.Equal(t, []string{"a.jpg", "b.jpg"}, saree.Images)
	assert.Equal(t, []string{"S", "M", "L"}, saree.Sizes)
	assert.Equal(t, []string{"Red", "Blue"}, saree.Colors)
	assert.Equal(t, 4.5, saree.Rating)
	require.NotNil(t, saree.ItemsLeft)
	assert.Equal(t, 7, *saree.ItemsLeft)
	require.NotNil(t, saree.PriceAfterDiscount)
	assert.True(t, decimal.NewFromInt(1200).Equal(*saree.PriceAfterDiscount))
	assert.Equal(t, "Traditional", saree.Subcategory)

	kurta := products[1]
	assert.True(t, kurta.Price.IsZero())
	assert.Empty(t, kurta.Images)
	assert.NotNil(t, kurta.Images)
	assert.Nil(t, kurta.Sizes)
	assert.Nil(t, kurta.DiscountAmount)
	assert.Nil(t, kurta.PriceAfterDiscount)
	assert.Nil(t, kurta.ItemsLeft)
	assert.Zero(t, kurta.Rating)
}

func TestParseRowsBadPriceNeverFails(t *testing.T) {
	for _, cell := range []string{"", "free", "NaN", "-20", "12abc"} {
		products := ParseRows([][]string{{"id", "price"}, {"9", cell}})
		require.Len(t, products, 1, cell)
		assert.True(t, products[0].Price.IsZero(), cell)
	}
}

func TestParseRowsShortRowsAndMissingColumns(t *testing.T) {
	products := ParseRows([][]string{{"ID", " Name "}, {"3"}})
	require.Len(t, products, 1)
	assert.Equal(t, int64(3), products[0].ID)
	assert.Empty(t, products[0].Name)

	assert.Empty(t, ParseRows(nil))
	assert.Empty(t, ParseRows([][]string{header}))
}

func TestParseRowsDuplicateIDsKeepFirst(t *testing.T) {
	products := ParseRows([][]string{{"id", "name"}, {"5", "first"}, {"5", "second"}})
	require.Len(t, products, 1)
	assert.Equal(t, "first", products[0].Name)
}

func TestParseReviews(t *testing.T) {
	reviews := parseReviews("Great fit#rating:5, #rating:1,   ,Too small#rating:2,no score")
	require.Len(t, reviews, 3)
	assert.Equal(t, "Great fit", reviews[0].Comment)
	assert.Equal(t, 5.0, reviews[0].Rating)
	assert.Equal(t, "Too small", reviews[1].Comment)
	assert.Equal(t, 2.0, reviews[1].Rating)
	assert.Equal(t, "no score", reviews[2].Comment)
	assert.Zero(t, reviews[2].Rating)
}

func TestRatingDerivedFromReviews(t *testing.T) {
	rows := [][]string{
		{"id", "rating", "commentsAndRatings"},
		{"1", "", "good#rating:5,ok#rating:4,meh#rating:4"},
		{"2", "3", "good#rating:5"},
		{"3", "0", "good#rating:5,fine#rating:4"},
		{"4", "0", ""},
	}

	products := ParseRows(rows)
	require.Len(t, products, 4)
	assert.Equal(t, 4.33, products[0].Rating)
	assert.Equal(t, 3.0, products[1].Rating)
	assert.Equal(t, 4.5, products[2].Rating)
	assert.Equal(t, 0.0, products[3].Rating)
}

func TestParseMoney(t *testing.T) {
	assert.True(t, decimal.NewFromInt(1250).Equal(parseMoney("1,250")))
	assert.True(t, decimal.RequireFromString("99.5").Equal(parseMoney("৳99.5")))
	assert.True(t, parseMoney("-1").IsZero())
}
