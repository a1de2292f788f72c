package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	src := &fakeSource{rows: [][]string{
		{"id", "name", "description", "category", "subcategory", "sizes", "colors", "tags"},
		{"1", "Jamdani Saree", "Handwoven", "Women", "Traditional", "", "Red", "adult"},
		{"2", "Cotton Panjabi", "Eid special", "Men", "Festive", "M,XL", "White", "adult"},
		{"3", "Baby Frock", "Soft cotton", "Kids", "Girls", "2Y,3Y", "Pink", "0-2y,toddler"},
		{"4", "Lungi", "Checked", "men", "", "", "Blue", ""},
		{"5", "Kids Panjabi", "Cotton", "Kids", "Boys", "4Y", "Blue", "3-5y"},
	}}
	return NewCatalog(NewCache(src))
}

func TestCatalogByID(t *testing.T) {
	c := newTestCatalog(t)

	p, err := c.ByID(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, "Baby Frock", p.Name)

	_, err = c.ByID(context.Background(), 42)
	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestCatalogByCategory(t *testing.T) {
	c := newTestCatalog(t)

	men, err := c.ByCategory(context.Background(), "MEN")
	require.NoError(t, err)
	assert.Len(t, men, 2)

	none, err := c.ByCategory(context.Background(), "Shoes")
	require.NoError(t, err)
	assert.Empty(t, none)

	boys, err := c.BySubcategory(context.Background(), "boys")
	require.NoError(t, err)
	require.Len(t, boys, 1)
	assert.Equal(t, int64(5), boys[0].ID)

	toddlers, err := c.ByTag(context.Background(), "Toddler")
	require.NoError(t, err)
	require.Len(t, toddlers, 1)
	assert.Equal(t, int64(3), toddlers[0].ID)
}

func TestCatalogFind(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	all, err := c.Find(ctx, Filter{})
	require.NoError(t, err)
	assert.Len(t, all, 5)

	kids, err := c.Find(ctx, Filter{Category: "kids", Tag: "3-5Y"})
	require.NoError(t, err)
	require.Len(t, kids, 1)
	assert.Equal(t, int64(5), kids[0].ID)

	none, err := c.Find(ctx, Filter{Category: "Men", Subcategory: "Girls"})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestCatalogSearch(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	res, err := c.Search(ctx, "panjabi", 0)
	require.NoError(t, err)
	assert.Len(t, res, 2)

	res, err = c.Search(ctx, "COTTON", 2)
	require.NoError(t, err)
	assert.Len(t, res, 2)

	res, err = c.Search(ctx, "xl", 0)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, int64(2), res[0].ID)

	res, err = c.Search(ctx, "blue", 0)
	require.NoError(t, err)
	assert.Len(t, res, 2)

	res, err = c.Search(ctx, "  ", 0)
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestCatalogCategories(t *testing.T) {
	c := newTestCatalog(t)

	cats, err := c.Categories(context.Background())
	require.NoError(t, err)
	require.Len(t, cats, 3)
	assert.Equal(t, "Women", cats[0].Name)
	assert.Equal(t, "Men", cats[1].Name)
	assert.Equal(t, []string{"Festive"}, cats[1].Subcategories)
	assert.Equal(t, []string{"Boys", "Girls"}, cats[2].Subcategories)
}

func TestCatalogPropagatesFetchError(t *testing.T) {
	c := NewCatalog(NewCache(&fakeSource{err: errors.New("network down")}))

	products, err := c.Search(context.Background(), "saree", 5)
	assert.Error(t, err)
	assert.Nil(t, products)
}
