package catalog

import (
	"context"
	"errors"
	"sort"
	"strings"

	"storefront/internal/models"
)

// ErrProductNotFound is returned by ByID for unknown ids
var ErrProductNotFound = errors.New("product not found")

// ProductLister is what the query surface needs from the cache
type ProductLister interface {
	GetProducts(ctx context.Context) ([]models.Product, error)
}

// Category lists one category and its subcategories
type Category struct {
	Name          string   `json:"name"`
	Subcategories []string `json:"subcategories"`
}

// Filter narrows a product listing; empty fields match everything
type Filter struct {
	Category    string
	Subcategory string
	Tag         string
}

func (f Filter) matches(p models.Product) bool {
	if c := strings.TrimSpace(f.Category); c != "" && !strings.EqualFold(p.Category, c) {
		return false
	}
	if s := strings.TrimSpace(f.Subcategory); s != "" && !strings.EqualFold(p.Subcategory, s) {
		return false
	}
	if t := strings.TrimSpace(f.Tag); t != "" && !containsFold(p.Tags, t) {
		return false
	}
	return true
}

// Catalog answers product queries against the cached list
type Catalog struct {
	products ProductLister
}

// NewCatalog creates a query surface over products
func NewCatalog(products ProductLister) *Catalog {
	return &Catalog{products: products}
}

// All returns every product
func (c *Catalog) All(ctx context.Context) ([]models.Product, error) {
	return c.products.GetProducts(ctx)
}

// Find returns the products matching every non-empty field of f
func (c *Catalog) Find(ctx context.Context, f Filter) ([]models.Product, error) {
	return c.filter(ctx, f.matches)
}

// ByID returns a single product
func (c *Catalog) ByID(ctx context.Context, id int64) (*models.Product, error) {
	products, err := c.products.GetProducts(ctx)
	if err != nil {
		return nil, err
	}
	for i := range products {
		if products[i].ID == id {
			p := products[i]
			return &p, nil
		}
	}
	return nil, ErrProductNotFound
}

// ByCategory returns products whose category matches, ignoring case
func (c *Catalog) ByCategory(ctx context.Context, category string) ([]models.Product, error) {
	return c.filter(ctx, func(p models.Product) bool {
		return strings.EqualFold(p.Category, strings.TrimSpace(category))
	})
}

// BySubcategory returns products whose subcategory matches, ignoring case
func (c *Catalog) BySubcategory(ctx context.Context, subcategory string) ([]models.Product, error) {
	return c.filter(ctx, func(p models.Product) bool {
		return p.Subcategory != "" && strings.EqualFold(p.Subcategory, strings.TrimSpace(subcategory))
	})
}

// ByTag returns products carrying tag, used for the age facets
func (c *Catalog) ByTag(ctx context.Context, tag string) ([]models.Product, error) {
	tag = strings.TrimSpace(tag)
	return c.filter(ctx, func(p models.Product) bool {
		return containsFold(p.Tags, tag)
	})
}

// Search does a case-insensitive substring match over name, description,
// category, subcategory, sizes and colors. limit <= 0 returns all matches.
func (c *Catalog) Search(ctx context.Context, query string, limit int) ([]models.Product, error) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return []models.Product{}, nil
	}

	matches, err := c.filter(ctx, func(p models.Product) bool {
		return matchesQuery(p, q)
	})
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// Categories lists distinct categories with their subcategories in first-seen order
func (c *Catalog) Categories(ctx context.Context) ([]Category, error) {
	products, err := c.products.GetProducts(ctx)
	if err != nil {
		return nil, err
	}

	var out []Category
	pos := make(map[string]int)
	for _, p := range products {
		if p.Category == "" {
			continue
		}
		key := strings.ToLower(p.Category)
		i, ok := pos[key]
		if !ok {
			i = len(out)
			pos[key] = i
			out = append(out, Category{Name: p.Category, Subcategories: []string{}})
		}
		if p.Subcategory != "" && !containsFold(out[i].Subcategories, p.Subcategory) {
			out[i].Subcategories = append(out[i].Subcategories, p.Subcategory)
		}
	}

	for i := range out {
		sort.Strings(out[i].Subcategories)
	}
	return out, nil
}

func (c *Catalog) filter(ctx context.Context, keep func(models.Product) bool) ([]models.Product, error) {
	products, err := c.products.GetProducts(ctx)
	if err != nil {
		return nil, err
	}

	out := []models.Product{}
	for _, p := range products {
		if keep(p) {
			out = append(out, p)
		}
	}
	return out, nil
}

func matchesQuery(p models.Product, q string) bool {
	fields := []string{p.Name, p.Description, p.Category, p.Subcategory}
	fields = append(fields, p.Sizes...)
	fields = append(fields, p.Colors...)
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), q) {
			return true
		}
	}
	return false
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
