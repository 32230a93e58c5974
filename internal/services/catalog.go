package services

import (
	"github.com/chatcart-io/chatcart-backend/internal/models"
	"github.com/chatcart-io/chatcart-backend/internal/storage"
)

// Catalog is the read API the conversation engine consumes, keyed by
// tenant and category. The product/catalog store itself is an external
// collaborator; this interface is its surface.
type Catalog interface {
	Categories(tenantID string) ([]*models.Category, error)
	Products(tenantID, categoryID string) ([]*models.Product, error)
	Product(tenantID, productID string) (*models.Product, error)
}

// StoreCatalog serves the catalog read API from the shared store.
type StoreCatalog struct {
	store storage.Store
}

// NewStoreCatalog creates a store-backed catalog reader.
func NewStoreCatalog(store storage.Store) *StoreCatalog {
	return &StoreCatalog{store: store}
}

func (c *StoreCatalog) Categories(tenantID string) ([]*models.Category, error) {
	return c.store.GetCategories(tenantID)
}

func (c *StoreCatalog) Products(tenantID, categoryID string) ([]*models.Product, error) {
	return c.store.GetProductsByCategory(tenantID, categoryID)
}

func (c *StoreCatalog) Product(tenantID, productID string) (*models.Product, error) {
	return c.store.GetProduct(tenantID, productID)
}
