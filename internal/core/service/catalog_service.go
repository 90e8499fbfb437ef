package service

import (
	"context"

	"github.com/com2u/Pickup/internal/core/domain"
	"github.com/com2u/Pickup/internal/port"
)

// CatalogService manages the item catalog. Deleting an item also removes
// any open orders referencing it, so catalog deletes notify order
// listeners too.
type CatalogService struct {
	items  port.ItemRepository
	events *Events
}

func NewCatalogService(items port.ItemRepository, events *Events) *CatalogService {
	return &CatalogService{
		items:  items,
		events: events,
	}
}

func (s *CatalogService) ListItems(ctx context.Context) ([]domain.Item, error) {
	return s.items.ListItems(ctx)
}

func (s *CatalogService) GetItem(ctx context.Context, id int64) (*domain.Item, error) {
	item, err := s.items.GetItem(ctx, id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, domain.ErrItemNotFound
	}
	return item, nil
}

func (s *CatalogService) CreateItem(ctx context.Context, name string, price domain.Cents) (*domain.Item, error) {
	if name == "" || price < 0 {
		return nil, domain.ErrInvalidItem
	}
	return s.items.CreateItem(ctx, name, price)
}

func (s *CatalogService) UpdateItem(ctx context.Context, id int64, name string, price domain.Cents) (*domain.Item, error) {
	if name == "" || price < 0 {
		return nil, domain.ErrInvalidItem
	}
	return s.items.UpdateItem(ctx, id, name, price)
}

func (s *CatalogService) DeleteItem(ctx context.Context, id int64) error {
	if err := s.items.DeleteItem(ctx, id); err != nil {
		return err
	}
	s.events.Publish(EventOrdersChanged)
	return nil
}
