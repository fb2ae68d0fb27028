package catalog

import (
	"context"
	"errors"
	"strings"
)

// Validation errors returned by the Service layer.
var (
	ErrNameRequired = errors.New("name is required")
	ErrCoresInvalid = errors.New("cpu_cores must be a positive integer")
	ErrRAMInvalid   = errors.New("ram_gb must be positive")
	ErrPriceInvalid = errors.New("list_monthly_usd must not be negative")
)

// Service provides validated business logic over the catalog Store.
type Service struct {
	store *Store
}

// NewService creates a new Service wrapping the given Store.
func NewService(store *Store) *Service {
	return &Service{store: store}
}

// Upsert validates the input and creates or replaces the SKU spec.
func (s *Service) Upsert(ctx context.Context, input UpsertSKUInput) (*SKUSpec, error) {
	if err := validateUpsert(input); err != nil {
		return nil, err
	}
	return s.store.Upsert(ctx, input)
}

// GetByName retrieves a SKU spec by name.
func (s *Service) GetByName(ctx context.Context, name string) (*SKUSpec, error) {
	return s.store.GetByName(ctx, name)
}

// List returns a paginated list of SKU specs.
func (s *Service) List(ctx context.Context, params ListParams) ([]*SKUSpec, string, error) {
	return s.store.List(ctx, params)
}

// Index returns the full catalog keyed by SKU name.
func (s *Service) Index(ctx context.Context) (map[string]SKUSpec, error) {
	return s.store.Index(ctx)
}

// Delete removes a SKU spec by name.
func (s *Service) Delete(ctx context.Context, name string) error {
	return s.store.Delete(ctx, name)
}

func validateUpsert(input UpsertSKUInput) error {
	if strings.TrimSpace(input.Name) == "" {
		return ErrNameRequired
	}
	if input.CPUCores <= 0 {
		return ErrCoresInvalid
	}
	if input.RAMGB <= 0 {
		return ErrRAMInvalid
	}
	if input.ListMonthly < 0 {
		return ErrPriceInvalid
	}
	return nil
}
