package services

import (
	"context"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/xpense/backend/internal/models"
	"github.com/xpense/backend/internal/repository"
)

type CategoryService struct {
	store repository.Store
	log   logrus.FieldLogger
}

func NewCategoryService(store repository.Store, log logrus.FieldLogger) *CategoryService {
	return &CategoryService{store: store, log: log}
}

func (s *CategoryService) AddCategory(ctx context.Context, name string) (int64, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, &ValidationError{Field: "name", Message: "is required"}
	}

	var id int64
	err := s.store.RunAtomically(ctx, func(q repository.Queries) error {
		var err error
		id, err = q.InsertCategory(ctx, models.Category{Name: name})
		return err
	})
	return id, translateError(ctx, "add category", err)
}

func (s *CategoryService) GetAllCategories(ctx context.Context) ([]models.Category, error) {
	var categories []models.Category
	err := s.store.View(ctx, func(r repository.Reader) error {
		var err error
		categories, err = r.GetCategories(ctx)
		return err
	})
	return categories, translateError(ctx, "get categories", err)
}

// DeleteCategory fails with ConstraintViolationError while records still
// reference the category.
func (s *CategoryService) DeleteCategory(ctx context.Context, id int64) error {
	err := s.store.RunAtomically(ctx, func(q repository.Queries) error {
		err := q.DeleteCategory(ctx, id)
		if errors.Is(err, repository.ErrNotFound) {
			return notFound(EntityCategory, id)
		}
		return err
	})
	return translateError(ctx, "delete category", err)
}

func (s *CategoryService) ObserveAllCategories(ctx context.Context) (<-chan []models.Category, error) {
	return observe(ctx, s.store, s.log, s.GetAllCategories, repository.TableCategories)
}
