// Package domain holds the entity services the API is built on. Services
// resolve their repository from the request scope carried by the context.
package domain

import (
	"context"

	"github.com/google/uuid"

	"persistkit/internal/ambient"
	"persistkit/internal/core/apperror"
	"persistkit/internal/core/di"
	"persistkit/internal/core/entity"
	"persistkit/internal/dbcontext"
	"persistkit/internal/mapping"
	"persistkit/internal/registration"
	"persistkit/internal/repository"
	"persistkit/pkg/logger"
)

// Entity is the pointer form of an entity service type.
type Entity[T any] interface {
	*T
	entity.Validatable
}

// Service provides CRUD over one entity type keyed by a UUID.
type Service[T any, PT Entity[T]] struct {
	name     string
	includes []string
	hooks    *HookRegistry[PT]
}

// NewService creates a service. includes are loaded by Get and Clone.
func NewService[T any, PT Entity[T]](name string, includes ...string) *Service[T, PT] {
	return &Service[T, PT]{name: name, includes: includes, hooks: NewHookRegistry[PT]()}
}

func (s *Service[T, PT]) Name() string              { return s.name }
func (s *Service[T, PT]) Hooks() *HookRegistry[PT] { return s.hooks }

func (s *Service[T, PT]) repo(ctx context.Context) (*repository.Repository[T], error) {
	scope, err := registration.ScopeFrom(ctx)
	if err != nil {
		return nil, err
	}
	return registration.RepositoryFor[T](scope)
}

// save writes every context of the scope.
func (s *Service[T, PT]) save(ctx context.Context) error {
	scope, err := registration.ScopeFrom(ctx)
	if err != nil {
		return err
	}
	uow, err := registration.UnitOfWorkFor(scope)
	if err != nil {
		return err
	}
	if _, err := uow.Save(ctx); err != nil {
		_ = uow.Reset(ctx)
		return saveError(err)
	}
	return nil
}

// saveError exposes typed save failures as AppErrors.
func saveError(err error) error {
	if conv, ok := err.(interface{ AppError() *apperror.AppError }); ok {
		return conv.AppError()
	}
	if apperror.IsAppError(err) {
		return err
	}
	return apperror.NewInternal(err)
}

// SearchOptions widens a search beyond the default query filters.
type SearchOptions struct {
	IncludeDeleted bool
}

// List returns a page of entities.
func (s *Service[T, PT]) List(ctx context.Context, crit repository.Criteria, opts SearchOptions) (repository.SearchResult[T], error) {
	r, err := s.repo(ctx)
	if err != nil {
		return repository.SearchResult[T]{}, err
	}
	if opts.IncludeDeleted {
		cfg, err := softDeleteConfig(ctx)
		if err != nil {
			return repository.SearchResult[T]{}, err
		}
		defer cfg.DisableQueryFilter().Restore()
	}
	return r.Search(ctx, crit)
}

// Get loads the entity with its includes, tracked for a following update.
func (s *Service[T, PT]) Get(ctx context.Context, id uuid.UUID) (PT, error) {
	r, err := s.repo(ctx)
	if err != nil {
		return nil, err
	}
	q := r.TrackingQuery().Where(dbcontext.KeyPredicate(r.EntityType(), []any{id}))
	for _, inc := range s.includes {
		q = q.Include(inc)
	}
	list, err := q.Limit(1).ToList(ctx)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, apperror.NewNotFound(s.name, id.String())
	}
	return list[0], nil
}

// Create validates and saves a new entity.
func (s *Service[T, PT]) Create(ctx context.Context, e PT) error {
	if err := validate(ctx, e); err != nil {
		return err
	}
	if err := s.hooks.Run(ctx, BeforeCreate, e); err != nil {
		return err
	}
	r, err := s.repo(ctx)
	if err != nil {
		return err
	}
	if err := r.Add(e); err != nil {
		return err
	}
	if err := s.save(ctx); err != nil {
		return err
	}
	s.after(ctx, AfterCreate, e)
	return nil
}

// Update loads the entity, applies change and saves it. A non-zero version
// must match the stored row version.
func (s *Service[T, PT]) Update(ctx context.Context, id uuid.UUID, version uuid.UUID, change func(e PT) error) (PT, error) {
	e, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if version != uuid.Nil {
		if err := s.expectVersion(ctx, e, version); err != nil {
			return nil, err
		}
	}
	if err := change(e); err != nil {
		return nil, err
	}
	if err := validate(ctx, e); err != nil {
		return nil, err
	}
	if err := s.hooks.Run(ctx, BeforeUpdate, e); err != nil {
		return nil, err
	}
	if err := s.save(ctx); err != nil {
		return nil, err
	}
	s.after(ctx, AfterUpdate, e)
	return e, nil
}

// Delete removes the entity; soft-deletable entities are flagged.
func (s *Service[T, PT]) Delete(ctx context.Context, id uuid.UUID) error {
	e, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.hooks.Run(ctx, BeforeDelete, e); err != nil {
		return err
	}
	r, err := s.repo(ctx)
	if err != nil {
		return err
	}
	if err := r.Remove(e); err != nil {
		return err
	}
	if err := s.save(ctx); err != nil {
		return err
	}
	s.after(ctx, AfterDelete, e)
	return nil
}

// Purge deletes the row for good, soft-deleted or not.
func (s *Service[T, PT]) Purge(ctx context.Context, id uuid.UUID) error {
	cfg, err := softDeleteConfig(ctx)
	if err != nil {
		return err
	}
	defer cfg.DisableQueryFilter().Restore()
	defer cfg.Disable().Restore()
	return s.Delete(ctx, id)
}

// Clone copies the entity and its includes under a new id. prepare adjusts
// the copy (unique columns) before it is saved.
func (s *Service[T, PT]) Clone(ctx context.Context, id uuid.UUID, prepare func(e PT)) (PT, error) {
	r, err := s.repo(ctx)
	if err != nil {
		return nil, err
	}
	clone, err := r.CloneWith(ctx, func(q *dbcontext.Query[T]) *dbcontext.Query[T] {
		for _, inc := range s.includes {
			q = q.Include(inc)
		}
		return q
	}, id)
	if err != nil {
		return nil, err
	}
	if prepare != nil {
		prepare(clone)
	}
	if err := s.Create(ctx, clone); err != nil {
		return nil, err
	}
	return clone, nil
}

func (s *Service[T, PT]) after(ctx context.Context, event HookEvent, e PT) {
	if err := s.hooks.Run(ctx, event, e); err != nil {
		logger.Warn(ctx, "after hook failed", "entity", s.name, "event", string(event), "error", err)
	}
}

func validate(ctx context.Context, e entity.Validatable) error {
	err := e.Validate(ctx)
	if err == nil || apperror.IsAppError(err) {
		return err
	}
	return apperror.NewValidation(err.Error())
}

// expectVersion replaces the loaded row version with the one the client last
// read, so the save fails when the row changed since.
func (s *Service[T, PT]) expectVersion(ctx context.Context, e PT, version uuid.UUID) error {
	r, err := s.repo(ctx)
	if err != nil {
		return err
	}
	tok := r.EntityType().ConcurrencyToken()
	if tok == "" {
		return nil
	}
	return mapping.SetColumnValue(e, tok, version)
}

func softDeleteConfig(ctx context.Context) (*ambient.SoftDeleteConfig, error) {
	scope, err := registration.ScopeFrom(ctx)
	if err != nil {
		return nil, err
	}
	return di.Resolve[*ambient.SoftDeleteConfig](scope, ambient.SoftDeleteConfigKey)
}
