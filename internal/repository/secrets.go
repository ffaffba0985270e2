// Package repository reads encrypted secrets, resource types and account
// recovery requests from a PostgreSQL database.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	kerrors "github.com/atinyakov/keywarden/internal/errors"
	"github.com/atinyakov/keywarden/internal/models"
)

// PostgresSecretRepository reads secret envelopes and resource types.
type PostgresSecretRepository struct {
	// DB is the database handle for executing queries.
	DB *sql.DB
}

// NewPostgresSecretRepository creates a repository on db.
func NewPostgresSecretRepository(db *sql.DB) *PostgresSecretRepository {
	return &PostgresSecretRepository{DB: db}
}

// GetSecretEnvelope returns the secret of resourceID encrypted for userID.
// It fails with ErrNotFound when the user has no secret for the resource.
func (r *PostgresSecretRepository) GetSecretEnvelope(ctx context.Context, resourceID, userID string) (*models.SecretEnvelope, error) {
	var env models.SecretEnvelope
	err := r.DB.QueryRowContext(ctx, `
		SELECT s.resource_id, r.resource_type_id, s.user_id, s.data
		FROM secrets s JOIN resources r ON r.id = s.resource_id
		WHERE s.resource_id = $1 AND s.user_id = $2
	`, resourceID, userID).Scan(&env.ResourceID, &env.ResourceTypeID, &env.UserID, &env.Data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: secret of resource %s", kerrors.ErrNotFound, resourceID)
	}
	if err != nil {
		return nil, fmt.Errorf("GetSecretEnvelope: %w", err)
	}
	return &env, nil
}

// GetResourceType returns the resource type with id.
func (r *PostgresSecretRepository) GetResourceType(ctx context.Context, id string) (*models.ResourceType, error) {
	var rt models.ResourceType
	err := r.DB.QueryRowContext(ctx, `
		SELECT id, slug, name FROM resource_types WHERE id = $1
	`, id).Scan(&rt.ID, &rt.Slug, &rt.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: resource type %s", kerrors.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("GetResourceType: %w", err)
	}
	return &rt, nil
}

// ListResourceTypes returns the resource types whose slug is in slugs,
// ordered by slug.
func (r *PostgresSecretRepository) ListResourceTypes(ctx context.Context, slugs []models.ResourceTypeSlug) ([]models.ResourceType, error) {
	names := make([]string, len(slugs))
	for i, s := range slugs {
		names[i] = string(s)
	}

	rows, err := r.DB.QueryContext(ctx, `
		SELECT id, slug, name FROM resource_types WHERE slug = ANY($1) ORDER BY slug
	`, pq.Array(names))
	if err != nil {
		return nil, fmt.Errorf("ListResourceTypes: %w", err)
	}
	defer rows.Close()

	var types []models.ResourceType
	for rows.Next() {
		var rt models.ResourceType
		if err := rows.Scan(&rt.ID, &rt.Slug, &rt.Name); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		types = append(types, rt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListResourceTypes: %w", err)
	}
	return types, nil
}
