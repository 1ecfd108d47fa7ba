package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"tranche/internal/registry/models"
	id "tranche/pkg/domain"
	"tranche/pkg/platform/sentinel"
)

// Postgres persists asset records. A serial sequence column preserves
// creation order for listing.
type Postgres struct {
	db *sqlx.DB
}

func NewPostgres(db *sqlx.DB) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) Create(ctx context.Context, asset models.Asset) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO registry_assets (id, issuer, face_value, markup_bps, maturity, description, active, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		asset.ID, asset.Issuer.String(), asset.FaceValue, asset.MarkupBps,
		asset.Maturity, asset.Description, asset.Active, asset.CreatedAt)
	var pgErr *pq.Error
	if errors.As(err, &pgErr) && pgErr.Code.Name() == "unique_violation" {
		return sentinel.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert asset: %w", err)
	}
	return nil
}

func (s *Postgres) Get(ctx context.Context, assetID id.AssetID) (models.Asset, error) {
	var row assetRow
	err := s.db.GetContext(ctx, &row,
		`SELECT id, issuer, face_value, markup_bps, maturity, description, active, created_at
		 FROM registry_assets WHERE id = $1`, assetID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Asset{}, sentinel.ErrNotFound
	}
	if err != nil {
		return models.Asset{}, fmt.Errorf("get asset: %w", err)
	}
	return row.toModel()
}

func (s *Postgres) SetActive(ctx context.Context, assetID id.AssetID, active bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE registry_assets SET active = $2 WHERE id = $1`, assetID, active)
	if err != nil {
		return fmt.Errorf("set active: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set active: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

// ListActive pages over the full creation-ordered set, filtering in the
// application to match the memory store's scan behavior exactly.
func (s *Postgres) ListActive(ctx context.Context, offset, limit int) ([]models.Asset, error) {
	var rows []assetRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT id, issuer, face_value, markup_bps, maturity, description, active, created_at
		 FROM registry_assets ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}

	page := make([]models.Asset, 0, limit)
	skipped := 0
	for _, row := range rows {
		if !row.Active {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		if limit > 0 && len(page) == limit {
			break
		}
		asset, err := row.toModel()
		if err != nil {
			return nil, err
		}
		page = append(page, asset)
	}
	return page, nil
}

type assetRow struct {
	ID          string       `db:"id"`
	Issuer      string       `db:"issuer"`
	FaceValue   int64        `db:"face_value"`
	MarkupBps   int64        `db:"markup_bps"`
	Maturity    sql.NullTime `db:"maturity"`
	Description string       `db:"description"`
	Active      bool         `db:"active"`
	CreatedAt   sql.NullTime `db:"created_at"`
}

func (r assetRow) toModel() (models.Asset, error) {
	issuer, err := id.ParseAccountID(r.Issuer)
	if err != nil {
		return models.Asset{}, fmt.Errorf("stored issuer: %w", err)
	}
	asset := models.Asset{
		ID:          id.AssetID(r.ID),
		Issuer:      issuer,
		FaceValue:   r.FaceValue,
		MarkupBps:   r.MarkupBps,
		Description: r.Description,
		Active:      r.Active,
	}
	if r.Maturity.Valid {
		asset.Maturity = r.Maturity.Time.UTC()
	}
	if r.CreatedAt.Valid {
		asset.CreatedAt = r.CreatedAt.Time.UTC()
	}
	return asset, nil
}
