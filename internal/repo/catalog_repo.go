package repo

import (
	"context"
	"errors"
	"time"

	"github.com/atelier/studio/internal/db"
	"github.com/atelier/studio/internal/metrics"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// FeaturedLimit caps the home page selection
const FeaturedLimit = 6

// CatalogRepository reads jewellery pieces from the store
type CatalogRepository struct {
	db      *db.DB
	log     *zap.Logger
	metrics *metrics.Metrics
}

// NewCatalogRepository creates a new catalog repository. m may be nil.
func NewCatalogRepository(database *db.DB, logger *zap.Logger, m *metrics.Metrics) *CatalogRepository {
	return &CatalogRepository{
		db:      database,
		log:     logger,
		metrics: m,
	}
}

// ListAll returns every piece, newest first
func (r *CatalogRepository) ListAll(ctx context.Context) ([]db.JewelleryPiece, error) {
	return r.list(ctx, "list_all", r.db.WithContext(ctx))
}

// ListFeatured returns up to FeaturedLimit featured pieces, newest first
func (r *CatalogRepository) ListFeatured(ctx context.Context) ([]db.JewelleryPiece, error) {
	query := r.db.WithContext(ctx).Where("featured = ?", true).Limit(FeaturedLimit)
	return r.list(ctx, "list_featured", query)
}

// ListByCollection returns the pieces of one collection, newest first.
// Unknown collection names simply match nothing.
func (r *CatalogRepository) ListByCollection(ctx context.Context, collection string) ([]db.JewelleryPiece, error) {
	query := r.db.WithContext(ctx).Where("collection = ?", collection)
	return r.list(ctx, "list_by_collection", query)
}

func (r *CatalogRepository) list(ctx context.Context, op string, query *gorm.DB) ([]db.JewelleryPiece, error) {
	start := time.Now()
	pieces := []db.JewelleryPiece{}
	err := query.Order("created_at DESC").Find(&pieces).Error
	r.metrics.ObserveStore(op, err, time.Since(start))
	if err != nil {
		r.log.Error("Failed to list jewellery", zap.String("op", op), zap.Error(err))
		return nil, storeError(op, err)
	}
	return pieces, nil
}

// GetByID retrieves a piece by id. A missing piece is not an error: it
// returns nil, nil.
func (r *CatalogRepository) GetByID(ctx context.Context, id string) (*db.JewelleryPiece, error) {
	// Ids are UUIDs; anything else cannot match and would make postgres
	// reject the query outright.
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}

	start := time.Now()
	var piece db.JewelleryPiece
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&piece).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		r.metrics.ObserveStore("get_by_id", nil, time.Since(start))
		return nil, nil
	}
	r.metrics.ObserveStore("get_by_id", err, time.Since(start))
	if err != nil {
		r.log.Error("Failed to get jewellery", zap.String("id", id), zap.Error(err))
		return nil, storeError("get_by_id", err)
	}

	return &piece, nil
}

// Require is GetByID for callers that need the piece to exist; a missing
// piece is reported as KindNotFound.
func (r *CatalogRepository) Require(ctx context.Context, id string) (*db.JewelleryPiece, error) {
	piece, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if piece == nil {
		return nil, &Error{Kind: KindNotFound, Op: "require", Err: ErrNotFound}
	}
	return piece, nil
}
