package db

import (
	"gorm.io/gorm"
)

// RunMigrations creates the two tables. The hosted store is normally
// provisioned out of band; this is for local and test databases.
func RunMigrations(db *DB) error {
	if err := db.AutoMigrate(&JewelleryPiece{}, &ContactSubmission{}); err != nil {
		return err
	}

	if db.Dialector.Name() == "postgres" {
		if err := createIndexes(db.DB); err != nil {
			return err
		}
	}

	return nil
}

func createIndexes(db *gorm.DB) error {
	indexes := []string{
		// Featured listing on the home page
		`CREATE INDEX IF NOT EXISTS idx_jewellery_featured_created ON jewellery_pieces(created_at DESC) WHERE featured = true`,

		// Collection filter, newest first
		`CREATE INDEX IF NOT EXISTS idx_jewellery_collection_created ON jewellery_pieces(collection, created_at DESC)`,
	}

	for _, indexSQL := range indexes {
		if err := db.Exec(indexSQL).Error; err != nil {
			return err
		}
	}

	return nil
}
