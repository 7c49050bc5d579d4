package db

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// ImageList is the ordered image_urls column. The hosted store keeps it as a
// postgres text[]; other dialects hold the same array literal in a text
// column. Rows written as a JSON array are still read.
type ImageList []string

// GormDBDataType picks the column type per dialect
func (ImageList) GormDBDataType(db *gorm.DB, field *schema.Field) string {
	if db.Dialector.Name() == "postgres" {
		return "text[]"
	}
	return "text"
}

// Scan implements sql.Scanner
func (l *ImageList) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*l = nil
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("image_urls: unsupported type %T", src)
	}

	if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && trimmed[0] == '[' {
		var urls []string
		if err := json.Unmarshal(trimmed, &urls); err != nil {
			return fmt.Errorf("image_urls: %w", err)
		}
		*l = urls
		return nil
	}

	var arr pq.StringArray
	if err := arr.Scan(raw); err != nil {
		return fmt.Errorf("image_urls: %w", err)
	}
	*l = ImageList(arr)
	return nil
}

// Value implements driver.Valuer as a postgres array literal
func (l ImageList) Value() (driver.Value, error) {
	return pq.StringArray(l).Value()
}
