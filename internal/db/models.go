package db

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Collection is one of the fixed product categories
type Collection string

const (
	CollectionBridal     Collection = "Bridal"
	CollectionDaily      Collection = "Daily"
	CollectionCustom     Collection = "Custom"
	CollectionLuxuryGold Collection = "Luxury Gold"
)

// Collections lists every collection in display order
var Collections = []Collection{
	CollectionBridal,
	CollectionDaily,
	CollectionCustom,
	CollectionLuxuryGold,
}

// Valid reports whether c is one of the known collections
func (c Collection) Valid() bool {
	for _, known := range Collections {
		if c == known {
			return true
		}
	}
	return false
}

// JewelleryPiece is a catalogue item
type JewelleryPiece struct {
	ID          string     `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Name        string     `gorm:"type:varchar(255);not null" json:"name"`
	Description string     `gorm:"type:text" json:"description"`
	Material    string     `gorm:"type:varchar(255)" json:"material"`
	PriceRange  string     `gorm:"type:varchar(100)" json:"price_range"`
	Collection  Collection `gorm:"type:varchar(50);not null;index:idx_jewellery_collection" json:"collection"`
	ImageURLs   ImageList  `json:"image_urls"`
	Featured    bool       `gorm:"not null;default:false;index:idx_jewellery_featured" json:"featured"`
	CreatedAt   time.Time  `gorm:"not null;index:idx_jewellery_created_at" json:"created_at"`
}

// TableName specifies the table name for JewelleryPiece
func (JewelleryPiece) TableName() string {
	return "jewellery_pieces"
}

// BeforeCreate assigns the id and creation time when the caller left them empty
func (p *JewelleryPiece) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	return nil
}

// PrimaryImage returns the first image URL, or "" when the piece has none
func (p JewelleryPiece) PrimaryImage() string {
	if len(p.ImageURLs) == 0 {
		return ""
	}
	return p.ImageURLs[0]
}

// ContactSubmission is an inquiry sent through the contact form
type ContactSubmission struct {
	ID                string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Name              string    `gorm:"type:varchar(255);not null" json:"name"`
	Phone             string    `gorm:"type:varchar(50);not null" json:"phone"`
	JewelleryType     string    `gorm:"type:varchar(100);not null" json:"jewellery_type"`
	Budget            *string   `gorm:"type:varchar(100)" json:"budget,omitempty"`
	Message           *string   `gorm:"type:text" json:"message,omitempty"`
	ReferenceImageURL *string   `gorm:"type:text" json:"reference_image_url,omitempty"`
	CreatedAt         time.Time `gorm:"not null" json:"created_at"`
}

// TableName specifies the table name for ContactSubmission
func (ContactSubmission) TableName() string {
	return "contact_submissions"
}

// BeforeCreate hook to set id and timestamp
func (s *ContactSubmission) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}
	return nil
}
