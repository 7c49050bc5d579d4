package repo

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/atelier/studio/internal/db"
	"github.com/atelier/studio/internal/metrics"
	"go.uber.org/zap"
)

// JewelleryTypes are the suggestions offered by the contact form. The stored
// value is free text and is not restricted to this list.
var JewelleryTypes = []string{
	"Engagement Ring",
	"Wedding Band",
	"Necklace",
	"Earrings",
	"Bracelet",
	"Custom Design",
	"Other",
}

// InquiryRepository stores contact form submissions
type InquiryRepository struct {
	db      *db.DB
	log     *zap.Logger
	metrics *metrics.Metrics
}

// NewInquiryRepository creates a new inquiry repository. m may be nil.
func NewInquiryRepository(database *db.DB, logger *zap.Logger, m *metrics.Metrics) *InquiryRepository {
	return &InquiryRepository{
		db:      database,
		log:     logger,
		metrics: m,
	}
}

// SubmitInquiry validates and inserts one submission. On success the store
// assigned id and timestamp are set on s.
func (r *InquiryRepository) SubmitInquiry(ctx context.Context, s *db.ContactSubmission) error {
	Normalize(s)
	if fields := ValidateInquiry(s); len(fields) > 0 {
		return &Error{Kind: KindValidation, Op: "submit_inquiry", Err: fields}
	}

	start := time.Now()
	err := r.db.WithContext(ctx).Create(s).Error
	r.metrics.ObserveStore("submit_inquiry", err, time.Since(start))
	if err != nil {
		r.log.Error("Failed to store inquiry", zap.Error(err))
		return storeError("submit_inquiry", err)
	}

	r.log.Info("Inquiry stored",
		zap.String("id", s.ID),
		zap.String("jewellery_type", s.JewelleryType),
	)
	return nil
}

// Normalize trims every field and turns blank optional fields into nil
func Normalize(s *db.ContactSubmission) {
	s.Name = strings.TrimSpace(s.Name)
	s.Phone = strings.TrimSpace(s.Phone)
	s.JewelleryType = strings.TrimSpace(s.JewelleryType)
	s.Budget = trimOptional(s.Budget)
	s.Message = trimOptional(s.Message)
	s.ReferenceImageURL = trimOptional(s.ReferenceImageURL)
}

func trimOptional(v *string) *string {
	if v == nil {
		return nil
	}
	t := strings.TrimSpace(*v)
	if t == "" {
		return nil
	}
	return &t
}

// ValidateInquiry checks required fields and column limits. It expects a
// normalized submission.
func ValidateInquiry(s *db.ContactSubmission) FieldErrors {
	fields := FieldErrors{}

	switch {
	case s.Name == "":
		fields["name"] = "Please enter your name."
	case utf8.RuneCountInString(s.Name) > 255:
		fields["name"] = "Name is too long."
	}

	switch {
	case s.Phone == "":
		fields["phone"] = "Please enter a phone number."
	case len(s.Phone) > 50:
		fields["phone"] = "Phone number is too long."
	}

	switch {
	case s.JewelleryType == "":
		fields["jewellery_type"] = "Please choose a jewellery type."
	case utf8.RuneCountInString(s.JewelleryType) > 100:
		fields["jewellery_type"] = "Jewellery type is too long."
	}

	if s.Budget != nil && utf8.RuneCountInString(*s.Budget) > 100 {
		fields["budget"] = "Budget is too long."
	}

	return fields
}
