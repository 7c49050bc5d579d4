package web

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/atelier/studio/internal/db"
	"github.com/atelier/studio/internal/nav"
	"github.com/atelier/studio/internal/repo"
	"go.uber.org/zap"
)

const (
	maxUploadBytes = 10 << 20

	// PendingUpload is recorded when a reference image was attached. The
	// file itself is not stored anywhere yet.
	PendingUpload = "pending_upload"

	submitFailedMessage = "Failed to submit form. Please try again."
)

// inquiryForm holds the values typed into the contact form
type inquiryForm struct {
	Name          string
	Phone         string
	JewelleryType string
	Budget        string
	Message       string
}

type contactView struct {
	Sent   bool
	Form   inquiryForm
	Types  []string
	Errors repo.FieldErrors
	// Failure is the banner shown when the store rejected the submission.
	Failure string
}

func newContactView(state nav.State) contactView {
	return contactView{Sent: state.Sent, Types: repo.JewelleryTypes}
}

func (f inquiryForm) submission() *db.ContactSubmission {
	s := &db.ContactSubmission{
		Name:          f.Name,
		Phone:         f.Phone,
		JewelleryType: f.JewelleryType,
	}
	if f.Budget != "" {
		budget := f.Budget
		s.Budget = &budget
	}
	if f.Message != "" {
		message := f.Message
		s.Message = &message
	}
	return s
}

// contactHandler stores an inquiry. Success redirects to the thank-you
// panel with an empty form behind it; failures re-render the form with the
// visitor's values so they can resubmit.
func (s *Server) contactHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes+(1<<20))
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil && !errors.Is(err, http.ErrNotMultipart) {
			s.log.Warn("Failed to parse contact form", zap.Error(err))
			http.Error(w, "request too large or malformed", http.StatusBadRequest)
			return
		}

		state := nav.Reduce(nav.FromRequest(r), nav.Navigate{Page: nav.PageContact})
		form := inquiryForm{
			Name:          r.FormValue("name"),
			Phone:         r.FormValue("phone"),
			JewelleryType: r.FormValue("jewellery_type"),
			Budget:        r.FormValue("budget"),
			Message:       r.FormValue("message"),
		}

		submission := form.submission()
		if s.referenceAttached(r) {
			marker := PendingUpload
			submission.ReferenceImageURL = &marker
		}

		err := s.inquiries.SubmitInquiry(r.Context(), submission)
		if err != nil {
			view := newContactView(state)
			view.Form = form

			status := statusFor(err)
			if status == http.StatusUnprocessableEntity {
				view.Errors = repo.Fields(err)
				s.metrics.Inquiry("invalid")
			} else {
				view.Failure = submitFailedMessage
				s.metrics.Inquiry("failed")
				s.log.Error("Failed to submit inquiry", zap.Error(err))
			}
			s.renderState(w, r, state, status, &view)
			return
		}

		s.metrics.Inquiry("stored")
		s.notify(submission)
		s.redirect(w, r, nav.Reduce(state, nav.InquirySent{}))
	})
}

// referenceAttached reports whether a non-empty reference image was sent
func (s *Server) referenceAttached(r *http.Request) bool {
	file, header, err := r.FormFile("reference")
	if err != nil {
		return false
	}
	defer file.Close()

	if header.Size == 0 {
		return false
	}
	s.log.Warn("Reference image received but not stored",
		zap.String("filename", header.Filename),
		zap.Int64("size", header.Size),
	)
	return true
}

// notify publishes the stored inquiry without holding up the visitor. A
// failed notification never fails the submission.
func (s *Server) notify(submission *db.ContactSubmission) {
	s.notifying.Add(1)
	go func() {
		defer s.notifying.Done()
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()

		if err := s.notifier.PublishInquirySubmitted(ctx, submission); err != nil {
			s.log.Error("Failed to publish inquiry submitted event",
				zap.String("id", submission.ID),
				zap.Error(err),
			)
		}
	}()
}

// statusFor maps a façade error kind to the HTTP status of the response
func statusFor(err error) int {
	switch repo.KindOf(err) {
	case 0:
		return http.StatusOK
	case repo.KindValidation:
		return http.StatusUnprocessableEntity
	case repo.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusServiceUnavailable
	}
}

func atoi(s string, fallback int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return n
}
