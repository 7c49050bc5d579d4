package web

import (
	"bytes"
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/atelier/studio/internal/config"
	"github.com/atelier/studio/internal/db"
	"github.com/atelier/studio/internal/nav"
	"github.com/atelier/studio/internal/repo"
	"github.com/atelier/studio/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testSite struct {
	srv     *Server
	db      *db.DB
	handler http.Handler
	notes   chan *db.ContactSubmission
}

type recordingNotifier struct {
	notes chan *db.ContactSubmission
}

func (n recordingNotifier) PublishInquirySubmitted(ctx context.Context, s *db.ContactSubmission) error {
	n.notes <- s
	return nil
}

func (recordingNotifier) IsHealthy() bool { return true }
func (recordingNotifier) Close() error    { return nil }

// gatedNotifier holds every publish until release is closed
type gatedNotifier struct {
	release chan struct{}
	done    chan string
}

func (n gatedNotifier) PublishInquirySubmitted(ctx context.Context, s *db.ContactSubmission) error {
	<-n.release
	n.done <- s.ID
	return nil
}

func (gatedNotifier) IsHealthy() bool { return true }
func (gatedNotifier) Close() error    { return nil }

type failingInquiries struct{}

func (failingInquiries) SubmitInquiry(ctx context.Context, s *db.ContactSubmission) error {
	return &repo.Error{Kind: repo.KindNetwork, Op: "submit_inquiry", Err: errors.New("connection refused")}
}

func setupSite(t *testing.T, inquiries Inquiries) *testSite {
	database, err := db.Connect("sqlite", ":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	require.NoError(t, db.RunMigrations(database))

	log := logger.NewLogger("test", "error", "json")
	if inquiries == nil {
		inquiries = repo.NewInquiryRepository(database, log, nil)
	}

	notes := make(chan *db.ContactSubmission, 4)
	srv, err := New(Options{
		Catalog:   repo.NewCatalogRepository(database, log, nil),
		Inquiries: inquiries,
		Notifier:  recordingNotifier{notes: notes},
		Studio:    config.DefaultStudio(),
		Log:       log,
	})
	require.NoError(t, err)

	return &testSite{srv: srv, db: database, handler: srv.Handler(), notes: notes}
}

func (s *testSite) seed(t *testing.T, pieces ...*db.JewelleryPiece) {
	for _, p := range pieces {
		require.NoError(t, s.db.Create(p).Error)
	}
}

// send runs req with state as the navigation cookie
func (s *testSite) send(req *http.Request, state nav.State) *httptest.ResponseRecorder {
	req.AddCookie(&http.Cookie{Name: nav.CookieName, Value: nav.Encode(state)})
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *testSite) view(state nav.State) *httptest.ResponseRecorder {
	return s.send(httptest.NewRequest(http.MethodGet, "/", nil), state)
}

func (s *testSite) post(path string, form url.Values, state nav.State) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return s.send(req, state)
}

// stateOf reads the navigation state a redirect stored
func stateOf(t *testing.T, rec *httptest.ResponseRecorder) nav.State {
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
	for _, c := range rec.Result().Cookies() {
		if c.Name == nav.CookieName {
			return nav.Decode(c.Value)
		}
	}
	t.Fatalf("redirect did not set %s", nav.CookieName)
	return nav.State{}
}

func multipartContact(t *testing.T, fields map[string]string, reference []byte) *http.Request {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if reference != nil {
		fw, err := mw.CreateFormFile("reference", "ring.jpg")
		require.NoError(t, err)
		_, err = fw.Write(reference)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/contact", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func validContact() map[string]string {
	return map[string]string{
		"name":           "Jane",
		"phone":          "555-1234",
		"jewellery_type": "Engagement Ring",
	}
}

func countSubmissions(t *testing.T, database *db.DB) int64 {
	var n int64
	require.NoError(t, database.Model(&db.ContactSubmission{}).Count(&n).Error)
	return n
}

func TestHomeIsDefaultView(t *testing.T) {
	site := setupSite(t, nil)
	site.seed(t,
		&db.JewelleryPiece{Name: "Aurora Ring", Collection: db.CollectionBridal, Featured: true, ImageURLs: []string{"a.jpg"}},
		&db.JewelleryPiece{Name: "Plain Band", Collection: db.CollectionDaily, Featured: false},
	)

	rec := httptest.NewRecorder()
	site.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	body := rec.Body.String()
	assert.Contains(t, body, "Featured Pieces")
	assert.Contains(t, body, "Aurora Ring")
	assert.NotContains(t, body, "Plain Band")
	assert.Contains(t, body, `href="https://instagram.com"`)
	assert.Contains(t, body, `href="https://wa.me/1234567890"`)
}

func TestNavigateStoresStateAndRedirects(t *testing.T) {
	site := setupSite(t, nil)

	rec := site.post("/navigate", url.Values{"page": {"about"}}, nav.Initial())
	state := stateOf(t, rec)
	assert.Equal(t, nav.PageAbout, state.Page)

	body := site.view(state).Body.String()
	assert.Contains(t, body, "Our Promise")
	assert.Contains(t, body, `nav-link active">About`)
}

func TestNavigateUnknownPageGoesHome(t *testing.T) {
	site := setupSite(t, nil)

	state := stateOf(t, site.post("/navigate", url.Values{"page": {"admin"}}, nav.Initial()))
	assert.Equal(t, nav.PageHome, state.Page)
}

func TestCollectionsFilter(t *testing.T) {
	site := setupSite(t, nil)
	site.seed(t,
		&db.JewelleryPiece{Name: "Vow Ring", Collection: db.CollectionBridal},
		&db.JewelleryPiece{Name: "Chain", Collection: db.CollectionDaily},
	)

	state := nav.Reduce(nav.Initial(), nav.Navigate{Page: nav.PageCollections})
	body := site.view(state).Body.String()
	assert.Contains(t, body, "All Collections")
	assert.Contains(t, body, "Vow Ring")
	assert.Contains(t, body, "Chain")

	state = stateOf(t, site.post("/collections/filter", url.Values{"collection": {string(db.CollectionBridal)}}, state))
	assert.Equal(t, string(db.CollectionBridal), state.Collection)
	body = site.view(state).Body.String()
	assert.Contains(t, body, "Vow Ring")
	assert.NotContains(t, body, "Chain")

	state = stateOf(t, site.post("/collections/filter", url.Values{"collection": {string(db.CollectionCustom)}}, state))
	assert.Contains(t, site.view(state).Body.String(), "No pieces available in this collection yet.")
}

func TestProductNotFound(t *testing.T) {
	site := setupSite(t, nil)

	state := nav.Reduce(nav.Initial(), nav.Navigate{Page: nav.PageProduct, ItemID: "00000000-0000-0000-0000-000000000000"})
	rec := site.view(state)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Product not found")
	assert.Contains(t, rec.Body.String(), "BACK TO COLLECTIONS")
}

func TestProductWithoutImages(t *testing.T) {
	site := setupSite(t, nil)
	piece := &db.JewelleryPiece{Name: "Sketch", Collection: db.CollectionCustom}
	site.seed(t, piece)

	state := nav.Reduce(nav.Initial(), nav.Navigate{Page: nav.PageProduct, ItemID: piece.ID})
	rec := site.view(state)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "No image yet")
	assert.NotContains(t, rec.Body.String(), `action="/carousel"`)
}

func TestCarouselWrapsAround(t *testing.T) {
	site := setupSite(t, nil)
	piece := &db.JewelleryPiece{Name: "Trio", Collection: db.CollectionLuxuryGold, ImageURLs: []string{"1.jpg", "2.jpg", "3.jpg"}}
	site.seed(t, piece)

	state := nav.Reduce(nav.Initial(), nav.Navigate{Page: nav.PageProduct, ItemID: piece.ID})
	carousel := func(action string, extra url.Values) {
		form := url.Values{"item": {piece.ID}, "action": {action}}
		for k, v := range extra {
			form[k] = v
		}
		state = stateOf(t, site.post("/carousel", form, state))
	}

	carousel("prev", nil)
	assert.Equal(t, 2, state.ImageIndex)
	assert.Contains(t, site.view(state).Body.String(), `src="3.jpg"`)

	carousel("next", nil)
	assert.Equal(t, 0, state.ImageIndex)

	carousel("select", url.Values{"index": {"1"}})
	assert.Equal(t, 1, state.ImageIndex)

	carousel("select", url.Values{"index": {"9"}})
	assert.Equal(t, 1, state.ImageIndex)
}

func TestCarouselIgnoresStaleItem(t *testing.T) {
	site := setupSite(t, nil)
	first := &db.JewelleryPiece{Name: "First", Collection: db.CollectionDaily, ImageURLs: []string{"1.jpg", "2.jpg"}}
	second := &db.JewelleryPiece{Name: "Second", Collection: db.CollectionDaily, ImageURLs: []string{"3.jpg", "4.jpg"}}
	site.seed(t, first, second)

	state := nav.Reduce(nav.Initial(), nav.Navigate{Page: nav.PageProduct, ItemID: second.ID})
	next := stateOf(t, site.post("/carousel", url.Values{"item": {first.ID}, "action": {"next"}}, state))

	assert.Equal(t, state, next)
}

func TestContactSuccess(t *testing.T) {
	site := setupSite(t, nil)
	state := nav.Reduce(nav.Initial(), nav.Navigate{Page: nav.PageContact})

	fields := validContact()
	fields["budget"] = "  "
	rec := site.send(multipartContact(t, fields, nil), state)

	state = stateOf(t, rec)
	assert.True(t, state.Sent)
	assert.Contains(t, site.view(state).Body.String(), "Thank You")

	var stored db.ContactSubmission
	require.NoError(t, site.db.First(&stored).Error)
	assert.Equal(t, "Jane", stored.Name)
	assert.Nil(t, stored.Budget)
	assert.Nil(t, stored.ReferenceImageURL)

	select {
	case note := <-site.notes:
		assert.Equal(t, stored.ID, note.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("inquiry was not published")
	}

	state = stateOf(t, site.post("/contact/new", url.Values{}, state))
	assert.False(t, state.Sent)
	body := site.view(state).Body.String()
	assert.Contains(t, body, "SEND INQUIRY")
	assert.NotContains(t, body, `value="Jane"`)
}

func TestContactReferenceImageRecordsMarker(t *testing.T) {
	site := setupSite(t, nil)

	rec := site.send(multipartContact(t, validContact(), []byte("\xff\xd8\xff")), nav.Initial())
	require.Equal(t, http.StatusSeeOther, rec.Code)

	var stored db.ContactSubmission
	require.NoError(t, site.db.First(&stored).Error)
	require.NotNil(t, stored.ReferenceImageURL)
	assert.Equal(t, PendingUpload, *stored.ReferenceImageURL)
}

func TestContactMissingFieldIsRejected(t *testing.T) {
	site := setupSite(t, nil)

	fields := validContact()
	delete(fields, "jewellery_type")
	rec := site.send(multipartContact(t, fields, nil), nav.Initial())

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "field-error")
	assert.Contains(t, rec.Body.String(), `value="Jane"`)
	assert.Zero(t, countSubmissions(t, site.db))
	assert.Empty(t, site.notes)
}

func TestContactStoreFailureKeepsForm(t *testing.T) {
	site := setupSite(t, failingInquiries{})

	rec := site.send(multipartContact(t, validContact(), nil), nav.Initial())

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, submitFailedMessage)
	assert.Contains(t, body, `value="555-1234"`)
	assert.NotContains(t, body, "Thank You")
}

func TestStaticAssets(t *testing.T) {
	site := setupSite(t, nil)

	rec := httptest.NewRecorder()
	site.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/static/site.css", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "scroll-behavior: smooth")
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusOK, statusFor(nil))
	assert.Equal(t, http.StatusUnprocessableEntity, statusFor(&repo.Error{Kind: repo.KindValidation}))
	assert.Equal(t, http.StatusNotFound, statusFor(&repo.Error{Kind: repo.KindNotFound, Err: repo.ErrNotFound}))
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(errors.New("boom")))
}

func TestWaitDrainsInFlightNotifications(t *testing.T) {
	database, err := db.Connect("sqlite", ":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	require.NoError(t, db.RunMigrations(database))

	log := logger.NewLogger("test", "error", "json")
	gate := gatedNotifier{release: make(chan struct{}), done: make(chan string, 1)}
	srv, err := New(Options{
		Catalog:   repo.NewCatalogRepository(database, log, nil),
		Inquiries: repo.NewInquiryRepository(database, log, nil),
		Notifier:  gate,
		Studio:    config.DefaultStudio(),
		Log:       log,
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, multipartContact(t, validContact(), nil))
	require.Equal(t, http.StatusSeeOther, rec.Code)

	waited := make(chan struct{})
	go func() {
		srv.Wait()
		close(waited)
	}()

	select {
	case <-waited:
		t.Fatal("Wait returned while a notification was still in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(gate.release)
	select {
	case <-waited:
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not return after the notification finished")
	}
	assert.Len(t, gate.done, 1)
}
