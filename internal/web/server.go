package web

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"github.com/atelier/studio/internal/config"
	"github.com/atelier/studio/internal/db"
	"github.com/atelier/studio/internal/events"
	"github.com/atelier/studio/internal/metrics"
	"github.com/atelier/studio/internal/nav"
	"go.uber.org/zap"
)

//go:embed templates/*.gohtml
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

const notifyTimeout = 10 * time.Second

// Catalog is the read side of the store façade
type Catalog interface {
	ListAll(ctx context.Context) ([]db.JewelleryPiece, error)
	ListFeatured(ctx context.Context) ([]db.JewelleryPiece, error)
	ListByCollection(ctx context.Context, collection string) ([]db.JewelleryPiece, error)
	GetByID(ctx context.Context, id string) (*db.JewelleryPiece, error)
	Require(ctx context.Context, id string) (*db.JewelleryPiece, error)
}

// Inquiries is the write side of the store façade
type Inquiries interface {
	SubmitInquiry(ctx context.Context, s *db.ContactSubmission) error
}

// Options wires a Server
type Options struct {
	Catalog   Catalog
	Inquiries Inquiries
	Notifier  events.Notifier
	Studio    config.Studio
	Log       *zap.Logger
	Metrics   *metrics.Metrics
	// SecureCookies marks the navigation cookie Secure (HTTPS deployments).
	SecureCookies bool
}

// Server renders the five page views and applies navigation actions
type Server struct {
	catalog       Catalog
	inquiries     Inquiries
	notifier      events.Notifier
	studio        config.Studio
	log           *zap.Logger
	metrics       *metrics.Metrics
	secureCookies bool
	pages         map[nav.Page]*template.Template

	// notifying tracks inquiry notifications still in flight
	notifying sync.WaitGroup
}

// New parses the templates up front so requests only execute them
func New(opts Options) (*Server, error) {
	pages, err := parsePages()
	if err != nil {
		return nil, err
	}

	notifier := opts.Notifier
	if notifier == nil {
		notifier = events.NoopNotifier{Log: opts.Log}
	}

	return &Server{
		catalog:       opts.Catalog,
		inquiries:     opts.Inquiries,
		notifier:      notifier,
		studio:        opts.Studio,
		log:           opts.Log,
		metrics:       opts.Metrics,
		secureCookies: opts.SecureCookies,
		pages:         pages,
	}, nil
}

var funcs = template.FuncMap{
	"inc": func(i int) int { return i + 1 },
	"delay": func(i int) template.CSS {
		return template.CSS(fmt.Sprintf("animation-delay: %dms", i*50))
	},
	"card": func(i int, p db.JewelleryPiece) pieceCard {
		return pieceCard{Index: i, Piece: p}
	},
}

func parsePages() (map[nav.Page]*template.Template, error) {
	files := map[nav.Page]string{
		nav.PageHome:        "templates/home.gohtml",
		nav.PageCollections: "templates/collections.gohtml",
		nav.PageProduct:     "templates/product.gohtml",
		nav.PageAbout:       "templates/about.gohtml",
		nav.PageContact:     "templates/contact.gohtml",
	}

	pages := make(map[nav.Page]*template.Template, len(files))
	for page, file := range files {
		tmpl, err := template.New("layout.gohtml").Funcs(funcs).ParseFS(templateFS, "templates/layout.gohtml", "templates/cards.gohtml", file)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", file, err)
		}
		pages[page] = tmpl
	}
	return pages, nil
}

// Wait blocks until every inquiry notification started so far has finished.
// Call it after the HTTP server stopped and before closing the notifier.
func (s *Server) Wait() {
	s.notifying.Wait()
}

// Handler returns the mux with every route and the static assets
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /{$}", s.route("view", s.viewHandler()))
	mux.Handle("POST /navigate", s.route("navigate", s.navigateHandler()))
	mux.Handle("POST /collections/filter", s.route("filter", s.filterHandler()))
	mux.Handle("POST /carousel", s.route("carousel", s.carouselHandler()))
	mux.Handle("POST /contact", s.route("contact", s.contactHandler()))
	mux.Handle("POST /contact/new", s.route("contact_new", s.newInquiryHandler()))

	static, _ := fs.Sub(staticFS, "static")
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.FS(static))))

	return s.recoverer(mux)
}

// viewHandler renders whichever page the visitor's state points at
func (s *Server) viewHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		state := nav.FromRequest(r)
		s.renderState(w, r, state, http.StatusOK, nil)
	})
}

// navigateHandler applies a Navigate action and redirects back to the view
func (s *Server) navigateHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		s.apply(w, r, nav.Navigate{
			Page:   nav.Page(r.PostFormValue("page")),
			ItemID: r.PostFormValue("item"),
		})
	})
}

func (s *Server) filterHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		s.apply(w, r, nav.SelectCollection{Name: r.PostFormValue("collection")})
	})
}

func (s *Server) newInquiryHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.apply(w, r, nav.NewInquiry{})
	})
}

func (s *Server) apply(w http.ResponseWriter, r *http.Request, action nav.Action) {
	state := nav.Reduce(nav.FromRequest(r), action)
	s.redirect(w, r, state)
}

// redirect stores the state and sends the visitor back to the single view URL
func (s *Server) redirect(w http.ResponseWriter, r *http.Request, state nav.State) {
	nav.Save(w, state, s.secureCookies)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// layoutData is what every page template receives
type layoutData struct {
	Studio config.Studio
	State  nav.State
	Links  []navLink
	Year   int
	View   any
}

type navLink struct {
	Page   nav.Page
	Label  string
	Active bool
}

var pageLabels = map[nav.Page]string{
	nav.PageHome:        "Home",
	nav.PageCollections: "Collections",
	nav.PageAbout:       "About",
	nav.PageContact:     "Contact",
}

func links(current nav.Page) []navLink {
	out := make([]navLink, 0, len(nav.Pages))
	for _, p := range nav.Pages {
		out = append(out, navLink{Page: p, Label: pageLabels[p], Active: p == current})
	}
	return out
}

// renderState builds the view for state.Page and writes it with status.
// form carries a contact submission to redisplay after a failed attempt.
func (s *Server) renderState(w http.ResponseWriter, r *http.Request, state nav.State, status int, form *contactView) {
	var view any
	switch state.Page {
	case nav.PageCollections:
		view = s.collectionsView(r.Context(), state)
	case nav.PageProduct:
		pv := s.productView(r.Context(), state)
		if pv.NotFound && status == http.StatusOK {
			status = http.StatusNotFound
		}
		view = pv
	case nav.PageAbout:
		view = nil
	case nav.PageContact:
		if form != nil {
			view = *form
		} else {
			view = newContactView(state)
		}
	default:
		state.Page = nav.PageHome
		view = s.homeView(r.Context())
	}

	s.render(w, state, status, view)
}

func (s *Server) render(w http.ResponseWriter, state nav.State, status int, view any) {
	tmpl := s.pages[state.Page]
	data := layoutData{
		Studio: s.studio,
		State:  state,
		Links:  links(state.Page),
		Year:   time.Now().Year(),
		View:   view,
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := tmpl.ExecuteTemplate(w, "layout.gohtml", data); err != nil {
		s.log.Error("Failed to render page", zap.String("page", string(state.Page)), zap.Error(err))
	}
}
