package web

import (
	"context"
	"net/http"

	"github.com/atelier/studio/internal/db"
	"github.com/atelier/studio/internal/nav"
	"github.com/atelier/studio/internal/repo"
	"go.uber.org/zap"
)

// collectionFilter is one button of the collections filter bar
type collectionFilter struct {
	ID          string
	Name        string
	Description string
	Active      bool
}

var collectionFilters = []collectionFilter{
	{ID: "", Name: "All Collections", Description: "Browse our complete catalogue of exquisite pieces"},
	{ID: string(db.CollectionBridal), Name: "Bridal", Description: "Celebrate eternal love with our bridal collection"},
	{ID: string(db.CollectionDaily), Name: "Daily Elegance", Description: "Sophisticated pieces for everyday wear"},
	{ID: string(db.CollectionCustom), Name: "Custom Creations", Description: "Bespoke designs crafted to your vision"},
	{ID: string(db.CollectionLuxuryGold), Name: "Luxury Gold", Description: "Pure gold masterpieces of timeless beauty"},
}

// pieceCard is one grid entry; Index staggers the fade-in
type pieceCard struct {
	Index int
	Piece db.JewelleryPiece
}

type homeView struct {
	Featured []db.JewelleryPiece
}

type collectionsView struct {
	Filters []collectionFilter
	Current collectionFilter
	Pieces  []db.JewelleryPiece
}

type carouselImage struct {
	URL    string
	Index  int
	Active bool
}

type productView struct {
	NotFound bool
	Piece    *db.JewelleryPiece
	Image    string
	Images   []carouselImage
	// Carousel is true when there is more than one image to move between.
	Carousel bool
}

func (s *Server) homeView(ctx context.Context) homeView {
	featured, err := s.catalog.ListFeatured(ctx)
	if err != nil {
		s.logReadFailure("home", err)
	}
	return homeView{Featured: featured}
}

func (s *Server) collectionsView(ctx context.Context, state nav.State) collectionsView {
	view := collectionsView{
		Filters: make([]collectionFilter, len(collectionFilters)),
		Current: collectionFilters[0],
	}
	for i, f := range collectionFilters {
		f.Active = f.ID == state.Collection
		if f.Active {
			view.Current = f
		}
		view.Filters[i] = f
	}

	var err error
	if state.Collection == "" {
		view.Pieces, err = s.catalog.ListAll(ctx)
	} else {
		view.Pieces, err = s.catalog.ListByCollection(ctx, state.Collection)
	}
	if err != nil {
		s.logReadFailure("collections", err)
	}
	return view
}

func (s *Server) productView(ctx context.Context, state nav.State) productView {
	piece, err := s.catalog.GetByID(ctx, state.ItemID)
	if err != nil {
		s.logReadFailure("product", err)
	}
	if piece == nil {
		return productView{NotFound: true}
	}

	current := state.CurrentImage(len(piece.ImageURLs))
	view := productView{
		Piece:    piece,
		Carousel: len(piece.ImageURLs) > 1,
	}
	for i, url := range piece.ImageURLs {
		view.Images = append(view.Images, carouselImage{URL: url, Index: i, Active: i == current})
	}
	if len(piece.ImageURLs) > 0 {
		view.Image = piece.ImageURLs[current]
	}
	return view
}

// Read failures degrade to the empty or not-found render; the visitor never
// sees the underlying error.
func (s *Server) logReadFailure(view string, err error) {
	s.log.Error("Failed to load view data",
		zap.String("view", view),
		zap.Stringer("kind", repo.KindOf(err)),
		zap.Error(err),
	)
}

// carouselHandler moves the carousel of the selected item. The form carries
// the item it was rendered for; actions for any other item are stale and
// ignored.
func (s *Server) carouselHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}

		state := nav.FromRequest(r)
		item := r.PostFormValue("item")
		if state.Page != nav.PageProduct || item == "" || item != state.ItemID {
			s.log.Debug("Ignoring stale carousel action", zap.String("item", item), zap.String("selected", state.ItemID))
			s.redirect(w, r, state)
			return
		}

		piece, err := s.catalog.Require(r.Context(), item)
		if err != nil {
			if repo.KindOf(err) != repo.KindNotFound {
				s.logReadFailure("carousel", err)
			}
			s.redirect(w, r, state)
			return
		}

		count := len(piece.ImageURLs)
		var action nav.Action
		switch r.PostFormValue("action") {
		case "next":
			action = nav.NextImage{Count: count}
		case "prev":
			action = nav.PrevImage{Count: count}
		case "select":
			action = nav.SelectImage{Index: atoi(r.PostFormValue("index"), -1), Count: count}
		}

		s.redirect(w, r, nav.Reduce(state, action))
	})
}
