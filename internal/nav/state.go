// Package nav holds the per-visitor view state of the site and the single
// transition function that advances it.
package nav

import "github.com/atelier/studio/internal/db"

// Page identifies one of the five views
type Page string

const (
	PageHome        Page = "home"
	PageCollections Page = "collections"
	PageProduct     Page = "product"
	PageAbout       Page = "about"
	PageContact     Page = "contact"
)

// Pages in navigation-bar order. Product is reachable only through an item.
var Pages = []Page{PageHome, PageCollections, PageAbout, PageContact}

// ParsePage maps a raw value to a page; anything unrecognised is home.
func ParsePage(raw string) Page {
	switch p := Page(raw); p {
	case PageHome, PageCollections, PageProduct, PageAbout, PageContact:
		return p
	default:
		return PageHome
	}
}

// State is the navigation state of one visitor. It is a value: transitions
// return a new State and never modify their input.
type State struct {
	Page Page `json:"p"`
	// ItemID is the selected catalogue item. It is only read by the product
	// page and survives navigation elsewhere.
	ItemID string `json:"i,omitempty"`
	// ImageIndex is the carousel position within ItemID's images.
	ImageIndex int `json:"x,omitempty"`
	// Collection filters the collections page; empty means all.
	Collection string `json:"c,omitempty"`
	// Sent is set once the contact form went through, until the visitor
	// starts another inquiry or leaves the page.
	Sent bool `json:"s,omitempty"`
}

// Initial is the state of a first visit
func Initial() State {
	return State{Page: PageHome}
}

// Action is a transition request understood by Reduce
type Action interface {
	apply(State) State
}

// Navigate moves to a page, optionally selecting an item
type Navigate struct {
	Page   Page
	ItemID string
}

// NextImage advances the carousel over Count images
type NextImage struct{ Count int }

// PrevImage moves the carousel back over Count images
type PrevImage struct{ Count int }

// SelectImage jumps the carousel to Index
type SelectImage struct {
	Index int
	Count int
}

// SelectCollection sets the collections filter
type SelectCollection struct{ Name string }

// InquirySent switches the contact page to its thank-you panel
type InquirySent struct{}

// NewInquiry brings the empty contact form back
type NewInquiry struct{}

// Reduce applies a to s and returns the resulting state
func Reduce(s State, a Action) State {
	if a == nil {
		return s
	}
	return a.apply(s)
}

// Entering a view starts its local state afresh; staying on the same view
// keeps it.
func (a Navigate) apply(s State) State {
	page := ParsePage(string(a.Page))
	entering := page != s.Page
	s.Page = page

	if a.ItemID != "" && a.ItemID != s.ItemID {
		s.ItemID = a.ItemID
		s.ImageIndex = 0
	}
	if entering {
		s.ImageIndex = 0
		s.Sent = false
		if page == PageCollections {
			s.Collection = ""
		}
	}
	return s
}

func (a NextImage) apply(s State) State {
	if a.Count <= 1 {
		return s
	}
	s.ImageIndex = (clamp(s.ImageIndex, a.Count) + 1) % a.Count
	return s
}

func (a PrevImage) apply(s State) State {
	if a.Count <= 1 {
		return s
	}
	s.ImageIndex = (clamp(s.ImageIndex, a.Count) - 1 + a.Count) % a.Count
	return s
}

func (a SelectImage) apply(s State) State {
	if a.Index < 0 || a.Index >= a.Count {
		return s
	}
	s.ImageIndex = a.Index
	return s
}

func (a SelectCollection) apply(s State) State {
	if db.Collection(a.Name).Valid() {
		s.Collection = a.Name
	} else {
		s.Collection = ""
	}
	return s
}

func (InquirySent) apply(s State) State {
	s.Page = PageContact
	s.Sent = true
	return s
}

func (NewInquiry) apply(s State) State {
	s.Page = PageContact
	s.Sent = false
	return s
}

// clamp keeps an index that may have gone stale (the item's images changed
// since it was stored) inside [0, count).
func clamp(index, count int) int {
	if index < 0 || index >= count {
		return 0
	}
	return index
}

// CurrentImage returns the carousel position for an item with count images
func (s State) CurrentImage(count int) int {
	if count <= 0 {
		return 0
	}
	return clamp(s.ImageIndex, count)
}
