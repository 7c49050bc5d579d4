package nav

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
)

// CookieName is the cookie that carries a visitor's State
const CookieName = "atelier_nav"

// Encode serialises s for the navigation cookie
func Encode(s State) string {
	data, err := json.Marshal(s)
	if err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(data)
}

// Decode parses a cookie value. Anything missing or malformed yields the
// initial state, and the result is normalised so a tampered cookie cannot
// produce a state the reducer would never reach.
func Decode(raw string) State {
	if raw == "" {
		return Initial()
	}
	data, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil {
		return Initial()
	}
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return Initial()
	}
	return normalize(s)
}

func normalize(s State) State {
	s.Page = ParsePage(string(s.Page))
	if s.ImageIndex < 0 {
		s.ImageIndex = 0
	}
	s = Reduce(s, SelectCollection{Name: s.Collection})
	return s
}

// FromRequest reads the state carried by r
func FromRequest(r *http.Request) State {
	c, err := r.Cookie(CookieName)
	if err != nil {
		return Initial()
	}
	return Decode(c.Value)
}

// Save writes s back to the visitor
func Save(w http.ResponseWriter, s State, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    Encode(s),
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}
