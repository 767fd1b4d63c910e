package account

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/Tyrowin/relaychat/internal/identity"
)

// Tokens issues and verifies session tokens.
type Tokens interface {
	identity.Verifier
	Issue(id identity.Identity) (string, time.Time, error)
}

// Options tunes the handler. Zero values select defaults.
type Options struct {
	CookieName   string
	SecureCookie bool
	BcryptCost   int
}

// Handler serves /register, /login, /logout, and /profile.
type Handler struct {
	users  Users
	tokens Tokens
	opts   Options
	log    *zap.Logger
}

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type idResponse struct {
	ID string `json:"id"`
}

// NewHandler creates the account handler.
func NewHandler(users Users, tokens Tokens, opts Options, log *zap.Logger) *Handler {
	if opts.CookieName == "" {
		opts.CookieName = identity.DefaultCookieName
	}
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{users: users, tokens: tokens, opts: opts, log: log}
}

// Mount registers the account routes on mux.
func (h *Handler) Mount(mux *http.ServeMux) {
	mux.HandleFunc("POST /register", h.Register)
	mux.HandleFunc("POST /login", h.Login)
	mux.HandleFunc("POST /logout", h.Logout)
	mux.HandleFunc("GET /profile", h.Profile)
}

// Register creates an account and signs the caller in.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	creds, ok := decodeCredentials(w, r)
	if !ok {
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(creds.Password), h.opts.BcryptCost)
	if err != nil {
		h.log.Error("Hashing password failed", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	user, err := h.users.Create(r.Context(), creds.Username, hash)
	if errors.Is(err, ErrUserExists) {
		http.Error(w, "username already taken", http.StatusConflict)
		return
	}
	if err != nil {
		h.log.Error("Creating user failed", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	h.log.Info("User registered", zap.String("user", user.ID))
	h.signIn(w, user, http.StatusCreated)
}

// Login verifies the password and signs the caller in. Unknown users and
// wrong passwords both answer 401.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	creds, ok := decodeCredentials(w, r)
	if !ok {
		return
	}

	user, err := h.users.FindByUsername(r.Context(), creds.Username)
	if err != nil && !errors.Is(err, ErrUserNotFound) {
		h.log.Error("Looking up user failed", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if err != nil || bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(creds.Password)) != nil {
		http.Error(w, "invalid username or password", http.StatusUnauthorized)
		return
	}

	h.signIn(w, user, http.StatusOK)
}

// Logout clears the session cookie.
func (h *Handler) Logout(w http.ResponseWriter, _ *http.Request) {
	http.SetCookie(w, h.cookie("", time.Unix(0, 0)))
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// Profile returns the identity carried by the caller's token.
func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	token := identity.TokenFromRequest(r, h.opts.CookieName)
	if token == "" {
		writeJSON(w, http.StatusUnprocessableEntity, "NO TOKEN")
		return
	}
	id, err := h.tokens.VerifyToken(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"userId": id.UserID, "username": id.DisplayName})
}

func (h *Handler) signIn(w http.ResponseWriter, user User, status int) {
	token, exp, err := h.tokens.Issue(identity.Identity{UserID: user.ID, DisplayName: user.Username})
	if err != nil {
		h.log.Error("Issuing token failed", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	http.SetCookie(w, h.cookie(token, exp))
	writeJSON(w, status, idResponse{ID: user.ID})
}

func (h *Handler) cookie(value string, expires time.Time) *http.Cookie {
	c := &http.Cookie{
		Name:     h.opts.CookieName,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   h.opts.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	}
	if h.opts.SecureCookie {
		c.SameSite = http.SameSiteNoneMode
	}
	return c
}

func decodeCredentials(w http.ResponseWriter, r *http.Request) (credentials, bool) {
	var creds credentials
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&creds); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return creds, false
	}
	creds.Username = strings.TrimSpace(creds.Username)
	if creds.Username == "" || creds.Password == "" {
		http.Error(w, "username and password are required", http.StatusBadRequest)
		return creds, false
	}
	return creds, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
