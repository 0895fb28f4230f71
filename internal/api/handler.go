package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/unrolled/secure"

	"maktaba/m/domain"
	"maktaba/m/internal/apperr"
	"maktaba/m/internal/debts"
	"maktaba/m/internal/tenant"
)

type ctxKey string

const (
	ctxUserID ctxKey = "userID"
	ctxStore  ctxKey = "store"
)

// Options tunes authentication.
type Options struct {
	Secret         string
	TokenTTL       time.Duration
	LoginRateLimit int
	CORSOrigins    []string
}

// Handler bundles dependencies for HTTP handlers.
type Handler struct {
	registry *tenant.Registry
	opts     Options
	log      zerolog.Logger
	validate *validator.Validate
}

// New constructs a Handler.
func New(registry *tenant.Registry, opts Options, log zerolog.Logger) *Handler {
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = 24 * time.Hour
	}
	return &Handler{
		registry: registry,
		opts:     opts,
		log:      log.With().Str("component", "api").Logger(),
		validate: validator.New(),
	}
}

// Router wires up the HTTP API.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	if len(h.opts.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: h.opts.CORSOrigins,
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type", "Authorization"},
		}))
	}
	r.Use(secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		ReferrerPolicy:        "no-referrer",
		ContentSecurityPolicy: "default-src 'none'",
	}).Handler)
	r.Use(middleware.RequestID)
	r.Use(h.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", h.health)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.register)
		r.With(h.loginLimiter()).Post("/login", h.login)
	})

	r.Group(func(pr chi.Router) {
		pr.Use(h.authMiddleware)

		pr.Get("/stores", h.listStores)
		pr.Post("/stores", h.createStore)

		pr.Route("/stores/{storeID}", func(sr chi.Router) {
			sr.Use(h.withSession)
			sr.Post("/grants", h.grant)
			h.mountStoreRoutes(sr)
		})
	})

	return r
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		h.log.Info().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("latency", time.Since(start)).
			Msg("request processed")
	})
}

func (h *Handler) loginLimiter() func(http.Handler) http.Handler {
	if h.opts.LoginRateLimit <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(h.opts.LoginRateLimit, time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			respondError(w, http.StatusTooManyRequests, "too many login attempts")
		}),
	)
}

// Authentication helpers

type authClaims struct {
	UserID int64 `json:"user_id"`
	jwt.RegisteredClaims
}

func (h *Handler) generateToken(userID int64) (string, error) {
	now := time.Now()
	claims := authClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(h.opts.TokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(h.opts.Secret))
}

func (h *Handler) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" || !strings.HasPrefix(strings.ToLower(header), "bearer ") {
			respondError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		tokenString := strings.TrimSpace(header[len("Bearer "):])
		token, err := jwt.ParseWithClaims(tokenString, &authClaims{}, func(token *jwt.Token) (any, error) {
			if token.Method != jwt.SigningMethodHS256 {
				return nil, errors.New("unexpected signing method")
			}
			return []byte(h.opts.Secret), nil
		})
		if err != nil || !token.Valid {
			respondError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		claims, ok := token.Claims.(*authClaims)
		if !ok || claims.UserID <= 0 {
			respondError(w, http.StatusUnauthorized, "invalid token claims")
			return
		}
		ctx := context.WithValue(r.Context(), ctxUserID, claims.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// withSession binds the authenticated user and the store of the URL into a
// tenant.Session.
func (h *Handler) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		storeID, err := idParam(r, "storeID")
		if err != nil {
			h.respondErr(w, r, err)
			return
		}
		sess := tenant.Session{UserID: userID(r), StoreID: storeID}
		next.ServeHTTP(w, r.WithContext(tenant.WithSession(r.Context(), sess)))
	})
}

// requireStore resolves the session's store and rejects callers below min.
func (h *Handler) requireStore(min domain.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, _ := tenant.SessionFrom(r.Context())
			store, err := h.registry.Resolve(r.Context(), sess, min)
			if err != nil {
				h.respondErr(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxStore, store)))
		})
	}
}

func userID(r *http.Request) int64 {
	id, _ := r.Context().Value(ctxUserID).(int64)
	return id
}

func storeFrom(r *http.Request) *tenant.Store {
	store, _ := r.Context().Value(ctxStore).(*tenant.Store)
	return store
}

// Auth handlers

type registerRequest struct {
	Username string `json:"username" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

type authResponse struct {
	Token string      `json:"token"`
	User  domain.User `json:"user"`
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !h.decodeValid(w, r, &req) {
		return
	}
	user, err := h.registry.CreateUser(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	token, err := h.generateToken(user.ID)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, authResponse{Token: token, User: user})
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.decodeValid(w, r, &req) {
		return
	}
	user, err := h.registry.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	token, err := h.generateToken(user.ID)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, authResponse{Token: token, User: user})
}

// Store registry handlers

type storeRequest struct {
	Name string `json:"name" validate:"required"`
}

func (h *Handler) createStore(w http.ResponseWriter, r *http.Request) {
	var req storeRequest
	if !h.decodeValid(w, r, &req) {
		return
	}
	store, err := h.registry.CreateStore(r.Context(), userID(r), req.Name)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, store)
}

func (h *Handler) listStores(w http.ResponseWriter, r *http.Request) {
	stores, err := h.registry.ListStores(r.Context(), userID(r))
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, stores)
}

type grantRequest struct {
	UserID int64             `json:"user_id" validate:"required,gt=0"`
	Level  domain.Permission `json:"level" validate:"required"`
}

func (h *Handler) grant(w http.ResponseWriter, r *http.Request) {
	var req grantRequest
	if !h.decodeValid(w, r, &req) {
		return
	}
	sess, _ := tenant.SessionFrom(r.Context())
	if err := h.registry.Grant(r.Context(), sess.UserID, sess.StoreID, req.UserID, req.Level); err != nil {
		h.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"user_id": req.UserID, "level": req.Level})
}

// Helpers

func idParam(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Invalid(name, "must be a positive integer")
	}
	return id, nil
}

// decodeValid decodes the JSON body into dest and runs its validate tags,
// answering 400 itself when either step fails.
func (h *Handler) decodeValid(w http.ResponseWriter, r *http.Request, dest any) bool {
	if err := decodeJSON(r, dest); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return false
	}
	if err := h.validate.Struct(dest); err != nil {
		h.respondErr(w, r, err)
		return false
	}
	return true
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)
	_ = encoder.Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondErr maps an error kind to its status code.
func (h *Handler) respondErr(w http.ResponseWriter, r *http.Request, err error) {
	var (
		over    *apperr.OverpaymentError
		invalid validator.ValidationErrors
	)
	switch {
	case errors.As(err, &over):
		respondJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error(), "remaining": over.Remaining})
	case errors.As(err, &invalid):
		fields := make(map[string]string, len(invalid))
		for _, fe := range invalid {
			fields[fe.Field()] = fe.Tag()
		}
		respondJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid request", "fields": fields})
	case errors.Is(err, apperr.ErrValidation):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, apperr.ErrNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, apperr.ErrConstraint), errors.Is(err, debts.ErrStaleVersion):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, apperr.ErrUnauthorized):
		respondError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, apperr.ErrForbidden):
		respondError(w, http.StatusForbidden, err.Error())
	default:
		h.log.Error().Err(err).Str("request_id", middleware.GetReqID(r.Context())).Str("path", r.URL.Path).Msg("request failed")
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}
