// Package devserver is a reference implementation of the engine's two
// HTTP collaborators: the remote cart store and the product catalog.
// Meant for local development and end-to-end tests, not production.
package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"cartsync/internal/catalog"
	"cartsync/internal/remote"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const contextKeyUserID contextKey = "user_id"

type Server struct {
	store     RowStore
	products  map[string]catalog.Product
	jwtSecret []byte
	log       *slog.Logger
}

func NewServer(store RowStore, products map[string]catalog.Product, jwtSecret []byte, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		store:     store,
		products:  products,
		jwtSecret: jwtSecret,
		log:       log,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/products/{productID}", s.getProduct)

	r.Route("/cart", func(r chi.Router) {
		r.Use(s.requireUser)
		r.Get("/items", s.listItems)
		r.Post("/items", s.addItem)
		r.Patch("/items/{rowID}", s.updateItem)
		r.Delete("/items/{rowID}", s.deleteItem)
		r.Delete("/items", s.clearItems)
		r.Post("/merge", s.mergeItems)
	})

	return r
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

type updateQuantityRequest struct {
	Quantity int `json:"quantity"`
}

type mergeRequest struct {
	Items []remote.Item `json:"items"`
}

func (s *Server) getProduct(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productID")
	product, ok := s.products[productID]
	if !ok {
		s.respondError(w, http.StatusNotFound, "not_found", "product not found")
		return
	}
	s.respondJSON(w, http.StatusOK, product)
}

func (s *Server) listItems(w http.ResponseWriter, r *http.Request) {
	rows, err := s.store.List(r.Context(), userID(r.Context()))
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "internal_error", "failed to list cart")
		return
	}
	if rows == nil {
		rows = []remote.Row{}
	}
	s.respondJSON(w, http.StatusOK, rows)
}

func (s *Server) addItem(w http.ResponseWriter, r *http.Request) {
	var item remote.Item
	if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	row, ok := s.buildRow(w, item)
	if !ok {
		return
	}

	created, err := s.store.Upsert(r.Context(), userID(r.Context()), row)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "internal_error", "failed to add cart row")
		return
	}
	s.respondJSON(w, http.StatusCreated, created)
}

func (s *Server) updateItem(w http.ResponseWriter, r *http.Request) {
	var req updateQuantityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.Quantity <= 0 {
		s.respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be positive")
		return
	}

	row, err := s.store.UpdateQuantity(r.Context(), userID(r.Context()), chi.URLParam(r, "rowID"), req.Quantity)
	if errors.Is(err, ErrRowNotFound) {
		s.respondError(w, http.StatusNotFound, "not_found", "cart row not found")
		return
	}
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "internal_error", "failed to update cart row")
		return
	}
	s.respondJSON(w, http.StatusOK, row)
}

func (s *Server) deleteItem(w http.ResponseWriter, r *http.Request) {
	err := s.store.Delete(r.Context(), userID(r.Context()), chi.URLParam(r, "rowID"))
	if errors.Is(err, ErrRowNotFound) {
		s.respondError(w, http.StatusNotFound, "not_found", "cart row not found")
		return
	}
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "internal_error", "failed to delete cart row")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) clearItems(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteAll(r.Context(), userID(r.Context())); err != nil {
		s.respondError(w, http.StatusInternalServerError, "internal_error", "failed to clear cart")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) mergeItems(w http.ResponseWriter, r *http.Request) {
	var req mergeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	uid := userID(r.Context())
	for _, item := range req.Items {
		row, ok := s.buildRow(w, item)
		if !ok {
			return
		}
		if _, err := s.store.Upsert(r.Context(), uid, row); err != nil {
			s.respondError(w, http.StatusInternalServerError, "internal_error", "failed to merge cart")
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// buildRow validates the item against the product fixtures and fills in
// the pricing snapshot. Writes the error response itself on failure.
func (s *Server) buildRow(w http.ResponseWriter, item remote.Item) (remote.Row, bool) {
	if item.ProductID == "" {
		s.respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id is required")
		return remote.Row{}, false
	}
	if item.Quantity <= 0 {
		s.respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be positive")
		return remote.Row{}, false
	}

	product, ok := s.products[item.ProductID]
	if !ok {
		s.respondError(w, http.StatusBadRequest, "unknown_product", "product does not exist")
		return remote.Row{}, false
	}

	row := remote.Row{
		ProductID:       item.ProductID,
		VariantID:       item.VariantID,
		Quantity:        item.Quantity,
		SelectedOptions: item.SelectedOptions,
		Price:           product.Price,
		DiscountedPrice: product.DiscountedPrice,
		Title:           product.Title,
		Images:          product.Images,
	}
	if item.VariantID != "" {
		variant := product.Variant(item.VariantID)
		if variant == nil {
			s.respondError(w, http.StatusBadRequest, "unknown_variant", "variant does not exist")
			return remote.Row{}, false
		}
		row.Price = variant.Price
		row.DiscountedPrice = variant.DiscountedPrice
	}
	return row, true
}

// requireUser validates the bearer JWT and puts its subject on the
// request context.
func (s *Server) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			s.respondError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
			return
		}

		parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
			return s.jwtSecret, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || !parsed.Valid {
			s.respondError(w, http.StatusUnauthorized, "unauthorized", "invalid token")
			return
		}

		claims, ok := parsed.Claims.(jwt.MapClaims)
		if !ok {
			s.respondError(w, http.StatusUnauthorized, "unauthorized", "invalid claims")
			return
		}
		sub, _ := claims["sub"].(string)
		if sub == "" {
			s.respondError(w, http.StatusUnauthorized, "unauthorized", "missing subject")
			return
		}

		ctx := context.WithValue(r.Context(), contextKeyUserID, sub)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func userID(ctx context.Context) string {
	uid, _ := ctx.Value(contextKeyUserID).(string)
	return uid
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && header[:len(prefix)] == prefix {
		return header[len(prefix):]
	}
	return ""
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error("failed to encode response", "error", err)
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, code, message string) {
	s.respondJSON(w, status, errorResponse{Error: message, Code: code})
}
