package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/shopdash/internal/blobstore"
	"github.com/joao-fontenele/shopdash/internal/domain"
)

// PlaceholderImageURL is stored for products created without an image.
const PlaceholderImageURL = "https://placehold.co/600x400"

type Store interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	CreateProduct(ctx context.Context, p *domain.Product) error
	DeleteProduct(ctx context.Context, id string, release func(context.Context, domain.Product) error) error
	ListCategories(ctx context.Context) ([]domain.Category, error)
}

type ImageStore interface {
	CreateSignedUploadURL(ctx context.Context, path string) (*blobstore.SignedUpload, error)
	PublicURL(path string) string
	ObjectPath(publicURL string) (string, bool)
	Remove(ctx context.Context, paths ...string) error
}

type Handler struct {
	store  Store
	images ImageStore
	logger *slog.Logger
	now    func() time.Time
}

func NewHandler(store Store, images ImageStore, logger *slog.Logger) *Handler {
	return &Handler{
		store:  store,
		images: images,
		logger: logger,
		now:    time.Now,
	}
}

func (h *Handler) HandleListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.store.ListProducts(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to list products", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.InfoContext(r.Context(), "products listed", "count", len(products))
	h.writeJSON(w, http.StatusOK, products)
}

type createProductRequest struct {
	Name       string          `json:"name"`
	Price      decimal.Decimal `json:"price"`
	CategoryID string          `json:"category_id"`
	ImageURL   string          `json:"image_url"`
}

func (req createProductRequest) toProduct() (*domain.Product, error) {
	verr := &domain.ValidationError{}

	name := strings.TrimSpace(req.Name)
	if len([]rune(name)) < 3 {
		verr.Add("name", "minimum 3 characters required")
	}
	if req.Price.IsNegative() {
		verr.Add("price", "must not be negative")
	}
	if strings.TrimSpace(req.CategoryID) == "" {
		verr.Add("category_id", "is required")
	}

	imageURL := strings.TrimSpace(req.ImageURL)
	if imageURL == "" {
		imageURL = PlaceholderImageURL
	} else if u, err := url.Parse(imageURL); err != nil || !u.IsAbs() || u.Host == "" {
		verr.Add("image_url", "must be an absolute url")
	}

	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	return &domain.Product{
		Name:     name,
		Price:    req.Price,
		ImageURL: &imageURL,
		Category: domain.CategoryRef{ID: req.CategoryID},
	}, nil
}

func (h *Handler) HandleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req createProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	product, err := req.toProduct()
	if err != nil {
		h.writeDomainError(w, r, err, "failed to validate product")
		return
	}

	if err := h.store.CreateProduct(r.Context(), product); err != nil {
		h.writeDomainError(w, r, err, "failed to create product")
		return
	}

	h.logger.InfoContext(r.Context(), "product created", "product_id", product.ID, "category_id", product.Category.ID)
	h.writeJSON(w, http.StatusCreated, product)
}

// HandleDeleteProduct removes the product and its uploaded image. The image
// is only removed once the row delete has gone through, and a failed removal
// keeps the row. Images hosted elsewhere (such as the placeholder) are left alone.
func (h *Handler) HandleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing product id")
		return
	}

	var removeErr error
	err := h.store.DeleteProduct(r.Context(), id, func(ctx context.Context, product domain.Product) error {
		if product.ImageURL == nil {
			return nil
		}
		path, ok := h.images.ObjectPath(*product.ImageURL)
		if !ok {
			return nil
		}
		if err := h.images.Remove(ctx, path); err != nil {
			removeErr = fmt.Errorf("remove image %s: %w", path, err)
			return removeErr
		}
		return nil
	})
	if removeErr != nil {
		h.logger.ErrorContext(r.Context(), "failed to remove product image", "error", removeErr, "product_id", id)
		h.writeError(w, http.StatusBadGateway, "failed to remove product image")
		return
	}
	if err != nil {
		h.writeDomainError(w, r, err, "failed to delete product")
		return
	}

	h.logger.InfoContext(r.Context(), "product deleted", "product_id", id)
	w.WriteHeader(http.StatusNoContent)
}

type imageUploadResponse struct {
	*blobstore.SignedUpload
	PublicURL string `json:"public_url"`
}

func (h *Handler) HandleCreateImageUploadURL(w http.ResponseWriter, r *http.Request) {
	path := fmt.Sprintf("%d-%s.jpeg", h.now().UnixMilli(), uuid.New().String()[:8])

	upload, err := h.images.CreateSignedUploadURL(r.Context(), path)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to create signed upload url", "error", err, "path", path)
		h.writeError(w, http.StatusInternalServerError, "failed to create upload url")
		return
	}

	h.logger.InfoContext(r.Context(), "image upload url issued", "path", upload.Path)
	h.writeJSON(w, http.StatusOK, imageUploadResponse{
		SignedUpload: upload,
		PublicURL:    h.images.PublicURL(upload.Path),
	})
}

func (h *Handler) HandleListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.store.ListCategories(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to list categories", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.InfoContext(r.Context(), "categories listed", "count", len(categories))
	h.writeJSON(w, http.StatusOK, categories)
}

func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error, logMsg string) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		h.writeJSON(w, http.StatusBadRequest, map[string]any{"error": "validation failed", "fields": verr.Fields})
	case errors.Is(err, domain.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "product not found")
	case errors.Is(err, domain.ErrConflict):
		h.writeError(w, http.StatusConflict, "product is referenced by existing orders")
	default:
		h.logger.ErrorContext(r.Context(), logMsg, "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
