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
	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	"go.uber.org/zap"

	"partflow/m/domain"
	"partflow/m/internal/invoice"
	"partflow/m/internal/localdb"
	"partflow/m/internal/metrics"
	"partflow/m/internal/syncer"
)

type ctxKey string

const (
	ctxUserID   ctxKey = "userID"
	ctxUsername ctxKey = "username"
	ctxRole     ctxKey = "role"
)

// Handler bundles dependencies for HTTP handlers.
type Handler struct {
	repo        *localdb.Repository
	sync        *syncer.Coordinator
	secret      string
	log         *zap.Logger
	syncLimiter *stdlib.Middleware
}

// New constructs a Handler. syncRate is a limiter formatted rate such as
// "10-M" applied per client to POST /sync.
func New(repo *localdb.Repository, coord *syncer.Coordinator, secret, syncRate string, log *zap.Logger) (*Handler, error) {
	rate, err := limiter.NewRateFromFormatted(syncRate)
	if err != nil {
		return nil, err
	}
	return &Handler{
		repo:        repo,
		sync:        coord,
		secret:      secret,
		log:         log,
		syncLimiter: stdlib.NewMiddleware(limiter.New(memory.NewStore(), rate)),
	}, nil
}

// Router wires up the HTTP API.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	}))
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(h.metricsMiddleware)

	r.Get("/health", h.health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", h.login)
		r.Group(func(protected chi.Router) {
			protected.Use(h.authMiddleware)
			protected.Post("/logout", h.logout)
			protected.Post("/change-password", h.changePassword)
			protected.Get("/me", h.me)
		})
	})

	r.Group(func(pr chi.Router) {
		pr.Use(h.authMiddleware)

		pr.Route("/customers", func(r chi.Router) {
			r.Get("/", h.listCustomers)
			r.Post("/", h.createCustomer)
			r.Get("/{id}", h.getCustomer)
			r.Put("/{id}", h.updateCustomer)
			r.Post("/{id}/deactivate", h.deactivateCustomer)
		})

		pr.Route("/items", func(r chi.Router) {
			r.Get("/", h.listItems)
			r.Post("/", h.createItem)
			r.Get("/adjustments", h.listAdjustments)
			r.Get("/{id}", h.getItem)
			r.Put("/{id}", h.updateItem)
			r.Delete("/{id}", h.deleteItem)
			r.Post("/{id}/stock", h.updateStock)
			r.Post("/{id}/adjustments", h.addAdjustment)
		})

		pr.Route("/orders", func(r chi.Router) {
			r.Get("/", h.listOrders)
			r.Post("/", h.finalizeOrder)
			r.Get("/{id}", h.getOrder)
			r.Put("/{id}", h.editOrder)
			r.Delete("/{id}", h.deleteOrder)
			r.Post("/{id}/payments", h.addPayment)
			r.Put("/{id}/delivery", h.updateDelivery)
			r.Get("/{id}/invoice", h.orderInvoice)
		})

		pr.Get("/settings", h.getSettings)
		pr.Put("/settings", h.saveSettings)

		pr.Get("/stats/dashboard", h.dashboardStats)
		pr.Get("/stats/sync", h.syncStats)
		pr.Get("/reports/sales", h.salesReport)

		pr.With(h.syncLimiter.Handler).Post("/sync", h.performSync)
	})

	return r
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Authentication helpers

type authClaims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

func (h *Handler) generateToken(user domain.User) (string, error) {
	claims := authClaims{
		UserID:   user.ID,
		Username: user.Username,
		Role:     user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(h.secret))
}

func (h *Handler) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" || !strings.HasPrefix(strings.ToLower(header), "bearer ") {
			respondError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		tokenString := strings.TrimSpace(header[len("Bearer "):])
		token, err := jwt.ParseWithClaims(tokenString, &authClaims{}, func(token *jwt.Token) (interface{}, error) {
			if token.Method != jwt.SigningMethodHS256 {
				return nil, errors.New("unexpected signing method")
			}
			return []byte(h.secret), nil
		})
		if err != nil || !token.Valid {
			respondError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		claims, ok := token.Claims.(*authClaims)
		if !ok {
			respondError(w, http.StatusUnauthorized, "invalid token claims")
			return
		}
		ctx := context.WithValue(r.Context(), ctxUserID, claims.UserID)
		ctx = context.WithValue(ctx, ctxUsername, claims.Username)
		ctx = context.WithValue(ctx, ctxRole, claims.Role)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) requireRole(w http.ResponseWriter, r *http.Request, allowed ...string) bool {
	role, _ := r.Context().Value(ctxRole).(string)
	if role == "" {
		respondError(w, http.StatusUnauthorized, "missing role")
		return false
	}
	for _, allowedRole := range allowed {
		if role == allowedRole {
			return true
		}
	}
	respondError(w, http.StatusForbidden, "insufficient permissions")
	return false
}

func (h *Handler) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		h.log.Debug("http request",
			zap.String("method", r.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Duration("took", time.Since(start)))
	})
}

// Auth handlers

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type authResponse struct {
	Token string      `json:"token"`
	User  domain.User `json:"user"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	user, err := h.repo.Authenticate(r.Context(), strings.TrimSpace(req.Username), req.Password)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	token, err := h.generateToken(user)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to generate token")
		return
	}
	if err := h.repo.SetCurrentUser(r.Context(), user); err != nil {
		h.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, authResponse{Token: token, User: user})
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.ClearCurrentUser(r.Context()); err != nil {
		h.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

func (h *Handler) changePassword(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		OldPassword string `json:"old_password"`
		NewPassword string `json:"new_password"`
	}
	if err := decodeJSON(r, &payload); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	username, _ := r.Context().Value(ctxUsername).(string)
	if err := h.repo.ChangePassword(r.Context(), username, payload.OldPassword, payload.NewPassword); err != nil {
		h.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "password updated"})
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	user, err := h.repo.CurrentUser(r.Context())
	if err != nil {
		h.respondErr(w, err)
		return
	}
	if user == nil {
		respondError(w, http.StatusNotFound, "no user signed in on this device")
		return
	}
	respondJSON(w, http.StatusOK, user)
}

// Customer handlers

func (h *Handler) listCustomers(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.repo.Customers())
}

func (h *Handler) getCustomer(w http.ResponseWriter, r *http.Request) {
	c, err := h.repo.Customer(chi.URLParam(r, "id"))
	if err != nil {
		h.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

func (h *Handler) createCustomer(w http.ResponseWriter, r *http.Request) {
	var c domain.Customer
	if err := decodeJSON(r, &c); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if c.CustomerID != "" {
		if _, err := h.repo.Customer(c.CustomerID); err == nil {
			respondError(w, http.StatusConflict, "customer already exists")
			return
		}
	}
	saved, err := h.repo.SaveCustomer(r.Context(), c)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, saved)
}

func (h *Handler) updateCustomer(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.repo.Customer(id); err != nil {
		h.respondErr(w, err)
		return
	}
	var c domain.Customer
	if err := decodeJSON(r, &c); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	c.CustomerID = id
	saved, err := h.repo.SaveCustomer(r.Context(), c)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, saved)
}

func (h *Handler) deactivateCustomer(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.DeactivateCustomer(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "customer deactivated"})
}

// Item handlers

func (h *Handler) listItems(w http.ResponseWriter, r *http.Request) {
	items := h.repo.Items()
	if r.URL.Query().Get("status") == string(domain.StatusActive) {
		active := items[:0]
		for _, it := range items {
			if it.Status != domain.StatusInactive {
				active = append(active, it)
			}
		}
		items = active
	}
	respondJSON(w, http.StatusOK, items)
}

func (h *Handler) getItem(w http.ResponseWriter, r *http.Request) {
	it, err := h.repo.Item(chi.URLParam(r, "id"))
	if err != nil {
		h.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, it)
}

func (h *Handler) createItem(w http.ResponseWriter, r *http.Request) {
	var it domain.Item
	if err := decodeJSON(r, &it); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if it.ItemID != "" {
		if _, err := h.repo.Item(it.ItemID); err == nil {
			respondError(w, http.StatusConflict, "item already exists")
			return
		}
	}
	saved, err := h.repo.SaveItem(r.Context(), it)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, saved)
}

func (h *Handler) updateItem(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.repo.Item(id); err != nil {
		h.respondErr(w, err)
		return
	}
	var it domain.Item
	if err := decodeJSON(r, &it); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	it.ItemID = id
	saved, err := h.repo.SaveItem(r.Context(), it)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, saved)
}

func (h *Handler) deleteItem(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.DeleteItem(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "item deactivated"})
}

func (h *Handler) updateStock(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Delta int `json:"delta"`
	}
	if err := decodeJSON(r, &payload); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if payload.Delta == 0 {
		respondError(w, http.StatusBadRequest, "delta must not be zero")
		return
	}
	it, err := h.repo.UpdateStock(r.Context(), chi.URLParam(r, "id"), payload.Delta)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, it)
}

func (h *Handler) addAdjustment(w http.ResponseWriter, r *http.Request) {
	var a domain.StockAdjustment
	if err := decodeJSON(r, &a); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	a.ItemID = chi.URLParam(r, "id")
	saved, err := h.repo.AddStockAdjustment(r.Context(), a)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, saved)
}

func (h *Handler) listAdjustments(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.repo.StockAdjustments())
}

// Order handlers

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	orders := h.repo.Orders()
	if customerID := r.URL.Query().Get("customer_id"); customerID != "" {
		filtered := orders[:0]
		for _, o := range orders {
			if o.CustomerID == customerID {
				filtered = append(filtered, o)
			}
		}
		orders = filtered
	}
	respondJSON(w, http.StatusOK, orders)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.repo.Order(chi.URLParam(r, "id"))
	if err != nil {
		h.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, o)
}

func (h *Handler) finalizeOrder(w http.ResponseWriter, r *http.Request) {
	var draft localdb.OrderDraft
	if err := decodeJSON(r, &draft); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if draft.RepID == "" {
		draft.RepID, _ = r.Context().Value(ctxUserID).(string)
	}
	o, err := h.repo.FinalizeOrder(r.Context(), draft)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, o)
}

func (h *Handler) editOrder(w http.ResponseWriter, r *http.Request) {
	var draft localdb.OrderDraft
	if err := decodeJSON(r, &draft); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	o, err := h.repo.EditOrder(r.Context(), chi.URLParam(r, "id"), draft)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, o)
}

func (h *Handler) deleteOrder(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.DeleteOrder(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "order deleted"})
}

func (h *Handler) addPayment(w http.ResponseWriter, r *http.Request) {
	var p domain.Payment
	if err := decodeJSON(r, &p); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	p.OrderID = chi.URLParam(r, "id")
	o, err := h.repo.AddPayment(r.Context(), p)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, o)
}

func (h *Handler) updateDelivery(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		DeliveryStatus domain.DeliveryStatus `json:"delivery_status"`
		DeliveryNotes  *string               `json:"delivery_notes"`
	}
	if err := decodeJSON(r, &payload); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	o, err := h.repo.UpdateDeliveryStatus(r.Context(), chi.URLParam(r, "id"), payload.DeliveryStatus, payload.DeliveryNotes)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, o)
}

func (h *Handler) orderInvoice(w http.ResponseWriter, r *http.Request) {
	o, err := h.repo.Order(chi.URLParam(r, "id"))
	if err != nil {
		h.respondErr(w, err)
		return
	}
	c, err := h.repo.Customer(o.CustomerID)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	doc, err := invoice.Build(o, c, h.repo.Settings())
	if err != nil {
		h.respondErr(w, err)
		return
	}
	if r.URL.Query().Get("format") == "text" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(doc.Text()))
		return
	}
	respondJSON(w, http.StatusOK, doc)
}

// Settings, stats and reports

func (h *Handler) getSettings(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.repo.Settings())
}

func (h *Handler) saveSettings(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, "admin") {
		return
	}
	var s domain.CompanySettings
	if err := decodeJSON(r, &s); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.repo.SaveSettings(r.Context(), s); err != nil {
		h.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, s)
}

func (h *Handler) dashboardStats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.repo.DashboardStats())
}

func (h *Handler) syncStats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.repo.SyncStats())
}

func (h *Handler) salesReport(w http.ResponseWriter, r *http.Request) {
	start := r.URL.Query().Get("start_date")
	end := r.URL.Query().Get("end_date")
	if start == "" || end == "" {
		respondError(w, http.StatusBadRequest, "start_date and end_date are required")
		return
	}
	report, err := h.repo.SalesReport(start, end)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

// Sync

type syncErrorResponse struct {
	Error string   `json:"error"`
	Logs  []string `json:"logs,omitempty"`
}

func (h *Handler) performSync(w http.ResponseWriter, r *http.Request) {
	mode := domain.SyncMode(r.URL.Query().Get("mode"))
	if mode == "" {
		mode = domain.SyncUpsert
	}
	report, err := h.sync.PerformSync(r.Context(), mode, nil)
	var syncErr *syncer.SyncError
	if errors.As(err, &syncErr) {
		respondJSON(w, http.StatusBadGateway, syncErrorResponse{Error: syncErr.Error(), Logs: syncErr.Logs})
		return
	}
	if err != nil {
		h.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

// Helpers

// respondErr maps domain errors to status codes. Anything unknown is logged
// and reported as a 500 without its message.
func (h *Handler) respondErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, localdb.ErrNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, localdb.ErrValidation), errors.Is(err, localdb.ErrInsufficientStock):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, localdb.ErrInvalidCredentials):
		respondError(w, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, localdb.ErrAlreadySynced), errors.Is(err, localdb.ErrOrderLocked),
		errors.Is(err, localdb.ErrDuplicate), errors.Is(err, syncer.ErrSyncInProgress),
		errors.Is(err, invoice.ErrUnresolved):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, syncer.ErrNotConfigured):
		respondError(w, http.StatusPreconditionFailed, err.Error())
	default:
		h.log.Error("request failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeJSON(r *http.Request, dest interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)
	_ = encoder.Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
