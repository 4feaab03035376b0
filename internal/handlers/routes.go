// internal/handlers/routes.go
package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/ammerola/stockledger/internal/handlers/middleware"
)

const apiV1 = "/api/v1"

// Handlers groups every HTTP handler mounted by NewRouter.
type Handlers struct {
	Health         *HealthHandler
	Movements      *MovementHandler
	Products       *ProductHandler
	Categories     *CategoryHandler
	Suppliers      *SupplierHandler
	PurchaseOrders *PurchaseOrderHandler
	Dashboard      *DashboardHandler
	Export         *ExportHandler
	Import         *ImportHandler
	Users          *UserHandler
}

// RouterConfig carries the middleware settings.
type RouterConfig struct {
	Verifier          middleware.TokenVerifier
	AllowedOrigins    []string
	SecureHeaders     bool
	RequestIDHeader   string
	RateLimitRequests int
	RateLimitDuration time.Duration
	RequestTimeout    time.Duration
}

// NewRouter registers all routes on a Go 1.22 ServeMux. Everything under
// /api/v1 requires a bearer token and /api/v1/users requires the admin role.
func NewRouter(h Handlers, cfg RouterConfig, logger *slog.Logger) http.Handler {
	api := http.NewServeMux()

	// Stock ledger
	api.HandleFunc("POST "+apiV1+"/stock-transactions", h.Movements.Create)
	api.HandleFunc("GET "+apiV1+"/stock-transactions", h.Movements.List)
	api.HandleFunc("GET "+apiV1+"/products/{id}/movements", h.Movements.ProductHistory)
	api.HandleFunc("GET "+apiV1+"/products/{id}/reconcile", h.Movements.Reconcile)

	// Catalog
	api.HandleFunc("GET "+apiV1+"/products", h.Products.List)
	api.HandleFunc("POST "+apiV1+"/products", h.Products.Create)
	api.HandleFunc("GET "+apiV1+"/products/{id}", h.Products.Get)
	api.HandleFunc("PUT "+apiV1+"/products/{id}", h.Products.Update)
	api.HandleFunc("DELETE "+apiV1+"/products/{id}", h.Products.Delete)
	api.HandleFunc("GET "+apiV1+"/stock", h.Products.List)

	api.HandleFunc("GET "+apiV1+"/categories", h.Categories.List)
	api.HandleFunc("POST "+apiV1+"/categories", h.Categories.Create)
	api.HandleFunc("GET "+apiV1+"/categories/{id}", h.Categories.Get)
	api.HandleFunc("PUT "+apiV1+"/categories/{id}", h.Categories.Update)
	api.HandleFunc("DELETE "+apiV1+"/categories/{id}", h.Categories.Delete)

	api.HandleFunc("GET "+apiV1+"/suppliers", h.Suppliers.List)
	api.HandleFunc("POST "+apiV1+"/suppliers", h.Suppliers.Create)
	api.HandleFunc("GET "+apiV1+"/suppliers/{id}", h.Suppliers.Get)
	api.HandleFunc("PUT "+apiV1+"/suppliers/{id}", h.Suppliers.Update)

	// Purchase orders
	api.HandleFunc("GET "+apiV1+"/purchase-orders", h.PurchaseOrders.List)
	api.HandleFunc("POST "+apiV1+"/purchase-orders", h.PurchaseOrders.Create)
	api.HandleFunc("GET "+apiV1+"/purchase-orders/{id}", h.PurchaseOrders.Get)
	api.HandleFunc("PUT "+apiV1+"/purchase-orders/{id}", h.PurchaseOrders.UpdateStatus)
	api.HandleFunc("PUT "+apiV1+"/purchase-orders/{id}/receive", h.PurchaseOrders.Receive)
	api.HandleFunc("PUT "+apiV1+"/purchase-orders/{id}/cancel", h.PurchaseOrders.Cancel)

	// Reports
	api.HandleFunc("GET "+apiV1+"/stock-alerts", h.Dashboard.StockAlerts)
	api.HandleFunc("GET "+apiV1+"/dashboard/stats", h.Dashboard.GetDashboard)
	api.HandleFunc("GET "+apiV1+"/reports/statistics", h.Dashboard.Statistics)
	api.HandleFunc("GET "+apiV1+"/export/{dataset}", h.Export.Export)
	api.HandleFunc("POST "+apiV1+"/export/{dataset}", h.Export.RequestExport)
	if h.Import != nil {
		api.HandleFunc("POST "+apiV1+"/import/products", h.Import.ImportProducts)
	}

	// Users
	admin := func(fn http.HandlerFunc) http.Handler { return middleware.RequireAdmin(fn) }
	api.Handle("GET "+apiV1+"/users", admin(h.Users.List))
	api.Handle("POST "+apiV1+"/users", admin(h.Users.Create))
	api.Handle("GET "+apiV1+"/users/{id}", admin(h.Users.Get))
	api.Handle("PUT "+apiV1+"/users/{id}", admin(h.Users.Update))
	api.Handle("DELETE "+apiV1+"/users/{id}", admin(h.Users.Delete))
	api.HandleFunc("PUT "+apiV1+"/settings/profile", h.Users.UpdateProfile)
	api.HandleFunc("PUT "+apiV1+"/settings/password", h.Users.ChangePassword)

	apiHandler := middleware.Auth(cfg.Verifier, logger)(api)
	if cfg.RequestTimeout > 0 {
		apiHandler = middleware.Timeout(cfg.RequestTimeout)(apiHandler)
	}

	root := http.NewServeMux()
	if h.Health != nil {
		root.HandleFunc("GET /health", h.Health.Health)
		root.HandleFunc("GET /ready", h.Health.Readiness)
	}
	root.Handle(apiV1+"/", apiHandler)

	mws := []func(http.Handler) http.Handler{
		middleware.Recovery(logger),
		middleware.RequestIDWithHeader(cfg.RequestIDHeader),
		middleware.Logger(logger),
	}
	if len(cfg.AllowedOrigins) > 0 {
		mws = append(mws, middleware.CORS(cfg.AllowedOrigins))
	}
	if cfg.SecureHeaders {
		mws = append(mws, middleware.SecureHeaders)
	}
	if cfg.RateLimitRequests > 0 {
		mws = append(mws, middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitDuration))
	}
	return middleware.Chain(root, mws...)
}
