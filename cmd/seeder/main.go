package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"

	"github.com/ammerola/stockledger/internal/adapters/db"
	"github.com/ammerola/stockledger/internal/adapters/queue"
	"github.com/ammerola/stockledger/internal/adapters/storage"
	"github.com/ammerola/stockledger/internal/bootstrap"
	"github.com/ammerola/stockledger/internal/core/domain"
	"github.com/ammerola/stockledger/internal/core/ports"
	"github.com/ammerola/stockledger/internal/pkg/auth"
	"github.com/ammerola/stockledger/internal/pkg/config"
	"github.com/ammerola/stockledger/internal/pkg/logger"
	"github.com/ammerola/stockledger/internal/workers"
)

type seedProduct struct {
	Name     string
	SKU      string
	Category string
	Price    string
	Stock    int
	MinStock int
}

var (
	seedCategories = []domain.Category{
		{Name: "Electronics", Description: "Cables, adapters and peripherals"},
		{Name: "Office Supplies", Description: "Paper, pens and desk items"},
		{Name: "Hardware", Description: "Fasteners and tools"},
	}

	seedSuppliers = []domain.Supplier{
		{Name: "Northwind Components", Email: "orders@northwind.example", Phone: "+1 555 0100"},
		{Name: "Contoso Office", Email: "sales@contoso.example", Phone: "+1 555 0199"},
	}

	seedProducts = []seedProduct{
		{"USB-C Cable 1m", "EL-USBC-1M", "Electronics", "9.99", 120, 20},
		{"HDMI Adapter", "EL-HDMI-AD", "Electronics", "14.50", 8, 10},
		{"Wireless Mouse", "EL-MOUSE-W", "Electronics", "24.00", 0, 5},
		{"A4 Paper Ream", "OF-A4-500", "Office Supplies", "5.25", 300, 50},
		{"Gel Pen Blue", "OF-PEN-BLU", "Office Supplies", "1.10", 45, 40},
		{"Wood Screws 4x40", "HW-SCR-440", "Hardware", "3.80", 60, 15},
	}
)

func main() {
	var (
		migrateCmd    = flag.String("migrate", "", "Run a migration command: up, down, version or force")
		forceVersion  = flag.Int("force-version", -1, "Version used by -migrate=force")
		seed          = flag.Bool("seed", false, "Insert demo categories, suppliers, products and a purchase order")
		catalogFile   = flag.String("catalog", "", "Load products from an .xlsx sheet with the same rules as the import task")
		adminEmail    = flag.String("admin-email", "", "Create (if missing) an admin user and print a bearer token for it")
		adminPassword = flag.String("admin-password", "", "Password for a newly created admin")
		tokenTTL      = flag.Duration("token-ttl", 24*time.Hour, "Lifetime of the printed token")
		logLevel      = flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	)
	flag.Parse()

	slogger := logger.SetupLogger(*logLevel, "text").Logger

	cfg, err := config.Load(slogger)
	if err != nil {
		slogger.Error("failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx := context.Background()

	if *migrateCmd != "" {
		if err := runMigrate(ctx, cfg, *migrateCmd, *forceVersion, slogger); err != nil {
			slogger.Error("migration command failed",
				slog.String("command", *migrateCmd),
				slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	if !*seed && *catalogFile == "" && *adminEmail == "" {
		return
	}

	database, err := bootstrap.OpenDatabase(ctx, cfg, 4, slogger)
	if err != nil {
		slogger.Error("failed to connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer database.Close()

	// No redis or queue: low stock alerts and cache invalidation are skipped.
	svc := bootstrap.NewServices(cfg, database, nil, nil, slogger)

	var actor *domain.User
	if *adminEmail != "" {
		actor, err = ensureAdmin(ctx, database, svc.Users, *adminEmail, *adminPassword, slogger)
		if err != nil {
			slogger.Error("failed to prepare admin", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}
	actorID := "seeder"
	if actor != nil {
		actorID = actor.ID.String()
	}

	if *seed {
		if err := seedDemo(ctx, svc.Catalog, svc.Orders, actorID, slogger); err != nil {
			slogger.Error("seed failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	if *catalogFile != "" {
		if err := importCatalog(ctx, svc.Catalog, *catalogFile, actorID, slogger); err != nil {
			slogger.Error("catalog import failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	if actor != nil {
		verifier, err := auth.NewVerifier(cfg.Security.JWTSecret, cfg.Security.JWTIssuer, cfg.Security.JWTAudience)
		if err != nil {
			slogger.Error("failed to create token issuer", slog.String("error", err.Error()))
			os.Exit(1)
		}
		token, err := verifier.Issue(auth.Principal{UserID: actor.ID, Email: actor.Email, Role: actor.Role}, *tokenTTL)
		if err != nil {
			slogger.Error("failed to issue token", slog.String("error", err.Error()))
			os.Exit(1)
		}
		fmt.Printf("ADMIN TOKEN (%s, valid %s):\n%s\n", actor.Email, tokenTTL.String(), token)
	}
}

func runMigrate(ctx context.Context, cfg *config.Config, command string, version int, logger *slog.Logger) error {
	migrator, err := db.NewMigrator(bootstrap.MigrationConfig(cfg), logger)
	if err != nil {
		return err
	}
	defer migrator.Close()

	switch command {
	case "up":
		return migrator.Up(ctx)
	case "down":
		return migrator.Down(ctx)
	case "version":
		v, dirty, err := migrator.Version(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("version=%d dirty=%t\n", v, dirty)
		return nil
	case "force":
		if version < 0 {
			return errors.New("-force-version is required with -migrate=force")
		}
		return migrator.Force(ctx, version)
	default:
		return fmt.Errorf("unknown migrate command %q", command)
	}
}

func ensureAdmin(ctx context.Context, database *db.Database, users ports.UserService, email, password string, logger *slog.Logger) (*domain.User, error) {
	existing, err := db.NewUserRepository(database, logger).FindByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if existing.Role != domain.RoleAdmin {
			return nil, fmt.Errorf("user %s exists but is not an admin", existing.Email)
		}
		logger.Info("admin already exists", slog.String("email", existing.Email))
		return existing, nil
	}

	admin, err := users.Create(ctx, &domain.User{Email: email, Name: "Administrator", Role: domain.RoleAdmin}, password)
	if err != nil {
		return nil, err
	}
	logger.Info("admin created", slog.String("email", admin.Email), slog.String("id", admin.ID.String()))
	return admin, nil
}

// seedDemo is idempotent: rows that already exist by name or SKU are reused.
func seedDemo(ctx context.Context, catalog ports.CatalogService, orders ports.PurchaseOrderService, actorID string, logger *slog.Logger) error {
	existingCategories, err := catalog.ListCategories(ctx)
	if err != nil {
		return err
	}
	categoryIDs := make(map[string]uuid.UUID)
	for _, c := range existingCategories {
		categoryIDs[c.Name] = c.ID
	}
	for _, c := range seedCategories {
		if _, ok := categoryIDs[c.Name]; ok {
			continue
		}
		c := c
		created, err := catalog.CreateCategory(ctx, &c)
		if err != nil {
			return fmt.Errorf("category %s: %w", c.Name, err)
		}
		categoryIDs[c.Name] = created.ID
	}

	existingSuppliers, err := catalog.ListSuppliers(ctx)
	if err != nil {
		return err
	}
	supplierIDs := make(map[string]uuid.UUID)
	for _, s := range existingSuppliers {
		supplierIDs[s.Name] = s.ID
	}
	for _, s := range seedSuppliers {
		if _, ok := supplierIDs[s.Name]; ok {
			continue
		}
		s := s
		created, err := catalog.CreateSupplier(ctx, &s)
		if err != nil {
			return fmt.Errorf("supplier %s: %w", s.Name, err)
		}
		supplierIDs[s.Name] = created.ID
	}

	var created []*domain.Product
	for _, p := range seedProducts {
		product, err := catalog.CreateProduct(ctx, &domain.Product{
			Name:          p.Name,
			SKU:           p.SKU,
			CategoryID:    categoryIDs[p.Category],
			Price:         decimal.RequireFromString(p.Price),
			CurrentStock:  p.Stock,
			MinStockLevel: p.MinStock,
		}, actorID)
		if err != nil {
			if domain.KindOf(err) == domain.KindConflict {
				logger.Info("product already seeded", slog.String("sku", p.SKU))
				continue
			}
			return fmt.Errorf("product %s: %w", p.SKU, err)
		}
		created = append(created, product)
	}

	// One pending order for the products needing restock, only on a fresh seed.
	var items []domain.LineItem
	for _, p := range created {
		if p.NeedsAttention() {
			items = append(items, domain.LineItem{ProductID: p.ID, Quantity: p.MinStockLevel * 2, UnitPrice: p.Price})
		}
	}
	if len(items) > 0 {
		order, err := orders.Create(ctx, domain.CreateOrderInput{
			SupplierID:   supplierIDs[seedSuppliers[0].Name],
			ExpectedDate: time.Now().AddDate(0, 0, 7).UTC().Truncate(24 * time.Hour),
			Items:        items,
		})
		if err != nil {
			return fmt.Errorf("purchase order: %w", err)
		}
		logger.Info("purchase order seeded",
			slog.String("order_id", order.ID.String()),
			slog.Int("line_items", len(items)))
	}

	logger.Info("seed completed",
		slog.Int("categories", len(categoryIDs)),
		slog.Int("suppliers", len(supplierIDs)),
		slog.Int("products_created", len(created)))
	return nil
}

// importCatalog runs the import task in process against a local copy of the sheet.
func importCatalog(ctx context.Context, catalog ports.CatalogService, path, actorID string, logger *slog.Logger) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	objects, err := storage.NewLocalStorage(filepath.Dir(abs), logger)
	if err != nil {
		return err
	}

	key := filepath.Base(abs)
	payload, err := json.Marshal(ports.ImportRequest{ObjectKey: key, Filename: key, RequestedBy: actorID})
	if err != nil {
		return err
	}

	processor := workers.NewImportProcessor(catalog, objects, logger)
	if err := processor.ProcessTask(ctx, asynq.NewTask(queue.TypeCatalogImport, payload)); err != nil {
		return err
	}

	fmt.Printf("import summary written to %s\n", filepath.Join(filepath.Dir(abs), workers.ResultKey(key)))
	return nil
}
