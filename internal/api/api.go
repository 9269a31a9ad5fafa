package api

import (
	"context"  // Request-scoped operations
	"net/http" // HTTP status codes
	"strconv"  // String conversion

	"vps_billing/internal/billing"    // Billing runs and runway checks
	"vps_billing/internal/db"         // Repositories
	"vps_billing/internal/domain"     // Importing domain models
	"vps_billing/internal/ledger"     // Wallet ledger
	"vps_billing/internal/middleware" // Auth middleware

	"github.com/gin-gonic/gin"                                                     // Gin web framework
	"github.com/redis/go-redis/v9"                                                 // Redis client
	"github.com/shopspring/decimal"                                                // Exact money
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin" // Request tracing
	"gorm.io/gorm"                                                                 // GORM ORM library
)

// Ledger is the wallet surface the handlers use
type Ledger interface {
	Wallet(ctx context.Context, userID uint) (*domain.Wallet, error)
	FindWallet(ctx context.Context, userID uint) (*domain.Wallet, error)
	HistoryPage(ctx context.Context, walletID uint, page, pageSize int) (*ledger.Page, error)
	Credit(ctx context.Context, userID uint, amount decimal.Decimal, description string, opts ...ledger.EntryOption) (*domain.Transaction, error)
}

// Users reads users
type Users interface {
	GetByID(ctx context.Context, id uint) (*domain.User, error)
	List(ctx context.Context, offset, limit int) ([]domain.User, int64, error)
}

// Transactions searches the ledger log
type Transactions interface {
	Search(ctx context.Context, f db.TransactionFilter) ([]domain.Transaction, int64, error)
}

// Runner starts billing runs
type Runner interface {
	RunHourlyBilling(ctx context.Context, hours int, dryRun bool) ([]billing.HourlyResult, error)
	RunAutoRenewal(ctx context.Context, dryRun bool) ([]billing.RenewalResult, error)
}

// RunwayChecker reports how long a wallet lasts
type RunwayChecker interface {
	Check(ctx context.Context, userID uint) (billing.Runway, error)
}

// Deps are the collaborators of the HTTP API
type Deps struct {
	DB           *gorm.DB      // Health checks
	Redis        *redis.Client // Read cache
	Ledger       Ledger
	Users        Users
	Transactions Transactions
	Runner       Runner
	Runway       RunwayChecker
	JWTSecret    string // HMAC key for bearer tokens
	ServiceName  string // Reported in traces, empty disables request tracing
}

// NewRouter builds the gin engine with every route
func NewRouter(d Deps) *gin.Engine {
	r := gin.New()                      // Gin router instance
	r.Use(gin.Logger(), gin.Recovery()) // Access log and panic recovery
	if d.ServiceName != "" {
		r.Use(otelgin.Middleware(d.ServiceName)) // Trace every request
	}

	r.GET("/healthz", HealthHandler(d.DB, d.Redis)) // Liveness and dependency check

	// Wallet routes (protected by JWT)
	walletGroup := r.Group("/wallet")
	walletGroup.Use(middleware.JWTAuthMiddleware(d.JWTSecret))
	walletGroup.GET("", GetWalletHandler(d.Ledger, d.Redis))                          // Get wallet endpoint
	walletGroup.GET("/transactions", GetTransactionHistoryHandler(d.Ledger, d.Redis)) // Transaction history endpoint
	walletGroup.GET("/runway", GetRunwayHandler(d.Runway))                            // 24h balance check endpoint

	// Admin routes (protected, admin only)
	adminGroup := r.Group("/admin")
	adminGroup.Use(middleware.JWTAuthMiddleware(d.JWTSecret), middleware.AdminOnlyMiddleware(d.Users))
	adminGroup.GET("/users", ListUsersHandler(d.Users, d.Redis))                        // List users endpoint
	adminGroup.GET("/transactions", ListTransactionsHandler(d.Transactions, d.Redis))   // List transactions endpoint
	adminGroup.POST("/wallets/:user_id/credit", CreditWalletHandler(d.Ledger, d.Users)) // Credit a wallet
	adminGroup.POST("/billing/hourly", RunHourlyBillingHandler(d.Runner))               // Run hourly billing
	adminGroup.POST("/billing/renewal", RunAutoRenewalHandler(d.Runner))                // Run auto-renewal
	return r
}

// currentUser returns the authenticated user id set by the JWT middleware
func currentUser(c *gin.Context) (uint, bool) {
	v, exists := c.Get(middleware.UserIDKey) // Get userID from context
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"}) // Return unauthorized
		return 0, false
	}
	id, ok := v.(uint)
	return id, ok
}

// pagination reads page and page_size query parameters
func pagination(c *gin.Context) (page, pageSize int) {
	page = 1      // Default page
	pageSize = 20 // Default page size
	// If page exists in query
	if p := c.Query("page"); p != "" {
		// Convert page to integer
		if v, err := strconv.Atoi(p); err == nil && v > 0 {
			page = v // Set page if valid
		}
	}
	// If page_size exists in query
	if ps := c.Query("page_size"); ps != "" {
		// Convert page_size to integer
		if v, err := strconv.Atoi(ps); err == nil && v > 0 && v <= 100 {
			pageSize = v // Set page size if valid
		}
	}
	return page, pageSize
}

// HealthHandler reports whether the database and Redis answer
func HealthHandler(gdb *gorm.DB, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := gin.H{"database": "ok", "redis": "ok"}
		code := http.StatusOK
		if sqlDB, err := gdb.DB(); err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
			status["database"] = "unavailable" // Database down
			code = http.StatusServiceUnavailable
		}
		if err := rdb.Ping(c.Request.Context()).Err(); err != nil {
			status["redis"] = "unavailable" // Redis down, reads still work uncached
		}
		c.JSON(code, status)
	}
}
