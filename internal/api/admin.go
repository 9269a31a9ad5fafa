package api

import (
	"errors"   // Error matching
	"fmt"      // Cache key formatting
	"net/http" // HTTP status codes
	"strconv"  // String conversion
	"strings"  // String manipulation
	"time"     // Date filters

	"vps_billing/internal/db"     // Transaction filters
	"vps_billing/internal/domain" // Importing domain models
	"vps_billing/internal/ledger" // Wallet ledger
	"vps_billing/internal/utils"  // Utility functions

	"github.com/gin-gonic/gin"      // Gin web framework
	"github.com/redis/go-redis/v9"  // Redis client
	"github.com/shopspring/decimal" // Exact money
	"github.com/sirupsen/logrus"    // Logging library
)

// UserAdminResponse represents the user data returned to admin
type UserAdminResponse struct {
	ID       uint           `json:"id"`       // User ID
	Username string         `json:"username"` // Username
	Email    string         `json:"email"`    // Email
	Role     string         `json:"role"`     // User role
	Wallet   *domain.Wallet `json:"wallet"`   // Associated wallet, null before first access
}

type usersPage struct {
	Users      []UserAdminResponse `json:"users"`       // List of users
	Page       int                 `json:"page"`        // Current page
	PageSize   int                 `json:"page_size"`   // Page size
	Total      int64               `json:"total"`       // Total number of users
	TotalPages int                 `json:"total_pages"` // Total pages
	Cached     bool                `json:"cached"`      // Indicate response is from cache
}

// ListUsersHandler returns all users with their wallet info
func ListUsersHandler(users Users, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		page, pageSize := pagination(c)                              // Read pagination
		cacheKey := fmt.Sprintf("admin:users:%d:%d", page, pageSize) // Cache key based on pagination
		var cached usersPage
		// If cached data found, return it
		if found, err := utils.GetCache(ctx, rdb, cacheKey, &cached); err == nil && found {
			cached.Cached = true
			c.JSON(http.StatusOK, cached)
			return
		}
		list, total, err := users.List(ctx, (page-1)*pageSize, pageSize) // Users with wallet info
		if err != nil {
			logrus.WithError(err).Error("Failed to fetch users")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch users"}) // Return on error
			return
		}
		resp := usersPage{
			Users:      make([]UserAdminResponse, len(list)),
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: (int(total) + pageSize - 1) / pageSize, // Calculate total pages
		}
		// Map users to response format
		for i, u := range list {
			resp.Users[i] = UserAdminResponse{
				ID:       u.ID,       // User ID
				Username: u.Username, // Username
				Email:    u.Email,    // Email
				Role:     u.Role,     // User role
				Wallet:   u.Wallet,   // Associated wallet
			}
		}
		_ = utils.SetCache(ctx, rdb, cacheKey, resp, cacheTTL) // Cache the response for future requests
		c.JSON(http.StatusOK, resp)                            // Return the response
	}
}

type transactionsPage struct {
	Transactions []domain.Transaction `json:"transactions"` // List of transactions
	Page         int                  `json:"page"`         // Current page
	PageSize     int                  `json:"page_size"`    // Page size
	Total        int64                `json:"total"`        // Total number of transactions
	TotalPages   int                  `json:"total_pages"`  // Total pages
	Cached       bool                 `json:"cached"`       // Indicate response is from cache
}

// ListTransactionsHandler returns all ledger entries, with optional filtering by user, kind, or date
func ListTransactionsHandler(txs Transactions, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		page, pageSize := pagination(c) // Read pagination
		filter := db.TransactionFilter{Offset: (page - 1) * pageSize, Limit: pageSize}
		if userID := c.Query("user_id"); userID != "" {
			v, err := strconv.ParseUint(userID, 10, 64)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user_id"})
				return
			}
			filter.UserID = uint(v) // Filter by user ID
		}
		filter.Kind = domain.TransactionKind(c.Query("kind")) // Filter by kind
		for param, dst := range map[string]**time.Time{"from": &filter.From, "to": &filter.To} {
			raw := c.Query(param)
			if raw == "" {
				continue
			}
			t, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + param + ", expected RFC 3339"})
				return
			}
			*dst = &t // Filter by date bound
		}

		// Build cache key from all query params
		var keyParts []string
		for _, k := range []string{"user_id", "kind", "from", "to"} {
			keyParts = append(keyParts, k+"="+c.Query(k)) // Append key-value pair
		}
		cacheKey := fmt.Sprintf("admin:txs:%s:%d:%d", strings.Join(keyParts, ":"), page, pageSize)
		var cached transactionsPage
		// If cached data found, return it
		if found, err := utils.GetCache(ctx, rdb, cacheKey, &cached); err == nil && found {
			cached.Cached = true
			c.JSON(http.StatusOK, cached)
			return
		}

		list, total, err := txs.Search(ctx, filter)
		if err != nil {
			logrus.WithError(err).Error("Failed to fetch transactions")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch transactions"})
			return
		}
		resp := transactionsPage{
			Transactions: list,
			Page:         page,
			PageSize:     pageSize,
			Total:        total,
			TotalPages:   (int(total) + pageSize - 1) / pageSize, // The total number of pages
		}
		_ = utils.SetCache(ctx, rdb, cacheKey, resp, cacheTTL) // Cache the response for future requests
		c.JSON(http.StatusOK, resp)                            // Return the response
	}
}

// CreditRequest represents an operator credit, e.g. a verified gateway payment
type CreditRequest struct {
	Amount      decimal.Decimal `json:"amount"`       // Credit amount
	Description string          `json:"description"`  // Shown in the user's history
	ReferenceID string          `json:"reference_id"` // External payment reference
}

// CreditWalletHandler credits a user's wallet, creating it if needed
func CreditWalletHandler(l Ledger, users Users) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := strconv.ParseUint(c.Param("user_id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user_id"})
			return
		}
		var req CreditRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"}) // If invalid, return bad request
			return
		}
		if !req.Amount.IsPositive() || req.Amount.Exponent() < -2 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid amount"}) // Positive, at most two decimals
			return
		}
		ctx := c.Request.Context()
		if _, err := users.GetByID(ctx, uint(userID)); err != nil {
			if errors.Is(err, domain.ErrUserNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load user"})
			return
		}
		if req.Description == "" {
			req.Description = "Wallet top-up" // Default description
		}

		entry, err := l.Credit(ctx, uint(userID), req.Amount, req.Description, ledger.WithReference(req.ReferenceID))
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"user_id": userID,                    // User ID
				"amount":  req.Amount.StringFixed(2), // Credit amount
				"error":   err.Error(),               // Error message
			}).Error("Credit failed")
			if errors.Is(err, domain.ErrInvalidAmount) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid amount"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Credit failed"})
			return
		}
		wallet, err := l.FindWallet(ctx, uint(userID))
		if err != nil {
			c.JSON(http.StatusCreated, gin.H{"transaction": entry}) // Credit stands even if the re-read fails
			return
		}
		c.JSON(http.StatusCreated, gin.H{"transaction": entry, "wallet": wallet})
	}
}
