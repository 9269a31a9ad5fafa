package api

import (
	"errors"   // Error matching
	"net/http" // HTTP status codes
	"time"     // Time durations

	"vps_billing/internal/domain" // Importing domain models
	"vps_billing/internal/ledger" // Wallet ledger
	"vps_billing/internal/utils"  // Utility functions

	"github.com/gin-gonic/gin"     // Gin web framework
	"github.com/redis/go-redis/v9" // Redis client
	"github.com/sirupsen/logrus"   // Logging library
)

// cacheTTL bounds how stale a cached read may be
const cacheTTL = 60 * time.Second

// GetWalletHandler returns wallet info for the authenticated user, creating
// an empty wallet on first access
func GetWalletHandler(l Ledger, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUser(c) // Get userID from context
		if !ok {
			return
		}
		ctx := c.Request.Context()                                // Context for Redis operations
		cacheKey := utils.WalletKey(userID)                       // Cache key for wallet
		var wallet domain.Wallet                                  // Wallet struct to hold data
		found, err := utils.GetCache(ctx, rdb, cacheKey, &wallet) // Try to get from cache
		// If found in cache, return it
		if err == nil && found {
			c.JSON(http.StatusOK, gin.H{"wallet": wallet, "cached": true})
			return
		}
		// If not in cache, fetch from DB
		w, err := l.Wallet(ctx, userID)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"user_id": userID,      // User ID
				"error":   err.Error(), // Error message
			}).Error("Failed to load wallet")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load wallet"})
			return
		}
		_ = utils.SetCache(ctx, rdb, cacheKey, w, cacheTTL)        // Cache the wallet
		c.JSON(http.StatusOK, gin.H{"wallet": w, "cached": false}) // Return wallet info
	}
}

// GetTransactionHistoryHandler returns the authenticated user's ledger entries, newest first
func GetTransactionHistoryHandler(l Ledger, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUser(c) // Get userID from context
		if !ok {
			return
		}
		ctx := c.Request.Context()
		wallet, err := l.FindWallet(ctx, userID) // Get user's wallet
		if err != nil {
			if errors.Is(err, domain.ErrWalletNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Wallet not found"}) // Return not found if wallet doesn't exist
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load wallet"})
			return
		}
		page, pageSize := pagination(c)                      // Read pagination
		cacheKey := utils.HistoryKey(userID, page, pageSize) // Redis cache key
		var cached ledger.Page
		// Try to get from cache
		if found, err := utils.GetCache(ctx, rdb, cacheKey, &cached); err == nil && found {
			c.JSON(http.StatusOK, pageResponse(&cached, true))
			return
		}
		history, err := l.HistoryPage(ctx, wallet.ID, page, pageSize) // Fetch paginated transactions
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"user_id":   userID,      // User ID
				"wallet_id": wallet.ID,   // Wallet ID
				"error":     err.Error(), // Error message
			}).Error("Failed to fetch transactions")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch transactions"})
			return
		}
		_ = utils.SetCache(ctx, rdb, cacheKey, history, cacheTTL) // Cache the page
		c.JSON(http.StatusOK, pageResponse(history, false))       // Return transaction history
	}
}

// GetRunwayHandler reports whether the balance covers the next 24 hours of billing
func GetRunwayHandler(checker RunwayChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUser(c) // Get userID from context
		if !ok {
			return
		}
		rw, err := checker.Check(c.Request.Context(), userID)
		if err != nil {
			logrus.WithFields(logrus.Fields{"user_id": userID, "error": err.Error()}).Error("Runway check failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Runway check failed"})
			return
		}
		c.JSON(http.StatusOK, rw)
	}
}

func pageResponse(p *ledger.Page, cached bool) gin.H {
	return gin.H{
		"transactions": p.Transactions, // List of transactions
		"page":         p.Page,         // Current page
		"page_size":    p.PageSize,     // Page size
		"total":        p.Total,        // Total transactions
		"total_pages":  p.TotalPages,   // Total pages
		"cached":       cached,         // Whether the page came from cache
	}
}
