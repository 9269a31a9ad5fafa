package api

import (
	"errors"   // Error matching
	"net/http" // HTTP status codes

	"vps_billing/internal/billing" // Billing runs
	"vps_billing/internal/domain"  // Domain errors

	"github.com/gin-gonic/gin"   // Gin web framework
	"github.com/sirupsen/logrus" // Logging library
)

// HourlyBillingRequest starts an hourly billing run
type HourlyBillingRequest struct {
	Hours  int  `json:"hours"`   // Hours to bill, defaults to 1
	DryRun bool `json:"dry_run"` // Compute and report without charging
}

// RenewalRequest starts an auto-renewal run
type RenewalRequest struct {
	DryRun bool `json:"dry_run"` // Compute and report without charging or suspending
}

// RunHourlyBillingHandler bills every user with active resources and returns per-user results
func RunHourlyBillingHandler(runner Runner) gin.HandlerFunc {
	return func(c *gin.Context) {
		req := HourlyBillingRequest{Hours: 1} // Defaults
		if c.Request.ContentLength != 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
				return
			}
		}
		results, err := runner.RunHourlyBilling(c.Request.Context(), req.Hours, req.DryRun)
		if err != nil {
			if errors.Is(err, domain.ErrInvalidHours) {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			logrus.WithError(err).Error("Hourly billing run failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Hourly billing failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"run_id":  runID(len(results), func(i int) string { return results[i].RunID }),
			"dry_run": req.DryRun,
			"results": results,
			"summary": billing.SummarizeHourly(results),
		})
	}
}

// RunAutoRenewalHandler renews or suspends lapsed resources and returns per-user results
func RunAutoRenewalHandler(runner Runner) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RenewalRequest
		if c.Request.ContentLength != 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
				return
			}
		}
		results, err := runner.RunAutoRenewal(c.Request.Context(), req.DryRun)
		if err != nil {
			logrus.WithError(err).Error("Auto-renewal run failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Auto-renewal failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"run_id":  runID(len(results), func(i int) string { return results[i].RunID }),
			"dry_run": req.DryRun,
			"results": results,
			"summary": billing.SummarizeRenewal(results),
		})
	}
}

// runID returns the run id shared by the results, empty when there are none
func runID(n int, at func(i int) string) string {
	if n == 0 {
		return ""
	}
	return at(0)
}
