package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/quayside/tradeledger/pkg/response"
)

// Health returns a status payload useful for readiness checks. The
// database round-trip catches a wedged connection pool early.
func Health(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := "ok"
		httpStatus := http.StatusOK

		sqlDB, err := db.DB()
		if err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
			status = "degraded"
			httpStatus = http.StatusServiceUnavailable
		}

		response.Success(c, httpStatus, gin.H{"status": status})
	}
}
