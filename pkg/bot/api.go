package bot

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"dispatchbot/config"
	"dispatchbot/pkg/export"
	"dispatchbot/pkg/logger"
	"dispatchbot/service"
	"dispatchbot/storage"
)

// RunServer exposes the read side of the dispatch board over HTTP for the
// operator web panel. Mutations stay in the bot.
func RunServer(cfg *config.Config, stg storage.IStorage, svc service.IServiceManager, log logger.ILogger) error {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	// CORS
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	r.POST("/api/login", func(c *gin.Context) {
		var req struct {
			Login    string `json:"login" binding:"required"`
			Password string `json:"password" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "login and password are required"})
			return
		}
		user, err := svc.User().AuthenticateWeb(context.Background(), req.Login, req.Password)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}

		claims := jwt.MapClaims{
			"sub":  user.ID,
			"role": user.Role,
			"exp":  time.Now().Add(time.Duration(cfg.JWTTTLHours) * time.Hour).Unix(),
		}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.JWTSecret))
		if err != nil {
			log.Error("failed to sign token", logger.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"token": token, "role": user.Role, "name": user.FullName})
	})

	api := r.Group("/api", jwtAuth(cfg.JWTSecret))
	{
		api.GET("/orders", func(c *gin.Context) {
			ctx := context.Background()
			var err error
			var orders interface{}
			if status := c.Query("status"); status != "" {
				orders, err = stg.Order().GetByStatus(ctx, status)
			} else {
				orders, err = stg.Order().GetAll(ctx)
			}
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusOK, orders)
		})

		api.GET("/orders/stats", func(c *gin.Context) {
			ctx := context.Background()
			byStatus, err := stg.Order().CountByStatus(ctx)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			byTariff, err := stg.Order().CountByTariff(ctx)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			byMonth, err := stg.Order().CountByMonth(ctx)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusOK, gin.H{
				"by_status": byStatus,
				"by_tariff": byTariff,
				"by_month":  byMonth,
			})
		})

		api.GET("/users", func(c *gin.Context) {
			users, err := stg.User().GetAll(context.Background())
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusOK, users)
		})

		api.GET("/tickets", func(c *gin.Context) {
			tickets, err := stg.Ticket().GetAll(context.Background())
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusOK, tickets)
		})

		api.GET("/export", func(c *gin.Context) {
			buf, err := export.Workbook(context.Background(), stg)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			name := fmt.Sprintf("dispatch_%s.xlsx", time.Now().Format("2006-01-02"))
			c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
			c.Data(http.StatusOK,
				"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
				buf.Bytes())
		})
	}

	return r.Run(fmt.Sprintf(":%d", cfg.HTTPPort))
}

func jwtAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		raw, found := strings.CutPrefix(header, "Bearer ")
		if !found || raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}
		token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
			if t.Method != jwt.SigningMethodHS256 {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Next()
	}
}
