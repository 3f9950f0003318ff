package api

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/quayside/tradeledger/internal/app"
	iauth "github.com/quayside/tradeledger/internal/auth"
	"github.com/quayside/tradeledger/internal/cache"
	"github.com/quayside/tradeledger/internal/handlers"
	"github.com/quayside/tradeledger/internal/middleware"
	"github.com/quayside/tradeledger/internal/services"
)

// Dependencies bundles the wired services the router mounts.
type Dependencies struct {
	DB          *gorm.DB
	Tokens      *iauth.TokenService
	Cookies     *iauth.CookieManager
	Credentials *iauth.CredentialService
	Counters    cache.CounterStore
	Audit       *services.AuditService
	Users       *services.UserService
	GDPR        *services.GDPRService
	Ledger      *services.LedgerService
}

// NewRouter builds the Gin engine, wires middleware and registers all routes.
func NewRouter(cfg *app.Config, deps Dependencies) (*gin.Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must be provided")
	}
	if deps.DB == nil {
		return nil, fmt.Errorf("database handle must be provided")
	}
	if deps.Tokens == nil || deps.Cookies == nil || deps.Credentials == nil {
		return nil, fmt.Errorf("auth services must be provided")
	}
	if deps.Counters == nil {
		return nil, fmt.Errorf("counter store must be provided")
	}
	if deps.Audit == nil || deps.Users == nil || deps.GDPR == nil || deps.Ledger == nil {
		return nil, fmt.Errorf("domain services must be provided")
	}

	r := gin.New()

	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CSRF())

	r.GET("/health", handlers.Health(deps.DB))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authHandler := handlers.NewAuthHandler(deps.Tokens, deps.Cookies, deps.Credentials, deps.Audit)
	profileHandler := handlers.NewProfileHandler(deps.Users, deps.Credentials, deps.Tokens, deps.Cookies, deps.Audit)
	gdprHandler := handlers.NewGDPRHandler(deps.GDPR)
	ledgerHandler := handlers.NewLedgerHandler(deps.Ledger)
	auditHandler := handlers.NewAuditHandler(deps.Audit)

	limits := cfg.Auth.RateLimit

	// Public auth routes. Refresh is deliberately unauthenticated: the
	// access token may already be expired when the client calls it.
	auth := r.Group("/api/auth")
	{
		auth.POST("/register",
			middleware.RateLimit(deps.Counters, "register", limits.Register.Limit, limits.Register.Window),
			authHandler.Register)
		auth.POST("/login",
			middleware.RateLimit(deps.Counters, "login", limits.Login.Limit, limits.Login.Window),
			authHandler.Login)
		auth.POST("/token/refresh", authHandler.Refresh)
	}

	requireAuth := middleware.Authenticate(deps.Tokens, deps.Cookies, deps.Users, deps.Audit)

	api := r.Group("/api")
	api.Use(requireAuth)

	api.GET("/auth/me", authHandler.Me)
	api.GET("/auth/permissions", authHandler.Permissions)
	api.POST("/auth/logout", authHandler.Logout)

	profile := api.Group("/profile")
	{
		profile.GET("", profileHandler.Get)
		profile.PUT("", profileHandler.Update)
		profile.POST("/change-password", profileHandler.ChangePassword)
	}

	gdpr := api.Group("/gdpr")
	{
		gdpr.GET("/consents", gdprHandler.ListConsents)
		gdpr.POST("/consents", gdprHandler.Decide)
		gdpr.GET("/export", gdprHandler.Export)
	}

	ledger := api.Group("/ledger")
	{
		ledger.GET("/dashboard", ledgerHandler.Dashboard)

		ledger.GET("/counterparties", ledgerHandler.ListCounterparties)
		ledger.POST("/counterparties", ledgerHandler.CreateCounterparty)
		ledger.GET("/counterparties/:id", ledgerHandler.GetCounterparty)
		ledger.PUT("/counterparties/:id", ledgerHandler.UpdateCounterparty)
		ledger.DELETE("/counterparties/:id", ledgerHandler.DeactivateCounterparty)

		ledger.GET("/commodities", ledgerHandler.ListCommodities)
		ledger.POST("/commodities", ledgerHandler.CreateCommodity)

		ledger.GET("/currencies", ledgerHandler.ListCurrencies)

		ledger.GET("/contracts", ledgerHandler.ListContracts)
		ledger.POST("/contracts", ledgerHandler.CreateContract)
		ledger.GET("/contracts/:id", ledgerHandler.GetContract)
		ledger.PUT("/contracts/:id", ledgerHandler.UpdateContract)
		ledger.POST("/contracts/:id/status", ledgerHandler.UpdateContractStatus)
		ledger.DELETE("/contracts/:id", ledgerHandler.DeleteContract)
	}

	api.GET("/audit", middleware.RequireStaff(), auditHandler.List)

	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}
