package handler

import (
	"github.com/nerava/nova/internal/adapter/http/middleware"
	redisStore "github.com/nerava/nova/internal/adapter/storage/redis"
	"github.com/nerava/nova/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	AuthSvc        ports.AuthService
	LedgerSvc      ports.LedgerService
	RegistrySvc    ports.RegistryService
	PassSvc        ports.PassService
	WalletRepo     ports.WalletRepository
	TokenSvc       ports.TokenService
	RateLimitStore *redisStore.RateLimitStore // nil = rate limiting disabled
	HealthCheckers []ports.HealthChecker
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
// Two surfaces share the engine: the JWT-authenticated merchant API under
// /api/v1 and the wallet pass protocol at its contract-fixed root paths.
func SetupRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(1 << 20)) // 1 MB request body limit

	// Health check (deep — verifies PostgreSQL + Redis)
	r.GET("/health", HealthCheck(deps.HealthCheckers...))

	// Rate limit rules
	rules := middleware.DefaultRateLimitRules()

	// Helper: return rate limiter middleware if store is available, else noop.
	rl := func(group string) gin.HandlerFunc {
		if deps.RateLimitStore == nil {
			return func(c *gin.Context) { c.Next() }
		}
		rule, ok := rules[group]
		if !ok {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimitStore, group, rule, deps.Logger)
	}

	// API v1 routes
	v1 := r.Group("/api/v1")

	// --- Public routes (no auth) ---
	authHandler := NewAuthHandler(deps.AuthSvc)
	auth := v1.Group("/auth")
	{
		auth.POST("/login", rl("auth_login"), authHandler.Login)
	}

	// --- JWT-authenticated routes (merchant API) ---
	jwtAuth := middleware.JWTAuth(deps.TokenSvc, deps.Logger)
	redemptionHandler := NewRedemptionHandler(deps.LedgerSvc, deps.WalletRepo)
	walletHandler := NewWalletHandler(deps.LedgerSvc)

	redemptions := v1.Group("/redemptions", jwtAuth)
	{
		redemptions.POST("", rl("redemptions"), redemptionHandler.Redeem)
	}

	nova := v1.Group("/nova", jwtAuth)
	{
		nova.POST("/grants", rl("grants"), walletHandler.Grant)
	}

	wallets := v1.Group("/wallets", jwtAuth)
	{
		wallets.GET("/:walletID/balance", rl("wallets"), walletHandler.GetBalance)
		wallets.GET("/:walletID/history", rl("wallets"), walletHandler.GetHistory)
	}

	// --- Wallet pass protocol (paths fixed by the external contract) ---
	passAuth := middleware.PassAuth(deps.PassSvc, deps.Logger)
	passKitHandler := NewPassKitHandler(deps.RegistrySvc, deps.PassSvc, deps.Logger)

	devices := r.Group("/devices/:deviceLibraryId/registrations/:passTypeId")
	{
		devices.GET("", passKitHandler.ListUpdated)
		devices.POST("/:serialNumber", passAuth, passKitHandler.Register)
		devices.DELETE("/:serialNumber", passAuth, passKitHandler.Deregister)
	}

	r.GET("/passes/:passTypeId/:serialNumber", passAuth, passKitHandler.FetchPass)
	r.POST("/log", passKitHandler.Log)

	return r
}
