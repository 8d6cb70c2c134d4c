package api

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"geoattend/internal/api/handlers"
	"geoattend/internal/api/ws"
	"geoattend/internal/attendance"
	"geoattend/internal/auth"
	"geoattend/internal/httpmiddleware"
	"geoattend/internal/report"
)

type RouterConfig struct {
	Accounts *attendance.AccountService
	Leaves   *attendance.LeaveService
	Gate     *attendance.Gate
	// Records backs history and reports.
	Records interface {
		attendance.Store
		report.Source
	}
	Board  handlers.BoardReader
	Cache  handlers.SummaryCache
	Hub    *ws.Hub
	Tokens handlers.TokenConfig
	Checks map[string]handlers.Check

	RateLimitPerMin int
	// SubmitPerMin limits verification attempts per employee.
	SubmitPerMin int
	CORSOrigins  []string
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware())
	r.Use(corsMiddleware(cfg.CORSOrigins))
	r.Use(httpmiddleware.SecurityHeaders())
	if cfg.RateLimitPerMin > 0 {
		r.Use(httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware())
	}

	// System endpoints (no auth)
	systemH := handlers.NewSystemHandler(cfg.Checks)
	r.GET("/healthz", systemH.Healthz)
	r.GET("/readyz", systemH.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	accountH := handlers.NewAccountHandler(cfg.Accounts, cfg.Tokens)
	public := r.Group("/v1/auth")
	public.POST("/register", accountH.Register)
	public.POST("/login", accountH.Login)
	public.POST("/refresh", accountH.Refresh)

	v1 := r.Group("/v1", auth.Bearer(cfg.Tokens.SigningKey, cfg.Tokens.Issuer))

	attendanceH := handlers.NewAttendanceHandler(cfg.Gate, cfg.Records)
	leaveH := handlers.NewLeaveHandler(cfg.Leaves)
	v1.GET("/me", accountH.Me)
	v1.GET("/me/attendance", attendanceH.History)
	v1.GET("/me/leaves", leaveH.Mine)
	v1.POST("/leaves", leaveH.Apply)

	submit := []gin.HandlerFunc{attendanceH.Submit}
	if cfg.SubmitPerMin > 0 {
		limiter := httpmiddleware.NewSimpleTokenBucket(cfg.SubmitPerMin, cfg.SubmitPerMin)
		submit = append([]gin.HandlerFunc{limiter.Middleware(httpmiddleware.ByContextKey(auth.SubjectKey))}, submit...)
	}
	v1.POST("/attendance/:type", submit...)

	// Managers see their own branch; admins see everything.
	staff := v1.Group("/admin", auth.RequireRole(string(attendance.RoleAdmin), string(attendance.RoleManager)))
	reportH := handlers.NewReportHandler(cfg.Records, cfg.Gate.Shift(), cfg.Board, cfg.Cache)
	staff.GET("/leaves", leaveH.List)
	staff.POST("/leaves/:id/approve", leaveH.Approve)
	staff.POST("/leaves/:id/reject", leaveH.Reject)
	staff.GET("/reports/summary", reportH.Summary)
	staff.GET("/reports/detail", reportH.Detail)
	staff.GET("/reports/daily", reportH.Daily)
	staff.GET("/board", reportH.Board)
	if cfg.Hub != nil {
		staff.GET("/live", func(c *gin.Context) {
			claims, _ := auth.FromContext(c)
			branch := c.Query("branch")
			if claims.Role == string(attendance.RoleManager) {
				branch = claims.Branch
			}
			cfg.Hub.HandleWS(c, branch)
		})
	}

	admin := v1.Group("/admin", auth.RequireRole(string(attendance.RoleAdmin)))
	admin.GET("/employees", accountH.ListEmployees)
	admin.POST("/employees/:id/activate", accountH.Activate)
	admin.POST("/employees/:id/deactivate", accountH.Deactivate)

	return r
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowCredentials: true,
		MaxAge:           24 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
		cfg.AllowCredentials = false
	} else {
		cfg.AllowOrigins = origins
	}
	return cors.New(cfg)
}
