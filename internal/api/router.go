package api

import (
	"context"
	"net/http"
	"time"

	"clobex.com/internal/api/ws"
	"clobex.com/pkg/middleware"
	"clobex.com/pkg/ratelimit"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	ginprom "github.com/zsais/go-gin-prometheus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/time/rate"
)

type Config struct {
	Addr         string        `mapstructure:"addr"`
	Rate         float64       `mapstructure:"rate"` // 每 IP 每路由 rps，0 不限流
	Burst        int           `mapstructure:"burst"`
	ReadTimeout  time.Duration `mapstructure:"readTimeout"`
	WriteTimeout time.Duration `mapstructure:"writeTimeout"`
	CrankLimit   uint32        `mapstructure:"crankLimit"`
	Metrics      bool          `mapstructure:"metrics"`
	WS           ws.Config     `mapstructure:"ws"`
}

// NewRouter ctx 控制限流清理和 ws 连接的生命周期
func NewRouter(ctx context.Context, cfg Config, h *Handler, wsSrv *ws.Server) *gin.Engine {
	r := gin.New()
	if cfg.Metrics {
		p := ginprom.NewPrometheus("clobex_http")
		p.Use(r)
	}
	mws := []gin.HandlerFunc{
		otelgin.Middleware("dex-node"),
		middleware.ReqId(),
		cors.Default(),
		middleware.Recover(),
	}
	if cfg.Rate > 0 {
		store := ratelimit.NewStore(rate.Limit(cfg.Rate), max(cfg.Burst, 1), 10*time.Minute)
		store.StartJanitor(ctx, time.Minute)
		mws = append(mws, middleware.RateLimit(store))
	}
	r.Use(mws...)

	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	if wsSrv != nil {
		r.GET("/ws", wsSrv.Handle)
	}

	v1 := r.Group("/v1/markets")
	{
		v1.GET("", h.ListMarkets)
		v1.GET("/:market", h.GetMarket)
		v1.GET("/:market/book", h.Book)
		v1.GET("/:market/events", h.Events)
		v1.GET("/:market/trades", h.Trades)
		v1.GET("/:market/candles", h.Candles)
		v1.GET("/:market/orders/:id", h.GetOrder)
		v1.GET("/:market/owners/:owner/orders", h.OwnerOrders)
		v1.GET("/:market/owners/:owner/account", h.Account)

		v1.POST("/:market/accounts", h.InitAccount)
		v1.POST("/:market/orders", h.PlaceOrder)
		v1.DELETE("/:market/orders/:id", h.CancelOrder)
		v1.POST("/:market/settle", h.Settle)
		v1.POST("/:market/crank", h.Crank)
		v1.PUT("/:market/status", h.SetStatus)
	}
	return r
}

func NewHTTPServer(cfg Config, handler http.Handler) *http.Server {
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	// WriteTimeout 会掐断 ws 长连接，默认不设
	return &http.Server{
		Addr:           cfg.Addr,
		Handler:        handler,
		ReadTimeout:    cfg.ReadTimeout,
		WriteTimeout:   cfg.WriteTimeout,
		MaxHeaderBytes: 1 << 20,
	}
}
