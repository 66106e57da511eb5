// Package httpserver is the HTTP transport of SubKeeper. It carries the
// session token in a cookie and maps service errors onto status codes.
package httpserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dmitrijs2005/subkeeper/internal/common"
	"github.com/dmitrijs2005/subkeeper/internal/logging"
	"github.com/dmitrijs2005/subkeeper/internal/server/models"
	"github.com/dmitrijs2005/subkeeper/internal/server/services"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// Accounts is the account orchestration the transport needs.
type Accounts interface {
	Signup(ctx context.Context, in services.SignupInput) (*services.Session, error)
	Login(ctx context.Context, in services.LoginInput) (*services.Session, error)
	Authenticate(ctx context.Context, token string) (*models.User, error)
	UpdateProfile(ctx context.Context, userID string, in services.ProfileInput) (*models.User, error)
	ChangeEmail(ctx context.Context, userID string, in services.ChangeEmailInput, meta services.RequestMeta) (*services.Session, error)
	ChangePassword(ctx context.Context, userID string, in services.ChangePasswordInput) error
	ForgotPassword(ctx context.Context, email string) (string, error)
	ValidateResetToken(ctx context.Context, email, token string) error
	ResetPassword(ctx context.Context, in services.ResetPasswordInput) error
	DeleteAccount(ctx context.Context, userID, reason string) (*models.DeletedUser, error)
	AdminDeleteAccount(ctx context.Context, callerID, targetID, reason string) (*models.DeletedUser, error)
	AdminResync(ctx context.Context, callerID, targetID string) error
	Registry(ctx context.Context, userID string) (*models.UserRegistry, error)
}

// Subscriptions is the subscription orchestration the transport needs.
type Subscriptions interface {
	List(ctx context.Context, ownerID string) ([]*models.Subscription, error)
	Get(ctx context.Context, ownerID, id string) (*models.Subscription, error)
	Create(ctx context.Context, ownerID string, in services.SubscriptionInput) (*models.Subscription, error)
	Update(ctx context.Context, ownerID, id string, in services.SubscriptionInput) (*models.Subscription, error)
	DeleteOne(ctx context.Context, ownerID, id, reason string) error
	DeleteAll(ctx context.Context, ownerID, reason string) (int64, error)
}

// Config controls the transport.
type Config struct {
	Address         string
	CORSOrigin      string
	Production      bool
	SessionValidity time.Duration
}

type Server struct {
	cfg      Config
	accounts Accounts
	subs     Subscriptions
	logger   logging.Logger
	engine   *gin.Engine
}

func NewServer(cfg Config, accounts Accounts, subs Subscriptions, l logging.Logger) *Server {
	if cfg.SessionValidity <= 0 {
		cfg.SessionValidity = common.DefaultSessionValidity
	}
	if cfg.Production {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		cfg:      cfg,
		accounts: accounts,
		subs:     subs,
		logger:   l.With("module", "http_server"),
	}

	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())
	if cfg.CORSOrigin != "" {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     []string{cfg.CORSOrigin},
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
			ExposeHeaders:    []string{"Content-Length"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}
	s.routes(r)
	s.engine = r
	return s
}

func (s *Server) routes(r *gin.Engine) {
	api := r.Group("/api")
	api.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	public := api.Group("/auth")
	public.POST("/signup", s.signup)
	public.POST("/login", s.login)
	public.POST("/logout", s.logout)
	public.POST("/forgot-password", s.forgotPassword)
	public.GET("/reset-password/validate", s.validateResetToken)
	public.POST("/reset-password", s.resetPassword)

	auth := api.Group("/")
	auth.Use(s.requireSession())
	auth.GET("/me", s.me)
	auth.PUT("/me/profile", s.updateProfile)
	auth.PUT("/me/email", s.changeEmail)
	auth.PUT("/me/password", s.changePassword)
	auth.GET("/me/registry", s.registry)
	auth.DELETE("/me", s.deleteAccount)

	auth.GET("/subscriptions", s.listSubscriptions)
	auth.POST("/subscriptions", s.createSubscription)
	auth.DELETE("/subscriptions", s.deleteAllSubscriptions)
	auth.GET("/subscriptions/:id", s.getSubscription)
	auth.PUT("/subscriptions/:id", s.updateSubscription)
	auth.DELETE("/subscriptions/:id", s.deleteSubscription)

	auth.DELETE("/admin/users/:id", s.adminDeleteUser)
	auth.POST("/admin/users/:id/resync", s.adminResync)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Address,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			s.logger.Error(ctx, "HTTP shutdown failed", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.cfg.Address)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
