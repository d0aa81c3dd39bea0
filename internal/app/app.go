package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/edubounty/edubounty/internal/bountymanager"
	"github.com/edubounty/edubounty/internal/config"
	"github.com/edubounty/edubounty/internal/interfaces"
	"github.com/edubounty/edubounty/internal/wallet"
	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	address string

	provider wallet.Provider
	session  *wallet.Session
	manager  *bountymanager.BountyManager
	router   *gin.Engine
	log      interfaces.ILogger
}

func NewApp(cfg *config.Config, provider wallet.Provider, session *wallet.Session, manager *bountymanager.BountyManager, router *gin.Engine, logs *Loggers) *App {
	return &App{
		address:  cfg.Web.Address,
		provider: provider,
		session:  session,
		manager:  manager,
		router:   router,
		log:      logs.App,
	}
}

func (a *App) Router() http.Handler {
	return a.router
}

// Run restores the wallet session and serves until ctx is done or a component fails
func (a *App) Run(ctx context.Context) error {
	if err := a.session.Init(ctx); err != nil {
		a.log.Warnf("wallet session was not restored: %s", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.session.Run(ctx)
	})
	if runnable, ok := a.provider.(interfaces.Runnable); ok {
		g.Go(func() error {
			return runnable.Run(ctx)
		})
	}
	g.Go(func() error {
		return a.manager.Run(ctx)
	})
	g.Go(func() error {
		return a.serveHTTP(ctx)
	})

	return g.Wait()
}

func (a *App) serveHTTP(ctx context.Context) error {
	server := &http.Server{
		Addr:              a.address,
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			a.log.Warnf("http server shutdown: %s", err)
		}
	}()

	a.log.Infof("http server is listening: %s", a.address)
	err := server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return ctx.Err()
	}
	return err
}
