package httphandlers

import (
	"context"
	"net/http"
	"time"

	"github.com/edubounty/edubounty/internal/auth"
	"github.com/edubounty/edubounty/internal/config"
	"github.com/edubounty/edubounty/internal/interfaces"
	"github.com/edubounty/edubounty/internal/lib"
	"github.com/edubounty/edubounty/internal/repositories/contracts"
	"github.com/edubounty/edubounty/internal/taskboard"
	"github.com/edubounty/edubounty/internal/wallet"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
)

type SessionService interface {
	State() wallet.State
	Connect(ctx context.Context) (wallet.State, error)
	Disconnect(ctx context.Context)
	SwitchNetwork(ctx context.Context) error
}

type BountyService interface {
	Balance(ctx context.Context) (string, error)

	CreateTask(ctx context.Context, title string, description string, reward string) (taskboard.Task, error)
	StartTask(ctx context.Context, taskID uint64) (taskboard.Task, error)
	SubmitTask(ctx context.Context, taskID uint64, submission string) (taskboard.Task, error)
	MarkComplete(ctx context.Context, taskID uint64) (taskboard.Task, error)
	PayTask(ctx context.Context, taskID uint64) (taskboard.Task, error)
	WithdrawReward(ctx context.Context, taskID uint64) (taskboard.Reward, error)
	Rewards() ([]taskboard.Reward, error)
	Tasks() []taskboard.Task
	Task(taskID uint64) (taskboard.Task, error)

	CreateTaskOnChain(ctx context.Context, title string, description string, reward string) (*contracts.CreateTaskResult, error)
	CompleteTaskOnChain(ctx context.Context, taskID uint64) (common.Hash, error)
	SyncChainTasks(ctx context.Context) ([]taskboard.Task, error)
	ChainTask(ctx context.Context, taskID uint64) (*contracts.ChainTask, error)
}

type AuthService interface {
	Login(ctx context.Context) (string, error)
	Callback(ctx context.Context, code string, state string) (auth.AuthState, error)
	Logout(ctx context.Context) error
	State(ctx context.Context) (auth.AuthState, error)
}

type Sanitizable interface {
	GetSanitized() interface{}
}

// actions that hold an in-flight guard, a second submission while one runs gets 409
var guardedActions = []string{
	"connect", "switch-network",
	"task-create", "task-start", "task-submit", "task-complete", "task-pay", "reward-withdraw",
	"chain-create", "chain-complete", "auth-callback",
}

type HTTPHandler struct {
	guards map[string]lib.Mutex

	session SessionService
	bounty  BountyService
	auth    AuthService
	config  Sanitizable
	metrics http.Handler
	log     interfaces.ILogger
}

func NewHTTPHandler(session SessionService, bounty BountyService, authService AuthService, cfg Sanitizable, metrics http.Handler, log interfaces.ILogger) *gin.Engine {
	handl := &HTTPHandler{
		guards:  make(map[string]lib.Mutex, len(guardedActions)),
		session: session,
		bounty:  bounty,
		auth:    authService,
		config:  cfg,
		metrics: metrics,
		log:     log,
	}
	for _, action := range guardedActions {
		handl.guards[action] = lib.NewMutex()
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), handl.requestLogger)

	r.GET("/healthcheck", handl.HealthCheck)
	r.GET("/config", handl.GetConfig)
	r.GET("/metrics", gin.WrapH(handl.metrics))

	r.GET("/session", handl.GetSession)
	r.POST("/session/connect", handl.guard("connect", handl.Connect))
	r.POST("/session/disconnect", handl.Disconnect)
	r.POST("/session/switch-network", handl.guard("switch-network", handl.SwitchNetwork))
	r.GET("/balance", handl.GetBalance)

	r.GET("/tasks", handl.GetTasks)
	r.POST("/tasks", handl.guard("task-create", handl.CreateTask))
	r.GET("/tasks/:id", handl.GetTask)
	r.POST("/tasks/:id/start", handl.guard("task-start", handl.StartTask))
	r.POST("/tasks/:id/submit", handl.guard("task-submit", handl.SubmitTask))
	r.POST("/tasks/:id/complete", handl.guard("task-complete", handl.MarkComplete))
	r.POST("/tasks/:id/pay", handl.guard("task-pay", handl.PayTask))
	r.GET("/rewards", handl.GetRewards)
	r.POST("/rewards/:id/withdraw", handl.guard("reward-withdraw", handl.WithdrawReward))

	r.GET("/chain/tasks", handl.GetChainTasks)
	r.GET("/chain/tasks/:id", handl.GetChainTask)
	r.POST("/chain/tasks", handl.guard("chain-create", handl.CreateChainTask))
	r.POST("/chain/tasks/:id/complete", handl.guard("chain-complete", handl.CompleteChainTask))

	r.GET("/auth/login", handl.Login)
	r.GET("/auth/callback", handl.guard("auth-callback", handl.AuthCallback))
	r.POST("/auth/logout", handl.Logout)
	r.GET("/auth/state", handl.GetAuthState)

	err := r.SetTrustedProxies(nil)
	if err != nil {
		panic(err)
	}

	return r
}

func (h *HTTPHandler) HealthCheck(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"version": config.BuildVersion,
	})
}

func (h *HTTPHandler) GetConfig(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, ConfigResponse{
		Version: config.BuildVersion,
		Config:  h.config.GetSanitized(),
	})
}

// guard rejects a request while another request of the same action is in flight
func (h *HTTPHandler) guard(action string, next gin.HandlerFunc) gin.HandlerFunc {
	mutex := h.guards[action]
	return func(ctx *gin.Context) {
		if !mutex.TryLock() {
			ctx.AbortWithStatusJSON(http.StatusConflict, ErrorResponse{
				Kind:  "ActionInProgress",
				Title: "Please wait",
				Error: action + " is already in progress",
			})
			return
		}
		defer mutex.Unlock()
		next(ctx)
	}
}

func (h *HTTPHandler) requestLogger(ctx *gin.Context) {
	start := time.Now()
	ctx.Next()
	h.log.Debugf("%s %s %d %s", ctx.Request.Method, ctx.Request.URL.Path, ctx.Writer.Status(), time.Since(start))
}
