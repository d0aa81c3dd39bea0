package app

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"path/filepath"

	"github.com/edubounty/edubounty/internal/auth"
	"github.com/edubounty/edubounty/internal/bountymanager"
	"github.com/edubounty/edubounty/internal/config"
	"github.com/edubounty/edubounty/internal/handlers/httphandlers"
	"github.com/edubounty/edubounty/internal/interfaces"
	"github.com/edubounty/edubounty/internal/lib"
	"github.com/edubounty/edubounty/internal/metrics"
	"github.com/edubounty/edubounty/internal/repositories/contracts"
	"github.com/edubounty/edubounty/internal/repositories/taskstore"
	"github.com/edubounty/edubounty/internal/storage"
	"github.com/edubounty/edubounty/internal/taskboard"
	"github.com/edubounty/edubounty/internal/wallet"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/google/wire"
)

const logFileName = "edubounty.log"

// Loggers holds one logger per area, each with its own configured level
type Loggers struct {
	App      interfaces.ILogger
	Wallet   interfaces.ILogger
	Contract interfaces.ILogger
	HTTP     interfaces.ILogger
}

// Boards are the persisted local board and the in-memory mirror of the contract
type Boards struct {
	Local *taskboard.Board
	Chain *taskboard.Board
}

var ProviderSet = wire.NewSet(
	ProvideStore,
	ProvideWalletProvider,
	ProvideSession,
	ProvideGateway,
	ProvideBoards,
	metrics.NewMetrics,
	ProvideBountyManager,
	ProvideAuth,
	ProvideRouter,
	NewApp,
)

func NewLoggers(cfg *config.Config) (*Loggers, error) {
	newLogger := func(level string) (*lib.Logger, error) {
		opts := lib.LoggerOptions{
			Level:  level,
			Color:  cfg.Log.Color,
			IsProd: cfg.Log.IsProd,
			JSON:   cfg.Log.JSON,
		}
		if cfg.Log.FolderPath != "" {
			opts.FilePath = filepath.Join(cfg.Log.FolderPath, logFileName)
		}
		return lib.NewLogger(opts)
	}

	appLog, err := newLogger(cfg.Log.LevelApp)
	if err != nil {
		return nil, err
	}
	walletLog, err := newLogger(cfg.Log.LevelWallet)
	if err != nil {
		return nil, err
	}
	contractLog, err := newLogger(cfg.Log.LevelContract)
	if err != nil {
		return nil, err
	}
	httpLog, err := newLogger(cfg.Log.LevelHTTP)
	if err != nil {
		return nil, err
	}

	return &Loggers{
		App:      appLog,
		Wallet:   walletLog.Named("WALLET"),
		Contract: contractLog.Named("CONTRACT"),
		HTTP:     httpLog.Named("HTTP"),
	}, nil
}

func (l *Loggers) Sync() {
	for _, log := range []interfaces.ILogger{l.App, l.Wallet, l.Contract, l.HTTP} {
		_ = log.Sync()
	}
}

// ProvideStore returns the key-value store scoped to the configured prefix
func ProvideStore(ctx context.Context, cfg *config.Config) (storage.Store, func(), error) {
	var (
		base    storage.Store
		cleanup = func() {}
	)

	switch cfg.Storage.Kind {
	case "memory":
		base = storage.NewMemoryStore()
	case "file":
		fileStore, err := storage.NewFileStore(cfg.Storage.Path)
		if err != nil {
			return nil, nil, err
		}
		base = fileStore
	case "redis":
		redisStore, err := storage.NewRedisStore(cfg.Storage.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		if err := redisStore.Ping(ctx); err != nil {
			_ = redisStore.Close()
			return nil, nil, fmt.Errorf("redis is not reachable: %w", err)
		}
		base = redisStore
		cleanup = func() { _ = redisStore.Close() }
	default:
		return nil, nil, fmt.Errorf("unknown storage kind %s", cfg.Storage.Kind)
	}

	return storage.NewScopedStore(base, cfg.Storage.Scope), cleanup, nil
}

func targetChain(cfg *config.Config) wallet.ChainParams {
	params := wallet.ChainParams{
		ChainID:   cfg.Blockchain.ChainID,
		ChainName: cfg.Blockchain.ChainName,
		RPCURLs:   []string{cfg.Blockchain.RPCURL},
		NativeCurrency: wallet.NativeCurrency{
			Name:     cfg.Blockchain.CurrencyName,
			Symbol:   cfg.Blockchain.CurrencySymbol,
			Decimals: cfg.Blockchain.CurrencyDecimals,
		},
	}
	if cfg.Blockchain.ExplorerURL != "" {
		params.BlockExplorerURLs = []string{cfg.Blockchain.ExplorerURL}
	}
	return params
}

// ProvideWalletProvider returns nil when no wallet is configured, the session then
// reports every wallet operation as provider unavailable
func ProvideWalletProvider(ctx context.Context, cfg *config.Config, logs *Loggers) (wallet.Provider, func(), error) {
	noop := func() {}

	switch cfg.Wallet.Provider {
	case "rpc":
		provider, err := wallet.DialRPCProvider(ctx, cfg.Wallet.RPCURL, cfg.Wallet.PollingInterval, logs.Wallet.Named("RPC"))
		if err != nil {
			return nil, nil, err
		}
		return provider, provider.Close, nil
	case "keyed":
		var (
			privateKey *ecdsa.PrivateKey
			err        error
		)
		switch {
		case cfg.Wallet.PrivateKey != "":
			privateKey, err = lib.ParsePrivateKey(cfg.Wallet.PrivateKey)
		case cfg.Wallet.Mnemonic != "":
			privateKey, err = wallet.PrivateKeyFromMnemonic(cfg.Wallet.Mnemonic, cfg.Wallet.AccountIndex)
		default:
			logs.Wallet.Warn("no wallet key configured, wallet is unavailable")
			return nil, noop, nil
		}
		if err != nil {
			return nil, nil, fmt.Errorf("invalid wallet key: %w", err)
		}

		provider, err := wallet.NewKeyedProvider(privateKey, targetChain(cfg), wallet.DialEthClient, logs.Wallet.Named("KEYED"))
		if err != nil {
			return nil, nil, err
		}
		provider.SetLegacyTx(cfg.Blockchain.EthLegacyTx)
		return provider, noop, nil
	default:
		return nil, nil, fmt.Errorf("unknown wallet provider %s", cfg.Wallet.Provider)
	}
}

func ProvideSession(cfg *config.Config, provider wallet.Provider, store storage.Store, logs *Loggers) *wallet.Session {
	return wallet.NewSession(provider, store, targetChain(cfg), logs.Wallet)
}

func ProvideGateway(cfg *config.Config, session *wallet.Session, logs *Loggers) *contracts.TaskManagerEthereum {
	gateway := contracts.NewTaskManagerEthereum(
		common.HexToAddress(cfg.Contracts.TaskManagerAddress),
		common.HexToAddress(cfg.Contracts.TokenAddress),
		session,
		logs.Contract,
	)
	gateway.SetGasLimits(cfg.Contracts.CreateGasLimit, cfg.Contracts.CompleteGasLimit)
	gateway.SetBalanceBufferPercent(cfg.Contracts.BalanceBufferPercent)
	gateway.SetWatcherParams(cfg.Blockchain.PollingInterval, cfg.Blockchain.MaxReconnects)
	return gateway
}

// ProvideBoards loads the local board from the configured backend. The chain board
// only mirrors the contract, so it is kept in memory and rebuilt on every sync.
func ProvideBoards(ctx context.Context, cfg *config.Config, store storage.Store, logs *Loggers) (Boards, func(), error) {
	var (
		repo    taskboard.Repository
		cleanup = func() {}
	)

	switch cfg.Storage.TasksBackend {
	case "kv":
		repo = taskstore.NewKVRepository(store)
	case "postgres":
		pgRepo, err := taskstore.NewPGRepository(ctx, cfg.Storage.PostgresDSN, cfg.Storage.Scope)
		if err != nil {
			return Boards{}, nil, err
		}
		repo = pgRepo
		cleanup = pgRepo.Close
	default:
		return Boards{}, nil, fmt.Errorf("unknown tasks backend %s", cfg.Storage.TasksBackend)
	}

	local := taskboard.NewBoard(repo, logs.App.Named("LOCAL-BOARD"))
	if err := local.Load(ctx); err != nil {
		cleanup()
		return Boards{}, nil, err
	}

	chain := taskboard.NewBoard(taskstore.NewKVRepository(storage.NewMemoryStore()), logs.App.Named("CHAIN-BOARD"))

	return Boards{Local: local, Chain: chain}, cleanup, nil
}

func ProvideBountyManager(session *wallet.Session, gateway *contracts.TaskManagerEthereum, boards Boards, m *metrics.Metrics, logs *Loggers) *bountymanager.BountyManager {
	return bountymanager.NewBountyManager(session, gateway, boards.Local, boards.Chain, m, logs.App.Named("BOUNTY"))
}

func ProvideAuth(cfg *config.Config, store storage.Store, logs *Loggers) (*auth.OCIDAuth, error) {
	return auth.NewOCIDAuth(auth.Config{
		ClientID:        cfg.Auth.ClientID,
		RedirectURI:     cfg.Auth.RedirectURI,
		ReferralCode:    cfg.Auth.ReferralCode,
		Scope:           cfg.Auth.Scope,
		AuthURL:         cfg.Auth.AuthURL,
		TokenURL:        cfg.Auth.TokenURL,
		SandboxMode:     cfg.Auth.SandboxMode,
		VerificationKey: cfg.Auth.VerificationKey,
	}, nil, store, logs.App.Named("AUTH"))
}

func ProvideRouter(cfg *config.Config, session *wallet.Session, manager *bountymanager.BountyManager, authService *auth.OCIDAuth, m *metrics.Metrics, logs *Loggers) *gin.Engine {
	return httphandlers.NewHTTPHandler(session, manager, authService, cfg, m.Handler(), logs.HTTP)
}
