package config

import (
	"strings"
	"time"
)

var BuildVersion = "0.0.0-dev"

// Validation tags described here: https://pkg.go.dev/github.com/go-playground/validator/v10
type Config struct {
	Auth struct {
		ClientID        string `env:"OCID_CLIENT_ID"        flag:"ocid-client-id"`
		RedirectURI     string `env:"OCID_REDIRECT_URI"     flag:"ocid-redirect-uri"     validate:"omitempty,url"`
		ReferralCode    string `env:"OCID_REFERRAL_CODE"    flag:"ocid-referral-code"`
		Scope           string `env:"OCID_SCOPE"            flag:"ocid-scope"`
		AuthURL         string `env:"OCID_AUTH_URL"         flag:"ocid-auth-url"         validate:"omitempty,url"`
		TokenURL        string `env:"OCID_TOKEN_URL"        flag:"ocid-token-url"        validate:"omitempty,url"`
		SandboxMode     bool   `env:"OCID_SANDBOX_MODE"     flag:"ocid-sandbox-mode"     desc:"accept id tokens without signature verification"`
		VerificationKey string `env:"OCID_VERIFICATION_KEY" flag:"ocid-verification-key" desc:"PEM encoded RSA public key used to verify id tokens"`
	}
	Blockchain struct {
		ChainID          uint64        `env:"CHAIN_ID"               flag:"chain-id"               validate:"required"`
		ChainName        string        `env:"CHAIN_NAME"             flag:"chain-name"             validate:"required"`
		RPCURL           string        `env:"CHAIN_RPC_URL"          flag:"chain-rpc-url"          validate:"required,url"`
		ExplorerURL      string        `env:"CHAIN_EXPLORER_URL"     flag:"chain-explorer-url"     validate:"omitempty,url"`
		CurrencyName     string        `env:"CHAIN_CURRENCY_NAME"    flag:"chain-currency-name"`
		CurrencySymbol   string        `env:"CHAIN_CURRENCY_SYMBOL"  flag:"chain-currency-symbol"`
		CurrencyDecimals uint8         `env:"CHAIN_CURRENCY_DECIMALS" flag:"chain-currency-decimals"`
		PollingInterval  time.Duration `env:"ETH_POLLING_INTERVAL"   flag:"eth-polling-interval"   validate:"omitempty,duration" desc:"interval between polling for contract events"`
		MaxReconnects    int           `env:"ETH_MAX_RECONNECTS"     flag:"eth-max-reconnects"     validate:"omitempty,number"   desc:"maximum number of consecutive failed log queries"`
		EthLegacyTx      bool          `env:"ETH_NODE_LEGACY_TX"     flag:"eth-node-legacy-tx"     desc:"use it to disable EIP-1559 transactions"`
	}
	Contracts struct {
		TaskManagerAddress   string `env:"TASK_MANAGER_ADDRESS"   flag:"task-manager-address"   validate:"required,eth_addr"`
		TokenAddress         string `env:"TOKEN_ADDRESS"          flag:"token-address"          validate:"required,eth_addr"`
		CreateGasLimit       uint64 `env:"CREATE_GAS_LIMIT"       flag:"create-gas-limit"`
		CompleteGasLimit     uint64 `env:"COMPLETE_GAS_LIMIT"     flag:"complete-gas-limit"`
		BalanceBufferPercent int64  `env:"BALANCE_BUFFER_PERCENT" flag:"balance-buffer-percent" validate:"omitempty,min=100" desc:"balance required to create a task, in percent of the reward"`
	}
	Wallet struct {
		Provider        string        `env:"WALLET_PROVIDER"          flag:"wallet-provider"          validate:"omitempty,oneof=keyed rpc"`
		PrivateKey      string        `env:"WALLET_PRIVATE_KEY"       flag:"wallet-private-key"`
		Mnemonic        string        `env:"WALLET_MNEMONIC"          flag:"wallet-mnemonic"`
		AccountIndex    int           `env:"WALLET_ACCOUNT_INDEX"     flag:"wallet-account-index"     validate:"omitempty,min=0"`
		RPCURL          string        `env:"WALLET_RPC_URL"           flag:"wallet-rpc-url"           validate:"required_if=Provider rpc,omitempty,url" desc:"wallet endpoint for the rpc provider"`
		PollingInterval time.Duration `env:"WALLET_POLLING_INTERVAL"  flag:"wallet-polling-interval"  validate:"omitempty,duration" desc:"interval between polling the wallet for account and chain changes"`
	}
	Storage struct {
		Kind         string `env:"STORAGE_KIND"         flag:"storage-kind"         validate:"omitempty,oneof=memory file redis"`
		Path         string `env:"STORAGE_PATH"         flag:"storage-path"         desc:"file used by the file storage"`
		RedisURL     string `env:"STORAGE_REDIS_URL"    flag:"storage-redis-url"    validate:"required_if=Kind redis,omitempty,url"`
		Scope        string `env:"STORAGE_SCOPE"        flag:"storage-scope"        desc:"prefix of every persisted key"`
		TasksBackend string `env:"TASKS_BACKEND"       flag:"tasks-backend"        validate:"omitempty,oneof=kv postgres"`
		PostgresDSN  string `env:"TASKS_POSTGRES_DSN"   flag:"tasks-postgres-dsn"   validate:"required_if=TasksBackend postgres"`
	}
	Log struct {
		Color         bool   `env:"LOG_COLOR"         flag:"log-color"`
		FolderPath    string `env:"LOG_FOLDER_PATH"   flag:"log-folder-path"   validate:"omitempty,dirpath" desc:"enables file logging and sets the folder path"`
		IsProd        bool   `env:"LOG_IS_PROD"       flag:"log-is-prod"       desc:"affects the format of the log output"`
		JSON          bool   `env:"LOG_JSON"          flag:"log-json"`
		LevelApp      string `env:"LOG_LEVEL_APP"     flag:"log-level-app"     validate:"omitempty,oneof=debug info warn error dpanic panic fatal"`
		LevelWallet   string `env:"LOG_LEVEL_WALLET"  flag:"log-level-wallet"  validate:"omitempty,oneof=debug info warn error dpanic panic fatal"`
		LevelContract string `env:"LOG_LEVEL_CONTRACT" flag:"log-level-contract" validate:"omitempty,oneof=debug info warn error dpanic panic fatal"`
		LevelHTTP     string `env:"LOG_LEVEL_HTTP"    flag:"log-level-http"    validate:"omitempty,oneof=debug info warn error dpanic panic fatal"`
	}
	Web struct {
		Address   string `env:"WEB_ADDRESS"    flag:"web-address"    validate:"required,hostname_port" desc:"http server address host:port"`
		PublicUrl string `env:"WEB_PUBLIC_URL" flag:"web-public-url" validate:"omitempty,url"          desc:"public url of the service, falls back to web-address if empty"`
	}
}

func (cfg *Config) SetDefaults() {
	// Auth

	if cfg.Auth.ClientID == "" {
		cfg.Auth.ClientID = "edubounty-app"
	}
	if cfg.Auth.Scope == "" {
		cfg.Auth.Scope = "openid profile email"
	}
	if cfg.Auth.AuthURL == "" {
		cfg.Auth.AuthURL = "https://auth.sandbox.opencampus.xyz/login"
	}
	if cfg.Auth.TokenURL == "" {
		cfg.Auth.TokenURL = "https://auth.sandbox.opencampus.xyz/oauth/token"
	}

	// Blockchain (Open Campus Codex testnet)

	if cfg.Blockchain.ChainID == 0 {
		cfg.Blockchain.ChainID = 656476
	}
	if cfg.Blockchain.ChainName == "" {
		cfg.Blockchain.ChainName = "Open Campus Codex"
	}
	if cfg.Blockchain.RPCURL == "" {
		cfg.Blockchain.RPCURL = "https://rpc.open-campus-codex.gelato.digital"
	}
	if cfg.Blockchain.ExplorerURL == "" {
		cfg.Blockchain.ExplorerURL = "https://opencampus-codex.blockscout.com"
	}
	if cfg.Blockchain.CurrencyName == "" {
		cfg.Blockchain.CurrencyName = "EDU"
	}
	if cfg.Blockchain.CurrencySymbol == "" {
		cfg.Blockchain.CurrencySymbol = "EDU"
	}
	if cfg.Blockchain.CurrencyDecimals == 0 {
		cfg.Blockchain.CurrencyDecimals = 18
	}
	if cfg.Blockchain.PollingInterval == 0 {
		cfg.Blockchain.PollingInterval = 10 * time.Second
	}
	if cfg.Blockchain.MaxReconnects == 0 {
		cfg.Blockchain.MaxReconnects = 30
	}

	// Contracts

	if cfg.Contracts.TaskManagerAddress == "" {
		cfg.Contracts.TaskManagerAddress = "0x5d2ea682734b771cda1315f6e49a3f7c3452cb3c"
	}
	if cfg.Contracts.CreateGasLimit == 0 {
		cfg.Contracts.CreateGasLimit = 300000
	}
	if cfg.Contracts.CompleteGasLimit == 0 {
		cfg.Contracts.CompleteGasLimit = 500000
	}
	if cfg.Contracts.BalanceBufferPercent == 0 {
		cfg.Contracts.BalanceBufferPercent = 110
	}

	// Wallet

	if cfg.Wallet.Provider == "" {
		cfg.Wallet.Provider = "keyed"
	}
	if cfg.Wallet.PollingInterval == 0 {
		cfg.Wallet.PollingInterval = 2 * time.Second
	}
	cfg.Wallet.PrivateKey = strings.TrimPrefix(cfg.Wallet.PrivateKey, "0x")

	// Storage

	if cfg.Storage.Kind == "" {
		cfg.Storage.Kind = "file"
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = "./data/edubounty.json"
	}
	if cfg.Storage.Scope == "" {
		cfg.Storage.Scope = "edubounty:"
	}
	if cfg.Storage.TasksBackend == "" {
		cfg.Storage.TasksBackend = "kv"
	}

	// Log

	if cfg.Log.LevelApp == "" {
		cfg.Log.LevelApp = "debug"
	}
	if cfg.Log.LevelWallet == "" {
		cfg.Log.LevelWallet = "info"
	}
	if cfg.Log.LevelContract == "" {
		cfg.Log.LevelContract = "debug"
	}
	if cfg.Log.LevelHTTP == "" {
		cfg.Log.LevelHTTP = "info"
	}

	// Web

	if cfg.Web.Address == "" {
		cfg.Web.Address = "0.0.0.0:8080"
	}
	if cfg.Web.PublicUrl == "" {
		cfg.Web.PublicUrl = "http://localhost:8080"
	}
	if cfg.Auth.RedirectURI == "" {
		cfg.Auth.RedirectURI = strings.TrimSuffix(cfg.Web.PublicUrl, "/") + "/auth/callback"
	}
}

// GetSanitized returns a copy of the config with sensitive data removed
// explicitly adding each field here to avoid accidentally leaking sensitive data
func (cfg *Config) GetSanitized() interface{} {
	publicCfg := Config{}

	publicCfg.Auth.ClientID = cfg.Auth.ClientID
	publicCfg.Auth.RedirectURI = cfg.Auth.RedirectURI
	publicCfg.Auth.Scope = cfg.Auth.Scope
	publicCfg.Auth.AuthURL = cfg.Auth.AuthURL
	publicCfg.Auth.TokenURL = cfg.Auth.TokenURL
	publicCfg.Auth.SandboxMode = cfg.Auth.SandboxMode

	publicCfg.Blockchain = cfg.Blockchain

	publicCfg.Contracts = cfg.Contracts

	publicCfg.Wallet.Provider = cfg.Wallet.Provider
	publicCfg.Wallet.AccountIndex = cfg.Wallet.AccountIndex
	publicCfg.Wallet.PollingInterval = cfg.Wallet.PollingInterval

	publicCfg.Storage.Kind = cfg.Storage.Kind
	publicCfg.Storage.Path = cfg.Storage.Path
	publicCfg.Storage.Scope = cfg.Storage.Scope
	publicCfg.Storage.TasksBackend = cfg.Storage.TasksBackend

	publicCfg.Log = cfg.Log

	publicCfg.Web = cfg.Web

	return publicCfg
}
