package config

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"
	"time"
	"unicode"

	"github.com/ArkLabsHQ/escrowd/utils"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	envPrefix = "ESCROW"

	sqliteDb = "sqlite"
	badgerDb = "badger"

	localSigner  = "local"
	remoteSigner = "remote"

	defaultAppName = "escrowd"
)

type Config struct {
	Datadir          string `mapstructure:"DATADIR" envDefault:"escrowd" envInfo:"Data directory for the order store"`
	DbType           string `mapstructure:"DB_TYPE" envDefault:"sqlite" envInfo:"Database backend: sqlite | badger"`
	HTTPPort         uint32 `mapstructure:"HTTP_PORT" envDefault:"7001" envInfo:"HTTP server port"`
	LogLevel         uint32 `mapstructure:"LOG_LEVEL" envDefault:"4" envInfo:"Log verbosity (higher = more verbose)"`
	SentryDsn        string `mapstructure:"SENTRY_DSN" envDefault:"" envInfo:"Sentry DSN for error tracking"`
	DisableTelemetry bool   `mapstructure:"DISABLE_TELEMETRY" envDefault:"false" envInfo:"Disable error tracking"`

	MinOrderTimeout uint32 `mapstructure:"MIN_ORDER_TIMEOUT" envDefault:"300" envInfo:"Shortest order timeout in seconds"`
	SweepInterval   uint32 `mapstructure:"SWEEP_INTERVAL" envDefault:"60" envInfo:"Expiry sweep interval in seconds, 0 disables it"`
	CustodyTag      string `mapstructure:"CUSTODY_TAG" envDefault:"pool" envInfo:"Custody key tag deposits are sent to"`

	BtcNetwork          string `mapstructure:"BTC_NETWORK" envDefault:"testnet" envInfo:"Bitcoin network: mainnet | testnet | signet | regtest"`
	EsploraURL          string `mapstructure:"ESPLORA_URL" envDefault:"" envInfo:"Esplora base URL (e.g., http://chopsticks:3000)"`
	BtcMinConfirmations uint32 `mapstructure:"BTC_MIN_CONFIRMATIONS" envDefault:"1" envInfo:"Confirmations required for a deposit"`
	BtcFeeTarget        uint32 `mapstructure:"BTC_FEE_TARGET" envDefault:"6" envInfo:"Fee estimation target in blocks"`

	SolanaRpcURL         string `mapstructure:"SOLANA_RPC_URL" envDefault:"" envInfo:"Solana JSON-RPC endpoint"`
	SolanaCommitment     string `mapstructure:"SOLANA_COMMITMENT" envDefault:"confirmed" envInfo:"Commitment: processed | confirmed | finalized"`
	SolanaConfirmTimeout uint32 `mapstructure:"SOLANA_CONFIRM_TIMEOUT" envDefault:"60" envInfo:"Seconds to wait for a transfer to confirm"`

	SignerType       string `mapstructure:"SIGNER_TYPE" envDefault:"local" envInfo:"Signer type: local | remote"`
	SignerMnemonic   string `mapstructure:"SIGNER_MNEMONIC" envDefault:"" envInfo:"BIP-39 mnemonic of the local signer"`
	SignerPassphrase string `mapstructure:"SIGNER_PASSPHRASE" envDefault:"" envInfo:"Optional BIP-39 passphrase of the local signer"`
	SignerURL        string `mapstructure:"SIGNER_URL" envDefault:"" envInfo:"Remote signer base URL"`
}

func LoadConfig() (*Config, error) {
	if envFile := os.Getenv(envPrefix + "_" + EnvFile); envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("error loading env file %s: %w", envFile, err)
		}
	}

	v := viper.New()

	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	if err := setDefaultConfig(v); err != nil {
		return nil, fmt.Errorf("error setting default config: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode into struct, %v", err)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	if err := config.initDb(); err != nil {
		return nil, fmt.Errorf("error initializing data directory: %w", err)
	}

	return &config, nil
}

// SentryEnabled returns whether errors must be reported to Sentry.
func (c *Config) SentryEnabled() bool {
	return !c.DisableTelemetry && c.SentryDsn != ""
}

func (c *Config) MinOrderTimeoutDuration() time.Duration {
	return time.Duration(c.MinOrderTimeout) * time.Second
}

func (c *Config) SweepIntervalDuration() time.Duration {
	return time.Duration(c.SweepInterval) * time.Second
}

func (c *Config) SolanaConfirmTimeoutDuration() time.Duration {
	return time.Duration(c.SolanaConfirmTimeout) * time.Second
}

func (c *Config) validate() error {
	if c.LogLevel > 6 {
		return fmt.Errorf("invalid log level %d, must be in range [0, 6]", c.LogLevel)
	}
	if c.MinOrderTimeout == 0 {
		return fmt.Errorf("min order timeout must be greater than zero")
	}
	if strings.TrimSpace(c.CustodyTag) == "" {
		return fmt.Errorf("missing custody tag")
	}

	switch c.BtcNetwork {
	case "mainnet", "bitcoin", "testnet", "testnet3", "signet", "regtest":
	default:
		return fmt.Errorf("unsupported bitcoin network %s", c.BtcNetwork)
	}

	if c.EsploraURL == "" {
		return fmt.Errorf("missing esplora url")
	}
	esploraURL, err := utils.ValidateURL(c.EsploraURL)
	if err != nil {
		return fmt.Errorf("invalid esplora url: %v", err)
	}
	c.EsploraURL = esploraURL

	if c.SolanaRpcURL == "" {
		return fmt.Errorf("missing solana rpc url")
	}
	solanaURL, err := utils.ValidateURL(c.SolanaRpcURL)
	if err != nil {
		return fmt.Errorf("invalid solana rpc url: %v", err)
	}
	c.SolanaRpcURL = solanaURL

	switch c.SolanaCommitment {
	case "processed", "confirmed", "finalized":
	default:
		return fmt.Errorf("unsupported solana commitment %s", c.SolanaCommitment)
	}

	return c.validateSigner()
}

func (c *Config) validateSigner() error {
	switch c.SignerType {
	case localSigner:
		if c.SignerMnemonic == "" {
			return fmt.Errorf("missing mnemonic for local signer")
		}
		if err := utils.IsValidMnemonic(c.SignerMnemonic); err != nil {
			return fmt.Errorf("invalid signer mnemonic: %v", err)
		}
	case remoteSigner:
		if c.SignerURL == "" {
			return fmt.Errorf("missing url for remote signer")
		}
		signerURL, err := utils.ValidateURL(c.SignerURL)
		if err != nil {
			return fmt.Errorf("invalid signer url: %v", err)
		}
		c.SignerURL = signerURL
	default:
		return fmt.Errorf("unknown signer type %s", c.SignerType)
	}
	return nil
}

func (c *Config) initDb() error {
	supportedDbType := map[string]struct{}{
		sqliteDb: {},
		badgerDb: {},
	}

	if _, ok := supportedDbType[c.DbType]; !ok {
		return fmt.Errorf("unsupported db type: %s", c.DbType)
	}

	if c.Datadir == defaultAppName {
		c.Datadir = appDatadir(defaultAppName, false)
	} else {
		c.Datadir = cleanAndExpandPath(c.Datadir)
	}

	return makeDirectoryIfNotExists(c.Datadir)
}

func setDefaultConfig(v *viper.Viper) error {
	t := reflect.TypeOf(Config{})
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		key := f.Tag.Get("mapstructure")
		def := f.Tag.Get("envDefault")
		if def != "" {
			v.SetDefault(key, def)
		}
		err := v.BindEnv(key)
		if err != nil {
			return fmt.Errorf("error binding env variable for key %s: %w", key, err)
		}
	}
	return nil
}

func makeDirectoryIfNotExists(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return os.MkdirAll(path, os.ModeDir|0755)
	}
	return nil
}

// appDatadir returns an operating system specific directory to be used for
// storing application data for an application.
func appDatadir(appName string, roaming bool) string {
	if appName == "" || appName == "." {
		return "."
	}

	appName = strings.TrimPrefix(appName, ".")
	appNameUpper := string(unicode.ToUpper(rune(appName[0]))) + appName[1:]
	appNameLower := string(unicode.ToLower(rune(appName[0]))) + appName[1:]

	var homeDir string
	usr, err := user.Current()
	if err == nil {
		homeDir = usr.HomeDir
	}
	if err != nil || homeDir == "" {
		homeDir = os.Getenv("HOME")
	}

	switch runtime.GOOS {
	case "windows":
		// Windows XP and before didn't have a LOCALAPPDATA.
		appData := os.Getenv("LOCALAPPDATA")
		if roaming || appData == "" {
			appData = os.Getenv("APPDATA")
		}
		if appData != "" {
			return filepath.Join(appData, appNameUpper)
		}

	case "darwin":
		if homeDir != "" {
			return filepath.Join(homeDir, "Library",
				"Application Support", appNameUpper)
		}

	case "plan9":
		if homeDir != "" {
			return filepath.Join(homeDir, appNameLower)
		}

	default:
		if homeDir != "" {
			return filepath.Join(homeDir, "."+appNameLower)
		}
	}

	return "."
}

func cleanAndExpandPath(path string) string {
	if path == "" {
		return path
	}

	// Expand initial ~ to OS specific home directory.
	if strings.HasPrefix(path, "~") {
		var homeDir string
		u, err := user.Current()
		if err == nil {
			homeDir = u.HomeDir
		} else {
			homeDir = os.Getenv("HOME")
		}

		path = strings.Replace(path, "~", homeDir, 1)
	}

	// NOTE: The os.ExpandEnv doesn't work with Windows-style %VARIABLE%,
	// but the variables can still be expanded via POSIX-style $VARIABLE.
	return filepath.Clean(os.ExpandEnv(path))
}

//go:generate go run ../../tools/gen-env-doc/main.go
