package config

import "fmt"

// Variable names, without the ESCROW_ prefix.
const (
	Datadir              = "DATADIR"
	DbType               = "DB_TYPE"
	HTTPPort             = "HTTP_PORT"
	LogLevel             = "LOG_LEVEL"
	SentryDsn            = "SENTRY_DSN"
	DisableTelemetry     = "DISABLE_TELEMETRY"
	MinOrderTimeout      = "MIN_ORDER_TIMEOUT"
	SweepInterval        = "SWEEP_INTERVAL"
	CustodyTag           = "CUSTODY_TAG"
	BtcNetwork           = "BTC_NETWORK"
	EsploraURL           = "ESPLORA_URL"
	BtcMinConfirmations  = "BTC_MIN_CONFIRMATIONS"
	BtcFeeTarget         = "BTC_FEE_TARGET"
	SolanaRpcURL         = "SOLANA_RPC_URL"
	SolanaCommitment     = "SOLANA_COMMITMENT"
	SolanaConfirmTimeout = "SOLANA_CONFIRM_TIMEOUT"
	SignerType           = "SIGNER_TYPE"
	SignerMnemonic       = "SIGNER_MNEMONIC"
	SignerPassphrase     = "SIGNER_PASSPHRASE"
	SignerURL            = "SIGNER_URL"
	EnvFile              = "ENV_FILE"
)

const (
	DefaultDatadir              = defaultAppName
	DefaultDbType               = sqliteDb
	DefaultHTTPPort             = 7001
	DefaultLogLevel             = 4
	DefaultDisableTelemetry     = false
	DefaultMinOrderTimeout      = 300
	DefaultSweepInterval        = 60
	DefaultCustodyTag           = "pool"
	DefaultBtcNetwork           = "testnet"
	DefaultBtcMinConfirmations  = 1
	DefaultBtcFeeTarget         = 6
	DefaultSolanaCommitment     = "confirmed"
	DefaultSolanaConfirmTimeout = 60
	DefaultSignerType           = localSigner
)

type EnvVar struct {
	Name        string // short name under the ESCROW_ prefix (e.g., "DATADIR")
	FullName    string // e.g., "ESCROW_DATADIR"
	Type        string // human-readable type
	Default     string // default value as a string ("" if none)
	Description string // one-liner for docs
	Notes       string // optional: constraints, examples, etc.
}

func EnvSpecs() []EnvVar {
	const P = envPrefix + "_"

	return []EnvVar{
		{
			Name:        Datadir,
			FullName:    P + Datadir,
			Type:        "string (path)",
			Default:     DefaultDatadir,
			Description: "Data directory for the order store",
			Notes:       "The default resolves to the OS application data directory.",
		},
		{
			Name:        DbType,
			FullName:    P + DbType,
			Type:        "string",
			Default:     DefaultDbType,
			Description: "Database backend: sqlite | badger",
		},
		{
			Name:        HTTPPort,
			FullName:    P + HTTPPort,
			Type:        "uint32 (port)",
			Default:     fmt.Sprintf("%d", DefaultHTTPPort),
			Description: "HTTP server port",
		},
		{
			Name:        LogLevel,
			FullName:    P + LogLevel,
			Type:        "uint32 (0–6)",
			Default:     fmt.Sprintf("%d", DefaultLogLevel),
			Description: "Log verbosity (higher = more verbose)",
		},
		{
			Name:        SentryDsn,
			FullName:    P + SentryDsn,
			Type:        "string (DSN)",
			Default:     "",
			Description: "Sentry DSN for error tracking",
			Notes:       "Partial settlements are captured as fatal events.",
		},
		{
			Name:        DisableTelemetry,
			FullName:    P + DisableTelemetry,
			Type:        "bool",
			Default:     fmt.Sprintf("%v", DefaultDisableTelemetry),
			Description: "Disable error tracking even if SENTRY_DSN is set",
		},
		// --- Order lifecycle ---
		{
			Name:        MinOrderTimeout,
			FullName:    P + MinOrderTimeout,
			Type:        "uint32 (seconds)",
			Default:     fmt.Sprintf("%d", DefaultMinOrderTimeout),
			Description: "Shortest timeout an order can be created with",
		},
		{
			Name:        SweepInterval,
			FullName:    P + SweepInterval,
			Type:        "uint32 (seconds)",
			Default:     fmt.Sprintf("%d", DefaultSweepInterval),
			Description: "Interval of the expiry sweep",
			Notes:       "0 disables the periodic sweep, POST /v1/sweep still works.",
		},
		{
			Name:        CustodyTag,
			FullName:    P + CustodyTag,
			Type:        "string",
			Default:     DefaultCustodyTag,
			Description: "Custody key tag every order deposits to",
		},
		// --- Bitcoin ---
		{
			Name:        BtcNetwork,
			FullName:    P + BtcNetwork,
			Type:        "string",
			Default:     DefaultBtcNetwork,
			Description: "Bitcoin network: mainnet | testnet | signet | regtest",
		},
		{
			Name:        EsploraURL,
			FullName:    P + EsploraURL,
			Type:        "string (URL)",
			Default:     "",
			Description: "Esplora base URL (e.g., http://chopsticks:3000)",
			Notes:       "Required.",
		},
		{
			Name:        BtcMinConfirmations,
			FullName:    P + BtcMinConfirmations,
			Type:        "uint32",
			Default:     fmt.Sprintf("%d", DefaultBtcMinConfirmations),
			Description: "Confirmations required before a deposit is accepted",
		},
		{
			Name:        BtcFeeTarget,
			FullName:    P + BtcFeeTarget,
			Type:        "uint32 (blocks)",
			Default:     fmt.Sprintf("%d", DefaultBtcFeeTarget),
			Description: "Fee estimation target of outgoing transfers",
		},
		// --- Solana ---
		{
			Name:        SolanaRpcURL,
			FullName:    P + SolanaRpcURL,
			Type:        "string (URL)",
			Default:     "",
			Description: "Solana JSON-RPC endpoint (e.g., https://api.devnet.solana.com)",
			Notes:       "Required.",
		},
		{
			Name:        SolanaCommitment,
			FullName:    P + SolanaCommitment,
			Type:        "string",
			Default:     DefaultSolanaCommitment,
			Description: "Commitment level: processed | confirmed | finalized",
		},
		{
			Name:        SolanaConfirmTimeout,
			FullName:    P + SolanaConfirmTimeout,
			Type:        "uint32 (seconds)",
			Default:     fmt.Sprintf("%d", DefaultSolanaConfirmTimeout),
			Description: "How long to wait for an outgoing transfer to confirm",
		},
		// --- Signer options ---
		{
			Name:        SignerType,
			FullName:    P + SignerType,
			Type:        "string",
			Default:     DefaultSignerType,
			Description: "Signer backend: local | remote",
			Notes:       "local → use SIGNER_MNEMONIC; remote → use SIGNER_URL",
		},
		{
			Name:        SignerMnemonic,
			FullName:    P + SignerMnemonic,
			Type:        "string",
			Default:     "",
			Description: "12 or 24 word BIP-39 mnemonic (when SIGNER_TYPE=local)",
		},
		{
			Name:        SignerPassphrase,
			FullName:    P + SignerPassphrase,
			Type:        "string",
			Default:     "",
			Description: "Optional BIP-39 passphrase (when SIGNER_TYPE=local)",
		},
		{
			Name:        SignerURL,
			FullName:    P + SignerURL,
			Type:        "string (URL)",
			Default:     "",
			Description: "Threshold signer endpoint (when SIGNER_TYPE=remote)",
		},
		{
			Name:        EnvFile,
			FullName:    P + EnvFile,
			Type:        "string (path)",
			Default:     "",
			Description: "Optional .env file loaded before reading the environment",
			Notes:       "Variables already set in the environment take precedence.",
		},
	}
}

//go:generate go run ../../tools/gen-env-doc/main.go
