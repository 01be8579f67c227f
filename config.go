package lnhunt

import (
	"os"
	"strconv"
)

// Config holds all runtime configuration for the application. Provider
// credentials come from the environment; everything else has a sane default.
type Config struct {
	// LNbits provider settings. Required unless UseFakeProvider is set.
	LNbitsURL      string
	LNbitsAPIKey   string
	LNbitsWalletID string

	// UseFakeProvider selects the deterministic in-process provider. It must
	// be requested explicitly; missing credentials never silently fall back
	// to fake behavior.
	UseFakeProvider bool

	ListenAddr    string
	DatabasePath  string
	QuestionsPath string

	// AmountSats is the unlock price per question.
	AmountSats int64

	// RewardClaimRef is the externally supplied withdrawal reference exposed
	// once the hunt is complete (e.g. an LNURL-withdraw code).
	RewardClaimRef string
}

// LoadConfig reads configuration from environment variables. Missing provider
// credentials are a fatal configuration error, surfaced immediately.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		LNbitsURL:       os.Getenv("LNBITS_API_URL"),
		LNbitsAPIKey:    os.Getenv("LNBITS_API_KEY"),
		LNbitsWalletID:  os.Getenv("LNBITS_WALLET_ID"),
		UseFakeProvider: boolEnv("LNHUNT_FAKE_PROVIDER"),
		ListenAddr:      os.Getenv("LNHUNT_LISTEN_ADDR"),
		DatabasePath:    os.Getenv("LNHUNT_DB_PATH"),
		QuestionsPath:   os.Getenv("LNHUNT_QUESTIONS"),
		RewardClaimRef:  os.Getenv("LNHUNT_CLAIM_REF"),
		AmountSats:      DefaultAmountSats,
	}

	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = "./data/lnhunt.db"
	}
	if cfg.QuestionsPath == "" {
		cfg.QuestionsPath = "./questions.json"
	}

	if raw := os.Getenv("LNHUNT_AMOUNT_SATS"); raw != "" {
		amount, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || amount <= 0 || amount > MaxAmountSats {
			return nil, NewError(ErrCodeConfiguration, "LNHUNT_AMOUNT_SATS must be a positive integer of at most "+strconv.FormatInt(MaxAmountSats, 10), nil)
		}
		cfg.AmountSats = amount
	}

	if !cfg.UseFakeProvider {
		switch {
		case cfg.LNbitsURL == "":
			return nil, NewError(ErrCodeConfiguration, "LNBITS_API_URL environment variable is required", nil)
		case cfg.LNbitsAPIKey == "":
			return nil, NewError(ErrCodeConfiguration, "LNBITS_API_KEY environment variable is required", nil)
		case cfg.LNbitsWalletID == "":
			return nil, NewError(ErrCodeConfiguration, "LNBITS_WALLET_ID environment variable is required", nil)
		}
	}

	return cfg, nil
}

const (
	// DefaultAmountSats is the unlock price when none is configured.
	DefaultAmountSats = 10

	// MaxAmountSats bounds per-invoice amounts against abusive requests.
	MaxAmountSats = 100_000
)

func boolEnv(name string) bool {
	switch os.Getenv(name) {
	case "1", "true", "TRUE", "yes":
		return true
	}
	return false
}
