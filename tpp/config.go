package tpp

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/raidiam/priora-mock-tpp/shared/client"
	"github.com/raidiam/priora-mock-tpp/shared/errs"
	"github.com/raidiam/priora-mock-tpp/shared/keyloader"
	"github.com/raidiam/priora-mock-tpp/shared/metrics"
	"github.com/raidiam/priora-mock-tpp/shared/model"
	"github.com/raidiam/priora-mock-tpp/shared/signer"
	"github.com/raidiam/priora-mock-tpp/shared/tlsutil"
	"github.com/spf13/viper"
)

const defaultEnvFile = ".env"

var configDefaults = map[string]string{
	"REDIRECT_URI": "https://localhost:3000/callback",
	"PRIORA_URL":   "priora.saltedge.com",
	"PROTOCOL":     "https",
	"PORT":         "3000",
	"APP_ORIGIN":   "http://localhost:3000",
	"LOG_LEVEL":    "info",
	"APP_VERSION":  "1.0.0",
}

// LoadConfig loads and validates configuration from .env in the working
// directory and the process environment
func LoadConfig() (*model.Config, error) {
	return LoadConfigFrom(defaultEnvFile)
}

// LoadConfigFrom is LoadConfig with an explicit dotenv file. A missing file
// is not an error; process environment variables take precedence over it.
func LoadConfigFrom(envFile string) (*model.Config, error) {
	ctx := context.Background()
	slog.InfoContext(ctx, "loading configuration", "env_file", envFile)

	v := viper.New()
	for key, value := range configDefaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	if envFile != "" {
		v.SetConfigFile(envFile)
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, errs.Config(fmt.Sprintf("failed to read %s", envFile), err)
			}
			slog.DebugContext(ctx, "no env file found", "env_file", envFile)
		}
	}

	baseDir := v.GetString("APP_BASE_DIR")
	if baseDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, errs.Config("failed to resolve working directory", err)
		}
		baseDir = wd
	}

	cfg := &model.Config{
		SoftwareID:         v.GetString("OB_SOFTWARE_ID"),
		SigningKeyID:       v.GetString("OB_SIGNING_KEY_ID"),
		PrivateKey:         v.GetString("OB_PRIVATE_KEY"),
		PrivateKeyPath:     v.GetString("OB_PRIVATE_KEY_PATH"),
		PrivateKeySecretID: v.GetString("OB_PRIVATE_KEY_SECRET_ID"),
		BaseDir:            baseDir,
		ProviderCode:       v.GetString("OB_PROVIDER_CODE"),
		RedirectURI:        v.GetString("REDIRECT_URI"),
		PrioraURL:          v.GetString("PRIORA_URL"),
		Protocol:           strings.ToLower(v.GetString("PROTOCOL")),
		Port:               v.GetString("PORT"),
		FrontendOrigin:     v.GetString("APP_ORIGIN"),
		CertFile:           v.GetString("MTLS_CERT_FILE"),
		KeyFile:            v.GetString("MTLS_KEY_FILE"),
		CAFile:             v.GetString("MTLS_CA_FILE"),
		DevTLSCertFile:     v.GetString("DEV_TLS_CERT_FILE"),
		DevTLSKeyFile:      v.GetString("DEV_TLS_KEY_FILE"),
		LogLevel:           v.GetString("LOG_LEVEL"),
		Version:            v.GetString("APP_VERSION"),
	}

	if err := validateConfig(cfg); err != nil {
		slog.ErrorContext(ctx, "invalid configuration", "error", err)
		return nil, err
	}
	return cfg, nil
}

func validateConfig(cfg *model.Config) error {
	switch {
	case cfg.SoftwareID == "":
		return errs.Config("missing required environment variable: OB_SOFTWARE_ID", nil)
	case cfg.PrivateKey == "" && cfg.PrivateKeyPath == "" && cfg.PrivateKeySecretID == "":
		return errs.Config("missing private key: set OB_PRIVATE_KEY, OB_PRIVATE_KEY_PATH or OB_PRIVATE_KEY_SECRET_ID", nil)
	case cfg.Protocol != "http" && cfg.Protocol != "https":
		return errs.Config(fmt.Sprintf("PROTOCOL must be http or https, got %q", cfg.Protocol), nil)
	case cfg.PrioraURL == "":
		return errs.Config("missing required environment variable: PRIORA_URL", nil)
	case (cfg.DevTLSCertFile == "") != (cfg.DevTLSKeyFile == ""):
		return errs.Config("DEV_TLS_CERT_FILE and DEV_TLS_KEY_FILE must be set together", nil)
	}
	return nil
}

// SetupClients loads the signing key and builds the sandbox OAuth client
func SetupClients(ctx context.Context, cfg *model.Config, m *metrics.Metrics) (*client.OAuthClient, error) {
	src := keyloader.Source{
		Inline:   cfg.PrivateKey,
		Path:     cfg.PrivateKeyPath,
		BaseDir:  cfg.BaseDir,
		SecretID: cfg.PrivateKeySecretID,
	}
	if cfg.PrivateKey == "" && cfg.PrivateKeyPath == "" && cfg.PrivateKeySecretID != "" {
		slog.InfoContext(ctx, "setting up secrets manager client", "secret_id", cfg.PrivateKeySecretID)
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, errs.Config("failed to load aws configuration", err)
		}
		src.Secrets = secretsmanager.NewFromConfig(awsCfg)
	}

	return newOAuthClient(ctx, cfg, src, m)
}

func newOAuthClient(ctx context.Context, cfg *model.Config, src keyloader.Source, m *metrics.Metrics) (*client.OAuthClient, error) {
	pemText, err := keyloader.Load(ctx, src)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load private key", "error", err)
		return nil, err
	}

	slog.InfoContext(ctx, "building JWT signer", "kid", cfg.SigningKeyID)
	jwtSigner, err := signer.New([]byte(pemText), cfg.SigningKeyID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to init JWT signer", "error", err)
		return nil, errs.Config("private key unusable", err)
	}

	opts := tlsutil.Options{
		CertFile: cfg.CertFile,
		KeyFile:  cfg.KeyFile,
		CAFile:   cfg.CAFile,
	}
	if m != nil {
		opts.Wrap = m.InstrumentRoundTripper
	}
	slog.InfoContext(ctx, "setting up sandbox http client", "mtls", cfg.CertFile != "")
	httpClient, err := tlsutil.NewClient(opts)
	if err != nil {
		slog.ErrorContext(ctx, "sandbox http client setup failed", "error", err)
		return nil, errs.Config("sandbox http client setup failed", err)
	}

	return client.New(client.Config{
		ClientID:   cfg.SoftwareID,
		HTTPClient: httpClient,
		JWTSigner:  jwtSigner,
	}), nil
}
