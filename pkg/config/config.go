// Package config loads and validates the mediad configuration.
//
// Configuration is read from a YAML file (if present) merged with
// MEDIAD_* environment variables, then validated. Struct tags drive both
// viper unmarshalling (mapstructure) and validation (validator/v10);
// cross-field rules that tags cannot express live in Validate.
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/rexpump/mediad/internal/bytesize"
	"github.com/rexpump/mediad/pkg/apperr"
)

// Config is the root configuration for the service.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Upload     UploadConfig     `mapstructure:"upload"`
	Processing ProcessingConfig `mapstructure:"processing"`
	Auth       AuthConfig       `mapstructure:"auth"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	RexPump    RexPumpConfig    `mapstructure:"rexpump"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig controls the two HTTP listeners and shared HTTP behavior.
type ServerConfig struct {
	Host                   string `mapstructure:"host" validate:"required"`
	Port                   int    `mapstructure:"port" validate:"min=1,max=65535"`
	AdminHost              string `mapstructure:"admin_host" validate:"required"`
	AdminPort              int    `mapstructure:"admin_port" validate:"min=1,max=65535"`
	BaseURL                string `mapstructure:"base_url" validate:"required"`
	RequestTimeoutSeconds  int    `mapstructure:"request_timeout" validate:"min=1"`
	MaxConnections         int    `mapstructure:"max_connections" validate:"min=1"`
	CacheMaxAge            int    `mapstructure:"cache_max_age" validate:"min=0"`
	CleanupIntervalSeconds int    `mapstructure:"cleanup_interval_seconds" validate:"min=1"`
}

// StorageConfig controls the on-disk layout.
type StorageConfig struct {
	DataDir         string `mapstructure:"data_dir" validate:"required"`
	OriginalsDir    string `mapstructure:"originals_dir" validate:"required"`
	OptimizedDir    string `mapstructure:"optimized_dir" validate:"required"`
	TempDir         string `mapstructure:"temp_dir" validate:"required"`
	DirectoryLevels int    `mapstructure:"directory_levels" validate:"min=0,max=4"`
}

// UploadConfig bounds what uploads are accepted. Sizes accept plain byte
// counts or human-readable strings such as "10MiB".
type UploadConfig struct {
	MaxSimpleUploadSize         bytesize.Size `mapstructure:"max_simple_upload_size" validate:"min=1"`
	MaxChunkedUploadSize        bytesize.Size `mapstructure:"max_chunked_upload_size" validate:"min=1"`
	ChunkSize                   bytesize.Size `mapstructure:"chunk_size" validate:"min=1024"`
	AllowedImageTypes           []string      `mapstructure:"allowed_image_types" validate:"min=1"`
	AllowedVideoTypes           []string      `mapstructure:"allowed_video_types"`
	UploadSessionTimeoutSeconds int           `mapstructure:"upload_session_timeout" validate:"min=1"`
}

// IsAllowedType reports whether mime is accepted for upload, either as an
// image or as a declared video type.
func (u UploadConfig) IsAllowedType(mime string) bool {
	return u.IsAllowedImageType(mime) || u.IsAllowedVideoType(mime)
}

// IsAllowedImageType reports whether mime is in the image allow-list.
func (u UploadConfig) IsAllowedImageType(mime string) bool {
	for _, t := range u.AllowedImageTypes {
		if strings.EqualFold(t, mime) {
			return true
		}
	}
	return false
}

// IsAllowedVideoType reports whether mime is in the video allow-list.
func (u UploadConfig) IsAllowedVideoType(mime string) bool {
	for _, t := range u.AllowedVideoTypes {
		if strings.EqualFold(t, mime) {
			return true
		}
	}
	return false
}

// ProcessingConfig controls the image pipeline.
type ProcessingConfig struct {
	OutputFormat      string `mapstructure:"output_format"`
	OutputQuality     int    `mapstructure:"output_quality" validate:"min=0,max=100"`
	MaxImageDimension int    `mapstructure:"max_image_dimension" validate:"min=1"`
	KeepOriginals     bool   `mapstructure:"keep_originals"`
	StripExif         bool   `mapstructure:"strip_exif"`
}

// OutputMimeType returns the MIME of the configured output format.
// Unrecognized formats fall back to webp.
func (p ProcessingConfig) OutputMimeType() string {
	switch strings.ToLower(p.OutputFormat) {
	case "jpeg", "jpg":
		return "image/jpeg"
	case "png":
		return "image/png"
	default:
		return "image/webp"
	}
}

// OutputExtension returns the file extension of the configured output format.
func (p ProcessingConfig) OutputExtension() string {
	switch strings.ToLower(p.OutputFormat) {
	case "jpeg", "jpg":
		return "jpg"
	case "png":
		return "png"
	default:
		return "webp"
	}
}

// AuthConfig controls API-key gating of path prefixes.
type AuthConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	APIKeys        []string `mapstructure:"api_keys"`
	ProtectedPaths []string `mapstructure:"protected_paths"`
	PublicPaths    []string `mapstructure:"public_paths"`
}

// RateLimitConfig controls the per-IP limiter on the public listener.
type RateLimitConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RequestsPerWindow int  `mapstructure:"requests_per_window" validate:"min=1"`
	WindowSeconds     int  `mapstructure:"window_seconds" validate:"min=1"`
	UploadsPerWindow  int  `mapstructure:"uploads_per_window" validate:"min=1"`
}

// NetworkConfig describes one chain the token-metadata surface can verify
// against.
type NetworkConfig struct {
	ChainID        uint64 `mapstructure:"chain_id" validate:"min=1"`
	RPCURL         string `mapstructure:"rpc_url" validate:"required,url"`
	FallbackRPCURL string `mapstructure:"fallback_rpc_url" validate:"omitempty,url"`
}

// RexPumpConfig controls the token-metadata surface.
type RexPumpConfig struct {
	Enabled                bool                     `mapstructure:"enabled"`
	SignatureMaxAgeSeconds int64                    `mapstructure:"signature_max_age_seconds" validate:"min=1"`
	UpdateCooldownSeconds  int64                    `mapstructure:"update_cooldown_seconds" validate:"min=0"`
	Networks               map[string]NetworkConfig `mapstructure:"networks"`
}

// NetworkByChainID finds the network configured for the given chain id.
func (r RexPumpConfig) NetworkByChainID(chainID uint64) (NetworkConfig, bool) {
	for _, n := range r.Networks {
		if n.ChainID == chainID {
			return n, true
		}
	}
	return NetworkConfig{}, false
}

// LoggingConfig maps directly onto the logger package.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// Load reads configuration from the given file path (optional) plus
// MEDIAD_* environment variables, applies defaults, and validates.
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("MEDIAD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, apperr.Wrap(apperr.KindConfig, fmt.Sprintf("reading config file %s", path), err)
		}
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		mapstructure.TextUnmarshallerHookFunc(),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, apperr.Wrap(apperr.KindConfig, "unmarshalling config", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks tag rules plus the cross-field constraints.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return apperr.Wrap(apperr.KindConfig, "invalid configuration", err)
	}

	if strings.HasSuffix(c.Server.BaseURL, "/") {
		return apperr.E(apperr.KindConfig, "server.base_url must not end with a trailing slash")
	}
	if c.Upload.MaxChunkedUploadSize < c.Upload.MaxSimpleUploadSize {
		return apperr.E(apperr.KindConfig, "upload.max_chunked_upload_size must be >= upload.max_simple_upload_size")
	}
	switch strings.ToLower(c.Processing.OutputFormat) {
	case "webp", "jpeg", "jpg", "png":
	default:
		return apperr.Ef(apperr.KindConfig, "processing.output_format %q is not one of webp, jpeg, jpg, png", c.Processing.OutputFormat)
	}
	if c.Auth.Enabled && len(c.Auth.APIKeys) == 0 {
		return apperr.E(apperr.KindConfig, "auth.enabled requires at least one entry in auth.api_keys")
	}
	if c.RexPump.Enabled && len(c.RexPump.Networks) == 0 {
		return apperr.E(apperr.KindConfig, "rexpump.enabled requires at least one configured network")
	}
	return nil
}

// OriginalsPath returns the absolute originals root.
func (c *Config) OriginalsPath() string {
	return filepath.Join(c.Storage.DataDir, c.Storage.OriginalsDir)
}

// OptimizedPath returns the absolute optimized root.
func (c *Config) OptimizedPath() string {
	return filepath.Join(c.Storage.DataDir, c.Storage.OptimizedDir)
}

// TempPath returns the absolute temp-session root.
func (c *Config) TempPath() string {
	return filepath.Join(c.Storage.DataDir, c.Storage.TempDir)
}

// KVPath returns the directory handed to the embedded KV store.
func (c *Config) KVPath() string {
	return filepath.Join(c.Storage.DataDir, "kv")
}
