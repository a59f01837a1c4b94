package config

import "github.com/spf13/viper"

// setDefaults registers every recognized option with its default value so a
// bare `mediad start` works against an empty config file.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.admin_host", "127.0.0.1")
	v.SetDefault("server.admin_port", 3001)
	v.SetDefault("server.base_url", "http://localhost:3000")
	v.SetDefault("server.request_timeout", 30)
	v.SetDefault("server.max_connections", 1024)
	v.SetDefault("server.cache_max_age", 31536000)
	v.SetDefault("server.cleanup_interval_seconds", 300)

	v.SetDefault("storage.data_dir", "./data")
	v.SetDefault("storage.originals_dir", "originals")
	v.SetDefault("storage.optimized_dir", "optimized")
	v.SetDefault("storage.temp_dir", "temp")
	v.SetDefault("storage.directory_levels", 2)

	v.SetDefault("upload.max_simple_upload_size", "10MiB")
	v.SetDefault("upload.max_chunked_upload_size", "100MiB")
	v.SetDefault("upload.chunk_size", "5MiB")
	v.SetDefault("upload.allowed_image_types", []string{
		"image/jpeg", "image/png", "image/gif", "image/webp", "image/bmp", "image/tiff",
	})
	v.SetDefault("upload.allowed_video_types", []string{})
	v.SetDefault("upload.upload_session_timeout", 3600)

	v.SetDefault("processing.output_format", "webp")
	v.SetDefault("processing.output_quality", 85)
	v.SetDefault("processing.max_image_dimension", 2048)
	v.SetDefault("processing.keep_originals", true)
	v.SetDefault("processing.strip_exif", true)

	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_keys", []string{})
	v.SetDefault("auth.protected_paths", []string{"/api/upload"})
	v.SetDefault("auth.public_paths", []string{"/m/", "/health"})

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_window", 300)
	v.SetDefault("rate_limit.window_seconds", 60)
	v.SetDefault("rate_limit.uploads_per_window", 30)

	v.SetDefault("rexpump.enabled", false)
	v.SetDefault("rexpump.signature_max_age_seconds", 300)
	v.SetDefault("rexpump.update_cooldown_seconds", 3600)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.output", "stdout")
}

// SampleYAML is written by `mediad init` as a starting configuration.
const SampleYAML = `# mediad configuration
#
# Every option can be overridden through the environment with the MEDIAD_
# prefix and underscores for nesting, e.g. MEDIAD_SERVER_PORT=8080.

server:
  host: 0.0.0.0
  port: 3000
  # The admin surface must stay on loopback; it is not authenticated.
  admin_host: 127.0.0.1
  admin_port: 3001
  # Public base used when building media URLs. No trailing slash.
  base_url: http://localhost:3000
  request_timeout: 30
  max_connections: 1024
  cache_max_age: 31536000
  cleanup_interval_seconds: 300

storage:
  data_dir: ./data
  originals_dir: originals
  optimized_dir: optimized
  temp_dir: temp
  # Two-hex-character shard directories per level, 0-4.
  directory_levels: 2

upload:
  # Sizes accept plain byte counts or units: 10MiB, 100MB, 1Gi.
  max_simple_upload_size: 10MiB
  max_chunked_upload_size: 100MiB
  chunk_size: 5MiB  # advertised to clients, advisory
  allowed_image_types:
    - image/jpeg
    - image/png
    - image/gif
    - image/webp
    - image/bmp
    - image/tiff
  allowed_video_types: []
  upload_session_timeout: 3600

processing:
  output_format: webp   # webp | jpeg | png
  output_quality: 85
  max_image_dimension: 2048
  keep_originals: true
  strip_exif: true

auth:
  enabled: false
  api_keys: []
  protected_paths:
    - /api/upload
  public_paths:
    - /m/
    - /health

rate_limit:
  enabled: true
  requests_per_window: 300
  window_seconds: 60
  uploads_per_window: 30

rexpump:
  enabled: false
  signature_max_age_seconds: 300
  update_cooldown_seconds: 3600
  networks: {}
  # networks:
  #   mainnet:
  #     chain_id: 1
  #     rpc_url: https://eth.example.com
  #     fallback_rpc_url: https://eth-fallback.example.com

logging:
  level: info
  format: text
  output: stdout
`
