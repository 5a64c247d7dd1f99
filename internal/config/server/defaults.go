package server

import "github.com/spf13/viper"

func GetServerDefault() BaseServerConfig {
	return BaseServerConfig{
		ShutdownTimeout: "10s",

		Log: LogServerConfig{
			Level:      "INFO",
			TimeFormat: "2006-01-02 15:04:05",
			File:       "",
			NoColor:    false,
			JSON:       false,
			NoTerminal: false,
			Rotation: LogServerRotationConfig{
				MaxSize:    128,
				MaxBackups: 5,
				MaxAge:     16,
				Compress:   false,
			},
		},

		Metadata: MetadataServerConfig{
			Type: "sqlite",
			SQLite: MetadataSQLiteConfig{
				Path: "./data/fluxupload.db",
			},
		},

		HTTP: HTTPServerConfig{
			Address:           ":8080",
			RoutePrefix:       "fluxupload",
			MaxRequestSize:    64 << 20,
			ReadHeaderTimeout: "10s",
		},

		Upload: UploadServerConfig{
			ChunkSize:            2097152,
			MinChunkSize:         1024,
			MaxFileSize:          26843545600,
			SessionTTL:           "24h",
			CompletedGrace:       "1h",
			StuckAssemblyTimeout: "1h",
			ValidateHash:         false,
			HashAlgorithm:        "sha256",
			AllowedExtensions:    []string{},
			ChunksPath:           "./data/chunks",
			StorageDisk:          "local",
			StoragePath:          "fluxupload",
			Disks: map[string]string{
				"local": "./data/storage",
			},
			KeepChunkRecords: true,
		},

		Sweep: SweepServerConfig{
			Interval: "1h",
			OnStart:  true,
			Disabled: false,
		},
	}
}

func setDefaults(v *viper.Viper) {
	defaults := GetServerDefault()

	v.SetDefault("shutdown_timeout", defaults.ShutdownTimeout)

	v.SetDefault("log.level", defaults.Log.Level)
	v.SetDefault("log.time_format", defaults.Log.TimeFormat)
	v.SetDefault("log.file", defaults.Log.File)
	v.SetDefault("log.no_color", defaults.Log.NoColor)
	v.SetDefault("log.json", defaults.Log.JSON)
	v.SetDefault("log.no_terminal", defaults.Log.NoTerminal)
	v.SetDefault("log.rotation.max_size", defaults.Log.Rotation.MaxSize)
	v.SetDefault("log.rotation.max_backups", defaults.Log.Rotation.MaxBackups)
	v.SetDefault("log.rotation.max_age", defaults.Log.Rotation.MaxAge)
	v.SetDefault("log.rotation.compress", defaults.Log.Rotation.Compress)

	v.SetDefault("metadata.type", defaults.Metadata.Type)
	v.SetDefault("metadata.sqlite.path", defaults.Metadata.SQLite.Path)

	v.SetDefault("http.address", defaults.HTTP.Address)
	v.SetDefault("http.route_prefix", defaults.HTTP.RoutePrefix)
	v.SetDefault("http.max_request_size", defaults.HTTP.MaxRequestSize)
	v.SetDefault("http.read_header_timeout", defaults.HTTP.ReadHeaderTimeout)

	v.SetDefault("upload.chunk_size", defaults.Upload.ChunkSize)
	v.SetDefault("upload.min_chunk_size", defaults.Upload.MinChunkSize)
	v.SetDefault("upload.max_file_size", defaults.Upload.MaxFileSize)
	v.SetDefault("upload.session_ttl", defaults.Upload.SessionTTL)
	v.SetDefault("upload.completed_grace", defaults.Upload.CompletedGrace)
	v.SetDefault("upload.stuck_assembly_timeout", defaults.Upload.StuckAssemblyTimeout)
	v.SetDefault("upload.validate_hash", defaults.Upload.ValidateHash)
	v.SetDefault("upload.hash_algorithm", defaults.Upload.HashAlgorithm)
	v.SetDefault("upload.allowed_extensions", defaults.Upload.AllowedExtensions)
	v.SetDefault("upload.chunks_path", defaults.Upload.ChunksPath)
	v.SetDefault("upload.storage_disk", defaults.Upload.StorageDisk)
	v.SetDefault("upload.storage_path", defaults.Upload.StoragePath)
	v.SetDefault("upload.disks", defaults.Upload.Disks)
	v.SetDefault("upload.keep_chunk_records", defaults.Upload.KeepChunkRecords)

	v.SetDefault("sweep.interval", defaults.Sweep.Interval)
	v.SetDefault("sweep.on_start", defaults.Sweep.OnStart)
	v.SetDefault("sweep.disabled", defaults.Sweep.Disabled)
}
