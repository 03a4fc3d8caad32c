package conf

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
)

const envAPIKey = "GEMINI_API_KEY"

// DefaultConfig 默认配置
func DefaultConfig() Bootstrap {
	return Bootstrap{
		Server: Server{
			HTTP: ServerHTTP{
				Port:    8000,
				Timeout: Duration(5 * time.Minute),
			},
		},
		Log: Log{Level: "info", Format: "text"},
		Data: Data{
			Database: Database{
				Dsn:             "configs/data.db",
				MaxIdleConns:    10,
				MaxOpenConns:    50,
				ConnMaxLifetime: Duration(6 * time.Hour),
				SlowThreshold:   Duration(200 * time.Millisecond),
			},
		},
		Capture: Capture{
			FFmpegPath:    "ffmpeg",
			ChunkDir:      "chunks",
			ChunkDuration: Duration(300 * time.Second),
			MaxChunks:     10,
			MinChunkBytes: 100000,
			Quiescence:    Duration(3 * time.Second),
			Grace:         Duration(10 * time.Second),
			PollInterval:  Duration(2 * time.Second),
			ErrorBackoff:  Duration(5 * time.Second),
		},
		Alert: Alert{
			VideoDir:        "server",
			SegmentDir:      "server/temp_chunks",
			FrameDir:        "frames",
			DefaultInterval: Duration(10 * time.Second),
			Threshold:       0.7,
			MinSegmentBytes: 1000,
			MaxSegmentBytes: 50 << 20,
			StopGrace:       Duration(500 * time.Millisecond),
			ExtractGrace:    Duration(60 * time.Second),
		},
		Inference: Inference{
			Model:           "gemini-2.5-flash",
			SegmentModel:    "gemini-2.0-flash-exp",
			Timeout:         Duration(2 * time.Minute),
			MaxVideoBytes:   20 << 20,
			MaxImageBytes:   4 << 20,
			Temperature:     0.1,
			MaxOutputTokens: 2048,
		},
		Notify: Notify{
			WriteTimeout: Duration(5 * time.Second),
			PingInterval: Duration(30 * time.Second),
			MQTT: MQTT{
				ClientID: "vigil",
				Topic:    "vigil/events",
				QoS:      1,
			},
		},
		Archive: Archive{ResultDir: "results"},
	}
}

// SetupConfig 读取配置文件，文件不存在时写入默认配置
func SetupConfig(path string) (Bootstrap, error) {
	cfg := DefaultConfig()
	cfg.ConfigPath = path
	cfg.ConfigDir = filepath.Dir(path)

	b, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if err := WriteConfig(&cfg, path); err != nil {
			return cfg, err
		}
	case err != nil:
		return cfg, err
	default:
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if key := os.Getenv(envAPIKey); key != "" {
		cfg.Inference.APIKey = key
	}
	cfg.Debug = cfg.Server.Debug
	return cfg, nil
}

// WriteConfig 将配置写回文件
func WriteConfig(cfg *Bootstrap, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	enc.SetIndentTables(true)
	if err := enc.Encode(cfg); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}
