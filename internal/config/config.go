package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pion/webrtc/v4"
	"gopkg.in/yaml.v3"
)

// Default configuration values
const (
	DefaultListenAddr      = ":8080"
	DefaultDatabasePath    = "bola.db"
	DefaultLeaderboardSpan = 5
	DefaultMaxRoomSize     = 8
	DefaultSTUN            = "stun:stun.l.google.com:19302"
	DefaultLogLevel        = "error"
	DefaultServerURL       = "http://localhost:8080"
)

// Config holds the server configuration
type Config struct {
	// ListenAddr is the HTTP listen address
	ListenAddr string `yaml:"listen_addr"`

	// APIToken authorizes highscore submissions. APITokenHash is a bcrypt
	// hash of the token and takes precedence when set.
	APIToken     string `yaml:"api_token"`
	APITokenHash string `yaml:"api_token_hash"`

	// DatabasePath is the SQLite file holding highscores
	DatabasePath string `yaml:"database_path"`

	// LeaderboardSpan is how many entries each leaderboard keeps
	LeaderboardSpan int `yaml:"leaderboard_span"`

	// TournamentStart is the unix time week zero begins
	TournamentStart int64 `yaml:"tournament_start"`

	// MaxRoomSize caps how many joiners a multiplayer room accepts
	MaxRoomSize int `yaml:"max_room_size"`

	// AllowedOrigins lists websocket origins. Empty allows any.
	AllowedOrigins []string `yaml:"allowed_origins"`

	// ICE servers handed to multiplayer clients
	STUNServer string `yaml:"stun_server"`
	TURNServer string `yaml:"turn_server"`
	TURNUser   string `yaml:"turn_username"`
	TURNPass   string `yaml:"turn_password"`

	LogLevel string `yaml:"log_level"`
}

// Options carries CLI flag overrides. Zero values mean "not set".
type Options struct {
	ConfigPath      string
	ListenAddr      string
	APIToken        string
	DatabasePath    string
	LeaderboardSpan int
	TournamentStart int64
	MaxRoomSize     int
	STUNServer      string
	TURNServer      string
	TURNUser        string
	TURNPass        string
	LogLevel        string
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		ListenAddr:      DefaultListenAddr,
		DatabasePath:    DefaultDatabasePath,
		LeaderboardSpan: DefaultLeaderboardSpan,
		MaxRoomSize:     DefaultMaxRoomSize,
		STUNServer:      DefaultSTUN,
		LogLevel:        DefaultLogLevel,
	}
}

// Load reads configuration with the following priority:
// 1. CLI flags (passed via Options) - highest priority
// 2. Environment variables (BOLA_*)
// 3. YAML file from Options.ConfigPath or BOLA_CONFIG
// 4. Defaults - lowest priority
func Load(opts Options) (*Config, error) {
	cfg := Default()

	path := opts.ConfigPath
	if path == "" {
		path = os.Getenv("BOLA_CONFIG")
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyOptions(opts)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, c)
}

func (c *Config) applyEnv() error {
	setString(&c.ListenAddr, "BOLA_LISTEN_ADDR")
	setString(&c.APIToken, "BOLA_API_TOKEN")
	setString(&c.APITokenHash, "BOLA_API_TOKEN_HASH")
	setString(&c.DatabasePath, "BOLA_DATABASE_PATH")
	setString(&c.STUNServer, "BOLA_STUN_SERVER")
	setString(&c.TURNServer, "BOLA_TURN_SERVER")
	setString(&c.TURNUser, "BOLA_TURN_USERNAME")
	setString(&c.TURNPass, "BOLA_TURN_PASSWORD")
	setString(&c.LogLevel, "BOLA_LOG_LEVEL")

	if v, ok := os.LookupEnv("BOLA_ALLOWED_ORIGINS"); ok && v != "" {
		c.AllowedOrigins = strings.Split(v, ",")
	}

	var errs []error
	errs = append(errs, setInt(&c.LeaderboardSpan, "BOLA_LEADERBOARD_SPAN"))
	errs = append(errs, setInt(&c.MaxRoomSize, "BOLA_MAX_ROOM_SIZE"))
	if v, ok := os.LookupEnv("BOLA_TOURNAMENT_START"); ok && v != "" {
		start, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("BOLA_TOURNAMENT_START: %w", err))
		}
		c.TournamentStart = start
	}
	return errors.Join(errs...)
}

func (c *Config) applyOptions(opts Options) {
	if opts.ListenAddr != "" {
		c.ListenAddr = opts.ListenAddr
	}
	if opts.APIToken != "" {
		c.APIToken = opts.APIToken
	}
	if opts.DatabasePath != "" {
		c.DatabasePath = opts.DatabasePath
	}
	if opts.LeaderboardSpan != 0 {
		c.LeaderboardSpan = opts.LeaderboardSpan
	}
	if opts.TournamentStart != 0 {
		c.TournamentStart = opts.TournamentStart
	}
	if opts.MaxRoomSize != 0 {
		c.MaxRoomSize = opts.MaxRoomSize
	}
	if opts.STUNServer != "" {
		c.STUNServer = opts.STUNServer
	}
	if opts.TURNServer != "" {
		c.TURNServer = opts.TURNServer
	}
	if opts.TURNUser != "" {
		c.TURNUser = opts.TURNUser
	}
	if opts.TURNPass != "" {
		c.TURNPass = opts.TURNPass
	}
	if opts.LogLevel != "" {
		c.LogLevel = opts.LogLevel
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error
	if c.ListenAddr == "" {
		errs = append(errs, errors.New("listen_addr is required"))
	}
	if c.DatabasePath == "" {
		errs = append(errs, errors.New("database_path is required"))
	}
	if c.LeaderboardSpan < 1 {
		errs = append(errs, fmt.Errorf("leaderboard_span must be positive, got %d", c.LeaderboardSpan))
	}
	if c.MaxRoomSize < 1 {
		errs = append(errs, fmt.Errorf("max_room_size must be positive, got %d", c.MaxRoomSize))
	}
	return errors.Join(errs...)
}

// TournamentStartTime returns the start of tournament week zero.
func (c *Config) TournamentStartTime() time.Time {
	return time.Unix(c.TournamentStart, 0)
}

// GetTURNServers returns TURN server URLs if configured
func (c *Config) GetTURNServers() []string {
	if c.TURNServer == "" {
		return nil
	}
	host := strings.TrimPrefix(c.TURNServer, "turn:")
	return []string{
		fmt.Sprintf("turn:%s:3478?transport=udp", host),
		fmt.Sprintf("turn:%s:3478?transport=tcp", host),
		fmt.Sprintf("turns:%s:5349?transport=tcp", host),
	}
}

// ICEServers returns the ICE servers advertised to multiplayer clients.
func (c *Config) ICEServers() []webrtc.ICEServer {
	var servers []webrtc.ICEServer
	if c.STUNServer != "" {
		servers = append(servers, webrtc.ICEServer{URLs: []string{c.STUNServer}})
	}
	if turn := c.GetTURNServers(); turn != nil {
		servers = append(servers, webrtc.ICEServer{
			URLs:           turn,
			Username:       c.TURNUser,
			Credential:     c.TURNPass,
			CredentialType: webrtc.ICECredentialTypePassword,
		})
	}
	return servers
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

// Client holds the operator CLI configuration
type Client struct {
	// ServerURL is the HTTP base URL of the bola server
	ServerURL string

	// WebSocketURL is constructed from ServerURL
	WebSocketURL string
}

// LoadClient resolves the server URL: flag > BOLA_SERVER > default.
func LoadClient(serverURL string) (*Client, error) {
	if serverURL == "" {
		serverURL = os.Getenv("BOLA_SERVER")
	}
	if serverURL == "" {
		serverURL = DefaultServerURL
	}

	u, err := url.Parse(strings.TrimRight(serverURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing server url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return nil, fmt.Errorf("server url %q must be http or https", serverURL)
	}

	return &Client{
		ServerURL:    strings.TrimRight(serverURL, "/"),
		WebSocketURL: u.String(),
	}, nil
}
