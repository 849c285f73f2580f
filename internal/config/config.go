package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/spf13/viper"

	"deathteller/skull/internal/controller"
	"deathteller/skull/internal/log"
)

const DefaultConfigFile = "/config.txt"

type Config struct {
	Server struct {
		HTTPAddr string
		GRPCAddr string
		LogLevel string
	}
	Device struct {
		FingerDetectMs int
		FingerWaitMs   int
		SnapDelayMinMs int
		SnapDelayMaxMs int
		CooldownMs     int
		CapThreshold   float64
		TickMs         int
	}
	Audio struct {
		Root               string
		WelcomeDir         string
		FingerPromptDir    string
		FingerSnapDir      string
		NoFingerDir        string
		FortunePreambleDir string
		FortuneDoneDir     string
		PlayerCmd          string
		SimClipMs          int
	}
	Fortune struct {
		Root       string
		Candidates []string
	}
	Printer struct {
		Device  string
		Baud    int
		Columns int
	}
	Lights struct {
		MouthBright   int
		PulseMin      int
		PulseMax      int
		PulsePeriodMs int
		BlinkOnMs     int
		BlinkOffMs    int
	}
	Peer struct {
		TokenSecret   string
		TokenSkewSecs int
		TokenTTLMin   int
	}
	Journal struct {
		Path string
	}
	// ConfigFile is the device key=value file that was read, if any.
	ConfigFile string
}

// Load reads defaults, the device config file and the environment.
// The file path comes from SKULL_CONFIG_FILE and defaults to /config.txt.
func Load() Config {
	v := viper.New()
	v.BindEnv("config_file", "SKULL_CONFIG_FILE")
	v.SetDefault("config_file", DefaultConfigFile)
	return load(v, v.GetString("config_file"))
}

// LoadFrom is Load with an explicit device config file.
func LoadFrom(path string) Config {
	return load(viper.New(), path)
}

func load(v *viper.Viper, path string) Config {
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("server.grpc_addr", ":9090")
	v.SetDefault("server.log_level", "info")

	// Device keys are flat so they match the key=value file on the SD card.
	v.SetDefault("finger_detect_ms", 120)
	v.SetDefault("finger_wait_ms", 6000)
	v.SetDefault("snap_delay_min_ms", 1000)
	v.SetDefault("snap_delay_max_ms", 3000)
	v.SetDefault("cooldown_ms", 12000)
	v.SetDefault("cap_threshold", 0.002)
	v.SetDefault("tick_ms", 20)

	v.SetDefault("audio_root", ".")
	v.SetDefault("audio_welcome_dir", controller.DefaultWelcomeDir)
	v.SetDefault("audio_finger_prompt_dir", controller.DefaultFingerPromptDir)
	v.SetDefault("audio_finger_snap_dir", controller.DefaultFingerSnapDir)
	v.SetDefault("audio_no_finger_dir", controller.DefaultNoFingerDir)
	v.SetDefault("audio_fortune_preamble_dir", controller.DefaultFortunePreambleDir)
	v.SetDefault("audio_fortune_done_dir", controller.DefaultFortuneDoneDir)
	v.SetDefault("audio_sim_clip_ms", 1500)

	v.SetDefault("fortunes_root", "")
	v.SetDefault("fortunes_json", "/printer/fortunes_littlekid.json")

	v.SetDefault("printer_baud", 9600)
	v.SetDefault("printer_columns", 32)

	v.SetDefault("mouth_led_bright", 255)
	v.SetDefault("mouth_led_pulse_min", 40)
	v.SetDefault("mouth_led_pulse_max", 255)
	v.SetDefault("mouth_led_pulse_period_ms", 1500)
	v.SetDefault("mouth_blink_on_ms", 120)
	v.SetDefault("mouth_blink_off_ms", 120)

	v.SetDefault("peer.token_skew_secs", 60)
	v.SetDefault("peer.token_ttl_min", 720)

	v.SetDefault("journal.path", "skull.db")

	// Map envs
	v.BindEnv("server.http_addr", "HTTP_ADDR")
	v.BindEnv("server.grpc_addr", "GRPC_ADDR")
	v.BindEnv("server.log_level", "LOG_LEVEL")

	v.BindEnv("tick_ms", "TICK_MS")
	v.BindEnv("audio_root", "AUDIO_ROOT")
	v.BindEnv("audio_player_cmd", "AUDIO_PLAYER_CMD")
	v.BindEnv("audio_sim_clip_ms", "AUDIO_SIM_CLIP_MS")
	v.BindEnv("fortunes_root", "FORTUNES_ROOT")
	v.BindEnv("fortunes_json", "FORTUNES_JSON")
	v.BindEnv("printer_device", "PRINTER_DEVICE")
	v.BindEnv("printer_columns", "PRINTER_COLUMNS")

	v.BindEnv("peer.token_secret", "PEER_TOKEN_SECRET")
	v.BindEnv("peer.token_skew_secs", "PEER_TOKEN_SKEW_SECS")
	v.BindEnv("peer.token_ttl_min", "PEER_TOKEN_TTL_MIN")

	v.BindEnv("journal.path", "JOURNAL_PATH")

	var c Config
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("properties")
		err := v.ReadInConfig()
		switch {
		case err == nil:
			c.ConfigFile = path
		case errors.Is(err, fs.ErrNotExist):
			log.Debug("device config file not found", "path", path)
		default:
			log.Warn("device config file unreadable", "path", path, "error", err)
		}
	}

	c.Server.HTTPAddr = v.GetString("server.http_addr")
	c.Server.GRPCAddr = v.GetString("server.grpc_addr")
	c.Server.LogLevel = v.GetString("server.log_level")

	c.Device.FingerDetectMs = v.GetInt("finger_detect_ms")
	c.Device.FingerWaitMs = v.GetInt("finger_wait_ms")
	c.Device.SnapDelayMinMs = v.GetInt("snap_delay_min_ms")
	c.Device.SnapDelayMaxMs = v.GetInt("snap_delay_max_ms")
	c.Device.CooldownMs = v.GetInt("cooldown_ms")
	c.Device.CapThreshold = v.GetFloat64("cap_threshold")
	c.Device.TickMs = v.GetInt("tick_ms")

	c.Audio.Root = v.GetString("audio_root")
	c.Audio.WelcomeDir = v.GetString("audio_welcome_dir")
	c.Audio.FingerPromptDir = v.GetString("audio_finger_prompt_dir")
	c.Audio.FingerSnapDir = v.GetString("audio_finger_snap_dir")
	c.Audio.NoFingerDir = v.GetString("audio_no_finger_dir")
	c.Audio.FortunePreambleDir = v.GetString("audio_fortune_preamble_dir")
	c.Audio.FortuneDoneDir = v.GetString("audio_fortune_done_dir")
	c.Audio.PlayerCmd = v.GetString("audio_player_cmd")
	c.Audio.SimClipMs = v.GetInt("audio_sim_clip_ms")

	c.Fortune.Root = v.GetString("fortunes_root")
	c.Fortune.Candidates = candidates(v.GetString("fortunes_json"))

	c.Printer.Device = v.GetString("printer_device")
	c.Printer.Baud = v.GetInt("printer_baud")
	c.Printer.Columns = v.GetInt("printer_columns")

	c.Lights.MouthBright = v.GetInt("mouth_led_bright")
	c.Lights.PulseMin = v.GetInt("mouth_led_pulse_min")
	c.Lights.PulseMax = v.GetInt("mouth_led_pulse_max")
	c.Lights.PulsePeriodMs = v.GetInt("mouth_led_pulse_period_ms")
	c.Lights.BlinkOnMs = v.GetInt("mouth_blink_on_ms")
	c.Lights.BlinkOffMs = v.GetInt("mouth_blink_off_ms")

	c.Peer.TokenSecret = v.GetString("peer.token_secret")
	c.Peer.TokenSkewSecs = v.GetInt("peer.token_skew_secs")
	c.Peer.TokenTTLMin = v.GetInt("peer.token_ttl_min")

	c.Journal.Path = v.GetString("journal.path")

	c.validate()
	log.Info("config loaded", "http_addr", c.Server.HTTPAddr, "config_file", c.ConfigFile,
		"finger_wait_ms", c.Device.FingerWaitMs, "cooldown_ms", c.Device.CooldownMs)
	return c
}

// validate replaces out-of-range device values with their defaults.
func (c *Config) validate() {
	d := &c.Device
	if d.FingerDetectMs < 30 || d.FingerDetectMs > 1000 {
		warnRange("finger_detect_ms", d.FingerDetectMs, 120)
		d.FingerDetectMs = 120
	}
	if d.FingerWaitMs < 1000 {
		warnRange("finger_wait_ms", d.FingerWaitMs, 6000)
		d.FingerWaitMs = 6000
	}
	rawMin, rawMax := d.SnapDelayMinMs, d.SnapDelayMaxMs
	if rawMin >= rawMax || rawMin < 100 {
		warnRange("snap_delay_min_ms", rawMin, 1000)
		d.SnapDelayMinMs = 1000
	}
	if rawMax <= rawMin || rawMax > 10000 {
		warnRange("snap_delay_max_ms", rawMax, 3000)
		d.SnapDelayMaxMs = 3000
	}
	if d.CooldownMs < 5000 {
		warnRange("cooldown_ms", d.CooldownMs, 12000)
		d.CooldownMs = 12000
	}
	if d.TickMs <= 0 {
		d.TickMs = 20
	}
	if !standardBauds[c.Printer.Baud] {
		warnRange("printer_baud", c.Printer.Baud, 9600)
		c.Printer.Baud = 9600
	}
	if c.Printer.Columns <= 0 {
		c.Printer.Columns = 32
	}
	c.Lights.MouthBright = clamp8(c.Lights.MouthBright)
	c.Lights.PulseMin = clamp8(c.Lights.PulseMin)
	c.Lights.PulseMax = clamp8(c.Lights.PulseMax)
	if c.Lights.PulsePeriodMs < 200 {
		c.Lights.PulsePeriodMs = 1500
	}
}

// Snapshot converts the loaded configuration into controller input.
func (c Config) Snapshot() controller.ConfigSnapshot {
	return controller.ConfigSnapshot{
		WelcomeDir:                c.Audio.WelcomeDir,
		FingerPromptDir:           c.Audio.FingerPromptDir,
		FingerSnapDir:             c.Audio.FingerSnapDir,
		NoFingerDir:               c.Audio.NoFingerDir,
		FortunePreambleDir:        c.Audio.FortunePreambleDir,
		FortuneDoneDir:            c.Audio.FortuneDoneDir,
		FortuneTemplateCandidates: append([]string(nil), c.Fortune.Candidates...),
		FingerStableMs:            uint32(c.Device.FingerDetectMs),
		FingerWaitMs:              uint32(c.Device.FingerWaitMs),
		SnapDelayMinMs:            uint32(c.Device.SnapDelayMinMs),
		SnapDelayMaxMs:            uint32(c.Device.SnapDelayMaxMs),
		CooldownMs:                uint32(c.Device.CooldownMs),
	}
}

// AudioDirs lists the configured clip directories in sequence order.
func (c Config) AudioDirs() []string {
	return []string{
		c.Audio.WelcomeDir, c.Audio.FingerPromptDir, c.Audio.FingerSnapDir,
		c.Audio.NoFingerDir, c.Audio.FortunePreambleDir, c.Audio.FortuneDoneDir,
	}
}

// candidates splits a comma separated list and always keeps the stock
// template file as the last resort.
func candidates(raw string) []string {
	var out []string
	seen := map[string]bool{}
	for _, p := range strings.Split(raw+","+controller.DefaultFortuneTemplates, ",") {
		p = strings.TrimSpace(p)
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

// standardBauds are the line speeds a serial printer can be set to.
var standardBauds = map[int]bool{
	1200: true, 2400: true, 4800: true, 9600: true,
	19200: true, 38400: true, 57600: true, 115200: true,
}

func warnRange(key string, got, def int) {
	log.Warn("config value out of range; using default", "key", key, "value", got, "default", def)
}

func clamp8(v int) int { return min(max(v, 0), 255) }

func (c Config) String() string {
	return fmt.Sprintf("http=%s grpc=%s audio_root=%s printer=%q journal=%s",
		c.Server.HTTPAddr, c.Server.GRPCAddr, c.Audio.Root, c.Printer.Device, c.Journal.Path)
}
