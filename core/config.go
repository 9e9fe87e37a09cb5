package core

import (
	"fmt"
	"log"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	Config struct {
		Debug            bool
		TestMode         bool
		Env              string // DEV (default), TEST, QA, PROD
		AppName          string
		SecretKey        string
		WorkDir          string
		Build            string
		FrontendBaseURL  string
		DefaultFromEmail mail.Address

		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration

		// FastEvalThresholdSeconds is the default cutoff below which a
		// submission counts as a "fast" (rushed) evaluation.
		FastEvalThresholdSeconds int

		Server   ServerConfig
		Database DatabaseConfig

		SendgridAPIKey string
		RollbarToken   string
	}

	ServerConfig struct {
		Host string
		Port int
	}

	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          int
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}
)

func (c ServerConfig) Address() string   { return fmt.Sprintf("%s:%d", c.Host, c.Port) }
func (c DatabaseConfig) Address() string { return fmt.Sprintf("%s:%d", c.Host, c.Port) }

// NewConfig loads configuration from the environment with sane DEV defaults.
// A config/.env.<env> file is loaded first if it exists.
func NewConfig(workDir string) *Config {
	conf := viper.New()
	conf.SetTypeByDefaultValue(true)

	// defaults
	conf.SetDefault("debug", true)
	conf.SetDefault("appName", "InsightLab")
	conf.SetDefault("secretKey", "o7y$3x+a01)z&b^#p9m(4qv!k2le8s5c_ju6wfd*hgnrt-i%")
	conf.SetDefault("frontendBaseURL", "http://localhost:3000")
	conf.SetDefault("defaultFromEmail", "noreply@localhost")
	conf.SetDefault("jwtExpirationDelta", 7*24*time.Hour)
	conf.SetDefault("jwtRefreshExpirationDelta", 4*time.Hour)
	conf.SetDefault("fastEvalThresholdSeconds", 20)
	conf.SetDefault("serverHost", "")
	conf.SetDefault("serverPort", 8000)
	conf.SetDefault("dbEngine", "postgres")
	conf.SetDefault("dbHost", "localhost")
	conf.SetDefault("dbPort", 5432)
	conf.SetDefault("dbName", "insightlab")
	conf.SetDefault("dbUser", "insightlab")
	conf.SetDefault("dbPassword", "")
	conf.SetDefault("dbDisableTLS", true)

	env := strings.ToUpper(os.Getenv("ENV"))
	if env == "" {
		env = "DEV"
	}
	conf.SetEnvPrefix(env)

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(workDir, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	conf.AutomaticEnv()

	return &Config{
		Debug:            conf.GetBool("debug"),
		TestMode:         env == "TEST",
		Env:              env,
		AppName:          conf.GetString("appName"),
		SecretKey:        conf.GetString("secretKey"),
		WorkDir:          workDir,
		Build:            conf.GetString("build"),
		FrontendBaseURL:  conf.GetString("frontendBaseURL"),
		DefaultFromEmail: mail.Address{Name: conf.GetString("appName"), Address: conf.GetString("defaultFromEmail")},

		JWTExpirationDelta:        conf.GetDuration("jwtExpirationDelta"),
		JWTRefreshExpirationDelta: conf.GetDuration("jwtRefreshExpirationDelta"),
		FastEvalThresholdSeconds:  conf.GetInt("fastEvalThresholdSeconds"),

		Server: ServerConfig{
			Host: conf.GetString("serverHost"),
			Port: conf.GetInt("serverPort"),
		},
		Database: DatabaseConfig{
			Engine:        conf.GetString("dbEngine"),
			Host:          conf.GetString("dbHost"),
			Port:          conf.GetInt("dbPort"),
			Name:          conf.GetString("dbName"),
			User:          conf.GetString("dbUser"),
			Password:      conf.GetString("dbPassword"),
			AdminUser:     conf.GetString("dbAdminUser"),
			AdminPassword: conf.GetString("dbAdminPassword"),
			DisableTLS:    conf.GetBool("dbDisableTLS"),
		},

		SendgridAPIKey: conf.GetString("sendgridApiKey"),
		RollbarToken:   conf.GetString("rollbarToken"),
	}
}
