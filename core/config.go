package core

import (
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	Config struct {
		AppName      string
		Env          string // DEV (local; default), TEST, QA, PROD
		Debug        bool
		TestMode     bool
		Build        string
		SecretKey    string
		RollbarToken string

		Server     ServerConfig
		Database   DatabaseConfig
		Redis      RedisConfig
		Scheduling SchedulingConfig
	}

	ServerConfig struct {
		Host               string
		Address            string
		DebugHost          string
		ShutdownTimeout    time.Duration
		JWTExpirationDelta time.Duration
	}

	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	// RedisConfig configures the distributed scheduling locks.
	// An empty Address means locks are held in-process.
	RedisConfig struct {
		Address  string
		Password string
		DB       int
		LockTTL  time.Duration
	}

	SchedulingConfig struct {
		CreateTimeout time.Duration
		LockWait      time.Duration
		Location      string
		SweepSpec     string
		SweepEnabled  bool
	}
)

func (dbc DatabaseConfig) Address() string {
	return net.JoinHostPort(dbc.Host, dbc.Port)
}

// TimeLocation returns the location used to decide what "today" is. Falls back to UTC.
func (sc SchedulingConfig) TimeLocation() *time.Location {
	if sc.Location == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(sc.Location)
	if err != nil {
		return time.UTC
	}
	return loc
}

func NewConfig() *Config {
	v := viper.New()

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("appName", "DMS")
	v.SetDefault("debug", true)
	v.SetDefault("testMode", false)
	v.SetDefault("build", "develop")
	v.SetDefault("secretKey", "f8#k2m!q9z$w1x@e7r*t5y(u3i)o0p-a")
	v.SetDefault("rollbarToken", "")

	v.SetDefault("serverHost", "localhost")
	v.SetDefault("serverAddress", ":8000")
	v.SetDefault("serverDebugHost", ":4000")
	v.SetDefault("serverShutdownTimeout", 5*time.Second)
	v.SetDefault("jwtExpirationDelta", 7*24*time.Hour)

	v.SetDefault("dbEngine", "postgres")
	v.SetDefault("dbHost", "localhost")
	v.SetDefault("dbPort", "5432")
	v.SetDefault("dbName", "dms")
	v.SetDefault("dbUser", "dms")
	v.SetDefault("dbPassword", "dms")
	v.SetDefault("dbAdminUser", "postgres")
	v.SetDefault("dbAdminPassword", "")
	v.SetDefault("dbDisableTLS", true)

	v.SetDefault("redisAddress", "")
	v.SetDefault("redisPassword", "")
	v.SetDefault("redisDB", 0)
	v.SetDefault("redisLockTTL", 30*time.Second)

	v.SetDefault("scheduleCreateTimeout", 10*time.Second)
	v.SetDefault("scheduleLockWait", 5*time.Second)
	v.SetDefault("scheduleLocation", "UTC")
	v.SetDefault("scheduleSweepSpec", "0 0 * * * *") // hourly
	v.SetDefault("scheduleSweepEnabled", true)

	env := strings.ToUpper(os.Getenv("ENV"))
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(Getwd(), "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	return &Config{
		AppName:      v.GetString("appName"),
		Env:          env,
		Debug:        v.GetBool("debug"),
		TestMode:     v.GetBool("testMode"),
		Build:        v.GetString("build"),
		SecretKey:    v.GetString("secretKey"),
		RollbarToken: v.GetString("rollbarToken"),
		Server: ServerConfig{
			Host:               v.GetString("serverHost"),
			Address:            v.GetString("serverAddress"),
			DebugHost:          v.GetString("serverDebugHost"),
			ShutdownTimeout:    v.GetDuration("serverShutdownTimeout"),
			JWTExpirationDelta: v.GetDuration("jwtExpirationDelta"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("dbEngine"),
			Host:          v.GetString("dbHost"),
			Port:          v.GetString("dbPort"),
			Name:          v.GetString("dbName"),
			User:          v.GetString("dbUser"),
			Password:      v.GetString("dbPassword"),
			AdminUser:     v.GetString("dbAdminUser"),
			AdminPassword: v.GetString("dbAdminPassword"),
			DisableTLS:    v.GetBool("dbDisableTLS"),
		},
		Redis: RedisConfig{
			Address:  v.GetString("redisAddress"),
			Password: v.GetString("redisPassword"),
			DB:       v.GetInt("redisDB"),
			LockTTL:  v.GetDuration("redisLockTTL"),
		},
		Scheduling: SchedulingConfig{
			CreateTimeout: v.GetDuration("scheduleCreateTimeout"),
			LockWait:      v.GetDuration("scheduleLockWait"),
			Location:      v.GetString("scheduleLocation"),
			SweepSpec:     v.GetString("scheduleSweepSpec"),
			SweepEnabled:  v.GetBool("scheduleSweepEnabled"),
		},
	}
}

func (c *Config) String() string {
	return fmt.Sprintf("%s [%s] build=%s debug=%v", c.AppName, c.Env, c.Build, c.Debug)
}
