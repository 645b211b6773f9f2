// Package config collects the daemon configuration from command line
// flags, an optional YAML configuration file and the platform
// environment variables. Flag values win over file values, file values
// win over environment defaults.
package config

import (
	"flag"
	"fmt"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"

	bluegreen "github.com/vercel-solutions/blue-green-deployments-vercel-3"
	"github.com/vercel-solutions/blue-green-deployments-vercel-3/routing"
)

const (
	// Environment variables supplying the process-wide deployment
	// facts and the store binding.
	envMode            = "VERCEL_ENV"
	envServingHost     = "VERCEL_URL"
	envProductionHost  = "VERCEL_PROJECT_PRODUCTION_URL"
	envDeploymentID    = "VERCEL_DEPLOYMENT_ID"
	envBypassSecret    = "VERCEL_AUTOMATION_BYPASS_SECRET"
	envEdgeConfigURL   = "EDGE_CONFIG"
	envEdgeConfigToken = "EDGE_CONFIG_TOKEN"
	envRedisPassword   = "REDIS_PASSWORD"
)

type Config struct {
	ConfigFile string
	Flags      *flag.FlagSet

	// generic:
	Address          string        `yaml:"address"`
	ApplicationURL   string        `yaml:"application-url"`
	MetricsListener  string        `yaml:"metrics-listener"`
	RuntimeMetrics   bool          `yaml:"runtime-metrics"`
	ExcludedPrefixes *listFlag     `yaml:"excluded-prefixes"`
	ForwardTimeout   time.Duration `yaml:"forward-timeout"`

	// logging:
	ApplicationLogPrefix      string `yaml:"application-log-prefix"`
	ApplicationLogLevelString string `yaml:"application-log-level"`
	ApplicationLogJSONEnabled bool   `yaml:"application-log-json-enabled"`

	// configuration store:
	EdgeConfigURL   string `yaml:"edge-config-url"`
	EdgeConfigToken string `yaml:"edge-config-token"`
	RedisAddr       string `yaml:"redis-addr"`
	RedisPassword   string `yaml:"redis-password"`
	RedisDB         int    `yaml:"redis-db"`

	// deployment environment:
	Mode           string `yaml:"mode"`
	ServingHost    string `yaml:"serving-host"`
	ProductionHost string `yaml:"production-host"`
	DeploymentID   string `yaml:"deployment-id"`
	BypassSecret   string `yaml:"bypass-secret"`

	ApplicationLogLevel log.Level `yaml:"-"`
}

// DefaultExcludedPrefixes are the platform-reserved path prefixes
// dispatched straight to the application, upstream of the routing
// logic.
var DefaultExcludedPrefixes = []string{"/api/", "/_next/static/", "/_next/image/", "/favicon.ico"}

func NewConfig() *Config {
	cfg := new(Config)
	cfg.ExcludedPrefixes = commaListFlag().withDefault(DefaultExcludedPrefixes...)

	flag := flag.NewFlagSet("", flag.ExitOnError)
	flag.StringVar(&cfg.ConfigFile, "config-file", "", "if provided the flags will be loaded/overwritten by the values on the file (yaml)")

	// generic:
	flag.StringVar(&cfg.Address, "address", ":9090", "network address that the router should listen on")
	flag.StringVar(&cfg.ApplicationURL, "application-url", "http://127.0.0.1:3000", "base URL of the local application origin served behind the router")
	flag.StringVar(&cfg.MetricsListener, "metrics-listener", ":9911", "network address used for exposing the /metrics endpoint, an empty value disables it")
	flag.BoolVar(&cfg.RuntimeMetrics, "runtime-metrics", false, "enable Go runtime and process metrics")
	flag.Var(cfg.ExcludedPrefixes, "excluded-prefixes", "comma separated list of path prefixes dispatched to the application without routing")
	flag.DurationVar(&cfg.ForwardTimeout, "forward-timeout", 30*time.Second, "timeout of the cross-deployment forward")

	// logging:
	flag.StringVar(&cfg.ApplicationLogPrefix, "application-log-prefix", "", "prefix for application log entries")
	flag.StringVar(&cfg.ApplicationLogLevelString, "application-log-level", "INFO", "log level for the application log, possible values: PANIC, FATAL, ERROR, WARN, INFO, DEBUG")
	flag.BoolVar(&cfg.ApplicationLogJSONEnabled, "application-log-json-enabled", false, "when this flag is set, log in JSON format is used")

	// configuration store:
	flag.StringVar(&cfg.EdgeConfigURL, "edge-config-url", "", "base URL of the edge config endpoint holding the blue/green configuration, when unset routing is disabled unless a Redis address is given")
	flag.StringVar(&cfg.EdgeConfigToken, "edge-config-token", "", "bearer token for the edge config endpoint")
	flag.StringVar(&cfg.RedisAddr, "redis-addr", "", "host:port of a Redis instance holding the blue/green configuration")
	flag.StringVar(&cfg.RedisPassword, "redis-password", "", "password of the Redis instance")
	flag.IntVar(&cfg.RedisDB, "redis-db", 0, "Redis database holding the blue/green configuration")

	// deployment environment:
	flag.StringVar(&cfg.Mode, "mode", "", "runtime mode of this instance, routing requires 'production'")
	flag.StringVar(&cfg.ServingHost, "serving-host", "", "deployment hostname of this instance")
	flag.StringVar(&cfg.ProductionHost, "production-host", "", "canonical production hostname whose traffic is split")
	flag.StringVar(&cfg.DeploymentID, "deployment-id", "", "release identifier of this instance, matching one of the configured variant ids")
	flag.StringVar(&cfg.BypassSecret, "bypass-secret", "", "secret authorizing forwarded requests to skip platform protection")

	cfg.Flags = flag
	return cfg
}

func (c *Config) Parse() error {
	return c.ParseArgs(os.Args[0], os.Args[1:])
}

func (c *Config) ParseArgs(progname string, args []string) error {
	c.Flags.Init(progname, flag.ExitOnError)
	err := c.Flags.Parse(args)
	if err != nil {
		return err
	}

	// check if arguments were correctly parsed.
	if len(c.Flags.Args()) != 0 {
		return fmt.Errorf("invalid arguments: %s", c.Flags.Args())
	}

	if c.ConfigFile != "" {
		yamlFile, err := os.ReadFile(c.ConfigFile)
		if err != nil {
			return fmt.Errorf("invalid config file: %w", err)
		}

		err = yaml.Unmarshal(yamlFile, c)
		if err != nil {
			return fmt.Errorf("unmarshalling config file error: %w", err)
		}

		err = c.Flags.Parse(args)
		if err != nil {
			return err
		}
	}

	c.parseEnv()

	level, err := log.ParseLevel(c.ApplicationLogLevelString)
	if err != nil {
		return err
	}

	c.ApplicationLogLevel = level
	return nil
}

// parseEnv fills values not set earlier (flags or configuration file)
// from the platform environment variables.
func (c *Config) parseEnv() {
	setIfEmpty := func(value *string, env string) {
		if *value == "" {
			*value = os.Getenv(env)
		}
	}

	setIfEmpty(&c.Mode, envMode)
	setIfEmpty(&c.ServingHost, envServingHost)
	setIfEmpty(&c.ProductionHost, envProductionHost)
	setIfEmpty(&c.DeploymentID, envDeploymentID)
	setIfEmpty(&c.BypassSecret, envBypassSecret)
	setIfEmpty(&c.EdgeConfigURL, envEdgeConfigURL)
	setIfEmpty(&c.EdgeConfigToken, envEdgeConfigToken)
	setIfEmpty(&c.RedisPassword, envRedisPassword)
}

// ToOptions maps the parsed configuration to the daemon options.
func (c *Config) ToOptions() bluegreen.Options {
	return bluegreen.Options{
		Address:          c.Address,
		ApplicationURL:   c.ApplicationURL,
		MetricsListener:  c.MetricsListener,
		RuntimeMetrics:   c.RuntimeMetrics,
		ExcludedPrefixes: c.ExcludedPrefixes.Values(),
		ForwardTimeout:   c.ForwardTimeout,

		ApplicationLogPrefix:      c.ApplicationLogPrefix,
		ApplicationLogLevel:       c.ApplicationLogLevelString,
		ApplicationLogJSONEnabled: c.ApplicationLogJSONEnabled,

		EdgeConfigURL:   c.EdgeConfigURL,
		EdgeConfigToken: c.EdgeConfigToken,
		RedisAddr:       c.RedisAddr,
		RedisPassword:   c.RedisPassword,
		RedisDB:         c.RedisDB,

		Environment: c.Environment(),
	}
}

// Environment returns the process-wide deployment facts injected into
// the router.
func (c *Config) Environment() routing.Environment {
	return routing.Environment{
		Mode:           c.Mode,
		ServingHost:    c.ServingHost,
		ProductionHost: c.ProductionHost,
		DeploymentID:   c.DeploymentID,
		BypassSecret:   c.BypassSecret,
	}
}
