package config

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/Alturino/foodorder/internal/log"
)

type Application struct {
	Env     string `mapstructure:"env"      json:"env"`
	Host    string `mapstructure:"host"     json:"host"`
	LogFile string `mapstructure:"log_file" json:"log_file"`
	Port    int    `mapstructure:"port"     json:"port"`
}

type Database struct {
	Name           string `mapstructure:"name"            json:"name"`
	Host           string `mapstructure:"host"            json:"host"`
	MigrationPath  string `mapstructure:"migration_path"  json:"migration_path"`
	Password       string `mapstructure:"password"        json:"-"`
	TimeZone       string `mapstructure:"timezone"        json:"timezone"`
	Username       string `mapstructure:"username"        json:"username"`
	MaxConnections int    `mapstructure:"max_connections" json:"max_connections"`
	MinConnections int    `mapstructure:"min_connections" json:"min_connections"`
	Port           uint16 `mapstructure:"port"            json:"port"`
}

type Cache struct {
	Host     string `mapstructure:"host"     json:"host"`
	Password string `mapstructure:"password" json:"-"`
	Database int    `mapstructure:"database" json:"database"`
	Port     uint16 `mapstructure:"port"     json:"port"`
}

type Otel struct {
	Host string `mapstructure:"host" json:"host"`
	Port int    `mapstructure:"port" json:"port"`
}

type Pricing struct {
	Currency                 string `mapstructure:"currency"                   json:"currency"`
	Locale                   string `mapstructure:"locale"                     json:"locale"`
	DeliveryFee              int64  `mapstructure:"delivery_fee"               json:"delivery_fee"`
	TaxRate                  string `mapstructure:"tax_rate"                   json:"tax_rate"`
	EstimatedDeliveryMinutes int    `mapstructure:"estimated_delivery_minutes" json:"estimated_delivery_minutes"`
}

type Auth struct {
	SecretKey string        `mapstructure:"secret_key" json:"-"`
	Issuer    string        `mapstructure:"issuer"     json:"issuer"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"  json:"token_ttl"`
}

type Catalog struct {
	URL     string        `mapstructure:"url"     json:"url"`
	Timeout time.Duration `mapstructure:"timeout" json:"timeout"`
}

type OrderService struct {
	URL     string        `mapstructure:"url"     json:"url"`
	Timeout time.Duration `mapstructure:"timeout" json:"timeout"`
}

type Broker struct {
	Kind     string `mapstructure:"kind"      json:"kind"`
	AmqpURL  string `mapstructure:"amqp_url"  json:"-"`
	Exchange string `mapstructure:"exchange"  json:"exchange"`
	Channel  string `mapstructure:"channel"   json:"channel"`
}

type Order struct {
	Store            string        `mapstructure:"store"             json:"store"`
	TransitionPolicy string        `mapstructure:"transition_policy" json:"transition_policy"`
	CacheTTL         time.Duration `mapstructure:"cache_ttl"         json:"cache_ttl"`
}

type Cart struct {
	TTL time.Duration `mapstructure:"ttl" json:"ttl"`
}

type Config struct {
	Database     `mapstructure:"db"            json:"db"`
	Cache        `mapstructure:"cache"         json:"cache"`
	Application  `mapstructure:"application"   json:"application"`
	Otel         `mapstructure:"otel"          json:"otel"`
	Pricing      `mapstructure:"pricing"       json:"pricing"`
	Auth         `mapstructure:"auth"          json:"auth"`
	Catalog      `mapstructure:"catalog"       json:"catalog"`
	OrderService `mapstructure:"order_service" json:"order_service"`
	Broker       `mapstructure:"broker"        json:"broker"`
	Order        `mapstructure:"order"         json:"order"`
	Cart         `mapstructure:"cart"          json:"cart"`
}

var (
	once   sync.Once
	config *Config
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("application.env", "development")
	v.SetDefault("application.host", "0.0.0.0")
	v.SetDefault("application.port", 8080)
	v.SetDefault("pricing.currency", "INR")
	v.SetDefault("pricing.locale", "en-IN")
	v.SetDefault("pricing.delivery_fee", 399)
	v.SetDefault("pricing.tax_rate", "0.10")
	v.SetDefault("pricing.estimated_delivery_minutes", 45)
	v.SetDefault("auth.issuer", "storefront-auth")
	v.SetDefault("auth.token_ttl", 30*time.Minute)
	v.SetDefault("catalog.timeout", 5*time.Second)
	v.SetDefault("order_service.timeout", 10*time.Second)
	v.SetDefault("broker.kind", "redis")
	v.SetDefault("broker.channel", "order-status-updated")
	v.SetDefault("broker.exchange", "order_status_fanout")
	v.SetDefault("order.store", "postgres")
	v.SetDefault("order.transition_policy", "permissive")
	v.SetDefault("order.cache_ttl", time.Hour)
	v.SetDefault("cart.ttl", 24*time.Hour)
}

// Get reads ./env/{filename}.yaml once; later calls return the cached config.
func Get(c context.Context, filename string) *Config {
	once.Do(func() {
		logger := zerolog.Ctx(c).
			With().
			Str(log.KeyTag, "config Get").
			Str(log.KeyProcess, "init config").
			Str("filename", filename).
			Logger()

		v := viper.New()
		v.SetConfigName(filename)
		v.AddConfigPath("./env")
		v.SetConfigType("yaml")
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		v.AutomaticEnv()
		setDefaults(v)

		logger = logger.With().Str(log.KeyProcess, "reading config").Logger()
		logger.Info().Msg("reading config")
		err := v.ReadInConfig()
		if err != nil {
			err = fmt.Errorf("error when reading config with error=%w", err)
			logger.Fatal().Err(err).Msg(err.Error())
		}
		logger.Info().Msg("read config")

		logger = logger.With().Str(log.KeyProcess, "unmarshaling config").Logger()
		logger.Info().Msg("unmarshaling config")
		cfg := Config{}
		err = v.Unmarshal(&cfg)
		if err != nil {
			err = fmt.Errorf("error unmarshaling config with error=%w", err)
			logger.Fatal().Err(err).Msg(err.Error())
		}
		config = &cfg
		logger.Info().Any(log.KeyConfig, cfg).Msg("unmarshaled config")
	})
	return config
}
