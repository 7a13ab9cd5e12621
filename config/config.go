package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const DefaultFilename = "rs485bridge.yaml"

type Configuration struct {
	SerialPort   string        `mapstructure:"serial_port"`
	WebSocket    WebSocket     `mapstructure:"websocket"`
	Bus          Bus           `mapstructure:"bus"`
	Mqtt         Mqtt          `mapstructure:"mqtt"`
	Http         Http          `mapstructure:"http"`
	Logging      Logging       `mapstructure:"logging"`
	Climates     []Climate     `mapstructure:"climates"`
	Fans         []Fan         `mapstructure:"fans"`
	Monitor      []HexPattern  `mapstructure:"monitor"`
	PollInterval time.Duration `mapstructure:"update_interval"`
}

type WebSocket struct {
	Url      string `mapstructure:"url"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type Bus struct {
	BaudRate   int           `mapstructure:"baud_rate"`
	DataBits   int           `mapstructure:"data_bits"`
	Parity     string        `mapstructure:"parity"`
	StopBits   int           `mapstructure:"stop_bits"`
	RxWait     time.Duration `mapstructure:"rx_wait"`
	TxInterval time.Duration `mapstructure:"tx_interval"`
	Prefix     string        `mapstructure:"prefix"`
	Suffix     string        `mapstructure:"suffix"`
	Checksum   string        `mapstructure:"checksum"`
	Checksum2  string        `mapstructure:"checksum2"`
}

type Mqtt struct {
	IpAddress       string `mapstructure:"ip_address"`
	Port            int    `mapstructure:"port"`
	Username        string `mapstructure:"username"`
	Password        string `mapstructure:"password"`
	ClientId        string `mapstructure:"client_id"`
	TopicPrefix     string `mapstructure:"topic_prefix"`
	DiscoveryPrefix string `mapstructure:"discovery_prefix"`
}

type Http struct {
	Addr string `mapstructure:"addr"`
	// EnableWrite exposes POST /write, which sends raw frames to the bus.
	EnableWrite bool `mapstructure:"enable_write"`
}

type Logging struct {
	Level  string  `mapstructure:"level"`
	Format string  `mapstructure:"format"`
	File   LogFile `mapstructure:"file"`
}

type LogFile struct {
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// LoadConfiguration reads a YAML or JSON file. Every key can be overridden through
// RS485_ prefixed environment variables, e.g. RS485_MQTT_PASSWORD.
func LoadConfiguration(filename string) (*Configuration, error) {
	v := newViper(filename)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	configuration := &Configuration{}
	if err := v.Unmarshal(configuration); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := configuration.Validate(); err != nil {
		return nil, err
	}

	return configuration, nil
}

func newViper(filename string) *viper.Viper {
	v := viper.New()
	v.SetConfigFile(filename)
	setDefaults(v)

	v.SetEnvPrefix("RS485")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("bus.baud_rate", 9600)
	v.SetDefault("bus.data_bits", 8)
	v.SetDefault("bus.parity", "none")
	v.SetDefault("bus.stop_bits", 1)
	v.SetDefault("bus.rx_wait", "10ms")

	// Registered so the environment can supply them without a file entry
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("websocket.username", "")
	v.SetDefault("websocket.password", "")

	v.SetDefault("mqtt.port", 1883)
	v.SetDefault("mqtt.client_id", "")
	v.SetDefault("mqtt.topic_prefix", "rs485")
	v.SetDefault("mqtt.discovery_prefix", "homeassistant")

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.enable_write", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.file.max_size", 10)
	v.SetDefault("logging.file.max_backups", 3)
	v.SetDefault("logging.file.max_age", 28)

	v.SetDefault("update_interval", "60s")
}

func (c *Configuration) Validate() error {
	var errs []error

	if c.SerialPort == "" && c.WebSocket.Url == "" {
		errs = append(errs, errors.New("either serial_port or websocket.url must be set"))
	}
	if c.SerialPort != "" && c.WebSocket.Url != "" {
		errs = append(errs, errors.New("serial_port and websocket.url are mutually exclusive"))
	}
	if len(c.Climates) == 0 && len(c.Fans) == 0 {
		errs = append(errs, errors.New("no devices configured"))
	}

	names := map[string]bool{}
	for i := range c.Climates {
		if err := c.Climates[i].validate(); err != nil {
			errs = append(errs, fmt.Errorf("climate %q: %w", c.Climates[i].Name, err))
		}
		if names[c.Climates[i].Name] {
			errs = append(errs, fmt.Errorf("duplicate device name %q", c.Climates[i].Name))
		}
		names[c.Climates[i].Name] = true
	}
	for i := range c.Fans {
		if err := c.Fans[i].validate(); err != nil {
			errs = append(errs, fmt.Errorf("fan %q: %w", c.Fans[i].Name, err))
		}
		if names[c.Fans[i].Name] {
			errs = append(errs, fmt.Errorf("duplicate device name %q", c.Fans[i].Name))
		}
		names[c.Fans[i].Name] = true
	}

	if _, err := c.Bus.Framing(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.MonitorFilters(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// ClientID returns the configured client id, or a random one so several bridges can
// share a broker.
func (m *Mqtt) ClientID() string {
	if m.ClientId != "" {
		return m.ClientId
	}

	return "rs485bridge-" + uuid.NewString()[:8]
}

func (m *Mqtt) ClientOptions(logger *zap.Logger) *mqtt.ClientOptions {
	return mqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://%v:%v", m.IpAddress, m.Port)).
		SetClientID(m.ClientID()).
		SetUsername(m.Username).
		SetPassword(m.Password).
		SetAutoReconnect(true).
		SetConnectionLostHandler(func(client mqtt.Client, err error) {
			logger.Warn("MQTT connection lost", zap.Error(err))
		}).
		SetReconnectingHandler(func(client mqtt.Client, opts *mqtt.ClientOptions) {
			logger.Info("MQTT reconnecting")
		})
}
