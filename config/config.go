package config

import (
	"os"

	"gopkg.in/yaml.v2"
)

type SysConfig struct {
	Appid    string `yaml:"appid" json:"appid"`
	Location string `yaml:"location" json:"location"`
	Workdir  string `yaml:"workdir" json:"workdir"`
	Debug    bool   `yaml:"debug" json:"debug"`
}

type WebConfig struct {
	Host   string `yaml:"host" json:"host"`
	Port   int    `yaml:"port" json:"port"`
	Secret string `yaml:"secret" json:"secret"`
}

type DBConfig struct {
	Type     string `yaml:"type" json:"type"`
	Host     string `yaml:"host" json:"host"`
	Port     int    `yaml:"port" json:"port"`
	Name     string `yaml:"name" json:"name"`
	User     string `yaml:"user" json:"user"`
	Passwd   string `yaml:"passwd" json:"passwd"`
	MaxConn  int    `yaml:"max_conn" json:"max_conn"`
	IdleConn int    `yaml:"idle_conn" json:"idle_conn"`
	Debug    bool   `yaml:"debug" json:"debug"`
}

// MessagingConfig holds the fixed contracts of external collaborators: the
// downstream WhatsApp delivery API, the payment-link issuer and the
// optional AMQP change feed shared between console instances.
type MessagingConfig struct {
	CompanyID   string `yaml:"company_id" json:"company_id"`
	DeliveryURL string `yaml:"delivery_url" json:"delivery_url"`
	PaymentURL  string `yaml:"payment_url" json:"payment_url"`
	AmqpURL     string `yaml:"amqp_url" json:"amqp_url"`
	Exchange    string `yaml:"exchange" json:"exchange"`
}

type LogConfig struct {
	Mode       string `yaml:"mode" json:"mode"`
	FileEnable bool   `yaml:"file_enable" json:"file_enable"`
	Filename   string `yaml:"filename" json:"filename"`
}

type AppConfig struct {
	System    SysConfig       `yaml:"system" json:"system"`
	Web       WebConfig       `yaml:"web" json:"web"`
	Database  DBConfig        `yaml:"database" json:"database"`
	Messaging MessagingConfig `yaml:"messaging" json:"messaging"`
	Logger    LogConfig       `yaml:"logger" json:"logger"`
}

var DefaultAppConfig = &AppConfig{
	System: SysConfig{
		Appid:    "WappConsole",
		Location: "Europe/Amsterdam",
		Workdir:  "/var/wappconsole",
		Debug:    true,
	},
	Web: WebConfig{
		Host:   "0.0.0.0",
		Port:   1816,
		Secret: "9b6de5cc-0731-1203-xxtx-0f568ac9da37",
	},
	Database: DBConfig{
		Type:     "postgres",
		Host:     "127.0.0.1",
		Port:     5432,
		Name:     "wappconsole",
		User:     "postgres",
		Passwd:   "",
		MaxConn:  100,
		IdleConn: 10,
	},
	Messaging: MessagingConfig{
		CompanyID:   "default",
		DeliveryURL: "http://127.0.0.1:1880/api/send",
		PaymentURL:  "http://127.0.0.1:1880/api/paymentlinks",
	},
	Logger: LogConfig{
		Mode:       "development",
		FileEnable: true,
		Filename:   "/var/wappconsole/wappconsole.log",
	},
}

func setEnvValue(name string, val *string) {
	if v := os.Getenv(name); v != "" {
		*val = v
	}
}

func setEnvBoolValue(name string, val *bool) {
	if v := os.Getenv(name); v != "" {
		*val = v == "true" || v == "1" || v == "on"
	}
}

// LoadConfig reads the yaml config file and applies environment overrides.
// A missing file is not an error; the defaults are used.
func LoadConfig(cfile string) *AppConfig {
	cfg := DefaultAppConfig
	if cfile != "" {
		if data, err := os.ReadFile(cfile); err == nil {
			cfg = new(AppConfig)
			if err := yaml.Unmarshal(data, cfg); err != nil {
				panic(err)
			}
		}
	}

	setEnvValue("WAPP_SYSTEM_WORKDIR", &cfg.System.Workdir)
	setEnvValue("WAPP_WEB_SECRET", &cfg.Web.Secret)
	setEnvValue("WAPP_DB_HOST", &cfg.Database.Host)
	setEnvValue("WAPP_DB_NAME", &cfg.Database.Name)
	setEnvValue("WAPP_DB_USER", &cfg.Database.User)
	setEnvValue("WAPP_DB_PWD", &cfg.Database.Passwd)
	setEnvValue("WAPP_COMPANY_ID", &cfg.Messaging.CompanyID)
	setEnvValue("WAPP_DELIVERY_URL", &cfg.Messaging.DeliveryURL)
	setEnvValue("WAPP_PAYMENT_URL", &cfg.Messaging.PaymentURL)
	setEnvValue("WAPP_AMQP_URL", &cfg.Messaging.AmqpURL)
	setEnvBoolValue("WAPP_SYSTEM_DEBUG", &cfg.System.Debug)
	return cfg
}
