package server

import "time"

type WebhookConfig struct {
	Url string `usage:"If set, a POST request that contains link connect/disconnect notifications will be sent to this HTTP address"`
}

type LinkConfig struct {
	Host                 string        `default:"localhost" usage:"Host of the proxy that servers link to"`
	Port                 int           `default:"25580" usage:"The [port] the proxy listens on for server links"`
	WriteQueueSize       int           `default:"256" usage:"Number of outbound packets buffered per link"`
	WriteTimeout         time.Duration `default:"5s" usage:"How long a send waits for queue space and a write waits for the socket"`
	HandshakeTimeout     time.Duration `default:"5s" usage:"How long the proxy waits for a server to identify itself"`
	ReconnectMin         time.Duration `default:"1s" usage:"Initial delay before a server retries linking to the proxy"`
	ReconnectMax         time.Duration `default:"30s" usage:"Maximum delay between link retries"`
	RateLimit            int           `default:"10" usage:"Max number of link connections to accept per second"`
	ClientsToAllow       []string      `usage:"Zero or more server IP addresses or CIDRs allowed to link. Takes precedence over deny."`
	ClientsToDeny        []string      `usage:"Zero or more server IP addresses or CIDRs denied from linking. Ignored if any configured to allow"`
	ReceiveProxyProtocol bool          `default:"false" usage:"Receive PROXY protocol headers on the link listener, combine with -link-trusted-proxies to restrict who may send them"`
	TrustedProxies       []string      `usage:"Comma delimited list of CIDR notation IP blocks to trust when receiving PROXY protocol"`
}

type MotdConfig struct {
	Provider            string        `usage:"ID of the server that answers MoTD requests"`
	Timeout             time.Duration `default:"5s" usage:"How long a MoTD request waits for the provider before serving the fallback"`
	StaleAfter          time.Duration `default:"30s" usage:"How long a timed out MoTD request keeps absorbing its late reply"`
	StatusPort          int           `default:"0" usage:"If non-zero, the [port] bound to answer Minecraft server list pings with synchronized MoTDs"`
	FallbackDescription string        `default:"Server unreachable" usage:"MoTD shown when the provider does not answer"`
	FallbackIcon        string        `usage:"Path to a 64x64 PNG shown when the provider does not answer"`
	VersionName         string        `default:"ChatPlugin" usage:"Version name reported with fallback MoTDs"`
	MaxPlayers          int           `default:"100" usage:"Max players reported with fallback MoTDs"`
}

type CatalogConfig struct {
	File          string `usage:"Name or full [path] to the YAML message catalog"`
	Watch         bool   `usage:"Watch the message catalog for changes"`
	DefaultLocale string `default:"en" usage:"Locale used when a player's locale has no messages"`
}

type StorageConfig struct {
	SQLite string `usage:"Path to a SQLite database persisting punishments. Punishments are kept in memory only if empty"`
}

type RelayConfig struct {
	DiscordWebhook string `usage:"Discord webhook URL that receives relayed Discord messages"`
	TelegramToken  string `usage:"Telegram bot token used to relay Telegram messages. It is HIGHLY recommended to pass as an environment variable."`
	TelegramApi    string `default:"https://api.telegram.org" usage:"Base URL of the Telegram Bot API"`
}

type Config struct {
	Role                  string        `default:"server" usage:"Role of this process: proxy or server"`
	ServerID              string        `usage:"Identifier a server announces to the proxy"`
	Debug                 bool          `usage:"Enable debug logs"`
	Workers               int           `default:"4" usage:"Number of workers running blocking handler work"`
	WorkerQueueSize       int           `default:"128" usage:"Jobs buffered per worker"`
	ViolationsExpireAfter time.Duration `default:"10m" usage:"Drop violations not updated for this long, 0 keeps them until cleared"`
	ApiBinding            string        `usage:"The [host:port] bound for servicing API requests"`
	MetricsBackend        string        `default:"discard" usage:"Backend to use for metrics exposure/publishing: discard,expvar,influxdb,prometheus"`
	MetricsBackendConfig  MetricsBackendConfig
	Link                  LinkConfig
	Motd                  MotdConfig
	Catalog               CatalogConfig
	Storage               StorageConfig
	Relay                 RelayConfig
	Webhook               WebhookConfig `usage:"Webhook configuration"`
}
