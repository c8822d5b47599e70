package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# quotewatch configuration

[scheduler]
# Driving clock resolution; cadences are multiples of it
resolution = "1s"
# Cryptocurrency pairs never close
crypto_cadence = "1s"
# Other symbols while any trading window is open
active_cadence = "5s"
# Other symbols while every window is closed
idle_cadence = "30s"
# Per-fetch timeout
fetch_timeout = "10s"

[source]
# Leave empty for the public Yahoo Finance chart endpoint
base_url = ""
# Consecutive failures before fetches fail fast; 0 disables the breaker
failure_threshold = 5
# How long fetches fail fast before one probe is let through
cooldown = "15s"

[session]
# Zone the trading windows below are expressed in
timezone = "Asia/Shanghai"
weekend_days = ["Saturday", "Sunday"]

# A window whose start is after its end wraps midnight
[[session.windows]]
name = "north_america"
start = "21:30"
end = "04:00"
weekdays_only = true

[[session.windows]]
name = "east_asia_morning"
start = "09:30"
end = "11:30"
weekdays_only = true

[[session.windows]]
name = "east_asia_afternoon"
start = "13:00"
end = "15:00"
weekdays_only = true

[[session.windows]]
name = "europe"
start = "15:00"
end = "23:30"
weekdays_only = true

# Reference exchange hours for the open/pre-market/after-hours badge
[session.reference]
timezone = "America/New_York"
pre_open = "04:00"
open = "09:30"
close = "16:00"
after_close = "20:00"

[rates]
# Cached exchange rates are refetched after this age
ttl = "5m"
# Portfolio totals are converted into this currency
base_currency = "USD"

[display]
color_enabled = true
# Swap to up_color = "red", down_color = "green" for the CN convention
up_color = "green"
down_color = "red"
time_format = "15:04:05"

[notifications]
enabled = true
# Notification level: all, alerts_only, errors_only
level = "all"

[notifications.webhook]
enabled = false
url = ""
timeout = "10s"

[notifications.terminal]
enabled = true
bell = true

[store]
# path = "~/.config/quotewatch/quotewatch.db"

[logging]
level = "info"
file = true
`

func createTemplateConfig(configDir, name string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, name+".toml")
	if err := os.WriteFile(path, []byte(configTemplate), 0644); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}

	return nil
}
