package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# chart-scanner configuration

[bollinger]
# Rolling window in bars
window = 20
# Band width in standard deviations
multiplier = 2.0

[data]
# Data source: "yahoo", "kite" or "csv"
source = "yahoo"
# Bar interval: 1m 2m 5m 15m 30m 60m 90m 1h 1d 5d 1wk 1mo 3mo
interval = "1d"
# History length: 1d 5d 1mo 3mo 6mo 1y 2y 5y 10y ytd max
period = "1y"
base_url = "https://query1.finance.yahoo.com"
# Optional HTTP proxy, e.g. "http://127.0.0.1:8080"
proxy = ""
timeout = "15s"
retries = 3
# Directory holding <SYMBOL>.csv files for the csv source
# csv_dir = "/path/to/csv"

[cache]
# Keep fetched bars in a local SQLite database
enabled = true
# path = "/path/to/bars.db"
ttl = "12h"

[kite]
# Kite Connect credentials (or KITE_API_KEY / KITE_ACCESS_TOKEN)
api_key = ""
access_token = ""
exchange = "NSE"

[engine]
# Parallel detectors for scan --all
workers = 4

[publish]
# Publish scan results to NATS
enabled = false
url = "nats://127.0.0.1:4222"
subject_prefix = "scanner"

[logging]
# debug, info, warn, error
level = "info"
console = true
file = false
# path = "/path/to/scanner.log"
`

func createTemplateConfig(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(path, []byte(configTemplate), 0644); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}

	return nil
}
