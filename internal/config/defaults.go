package config

// DefaultStatusAddr is the default loopback listen address for the status API.
const DefaultStatusAddr = "127.0.0.1:47390"

// StatusAddrOff disables the status API when used as status_addr.
const StatusAddrOff = "off"

// DefaultHistoryMaxRows is how many runs the history store keeps.
const DefaultHistoryMaxRows = 500

// DefaultLogLevel is used when log_level is unset.
const DefaultLogLevel = "info"

// DefaultLogFormat is used when log_format is unset.
const DefaultLogFormat = "text"

const defaultFileContent = `# stay-awake configuration
# Created by 'stay-awake init-config'. Command-line flags override these values.

# Logging: debug, info, warn, error
log_level = "info"
log_format = "text"
# log_file = "/tmp/stay-awake.log"

# Hold a sleep inhibitor while running
keep_awake = true

# Loopback status API; "off" disables it
status_addr = "127.0.0.1:47390"

# Recorded runs to keep
history_max_rows = 500

[auto_quit]
# Quit after a compact duration such as "1h30m" or "3d4h5s"...
# for = "8h"
# ...or at a local time (not both)
# until = "2030-01-01 07:00:00"

[countdown]
snap_threshold = "1m"
snap_minimum = "200ms"
backoff_threshold = "1m"
backoff_minimum = "1m"

# Update cadence, evaluated top-down while remaining time is above the threshold.
# Thresholds must descend and the last rule must have above = "0s".
[[countdown.cadence]]
above = "24h"
every = "1h"

[[countdown.cadence]]
above = "10m"
every = "10m"

[[countdown.cadence]]
above = "1m"
every = "10s"

[[countdown.cadence]]
above = "0s"
every = "1s"
`
