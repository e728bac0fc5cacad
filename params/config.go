package params

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Orders holds the tunables of the order engines and their ledger.
//
// DecimalScale and PercentScale are the fixed-point scales used for all
// price and percentage math: a price of 2.5 is stored as 2.5*DecimalScale,
// a take-profit of 10% is stored as 0.10*PercentScale.
type Orders struct {
	// MaxOrdersPerAccount caps simultaneously active orders per account
	// and order type.
	MaxOrdersPerAccount int

	// DecimalScale is the fixed-point scale of prices (1e6 → 6 decimals).
	DecimalScale int64

	// PercentScale is the fixed-point scale of percentages (10000 → bps).
	PercentScale int64

	// DefaultPageLimit / MaxPageLimit bound the paginated account scan.
	DefaultPageLimit int
	MaxPageLimit     int
}

type Node struct {
	APIAddr string // REST/WebSocket listen address
	DBPath  string // Pebble database directory
	LogFile string // JSON log tee target ("" → console only)
}

type Config struct {
	Orders Orders
	Node   Node
}

func Default() Config {
	return Config{
		Orders: Orders{
			MaxOrdersPerAccount: 10,
			DecimalScale:        1_000_000,
			PercentScale:        10_000,
			DefaultPageLimit:    10,
			MaxPageLimit:        30,
		},
		Node: Node{
			APIAddr: ":8080",
			DBPath:  "data/orders-db",
			LogFile: "data/orderd.log",
		},
	}
}

// LoadFromEnv loads configuration from a .env file (if present) and
// environment variables. Priority: ENV > .env file > defaults.
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if v := os.Getenv("ORDERS_MAX_PER_ACCOUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Orders.MaxOrdersPerAccount = n
		}
	}
	if v := os.Getenv("ORDERS_DECIMAL_SCALE"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			cfg.Orders.DecimalScale = n
		}
	}
	if v := os.Getenv("ORDERS_PERCENT_SCALE"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			cfg.Orders.PercentScale = n
		}
	}
	if v := os.Getenv("ORDERS_PAGE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Orders.DefaultPageLimit = n
		}
	}
	if v := os.Getenv("ORDERS_PAGE_LIMIT_MAX"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Orders.MaxPageLimit = n
		}
	}

	if v := os.Getenv("API_ADDR"); v != "" {
		cfg.Node.APIAddr = v
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		cfg.Node.DBPath = v
	}
	if v := os.Getenv("LOG_FILE"); v != "" {
		cfg.Node.LogFile = v
	}

	return cfg
}
