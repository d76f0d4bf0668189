package flags

import (
	"os"
	"time"

	"github.com/spf13/pflag"
)

// APIFlags holds configuration information for the API server.
type APIFlags struct {
	ListenAddr      string
	MetricsAddr     string
	MetricsInterval time.Duration
	UIBaseURL       string
}

func NewAPIFlags() *APIFlags {
	return &APIFlags{
		ListenAddr:      ":8585",
		MetricsAddr:     ":2112",
		MetricsInterval: 5 * time.Minute,
		UIBaseURL:       os.Getenv("RP_UI_BASE_URL"),
	}
}

func (f *APIFlags) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&f.ListenAddr, "listen", f.ListenAddr, "The address to serve the API on")
	fs.StringVar(&f.MetricsAddr, "listen-metrics", f.MetricsAddr, "The address to serve prometheus metrics on")
	fs.DurationVar(&f.MetricsInterval, "metrics-refresh-interval", f.MetricsInterval, "How often launch metrics are recomputed")
	fs.StringVar(&f.UIBaseURL, "ui-base-url", f.UIBaseURL, "Address of the UI used in links, overrides the config file")
}
