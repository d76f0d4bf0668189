package configflags

import (
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	v1 "github.com/reportportal/service-api/pkg/apis/config/v1"
)

// ConfigFlags holds the location of the service configuration file.
type ConfigFlags struct {
	Path string
}

func NewConfigFlags() *ConfigFlags {
	return &ConfigFlags{
		Path: os.Getenv("RP_CONFIG"),
	}
}

func (f *ConfigFlags) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&f.Path,
		"config",
		f.Path,
		"Optional YAML configuration file (project defaults, analyzers, notifications, job schedules)")
}

func (f *ConfigFlags) GetConfig() (*v1.ServiceConfig, error) {
	var cfg v1.ServiceConfig

	if f.Path != "" {
		data, err := os.ReadFile(f.Path)
		if err != nil {
			return nil, errors.WithMessage(err, "could not load config")
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, errors.WithMessage(err, "couldn't unmarshal config")
		}
	}
	cfg.Defaults()

	return &cfg, nil
}
