package flags

import (
	"os"
	"strings"

	"github.com/spf13/pflag"

	"github.com/reportportal/service-api/pkg/logindex"
)

// ElasticFlags locate the Elasticsearch cluster holding the full text log index.
type ElasticFlags struct {
	Addresses []string
	Username  string
	Password  string
}

func NewElasticFlags() *ElasticFlags {
	f := &ElasticFlags{
		Username: os.Getenv("RP_ELASTICSEARCH_USER"),
		Password: os.Getenv("RP_ELASTICSEARCH_PASSWORD"),
	}
	if addrs := os.Getenv("RP_ELASTICSEARCH_URLS"); addrs != "" {
		f.Addresses = strings.Split(addrs, ",")
	}
	return f
}

func (f *ElasticFlags) BindFlags(fs *pflag.FlagSet) {
	fs.StringSliceVar(&f.Addresses, "elasticsearch-url", f.Addresses, "Elasticsearch addresses. Log search is disabled when empty")
	fs.StringVar(&f.Username, "elasticsearch-user", f.Username, "Elasticsearch user")
	fs.StringVar(&f.Password, "elasticsearch-password", f.Password, "Elasticsearch password")
}

// GetIndex returns nil when no cluster is configured.
func (f *ElasticFlags) GetIndex() (*logindex.Index, error) {
	if len(f.Addresses) == 0 {
		return nil, nil
	}
	return logindex.New(f.Addresses, f.Username, f.Password)
}
