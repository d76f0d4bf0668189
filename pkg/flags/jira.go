package flags

import (
	"crypto/tls"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
)

// JiraFlags configure the HTTP client used to reach the Jira servers of project
// integrations. Credentials belong to each integration.
type JiraFlags struct {
	Timeout            time.Duration
	InsecureSkipVerify bool
}

func NewJiraFlags() *JiraFlags {
	return &JiraFlags{
		Timeout: 30 * time.Second,
	}
}

func (f *JiraFlags) BindFlags(fs *pflag.FlagSet) {
	fs.DurationVar(&f.Timeout, "jira-timeout", f.Timeout, "Timeout of requests to Jira")
	fs.BoolVar(&f.InsecureSkipVerify, "jira-insecure-skip-verify", f.InsecureSkipVerify, "Do not verify the certificates of Jira servers")
}

func (f *JiraFlags) GetHTTPClient() *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if f.InsecureSkipVerify {
		log.Warn("certificates of Jira servers will not be verified")
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} // #nosec G402
	}
	return &http.Client{Transport: transport, Timeout: f.Timeout}
}
