package flags

import (
	"os"
	"strconv"

	"github.com/spf13/pflag"

	"github.com/reportportal/service-api/pkg/notification"
)

// EmailFlags configure the default SMTP server used for launch notifications. A project's
// own email integration takes precedence.
type EmailFlags struct {
	Host     string
	Port     int
	Username string
	Password string
	SSL      bool
}

func NewEmailFlags() *EmailFlags {
	port, _ := strconv.Atoi(os.Getenv("RP_SMTP_PORT"))
	return &EmailFlags{
		Host:     os.Getenv("RP_SMTP_HOST"),
		Port:     port,
		Username: os.Getenv("RP_SMTP_USER"),
		Password: os.Getenv("RP_SMTP_PASSWORD"),
	}
}

func (f *EmailFlags) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&f.Host, "smtp-host", f.Host, "SMTP server host")
	fs.IntVar(&f.Port, "smtp-port", f.Port, "SMTP server port")
	fs.StringVar(&f.Username, "smtp-user", f.Username, "SMTP user")
	fs.StringVar(&f.Password, "smtp-password", f.Password, "SMTP password")
	fs.BoolVar(&f.SSL, "smtp-ssl", f.SSL, "Connect to the SMTP server over TLS")
}

func (f *EmailFlags) SMTPConfig(from string) notification.SMTPConfig {
	return notification.SMTPConfig{
		Host:     f.Host,
		Port:     f.Port,
		Username: f.Username,
		Password: f.Password,
		From:     from,
		SSL:      f.SSL,
	}
}
