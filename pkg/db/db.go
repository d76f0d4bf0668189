package db

import (
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/reportportal/service-api/pkg/db/models"
)

type DB struct {
	DB *gorm.DB

	// BatchSize is used for how many insertions we should do at once. Postgres supports
	// a maximum of 2^16 records per insert.
	BatchSize int
}

func New(dsn string, logLevel logger.LogLevel) (*DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, err
	}

	return &DB{
		DB:        db,
		BatchSize: 1024,
	}, nil
}

// ConfigurePool sets the limits of the underlying connection pool. Zero values keep the
// database/sql defaults.
func (d *DB) ConfigurePool(maxOpen, maxIdle int, maxLifetime time.Duration) error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	if maxOpen > 0 {
		sqlDB.SetMaxOpenConns(maxOpen)
	}
	if maxIdle > 0 {
		sqlDB.SetMaxIdleConns(maxIdle)
	}
	if maxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(maxLifetime)
	}
	return nil
}

// schemaModels lists every table managed by the service, parents before children.
var schemaModels = []interface{}{
	&models.User{},
	&models.ApiKey{},
	&models.Project{},
	&models.ProjectUser{},
	&models.ProjectAttribute{},
	&models.IssueType{},
	&models.SenderCase{},
	&models.Launch{},
	&models.TestItem{},
	&models.ItemAttribute{},
	&models.Parameter{},
	&models.LaunchStatistics{},
	&models.ItemStatistics{},
	&models.Ticket{},
	&models.Issue{},
	&models.Attachment{},
	&models.Log{},
	&models.UserFilter{},
	&models.Widget{},
	&models.Dashboard{},
	&models.DashboardWidget{},
	&models.Integration{},
	&models.Activity{},
}

// indexes are created in addition to the ones declared on the models.
var indexes = []string{
	"CREATE UNIQUE INDEX IF NOT EXISTS idx_launch_project_name_number ON launches (project_id, name, number)",
	"CREATE INDEX IF NOT EXISTS idx_test_items_path_prefix ON test_items (path text_pattern_ops)",
	"CREATE INDEX IF NOT EXISTS idx_test_items_launch_unique_id ON test_items (launch_id, unique_id)",
	"CREATE INDEX IF NOT EXISTS idx_logs_message_trgm ON logs USING gin (to_tsvector('english', message))",
}

// UpdateSchema creates or migrates the tables, then runs the registered data migrations.
func (d *DB) UpdateSchema() error {
	if err := d.DB.AutoMigrate(schemaModels...); err != nil {
		return errors.WithMessage(err, "auto migrating schema")
	}

	for _, stmt := range indexes {
		if res := d.DB.Exec(stmt); res.Error != nil {
			log.WithError(res.Error).Errorf("error creating index: %s", stmt)
			return res.Error
		}
	}

	return d.runMigrations()
}
