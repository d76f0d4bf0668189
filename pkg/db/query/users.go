package query

import (
	"errors"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/reportportal/service-api/pkg/db/models"
)

// UserByLogin loads a user with project memberships. A missing user returns nil without error.
func UserByLogin(dbc *gorm.DB, login string) (*models.User, error) {
	var user models.User
	res := dbc.Preload("Projects.Project").First(&user, "login = ?", login)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		log.WithError(res.Error).Errorf("error looking up user: %s", login)
		return nil, res.Error
	}
	return &user, nil
}

func UserByID(dbc *gorm.DB, id uint) (*models.User, error) {
	var user models.User
	res := dbc.Preload("Projects.Project").First(&user, id)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		log.WithError(res.Error).Errorf("error looking up user: %d", id)
		return nil, res.Error
	}
	return &user, nil
}

// ApiKeyByHash finds the api key whose secret hashes to hash.
func ApiKeyByHash(dbc *gorm.DB, hash string) (*models.ApiKey, error) {
	var key models.ApiKey
	res := dbc.First(&key, "hash = ?", hash)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, res.Error
	}
	return &key, nil
}
