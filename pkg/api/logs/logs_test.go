package logs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/reportportal/service-api/pkg/auth"
	"github.com/reportportal/service-api/pkg/db/models"
	"github.com/reportportal/service-api/pkg/logindex"
	"github.com/reportportal/service-api/pkg/rperrors"
)

type emptyIndex struct {
	searched bool
}

func (e *emptyIndex) Search(ctx context.Context, projectID uint, phrase string, launchIDs []uint, size int) ([]logindex.Hit, int64, error) {
	e.searched = true
	return nil, 0, nil
}

func (e *emptyIndex) DeleteLogs(ctx context.Context, projectID uint, logIDs ...uint) error {
	return nil
}

func TestSearchLogs(t *testing.T) {
	project := &auth.ProjectDetails{ID: 1}

	_, err := NewManager(nil, nil, nil).SearchLogs(context.TODO(), project, "timeout", nil)
	assert.True(t, rperrors.Is(err, rperrors.UnableInteractWithIntegr))

	index := &emptyIndex{}
	m := NewManager(nil, nil, index)
	_, err = m.SearchLogs(context.TODO(), project, "ab", nil)
	assert.True(t, rperrors.Is(err, rperrors.IncorrectFilterParameters))
	assert.False(t, index.searched)

	found, err := m.SearchLogs(context.TODO(), project, "timeout", nil)
	assert.NoError(t, err)
	assert.Empty(t, found)
	assert.True(t, index.searched)
}

func TestLaunchOf(t *testing.T) {
	launchID := uint(4)
	id, err := launchOf(nil, &models.Log{LaunchID: &launchID})
	assert.NoError(t, err)
	assert.Equal(t, launchID, id)

	_, err = launchOf(nil, &models.Log{UUID: "orphan"})
	assert.True(t, rperrors.Is(err, rperrors.TestItemOrLaunchNotFound))
}
