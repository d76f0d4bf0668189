package notification

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jordan-wright/email"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apitype "github.com/reportportal/service-api/pkg/apis/api"
	"github.com/reportportal/service-api/pkg/db/dbtest"
	"github.com/reportportal/service-api/pkg/db/models"
	"github.com/reportportal/service-api/pkg/events"
)

// blockingSender holds every message until released.
type blockingSender struct {
	entered chan struct{}
	release chan struct{}

	mu   sync.Mutex
	sent []*email.Email
}

func newBlockingSender() *blockingSender {
	return &blockingSender{entered: make(chan struct{}, 1), release: make(chan struct{})}
}

func (b *blockingSender) Send(_ SMTPConfig, e *email.Email) error {
	b.entered <- struct{}{}
	<-b.release
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, e)
	return nil
}

func (b *blockingSender) messages() []*email.Email {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*email.Email(nil), b.sent...)
}

func TestNotifierSendsInBackground(t *testing.T) {
	dbc := dbtest.Connect(t)
	p := dbtest.NewProject(t, dbc)
	ctx := context.Background()

	_, err := NewManager(dbc).UpdateConfig(ctx, p.Caller(), p.Details(), apitype.ProjectNotificationConfig{
		Enabled: true,
		Cases: []apitype.SenderCaseDTO{
			{RuleName: "always", SendCase: SendAlways, Recipients: []string{"qa@example.com"}, Enabled: true},
		},
	})
	require.NoError(t, err)

	end := time.Now().UTC()
	launch := models.Launch{
		UUID:      uuid.NewString(),
		ProjectID: p.Project.ID,
		UserID:    p.User.ID,
		Name:      "nightly",
		Number:    1,
		Mode:      string(apitype.LaunchModeDefault),
		Status:    string(apitype.StatusPassed),
		StartTime: end.Add(-time.Minute),
		EndTime:   &end,
	}
	require.NoError(t, dbc.DB.Omit("Attributes", "User", "Statistics").Create(&launch).Error)

	sender := newBlockingSender()
	n := NewNotifier(dbc, SMTPConfig{Host: "smtp.example.com", Port: 25, From: "rp@example.com"}, "http://rp.local")
	n.sender = sender
	bus := events.NewBus()
	n.Subscribe(bus)

	publishCtx, cancel := context.WithCancel(ctx)
	bus.Publish(publishCtx, events.Event{Type: events.LaunchFinished, ProjectID: p.Project.ID, Launch: &launch})
	// the request that finished the launch is over before the mail goes out
	cancel()

	select {
	case <-sender.entered:
	case <-time.After(10 * time.Second):
		t.Fatal("notification was never sent")
	}
	assert.Empty(t, sender.messages(), "publishing must not wait for the mail server")

	close(sender.release)
	n.Wait()

	sent := sender.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, []string{"qa@example.com"}, sent[0].To)
	assert.Contains(t, sent[0].Subject, "'nightly' #1")
}

func TestNotifierWaitWithoutEvents(t *testing.T) {
	n := NewNotifier(nil, SMTPConfig{}, "")
	bus := events.NewBus()
	n.Subscribe(bus)

	bus.Publish(context.Background(), events.Event{Type: events.LaunchFinished})
	done := make(chan struct{})
	go func() {
		n.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Wait blocked with nothing to send")
	}
}
