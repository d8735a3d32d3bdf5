package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"family-booking/internal/config"
	"family-booking/internal/models"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
)

func TestRenderBoard(t *testing.T) {
	p := "0f3c9a11-5e2b-4c7d-9a10-2b3c4d5e6f70"
	reqs := []*models.ServiceRequest{
		{ID: "a1b2c3d4-0000-0000-0000-000000000001", ServiceType: "childcare", Location: "Paris", Status: models.StatusNew},
		{ID: "a1b2c3d4-0000-0000-0000-000000000002", ServiceType: "tutoring", Location: "Lyon", Status: models.StatusNew},
		{ID: "b2c3d4e5-0000-0000-0000-000000000003", ServiceType: "cleaning", Location: "Nantes", Status: models.StatusConfirmed, AssignedProviderID: &p},
	}

	var buf bytes.Buffer
	renderBoard(&buf, reqs, time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC))
	out := buf.String()

	assert.Contains(t, out, "Requests at 2026-03-01 09:30")
	for _, st := range models.AllStatuses {
		assert.Contains(t, out, strings.ToUpper(string(st)))
	}
	assert.Contains(t, out, "a1b2c3d4 childcare")
	assert.Contains(t, out, "b2c3d4e5 cleaning")
	assert.Contains(t, out, "-> 0f3c9a11")
	assert.NotContains(t, out, "0000-0000")
}

func TestRenderBoardEmpty(t *testing.T) {
	var buf bytes.Buffer
	renderBoard(&buf, nil, time.Now())
	assert.Contains(t, buf.String(), "NEW")
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "abc", shortID("abc"))
	assert.Equal(t, "12345678", shortID("123456789"))
}

func TestRenderAlerts(t *testing.T) {
	rid := "c3d4e5f6-0000-0000-0000-000000000009"
	var buf bytes.Buffer
	renderAlerts(&buf, []*models.AdminAlert{
		{ID: "al-1", Kind: "acceptance_timeout", RequestID: &rid, Message: "no provider accepted", CreatedAt: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)},
		{ID: "al-2", Kind: "notification_failed", Message: "ses throttled"},
	})
	out := buf.String()
	assert.Contains(t, out, "acceptance_timeout")
	assert.Contains(t, out, "c3d4e5f6")
	assert.Contains(t, out, "2026-03-01 08:00")
	assert.Contains(t, out, "ses throttled")
}

func TestStoreCommandsRequireDatabaseURL(t *testing.T) {
	prev := cfg
	t.Cleanup(func() { cfg = prev })
	cfg = &config.Config{JWTSecret: "s", JWTTTL: time.Hour, Assignment: config.DefaultAssignment()}

	for name, cmd := range map[string]*cobra.Command{
		"kanban":     kanbanCmd(),
		"alerts":     alertsCmd(),
		"alerts ack": alertsAckCmd(),
	} {
		t.Run(name, func(t *testing.T) {
			cmd.SetContext(context.Background())
			err := cmd.RunE(cmd, []string{"al-1"})
			assert.EqualError(t, err, "DATABASE_URL is required")
		})
	}
}
