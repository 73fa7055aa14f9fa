package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portal-sync/internal/domain"
)

const secret = "s3cret"

var authed = map[string]string{SecretHeader: secret, "Content-Type": "application/json"}

func TestPushUpdateStoresUpdate(t *testing.T) {
	st := openStore(t)
	project := seedProject(t, st, "svc-1")
	h := New(Config{WebhookSecret: secret}, &stubRunner{}, st, nil).Handler()

	rec := do(t, h, http.MethodPost, "/api/hubspot/push-update",
		`{"title":"Kickoff","body":"We started","projectId":"svc-1","occurred_at":"2024-05-01T09:30:00+02:00","type":"milestone"}`, authed)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, decode(t, rec)["success"])

	updates, err := st.ListServiceUpdates(context.Background(), project.ID)
	require.NoError(t, err)
	require.Len(t, updates, 1)
	assert.Equal(t, project.ID, updates[0].ProjectID, "linked to the local project id")
	assert.Equal(t, "Kickoff", updates[0].Title)
	assert.Equal(t, domain.UpdateTypeMilestone, updates[0].Type)
	assert.True(t, updates[0].OccurredAt.Equal(time.Date(2024, 5, 1, 7, 30, 0, 0, time.UTC)))
}

func TestPushUpdateRejections(t *testing.T) {
	st := openStore(t)
	seedProject(t, st, "svc-1")
	h := New(Config{WebhookSecret: secret}, &stubRunner{}, st, nil).Handler()

	valid := func(mut func(m map[string]string)) string {
		m := map[string]string{
			"title": "t", "body": "b", "projectId": "svc-1",
			"occurred_at": "2024-05-01T09:30:00Z", "type": "update",
		}
		mut(m)
		var parts []string
		for k, v := range m {
			parts = append(parts, `"`+k+`":"`+v+`"`)
		}
		return "{" + strings.Join(parts, ",") + "}"
	}

	tests := []struct {
		name   string
		hdr    map[string]string
		body   string
		status int
	}{
		{"no secret", nil, valid(func(map[string]string) {}), http.StatusUnauthorized},
		{"wrong secret", map[string]string{SecretHeader: "nope"}, valid(func(map[string]string) {}), http.StatusUnauthorized},
		{"bad json", authed, `{"title":`, http.StatusBadRequest},
		{"missing field", authed, valid(func(m map[string]string) { delete(m, "body") }), http.StatusBadRequest},
		{"title too long", authed, valid(func(m map[string]string) { m["title"] = strings.Repeat("x", 129) }), http.StatusUnprocessableEntity},
		{"body too long", authed, valid(func(m map[string]string) { m["body"] = strings.Repeat("x", 513) }), http.StatusUnprocessableEntity},
		{"bad type", authed, valid(func(m map[string]string) { m["type"] = "gossip" }), http.StatusUnprocessableEntity},
		{"bad timestamp", authed, valid(func(m map[string]string) { m["occurred_at"] = "yesterday" }), http.StatusUnprocessableEntity},
		{"unknown project", authed, valid(func(m map[string]string) { m["projectId"] = "svc-404" }), http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/api/hubspot/push-update", tt.body, tt.hdr)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.NotEmpty(t, decode(t, rec)["error"])
		})
	}
}

func TestPushUpdateLimitsAreInclusive(t *testing.T) {
	st := openStore(t)
	seedProject(t, st, "svc-1")
	h := New(Config{WebhookSecret: secret}, &stubRunner{}, st, nil).Handler()

	body := `{"title":"` + strings.Repeat("é", 128) + `","body":"` + strings.Repeat("b", 512) +
		`","projectId":"svc-1","occurred_at":"2024-05-01T09:30:00Z","type":"action"}`
	rec := do(t, h, http.MethodPost, "/api/hubspot/push-update", body, authed)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestPushUpdateEmptySecretRejectsAll(t *testing.T) {
	h := New(Config{}, &stubRunner{}, openStore(t), nil).Handler()
	rec := do(t, h, http.MethodPost, "/api/hubspot/push-update", `{}`, map[string]string{SecretHeader: ""})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

type failingInserts struct {
	UpdateStore
}

func (failingInserts) InsertServiceUpdate(ctx context.Context, u *domain.ServiceUpdate) error {
	return errors.New("disk full")
}

func TestPushUpdateInsertFailure(t *testing.T) {
	st := openStore(t)
	seedProject(t, st, "svc-1")
	h := New(Config{WebhookSecret: secret}, &stubRunner{}, failingInserts{st}, nil).Handler()

	rec := do(t, h, http.MethodPost, "/api/hubspot/push-update",
		`{"title":"t","body":"b","projectId":"svc-1","occurred_at":"2024-05-01T09:30:00Z","type":"message"}`, authed)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "disk full", decode(t, rec)["error"])
}
