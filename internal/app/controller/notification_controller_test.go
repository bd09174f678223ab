package controller

import (
	"net/http"
	"testing"
	"time"

	"github.com/brightwire/cert-portal/internal/app/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotificationController_ReviewQueue(t *testing.T) {
	env := setupControllerTest(t)
	cert := env.createDraft(t, time.Date(2023, 1, 10, 0, 0, 0, 0, time.UTC))
	_, err := env.certificateService.Submit(cert.ID, env.staff.ID, workflow.Expectation{Status: cert.Status})
	require.NoError(t, err)

	w := env.do(t, "GET", "/notifications/unread-count", env.qs, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["unread_count"])

	w = env.do(t, "GET", "/notifications?type=certificate_submitted", env.qs, nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := decode(t, w)["data"].([]interface{})
	require.Len(t, data, 1)
	id := uint(data[0].(map[string]interface{})["id"].(float64))

	// only the recipient may mark it
	w = env.do(t, "PUT", pathOf("/notifications/%d/read", id), env.admin, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(t, "PUT", pathOf("/notifications/%d/read", id), env.qs, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["notification"].(map[string]interface{})["is_read"])

	w = env.do(t, "PUT", "/notifications/read-all", env.admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = env.do(t, "GET", "/notifications/unread-count", env.admin, nil)
	assert.Equal(t, float64(0), decode(t, w)["unread_count"])
}

func TestNotificationController_MarkAsRead_NotFound(t *testing.T) {
	env := setupControllerTest(t)

	w := env.do(t, "PUT", "/notifications/999/read", env.qs, nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestNotificationController_Settings(t *testing.T) {
	env := setupControllerTest(t)

	w := env.do(t, "GET", "/notifications/settings", env.staff, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["settings"].(map[string]interface{})["renewal_notification"])

	w = env.do(t, "PUT", "/notifications/settings", env.staff, map[string]interface{}{
		"renewal_notification": false,
		"certificate_types":    []string{"eicr"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	settings := decode(t, w)["settings"].(map[string]interface{})
	assert.Equal(t, false, settings["renewal_notification"])

	w = env.do(t, "PUT", "/notifications/settings", env.staff, map[string]interface{}{
		"certificate_types": []string{"gas_safe"},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
