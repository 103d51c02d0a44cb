package routes

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hb-library/library-api/internal/models"
)

const webhookSecret = "webhook-test-secret-0123456789"

type memAccessStore struct {
	grants map[string]models.AccessGrant
}

func newMemAccessStore() *memAccessStore {
	return &memAccessStore{grants: make(map[string]models.AccessGrant)}
}

func (m *memAccessStore) Record(_ context.Context, userID, bookID string, paidAt time.Time, paymentID string) (bool, error) {
	key := userID + "/" + bookID
	if _, ok := m.grants[key]; ok {
		return false, nil
	}
	m.grants[key] = models.AccessGrant{
		UserID:    userID,
		BookID:    bookID,
		PaidAt:    paidAt,
		PaymentID: paymentID,
	}
	return true, nil
}

func (m *memAccessStore) Has(_ context.Context, userID, bookID string) (bool, error) {
	_, ok := m.grants[userID+"/"+bookID]
	return ok, nil
}

func newWebhookApp(t *testing.T) (*fiber.App, *memAccessStore) {
	t.Helper()
	access := newMemAccessStore()
	handler := NewPaymentHandler(access, webhookSecret, quietLogger())

	app := fiber.New()
	app.Post("/api/v1/payments/webhook", handler.Webhook)
	return app, access
}

// signDetached produces the detached compact JWS the provider sends:
// header..signature with the payload carried in the request body.
func signDetached(t *testing.T, body []byte) string {
	t.Helper()
	signed, err := jws.Sign(body, jws.WithKey(jwa.HS256, []byte(webhookSecret)))
	require.NoError(t, err)

	parts := strings.Split(string(signed), ".")
	require.Len(t, parts, 3)
	return parts[0] + ".." + parts[2]
}

func deliver(t *testing.T, app *fiber.App, body, signature string) int {
	t.Helper()
	req := httptest.NewRequest("POST", "/api/v1/payments/webhook", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set("X-Payment-Signature", signature)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	resp.Body.Close()
	return resp.StatusCode
}

func TestWebhook_GrantsAccess(t *testing.T) {
	app, access := newWebhookApp(t)

	body := `{"id":"pay-1","status":"succeeded","customer":"u-1","description":"b-1","paid_at":1700000000}`
	status := deliver(t, app, body, signDetached(t, []byte(body)))
	assert.Equal(t, fiber.StatusOK, status)

	has, err := access.Has(context.Background(), "u-1", "b-1")
	require.NoError(t, err)
	assert.True(t, has)
}

func TestWebhook_DuplicateDeliveryKeepsFirstGrant(t *testing.T) {
	app, access := newWebhookApp(t)

	body := `{"id":"pay-1","status":"succeeded","customer":"u-1","description":"b-1","paid_at":1700000000}`
	sig := signDetached(t, []byte(body))

	require.Equal(t, fiber.StatusOK, deliver(t, app, body, sig))
	first := access.grants["u-1/b-1"]

	// Redelivery of the same event must be acknowledged without
	// touching the stored grant
	assert.Equal(t, fiber.StatusOK, deliver(t, app, body, sig))
	assert.Equal(t, first, access.grants["u-1/b-1"])
	assert.Len(t, access.grants, 1)
}

func TestWebhook_MissingSignature(t *testing.T) {
	app, access := newWebhookApp(t)

	body := `{"id":"pay-1","status":"succeeded","customer":"u-1","description":"b-1"}`
	status := deliver(t, app, body, "")
	assert.Equal(t, fiber.StatusForbidden, status)
	assert.Empty(t, access.grants)
}

func TestWebhook_TamperedBody(t *testing.T) {
	app, access := newWebhookApp(t)

	body := `{"id":"pay-1","status":"succeeded","customer":"u-1","description":"b-1"}`
	sig := signDetached(t, []byte(body))

	tampered := strings.Replace(body, "b-1", "b-2", 1)
	status := deliver(t, app, tampered, sig)
	assert.Equal(t, fiber.StatusForbidden, status)
	assert.Empty(t, access.grants)
}

func TestWebhook_WrongSecret(t *testing.T) {
	app, access := newWebhookApp(t)

	body := `{"id":"pay-1","status":"succeeded","customer":"u-1","description":"b-1"}`
	signed, err := jws.Sign([]byte(body), jws.WithKey(jwa.HS256, []byte("some-other-secret-value-here")))
	require.NoError(t, err)
	parts := strings.Split(string(signed), ".")
	sig := parts[0] + ".." + parts[2]

	status := deliver(t, app, body, sig)
	assert.Equal(t, fiber.StatusForbidden, status)
	assert.Empty(t, access.grants)
}

func TestWebhook_MalformedPayload(t *testing.T) {
	app, access := newWebhookApp(t)

	body := `{"id":"pay-1"`
	status := deliver(t, app, body, signDetached(t, []byte(body)))
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Empty(t, access.grants)
}

func TestWebhook_MissingFields(t *testing.T) {
	app, access := newWebhookApp(t)

	body := `{"id":"pay-1","status":"succeeded"}`
	status := deliver(t, app, body, signDetached(t, []byte(body)))
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Empty(t, access.grants)
}

func TestWebhook_NonSucceededIgnored(t *testing.T) {
	app, access := newWebhookApp(t)

	body := `{"id":"pay-1","status":"failed","customer":"u-1","description":"b-1"}`
	status := deliver(t, app, body, signDetached(t, []byte(body)))
	assert.Equal(t, fiber.StatusOK, status)
	assert.Empty(t, access.grants)
}

func TestAccessCheck(t *testing.T) {
	access := newMemAccessStore()
	handler := NewAccessHandler(access, quietLogger())

	app := fiber.New()
	// Identity normally comes from the access guard; inject it directly
	app.Get("/books/:id/access", func(c *fiber.Ctx) error {
		c.Locals("user_id", "u-1")
		return c.Next()
	}, handler.Check)

	check := func() models.AccessResponse {
		resp, err := app.Test(httptest.NewRequest("GET", "/books/b-1/access", nil))
		require.NoError(t, err)
		require.Equal(t, fiber.StatusOK, resp.StatusCode)
		var out models.AccessResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
		return out
	}

	assert.False(t, check().HasAccess)

	_, err := access.Record(context.Background(), "u-1", "b-1", time.Now(), "pay-1")
	require.NoError(t, err)

	assert.True(t, check().HasAccess)
}
