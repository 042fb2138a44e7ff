package session

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoginPayload_Decode(t *testing.T) {
	body := `{"access_token":"abc","token_type":"bearer","expires_in":1800,"user":{"username":"ops","full_name":"Ops","is_admin":true,"id":3}}`

	var p LoginPayload
	require.NoError(t, json.Unmarshal([]byte(body), &p))

	assert.Equal(t, "abc", p.AccessToken)
	assert.Equal(t, "bearer", p.TokenType)
	require.NotNil(t, p.ExpiresIn)
	assert.Equal(t, int64(1800), *p.ExpiresIn)
	require.NotNil(t, p.User)
	assert.True(t, p.User.IsAdmin)
	assert.Equal(t, "Ops", p.User.DisplayName())
	assert.Equal(t, json.RawMessage("3"), p.User.Extra["id"])
}

func TestLoginPayload_DecodeMinimal(t *testing.T) {
	var p LoginPayload
	require.NoError(t, json.Unmarshal([]byte(`{"access_token":"abc","user":null}`), &p))

	assert.Nil(t, p.ExpiresIn)
	assert.Nil(t, p.User)
	assert.Empty(t, p.TokenType)
}

func TestUserRecord_Field(t *testing.T) {
	var u *UserRecord
	assert.Equal(t, "", u.Field("username"))
	assert.Equal(t, "", u.DisplayName())

	u = &UserRecord{
		Username: "ops",
		Extra:    map[string]json.RawMessage{"email": json.RawMessage(`"ops@example.com"`)},
	}
	assert.Equal(t, "ops", u.DisplayName())
	assert.Equal(t, "ops", u.Field("name"))
	assert.Equal(t, "false", u.Field("is_admin"))
	assert.Equal(t, "ops@example.com", u.Field("email"))
	assert.Equal(t, "", u.Field("missing"))
}

func TestUserRecord_InvalidJSON(t *testing.T) {
	var u UserRecord
	assert.Error(t, json.Unmarshal([]byte(`["not","an","object"]`), &u))
}

func TestPeekClaims(t *testing.T) {
	exp := time.Date(2026, 3, 1, 13, 0, 0, 0, time.UTC)
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "ops",
		"exp": exp.Unix(),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	claims, err := PeekClaims(token)
	require.NoError(t, err)

	sub, err := claims.GetSubject()
	require.NoError(t, err)
	assert.Equal(t, "ops", sub)

	got, err := claims.GetExpirationTime()
	require.NoError(t, err)
	assert.True(t, got.Time.Equal(exp))
}

func TestPeekClaims_Opaque(t *testing.T) {
	_, err := PeekClaims("opaque-token")
	assert.Error(t, err)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "Unauthenticated", Unauthenticated.String())
	assert.Equal(t, "Authenticated", Authenticated.String())
	assert.Equal(t, "Expiring", Expiring.String())
	assert.Equal(t, "Unknown", State(42).String())
	assert.False(t, Unauthenticated.IsAuthenticated())
}
