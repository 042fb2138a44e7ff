package session

import (
	"bytes"
	"encoding/json"
	"time"
)

// DefaultTokenType is used whenever a payload or stored entry omits the type.
const DefaultTokenType = "Bearer"

// Credential is the client-held proof of an authenticated session.
type Credential struct {
	AccessToken string
	TokenType   string
	ExpiresAt   time.Time // zero when no local expiry is tracked
	User        *UserRecord
}

// HasExpiry reports whether a local expiry is tracked.
func (c Credential) HasExpiry() bool {
	return !c.ExpiresAt.IsZero()
}

// AuthorizationHeader returns the value for the Authorization header.
func (c Credential) AuthorizationHeader() string {
	tokenType := c.TokenType
	if tokenType == "" {
		tokenType = DefaultTokenType
	}
	return tokenType + " " + c.AccessToken
}

// LoginPayload is the body returned by the token-issuance and renewal endpoints.
type LoginPayload struct {
	AccessToken string      `json:"access_token"`
	TokenType   string      `json:"token_type,omitempty"`
	ExpiresIn   *int64      `json:"expires_in,omitempty"` // seconds
	User        *UserRecord `json:"user,omitempty"`
}

// UserRecord is the cached user returned alongside a token. Fields other than
// the ones the console reads are kept in Extra so they round-trip unchanged.
type UserRecord struct {
	Username string
	FullName string
	IsAdmin  bool
	Extra    map[string]json.RawMessage
}

// DisplayName returns the name shown in the console header.
func (u *UserRecord) DisplayName() string {
	if u == nil {
		return ""
	}
	if u.FullName != "" {
		return u.FullName
	}
	return u.Username
}

// Field returns a user field rendered as text, for display placeholders.
func (u *UserRecord) Field(name string) string {
	if u == nil {
		return ""
	}
	switch name {
	case "name", "display_name":
		return u.DisplayName()
	case "username":
		return u.Username
	case "full_name":
		return u.FullName
	case "is_admin":
		if u.IsAdmin {
			return "true"
		}
		return "false"
	}

	raw, ok := u.Extra[name]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func (u UserRecord) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(u.Extra)+3)
	for k, v := range u.Extra {
		m[k] = v
	}
	m["username"] = u.Username
	if u.FullName != "" {
		m["full_name"] = u.FullName
	}
	m["is_admin"] = u.IsAdmin
	return json.Marshal(m)
}

func (u *UserRecord) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}

	var known struct {
		Username string `json:"username"`
		FullName string `json:"full_name"`
		IsAdmin  bool   `json:"is_admin"`
	}
	if err := json.Unmarshal(data, &known); err != nil {
		return err
	}

	var extra map[string]json.RawMessage
	if err := json.Unmarshal(data, &extra); err != nil {
		return err
	}
	delete(extra, "username")
	delete(extra, "full_name")
	delete(extra, "is_admin")
	if len(extra) == 0 {
		extra = nil
	}

	*u = UserRecord{
		Username: known.Username,
		FullName: known.FullName,
		IsAdmin:  known.IsAdmin,
		Extra:    extra,
	}
	return nil
}
