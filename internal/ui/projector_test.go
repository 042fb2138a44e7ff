package ui

import (
	"bytes"
	"strings"
	"testing"

	"github.com/raine/console-session/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPage = `<html><body>
<a id="nav" class="menu auth-only">Devices</a>
<a id="users" class="auth-only admin-only">Users</a>
<a id="login" class="guest-only" hidden>Log in</a>
<span id="name" data-user-field="name">placeholder</span>
<span id="team" data-user-field="team"></span>
<p id="plain">always</p>
</body></html>`

func parse(t *testing.T, page string) *Document {
	t.Helper()
	doc, err := ParseDocument(strings.NewReader(page))
	require.NoError(t, err)
	return doc
}

func visible(t *testing.T, doc *Document, id string) bool {
	t.Helper()
	v, found := doc.Visible(id)
	require.True(t, found, "element %q not found", id)
	return v
}

func TestProject_Guest(t *testing.T) {
	doc := parse(t, testPage)

	Project(doc, false, nil)

	assert.False(t, visible(t, doc, "nav"))
	assert.False(t, visible(t, doc, "users"))
	assert.True(t, visible(t, doc, "login"))
	assert.True(t, visible(t, doc, "plain"))
	assert.Equal(t, "", doc.Text("name"))
}

func TestProject_User(t *testing.T) {
	doc := parse(t, testPage)
	var user session.UserRecord
	require.NoError(t, user.UnmarshalJSON([]byte(`{"username":"ops","full_name":"Ops Team","is_admin":false,"team":"video"}`)))

	Project(doc, true, &user)

	assert.True(t, visible(t, doc, "nav"))
	assert.False(t, visible(t, doc, "users"))
	assert.False(t, visible(t, doc, "login"))
	assert.Equal(t, "Ops Team", doc.Text("name"))
	assert.Equal(t, "video", doc.Text("team"))
}

func TestProject_Admin(t *testing.T) {
	doc := parse(t, testPage)

	Project(doc, true, &session.UserRecord{Username: "root", IsAdmin: true})

	assert.True(t, visible(t, doc, "users"))
	assert.Equal(t, "root", doc.Text("name"))
}

func TestProject_AuthenticatedWithoutUser(t *testing.T) {
	doc := parse(t, testPage)

	Project(doc, true, nil)

	assert.True(t, visible(t, doc, "nav"))
	assert.False(t, visible(t, doc, "users"))
	assert.Equal(t, "", doc.Text("name"))
}

func TestProject_IgnoresUserWhenLoggedOut(t *testing.T) {
	doc := parse(t, testPage)

	Project(doc, false, &session.UserRecord{Username: "root", IsAdmin: true})

	assert.False(t, visible(t, doc, "users"))
	assert.Equal(t, "", doc.Text("name"))
}

func TestProject_Idempotent(t *testing.T) {
	doc := parse(t, testPage)
	user := &session.UserRecord{Username: "ops"}

	Project(doc, true, user)
	var first bytes.Buffer
	require.NoError(t, doc.Render(&first))

	Project(doc, true, user)
	var second bytes.Buffer
	require.NoError(t, doc.Render(&second))

	assert.Equal(t, first.String(), second.String())
	assert.Equal(t, 1, strings.Count(first.String(), ">ops<"))
}

func TestProjector_FollowsStore(t *testing.T) {
	p := NewProjector(ShellDocument())
	p.Project(false, nil)

	var out bytes.Buffer
	require.NoError(t, p.Render(&out))
	assert.Contains(t, out.String(), `<ul class="nav-links auth-only" hidden="">`)
	assert.Contains(t, out.String(), `<div class="guest-only">`)

	p.Project(true, &session.UserRecord{Username: "ops", FullName: "Ops Team"})

	out.Reset()
	require.NoError(t, p.Render(&out))
	assert.Contains(t, out.String(), `<ul class="nav-links auth-only">`)
	assert.Contains(t, out.String(), `<div class="guest-only" hidden="">`)
	assert.Contains(t, out.String(), `<span data-user-field="name">Ops Team</span>`)
	assert.Contains(t, out.String(), `<li class="admin-only" hidden="">`)
}

func TestShellDocument_FreshCopy(t *testing.T) {
	a := ShellDocument()
	Project(a, false, nil)

	var out bytes.Buffer
	require.NoError(t, ShellDocument().Render(&out))
	assert.Contains(t, out.String(), `<ul class="nav-links auth-only">`)
	assert.Equal(t, "Log out", ShellDocument().Text("logout"))
}
