package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"qpanel/internal/guard"
	"qpanel/internal/panel"
	"qpanel/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRequester struct {
	calls    atomic.Int32
	password string
	token    session.Token
	err      error
}

func (s *stubRequester) RequestToken(_ context.Context, password string) (session.Token, error) {
	s.calls.Add(1)
	s.password = password
	return s.token, s.err
}

func TestStaticPassword(t *testing.T) {
	_, err := StaticPassword("").Password(context.Background())
	assert.ErrorIs(t, err, ErrNoPassword)
	p, err := StaticPassword("pw").Password(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "pw", p)
}

func TestRememberedPassword(t *testing.T) {
	r := NewRememberedPassword(StaticPassword("from-config"))
	p, err := r.Password(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "from-config", p)

	r.Remember("typed")
	p, _ = r.Password(context.Background())
	assert.Equal(t, "typed", p)

	r.Forget()
	p, _ = r.Password(context.Background())
	assert.Equal(t, "from-config", p)

	_, err = NewRememberedPassword(nil).Password(context.Background())
	assert.ErrorIs(t, err, ErrNoPassword)
}

func TestPasswordLogin_NoPasswordSkipsServer(t *testing.T) {
	req := &stubRequester{token: "t"}
	_, err := NewPasswordLogin(req, StaticPassword("")).Login(context.Background())
	assert.ErrorIs(t, err, ErrNoPassword)
	assert.EqualValues(t, 0, req.calls.Load())
}

func TestPasswordLogin_Success(t *testing.T) {
	req := &stubRequester{token: "abc"}
	tok, err := NewPasswordLogin(req, StaticPassword("pw")).Login(context.Background())
	require.NoError(t, err)
	assert.Equal(t, session.Token("abc"), tok)
	assert.Equal(t, "pw", req.password)
}

func TestPasswordLogin_Rejected(t *testing.T) {
	req := &stubRequester{err: errors.New("403")}
	_, err := NewPasswordLogin(req, StaticPassword("pw")).Login(context.Background())
	assert.ErrorContains(t, err, "request token")
}

func TestSignIn(t *testing.T) {
	tokens := session.NewHolder()
	remember := NewRememberedPassword(nil)

	assert.ErrorIs(t, SignIn(context.Background(), &stubRequester{}, tokens, remember, ""), ErrNoPassword)

	assert.Error(t, SignIn(context.Background(), &stubRequester{}, tokens, remember, "pw"), "empty token")
	assert.False(t, tokens.Authenticated())

	require.NoError(t, SignIn(context.Background(), &stubRequester{token: "abc"}, tokens, remember, "pw"))
	assert.Equal(t, session.Token("abc"), tokens.Token())
	p, _ := remember.Password(context.Background())
	assert.Equal(t, "pw", p)
}

// The guard drives the real flow against a panel server.
func TestPasswordLogin_WithGuardAndPanel(t *testing.T) {
	var posts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != panel.PathToken || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		posts.Add(1)
		time.Sleep(20 * time.Millisecond)
		_, _ = w.Write([]byte(`{"token":"abc"}`))
	}))
	defer srv.Close()

	tokens := session.NewHolder()
	client, err := panel.NewClient(srv.URL, tokens, panel.Options{})
	require.NoError(t, err)
	g := guard.New(tokens, NewPasswordLogin(client, StaticPassword("pw")), guard.Options{})
	defer g.Close()

	route, _ := guard.QpacktRoutes().Lookup("/versions")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	d, err := g.Navigate(ctx, route).Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, guard.Allow, d.Outcome)
	assert.Equal(t, session.Token("abc"), tokens.Token())

	d, err = g.Navigate(ctx, route).Wait(ctx)
	require.NoError(t, err)
	assert.False(t, d.LoginAttempted)
	assert.EqualValues(t, 1, posts.Load())
}
