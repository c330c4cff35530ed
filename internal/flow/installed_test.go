package flow

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cli/browser"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"golang.org/x/oauth2"

	"github.com/matheuscscp/oauth2flow/internal/metrics"
	"github.com/matheuscscp/oauth2flow/internal/session"
)

type fakeServer struct {
	port       int
	requestURI string
	waitErr    error
	block      bool
	closed     int
}

func (s *fakeServer) Port() int { return s.port }

func (s *fakeServer) Wait(ctx context.Context) (string, error) {
	if s.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return s.requestURI, s.waitErr
}

func (s *fakeServer) Close() error {
	s.closed++
	return nil
}

type fakeListener struct {
	srv            *fakeServer
	err            error
	host           string
	port           int
	successMessage string
}

func (l *fakeListener) listen(ctx context.Context, host string, port int, successMessage string) (RedirectServer, error) {
	l.host = host
	l.port = port
	l.successMessage = successMessage
	if l.err != nil {
		return nil, l.err
	}
	l.srv.port = port
	return l.srv, nil
}

type fakePrompter struct {
	line    string
	err     error
	message string
}

func (p *fakePrompter) Prompt(message string) (string, error) {
	p.message = message
	return p.line, p.err
}

type browserSpy struct {
	urls []string
	err  error
}

func (b *browserSpy) open(url string) error {
	b.urls = append(b.urls, url)
	return b.err
}

type installedFixture struct {
	session  *fakeSession
	listener *fakeListener
	browser  *browserSpy
	out      *bytes.Buffer
	flow     *InstalledAppFlow
}

func newInstalledFixture(t *testing.T, opts ...InstalledAppOption) *installedFixture {
	t.Helper()
	fx := &installedFixture{
		session: newFakeSession(),
		listener: &fakeListener{srv: &fakeServer{
			requestURI: "/?code=code&state=state",
		}},
		browser: &browserSpy{},
		out:     &bytes.Buffer{},
	}
	f, err := FromClientConfig(webSecrets(), nil, WithSession(fx.session))
	if err != nil {
		t.Fatal(err)
	}
	opts = append([]InstalledAppOption{
		WithListenFunc(fx.listener.listen),
		WithBrowserOpener(fx.browser.open),
		WithOutput(fx.out),
	}, opts...)
	fx.flow = NewInstalledAppFlow(f, opts...)
	return fx
}

func TestInstalledAppFlow_RunLocalServer(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		g := NewWithT(t)

		fx := newInstalledFixture(t)

		creds, err := fx.flow.RunLocalServer(context.Background())
		g.Expect(err).ToNot(HaveOccurred())

		g.Expect(fx.listener.host).To(Equal("localhost"))
		g.Expect(fx.listener.port).To(Equal(8080))
		g.Expect(fx.listener.successMessage).To(Equal("The authentication flow has completed. You may close this window."))
		g.Expect(fx.flow.RedirectURI()).To(Equal("http://localhost:8080/"))

		authURL := "https://auth.example.com/authorize?access_type=offline"
		g.Expect(fx.browser.urls).To(Equal([]string{authURL}))
		g.Expect(fx.out.String()).To(Equal("Please visit this URL to authorize this application: " + authURL + "\n"))

		g.Expect(fx.session.tokenCalls).To(Equal(1))
		g.Expect(fx.session.tokenReq.AuthorizationResponse).To(Equal("https://localhost:8080/?code=code&state=state"))
		g.Expect(fx.session.tokenReq.Code).To(BeEmpty())
		g.Expect(fx.listener.srv.closed).To(Equal(1))

		g.Expect(creds.Token).To(Equal("access-token"))
		g.Expect(creds.RefreshToken).To(Equal("refresh-token"))
	})

	t.Run("custom options", func(t *testing.T) {
		g := NewWithT(t)

		fx := newInstalledFixture(t)

		_, err := fx.flow.RunLocalServer(context.Background(),
			WithHost("127.0.0.1"),
			WithPort(9999),
			WithRedirectURITrailingSlash(false),
			WithSuccessMessage("done"),
			WithAuthorizationPromptMessage("Go to {url} now"),
			WithAuthorizationParams(url.Values{"prompt": {"select_account"}}))
		g.Expect(err).ToNot(HaveOccurred())

		g.Expect(fx.listener.host).To(Equal("127.0.0.1"))
		g.Expect(fx.listener.port).To(Equal(9999))
		g.Expect(fx.listener.successMessage).To(Equal("done"))
		g.Expect(fx.flow.RedirectURI()).To(Equal("http://127.0.0.1:9999"))
		g.Expect(fx.session.authParams.Get("prompt")).To(Equal("select_account"))
		g.Expect(fx.out.String()).To(HavePrefix("Go to https://auth.example.com/authorize?"))
		g.Expect(fx.session.tokenReq.AuthorizationResponse).To(Equal("https://127.0.0.1:9999/?code=code&state=state"))
	})

	t.Run("absolute form request uri", func(t *testing.T) {
		g := NewWithT(t)

		fx := newInstalledFixture(t)
		fx.listener.srv.requestURI = "http://localhost:8080/cb?code=code&state=state"

		_, err := fx.flow.RunLocalServer(context.Background())
		g.Expect(err).ToNot(HaveOccurred())
		g.Expect(fx.session.tokenReq.AuthorizationResponse).To(Equal("https://localhost:8080/cb?code=code&state=state"))
	})

	t.Run("open browser disabled", func(t *testing.T) {
		g := NewWithT(t)

		fx := newInstalledFixture(t)

		_, err := fx.flow.RunLocalServer(context.Background(), WithOpenBrowser(false))
		g.Expect(err).ToNot(HaveOccurred())
		g.Expect(fx.browser.urls).To(BeEmpty())
		g.Expect(fx.out.String()).To(ContainSubstring("https://auth.example.com/authorize"))
	})

	t.Run("empty prompt message prints nothing", func(t *testing.T) {
		g := NewWithT(t)

		fx := newInstalledFixture(t)

		_, err := fx.flow.RunLocalServer(context.Background(), WithAuthorizationPromptMessage(""))
		g.Expect(err).ToNot(HaveOccurred())
		g.Expect(fx.out.String()).To(BeEmpty())
	})

	t.Run("browser failure is not fatal", func(t *testing.T) {
		g := NewWithT(t)

		fx := newInstalledFixture(t)
		fx.browser.err = errors.New("no browser")

		creds, err := fx.flow.RunLocalServer(context.Background())
		g.Expect(err).ToNot(HaveOccurred())
		g.Expect(creds).ToNot(BeNil())
		g.Expect(fx.out.String()).To(ContainSubstring("https://auth.example.com/authorize"))
	})

	t.Run("listen failure", func(t *testing.T) {
		g := NewWithT(t)

		fx := newInstalledFixture(t)
		fx.listener.err = errors.New("address already in use")

		_, err := fx.flow.RunLocalServer(context.Background())
		g.Expect(err).To(MatchError("address already in use"))
		g.Expect(fx.browser.urls).To(BeEmpty())
		g.Expect(fx.session.tokenCalls).To(BeZero())
	})

	t.Run("token fetch failure closes the server", func(t *testing.T) {
		g := NewWithT(t)

		fx := newInstalledFixture(t)
		fx.session.fetchErr = &oauth2.RetrieveError{ErrorCode: "invalid_grant"}

		creds, err := fx.flow.RunLocalServer(context.Background())
		var re *oauth2.RetrieveError
		g.Expect(errors.As(err, &re)).To(BeTrue())
		g.Expect(creds).To(BeNil())
		g.Expect(fx.listener.srv.closed).To(Equal(1))
	})

	t.Run("wait failure closes the server", func(t *testing.T) {
		g := NewWithT(t)

		fx := newInstalledFixture(t)
		fx.listener.srv.waitErr = errors.New("boom")

		_, err := fx.flow.RunLocalServer(context.Background())
		g.Expect(err).To(MatchError("boom"))
		g.Expect(fx.session.tokenCalls).To(BeZero())
		g.Expect(fx.listener.srv.closed).To(Equal(1))
	})

	t.Run("timeout", func(t *testing.T) {
		g := NewWithT(t)

		fx := newInstalledFixture(t)
		fx.listener.srv.block = true

		_, err := fx.flow.RunLocalServer(context.Background(), WithTimeout(10*time.Millisecond))
		g.Expect(err).To(MatchError(context.DeadlineExceeded))
		g.Expect(fx.listener.srv.closed).To(Equal(1))
	})

	t.Run("context canceled", func(t *testing.T) {
		g := NewWithT(t)

		fx := newInstalledFixture(t)
		fx.listener.srv.block = true

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := fx.flow.RunLocalServer(ctx)
		g.Expect(err).To(MatchError(context.Canceled))
		g.Expect(fx.listener.srv.closed).To(Equal(1))
	})
}

func TestNewInstalledAppFlow_DefaultBrowserOpener(t *testing.T) {
	g := NewWithT(t)

	f, err := FromClientConfig(webSecrets(), nil, WithSession(newFakeSession()))
	g.Expect(err).ToNot(HaveOccurred())

	iaf := NewInstalledAppFlow(f)
	g.Expect(reflect.ValueOf(iaf.openBrowser).Pointer()).To(Equal(reflect.ValueOf(browser.OpenURL).Pointer()))
}

func TestInstalledAppFlow_RunLocalServer_ReleasesPort(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for i := 0; i < 100; i++ {
		g := NewWithT(t)

		f, err := FromClientConfig(webSecrets(), nil)
		g.Expect(err).ToNot(HaveOccurred())
		iaf := NewInstalledAppFlow(f, WithOutput(&bytes.Buffer{}))

		_, err = iaf.RunLocalServer(ctx,
			WithHost("127.0.0.1"),
			WithPort(0),
			WithOpenBrowser(false))
		g.Expect(err).To(MatchError(context.Canceled))

		u, err := url.Parse(iaf.RedirectURI())
		g.Expect(err).ToNot(HaveOccurred())
		l, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", u.Port()))
		g.Expect(err).ToNot(HaveOccurred(), "round %d", i)
		g.Expect(l.Close()).To(Succeed())
	}
}

func TestInstalledAppFlow_RunConsole(t *testing.T) {
	t.Run("fetches token with the entered code", func(t *testing.T) {
		g := NewWithT(t)

		p := &fakePrompter{line: "entered-code"}
		fx := newInstalledFixture(t, WithPrompter(p))

		creds, err := fx.flow.RunConsole(context.Background())
		g.Expect(err).ToNot(HaveOccurred())

		g.Expect(fx.flow.RedirectURI()).To(Equal("urn:ietf:wg:oauth:2.0:oob"))
		g.Expect(fx.session.authParams).To(Equal(url.Values{
			"access_type": {"offline"},
			"prompt":      {"consent"},
		}))
		g.Expect(fx.out.String()).To(HavePrefix("Please visit this URL to authorize this application: https://auth.example.com/authorize?"))
		g.Expect(p.message).To(Equal("Enter the authorization code: "))
		g.Expect(fx.session.tokenReq).To(Equal(session.TokenRequest{
			ClientSecret: "client-secret",
			Code:         "entered-code",
		}))
		g.Expect(creds.Token).To(Equal("access-token"))
		g.Expect(fx.browser.urls).To(BeEmpty())
		g.Expect(fx.listener.port).To(BeZero())
	})

	t.Run("keeps the configured redirect uri and merges params", func(t *testing.T) {
		g := NewWithT(t)

		p := &fakePrompter{line: "entered-code"}
		fx := newInstalledFixture(t, WithPrompter(p))
		fx.flow.SetRedirectURI("https://app.example.com/code")

		_, err := fx.flow.RunConsole(context.Background(),
			WithAuthorizationParams(url.Values{"prompt": {"none"}, "login_hint": {"me@example.com"}}),
			WithCodePrompt("Code: "))
		g.Expect(err).ToNot(HaveOccurred())

		g.Expect(fx.flow.RedirectURI()).To(Equal("https://app.example.com/code"))
		g.Expect(fx.session.authParams.Get("prompt")).To(Equal("none"))
		g.Expect(fx.session.authParams.Get("login_hint")).To(Equal("me@example.com"))
		g.Expect(p.message).To(Equal("Code: "))
	})

	t.Run("prompter failure", func(t *testing.T) {
		g := NewWithT(t)

		p := &fakePrompter{err: errors.New("EOF")}
		fx := newInstalledFixture(t, WithPrompter(p))

		_, err := fx.flow.RunConsole(context.Background())
		g.Expect(err).To(MatchError("failed to read authorization code: EOF"))
		g.Expect(fx.session.tokenCalls).To(BeZero())
	})
}

func TestInstalledAppFlow_Metrics(t *testing.T) {
	g := NewWithT(t)

	m, err := metrics.New(prometheus.NewRegistry())
	g.Expect(err).ToNot(HaveOccurred())

	fx := newInstalledFixture(t, WithMetrics(m), WithPrompter(&fakePrompter{line: "code"}))

	_, err = fx.flow.RunConsole(context.Background())
	g.Expect(err).ToNot(HaveOccurred())

	fx.listener.err = errors.New("address already in use")
	_, err = fx.flow.RunLocalServer(context.Background())
	g.Expect(err).To(HaveOccurred())

	g.Expect(testutil.ToFloat64(m.Authorizations.WithLabelValues("console", "success"))).To(Equal(1.0))
	g.Expect(testutil.ToFloat64(m.Authorizations.WithLabelValues("local_server", "failure"))).To(Equal(1.0))
}

// browse plays the user agent: it follows the authorization URL to the
// redirect URI as an authorization server would after consent.
func browse(t *testing.T, query func(state string) url.Values) (BrowserOpener, func() []int) {
	var mu sync.Mutex
	var statuses []int
	open := func(authURL string) error {
		u, err := url.Parse(authURL)
		if err != nil {
			return err
		}
		q := u.Query()
		redirectURI := q.Get("redirect_uri")
		resp, err := http.Get(redirectURI + "?" + query(q.Get("state")).Encode())
		if err != nil {
			return err
		}
		resp.Body.Close()
		mu.Lock()
		statuses = append(statuses, resp.StatusCode)
		mu.Unlock()
		return nil
	}
	return open, func() []int {
		mu.Lock()
		defer mu.Unlock()
		return statuses
	}
}

func TestInstalledAppFlow_RunLocalServer_EndToEnd(t *testing.T) {
	t.Run("success with pkce", func(t *testing.T) {
		g := NewWithT(t)

		te := newTokenEndpoint(t)
		secrets := webSecrets()
		secrets.Web.TokenURI = te.URL

		f, err := FromClientConfig(secrets, []string{"openid"}, WithPKCE())
		g.Expect(err).ToNot(HaveOccurred())

		open, statuses := browse(t, func(state string) url.Values {
			return url.Values{"code": {"the-code"}, "state": {state}}
		})
		var out bytes.Buffer
		iaf := NewInstalledAppFlow(f, WithBrowserOpener(open), WithOutput(&out))

		creds, err := iaf.RunLocalServer(context.Background(),
			WithHost("127.0.0.1"),
			WithPort(0),
			WithTimeout(10*time.Second))
		g.Expect(err).ToNot(HaveOccurred())
		g.Expect(creds.Token).To(Equal("access-token"))
		g.Expect(creds.RefreshToken).To(Equal("refresh-token"))
		g.Expect(statuses()).To(Equal([]int{http.StatusOK}))

		form := te.lastForm()
		g.Expect(form.Get("grant_type")).To(Equal("authorization_code"))
		g.Expect(form.Get("code")).To(Equal("the-code"))
		g.Expect(form.Get("redirect_uri")).To(Equal(iaf.RedirectURI()))
		g.Expect(form.Get("code_verifier")).To(Equal(f.CodeVerifier()))
		g.Expect(iaf.RedirectURI()).To(MatchRegexp(`^http://127\.0\.0\.1:\d+/$`))

		// the port is released
		_, err = http.Get(iaf.RedirectURI())
		g.Expect(err).To(HaveOccurred())
	})

	t.Run("state mismatch", func(t *testing.T) {
		g := NewWithT(t)

		te := newTokenEndpoint(t)
		secrets := webSecrets()
		secrets.Web.TokenURI = te.URL

		f, err := FromClientConfig(secrets, []string{"openid"})
		g.Expect(err).ToNot(HaveOccurred())

		open, _ := browse(t, func(string) url.Values {
			return url.Values{"code": {"the-code"}, "state": {"forged"}}
		})
		iaf := NewInstalledAppFlow(f, WithBrowserOpener(open), WithOutput(&bytes.Buffer{}))

		_, err = iaf.RunLocalServer(context.Background(), WithHost("127.0.0.1"), WithPort(0))
		g.Expect(err).To(MatchError(session.ErrMismatchingState))
		g.Expect(te.lastForm()).To(BeNil())
	})

	t.Run("access denied", func(t *testing.T) {
		g := NewWithT(t)

		f, err := FromClientConfig(webSecrets(), []string{"openid"})
		g.Expect(err).ToNot(HaveOccurred())

		open, _ := browse(t, func(state string) url.Values {
			return url.Values{"error": {"access_denied"}, "state": {state}}
		})
		iaf := NewInstalledAppFlow(f, WithBrowserOpener(open), WithOutput(&bytes.Buffer{}))

		_, err = iaf.RunLocalServer(context.Background(), WithHost("127.0.0.1"), WithPort(0))
		var authErr *session.AuthorizationError
		g.Expect(errors.As(err, &authErr)).To(BeTrue())
		g.Expect(authErr.Code).To(Equal("access_denied"))
	})

	t.Run("missing code", func(t *testing.T) {
		g := NewWithT(t)

		f, err := FromClientConfig(webSecrets(), []string{"openid"})
		g.Expect(err).ToNot(HaveOccurred())

		open, _ := browse(t, func(state string) url.Values {
			return url.Values{"state": {state}}
		})
		iaf := NewInstalledAppFlow(f, WithBrowserOpener(open), WithOutput(&bytes.Buffer{}))

		_, err = iaf.RunLocalServer(context.Background(), WithHost("127.0.0.1"), WithPort(0))
		g.Expect(err).To(MatchError(session.ErrMissingCode))
	})
}

func TestInstalledAppFlow_RunConsole_EndToEnd(t *testing.T) {
	g := NewWithT(t)

	te := newTokenEndpoint(t)
	secrets := ClientSecrets{Installed: &ClientConfig{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		AuthURI:      "https://auth.example.com/authorize",
		TokenURI:     te.URL,
	}}
	f, err := FromClientConfig(secrets, []string{"openid"})
	g.Expect(err).ToNot(HaveOccurred())

	var out bytes.Buffer
	iaf := NewInstalledAppFlow(f, WithOutput(&out), WithPrompter(&fakePrompter{line: "typed-code"}))

	creds, err := iaf.RunConsole(context.Background())
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(creds.Token).To(Equal("access-token"))
	g.Expect(creds.ClientID).To(Equal("client-id"))
	g.Expect(creds.TokenURI).To(Equal(te.URL))

	form := te.lastForm()
	g.Expect(form.Get("code")).To(Equal("typed-code"))
	g.Expect(form.Get("redirect_uri")).To(Equal("urn:ietf:wg:oauth:2.0:oob"))

	printed := strings.TrimSpace(out.String())
	g.Expect(printed).To(ContainSubstring(fmt.Sprintf("redirect_uri=%s", url.QueryEscape("urn:ietf:wg:oauth:2.0:oob"))))
}
