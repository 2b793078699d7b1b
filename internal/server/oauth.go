package server

import (
	"fmt"
	"html/template"
	"net/http"
	"sync"

	"golang.org/x/oauth2"

	"github.com/desertthunder/vidpub/internal/shared"
)

// OAuthResult contains the result of an OAuth authorization flow.
type OAuthResult struct {
	Token *oauth2.Token
	err   error
}

func (o *OAuthResult) Error() error {
	return o.err
}

// OAuthHandler handles the authorization code callback of a PKCE flow.
// Implements the Handler interface for registration with a Router.
type OAuthHandler struct {
	config      *oauth2.Config
	state       string
	verifier    string
	resultChan  chan OAuthResult
	once        sync.Once
	callbackHit bool
	mu          sync.Mutex
}

// NewOAuthHandler creates a handler with a random state token and PKCE verifier.
func NewOAuthHandler(config *oauth2.Config) *OAuthHandler {
	return &OAuthHandler{
		config:     config,
		state:      shared.GenerateID(),
		verifier:   oauth2.GenerateVerifier(),
		resultChan: make(chan OAuthResult, 1),
	}
}

// AuthURL is the consent page. Offline access with forced consent makes Google return a
// refresh token even for a channel that was authorized before.
func (h *OAuthHandler) AuthURL() string {
	return h.config.AuthCodeURL(h.state,
		oauth2.AccessTypeOffline,
		oauth2.ApprovalForce,
		oauth2.S256ChallengeOption(h.verifier),
	)
}

// Routes returns the HTTP routes this handler serves.
func (h *OAuthHandler) Routes() []string {
	return []string{"/callback"}
}

var successPage = template.Must(template.New("success").Parse(`<!DOCTYPE html>
<html>
<head>
    <title>vidpub authorized</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
               display: flex; align-items: center; justify-content: center; height: 100vh;
               margin: 0; background: #f5f5f5; }
        .container { text-align: center; background: white; padding: 2rem;
                     border-radius: 8px; box-shadow: 0 2px 4px rgba(0,0,0,0.1); }
        h1 { color: #7D56F4; margin: 0 0 1rem 0; }
        p { color: #666; margin: 0; }
    </style>
</head>
<body>
    <div class="container">
        <h1>Authorization successful</h1>
        <p>{{.}} can now publish. You can close this window and return to the terminal.</p>
    </div>
</body>
</html>
`))

// ServeHTTP validates the state parameter, exchanges the code with the PKCE verifier, and
// sends the result through the result channel. Only the first callback is processed.
func (h *OAuthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	if h.callbackHit {
		h.mu.Unlock()
		http.Error(w, "Callback already processed", http.StatusBadRequest)
		return
	}
	h.callbackHit = true
	h.mu.Unlock()

	query := r.URL.Query()
	if query.Get("state") != h.state {
		h.Send(OAuthResult{err: fmt.Errorf("%w: invalid state parameter", shared.ErrAuthFailed)})
		http.Error(w, "Invalid state parameter", http.StatusBadRequest)
		return
	}

	code := query.Get("code")
	if code == "" {
		err := fmt.Errorf("%w: %s - %s", shared.ErrAuthFailed, query.Get("error"), query.Get("error_description"))
		h.Send(OAuthResult{err: err})
		http.Error(w, "Authorization failed", http.StatusBadRequest)
		return
	}

	token, err := h.config.Exchange(r.Context(), code, oauth2.VerifierOption(h.verifier))
	if err != nil {
		h.Send(OAuthResult{err: fmt.Errorf("token exchange failed: %w", err)})
		http.Error(w, "Token exchange failed", http.StatusInternalServerError)
		return
	}
	if token.RefreshToken == "" {
		h.Send(OAuthResult{err: fmt.Errorf("%w: no refresh token returned; revoke the app's access and retry", shared.ErrAuthFailed)})
		http.Error(w, "No refresh token returned", http.StatusBadGateway)
		return
	}

	h.Send(OAuthResult{Token: token})

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	successPage.Execute(w, "Your channel")
}

// Send sends the OAuth result through the channel (only once).
func (h *OAuthHandler) Send(result OAuthResult) {
	h.once.Do(func() {
		h.resultChan <- result
		close(h.resultChan)
	})
}

// Result returns the result channel for receiving OAuth flow completion.
//
// Channel will receive exactly one result and then be closed.
func (h *OAuthHandler) Result() <-chan OAuthResult {
	return h.resultChan
}
