// Command gdrive-auth mints the Google Drive refresh token the gdrive
// storage provider reads from GDRIVE_REFRESH_TOKEN. It runs the OAuth
// consent flow against a temporary localhost callback and prints the
// resulting token.
package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	drive "google.golang.org/api/drive/v3"
)

const consentTimeout = 3 * time.Minute

func main() {
	if err := run(context.Background()); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context) error {
	clientID := os.Getenv("GDRIVE_CLIENT_ID")
	clientSecret := os.Getenv("GDRIVE_CLIENT_SECRET")
	if clientID == "" || clientSecret == "" {
		return fmt.Errorf("GDRIVE_CLIENT_ID and GDRIVE_CLIENT_SECRET must be set")
	}

	cb, err := startCallback()
	if err != nil {
		return err
	}
	defer cb.close()

	conf := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     google.Endpoint,
		// drive.file scope only: the provider manages its own uploads
		// and never needs the rest of the Drive.
		Scopes:      []string{drive.DriveFileScope},
		RedirectURL: cb.redirectURL,
	}

	consentURL := conf.AuthCodeURL(
		cb.state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
	)
	fmt.Printf("Visit the following URL to authorize clipforge:\n\n  %s\n\n", consentURL)
	fmt.Printf("Listening for the callback on %s ...\n", cb.redirectURL)

	code, err := cb.await(consentTimeout)
	if err != nil {
		return err
	}

	tok, err := conf.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("token exchange failed: %w", err)
	}
	if tok.RefreshToken == "" {
		return fmt.Errorf("google returned no refresh token; revoke clipforge's access at https://myaccount.google.com/permissions and rerun")
	}

	fmt.Printf("\nGDRIVE_REFRESH_TOKEN=%s\n", tok.RefreshToken)
	return nil
}

// callback is a one-shot localhost receiver for the OAuth redirect.
type callback struct {
	redirectURL string
	state       string
	srv         *http.Server
	codes       chan string
	errs        chan error
}

func startCallback() (*callback, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}

	cb := &callback{
		redirectURL: fmt.Sprintf("http://%s/oauth/callback", ln.Addr().String()),
		state:       nonce(),
		codes:       make(chan string, 1),
		errs:        make(chan error, 1),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/callback", cb.handle)
	cb.srv = &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() { _ = cb.srv.Serve(ln) }()

	return cb, nil
}

func (cb *callback) handle(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	switch {
	case q.Get("state") != cb.state:
		http.Error(w, "state mismatch", http.StatusBadRequest)
		cb.errs <- fmt.Errorf("oauth callback state mismatch")
	case q.Get("error") != "":
		http.Error(w, "consent denied", http.StatusBadRequest)
		cb.errs <- fmt.Errorf("consent denied: %s", q.Get("error"))
	case q.Get("code") == "":
		http.Error(w, "missing code", http.StatusBadRequest)
		cb.errs <- fmt.Errorf("oauth callback carried no code")
	default:
		fmt.Fprintln(w, "Authorized. Return to the terminal.")
		cb.codes <- q.Get("code")
	}
}

func (cb *callback) await(timeout time.Duration) (string, error) {
	select {
	case code := <-cb.codes:
		return code, nil
	case err := <-cb.errs:
		return "", err
	case <-time.After(timeout):
		return "", fmt.Errorf("no authorization after %s", timeout)
	}
}

func (cb *callback) close() {
	_ = cb.srv.Close()
}

func nonce() string {
	b := make([]byte, 18)
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}
