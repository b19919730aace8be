package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/melodyflow/internal/server"
	"github.com/desertthunder/melodyflow/internal/session"
	"github.com/desertthunder/melodyflow/internal/shared"
)

const loginTimeout = 2 * time.Minute

// Login runs the authorization code flow with PKCE.
//
// Starts a local HTTP server on the redirect URI, opens the browser for user
// authorization, and exchanges the returned code for tokens.
func (r *Runner) Login(ctx context.Context, cmd *cli.Command) error {
	authz, err := r.auth.BeginAuthorization(ctx)
	if err != nil {
		return err
	}

	redirect, err := url.Parse(r.config.Credentials.Spotify.RedirectURI)
	if err != nil || redirect.Host == "" {
		return fmt.Errorf("%w: redirect_uri %q is not a valid URL", shared.ErrInvalidConfig, r.config.Credentials.Spotify.RedirectURI)
	}

	code, err := r.awaitCallback(ctx, redirect, authz.URL, authz.State, !cmd.Bool("no-browser"), cmd.Duration("timeout"))
	if err != nil {
		return err
	}

	if err := r.auth.CompleteAuthorization(ctx, code); err != nil {
		return err
	}

	if me, err := r.spotify.Me(ctx); err == nil {
		r.writePlainln("✓ Logged in as %s", me.DisplayName)
	} else {
		r.logger.Warn("logged in but failed to fetch profile", "error", err)
		r.writePlainln("✓ Logged in")
	}
	return nil
}

// awaitCallback serves the redirect URI until one callback arrives, the timeout elapses or ctx ends.
func (r *Runner) awaitCallback(ctx context.Context, redirect *url.URL, authURL, state string, openBrowser bool, timeout time.Duration) (string, error) {
	handler := server.NewCallbackHandler(redirect.Path, state)
	srv := &http.Server{
		Addr:              redirect.Host,
		Handler:           server.NewCallbackRouter(handler),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ln, err := net.Listen("tcp", redirect.Host)
	if err != nil {
		return "", fmt.Errorf("failed to listen on %s: %w", redirect.Host, err)
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			r.logger.Warn("failed to shut down callback server", "error", err)
		}
	}()

	if openBrowser {
		r.writePlain("Opening browser for authorization...\n")
		if err := shared.OpenBrowser(authURL); err != nil {
			r.logger.Warn("failed to open browser", "error", err)
			openBrowser = false
		}
	}
	if !openBrowser {
		r.writePlain("Open this URL in your browser to continue:\n\n%s\n\n", authURL)
	}
	r.writePlain("Waiting for authorization callback on %s...\n", redirect.String())

	if timeout <= 0 {
		timeout = loginTimeout
	}
	timer := r.clock.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-handler.Result():
		if res.Err != nil {
			return "", res.Err
		}
		return res.Code, nil
	case err := <-serverErr:
		return "", fmt.Errorf("callback server failed: %w", err)
	case <-timer.Chan():
		return "", fmt.Errorf("%w: timed out waiting for the browser callback", shared.ErrAuthorizationFailed)
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Logout clears the stored tokens.
func (r *Runner) Logout(ctx context.Context, cmd *cli.Command) error {
	if err := r.auth.Logout(ctx); err != nil {
		return err
	}
	r.writePlain("✓ Logged out\n")
	return nil
}

// Whoami prints the current user and session state.
func (r *Runner) Whoami(ctx context.Context, cmd *cli.Command) error {
	if !r.auth.Session().LoggedIn() {
		return fmt.Errorf("%w: not logged in", shared.ErrNotAuthenticated)
	}

	me, err := r.spotify.Me(ctx)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(me, true)
	}

	r.writePlain("%s (%s)\n", me.DisplayName, me.ID)
	if me.Email != "" {
		r.writePlain("Email:     %s\n", me.Email)
	}
	if me.Product != "" {
		r.writePlain("Plan:      %s\n", me.Product)
	}
	r.writePlain("Followers: %d\n", me.Followers.Total)
	if exp, ok := r.auth.Session().Expiry(); ok {
		r.writePlain("Token:     expires %s\n", exp.Local().Format(time.Kitchen))
	}
	return nil
}

// View prints or sets the persisted default screen.
func (r *Runner) View(ctx context.Context, cmd *cli.Command) error {
	name := cmd.StringArg("name")
	if name == "" {
		return r.writePlain("%s\n", r.session.View())
	}

	v, err := session.ParseView(name)
	if err != nil {
		return err
	}
	if err := r.session.SetView(ctx, v); err != nil {
		return fmt.Errorf("failed to save view: %w", err)
	}
	return r.writePlain("✓ Default view set to %s\n", v)
}
