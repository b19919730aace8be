package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/melodyflow/internal/shared"
)

// APIGet makes a direct authenticated GET request and prints the response.
func (r *Runner) APIGet(ctx context.Context, cmd *cli.Command) error {
	return r.apiCall(ctx, cmd, http.MethodGet)
}

// APIPut makes a direct authenticated PUT request with an optional JSON body.
func (r *Runner) APIPut(ctx context.Context, cmd *cli.Command) error {
	return r.apiCall(ctx, cmd, http.MethodPut)
}

// APIPost makes a direct authenticated POST request with an optional JSON body.
func (r *Runner) APIPost(ctx context.Context, cmd *cli.Command) error {
	return r.apiCall(ctx, cmd, http.MethodPost)
}

func (r *Runner) apiCall(ctx context.Context, cmd *cli.Command, method string) error {
	path := cmd.StringArg("path")
	if path == "" {
		return fmt.Errorf("%w: API path", shared.ErrMissingArgument)
	}

	var body any
	if method != http.MethodGet {
		if data := cmd.String("data"); data != "" {
			if !json.Valid([]byte(data)) {
				return fmt.Errorf("%w: data is not valid JSON", shared.ErrInvalidArgument)
			}
			body = json.RawMessage(data)
		}
	}

	r.logger.Info("API request", "method", method, "path", path)

	raw, err := r.spotify.Raw(ctx, method, path, body)
	if err != nil {
		return err
	}
	if len(raw) == 0 {
		return r.writePlain("✓ %s %s (no content)\n", method, path)
	}

	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		_, werr := r.output.Write(append(raw, '\n'))
		return werr
	}
	pretty := method != http.MethodGet || cmd.Bool("pretty")
	return r.writeJSON(decoded, pretty)
}
