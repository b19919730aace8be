// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func jsonFlag() cli.Flag {
	return &cli.BoolFlag{Name: "json", Usage: "Output raw JSON"}
}

func limitFlag(value int) cli.Flag {
	return &cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Usage: "Maximum number of results", Value: value}
}

func deviceFlag() cli.Flag {
	return &cli.StringFlag{Name: "device", Aliases: []string{"d"}, Usage: "Target device ID (defaults to the active device)"}
}

// setupCommand handles setup operations for the local database and the backing store.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:   "database",
				Usage:  "Create config.toml if missing, initialize the local database and run migrations",
				Action: r.SetupDatabase,
			},
			{
				Name:   "store",
				Usage:  "Create the requests table in the configured backing store",
				Action: r.SetupStore,
			},
		},
	}
}

// settingsCommand manages the credentials used for the streaming API and the backing store.
func settingsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "settings",
		Usage: "Manage API credentials",
		Commands: []*cli.Command{
			{
				Name:   "show",
				Usage:  "Show the credentials in effect (secrets masked)",
				Flags:  []cli.Flag{jsonFlag()},
				Action: r.SettingsShow,
			},
			{
				Name:  "set",
				Usage: "Save credentials; they take precedence over config.toml and the environment",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "client-id", Usage: "Spotify client ID"},
					&cli.StringFlag{Name: "client-secret", Usage: "Spotify client secret (stored only)"},
					&cli.StringFlag{Name: "store-url", Usage: "Backing store URL (https://, postgres:// or sqlite://)"},
					&cli.StringFlag{Name: "store-key", Usage: "Backing store access key"},
					&cli.BoolFlag{Name: "clear", Usage: "Remove all saved credentials"},
				},
				Action: r.SettingsSet,
			},
			{
				Name:  "test",
				Usage: "Check that the backing store is reachable",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "store-url", Usage: "Store URL to test instead of the saved one"},
					&cli.StringFlag{Name: "store-key", Usage: "Store key to test instead of the saved one"},
				},
				Action: r.SettingsTest,
			},
			{
				Name:  "export",
				Usage: "Write the saved credentials to a backup file",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "Backup file path"},
				},
				Action: r.SettingsExport,
			},
			{
				Name:      "import",
				Usage:     "Load credentials from a backup file",
				Arguments: []cli.Argument{&cli.StringArg{Name: "path"}},
				Action:    r.SettingsImport,
			},
		},
	}
}

func loginCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "Log in to Spotify in the browser",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "no-browser", Usage: "Print the authorization URL instead of opening it"},
			&cli.DurationFlag{Name: "timeout", Usage: "How long to wait for the browser callback", Value: loginTimeout},
		},
		Action: r.Login,
	}
}

func logoutCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "logout",
		Usage:  "Forget the stored tokens",
		Action: r.Logout,
	}
}

func whoamiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "whoami",
		Usage:  "Show the logged in user and session state",
		Flags:  []cli.Flag{jsonFlag()},
		Action: r.Whoami,
	}
}

func viewCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "view",
		Usage:     "Show or set the default screen (dashboard, search, dj)",
		Arguments: []cli.Argument{&cli.StringArg{Name: "name"}},
		Action:    r.View,
	}
}

// browseCommand handles catalog browsing.
func browseCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "browse",
		Usage: "Browse the catalog",
		Commands: []*cli.Command{
			{
				Name:   "new-releases",
				Usage:  "List new album releases",
				Flags:  []cli.Flag{limitFlag(10), jsonFlag()},
				Action: r.BrowseNewReleases,
			},
			{
				Name:   "featured",
				Usage:  "List featured playlists",
				Flags:  []cli.Flag{limitFlag(10), jsonFlag()},
				Action: r.BrowseFeatured,
			},
			{
				Name:   "playlists",
				Usage:  "List your playlists",
				Flags:  []cli.Flag{limitFlag(20), jsonFlag()},
				Action: r.BrowsePlaylists,
			},
			{
				Name:  "top",
				Usage: "List your top tracks",
				Flags: []cli.Flag{
					limitFlag(10),
					jsonFlag(),
					&cli.StringFlag{Name: "range", Usage: "short_term, medium_term or long_term", Value: "short_term"},
				},
				Action: r.BrowseTop,
			},
		},
	}
}

func searchCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Search tracks and artists",
		Arguments: []cli.Argument{&cli.StringArg{Name: "query"}},
		Flags:     []cli.Flag{limitFlag(20), jsonFlag()},
		Action:    r.Search,
	}
}

func recommendCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "recommend",
		Usage: "Suggest tracks from seed tracks (your top tracks when no seed is given)",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{Name: "seed", Aliases: []string{"s"}, Usage: "Seed track ID (repeatable, up to 5)"},
			limitFlag(10),
			jsonFlag(),
		},
		Action: r.Recommend,
	}
}

// requestsCommand handles the song request queue.
func requestsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "requests",
		Aliases: []string{"req"},
		Usage:   "Submit and manage song requests",
		Commands: []*cli.Command{
			{
				Name:  "submit",
				Usage: "Request a track",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "track", Aliases: []string{"t"}, Usage: "Track ID", Required: true},
					jsonFlag(),
				},
				Action: r.RequestsSubmit,
			},
			{
				Name:  "list",
				Usage: "List requests",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "view", Usage: "pending, history, queue or all", Value: "all"},
					jsonFlag(),
				},
				Action: r.RequestsList,
			},
			{
				Name:      "play",
				Usage:     "Mark a pending request as played",
				Arguments: []cli.Argument{&cli.StringArg{Name: "id"}},
				Action:    r.RequestsPlay,
			},
			{
				Name:      "reject",
				Usage:     "Reject a pending request",
				Arguments: []cli.Argument{&cli.StringArg{Name: "id"}},
				Action:    r.RequestsReject,
			},
			{
				Name:   "watch",
				Usage:  "Stream request changes until interrupted",
				Action: r.RequestsWatch,
			},
			{
				Name:  "export",
				Usage: "Export request history",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Usage: "csv, md or txt", Value: "csv"},
					&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "Output path (base name for csv, directory for md)"},
					&cli.StringFlag{Name: "title", Usage: "Export title", Value: "Song Requests"},
				},
				Action: r.RequestsExport,
			},
		},
	}
}

// playerCommand is the playback remote control.
func playerCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "player",
		Usage: "Control playback",
		Commands: []*cli.Command{
			{
				Name:   "state",
				Usage:  "Show what is playing",
				Flags:  []cli.Flag{jsonFlag()},
				Action: r.PlayerState,
			},
			{
				Name:   "devices",
				Usage:  "List available devices",
				Flags:  []cli.Flag{jsonFlag()},
				Action: r.PlayerDevices,
			},
			{
				Name:  "play",
				Usage: "Start or resume playback",
				Flags: []cli.Flag{
					deviceFlag(),
					&cli.StringSliceFlag{Name: "uri", Usage: "Track URI to play (repeatable)"},
					&cli.StringFlag{Name: "context", Usage: "Album, artist or playlist URI"},
					&cli.StringFlag{Name: "offset-uri", Usage: "Track URI within the context to start at"},
				},
				Action: r.PlayerPlay,
			},
			{
				Name:   "pause",
				Usage:  "Pause playback",
				Flags:  []cli.Flag{deviceFlag()},
				Action: r.PlayerPause,
			},
			{
				Name:   "next",
				Usage:  "Skip to the next track",
				Flags:  []cli.Flag{deviceFlag()},
				Action: r.PlayerNext,
			},
			{
				Name:   "previous",
				Usage:  "Skip to the previous track",
				Flags:  []cli.Flag{deviceFlag()},
				Action: r.PlayerPrevious,
			},
			{
				Name:      "volume",
				Usage:     "Set the volume (0-100)",
				Arguments: []cli.Argument{&cli.StringArg{Name: "percent"}},
				Flags:     []cli.Flag{deviceFlag()},
				Action:    r.PlayerVolume,
			},
			{
				Name:      "transfer",
				Usage:     "Move playback to a device",
				Arguments: []cli.Argument{&cli.StringArg{Name: "device"}},
				Action:    r.PlayerTransfer,
			},
		},
	}
}

// apiCommand handles direct authenticated API calls
func apiCommand(r *Runner) *cli.Command {
	dataFlag := func() cli.Flag {
		return &cli.StringFlag{Name: "data", Aliases: []string{"d"}, Usage: "JSON body to send"}
	}
	return &cli.Command{
		Name:  "api",
		Usage: "Direct authenticated calls to the Web API",
		Commands: []*cli.Command{
			{
				Name:      "get",
				Usage:     "GET a path, prints raw JSON",
				Arguments: []cli.Argument{&cli.StringArg{Name: "path"}},
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "pretty", Usage: "Pretty-print output", Value: true},
				},
				Action: r.APIGet,
			},
			{
				Name:      "put",
				Usage:     "PUT a path with an optional JSON body",
				Arguments: []cli.Argument{&cli.StringArg{Name: "path"}},
				Flags:     []cli.Flag{dataFlag()},
				Action:    r.APIPut,
			},
			{
				Name:      "post",
				Usage:     "POST a path with an optional JSON body",
				Arguments: []cli.Argument{&cli.StringArg{Name: "path"}},
				Flags:     []cli.Flag{dataFlag()},
				Action:    r.APIPost,
			},
		},
	}
}

// djCommand returns the top-level DJ console command.
func djCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "dj",
		Aliases: []string{"tui", "ui"},
		Usage:   "Launch the interactive DJ console",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "log-file", Usage: "Where to write logs while the console runs", Value: "./tmp/melodyflow-dj.log"},
		},
		Action: r.DJ,
	}
}
