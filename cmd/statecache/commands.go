package main

import "github.com/urfave/cli/v3"

func commonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to configuration file",
			Value:   "statecache.toml",
		},
		&cli.StringFlag{
			Name:  "driver",
			Usage: "SQL driver, overrides [sql] driver",
		},
		&cli.StringFlag{
			Name:  "dsn",
			Usage: "SQL data source name, overrides [sql] dsn",
		},
		&cli.StringFlag{
			Name:  "scope",
			Usage: "Account scope, overrides scope",
		},
		&cli.BoolFlag{
			Name:  "verbose",
			Usage: "Log at debug level",
		},
	}
}

func withFlags(flags ...cli.Flag) []cli.Flag {
	return append(commonFlags(), flags...)
}

func migrateCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "migrate",
		Usage:  "Create the cache tables",
		Flags:  commonFlags(),
		Action: r.Migrate,
	}
}

func statsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Show cached rows per namespace",
		Flags: withFlags(
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
		),
		Action: r.Stats,
	}
}

func libraryCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "library",
		Usage: "Show the stored library snapshot of a saved repository",
		Flags: withFlags(
			&cli.StringFlag{
				Name:  "name",
				Usage: "Repository name",
				Value: "saved",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
		),
		Action: r.Library,
	}
}

func invalidateCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "invalidate",
		Usage: "Drop the cached entities and library of a repository",
		Flags: withFlags(
			&cli.StringFlag{
				Name:     "name",
				Usage:    "Repository name",
				Required: true,
			},
		),
		Action: r.Invalidate,
	}
}
