package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
)

func appsCommand() *cli.Command {
	return &cli.Command{
		Name:  "apps",
		Usage: "inspect platform applications",
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "list applications",
				Action: appsListAction,
			},
			{
				Name:      "get",
				Usage:     "show one application and its versions",
				ArgsUsage: "<application-id>",
				Action:    appsGetAction,
			},
		},
	}
}

func appsListAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := setup(cmd)
	if err != nil {
		return err
	}
	manager, err := newManager(cfg)
	if err != nil {
		return err
	}
	client, err := newPlatformClient(cfg, manager)
	if err != nil {
		return err
	}

	apps, err := client.ListApplications(ctx)
	if err != nil {
		return err
	}
	return printJSON(apps)
}

func appsGetAction(ctx context.Context, cmd *cli.Command) error {
	applicationID := cmd.Args().First()
	if applicationID == "" {
		return fmt.Errorf("missing application ID")
	}

	cfg, err := setup(cmd)
	if err != nil {
		return err
	}
	manager, err := newManager(cfg)
	if err != nil {
		return err
	}
	client, err := newPlatformClient(cfg, manager)
	if err != nil {
		return err
	}

	app, err := client.GetApplication(ctx, applicationID)
	if err != nil {
		return err
	}
	versions, err := client.ListVersions(ctx, applicationID)
	if err != nil {
		return err
	}

	return printJSON(map[string]any{
		"application": app,
		"versions":    versions,
	})
}

func versionsCommand() *cli.Command {
	return &cli.Command{
		Name:  "versions",
		Usage: "inspect application versions",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "list versions of an application",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "app",
						Usage:    "application ID",
						Required: true,
					},
				},
				Action: versionsListAction,
			},
		},
	}
}

func versionsListAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := setup(cmd)
	if err != nil {
		return err
	}
	manager, err := newManager(cfg)
	if err != nil {
		return err
	}
	client, err := newPlatformClient(cfg, manager)
	if err != nil {
		return err
	}

	versions, err := client.ListVersions(ctx, cmd.String("app"))
	if err != nil {
		return err
	}
	return printJSON(versions)
}

func runsCommand() *cli.Command {
	return &cli.Command{
		Name:  "runs",
		Usage: "inspect application runs",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "list runs",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "app",
						Usage: "filter by application ID",
					},
				},
				Action: runsListAction,
			},
			{
				Name:      "get",
				Usage:     "show one run with its item results",
				ArgsUsage: "<run-id>",
				Action:    runsGetAction,
			},
			{
				Name:      "results",
				Usage:     "list the per-item results of a run",
				ArgsUsage: "<run-id>",
				Action:    runsResultsAction,
			},
		},
	}
}

func runsResultsAction(ctx context.Context, cmd *cli.Command) error {
	runID := cmd.Args().First()
	if runID == "" {
		return fmt.Errorf("missing run ID")
	}

	cfg, err := setup(cmd)
	if err != nil {
		return err
	}
	manager, err := newManager(cfg)
	if err != nil {
		return err
	}
	client, err := newPlatformClient(cfg, manager)
	if err != nil {
		return err
	}

	results, err := client.ListRunResults(ctx, runID)
	if err != nil {
		return err
	}
	return printJSON(results)
}

func runsListAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := setup(cmd)
	if err != nil {
		return err
	}
	manager, err := newManager(cfg)
	if err != nil {
		return err
	}
	client, err := newPlatformClient(cfg, manager)
	if err != nil {
		return err
	}

	runs, err := client.ListRuns(ctx, cmd.String("app"))
	if err != nil {
		return err
	}
	return printJSON(runs)
}

func runsGetAction(ctx context.Context, cmd *cli.Command) error {
	runID := cmd.Args().First()
	if runID == "" {
		return fmt.Errorf("missing run ID")
	}

	cfg, err := setup(cmd)
	if err != nil {
		return err
	}
	manager, err := newManager(cfg)
	if err != nil {
		return err
	}
	client, err := newPlatformClient(cfg, manager)
	if err != nil {
		return err
	}

	// Run metadata and item results are independent reads.
	var (
		out struct {
			Run     any `json:"run"`
			Results any `json:"results"`
		}
		g, gCtx = errgroup.WithContext(ctx)
	)
	g.Go(func() error {
		run, err := client.GetRun(gCtx, runID)
		if err != nil {
			return err
		}
		out.Run = run
		return nil
	})
	g.Go(func() error {
		results, err := client.ListRunResults(gCtx, runID)
		if err != nil {
			return err
		}
		out.Results = results
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	return printJSON(out)
}

// printJSON renders command output as indented JSON on stdout.
func printJSON(v any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
