package main

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"pkt.systems/swissblade"
	"pkt.systems/swissblade/core"
	"pkt.systems/swissblade/internal/command"
	"pkt.systems/swissblade/schema"
)

// withApp opens the stores for the duration of fn.
func withApp(cmd *cobra.Command, opts *rootOptions, fn func(app *swissblade.App) error) error {
	app, err := openApp(cmd, opts)
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()
	return fn(app)
}

func newTabsCmd(opts *rootOptions) *cobra.Command {
	var out outputOptions
	cmd := &cobra.Command{
		Use:   "tabs",
		Short: "List and manage open tool tabs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(app *swissblade.App) error {
				snapshot := app.Service.Tabs.Snapshot()
				return out.emit(cmd, snapshot, formatTabs(snapshot))
			})
		},
	}
	out.bind(cmd)

	open := func(use, short string, add bool) *cobra.Command {
		return &cobra.Command{
			Use:   use + " <tool>",
			Short: short,
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				tool, ok := command.ResolveTool(strings.Join(args, " "))
				if !ok {
					return fmt.Errorf("%w: %s", schema.ErrUnknownTool, strings.Join(args, " "))
				}
				return withApp(cmd, opts, func(app *swissblade.App) error {
					openFn := app.Service.Tabs.OpenOrFocusTab
					if add {
						openFn = app.Service.Tabs.AddTab
					}
					id, err := openFn(cmd.Context(), tool.ID, tool.Title)
					if err != nil {
						return err
					}
					_, err = fmt.Fprintln(cmd.OutOrStdout(), id)
					return err
				})
			},
		}
	}
	cmd.AddCommand(open("open", "Open or focus a tab for a tool", false))
	cmd.AddCommand(open("add", "Open another tab for a tool", true))
	cmd.AddCommand(&cobra.Command{
		Use:   "close <n|id>",
		Short: "Close a tab",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(app *swissblade.App) error {
				id, err := resolveTabArg(app.Service, args[0])
				if err != nil {
					return err
				}
				return app.Service.Tabs.RemoveTab(cmd.Context(), id)
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "activate <n|id>",
		Short: "Make a tab active",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(app *swissblade.App) error {
				id, err := resolveTabArg(app.Service, args[0])
				if err != nil {
					return err
				}
				return app.Service.Tabs.SetActiveTab(cmd.Context(), id)
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "rename <n|id> <title>",
		Short: "Rename a tab",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(app *swissblade.App) error {
				id, err := resolveTabArg(app.Service, args[0])
				if err != nil {
					return err
				}
				return app.Service.Tabs.UpdateTabTitle(cmd.Context(), id, strings.Join(args[1:], " "))
			})
		},
	})
	return cmd
}

func resolveTabArg(svc *core.Service, arg string) (schema.TabID, error) {
	snapshot := svc.Tabs.Snapshot()
	if n, err := strconv.Atoi(arg); err == nil {
		if n < 1 || n > len(snapshot.Tabs) {
			return "", fmt.Errorf("%w: %d", schema.ErrTabNotFound, n)
		}
		return snapshot.Tabs[n-1].ID, nil
	}
	id := schema.TabID(arg)
	if _, ok := svc.Tabs.Get(id); !ok {
		return "", fmt.Errorf("%w: %s", schema.ErrTabNotFound, arg)
	}
	return id, nil
}

func formatTabs(snapshot schema.TabsSnapshot) string {
	if len(snapshot.Tabs) == 0 {
		return "no tabs open"
	}
	active := snapshot.Active()
	lines := make([]string, 0, len(snapshot.Tabs))
	for i, tab := range snapshot.Tabs {
		marker := " "
		if tab.ID == active {
			marker = "*"
		}
		lines = append(lines, fmt.Sprintf("%s %d. %-24s %-20s %s", marker, i+1, tab.Title, tab.ToolID, tab.ID))
	}
	return strings.Join(lines, "\n")
}

func newSettingsCmd(opts *rootOptions) *cobra.Command {
	var out outputOptions
	var theme, language, panicKey string
	var sidebar, boss string
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change preferences",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var patch schema.SettingsPatch
			flags := cmd.Flags()
			if flags.Changed("theme") {
				patch.Theme = &theme
			}
			if flags.Changed("language") {
				patch.Language = &language
			}
			if flags.Changed("panic-key") {
				patch.PanicKey = &panicKey
			}
			if flags.Changed("sidebar-collapsed") {
				v, err := strconv.ParseBool(sidebar)
				if err != nil {
					return fmt.Errorf("%w: sidebar-collapsed: %v", schema.ErrInvalidRequest, err)
				}
				patch.SidebarCollapsed = &v
			}
			if flags.Changed("boss-mode") {
				v, err := strconv.ParseBool(boss)
				if err != nil {
					return fmt.Errorf("%w: boss-mode: %v", schema.ErrInvalidRequest, err)
				}
				patch.BossModeActive = &v
			}
			return withApp(cmd, opts, func(app *swissblade.App) error {
				settings, err := app.Service.Settings.Update(cmd.Context(), patch)
				if err != nil {
					return err
				}
				return out.emit(cmd, settings, "")
			})
		},
	}
	out.bind(cmd)
	cmd.Flags().StringVar(&theme, "theme", "", "theme (system, light, dark)")
	cmd.Flags().StringVar(&language, "language", "", "UI language tag")
	cmd.Flags().StringVar(&panicKey, "panic-key", "", "boss mode panic key")
	cmd.Flags().StringVar(&sidebar, "sidebar-collapsed", "", "collapse the sidebar (true|false)")
	cmd.Flags().StringVar(&boss, "boss-mode", "", "activate boss mode (true|false)")
	return cmd
}

func newClicksCmd(opts *rootOptions) *cobra.Command {
	var out outputOptions
	var add int64
	var reset bool
	var persist string
	cmd := &cobra.Command{
		Use:   "clicks",
		Short: "Show or change the click saver counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(app *swissblade.App) error {
				ctx := cmd.Context()
				clicks := app.Service.Clicks
				if cmd.Flags().Changed("persist") {
					v, err := strconv.ParseBool(persist)
					if err != nil {
						return fmt.Errorf("%w: persist: %v", schema.ErrInvalidRequest, err)
					}
					if _, err := clicks.SetPersist(ctx, v); err != nil {
						return err
					}
				}
				if reset {
					if _, err := clicks.ResetSession(ctx); err != nil {
						return err
					}
				}
				if add > 0 {
					if _, err := clicks.Increment(ctx, add); err != nil {
						return err
					}
				}
				state := clicks.State()
				stats := core.ComputeClickStats(state.Lifetime)
				payload := struct {
					schema.ClickTrackerState
					Stats core.ClickStats `json:"stats"`
				}{state, stats}
				text := fmt.Sprintf("lifetime %s, session %s, %.2f km, %.1f min saved, badges %d/%d",
					humanize.Comma(state.Lifetime), humanize.Comma(state.Session),
					stats.DistanceKm, stats.TimeSavedMinutes, stats.EarnedBadges, len(stats.Badges))
				return out.emit(cmd, payload, text)
			})
		},
	}
	out.bind(cmd)
	cmd.Flags().Int64Var(&add, "add", 0, "record this many saved clicks")
	cmd.Flags().BoolVar(&reset, "reset", false, "reset the session counter")
	cmd.Flags().StringVar(&persist, "persist", "", "persist the lifetime counter (true|false)")
	return cmd
}

func newRouletteCmd(opts *rootOptions) *cobra.Command {
	var out outputOptions
	cmd := &cobra.Command{
		Use:   "roulette",
		Short: "Deploy roulette",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(app *swissblade.App) error {
				state := app.Service.Deploy.State()
				text := fmt.Sprintf("deploys %d, rickrolls %d, survival %.1f%%",
					state.Stats.Deploys, state.Stats.Rickrolls, app.Service.Deploy.SurvivalRate())
				return out.emit(cmd, state, text)
			})
		},
	}
	out.bind(cmd)

	var launch bool
	spin := &cobra.Command{
		Use:   "spin",
		Short: "Spin the wheel; deploys launch the configured command when --launch is set",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(app *swissblade.App) error {
				result, err := app.Service.Deploy.Spin(cmd.Context(), rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())))
				if err != nil {
					return err
				}
				line := "DEPLOY: you survived"
				if !result.Survived {
					line = "RICKROLL: never gonna give you up"
				}
				if _, err := fmt.Fprintln(cmd.OutOrStdout(), line); err != nil {
					return err
				}
				if !launch || !result.Survived {
					return nil
				}
				state := app.Service.Deploy.State()
				status, err := app.Launcher.Launch(cmd.Context(), state.Directory, state.DeployCommand)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), status)
				return err
			})
		},
	}
	spin.Flags().BoolVar(&launch, "launch", false, "open a terminal running the deploy command on success")
	cmd.AddCommand(spin)

	var directory, deployCommand string
	configure := &cobra.Command{
		Use:   "config",
		Short: "Set the deploy directory and command",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(app *swissblade.App) error {
				if cmd.Flags().Changed("directory") {
					if err := app.Service.Deploy.SetDirectory(cmd.Context(), directory); err != nil {
						return err
					}
				}
				if cmd.Flags().Changed("command") {
					if err := app.Service.Deploy.SetDeployCommand(cmd.Context(), deployCommand); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
	configure.Flags().StringVar(&directory, "directory", "", "working directory for the deploy command")
	configure.Flags().StringVar(&deployCommand, "command", "", "deploy command to run")
	cmd.AddCommand(configure)

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Clear the spin history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(app *swissblade.App) error {
				return app.Service.Deploy.ClearHistory(cmd.Context())
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "reset",
		Short: "Reset counters and history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(app *swissblade.App) error {
				return app.Service.Deploy.ResetStats(cmd.Context())
			})
		},
	})
	return cmd
}
