package main

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
	flag "github.com/spf13/pflag"

	"github.com/ernie/portal-repository/internal/domain"
	"github.com/ernie/portal-repository/internal/ingest"
	"github.com/ernie/portal-repository/internal/protectednames"
	"github.com/ernie/portal-repository/internal/search"
)

func newSearchCmd() *cobra.Command {
	var (
		byIP     bool
		gameType string
		order    string
		offset   int
		limit    int
	)

	cmd := &cobra.Command{
		Use:   "search <term>",
		Short: "Search players by username, GUID, alias or IP address",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := search.Query{Offset: offset, Limit: limit}
			if len(args) == 1 {
				q.Term = args[0]
			}
			if gameType != "" {
				gt, err := domain.ParseGameType(gameType)
				if err != nil {
					return err
				}
				q.GameType = &gt
			}
			var err error
			if q.Order, err = domain.ParsePlayerOrder(order); err != nil {
				return err
			}

			return withApp(func(ctx context.Context, a *app) error {
				var page *domain.PlayerPage
				if byIP {
					page, err = a.search.SearchByIP(ctx, q)
				} else {
					page, err = a.search.SearchPlayers(ctx, q)
				}
				if err != nil {
					return err
				}
				return newPrinter().print(page, func(w *tabwriter.Writer) {
					fmt.Fprintln(w, "ID\tGAME\tGUID\tUSERNAME\tIP\tLAST SEEN")
					fmt.Fprintln(w, "--\t----\t----\t--------\t--\t---------")
					for _, p := range page.Players {
						fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
							p.ID, p.GameType, p.GUID, p.Username, orDash(p.IPAddress), formatTime(p.LastSeen))
					}
					fmt.Fprintf(w, "\n%d of %d matching (%d total)\n", len(page.Players), page.FilteredCount, page.TotalCount)
				})
			})
		},
	}

	cmd.Flags().BoolVar(&byIP, "ip", false, "treat the term as an IP address or fragment")
	cmd.Flags().StringVar(&gameType, "game", "", "restrict to a game type")
	cmd.Flags().StringVar(&order, "order", "", "result order (default last-seen-desc)")
	addPageFlags(cmd.Flags(), &offset, &limit, search.DefaultLimit)
	return cmd
}

// addPageFlags registers the shared offset/limit flags
func addPageFlags(fs *flag.FlagSet, offset, limit *int, defaultLimit int) {
	fs.IntVar(offset, "offset", 0, "skip this many results")
	fs.IntVar(limit, "limit", defaultLimit, "maximum results")
}

func newSightingCmd() *cobra.Command {
	var viaNATS bool

	cmd := &cobra.Command{
		Use:   "sighting <game> <guid> <username> [ip]",
		Short: "Record a player sighting",
		Args:  cobra.RangeArgs(3, 4),
		RunE: func(cmd *cobra.Command, args []string) error {
			msg := ingest.SightingMessage{GameType: args[0], GUID: args[1], Username: args[2]}
			if len(args) == 4 {
				msg.IPAddress = args[3]
			}
			if viaNATS {
				return publishSighting(msg)
			}

			return withApp(func(ctx context.Context, a *app) error {
				sighting := domain.Sighting{
					GameType:  domain.GameType(msg.GameType),
					GUID:      msg.GUID,
					Username:  msg.Username,
					IPAddress: msg.IPAddress,
				}
				result, err := a.store.RecordSighting(ctx, sighting)
				if err != nil {
					return err
				}
				ingest.Announce(ctx, result, sighting, a.counts, domain.NopSink{}, a.clock)
				return printSightingResult(result.PlayerID, result.Created)
			})
		},
	}

	cmd.Flags().BoolVar(&viaNATS, "nats", false, "publish to the configured NATS subject instead of writing the database")
	return cmd
}

// publishSighting sends the sighting to a running server and waits for its reply
func publishSighting(msg ingest.SightingMessage) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Ingest.NATSURL == "" {
		return errors.New("no NATS URL configured (set ingest.nats_url or PORTAL_NATS_URL)")
	}

	conn, err := nats.Connect(cfg.Ingest.NATSURL, nats.Name("portal-cli"))
	if err != nil {
		return fmt.Errorf("connecting to NATS: %w", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	reply, err := ingest.Publish(ctx, conn, cfg.Ingest.Subject, msg)
	if err != nil {
		return err
	}
	return printSightingResult(reply.PlayerID, reply.Created)
}

func printSightingResult(playerID string, created bool) error {
	p := newPrinter()
	if p.table {
		if created {
			p.message("Created player %s", playerID)
		} else {
			p.message("Updated player %s", playerID)
		}
		return nil
	}
	return p.print(map[string]any{"player_id": playerID, "created": created}, nil)
}

func newProtectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "protect",
		Short: "Manage protected names",
	}

	var createdBy string
	add := &cobra.Command{
		Use:   "add <player-id> <name>",
		Short: "Reserve a name to a player",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				var by *string
				if createdBy != "" {
					by = &createdBy
				}
				pn, err := a.names.Create(ctx, args[0], args[1], by)
				if err != nil {
					return err
				}
				p := newPrinter()
				if p.table {
					p.message("Protected %q for player %s (id %s)", pn.Name, pn.PlayerID, pn.ID)
					return nil
				}
				return p.print(pn, nil)
			})
		},
	}
	add.Flags().StringVar(&createdBy, "by", "", "operator recorded as the creator")

	var offset, limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List protected names",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				page, err := a.names.List(ctx, offset, limit)
				if err != nil {
					return err
				}
				return newPrinter().print(page, func(w *tabwriter.Writer) {
					fmt.Fprintln(w, "ID\tNAME\tPLAYER\tCREATED")
					fmt.Fprintln(w, "--\t----\t------\t-------")
					for _, pn := range page.Names {
						fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", pn.ID, pn.Name, pn.PlayerID, formatTime(pn.CreatedOn))
					}
				})
			})
		},
	}

	addPageFlags(list.Flags(), &offset, &limit, protectednames.DefaultLimit)

	report := &cobra.Command{
		Use:   "report <protected-name-id>",
		Short: "Show every player that has used a protected name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				r, err := a.names.GetUsageReport(ctx, args[0])
				if err != nil {
					return err
				}
				return newPrinter().print(r, func(w *tabwriter.Writer) {
					fmt.Fprintf(w, "Protected name %q owned by %s (%s)\n\n", r.ProtectedName.Name, r.Owner.Username, r.Owner.ID)
					fmt.Fprintln(w, "PLAYER\tUSERNAME\tOWNER\tUSES\tLAST USED")
					fmt.Fprintln(w, "------\t--------\t-----\t----\t---------")
					for _, u := range r.Usages {
						owner := ""
						if u.IsOwner {
							owner = "yes"
						}
						fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
							u.Player.ID, u.Player.Username, orDash(owner), u.UsageCount, formatTime(u.LastUsed))
					}
					fmt.Fprintf(w, "\n%d impersonator(s)\n", len(protectednames.Impersonators(r)))
				})
			})
		},
	}

	cmd.AddCommand(add, list, report)
	return cmd
}

func newReconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Run activity tag reconciliation now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				report, err := a.reconciler.Reconcile(ctx)
				if err != nil {
					return err
				}
				p := newPrinter()
				if p.table {
					p.message("%d active, %d inactive: %d tags added, %d removed in %s",
						report.Active, report.Inactive, report.Added, report.Removed, report.Duration.Round(time.Millisecond))
					return nil
				}
				return p.print(report, nil)
			})
		},
	}
}

func newTagsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tags",
		Short: "List tags with player counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				list, err := a.tags.ListTags(ctx)
				if err != nil {
					return err
				}
				return newPrinter().print(list, func(w *tabwriter.Writer) {
					fmt.Fprintln(w, "ID\tNAME\tTYPE\tPLAYERS")
					fmt.Fprintln(w, "--\t----\t----\t-------")
					for _, t := range list {
						kind := "system"
						if t.UserDefined {
							kind = "user"
						}
						fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", t.ID, t.Name, kind, t.PlayerCount)
					}
				})
			})
		},
	}

	var description string
	create := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a user-defined tag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				tag, err := a.tags.CreateTag(ctx, args[0], description, true)
				if err != nil {
					return err
				}
				p := newPrinter()
				if p.table {
					p.message("Created tag %q (id %s)", tag.Name, tag.ID)
					return nil
				}
				return p.print(tag, nil)
			})
		},
	}
	create.Flags().StringVar(&description, "description", "", "tag description")

	var assignedBy string
	assign := &cobra.Command{
		Use:   "assign <player-id> <tag-id>",
		Short: "Assign a tag to a player",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				var by *string
				if assignedBy != "" {
					by = &assignedBy
				}
				pt, err := a.tags.AssignTag(ctx, args[0], args[1], by)
				if err != nil {
					return err
				}
				p := newPrinter()
				if p.table {
					p.message("Assigned tag %s to player %s (id %s)", pt.TagID, pt.PlayerID, pt.ID)
					return nil
				}
				return p.print(pt, nil)
			})
		},
	}
	assign.Flags().StringVar(&assignedBy, "by", "", "operator recorded as the assigner")

	cmd.AddCommand(create, assign)
	return cmd
}
