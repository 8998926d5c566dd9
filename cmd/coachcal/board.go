package main

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/spf13/cobra"

	"coachcal/internal/adapters/remote"
	"coachcal/internal/adapters/render"
	"coachcal/internal/adapters/storage/calendaritem"
	"coachcal/internal/application/planner"
	"coachcal/internal/config"
	"coachcal/internal/domain/calendar"
)

// boardOptions selects the client, the window anchor and the backend.
type boardOptions struct {
	clientID string
	date     string
	server   string
	dbPath   string
	width    int
}

func (bo *boardOptions) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&bo.clientID, "client", "", "client id (required)")
	cmd.Flags().StringVar(&bo.date, "date", "", "anchor day YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&bo.server, "server", "", "coachcal server URL (default from config)")
	cmd.Flags().StringVar(&bo.dbPath, "db", "", "open this database directly instead of calling a server")
	cmd.Flags().IntVar(&bo.width, "width", render.DefaultWidth, "column width in cells")
	cmd.MarkFlagRequired("client")
}

// repeater is implemented by both backends.
type repeater interface {
	RepeatItem(ctx context.Context, clientID, templateID, rule string) ([]calendar.Item, error)
}

// backend is a planner remote that can also repeat items.
type backend interface {
	planner.Remote
	repeater
}

// openBackend picks the HTTP client when a server URL is known and --db is
// not given; otherwise it opens the database in-process.
func openBackend(cfg config.Config, bo *boardOptions) (backend, func(), error) {
	serverURL := bo.server
	if serverURL == "" {
		serverURL = cfg.Planner.ServerURL
	}
	if bo.dbPath == "" && serverURL != "" {
		c, err := remote.NewClient(serverURL, remote.WithTimeout(cfg.Planner.RemoteTimeout))
		if err != nil {
			return nil, nil, err
		}
		return c, func() {}, nil
	}

	path := bo.dbPath
	if path == "" {
		path = cfg.Server.DBPath
	}
	db, err := openDB(path)
	if err != nil {
		return nil, nil, err
	}
	return remote.NewLocal(calendaritem.NewSQLiteStore(db)), func() { db.Close() }, nil
}

// openBoard builds a planner board for the client and loads its window.
func openBoard(ctx context.Context, cfg config.Config, bo *boardOptions) (*planner.Board, *render.Board, backend, func(), error) {
	be, closeFn, err := openBackend(cfg, bo)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	r := render.NewBoard(bo.width, render.DefaultStyles())
	b := planner.NewBoard(be, planner.BoardConfig{
		ClientID:           bo.clientID,
		Window:             cfg.Window(),
		Measurer:           r,
		Notifier:           planner.LogNotifier{},
		ReconcileAfterMove: cfg.Planner.ReconcileAfterMove,
	})
	if bo.date == "" {
		err = b.Open(ctx)
	} else {
		err = b.JumpTo(ctx, bo.date)
	}
	if err != nil {
		closeFn()
		return nil, nil, nil, nil, err
	}
	return b, r, be, closeFn, nil
}

func newBoardCmd(o *rootOptions) *cobra.Command {
	bo := &boardOptions{}
	var past, future int
	cmd := &cobra.Command{
		Use:   "board",
		Short: "Print a client's calendar window.",
		Example: `  coachcal board --client c1
  coachcal board --client c1 --date 2024-06-10 --future 2
  coachcal board --client c1 --db coachcal.db`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			b, r, _, closeFn, err := openBoard(ctx, o.cfg, bo)
			if err != nil {
				return err
			}
			defer closeFn()

			for i := 0; i < past; i++ {
				if _, err := b.Window.ExtendPast(ctx); err != nil {
					return err
				}
			}
			for i := 0; i < future; i++ {
				if _, err := b.Window.ExtendFuture(ctx); err != nil {
					return err
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), r.Render(b.Days()))
			return nil
		},
	}
	bo.addFlags(cmd)
	cmd.Flags().IntVar(&past, "past", 0, "pages to extend into the past")
	cmd.Flags().IntVar(&future, "future", 0, "pages to extend into the future")
	return cmd
}

func newMoveCmd(o *rootOptions) *cobra.Command {
	bo := &boardOptions{}
	var to string
	var index int
	cmd := &cobra.Command{
		Use:   "move ITEM_ID",
		Short: "Move an item to another day or position.",
		Long:  "Move an item held in the window around --date to --to at --index among that day's items. Without --index the item goes last.",
		Example: `  coachcal move 3f2c --client c1 --to 2024-06-12
  coachcal move 3f2c --client c1 --to 2024-06-12 --index 0`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			b, r, _, closeFn, err := openBoard(ctx, o.cfg, bo)
			if err != nil {
				return err
			}
			defer closeFn()

			cur, ok := b.Store.Get(args[0])
			if !ok {
				return fmt.Errorf("item %s is not in the window around %s; pass --date", args[0], b.Window.Anchor())
			}
			if to == "" {
				to = cur.ScheduledDate
			}
			if !cmd.Flags().Changed("index") {
				index = math.MaxInt
			}
			if err := b.Store.Move(ctx, cur.ID, to, index); err != nil {
				return err
			}
			return printDay(cmd, b, r, to)
		},
	}
	bo.addFlags(cmd)
	cmd.Flags().StringVar(&to, "to", "", "destination day (default the item's day)")
	cmd.Flags().IntVar(&index, "index", 0, "position among the destination day's items")
	return cmd
}

func newCopyCmd(o *rootOptions) *cobra.Command {
	bo := &boardOptions{}
	var to string
	cmd := &cobra.Command{
		Use:     "copy ITEM_ID",
		Short:   "Copy an item to the top of another day.",
		Example: `  coachcal copy 3f2c --client c1 --to 2024-06-14`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			b, r, _, closeFn, err := openBoard(ctx, o.cfg, bo)
			if err != nil {
				return err
			}
			defer closeFn()

			cur, ok := b.Store.Get(args[0])
			if !ok {
				return fmt.Errorf("item %s is not in the window around %s; pass --date", args[0], b.Window.Anchor())
			}
			b.Clipboard.Copy(cur)
			pasted, err := b.Clipboard.Paste(ctx, to)
			if err != nil {
				return err
			}
			if !b.Window.Interval().Contains(pasted.ScheduledDate) {
				fmt.Fprintf(cmd.OutOrStdout(), "created %s on %s\n", pasted.ID, pasted.ScheduledDate)
				return nil
			}
			return printDay(cmd, b, r, pasted.ScheduledDate)
		},
	}
	bo.addFlags(cmd)
	cmd.Flags().StringVar(&to, "to", "", "destination day (required)")
	cmd.MarkFlagRequired("to")
	return cmd
}

func newRepeatCmd(o *rootOptions) *cobra.Command {
	bo := &boardOptions{}
	var rule string
	cmd := &cobra.Command{
		Use:   "repeat ITEM_ID",
		Short: "Copy an item along an RFC 5545 recurrence rule.",
		Example: `  coachcal repeat 3f2c --client c1 --rule "FREQ=WEEKLY;COUNT=6"
  coachcal repeat 3f2c --client c1 --rule "FREQ=WEEKLY;BYDAY=MO,TH;UNTIL=20240901T000000Z"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			be, closeFn, err := openBackend(o.cfg, bo)
			if err != nil {
				return err
			}
			defer closeFn()

			copies, err := be.RepeatItem(cmd.Context(), bo.clientID, args[0], rule)
			if err != nil {
				if remote.IsNotFound(err) || errors.Is(err, calendaritem.ErrNotFound) {
					return fmt.Errorf("item %s not found for client %s", args[0], bo.clientID)
				}
				return err
			}
			out := cmd.OutOrStdout()
			for _, c := range copies {
				fmt.Fprintf(out, "%s  %s\n", c.ScheduledDate, c.ID)
			}
			fmt.Fprintf(out, "%d copies\n", len(copies))
			return nil
		},
	}
	bo.addFlags(cmd)
	cmd.Flags().StringVar(&rule, "rule", "", "recurrence rule, e.g. FREQ=WEEKLY;COUNT=4 (required)")
	cmd.MarkFlagRequired("rule")
	return cmd
}

func printDay(cmd *cobra.Command, b *planner.Board, r *render.Board, date string) error {
	for _, d := range b.Days() {
		if d.Date == date {
			fmt.Fprintln(cmd.OutOrStdout(), r.RenderDay(d))
			return nil
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s is outside the loaded window\n", date)
	return nil
}
