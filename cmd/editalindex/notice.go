package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/dshills/editalindex/internal/notice"
)

// defaultPollInterval paces status polling for --wait
const defaultPollInterval = 500 * time.Millisecond

func newNoticeCmd(a *app) *cobra.Command {
	var owner string
	cmd := &cobra.Command{
		Use:   "notice",
		Short: "Submit and inspect exam notices",
	}
	cmd.PersistentFlags().StringVar(&owner, "owner", os.Getenv("USER"), "owner of the notices")
	cmd.AddCommand(
		newNoticeSubmitCmd(a, &owner),
		newNoticeStatusCmd(a, &owner),
		newNoticeListCmd(a, &owner),
		newNoticeActiveCmd(a, &owner),
		newNoticeArchiveCmd(a, &owner),
	)
	return cmd
}

func newNoticeSubmitCmd(a *app, owner *string) *cobra.Command {
	var (
		wait bool
		poll time.Duration
	)
	cmd := &cobra.Command{
		Use:   "submit FILE",
		Short: "Queue a notice PDF for analysis",
		Long: `Stores the notice and queues it for processing: text extraction, metadata
extraction by the language model, discipline mapping and study plan
generation. With --wait the status is polled until processing finishes.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			svc, stop, err := a.noticeService(cmd.Context())
			if err != nil {
				return err
			}
			// The queue lives in this process, so it is drained before exit
			defer stop()

			h, err := svc.Submit(cmd.Context(), notice.Upload{
				OwnerID:  *owner,
				FileName: filepath.Base(args[0]),
				Content:  content,
			})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "notice %s queued (job %s, %s)\n", h.NoticeID, h.JobID, humanize.Bytes(uint64(len(content))))
			if !wait {
				return nil
			}

			v, err := waitForNotice(cmd.Context(), svc, h.NoticeID, *owner, poll, func(v *notice.StatusView) {
				fmt.Fprintf(out, "  %3d%% %s\n", v.Progress, v.Stage)
			})
			if err != nil {
				return err
			}
			printStatus(out, v)
			if v.ErrorMessage != "" {
				return fmt.Errorf("notice %s failed: %s", v.NoticeID, v.ErrorMessage)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&wait, "wait", false, "poll until processing finishes")
	cmd.Flags().DurationVar(&poll, "poll", defaultPollInterval, "polling interval for --wait")
	return cmd
}

// waitForNotice polls until the notice reaches a terminal state, reporting
// each change of stage
func waitForNotice(ctx context.Context, svc *notice.Service, id, owner string, every time.Duration, report func(*notice.StatusView)) (*notice.StatusView, error) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	lastStage := ""
	for {
		v, err := svc.Status(ctx, id, owner)
		if err != nil {
			return nil, err
		}
		if v.Stage != lastStage {
			lastStage = v.Stage
			report(v)
		}
		if v.Terminal() {
			return v, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func newNoticeStatusCmd(a *app, owner *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status ID",
		Short: "Show the processing status of a notice",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.readOnlyNotices(cmd.Context())
			if err != nil {
				return err
			}
			v, err := svc.Status(cmd.Context(), args[0], *owner)
			if err != nil {
				return err
			}
			printStatus(cmd.OutOrStdout(), v)
			return nil
		},
	}
}

func newNoticeListCmd(a *app, owner *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the owner's notices, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := a.readOnlyNotices(cmd.Context())
			if err != nil {
				return err
			}
			notices, err := svc.List(cmd.Context(), *owner)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(notices) == 0 {
				fmt.Fprintln(out, "No notices.")
				return nil
			}
			for _, n := range notices {
				fmt.Fprintf(out, "%s  %-8s  %-30s  %s\n", n.ID, n.Status, n.FileName, humanize.Time(n.CreatedAt))
			}
			return nil
		},
	}
}

func newNoticeActiveCmd(a *app, owner *string) *cobra.Command {
	return &cobra.Command{
		Use:   "active",
		Short: "Show the owner's current active notice and plan",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := a.readOnlyNotices(cmd.Context())
			if err != nil {
				return err
			}
			v, err := svc.Active(cmd.Context(), *owner)
			if err != nil {
				return err
			}
			printStatus(cmd.OutOrStdout(), v)
			return nil
		},
	}
}

func newNoticeArchiveCmd(a *app, owner *string) *cobra.Command {
	return &cobra.Command{
		Use:   "archive ID",
		Short: "Archive an active or failed notice",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.readOnlyNotices(cmd.Context())
			if err != nil {
				return err
			}
			if err := svc.Archive(cmd.Context(), *owner, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "notice %s archived\n", args[0])
			return nil
		},
	}
}

// readOnlyNotices builds a service without pipeline workers for commands
// that never submit
func (a *app) readOnlyNotices(ctx context.Context) (*notice.Service, error) {
	store, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	return notice.NewService(notice.ServiceConfig{Store: store, Queue: rejectQueue{}, Logger: a.logger}), nil
}

// rejectQueue refuses every task
type rejectQueue struct{}

func (rejectQueue) Enqueue(notice.Task) error { return notice.ErrQueueClosed }

func printStatus(w io.Writer, v *notice.StatusView) {
	fmt.Fprintf(w, "notice %s: %s", v.NoticeID, v.Status)
	if v.Stage != "" {
		fmt.Fprintf(w, " (%d%% %s)", v.Progress, v.Stage)
	}
	fmt.Fprintln(w)
	if v.ErrorMessage != "" {
		fmt.Fprintf(w, "  error: %s\n", v.ErrorMessage)
	}
	if v.Notice == nil {
		return
	}

	n := v.Notice
	fmt.Fprintf(w, "  %s / %s / %s\n", n.IssuingBody, n.Agency, n.Role)
	if n.ExamDate != nil {
		fmt.Fprintf(w, "  exam date: %s\n", n.ExamDate.Format(time.DateOnly))
	}
	if n.Salary != nil {
		fmt.Fprintf(w, "  salary: R$ %s\n", humanize.CommafWithDigits(*n.Salary, 2))
	}
	for _, d := range v.Disciplines {
		linked := ""
		if d.DisciplineID == nil {
			linked = " (not in bank)"
		}
		fmt.Fprintf(w, "  - %s %.0f%%%s\n", d.Name, d.Weight*100, linked)
	}
	if p := v.Plan; p != nil {
		fmt.Fprintf(w, "  plan: %s to %s, %dh/day, %s hours\n", p.StartDate.Format(time.DateOnly),
			p.EndDate.Format(time.DateOnly), p.HoursPerDay, humanize.Comma(int64(p.TotalHours())))
		for _, al := range p.Allocations {
			fmt.Fprintf(w, "    %-40s %5dh  %d cycles\n", al.Discipline, al.Hours, al.Cycles)
		}
	}
}
