package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"deepstore-hq/deepstore/pkg/backup"
	"deepstore-hq/deepstore/pkg/cli"
	"deepstore-hq/deepstore/pkg/history"
	"deepstore-hq/deepstore/pkg/retention"
)

// reportView renders a backup report.
type reportView struct {
	*backup.Report
}

func (v reportView) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Report)
}

func (v reportView) WriteText(w io.Writer) error {
	r := v.Report
	tw := cli.NewTable(w)
	fmt.Fprintf(tw, "Run:\t%s\n", r.RunID)
	fmt.Fprintf(tw, "Status:\t%s\n", r.Status)
	fmt.Fprintf(tw, "Duration:\t%s\n", cli.Duration(r.Duration))
	if r.Created {
		fmt.Fprintf(tw, "Archive:\t%s (%s)\n", r.ArchivePath, cli.Bytes(r.ArchiveSize))
		fmt.Fprintf(tw, "Files:\t%d (%s)\n", r.Files, cli.Bytes(r.Bytes))
		fmt.Fprintf(tw, "Uploaded:\t%s\n", yesNo(r.Uploaded))
	}
	if res := r.LocalRetention; res != nil {
		fmt.Fprintf(tw, "Local retention:\t%s\n", retentionSummary(res))
	}
	if res := r.RemoteRetention; res != nil {
		fmt.Fprintf(tw, "Remote retention:\t%s\n", retentionSummary(res))
	}
	for _, e := range r.RetentionErrors {
		fmt.Fprintf(tw, "Retention error:\t%s\n", e)
	}
	if r.Error != "" {
		fmt.Fprintf(tw, "Error:\t%s\n", r.Error)
	}
	return tw.Flush()
}

func retentionSummary(r *retention.Result) string {
	verb := "deleted"
	if r.DryRun {
		verb = "would delete"
	}
	s := fmt.Sprintf("kept %d, %s %d", len(r.Kept), verb, len(r.Deleted))
	if len(r.Failed) > 0 {
		s += fmt.Sprintf(", failed %d", len(r.Failed))
	}
	if len(r.Skipped) > 0 {
		s += fmt.Sprintf(", ignored %d", len(r.Skipped))
	}
	return s
}

// pruneView renders the results of a prune command.
type pruneView struct {
	Results []*retention.Result `json:"results"`
	Errors  []string            `json:"errors,omitempty"`
}

func (v pruneView) WriteText(w io.Writer) error {
	for _, r := range v.Results {
		fmt.Fprintf(w, "%s: %s\n", r.Target, retentionSummary(r))
		verb := "deleted"
		if r.DryRun {
			verb = "would delete"
		}
		for _, name := range r.Deleted {
			fmt.Fprintf(w, "  %s %s\n", verb, name)
		}
		for _, f := range r.Failed {
			fmt.Fprintf(w, "  failed %s: %s\n", f.Name, f.Error)
		}
	}
	for _, e := range v.Errors {
		fmt.Fprintf(w, "error: %s\n", e)
	}
	return nil
}

// archiveRow is one archive in the list command.
type archiveRow struct {
	Name   string               `json:"name"`
	Date   string               `json:"date"`
	Size   int64                `json:"size,omitempty"`
	Action string               `json:"action"`
	Reason retention.KeepReason `json:"reason"`
}

// listView renders the list command.
type listView struct {
	Target  string       `json:"target"`
	Policy  policyView   `json:"policy"`
	Archive []archiveRow `json:"archives"`
	Ignored []string     `json:"ignored,omitempty"`
}

type policyView struct {
	Latest           int  `json:"latest"`
	KeepFirstOfMonth bool `json:"keep_first_of_month"`
}

func (v listView) WriteText(w io.Writer) error {
	if len(v.Archive) == 0 {
		fmt.Fprintf(w, "No archives found on %s.\n", v.Target)
	} else {
		tw := cli.NewTable(w)
		fmt.Fprintln(tw, "ARCHIVE\tDATE\tSIZE\tACTION\tREASON")
		for _, a := range v.Archive {
			size := "-"
			if a.Size > 0 {
				size = cli.Bytes(a.Size)
			}
			reason := "-"
			if a.Reason.Kept() {
				reason = a.Reason.String()
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", a.Name, a.Date, size, a.Action, reason)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}
	if len(v.Ignored) > 0 {
		fmt.Fprintf(w, "\nIgnored %d entries that are not archives: %s\n", len(v.Ignored), strings.Join(v.Ignored, ", "))
	}
	fmt.Fprintf(w, "\nPolicy: keep latest %d", v.Policy.Latest)
	if v.Policy.KeepFirstOfMonth {
		fmt.Fprint(w, " and the first archive of every month")
	}
	fmt.Fprintln(w)
	return nil
}

// historyView renders recorded runs.
type historyView struct {
	Runs []history.Run `json:"runs"`
}

func (v historyView) WriteText(w io.Writer) error {
	if len(v.Runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return nil
	}
	tw := cli.NewTable(w)
	fmt.Fprintln(tw, "STARTED\tSTATUS\tDURATION\tARCHIVE\tSIZE\tUPLOADED\tPRUNED\tERROR")
	for _, r := range v.Runs {
		archive := r.Archive
		if archive == "" {
			archive = "-"
		}
		fmt.Fprintf(tw, "%s (%s)\t%s\t%s\t%s\t%s\t%s\t%d/%d\t%s\n",
			r.StartedAt.Local().Format(time.DateTime),
			cli.Ago(r.StartedAt),
			r.Status,
			cli.Duration(time.Duration(r.DurationMS)*time.Millisecond),
			archive,
			cli.Bytes(r.ArchiveSize),
			yesNo(r.Uploaded),
			r.LocalDeleted, r.RemoteDeleted,
			r.Error,
		)
	}
	return tw.Flush()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
