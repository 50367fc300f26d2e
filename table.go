package main

import (
	"sort"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/researchaccelerator-hub/ytstats/model/youtube"
	"github.com/researchaccelerator-hub/ytstats/orchestrator"
	"github.com/researchaccelerator-hub/ytstats/state"
)

// column describes one table column; counters are right-aligned
type column struct {
	title   string
	numeric bool
}

var (
	runColumns = []column{
		{title: "Channel"},
		{title: "Status"},
		{title: "Videos", numeric: true},
		{title: "New", numeric: true},
		{title: "Movie", numeric: true},
		{title: "Short", numeric: true},
		{title: "Live", numeric: true},
		{title: "Elapsed", numeric: true},
		{title: "Error"},
	}

	snapshotColumns = []column{
		{title: "#", numeric: true},
		{title: "Channel"},
		{title: "Subscribers", numeric: true},
		{title: "Views", numeric: true},
		{title: "Videos", numeric: true},
		{title: "Movie", numeric: true},
		{title: "Short", numeric: true},
		{title: "Live", numeric: true},
		{title: "Captured"},
	}
)

func renderTable(columns []column, rows []table.Row) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, len(columns))
	configs := make([]table.ColumnConfig, len(columns))
	for i, col := range columns {
		header[i] = col.title
		configs[i] = table.ColumnConfig{Number: i + 1, AlignHeader: text.AlignLeft, Align: text.AlignLeft}
		if col.numeric {
			configs[i].Align = text.AlignRight
		}
	}
	tw.AppendHeader(header)
	tw.AppendRows(rows)
	tw.SetColumnConfigs(configs)

	return tw.Render()
}

// renderRunSummary lists every channel of a run in configuration order
func renderRunSummary(result orchestrator.Result) string {
	rows := make([]table.Row, 0, len(result.Outcomes))
	for _, out := range result.Outcomes {
		errText := ""
		if out.Err != nil {
			errText = out.Err.Error()
		}
		rows = append(rows, table.Row{
			out.Name,
			string(out.Status),
			out.Videos,
			out.NewVideos,
			out.Counts.Movie,
			out.Counts.Short,
			out.Counts.LiveArchive,
			out.Elapsed.Round(time.Millisecond).String(),
			errText,
		})
	}
	return renderTable(runColumns, rows)
}

// renderSnapshotSummary ranks the stored channels by subscribers
func renderSnapshotSummary(doc state.SnapshotDocument) string {
	names := make([]string, 0, len(doc))
	for name := range doc {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		a, b := doc[names[i]].ChannelStats.SubscriberCount, doc[names[j]].ChannelStats.SubscriberCount
		if a != b {
			return a > b
		}
		return names[i] < names[j]
	})

	rows := make([]table.Row, 0, len(names))
	for i, name := range names {
		snap := doc[name]
		counts := youtube.CountSnapshotTypes(snap)
		rows = append(rows, table.Row{
			i + 1,
			name,
			strconv.FormatInt(snap.ChannelStats.SubscriberCount, 10),
			strconv.FormatInt(snap.ChannelStats.ViewCount, 10),
			len(snap.Videos),
			counts.Movie,
			counts.Short,
			counts.LiveArchive,
			snap.ChannelStats.CapturedAt,
		})
	}
	return renderTable(snapshotColumns, rows)
}
