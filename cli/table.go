package cli

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"

	"go.viam.com/livevision/pipeline"
	"go.viam.com/livevision/vision/classification"
)

// recognitionsTable renders one ranked list, best first.
func recognitionsTable(recs classification.Classifications) string {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"#", "Label", "Score"})
	for i, c := range recs {
		t.AppendRow(table.Row{fmt.Sprintf("%d", i+1), c.Label(), classification.Percent(c)})
	}
	return t.Render()
}

// resultsTable renders the results of a stream, one row per recognition.
func resultsTable(results []pipeline.Result) string {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Frame", "#", "Label", "Score"})
	for _, r := range results {
		switch {
		case r.Failed():
			t.AppendRow(table.Row{r.Seq, "", "error", r.Err.Error()})
		case len(r.Recognitions) == 0:
			t.AppendRow(table.Row{r.Seq, "", "(none)", ""})
		default:
			for i, c := range r.Recognitions {
				t.AppendRow(table.Row{r.Seq, i + 1, c.Label(), classification.Percent(c)})
			}
		}
	}
	return t.Render()
}
