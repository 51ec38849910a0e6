package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/logrusorgru/aurora"
	"github.com/olekukonko/tablewriter"

	"github.com/Thejuampi/stomp-client-go/stomp"
)

type printer struct {
	PrintFunc func(format string, a ...interface{}) (n int, err error)
}

func newPrinter() *printer {
	return &printer{
		PrintFunc: fmt.Printf,
	}
}

// Error is a convenience function for printing errors.
func (p *printer) Error(str string) {
	p.PrintFunc("%s: %s\n", aurora.Red(">> ERROR"), str)
}

// Print is a convenience function for printing regular output.
func (p *printer) Print(str string) {
	p.PrintFunc("%s\n", str)
}

// Message prints the headers of a delivery as a table followed by its body.
func (p *printer) Message(count int, event *stomp.MessageEvent, receivedAt time.Time) {
	p.PrintFunc("\n------------- [Count: %d Received at: %s] -------------------\n\n",
		aurora.Cyan(count), aurora.Yellow(receivedAt.Format(time.RFC3339)).String())

	properties := make([][]string, 0, len(event.Headers)+1)
	if event.Subscription != nil {
		properties = append(properties, []string{"(subscription)", event.Subscription.ID + " " + event.Subscription.Destination})
	}
	for _, header := range event.Headers {
		properties = append(properties, []string{header.Key, header.Value})
	}

	tableString := &strings.Builder{}
	table := tablewriter.NewWriter(tableString)
	table.AppendBulk(properties)
	table.SetColMinWidth(0, 20)
	table.SetColMinWidth(1, 40)
	table.SetColumnAlignment([]int{tablewriter.ALIGN_LEFT, tablewriter.ALIGN_RIGHT})
	table.Render()

	p.PrintFunc("%s\n", tableString.String())
	p.Print(string(event.Body))
}
