package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/digineo/go-reach/monitor"
)

type row struct {
	key     string
	address string
}

type userInterface struct {
	app     *tview.Application
	table   *tview.Table
	logView *tview.TextView
	monitor *monitor.Monitor
	logs    *logInterceptor
	rows    []row
}

var columns = []struct {
	title string
	align int
}{
	{"rule", tview.AlignLeft},
	{"address", tview.AlignLeft},
	{"checks", tview.AlignRight},
	{"down", tview.AlignRight},
	{"avail", tview.AlignRight},
	{"last", tview.AlignRight},
	{"best", tview.AlignRight},
	{"worst", tview.AlignRight},
	{"mean", tview.AlignRight},
	{"stddev", tview.AlignRight},
	{"services", tview.AlignLeft},
	{"last err", tview.AlignLeft},
}

const (
	colChecks = iota + 2
	colDown
	colAvail
	colLast
	colBest
	colWorst
	colMean
	colStdDev
	colServices
	colErr
)

func buildTUI(mon *monitor.Monitor, rows []row, logs *logInterceptor) *userInterface {
	ui := &userInterface{
		app:     tview.NewApplication(),
		table:   tview.NewTable().SetBorders(false).SetFixed(2, 0),
		logView: tview.NewTextView(),
		monitor: mon,
		logs:    logs,
		rows:    rows,
	}

	ui.table.SetTitle(" reach-watch (press [q] to exit) ")
	ui.logView.SetBorder(true).SetTitle(" log ")

	for c, col := range columns {
		ui.table.SetCell(0, c, tview.NewTableCell(col.title).SetAlign(col.align))
	}

	ui.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyEscape, tcell.KeyCtrlC:
			ui.app.Stop()
			return nil
		case tcell.KeyRune:
			if event.Rune() == 'q' {
				ui.app.Stop()
				return nil
			}
		}
		return event
	})

	for r, u := range rows {
		for c, col := range columns {
			var text string
			switch c {
			case 0:
				text = u.key
			case 1:
				text = u.address
			case colServices, colErr:
			default:
				text = "n/a"
			}
			ui.table.SetCell(r+2, c, tview.NewTableCell(text).SetAlign(col.align))
		}
	}

	return ui
}

func (ui *userInterface) Run() error {
	layout := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(ui.table, 0, 1, true).
		AddItem(ui.logView, 6, 0, false)
	ui.app.SetRoot(layout, true).SetFocus(ui.table)
	return ui.app.Run()
}

func (ui *userInterface) update(interval time.Duration, done <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
		}

		metrics := ui.monitor.Export()
		ui.app.QueueUpdateDraw(func() {
			for i, u := range ui.rows {
				ui.updateRow(i+2, u.key, metrics[u.key])
			}
			ui.logView.SetText(strings.Join(ui.logs.Messages(), "\n"))
		})
	}
}

func (ui *userInterface) updateRow(r int, key string, tm *monitor.TargetMetrics) {
	cell := func(c int, text string) {
		ui.table.GetCell(r, c).SetText(text)
	}

	if tm != nil && tm.Reachability != nil {
		m := tm.Reachability
		cell(colChecks, strconv.Itoa(m.Checks))
		cell(colDown, strconv.Itoa(m.Down))
		cell(colAvail, fmt.Sprintf("%0.2f%%", 100*m.Availability))
		cell(colBest, ts(m.Best))
		cell(colWorst, ts(m.Worst))
		cell(colMean, ts(m.Mean))
		cell(colStdDev, ts(m.StdDev))
	} else if tm != nil && tm.Resolvability != nil {
		m := tm.Resolvability
		cell(colChecks, strconv.Itoa(m.Checks))
		cell(colDown, strconv.Itoa(m.Down))
		cell(colAvail, fmt.Sprintf("%0.2f%%", 100*m.Availability))
	}

	last, ok := ui.monitor.Last(key)
	if !ok {
		return
	}
	if last.IsReachable() {
		cell(colLast, ts(last.RTT))
	} else {
		cell(colLast, last.Reachable.String())
	}

	services := make([]string, 0, len(last.Ports))
	for port, pr := range last.Ports {
		state := "closed"
		if pr.Reachable {
			state = "open"
		}
		services = append(services, fmt.Sprintf("%d:%s", port, state))
	}
	sort.Strings(services)
	for url, st := range last.HTTP {
		services = append(services, url+":"+st.Code)
	}
	sort.Strings(services[len(last.Ports):])
	if c := last.Command; c != nil {
		services = append(services, "cmd:"+strconv.Itoa(c.ExitCode))
	}
	cell(colServices, strings.Join(services, " "))

	if err := last.Err(); err != nil {
		cell(colErr, err.Error())
	} else {
		cell(colErr, "")
	}
}

const tsDividend = float64(time.Millisecond) / float64(time.Nanosecond)

func ts(dur time.Duration) string {
	if 10*time.Microsecond < dur && dur < time.Second {
		return fmt.Sprintf("%0.2fms", float64(dur.Nanoseconds())/tsDividend)
	}
	return dur.String()
}
