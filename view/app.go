// Package view provides a tview/tcell terminal UI for tailing a live
// EVTX parse/forward run: a record table on the left, the rendered
// XML/JSON of the selected record on the right.
package view

import (
	"fmt"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"evtxlink/config"
	"evtxlink/evtx"
)

// RecordRow is one row of the record table: enough metadata to locate
// and re-render a record without holding the whole element tree in
// memory for every record ever seen.
type RecordRow struct {
	Source    string
	Chunk     int
	RecordID  uint64
	EventID   uint64
	Timestamp time.Time
	Body      string // pre-rendered XML or JSON
	Err       error
}

// MaxRows bounds how many records the table keeps in memory; older rows
// scroll off the top once it fills.
const MaxRows = 5000

// App is the TUI application shell.
type App struct {
	app    *tview.Application
	table  *tview.Table
	detail *tview.TextView
	status *tview.TextView

	stats *evtx.Stats
	cfg   *config.Config

	mu   sync.Mutex
	rows []RecordRow

	onDisconnect func()
}

// NewApp creates a TUI application bound to a running session's stats
// and configuration. Records are pushed in with AddRecord as the driver
// renders them.
func NewApp(cfg *config.Config, stats *evtx.Stats) *App {
	a := &App{
		app:   tview.NewApplication(),
		cfg:   cfg,
		stats: stats,
	}
	a.build()
	return a
}

func (a *App) build() {
	a.table = tview.NewTable().SetSelectable(true, false).SetFixed(1, 0)
	a.table.SetBorder(true).SetTitle(" Records ")
	a.setHeaderRow()
	a.table.SetSelectionChangedFunc(func(row, col int) {
		a.showDetail(row)
	})

	a.detail = tview.NewTextView().SetDynamicColors(false).SetWrap(true)
	a.detail.SetBorder(true).SetTitle(" Detail ")

	a.status = tview.NewTextView().SetTextAlign(tview.AlignLeft).SetDynamicColors(true)

	split := tview.NewFlex().SetDirection(tview.FlexColumn).
		AddItem(a.table, 0, 2, true).
		AddItem(a.detail, 0, 3, false)

	root := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(split, 0, 1, true).
		AddItem(a.status, 1, 0, false)

	a.app.SetRoot(root, true).SetFocus(a.table)
	a.app.SetInputCapture(a.handleGlobalKeys)

	go a.statusLoop()
}

func (a *App) setHeaderRow() {
	headers := []string{"Source", "Chunk", "RecordID", "EventID", "Timestamp"}
	for col, text := range headers {
		a.table.SetCell(0, col, tview.NewTableCell(text).
			SetTextColor(tcell.ColorYellow).
			SetSelectable(false).
			SetAttributes(tcell.AttrBold))
	}
}

func (a *App) handleGlobalKeys(event *tcell.EventKey) *tcell.EventKey {
	switch event.Rune() {
	case 'q', 'Q':
		if a.onDisconnect != nil {
			a.onDisconnect()
		}
		a.app.Stop()
		return nil
	}
	return event
}

// SetOnDisconnect registers a callback invoked when the user quits.
func (a *App) SetOnDisconnect(cb func()) {
	a.onDisconnect = cb
}

// appendRow appends row to rows, trimming the oldest entries once max is
// exceeded. Split out from AddRecord so the trimming policy is testable
// without a running tview event loop.
func appendRow(rows []RecordRow, row RecordRow, max int) []RecordRow {
	rows = append(rows, row)
	if len(rows) > max {
		rows = rows[len(rows)-max:]
	}
	return rows
}

// AddRecord appends one rendered record to the table, trimming the
// oldest row if MaxRows is exceeded. Safe to call from any goroutine.
func (a *App) AddRecord(row RecordRow) {
	a.mu.Lock()
	trimmed := len(a.rows) >= MaxRows
	a.rows = appendRow(a.rows, row, MaxRows)
	idx := len(a.rows)
	a.mu.Unlock()

	a.app.QueueUpdateDraw(func() {
		if trimmed {
			a.table.RemoveRow(1) // oldest record, just below the header
		}
		tableRow := idx // header occupies row 0
		color := tcell.ColorWhite
		if row.Err != nil {
			color = tcell.ColorRed
		}
		a.table.SetCell(tableRow, 0, tview.NewTableCell(row.Source).SetTextColor(color))
		a.table.SetCell(tableRow, 1, tview.NewTableCell(fmt.Sprintf("%d", row.Chunk)).SetTextColor(color))
		a.table.SetCell(tableRow, 2, tview.NewTableCell(fmt.Sprintf("%d", row.RecordID)).SetTextColor(color))
		a.table.SetCell(tableRow, 3, tview.NewTableCell(fmt.Sprintf("%d", row.EventID)).SetTextColor(color))
		a.table.SetCell(tableRow, 4, tview.NewTableCell(row.Timestamp.Format(time.RFC3339)).SetTextColor(color))
	})
}

func (a *App) showDetail(row int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	idx := row - 1 // header row
	if idx < 0 || idx >= len(a.rows) {
		a.detail.SetText("")
		return
	}
	r := a.rows[idx]
	if r.Err != nil {
		a.detail.SetText(fmt.Sprintf("error: %v", r.Err))
		return
	}
	a.detail.SetText(r.Body)
}

// statusLoop refreshes the bottom status bar from evtx.Stats on a
// ticker, skipping the snapshot entirely when Stats.Dirty() is false.
func (a *App) statusLoop() {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for range ticker.C {
		if a.stats == nil || !a.stats.Dirty() {
			continue
		}
		snap := a.stats.Snapshot()
		a.app.QueueUpdateDraw(func() {
			a.status.SetText(fmt.Sprintf(
				" chunks=%d truncated=%d records=%d errors=%d  (press q to quit)",
				snap.ChunksParsed, snap.ChunksTruncated, snap.RecordsParsed, snap.RecordsErrored))
		})
	}
}

// Run starts the TUI event loop. It blocks until the user quits or an
// error occurs.
func (a *App) Run() error {
	return a.app.Run()
}

// Stop halts the TUI event loop.
func (a *App) Stop() {
	a.app.Stop()
}
