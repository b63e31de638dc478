package tui

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/jfmyers9/cadence/internal/orchestrator"
	"github.com/jfmyers9/cadence/internal/playback"
	"github.com/rivo/tview"
)

const maxRecentTracks = 5

// commandTimeout bounds one key-triggered command, settle wait included
const commandTimeout = 10 * time.Second

// Config holds TUI configuration options
type Config struct {
	RefreshRate time.Duration // How often to refresh the display
}

// DefaultConfig returns the default TUI configuration
func DefaultConfig() Config {
	return Config{
		RefreshRate: 500 * time.Millisecond,
	}
}

// Controller is the slice of the orchestrator the TUI drives
type Controller interface {
	Subscribe() *orchestrator.Subscription
	TogglePlayPause(ctx context.Context) error
	NextTrack(ctx context.Context) error
	PreviousTrack(ctx context.Context) error
	RetryAfterPermissionGranted(ctx context.Context) error
	OpenSystemSettings()
}

// RecentTrack stores info about a recently played track
type RecentTrack struct {
	Name     string
	Artist   string
	PlayedAt time.Time
}

// App is the TUI application for displaying playback
type App struct {
	app        *tview.Application
	nowPlaying *tview.TextView
	progress   *tview.TextView
	status     *tview.TextView
	permission *tview.TextView
	recent     *tview.TextView

	config Config
	ctrl   Controller

	// Guards the fields below; written by the subscription consumer and
	// read by the redraw ticker
	mu   sync.Mutex
	snap orchestrator.Snapshot

	// Ring buffer for recent tracks
	recentBuf   [maxRecentTracks]RecentTrack
	recentCount int

	// Last-rendered content for change detection
	lastNowPlaying string
	lastProgress   string
	lastPermission string
	lastRecent     string

	// Cached progress bar width; updated only on positive inner widths
	lastBarWidth int

	ctx        context.Context
	cancelFunc context.CancelFunc
}

// New creates a new TUI application driving ctrl
func New(ctrl Controller, cfg Config) *App {
	a := &App{
		app:    tview.NewApplication(),
		config: cfg,
		ctrl:   ctrl,
		ctx:    context.Background(),
	}
	a.setupUI()
	return a
}

// setupUI creates the UI layout
func (a *App) setupUI() {
	a.nowPlaying = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	a.nowPlaying.SetBorder(true).
		SetTitle(" Now Playing ").
		SetTitleAlign(tview.AlignLeft)

	a.progress = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	a.progress.SetBorder(true)

	a.permission = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	a.permission.SetBorder(true).
		SetTitle(" Automation ").
		SetTitleAlign(tview.AlignLeft)

	a.recent = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	a.recent.SetBorder(true).
		SetTitle(" Recent ").
		SetTitleAlign(tview.AlignLeft)

	a.status = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter).
		SetText("[gray]q:quit  space:play/pause  n:next  p:prev  r:retry  o:settings[-]")

	bottomRow := tview.NewFlex().
		SetDirection(tview.FlexColumn).
		AddItem(a.permission, 0, 1, false).
		AddItem(a.recent, 0, 1, false)

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.nowPlaying, 0, 3, false).
		AddItem(a.progress, 3, 1, false).
		AddItem(bottomRow, 7, 1, false).
		AddItem(a.status, 1, 1, false)

	a.app.SetInputCapture(a.handleKeyEvent)
	a.app.SetRoot(flex, true)
}

// handleKeyEvent processes keyboard input
func (a *App) handleKeyEvent(event *tcell.EventKey) *tcell.EventKey {
	switch event.Rune() {
	case 'q', 'Q':
		a.Stop()
		return nil
	case ' ':
		a.dispatch(a.ctrl.TogglePlayPause)
		return nil
	case 'n', 'N':
		a.dispatch(a.ctrl.NextTrack)
		return nil
	case 'p', 'P':
		a.dispatch(a.ctrl.PreviousTrack)
		return nil
	case 'r', 'R':
		a.dispatch(a.ctrl.RetryAfterPermissionGranted)
		return nil
	case 'o', 'O':
		a.ctrl.OpenSystemSettings()
		return nil
	}
	return event
}

// dispatch runs fn off the event loop. Failures surface through the next
// snapshot's LastError.
func (a *App) dispatch(fn func(context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(a.ctx, commandTimeout)
		defer cancel()
		_ = fn(ctx)
	}()
}

// Run subscribes to the controller and blocks until the user quits
func (a *App) Run(ctx context.Context) error {
	a.ctx, a.cancelFunc = context.WithCancel(ctx)

	sub := a.ctrl.Subscribe()
	defer sub.Close()

	go a.handleUpdates(a.ctx, sub)

	if err := a.app.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}

// handleUpdates stores snapshots as they arrive. A single ticker drives
// every redraw so bursts of updates do not queue redraws.
func (a *App) handleUpdates(ctx context.Context, sub *orchestrator.Subscription) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case snap, ok := <-sub.Updates:
				if !ok {
					return
				}
				a.applySnapshot(snap)
			}
		}
	}()

	refreshRate := a.config.RefreshRate
	if refreshRate <= 0 {
		refreshRate = 500 * time.Millisecond
	}
	ticker := time.NewTicker(refreshRate)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.app.Stop()
			return
		case <-ticker.C:
			a.refresh()
		}
	}
}

// applySnapshot records snap and rolls the previous track into the recent
// list when the track changes
func (a *App) applySnapshot(snap orchestrator.Snapshot) {
	a.mu.Lock()
	defer a.mu.Unlock()

	prev := a.snap.Current
	if prev.HasTrack() && !sameTrack(prev, snap.Current) {
		a.addToRecentTracks(prev)
	}
	a.snap = snap
}

func sameTrack(a, b playback.State) bool {
	return a.TrackName == b.TrackName &&
		a.ArtistName == b.ArtistName &&
		a.AlbumName == b.AlbumName
}

// addToRecentTracks writes into the ring buffer. Must be called with a.mu held.
func (a *App) addToRecentTracks(s playback.State) {
	idx := a.recentCount % maxRecentTracks
	a.recentBuf[idx] = RecentTrack{
		Name:     s.TrackName,
		Artist:   s.ArtistName,
		PlayedAt: time.Now(),
	}
	a.recentCount++
}

// getRecentTracks returns recent tracks most recent first. Must be called
// with a.mu held.
func (a *App) getRecentTracks() []RecentTrack {
	n := min(a.recentCount, maxRecentTracks)
	result := make([]RecentTrack, n)
	for i := range n {
		idx := (a.recentCount - 1 - i) % maxRecentTracks
		result[i] = a.recentBuf[idx]
	}
	return result
}

// refresh updates all UI components
func (a *App) refresh() {
	a.app.QueueUpdateDraw(func() {
		a.mu.Lock()
		defer a.mu.Unlock()

		setIfChanged(a.nowPlaying, &a.lastNowPlaying, renderNowPlaying(a.snap.Current))
		setIfChanged(a.progress, &a.lastProgress, a.renderProgress())
		setIfChanged(a.permission, &a.lastPermission, renderPermission(a.snap))
		setIfChanged(a.recent, &a.lastRecent, renderRecent(a.getRecentTracks()))
	})
}

func setIfChanged(view *tview.TextView, last *string, text string) {
	if text != *last {
		*last = text
		view.SetText(text)
	}
}

func (a *App) renderProgress() string {
	s := a.snap.Current
	if !s.HasTrack() {
		return ""
	}

	_, _, width, _ := a.progress.GetInnerRect()
	barWidth := width - 14 // Account for time display
	if barWidth > 0 {
		a.lastBarWidth = barWidth
	}
	if a.lastBarWidth < 10 {
		a.lastBarWidth = 10
	}

	return fmt.Sprintf("%s %s %s",
		formatDuration(s.PositionSeconds),
		buildProgressBar(s.PositionSeconds, s.DurationSeconds, a.lastBarWidth),
		formatDuration(s.DurationSeconds))
}

func renderNowPlaying(s playback.State) string {
	switch {
	case !s.IsConnected:
		return "\n\n[gray]Spotify is not running[-]"
	case !s.HasTrack():
		return "\n\n[gray]No track playing[-]"
	}

	var sb strings.Builder
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("[white::b]%s[-:-:-]\n", tview.Escape(s.TrackName)))
	sb.WriteString(fmt.Sprintf("[yellow]%s[-]\n", tview.Escape(s.ArtistName)))
	sb.WriteString(fmt.Sprintf("[gray]%s[-]", tview.Escape(s.AlbumName)))

	stateIcon := "[yellow]⏸[-]" // Pause icon
	if s.IsPlaying {
		stateIcon = "[green]▶[-]" // Play triangle
	}
	sb.WriteString(fmt.Sprintf("\n\n%s", stateIcon))
	return sb.String()
}

// renderPermission shows the phase and, when blocked, how to recover
func renderPermission(snap orchestrator.Snapshot) string {
	var sb strings.Builder

	if snap.HasPermissionError() {
		sb.WriteString("[red::b]Permission needed[-:-:-]\n")
		sb.WriteString("[white]Allow cadence to control Spotify in\n")
		sb.WriteString("Privacy & Security > Automation[-]\n")
		sb.WriteString("[gray]o: open settings  r: retry[-]")
		return sb.String()
	}

	sb.WriteString(fmt.Sprintf("Phase: %s\n", snap.Phase))
	sb.WriteString(fmt.Sprintf("Permission: %s\n", snap.PermissionStatus))
	if snap.LastError != nil {
		sb.WriteString(fmt.Sprintf("[red]%s[-]", tview.Escape(snap.LastError.Error())))
	}
	return sb.String()
}

func renderRecent(tracks []RecentTrack) string {
	if len(tracks) == 0 {
		return "[gray]No recent tracks[-]"
	}

	var sb strings.Builder
	for i, track := range tracks {
		if i > 0 {
			sb.WriteString("\n")
		}

		// Truncate name if too long
		name := []rune(track.Name)
		if len(name) > 20 {
			name = append(name[:17], []rune("...")...)
		}
		sb.WriteString(fmt.Sprintf("[white]%s[-] [gray]%s[-]", tview.Escape(string(name)), tview.Escape(track.Artist)))
	}
	return sb.String()
}

// Stop stops the TUI application
func (a *App) Stop() {
	if a.cancelFunc != nil {
		a.cancelFunc()
	}
	a.app.Stop()
}

// buildProgressBar creates a text-based progress bar
func buildProgressBar(position, duration, width int) string {
	if duration <= 0 || width <= 0 {
		return strings.Repeat("-", max(width, 0))
	}

	progress := float64(position) / float64(duration)
	progress = min(max(progress, 0), 1)

	filled := int(progress * float64(width))
	empty := width - filled

	return "[green]" + strings.Repeat("█", filled) + "[-]" +
		"[gray]" + strings.Repeat("░", empty) + "[-]"
}

// formatDuration formats whole seconds as MM:SS, or H:MM:SS past an hour
func formatDuration(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}

	hours := seconds / 3600
	minutes := (seconds / 60) % 60
	secs := seconds % 60

	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, secs)
	}
	return fmt.Sprintf("%02d:%02d", minutes, secs)
}
