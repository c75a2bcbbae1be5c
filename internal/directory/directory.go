// Package directory tracks the channel list and the current selection.
package directory

import (
	"context"
	"sync"

	"github.com/specterchat/specter/internal/domain"
	"github.com/specterchat/specter/internal/store"
	"github.com/specterchat/specter/pkg/log"
)

// Directory loads the available channels and owns the active selection.
// Selection changes are reported through the OnSelect callback; the
// engine uses it to tear down and rebuild the stream and tracker.
type Directory struct {
	store store.Store

	// OnSelect, if set, is invoked with the new channel id on every real
	// selection change. Never invoked for an idempotent re-select.
	OnSelect func(channelID string)

	mu       sync.Mutex
	channels []domain.Channel
	selected string
}

// New creates a Directory over the given store.
func New(st store.Store) *Directory {
	return &Directory{store: st}
}

// Load fetches the full channel list, ordered by name ascending. If no
// channel is selected yet, the first channel becomes the default
// selection. A failed load preserves the prior list.
func (d *Directory) Load(ctx context.Context) ([]domain.Channel, error) {
	channels, err := d.store.Channels(ctx)
	if err != nil {
		return nil, &domain.LoadError{Op: "channel list", Err: err}
	}

	d.mu.Lock()
	d.channels = channels
	var selectedNow string
	if d.selected == "" && len(channels) > 0 {
		d.selected = channels[0].ID
		selectedNow = d.selected
	}
	onSelect := d.OnSelect
	d.mu.Unlock()

	if selectedNow != "" {
		l := log.Ctx(ctx)
		l.Debug().Str(log.FieldChannelID, selectedNow).Msg("default channel selected")
		if onSelect != nil {
			onSelect(selectedNow)
		}
	}
	return channels, nil
}

// Select makes the given channel active. Selecting the already-active
// channel is a no-op; an id outside the loaded list is rejected.
func (d *Directory) Select(channelID string) error {
	d.mu.Lock()
	if channelID == d.selected {
		d.mu.Unlock()
		return nil
	}

	known := false
	for _, c := range d.channels {
		if c.ID == channelID {
			known = true
			break
		}
	}
	if !known {
		d.mu.Unlock()
		return domain.ErrUnknownChannel
	}

	d.selected = channelID
	onSelect := d.OnSelect
	d.mu.Unlock()

	if onSelect != nil {
		onSelect(channelID)
	}
	return nil
}

// Channels returns a copy of the loaded channel list.
func (d *Directory) Channels() []domain.Channel {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]domain.Channel, len(d.channels))
	copy(out, d.channels)
	return out
}

// Selected returns the active channel id, or "" before the first load.
func (d *Directory) Selected() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.selected
}

// SelectedChannel returns the active channel, if any.
func (d *Directory) SelectedChannel() (domain.Channel, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, c := range d.channels {
		if c.ID == d.selected {
			return c, true
		}
	}
	return domain.Channel{}, false
}
