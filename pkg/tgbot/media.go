package tgbot

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"tgbotkit/internal/identity"
)

// File is a downloadable file stored on Telegram servers.
type File struct {
	ID       string
	UniqueID string
	Size     int64
	// Path is filled in by getFile; empty until then.
	Path string
}

// PhotoSize is one resolution of a photo.
type PhotoSize struct {
	File   File
	Width  int
	Height int
}

// Photo is a photo with all sizes Telegram generated, smallest width first.
type Photo struct {
	Sizes []PhotoSize
}

// Largest returns the widest size. ok is false for a photo without sizes.
func (p Photo) Largest() (PhotoSize, bool) {
	if len(p.Sizes) == 0 {
		return PhotoSize{}, false
	}

	return p.Sizes[len(p.Sizes)-1], true
}

// Smallest returns the narrowest size.
func (p Photo) Smallest() (PhotoSize, bool) {
	if len(p.Sizes) == 0 {
		return PhotoSize{}, false
	}

	return p.Sizes[0], true
}

func photoFromWire(raw []tgbotapi.PhotoSize) Photo {
	sizes := make([]PhotoSize, 0, len(raw))
	for _, size := range raw {
		sizes = append(sizes, PhotoSize{
			File: File{
				ID:       size.FileID,
				UniqueID: size.FileUniqueID,
				Size:     int64(size.FileSize),
			},
			Width:  size.Width,
			Height: size.Height,
		})
	}
	sort.SliceStable(sizes, func(i, j int) bool {
		return sizes[i].Width < sizes[j].Width
	})

	return Photo{Sizes: sizes}
}

// ResolveFile fills in the download path of file via getFile.
func (b *Bot) ResolveFile(ctx context.Context, file File) (File, error) {
	raw, err := b.api.GetFile(ctx, file.ID)
	if err != nil {
		return File{}, fmt.Errorf("resolve file %s: %w", file.ID, err)
	}
	file.Path = raw.FilePath
	if raw.FileUniqueID != "" {
		file.UniqueID = raw.FileUniqueID
	}
	if raw.FileSize > 0 {
		file.Size = int64(raw.FileSize)
	}

	return file, nil
}

// DownloadFile writes the content of file to w, resolving its path first if needed.
func (b *Bot) DownloadFile(ctx context.Context, file File, w io.Writer) error {
	if file.Path == "" {
		resolved, err := b.ResolveFile(ctx, file)
		if err != nil {
			return err
		}
		file = resolved
	}

	if err := b.api.DownloadFile(ctx, file.Path, w); err != nil {
		return fmt.Errorf("download file %s: %w", file.ID, err)
	}

	return nil
}

// MediaGroup is an album: messages sharing a media_group_id, ordered by message id.
type MediaGroup struct {
	id string

	mu       sync.RWMutex
	messages []*Message
}

// ID returns the upstream media group id.
func (g *MediaGroup) ID() string {
	return g.id
}

// Messages returns the album messages ordered by message id.
func (g *MediaGroup) Messages() []*Message {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return append([]*Message(nil), g.messages...)
}

// Len returns the number of messages seen so far.
func (g *MediaGroup) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return len(g.messages)
}

// add inserts message keeping the list sorted by id without duplicates.
func (g *MediaGroup) add(message *Message) {
	g.mu.Lock()
	defer g.mu.Unlock()

	index := sort.Search(len(g.messages), func(i int) bool {
		return g.messages[i].id >= message.id
	})
	if index < len(g.messages) && g.messages[index].id == message.id {
		g.messages[index] = message
		return
	}

	g.messages = append(g.messages, nil)
	copy(g.messages[index+1:], g.messages[index:])
	g.messages[index] = message
}

func mediaGroupAdapter() identity.Adapter[MediaGroup, string] {
	return identity.Adapter[MediaGroup, string]{
		Kind:   "media_group",
		Key:    func(group *MediaGroup) string { return group.id },
		RawKey: func(id string) string { return id },
		New:    func(id string) *MediaGroup { return &MediaGroup{id: id} },
		Merge:  func(*MediaGroup, string) {},
	}
}

// MediaGroup returns the cached media group with id.
func (b *Bot) MediaGroup(id string) (*MediaGroup, bool) {
	return b.groups.Lookup(id)
}
