package feed

import (
	"context"
	"fmt"
	"image"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/dmorgan81/fluxui/internal/log"
	"github.com/dmorgan81/fluxui/internal/store"
	"github.com/gorilla/feeds"
	"github.com/samber/do"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

const maxItems = 50

// Generator builds an RSS feed of the images in the output directory.
type Generator struct {
	dir string
}

func NewGenerator(i *do.Injector) (*Generator, error) {
	return &Generator{dir: do.MustInvokeNamed[string](i, "output_dir")}, nil
}

func NewGeneratorWith(dir string) *Generator {
	return &Generator{dir: dir}
}

// Generate lists the newest images first. baseURL is prepended to image links.
func (g *Generator) Generate(ctx context.Context, baseURL string) ([]byte, error) {
	log := log.FromContextOrDiscard(ctx).WithGroup("feed").With("dir", g.dir)
	log.Info("generating rss feed")

	feed := feeds.Feed{
		Title:       "fluxui",
		Description: "Generated images",
		Link:        &feeds.Link{Href: baseURL + "/"},
		Updated:     time.Now(),
	}

	entries, err := os.ReadDir(g.dir)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	names := lo.FilterMap(entries, func(e os.DirEntry, _ int) (store.Names, bool) {
		if e.IsDir() {
			return store.Names{}, false
		}
		return store.ParseFile(e.Name())
	})
	// timestamps sort lexically
	sort.Slice(names, func(a, b int) bool { return names[a].Timestamp > names[b].Timestamp })
	if len(names) > maxItems {
		names = names[:maxItems]
	}

	items := make([]*feeds.Item, len(names))
	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(8)
	for idx, n := range names {
		group.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			item, err := g.item(baseURL, n)
			if err != nil {
				log.Warn("skipping unreadable image", "file", n.File, "error", err)
				return nil
			}
			items[idx] = item
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	for _, item := range lo.Compact(items) {
		feed.Add(item)
	}
	rss, err := feed.ToRss()
	return []byte(rss), err
}

func (g *Generator) item(baseURL string, n store.Names) (*feeds.Item, error) {
	path := filepath.Join(g.dir, n.File)
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return nil, err
	}
	created, err := time.ParseInLocation(store.TimestampLayout, n.Timestamp, time.Local)
	if err != nil {
		return nil, err
	}

	link := fmt.Sprintf("%s/images/%s", baseURL, n.File)
	return &feeds.Item{
		Id:          n.File,
		Title:       fmt.Sprintf("%s (%dx%d)", n.Timestamp, cfg.Width, cfg.Height),
		Link:        &feeds.Link{Href: link},
		Description: fmt.Sprintf("Download as %s", n.Download),
		Created:     created,
		Updated:     info.ModTime(),
		Enclosure: &feeds.Enclosure{
			Url:    link,
			Length: strconv.FormatInt(info.Size(), 10),
			Type:   "image/png",
		},
	}, nil
}
