// Package source resolves snapshot references given on the command line:
// local files, s3://bucket/key objects and "-" for standard input.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/yourusername/dashdiff/internal/aws"
	"github.com/yourusername/dashdiff/internal/dashboard"
	"github.com/yourusername/dashdiff/internal/logger"
)

// Stdin is the reference that reads from standard input.
const Stdin = "-"

// ErrNoStore is returned for s3:// references when no store is configured.
var ErrNoStore = errors.New("no S3 snapshot store configured")

// Fetcher downloads remote snapshots.
type Fetcher interface {
	GetSnapshot(ctx context.Context, loc aws.Location) ([]byte, error)
}

// BatchFetcher is a Fetcher that downloads several snapshots in one call,
// such as aws.SnapshotStore.
type BatchFetcher interface {
	Fetcher
	GetSnapshots(ctx context.Context, locs []aws.Location) <-chan aws.SnapshotResult
}

// DefaultConcurrency is the number of references Dashboards reads at once.
const DefaultConcurrency = 4

// StoreFactory creates the Fetcher on first use, so that AWS configuration
// is only loaded when a remote reference is read.
type StoreFactory func(ctx context.Context) (Fetcher, error)

// Loader reads snapshots by reference.
type Loader struct {
	newStore StoreFactory
	stdin    io.Reader
	logger   *logger.Logger
	limit    int

	once     sync.Once
	store    Fetcher
	storeErr error
}

// Option configures a Loader
type Option func(*Loader)

// WithStdin replaces standard input, mainly for tests.
func WithStdin(r io.Reader) Option {
	return func(l *Loader) {
		l.stdin = r
	}
}

// WithConcurrency bounds the number of references Dashboards reads at once.
func WithConcurrency(n int) Option {
	return func(l *Loader) {
		if n > 0 {
			l.limit = n
		}
	}
}

// WithLogger sets the logger used by the loader
func WithLogger(log *logger.Logger) Option {
	return func(l *Loader) {
		l.logger = log
	}
}

// NewLoader creates a loader. newStore may be nil, in which case s3://
// references fail with ErrNoStore.
func NewLoader(newStore StoreFactory, opts ...Option) *Loader {
	l := &Loader{
		newStore: newStore,
		stdin:    os.Stdin,
		logger:   logger.DefaultLogger,
		limit:    DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// IsRemote reports whether ref points at S3.
func IsRemote(ref string) bool {
	return strings.HasPrefix(ref, aws.Scheme)
}

// Read returns the raw document behind ref and its format.
func (l *Loader) Read(ctx context.Context, ref string) ([]byte, dashboard.Format, error) {
	format := dashboard.FormatFromPath(ref)

	switch {
	case ref == "":
		return nil, format, fmt.Errorf("empty snapshot reference")

	case ref == Stdin:
		data, err := io.ReadAll(l.stdin)
		if err != nil {
			return nil, format, fmt.Errorf("reading stdin: %w", err)
		}
		return data, format, nil

	case IsRemote(ref):
		loc, err := aws.ParseLocation(ref)
		if err != nil {
			return nil, format, err
		}
		store, err := l.fetcher(ctx)
		if err != nil {
			return nil, format, err
		}
		data, err := store.GetSnapshot(ctx, loc)
		if err != nil {
			return nil, format, err
		}
		return data, format, nil

	default:
		l.logger.Debug("Reading snapshot file", "path", ref)
		data, err := os.ReadFile(ref)
		if err != nil {
			return nil, format, fmt.Errorf("reading snapshot: %w", err)
		}
		return data, format, nil
	}
}

// Dashboard reads and decodes the dashboard snapshot behind ref.
func (l *Loader) Dashboard(ctx context.Context, ref string) (*dashboard.Dashboard, error) {
	data, format, err := l.Read(ctx, ref)
	if err != nil {
		return nil, err
	}
	d, err := dashboard.Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ref, err)
	}
	return d, nil
}

// Dashboards reads every reference and returns the dashboards in the same
// order. When there are several references, all of them s3:// objects, and
// the store is a BatchFetcher, they are downloaded in one batch. Otherwise
// they are read concurrently. The first error is returned.
func (l *Loader) Dashboards(ctx context.Context, refs []string) ([]*dashboard.Dashboard, error) {
	if len(refs) > 1 && allRemote(refs) {
		store, err := l.fetcher(ctx)
		if err != nil {
			return nil, err
		}
		if batch, ok := store.(BatchFetcher); ok {
			return l.fetchBatch(ctx, batch, refs)
		}
	}

	out := make([]*dashboard.Dashboard, len(refs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(l.limit)
	for i, ref := range refs {
		g.Go(func() error {
			d, err := l.Dashboard(ctx, ref)
			if err != nil {
				return err
			}
			out[i] = d
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (l *Loader) fetchBatch(ctx context.Context, batch BatchFetcher, refs []string) ([]*dashboard.Dashboard, error) {
	positions := make(map[aws.Location][]int)
	var locs []aws.Location
	for i, ref := range refs {
		loc, err := aws.ParseLocation(ref)
		if err != nil {
			return nil, err
		}
		if _, seen := positions[loc]; !seen {
			locs = append(locs, loc)
		}
		positions[loc] = append(positions[loc], i)
	}

	l.logger.Debug("Fetching snapshot batch", "count", len(locs))

	out := make([]*dashboard.Dashboard, len(refs))
	var firstErr error
	for result := range batch.GetSnapshots(ctx, locs) {
		if firstErr != nil {
			continue
		}
		if result.Err != nil {
			firstErr = result.Err
			continue
		}
		for _, i := range positions[result.Location] {
			d, err := dashboard.Parse(result.Data, dashboard.FormatFromPath(result.Location.Key))
			if err != nil {
				firstErr = fmt.Errorf("%s: %w", result.Location, err)
				break
			}
			out[i] = d
		}
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}

func allRemote(refs []string) bool {
	for _, ref := range refs {
		if !IsRemote(ref) {
			return false
		}
	}
	return true
}

// Panel reads and decodes the panel document behind ref.
func (l *Loader) Panel(ctx context.Context, ref string) (dashboard.Panel, error) {
	data, format, err := l.Read(ctx, ref)
	if err != nil {
		return nil, err
	}
	p, err := dashboard.ParsePanel(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ref, err)
	}
	return p, nil
}

func (l *Loader) fetcher(ctx context.Context) (Fetcher, error) {
	if l.newStore == nil {
		return nil, ErrNoStore
	}
	l.once.Do(func() {
		l.store, l.storeErr = l.newStore(ctx)
	})
	return l.store, l.storeErr
}
