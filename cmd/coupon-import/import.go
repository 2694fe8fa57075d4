package main

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/academy-pricing/internal/domain/coupon"
)

const (
	bloomSlack    = 1_000_000
	bloomFPR      = 0.001
	progressEvery = 10_000
	maxLineBytes  = 64 << 10
)

// Creator is the authoring path coupons are written through.
type Creator interface {
	Create(ctx context.Context, d coupon.Draft) (*coupon.Coupon, error)
}

// Finder confirms bloom filter hits.
type Finder interface {
	FindByCode(ctx context.Context, code string) (*coupon.Coupon, error)
}

// codeLister streams every code in the catalog.
type codeLister interface {
	ExistingCodes(ctx context.Context, fn func(code string)) error
}

// Stats counts import outcomes.
type Stats struct {
	Created  atomic.Uint64
	Skipped  atomic.Uint64
	Rejected atomic.Uint64
}

// knownCodes is a concurrency-safe bloom filter of upper-cased codes.
type knownCodes struct {
	mu     sync.Mutex
	filter *bloom.BloomFilter
}

func newKnownCodes(n uint) *knownCodes {
	return &knownCodes{filter: bloom.NewWithEstimates(n+bloomSlack, bloomFPR)}
}

func (k *knownCodes) add(code string) {
	k.mu.Lock()
	k.filter.AddString(strings.ToUpper(code))
	k.mu.Unlock()
}

// testAndAdd reports whether code was probably seen before and records it.
func (k *knownCodes) testAndAdd(code string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.filter.TestOrAddString(strings.ToUpper(code))
}

func loadKnownCodes(ctx context.Context, src codeLister) (*knownCodes, error) {
	var codes []string
	if err := src.ExistingCodes(ctx, func(code string) {
		codes = append(codes, code)
	}); err != nil {
		return nil, err
	}
	known := newKnownCodes(uint(len(codes)))
	for _, c := range codes {
		known.add(c)
	}
	slog.Info("existing codes loaded", slog.Int("count", len(codes)))
	return known, nil
}

type importer struct {
	known   *knownCodes
	lookup  Finder
	author  Creator
	workers int
}

type line struct {
	n    int
	data []byte
}

// Import streams path and creates every new draft. Malformed or invalid
// drafts are logged and counted; storage failures abort the import.
func (imp *importer) Import(ctx context.Context, path string) (*Stats, error) {
	stats := &Stats{}

	f, err := os.Open(path)
	if err != nil {
		return stats, errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return stats, errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	return stats, imp.importFrom(ctx, gz, stats)
}

func (imp *importer) importFrom(ctx context.Context, r io.Reader, stats *Stats) error {
	lines := make(chan line, imp.workers*4)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 4096), maxLineBytes)
		n := 0
		for scanner.Scan() {
			n++
			raw := scanner.Bytes()
			if len(strings.TrimSpace(string(raw))) == 0 {
				continue
			}
			data := make([]byte, len(raw))
			copy(data, raw)
			select {
			case lines <- line{n: n, data: data}:
			case <-ctx.Done():
				return ctx.Err()
			}
			if n%progressEvery == 0 {
				slog.Info("import progress", slog.Int("lines", n), slog.Uint64("created", stats.Created.Load()))
			}
		}
		if err := scanner.Err(); err != nil {
			return errors.Wrap(err, "scan")
		}
		return nil
	})

	for range max(imp.workers, 1) {
		g.Go(func() error {
			for l := range lines {
				if err := imp.handle(ctx, l, stats); err != nil {
					return err
				}
			}
			return nil
		})
	}

	return g.Wait()
}

func (imp *importer) handle(ctx context.Context, l line, stats *Stats) error {
	d, err := parseDraft(l.data)
	if err != nil {
		stats.Rejected.Add(1)
		slog.Warn("malformed line", slog.Int("line", l.n), slog.String("error", err.Error()))
		return nil
	}

	if imp.known.testAndAdd(d.Code) {
		// Probably known; confirm before skipping to tolerate false positives.
		_, err := imp.lookup.FindByCode(ctx, strings.TrimSpace(d.Code))
		switch {
		case err == nil:
			stats.Skipped.Add(1)
			return nil
		case !errors.Is(err, coupon.ErrCouponNotFound):
			return errors.Wrapf(err, "line %d: look up %s", l.n, d.Code)
		}
	}

	_, err = imp.author.Create(ctx, d)
	var (
		vErr  *coupon.ValidationError
		limit *coupon.ExceedsTypeLimitError
	)
	switch {
	case err == nil:
		stats.Created.Add(1)
	case errors.Is(err, coupon.ErrDuplicateCode):
		stats.Skipped.Add(1)
	case errors.As(err, &vErr), errors.As(err, &limit), errors.Is(err, coupon.ErrTypeNotFound):
		stats.Rejected.Add(1)
		slog.Warn("rejected draft", slog.Int("line", l.n), slog.String("code", d.Code), slog.String("error", err.Error()))
	default:
		return errors.Wrapf(err, "line %d: create %s", l.n, d.Code)
	}
	return nil
}

// parseDraft decodes one JSON line into a coupon draft.
func parseDraft(data []byte) (coupon.Draft, error) {
	var d coupon.Draft
	err := jx.DecodeBytes(data).Obj(func(dec *jx.Decoder, key string) error {
		switch key {
		case "code":
			s, err := dec.Str()
			d.Code = s
			return err
		case "kind":
			s, err := dec.Str()
			d.Kind = coupon.DiscountKind(strings.ToUpper(s))
			return err
		case "value":
			s, err := readNumber(dec)
			if err != nil {
				return err
			}
			v, err := decimal.NewFromString(s)
			if err != nil {
				return errors.Wrap(err, "value")
			}
			d.Value = v
			return nil
		case "typeId":
			s, err := dec.Str()
			d.TypeID = s
			return err
		case "agentId":
			s, err := dec.Str()
			d.AgentID = s
			return err
		case "description":
			s, err := dec.Str()
			d.Description = s
			return err
		case "validFrom", "validUntil":
			s, err := dec.Str()
			if err != nil {
				return err
			}
			t, err := time.Parse(time.RFC3339, s)
			if err != nil {
				return errors.Wrap(err, key)
			}
			if key == "validFrom" {
				d.ValidFrom = t
			} else {
				d.ValidUntil = t
			}
			return nil
		case "maxUsageCount":
			if dec.Next() == jx.Null {
				return dec.Null()
			}
			n, err := dec.Int()
			d.MaxUsageCount = &n
			return err
		case "courseIds":
			return dec.Arr(func(dec *jx.Decoder) error {
				s, err := dec.Str()
				d.CourseIDs = append(d.CourseIDs, s)
				return err
			})
		default:
			return dec.Skip()
		}
	})
	if err != nil {
		return coupon.Draft{}, err
	}
	if strings.TrimSpace(d.Code) == "" {
		return coupon.Draft{}, errors.New("code is missing")
	}
	return d, nil
}

func readNumber(dec *jx.Decoder) (string, error) {
	if dec.Next() == jx.String {
		return dec.Str()
	}
	n, err := dec.Num()
	if err != nil {
		return "", err
	}
	return n.String(), nil
}
