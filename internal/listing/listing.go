package listing

import (
	"context"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zots0127/filegate/internal/storage"
)

// PageSize is fixed server-side to bound response size and metadata fan-out.
const PageSize = 10

// statConcurrency bounds how many metadata lookups run at once per call.
const statConcurrency = 8

// FileRecord is the read-only listing projection of one committed object.
type FileRecord struct {
	Name      string    `json:"name"`
	UpdatedAt time.Time `json:"updatedAt"`
	Size      int64     `json:"size"`
}

// Result is one page of a listing.
type Result struct {
	Files      []FileRecord `json:"files"`
	TotalPages int          `json:"totalPages"`
}

// Service answers paginated, search-filtered listing queries against the
// live bucket state. It is stateless: every call enumerates the bucket
// afresh, so results always reflect current contents.
type Service struct {
	store    storage.Store
	pageSize int
}

func NewService(store storage.Store) *Service {
	return &Service{store: store, pageSize: PageSize}
}

// List enumerates the bucket, keeps names containing searchTerm
// case-insensitively (an empty term matches everything), fetches metadata
// for every match concurrently, and returns the requested page. A page
// beyond the last yields empty Files with the correct TotalPages. Any
// metadata failure fails the whole call; a partial listing is never
// returned.
func (s *Service) List(ctx context.Context, searchTerm string, page int) (Result, error) {
	if page < 1 {
		page = 1
	}

	names, err := s.store.List(ctx)
	if err != nil {
		return Result{}, err
	}

	needle := strings.ToLower(searchTerm)
	matched := names[:0:0]
	for _, name := range names {
		if strings.Contains(strings.ToLower(name), needle) {
			matched = append(matched, name)
		}
	}

	// Metadata fan-out preserves the bucket's enumeration order by writing
	// into a preallocated slot per match.
	records := make([]FileRecord, len(matched))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(statConcurrency)
	for i, name := range matched {
		i, name := i, name
		g.Go(func() error {
			info, err := s.store.Stat(gctx, name)
			if err != nil {
				return err
			}
			records[i] = FileRecord{Name: info.Name, UpdatedAt: info.UpdatedAt, Size: info.Size}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	totalPages := (len(records) + s.pageSize - 1) / s.pageSize

	start := (page - 1) * s.pageSize
	if start >= len(records) {
		return Result{Files: []FileRecord{}, TotalPages: totalPages}, nil
	}
	end := start + s.pageSize
	if end > len(records) {
		end = len(records)
	}
	return Result{Files: records[start:end], TotalPages: totalPages}, nil
}
