package s3blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/ankhone/alpacahq-zipline/internal/domain"
)

// DailyStore keeps daily-cache entries as JSON objects under dailycache/.
// Entries larger than one multipart part go through the upload manager.
type DailyStore struct {
	w domain.BlobWriter
	r domain.BlobReader
}

// NewDailyStore creates a DailyStore over c.
func NewDailyStore(c *Client) *DailyStore {
	return &DailyStore{w: NewWriter(c), r: NewReader(c)}
}

func dailyKey(name string) string {
	return "dailycache/" + name + ".json"
}

// Load returns the entry stored under name.
func (s *DailyStore) Load(ctx context.Context, name string) ([]byte, error) {
	body, err := s.r.Get(ctx, dailyKey(name))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("s3blob: read %s: %w", name, err)
	}
	return data, nil
}

// Save overwrites the entry stored under name.
func (s *DailyStore) Save(ctx context.Context, name string, data []byte) error {
	if int64(len(data)) > minPartSize {
		return s.w.PutMultipart(ctx, dailyKey(name), bytes.NewReader(data), minPartSize)
	}
	return s.w.Put(ctx, dailyKey(name), bytes.NewReader(data), "application/json")
}

var _ domain.CacheStore = (*DailyStore)(nil)
