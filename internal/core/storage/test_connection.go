package storage

import (
	"context"
	"fmt"

	"github.com/cloudsync/enginecore/internal/core/model"
	"github.com/cloudsync/enginecore/internal/core/ports"
)

// Tester implements ports.ConnectionTester by connecting to the backend
// described by cfg and issuing a single List of the root, mirroring the
// engine's own destination-accessibility probe. List is recursive, so the
// probe walks the whole tree under the root.
type Tester struct{}

// Test connects to cfg's backend and lists its root, returning any error
// the connection or listing produced.
func (Tester) Test(ctx context.Context, cfg model.StorageConfig) error {
	s, err := New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	if _, err := s.List(ctx, ""); err != nil {
		return fmt.Errorf("list root: %w", err)
	}
	return nil
}

var _ ports.ConnectionTester = Tester{}
