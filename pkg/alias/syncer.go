// Package alias keeps the radio alias table in step with a published
// RID,ALIAS list.
package alias

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dbehnke/wlink-terminal/pkg/config"
	"github.com/dbehnke/wlink-terminal/pkg/database"
	"github.com/dbehnke/wlink-terminal/pkg/logger"
)

// BatchSize for database upserts
const BatchSize = 1000

// Syncer downloads the alias list and stores it
type Syncer struct {
	repo     *database.AliasRepository
	logger   *logger.Logger
	client   *http.Client
	url      string
	interval time.Duration
}

// NewSyncer creates an alias syncer from the alias configuration
func NewSyncer(repo *database.AliasRepository, cfg config.AliasConfig, log *logger.Logger) *Syncer {
	if log == nil {
		log = logger.Nop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &Syncer{
		repo:     repo,
		logger:   log.WithComponent("alias"),
		client:   &http.Client{Timeout: timeout},
		url:      cfg.URL,
		interval: interval,
	}
}

// Start syncs once and then on every interval until ctx is cancelled
func (s *Syncer) Start(ctx context.Context) {
	if err := s.Sync(ctx); err != nil {
		s.logger.Error("Alias sync failed on startup", logger.Error(err))
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Alias syncer stopped")
			return
		case <-ticker.C:
			if err := s.Sync(ctx); err != nil {
				s.logger.Error("Alias sync failed", logger.Error(err))
			}
		}
	}
}

// Sync downloads the list and upserts every alias in it
func (s *Syncer) Sync(ctx context.Context) error {
	start := time.Now()
	s.logger.Info("Downloading alias list", logger.String("url", s.url))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download alias list: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			s.logger.Warn("Failed to close response body", logger.Error(err))
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	aliases, err := s.parseCSV(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to parse alias list: %w", err)
	}

	if err := s.repo.UpsertBatch(aliases, BatchSize); err != nil {
		return fmt.Errorf("failed to save aliases: %w", err)
	}

	count, _ := s.repo.Count()
	s.logger.Info("Alias sync complete",
		logger.Int("parsed", len(aliases)),
		logger.Int64("total", count),
		logger.Duration("duration", time.Since(start)))
	return nil
}

// parseCSV reads RID,ALIAS rows. A header row and rows whose first column
// is not a radio ID are skipped.
func (s *Syncer) parseCSV(r io.Reader) ([]database.Alias, error) {
	reader := csv.NewReader(bufio.NewReader(r))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var aliases []database.Alias
	now := time.Now()
	line := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			s.logger.Debug("Skipping unreadable alias row", logger.Int("line", line), logger.Error(err))
			continue
		}
		if len(record) < 2 {
			continue
		}

		rid := strings.TrimSpace(record[0])
		name := strings.TrimSpace(record[1])
		if !isRID(rid) || name == "" {
			continue
		}
		aliases = append(aliases, database.Alias{RID: rid, Alias: name, UpdatedAt: now})
	}

	if line == 0 {
		return nil, fmt.Errorf("alias list is empty")
	}
	return aliases, nil
}

func isRID(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
