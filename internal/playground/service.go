// Package playground talks to the external item service that hosts
// playground levels and test applications.
package playground

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/paulaanasilva/mazephases/internal/config"
	"github.com/paulaanasilva/mazephases/internal/orchestrator"
)

// DefaultTimeout bounds every item service request.
const DefaultTimeout = 10 * time.Second

// maxBody caps how much of a response is read.
const maxBody = 4 << 20

// ErrNoTarget is returned when neither the run nor the config names an item.
var ErrNoTarget = errors.New("playground base url and item id are required")

// Target is implemented by run configurations that carry their own item
// service location.
type Target interface {
	PlaygroundTarget() (baseURL, itemID string)
}

// Service is an orchestrator.ItemService backed by HTTP.
type Service struct {
	baseURL    string
	itemID     string
	token      string
	httpClient *http.Client
	logger     *zap.Logger

	mu    sync.Mutex
	items []orchestrator.Item
}

// New creates a service for itemID at baseURL. token may be empty.
func New(baseURL, itemID, token string, timeout time.Duration, logger *zap.Logger) (*Service, error) {
	if baseURL == "" || itemID == "" {
		return nil, ErrNoTarget
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		baseURL:    strings.TrimRight(baseURL, "/"),
		itemID:     itemID,
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}, nil
}

// NewFactory returns an orchestrator.ItemServiceFactory. The run's own
// target wins over cfg. For test-application runs the item list is synced
// before the service is handed out.
func NewFactory(cfg config.PlaygroundConfig, logger *zap.Logger) orchestrator.ItemServiceFactory {
	return func(ctx context.Context, run orchestrator.RunConfiguration) (orchestrator.ItemService, error) {
		baseURL, itemID := cfg.BaseURL, cfg.ItemID
		if t, ok := run.(Target); ok {
			b, i := t.PlaygroundTarget()
			if b != "" {
				baseURL = b
			}
			if i != "" {
				itemID = i
			}
		}

		token, err := config.ResolveSecret(config.SecretPlaygroundToken)
		if err != nil {
			return nil, err
		}

		svc, err := New(baseURL, itemID, token, cfg.Timeout(), logger)
		if err != nil {
			return nil, err
		}

		if run != nil && run.IsTestApplication() {
			if err := svc.Sync(ctx); err != nil {
				return nil, err
			}
		}
		return svc, nil
	}
}

// InstantiatePlaygroundItem fetches the playground item's level record.
// A 204 or a JSON null body yields a nil record.
func (s *Service) InstantiatePlaygroundItem(ctx context.Context) (*orchestrator.LevelRecord, error) {
	body, err := s.get(ctx, "/items/"+url.PathEscape(s.itemID)+"/instantiate")
	if err != nil {
		return nil, err
	}
	if len(body) == 0 || string(body) == "null" {
		return nil, nil
	}

	rec, err := orchestrator.ParseLevelRecord(body)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("playground item instantiated",
		zap.String("item_id", s.itemID),
		zap.Int("polygons", len(rec.Polygons)))
	return rec, nil
}

// Sync loads the pending test-application items.
func (s *Service) Sync(ctx context.Context) error {
	body, err := s.get(ctx, "/test-applications/"+url.PathEscape(s.itemID)+"/items")
	if err != nil {
		return err
	}

	var items []orchestrator.Item
	if len(body) > 0 {
		if err := json.Unmarshal(body, &items); err != nil {
			return fmt.Errorf("invalid test application items: %w", err)
		}
	}

	s.mu.Lock()
	s.items = items
	s.mu.Unlock()

	s.logger.Debug("test application items synced",
		zap.String("item_id", s.itemID),
		zap.Int("items", len(items)))
	return nil
}

// FirstTestApplicationItem returns the first synced item, or nil.
func (s *Service) FirstTestApplicationItem() *orchestrator.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.items) == 0 {
		return nil
	}
	item := s.items[0]
	return &item
}

func (s *Service) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNoContent:
		return nil, nil
	case resp.StatusCode != http.StatusOK:
		return nil, &StatusError{Code: resp.StatusCode, Path: path, Body: strings.TrimSpace(string(body))}
	}
	return body, nil
}

// StatusError is a non-200 answer from the item service.
type StatusError struct {
	Code int
	Path string
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("item service %s: status %d", e.Path, e.Code)
	}
	return fmt.Sprintf("item service %s: status %d: %s", e.Path, e.Code, e.Body)
}
