package postgres

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/V4T54L/faultline/internal/adapter/metrics"
)

const (
	lookupKeyQuery = `SELECT EXISTS(SELECT 1 FROM api_keys WHERE key_hash = $1 AND is_active AND (expires_at IS NULL OR expires_at > NOW()))`
	upsertKeyQuery = `INSERT INTO api_keys (key_hash, application) VALUES ($1, $2)
ON CONFLICT (key_hash) DO UPDATE SET application = EXCLUDED.application, is_active = true`
)

// HashKey is the form a key is stored and cached in.
func HashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

type keyVerdict struct {
	valid   bool
	expires time.Time
}

// APIKeyRepository validates keys against the api_keys table and remembers
// each verdict for a while. Only key hashes are stored or cached.
type APIKeyRepository struct {
	db      *sql.DB
	logger  *slog.Logger
	ttl     time.Duration
	metrics *metrics.CollectorMetrics
	now     func() time.Time

	mu       sync.RWMutex
	verdicts map[string]keyVerdict
}

// NewAPIKeyRepository creates an APIKeyRepository. m may be nil.
func NewAPIKeyRepository(db *sql.DB, logger *slog.Logger, ttl time.Duration, m *metrics.CollectorMetrics) *APIKeyRepository {
	return &APIKeyRepository{
		db:       db,
		logger:   logger.With("component", "apikey_repository"),
		ttl:      ttl,
		metrics:  m,
		now:      time.Now,
		verdicts: make(map[string]keyVerdict),
	}
}

// IsValid reports whether key is active and unexpired. Database errors are
// returned and never cached.
func (r *APIKeyRepository) IsValid(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, nil
	}
	hash := HashKey(key)

	if valid, ok := r.cached(hash); ok {
		r.observe(true)
		return valid, nil
	}
	r.observe(false)

	var valid bool
	if err := r.db.QueryRowContext(ctx, lookupKeyQuery, hash).Scan(&valid); err != nil {
		r.logger.Error("Failed to look up API key", "error", err)
		return false, fmt.Errorf("api key lookup: %w", err)
	}
	r.remember(hash, valid)
	return valid, nil
}

// Register stores key for application, reactivating it when it exists.
func (r *APIKeyRepository) Register(ctx context.Context, key, application string) error {
	if key == "" {
		return fmt.Errorf("api key register: empty key")
	}
	hash := HashKey(key)
	if _, err := r.db.ExecContext(ctx, upsertKeyQuery, hash, application); err != nil {
		return fmt.Errorf("api key register: %w", err)
	}
	r.remember(hash, true)
	r.logger.Info("API key registered", "application", application)
	return nil
}

func (r *APIKeyRepository) cached(hash string) (bool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.verdicts[hash]
	if !ok || !r.now().Before(v.expires) {
		return false, false
	}
	return v.valid, true
}

func (r *APIKeyRepository) remember(hash string, valid bool) {
	r.mu.Lock()
	r.verdicts[hash] = keyVerdict{valid: valid, expires: r.now().Add(r.ttl)}
	r.mu.Unlock()
}

func (r *APIKeyRepository) observe(hit bool) {
	if r.metrics == nil {
		return
	}
	if hit {
		r.metrics.APIKeyCacheHits.Inc()
	} else {
		r.metrics.APIKeyCacheMisses.Inc()
	}
}
