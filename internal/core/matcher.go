package core

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"plexvoice/pkg/fuzzy"
)

// ArtistIndex is a lazily loaded cache of every artist name in the library. It loads once per
// process; a failed load leaves it unloaded so the next lookup tries again.
type ArtistIndex struct {
	source ArtistLister
	retry  *RetryExecutor
	logger *zap.Logger

	mutex  sync.Mutex
	loaded bool
	names  []string
}

func NewArtistIndex(source ArtistLister, retry *RetryExecutor, logger *zap.Logger) *ArtistIndex {
	return &ArtistIndex{
		source: source,
		retry:  retry,
		logger: logger,
	}
}

// Names returns the cached artist names, loading them on first use.
func (a *ArtistIndex) Names(ctx context.Context) ([]string, error) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	if a.loaded {
		return a.names, nil
	}

	names, err := Retry(ctx, a.retry, "list artists", a.source.ArtistNames)
	if err != nil {
		return nil, err
	}

	a.names = names
	a.loaded = true
	a.logger.Info("Loaded artist index", zap.Int("artists", len(names)))

	return a.names, nil
}

func (a *ArtistIndex) Loaded() bool {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	return a.loaded
}

// FuzzyMatcher maps a spoken artist name to the closest library artist name. Overrides always
// win; similarity matching is best effort and falls back to the spoken name.
type FuzzyMatcher struct {
	overrides map[string]string
	index     *ArtistIndex
	threshold float64
	logger    *zap.Logger
}

func NewFuzzyMatcher(config MatcherConfig, index *ArtistIndex, logger *zap.Logger) *FuzzyMatcher {
	overrides := make(map[string]string, len(config.Overrides))
	for spoken, canonical := range config.Overrides {
		overrides[fuzzy.FoldKey(spoken)] = canonical
	}

	return &FuzzyMatcher{
		overrides: overrides,
		index:     index,
		threshold: config.Threshold,
		logger:    logger,
	}
}

// Match never fails: a miss or an unavailable artist index returns spoken unchanged.
func (m *FuzzyMatcher) Match(ctx context.Context, spoken string) string {
	if canonical, ok := m.overrides[fuzzy.FoldKey(spoken)]; ok {
		m.logger.Debug("Artist override applied",
			zap.String("spoken", spoken),
			zap.String("artist", canonical))
		return canonical
	}

	names, err := m.index.Names(ctx)
	if err != nil {
		m.logger.Warn("Artist index unavailable, using spoken name",
			zap.String("spoken", spoken),
			zap.Error(err))
		return spoken
	}

	best, score, ok := fuzzy.BestMatch(strings.TrimSpace(spoken), names)
	if !ok || score < m.threshold {
		m.logger.Debug("No close artist match",
			zap.String("spoken", spoken),
			zap.String("closest", best),
			zap.Float64("score", score))
		return spoken
	}

	m.logger.Debug("Artist matched",
		zap.String("spoken", spoken),
		zap.String("artist", best),
		zap.Float64("score", score))
	return best
}
