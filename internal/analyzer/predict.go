package analyzer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/ralphswarm/swarm/internal/fileutil"
)

// maxTreeListingFiles bounds how many file paths are injected into the
// prediction prompt, keeping it within a reasonable LLM context budget.
const maxTreeListingFiles = 500

// Predictor predicts each task's affected-files glob set by querying an
// LLM with the task text and a truncated source-tree listing (§4.3 File
// prediction). Predictions are cached by content-hash + tree-digest so
// repeat LLM calls are avoided across resumes.
type Predictor struct {
	client LLMClient
	mu     sync.Mutex
	cache  map[string][]string
}

// NewPredictor constructs a Predictor using client for LLM queries.
func NewPredictor(client LLMClient) *Predictor {
	return &Predictor{client: client, cache: make(map[string][]string)}
}

// PredictFiles returns the predicted glob patterns for a task. On any
// failure to obtain a parseable JSON array of strings, it returns an
// empty set rather than failing the run. An empty set takes no file
// locks and conflicts with no other task's patterns
// (models.PatternsConflict), so such a task may run alongside any other.
func (p *Predictor) PredictFiles(ctx context.Context, taskText, contentHash, repoRoot string) ([]string, error) {
	treeDigest, err := TreeDigest(repoRoot)
	if err != nil {
		return nil, fmt.Errorf("computing tree digest: %w", err)
	}
	key := contentHash + ":" + treeDigest

	p.mu.Lock()
	if cached, ok := p.cache[key]; ok {
		p.mu.Unlock()
		return cached, nil
	}
	p.mu.Unlock()

	listing, err := truncatedTreeListing(repoRoot)
	if err != nil {
		return nil, fmt.Errorf("listing source tree: %w", err)
	}

	prompt := fmt.Sprintf(`Given the task below and a truncated listing of the current source
tree, respond with a JSON array of glob patterns (strings only) naming
the files this task is likely to modify. Respond with JSON only.

Task:
%s

Source tree:
%s`, taskText, strings.Join(listing, "\n"))

	raw, err := p.client.Complete(ctx, prompt)
	if err != nil {
		// Treat an LLM error as "no prediction" rather than a hard
		// failure — predictions are advisory only.
		return nil, nil
	}

	var patterns []string
	if err := json.Unmarshal([]byte(extractJSONArray(raw)), &patterns); err != nil {
		return nil, nil
	}
	// Validate every element is a string-shaped glob; a malformed element
	// degrades to the same empty-set fallback as an unparseable response.
	for _, pat := range patterns {
		if pat == "" {
			return nil, nil
		}
	}

	p.mu.Lock()
	p.cache[key] = patterns
	p.mu.Unlock()
	return patterns, nil
}

func truncatedTreeListing(repoRoot string) ([]string, error) {
	result, err := fileutil.ScanDirectory(repoRoot, fileutil.ScanOptions{
		ExcludeDirs: []string{".git", "node_modules", "vendor"},
		MaxFiles:    maxTreeListingFiles,
	})
	if err != nil {
		return nil, err
	}
	return result.Files, nil
}

// TreeDigest computes a stable digest of the repository's current file
// listing, used as the cache-invalidation key alongside a task's content
// hash: if the tree hasn't changed since a prediction was cached, the
// prediction is still valid.
func TreeDigest(repoRoot string) (string, error) {
	files, err := truncatedTreeListing(repoRoot)
	if err != nil {
		return "", err
	}
	h := sha256.New()
	for _, f := range files {
		h.Write([]byte(f))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ContentHash computes the resume-matching content hash for a task's
// text, following conductor's own stdlib sha256 content-hash convention
// (see DESIGN.md).
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
