package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	v1 "tiergate/pkg/api/v1"
	"tiergate/pkg/constraints"
	"tiergate/pkg/logger"

	"go.uber.org/zap"
)

// Gate is the embedded SDK: it keeps a resolved decision map for the company
// its API key belongs to and follows the stream plane to keep it current.
// Reads are local and fail closed; a Gate that never managed to connect
// simply answers false everywhere.
type Gate struct {
	addr       string
	apiKey     string
	httpClient *http.Client

	mu        sync.RWMutex
	decisions map[string]bool
	lastRev   int64

	refresh chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
}

// NewGate builds a Gate for one tenant. An empty apiKey means no company is
// configured: Start is a no-op and every gate answers disabled without any
// network traffic.
func NewGate(addr, apiKey string) *Gate {
	ctx, cancel := context.WithCancel(context.Background())
	return &Gate{
		addr:       addr,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 0},
		decisions:  make(map[string]bool),
		refresh:    make(chan struct{}, 1),
		ctx:        ctx,
		cancel:     cancel,
	}
}

func (g *Gate) Start() error {
	if g.apiKey == "" {
		logger.Warn("gate started without an API key, all features disabled")
		return nil
	}
	if err := g.fetchSnapshot(); err != nil {
		return err
	}
	go g.runWatchLoop()
	go g.runRefreshLoop()
	return nil
}

func (g *Gate) Close() {
	g.cancel()
}

// IsEnabled answers from the local decision map. Unknown features are
// disabled.
func (g *Gate) IsEnabled(name string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.decisions[name]
}

// Evaluate asks the server for a fresh decision, bypassing the local map.
func (g *Gate) Evaluate(ctx context.Context, name string) v1.Decision {
	results := g.EvaluateAll(ctx, []string{name})
	return results[name]
}

// EvaluateAll resolves a batch server-side. Each feature is isolated on the
// server; a transport failure here disables the whole batch with the error
// attached to every entry.
func (g *Gate) EvaluateAll(ctx context.Context, names []string) map[string]v1.Decision {
	if g.apiKey == "" {
		results := make(map[string]v1.Decision, len(names))
		for _, name := range names {
			results[name] = v1.Decision{Enabled: false}
		}
		return results
	}

	body, _ := json.Marshal(map[string][]string{"features": names})
	req, _ := http.NewRequestWithContext(ctx, "POST", g.addr+"/v1/eval", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-TierGate-Key", g.apiKey)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return failAll(names, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return failAll(names, fmt.Errorf("eval returned status %d", resp.StatusCode))
	}

	var res struct {
		Results map[string]v1.Decision `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return failAll(names, err)
	}
	return res.Results
}

func failAll(names []string, err error) map[string]v1.Decision {
	logger.Warn("batch evaluation failed, disabling batch", zap.Error(err))
	results := make(map[string]v1.Decision, len(names))
	for _, name := range names {
		results[name] = v1.Decision{Enabled: false, Err: err.Error()}
	}
	return results
}

func (g *Gate) fetchSnapshot() error {
	url := fmt.Sprintf("%s/v1/stream/snapshot", g.addr)
	req, _ := http.NewRequestWithContext(g.ctx, "GET", url, nil)
	req.Header.Set("X-TierGate-Key", g.apiKey)
	resp, err := g.httpClient.Do(req)
	if err != nil {
		logger.Error("failed to fetch gate snapshot", zap.Error(err))
		return err
	}
	defer resp.Body.Close()

	var res struct {
		Decisions map[string]bool `json:"decisions"`
		Revision  int64           `json:"revision"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		logger.Error("failed to decode gate snapshot", zap.Error(err))
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.decisions = res.Decisions
	if g.decisions == nil {
		g.decisions = make(map[string]bool)
	}
	g.lastRev = res.Revision
	return nil
}

// markDirty requests a snapshot refetch. Coalesces while one is pending.
func (g *Gate) markDirty() {
	select {
	case g.refresh <- struct{}{}:
	default:
	}
}

func (g *Gate) runRefreshLoop() {
	for {
		select {
		case <-g.ctx.Done():
			return
		case <-g.refresh:
			if err := g.fetchSnapshot(); err != nil {
				logger.Error("snapshot refetch failed", zap.Error(err))
			}
		}
	}
}

func (g *Gate) runWatchLoop() {
	backoff := time.Second
	maxBackoff := 30 * time.Second
	for {
		select {
		case <-g.ctx.Done():
			return
		default:
			g.mu.RLock()
			url := fmt.Sprintf("%s/v1/stream/watch?last_rev=%d", g.addr, g.lastRev)
			g.mu.RUnlock()

			// Use sub-context for request cancellation
			reqCtx, reqCancel := context.WithCancel(g.ctx)
			req, _ := http.NewRequestWithContext(reqCtx, "GET", url, nil)
			req.Header.Set("X-TierGate-Key", g.apiKey)
			resp, err := g.httpClient.Do(req)
			if err != nil {
				reqCancel()
				jitter := time.Duration(rand.Int63n(int64(backoff / 2)))
				logger.Warn("SSE disconnected", zap.Error(err))
				time.Sleep(backoff + jitter)
				backoff *= 2
				if backoff > maxBackoff {
					backoff = maxBackoff
				}
				continue
			}

			// Watchdog for heartbeats
			var lastActivity int64 = time.Now().Unix()
			go func() {
				ticker := time.NewTicker(5 * time.Second)
				defer ticker.Stop()
				for {
					select {
					case <-reqCtx.Done():
						return
					case <-ticker.C:
						if time.Now().Unix()-atomic.LoadInt64(&lastActivity) > 25 {
							logger.Warn("sse heartbeat timeout, reconnecting")
							reqCancel()
							return
						}
					}
				}
			}()

			backoff = time.Second
			scanner := bufio.NewScanner(resp.Body)

			var eventType string
			var dataBuffer bytes.Buffer

			for scanner.Scan() {
				atomic.StoreInt64(&lastActivity, time.Now().Unix())
				line := scanner.Text()
				if line == "" {
					// Process the accumulated message
					if eventType == "reset" {
						logger.Warn("received reset event, re-fetching snapshot")
						if err := g.fetchSnapshot(); err != nil {
							logger.Error("failed to refetch snapshot after reset", zap.Error(err))
						}
						// Close current stream
						reqCancel()
						break
					} else if eventType == "ping" {
						eventType = ""
						dataBuffer.Reset()
						continue
					} else if dataBuffer.Len() > 0 {
						var msg v1.Message
						if err := json.Unmarshal(dataBuffer.Bytes(), &msg); err == nil {
							g.handleUpdate(msg)
						} else {
							logger.Error("failed to unmarshal gate update", zap.Error(err))
						}
					}

					// Reset buffers for next message
					eventType = ""
					dataBuffer.Reset()
					continue
				}

				if strings.HasPrefix(line, "event: ") {
					eventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
				} else if strings.HasPrefix(line, "data:") {
					// Spec allows multiple data lines, joined by newline
					if dataBuffer.Len() > 0 {
						dataBuffer.WriteString("\n")
					}
					dataBuffer.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
				}
			}
			reqCancel()
			resp.Body.Close()
		}
	}
}

// handleUpdate folds one stream message into the decision map. Override puts
// for this company are authoritative and apply directly. Everything else
// (flag definition changes, override removals) cannot be re-resolved locally
// without the tier comparison, so the snapshot is refetched instead.
func (g *Gate) handleUpdate(msg v1.Message) {
	g.mu.Lock()
	if msg.Revision <= g.lastRev {
		g.mu.Unlock()
		logger.Warn("stale revision received", zap.Int64("msg_rev", msg.Revision), zap.Int64("last_rev", g.lastRev))
		return
	}
	g.lastRev = msg.Revision

	if msg.Kind == constraints.KindOverride && msg.Action == constraints.PUT {
		g.decisions[msg.FlagName] = msg.Enabled
		g.mu.Unlock()
		logger.Info("override applied",
			zap.String("feature", msg.FlagName),
			zap.Bool("enabled", msg.Enabled),
			zap.Int64("rev", msg.Revision))
		return
	}
	g.mu.Unlock()

	logger.Info("gate definition changed, snapshot dirty",
		zap.String("feature", msg.FlagName),
		zap.String("kind", msg.Kind),
		zap.Int64("rev", msg.Revision))
	g.markDirty()
}
