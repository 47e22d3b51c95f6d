package bank

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// ErrBankNotFound 请求的分区未注册
var ErrBankNotFound = errors.New("bank not found")

// TopicalBanks 是规范的主题分区集合。路由器只会把事实
// 落入这些分区之一。
var TopicalBanks = []string{
	"arts",
	"science",
	"history",
	"economics",
	"geography",
	"language_arts",
	"law",
	"math",
	"philosophy",
	"technology",
}

// 置信度分层的落库目标，路由器按 confidence 选择。
const (
	BankWorkingTheories = "working_theories"
	BankSTMOnly         = "stm_only"
)

// Registry 持有全部已注册分区。检索扇出与存储路由都经由它查找。
type Registry struct {
	mu       sync.RWMutex
	banks    map[string]*Bank
	theories *TheoriesBank
	logger   *zap.Logger
}

// NewRegistry creates all canonical topical banks plus the auxiliary
// working_theories, stm_only and theories_and_contradictions partitions
// under baseDir. perBank overrides the default rotation thresholds for
// individual banks.
func NewRegistry(baseDir string, rotation RotationConfig, perBank map[string]RotationConfig, logger *zap.Logger) (*Registry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{
		banks:  make(map[string]*Bank),
		logger: logger.With(zap.String("component", "bank_registry")),
	}

	names := append(append([]string{}, TopicalBanks...), BankWorkingTheories, BankSTMOnly)
	for _, name := range names {
		rot := rotation
		if over, ok := perBank[name]; ok {
			rot = over
		}
		b, err := New(name, filepath.Join(baseDir, name), rot, logger)
		if err != nil {
			return nil, fmt.Errorf("open bank %s: %w", name, err)
		}
		r.banks[name] = b
	}

	rot := rotation
	if over, ok := perBank["theories_and_contradictions"]; ok {
		rot = over
	}
	th, err := NewTheories(filepath.Join(baseDir, "theories_and_contradictions"), rot, logger)
	if err != nil {
		return nil, fmt.Errorf("open theories bank: %w", err)
	}
	r.theories = th
	return r, nil
}

// Get returns the named bank.
func (r *Registry) Get(name string) (*Bank, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.banks[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBankNotFound, name)
	}
	return b, nil
}

// Theories returns the theories-and-contradictions partition.
func (r *Registry) Theories() *TheoriesBank { return r.theories }

// SetRotationObserver registers fn on every bank, theories included.
func (r *Registry) SetRotationObserver(fn RotationObserver) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, b := range r.banks {
		b.SetRotationObserver(fn)
	}
	if r.theories != nil {
		r.theories.Bank.SetRotationObserver(fn)
	}
}

// Topical returns the canonical topical banks in stable name order.
func (r *Registry) Topical() []*Bank {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Bank, 0, len(TopicalBanks))
	for _, name := range TopicalBanks {
		if b, ok := r.banks[name]; ok {
			out = append(out, b)
		}
	}
	return out
}

// All returns every registered bank, theories included, in name order.
func (r *Registry) All() []*Bank {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.banks))
	for name := range r.banks {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]*Bank, 0, len(names)+1)
	for _, name := range names {
		out = append(out, r.banks[name])
	}
	if r.theories != nil {
		out = append(out, r.theories.Bank)
	}
	return out
}

// Close closes every bank.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.banks {
		_ = b.Close()
	}
	if r.theories != nil {
		_ = r.theories.Close()
	}
	return nil
}
