package validation

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/kommetio/kommet-core/internal/types"
)

// MessageSource resolves text-label keys to user-facing messages.
// Implemented by the labels store.
type MessageSource interface {
	Label(key string) (string, bool)
}

// Violation is the error returned when a record fails an active rule.
type Violation struct {
	RuleID   types.KID
	RuleName string
	Message  string
}

func (v *Violation) Error() string {
	return fmt.Sprintf("validation rule %s violated: %s", v.RuleName, v.Message)
}

// Cache holds the compiled active rules per type. It is read on every save
// and invalidated when rules change.
type Cache struct {
	mu     sync.RWMutex
	byType map[types.KID][]*compiledRule
	byID   map[types.KID]*compiledRule
}

// NewCache creates an empty rule cache.
func NewCache() *Cache {
	return &Cache{
		byType: make(map[types.KID][]*compiledRule),
		byID:   make(map[types.KID]*compiledRule),
	}
}

// Register compiles and caches a rule. Inactive rules are compiled (so
// invalid conditions are still rejected at save time) but not cached.
func (c *Cache) Register(r *Rule, typ *types.Type, resolver types.TypeResolver) error {
	compiled, err := Compile(r, typ, resolver)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeLocked(r.ID)
	if !r.Active {
		return nil
	}
	c.byID[r.ID] = compiled
	c.byType[r.TypeID] = append(c.byType[r.TypeID], compiled)
	return nil
}

// Unregister drops a rule from the cache.
func (c *Cache) Unregister(id types.KID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeLocked(id)
}

// InvalidateType drops all cached rules for a type, e.g. when the type is
// deleted.
func (c *Cache) InvalidateType(typeID types.KID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, compiled := range c.byType[typeID] {
		delete(c.byID, compiled.rule.ID)
	}
	delete(c.byType, typeID)
}

func (c *Cache) removeLocked(id types.KID) {
	existing, ok := c.byID[id]
	if !ok {
		return
	}
	delete(c.byID, id)
	rules := c.byType[existing.rule.TypeID]
	for i, compiled := range rules {
		if compiled.rule.ID == id {
			c.byType[existing.rule.TypeID] = append(rules[:i], rules[i+1:]...)
			break
		}
	}
	if len(c.byType[existing.rule.TypeID]) == 0 {
		delete(c.byType, existing.rule.TypeID)
	}
}

// HasActiveRules reports whether a type has any active rules cached.
func (c *Cache) HasActiveRules(typeID types.KID) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byType[typeID]) > 0
}

// activeForType returns a snapshot of the active rules for a type.
func (c *Cache) activeForType(typeID types.KID) []*compiledRule {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rules := c.byType[typeID]
	out := make([]*compiledRule, len(rules))
	copy(out, rules)
	return out
}

// Engine evaluates active rules against records about to be saved.
type Engine struct {
	cache    *Cache
	messages MessageSource
	log      *zap.Logger
}

// NewEngine creates a rule engine. messages may be nil if no text-label
// store is configured.
func NewEngine(cache *Cache, messages MessageSource, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{cache: cache, messages: messages, log: log}
}

// Evaluate runs every active rule for the record's type. The first failing
// rule stops evaluation and is returned as a Violation.
func (e *Engine) Evaluate(rec *types.Record, typeID types.KID) error {
	for _, compiled := range e.cache.activeForType(typeID) {
		ok, err := compiled.expr.Eval(rec)
		if err != nil {
			return fmt.Errorf("evaluating rule %s: %w", compiled.rule.Name, err)
		}
		if !ok {
			msg := e.resolveMessage(compiled.rule)
			e.log.Debug("validation rule violated",
				zap.String("rule", compiled.rule.Name),
				zap.String("record", rec.ID().String()))
			return &Violation{RuleID: compiled.rule.ID, RuleName: compiled.rule.Name, Message: msg}
		}
	}
	return nil
}

// resolveMessage picks the literal message when present, otherwise looks
// up the text label. Falls back to the rule name.
func (e *Engine) resolveMessage(r *Rule) string {
	if r.ErrorMessage != "" {
		return r.ErrorMessage
	}
	if r.ErrorMessageLabel != "" && e.messages != nil {
		if msg, ok := e.messages.Label(r.ErrorMessageLabel); ok {
			return msg
		}
	}
	if r.ErrorMessageLabel != "" {
		return r.ErrorMessageLabel
	}
	return r.Name
}
