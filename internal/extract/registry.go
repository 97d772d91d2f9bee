package extract

import (
	"log/slog"
	"sort"

	"github.com/safeflow-app/receipts-backend/constants"
	"github.com/safeflow-app/receipts-backend/internal/common"
)

// Registry maps profile names to statically registered parsers. It is
// read-only after construction and safe for unlimited concurrent resolvers.
type Registry struct {
	parsers map[constants.ProfileName]Parser
	logger  *slog.Logger
}

// NewRegistry builds a registry from the given parsers. The basic parser is
// the fallback for every unknown profile, so its absence is a configuration
// error the process cannot run without.
func NewRegistry(logger *slog.Logger, parsers ...Parser) (*Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	m := make(map[constants.ProfileName]Parser, len(parsers))
	for _, p := range parsers {
		m[constants.ProfileName(p.Name())] = p
	}
	if _, ok := m[constants.ProfileBasic]; !ok {
		return nil, common.NewAppError("REGISTRY_CONFIG", "basic parser is not registered", common.ErrRegistryMisconfigured)
	}
	return &Registry{parsers: m, logger: logger}, nil
}

// NewDefaultRegistry registers every built-in profile variant.
func NewDefaultRegistry(logger *slog.Logger) (*Registry, error) {
	return NewRegistry(logger, NewBasicParser(), NewGroceryEBTParser(), NewRestaurantTipParser())
}

// Resolve returns the parser for name, falling back to basic for unknown
// profiles. fellBack reports the fallback so the caller can record which
// profile was actually used.
func (r *Registry) Resolve(name constants.ProfileName) (parser Parser, fellBack bool) {
	if p, ok := r.parsers[name]; ok {
		return p, false
	}
	r.logger.Warn("registry.profile_not_found",
		"requested", string(name),
		"fallback", string(constants.ProfileBasic),
	)
	return r.parsers[constants.ProfileBasic], true
}

// Profiles lists the registered profile names, sorted.
func (r *Registry) Profiles() []string {
	out := make([]string, 0, len(r.parsers))
	for name := range r.parsers {
		out = append(out, string(name))
	}
	sort.Strings(out)
	return out
}
