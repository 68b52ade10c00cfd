package usecases

import (
	"strings"

	"github.com/MyCarrier-DevOps/slippy-catchup/internal/domain"
)

const (
	remoteRefPrefix = "refs/remotes/"
	localHeadPrefix = "refs/heads/"
)

// QualificationRule turns a branch spec into a fully qualified ref for one remote.
type QualificationRule struct {
	// Name identifies the rule in trace output.
	Name string

	// Applies reports whether the rule is structurally plausible for spec and remote.
	Applies func(spec, remote string) bool

	// Build returns the qualified ref.
	Build func(spec, remote string) string
}

// ShorthandRule qualifies a spec without '/' as "<remote>/<spec>".
var ShorthandRule = QualificationRule{
	Name:    "shorthand",
	Applies: func(spec, _ string) bool { return !strings.Contains(spec, "/") },
	Build:   func(spec, remote string) string { return remote + "/" + spec },
}

// PrimaryRules are tried in order for a spec containing '/'; the first that
// applies produces the remote's primary candidate. The last rule always applies.
var PrimaryRules = []QualificationRule{
	{
		Name:    "remote-shorthand",
		Applies: func(spec, remote string) bool { return strings.HasPrefix(spec, remote+"/") },
		Build:   func(spec, _ string) string { return remoteRefPrefix + spec },
	},
	{
		Name:    "remotes-path",
		Applies: func(spec, remote string) bool { return strings.HasPrefix(spec, "remotes/"+remote+"/") },
		Build:   func(spec, _ string) string { return "refs/" + spec },
	},
	{
		Name:    "local-heads",
		Applies: func(spec, _ string) bool { return strings.HasPrefix(spec, localHeadPrefix) },
		Build: func(spec, remote string) string {
			return remoteRefPrefix + remote + "/" + strings.TrimPrefix(spec, localHeadPrefix)
		},
	},
	{
		Name:    "verbatim",
		Applies: func(_, _ string) bool { return true },
		Build:   func(spec, _ string) string { return spec },
	},
}

// LiteralRule guesses that spec is an exact remote branch name containing '/',
// such as "feature/x".
var LiteralRule = QualificationRule{
	Name:    "literal",
	Applies: func(_, _ string) bool { return true },
	Build:   func(spec, remote string) string { return remoteRefPrefix + remote + "/" + spec },
}

// QualifiedRef is one candidate produced by the qualifier.
type QualifiedRef struct {
	Ref    string
	Remote string
	Rule   string
}

// QualifyRefs expands spec into the ordered list of candidate refs to try
// against the given remotes. It is a pure function.
func QualifyRefs(spec string, remotes []domain.Remote) []QualifiedRef {
	var refs []QualifiedRef
	for _, remote := range remotes {
		if ShorthandRule.Applies(spec, remote.Name) {
			refs = append(refs, qualify(ShorthandRule, spec, remote.Name))
			continue
		}
		for _, rule := range PrimaryRules {
			if rule.Applies(spec, remote.Name) {
				refs = append(refs, qualify(rule, spec, remote.Name))
				break
			}
		}
		refs = append(refs, qualify(LiteralRule, spec, remote.Name))
	}
	return refs
}

func qualify(rule QualificationRule, spec, remote string) QualifiedRef {
	return QualifiedRef{
		Ref:    rule.Build(spec, remote),
		Remote: remote,
		Rule:   rule.Name,
	}
}
