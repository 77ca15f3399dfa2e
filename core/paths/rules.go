package paths

import "strings"

// RuleKind names the reason a recorded library reference is left alone.
type RuleKind int

const (
	SystemLibraryPrefix RuleKind = iota
	SystemFrameworkPrefix
	FixedTokenPrefix
	CustomPrefix
)

func (k RuleKind) String() string {
	switch k {
	case SystemLibraryPrefix:
		return "system-library"
	case SystemFrameworkPrefix:
		return "system-framework"
	case FixedTokenPrefix:
		return "already-fixed"
	case CustomPrefix:
		return "custom"
	default:
		return "unknown"
	}
}

const (
	DefaultSystemLibrary   = "/usr/lib/"
	DefaultSystemFramework = "/System/Library/Frameworks/"
	SelfToken              = "@executable_path/.."
	FrameworksToken        = "@executable_path/../Frameworks/"
	LoaderToken            = "@loader_path"

	fixedPrefix = "@executable_path/"
)

type Rule struct {
	Kind   RuleKind
	Prefix string
}

func (r Rule) Matches(ref string) bool {
	return r.Prefix != "" && strings.HasPrefix(ref, r.Prefix)
}

type RuleSet []Rule

// DefaultRules ignores system libraries, system frameworks and references
// that a previous run already rewrote.
func DefaultRules() RuleSet {
	return NewRules(DefaultSystemLibrary, DefaultSystemFramework)
}

// NewRules builds the rule set from configured prefixes. Empty system
// prefixes fall back to the defaults; the fixed-token rule is always present.
func NewRules(systemLibrary, systemFramework string, extra ...string) RuleSet {
	if systemLibrary == "" {
		systemLibrary = DefaultSystemLibrary
	}
	if systemFramework == "" {
		systemFramework = DefaultSystemFramework
	}
	rules := RuleSet{
		{Kind: SystemLibraryPrefix, Prefix: systemLibrary},
		{Kind: SystemFrameworkPrefix, Prefix: systemFramework},
		{Kind: FixedTokenPrefix, Prefix: fixedPrefix},
	}
	for _, p := range extra {
		if p == "" {
			continue
		}
		rules = append(rules, Rule{Kind: CustomPrefix, Prefix: p})
	}
	return rules
}

func (rs RuleSet) Match(ref string) (Rule, bool) {
	for _, r := range rs {
		if r.Matches(ref) {
			return r, true
		}
	}
	return Rule{}, false
}

func (rs RuleSet) Ignored(ref string) bool {
	_, ok := rs.Match(ref)
	return ok
}
