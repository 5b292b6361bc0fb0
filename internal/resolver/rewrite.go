package resolver

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

type rewriteRule struct {
	from string
	to   string
}

// HostRewriter substitutes known anti-hotlinking CDN domains with the domain
// that serves the same manifest paths directly. A rule matches the host
// exactly or as a dot-separated suffix, so `cdn-redirect.example ->
// cdn-direct.example` turns `hls.cdn-redirect.example` into
// `hls.cdn-direct.example`. The rule set comes from configuration; nothing
// else in the resolver knows which domains are involved, so when the CDN
// changes only the rules change.
type HostRewriter struct {
	rules []rewriteRule
}

// NewHostRewriter builds a rewriter from a domain-to-domain rule set. A rule
// set is rejected when any target matches a rule key, or a rule key sits
// under a target: either way a rewrite could produce a host that rewrites
// again, and a rewritten URL must survive a second pass unchanged. More
// specific (longer) rules take precedence.
func NewHostRewriter(rules map[string]string) (*HostRewriter, error) {
	r := &HostRewriter{}
	for from, to := range rules {
		for key := range rules {
			if to == key || strings.HasSuffix(to, "."+key) || strings.HasSuffix(key, "."+to) {
				return nil, fmt.Errorf("rewrite rule %s -> %s: target overlaps rule %s", from, to, key)
			}
		}
		r.rules = append(r.rules, rewriteRule{from: from, to: to})
	}

	sort.Slice(r.rules, func(i, j int) bool {
		if len(r.rules[i].from) != len(r.rules[j].from) {
			return len(r.rules[i].from) > len(r.rules[j].from)
		}
		return r.rules[i].from < r.rules[j].from
	})

	return r, nil
}

// Rewrite applies the rule set to the URL's host. Unknown hosts and inputs
// that do not parse as URLs pass through unchanged, so a manifest URL the
// site has already fixed upstream survives a second application.
func (r *HostRewriter) Rewrite(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}

	host := u.Hostname()
	for _, rule := range r.rules {
		var newHost string
		switch {
		case host == rule.from:
			newHost = rule.to
		case strings.HasSuffix(host, "."+rule.from):
			newHost = strings.TrimSuffix(host, rule.from) + rule.to
		default:
			continue
		}

		if port := u.Port(); port != "" {
			u.Host = newHost + ":" + port
		} else {
			u.Host = newHost
		}
		return u.String()
	}

	return raw
}
