// Package mailaddr holds the address and domain normalization rules shared by
// the relevance matcher, the retrieval usecase and the providers. Every domain
// is passed through NormalizeDomain before storage and before comparison so
// that case and "@"-prefix variance never cause false negatives.
package mailaddr

import "strings"

// Direction classifies how a message relates to the local user and a client.
type Direction string

const (
	// DirectionOutbound: local user sent the message to a client address.
	DirectionOutbound Direction = "outbound"
	// DirectionInbound: a client address sent the message to the local user.
	DirectionInbound Direction = "inbound"
	// DirectionNewsletter: both the local user and a client address appear
	// only as recipients. Lower confidence, but still included.
	DirectionNewsletter Direction = "newsletter"
	// DirectionOther: the message matched by address but none of the
	// directional patterns apply (e.g. local user address unknown).
	DirectionOther Direction = "other"
)

// NormalizeDomain canonicalizes a domain string for comparison. A leading "@"
// is stripped, bare words (no dot, not "localhost") get a ".com" TLD appended,
// and the result is lowercased. The empty string normalizes to ".com"; that
// quirk is load-bearing for existing stored data and asserted by tests.
func NormalizeDomain(domain string) string {
	d := strings.TrimPrefix(domain, "@")
	if !strings.Contains(d, ".") && d != "localhost" {
		d += ".com"
	}
	return strings.ToLower(d)
}

// NormalizeEmail lowercases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// DomainOf returns the normalized domain part of an email address, or "" when
// the address has no "@".
func DomainOf(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 || at == len(email)-1 {
		return ""
	}
	return NormalizeDomain(email[at+1:])
}

// MatchesDomain reports whether addr belongs to domain or one of its
// subdomains. Both sides are expected to be normalized already.
func MatchesDomain(addr, domain string) bool {
	a := NormalizeEmail(addr)
	return strings.HasSuffix(a, "@"+domain) || strings.HasSuffix(a, "."+domain)
}

// ExpandDomains returns the normalized union of the configured domains and the
// domains implied by the configured email addresses. An email-implied domain
// is only added when it is not already covered by (equal to or a subdomain of)
// an existing entry, so a client defined loosely by a single address still
// matches the rest of that organization's correspondence.
func ExpandDomains(domains, emails []string) []string {
	out := make([]string, 0, len(domains)+len(emails))
	seen := make(map[string]bool)
	for _, d := range domains {
		nd := NormalizeDomain(d)
		if !seen[nd] {
			out = append(out, nd)
			seen[nd] = true
		}
	}
	for _, e := range emails {
		ed := DomainOf(NormalizeEmail(e))
		if ed == "" || seen[ed] {
			continue
		}
		covered := false
		for _, d := range out {
			if ed == d || strings.HasSuffix(ed, "."+d) {
				covered = true
				break
			}
		}
		if !covered {
			out = append(out, ed)
			seen[ed] = true
		}
	}
	return out
}

// matchesAny reports whether addr matches any client domain or equals any
// client email. All inputs normalized.
func matchesAny(addr string, domains, emails []string) bool {
	a := NormalizeEmail(addr)
	for _, e := range emails {
		if a == e {
			return true
		}
	}
	for _, d := range domains {
		if MatchesDomain(a, d) {
			return true
		}
	}
	return false
}

// ClassifyDirection annotates a matched message with its directional pairing
// relative to the local user's own address. It never excludes: a message that
// matched by address but fits no pattern is DirectionOther. The newsletter
// case (user and client both appear only as recipients) is kept deliberately,
// since multi-party mail may still carry report-relevant context.
func ClassifyDirection(from string, recipients []string, userAddr string, domains, emails []string) Direction {
	if userAddr == "" {
		return DirectionOther
	}
	user := NormalizeEmail(userAddr)
	fromAddr := NormalizeEmail(from)

	clientInRecipients := false
	userInRecipients := false
	for _, r := range recipients {
		nr := NormalizeEmail(r)
		if nr == user {
			userInRecipients = true
		}
		if matchesAny(nr, domains, emails) {
			clientInRecipients = true
		}
	}

	switch {
	case fromAddr == user && clientInRecipients:
		return DirectionOutbound
	case userInRecipients && matchesAny(fromAddr, domains, emails):
		return DirectionInbound
	case userInRecipients && clientInRecipients:
		return DirectionNewsletter
	default:
		return DirectionOther
	}
}
