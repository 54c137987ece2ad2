package model

import "strings"

// UnknownDomain is the label assigned to addresses without a usable domain part.
const UnknownDomain = "unknown"

// BucketOther is the shared bucket every non-dedicated domain folds into.
const BucketOther = "other"

// ExtractDomain returns the lower-cased domain part of an address.
//
// The domain is everything after the first '@'. Addresses with no '@', or
// whose '@' is the last character, yield UnknownDomain. The function is total:
// it never fails and always returns a non-empty label.
//
// Routing (publish side) and bucketing (persist side) must both go through this
// function, otherwise the delivered domain and the stored domain can diverge.
func ExtractDomain(address string) string {
	at := strings.IndexByte(address, '@')
	if at == -1 || at == len(address)-1 {
		return UnknownDomain
	}

	domain := strings.TrimSpace(address[at+1:])
	if domain == "" {
		return UnknownDomain
	}
	return strings.ToLower(domain)
}
