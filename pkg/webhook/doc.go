// Package webhook authenticates inbound webhook callbacks from external
// providers (payments, identity verification, bank linking) using a
// timestamp-bound HMAC-SHA256 signature scheme.
//
// Verification flow:
//
//	sig, err := webhook.FromRequest(r)
//	if err != nil {
//		// missing/malformed headers -> reject
//	}
//	if err := webhook.VerifySignature(secret, body, sig, 5*time.Minute); err != nil {
//		// signature mismatch or replay -> reject
//	}
//
// SignPayload is the counterpart used by tests and local tooling to
// construct valid provider requests.
package webhook
