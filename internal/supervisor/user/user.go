// Package user provides an API for interaction with the identity of clients
// connected to the control surface.
package user

import (
	"context"

	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/peer"
)

// FromContext extracts the calling user's common name from the passed
// context's peer mTLS certificate, if present. The ok return value
// indicates whether a verified identity was found on the context.
func FromContext(ctx context.Context) (name string, ok bool) {
	p, ok := peer.FromContext(ctx)
	if !ok {
		return "", false
	}
	tlsInfo, ok := p.AuthInfo.(credentials.TLSInfo)
	if !ok {
		return "", false
	}
	if len(tlsInfo.State.VerifiedChains) == 0 || len(tlsInfo.State.VerifiedChains[0]) == 0 {
		return "", false
	}

	return tlsInfo.State.VerifiedChains[0][0].Subject.CommonName, true
}
