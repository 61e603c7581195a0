package user

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"net"
	"testing"

	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/peer"
)

func contextWithVerifiedCN(cn string) context.Context {
	cert := &x509.Certificate{Subject: pkix.Name{CommonName: cn}}
	state := tls.ConnectionState{VerifiedChains: [][]*x509.Certificate{{cert}}}
	p := &peer.Peer{
		Addr:     &net.IPAddr{},
		AuthInfo: credentials.TLSInfo{State: state},
	}
	return peer.NewContext(context.Background(), p)
}

func TestFromContextReturnsCommonName(t *testing.T) {
	ctx := contextWithVerifiedCN("alice")

	name, ok := FromContext(ctx)
	if !ok {
		t.Fatalf("expected ok=true for a context with a verified chain")
	}
	if name != "alice" {
		t.Fatalf("name = %q, want %q", name, "alice")
	}
}

func TestFromContextNoPeer(t *testing.T) {
	_, ok := FromContext(context.Background())
	if ok {
		t.Fatalf("expected ok=false when context has no peer")
	}
}

func TestFromContextNoVerifiedChain(t *testing.T) {
	p := &peer.Peer{
		Addr:     &net.IPAddr{},
		AuthInfo: credentials.TLSInfo{State: tls.ConnectionState{}},
	}
	ctx := peer.NewContext(context.Background(), p)

	_, ok := FromContext(ctx)
	if ok {
		t.Fatalf("expected ok=false when no verified chain is present")
	}
}

func TestFromContextNonTLSAuthInfo(t *testing.T) {
	p := &peer.Peer{Addr: &net.IPAddr{}}
	ctx := peer.NewContext(context.Background(), p)

	_, ok := FromContext(ctx)
	if ok {
		t.Fatalf("expected ok=false when AuthInfo is not TLSInfo")
	}
}
