package scp_test

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/draw-health/gateway/internal/catalog"
	"github.com/draw-health/gateway/internal/model"
	"github.com/draw-health/gateway/internal/scp"
)

// fakeAssociation is a minimal scp.Association double: it serves exactly
// one queued command, then EOF, matching one C-ECHO per test association.
type fakeAssociation struct {
	callingAE string
	cmds      []*scp.Command
	pos       int

	mu            sync.Mutex
	echoResponses []uint16
}

func (a *fakeAssociation) CallingAE() string                        { return a.callingAE }
func (a *fakeAssociation) CalledAE() string                         { return "DRAWGATEWAY" }
func (a *fakeAssociation) PeerAddr() net.Addr                       { return &net.TCPAddr{IP: net.ParseIP("127.0.0.1")} }
func (a *fakeAssociation) NegotiatedContexts() []scp.PresentationContext { return nil }

func (a *fakeAssociation) Next(ctx context.Context) (*scp.Command, error) {
	if a.pos >= len(a.cmds) {
		return nil, io.EOF
	}
	cmd := a.cmds[a.pos]
	a.pos++
	return cmd, nil
}

func (a *fakeAssociation) RespondEcho(status uint16) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.echoResponses = append(a.echoResponses, status)
	return nil
}
func (a *fakeAssociation) RespondStore(status uint16) error { return nil }
func (a *fakeAssociation) RespondFind(matches []map[string]string, status uint16) error {
	return nil
}
func (a *fakeAssociation) RespondMove(destAE, destHost string, destPort int, filePaths []string, status uint16) error {
	return nil
}
func (a *fakeAssociation) RespondGet(filePaths []string, status uint16) error { return nil }
func (a *fakeAssociation) Abort() error                                      { return nil }
func (a *fakeAssociation) Release() error                                    { return nil }

func (a *fakeAssociation) echoStatuses() []uint16 {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]uint16, len(a.echoResponses))
	copy(out, a.echoResponses)
	return out
}

type fakePending struct {
	assoc    *fakeAssociation
	rejected string
}

func (p *fakePending) Accept(contexts []scp.PresentationContext) (scp.Association, error) {
	return p.assoc, nil
}
func (p *fakePending) Reject(reason string) error {
	p.rejected = reason
	return nil
}

// fakeTransport yields one (request, pending) pair per queued entry, then
// blocks until the context is cancelled - mirroring a real listener with
// no further incoming associations.
type fakeTransport struct {
	mu      sync.Mutex
	pending []struct {
		req *scp.AssociationRequest
		p   *fakePending
	}
}

func (t *fakeTransport) push(req *scp.AssociationRequest, p *fakePending) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending = append(t.pending, struct {
		req *scp.AssociationRequest
		p   *fakePending
	}{req, p})
}

func (t *fakeTransport) Accept(ctx context.Context) (*scp.AssociationRequest, scp.Pending, error) {
	t.mu.Lock()
	if len(t.pending) > 0 {
		next := t.pending[0]
		t.pending = t.pending[1:]
		t.mu.Unlock()
		return next.req, next.p, nil
	}
	t.mu.Unlock()

	<-ctx.Done()
	return nil, nil, errors.New("transport closed")
}

func (t *fakeTransport) Close() error { return nil }

var _ = Describe("Server", func() {
	var (
		store *catalog.Store
		cfg   *model.SCPConfiguration
	)

	BeforeEach(func() {
		var err error
		store, err = catalog.Open(":memory:")
		Expect(err).NotTo(HaveOccurred())
		cfg = model.DefaultSCPConfiguration()
		cfg.ValidateAE = false
	})

	AfterEach(func() {
		store.Close()
	})

	It("responds success to C-ECHO on an accepted association", func() {
		s := scp.NewServer(store, cfg)
		assoc := &fakeAssociation{callingAE: "ANYAE", cmds: []*scp.Command{{Type: scp.CommandEcho}}}
		transport := &fakeTransport{}
		transport.push(&scp.AssociationRequest{CallingAE: "ANYAE", CalledAE: cfg.AETitle}, &fakePending{assoc: assoc})

		ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
		defer cancel()
		_ = s.Serve(ctx, transport)

		Eventually(assoc.echoStatuses, time.Second).Should(Equal([]uint16{scp.StatusSuccess}))
	})

	It("rejects an association from an AE outside the allow-list", func() {
		cfg.ValidateAE = true
		cfg.AEAllowList = []string{"KNOWNAE"}
		s := scp.NewServer(store, cfg)

		pending := &fakePending{assoc: &fakeAssociation{callingAE: "STRANGER"}}
		transport := &fakeTransport{}
		transport.push(&scp.AssociationRequest{CallingAE: "STRANGER", CalledAE: cfg.AETitle}, pending)

		ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
		defer cancel()
		_ = s.Serve(ctx, transport)

		Expect(pending.rejected).NotTo(BeEmpty())
	})
})
