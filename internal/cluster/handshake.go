package cluster

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/lesismal/arpc"
	"github.com/rs/zerolog"

	"github.com/DeltaLaboratory/kvdb/internal/kvdberr"
)

const (
	backoffBase = 1 * time.Second
	backoffCap  = 30 * time.Second
)

// infoRequest and infoResponse are the wire types for the /cluster/info
// arpc endpoint, the internal node-to-node counterpart of the CLUSTER_INFO
// client command.
type infoRequest struct{}

type infoResponse struct {
	Descriptor map[string][]string
}

// Handshake holds this node's clustered view and probes every peer named
// in it until they all agree, or gives up.
type Handshake struct {
	self       string
	descriptor Descriptor
	logger     zerolog.Logger
}

// NewHandshake builds a handshake from the full cluster.conf descriptor;
// self is this node's own cluster (node-to-node) address as it appears in
// cluster.conf.
func NewHandshake(self string, descriptor Descriptor, logger zerolog.Logger) *Handshake {
	return &Handshake{
		self:       self,
		descriptor: descriptor.Clustered(),
		logger:     logger.With().Str("layer", "cluster").Logger(),
	}
}

// LocalDescriptor returns this node's clustered view, as reported by the
// CLUSTER_INFO client command.
func (h *Handshake) LocalDescriptor() map[string][]string {
	return h.descriptor
}

// Register wires the /cluster/info endpoint onto an arpc server so peers
// can probe this node the same way it probes them.
func (h *Handshake) Register(handler arpc.Handler) {
	handler.Handle("/cluster/info", func(ctx *arpc.Context) {
		if err := ctx.Write(&infoResponse{Descriptor: h.descriptor}); err != nil {
			h.logger.Error().Err(err).Msg("failed to write cluster/info response")
		}
	})
}

// Confirm dials every peer named in the local descriptor and compares its
// reported view against ours, retrying each peer with exponential backoff
// (base 1s, cap 30s) until it answers or ctx is done. Any two non-matching
// views is fatal.
func (h *Handshake) Confirm(ctx context.Context) error {
	peers := h.descriptor.AllPeers(h.self)
	if len(peers) == 0 {
		return nil
	}

	for _, peer := range peers {
		remote, err := h.probe(ctx, peer)
		if err != nil {
			return kvdberr.Wrap(kvdberr.ClusterMismatch, fmt.Sprintf("failed to reach peer %s", peer), err)
		}

		if !h.descriptor.Equal(Descriptor(remote)) {
			return kvdberr.New(kvdberr.ClusterMismatch,
				fmt.Sprintf("peer %s reports %v, local view is %v", peer, remote, h.descriptor))
		}

		h.logger.Info().Str("peer", peer).Msg("cluster descriptor confirmed")
	}

	return nil
}

func (h *Handshake) probe(ctx context.Context, peer string) (map[string][]string, error) {
	backoff := backoffBase
	for {
		client, err := arpc.NewClient(func() (net.Conn, error) {
			return net.Dial("tcp", peer)
		})
		if err == nil {
			var resp infoResponse
			callErr := client.Call("/cluster/info", &infoRequest{}, &resp, 10*time.Second)
			client.Stop()
			if callErr == nil {
				return resp.Descriptor, nil
			}
			err = callErr
		}

		h.logger.Warn().Err(err).Str("peer", peer).Dur("retry_in", backoff).Msg("peer unreachable, retrying")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > backoffCap {
			backoff = backoffCap
		}
	}
}
