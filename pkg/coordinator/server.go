package coordinator

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/syndicate-project/gateway/internal/logger"
	"github.com/syndicate-project/gateway/pkg/cert"
)

// FileHandler is the coordinator-side effect of each WriteMsg op,
// implemented by the sync pipeline against the local fent/manifest
// state. Returning ErrStale causes the server to reply ESTALE without
// the handler needing to format a reply itself.
type FileHandler interface {
	// Prepare merges blocks into the coordinator's manifest for
	// (volumeID, fileID) at fileVersion and republishes it, returning the
	// bumped file_version and the new manifest bytes to hand back to the
	// sender for onward replication.
	Prepare(ctx context.Context, volumeID, fileID uint64, fileVersion int64, blocks []BlockVersion) (newFileVersion int64, manifestBytes []byte, err error)

	// Truncate runs a remote-initiated truncate under the coordinator's
	// own write lock and returns the bumped file_version.
	Truncate(ctx context.Context, volumeID, fileID uint64, fileVersion int64, newSize int64) (newFileVersion int64, err error)

	// Detach unlinks the file on this coordinator.
	Detach(ctx context.Context, volumeID, fileID uint64, fileVersion int64) error

	// ReleaseStaged frees buffers staged for blocks a remote has now
	// durably replicated.
	ReleaseStaged(ctx context.Context, volumeID, fileID uint64, blocks []uint64) error
}

// CertResolver looks up a gateway's current public key, for verifying
// inbound WriteMsg signatures against the sender's own certificate.
type CertResolver interface {
	PublicKeyFor(gatewayID uint64) (*rsa.PublicKey, bool)
}

// Server handles HTTP_POST_finish: the coordinator's single endpoint for
// every WriteMsg op. Its replies are signed with privateKey so the
// sender can verify them against this gateway's own certificate.
type Server struct {
	handler    FileHandler
	certs      CertResolver
	privateKey *rsa.PrivateKey
	verifiers  *cert.VerifierPool
}

// NewServer builds a Server.
func NewServer(handler FileHandler, certs CertResolver, privateKey *rsa.PrivateKey) *Server {
	return &Server{
		handler:    handler,
		certs:      certs,
		privateKey: privateKey,
		verifiers:  cert.NewVerifierPool(),
	}
}

// ServeHTTP implements HTTP_POST_finish.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var msg WriteMsg
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		http.Error(w, "malformed write message", http.StatusBadRequest)
		return
	}

	if err := s.verify(&msg); err != nil {
		logger.Warn("coordinator: rejecting write message", "sender", msg.SenderGatewayID, "error", err)
		s.reply(w, &WriteReply{Status: StatusInvalid})
		return
	}

	ctx := r.Context()
	reply, err := s.dispatch(ctx, &msg)
	if err != nil {
		if errors.Is(err, ErrStale) {
			s.reply(w, &WriteReply{Status: StatusStale})
			return
		}
		logger.Error("coordinator: write message failed", "op", msg.Op, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	s.reply(w, reply)
}

func (s *Server) verify(msg *WriteMsg) error {
	pub, ok := s.certs.PublicKeyFor(msg.SenderGatewayID)
	if !ok {
		return ErrUnknownSender
	}
	if err := s.verifiers.Verify(pub, msg); err != nil {
		return ErrInvalidSignature
	}
	return nil
}

func (s *Server) dispatch(ctx context.Context, msg *WriteMsg) (*WriteReply, error) {
	switch msg.Op {
	case OpPrepare:
		newVersion, manifest, err := s.handler.Prepare(ctx, msg.VolumeID, msg.FileID, msg.FileVersion, msg.AffectedBlocks)
		if err != nil {
			return nil, err
		}
		return &WriteReply{Status: StatusPromise, NewFileVersion: newVersion, ManifestBytes: manifest}, nil

	case OpTruncate:
		newVersion, err := s.handler.Truncate(ctx, msg.VolumeID, msg.FileID, msg.FileVersion, msg.NewSize)
		if err != nil {
			return nil, err
		}
		return &WriteReply{Status: StatusAccepted, NewFileVersion: newVersion}, nil

	case OpDetach:
		if err := s.handler.Detach(ctx, msg.VolumeID, msg.FileID, msg.FileVersion); err != nil {
			return nil, err
		}
		return &WriteReply{Status: StatusAccepted}, nil

	case OpAccepted:
		blockIDs := make([]uint64, len(msg.AffectedBlocks))
		for i, b := range msg.AffectedBlocks {
			blockIDs[i] = b.BlockID
		}
		if err := s.handler.ReleaseStaged(ctx, msg.VolumeID, msg.FileID, blockIDs); err != nil {
			return nil, err
		}
		return &WriteReply{Status: StatusAccepted}, nil

	default:
		return &WriteReply{Status: StatusInvalid}, nil
	}
}

func (s *Server) reply(w http.ResponseWriter, reply *WriteReply) {
	if err := cert.Sign(s.privateKey, reply); err != nil {
		logger.Error("coordinator: failed signing reply", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if reply.Status == StatusInvalid || reply.Status == StatusStale {
		w.WriteHeader(http.StatusConflict)
	}
	_ = json.NewEncoder(w).Encode(reply)
}
